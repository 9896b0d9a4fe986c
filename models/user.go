package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role enum
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Email       string             `bson:"email" json:"email"`
	Phone       string             `bson:"phone,omitempty" json:"phone,omitempty"`
	PhotoURL    string             `bson:"photoURL,omitempty" json:"photoURL,omitempty"`
	Role        Role               `bson:"role" json:"role"`
	IsPremium   bool               `bson:"isPremium" json:"isPremium"`
	IsBlocked   bool               `bson:"isBlocked" json:"isBlocked"`
	ProviderUID string             `bson:"providerUid,omitempty" json:"-"`
	LastIssueAt *time.Time         `bson:"lastIssueAt,omitempty" json:"-"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
func (u *User) IsStaff() bool { return u.Role == RoleStaff }

// Actor returns the snapshot recorded in issue timelines.
func (u *User) Actor() Actor {
	return Actor{Name: u.Name, Email: u.Email, Role: u.Role}
}

// ProfileChanges holds the self-editable profile fields. Nil fields are left alone.
type ProfileChanges struct {
	Name      *string
	Phone     *string
	PhotoURL  *string
	UpdatedAt time.Time
}
