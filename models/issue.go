package models

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueStatus enum
type IssueStatus string

const (
	StatusPending    IssueStatus = "pending"
	StatusInProgress IssueStatus = "in-progress"
	StatusWorking    IssueStatus = "working"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
)

// Statuses a staff member may move an assigned issue to. Any of them may
// follow any other.
var staffStatuses = map[IssueStatus]bool{
	StatusInProgress: true,
	StatusWorking:    true,
	StatusResolved:   true,
	StatusClosed:     true,
}

func (s IssueStatus) StaffSettable() bool {
	return staffStatuses[s]
}

// Priority enum
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities in the feed, highest first. The string values do not
// sort in that order.
func (p Priority) Rank() int {
	if p == PriorityHigh {
		return 1
	}
	return 0
}

// Actor is a snapshot of whoever caused a timeline event.
type Actor struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Role  Role   `bson:"role" json:"role"`
}

// StaffRef is the assignee snapshot stored on an issue.
type StaffRef struct {
	ID    primitive.ObjectID `bson:"id" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
}

type TimelineEntry struct {
	Status    IssueStatus `bson:"status" json:"status"`
	Message   string      `bson:"message" json:"message"`
	UpdatedBy Actor       `bson:"updatedBy" json:"updatedBy"`
	CreatedAt time.Time   `bson:"createdAt" json:"createdAt"`
}

// ImageList accepts either a single URL or a list of URLs in JSON.
type ImageList []string

func (l *ImageList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = normalizeImages([]string{single})
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = normalizeImages(many)
	return nil
}

func normalizeImages(in []string) ImageList {
	out := make(ImageList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Category      string             `bson:"category" json:"category"`
	Location      string             `bson:"location" json:"location"`
	Description   string             `bson:"description" json:"description"`
	Images        []string           `bson:"images" json:"images"`
	Upvotes       int                `bson:"upvotes" json:"upvotes"`
	UpvotedUsers  []string           `bson:"upvotedUsers" json:"upvotedUsers"`
	IsBoosted     bool               `bson:"isBoosted" json:"isBoosted"`
	Priority      Priority           `bson:"priority" json:"priority"`
	PriorityRank  int                `bson:"priorityRank" json:"-"`
	Status        IssueStatus        `bson:"status" json:"status"`
	SubmittedBy   string             `bson:"submittedBy" json:"submittedBy"`
	SubmitterName string             `bson:"submitterName" json:"submitterName"`
	AssignedStaff *StaffRef          `bson:"assignedStaff" json:"assignedStaff"`
	Timeline      []TimelineEntry    `bson:"timeline" json:"timeline"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IssueChanges holds the owner-editable fields. Nil fields are left alone.
type IssueChanges struct {
	Title       *string
	Category    *string
	Location    *string
	Description *string
	Images      ImageList
	UpdatedAt   time.Time
}
