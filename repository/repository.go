package repository

import (
	"context"
	"errors"

	"cityfix-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrDuplicate     = errors.New("duplicate key")
	ErrQuotaExceeded = errors.New("submission quota exceeded")
	// ErrPrecondition means the document exists but a conditional write did
	// not match it.
	ErrPrecondition = errors.New("precondition failed")
)

// IssueFilter drives issue listings. Zero values mean "no constraint".
type IssueFilter struct {
	Search             string
	Status             string
	Category           string
	SubmittedBy        string
	AssignedStaffEmail string
	Boosted            *bool
	Page               int64
	Limit              int64
}

type IssueRepository interface {
	Insert(ctx context.Context, issue *models.Issue) error
	// InsertWithinQuota inserts the issue only if its submitter has fewer
	// than limit issues on record, evaluated atomically with the insert.
	InsertWithinQuota(ctx context.Context, issue *models.Issue, limit int64) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	// List returns one page of issues in feed order and the filtered total.
	List(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error)
	// FindAll returns every match newest first. Paging fields are ignored.
	FindAll(ctx context.Context, filter IssueFilter) ([]models.Issue, error)
	ListRecentResolved(ctx context.Context, limit int64) ([]models.Issue, error)
	UpdateOwned(ctx context.Context, id primitive.ObjectID, owner string, changes models.IssueChanges) (*models.Issue, error)
	DeleteOwned(ctx context.Context, id primitive.ObjectID, owner string) error
	// ToggleUpvote removes voter if present, adds it otherwise, and returns the
	// issue after the change.
	ToggleUpvote(ctx context.Context, id primitive.ObjectID, voter string) (*models.Issue, bool, error)
	AssignStaff(ctx context.Context, id primitive.ObjectID, staff models.StaffRef, entry models.TimelineEntry) (*models.Issue, error)
	ClearStaff(ctx context.Context, id primitive.ObjectID, entry models.TimelineEntry) (*models.Issue, error)
	// TransitionStatus moves the issue from one status to another if staffEmail
	// is still the assignee and the status is still from.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, staffEmail string, from, to models.IssueStatus, entry models.TimelineEntry) (*models.Issue, error)
	// MarkBoosted boosts an unboosted issue. Boosting an already boosted issue
	// is a no-op that returns the stored issue.
	MarkBoosted(ctx context.Context, id primitive.ObjectID, entry models.TimelineEntry) (*models.Issue, error)
}

type UserRepository interface {
	Insert(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// List returns users with the given role, or all users for an empty role.
	List(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateProfile(ctx context.Context, email string, changes models.ProfileChanges) (*models.User, error)
	UpdateStaff(ctx context.Context, id primitive.ObjectID, changes models.ProfileChanges) (*models.User, error)
	DeleteStaff(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ToggleBlocked(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetPremium(ctx context.Context, email string) error
}

type PaymentRepository interface {
	// Insert fails with ErrDuplicate when a payment for the same session exists.
	Insert(ctx context.Context, payment *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	ListByEmail(ctx context.Context, email string) ([]models.Payment, error)
	ListAll(ctx context.Context) ([]models.Payment, error)
}

// Store bundles the three repositories.
type Store struct {
	Issues   IssueRepository
	Users    UserRepository
	Payments PaymentRepository
}

const (
	DefaultPageSize int64 = 9
	MaxPageSize     int64 = 100
)

// Normalize fills paging defaults.
func (f *IssueFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

// TotalPages is ceil(total / limit).
func TotalPages(total, limit int64) int64 {
	if limit < 1 {
		return 0
	}
	return (total + limit - 1) / limit
}
