package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cityfix-be/apperrors"
	"cityfix-be/models"
	"cityfix-be/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultFreeIssueQuota int64 = 3
	recentResolvedLimit   int64 = 6
)

type IssueService struct {
	issues    repository.IssueRepository
	users     repository.UserRepository
	freeQuota int64
	now       func() time.Time
}

func NewIssueService(issues repository.IssueRepository, users repository.UserRepository, freeQuota int64) *IssueService {
	if freeQuota <= 0 {
		freeQuota = DefaultFreeIssueQuota
	}
	return &IssueService{
		issues:    issues,
		users:     users,
		freeQuota: freeQuota,
		now:       time.Now,
	}
}

type CreateIssueInput struct {
	Title       string
	Category    string
	Location    string
	Description string
	Images      models.ImageList
}

type UpdateIssueInput struct {
	Title       *string
	Category    *string
	Location    *string
	Description *string
	Images      models.ImageList
}

type ListIssuesQuery struct {
	Search      string
	Status      string
	Category    string
	Priority    string
	SubmittedBy string
	Page        int64
	Limit       int64
}

type IssuePage struct {
	Issues     []models.Issue `json:"issues"`
	Total      int64          `json:"total"`
	TotalPages int64          `json:"totalPages"`
	Page       int64          `json:"page"`
	Limit      int64          `json:"limit"`
}

type UpvoteResult struct {
	Upvoted bool `json:"upvoted"`
	Upvotes int  `json:"upvotes"`
}

// Create stores a new pending issue for email. Free accounts are capped at
// the configured quota; the cap is evaluated atomically with the insert.
func (s *IssueService) Create(ctx context.Context, email string, in CreateIssueInput) (*models.Issue, error) {
	user, err := activeAccount(ctx, s.users, email)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	issue := &models.Issue{
		Title:         strings.TrimSpace(in.Title),
		Category:      strings.TrimSpace(in.Category),
		Location:      strings.TrimSpace(in.Location),
		Description:   strings.TrimSpace(in.Description),
		Images:        []string(in.Images),
		UpvotedUsers:  []string{},
		Priority:      models.PriorityNormal,
		PriorityRank:  models.PriorityNormal.Rank(),
		Status:        models.StatusPending,
		SubmittedBy:   user.Email,
		SubmitterName: user.Name,
		Timeline: []models.TimelineEntry{{
			Status:    models.StatusPending,
			Message:   "Issue reported by " + user.Name,
			UpdatedBy: user.Actor(),
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if user.IsPremium {
		err = s.issues.Insert(ctx, issue)
	} else {
		err = s.issues.InsertWithinQuota(ctx, issue, s.freeQuota)
	}
	switch {
	case errors.Is(err, repository.ErrQuotaExceeded):
		return nil, apperrors.QuotaExceeded(fmt.Sprintf(
			"Free accounts can report up to %d issues. Upgrade to premium to report more.", s.freeQuota))
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.Forbidden("Account not found")
	case err != nil:
		return nil, apperrors.External(err)
	}
	return issue, nil
}

func (s *IssueService) List(ctx context.Context, q ListIssuesQuery) (*IssuePage, error) {
	filter := q.filter()
	filter.Normalize()

	issues, total, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return &IssuePage{
		Issues:     issues,
		Total:      total,
		TotalPages: repository.TotalPages(total, filter.Limit),
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// All is the admin listing: the same filters as List, newest first, unpaged.
func (s *IssueService) All(ctx context.Context, q ListIssuesQuery) ([]models.Issue, error) {
	return s.findAll(ctx, q.filter())
}

func (s *IssueService) Mine(ctx context.Context, email string) ([]models.Issue, error) {
	return s.findAll(ctx, repository.IssueFilter{SubmittedBy: email})
}

func (s *IssueService) AssignedTo(ctx context.Context, staffEmail string) ([]models.Issue, error) {
	return s.findAll(ctx, repository.IssueFilter{AssignedStaffEmail: staffEmail})
}

func (s *IssueService) RecentResolved(ctx context.Context) ([]models.Issue, error) {
	issues, err := s.issues.ListRecentResolved(ctx, recentResolvedLimit)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return issues, nil
}

func (s *IssueService) Get(ctx context.Context, id string) (*models.Issue, error) {
	issueID, err := parseIssueID(id)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, issueID)
}

// Update edits an issue on behalf of its submitter.
func (s *IssueService) Update(ctx context.Context, email, id string, in UpdateIssueInput) (*models.Issue, error) {
	issueID, err := parseIssueID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedIssue(ctx, email, issueID); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	changes := models.IssueChanges{
		Title:       trimmed(in.Title),
		Category:    trimmed(in.Category),
		Location:    trimmed(in.Location),
		Description: trimmed(in.Description),
		Images:      in.Images,
		UpdatedAt:   s.now(),
	}
	issue, err := s.issues.UpdateOwned(ctx, issueID, email, changes)
	if err != nil {
		return nil, issueError(err)
	}
	return issue, nil
}

func (s *IssueService) Delete(ctx context.Context, email, id string) error {
	issueID, err := parseIssueID(id)
	if err != nil {
		return err
	}
	if _, err := s.ownedIssue(ctx, email, issueID); err != nil {
		return err
	}
	if err := s.issues.DeleteOwned(ctx, issueID, email); err != nil {
		return issueError(err)
	}
	return nil
}

// ToggleUpvote adds email to the issue's voters, or removes it if present.
func (s *IssueService) ToggleUpvote(ctx context.Context, email, id string) (*UpvoteResult, error) {
	issueID, err := parseIssueID(id)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, apperrors.Unauthenticated("User not authenticated")
	}

	issue, upvoted, err := s.issues.ToggleUpvote(ctx, issueID, email)
	if errors.Is(err, repository.ErrPrecondition) {
		return nil, apperrors.Conflict("Upvote changed concurrently, try again")
	}
	if err != nil {
		return nil, issueError(err)
	}
	return &UpvoteResult{Upvoted: upvoted, Upvotes: issue.Upvotes}, nil
}

// AssignStaff sets the issue's single assignee. An issue that already has one
// is rejected, whoever the acting admin is.
func (s *IssueService) AssignStaff(ctx context.Context, admin *models.User, id, staffID string) (*models.Issue, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, apperrors.Forbidden("Admin access required")
	}
	issueID, err := parseIssueID(id)
	if err != nil {
		return nil, err
	}
	staffOID, err := primitive.ObjectIDFromHex(staffID)
	if err != nil {
		return nil, apperrors.InvalidArgument("Invalid staff ID")
	}

	staff, err := s.users.FindByID(ctx, staffOID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Staff member not found")
	}
	if err != nil {
		return nil, apperrors.External(err)
	}
	if !staff.IsStaff() {
		return nil, apperrors.InvalidArgument("User is not a staff member")
	}

	issue, err := s.find(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.AssignedStaff != nil {
		return nil, apperrors.Conflict("Issue is already assigned")
	}

	entry := models.TimelineEntry{
		Status:    issue.Status,
		Message:   "Issue assigned to Staff: " + staff.Name,
		UpdatedBy: admin.Actor(),
		CreatedAt: s.now(),
	}
	ref := models.StaffRef{ID: staff.ID, Name: staff.Name, Email: staff.Email}

	issue, err = s.issues.AssignStaff(ctx, issueID, ref, entry)
	if errors.Is(err, repository.ErrPrecondition) {
		return nil, apperrors.Conflict("Issue is already assigned")
	}
	if err != nil {
		return nil, issueError(err)
	}
	return issue, nil
}

func (s *IssueService) UnassignStaff(ctx context.Context, admin *models.User, id string) (*models.Issue, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, apperrors.Forbidden("Admin access required")
	}
	issueID, err := parseIssueID(id)
	if err != nil {
		return nil, err
	}
	issue, err := s.find(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.AssignedStaff == nil {
		return nil, apperrors.Conflict("Issue has no assigned staff")
	}

	entry := models.TimelineEntry{
		Status:    issue.Status,
		Message:   "Staff assignment cleared for " + issue.AssignedStaff.Name,
		UpdatedBy: admin.Actor(),
		CreatedAt: s.now(),
	}
	issue, err = s.issues.ClearStaff(ctx, issueID, entry)
	if errors.Is(err, repository.ErrPrecondition) {
		return nil, apperrors.Conflict("Issue has no assigned staff")
	}
	if err != nil {
		return nil, issueError(err)
	}
	return issue, nil
}

// ChangeStatus moves an issue to any staff-settable status. Only the current
// assignee may do it.
func (s *IssueService) ChangeStatus(ctx context.Context, staff *models.User, id, status string) (*models.Issue, error) {
	to := models.IssueStatus(strings.ToLower(strings.TrimSpace(status)))
	if !to.StaffSettable() {
		return nil, apperrors.InvalidArgument("Invalid status. Allowed: in-progress, working, resolved, closed")
	}
	if staff == nil || !staff.IsStaff() {
		return nil, apperrors.Forbidden("Staff access required")
	}
	issueID, err := parseIssueID(id)
	if err != nil {
		return nil, err
	}

	issue, err := s.find(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.AssignedStaff == nil || issue.AssignedStaff.Email != staff.Email {
		return nil, apperrors.Forbidden("Only the assigned staff member can change this issue's status")
	}

	entry := models.TimelineEntry{
		Status:    to,
		Message:   fmt.Sprintf("Status changed from %s to %s", issue.Status, to),
		UpdatedBy: staff.Actor(),
		CreatedAt: s.now(),
	}
	issue, err = s.issues.TransitionStatus(ctx, issueID, staff.Email, issue.Status, to, entry)
	if errors.Is(err, repository.ErrPrecondition) {
		return nil, apperrors.Conflict("Issue changed concurrently, reload and try again")
	}
	if err != nil {
		return nil, issueError(err)
	}
	return issue, nil
}

func (s *IssueService) ownedIssue(ctx context.Context, email string, id primitive.ObjectID) (*models.Issue, error) {
	if _, err := activeAccount(ctx, s.users, email); err != nil {
		return nil, err
	}
	issue, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.SubmittedBy != email {
		return nil, apperrors.Forbidden("You are not authorized to modify this issue")
	}
	return issue, nil
}

func (s *IssueService) find(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	issue, err := s.issues.FindByID(ctx, id)
	if err != nil {
		return nil, issueError(err)
	}
	return issue, nil
}

func (s *IssueService) findAll(ctx context.Context, filter repository.IssueFilter) ([]models.Issue, error) {
	issues, err := s.issues.FindAll(ctx, filter)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return issues, nil
}

func (q ListIssuesQuery) filter() repository.IssueFilter {
	filter := repository.IssueFilter{
		Search:      strings.TrimSpace(q.Search),
		Status:      strings.TrimSpace(q.Status),
		Category:    strings.TrimSpace(q.Category),
		SubmittedBy: strings.TrimSpace(q.SubmittedBy),
		Page:        q.Page,
		Limit:       q.Limit,
	}
	if p := strings.TrimSpace(q.Priority); p != "" {
		high := strings.EqualFold(p, string(models.PriorityHigh))
		filter.Boosted = &high
	}
	return filter
}

func (in CreateIssueInput) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"title", in.Title},
		{"category", in.Category},
		{"location", in.Location},
		{"description", in.Description},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperrors.InvalidArgument(f.name + " is required")
		}
	}
	if len(in.Images) == 0 {
		return apperrors.InvalidArgument("at least one image is required")
	}
	return nil
}

func (in UpdateIssueInput) validate() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"title", in.Title},
		{"category", in.Category},
		{"location", in.Location},
		{"description", in.Description},
	}
	for _, f := range fields {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return apperrors.InvalidArgument(f.name + " cannot be empty")
		}
	}
	if in.Images != nil && len(in.Images) == 0 {
		return apperrors.InvalidArgument("at least one image is required")
	}
	return nil
}

func parseIssueID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperrors.InvalidArgument("Invalid issue ID")
	}
	return oid, nil
}

func issueError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("Issue not found")
	}
	return apperrors.External(err)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
