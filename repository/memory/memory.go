// Package memory holds process-local implementations of the repository
// contracts. Each method runs under one lock, which gives the same
// per-document atomicity the Mongo implementations rely on.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cityfix-be/models"
	"cityfix-be/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewStore returns a Store whose three repositories share one lock.
func NewStore() *repository.Store {
	db := &database{
		issues:   map[primitive.ObjectID]*models.Issue{},
		users:    map[primitive.ObjectID]*models.User{},
		payments: map[string]*models.Payment{},
	}
	return &repository.Store{
		Issues:   &issueRepository{db: db},
		Users:    &userRepository{db: db},
		Payments: &paymentRepository{db: db},
	}
}

type database struct {
	mu       sync.Mutex
	issues   map[primitive.ObjectID]*models.Issue
	users    map[primitive.ObjectID]*models.User
	payments map[string]*models.Payment
}

func (db *database) userByEmail(email string) *models.User {
	for _, u := range db.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

type issueRepository struct {
	db *database
}

func (r *issueRepository) Insert(_ context.Context, issue *models.Issue) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.insertLocked(issue)
	return nil
}

func (r *issueRepository) InsertWithinQuota(_ context.Context, issue *models.Issue, limit int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.userByEmail(issue.SubmittedBy) == nil {
		return repository.ErrNotFound
	}
	var count int64
	for _, existing := range r.db.issues {
		if existing.SubmittedBy == issue.SubmittedBy {
			count++
		}
	}
	if count >= limit {
		return repository.ErrQuotaExceeded
	}
	r.insertLocked(issue)
	return nil
}

func (r *issueRepository) insertLocked(issue *models.Issue) {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	r.db.issues[issue.ID] = copyIssue(issue)
}

func (r *issueRepository) FindByID(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyIssue(issue), nil
}

func (r *issueRepository) List(_ context.Context, filter repository.IssueFilter) ([]models.Issue, int64, error) {
	filter.Normalize()

	r.db.mu.Lock()
	matches := r.matchLocked(filter)
	r.db.mu.Unlock()

	sort.SliceStable(matches, func(i, j int) bool { return feedLess(matches[i], matches[j]) })

	total := int64(len(matches))
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (r *issueRepository) FindAll(_ context.Context, filter repository.IssueFilter) ([]models.Issue, error) {
	r.db.mu.Lock()
	matches := r.matchLocked(filter)
	r.db.mu.Unlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches, nil
}

func (r *issueRepository) ListRecentResolved(ctx context.Context, limit int64) ([]models.Issue, error) {
	issues, err := r.FindAll(ctx, repository.IssueFilter{Status: string(models.StatusResolved)})
	if err != nil {
		return nil, err
	}
	if int64(len(issues)) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

func (r *issueRepository) UpdateOwned(_ context.Context, id primitive.ObjectID, owner string, changes models.IssueChanges) (*models.Issue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok || issue.SubmittedBy != owner {
		return nil, repository.ErrNotFound
	}
	if changes.Title != nil {
		issue.Title = *changes.Title
	}
	if changes.Category != nil {
		issue.Category = *changes.Category
	}
	if changes.Location != nil {
		issue.Location = *changes.Location
	}
	if changes.Description != nil {
		issue.Description = *changes.Description
	}
	if changes.Images != nil {
		issue.Images = append([]string(nil), changes.Images...)
	}
	issue.UpdatedAt = changes.UpdatedAt
	return copyIssue(issue), nil
}

func (r *issueRepository) DeleteOwned(_ context.Context, id primitive.ObjectID, owner string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok || issue.SubmittedBy != owner {
		return repository.ErrNotFound
	}
	delete(r.db.issues, id)
	return nil
}

func (r *issueRepository) ToggleUpvote(_ context.Context, id primitive.ObjectID, voter string) (*models.Issue, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	for i, v := range issue.UpvotedUsers {
		if v == voter {
			issue.UpvotedUsers = append(issue.UpvotedUsers[:i:i], issue.UpvotedUsers[i+1:]...)
			issue.Upvotes--
			return copyIssue(issue), false, nil
		}
	}
	issue.UpvotedUsers = append(issue.UpvotedUsers, voter)
	issue.Upvotes++
	return copyIssue(issue), true, nil
}

func (r *issueRepository) AssignStaff(_ context.Context, id primitive.ObjectID, staff models.StaffRef, entry models.TimelineEntry) (*models.Issue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if issue.AssignedStaff != nil {
		return nil, repository.ErrPrecondition
	}
	issue.AssignedStaff = &staff
	issue.Timeline = append(issue.Timeline, entry)
	issue.UpdatedAt = entry.CreatedAt
	return copyIssue(issue), nil
}

func (r *issueRepository) ClearStaff(_ context.Context, id primitive.ObjectID, entry models.TimelineEntry) (*models.Issue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if issue.AssignedStaff == nil {
		return nil, repository.ErrPrecondition
	}
	issue.AssignedStaff = nil
	issue.Timeline = append(issue.Timeline, entry)
	issue.UpdatedAt = entry.CreatedAt
	return copyIssue(issue), nil
}

func (r *issueRepository) TransitionStatus(_ context.Context, id primitive.ObjectID, staffEmail string, from, to models.IssueStatus, entry models.TimelineEntry) (*models.Issue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if issue.AssignedStaff == nil || issue.AssignedStaff.Email != staffEmail || issue.Status != from {
		return nil, repository.ErrPrecondition
	}
	issue.Status = to
	issue.Timeline = append(issue.Timeline, entry)
	issue.UpdatedAt = entry.CreatedAt
	return copyIssue(issue), nil
}

func (r *issueRepository) MarkBoosted(_ context.Context, id primitive.ObjectID, entry models.TimelineEntry) (*models.Issue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	issue, ok := r.db.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !issue.IsBoosted {
		issue.IsBoosted = true
		issue.Priority = models.PriorityHigh
		issue.PriorityRank = models.PriorityHigh.Rank()
		issue.Timeline = append(issue.Timeline, entry)
		issue.UpdatedAt = entry.CreatedAt
	}
	return copyIssue(issue), nil
}

func (r *issueRepository) matchLocked(filter repository.IssueFilter) []models.Issue {
	search := strings.ToLower(filter.Search)
	category := strings.ToLower(filter.Category)

	out := []models.Issue{}
	for _, issue := range r.db.issues {
		if search != "" &&
			!strings.Contains(strings.ToLower(issue.Title), search) &&
			!strings.Contains(strings.ToLower(issue.Category), search) &&
			!strings.Contains(strings.ToLower(issue.Location), search) {
			continue
		}
		if filter.Status != "" && string(issue.Status) != filter.Status {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(issue.Category), category) {
			continue
		}
		if filter.SubmittedBy != "" && issue.SubmittedBy != filter.SubmittedBy {
			continue
		}
		if filter.AssignedStaffEmail != "" && (issue.AssignedStaff == nil || issue.AssignedStaff.Email != filter.AssignedStaffEmail) {
			continue
		}
		if filter.Boosted != nil && issue.IsBoosted != *filter.Boosted {
			continue
		}
		out = append(out, *copyIssue(issue))
	}
	return out
}

func feedLess(a, b models.Issue) bool {
	if a.IsBoosted != b.IsBoosted {
		return a.IsBoosted
	}
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if a.Upvotes != b.Upvotes {
		return a.Upvotes > b.Upvotes
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func copyIssue(issue *models.Issue) *models.Issue {
	c := *issue
	c.Images = append([]string(nil), issue.Images...)
	c.UpvotedUsers = append([]string(nil), issue.UpvotedUsers...)
	c.Timeline = append([]models.TimelineEntry(nil), issue.Timeline...)
	if issue.AssignedStaff != nil {
		staff := *issue.AssignedStaff
		c.AssignedStaff = &staff
	}
	return &c
}

type userRepository struct {
	db *database
}

func (r *userRepository) Insert(_ context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.userByEmail(user.Email) != nil {
		return repository.ErrDuplicate
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	c := *user
	r.db.users[user.ID] = &c
	return nil
}

func (r *userRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user := r.db.userByEmail(email)
	if user == nil {
		return nil, repository.ErrNotFound
	}
	c := *user
	return &c, nil
}

func (r *userRepository) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *user
	return &c, nil
}

func (r *userRepository) List(_ context.Context, role models.Role) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	users := []models.User{}
	for _, u := range r.db.users {
		if role == "" || u.Role == role {
			users = append(users, *u)
		}
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (r *userRepository) UpdateProfile(_ context.Context, email string, changes models.ProfileChanges) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user := r.db.userByEmail(email)
	if user == nil {
		return nil, repository.ErrNotFound
	}
	applyProfile(user, changes)
	c := *user
	return &c, nil
}

func (r *userRepository) UpdateStaff(_ context.Context, id primitive.ObjectID, changes models.ProfileChanges) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok || user.Role != models.RoleStaff {
		return nil, repository.ErrNotFound
	}
	applyProfile(user, changes)
	c := *user
	return &c, nil
}

func (r *userRepository) DeleteStaff(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok || user.Role != models.RoleStaff {
		return nil, repository.ErrNotFound
	}
	delete(r.db.users, id)
	return user, nil
}

func (r *userRepository) ToggleBlocked(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.IsBlocked = !user.IsBlocked
	user.UpdatedAt = time.Now()
	c := *user
	return &c, nil
}

func (r *userRepository) SetPremium(_ context.Context, email string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user := r.db.userByEmail(email)
	if user == nil {
		return repository.ErrNotFound
	}
	user.IsPremium = true
	user.UpdatedAt = time.Now()
	return nil
}

func applyProfile(user *models.User, changes models.ProfileChanges) {
	if changes.Name != nil {
		user.Name = *changes.Name
	}
	if changes.Phone != nil {
		user.Phone = *changes.Phone
	}
	if changes.PhotoURL != nil {
		user.PhotoURL = *changes.PhotoURL
	}
	user.UpdatedAt = changes.UpdatedAt
}

type paymentRepository struct {
	db *database
}

func (r *paymentRepository) Insert(_ context.Context, payment *models.Payment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.payments[payment.SessionID]; ok {
		return repository.ErrDuplicate
	}
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	c := *payment
	r.db.payments[payment.SessionID] = &c
	return nil
}

func (r *paymentRepository) FindBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	payment, ok := r.db.payments[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *payment
	return &c, nil
}

func (r *paymentRepository) ListByEmail(_ context.Context, email string) ([]models.Payment, error) {
	return r.list(func(p *models.Payment) bool { return p.Email == email }), nil
}

func (r *paymentRepository) ListAll(_ context.Context) ([]models.Payment, error) {
	return r.list(func(*models.Payment) bool { return true }), nil
}

func (r *paymentRepository) list(keep func(*models.Payment) bool) []models.Payment {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	payments := []models.Payment{}
	for _, p := range r.db.payments {
		if keep(p) {
			payments = append(payments, *p)
		}
	}
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].PaidAt.After(payments[j].PaidAt) })
	return payments
}
