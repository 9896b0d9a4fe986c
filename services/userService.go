package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"cityfix-be/apperrors"
	"cityfix-be/identity"
	"cityfix-be/models"
	"cityfix-be/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const minStaffPasswordLength = 6

type UserService struct {
	users       repository.UserRepository
	provisioner identity.AccountProvisioner
	now         func() time.Time
}

func NewUserService(users repository.UserRepository, provisioner identity.AccountProvisioner) *UserService {
	return &UserService{
		users:       users,
		provisioner: provisioner,
		now:         time.Now,
	}
}

type BootstrapInput struct {
	Name     string
	Email    string
	Phone    string
	PhotoURL string
}

type ProfileInput struct {
	Name     *string
	Phone    *string
	PhotoURL *string
}

type StaffInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	PhotoURL string
}

// Bootstrap creates the citizen profile for a freshly signed-in account. It is
// idempotent: an existing profile is returned unchanged with created=false.
// The stored profile is for the caller only; anonymous routes must not render it.
func (s *UserService) Bootstrap(ctx context.Context, in BootstrapInput) (*models.User, bool, error) {
	email := identity.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" {
		return nil, false, apperrors.InvalidArgument("email is required")
	}
	if name == "" {
		return nil, false, apperrors.InvalidArgument("name is required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.External(err)
	}

	now := s.now()
	user := &models.User{
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		PhotoURL:  strings.TrimSpace(in.PhotoURL),
		Role:      models.RoleCitizen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.users.Insert(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent bootstrap for the same email.
		existing, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, false, apperrors.External(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, apperrors.External(err)
	}
	return user, true, nil
}

func (s *UserService) Me(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, userError(err)
	}
	return user, nil
}

// Get returns the profile at email. Callers may read their own profile;
// admins may read any.
func (s *UserService) Get(ctx context.Context, requester, email string) (*models.User, error) {
	email = identity.NormalizeEmail(email)
	if err := s.authorizeProfileAccess(ctx, requester, email); err != nil {
		return nil, err
	}
	return s.Me(ctx, email)
}

func (s *UserService) UpdateProfile(ctx context.Context, requester, email string, in ProfileInput) (*models.User, error) {
	email = identity.NormalizeEmail(email)
	if err := s.authorizeProfileAccess(ctx, requester, email); err != nil {
		return nil, err
	}
	changes, err := in.changes(s.now())
	if err != nil {
		return nil, err
	}
	user, err := s.users.UpdateProfile(ctx, email, changes)
	if err != nil {
		return nil, userError(err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, role models.Role) ([]models.User, error) {
	switch role {
	case "", models.RoleCitizen, models.RoleStaff, models.RoleAdmin:
	default:
		return nil, apperrors.InvalidArgument("Invalid role")
	}
	users, err := s.users.List(ctx, role)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return users, nil
}

// ToggleBlock flips the blocked flag of the user with id. Admins cannot block
// themselves.
func (s *UserService) ToggleBlock(ctx context.Context, admin *models.User, id string) (*models.User, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, apperrors.Forbidden("Admin access required")
	}
	userID, err := parseUserID(id)
	if err != nil {
		return nil, err
	}
	if userID == admin.ID {
		return nil, apperrors.InvalidArgument("You cannot block your own account")
	}
	user, err := s.users.ToggleBlocked(ctx, userID)
	if err != nil {
		return nil, userError(err)
	}
	return user, nil
}

// CreateStaff provisions an identity provider account and the matching staff
// profile. If the profile cannot be stored the provider account is removed.
func (s *UserService) CreateStaff(ctx context.Context, in StaffInput) (*models.User, error) {
	email := identity.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, apperrors.InvalidArgument("name is required")
	case email == "":
		return nil, apperrors.InvalidArgument("email is required")
	case len(in.Password) < minStaffPasswordLength:
		return nil, apperrors.InvalidArgument("password must be at least 6 characters")
	}

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperrors.Conflict("User with this email already exists")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.External(err)
	}

	uid, err := s.provisioner.CreateAccount(ctx, identity.AccountRequest{
		Email:    email,
		Password: in.Password,
		Name:     name,
		PhotoURL: strings.TrimSpace(in.PhotoURL),
	})
	if errors.Is(err, identity.ErrAccountExists) {
		return nil, apperrors.Conflict("User with this email already exists")
	}
	if err != nil {
		return nil, apperrors.External(err)
	}

	now := s.now()
	user := &models.User{
		Name:        name,
		Email:       email,
		Phone:       strings.TrimSpace(in.Phone),
		PhotoURL:    strings.TrimSpace(in.PhotoURL),
		Role:        models.RoleStaff,
		ProviderUID: uid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if derr := s.provisioner.DeleteAccount(ctx, uid); derr != nil {
			logger().Error("failed to roll back staff account", "email", email, "uid", uid, "error", derr)
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("User with this email already exists")
		}
		return nil, apperrors.External(err)
	}
	return user, nil
}

func (s *UserService) UpdateStaff(ctx context.Context, id string, in ProfileInput) (*models.User, error) {
	userID, err := parseUserID(id)
	if err != nil {
		return nil, err
	}
	changes, err := in.changes(s.now())
	if err != nil {
		return nil, err
	}
	user, err := s.users.UpdateStaff(ctx, userID, changes)
	if err != nil {
		return nil, staffError(err)
	}
	return user, nil
}

// DeleteStaff removes the staff profile and then its provider account. A
// provider failure is logged; the profile is already gone.
func (s *UserService) DeleteStaff(ctx context.Context, id string) error {
	userID, err := parseUserID(id)
	if err != nil {
		return err
	}
	user, err := s.users.DeleteStaff(ctx, userID)
	if err != nil {
		return staffError(err)
	}
	if user.ProviderUID != "" {
		if err := s.provisioner.DeleteAccount(ctx, user.ProviderUID); err != nil {
			logger().Error("failed to delete staff account at identity provider",
				"email", user.Email, "uid", user.ProviderUID, "error", err)
		}
	}
	return nil
}

func (s *UserService) authorizeProfileAccess(ctx context.Context, requester, email string) error {
	if requester == "" {
		return apperrors.Unauthenticated("User not authenticated")
	}
	if requester == email {
		return nil
	}
	account, err := s.users.FindByEmail(ctx, requester)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.Forbidden("Account not found")
	}
	if err != nil {
		return apperrors.External(err)
	}
	if !account.IsAdmin() {
		return apperrors.Forbidden("You can only access your own profile")
	}
	return nil
}

func (in ProfileInput) changes(now time.Time) (models.ProfileChanges, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return models.ProfileChanges{}, apperrors.InvalidArgument("name cannot be empty")
	}
	return models.ProfileChanges{
		Name:      trimmed(in.Name),
		Phone:     trimmed(in.Phone),
		PhotoURL:  trimmed(in.PhotoURL),
		UpdatedAt: now,
	}, nil
}

func parseUserID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperrors.InvalidArgument("Invalid user ID")
	}
	return oid, nil
}

func userError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("User not found")
	}
	return apperrors.External(err)
}

func staffError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("Staff member not found")
	}
	return apperrors.External(err)
}
