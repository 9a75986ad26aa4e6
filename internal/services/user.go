package services

import (
	"context"
	"strings"

	"github.com/contactbook/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates user use-cases. Emails are case-normalized here
// so the uniqueness constraint sees one spelling.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	user.IsActive = true
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	user.Email = NormalizeEmail(user.Email)
	return s.repo.Update(ctx, user)
}

// MarkVerified flips the verification flag for the user.
func (s *UserService) MarkVerified(ctx context.Context, user types.User) (types.User, error) {
	user.IsVerified = true
	return s.repo.Update(ctx, user)
}

// SetPassword replaces the user's password hash.
func (s *UserService) SetPassword(ctx context.Context, user types.User, passwordHash string) (types.User, error) {
	user.PasswordHash = passwordHash
	return s.repo.Update(ctx, user)
}

// SetAvatar replaces the user's avatar URL.
func (s *UserService) SetAvatar(ctx context.Context, user types.User, avatarURL string) (types.User, error) {
	user.Avatar = avatarURL
	return s.repo.Update(ctx, user)
}

// SetActive toggles the active flag on the user identified by id.
func (s *UserService) SetActive(ctx context.Context, id int, active bool) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.IsActive = active
	return s.repo.Update(ctx, user)
}

// SetRole assigns a new role to the user identified by id.
func (s *UserService) SetRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.Role = role
	return s.repo.Update(ctx, user)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
