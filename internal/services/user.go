package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateRefreshToken(ctx context.Context, id int64, token string) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateAvatarURL(ctx context.Context, id int64, url string) error
	UpdateCoverImageURL(ctx context.Context, id int64, url string) error
}

// RegisterInput carries the validated registration payload. The image
// URLs point at already-uploaded objects.
type RegisterInput struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register validates the input, rejects duplicate usernames or emails,
// hashes the password, and creates the user record. Username and email
// are stored lowercased.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FullName = strings.TrimSpace(input.FullName)

	if input.Username == "" || input.Email == "" || input.FullName == "" || strings.TrimSpace(input.Password) == "" {
		return types.User{}, validationErrorf("all fields are required")
	}
	if input.AvatarURL == "" {
		return types.User{}, validationErrorf("avatar is required")
	}

	if _, err := s.repo.GetByUsername(ctx, input.Username); err == nil {
		return types.User{}, fmt.Errorf("username already exists: %w", store.ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, fmt.Errorf("email already exists: %w", store.ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Username:      input.Username,
		Email:         input.Email,
		FullName:      input.FullName,
		AvatarURL:     input.AvatarURL,
		CoverImageURL: input.CoverImageURL,
		PasswordHash:  hash,
	})
}

// Authenticate resolves the identifier against username or email and
// verifies the password.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (types.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return types.User{}, validationErrorf("username or email and password are required")
	}

	user, err := s.repo.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword verifies the old password and persists the hash of
// the new one.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return validationErrorf("old and new passwords are required")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, userID, hash)
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}

// UpdateAvatar persists a new avatar URL and returns the fresh record.
func (s *UserService) UpdateAvatar(ctx context.Context, userID int64, url string) (types.User, error) {
	if err := s.repo.UpdateAvatarURL(ctx, userID, url); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, userID)
}

// UpdateCoverImage persists a new cover-image URL and returns the
// fresh record.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID int64, url string) (types.User, error) {
	if err := s.repo.UpdateCoverImageURL(ctx, userID, url); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, userID)
}
