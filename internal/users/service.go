package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// userRepo is the storage interface consumed by Service.
type userRepo interface {
	Create(ctx context.Context, u *User, phone string) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	IncrementIssuesReported(ctx context.Context, userID uuid.UUID) error
	ApplyScoreDelta(ctx context.Context, userID uuid.UUID, eco, civic int) error
}

// Service implements account management business logic.
type Service struct {
	repo   userRepo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo userRepo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register creates a new user with an auto-created profile row.
// Role defaults to citizen; unrecognized roles are rejected.
func (s *Service) Register(ctx context.Context, username, email, password string, role Role, phone string) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("username or name is required")
	}
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if role == "" {
		role = RoleCitizen
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.Create(ctx, u, phone); err != nil {
		if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login verifies credentials and returns the user. The identifier may be a
// username or, when it contains "@", an email address.
func (s *Service) Login(ctx context.Context, identifier, password string) (*User, error) {
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("username/email and password are required")
	}

	u, err := s.repo.GetByUsername(ctx, identifier)
	if errors.Is(err, ErrNotFound) && strings.Contains(identifier, "@") {
		u, err = s.repo.GetByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetProfile retrieves the profile for a user.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// RecordReportCreated increments the owner's issues_reported counter.
// Called once per successfully created report, at creation time.
func (s *Service) RecordReportCreated(ctx context.Context, userID uuid.UUID) error {
	return s.repo.IncrementIssuesReported(ctx, userID)
}

// ApplyScoreDelta adjusts the user's scores; both are clamped at zero by
// the storage layer.
func (s *Service) ApplyScoreDelta(ctx context.Context, userID uuid.UUID, eco, civic int) error {
	return s.repo.ApplyScoreDelta(ctx, userID, eco, civic)
}
