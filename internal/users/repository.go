package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a user or profile lookup finds no record.
var ErrNotFound = errors.New("user not found")

// ErrDuplicateUsername is returned when a signup reuses a taken username.
var ErrDuplicateUsername = errors.New("username already exists")

// ErrDuplicateEmail is returned when a signup reuses a registered email.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository provides user and profile persistence against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts the user and its profile row in one transaction.
// Sets ID, CreatedAt, UpdatedAt on the user.
func (r *Repository) Create(ctx context.Context, u *User, phone string) error {
	u.ID = uuid.New()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "users_email_key" {
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		return fmt.Errorf("create user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_profiles (id, user_id, badge, phone, updated_at)
		VALUES ($1, $2, 'Bronze', $3, $4)`,
		uuid.New(), u.ID, phone, now,
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID retrieves a user by internal UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanOne(ctx, `SELECT id, username, email, password_hash, role, created_at, updated_at FROM users WHERE id = $1`, id)
}

// GetByUsername retrieves a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, username, email, password_hash, role, created_at, updated_at FROM users WHERE username = $1`, username)
}

// GetByEmail retrieves a user by email address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, username, email, password_hash, role, created_at, updated_at FROM users WHERE email = $1`, email)
}

// GetProfile retrieves the profile row for a user.
func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, eco_score, civic_score, carbon_credits,
		       issues_reported, tasks_completed, badge,
		       COALESCE(phone, ''), COALESCE(address, ''), updated_at
		FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(
		&p.ID, &p.UserID, &p.EcoScore, &p.CivicScore, &p.CarbonCredits,
		&p.IssuesReported, &p.TasksCompleted, &p.Badge,
		&p.Phone, &p.Address, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// IncrementIssuesReported bumps the issues_reported counter by one.
// Single-statement increment, so concurrent report creations for the same
// user cannot lose updates.
func (r *Repository) IncrementIssuesReported(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_profiles
		SET issues_reported = issues_reported + 1, updated_at = $2
		WHERE user_id = $1`, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("increment issues_reported: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyScoreDelta adjusts eco_score and civic_score atomically, clamping
// both at zero. Concurrent terminal transitions for the same user serialize
// on the row, so both deltas land.
func (r *Repository) ApplyScoreDelta(ctx context.Context, userID uuid.UUID, eco, civic int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_profiles
		SET eco_score   = GREATEST(0, eco_score + $2),
		    civic_score = GREATEST(0, civic_score + $3),
		    updated_at  = $4
		WHERE user_id = $1`, userID, eco, civic, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("apply score delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, q, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
