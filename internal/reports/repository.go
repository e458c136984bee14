package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a report lookup finds no record.
var ErrNotFound = errors.New("report not found")

const reportColumns = `
	r.id, r.user_id, u.username, r.description, r.issue_type,
	COALESCE(r.location, ''), r.latitude, r.longitude,
	COALESCE(r.photo_path, ''), COALESCE(r.voice_path, ''),
	r.status, r.category, r.severity, r.response_time,
	r.created_at, r.updated_at`

// Repository provides report persistence against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new report. Sets ID, CreatedAt, UpdatedAt.
func (r *Repository) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	now := time.Now().UTC()
	rep.CreatedAt = now
	rep.UpdatedAt = now
	if rep.Status == "" {
		rep.Status = StatusPending
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO reports (id, user_id, description, issue_type, location,
			latitude, longitude, photo_path, voice_path, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rep.ID, rep.UserID, rep.Description, rep.IssueType, rep.Location,
		rep.Latitude, rep.Longitude, rep.PhotoPath, rep.VoicePath, rep.Status,
		rep.CreatedAt, rep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// GetByID retrieves a report by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM reports r JOIN users u ON u.id = r.user_id
		WHERE r.id = $1`, id)
	return scanReport(row)
}

// SetClassification writes the classification triple in a single statement,
// leaving status untouched. The validator is the only writer of these
// fields; a later run for the same report overwrites the whole triple.
func (r *Repository) SetClassification(ctx context.Context, id uuid.UUID, category, severity, responseTime string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE reports
		SET category = $2, severity = $3, response_time = $4, updated_at = $5
		WHERE id = $1`,
		id, category, severity, responseTime, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetStatus moves a report from one status to another, returning
// whether the swap happened. The WHERE guard makes concurrent edits of the
// same report race-safe: exactly one caller observes changed=true.
func (r *Repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE reports SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns a user's reports, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Report, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports r JOIN users u ON u.id = r.user_id
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// ListAll returns all reports, newest first. Privileged callers only.
func (r *Repository) ListAll(ctx context.Context) ([]*Report, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports r JOIN users u ON u.id = r.user_id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// CountByStatus aggregates report counts. A nil userID scopes the counts
// globally; otherwise they cover only that user's reports.
func (r *Repository) CountByStatus(ctx context.Context, userID *uuid.UUID) (*StatusCounts, error) {
	q := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'resolved'),
			COUNT(*) FILTER (WHERE status = 'in-progress'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'invalid')
		FROM reports`
	var row pgx.Row
	if userID != nil {
		row = r.db.QueryRow(ctx, q+` WHERE user_id = $1`, *userID)
	} else {
		row = r.db.QueryRow(ctx, q)
	}

	var c StatusCounts
	if err := row.Scan(&c.Total, &c.Resolved, &c.InProgress, &c.Pending, &c.Invalid); err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	return &c, nil
}

// CreateModelOutput stores an interactive-classification audit row.
func (r *Repository) CreateModelOutput(ctx context.Context, m *ModelOutput) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO model_outputs (id, user_id, severity, department_allocated, resolution_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.Severity, m.DepartmentAllocated, m.ResolutionTime, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create model output: %w", err)
	}
	return nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(
		&rep.ID, &rep.UserID, &rep.Username, &rep.Description, &rep.IssueType,
		&rep.Location, &rep.Latitude, &rep.Longitude,
		&rep.PhotoPath, &rep.VoicePath,
		&rep.Status, &rep.Category, &rep.Severity, &rep.ResponseTime,
		&rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return &rep, nil
}

func collectReports(rows pgx.Rows) ([]*Report, error) {
	var out []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
