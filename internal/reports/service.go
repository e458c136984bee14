package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicsense/civicsense/internal/classifier"
	"github.com/civicsense/civicsense/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidTransition is returned for a status edit the lifecycle does
// not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// reportRepo is the storage interface consumed by Service.
type reportRepo interface {
	Create(ctx context.Context, rep *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	SetClassification(ctx context.Context, id uuid.UUID, category, severity, responseTime string) error
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Report, error)
	ListAll(ctx context.Context) ([]*Report, error)
	CountByStatus(ctx context.Context, userID *uuid.UUID) (*StatusCounts, error)
	CreateModelOutput(ctx context.Context, m *ModelOutput) error
}

// profileStore is the slice of the users service the lifecycle needs.
type profileStore interface {
	RecordReportCreated(ctx context.Context, userID uuid.UUID) error
	ApplyScoreDelta(ctx context.Context, userID uuid.UUID, eco, civic int) error
}

// Validator checks a photo against its description via the external model.
type Validator interface {
	Validate(ctx context.Context, image []byte, description string) (*classifier.Validation, error)
}

// Service owns the report lifecycle: synchronous creation, background
// validation dispatch, and the scoring side effect on operator-driven
// terminal transitions.
type Service struct {
	repo      reportRepo
	profiles  profileStore
	validator Validator
	blobs     BlobStore
	queue     Queue
	timeout   time.Duration // ceiling for one background validation
	onOutcome func(outcome string)
	logger    *zap.Logger
}

// NewService creates a Service. timeout bounds each background validation;
// zero means 2 minutes — generous, since no caller is waiting.
func NewService(repo reportRepo, profiles profileStore, validator Validator, blobs BlobStore, queue Queue, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Service{
		repo:      repo,
		profiles:  profiles,
		validator: validator,
		blobs:     blobs,
		queue:     queue,
		timeout:   timeout,
		logger:    logger,
	}
}

// SetOutcomeRecorder configures a metrics callback fired once per finished
// background validation with "valid", "invalid", or "error".
func (s *Service) SetOutcomeRecorder(fn func(outcome string)) {
	s.onOutcome = fn
}

// CreateInput carries a citizen's report submission.
type CreateInput struct {
	Description string
	IssueType   string
	Location    string
	Latitude    *float64
	Longitude   *float64
	Photo       []byte
	VoiceNote   []byte
}

// Create persists the report in pending state, bumps the owner's
// issues_reported counter, and — when a photo is attached — dispatches
// background validation. The caller gets the pending report back
// immediately and never observes the validation outcome in this call.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Report, error) {
	if in.Description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if in.IssueType == "" {
		in.IssueType = "General Waste Issue"
	}

	rep := &Report{
		UserID:      ownerID,
		Description: in.Description,
		IssueType:   in.IssueType,
		Location:    in.Location,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      StatusPending,
	}

	if len(in.Photo) > 0 {
		path, err := s.blobs.Save("waste_reports", ".jpg", in.Photo)
		if err != nil {
			return nil, fmt.Errorf("store photo: %w", err)
		}
		rep.PhotoPath = path
	}
	if len(in.VoiceNote) > 0 {
		path, err := s.blobs.Save("voice_notes", ".ogg", in.VoiceNote)
		if err != nil {
			return nil, fmt.Errorf("store voice note: %w", err)
		}
		rep.VoicePath = path
	}

	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, err
	}

	// Counted at creation time, independent of the validation outcome.
	if err := s.profiles.RecordReportCreated(ctx, ownerID); err != nil {
		s.logger.Error("increment issues_reported",
			zap.String("report_id", rep.ID.String()),
			zap.Error(err),
		)
	}

	if rep.PhotoPath != "" {
		id := rep.ID
		if !s.queue.Enqueue(func(ctx context.Context) { s.runValidation(ctx, id) }) {
			s.logger.Warn("validation not dispatched, report stays pending",
				zap.String("report_id", id.String()),
			)
		}
	}

	return rep, nil
}

// runValidation is the background validation callback. Every failure mode
// leaves the report untouched: a report that cannot be validated stays
// pending for manual review, and nothing is surfaced to the submitter.
func (s *Service) runValidation(ctx context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("validation: reload report", zap.String("report_id", id.String()), zap.Error(err))
		s.recordOutcome("error")
		return
	}
	if rep.PhotoPath == "" {
		return
	}

	photo, err := s.blobs.Read(rep.PhotoPath)
	if err != nil {
		s.logger.Warn("validation: read photo", zap.String("report_id", id.String()), zap.Error(err))
		s.recordOutcome("error")
		return
	}

	v, err := s.validator.Validate(ctx, photo, rep.Description)
	if err != nil {
		s.logger.Warn("validation: classifier call failed, report stays pending",
			zap.String("report_id", id.String()),
			zap.Error(err),
		)
		s.recordOutcome("error")
		return
	}

	if v.IsValid {
		// Status stays pending: classified but still awaiting operator action.
		if err := s.repo.SetClassification(ctx, id, v.Category, v.Severity, v.ResponseTime); err != nil {
			s.logger.Error("validation: write classification", zap.String("report_id", id.String()), zap.Error(err))
			s.recordOutcome("error")
			return
		}
		s.logger.Info("report validated",
			zap.String("report_id", id.String()),
			zap.String("category", v.Category),
			zap.String("severity", v.Severity),
		)
		s.recordOutcome("valid")
		return
	}

	// Direct write, not an operator edit: this transition deliberately
	// bypasses the scoring penalty.
	if _, err := s.repo.CompareAndSetStatus(ctx, id, StatusPending, StatusInvalid); err != nil {
		s.logger.Error("validation: mark invalid", zap.String("report_id", id.String()), zap.Error(err))
		s.recordOutcome("error")
		return
	}
	s.logger.Info("report rejected by validator",
		zap.String("report_id", id.String()),
		zap.String("reason", v.Reason),
	)
	s.recordOutcome("invalid")
}

func (s *Service) recordOutcome(outcome string) {
	if s.onOutcome != nil {
		s.onOutcome(outcome)
	}
}

// UpdateStatus applies an operator-driven status edit. A change into
// resolved or invalid triggers scoring against the owner's profile exactly
// once; an edit to the report's current status is a no-op and never
// re-fires scoring.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Report, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.Status == to {
		return rep, nil
	}
	if !CanTransition(rep.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, rep.Status, to)
	}

	changed, err := s.repo.CompareAndSetStatus(ctx, id, rep.Status, to)
	if err != nil {
		return nil, err
	}
	if changed && to.Terminal() {
		eco, civic := scoring.Delta(scoring.Outcome(to), rep.SeverityOrEmpty())
		if err := s.profiles.ApplyScoreDelta(ctx, rep.UserID, eco, civic); err != nil {
			s.logger.Error("apply score delta",
				zap.String("report_id", id.String()),
				zap.String("user_id", rep.UserID.String()),
				zap.Error(err),
			)
		}
	}

	return s.repo.GetByID(ctx, id)
}

// GetByID retrieves a report.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByUser returns the caller's reports, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Report, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListAll returns every report, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*Report, error) {
	return s.repo.ListAll(ctx)
}

// Stats aggregates report counts for one user, or globally when userID is
// nil.
func (s *Service) Stats(ctx context.Context, userID *uuid.UUID) (*StatusCounts, error) {
	return s.repo.CountByStatus(ctx, userID)
}

// RecordModelOutput stores an audit row for an interactive classification.
func (s *Service) RecordModelOutput(ctx context.Context, userID uuid.UUID, c *classifier.Classification) (*ModelOutput, error) {
	m := &ModelOutput{
		UserID:              userID,
		Severity:            c.Severity,
		DepartmentAllocated: DepartmentFor(c.Category),
		ResolutionTime:      c.ResponseTime,
	}
	if err := s.repo.CreateModelOutput(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
