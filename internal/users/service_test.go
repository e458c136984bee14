package users_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/civicsense/civicsense/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Stub repo ─────────────────────────────────────────────────────────────

type stubRepo struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*users.User
	byUsername map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
	profiles   map[uuid.UUID]*users.Profile
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		byID:       make(map[uuid.UUID]*users.User),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
		profiles:   make(map[uuid.UUID]*users.Profile),
	}
}

func (r *stubRepo) Create(_ context.Context, u *users.User, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[u.Username]; ok {
		return users.ErrDuplicateUsername
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return users.ErrDuplicateEmail
	}
	u.ID = uuid.New()
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	r.byID[u.ID] = &cp
	r.byUsername[u.Username] = u.ID
	r.byEmail[u.Email] = u.ID
	r.profiles[u.ID] = &users.Profile{
		ID: uuid.New(), UserID: u.ID, Badge: "Bronze", Phone: phone,
	}
	return nil
}

func (r *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *stubRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *stubRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *stubRepo) GetProfile(_ context.Context, userID uuid.UUID) (*users.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubRepo) IncrementIssuesReported(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return users.ErrNotFound
	}
	p.IssuesReported++
	return nil
}

func (r *stubRepo) ApplyScoreDelta(_ context.Context, userID uuid.UUID, eco, civic int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return users.ErrNotFound
	}
	p.EcoScore = max(0, p.EcoScore+eco)
	p.CivicScore = max(0, p.CivicScore+civic)
	return nil
}

func newTestService(repo *stubRepo) *users.Service {
	return users.NewService(repo, zap.NewNop())
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestRegister_success(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	u, err := svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", "555-0101")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Role != users.RoleCitizen {
		t.Errorf("role = %q, want citizen", u.Role)
	}

	p, err := svc.GetProfile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Badge != "Bronze" {
		t.Errorf("badge = %q, want Bronze", p.Badge)
	}
	if p.Phone != "555-0101" {
		t.Errorf("phone = %q, want 555-0101", p.Phone)
	}
	if p.IssuesReported != 0 {
		t.Errorf("issues_reported = %d, want 0", p.IssuesReported)
	}
}

func TestRegister_duplicateUsername(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	if _, err := svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), "alice", "other@example.com", "password123", "", "")
	if !errors.Is(err, users.ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRegister_duplicateEmail(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", "")
	_, err := svc.Register(context.Background(), "alice2", "alice@example.com", "password123", "", "")
	if !errors.Is(err, users.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_unknownRole(t *testing.T) {
	svc := newTestService(newStubRepo())
	_, err := svc.Register(context.Background(), "bob", "bob@example.com", "password123", users.Role("mayor"), "")
	if err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestLogin_byUsername(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", "")

	u, err := svc.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("username = %q", u.Username)
	}
}

func TestLogin_byEmail(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", "")

	if _, err := svc.Login(context.Background(), "alice@example.com", "password123"); err != nil {
		t.Fatalf("Login by email: %v", err)
	}
}

func TestLogin_wrongPassword(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", "")

	if _, err := svc.Login(context.Background(), "alice", "nope12345"); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestLogin_unknownUser(t *testing.T) {
	svc := newTestService(newStubRepo())
	if _, err := svc.Login(context.Background(), "ghost", "password123"); err == nil {
		t.Error("expected error for unknown user")
	}
}

func TestRecordReportCreated_increments(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	u, _ := svc.Register(context.Background(), "alice", "alice@example.com", "password123", "", "")

	for i := 0; i < 3; i++ {
		if err := svc.RecordReportCreated(context.Background(), u.ID); err != nil {
			t.Fatalf("RecordReportCreated: %v", err)
		}
	}
	p, _ := svc.GetProfile(context.Background(), u.ID)
	if p.IssuesReported != 3 {
		t.Errorf("issues_reported = %d, want 3", p.IssuesReported)
	}
}
