package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/civicsense/civicsense/internal/identity"
	"github.com/civicsense/civicsense/internal/reports"
	"github.com/civicsense/civicsense/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Stub report service ───────────────────────────────────────────────────

type stubReportSvc struct {
	mu        sync.Mutex
	created   []reports.CreateInput
	byID      map[uuid.UUID]*reports.Report
	statusErr error
}

func newStubReportSvc() *stubReportSvc {
	return &stubReportSvc{byID: make(map[uuid.UUID]*reports.Report)}
}

func (s *stubReportSvc) Create(_ context.Context, ownerID uuid.UUID, in reports.CreateInput) (*reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Description == "" {
		return nil, context.Canceled
	}
	s.created = append(s.created, in)
	rep := &reports.Report{
		ID:          uuid.New(),
		UserID:      ownerID,
		Description: in.Description,
		Status:      reports.StatusPending,
	}
	s.byID[rep.ID] = rep
	return rep, nil
}

func (s *stubReportSvc) GetByID(_ context.Context, id uuid.UUID) (*reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.byID[id]
	if !ok {
		return nil, reports.ErrNotFound
	}
	return rep, nil
}

func (s *stubReportSvc) ListByUser(_ context.Context, userID uuid.UUID) ([]*reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reports.Report
	for _, rep := range s.byID {
		if rep.UserID == userID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (s *stubReportSvc) ListAll(_ context.Context) ([]*reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reports.Report
	for _, rep := range s.byID {
		out = append(out, rep)
	}
	return out, nil
}

func (s *stubReportSvc) Stats(_ context.Context, userID *uuid.UUID) (*reports.StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c reports.StatusCounts
	for _, rep := range s.byID {
		if userID != nil && rep.UserID != *userID {
			continue
		}
		c.Total++
	}
	return &c, nil
}

func (s *stubReportSvc) UpdateStatus(_ context.Context, id uuid.UUID, to reports.Status) (*reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	rep, ok := s.byID[id]
	if !ok {
		return nil, reports.ErrNotFound
	}
	rep.Status = to
	return rep, nil
}

// ── Test setup ────────────────────────────────────────────────────────────

func setupReportRouter(t *testing.T, svc *stubReportSvc) (*gin.Engine, *identity.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := testIssuer(t)
	h := server.NewReportHandler(svc, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(identity.RequireUser(tokens))
	h.Register(v1)
	return r, tokens
}

func bearer(t *testing.T, tokens *identity.TokenIssuer, userID uuid.UUID, role string) string {
	t.Helper()
	access, _, err := tokens.IssuePair(userID.String(), "asha", role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + access
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestCreateReport_201(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)
	uid := uuid.New()

	body, ct := multipartBody(t,
		map[string]string{"description": "overflowing bin on Main St", "issue_type": "garbage"},
		map[string][]byte{"photo": []byte("jpeg-bytes")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", bearer(t, tokens, uid, "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.created) != 1 {
		t.Fatalf("created = %d, want 1", len(svc.created))
	}
	if string(svc.created[0].Photo) != "jpeg-bytes" {
		t.Error("photo bytes not passed through")
	}
}

func TestCreateReport_locationJSONObject(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)

	body, ct := multipartBody(t, map[string]string{
		"description": "pothole",
		"location":    `{"latitude": 12.97, "longitude": 77.59, "address": "5th Ave"}`,
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	in := svc.created[0]
	if in.Location != "5th Ave" {
		t.Errorf("location = %q, want address from JSON", in.Location)
	}
	if in.Latitude == nil || *in.Latitude != 12.97 {
		t.Errorf("latitude = %v, want 12.97", in.Latitude)
	}
}

func TestCreateReport_locationPlainString(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)

	body, ct := multipartBody(t, map[string]string{
		"description": "pothole",
		"location":    "corner of Main and 2nd",
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.created[0].Location != "corner of Main and 2nd" {
		t.Errorf("location = %q", svc.created[0].Location)
	}
}

func TestCreateReport_401_noToken(t *testing.T) {
	router, _ := setupReportRouter(t, newStubReportSvc())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestListReports_scopedToCaller(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)
	mine := uuid.New()
	other := uuid.New()

	svc.byID[uuid.New()] = &reports.Report{ID: uuid.New(), UserID: mine}
	svc.byID[uuid.New()] = &reports.Report{ID: uuid.New(), UserID: other}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	req.Header.Set("Authorization", bearer(t, tokens, mine, "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestListAll_403_forCitizen(t *testing.T) {
	router, tokens := setupReportRouter(t, newStubReportSvc())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/all", nil)
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestListAll_200_forSupervisor(t *testing.T) {
	router, tokens := setupReportRouter(t, newStubReportSvc())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/all", nil)
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "supervisor"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetReport_404_forForeignReport(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)

	repID := uuid.New()
	svc.byID[repID] = &reports.Report{ID: repID, UserID: uuid.New()}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+repID.String(), nil)
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateStatus_403_forCitizen(t *testing.T) {
	router, tokens := setupReportRouter(t, newStubReportSvc())

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/"+uuid.New().String()+"/status",
		strings.NewReader(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestUpdateStatus_200_forSupervisor(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)

	repID := uuid.New()
	svc.byID[repID] = &reports.Report{ID: repID, UserID: uuid.New(), Status: reports.StatusPending}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/"+repID.String()+"/status",
		strings.NewReader(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "supervisor"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateStatus_409_illegalTransition(t *testing.T) {
	svc := newStubReportSvc()
	svc.statusErr = reports.ErrInvalidTransition
	router, tokens := setupReportRouter(t, svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/"+uuid.New().String()+"/status",
		strings.NewReader(`{"status":"in-progress"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "admin"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateStatus_400_unknownStatus(t *testing.T) {
	router, tokens := setupReportRouter(t, newStubReportSvc())

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/"+uuid.New().String()+"/status",
		strings.NewReader(`{"status":"archived"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "admin"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStats_403_globalScopeForCitizen(t *testing.T) {
	router, tokens := setupReportRouter(t, newStubReportSvc())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/report-stats?scope=all", nil)
	req.Header.Set("Authorization", bearer(t, tokens, uuid.New(), "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestStats_200_ownScope(t *testing.T) {
	svc := newStubReportSvc()
	router, tokens := setupReportRouter(t, svc)
	mine := uuid.New()
	svc.byID[uuid.New()] = &reports.Report{ID: uuid.New(), UserID: mine}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/report-stats", nil)
	req.Header.Set("Authorization", bearer(t, tokens, mine, "citizen"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var counts reports.StatusCounts
	json.Unmarshal(w.Body.Bytes(), &counts)
	if counts.Total != 1 {
		t.Errorf("total = %d, want 1", counts.Total)
	}
}
