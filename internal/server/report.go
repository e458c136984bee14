package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/civicsense/civicsense/internal/identity"
	"github.com/civicsense/civicsense/internal/reports"
	"github.com/civicsense/civicsense/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxUploadBytes = 10 << 20 // per attached file

// reportSvc is the interface expected by ReportHandler, satisfied by
// *reports.Service.
type reportSvc interface {
	Create(ctx context.Context, ownerID uuid.UUID, in reports.CreateInput) (*reports.Report, error)
	GetByID(ctx context.Context, id uuid.UUID) (*reports.Report, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*reports.Report, error)
	ListAll(ctx context.Context) ([]*reports.Report, error)
	Stats(ctx context.Context, userID *uuid.UUID) (*reports.StatusCounts, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to reports.Status) (*reports.Report, error)
}

// ReportHandler handles report submission, listing, stats, and the
// operator status workflow.
type ReportHandler struct {
	reports reportSvc
	logger  *zap.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc reportSvc, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: svc, logger: logger}
}

// Register mounts the report routes. The group must already enforce
// authentication; role checks for the operator routes are applied here.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/reports", h.Create)
	rg.GET("/reports", h.ListOwn)
	rg.GET("/reports/:id", h.Get)
	rg.GET("/report-stats", h.Stats)

	privileged := []string{string(users.RoleSupervisor), string(users.RoleAdmin)}
	rg.GET("/reports/all", identity.RequireRole(privileged...), h.ListAll)
	rg.PATCH("/reports/:id/status", identity.RequireRole(privileged...), h.UpdateStatus)
}

// Create handles POST /reports — multipart submission with an optional
// photo and voice note. The report is returned in pending state; validation
// runs in the background.
func (h *ReportHandler) Create(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	in := reports.CreateInput{
		Description: c.PostForm("description"),
		IssueType:   c.PostForm("issue_type"),
	}
	parseLocation(c, &in)

	photo, err := readUpload(c, "photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.Photo = photo

	voice, err := readUpload(c, "voice_note")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.VoiceNote = voice

	rep, err := h.reports.Create(c.Request.Context(), uid, in)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	RecordReportCreated()

	c.JSON(http.StatusCreated, gin.H{
		"report":  rep,
		"message": "Report submitted and queued for validation",
	})
}

// Get handles GET /reports/:id. Citizens can only read their own reports;
// supervisors and admins can read any.
func (h *ReportHandler) Get(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}

	rep, err := h.reports.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, reports.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		h.logger.Error("get report", zap.String("report_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}

	claims := identity.ClaimsFromCtx(c)
	if rep.UserID != uid && !users.Role(claims.Role).Privileged() {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ListOwn handles GET /reports — the caller's reports, newest first.
func (h *ReportHandler) ListOwn(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	list, err := h.reports.ListByUser(c.Request.Context(), uid)
	if err != nil {
		h.logger.Error("list reports", zap.String("user_id", uid.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list, "count": len(list)})
}

// ListAll handles GET /reports/all — every report, newest first.
func (h *ReportHandler) ListAll(c *gin.Context) {
	list, err := h.reports.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("list all reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list, "count": len(list)})
}

// Stats handles GET /report-stats — the caller's status counts, or the
// global counts for privileged callers requesting ?scope=all.
func (h *ReportHandler) Stats(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	scope := &uid
	if c.Query("scope") == "all" {
		claims := identity.ClaimsFromCtx(c)
		if !users.Role(claims.Role).Privileged() {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		scope = nil
	}

	counts, err := h.reports.Stats(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error("report stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /reports/:id/status — the operator workflow
// edit. Moving a report into resolved or invalid scores the owner's profile.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	to := reports.Status(req.Status)
	switch to {
	case reports.StatusPending, reports.StatusInProgress, reports.StatusResolved, reports.StatusInvalid:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", req.Status)})
		return
	}

	rep, err := h.reports.UpdateStatus(c.Request.Context(), id, to)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		case errors.Is(err, reports.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("update report status", zap.String("report_id", id.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		}
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// callerID extracts the authenticated caller's user ID, writing the error
// response itself when the token carries no parseable ID.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	claims := identity.ClaimsFromCtx(c)
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID in token"})
		return uuid.Nil, false
	}
	return uid, true
}

// parseLocation fills Location / Latitude / Longitude from the multipart
// form. Mobile clients send the location field either as a plain address
// string or as a JSON object with latitude/longitude/address keys; separate
// latitude/longitude fields win over coordinates embedded in the object.
func parseLocation(c *gin.Context, in *reports.CreateInput) {
	loc := strings.TrimSpace(c.PostForm("location"))
	if strings.HasPrefix(loc, "{") {
		var obj struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
			Address   string   `json:"address"`
		}
		if err := json.Unmarshal([]byte(loc), &obj); err == nil {
			in.Location = obj.Address
			in.Latitude = obj.Latitude
			in.Longitude = obj.Longitude
		} else {
			in.Location = loc
		}
	} else {
		in.Location = loc
	}

	if v := c.PostForm("latitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			in.Latitude = &f
		}
	}
	if v := c.PostForm("longitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			in.Longitude = &f
		}
	}
}

// readUpload loads an optional multipart file field into memory. A missing
// field is not an error; an oversized one is.
func readUpload(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if fh.Size > maxUploadBytes {
		return nil, fmt.Errorf("%s exceeds the %d MB upload limit", field, maxUploadBytes>>20)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer func(f multipart.File) { _ = f.Close() }(f)

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("%s exceeds the %d MB upload limit", field, maxUploadBytes>>20)
	}
	return data, nil
}
