package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/civicsense/civicsense/internal/identity"
	"github.com/civicsense/civicsense/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// profileSvc is the slice of *users.Service the profile routes need.
type profileSvc interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*users.Profile, error)
}

// ProfileHandler serves the caller's account and gamification profile.
type ProfileHandler struct {
	accounts profileSvc
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(accounts profileSvc, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{accounts: accounts, logger: logger}
}

// Register mounts the profile routes. The group must already enforce
// authentication.
func (h *ProfileHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/profile", h.Get)
}

// Get handles GET /profile — returns the caller's user record and profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID in token"})
		return
	}

	u, err := h.accounts.GetByID(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("load user", zap.String("user_id", uid.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	p, err := h.accounts.GetProfile(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logger.Error("load profile", zap.String("user_id", uid.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": u, "profile": p})
}
