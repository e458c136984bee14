package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/civicsense/civicsense/internal/identity"
	"github.com/civicsense/civicsense/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// accountSvc is the interface expected by AuthHandler, satisfied by *users.Service.
type accountSvc interface {
	Register(ctx context.Context, username, email, password string, role users.Role, phone string) (*users.User, error)
	Login(ctx context.Context, identifier, password string) (*users.User, error)
}

// AuthHandler handles account authentication routes.
type AuthHandler struct {
	accounts    accountSvc
	tokens      *identity.TokenIssuer
	adminSecret string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. An empty adminSecret disables the
// admin-token exchange.
func NewAuthHandler(accounts accountSvc, tokens *identity.TokenIssuer, adminSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:    accounts,
		tokens:      tokens,
		adminSecret: adminSecret,
		logger:      logger,
	}
}

// Register mounts all auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/admin-token", h.AdminToken)
	}
}

// ─── Request types ───────────────────────────────────────────────────────────

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"` // username or email
	Password   string `json:"password"   binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type adminTokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Signup handles POST /auth/signup — creates a new citizen account.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Privileged roles are provisioned out of band, never self-assigned.
	role := users.Role(req.Role)
	if role.Privileged() || role == users.RoleSystem {
		c.JSON(http.StatusForbidden, gin.H{"error": "role cannot be self-assigned"})
		return
	}

	u, err := h.accounts.Register(c.Request.Context(), req.Username, req.Email, req.Password, role, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateUsername):
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		case errors.Is(err, users.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	access, refresh, err := h.tokens.IssuePair(u.ID.String(), u.Username, string(u.Role))
	if err != nil {
		h.logger.Error("issue tokens after signup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":          u,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Login handles POST /auth/login — authenticates with username/email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.accounts.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	access, refresh, err := h.tokens.IssuePair(u.ID.String(), u.Username, string(u.Role))
	if err != nil {
		h.logger.Error("issue tokens after login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          u,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Refresh handles POST /auth/refresh — exchanges a refresh token for a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	access, refresh, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// AdminToken handles POST /auth/admin-token — exchanges the static admin
// secret for a short-lived admin session token.
func (h *AuthHandler) AdminToken(c *gin.Context) {
	var req adminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.adminSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
		return
	}

	tok, err := h.tokens.IssueAdminToken(8 * time.Hour)
	if err != nil {
		h.logger.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}
