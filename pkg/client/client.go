// Package client provides the CivicSense Go SDK for talking to a
// CivicSense API server: account signup and login, report submission,
// listing, stats, and interactive image classification.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the server rejects the caller's
// credentials or token.
var ErrUnauthorized = errors.New("unauthorized")

// User is the account record returned by signup and login.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Profile is the gamification profile returned by GET /profile.
type Profile struct {
	EcoScore       int    `json:"eco_score"`
	CivicScore     int    `json:"civic_score"`
	CarbonCredits  int    `json:"carbon_credits"`
	IssuesReported int    `json:"issues_reported"`
	TasksCompleted int    `json:"tasks_completed"`
	Badge          string `json:"badge"`
}

// TokenPair is an access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is the response to signup and login calls.
type AuthResult struct {
	User *User `json:"user"`
	TokenPair
}

// Report is a submitted civic issue as returned by the API.
type Report struct {
	ID           string   `json:"id"`
	Username     string   `json:"username,omitempty"`
	Description  string   `json:"description"`
	IssueType    string   `json:"issue_type"`
	Location     string   `json:"location,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Status       string   `json:"status"`
	Category     *string  `json:"category"`
	Severity     *string  `json:"severity"`
	ResponseTime *string  `json:"response_time"`
	CreatedAt    string   `json:"created_at"`
}

// ReportStats is the per-status aggregation from GET /report-stats.
type ReportStats struct {
	Total      int `json:"total_reports"`
	Resolved   int `json:"resolved"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Invalid    int `json:"invalid"`
}

// Classification is the verdict from POST /classify.
type Classification struct {
	Category     string `json:"category"`
	Severity     string `json:"severity"`
	ResponseTime string `json:"response_time"`
}

// CreateReportRequest carries a report submission. Photo and VoiceNote are
// raw file bytes; nil skips the attachment.
type CreateReportRequest struct {
	Description string
	IssueType   string
	Location    string
	Photo       []byte
	VoiceNote   []byte
}

// Client is the CivicSense SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an access token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 30 * time.Second,
		}
		return nil
	}
}

// New creates a Client connected to baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ─── Auth ────────────────────────────────────────────────────────────────────

// Signup creates a new citizen account.
func (c *Client) Signup(ctx context.Context, username, email, password, phone string) (*AuthResult, error) {
	var out AuthResult
	err := c.postJSON(ctx, "/api/v1/auth/signup", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
		"phone":    phone,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates with a username or email plus password.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	var out AuthResult
	err := c.postJSON(ctx, "/api/v1/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a fresh pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out TokenPair
	err := c.postJSON(ctx, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Profile ─────────────────────────────────────────────────────────────────

// Profile fetches the caller's account and gamification profile.
func (c *Client) Profile(ctx context.Context) (*User, *Profile, error) {
	var out struct {
		User    *User    `json:"user"`
		Profile *Profile `json:"profile"`
	}
	if err := c.getJSON(ctx, "/api/v1/profile", &out); err != nil {
		return nil, nil, err
	}
	return out.User, out.Profile, nil
}

// ─── Reports ─────────────────────────────────────────────────────────────────

// CreateReport submits a new report. The returned report is in pending
// state; validation happens asynchronously on the server.
func (c *Client) CreateReport(ctx context.Context, req CreateReportRequest) (*Report, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"description": req.Description,
		"issue_type":  req.IssueType,
		"location":    req.Location,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if req.Photo != nil {
		fw, err := mw.CreateFormFile("photo", "photo.jpg")
		if err != nil {
			return nil, fmt.Errorf("attach photo: %w", err)
		}
		if _, err := fw.Write(req.Photo); err != nil {
			return nil, fmt.Errorf("write photo: %w", err)
		}
	}
	if req.VoiceNote != nil {
		fw, err := mw.CreateFormFile("voice_note", "note.ogg")
		if err != nil {
			return nil, fmt.Errorf("attach voice note: %w", err)
		}
		if _, err := fw.Write(req.VoiceNote); err != nil {
			return nil, fmt.Errorf("write voice note: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out struct {
		Report *Report `json:"report"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/reports", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return out.Report, nil
}

// ListReports returns the caller's reports, newest first.
func (c *Client) ListReports(ctx context.Context) ([]*Report, error) {
	var out struct {
		Reports []*Report `json:"reports"`
	}
	if err := c.getJSON(ctx, "/api/v1/reports", &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// ListAllReports returns every report. Requires a supervisor or admin token.
func (c *Client) ListAllReports(ctx context.Context) ([]*Report, error) {
	var out struct {
		Reports []*Report `json:"reports"`
	}
	if err := c.getJSON(ctx, "/api/v1/reports/all", &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// Stats returns the caller's report counts. With global=true (supervisor or
// admin only) it returns platform-wide counts.
func (c *Client) Stats(ctx context.Context, global bool) (*ReportStats, error) {
	path := "/api/v1/report-stats"
	if global {
		path += "?scope=all"
	}
	var out ReportStats
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReportStatus moves a report to a new status. Requires a supervisor
// or admin token.
func (c *Client) UpdateReportStatus(ctx context.Context, reportID, status string) (*Report, error) {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	var out Report
	if err := c.do(ctx, http.MethodPatch, "/api/v1/reports/"+reportID+"/status",
		bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Classification ──────────────────────────────────────────────────────────

// Classify sends an image for synchronous classification.
func (c *Client) Classify(ctx context.Context, image []byte) (*Classification, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("attach image: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Classification
	if err := c.do(ctx, http.MethodPost, "/api/v1/classify", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Plumbing ────────────────────────────────────────────────────────────────

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiError(data))
		}
		return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, apiError(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// apiError extracts the server's error message, falling back to the raw body.
func apiError(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}
