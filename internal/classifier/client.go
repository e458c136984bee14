// Package classifier wraps the external vision-model service that
// classifies and validates civic issue photos.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/civicsense/civicsense/internal/policy"
	"go.uber.org/zap"
)

// Categories recognized by the classifier, in model-prompt order.
var Categories = []string{"garbage", "road", "fire", "water", "construction", "air"}

// Severities recognized by the classifier.
var Severities = []string{"low", "medium", "high"}

// ValidCategory reports whether c is a recognized category.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// ValidSeverity reports whether s is a recognized severity.
func ValidSeverity(s string) bool {
	return s == "low" || s == "medium" || s == "high"
}

// Config holds the external model service settings, resolved once at
// process start.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration // per-HTTP-call ceiling
	PollInterval time.Duration // upload readiness poll interval
	MaxAttempts  int           // total generate attempts on quota errors
	RetryDelay   time.Duration // default delay when the server suggests none
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
}

// Client talks to the external classify/validate model service.
type Client struct {
	cfg     Config
	http    *http.Client
	onRetry func() // optional metrics callback for quota retries
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// SetRetryRecorder configures a callback fired on every quota retry.
func (c *Client) SetRetryRecorder(fn func()) {
	c.onRetry = fn
}

// Classification is the result of Classify.
type Classification struct {
	Category     string `json:"category"`
	Severity     string `json:"severity"`
	ResponseTime string `json:"response_time"`
}

// Validation is the result of Validate. Category, Severity, and
// ResponseTime are set only when IsValid is true.
type Validation struct {
	IsValid      bool   `json:"is_valid"`
	Category     string `json:"category,omitempty"`
	Severity     string `json:"severity,omitempty"`
	ResponseTime string `json:"response_time,omitempty"`
	Reason       string `json:"reason"`
}

const classifyPrompt = `Analyze this image and classify the civic issue shown.

You must return ONLY a valid JSON object with no additional text, markdown, or explanation.

Categories (choose one):
- garbage: litter, trash piles, waste dumping
- road: potholes, damaged roads, broken pavement
- fire: fires, smoke, burning
- water: leaks, flooding, water damage, broken pipes
- construction: illegal construction, building issues, debris
- air: pollution, dust, smoke (non-fire)

Severity levels:
- high: immediate danger, urgent action needed
- medium: significant issue, needs attention soon
- low: minor issue, routine maintenance

Return format:
{"category": "one_of_the_categories", "severity": "high_medium_or_low"}

Example: {"category": "road", "severity": "high"}`

func validatePrompt(description string) string {
	return fmt.Sprintf(`Analyze this image and the given description to validate if this is a legitimate civic/environmental issue report.

USER'S DESCRIPTION: %q

You must check:
1. Is the image related to an environmental/civic issue? Valid categories are:
   - garbage: litter, trash piles, waste dumping, overflowing bins
   - road: potholes, damaged roads, broken pavement, road damage
   - fire: fires, smoke from fire, burning
   - water: leaks, flooding, water damage, broken pipes, water pollution
   - construction: illegal construction, building issues, debris, structural damage
   - air: air pollution, dust clouds, industrial smoke (non-fire)

2. Does the user's description reasonably match what is shown in the image?
   - The description should describe the same type of issue visible in the image
   - Minor wording differences are acceptable, but the core issue must match

Return ONLY a valid JSON object with no additional text:

If VALID (image is environment-related AND description matches):
{"is_valid": true, "category": "one_of_the_categories", "severity": "high_medium_or_low", "reason": "brief explanation"}

If INVALID (not environment-related OR description doesn't match):
{"is_valid": false, "reason": "clear explanation of why it's invalid"}

Severity levels:
- high: immediate danger, urgent action needed
- medium: significant issue, needs attention soon
- low: minor issue, routine maintenance`, description)
}

// Classify uploads the image and asks the model for a (category, severity)
// pair. Both fields are validated strictly.
func (c *Client) Classify(ctx context.Context, image []byte) (*Classification, error) {
	raw, err := c.run(ctx, image, classifyPrompt)
	if err != nil {
		return nil, err
	}

	var out struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
	}
	if err := decodeModelJSON(raw, &out); err != nil {
		return nil, err
	}

	category := strings.ToLower(strings.TrimSpace(out.Category))
	if !ValidCategory(category) {
		return nil, &Error{Kind: KindInvalidCategory, Detail: category, Raw: raw}
	}
	severity := strings.ToLower(strings.TrimSpace(out.Severity))
	if !ValidSeverity(severity) {
		return nil, &Error{Kind: KindInvalidSeverity, Detail: severity, Raw: raw}
	}

	return &Classification{
		Category:     category,
		Severity:     severity,
		ResponseTime: policy.ResponseTimeFor(severity),
	}, nil
}

// Validate checks that the image shows a legitimate civic issue matching the
// description. When the model claims validity with an unrecognized severity,
// the severity is coerced to medium — the boolean is the primary signal on
// this path, not severity precision.
func (c *Client) Validate(ctx context.Context, image []byte, description string) (*Validation, error) {
	raw, err := c.run(ctx, image, validatePrompt(description))
	if err != nil {
		return nil, err
	}

	var out struct {
		IsValid  bool   `json:"is_valid"`
		Category string `json:"category"`
		Severity string `json:"severity"`
		Reason   string `json:"reason"`
	}
	if err := decodeModelJSON(raw, &out); err != nil {
		return nil, err
	}

	if !out.IsValid {
		reason := out.Reason
		if reason == "" {
			reason = "Image is not related to environmental issues or description doesn't match"
		}
		return &Validation{IsValid: false, Reason: reason}, nil
	}

	category := strings.ToLower(strings.TrimSpace(out.Category))
	if !ValidCategory(category) {
		return nil, &Error{Kind: KindInvalidCategory, Detail: category, Raw: raw}
	}
	severity := strings.ToLower(strings.TrimSpace(out.Severity))
	if !ValidSeverity(severity) {
		severity = "medium"
	}

	reason := out.Reason
	if reason == "" {
		reason = "Validation passed"
	}
	return &Validation{
		IsValid:      true,
		Category:     category,
		Severity:     severity,
		ResponseTime: policy.ResponseTimeFor(severity),
		Reason:       reason,
	}, nil
}

// run executes the upload → poll → generate protocol and returns the raw
// model text. The uploaded file is released on every exit path.
func (c *Client) run(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", &Error{Kind: KindUploadFailed, Detail: "empty image"}
	}

	name, err := c.upload(ctx, image)
	if err != nil {
		return "", err
	}
	defer c.deleteFile(name)

	if err := c.waitReady(ctx, name); err != nil {
		return "", err
	}

	return c.generate(ctx, name, prompt)
}

// fileState is the upload/readiness response from the model service.
type fileState struct {
	Name  string `json:"name"`
	State string `json:"state"` // PROCESSING, ACTIVE, or FAILED
}

func (c *Client) upload(ctx context.Context, image []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "report.jpg")
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close upload form: %w", err)
	}

	url := fmt.Sprintf("%s/v1/files?key=%s", c.cfg.BaseURL, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUploadFailed, Detail: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindUploadFailed, Detail: "read upload response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindUploadFailed, Detail: fmt.Sprintf("upload returned %d", resp.StatusCode)}
	}

	var fs fileState
	if err := json.Unmarshal(respBody, &fs); err != nil {
		return "", &Error{Kind: KindUploadFailed, Detail: "decode upload response: " + err.Error()}
	}
	return fs.Name, nil
}

// waitReady polls the uploaded file until the service reports it ready.
// A FAILED state is a terminal upload failure.
func (c *Client) waitReady(ctx context.Context, name string) error {
	for {
		fs, err := c.getFile(ctx, name)
		if err != nil {
			return err
		}
		switch fs.State {
		case "ACTIVE":
			return nil
		case "FAILED":
			return &Error{Kind: KindUploadFailed, Detail: "file processing failed"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func (c *Client) getFile(ctx context.Context, name string) (*fileState, error) {
	url := fmt.Sprintf("%s/v1/files/%s?key=%s", c.cfg.BaseURL, name, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUploadFailed, Detail: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindUploadFailed, Detail: fmt.Sprintf("file status returned %d", resp.StatusCode)}
	}
	var fs fileState
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&fs); err != nil {
		return nil, &Error{Kind: KindUploadFailed, Detail: "decode file status: " + err.Error()}
	}
	return &fs, nil
}

// generate asks the model to describe the uploaded file, retrying on quota
// errors with a server-suggested delay when one is present.
func (c *Client) generate(ctx context.Context, name, prompt string) (string, error) {
	delay := c.cfg.RetryDelay

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		text, quotaMsg, err := c.generateOnce(ctx, name, prompt)
		if err != nil {
			return "", err
		}
		if quotaMsg == "" {
			return text, nil
		}

		if secs, ok := parseRetryDelay(quotaMsg); ok {
			delay = time.Duration(secs * float64(time.Second))
		}
		if attempt == c.cfg.MaxAttempts {
			return "", &Error{Kind: KindQuotaExceeded, Detail: quotaMsg, RetryAfter: delay.Seconds()}
		}

		if c.onRetry != nil {
			c.onRetry()
		}
		c.logger.Warn("classifier quota hit, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", &Error{Kind: KindQuotaExceeded, RetryAfter: delay.Seconds()}
}

// generateOnce performs one generate call. A quota rejection is reported via
// quotaMsg rather than err so the caller can drive the retry loop; any other
// failure is propagated without retry.
func (c *Client) generateOnce(ctx context.Context, name, prompt string) (text, quotaMsg string, err error) {
	payload, err := json.Marshal(map[string]string{"file": name, "prompt": prompt})
	if err != nil {
		return "", "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:generate?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read generate response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || strings.Contains(string(body), "RESOURCE_EXHAUSTED") {
		return "", string(body), nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("generate returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", &Error{Kind: KindMalformedResponse, Detail: "decode generate response: " + err.Error(), Raw: string(body)}
	}
	return out.Text, "", nil
}

// deleteFile releases scratch storage on the model service. Best effort;
// runs on a fresh short context so cancellation of the parent call cannot
// leak the file.
func (c *Client) deleteFile(name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/v1/files/%s?key=%s", c.cfg.BaseURL, name, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("release uploaded file", zap.String("file", name), zap.Error(err))
		return
	}
	resp.Body.Close() //nolint:errcheck
}
