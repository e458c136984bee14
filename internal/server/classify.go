package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/civicsense/civicsense/internal/classifier"
	"github.com/civicsense/civicsense/internal/reports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// imageClassifier is the interface expected by ClassifyHandler, satisfied
// by *classifier.Client.
type imageClassifier interface {
	Classify(ctx context.Context, image []byte) (*classifier.Classification, error)
}

// outputRecorder persists interactive-classification audit rows, satisfied
// by *reports.Service.
type outputRecorder interface {
	RecordModelOutput(ctx context.Context, userID uuid.UUID, c *classifier.Classification) (*reports.ModelOutput, error)
}

// ClassifyHandler serves the interactive classification routes: callers
// get an immediate category/severity verdict for an image, without
// creating a report.
type ClassifyHandler struct {
	classifier imageClassifier
	outputs    outputRecorder
	logger     *zap.Logger
}

// NewClassifyHandler creates a ClassifyHandler.
func NewClassifyHandler(cl imageClassifier, outputs outputRecorder, logger *zap.Logger) *ClassifyHandler {
	return &ClassifyHandler{classifier: cl, outputs: outputs, logger: logger}
}

// Register mounts the classification routes. The group must already
// enforce authentication.
func (h *ClassifyHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/classify", h.Classify)
	rg.POST("/process-image", h.ProcessImage)
}

// Classify handles POST /classify — synchronous classification of an
// uploaded image.
func (h *ClassifyHandler) Classify(c *gin.Context) {
	result, ok := h.classify(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProcessImage handles POST /process-image — same synchronous
// classification, plus a department allocation persisted as an audit row.
func (h *ClassifyHandler) ProcessImage(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	result, ok := h.classify(c)
	if !ok {
		return
	}

	out, err := h.outputs.RecordModelOutput(c.Request.Context(), uid, result)
	if err != nil {
		h.logger.Error("record model output", zap.String("user_id", uid.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record classification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"classification":       result,
		"department_allocated": out.DepartmentAllocated,
		"output_id":            out.ID,
	})
}

// classify reads the multipart image, runs the model, and maps classifier
// failures onto HTTP statuses. Writes the error response itself on failure.
func (h *ClassifyHandler) classify(c *gin.Context) (*classifier.Classification, bool) {
	image, err := readUpload(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}

	result, err := h.classifier.Classify(c.Request.Context(), image)
	if err != nil {
		h.writeClassifierError(c, err)
		return nil, false
	}
	return result, true
}

func (h *ClassifyHandler) writeClassifierError(c *gin.Context, err error) {
	var ce *classifier.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case classifier.KindInvalidCategory, classifier.KindInvalidSeverity:
			c.JSON(http.StatusBadRequest, gin.H{"error": ce.Error()})
		case classifier.KindQuotaExceeded:
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":               "model quota exceeded",
				"retry_after_seconds": ce.RetryAfter,
			})
		default: // upload failures, malformed model output
			h.logger.Error("classification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
		}
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "classification timed out"})
		return
	}
	h.logger.Error("classification failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
}
