// Package handler exposes the pipeline, annotation and publishing services over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/annotation"
	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
	"github.com/agency-studio/content-pipeline/internal/pipeline"
	"github.com/agency-studio/content-pipeline/internal/publisher"
)

// AnnotationService is the annotation engine used by the handler.
type AnnotationService interface {
	Add(ctx context.Context, in annotation.AddInput) (*models.Annotation, error)
	Resolve(ctx context.Context, id string) (*models.Annotation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, assetID string, includeResolved bool) ([]models.Annotation, error)
	Summary(ctx context.Context, assetID string) (*models.AnnotationSummary, error)
}

// ContentService is the publish scheduler used by the handler.
type ContentService interface {
	Create(ctx context.Context, in publisher.CreateInput) (*models.ContentItem, error)
	Get(ctx context.Context, id string) (*models.ContentItem, error)
	List(ctx context.Context, filter models.ContentItemFilter) ([]models.ContentItem, error)
	Schedule(ctx context.Context, id string, at time.Time) (*models.ContentItem, error)
	PublishNow(ctx context.Context, id string) (*models.ContentItem, error)
	Dispatch(ctx context.Context, id string) (*models.ContentItem, error)
	Retry(ctx context.Context, id string) (*models.ContentItem, error)
	Cancel(ctx context.Context, id string) (*models.ContentItem, error)
	RecordMetrics(ctx context.Context, id string, metrics models.PublishedMetrics) (*models.ContentItem, error)
	Calendar(ctx context.Context, clientID string, year, month int) (*models.ContentCalendar, error)
}

// Handler provides HTTP handlers for every resource of the handler service.
type Handler struct {
	machine     *pipeline.Machine
	sessions    *pipeline.Registry
	annotations AnnotationService
	content     ContentService
	logger      *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(machine *pipeline.Machine, sessions *pipeline.Registry, annotations AnnotationService, content ContentService, logger *zap.Logger) *Handler {
	return &Handler{
		machine:     machine,
		sessions:    sessions,
		annotations: annotations,
		content:     content,
		logger:      logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/pipelines", h.StartPipeline)
	rg.GET("/pipelines/:id", h.GetPipeline)
	rg.PUT("/pipelines/:id/briefing", h.SetBriefing)
	rg.POST("/pipelines/:id/generate", h.Generate)
	rg.PUT("/pipelines/:id/draft", h.ManualDraft)
	rg.POST("/pipelines/:id/evaluate", h.Evaluate)
	rg.POST("/pipelines/:id/skip-review", h.SkipReview)
	rg.PUT("/pipelines/:id/edit", h.Edit)
	rg.PUT("/pipelines/:id/plan", h.SetPublishPlan)
	rg.POST("/pipelines/:id/advance", h.Advance)
	rg.POST("/pipelines/:id/back", h.Back)
	rg.POST("/pipelines/:id/dispatch", h.DispatchPipeline)
	rg.DELETE("/pipelines/:id", h.Abandon)

	rg.POST("/assets/:assetId/annotations", h.AddAnnotation)
	rg.GET("/assets/:assetId/annotations", h.ListAnnotations)
	rg.GET("/assets/:assetId/annotations/summary", h.AnnotationSummary)
	rg.POST("/annotations/:id/resolve", h.ResolveAnnotation)
	rg.DELETE("/annotations/:id", h.DeleteAnnotation)

	rg.POST("/content-items", h.CreateContentItem)
	rg.GET("/content-items", h.ListContentItems)
	rg.GET("/content-items/calendar", h.Calendar)
	rg.GET("/content-items/:id", h.GetContentItem)
	rg.POST("/content-items/:id/schedule", h.ScheduleContentItem)
	rg.POST("/content-items/:id/publish", h.PublishContentItem)
	rg.POST("/content-items/:id/dispatch", h.DispatchContentItem)
	rg.POST("/content-items/:id/retry", h.RetryContentItem)
	rg.POST("/content-items/:id/cancel", h.CancelContentItem)
	rg.PUT("/content-items/:id/metrics", h.RecordContentItemMetrics)

	rg.GET("/channels/:channel/best-times", h.BestTimes)
}

// badRequest answers a request that could not be bound.
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("Invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// fail maps a service error onto its HTTP status. Unknown errors are logged and hidden
// behind msg.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	var (
		validationErr *apperrors.ValidationError
		notFoundErr   *apperrors.NotFoundError
		conflictErr   *apperrors.ConcurrencyConflictError
		externalErr   *apperrors.ExternalCallError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: validationErr.Error(),
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: notFoundErr.Error(),
		})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: conflictErr.Error(),
		})
	case errors.As(err, &externalErr):
		h.logger.Warn("External call failed", zap.String("stage", externalErr.Stage), zap.Error(err))
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "external_error",
			Message: externalErr.Error(),
			Stage:   externalErr.Stage,
		})
	default:
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: msg,
		})
	}
}

// Health reports that the handler service is up.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"role":     "handler",
		"service":  "content-pipeline",
		"sessions": h.sessions.Len(),
	})
}
