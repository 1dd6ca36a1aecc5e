package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/models"
	"github.com/agency-studio/content-pipeline/internal/pipeline"
)

// PipelineResponse wraps a pipeline snapshot in the API response.
type PipelineResponse struct {
	Data pipeline.Snapshot `json:"data"`
}

// DispatchPipelineResponse carries the finished session and the content item it produced.
type DispatchPipelineResponse struct {
	Data        pipeline.Snapshot   `json:"data"`
	ContentItem *models.ContentItem `json:"content_item"`
}

// BackRequest is the request body for moving a pipeline back.
type BackRequest struct {
	Stage pipeline.Stage `json:"stage" binding:"required"`
}

// session resolves the :id path parameter, answering the request itself on failure.
func (h *Handler) session(c *gin.Context) (*pipeline.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to load pipeline")
		return nil, false
	}
	return s, true
}

func (h *Handler) respondSnapshot(c *gin.Context, snap pipeline.Snapshot, err error, msg string) {
	if err != nil {
		h.fail(c, err, msg)
		return
	}
	c.JSON(http.StatusOK, PipelineResponse{Data: snap})
}

// StartPipeline opens a new session.
// @Summary Start pipeline
// @Description Open a new content pipeline in the briefing stage
// @Tags pipelines
// @Produce json
// @Success 201 {object} PipelineResponse
// @Router /api/v1/pipelines [post]
func (h *Handler) StartPipeline(c *gin.Context) {
	s := h.sessions.Start()
	h.logger.Info("Pipeline started", zap.String("pipeline_id", s.ID()))
	c.JSON(http.StatusCreated, PipelineResponse{Data: h.machine.Snapshot(s)})
}

// GetPipeline returns the current state of a session.
// @Summary Get pipeline
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} PipelineResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id} [get]
func (h *Handler) GetPipeline(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, PipelineResponse{Data: h.machine.Snapshot(s)})
}

// SetBriefing replaces the briefing.
// @Summary Set briefing
// @Tags pipelines
// @Accept json
// @Produce json
// @Param id path string true "Pipeline ID"
// @Param briefing body models.Briefing true "Briefing"
// @Success 200 {object} PipelineResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id}/briefing [put]
func (h *Handler) SetBriefing(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req models.Briefing
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	snap, err := h.machine.SetBriefing(s, req)
	h.respondSnapshot(c, snap, err, "failed to set briefing")
}

// Generate asks the generator for a draft.
// @Summary Generate draft
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} PipelineResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id}/generate [post]
func (h *Handler) Generate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := h.machine.Generate(c.Request.Context(), s)
	h.respondSnapshot(c, snap, err, "failed to generate draft")
}

// ManualDraft stores an operator-written draft.
// @Summary Provide draft manually
// @Tags pipelines
// @Accept json
// @Produce json
// @Param id path string true "Pipeline ID"
// @Param draft body models.Draft true "Draft"
// @Success 200 {object} PipelineResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id}/draft [put]
func (h *Handler) ManualDraft(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req models.Draft
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	snap, err := h.machine.ManualDraft(s, req)
	h.respondSnapshot(c, snap, err, "failed to store draft")
}

// Evaluate runs the focus group on the current edits.
// @Summary Run focus group
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} PipelineResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id}/evaluate [post]
func (h *Handler) Evaluate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := h.machine.Evaluate(c.Request.Context(), s)
	h.respondSnapshot(c, snap, err, "failed to evaluate draft")
}

// SkipReview records an explicit skip of the focus group.
// @Summary Skip review
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} PipelineResponse
// @Router /api/v1/pipelines/{id}/skip-review [post]
func (h *Handler) SkipReview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := h.machine.SkipReview(s)
	h.respondSnapshot(c, snap, err, "failed to skip review")
}

// Edit updates the editing-stage fields.
// @Summary Edit draft
// @Tags pipelines
// @Accept json
// @Produce json
// @Param id path string true "Pipeline ID"
// @Param edits body pipeline.EditInput true "Edits"
// @Success 200 {object} PipelineResponse
// @Router /api/v1/pipelines/{id}/edit [put]
func (h *Handler) Edit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req pipeline.EditInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	snap, err := h.machine.Edit(s, req)
	h.respondSnapshot(c, snap, err, "failed to edit draft")
}

// SetPublishPlan records the channels and timing chosen at approval.
// @Summary Set publish plan
// @Tags pipelines
// @Accept json
// @Produce json
// @Param id path string true "Pipeline ID"
// @Param plan body pipeline.PublishPlan true "Publish plan"
// @Success 200 {object} PipelineResponse
// @Router /api/v1/pipelines/{id}/plan [put]
func (h *Handler) SetPublishPlan(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req pipeline.PublishPlan
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	snap, err := h.machine.SetPublishPlan(s, req)
	h.respondSnapshot(c, snap, err, "failed to set publish plan")
}

// Advance moves to the next stage once the current one is complete.
// @Summary Advance pipeline
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} PipelineResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id}/advance [post]
func (h *Handler) Advance(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := h.machine.Advance(s)
	h.respondSnapshot(c, snap, err, "failed to advance pipeline")
}

// Back returns to an earlier stage, keeping entered data.
// @Summary Move pipeline back
// @Tags pipelines
// @Accept json
// @Produce json
// @Param id path string true "Pipeline ID"
// @Param request body BackRequest true "Target stage"
// @Success 200 {object} PipelineResponse
// @Router /api/v1/pipelines/{id}/back [post]
func (h *Handler) Back(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req BackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	snap, err := h.machine.Back(s, req.Stage)
	h.respondSnapshot(c, snap, err, "failed to move pipeline back")
}

// DispatchPipeline hands the approved draft to the publish scheduler.
// @Summary Dispatch pipeline
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} DispatchPipelineResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id}/dispatch [post]
func (h *Handler) DispatchPipeline(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, item, err := h.machine.Dispatch(c.Request.Context(), s)
	if err != nil {
		h.fail(c, err, "failed to dispatch pipeline")
		return
	}
	c.JSON(http.StatusOK, DispatchPipelineResponse{Data: snap, ContentItem: item})
}

// Abandon discards a session.
// @Summary Abandon pipeline
// @Tags pipelines
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} PipelineResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/pipelines/{id} [delete]
func (h *Handler) Abandon(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := h.machine.Abandon(s)
	h.respondSnapshot(c, snap, err, "failed to abandon pipeline")
}
