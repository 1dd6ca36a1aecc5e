package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agency-studio/content-pipeline/internal/models"
	"github.com/agency-studio/content-pipeline/internal/publisher"
)

// ListContentItemsQuery holds the content item list filters. Times are RFC 3339.
type ListContentItemsQuery struct {
	ClientID string            `form:"client_id"`
	Status   models.ItemStatus `form:"status"`
	Channel  models.Channel    `form:"channel"`
	From     time.Time         `form:"from"`
	To       time.Time         `form:"to"`
}

// CalendarQuery selects a client's month.
type CalendarQuery struct {
	ClientID string `form:"client_id" binding:"required"`
	Year     int    `form:"year" binding:"required"`
	Month    int    `form:"month" binding:"required"`
}

// CreateContentItem registers a draft for publishing outside of a pipeline.
// @Summary Create content item
// @Tags content-items
// @Accept json
// @Produce json
// @Param item body models.CreateContentItemRequest true "Content item"
// @Success 201 {object} models.ContentItemResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/content-items [post]
func (h *Handler) CreateContentItem(c *gin.Context) {
	var req models.CreateContentItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	item, err := h.content.Create(c.Request.Context(), publisher.CreateInput{
		ClientID: req.ClientID,
		Draft:    req.Draft,
		Channels: req.Channels,
	})
	if err != nil {
		h.fail(c, err, "failed to create content item")
		return
	}

	c.JSON(http.StatusCreated, models.ContentItemResponse{Data: *item})
}

// ListContentItems returns content items matching the query filters.
// @Summary List content items
// @Tags content-items
// @Produce json
// @Param client_id query string false "Client ID"
// @Param status query string false "Status"
// @Param channel query string false "Channel"
// @Param from query string false "Scheduled at or after (RFC 3339)"
// @Param to query string false "Scheduled before (RFC 3339)"
// @Success 200 {object} models.ContentItemsResponse
// @Router /api/v1/content-items [get]
func (h *Handler) ListContentItems(c *gin.Context) {
	var q ListContentItemsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}

	filter := models.ContentItemFilter{
		ClientID: q.ClientID,
		Status:   q.Status,
		Channel:  q.Channel,
	}
	if !q.From.IsZero() {
		filter.From = &q.From
	}
	if !q.To.IsZero() {
		filter.To = &q.To
	}

	items, err := h.content.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err, "failed to retrieve content items")
		return
	}
	if items == nil {
		items = []models.ContentItem{}
	}

	c.JSON(http.StatusOK, models.ContentItemsResponse{Data: items})
}

// Calendar summarises a client's month.
// @Summary Content calendar
// @Tags content-items
// @Produce json
// @Param client_id query string true "Client ID"
// @Param year query int true "Year"
// @Param month query int true "Month (1-12)"
// @Success 200 {object} models.ContentCalendarResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/content-items/calendar [get]
func (h *Handler) Calendar(c *gin.Context) {
	var q CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}

	cal, err := h.content.Calendar(c.Request.Context(), q.ClientID, q.Year, q.Month)
	if err != nil {
		h.fail(c, err, "failed to build calendar")
		return
	}

	c.JSON(http.StatusOK, models.ContentCalendarResponse{Data: *cal})
}

// GetContentItem returns one content item.
// @Summary Get content item
// @Tags content-items
// @Produce json
// @Param id path string true "Content item ID"
// @Success 200 {object} models.ContentItemResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id} [get]
func (h *Handler) GetContentItem(c *gin.Context) {
	item, err := h.content.Get(c.Request.Context(), c.Param("id"))
	h.respondItem(c, item, err, "failed to retrieve content item")
}

// ScheduleContentItem schedules a draft item.
// @Summary Schedule content item
// @Tags content-items
// @Accept json
// @Produce json
// @Param id path string true "Content item ID"
// @Param request body models.ScheduleRequest true "Schedule time"
// @Success 200 {object} models.ContentItemResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id}/schedule [post]
func (h *Handler) ScheduleContentItem(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	item, err := h.content.Schedule(c.Request.Context(), c.Param("id"), req.ScheduledAt)
	h.respondItem(c, item, err, "failed to schedule content item")
}

// PublishContentItem publishes a draft item immediately.
// @Summary Publish content item now
// @Tags content-items
// @Produce json
// @Param id path string true "Content item ID"
// @Success 200 {object} models.ContentItemResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id}/publish [post]
func (h *Handler) PublishContentItem(c *gin.Context) {
	h.transition(c, h.content.PublishNow, "failed to publish content item")
}

// DispatchContentItem dispatches a due scheduled item without waiting for the worker.
// @Summary Dispatch content item
// @Tags content-items
// @Produce json
// @Param id path string true "Content item ID"
// @Success 200 {object} models.ContentItemResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id}/dispatch [post]
func (h *Handler) DispatchContentItem(c *gin.Context) {
	h.transition(c, h.content.Dispatch, "failed to dispatch content item")
}

// RecordContentItemMetrics stores engagement numbers of a published item.
// @Summary Record content item metrics
// @Tags content-items
// @Accept json
// @Produce json
// @Param id path string true "Content item ID"
// @Param request body models.PublishedMetrics true "Engagement numbers"
// @Success 200 {object} models.ContentItemResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id}/metrics [put]
func (h *Handler) RecordContentItemMetrics(c *gin.Context) {
	var req models.PublishedMetrics
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	item, err := h.content.RecordMetrics(c.Request.Context(), c.Param("id"), req)
	h.respondItem(c, item, err, "failed to record content item metrics")
}

// RetryContentItem re-sends the failed channels of a delayed item.
// @Summary Retry content item
// @Tags content-items
// @Produce json
// @Param id path string true "Content item ID"
// @Success 200 {object} models.ContentItemResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id}/retry [post]
func (h *Handler) RetryContentItem(c *gin.Context) {
	h.transition(c, h.content.Retry, "failed to retry content item")
}

// CancelContentItem cancels a draft or scheduled item.
// @Summary Cancel content item
// @Tags content-items
// @Produce json
// @Param id path string true "Content item ID"
// @Success 200 {object} models.ContentItemResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/content-items/{id}/cancel [post]
func (h *Handler) CancelContentItem(c *gin.Context) {
	h.transition(c, h.content.Cancel, "failed to cancel content item")
}

// BestTimes returns the recommended posting windows of a channel.
// @Summary Best posting times
// @Tags channels
// @Produce json
// @Param channel path string true "Channel"
// @Success 200 {object} models.PostingWindowsResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/channels/{channel}/best-times [get]
func (h *Handler) BestTimes(c *gin.Context) {
	channel := models.Channel(c.Param("channel"))
	windows, err := publisher.BestPostingTimes(channel)
	if err != nil {
		h.fail(c, err, "failed to load posting times")
		return
	}
	c.JSON(http.StatusOK, models.PostingWindowsResponse{Channel: channel, Data: windows})
}

func (h *Handler) transition(c *gin.Context, op func(context.Context, string) (*models.ContentItem, error), msg string) {
	item, err := op(c.Request.Context(), c.Param("id"))
	h.respondItem(c, item, err, msg)
}

func (h *Handler) respondItem(c *gin.Context, item *models.ContentItem, err error, msg string) {
	if err != nil {
		h.fail(c, err, msg)
		return
	}
	c.JSON(http.StatusOK, models.ContentItemResponse{Data: *item})
}
