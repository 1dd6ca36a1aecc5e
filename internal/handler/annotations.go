package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agency-studio/content-pipeline/internal/annotation"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// AddAnnotation pins a comment on an asset.
// @Summary Create annotation
// @Description Pin a comment at a percentage position of a visual asset
// @Tags annotations
// @Accept json
// @Produce json
// @Param assetId path string true "Asset ID"
// @Param annotation body models.CreateAnnotationRequest true "Annotation data"
// @Success 201 {object} models.AnnotationResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/assets/{assetId}/annotations [post]
func (h *Handler) AddAnnotation(c *gin.Context) {
	var req models.CreateAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	a, err := h.annotations.Add(c.Request.Context(), annotation.AddInput{
		AssetID: c.Param("assetId"),
		X:       *req.X,
		Y:       *req.Y,
		Text:    req.Text,
		Author:  req.Author,
		Color:   req.Color,
	})
	if err != nil {
		h.fail(c, err, "failed to create annotation")
		return
	}

	c.JSON(http.StatusCreated, models.AnnotationResponse{Data: *a})
}

// ListAnnotations returns an asset's annotations in insertion order.
// @Summary List annotations
// @Tags annotations
// @Produce json
// @Param assetId path string true "Asset ID"
// @Param includeResolved query bool false "Include resolved annotations"
// @Success 200 {object} models.AnnotationsResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/assets/{assetId}/annotations [get]
func (h *Handler) ListAnnotations(c *gin.Context) {
	includeResolved, err := strconv.ParseBool(c.DefaultQuery("includeResolved", "false"))
	if err != nil {
		h.badRequest(c, err)
		return
	}

	list, err := h.annotations.List(c.Request.Context(), c.Param("assetId"), includeResolved)
	if err != nil {
		h.fail(c, err, "failed to retrieve annotations")
		return
	}
	if list == nil {
		list = []models.Annotation{}
	}

	c.JSON(http.StatusOK, models.AnnotationsResponse{Data: list})
}

// AnnotationSummary counts an asset's annotations.
// @Summary Annotation summary
// @Tags annotations
// @Produce json
// @Param assetId path string true "Asset ID"
// @Success 200 {object} models.AnnotationSummaryResponse
// @Router /api/v1/assets/{assetId}/annotations/summary [get]
func (h *Handler) AnnotationSummary(c *gin.Context) {
	summary, err := h.annotations.Summary(c.Request.Context(), c.Param("assetId"))
	if err != nil {
		h.fail(c, err, "failed to summarise annotations")
		return
	}
	c.JSON(http.StatusOK, models.AnnotationSummaryResponse{Data: *summary})
}

// ResolveAnnotation marks an annotation resolved. Resolving twice is a no-op.
// @Summary Resolve annotation
// @Tags annotations
// @Produce json
// @Param id path string true "Annotation ID"
// @Success 200 {object} models.AnnotationResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/annotations/{id}/resolve [post]
func (h *Handler) ResolveAnnotation(c *gin.Context) {
	a, err := h.annotations.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to resolve annotation")
		return
	}
	c.JSON(http.StatusOK, models.AnnotationResponse{Data: *a})
}

// DeleteAnnotation removes an annotation.
// @Summary Delete annotation
// @Tags annotations
// @Produce json
// @Param id path string true "Annotation ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/annotations/{id} [delete]
func (h *Handler) DeleteAnnotation(c *gin.Context) {
	if err := h.annotations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "failed to delete annotation")
		return
	}
	c.Status(http.StatusNoContent)
}
