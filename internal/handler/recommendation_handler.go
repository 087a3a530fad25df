package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/service"
	"github.com/classforge/mastery-engine/pkg/response"
)

// RecommendationHandler exposes adaptive recommendations over HTTP.
type RecommendationHandler struct {
	recommendations *service.RecommendationService
}

// NewRecommendationHandler constructs a new RecommendationHandler.
func NewRecommendationHandler(recommendations *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations}
}

// Routes registers the recommendation endpoints on the group.
func (h *RecommendationHandler) Routes(rg *gin.RouterGroup) {
	rg.GET("", h.ListRecommendations)
	rg.POST("/:id/action", h.ActionRecommendation)
}

// ListRecommendations godoc
// @Summary List adaptive recommendations
// @Tags Recommendations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /recommendations [get]
func (h *RecommendationHandler) ListRecommendations(c *gin.Context) {
	filter := models.RecommendationFilter{
		StudentID: c.Query("student_id"),
		TopicID:   c.Query("topic_id"),
		Type:      models.RecommendationType(c.Query("type")),
		Priority:  models.RecommendationPriority(c.Query("priority")),
	}
	if raw := c.Query("actioned"); raw != "" {
		if actioned, err := strconv.ParseBool(raw); err == nil {
			filter.Actioned = &actioned
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	recs, pagination, err := h.recommendations.ListRecommendations(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs, pagination)
}

// ActionRecommendation godoc
// @Summary Mark a recommendation as actioned
// @Tags Recommendations
// @Produce json
// @Param id path string true "Recommendation ID"
// @Success 200 {object} response.Envelope
// @Router /recommendations/{id}/action [post]
func (h *RecommendationHandler) ActionRecommendation(c *gin.Context) {
	rec, err := h.recommendations.ActionRecommendation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}
