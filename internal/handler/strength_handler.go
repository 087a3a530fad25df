package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classforge/mastery-engine/internal/service"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/response"
)

// StrengthHandler exposes the accuracy-based strength classifier.
type StrengthHandler struct {
	strength *service.StrengthService
}

// NewStrengthHandler constructs a new StrengthHandler.
func NewStrengthHandler(strength *service.StrengthService) *StrengthHandler {
	return &StrengthHandler{strength: strength}
}

// Routes registers the strength classifier endpoints on the group.
func (h *StrengthHandler) Routes(rg *gin.RouterGroup) {
	rg.POST("/classify", h.ClassifyClassPools)
	rg.POST("/refresh", h.EnqueueRefresh)
	rg.GET("/students/:studentId/topics/:topicId", h.StudentPools)
}

// ClassifyClassPools godoc
// @Summary Bucket a class's questions into strong, moderate and weak pools
// @Tags Strength
// @Accept json
// @Produce json
// @Param payload body service.ClassifyRequest true "Classification window"
// @Success 200 {object} response.Envelope
// @Router /strength/classify [post]
func (h *StrengthHandler) ClassifyClassPools(c *gin.Context) {
	var req service.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	pools, err := h.strength.ClassifyClassPools(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}

// EnqueueRefresh godoc
// @Summary Queue a background pool re-warm
// @Tags Strength
// @Accept json
// @Produce json
// @Param payload body service.ClassifyRequest true "Classification window"
// @Success 202
// @Router /strength/refresh [post]
func (h *StrengthHandler) EnqueueRefresh(c *gin.Context) {
	var req service.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	h.strength.EnqueueRefresh(c.Request.Context(), req)
	c.Status(http.StatusAccepted)
}

// StudentPools godoc
// @Summary Get one student's strong and weak question pools
// @Tags Strength
// @Produce json
// @Param studentId path string true "Student ID"
// @Param topicId path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Router /strength/students/{studentId}/topics/{topicId} [get]
func (h *StrengthHandler) StudentPools(c *gin.Context) {
	pools, err := h.strength.StudentPools(c.Request.Context(), c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}
