package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classforge/mastery-engine/internal/dto"
	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/service"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/response"
)

// LessonEvaluationHandler exposes lesson evaluations and the combined
// mastery they produce.
type LessonEvaluationHandler struct {
	lessons *service.LessonEvaluationService
}

// NewLessonEvaluationHandler constructs a new LessonEvaluationHandler.
func NewLessonEvaluationHandler(lessons *service.LessonEvaluationService) *LessonEvaluationHandler {
	return &LessonEvaluationHandler{lessons: lessons}
}

// Routes registers the lesson evaluation endpoints on the group.
func (h *LessonEvaluationHandler) Routes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateEvaluation)
	rg.GET("", h.ListEvaluations)
	rg.GET("/:id", h.GetEvaluation)
	rg.GET("/:id/paper", h.GetPaper)
	rg.POST("/:id/paper", h.GeneratePaper)
	rg.GET("/:id/paper.pdf", h.DownloadPaper)
	rg.POST("/:id/conduct", h.MarkConducted)
	rg.POST("/:id/results", h.SubmitResult)
	rg.POST("/:id/results/bulk", h.SubmitResultsBulk)
	rg.POST("/:id/combined-mastery", h.CalculateCombinedMastery)
	rg.GET("/students/:studentId/chapters/:chapterId/snapshots", h.ListSnapshots)
}

// CreateEvaluation godoc
// @Summary Create a lesson evaluation shell
// @Tags LessonEvaluations
// @Accept json
// @Produce json
// @Param payload body service.CreateLessonEvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Router /lesson-evaluations [post]
func (h *LessonEvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req service.CreateLessonEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	eval, err := h.lessons.CreateEvaluation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, eval)
}

// ListEvaluations godoc
// @Summary List lesson evaluations
// @Tags LessonEvaluations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations [get]
func (h *LessonEvaluationHandler) ListEvaluations(c *gin.Context) {
	filter := models.LessonEvaluationFilter{
		LessonPlanID: c.Query("lesson_plan_id"),
		ChapterID:    c.Query("chapter_id"),
		ClassID:      c.Query("class_id"),
		SectionID:    c.Query("section_id"),
		SubjectID:    c.Query("subject_id"),
		Status:       models.EvaluationStatus(c.Query("status")),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	if from, err := time.Parse("2006-01-02", c.Query("date_from")); err == nil {
		filter.DateFrom = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("date_to")); err == nil {
		filter.DateTo = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	evals, pagination, err := h.lessons.ListEvaluations(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evals, pagination)
}

// GetEvaluation godoc
// @Summary Get a lesson evaluation
// @Tags LessonEvaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations/{id} [get]
func (h *LessonEvaluationHandler) GetEvaluation(c *gin.Context) {
	eval, err := h.lessons.GetEvaluation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eval, nil)
}

// GetPaper godoc
// @Summary Get the generated paper of an evaluation
// @Tags LessonEvaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations/{id}/paper [get]
func (h *LessonEvaluationHandler) GetPaper(c *gin.Context) {
	questions, err := h.lessons.GetPaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, nil)
}

// GeneratePaper godoc
// @Summary Generate a paper from the lesson plan's topics
// @Tags LessonEvaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body dto.GeneratePaperOptions false "Generation options"
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations/{id}/paper [post]
func (h *LessonEvaluationHandler) GeneratePaper(c *gin.Context) {
	var opts dto.GeneratePaperOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
			return
		}
	}
	result, err := h.lessons.GeneratePaper(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadPaper godoc
// @Summary Download the paper as a printable PDF
// @Tags LessonEvaluations
// @Produce application/pdf
// @Param id path string true "Evaluation ID"
// @Success 200 {file} binary
// @Router /lesson-evaluations/{id}/paper.pdf [get]
func (h *LessonEvaluationHandler) DownloadPaper(c *gin.Context) {
	pdf, err := h.lessons.RenderPaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "lesson-evaluation-"+c.Param("id")+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// MarkConducted godoc
// @Summary Mark an evaluation as conducted
// @Tags LessonEvaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 204
// @Router /lesson-evaluations/{id}/conduct [post]
func (h *LessonEvaluationHandler) MarkConducted(c *gin.Context) {
	if err := h.lessons.MarkConducted(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitResult godoc
// @Summary Submit one student's evaluation result
// @Tags LessonEvaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body service.SubmitLessonResultRequest true "Result payload"
// @Success 201 {object} response.Envelope
// @Router /lesson-evaluations/{id}/results [post]
func (h *LessonEvaluationHandler) SubmitResult(c *gin.Context) {
	var req service.SubmitLessonResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.EvaluationID = c.Param("id")
	result, err := h.lessons.SubmitResult(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// SubmitResultsBulk godoc
// @Summary Submit a whole class's evaluation results
// @Tags LessonEvaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body service.BulkLessonResultsRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations/{id}/results/bulk [post]
func (h *LessonEvaluationHandler) SubmitResultsBulk(c *gin.Context) {
	var req service.BulkLessonResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.EvaluationID = c.Param("id")
	result, err := h.lessons.SubmitResultsBulk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CalculateCombinedMastery godoc
// @Summary Recompute a student's combined chapter mastery
// @Tags LessonEvaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations/{id}/combined-mastery [post]
func (h *LessonEvaluationHandler) CalculateCombinedMastery(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		ChapterID string `json:"chapter_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	result, err := h.lessons.CalculateCombinedMastery(c.Request.Context(), req.StudentID, req.ChapterID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListSnapshots godoc
// @Summary List a student's combined mastery history for a chapter
// @Tags LessonEvaluations
// @Produce json
// @Param studentId path string true "Student ID"
// @Param chapterId path string true "Chapter ID"
// @Success 200 {object} response.Envelope
// @Router /lesson-evaluations/students/{studentId}/chapters/{chapterId}/snapshots [get]
func (h *LessonEvaluationHandler) ListSnapshots(c *gin.Context) {
	snapshots, err := h.lessons.ListSnapshots(c.Request.Context(), c.Param("studentId"), c.Param("chapterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, nil)
}
