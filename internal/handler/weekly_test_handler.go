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

// WeeklyTestHandler exposes the weekly test lifecycle over HTTP.
type WeeklyTestHandler struct {
	weekly *service.WeeklyTestService
}

// NewWeeklyTestHandler constructs a new WeeklyTestHandler.
func NewWeeklyTestHandler(weekly *service.WeeklyTestService) *WeeklyTestHandler {
	return &WeeklyTestHandler{weekly: weekly}
}

// Routes registers the weekly test endpoints on the group.
func (h *WeeklyTestHandler) Routes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateTest)
	rg.GET("", h.ListTests)
	rg.GET("/:id", h.GetTest)
	rg.GET("/:id/paper", h.GetPaper)
	rg.POST("/:id/paper", h.GeneratePaper)
	rg.GET("/:id/paper.pdf", h.DownloadPaper)
	rg.GET("/:id/scores.csv", h.DownloadScoreSheet)
	rg.POST("/:id/conduct", h.MarkConducted)
	rg.POST("/:id/results", h.SubmitResult)
	rg.POST("/:id/results/bulk", h.SubmitResultsBulk)
}

// CreateTest godoc
// @Summary Create a weekly test shell
// @Tags WeeklyTests
// @Accept json
// @Produce json
// @Param payload body service.CreateWeeklyTestRequest true "Test payload"
// @Success 201 {object} response.Envelope
// @Router /weekly-tests [post]
func (h *WeeklyTestHandler) CreateTest(c *gin.Context) {
	var req service.CreateWeeklyTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	test, err := h.weekly.CreateTest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, test)
}

// ListTests godoc
// @Summary List weekly tests
// @Tags WeeklyTests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /weekly-tests [get]
func (h *WeeklyTestHandler) ListTests(c *gin.Context) {
	filter := models.WeeklyTestFilter{
		ClassID:   c.Query("class_id"),
		SectionID: c.Query("section_id"),
		SubjectID: c.Query("subject_id"),
		Status:    models.WeeklyTestStatus(c.Query("status")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if from, err := time.Parse("2006-01-02", c.Query("week_from")); err == nil {
		filter.WeekFrom = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("week_to")); err == nil {
		filter.WeekTo = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	tests, pagination, err := h.weekly.ListTests(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tests, pagination)
}

// GetTest godoc
// @Summary Get a weekly test
// @Tags WeeklyTests
// @Produce json
// @Param id path string true "Test ID"
// @Success 200 {object} response.Envelope
// @Router /weekly-tests/{id} [get]
func (h *WeeklyTestHandler) GetTest(c *gin.Context) {
	test, err := h.weekly.GetTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, test, nil)
}

// GetPaper godoc
// @Summary Get the generated paper of a weekly test
// @Tags WeeklyTests
// @Produce json
// @Param id path string true "Test ID"
// @Success 200 {object} response.Envelope
// @Router /weekly-tests/{id}/paper [get]
func (h *WeeklyTestHandler) GetPaper(c *gin.Context) {
	questions, err := h.weekly.GetPaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, nil)
}

// GeneratePaper godoc
// @Summary Generate a strength-balanced paper
// @Tags WeeklyTests
// @Accept json
// @Produce json
// @Param id path string true "Test ID"
// @Param payload body dto.GeneratePaperOptions false "Generation options"
// @Success 200 {object} response.Envelope
// @Router /weekly-tests/{id}/paper [post]
func (h *WeeklyTestHandler) GeneratePaper(c *gin.Context) {
	var opts dto.GeneratePaperOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
			return
		}
	}
	result, err := h.weekly.GeneratePaper(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadPaper godoc
// @Summary Download the paper as a printable PDF
// @Tags WeeklyTests
// @Produce application/pdf
// @Param id path string true "Test ID"
// @Success 200 {file} binary
// @Router /weekly-tests/{id}/paper.pdf [get]
func (h *WeeklyTestHandler) DownloadPaper(c *gin.Context) {
	pdf, err := h.weekly.RenderPaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "weekly-test-"+c.Param("id")+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// DownloadScoreSheet godoc
// @Summary Download the blank score sheet as CSV
// @Tags WeeklyTests
// @Produce text/csv
// @Param id path string true "Test ID"
// @Success 200 {file} binary
// @Router /weekly-tests/{id}/scores.csv [get]
func (h *WeeklyTestHandler) DownloadScoreSheet(c *gin.Context) {
	sheet, err := h.weekly.ExportScoreSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "weekly-test-"+c.Param("id")+"-scores.csv"))
	c.Data(http.StatusOK, "text/csv", sheet)
}

// MarkConducted godoc
// @Summary Mark a weekly test as conducted
// @Tags WeeklyTests
// @Produce json
// @Param id path string true "Test ID"
// @Success 204
// @Router /weekly-tests/{id}/conduct [post]
func (h *WeeklyTestHandler) MarkConducted(c *gin.Context) {
	if err := h.weekly.MarkConducted(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitResult godoc
// @Summary Submit one manually marked result
// @Tags WeeklyTests
// @Accept json
// @Produce json
// @Param id path string true "Test ID"
// @Param payload body service.SubmitWeeklyResultRequest true "Result payload"
// @Success 201 {object} response.Envelope
// @Router /weekly-tests/{id}/results [post]
func (h *WeeklyTestHandler) SubmitResult(c *gin.Context) {
	var req service.SubmitWeeklyResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.TestID = c.Param("id")
	result, err := h.weekly.SubmitResult(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// SubmitResultsBulk godoc
// @Summary Submit a whole class's results in one call
// @Tags WeeklyTests
// @Accept json
// @Produce json
// @Param id path string true "Test ID"
// @Param payload body service.BulkWeeklyResultsRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /weekly-tests/{id}/results/bulk [post]
func (h *WeeklyTestHandler) SubmitResultsBulk(c *gin.Context) {
	var req service.BulkWeeklyResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.TestID = c.Param("id")
	result, err := h.weekly.SubmitResultsBulk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
