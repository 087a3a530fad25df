package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/service"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/response"
)

// PracticeHandler wires the daily practice loop to HTTP routes.
type PracticeHandler struct {
	practice *service.PracticeService
}

// NewPracticeHandler constructs a new PracticeHandler.
func NewPracticeHandler(practice *service.PracticeService) *PracticeHandler {
	return &PracticeHandler{practice: practice}
}

// Routes registers the practice endpoints on the group.
func (h *PracticeHandler) Routes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.CreateSession)
	rg.GET("/sessions", h.ListSessions)
	rg.GET("/sessions/:id", h.GetSession)
	rg.GET("/sessions/:id/questions", h.ListQuestions)
	rg.POST("/sessions/:id/participation", h.RecordParticipation)
	rg.POST("/sessions/:id/close", h.CloseSession)
	rg.POST("/attempts", h.SubmitAttempt)
	rg.GET("/students/:studentId/topics/:topicId/mastery", h.GetTopicMastery)
	rg.GET("/students/:studentId/topics/:topicId/pools", h.GetStudentPools)
}

// CreateSession godoc
// @Summary Create a practice session for a schedule slot
// @Tags Practice
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /practice/sessions [post]
func (h *PracticeHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	session, err := h.practice.CreateSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ListSessions godoc
// @Summary List practice sessions
// @Tags Practice
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /practice/sessions [get]
func (h *PracticeHandler) ListSessions(c *gin.Context) {
	filter := models.PracticeSessionFilter{
		ClassID:   c.Query("class_id"),
		SectionID: c.Query("section_id"),
		SubjectID: c.Query("subject_id"),
		TopicID:   c.Query("topic_id"),
		Status:    models.SessionStatus(c.Query("status")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
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

	sessions, pagination, err := h.practice.ListSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// GetSession godoc
// @Summary Get a practice session
// @Tags Practice
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /practice/sessions/{id} [get]
func (h *PracticeHandler) GetSession(c *gin.Context) {
	session, err := h.practice.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// ListQuestions godoc
// @Summary Serve questions for a student's practice run
// @Tags Practice
// @Produce json
// @Param id path string true "Session ID"
// @Param student_id query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /practice/sessions/{id}/questions [get]
func (h *PracticeHandler) ListQuestions(c *gin.Context) {
	questions, err := h.practice.ListQuestionsForAttempt(c.Request.Context(), c.Param("id"), c.Query("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, nil)
}

// SubmitAttempt godoc
// @Summary Grade and record one answer
// @Tags Practice
// @Accept json
// @Produce json
// @Param payload body service.SubmitAttemptRequest true "Attempt payload"
// @Success 201 {object} response.Envelope
// @Router /practice/attempts [post]
func (h *PracticeHandler) SubmitAttempt(c *gin.Context) {
	var req service.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	attempt, err := h.practice.SubmitAttempt(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attempt)
}

// RecordParticipation godoc
// @Summary Record per-student participation for a session
// @Tags Practice
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /practice/sessions/{id}/participation [post]
func (h *PracticeHandler) RecordParticipation(c *gin.Context) {
	var req service.RecordParticipationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.SessionID = c.Param("id")
	result, err := h.practice.RecordParticipation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CloseSession godoc
// @Summary Close an active session
// @Tags Practice
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Router /practice/sessions/{id}/close [post]
func (h *PracticeHandler) CloseSession(c *gin.Context) {
	if err := h.practice.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetTopicMastery godoc
// @Summary Get a student's mastery on one topic
// @Tags Practice
// @Produce json
// @Param studentId path string true "Student ID"
// @Param topicId path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Router /practice/students/{studentId}/topics/{topicId}/mastery [get]
func (h *PracticeHandler) GetTopicMastery(c *gin.Context) {
	mastery, err := h.practice.GetTopicMastery(c.Request.Context(), c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mastery, nil)
}

// GetStudentPools godoc
// @Summary Bucket a student's attempted questions by accuracy
// @Tags Practice
// @Produce json
// @Param studentId path string true "Student ID"
// @Param topicId path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Router /practice/students/{studentId}/topics/{topicId}/pools [get]
func (h *PracticeHandler) GetStudentPools(c *gin.Context) {
	pools, err := h.practice.StrongWeakQuestions(c.Request.Context(), c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}
