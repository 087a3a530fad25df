package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/dto"
	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/tenancy"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
)

type practiceSessionRepo interface {
	Create(ctx context.Context, session *models.PracticeSession) error
	FindByID(ctx context.Context, tenantID, id string) (*models.PracticeSession, error)
	FindByScheduleSlot(ctx context.Context, tenantID, slotID string) (*models.PracticeSession, error)
	List(ctx context.Context, tenantID string, filter models.PracticeSessionFilter) ([]models.PracticeSession, int, error)
	UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.SessionStatus) (bool, error)
	RefreshStats(ctx context.Context, tenantID, id string) error
}

type attemptWriter interface {
	Insert(ctx context.Context, attempt *models.Attempt) error
	CountForStudentQuestion(ctx context.Context, tenantID, sessionID, studentID, questionID string) (int, error)
	AttemptedQuestionIDs(ctx context.Context, tenantID, sessionID, studentID string) ([]string, error)
}

type masteryStore interface {
	ApplyDelta(ctx context.Context, delta models.TopicMasteryDelta) error
	FindByStudentTopic(ctx context.Context, tenantID, studentID, topicID string) (*models.TopicMastery, error)
	ListByStudentTopics(ctx context.Context, tenantID, studentID string, topicIDs []string) ([]models.TopicMastery, error)
}

type questionReader interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.Question, error)
	ListApprovedForTopic(ctx context.Context, tenantID, topicID string, excludeIDs []string, limit int) ([]models.Question, error)
	IncrementUsage(ctx context.Context, tenantID string, ids []string) error
}

type studentPoolReader interface {
	StudentPools(ctx context.Context, studentID, topicID string) (*models.StrengthPools, error)
}

// CreateSessionRequest carries the resolved scheduling context for a new
// daily practice session.
type CreateSessionRequest struct {
	ScheduleSlotID   string    `json:"schedule_slot_id" validate:"required"`
	ClassID          string    `json:"class_id" validate:"required"`
	SectionID        string    `json:"section_id" validate:"required"`
	SubjectID        string    `json:"subject_id" validate:"required"`
	TopicID          string    `json:"topic_id" validate:"required"`
	SessionDate      time.Time `json:"session_date" validate:"required"`
	MaxQuestions     int       `json:"max_questions" validate:"omitempty,min=1"`
	TimeLimitMinutes int       `json:"time_limit_minutes" validate:"omitempty,min=1"`
}

// SubmitAttemptRequest is one student's answer to one question.
type SubmitAttemptRequest struct {
	SessionID        string `json:"session_id" validate:"required"`
	StudentID        string `json:"student_id" validate:"required"`
	QuestionID       string `json:"question_id" validate:"required"`
	SelectedOption   string `json:"selected_option" validate:"required"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"omitempty,min=0"`
}

// ParticipationEntry records one student's relation to a scheduled session.
type ParticipationEntry struct {
	StudentID string                     `json:"student_id" validate:"required"`
	Status    models.ParticipationStatus `json:"status" validate:"required,oneof=PARTICIPATED EXCUSED_ABSENT UNEXCUSED_ABSENT"`
}

// RecordParticipationRequest registers per-student participation for a
// session so mastery denominators stay fair.
type RecordParticipationRequest struct {
	SessionID string               `json:"session_id" validate:"required"`
	Entries   []ParticipationEntry `json:"entries" validate:"required,min=1,dive"`
}

// PracticeService runs the daily practice loop: sessions, attempts and the
// mastery counters they feed.
type PracticeService struct {
	sessions            practiceSessionRepo
	attempts            attemptWriter
	mastery             masteryStore
	questions           questionReader
	pools               studentPoolReader
	validator           *validator.Validate
	logger              *zap.Logger
	metrics             *MetricsService
	defaultMaxQuestions int
	defaultTimeLimit    int
}

// NewPracticeService constructs PracticeService.
func NewPracticeService(sessions practiceSessionRepo, attempts attemptWriter, mastery masteryStore, questions questionReader, pools studentPoolReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, defaultMaxQuestions, defaultTimeLimit int) *PracticeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxQuestions <= 0 {
		defaultMaxQuestions = 10
	}
	return &PracticeService{
		sessions:            sessions,
		attempts:            attempts,
		mastery:             mastery,
		questions:           questions,
		pools:               pools,
		validator:           validate,
		logger:              logger,
		metrics:             metrics,
		defaultMaxQuestions: defaultMaxQuestions,
		defaultTimeLimit:    defaultTimeLimit,
	}
}

// CreateSession creates the single practice session for a schedule slot. A
// slot that already holds a session is rejected as a duplicate.
func (s *PracticeService) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.PracticeSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.sessions.FindByScheduleSlot(ctx, tenantID, req.ScheduleSlotID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule slot")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "session already exists for schedule slot")
	}

	maxQuestions := req.MaxQuestions
	if maxQuestions <= 0 {
		maxQuestions = s.defaultMaxQuestions
	}
	var timeLimit *int
	if req.TimeLimitMinutes > 0 {
		timeLimit = &req.TimeLimitMinutes
	} else if s.defaultTimeLimit > 0 {
		limit := s.defaultTimeLimit
		timeLimit = &limit
	}

	session := &models.PracticeSession{
		TenantID:         tenantID,
		ScheduleSlotID:   req.ScheduleSlotID,
		ClassID:          req.ClassID,
		SectionID:        req.SectionID,
		SubjectID:        req.SubjectID,
		TopicID:          req.TopicID,
		SessionDate:      req.SessionDate,
		MaxQuestions:     maxQuestions,
		TimeLimitMinutes: timeLimit,
		Status:           models.SessionStatusActive,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "session already exists for schedule slot")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("practice session created",
		zap.String("session_id", session.ID),
		zap.String("topic_id", session.TopicID),
		zap.String("class_id", session.ClassID))
	return session, nil
}

// GetSession fetches one session.
func (s *PracticeService) GetSession(ctx context.Context, sessionID string) (*models.PracticeSession, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// ListSessions lists sessions for the tenant.
func (s *PracticeService) ListSessions(ctx context.Context, filter models.PracticeSessionFilter) ([]models.PracticeSession, *models.Pagination, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	sessions, total, err := s.sessions.List(ctx, tenantID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListQuestionsForAttempt serves up to max_questions approved questions on
// the session topic, skipping anything the student already answered in this
// session and preferring least-used content.
func (s *PracticeService) ListQuestionsForAttempt(ctx context.Context, sessionID, studentID string) ([]models.Question, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is required")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session is not active")
	}
	attempted, err := s.attempts.AttemptedQuestionIDs(ctx, tenantID, sessionID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempted questions")
	}
	questions, err := s.questions.ListApprovedForTopic(ctx, tenantID, session.TopicID, attempted, session.MaxQuestions)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	return questions, nil
}

// SubmitAttempt grades and stores one answer, then folds it into the
// student's topic mastery and the session's rolling stats.
func (s *PracticeService) SubmitAttempt(ctx context.Context, req SubmitAttemptRequest) (*models.Attempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindByID(ctx, tenantID, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session is not active")
	}

	question, err := s.questions.FindByID(ctx, tenantID, req.QuestionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}

	isCorrect := answersMatch(req.SelectedOption, question.CorrectOption)

	previous, err := s.attempts.CountForStudentQuestion(ctx, tenantID, req.SessionID, req.StudentID, req.QuestionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count prior attempts")
	}

	attempt := &models.Attempt{
		TenantID:         tenantID,
		SessionID:        req.SessionID,
		StudentID:        req.StudentID,
		QuestionID:       req.QuestionID,
		SelectedOption:   req.SelectedOption,
		IsCorrect:        isCorrect,
		TimeSpentSeconds: req.TimeSpentSeconds,
		AttemptNumber:    previous + 1,
	}
	if err := s.attempts.Insert(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attempt")
	}

	activity := session.SessionDate
	correctDelta := 0
	if isCorrect {
		correctDelta = 1
	}
	outcome := isCorrect
	delta := models.TopicMasteryDelta{
		TenantID:         tenantID,
		StudentID:        req.StudentID,
		TopicID:          session.TopicID,
		TotalAttempts:    1,
		CorrectAttempts:  correctDelta,
		StreakOutcome:    &outcome,
		LastActivityDate: &activity,
	}
	if err := s.mastery.ApplyDelta(ctx, delta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mastery")
	}

	if err := s.sessions.RefreshStats(ctx, tenantID, req.SessionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh session stats")
	}
	if err := s.questions.IncrementUsage(ctx, tenantID, []string{req.QuestionID}); err != nil {
		// Usage balancing is advisory; an attempt already counted must not fail.
		s.logger.Warn("question usage increment failed", zap.String("question_id", req.QuestionID), zap.Error(err))
	}
	s.metrics.RecordAttempt(isCorrect)
	return attempt, nil
}

// StrongWeakQuestions buckets the student's attempted questions on a topic
// by personal accuracy.
func (s *PracticeService) StrongWeakQuestions(ctx context.Context, studentID, topicID string) (*models.StrengthPools, error) {
	return s.pools.StudentPools(ctx, studentID, topicID)
}

// GetTopicMastery returns the student's mastery row for one topic, or a
// zero-valued row when the student has no evidence yet.
func (s *PracticeService) GetTopicMastery(ctx context.Context, studentID, topicID string) (*models.TopicMastery, error) {
	if studentID == "" || topicID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and topic are required")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	mastery, err := s.mastery.FindByStudentTopic(ctx, tenantID, studentID, topicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.TopicMastery{TenantID: tenantID, StudentID: studentID, TopicID: topicID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mastery")
	}
	return mastery, nil
}

// RecordParticipation registers per-student participation entries. Only the
// participation counters move; attempt counters and mastery_percent never
// change here, which keeps excused absences neutral.
func (s *PracticeService) RecordParticipation(ctx context.Context, req RecordParticipationRequest) (*dto.BulkSubmitResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid participation payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, tenantID, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	result := &dto.BulkSubmitResult{}
	for _, entry := range req.Entries {
		delta := models.TopicMasteryDelta{
			TenantID:          tenantID,
			StudentID:         entry.StudentID,
			TopicID:           session.TopicID,
			SessionsScheduled: 1,
		}
		switch entry.Status {
		case models.ParticipationParticipated:
			delta.SessionsParticipated = 1
		case models.ParticipationExcusedAbsent:
			delta.ExcusedAbsences = 1
		case models.ParticipationUnexcusedAbsent:
			delta.UnexcusedAbsences = 1
		}
		if err := s.mastery.ApplyDelta(ctx, delta); err != nil {
			result.Failures = append(result.Failures, dto.BulkFailure{StudentID: entry.StudentID, Reason: err.Error()})
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

// CloseSession moves an active session to CLOSED.
func (s *PracticeService) CloseSession(ctx context.Context, sessionID string) error {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return err
	}
	moved, err := s.sessions.UpdateStatusIf(ctx, tenantID, sessionID, models.SessionStatusActive, models.SessionStatusClosed)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}
	if !moved {
		if _, err := s.sessions.FindByID(ctx, tenantID, sessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
		}
		return appErrors.Clone(appErrors.ErrValidation, "session is not active")
	}
	return nil
}

// answersMatch compares a submitted option to the canonical answer after
// trimming and case folding.
func answersMatch(submitted, canonical string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(canonical))
}

// tenantFrom extracts the tenant identity a host must have placed on the
// context before calling into the engine.
func tenantFrom(ctx context.Context) (string, error) {
	tenantID, ok := tenancy.TenantFromContext(ctx)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "tenant missing from context")
	}
	return tenantID, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
