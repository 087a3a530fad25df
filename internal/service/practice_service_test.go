package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/tenancy"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
)

func tenantCtx() context.Context {
	return tenancy.WithTenant(context.Background(), "school-1")
}

type sessionRepoStub struct {
	sessions     map[string]*models.PracticeSession
	bySlot       map[string]*models.PracticeSession
	created      []*models.PracticeSession
	createErr    error
	statusMoved  bool
	statusErr    error
	refreshCalls int
}

func (s *sessionRepoStub) Create(ctx context.Context, session *models.PracticeSession) error {
	if s.createErr != nil {
		return s.createErr
	}
	session.ID = "session-1"
	s.created = append(s.created, session)
	return nil
}

func (s *sessionRepoStub) FindByID(ctx context.Context, tenantID, id string) (*models.PracticeSession, error) {
	if session, ok := s.sessions[id]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionRepoStub) FindByScheduleSlot(ctx context.Context, tenantID, slotID string) (*models.PracticeSession, error) {
	if session, ok := s.bySlot[slotID]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionRepoStub) List(ctx context.Context, tenantID string, filter models.PracticeSessionFilter) ([]models.PracticeSession, int, error) {
	out := make([]models.PracticeSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out, len(out), nil
}

func (s *sessionRepoStub) UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.SessionStatus) (bool, error) {
	return s.statusMoved, s.statusErr
}

func (s *sessionRepoStub) RefreshStats(ctx context.Context, tenantID, id string) error {
	s.refreshCalls++
	return nil
}

type attemptWriterStub struct {
	inserted  []*models.Attempt
	previous  int
	attempted []string
	insertErr error
}

func (s *attemptWriterStub) Insert(ctx context.Context, attempt *models.Attempt) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	attempt.ID = "attempt-1"
	s.inserted = append(s.inserted, attempt)
	return nil
}

func (s *attemptWriterStub) CountForStudentQuestion(ctx context.Context, tenantID, sessionID, studentID, questionID string) (int, error) {
	return s.previous, nil
}

func (s *attemptWriterStub) AttemptedQuestionIDs(ctx context.Context, tenantID, sessionID, studentID string) ([]string, error) {
	return s.attempted, nil
}

type masteryStoreStub struct {
	deltas  []models.TopicMasteryDelta
	rows    map[string]*models.TopicMastery
	byTopic []models.TopicMastery
	err     error
	failFor map[string]error
}

func (s *masteryStoreStub) ApplyDelta(ctx context.Context, delta models.TopicMasteryDelta) error {
	if s.failFor != nil {
		if err, ok := s.failFor[delta.StudentID]; ok {
			return err
		}
	}
	if s.err != nil {
		return s.err
	}
	s.deltas = append(s.deltas, delta)
	return nil
}

func (s *masteryStoreStub) FindByStudentTopic(ctx context.Context, tenantID, studentID, topicID string) (*models.TopicMastery, error) {
	if row, ok := s.rows[studentID+"/"+topicID]; ok {
		return row, nil
	}
	return nil, sql.ErrNoRows
}

func (s *masteryStoreStub) ListByStudentTopics(ctx context.Context, tenantID, studentID string, topicIDs []string) ([]models.TopicMastery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byTopic, nil
}

type questionReaderStub struct {
	questions  map[string]*models.Question
	approved   []models.Question
	usageIDs   []string
	usageErr   error
	usageCalls int
}

func (s *questionReaderStub) FindByID(ctx context.Context, tenantID, id string) (*models.Question, error) {
	if q, ok := s.questions[id]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

func (s *questionReaderStub) ListApprovedForTopic(ctx context.Context, tenantID, topicID string, excludeIDs []string, limit int) ([]models.Question, error) {
	return s.approved, nil
}

func (s *questionReaderStub) IncrementUsage(ctx context.Context, tenantID string, ids []string) error {
	s.usageCalls++
	s.usageIDs = append(s.usageIDs, ids...)
	return s.usageErr
}

type poolReaderStub struct {
	pools *models.StrengthPools
	err   error
}

func (s poolReaderStub) StudentPools(ctx context.Context, studentID, topicID string) (*models.StrengthPools, error) {
	return s.pools, s.err
}

func newPracticeService(sessions *sessionRepoStub, attempts *attemptWriterStub, mastery *masteryStoreStub, questions *questionReaderStub) *PracticeService {
	return NewPracticeService(sessions, attempts, mastery, questions, poolReaderStub{}, nil, zap.NewNop(), nil, 10, 30)
}

func TestPracticeServiceCreateSessionRejectsOccupiedSlot(t *testing.T) {
	sessions := &sessionRepoStub{
		bySlot: map[string]*models.PracticeSession{"slot-1": {ID: "session-0"}},
	}
	service := newPracticeService(sessions, &attemptWriterStub{}, &masteryStoreStub{}, &questionReaderStub{})

	_, err := service.CreateSession(tenantCtx(), CreateSessionRequest{
		ScheduleSlotID: "slot-1",
		ClassID:        "class-1",
		SectionID:      "section-a",
		SubjectID:      "math",
		TopicID:        "topic-1",
		SessionDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErrors.FromError(err).Code)
	assert.Empty(t, sessions.created)
}

func TestPracticeServiceCreateSessionAppliesDefaults(t *testing.T) {
	sessions := &sessionRepoStub{}
	service := newPracticeService(sessions, &attemptWriterStub{}, &masteryStoreStub{}, &questionReaderStub{})

	session, err := service.CreateSession(tenantCtx(), CreateSessionRequest{
		ScheduleSlotID: "slot-1",
		ClassID:        "class-1",
		SectionID:      "section-a",
		SubjectID:      "math",
		TopicID:        "topic-1",
		SessionDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, 10, session.MaxQuestions)
	require.NotNil(t, session.TimeLimitMinutes)
	assert.Equal(t, 30, *session.TimeLimitMinutes)
	assert.Equal(t, "school-1", session.TenantID)
}

func TestPracticeServiceCreateSessionRequiresTenant(t *testing.T) {
	service := newPracticeService(&sessionRepoStub{}, &attemptWriterStub{}, &masteryStoreStub{}, &questionReaderStub{})

	_, err := service.CreateSession(context.Background(), CreateSessionRequest{
		ScheduleSlotID: "slot-1",
		ClassID:        "class-1",
		SectionID:      "section-a",
		SubjectID:      "math",
		TopicID:        "topic-1",
		SessionDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPracticeServiceSubmitAttemptCorrectAnswer(t *testing.T) {
	sessionDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sessions := &sessionRepoStub{sessions: map[string]*models.PracticeSession{
		"session-1": {ID: "session-1", TopicID: "topic-1", SessionDate: sessionDate, Status: models.SessionStatusActive},
	}}
	attempts := &attemptWriterStub{previous: 1}
	mastery := &masteryStoreStub{}
	questions := &questionReaderStub{questions: map[string]*models.Question{
		"q-1": {ID: "q-1", CorrectOption: "B"},
	}}
	service := newPracticeService(sessions, attempts, mastery, questions)

	attempt, err := service.SubmitAttempt(tenantCtx(), SubmitAttemptRequest{
		SessionID:      "session-1",
		StudentID:      "student-1",
		QuestionID:     "q-1",
		SelectedOption: " b ",
	})
	require.NoError(t, err)
	assert.True(t, attempt.IsCorrect)
	assert.Equal(t, 2, attempt.AttemptNumber)

	require.Len(t, mastery.deltas, 1)
	delta := mastery.deltas[0]
	assert.Equal(t, 1, delta.TotalAttempts)
	assert.Equal(t, 1, delta.CorrectAttempts)
	require.NotNil(t, delta.StreakOutcome)
	assert.True(t, *delta.StreakOutcome)
	require.NotNil(t, delta.LastActivityDate)
	assert.True(t, delta.LastActivityDate.Equal(sessionDate))

	assert.Equal(t, 1, sessions.refreshCalls)
	assert.Equal(t, []string{"q-1"}, questions.usageIDs)
}

func TestPracticeServiceSubmitAttemptWrongAnswerResetsStreak(t *testing.T) {
	sessions := &sessionRepoStub{sessions: map[string]*models.PracticeSession{
		"session-1": {ID: "session-1", TopicID: "topic-1", Status: models.SessionStatusActive},
	}}
	mastery := &masteryStoreStub{}
	questions := &questionReaderStub{questions: map[string]*models.Question{
		"q-1": {ID: "q-1", CorrectOption: "B"},
	}}
	service := newPracticeService(sessions, &attemptWriterStub{}, mastery, questions)

	attempt, err := service.SubmitAttempt(tenantCtx(), SubmitAttemptRequest{
		SessionID:      "session-1",
		StudentID:      "student-1",
		QuestionID:     "q-1",
		SelectedOption: "C",
	})
	require.NoError(t, err)
	assert.False(t, attempt.IsCorrect)
	require.Len(t, mastery.deltas, 1)
	assert.Equal(t, 0, mastery.deltas[0].CorrectAttempts)
	require.NotNil(t, mastery.deltas[0].StreakOutcome)
	assert.False(t, *mastery.deltas[0].StreakOutcome)
}

func TestPracticeServiceSubmitAttemptClosedSession(t *testing.T) {
	sessions := &sessionRepoStub{sessions: map[string]*models.PracticeSession{
		"session-1": {ID: "session-1", Status: models.SessionStatusClosed},
	}}
	service := newPracticeService(sessions, &attemptWriterStub{}, &masteryStoreStub{}, &questionReaderStub{})

	_, err := service.SubmitAttempt(tenantCtx(), SubmitAttemptRequest{
		SessionID:      "session-1",
		StudentID:      "student-1",
		QuestionID:     "q-1",
		SelectedOption: "A",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPracticeServiceSubmitAttemptUsageFailureIsAdvisory(t *testing.T) {
	sessions := &sessionRepoStub{sessions: map[string]*models.PracticeSession{
		"session-1": {ID: "session-1", TopicID: "topic-1", Status: models.SessionStatusActive},
	}}
	questions := &questionReaderStub{
		questions: map[string]*models.Question{"q-1": {ID: "q-1", CorrectOption: "A"}},
		usageErr:  errors.New("usage table locked"),
	}
	service := newPracticeService(sessions, &attemptWriterStub{}, &masteryStoreStub{}, questions)

	_, err := service.SubmitAttempt(tenantCtx(), SubmitAttemptRequest{
		SessionID:      "session-1",
		StudentID:      "student-1",
		QuestionID:     "q-1",
		SelectedOption: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, questions.usageCalls)
}

func TestPracticeServiceRecordParticipationIsolatesFailures(t *testing.T) {
	sessions := &sessionRepoStub{sessions: map[string]*models.PracticeSession{
		"session-1": {ID: "session-1", TopicID: "topic-1", Status: models.SessionStatusActive},
	}}
	mastery := &masteryStoreStub{failFor: map[string]error{"student-2": errors.New("conflict")}}
	service := newPracticeService(sessions, &attemptWriterStub{}, mastery, &questionReaderStub{})

	result, err := service.RecordParticipation(tenantCtx(), RecordParticipationRequest{
		SessionID: "session-1",
		Entries: []ParticipationEntry{
			{StudentID: "student-1", Status: models.ParticipationParticipated},
			{StudentID: "student-2", Status: models.ParticipationExcusedAbsent},
			{StudentID: "student-3", Status: models.ParticipationUnexcusedAbsent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "student-2", result.Failures[0].StudentID)

	require.Len(t, mastery.deltas, 2)
	first := mastery.deltas[0]
	assert.Equal(t, 1, first.SessionsScheduled)
	assert.Equal(t, 1, first.SessionsParticipated)
	assert.Equal(t, 0, first.TotalAttempts)
	second := mastery.deltas[1]
	assert.Equal(t, 1, second.UnexcusedAbsences)
	assert.Nil(t, second.StreakOutcome)
}

func TestPracticeServiceGetTopicMasteryZeroRow(t *testing.T) {
	service := newPracticeService(&sessionRepoStub{}, &attemptWriterStub{}, &masteryStoreStub{}, &questionReaderStub{})

	mastery, err := service.GetTopicMastery(tenantCtx(), "student-1", "topic-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, mastery.MasteryPercent)
	assert.Equal(t, 0, mastery.TotalAttempts)
	assert.Equal(t, "student-1", mastery.StudentID)
}

func TestPracticeServiceCloseSessionNotActive(t *testing.T) {
	sessions := &sessionRepoStub{
		sessions:    map[string]*models.PracticeSession{"session-1": {ID: "session-1", Status: models.SessionStatusClosed}},
		statusMoved: false,
	}
	service := newPracticeService(sessions, &attemptWriterStub{}, &masteryStoreStub{}, &questionReaderStub{})

	err := service.CloseSession(tenantCtx(), "session-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = service.CloseSession(tenantCtx(), "session-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
