package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/dto"
	"github.com/classforge/mastery-engine/internal/models"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/export"
)

type weeklyTestRepoStub struct {
	tests       map[string]*models.WeeklyTest
	questions   map[string][]models.WeeklyTestQuestion
	replaced    []models.WeeklyTestQuestion
	statusFrom  models.WeeklyTestStatus
	statusTo    models.WeeklyTestStatus
	statusCalls int
	refreshed   int
}

func (s *weeklyTestRepoStub) Create(ctx context.Context, test *models.WeeklyTest) error {
	test.ID = "test-1"
	if s.tests == nil {
		s.tests = map[string]*models.WeeklyTest{}
	}
	s.tests[test.ID] = test
	return nil
}

func (s *weeklyTestRepoStub) FindByID(ctx context.Context, tenantID, id string) (*models.WeeklyTest, error) {
	if test, ok := s.tests[id]; ok {
		return test, nil
	}
	return nil, sql.ErrNoRows
}

func (s *weeklyTestRepoStub) List(ctx context.Context, tenantID string, filter models.WeeklyTestFilter) ([]models.WeeklyTest, int, error) {
	return nil, 0, nil
}

func (s *weeklyTestRepoStub) UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.WeeklyTestStatus) (bool, error) {
	s.statusCalls++
	s.statusFrom = from
	s.statusTo = to
	test, ok := s.tests[id]
	if !ok || test.Status != from {
		return false, nil
	}
	test.Status = to
	return true, nil
}

func (s *weeklyTestRepoStub) RefreshAggregates(ctx context.Context, tenantID, id string) error {
	s.refreshed++
	return nil
}

func (s *weeklyTestRepoStub) ReplaceQuestions(ctx context.Context, tenantID, testID string, questions []models.WeeklyTestQuestion) error {
	s.replaced = questions
	if s.questions == nil {
		s.questions = map[string][]models.WeeklyTestQuestion{}
	}
	s.questions[testID] = questions
	return nil
}

func (s *weeklyTestRepoStub) ListQuestions(ctx context.Context, tenantID, testID string) ([]models.WeeklyTestQuestion, error) {
	return s.questions[testID], nil
}

type weeklyResultRepoStub struct {
	inserted     []*models.WeeklyTestResult
	existing     map[string]bool
	performances []*models.WeeklyStudentPerformance
	results      []models.WeeklyTestResult
	perfRows     []models.WeeklyStudentPerformance
}

func (s *weeklyResultRepoStub) Insert(ctx context.Context, result *models.WeeklyTestResult) error {
	result.ID = fmt.Sprintf("result-%d", len(s.inserted)+1)
	s.inserted = append(s.inserted, result)
	if s.existing == nil {
		s.existing = map[string]bool{}
	}
	s.existing[result.StudentID] = true
	return nil
}

func (s *weeklyResultRepoStub) Exists(ctx context.Context, tenantID, testID, studentID string) (bool, error) {
	return s.existing[studentID], nil
}

func (s *weeklyResultRepoStub) ListByTest(ctx context.Context, tenantID, testID string) ([]models.WeeklyTestResult, error) {
	return s.results, nil
}

func (s *weeklyResultRepoStub) UpsertPerformance(ctx context.Context, perf *models.WeeklyStudentPerformance) error {
	s.performances = append(s.performances, perf)
	return nil
}

func (s *weeklyResultRepoStub) ListPerformanceByTest(ctx context.Context, tenantID, testID string) ([]models.WeeklyStudentPerformance, error) {
	return s.perfRows, nil
}

type classifierStub struct {
	pools        *models.StrengthPools
	err          error
	refreshCalls int
	lastRefresh  ClassifyRequest
}

func (s *classifierStub) ClassifyClassPools(ctx context.Context, req ClassifyRequest) (*models.StrengthPools, error) {
	return s.pools, s.err
}

func (s *classifierStub) EnqueueRefresh(ctx context.Context, req ClassifyRequest) {
	s.refreshCalls++
	s.lastRefresh = req
}

type questionTopicReaderStub struct {
	byID     []models.Question
	approved []models.Question
	usage    [][]string
}

func (s *questionTopicReaderStub) ListByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Question, error) {
	return s.byID, nil
}

func (s *questionTopicReaderStub) ListApprovedForTopics(ctx context.Context, tenantID string, topicIDs []string, excludeIDs []string, limit int) ([]models.Question, error) {
	if limit < len(s.approved) {
		return s.approved[:limit], nil
	}
	return s.approved, nil
}

func (s *questionTopicReaderStub) IncrementUsage(ctx context.Context, tenantID string, ids []string) error {
	s.usage = append(s.usage, ids)
	return nil
}

type rendererStub struct {
	layouts []export.PaperLayout
}

func (s *rendererStub) Render(layout export.PaperLayout) ([]byte, error) {
	s.layouts = append(s.layouts, layout)
	return []byte("%PDF"), nil
}

type datasetRendererStub struct {
	datasets []export.Dataset
}

func (s *datasetRendererStub) Render(data export.Dataset) ([]byte, error) {
	s.datasets = append(s.datasets, data)
	return []byte("csv"), nil
}

func poolOf(prefix string, n int) []models.PoolQuestion {
	out := make([]models.PoolQuestion, n)
	for i := range out {
		out[i] = models.PoolQuestion{QuestionID: fmt.Sprintf("%s-%d", prefix, i+1), TopicID: "t-1"}
	}
	return out
}

func weeklyFixture(status models.WeeklyTestStatus) *models.WeeklyTest {
	return &models.WeeklyTest{
		ID:              "test-1",
		TenantID:        "school-1",
		ClassID:         "class-1",
		SectionID:       "section-a",
		SubjectID:       "math",
		TopicIDs:        pq.StringArray{"t-1", "t-2"},
		WeekStart:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		WeekEnd:         time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
		StrongPercent:   40,
		WeakPercent:     60,
		TotalQuestions:  20,
		TotalMarks:      100,
		DurationMinutes: 60,
		Status:          status,
	}
}

func newWeeklyService(tests *weeklyTestRepoStub, results *weeklyResultRepoStub, classifier *classifierStub, questions *questionTopicReaderStub, mastery *masteryStoreStub) *WeeklyTestService {
	return NewWeeklyTestService(tests, results, classifier, questions, mastery, &rendererStub{}, &datasetRendererStub{}, nil, zap.NewNop(), nil, 20, 100, 60)
}

func TestWeeklyTestServiceCreateRejectsBadSplit(t *testing.T) {
	service := newWeeklyService(&weeklyTestRepoStub{}, &weeklyResultRepoStub{}, &classifierStub{}, &questionTopicReaderStub{}, &masteryStoreStub{})

	_, err := service.CreateTest(tenantCtx(), CreateWeeklyTestRequest{
		ClassID:   "class-1",
		SectionID: "section-a",
		SubjectID: "math",
		TopicIDs:  []string{"t-1"},
		WeekStart: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		WeekEnd:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
		// 50 + 40: does not sum to 100.
		StrongPercent: 50,
		WeakPercent:   40,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWeeklyTestServiceGeneratePaperFullPools(t *testing.T) {
	tests := &weeklyTestRepoStub{tests: map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusCreated)}}
	classifier := &classifierStub{pools: &models.StrengthPools{
		Strong: poolOf("strong", 10),
		Weak:   poolOf("weak", 15),
	}}
	questions := &questionTopicReaderStub{}
	service := newWeeklyService(tests, &weeklyResultRepoStub{}, classifier, questions, &masteryStoreStub{})

	seed := int64(7)
	result, err := service.GeneratePaper(tenantCtx(), "test-1", dto.GeneratePaperOptions{Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, 20, result.TotalSelected)
	assert.Equal(t, 8, result.StrongCount)
	assert.Equal(t, 12, result.WeakCount)
	assert.Equal(t, 0, result.ModerateCount)
	assert.Empty(t, result.Warnings)

	require.Len(t, tests.replaced, 20)
	for i, q := range tests.replaced {
		assert.Equal(t, i+1, q.Position)
		assert.Equal(t, 5.0, q.Marks)
	}
	require.Len(t, questions.usage, 1)
	assert.Len(t, questions.usage[0], 20)
}

func TestWeeklyTestServiceGeneratePaperModerateFallback(t *testing.T) {
	tests := &weeklyTestRepoStub{tests: map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusCreated)}}
	classifier := &classifierStub{pools: &models.StrengthPools{
		Strong:   poolOf("strong", 5),
		Weak:     poolOf("weak", 12),
		Moderate: poolOf("moderate", 10),
	}}
	service := newWeeklyService(tests, &weeklyResultRepoStub{}, classifier, &questionTopicReaderStub{}, &masteryStoreStub{})

	seed := int64(7)
	result, err := service.GeneratePaper(tenantCtx(), "test-1", dto.GeneratePaperOptions{Seed: &seed, IncludeModerateFallback: true})
	require.NoError(t, err)
	assert.Equal(t, 20, result.TotalSelected)
	assert.Equal(t, 5, result.StrongCount)
	assert.Equal(t, 12, result.WeakCount)
	assert.Equal(t, 3, result.ModerateCount)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "strong pool short")
}

func TestWeeklyTestServiceGeneratePaperBankBackfill(t *testing.T) {
	tests := &weeklyTestRepoStub{tests: map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusCreated)}}
	classifier := &classifierStub{pools: &models.StrengthPools{
		Strong: poolOf("strong", 4),
		Weak:   poolOf("weak", 10),
	}}
	bank := make([]models.Question, 10)
	for i := range bank {
		bank[i] = models.Question{ID: fmt.Sprintf("bank-%d", i+1), TopicID: "t-2"}
	}
	questions := &questionTopicReaderStub{approved: bank}
	service := newWeeklyService(tests, &weeklyResultRepoStub{}, classifier, questions, &masteryStoreStub{})

	seed := int64(7)
	result, err := service.GeneratePaper(tenantCtx(), "test-1", dto.GeneratePaperOptions{Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, 20, result.TotalSelected)
	assert.Equal(t, 6, result.ModerateCount)
	assert.Contains(t, result.Warnings, "backfilled 6 questions from the question bank")
}

func TestWeeklyTestServiceGeneratePaperRequiresCreatedStatus(t *testing.T) {
	tests := &weeklyTestRepoStub{tests: map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusConducted)}}
	service := newWeeklyService(tests, &weeklyResultRepoStub{}, &classifierStub{}, &questionTopicReaderStub{}, &masteryStoreStub{})

	_, err := service.GeneratePaper(tenantCtx(), "test-1", dto.GeneratePaperOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func paperFixture() []models.WeeklyTestQuestion {
	questions := make([]models.WeeklyTestQuestion, 0, 10)
	for i := 1; i <= 4; i++ {
		questions = append(questions, models.WeeklyTestQuestion{QuestionID: fmt.Sprintf("s-%d", i), Position: i, Strength: models.StrengthStrong, Marks: 10})
	}
	for i := 5; i <= 10; i++ {
		questions = append(questions, models.WeeklyTestQuestion{QuestionID: fmt.Sprintf("w-%d", i), Position: i, Strength: models.StrengthWeak, Marks: 10})
	}
	return questions
}

func TestWeeklyTestServiceSubmitResultBreakdown(t *testing.T) {
	test := weeklyFixture(models.WeeklyTestStatusConducted)
	test.AverageScore = 50
	tests := &weeklyTestRepoStub{
		tests:     map[string]*models.WeeklyTest{"test-1": test},
		questions: map[string][]models.WeeklyTestQuestion{"test-1": paperFixture()},
	}
	results := &weeklyResultRepoStub{}
	mastery := &masteryStoreStub{}
	service := newWeeklyService(tests, results, &classifierStub{}, &questionTopicReaderStub{}, mastery)

	result, err := service.SubmitResult(tenantCtx(), SubmitWeeklyResultRequest{
		TestID:         "test-1",
		StudentID:      "student-1",
		TotalMarks:     100,
		ObtainedMarks:  70,
		WrongPositions: []int{2, 6, 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, result.Percentage)

	require.Len(t, results.performances, 1)
	perf := results.performances[0]
	assert.Equal(t, 4, perf.StrongTotal)
	assert.Equal(t, 3, perf.StrongCorrect)
	assert.Equal(t, 75.0, perf.StrongAccuracy)
	assert.Equal(t, 6, perf.WeakTotal)
	assert.Equal(t, 4, perf.WeakCorrect)
	assert.Equal(t, 66.67, perf.WeakAccuracy)
	assert.Equal(t, 10, perf.OverallTotal)
	assert.Equal(t, 7, perf.OverallCorrect)
	// Overall accuracy 70 against a prior test average of 50.
	assert.Equal(t, 20.0, perf.MasteryDelta)

	require.Len(t, mastery.deltas, 2)
	for _, delta := range mastery.deltas {
		assert.Equal(t, 10, delta.TotalAttempts)
		assert.Equal(t, 7, delta.CorrectAttempts)
		assert.Nil(t, delta.StreakOutcome)
		require.NotNil(t, delta.LastActivityDate)
		assert.True(t, delta.LastActivityDate.Equal(test.WeekEnd))
	}
	assert.Equal(t, 1, tests.refreshed)
}

func TestWeeklyTestServiceSubmitResultGuards(t *testing.T) {
	test := weeklyFixture(models.WeeklyTestStatusCreated)
	tests := &weeklyTestRepoStub{tests: map[string]*models.WeeklyTest{"test-1": test}}
	service := newWeeklyService(tests, &weeklyResultRepoStub{}, &classifierStub{}, &questionTopicReaderStub{}, &masteryStoreStub{})

	_, err := service.SubmitResult(tenantCtx(), SubmitWeeklyResultRequest{
		TestID: "test-1", StudentID: "student-1", TotalMarks: 100, ObtainedMarks: 50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	test.Status = models.WeeklyTestStatusConducted
	tests.questions = map[string][]models.WeeklyTestQuestion{"test-1": paperFixture()}

	_, err = service.SubmitResult(tenantCtx(), SubmitWeeklyResultRequest{
		TestID: "test-1", StudentID: "student-1", TotalMarks: 100, ObtainedMarks: 120,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = service.SubmitResult(tenantCtx(), SubmitWeeklyResultRequest{
		TestID: "test-1", StudentID: "student-1", TotalMarks: 100, ObtainedMarks: 50, WrongPositions: []int{99},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWeeklyTestServiceSubmitResultDuplicate(t *testing.T) {
	tests := &weeklyTestRepoStub{
		tests:     map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusConducted)},
		questions: map[string][]models.WeeklyTestQuestion{"test-1": paperFixture()},
	}
	results := &weeklyResultRepoStub{existing: map[string]bool{"student-1": true}}
	service := newWeeklyService(tests, results, &classifierStub{}, &questionTopicReaderStub{}, &masteryStoreStub{})

	_, err := service.SubmitResult(tenantCtx(), SubmitWeeklyResultRequest{
		TestID: "test-1", StudentID: "student-1", TotalMarks: 100, ObtainedMarks: 50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErrors.FromError(err).Code)
}

func TestWeeklyTestServiceSubmitResultsBulk(t *testing.T) {
	tests := &weeklyTestRepoStub{
		tests:     map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusConducted)},
		questions: map[string][]models.WeeklyTestQuestion{"test-1": paperFixture()},
	}
	results := &weeklyResultRepoStub{existing: map[string]bool{"student-2": true}}
	classifier := &classifierStub{}
	service := newWeeklyService(tests, results, classifier, &questionTopicReaderStub{}, &masteryStoreStub{})

	outcome, err := service.SubmitResultsBulk(tenantCtx(), BulkWeeklyResultsRequest{
		TestID: "test-1",
		Results: []BulkWeeklyResultItem{
			{StudentID: "student-1", TotalMarks: 100, ObtainedMarks: 80},
			{StudentID: "student-2", TotalMarks: 100, ObtainedMarks: 60},
			{StudentID: "student-3", TotalMarks: 100, ObtainedMarks: 40},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.SuccessCount)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "student-2", outcome.Failures[0].StudentID)

	assert.Equal(t, models.WeeklyTestStatusEvaluated, tests.tests["test-1"].Status)
	assert.Equal(t, 1, classifier.refreshCalls)
	assert.Equal(t, "class-1", classifier.lastRefresh.ClassID)
}

func TestWeeklyTestServiceSubmitResultsBulkAlreadyEvaluated(t *testing.T) {
	tests := &weeklyTestRepoStub{
		tests:     map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusEvaluated)},
		questions: map[string][]models.WeeklyTestQuestion{"test-1": paperFixture()},
	}
	results := &weeklyResultRepoStub{}
	service := newWeeklyService(tests, results, &classifierStub{}, &questionTopicReaderStub{}, &masteryStoreStub{})

	outcome, err := service.SubmitResultsBulk(tenantCtx(), BulkWeeklyResultsRequest{
		TestID: "test-1",
		Results: []BulkWeeklyResultItem{
			{StudentID: "student-4", TotalMarks: 100, ObtainedMarks: 70},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.SuccessCount)
	assert.Empty(t, outcome.Failures)
	assert.Equal(t, models.WeeklyTestStatusEvaluated, tests.tests["test-1"].Status)
}

func TestWeeklyTestServiceRenderPaperOmitsStrength(t *testing.T) {
	tests := &weeklyTestRepoStub{
		tests: map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusConducted)},
		questions: map[string][]models.WeeklyTestQuestion{"test-1": {
			{QuestionID: "q-1", Position: 1, Strength: models.StrengthWeak, Marks: 5},
		}},
	}
	questions := &questionTopicReaderStub{byID: []models.Question{
		{ID: "q-1", Text: "What is 2 + 2?", Options: pq.StringArray{"3", "4"}},
	}}
	pdf := &rendererStub{}
	service := NewWeeklyTestService(tests, &weeklyResultRepoStub{}, &classifierStub{}, questions, &masteryStoreStub{}, pdf, &datasetRendererStub{}, nil, zap.NewNop(), nil, 20, 100, 60)

	out, err := service.RenderPaper(tenantCtx(), "test-1")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	require.Len(t, pdf.layouts, 1)
	layout := pdf.layouts[0]
	assert.Equal(t, "Weekly Consolidation Test", layout.Title)
	require.Len(t, layout.Questions, 1)
	assert.Contains(t, layout.Questions[0].Text, "What is 2 + 2?")
	assert.Contains(t, layout.Questions[0].Text, "B. 4")
	assert.NotContains(t, layout.Questions[0].Text, "WEAK")
}

func TestWeeklyTestServiceExportScoreSheet(t *testing.T) {
	tests := &weeklyTestRepoStub{tests: map[string]*models.WeeklyTest{"test-1": weeklyFixture(models.WeeklyTestStatusEvaluated)}}
	results := &weeklyResultRepoStub{
		results: []models.WeeklyTestResult{
			{StudentID: "student-1", TotalMarks: 100, ObtainedMarks: 70, Percentage: 70},
		},
		perfRows: []models.WeeklyStudentPerformance{
			{StudentID: "student-1", StrongAccuracy: 75, WeakAccuracy: 66.67, ModerateAccuracy: 0},
		},
	}
	csv := &datasetRendererStub{}
	service := NewWeeklyTestService(tests, results, &classifierStub{}, &questionTopicReaderStub{}, &masteryStoreStub{}, &rendererStub{}, csv, nil, zap.NewNop(), nil, 20, 100, 60)

	out, err := service.ExportScoreSheet(tenantCtx(), "test-1")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	require.Len(t, csv.datasets, 1)
	require.Len(t, csv.datasets[0].Rows, 1)
	assert.Equal(t, "student-1", csv.datasets[0].Rows[0][0])
	assert.Equal(t, "75.00", csv.datasets[0].Rows[0][4])
}
