package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/dto"
	"github.com/classforge/mastery-engine/internal/models"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/export"
)

type weeklyTestRepo interface {
	Create(ctx context.Context, test *models.WeeklyTest) error
	FindByID(ctx context.Context, tenantID, id string) (*models.WeeklyTest, error)
	List(ctx context.Context, tenantID string, filter models.WeeklyTestFilter) ([]models.WeeklyTest, int, error)
	UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.WeeklyTestStatus) (bool, error)
	RefreshAggregates(ctx context.Context, tenantID, id string) error
	ReplaceQuestions(ctx context.Context, tenantID, testID string, questions []models.WeeklyTestQuestion) error
	ListQuestions(ctx context.Context, tenantID, testID string) ([]models.WeeklyTestQuestion, error)
}

type weeklyResultRepo interface {
	Insert(ctx context.Context, result *models.WeeklyTestResult) error
	Exists(ctx context.Context, tenantID, testID, studentID string) (bool, error)
	ListByTest(ctx context.Context, tenantID, testID string) ([]models.WeeklyTestResult, error)
	UpsertPerformance(ctx context.Context, perf *models.WeeklyStudentPerformance) error
	ListPerformanceByTest(ctx context.Context, tenantID, testID string) ([]models.WeeklyStudentPerformance, error)
}

type classPoolClassifier interface {
	ClassifyClassPools(ctx context.Context, req ClassifyRequest) (*models.StrengthPools, error)
	EnqueueRefresh(ctx context.Context, req ClassifyRequest)
}

type questionTopicReader interface {
	ListByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Question, error)
	ListApprovedForTopics(ctx context.Context, tenantID string, topicIDs []string, excludeIDs []string, limit int) ([]models.Question, error)
	IncrementUsage(ctx context.Context, tenantID string, ids []string) error
}

type paperRenderer interface {
	Render(layout export.PaperLayout) ([]byte, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// CreateWeeklyTestRequest configures a weekly consolidation test.
type CreateWeeklyTestRequest struct {
	ClassID         string    `json:"class_id" validate:"required"`
	SectionID       string    `json:"section_id" validate:"required"`
	SubjectID       string    `json:"subject_id" validate:"required"`
	TopicIDs        []string  `json:"topic_ids" validate:"required,min=1"`
	WeekStart       time.Time `json:"week_start" validate:"required"`
	WeekEnd         time.Time `json:"week_end" validate:"required"`
	StrongPercent   int       `json:"strong_percent" validate:"min=0,max=100"`
	WeakPercent     int       `json:"weak_percent" validate:"min=0,max=100"`
	TotalQuestions  int       `json:"total_questions" validate:"omitempty,min=1"`
	TotalMarks      float64   `json:"total_marks" validate:"omitempty,gt=0"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=1"`
}

// SubmitWeeklyResultRequest is one manually marked result for a conducted
// weekly test.
type SubmitWeeklyResultRequest struct {
	TestID             string  `json:"test_id" validate:"required"`
	StudentID          string  `json:"student_id" validate:"required"`
	TotalMarks         float64 `json:"total_marks" validate:"gt=0"`
	ObtainedMarks      float64 `json:"obtained_marks" validate:"min=0"`
	AttemptedPositions []int   `json:"attempted_positions"`
	WrongPositions     []int   `json:"wrong_positions"`
}

// BulkWeeklyResultsRequest carries one submission per student.
type BulkWeeklyResultsRequest struct {
	TestID  string                 `json:"test_id" validate:"required"`
	Results []BulkWeeklyResultItem `json:"results" validate:"required,min=1,dive"`
}

// BulkWeeklyResultItem is one student's entry inside a bulk submission.
type BulkWeeklyResultItem struct {
	StudentID          string  `json:"student_id" validate:"required"`
	TotalMarks         float64 `json:"total_marks" validate:"gt=0"`
	ObtainedMarks      float64 `json:"obtained_marks" validate:"min=0"`
	AttemptedPositions []int   `json:"attempted_positions"`
	WrongPositions     []int   `json:"wrong_positions"`
}

// WeeklyTestService generates strength-balanced weekly papers and processes
// their manually marked results.
type WeeklyTestService struct {
	tests      weeklyTestRepo
	results    weeklyResultRepo
	classifier classPoolClassifier
	questions  questionTopicReader
	mastery    masteryStore
	pdf        paperRenderer
	csv        datasetRenderer
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *MetricsService

	defaultQuestionCount   int
	defaultTotalMarks      float64
	defaultDurationMinutes int
}

// NewWeeklyTestService constructs WeeklyTestService.
func NewWeeklyTestService(tests weeklyTestRepo, results weeklyResultRepo, classifier classPoolClassifier, questions questionTopicReader, mastery masteryStore, pdf paperRenderer, csv datasetRenderer, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, defaultQuestionCount int, defaultTotalMarks float64, defaultDurationMinutes int) *WeeklyTestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultQuestionCount <= 0 {
		defaultQuestionCount = 20
	}
	if defaultTotalMarks <= 0 {
		defaultTotalMarks = 100
	}
	if defaultDurationMinutes <= 0 {
		defaultDurationMinutes = 60
	}
	return &WeeklyTestService{
		tests:                  tests,
		results:                results,
		classifier:             classifier,
		questions:              questions,
		mastery:                mastery,
		pdf:                    pdf,
		csv:                    csv,
		validator:              validate,
		logger:                 logger,
		metrics:                metrics,
		defaultQuestionCount:   defaultQuestionCount,
		defaultTotalMarks:      defaultTotalMarks,
		defaultDurationMinutes: defaultDurationMinutes,
	}
}

// CreateTest stores a CREATED weekly test after validating the split.
func (s *WeeklyTestService) CreateTest(ctx context.Context, req CreateWeeklyTestRequest) (*models.WeeklyTest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weekly test payload")
	}
	if req.StrongPercent+req.WeakPercent != 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "strong and weak percent must sum to 100")
	}
	if !req.WeekEnd.After(req.WeekStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "week must end after it starts")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	totalQuestions := req.TotalQuestions
	if totalQuestions <= 0 {
		totalQuestions = s.defaultQuestionCount
	}
	totalMarks := req.TotalMarks
	if totalMarks <= 0 {
		totalMarks = s.defaultTotalMarks
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = s.defaultDurationMinutes
	}

	test := &models.WeeklyTest{
		TenantID:        tenantID,
		ClassID:         req.ClassID,
		SectionID:       req.SectionID,
		SubjectID:       req.SubjectID,
		TopicIDs:        pq.StringArray(req.TopicIDs),
		WeekStart:       req.WeekStart,
		WeekEnd:         req.WeekEnd,
		StrongPercent:   req.StrongPercent,
		WeakPercent:     req.WeakPercent,
		TotalQuestions:  totalQuestions,
		TotalMarks:      totalMarks,
		DurationMinutes: duration,
		Status:          models.WeeklyTestStatusCreated,
	}
	if err := s.tests.Create(ctx, test); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create weekly test")
	}
	return test, nil
}

// GetTest fetches one weekly test.
func (s *WeeklyTestService) GetTest(ctx context.Context, testID string) (*models.WeeklyTest, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.findTest(ctx, tenantID, testID)
}

// ListTests lists weekly tests for the tenant.
func (s *WeeklyTestService) ListTests(ctx context.Context, filter models.WeeklyTestFilter) ([]models.WeeklyTest, *models.Pagination, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	tests, total, err := s.tests.List(ctx, tenantID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list weekly tests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return tests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetPaper returns the generated paper in position order.
func (s *WeeklyTestService) GetPaper(ctx context.Context, testID string) ([]models.WeeklyTestQuestion, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.findTest(ctx, tenantID, testID); err != nil {
		return nil, err
	}
	questions, err := s.tests.ListQuestions(ctx, tenantID, testID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list paper questions")
	}
	return questions, nil
}

// GeneratePaper assembles the test paper from the classifier's class-wide
// pools, honouring the configured strong/weak split. Pool shortfalls are
// reported as warnings and backfilled, never raised as errors; regeneration
// replaces any previously generated set.
func (s *WeeklyTestService) GeneratePaper(ctx context.Context, testID string, opts dto.GeneratePaperOptions) (*dto.GeneratePaperResult, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	test, err := s.findTest(ctx, tenantID, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != models.WeeklyTestStatusCreated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "paper can only be generated while the test is in CREATED status")
	}

	pools, err := s.classifier.ClassifyClassPools(ctx, ClassifyRequest{
		ClassID:  test.ClassID,
		TopicIDs: []string(test.TopicIDs),
		From:     test.WeekStart,
		To:       test.WeekEnd,
	})
	if err != nil {
		return nil, err
	}

	rng := newRand(opts.Seed)
	strongNeeded := test.TotalQuestions * test.StrongPercent / 100
	weakNeeded := test.TotalQuestions - strongNeeded

	var warnings []string
	strong := samplePool(rng, pools.Strong, strongNeeded)
	if len(strong) < strongNeeded {
		warnings = append(warnings, fmt.Sprintf("strong pool short: wanted %d, found %d", strongNeeded, len(strong)))
	}
	weak := samplePool(rng, pools.Weak, weakNeeded)
	if len(weak) < weakNeeded {
		warnings = append(warnings, fmt.Sprintf("weak pool short: wanted %d, found %d", weakNeeded, len(weak)))
	}

	selected := make(map[string]bool, test.TotalQuestions)
	for _, q := range strong {
		selected[q.QuestionID] = true
	}
	for _, q := range weak {
		selected[q.QuestionID] = true
	}

	var moderate []models.PoolQuestion
	shortfall := test.TotalQuestions - len(strong) - len(weak)
	if shortfall > 0 && opts.IncludeModerateFallback {
		available := make([]models.PoolQuestion, 0, len(pools.Moderate))
		for _, q := range pools.Moderate {
			if !selected[q.QuestionID] {
				available = append(available, q)
			}
		}
		moderate = samplePool(rng, available, shortfall)
		for _, q := range moderate {
			selected[q.QuestionID] = true
		}
		shortfall -= len(moderate)
	}

	if shortfall > 0 {
		exclude := make([]string, 0, len(selected))
		for id := range selected {
			exclude = append(exclude, id)
		}
		extra, err := s.questions.ListApprovedForTopics(ctx, tenantID, []string(test.TopicIDs), exclude, shortfall)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to backfill from question bank")
		}
		if len(extra) > 0 {
			warnings = append(warnings, fmt.Sprintf("backfilled %d questions from the question bank", len(extra)))
		}
		for _, q := range extra {
			moderate = append(moderate, models.PoolQuestion{QuestionID: q.ID, TopicID: q.TopicID})
			selected[q.ID] = true
		}
		shortfall -= len(extra)
	}
	if shortfall > 0 {
		warnings = append(warnings, fmt.Sprintf("paper short by %d questions after backfill", shortfall))
	}

	type pick struct {
		questionID string
		strength   models.QuestionStrength
	}
	picks := make([]pick, 0, len(selected))
	for _, q := range strong {
		picks = append(picks, pick{q.QuestionID, models.StrengthStrong})
	}
	for _, q := range weak {
		picks = append(picks, pick{q.QuestionID, models.StrengthWeak})
	}
	for _, q := range moderate {
		picks = append(picks, pick{q.QuestionID, models.StrengthModerate})
	}

	if opts.Shuffle {
		rng.Shuffle(len(picks), func(i, j int) { picks[i], picks[j] = picks[j], picks[i] })
	}

	marks := round2(test.TotalMarks / float64(test.TotalQuestions))
	questions := make([]models.WeeklyTestQuestion, 0, len(picks))
	strongCount, weakCount, moderateCount := 0, 0, 0
	for i, p := range picks {
		questions = append(questions, models.WeeklyTestQuestion{
			QuestionID: p.questionID,
			Position:   i + 1,
			Strength:   p.strength,
			Marks:      marks,
		})
		switch p.strength {
		case models.StrengthStrong:
			strongCount++
		case models.StrengthWeak:
			weakCount++
		default:
			moderateCount++
		}
	}

	if err := s.tests.ReplaceQuestions(ctx, tenantID, testID, questions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated paper")
	}
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.QuestionID
	}
	if err := s.questions.IncrementUsage(ctx, tenantID, ids); err != nil {
		s.logger.Warn("paper usage increment failed", zap.String("test_id", testID), zap.Error(err))
	}

	s.metrics.RecordPaperGenerated("weekly")
	s.logger.Info("weekly paper generated",
		zap.String("test_id", testID),
		zap.Int("selected", len(questions)),
		zap.Int("strong", strongCount),
		zap.Int("weak", weakCount),
		zap.Int("moderate", moderateCount),
		zap.Strings("warnings", warnings))

	return &dto.GeneratePaperResult{
		TotalSelected: len(questions),
		StrongCount:   strongCount,
		WeakCount:     weakCount,
		ModerateCount: moderateCount,
		Warnings:      warnings,
	}, nil
}

// MarkConducted moves a CREATED test with a generated paper to CONDUCTED.
func (s *WeeklyTestService) MarkConducted(ctx context.Context, testID string) error {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := s.findTest(ctx, tenantID, testID); err != nil {
		return err
	}
	questions, err := s.tests.ListQuestions(ctx, tenantID, testID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect paper")
	}
	if len(questions) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "a paper must be generated before the test is conducted")
	}
	moved, err := s.tests.UpdateStatusIf(ctx, tenantID, testID, models.WeeklyTestStatusCreated, models.WeeklyTestStatusConducted)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark test conducted")
	}
	if !moved {
		return appErrors.Clone(appErrors.ErrValidation, "test is not in CREATED status")
	}
	return nil
}

// SubmitResult ingests one student's marked result, derives the per-strength
// breakdown and folds the overall counts into topic mastery.
func (s *WeeklyTestService) SubmitResult(ctx context.Context, req SubmitWeeklyResultRequest) (*models.WeeklyTestResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	test, err := s.findTest(ctx, tenantID, req.TestID)
	if err != nil {
		return nil, err
	}
	if test.Status == models.WeeklyTestStatusCreated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "test has not been conducted yet")
	}
	if req.ObtainedMarks > req.TotalMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "obtained marks exceed total marks")
	}

	exists, err := s.results.Exists(ctx, tenantID, req.TestID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing result")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "result already submitted for student")
	}

	questions, err := s.tests.ListQuestions(ctx, tenantID, req.TestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load paper")
	}
	if len(questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "test has no generated paper")
	}
	positions := make(map[int]models.QuestionStrength, len(questions))
	for _, q := range questions {
		positions[q.Position] = q.Strength
	}
	for _, p := range req.WrongPositions {
		if _, ok := positions[p]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("wrong position %d not on the paper", p))
		}
	}

	result := &models.WeeklyTestResult{
		TenantID:           tenantID,
		TestID:             req.TestID,
		StudentID:          req.StudentID,
		TotalMarks:         req.TotalMarks,
		ObtainedMarks:      req.ObtainedMarks,
		Percentage:         round2(100 * req.ObtainedMarks / req.TotalMarks),
		AttemptedPositions: toInt64Array(req.AttemptedPositions),
		WrongPositions:     toInt64Array(req.WrongPositions),
	}
	if err := s.results.Insert(ctx, result); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "result already submitted for student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store result")
	}

	perf := buildPerformance(tenantID, test, req.StudentID, questions, req.WrongPositions)
	if err := s.results.UpsertPerformance(ctx, perf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store performance breakdown")
	}

	// Weekly evidence feeds the same cumulative mastery counters as daily
	// attempts, attributed to every topic the test covered.
	activity := test.WeekEnd
	for _, topicID := range test.TopicIDs {
		delta := models.TopicMasteryDelta{
			TenantID:         tenantID,
			StudentID:        req.StudentID,
			TopicID:          topicID,
			TotalAttempts:    perf.OverallTotal,
			CorrectAttempts:  perf.OverallCorrect,
			LastActivityDate: &activity,
		}
		if err := s.mastery.ApplyDelta(ctx, delta); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mastery")
		}
	}

	if err := s.tests.RefreshAggregates(ctx, tenantID, req.TestID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh test aggregates")
	}
	s.metrics.RecordResultIngested("weekly")
	return result, nil
}

// SubmitResultsBulk ingests a batch of results with per-item isolation and
// marks the test EVALUATED once at least one result landed.
func (s *WeeklyTestService) SubmitResultsBulk(ctx context.Context, req BulkWeeklyResultsRequest) (*dto.BulkSubmitResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	test, err := s.findTest(ctx, tenantID, req.TestID)
	if err != nil {
		return nil, err
	}

	result := &dto.BulkSubmitResult{}
	for _, item := range req.Results {
		_, err := s.SubmitResult(ctx, SubmitWeeklyResultRequest{
			TestID:             req.TestID,
			StudentID:          item.StudentID,
			TotalMarks:         item.TotalMarks,
			ObtainedMarks:      item.ObtainedMarks,
			AttemptedPositions: item.AttemptedPositions,
			WrongPositions:     item.WrongPositions,
		})
		if err != nil {
			result.Failures = append(result.Failures, dto.BulkFailure{StudentID: item.StudentID, Reason: err.Error()})
			continue
		}
		result.SuccessCount++
	}

	if result.SuccessCount > 0 {
		moved, err := s.tests.UpdateStatusIf(ctx, tenantID, req.TestID, models.WeeklyTestStatusConducted, models.WeeklyTestStatusEvaluated)
		if err != nil {
			s.logger.Warn("failed to mark test evaluated", zap.String("test_id", req.TestID), zap.Error(err))
		} else if !moved {
			s.logger.Debug("test already evaluated, status unchanged", zap.String("test_id", req.TestID))
		}
		s.classifier.EnqueueRefresh(ctx, ClassifyRequest{
			ClassID:  test.ClassID,
			TopicIDs: []string(test.TopicIDs),
			From:     test.WeekStart,
			To:       test.WeekEnd,
		})
	}
	return result, nil
}

// RenderPaper produces the printable question paper for offline conduction.
// Strength tags never appear on the printout.
func (s *WeeklyTestService) RenderPaper(ctx context.Context, testID string) ([]byte, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	test, err := s.findTest(ctx, tenantID, testID)
	if err != nil {
		return nil, err
	}
	questions, err := s.tests.ListQuestions(ctx, tenantID, testID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load paper")
	}
	if len(questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "test has no generated paper")
	}

	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.QuestionID
	}
	content, err := s.questions.ListByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question content")
	}
	byID := make(map[string]models.Question, len(content))
	for _, q := range content {
		byID[q.ID] = q
	}

	layout := export.PaperLayout{
		Title:           "Weekly Consolidation Test",
		SubjectLabel:    fmt.Sprintf("Subject: %s", test.SubjectID),
		ClassLabel:      fmt.Sprintf("Class: %s", test.ClassID),
		DurationMinutes: test.DurationMinutes,
		TotalMarks:      test.TotalMarks,
		Instructions: []string{
			"Answer all questions.",
			"Each question carries the marks shown beside it.",
			"Choose exactly one option per question.",
		},
	}
	for _, q := range questions {
		text := fmt.Sprintf("question %s", q.QuestionID)
		if c, ok := byID[q.QuestionID]; ok {
			text = formatQuestionText(c)
		}
		layout.Questions = append(layout.Questions, export.PaperQuestion{
			Position: q.Position,
			Text:     text,
			Marks:    q.Marks,
		})
	}
	return s.pdf.Render(layout)
}

// ExportScoreSheet renders a CSV of per-student results with the strength
// breakdown for the conducted test.
func (s *WeeklyTestService) ExportScoreSheet(ctx context.Context, testID string) ([]byte, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.findTest(ctx, tenantID, testID); err != nil {
		return nil, err
	}
	results, err := s.results.ListByTest(ctx, tenantID, testID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load results")
	}
	perfs, err := s.results.ListPerformanceByTest(ctx, tenantID, testID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance rows")
	}
	perfByStudent := make(map[string]models.WeeklyStudentPerformance, len(perfs))
	for _, p := range perfs {
		perfByStudent[p.StudentID] = p
	}

	data := export.Dataset{
		Headers: []string{"student_id", "total_marks", "obtained_marks", "percentage", "strong_accuracy", "weak_accuracy", "moderate_accuracy"},
	}
	for _, r := range results {
		row := []string{
			r.StudentID,
			fmt.Sprintf("%.2f", r.TotalMarks),
			fmt.Sprintf("%.2f", r.ObtainedMarks),
			fmt.Sprintf("%.2f", r.Percentage),
			"", "", "",
		}
		if p, ok := perfByStudent[r.StudentID]; ok {
			row[4] = fmt.Sprintf("%.2f", p.StrongAccuracy)
			row[5] = fmt.Sprintf("%.2f", p.WeakAccuracy)
			row[6] = fmt.Sprintf("%.2f", p.ModerateAccuracy)
		}
		data.Rows = append(data.Rows, row)
	}
	return s.csv.Render(data)
}

func (s *WeeklyTestService) findTest(ctx context.Context, tenantID, testID string) (*models.WeeklyTest, error) {
	test, err := s.tests.FindByID(ctx, tenantID, testID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "weekly test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly test")
	}
	return test, nil
}

// buildPerformance derives the per-strength breakdown: a question counts as
// correct iff its position is absent from wrongPositions. mastery_delta is
// the student's overall accuracy minus the test average before this
// submission landed.
func buildPerformance(tenantID string, test *models.WeeklyTest, studentID string, questions []models.WeeklyTestQuestion, wrongPositions []int) *models.WeeklyStudentPerformance {
	wrong := make(map[int]bool, len(wrongPositions))
	for _, p := range wrongPositions {
		wrong[p] = true
	}

	perf := &models.WeeklyStudentPerformance{
		TenantID:  tenantID,
		TestID:    test.ID,
		StudentID: studentID,
	}
	for _, q := range questions {
		correct := !wrong[q.Position]
		perf.OverallTotal++
		if correct {
			perf.OverallCorrect++
		}
		switch q.Strength {
		case models.StrengthStrong:
			perf.StrongTotal++
			if correct {
				perf.StrongCorrect++
			}
		case models.StrengthWeak:
			perf.WeakTotal++
			if correct {
				perf.WeakCorrect++
			}
		default:
			perf.ModerateTotal++
			if correct {
				perf.ModerateCorrect++
			}
		}
	}
	perf.StrongAccuracy = accuracyOf(perf.StrongCorrect, perf.StrongTotal)
	perf.WeakAccuracy = accuracyOf(perf.WeakCorrect, perf.WeakTotal)
	perf.ModerateAccuracy = accuracyOf(perf.ModerateCorrect, perf.ModerateTotal)

	overall := accuracyOf(perf.OverallCorrect, perf.OverallTotal)
	perf.MasteryDelta = round2(overall - test.AverageScore)
	return perf
}

func accuracyOf(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(100 * float64(correct) / float64(total))
}

// samplePool draws up to n questions from the pool without replacement.
func samplePool(rng *rand.Rand, pool []models.PoolQuestion, n int) []models.PoolQuestion {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	shuffled := append([]models.PoolQuestion(nil), pool...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

func newRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func toInt64Array(values []int) pq.Int64Array {
	out := make(pq.Int64Array, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func formatQuestionText(q models.Question) string {
	if len(q.Options) == 0 {
		return q.Text
	}
	lines := make([]string, 0, len(q.Options)+1)
	lines = append(lines, q.Text)
	for i, opt := range q.Options {
		lines = append(lines, fmt.Sprintf("%c. %s", 'A'+i, opt))
	}
	return strings.Join(lines, "\n")
}
