package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/dto"
	"github.com/classforge/mastery-engine/internal/models"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/export"
)

// Weights of the combined mastery blend.
const (
	dailyWeight  = 0.30
	weeklyWeight = 0.30
	lessonWeight = 0.40
)

type lessonEvaluationRepo interface {
	Create(ctx context.Context, eval *models.LessonEvaluation) error
	FindByID(ctx context.Context, tenantID, id string) (*models.LessonEvaluation, error)
	List(ctx context.Context, tenantID string, filter models.LessonEvaluationFilter) ([]models.LessonEvaluation, int, error)
	UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.EvaluationStatus) (bool, error)
	RefreshAggregates(ctx context.Context, tenantID, id string) error
	ReplaceQuestions(ctx context.Context, tenantID, evaluationID string, questions []models.LessonEvaluationQuestion) error
	ListQuestions(ctx context.Context, tenantID, evaluationID string) ([]models.LessonEvaluationQuestion, error)
}

type lessonResultRepo interface {
	Insert(ctx context.Context, result *models.LessonEvaluationResult) error
	Exists(ctx context.Context, tenantID, evaluationID, studentID string) (bool, error)
	FindByEvaluationStudent(ctx context.Context, tenantID, evaluationID, studentID string) (*models.LessonEvaluationResult, error)
	ListByEvaluation(ctx context.Context, tenantID, evaluationID string) ([]models.LessonEvaluationResult, error)
	InsertSnapshot(ctx context.Context, snapshot *models.LessonMasterySnapshot) error
	ListSnapshots(ctx context.Context, tenantID, studentID, chapterID string) ([]models.LessonMasterySnapshot, error)
}

type curriculumReader interface {
	LessonPlanTopicIDs(ctx context.Context, tenantID, lessonPlanID string) ([]string, error)
	ChapterTopicIDs(ctx context.Context, tenantID, chapterID string) ([]string, error)
}

type weeklySignalReader interface {
	StudentEvaluatedPercentages(ctx context.Context, tenantID, studentID string, topicIDs []string) ([]float64, error)
}

type chapterRecommender interface {
	GenerateForChapter(ctx context.Context, studentID, chapterID, evaluationID string) (int, error)
}

// CreateLessonEvaluationRequest configures a chapter-level test over a
// lesson plan's topics.
type CreateLessonEvaluationRequest struct {
	LessonPlanID    string    `json:"lesson_plan_id" validate:"required"`
	ChapterID       string    `json:"chapter_id"`
	ClassID         string    `json:"class_id" validate:"required"`
	SectionID       string    `json:"section_id" validate:"required"`
	SubjectID       string    `json:"subject_id" validate:"required"`
	ScheduledDate   time.Time `json:"scheduled_date" validate:"required"`
	TotalQuestions  int       `json:"total_questions" validate:"omitempty,min=1"`
	TotalMarks      float64   `json:"total_marks" validate:"omitempty,gt=0"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=1"`
}

// SubmitLessonResultRequest is one student's outcome for an evaluation.
// ObtainedMarks is required for participants, ignored for excused absentees
// and forced to zero for unexcused ones.
type SubmitLessonResultRequest struct {
	EvaluationID   string                     `json:"evaluation_id" validate:"required"`
	StudentID      string                     `json:"student_id" validate:"required"`
	Participation  models.ParticipationStatus `json:"participation" validate:"required,oneof=PARTICIPATED EXCUSED_ABSENT UNEXCUSED_ABSENT"`
	ObtainedMarks  *float64                   `json:"obtained_marks" validate:"omitempty,min=0"`
	WrongPositions []int                      `json:"wrong_positions"`
}

// BulkLessonResultsRequest carries one submission per student.
type BulkLessonResultsRequest struct {
	EvaluationID string                 `json:"evaluation_id" validate:"required"`
	Results      []BulkLessonResultItem `json:"results" validate:"required,min=1,dive"`
}

// BulkLessonResultItem is one student's entry inside a bulk submission.
type BulkLessonResultItem struct {
	StudentID      string                     `json:"student_id" validate:"required"`
	Participation  models.ParticipationStatus `json:"participation" validate:"required,oneof=PARTICIPATED EXCUSED_ABSENT UNEXCUSED_ABSENT"`
	ObtainedMarks  *float64                   `json:"obtained_marks" validate:"omitempty,min=0"`
	WrongPositions []int                      `json:"wrong_positions"`
}

// SubmitLessonResultResponse pairs the stored result with the combined
// mastery computed when the evaluation is chapter-linked.
type SubmitLessonResultResponse struct {
	Result   *models.LessonEvaluationResult `json:"result"`
	Combined *dto.CombinedMasteryResult     `json:"combined,omitempty"`
}

// LessonEvaluationService generates chapter-level papers, processes their
// results and blends daily, weekly and lesson evidence into combined mastery.
type LessonEvaluationService struct {
	evaluations lessonEvaluationRepo
	results     lessonResultRepo
	curriculum  curriculumReader
	weekly      weeklySignalReader
	mastery     masteryStore
	questions   questionTopicReader
	recommender chapterRecommender
	pdf         paperRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService

	defaultQuestionCount   int
	defaultTotalMarks      float64
	defaultDurationMinutes int
}

// NewLessonEvaluationService constructs LessonEvaluationService.
func NewLessonEvaluationService(evaluations lessonEvaluationRepo, results lessonResultRepo, curriculum curriculumReader, weekly weeklySignalReader, mastery masteryStore, questions questionTopicReader, recommender chapterRecommender, pdf paperRenderer, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, defaultQuestionCount int, defaultTotalMarks float64, defaultDurationMinutes int) *LessonEvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultQuestionCount <= 0 {
		defaultQuestionCount = 15
	}
	if defaultTotalMarks <= 0 {
		defaultTotalMarks = 100
	}
	if defaultDurationMinutes <= 0 {
		defaultDurationMinutes = 45
	}
	return &LessonEvaluationService{
		evaluations:            evaluations,
		results:                results,
		curriculum:             curriculum,
		weekly:                 weekly,
		mastery:                mastery,
		questions:              questions,
		recommender:            recommender,
		pdf:                    pdf,
		validator:              validate,
		logger:                 logger,
		metrics:                metrics,
		defaultQuestionCount:   defaultQuestionCount,
		defaultTotalMarks:      defaultTotalMarks,
		defaultDurationMinutes: defaultDurationMinutes,
	}
}

// CreateEvaluation stores a CREATED evaluation. The chapter link is optional;
// without it, results are stored but never feed combined mastery.
func (s *LessonEvaluationService) CreateEvaluation(ctx context.Context, req CreateLessonEvaluationRequest) (*models.LessonEvaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
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
	var chapterID *string
	if req.ChapterID != "" {
		chapterID = &req.ChapterID
	}

	eval := &models.LessonEvaluation{
		TenantID:        tenantID,
		LessonPlanID:    req.LessonPlanID,
		ChapterID:       chapterID,
		ClassID:         req.ClassID,
		SectionID:       req.SectionID,
		SubjectID:       req.SubjectID,
		ScheduledDate:   req.ScheduledDate,
		TotalQuestions:  totalQuestions,
		TotalMarks:      totalMarks,
		DurationMinutes: duration,
		Status:          models.EvaluationStatusCreated,
	}
	if err := s.evaluations.Create(ctx, eval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create evaluation")
	}
	return eval, nil
}

// GetEvaluation fetches one evaluation.
func (s *LessonEvaluationService) GetEvaluation(ctx context.Context, evaluationID string) (*models.LessonEvaluation, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.findEvaluation(ctx, tenantID, evaluationID)
}

// ListEvaluations lists evaluations for the tenant.
func (s *LessonEvaluationService) ListEvaluations(ctx context.Context, filter models.LessonEvaluationFilter) ([]models.LessonEvaluation, *models.Pagination, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	evals, total, err := s.evaluations.List(ctx, tenantID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return evals, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetPaper returns the generated paper in position order.
func (s *LessonEvaluationService) GetPaper(ctx context.Context, evaluationID string) ([]models.LessonEvaluationQuestion, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.findEvaluation(ctx, tenantID, evaluationID); err != nil {
		return nil, err
	}
	questions, err := s.evaluations.ListQuestions(ctx, tenantID, evaluationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list paper questions")
	}
	return questions, nil
}

// GeneratePaper assembles the evaluation paper from the lesson plan's topic
// set. All questions are plain content questions, tagged by topic for the
// per-topic breakdown; there is no strength split here.
func (s *LessonEvaluationService) GeneratePaper(ctx context.Context, evaluationID string, opts dto.GeneratePaperOptions) (*dto.LessonPaperResult, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	eval, err := s.findEvaluation(ctx, tenantID, evaluationID)
	if err != nil {
		return nil, err
	}
	if eval.Status != models.EvaluationStatusCreated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "paper can only be generated while the evaluation is in CREATED status")
	}

	topicIDs, err := s.curriculum.LessonPlanTopicIDs(ctx, tenantID, eval.LessonPlanID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson plan topics")
	}
	if len(topicIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson plan has no topics")
	}

	candidates, err := s.questions.ListApprovedForTopics(ctx, tenantID, topicIDs, nil, eval.TotalQuestions)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved questions")
	}

	var warnings []string
	if len(candidates) < eval.TotalQuestions {
		warnings = append(warnings, fmt.Sprintf("question bank short: wanted %d, found %d", eval.TotalQuestions, len(candidates)))
	}

	if opts.Shuffle {
		rng := newRand(opts.Seed)
		rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	}

	marks := round2(eval.TotalMarks / float64(eval.TotalQuestions))
	questions := make([]models.LessonEvaluationQuestion, 0, len(candidates))
	topicsSeen := make(map[string]bool)
	for i, q := range candidates {
		topicID := q.TopicID
		questions = append(questions, models.LessonEvaluationQuestion{
			QuestionID: q.ID,
			Position:   i + 1,
			TopicID:    &topicID,
			Marks:      marks,
		})
		topicsSeen[q.TopicID] = true
	}

	if err := s.evaluations.ReplaceQuestions(ctx, tenantID, evaluationID, questions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated paper")
	}
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.QuestionID
	}
	if err := s.questions.IncrementUsage(ctx, tenantID, ids); err != nil {
		s.logger.Warn("paper usage increment failed", zap.String("evaluation_id", evaluationID), zap.Error(err))
	}

	s.metrics.RecordPaperGenerated("lesson")
	return &dto.LessonPaperResult{
		TotalSelected: len(questions),
		TopicsCovered: len(topicsSeen),
		Warnings:      warnings,
	}, nil
}

// MarkConducted moves a CREATED evaluation with a generated paper to
// CONDUCTED.
func (s *LessonEvaluationService) MarkConducted(ctx context.Context, evaluationID string) error {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := s.findEvaluation(ctx, tenantID, evaluationID); err != nil {
		return err
	}
	questions, err := s.evaluations.ListQuestions(ctx, tenantID, evaluationID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect paper")
	}
	if len(questions) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "a paper must be generated before the evaluation is conducted")
	}
	moved, err := s.evaluations.UpdateStatusIf(ctx, tenantID, evaluationID, models.EvaluationStatusCreated, models.EvaluationStatusConducted)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark evaluation conducted")
	}
	if !moved {
		return appErrors.Clone(appErrors.ErrValidation, "evaluation is not in CREATED status")
	}
	return nil
}

// SubmitResult ingests one student's outcome. Excused absences store a null
// score and stay out of every aggregate; unexcused absences store zero and
// count. Chapter-linked evaluations trigger combined mastery for students
// who sat (or skipped without excuse).
func (s *LessonEvaluationService) SubmitResult(ctx context.Context, req SubmitLessonResultRequest) (*SubmitLessonResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	eval, err := s.findEvaluation(ctx, tenantID, req.EvaluationID)
	if err != nil {
		return nil, err
	}
	if eval.Status == models.EvaluationStatusCreated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evaluation has not been conducted yet")
	}

	exists, err := s.results.Exists(ctx, tenantID, req.EvaluationID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing result")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "result already submitted for student")
	}

	result := &models.LessonEvaluationResult{
		TenantID:       tenantID,
		EvaluationID:   req.EvaluationID,
		StudentID:      req.StudentID,
		Participation:  req.Participation,
		TotalMarks:     eval.TotalMarks,
		WrongPositions: toInt64Array(req.WrongPositions),
	}
	switch req.Participation {
	case models.ParticipationParticipated:
		if req.ObtainedMarks == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "obtained marks required for a participant")
		}
		if *req.ObtainedMarks > eval.TotalMarks {
			return nil, appErrors.Clone(appErrors.ErrValidation, "obtained marks exceed total marks")
		}
		obtained := *req.ObtainedMarks
		pct := round2(100 * obtained / eval.TotalMarks)
		result.ObtainedMarks = &obtained
		result.Percentage = &pct
	case models.ParticipationUnexcusedAbsent:
		zero := 0.0
		result.ObtainedMarks = &zero
		result.Percentage = &zero
	case models.ParticipationExcusedAbsent:
		// Score stays NULL so the row never reaches an average.
	}

	if err := s.results.Insert(ctx, result); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "result already submitted for student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store result")
	}

	if eval.ChapterID != nil && req.Participation == models.ParticipationExcusedAbsent {
		if err := s.recordAbsence(ctx, tenantID, req.StudentID, *eval.ChapterID, true); err != nil {
			s.logger.Warn("excused absence counters not updated", zap.String("student_id", req.StudentID), zap.Error(err))
		}
	}
	if eval.ChapterID != nil && req.Participation == models.ParticipationUnexcusedAbsent {
		if err := s.recordAbsence(ctx, tenantID, req.StudentID, *eval.ChapterID, false); err != nil {
			s.logger.Warn("unexcused absence counters not updated", zap.String("student_id", req.StudentID), zap.Error(err))
		}
	}

	if err := s.evaluations.RefreshAggregates(ctx, tenantID, req.EvaluationID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh evaluation aggregates")
	}
	s.metrics.RecordResultIngested("lesson")

	response := &SubmitLessonResultResponse{Result: result}
	if eval.ChapterID != nil && req.Participation != models.ParticipationExcusedAbsent {
		combined, err := s.CalculateCombinedMastery(ctx, req.StudentID, *eval.ChapterID, req.EvaluationID)
		if err != nil {
			return nil, err
		}
		response.Combined = combined
	}
	return response, nil
}

// SubmitResultsBulk ingests a batch with per-item isolation and marks the
// evaluation EVALUATED once at least one result landed.
func (s *LessonEvaluationService) SubmitResultsBulk(ctx context.Context, req BulkLessonResultsRequest) (*dto.BulkSubmitResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.findEvaluation(ctx, tenantID, req.EvaluationID); err != nil {
		return nil, err
	}

	result := &dto.BulkSubmitResult{}
	for _, item := range req.Results {
		_, err := s.SubmitResult(ctx, SubmitLessonResultRequest{
			EvaluationID:   req.EvaluationID,
			StudentID:      item.StudentID,
			Participation:  item.Participation,
			ObtainedMarks:  item.ObtainedMarks,
			WrongPositions: item.WrongPositions,
		})
		if err != nil {
			result.Failures = append(result.Failures, dto.BulkFailure{StudentID: item.StudentID, Reason: err.Error()})
			continue
		}
		result.SuccessCount++
	}

	if result.SuccessCount > 0 {
		if _, err := s.evaluations.UpdateStatusIf(ctx, tenantID, req.EvaluationID, models.EvaluationStatusConducted, models.EvaluationStatusEvaluated); err != nil {
			s.logger.Warn("failed to mark evaluation evaluated", zap.String("evaluation_id", req.EvaluationID), zap.Error(err))
		}
	}
	return result, nil
}

// CalculateCombinedMastery blends the three mastery signals for a
// (student, chapter) and persists an immutable snapshot:
// 0.30 daily + 0.30 weekly + 0.40 lesson. The weekly component is a real
// aggregation over the student's evaluated weekly tests covering the
// chapter, not a copy of the daily signal.
func (s *LessonEvaluationService) CalculateCombinedMastery(ctx context.Context, studentID, chapterID, evaluationID string) (*dto.CombinedMasteryResult, error) {
	if studentID == "" || chapterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and chapter are required")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	topicIDs, err := s.curriculum.ChapterTopicIDs(ctx, tenantID, chapterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve chapter topics")
	}

	daily := 0.0
	if len(topicIDs) > 0 {
		rows, err := s.mastery.ListByStudentTopics(ctx, tenantID, studentID, topicIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic mastery")
		}
		daily = meanMastery(rows)
	}

	weekly := 0.0
	if len(topicIDs) > 0 {
		percentages, err := s.weekly.StudentEvaluatedPercentages(ctx, tenantID, studentID, topicIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly results")
		}
		weekly = meanOf(percentages)
	}

	lesson := 0.0
	if evaluationID != "" {
		result, err := s.results.FindByEvaluationStudent(ctx, tenantID, evaluationID, studentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation result")
		}
		if result != nil && result.Percentage != nil {
			lesson = *result.Percentage
		}
	}

	combined := round2(dailyWeight*daily + weeklyWeight*weekly + lessonWeight*lesson)

	snapshot := &models.LessonMasterySnapshot{
		TenantID:        tenantID,
		StudentID:       studentID,
		ChapterID:       chapterID,
		EvaluationID:    evaluationID,
		DailyMastery:    round2(daily),
		WeeklyMastery:   round2(weekly),
		LessonMastery:   round2(lesson),
		CombinedMastery: combined,
	}
	if err := s.results.InsertSnapshot(ctx, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store mastery snapshot")
	}

	recCount, err := s.recommender.GenerateForChapter(ctx, studentID, chapterID, evaluationID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("combined mastery captured",
		zap.String("student_id", studentID),
		zap.String("chapter_id", chapterID),
		zap.Float64("combined", combined),
		zap.Int("recommendations", recCount))

	return &dto.CombinedMasteryResult{
		SnapshotID:             snapshot.ID,
		DailyMastery:           snapshot.DailyMastery,
		WeeklyMastery:          snapshot.WeeklyMastery,
		LessonMastery:          snapshot.LessonMastery,
		CombinedMastery:        snapshot.CombinedMastery,
		RecommendationsCreated: recCount,
	}, nil
}

// ListSnapshots returns the student's combined mastery history for a chapter.
func (s *LessonEvaluationService) ListSnapshots(ctx context.Context, studentID, chapterID string) ([]models.LessonMasterySnapshot, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.results.ListSnapshots(ctx, tenantID, studentID, chapterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list snapshots")
	}
	return snapshots, nil
}

// RenderPaper produces the printable evaluation paper.
func (s *LessonEvaluationService) RenderPaper(ctx context.Context, evaluationID string) ([]byte, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	eval, err := s.findEvaluation(ctx, tenantID, evaluationID)
	if err != nil {
		return nil, err
	}
	questions, err := s.evaluations.ListQuestions(ctx, tenantID, evaluationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load paper")
	}
	if len(questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evaluation has no generated paper")
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
		Title:           "Lesson Evaluation",
		SubjectLabel:    fmt.Sprintf("Subject: %s", eval.SubjectID),
		ClassLabel:      fmt.Sprintf("Class: %s", eval.ClassID),
		DurationMinutes: eval.DurationMinutes,
		TotalMarks:      eval.TotalMarks,
		Instructions: []string{
			"Answer all questions.",
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

func (s *LessonEvaluationService) findEvaluation(ctx context.Context, tenantID, evaluationID string) (*models.LessonEvaluation, error) {
	eval, err := s.evaluations.FindByID(ctx, tenantID, evaluationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson evaluation")
	}
	return eval, nil
}

// recordAbsence bumps the participation counters on every chapter topic.
// Attempt counters never move here, so mastery_percent is untouched.
func (s *LessonEvaluationService) recordAbsence(ctx context.Context, tenantID, studentID, chapterID string, excused bool) error {
	topicIDs, err := s.curriculum.ChapterTopicIDs(ctx, tenantID, chapterID)
	if err != nil {
		return err
	}
	for _, topicID := range topicIDs {
		delta := models.TopicMasteryDelta{
			TenantID:          tenantID,
			StudentID:         studentID,
			TopicID:           topicID,
			SessionsScheduled: 1,
		}
		if excused {
			delta.ExcusedAbsences = 1
		} else {
			delta.UnexcusedAbsences = 1
		}
		if err := s.mastery.ApplyDelta(ctx, delta); err != nil {
			return err
		}
	}
	return nil
}

// meanMastery averages mastery_percent over the topics that have evidence.
func meanMastery(rows []models.TopicMastery) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, row := range rows {
		sum += row.MasteryPercent
	}
	return sum / float64(len(rows))
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
