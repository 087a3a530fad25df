package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/tenancy"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
)

// Mastery thresholds driving the intervention ladder. A topic at or above
// revisionCeiling needs nothing.
const (
	remedialCeiling = 40.0
	extraCeiling    = 60.0
	revisionCeiling = 75.0
)

type recommendationRepo interface {
	InsertBatch(ctx context.Context, recs []models.AdaptiveRecommendation) error
	FindByID(ctx context.Context, tenantID, id string) (*models.AdaptiveRecommendation, error)
	MarkActioned(ctx context.Context, tenantID, id, actorID string) (bool, error)
	List(ctx context.Context, tenantID string, filter models.RecommendationFilter) ([]models.AdaptiveRecommendation, int, error)
}

// RecommendationService derives per-topic interventions from topic mastery
// and manages their actioning lifecycle. Rows are append-only: repeated
// generation over the same chapter inserts fresh rows rather than deduping,
// so the history of advice survives.
type RecommendationService struct {
	recommendations recommendationRepo
	curriculum      curriculumReader
	mastery         masteryStore
	logger          *zap.Logger
	metrics         *MetricsService
}

// NewRecommendationService constructs RecommendationService.
func NewRecommendationService(recommendations recommendationRepo, curriculum curriculumReader, mastery masteryStore, logger *zap.Logger, metrics *MetricsService) *RecommendationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecommendationService{
		recommendations: recommendations,
		curriculum:      curriculum,
		mastery:         mastery,
		logger:          logger,
		metrics:         metrics,
	}
}

// GenerateForChapter walks every topic of the chapter and appends one
// recommendation per topic below the revision ceiling. A topic with no
// mastery row counts as zero mastery. Returns the number of rows inserted.
func (s *RecommendationService) GenerateForChapter(ctx context.Context, studentID, chapterID, evaluationID string) (int, error) {
	if studentID == "" || chapterID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "student and chapter are required")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return 0, err
	}

	topicIDs, err := s.curriculum.ChapterTopicIDs(ctx, tenantID, chapterID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve chapter topics")
	}
	if len(topicIDs) == 0 {
		return 0, nil
	}

	rows, err := s.mastery.ListByStudentTopics(ctx, tenantID, studentID, topicIDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic mastery")
	}
	masteryByTopic := make(map[string]float64, len(rows))
	for _, row := range rows {
		masteryByTopic[row.TopicID] = row.MasteryPercent
	}

	var evalRef *string
	if evaluationID != "" {
		evalRef = &evaluationID
	}

	var recs []models.AdaptiveRecommendation
	for _, topicID := range topicIDs {
		mastery := masteryByTopic[topicID]
		recType, priority, ok := classifyMastery(mastery)
		if !ok {
			continue
		}
		recs = append(recs, models.AdaptiveRecommendation{
			TenantID:       tenantID,
			StudentID:      studentID,
			TopicID:        topicID,
			EvaluationID:   evalRef,
			Type:           recType,
			Priority:       priority,
			MasteryPercent: mastery,
			Reason:         fmt.Sprintf("topic mastery at %.2f%%", mastery),
		})
	}
	if len(recs) == 0 {
		return 0, nil
	}

	if err := s.recommendations.InsertBatch(ctx, recs); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store recommendations")
	}
	s.metrics.RecordRecommendations(len(recs))
	s.logger.Info("recommendations generated",
		zap.String("student_id", studentID),
		zap.String("chapter_id", chapterID),
		zap.Int("count", len(recs)))
	return len(recs), nil
}

// ActionRecommendation marks a recommendation as handled by the acting user.
// Actioning is one-way; a second attempt is a validation error.
func (s *RecommendationService) ActionRecommendation(ctx context.Context, recommendationID string) (*models.AdaptiveRecommendation, error) {
	if recommendationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recommendation id is required")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := s.recommendations.FindByID(ctx, tenantID, recommendationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recommendation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recommendation")
	}
	if rec.Actioned {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recommendation already actioned")
	}

	actorID, ok := tenancy.ActorFromContext(ctx)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor missing from context")
	}
	moved, err := s.recommendations.MarkActioned(ctx, tenantID, recommendationID, actorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to action recommendation")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recommendation already actioned")
	}

	rec, err = s.recommendations.FindByID(ctx, tenantID, recommendationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload recommendation")
	}
	return rec, nil
}

// ListRecommendations lists recommendations for the tenant, high priority
// first.
func (s *RecommendationService) ListRecommendations(ctx context.Context, filter models.RecommendationFilter) ([]models.AdaptiveRecommendation, *models.Pagination, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	recs, total, err := s.recommendations.List(ctx, tenantID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recommendations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return recs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// classifyMastery maps a mastery percentage onto the intervention ladder.
// ok is false at or above the revision ceiling.
func classifyMastery(mastery float64) (models.RecommendationType, models.RecommendationPriority, bool) {
	switch {
	case mastery < remedialCeiling:
		return models.RecommendationRemedialClass, models.RecommendationPriorityHigh, true
	case mastery < extraCeiling:
		return models.RecommendationExtraDailyLoop, models.RecommendationPriorityMedium, true
	case mastery < revisionCeiling:
		return models.RecommendationRevision, models.RecommendationPriorityLow, true
	default:
		return "", "", false
	}
}
