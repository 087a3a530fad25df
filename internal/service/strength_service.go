package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/models"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/jobs"
)

// Accuracy thresholds shared by every strength bucketing in the engine.
const (
	strongThreshold = 70.0
	weakThreshold   = 40.0
)

type accuracyReader interface {
	ClassQuestionAccuracy(ctx context.Context, tenantID, classID string, topicIDs []string, from, to time.Time) ([]models.PoolQuestion, error)
	StudentQuestionAccuracy(ctx context.Context, tenantID, studentID, topicID string) ([]models.PoolQuestion, error)
}

// ClassifyRequest scopes a class-wide pool classification.
type ClassifyRequest struct {
	ClassID  string    `json:"class_id" validate:"required"`
	TopicIDs []string  `json:"topic_ids" validate:"required,min=1"`
	From     time.Time `json:"from" validate:"required"`
	To       time.Time `json:"to" validate:"required"`
}

// PoolRefreshJob is the payload of a queued classifier re-warm.
type PoolRefreshJob struct {
	TenantID string
	ClassID  string
	TopicIDs []string
	From     time.Time
	To       time.Time
}

// StrengthService classifies question pools by observed accuracy. It is a
// pure read layer over historical attempts; the only state it touches is its
// own cache.
type StrengthService struct {
	attempts  accuracyReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	queue     *jobs.Queue
}

// NewStrengthService constructs StrengthService.
func NewStrengthService(attempts accuracyReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *StrengthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrengthService{
		attempts:  attempts,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// UseQueue attaches the background re-warm queue. Without a queue,
// EnqueueRefresh is a no-op.
func (s *StrengthService) UseQueue(queue *jobs.Queue) {
	s.queue = queue
}

// ClassifyClassPools buckets every question the class attempted in the
// window into exactly one of strong, moderate, weak. Results are served from
// cache when fresh enough; cache failures degrade to a recompute.
func (s *StrengthService) ClassifyClassPools(ctx context.Context, req ClassifyRequest) (*models.StrengthPools, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid classify payload")
	}
	if !req.To.After(req.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classification window must end after it starts")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	key := poolCacheKey(tenantID, req)
	var cached models.StrengthPools
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	pools, err := s.computeClassPools(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, pools, 0); err != nil {
		s.logger.Warn("pool cache write failed", zap.String("class_id", req.ClassID), zap.Error(err))
	}
	return pools, nil
}

// StudentPools buckets one student's attempted questions under a topic.
func (s *StrengthService) StudentPools(ctx context.Context, studentID, topicID string) (*models.StrengthPools, error) {
	if studentID == "" || topicID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and topic are required")
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.attempts.StudentQuestionAccuracy(ctx, tenantID, studentID, topicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate student accuracy")
	}
	pools := bucketPools(rows)
	return &pools, nil
}

// EnqueueRefresh schedules a best-effort background recompute of the cached
// class pools. Ingestion paths call this after new evidence lands; failures
// are logged and never surfaced.
func (s *StrengthService) EnqueueRefresh(ctx context.Context, req ClassifyRequest) {
	if s.queue == nil {
		return
	}
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return
	}
	job := jobs.Job{
		Type: "pool-refresh",
		Payload: PoolRefreshJob{
			TenantID: tenantID,
			ClassID:  req.ClassID,
			TopicIDs: req.TopicIDs,
			From:     req.From,
			To:       req.To,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("pool refresh enqueue failed", zap.String("class_id", req.ClassID), zap.Error(err))
	}
}

// HandleRefreshJob recomputes pools and re-warms the cache. Wired as the
// handler of the pool-refresh queue.
func (s *StrengthService) HandleRefreshJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(PoolRefreshJob)
	if !ok {
		return fmt.Errorf("pool refresh job %s has unexpected payload", job.ID)
	}
	req := ClassifyRequest{ClassID: payload.ClassID, TopicIDs: payload.TopicIDs, From: payload.From, To: payload.To}
	pools, err := s.computeClassPools(ctx, payload.TenantID, req)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, poolCacheKey(payload.TenantID, req), pools, 0)
}

func (s *StrengthService) computeClassPools(ctx context.Context, tenantID string, req ClassifyRequest) (*models.StrengthPools, error) {
	rows, err := s.attempts.ClassQuestionAccuracy(ctx, tenantID, req.ClassID, req.TopicIDs, req.From, req.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate class accuracy")
	}
	pools := bucketPools(rows)
	return &pools, nil
}

// bucketPools assigns every attempted question to exactly one strength
// bucket: accuracy >= 70 strong, >= 40 moderate, below that weak.
func bucketPools(rows []models.PoolQuestion) models.StrengthPools {
	var pools models.StrengthPools
	for _, row := range rows {
		if row.Attempts <= 0 {
			continue
		}
		row.Accuracy = round2(100 * float64(row.Correct) / float64(row.Attempts))
		switch {
		case row.Accuracy >= strongThreshold:
			pools.Strong = append(pools.Strong, row)
		case row.Accuracy >= weakThreshold:
			pools.Moderate = append(pools.Moderate, row)
		default:
			pools.Weak = append(pools.Weak, row)
		}
	}
	return pools
}

func poolCacheKey(tenantID string, req ClassifyRequest) string {
	topics := append([]string(nil), req.TopicIDs...)
	sort.Strings(topics)
	return fmt.Sprintf("pools:%s:%s:%s:%s:%s",
		tenantID, req.ClassID, strings.Join(topics, ","),
		req.From.UTC().Format("2006-01-02"), req.To.UTC().Format("2006-01-02"))
}
