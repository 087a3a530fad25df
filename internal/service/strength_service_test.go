package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/models"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
)

type accuracyReaderStub struct {
	classRows   []models.PoolQuestion
	studentRows []models.PoolQuestion
	classCalls  int
	err         error
}

func (s *accuracyReaderStub) ClassQuestionAccuracy(ctx context.Context, tenantID, classID string, topicIDs []string, from, to time.Time) ([]models.PoolQuestion, error) {
	s.classCalls++
	return s.classRows, s.err
}

func (s *accuracyReaderStub) StudentQuestionAccuracy(ctx context.Context, tenantID, studentID, topicID string) ([]models.PoolQuestion, error) {
	return s.studentRows, s.err
}

type cacheRepoStub struct {
	getErr error
	setErr error
	sets   int
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	return appErrors.ErrCacheMiss
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.sets++
	return s.setErr
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	return nil
}

func classifyWindow() (time.Time, time.Time) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 5)
}

func TestBucketPoolsThresholds(t *testing.T) {
	pools := bucketPools([]models.PoolQuestion{
		{QuestionID: "q-strong", Attempts: 10, Correct: 7},
		{QuestionID: "q-moderate-high", Attempts: 10, Correct: 6},
		{QuestionID: "q-moderate-low", Attempts: 10, Correct: 4},
		{QuestionID: "q-weak", Attempts: 10, Correct: 3},
		{QuestionID: "q-unattempted", Attempts: 0, Correct: 0},
	})

	require.Len(t, pools.Strong, 1)
	assert.Equal(t, "q-strong", pools.Strong[0].QuestionID)
	assert.Equal(t, 70.0, pools.Strong[0].Accuracy)

	require.Len(t, pools.Moderate, 2)
	assert.Equal(t, 40.0, pools.Moderate[1].Accuracy)

	require.Len(t, pools.Weak, 1)
	assert.Equal(t, 30.0, pools.Weak[0].Accuracy)

	assert.Equal(t, 4, pools.Size())
}

func TestPoolCacheKeyTopicOrderInsensitive(t *testing.T) {
	from, to := classifyWindow()
	a := poolCacheKey("school-1", ClassifyRequest{ClassID: "class-1", TopicIDs: []string{"t-2", "t-1"}, From: from, To: to})
	b := poolCacheKey("school-1", ClassifyRequest{ClassID: "class-1", TopicIDs: []string{"t-1", "t-2"}, From: from, To: to})
	assert.Equal(t, a, b)
}

func TestStrengthServiceClassifyRejectsEmptyWindow(t *testing.T) {
	service := NewStrengthService(&accuracyReaderStub{}, nil, nil, nil, zap.NewNop())

	from, _ := classifyWindow()
	_, err := service.ClassifyClassPools(tenantCtx(), ClassifyRequest{
		ClassID:  "class-1",
		TopicIDs: []string{"t-1"},
		From:     from,
		To:       from,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStrengthServiceClassifyComputesAndCaches(t *testing.T) {
	attempts := &accuracyReaderStub{classRows: []models.PoolQuestion{
		{QuestionID: "q-1", Attempts: 5, Correct: 5},
		{QuestionID: "q-2", Attempts: 5, Correct: 1},
	}}
	cacheRepo := &cacheRepoStub{}
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	service := NewStrengthService(attempts, cache, nil, nil, zap.NewNop())

	from, to := classifyWindow()
	pools, err := service.ClassifyClassPools(tenantCtx(), ClassifyRequest{
		ClassID:  "class-1",
		TopicIDs: []string{"t-1"},
		From:     from,
		To:       to,
	})
	require.NoError(t, err)
	require.Len(t, pools.Strong, 1)
	require.Len(t, pools.Weak, 1)
	assert.Equal(t, 1, attempts.classCalls)
	assert.Equal(t, 1, cacheRepo.sets)
}

func TestStrengthServiceStudentPools(t *testing.T) {
	attempts := &accuracyReaderStub{studentRows: []models.PoolQuestion{
		{QuestionID: "q-1", Attempts: 4, Correct: 4},
	}}
	service := NewStrengthService(attempts, nil, nil, nil, zap.NewNop())

	pools, err := service.StudentPools(tenantCtx(), "student-1", "topic-1")
	require.NoError(t, err)
	require.Len(t, pools.Strong, 1)
	assert.Equal(t, 100.0, pools.Strong[0].Accuracy)

	_, err = service.StudentPools(tenantCtx(), "", "topic-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
