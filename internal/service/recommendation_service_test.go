package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classforge/mastery-engine/internal/models"
	"github.com/classforge/mastery-engine/internal/tenancy"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
)

type recommendationRepoStub struct {
	inserted  []models.AdaptiveRecommendation
	stored    map[string]*models.AdaptiveRecommendation
	actioned  bool
	lastActor string
	insertErr error
}

func (s *recommendationRepoStub) InsertBatch(ctx context.Context, recs []models.AdaptiveRecommendation) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, recs...)
	return nil
}

func (s *recommendationRepoStub) FindByID(ctx context.Context, tenantID, id string) (*models.AdaptiveRecommendation, error) {
	if rec, ok := s.stored[id]; ok {
		return rec, nil
	}
	return nil, sql.ErrNoRows
}

func (s *recommendationRepoStub) MarkActioned(ctx context.Context, tenantID, id, actorID string) (bool, error) {
	s.lastActor = actorID
	if rec, ok := s.stored[id]; ok && !rec.Actioned {
		rec.Actioned = true
		now := time.Now().UTC()
		rec.ActionedBy = &actorID
		rec.ActionedAt = &now
		return true, nil
	}
	return s.actioned, nil
}

func (s *recommendationRepoStub) List(ctx context.Context, tenantID string, filter models.RecommendationFilter) ([]models.AdaptiveRecommendation, int, error) {
	out := make([]models.AdaptiveRecommendation, 0, len(s.stored))
	for _, rec := range s.stored {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func TestRecommendationServiceGenerateForChapterLadder(t *testing.T) {
	repo := &recommendationRepoStub{}
	mastery := &masteryStoreStub{byTopic: []models.TopicMastery{
		{TopicID: "t-remedial", MasteryPercent: 35},
		{TopicID: "t-extra", MasteryPercent: 55},
		{TopicID: "t-revision", MasteryPercent: 68},
		{TopicID: "t-fine", MasteryPercent: 80},
	}}
	curriculum := curriculumStub{chapterTopics: []string{"t-remedial", "t-extra", "t-revision", "t-fine", "t-untouched"}}
	service := NewRecommendationService(repo, curriculum, mastery, zap.NewNop(), nil)

	count, err := service.GenerateForChapter(tenantCtx(), "student-1", "chapter-1", "eval-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	require.Len(t, repo.inserted, 4)

	byTopic := map[string]models.AdaptiveRecommendation{}
	for _, rec := range repo.inserted {
		byTopic[rec.TopicID] = rec
	}

	assert.Equal(t, models.RecommendationRemedialClass, byTopic["t-remedial"].Type)
	assert.Equal(t, models.RecommendationPriorityHigh, byTopic["t-remedial"].Priority)
	assert.Equal(t, models.RecommendationExtraDailyLoop, byTopic["t-extra"].Type)
	assert.Equal(t, models.RecommendationPriorityMedium, byTopic["t-extra"].Priority)
	assert.Equal(t, models.RecommendationRevision, byTopic["t-revision"].Type)
	assert.Equal(t, models.RecommendationPriorityLow, byTopic["t-revision"].Priority)

	_, ok := byTopic["t-fine"]
	assert.False(t, ok)

	// No mastery row counts as zero mastery.
	untouched := byTopic["t-untouched"]
	assert.Equal(t, models.RecommendationRemedialClass, untouched.Type)
	assert.Equal(t, 0.0, untouched.MasteryPercent)
	assert.Contains(t, untouched.Reason, "0.00%")

	require.NotNil(t, byTopic["t-extra"].EvaluationID)
	assert.Equal(t, "eval-1", *byTopic["t-extra"].EvaluationID)
	assert.Contains(t, byTopic["t-extra"].Reason, "55.00%")
}

func TestRecommendationServiceGenerateForChapterNothingToDo(t *testing.T) {
	repo := &recommendationRepoStub{}
	mastery := &masteryStoreStub{byTopic: []models.TopicMastery{
		{TopicID: "t-1", MasteryPercent: 90},
	}}
	service := NewRecommendationService(repo, curriculumStub{chapterTopics: []string{"t-1"}}, mastery, zap.NewNop(), nil)

	count, err := service.GenerateForChapter(tenantCtx(), "student-1", "chapter-1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, repo.inserted)
}

func TestRecommendationServiceActionRecommendation(t *testing.T) {
	repo := &recommendationRepoStub{stored: map[string]*models.AdaptiveRecommendation{
		"rec-1": {ID: "rec-1", StudentID: "student-1", TopicID: "t-1"},
	}}
	service := NewRecommendationService(repo, curriculumStub{}, &masteryStoreStub{}, zap.NewNop(), nil)

	ctx := tenancy.WithActor(tenantCtx(), "teacher-7")
	rec, err := service.ActionRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, rec.Actioned)
	assert.Equal(t, "teacher-7", repo.lastActor)

	_, err = service.ActionRecommendation(ctx, "rec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = service.ActionRecommendation(ctx, "rec-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecommendationServiceActionRequiresActor(t *testing.T) {
	repo := &recommendationRepoStub{stored: map[string]*models.AdaptiveRecommendation{
		"rec-1": {ID: "rec-1", StudentID: "student-1", TopicID: "t-1"},
	}}
	service := NewRecommendationService(repo, curriculumStub{}, &masteryStoreStub{}, zap.NewNop(), nil)

	_, err := service.ActionRecommendation(tenantCtx(), "rec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.lastActor)

	rec := repo.stored["rec-1"]
	assert.False(t, rec.Actioned)
}

func TestRecommendationServiceListScopesToTenant(t *testing.T) {
	repo := &recommendationRepoStub{stored: map[string]*models.AdaptiveRecommendation{}}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("rec-%d", i+1)
		repo.stored[id] = &models.AdaptiveRecommendation{ID: id}
	}
	service := NewRecommendationService(repo, curriculumStub{}, &masteryStoreStub{}, zap.NewNop(), nil)

	recs, page, err := service.ListRecommendations(tenantCtx(), models.RecommendationFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 1, page.Page)

	_, _, err = service.ListRecommendations(context.Background(), models.RecommendationFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
