package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classforge/mastery-engine/internal/models"
)

func TestRecommendationRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO adaptive_recommendations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO adaptive_recommendations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recs := []models.AdaptiveRecommendation{
		{TenantID: "school-1", StudentID: "student-1", TopicID: "t-1", Type: models.RecommendationRemedialClass, Priority: models.RecommendationPriorityHigh, MasteryPercent: 35},
		{TenantID: "school-1", StudentID: "student-1", TopicID: "t-2", Type: models.RecommendationRevision, Priority: models.RecommendationPriorityLow, MasteryPercent: 68},
	}
	err := repo.InsertBatch(context.Background(), recs)
	require.NoError(t, err)
	assert.NotEmpty(t, recs[0].ID)
	assert.NotEmpty(t, recs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepositoryInsertBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO adaptive_recommendations")).
		WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []models.AdaptiveRecommendation{
		{TenantID: "school-1", StudentID: "student-1", TopicID: "t-1"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepositoryInsertBatchEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	require.NoError(t, repo.InsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepositoryMarkActioned(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET actioned = TRUE, actioned_by = $3, actioned_at = $4, updated_at = $4")).
		WithArgs("school-1", "rec-1", "teacher-7", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.MarkActioned(context.Background(), "school-1", "rec-1", "teacher-7")
	require.NoError(t, err)
	assert.True(t, moved)

	// Already actioned rows match zero rows.
	mock.ExpectExec(regexp.QuoteMeta("AND actioned = FALSE")).
		WithArgs("school-1", "rec-1", "teacher-7", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err = repo.MarkActioned(context.Background(), "school-1", "rec-1", "teacher-7")
	require.NoError(t, err)
	assert.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepositoryListOrdersByPriority(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecommendationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "student_id", "topic_id", "evaluation_id", "type", "priority",
		"mastery_percent", "reason", "actioned", "actioned_by", "actioned_at", "created_at", "updated_at",
	}).
		AddRow("rec-1", "school-1", "student-1", "t-1", nil, "REMEDIAL_CLASS", "HIGH", 35.0, "topic mastery at 35.00%", false, nil, nil, now, now).
		AddRow("rec-2", "school-1", "student-1", "t-2", nil, "REVISION", "LOW", 68.0, "topic mastery at 68.00%", false, nil, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END")).
		WithArgs("school-1", "student-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("school-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	recs, total, err := repo.List(context.Background(), "school-1", models.RecommendationFilter{StudentID: "student-1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, total)
	assert.Equal(t, models.RecommendationPriorityHigh, recs[0].Priority)
}
