package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classforge/mastery-engine/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestTopicMasteryRepositoryApplyDeltaCorrectAttempt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTopicMasteryRepository(db)

	outcome := true
	activity := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO topic_mastery")).
		WithArgs(sqlmock.AnyArg(), "school-1", "student-1", "topic-1",
			1, 1, 1, activity, 0, 0, 0, 0, sqlmock.AnyArg(), "right").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyDelta(context.Background(), models.TopicMasteryDelta{
		TenantID:         "school-1",
		StudentID:        "student-1",
		TopicID:          "topic-1",
		TotalAttempts:    1,
		CorrectAttempts:  1,
		StreakOutcome:    &outcome,
		LastActivityDate: &activity,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicMasteryRepositoryApplyDeltaParticipationOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTopicMasteryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (tenant_id, student_id, topic_id) DO UPDATE SET")).
		WithArgs(sqlmock.AnyArg(), "school-1", "student-1", "topic-1",
			0, 0, 0, nil, 1, 0, 1, 0, sqlmock.AnyArg(), "none").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyDelta(context.Background(), models.TopicMasteryDelta{
		TenantID:          "school-1",
		StudentID:         "student-1",
		TopicID:           "topic-1",
		SessionsScheduled: 1,
		ExcusedAbsences:   1,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicMasteryRepositoryFindByStudentTopicMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTopicMasteryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM topic_mastery")).
		WithArgs("school-1", "student-1", "topic-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudentTopic(context.Background(), "school-1", "student-1", "topic-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTopicMasteryRepositoryListByStudentTopics(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTopicMasteryRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "student_id", "topic_id", "total_attempts", "correct_attempts", "mastery_percent",
		"current_streak", "best_streak", "last_activity_date",
		"sessions_scheduled", "sessions_participated", "excused_absences", "unexcused_absences",
		"created_at", "updated_at",
	}).
		AddRow("m-1", "school-1", "student-1", "topic-1", 20, 15, 75.0, 3, 5, now, 4, 4, 0, 0, now, now).
		AddRow("m-2", "school-1", "student-1", "topic-2", 10, 3, 30.0, 0, 2, now, 4, 3, 1, 0, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("topic_id = ANY($3)")).
		WithArgs("school-1", "student-1", pq.Array([]string{"topic-1", "topic-2"})).
		WillReturnRows(rows)

	list, err := repo.ListByStudentTopics(context.Background(), "school-1", "student-1", []string{"topic-1", "topic-2"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 75.0, list[0].MasteryPercent)
	assert.Equal(t, 1, list[1].ExcusedAbsences)

	// Empty topic set short-circuits without touching the database.
	list, err = repo.ListByStudentTopics(context.Background(), "school-1", "student-1", nil)
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}
