package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classforge/mastery-engine/internal/models"
)

func practiceSessionColumns() []string {
	return []string{
		"id", "tenant_id", "schedule_slot_id", "class_id", "section_id", "subject_id", "topic_id",
		"session_date", "max_questions", "time_limit_minutes", "status",
		"attempt_count", "participant_count", "average_score",
		"created_at", "updated_at", "deleted_at",
	}
}

func TestPracticeSessionRepositoryFindByScheduleSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPracticeSessionRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(practiceSessionColumns()).
		AddRow("session-1", "school-1", "slot-1", "class-1", "section-a", "math", "topic-1",
			now, 10, sql.NullInt64{Int64: 30, Valid: true}, "ACTIVE", 0, 0, 0.0, now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = $1 AND schedule_slot_id = $2 AND deleted_at IS NULL")).
		WithArgs("school-1", "slot-1").
		WillReturnRows(rows)

	session, err := repo.FindByScheduleSlot(context.Background(), "school-1", "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.ID)
	require.NotNil(t, session.TimeLimitMinutes)
	assert.Equal(t, 30, *session.TimeLimitMinutes)
}

func TestPracticeSessionRepositoryUpdateStatusIf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPracticeSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE practice_sessions SET status = $4, updated_at = $5")).
		WithArgs("school-1", "session-1", models.SessionStatusActive, models.SessionStatusClosed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.UpdateStatusIf(context.Background(), "school-1", "session-1", models.SessionStatusActive, models.SessionStatusClosed)
	require.NoError(t, err)
	assert.True(t, moved)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE practice_sessions SET status = $4, updated_at = $5")).
		WithArgs("school-1", "session-1", models.SessionStatusActive, models.SessionStatusClosed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err = repo.UpdateStatusIf(context.Background(), "school-1", "session-1", models.SessionStatusActive, models.SessionStatusClosed)
	require.NoError(t, err)
	assert.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPracticeSessionRepositoryListFiltersAndPages(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPracticeSessionRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(practiceSessionColumns()).
		AddRow("session-1", "school-1", "slot-1", "class-1", "section-a", "math", "topic-1",
			now, 10, nil, "ACTIVE", 5, 3, 64.5, now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("class_id = $2")).
		WithArgs("school-1", "class-1", "ACTIVE").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("school-1", "class-1", "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), "school-1", models.PracticeSessionFilter{
		ClassID: "class-1",
		Status:  models.SessionStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 64.5, sessions[0].AverageScore)
}
