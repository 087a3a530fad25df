package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classforge/mastery-engine/internal/models"
)

// TopicMasteryRepository owns the per-student per-topic mastery counters.
// Every write goes through ApplyDelta so concurrent submissions can never
// lose increments to a read-modify-write race.
type TopicMasteryRepository struct {
	db *sqlx.DB
}

// NewTopicMasteryRepository creates a new topic mastery repository.
func NewTopicMasteryRepository(db *sqlx.DB) *TopicMasteryRepository {
	return &TopicMasteryRepository{db: db}
}

const streakRight = "right"
const streakWrong = "wrong"
const streakNone = "none"

// ApplyDelta folds the delta into the student's counters in one upsert
// statement, creating the row when missing. mastery_percent is recomputed
// from the post-delta counters inside the same statement, streaks reset on a
// wrong outcome and best_streak only ever grows.
func (r *TopicMasteryRepository) ApplyDelta(ctx context.Context, delta models.TopicMasteryDelta) error {
	streakMode := streakNone
	initialStreak := 0
	if delta.StreakOutcome != nil {
		if *delta.StreakOutcome {
			streakMode = streakRight
			initialStreak = 1
		} else {
			streakMode = streakWrong
		}
	}

	const query = `INSERT INTO topic_mastery (
            id, tenant_id, student_id, topic_id,
            total_attempts, correct_attempts, mastery_percent,
            current_streak, best_streak, last_activity_date,
            sessions_scheduled, sessions_participated, excused_absences, unexcused_absences,
            created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6,
            CASE WHEN $5 > 0 THEN ROUND(100.0 * $6 / $5, 2) ELSE 0 END,
            $7, $7, $8, $9, $10, $11, $12, $13, $13)
        ON CONFLICT (tenant_id, student_id, topic_id) DO UPDATE SET
            total_attempts = topic_mastery.total_attempts + EXCLUDED.total_attempts,
            correct_attempts = topic_mastery.correct_attempts + EXCLUDED.correct_attempts,
            mastery_percent = CASE
                WHEN topic_mastery.total_attempts + EXCLUDED.total_attempts > 0
                THEN ROUND(100.0 * (topic_mastery.correct_attempts + EXCLUDED.correct_attempts) / (topic_mastery.total_attempts + EXCLUDED.total_attempts), 2)
                ELSE 0 END,
            current_streak = CASE $14
                WHEN 'right' THEN topic_mastery.current_streak + 1
                WHEN 'wrong' THEN 0
                ELSE topic_mastery.current_streak END,
            best_streak = GREATEST(topic_mastery.best_streak, CASE $14
                WHEN 'right' THEN topic_mastery.current_streak + 1
                ELSE topic_mastery.best_streak END),
            last_activity_date = GREATEST(topic_mastery.last_activity_date, EXCLUDED.last_activity_date),
            sessions_scheduled = topic_mastery.sessions_scheduled + EXCLUDED.sessions_scheduled,
            sessions_participated = topic_mastery.sessions_participated + EXCLUDED.sessions_participated,
            excused_absences = topic_mastery.excused_absences + EXCLUDED.excused_absences,
            unexcused_absences = topic_mastery.unexcused_absences + EXCLUDED.unexcused_absences,
            updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), delta.TenantID, delta.StudentID, delta.TopicID,
		delta.TotalAttempts, delta.CorrectAttempts,
		initialStreak, delta.LastActivityDate,
		delta.SessionsScheduled, delta.SessionsParticipated,
		delta.ExcusedAbsences, delta.UnexcusedAbsences,
		time.Now().UTC(), streakMode,
	)
	if err != nil {
		return fmt.Errorf("apply topic mastery delta: %w", err)
	}
	return nil
}

// FindByStudentTopic fetches one mastery row.
func (r *TopicMasteryRepository) FindByStudentTopic(ctx context.Context, tenantID, studentID, topicID string) (*models.TopicMastery, error) {
	const query = `SELECT id, tenant_id, student_id, topic_id, total_attempts, correct_attempts, mastery_percent, current_streak, best_streak, last_activity_date, sessions_scheduled, sessions_participated, excused_absences, unexcused_absences, created_at, updated_at
        FROM topic_mastery
        WHERE tenant_id = $1 AND student_id = $2 AND topic_id = $3`
	var mastery models.TopicMastery
	if err := r.db.GetContext(ctx, &mastery, query, tenantID, studentID, topicID); err != nil {
		return nil, err
	}
	return &mastery, nil
}

// ListByStudentTopics fetches the student's mastery rows for the given
// topics. Topics without a row are simply absent from the result.
func (r *TopicMasteryRepository) ListByStudentTopics(ctx context.Context, tenantID, studentID string, topicIDs []string) ([]models.TopicMastery, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, tenant_id, student_id, topic_id, total_attempts, correct_attempts, mastery_percent, current_streak, best_streak, last_activity_date, sessions_scheduled, sessions_participated, excused_absences, unexcused_absences, created_at, updated_at
        FROM topic_mastery
        WHERE tenant_id = $1 AND student_id = $2 AND topic_id = ANY($3)
        ORDER BY topic_id`
	var rows []models.TopicMastery
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, studentID, pq.Array(topicIDs)); err != nil {
		return nil, fmt.Errorf("list topic mastery: %w", err)
	}
	return rows, nil
}
