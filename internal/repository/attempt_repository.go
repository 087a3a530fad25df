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

// AttemptRepository persists immutable practice attempts and answers the
// accuracy aggregations the classifier builds its pools from.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new attempt repository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Insert stores a new attempt. Attempts are never updated or deleted.
func (r *AttemptRepository) Insert(ctx context.Context, attempt *models.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO practice_attempts (id, tenant_id, session_id, student_id, question_id, selected_option, is_correct, time_spent_seconds, attempt_number, created_at)
        VALUES (:id, :tenant_id, :session_id, :student_id, :question_id, :selected_option, :is_correct, :time_spent_seconds, :attempt_number, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// CountForStudentQuestion returns how many attempts the student already made
// on the question within the session.
func (r *AttemptRepository) CountForStudentQuestion(ctx context.Context, tenantID, sessionID, studentID, questionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM practice_attempts
        WHERE tenant_id = $1 AND session_id = $2 AND student_id = $3 AND question_id = $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, sessionID, studentID, questionID); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// AttemptedQuestionIDs lists the distinct questions the student already
// answered inside the session.
func (r *AttemptRepository) AttemptedQuestionIDs(ctx context.Context, tenantID, sessionID, studentID string) ([]string, error) {
	const query = `SELECT DISTINCT question_id FROM practice_attempts
        WHERE tenant_id = $1 AND session_id = $2 AND student_id = $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, tenantID, sessionID, studentID); err != nil {
		return nil, fmt.Errorf("list attempted question ids: %w", err)
	}
	return ids, nil
}

// ClassQuestionAccuracy aggregates per-question correctness across every
// student of a class over the window. The topic comes from the question bank
// so a question keeps one topic no matter which session served it.
func (r *AttemptRepository) ClassQuestionAccuracy(ctx context.Context, tenantID, classID string, topicIDs []string, from, to time.Time) ([]models.PoolQuestion, error) {
	const query = `SELECT a.question_id, q.topic_id, COUNT(*) AS attempts, SUM(CASE WHEN a.is_correct THEN 1 ELSE 0 END) AS correct
        FROM practice_attempts a
        JOIN practice_sessions s ON s.id = a.session_id AND s.tenant_id = a.tenant_id
        JOIN questions q ON q.id = a.question_id AND q.tenant_id = a.tenant_id
        WHERE a.tenant_id = $1 AND s.class_id = $2 AND q.topic_id = ANY($3)
          AND a.created_at >= $4 AND a.created_at < $5
        GROUP BY a.question_id, q.topic_id`
	var rows []models.PoolQuestion
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, classID, pq.Array(topicIDs), from, to); err != nil {
		return nil, fmt.Errorf("class question accuracy: %w", err)
	}
	return rows, nil
}

// StudentQuestionAccuracy aggregates a single student's correctness per
// question under one topic, across all their sessions.
func (r *AttemptRepository) StudentQuestionAccuracy(ctx context.Context, tenantID, studentID, topicID string) ([]models.PoolQuestion, error) {
	const query = `SELECT a.question_id, q.topic_id, COUNT(*) AS attempts, SUM(CASE WHEN a.is_correct THEN 1 ELSE 0 END) AS correct
        FROM practice_attempts a
        JOIN questions q ON q.id = a.question_id AND q.tenant_id = a.tenant_id
        WHERE a.tenant_id = $1 AND a.student_id = $2 AND q.topic_id = $3
        GROUP BY a.question_id, q.topic_id`
	var rows []models.PoolQuestion
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, studentID, topicID); err != nil {
		return nil, fmt.Errorf("student question accuracy: %w", err)
	}
	return rows, nil
}
