package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classforge/mastery-engine/internal/models"
)

// QuestionBankRepository is the engine's read view of the shared question
// bank. Besides reads it only ever bumps usage counters; content authoring
// lives in another system.
type QuestionBankRepository struct {
	db *sqlx.DB
}

// NewQuestionBankRepository creates a new question bank repository.
func NewQuestionBankRepository(db *sqlx.DB) *QuestionBankRepository {
	return &QuestionBankRepository{db: db}
}

const questionColumns = `id, tenant_id, topic_id, text, options, correct_option, difficulty, status, usage_count, created_at, deleted_at`

// FindByID fetches a single question inside the tenant.
func (r *QuestionBankRepository) FindByID(ctx context.Context, tenantID, id string) (*models.Question, error) {
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, questionColumns)
	var question models.Question
	if err := r.db.GetContext(ctx, &question, query, tenantID, id); err != nil {
		return nil, err
	}
	return &question, nil
}

// ListByIDs fetches the given questions in no particular order.
func (r *QuestionBankRepository) ListByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE tenant_id = $1 AND id = ANY($2) AND deleted_at IS NULL`, questionColumns)
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, tenantID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list questions by ids: %w", err)
	}
	return questions, nil
}

// ListApprovedForTopic returns up to limit approved questions on the topic,
// least-used first so freshly authored content circulates.
func (r *QuestionBankRepository) ListApprovedForTopic(ctx context.Context, tenantID, topicID string, excludeIDs []string, limit int) ([]models.Question, error) {
	return r.listApproved(ctx, tenantID, []string{topicID}, excludeIDs, limit)
}

// ListApprovedForTopics is ListApprovedForTopic over a topic set.
func (r *QuestionBankRepository) ListApprovedForTopics(ctx context.Context, tenantID string, topicIDs []string, excludeIDs []string, limit int) ([]models.Question, error) {
	return r.listApproved(ctx, tenantID, topicIDs, excludeIDs, limit)
}

func (r *QuestionBankRepository) listApproved(ctx context.Context, tenantID string, topicIDs []string, excludeIDs []string, limit int) ([]models.Question, error) {
	if len(topicIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM questions
        WHERE tenant_id = $1 AND topic_id = ANY($2) AND status = $3 AND deleted_at IS NULL`, questionColumns)
	args := []interface{}{tenantID, pq.Array(topicIDs), models.QuestionStatusApproved}
	if len(excludeIDs) > 0 {
		query += fmt.Sprintf(" AND NOT (id = ANY($%d))", len(args)+1)
		args = append(args, pq.Array(excludeIDs))
	}
	query += fmt.Sprintf(" ORDER BY usage_count ASC, created_at ASC LIMIT %d", limit)

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		return nil, fmt.Errorf("list approved questions: %w", err)
	}
	return questions, nil
}

// IncrementUsage bumps the usage counter for every given question.
func (r *QuestionBankRepository) IncrementUsage(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE questions SET usage_count = usage_count + 1, updated_at = $3
        WHERE tenant_id = $1 AND id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, tenantID, pq.Array(ids), time.Now().UTC()); err != nil {
		return fmt.Errorf("increment question usage: %w", err)
	}
	return nil
}
