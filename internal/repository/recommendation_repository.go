package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classforge/mastery-engine/internal/models"
)

// RecommendationRepository persists adaptive recommendations.
type RecommendationRepository struct {
	db *sqlx.DB
}

// NewRecommendationRepository creates a new recommendation repository.
func NewRecommendationRepository(db *sqlx.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

const recommendationColumns = `id, tenant_id, student_id, topic_id, evaluation_id, type, priority, mastery_percent, reason, actioned, actioned_by, actioned_at, created_at, updated_at`

// InsertBatch appends a batch of recommendations in one transaction.
func (r *RecommendationRepository) InsertBatch(ctx context.Context, recs []models.AdaptiveRecommendation) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = uuid.NewString()
		}
		recs[i].CreatedAt = now
		recs[i].UpdatedAt = now
		const query = `INSERT INTO adaptive_recommendations (id, tenant_id, student_id, topic_id, evaluation_id, type, priority, mastery_percent, reason, actioned, actioned_by, actioned_at, created_at, updated_at)
            VALUES (:id, :tenant_id, :student_id, :topic_id, :evaluation_id, :type, :priority, :mastery_percent, :reason, :actioned, :actioned_by, :actioned_at, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, recs[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert recommendation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recommendations: %w", err)
	}
	return nil
}

// FindByID fetches a recommendation inside the tenant.
func (r *RecommendationRepository) FindByID(ctx context.Context, tenantID, id string) (*models.AdaptiveRecommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM adaptive_recommendations WHERE tenant_id = $1 AND id = $2`, recommendationColumns)
	var rec models.AdaptiveRecommendation
	if err := r.db.GetContext(ctx, &rec, query, tenantID, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkActioned flips the actioned flag once. Returns false when the row was
// already actioned or absent.
func (r *RecommendationRepository) MarkActioned(ctx context.Context, tenantID, id, actorID string) (bool, error) {
	now := time.Now().UTC()
	const query = `UPDATE adaptive_recommendations
        SET actioned = TRUE, actioned_by = $3, actioned_at = $4, updated_at = $4
        WHERE tenant_id = $1 AND id = $2 AND actioned = FALSE`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, actorID, now)
	if err != nil {
		return false, fmt.Errorf("mark recommendation actioned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recommendation actioned rows affected: %w", err)
	}
	return affected == 1, nil
}

// List returns recommendations matching the filter plus the unpaged total,
// newest first within priority.
func (r *RecommendationRepository) List(ctx context.Context, tenantID string, filter models.RecommendationFilter) ([]models.AdaptiveRecommendation, int, error) {
	base := "FROM adaptive_recommendations"
	args := []interface{}{tenantID}
	conditions := []string{"tenant_id = $1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TopicID != "" {
		conditions = append(conditions, fmt.Sprintf("topic_id = $%d", len(args)+1))
		args = append(args, filter.TopicID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}
	if filter.Actioned != nil {
		conditions = append(conditions, fmt.Sprintf("actioned = $%d", len(args)+1))
		args = append(args, *filter.Actioned)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s
        ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END, created_at DESC
        LIMIT %d OFFSET %d`, recommendationColumns, base, size, offset)

	var recs []models.AdaptiveRecommendation
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list recommendations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count recommendations: %w", err)
	}
	return recs, total, nil
}
