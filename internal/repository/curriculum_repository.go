package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CurriculumRepository reads the academic structure the engine depends on:
// which topics a lesson plan teaches and which topics a chapter spans. Both
// tables belong to the curriculum system; the engine never writes them.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository creates a new curriculum repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// LessonPlanTopicIDs returns the topic set taught by a lesson plan, in
// curriculum order.
func (r *CurriculumRepository) LessonPlanTopicIDs(ctx context.Context, tenantID, lessonPlanID string) ([]string, error) {
	const query = `SELECT topic_id FROM lesson_plan_topics
        WHERE tenant_id = $1 AND lesson_plan_id = $2
        ORDER BY sort_order ASC, topic_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, tenantID, lessonPlanID); err != nil {
		return nil, fmt.Errorf("list lesson plan topics: %w", err)
	}
	return ids, nil
}

// ChapterTopicIDs returns the topic set a chapter spans, in curriculum order.
func (r *CurriculumRepository) ChapterTopicIDs(ctx context.Context, tenantID, chapterID string) ([]string, error) {
	const query = `SELECT topic_id FROM chapter_topics
        WHERE tenant_id = $1 AND chapter_id = $2
        ORDER BY sort_order ASC, topic_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, tenantID, chapterID); err != nil {
		return nil, fmt.Errorf("list chapter topics: %w", err)
	}
	return ids, nil
}
