package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classforge/mastery-engine/internal/models"
)

// LessonResultRepository persists lesson evaluation results and the combined
// mastery snapshots derived from them.
type LessonResultRepository struct {
	db *sqlx.DB
}

// NewLessonResultRepository creates a new lesson result repository.
func NewLessonResultRepository(db *sqlx.DB) *LessonResultRepository {
	return &LessonResultRepository{db: db}
}

// Insert stores a new result. The unique index on (tenant_id, evaluation_id,
// student_id) backs the duplicate guard.
func (r *LessonResultRepository) Insert(ctx context.Context, result *models.LessonEvaluationResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now
	const query = `INSERT INTO lesson_evaluation_results (id, tenant_id, evaluation_id, student_id, participation, total_marks, obtained_marks, percentage, wrong_positions, created_at, updated_at)
        VALUES (:id, :tenant_id, :evaluation_id, :student_id, :participation, :total_marks, :obtained_marks, :percentage, :wrong_positions, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("insert lesson evaluation result: %w", err)
	}
	return nil
}

// Exists reports whether the student already has a result for the evaluation.
func (r *LessonResultRepository) Exists(ctx context.Context, tenantID, evaluationID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM lesson_evaluation_results WHERE tenant_id = $1 AND evaluation_id = $2 AND student_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, tenantID, evaluationID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lesson result exists: %w", err)
	}
	return true, nil
}

// FindByEvaluationStudent fetches one student's result.
func (r *LessonResultRepository) FindByEvaluationStudent(ctx context.Context, tenantID, evaluationID, studentID string) (*models.LessonEvaluationResult, error) {
	const query = `SELECT id, tenant_id, evaluation_id, student_id, participation, total_marks, obtained_marks, percentage, wrong_positions, created_at, updated_at
        FROM lesson_evaluation_results
        WHERE tenant_id = $1 AND evaluation_id = $2 AND student_id = $3`
	var result models.LessonEvaluationResult
	if err := r.db.GetContext(ctx, &result, query, tenantID, evaluationID, studentID); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListByEvaluation returns all results for an evaluation.
func (r *LessonResultRepository) ListByEvaluation(ctx context.Context, tenantID, evaluationID string) ([]models.LessonEvaluationResult, error) {
	const query = `SELECT id, tenant_id, evaluation_id, student_id, participation, total_marks, obtained_marks, percentage, wrong_positions, created_at, updated_at
        FROM lesson_evaluation_results
        WHERE tenant_id = $1 AND evaluation_id = $2
        ORDER BY student_id ASC`
	var results []models.LessonEvaluationResult
	if err := r.db.SelectContext(ctx, &results, query, tenantID, evaluationID); err != nil {
		return nil, fmt.Errorf("list lesson evaluation results: %w", err)
	}
	return results, nil
}

// InsertSnapshot stores an immutable combined mastery snapshot.
func (r *LessonResultRepository) InsertSnapshot(ctx context.Context, snapshot *models.LessonMasterySnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lesson_mastery_snapshots (id, tenant_id, student_id, chapter_id, evaluation_id, daily_mastery, weekly_mastery, lesson_mastery, combined_mastery, created_at)
        VALUES (:id, :tenant_id, :student_id, :chapter_id, :evaluation_id, :daily_mastery, :weekly_mastery, :lesson_mastery, :combined_mastery, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("insert mastery snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a student's snapshots for a chapter, newest first.
func (r *LessonResultRepository) ListSnapshots(ctx context.Context, tenantID, studentID, chapterID string) ([]models.LessonMasterySnapshot, error) {
	const query = `SELECT id, tenant_id, student_id, chapter_id, evaluation_id, daily_mastery, weekly_mastery, lesson_mastery, combined_mastery, created_at
        FROM lesson_mastery_snapshots
        WHERE tenant_id = $1 AND student_id = $2 AND chapter_id = $3
        ORDER BY created_at DESC`
	var snapshots []models.LessonMasterySnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, tenantID, studentID, chapterID); err != nil {
		return nil, fmt.Errorf("list mastery snapshots: %w", err)
	}
	return snapshots, nil
}
