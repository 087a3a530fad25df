package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classforge/mastery-engine/internal/models"
)

// WeeklyResultRepository persists marked weekly test results and the derived
// per-strength performance rows.
type WeeklyResultRepository struct {
	db *sqlx.DB
}

// NewWeeklyResultRepository creates a new weekly result repository.
func NewWeeklyResultRepository(db *sqlx.DB) *WeeklyResultRepository {
	return &WeeklyResultRepository{db: db}
}

// Insert stores a new result. The unique index on (tenant_id, test_id,
// student_id) backs the duplicate guard; violations bubble up as pq errors.
func (r *WeeklyResultRepository) Insert(ctx context.Context, result *models.WeeklyTestResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now
	const query = `INSERT INTO weekly_test_results (id, tenant_id, test_id, student_id, total_marks, obtained_marks, percentage, attempted_positions, wrong_positions, created_at, updated_at)
        VALUES (:id, :tenant_id, :test_id, :student_id, :total_marks, :obtained_marks, :percentage, :attempted_positions, :wrong_positions, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("insert weekly test result: %w", err)
	}
	return nil
}

// Exists reports whether the student already has a result for the test.
func (r *WeeklyResultRepository) Exists(ctx context.Context, tenantID, testID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM weekly_test_results WHERE tenant_id = $1 AND test_id = $2 AND student_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, tenantID, testID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check weekly result exists: %w", err)
	}
	return true, nil
}

// ListByTest returns all results for a test, best score first.
func (r *WeeklyResultRepository) ListByTest(ctx context.Context, tenantID, testID string) ([]models.WeeklyTestResult, error) {
	const query = `SELECT id, tenant_id, test_id, student_id, total_marks, obtained_marks, percentage, attempted_positions, wrong_positions, created_at, updated_at
        FROM weekly_test_results
        WHERE tenant_id = $1 AND test_id = $2
        ORDER BY obtained_marks DESC, student_id ASC`
	var results []models.WeeklyTestResult
	if err := r.db.SelectContext(ctx, &results, query, tenantID, testID); err != nil {
		return nil, fmt.Errorf("list weekly test results: %w", err)
	}
	return results, nil
}

// UpsertPerformance stores the per-strength breakdown for a result.
func (r *WeeklyResultRepository) UpsertPerformance(ctx context.Context, perf *models.WeeklyStudentPerformance) error {
	if perf.ID == "" {
		perf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if perf.CreatedAt.IsZero() {
		perf.CreatedAt = now
	}
	perf.UpdatedAt = now
	const query = `INSERT INTO weekly_student_performance (id, tenant_id, test_id, student_id, strong_total, strong_correct, strong_accuracy, weak_total, weak_correct, weak_accuracy, moderate_total, moderate_correct, moderate_accuracy, overall_total, overall_correct, mastery_delta, created_at, updated_at)
        VALUES (:id, :tenant_id, :test_id, :student_id, :strong_total, :strong_correct, :strong_accuracy, :weak_total, :weak_correct, :weak_accuracy, :moderate_total, :moderate_correct, :moderate_accuracy, :overall_total, :overall_correct, :mastery_delta, :created_at, :updated_at)
        ON CONFLICT (tenant_id, test_id, student_id)
        DO UPDATE SET strong_total = EXCLUDED.strong_total, strong_correct = EXCLUDED.strong_correct, strong_accuracy = EXCLUDED.strong_accuracy,
            weak_total = EXCLUDED.weak_total, weak_correct = EXCLUDED.weak_correct, weak_accuracy = EXCLUDED.weak_accuracy,
            moderate_total = EXCLUDED.moderate_total, moderate_correct = EXCLUDED.moderate_correct, moderate_accuracy = EXCLUDED.moderate_accuracy,
            overall_total = EXCLUDED.overall_total, overall_correct = EXCLUDED.overall_correct, mastery_delta = EXCLUDED.mastery_delta,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, perf); err != nil {
		return fmt.Errorf("upsert weekly performance: %w", err)
	}
	return nil
}

// ListPerformanceByTest returns the per-strength breakdowns for a test.
func (r *WeeklyResultRepository) ListPerformanceByTest(ctx context.Context, tenantID, testID string) ([]models.WeeklyStudentPerformance, error) {
	const query = `SELECT id, tenant_id, test_id, student_id, strong_total, strong_correct, strong_accuracy, weak_total, weak_correct, weak_accuracy, moderate_total, moderate_correct, moderate_accuracy, overall_total, overall_correct, mastery_delta, created_at, updated_at
        FROM weekly_student_performance
        WHERE tenant_id = $1 AND test_id = $2
        ORDER BY student_id ASC`
	var rows []models.WeeklyStudentPerformance
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, testID); err != nil {
		return nil, fmt.Errorf("list weekly performance: %w", err)
	}
	return rows, nil
}

// StudentEvaluatedPercentages returns the student's percentages on evaluated
// weekly tests whose topic set overlaps the given topics. Feeds the weekly
// component of combined mastery.
func (r *WeeklyResultRepository) StudentEvaluatedPercentages(ctx context.Context, tenantID, studentID string, topicIDs []string) ([]float64, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT res.percentage
        FROM weekly_test_results res
        JOIN weekly_tests t ON t.id = res.test_id AND t.tenant_id = res.tenant_id
        WHERE res.tenant_id = $1 AND res.student_id = $2
          AND t.status = $3 AND t.deleted_at IS NULL
          AND t.topic_ids && $4`
	var percentages []float64
	if err := r.db.SelectContext(ctx, &percentages, query, tenantID, studentID, models.WeeklyTestStatusEvaluated, pq.Array(topicIDs)); err != nil {
		return nil, fmt.Errorf("list evaluated weekly percentages: %w", err)
	}
	return percentages, nil
}
