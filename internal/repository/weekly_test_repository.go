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

// WeeklyTestRepository handles weekly tests and their generated papers.
type WeeklyTestRepository struct {
	db *sqlx.DB
}

// NewWeeklyTestRepository creates a new weekly test repository.
func NewWeeklyTestRepository(db *sqlx.DB) *WeeklyTestRepository {
	return &WeeklyTestRepository{db: db}
}

const weeklyTestColumns = `id, tenant_id, class_id, section_id, subject_id, topic_ids, week_start, week_end, strong_percent, weak_percent, total_questions, total_marks, duration_minutes, status, students_appeared, average_score, created_at, updated_at, deleted_at`

// Create persists a new weekly test.
func (r *WeeklyTestRepository) Create(ctx context.Context, test *models.WeeklyTest) error {
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	test.CreatedAt = now
	test.UpdatedAt = now
	const query = `INSERT INTO weekly_tests (id, tenant_id, class_id, section_id, subject_id, topic_ids, week_start, week_end, strong_percent, weak_percent, total_questions, total_marks, duration_minutes, status, students_appeared, average_score, created_at, updated_at)
        VALUES (:id, :tenant_id, :class_id, :section_id, :subject_id, :topic_ids, :week_start, :week_end, :strong_percent, :weak_percent, :total_questions, :total_marks, :duration_minutes, :status, :students_appeared, :average_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, test); err != nil {
		return fmt.Errorf("create weekly test: %w", err)
	}
	return nil
}

// FindByID fetches a test inside the tenant.
func (r *WeeklyTestRepository) FindByID(ctx context.Context, tenantID, id string) (*models.WeeklyTest, error) {
	query := fmt.Sprintf(`SELECT %s FROM weekly_tests WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, weeklyTestColumns)
	var test models.WeeklyTest
	if err := r.db.GetContext(ctx, &test, query, tenantID, id); err != nil {
		return nil, err
	}
	return &test, nil
}

// List returns tests matching the filter plus the unpaged total.
func (r *WeeklyTestRepository) List(ctx context.Context, tenantID string, filter models.WeeklyTestFilter) ([]models.WeeklyTest, int, error) {
	base := "FROM weekly_tests"
	args := []interface{}{tenantID}
	conditions := []string{"tenant_id = $1", "deleted_at IS NULL"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.WeekFrom != nil {
		conditions = append(conditions, fmt.Sprintf("week_start >= $%d", len(args)+1))
		args = append(args, *filter.WeekFrom)
	}
	if filter.WeekTo != nil {
		conditions = append(conditions, fmt.Sprintf("week_end <= $%d", len(args)+1))
		args = append(args, *filter.WeekTo)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"week_start": "week_start",
		"created_at": "created_at",
		"status":     "status",
	}
	if sortBy == "" {
		sortBy = "week_start"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "week_start"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`, weeklyTestColumns, base, column, order, size, offset)

	var tests []models.WeeklyTest
	if err := r.db.SelectContext(ctx, &tests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list weekly tests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count weekly tests: %w", err)
	}
	return tests, total, nil
}

// UpdateStatusIf transitions the test status only when it currently holds the
// expected value. Returns false when no row matched.
func (r *WeeklyTestRepository) UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.WeeklyTestStatus) (bool, error) {
	const query = `UPDATE weekly_tests SET status = $4, updated_at = $5
        WHERE tenant_id = $1 AND id = $2 AND status = $3 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update weekly test status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("weekly test status rows affected: %w", err)
	}
	return affected == 1, nil
}

// RefreshAggregates recomputes students_appeared and average_score from the
// ingested results in one statement.
func (r *WeeklyTestRepository) RefreshAggregates(ctx context.Context, tenantID, id string) error {
	const query = `UPDATE weekly_tests SET
        students_appeared = (SELECT COUNT(*) FROM weekly_test_results res WHERE res.tenant_id = weekly_tests.tenant_id AND res.test_id = weekly_tests.id),
        average_score = COALESCE((SELECT ROUND(AVG(res.percentage)::numeric, 2) FROM weekly_test_results res WHERE res.tenant_id = weekly_tests.tenant_id AND res.test_id = weekly_tests.id), 0),
        updated_at = $3
        WHERE tenant_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, tenantID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh weekly test aggregates: %w", err)
	}
	return nil
}

// ReplaceQuestions swaps the full generated paper in a single transaction so
// regeneration stays idempotent and positions stay contiguous.
func (r *WeeklyTestRepository) ReplaceQuestions(ctx context.Context, tenantID, testID string, questions []models.WeeklyTestQuestion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM weekly_test_questions WHERE tenant_id = $1 AND test_id = $2`, tenantID, testID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear weekly test questions: %w", err)
	}
	now := time.Now().UTC()
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		questions[i].TenantID = tenantID
		questions[i].TestID = testID
		questions[i].CreatedAt = now
		const query = `INSERT INTO weekly_test_questions (id, tenant_id, test_id, question_id, position, strength, marks, created_at)
            VALUES (:id, :tenant_id, :test_id, :question_id, :position, :strength, :marks, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, questions[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert weekly test question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weekly test questions: %w", err)
	}
	return nil
}

// ListQuestions returns the generated paper in position order.
func (r *WeeklyTestRepository) ListQuestions(ctx context.Context, tenantID, testID string) ([]models.WeeklyTestQuestion, error) {
	const query = `SELECT id, tenant_id, test_id, question_id, position, strength, marks, created_at
        FROM weekly_test_questions
        WHERE tenant_id = $1 AND test_id = $2
        ORDER BY position ASC`
	var questions []models.WeeklyTestQuestion
	if err := r.db.SelectContext(ctx, &questions, query, tenantID, testID); err != nil {
		return nil, fmt.Errorf("list weekly test questions: %w", err)
	}
	return questions, nil
}
