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

// LessonEvaluationRepository handles lesson evaluations and their papers.
type LessonEvaluationRepository struct {
	db *sqlx.DB
}

// NewLessonEvaluationRepository creates a new lesson evaluation repository.
func NewLessonEvaluationRepository(db *sqlx.DB) *LessonEvaluationRepository {
	return &LessonEvaluationRepository{db: db}
}

const lessonEvaluationColumns = `id, tenant_id, lesson_plan_id, chapter_id, class_id, section_id, subject_id, scheduled_date, total_questions, total_marks, duration_minutes, status, students_appeared, average_score, created_at, updated_at, deleted_at`

// Create persists a new evaluation.
func (r *LessonEvaluationRepository) Create(ctx context.Context, eval *models.LessonEvaluation) error {
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	eval.CreatedAt = now
	eval.UpdatedAt = now
	const query = `INSERT INTO lesson_evaluations (id, tenant_id, lesson_plan_id, chapter_id, class_id, section_id, subject_id, scheduled_date, total_questions, total_marks, duration_minutes, status, students_appeared, average_score, created_at, updated_at)
        VALUES (:id, :tenant_id, :lesson_plan_id, :chapter_id, :class_id, :section_id, :subject_id, :scheduled_date, :total_questions, :total_marks, :duration_minutes, :status, :students_appeared, :average_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, eval); err != nil {
		return fmt.Errorf("create lesson evaluation: %w", err)
	}
	return nil
}

// FindByID fetches an evaluation inside the tenant.
func (r *LessonEvaluationRepository) FindByID(ctx context.Context, tenantID, id string) (*models.LessonEvaluation, error) {
	query := fmt.Sprintf(`SELECT %s FROM lesson_evaluations WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, lessonEvaluationColumns)
	var eval models.LessonEvaluation
	if err := r.db.GetContext(ctx, &eval, query, tenantID, id); err != nil {
		return nil, err
	}
	return &eval, nil
}

// List returns evaluations matching the filter plus the unpaged total.
func (r *LessonEvaluationRepository) List(ctx context.Context, tenantID string, filter models.LessonEvaluationFilter) ([]models.LessonEvaluation, int, error) {
	base := "FROM lesson_evaluations"
	args := []interface{}{tenantID}
	conditions := []string{"tenant_id = $1", "deleted_at IS NULL"}

	if filter.LessonPlanID != "" {
		conditions = append(conditions, fmt.Sprintf("lesson_plan_id = $%d", len(args)+1))
		args = append(args, filter.LessonPlanID)
	}
	if filter.ChapterID != "" {
		conditions = append(conditions, fmt.Sprintf("chapter_id = $%d", len(args)+1))
		args = append(args, filter.ChapterID)
	}
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
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"scheduled_date": "scheduled_date",
		"created_at":     "created_at",
		"status":         "status",
	}
	if sortBy == "" {
		sortBy = "scheduled_date"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "scheduled_date"
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`, lessonEvaluationColumns, base, column, order, size, offset)

	var evals []models.LessonEvaluation
	if err := r.db.SelectContext(ctx, &evals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lesson evaluations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lesson evaluations: %w", err)
	}
	return evals, total, nil
}

// UpdateStatusIf transitions the evaluation status only when it currently
// holds the expected value. Returns false when no row matched.
func (r *LessonEvaluationRepository) UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.EvaluationStatus) (bool, error) {
	const query = `UPDATE lesson_evaluations SET status = $4, updated_at = $5
        WHERE tenant_id = $1 AND id = $2 AND status = $3 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update lesson evaluation status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lesson evaluation status rows affected: %w", err)
	}
	return affected == 1, nil
}

// RefreshAggregates recomputes students_appeared and average_score from the
// ingested results. Excused rows carry a NULL percentage and therefore never
// reach the average; unexcused zeros do.
func (r *LessonEvaluationRepository) RefreshAggregates(ctx context.Context, tenantID, id string) error {
	const query = `UPDATE lesson_evaluations SET
        students_appeared = (SELECT COUNT(*) FROM lesson_evaluation_results res WHERE res.tenant_id = lesson_evaluations.tenant_id AND res.evaluation_id = lesson_evaluations.id AND res.participation = $3),
        average_score = COALESCE((SELECT ROUND(AVG(res.percentage)::numeric, 2) FROM lesson_evaluation_results res WHERE res.tenant_id = lesson_evaluations.tenant_id AND res.evaluation_id = lesson_evaluations.id AND res.percentage IS NOT NULL), 0),
        updated_at = $4
        WHERE tenant_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, tenantID, id, models.ParticipationParticipated, time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh lesson evaluation aggregates: %w", err)
	}
	return nil
}

// ReplaceQuestions swaps the full paper in one transaction.
func (r *LessonEvaluationRepository) ReplaceQuestions(ctx context.Context, tenantID, evaluationID string, questions []models.LessonEvaluationQuestion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lesson_evaluation_questions WHERE tenant_id = $1 AND evaluation_id = $2`, tenantID, evaluationID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear lesson evaluation questions: %w", err)
	}
	now := time.Now().UTC()
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		questions[i].TenantID = tenantID
		questions[i].EvaluationID = evaluationID
		questions[i].CreatedAt = now
		const query = `INSERT INTO lesson_evaluation_questions (id, tenant_id, evaluation_id, question_id, position, topic_id, marks, created_at)
            VALUES (:id, :tenant_id, :evaluation_id, :question_id, :position, :topic_id, :marks, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, questions[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert lesson evaluation question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lesson evaluation questions: %w", err)
	}
	return nil
}

// ListQuestions returns the paper in position order.
func (r *LessonEvaluationRepository) ListQuestions(ctx context.Context, tenantID, evaluationID string) ([]models.LessonEvaluationQuestion, error) {
	const query = `SELECT id, tenant_id, evaluation_id, question_id, position, topic_id, marks, created_at
        FROM lesson_evaluation_questions
        WHERE tenant_id = $1 AND evaluation_id = $2
        ORDER BY position ASC`
	var questions []models.LessonEvaluationQuestion
	if err := r.db.SelectContext(ctx, &questions, query, tenantID, evaluationID); err != nil {
		return nil, fmt.Errorf("list lesson evaluation questions: %w", err)
	}
	return questions, nil
}
