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

// PracticeSessionRepository handles practice session persistence.
type PracticeSessionRepository struct {
	db *sqlx.DB
}

// NewPracticeSessionRepository creates a new practice session repository.
func NewPracticeSessionRepository(db *sqlx.DB) *PracticeSessionRepository {
	return &PracticeSessionRepository{db: db}
}

// Create persists a new practice session.
func (r *PracticeSessionRepository) Create(ctx context.Context, session *models.PracticeSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO practice_sessions (id, tenant_id, schedule_slot_id, class_id, section_id, subject_id, topic_id, session_date, max_questions, time_limit_minutes, status, attempt_count, participant_count, average_score, created_at, updated_at)
        VALUES (:id, :tenant_id, :schedule_slot_id, :class_id, :section_id, :subject_id, :topic_id, :session_date, :max_questions, :time_limit_minutes, :status, :attempt_count, :participant_count, :average_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create practice session: %w", err)
	}
	return nil
}

// FindByID fetches a session inside the tenant.
func (r *PracticeSessionRepository) FindByID(ctx context.Context, tenantID, id string) (*models.PracticeSession, error) {
	const query = `SELECT id, tenant_id, schedule_slot_id, class_id, section_id, subject_id, topic_id, session_date, max_questions, time_limit_minutes, status, attempt_count, participant_count, average_score, created_at, updated_at, deleted_at
        FROM practice_sessions
        WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	var session models.PracticeSession
	if err := r.db.GetContext(ctx, &session, query, tenantID, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByScheduleSlot returns the session bound to a schedule slot, if any.
func (r *PracticeSessionRepository) FindByScheduleSlot(ctx context.Context, tenantID, slotID string) (*models.PracticeSession, error) {
	const query = `SELECT id, tenant_id, schedule_slot_id, class_id, section_id, subject_id, topic_id, session_date, max_questions, time_limit_minutes, status, attempt_count, participant_count, average_score, created_at, updated_at, deleted_at
        FROM practice_sessions
        WHERE tenant_id = $1 AND schedule_slot_id = $2 AND deleted_at IS NULL`
	var session models.PracticeSession
	if err := r.db.GetContext(ctx, &session, query, tenantID, slotID); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions matching the filter plus the unpaged total.
func (r *PracticeSessionRepository) List(ctx context.Context, tenantID string, filter models.PracticeSessionFilter) ([]models.PracticeSession, int, error) {
	base := "FROM practice_sessions"
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
	if filter.TopicID != "" {
		conditions = append(conditions, fmt.Sprintf("topic_id = $%d", len(args)+1))
		args = append(args, filter.TopicID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"session_date": "session_date",
		"created_at":   "created_at",
		"status":       "status",
	}
	if sortBy == "" {
		sortBy = "session_date"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "session_date"
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

	query := fmt.Sprintf(`SELECT id, tenant_id, schedule_slot_id, class_id, section_id, subject_id, topic_id, session_date, max_questions, time_limit_minutes, status, attempt_count, participant_count, average_score, created_at, updated_at, deleted_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var sessions []models.PracticeSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list practice sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count practice sessions: %w", err)
	}
	return sessions, total, nil
}

// UpdateStatusIf transitions the session status only when it currently holds
// the expected value. Returns false when no row matched.
func (r *PracticeSessionRepository) UpdateStatusIf(ctx context.Context, tenantID, id string, from, to models.SessionStatus) (bool, error) {
	const query = `UPDATE practice_sessions SET status = $4, updated_at = $5
        WHERE tenant_id = $1 AND id = $2 AND status = $3 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update practice session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("practice session status rows affected: %w", err)
	}
	return affected == 1, nil
}

// RefreshStats recomputes the session's rolling counters from its attempts in
// a single statement.
func (r *PracticeSessionRepository) RefreshStats(ctx context.Context, tenantID, id string) error {
	const query = `UPDATE practice_sessions SET
        attempt_count = (SELECT COUNT(*) FROM practice_attempts a WHERE a.tenant_id = practice_sessions.tenant_id AND a.session_id = practice_sessions.id),
        participant_count = (SELECT COUNT(DISTINCT a.student_id) FROM practice_attempts a WHERE a.tenant_id = practice_sessions.tenant_id AND a.session_id = practice_sessions.id),
        average_score = COALESCE((SELECT ROUND(100 * AVG(CASE WHEN a.is_correct THEN 1 ELSE 0 END), 2) FROM practice_attempts a WHERE a.tenant_id = practice_sessions.tenant_id AND a.session_id = practice_sessions.id), 0),
        updated_at = $3
        WHERE tenant_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, tenantID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh practice session stats: %w", err)
	}
	return nil
}

// SoftDelete marks the session deleted without removing history.
func (r *PracticeSessionRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	const query = `UPDATE practice_sessions SET deleted_at = $3, updated_at = $3
        WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, tenantID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete practice session: %w", err)
	}
	return nil
}
