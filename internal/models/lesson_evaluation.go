package models

import (
	"time"

	"github.com/lib/pq"
)

// EvaluationStatus is the lifecycle state of a lesson evaluation.
type EvaluationStatus string

const (
	EvaluationStatusCreated   EvaluationStatus = "CREATED"
	EvaluationStatusConducted EvaluationStatus = "CONDUCTED"
	EvaluationStatusEvaluated EvaluationStatus = "EVALUATED"
)

// LessonEvaluation is an end-of-lesson assessment over a lesson plan's topic
// set. When linked to a chapter, ingested results feed combined mastery.
type LessonEvaluation struct {
	ID               string           `db:"id" json:"id"`
	TenantID         string           `db:"tenant_id" json:"tenant_id"`
	LessonPlanID     string           `db:"lesson_plan_id" json:"lesson_plan_id"`
	ChapterID        *string          `db:"chapter_id" json:"chapter_id,omitempty"`
	ClassID          string           `db:"class_id" json:"class_id"`
	SectionID        string           `db:"section_id" json:"section_id"`
	SubjectID        string           `db:"subject_id" json:"subject_id"`
	ScheduledDate    time.Time        `db:"scheduled_date" json:"scheduled_date"`
	TotalQuestions   int              `db:"total_questions" json:"total_questions"`
	TotalMarks       float64          `db:"total_marks" json:"total_marks"`
	DurationMinutes  int              `db:"duration_minutes" json:"duration_minutes"`
	Status           EvaluationStatus `db:"status" json:"status"`
	StudentsAppeared int              `db:"students_appeared" json:"students_appeared"`
	AverageScore     float64          `db:"average_score" json:"average_score"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time       `db:"deleted_at" json:"deleted_at,omitempty"`
}

// LessonEvaluationQuestion is one selected question on an evaluation paper.
// The topic tag allows per-topic feedback when the lesson spans topics.
type LessonEvaluationQuestion struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	EvaluationID string    `db:"evaluation_id" json:"evaluation_id"`
	QuestionID   string    `db:"question_id" json:"question_id"`
	Position     int       `db:"position" json:"position"`
	TopicID      *string   `db:"topic_id" json:"topic_id,omitempty"`
	Marks        float64   `db:"marks" json:"marks"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LessonEvaluationResult is one student's outcome for an evaluation. Excused
// absences carry no score and stay out of every aggregate; unexcused
// absences score zero and count.
type LessonEvaluationResult struct {
	ID             string              `db:"id" json:"id"`
	TenantID       string              `db:"tenant_id" json:"tenant_id"`
	EvaluationID   string              `db:"evaluation_id" json:"evaluation_id"`
	StudentID      string              `db:"student_id" json:"student_id"`
	Participation  ParticipationStatus `db:"participation" json:"participation"`
	TotalMarks     float64             `db:"total_marks" json:"total_marks"`
	ObtainedMarks  *float64            `db:"obtained_marks" json:"obtained_marks,omitempty"`
	Percentage     *float64            `db:"percentage" json:"percentage,omitempty"`
	WrongPositions pq.Int64Array       `db:"wrong_positions" json:"wrong_positions"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// LessonMasterySnapshot is the immutable combined-mastery record written each
// time an evaluation result is ingested for a chapter-linked evaluation.
type LessonMasterySnapshot struct {
	ID              string    `db:"id" json:"id"`
	TenantID        string    `db:"tenant_id" json:"tenant_id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	ChapterID       string    `db:"chapter_id" json:"chapter_id"`
	EvaluationID    string    `db:"evaluation_id" json:"evaluation_id"`
	DailyMastery    float64   `db:"daily_mastery" json:"daily_mastery"`
	WeeklyMastery   float64   `db:"weekly_mastery" json:"weekly_mastery"`
	LessonMastery   float64   `db:"lesson_mastery" json:"lesson_mastery"`
	CombinedMastery float64   `db:"combined_mastery" json:"combined_mastery"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// LessonEvaluationFilter scopes evaluation listings.
type LessonEvaluationFilter struct {
	LessonPlanID string
	ChapterID    string
	ClassID      string
	SectionID    string
	SubjectID    string
	Status       EvaluationStatus
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
