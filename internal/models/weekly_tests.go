package models

import (
	"time"

	"github.com/lib/pq"
)

// WeeklyTestStatus is the lifecycle state of a weekly test.
type WeeklyTestStatus string

const (
	// WeeklyTestStatusCreated means the test exists; its paper may be
	// (re)generated.
	WeeklyTestStatusCreated WeeklyTestStatus = "CREATED"
	// WeeklyTestStatusConducted means the test was held offline and awaits
	// results.
	WeeklyTestStatusConducted WeeklyTestStatus = "CONDUCTED"
	// WeeklyTestStatusEvaluated means at least one result has been ingested.
	WeeklyTestStatusEvaluated WeeklyTestStatus = "EVALUATED"
)

// QuestionStrength buckets a question by observed class accuracy.
type QuestionStrength string

const (
	StrengthStrong   QuestionStrength = "STRONG"
	StrengthModerate QuestionStrength = "MODERATE"
	StrengthWeak     QuestionStrength = "WEAK"
)

// WeeklyTest is a consolidation test over the topics a class covered during
// one week, mixing questions the class is strong and weak on.
type WeeklyTest struct {
	ID               string           `db:"id" json:"id"`
	TenantID         string           `db:"tenant_id" json:"tenant_id"`
	ClassID          string           `db:"class_id" json:"class_id"`
	SectionID        string           `db:"section_id" json:"section_id"`
	SubjectID        string           `db:"subject_id" json:"subject_id"`
	TopicIDs         pq.StringArray   `db:"topic_ids" json:"topic_ids"`
	WeekStart        time.Time        `db:"week_start" json:"week_start"`
	WeekEnd          time.Time        `db:"week_end" json:"week_end"`
	StrongPercent    int              `db:"strong_percent" json:"strong_percent"`
	WeakPercent      int              `db:"weak_percent" json:"weak_percent"`
	TotalQuestions   int              `db:"total_questions" json:"total_questions"`
	TotalMarks       float64          `db:"total_marks" json:"total_marks"`
	DurationMinutes  int              `db:"duration_minutes" json:"duration_minutes"`
	Status           WeeklyTestStatus `db:"status" json:"status"`
	StudentsAppeared int              `db:"students_appeared" json:"students_appeared"`
	AverageScore     float64          `db:"average_score" json:"average_score"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time       `db:"deleted_at" json:"deleted_at,omitempty"`
}

// WeeklyTestQuestion is one selected question on a generated weekly paper.
type WeeklyTestQuestion struct {
	ID         string           `db:"id" json:"id"`
	TenantID   string           `db:"tenant_id" json:"tenant_id"`
	TestID     string           `db:"test_id" json:"test_id"`
	QuestionID string           `db:"question_id" json:"question_id"`
	Position   int              `db:"position" json:"position"`
	Strength   QuestionStrength `db:"strength" json:"strength"`
	Marks      float64          `db:"marks" json:"marks"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// WeeklyTestResult is one student's marked outcome for a conducted test.
type WeeklyTestResult struct {
	ID                 string        `db:"id" json:"id"`
	TenantID           string        `db:"tenant_id" json:"tenant_id"`
	TestID             string        `db:"test_id" json:"test_id"`
	StudentID          string        `db:"student_id" json:"student_id"`
	TotalMarks         float64       `db:"total_marks" json:"total_marks"`
	ObtainedMarks      float64       `db:"obtained_marks" json:"obtained_marks"`
	Percentage         float64       `db:"percentage" json:"percentage"`
	AttemptedPositions pq.Int64Array `db:"attempted_positions" json:"attempted_positions"`
	WrongPositions     pq.Int64Array `db:"wrong_positions" json:"wrong_positions"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// WeeklyStudentPerformance breaks a result down by question strength so the
// engine can tell whether weak areas are recovering.
type WeeklyStudentPerformance struct {
	ID               string    `db:"id" json:"id"`
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	TestID           string    `db:"test_id" json:"test_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	StrongTotal      int       `db:"strong_total" json:"strong_total"`
	StrongCorrect    int       `db:"strong_correct" json:"strong_correct"`
	StrongAccuracy   float64   `db:"strong_accuracy" json:"strong_accuracy"`
	WeakTotal        int       `db:"weak_total" json:"weak_total"`
	WeakCorrect      int       `db:"weak_correct" json:"weak_correct"`
	WeakAccuracy     float64   `db:"weak_accuracy" json:"weak_accuracy"`
	ModerateTotal    int       `db:"moderate_total" json:"moderate_total"`
	ModerateCorrect  int       `db:"moderate_correct" json:"moderate_correct"`
	ModerateAccuracy float64   `db:"moderate_accuracy" json:"moderate_accuracy"`
	OverallTotal     int       `db:"overall_total" json:"overall_total"`
	OverallCorrect   int       `db:"overall_correct" json:"overall_correct"`
	MasteryDelta     float64   `db:"mastery_delta" json:"mastery_delta"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// WeeklyTestFilter scopes weekly test listings.
type WeeklyTestFilter struct {
	ClassID   string
	SectionID string
	SubjectID string
	Status    WeeklyTestStatus
	WeekFrom  *time.Time
	WeekTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
