package models

import "time"

// SessionStatus represents the lifecycle state of a practice session.
type SessionStatus string

const (
	// SessionStatusActive accepts attempts.
	SessionStatusActive SessionStatus = "ACTIVE"
	// SessionStatusClosed rejects further attempts.
	SessionStatusClosed SessionStatus = "CLOSED"
)

// ParticipationStatus records how a student related to a scheduled activity.
type ParticipationStatus string

const (
	ParticipationParticipated    ParticipationStatus = "PARTICIPATED"
	ParticipationExcusedAbsent   ParticipationStatus = "EXCUSED_ABSENT"
	ParticipationUnexcusedAbsent ParticipationStatus = "UNEXCUSED_ABSENT"
)

// PracticeSession is one scheduled daily practice block for a class section
// on a single topic. Class, section, subject and topic references are copied
// from the scheduling context at creation time.
type PracticeSession struct {
	ID               string        `db:"id" json:"id"`
	TenantID         string        `db:"tenant_id" json:"tenant_id"`
	ScheduleSlotID   string        `db:"schedule_slot_id" json:"schedule_slot_id"`
	ClassID          string        `db:"class_id" json:"class_id"`
	SectionID        string        `db:"section_id" json:"section_id"`
	SubjectID        string        `db:"subject_id" json:"subject_id"`
	TopicID          string        `db:"topic_id" json:"topic_id"`
	SessionDate      time.Time     `db:"session_date" json:"session_date"`
	MaxQuestions     int           `db:"max_questions" json:"max_questions"`
	TimeLimitMinutes *int          `db:"time_limit_minutes" json:"time_limit_minutes,omitempty"`
	Status           SessionStatus `db:"status" json:"status"`
	AttemptCount     int           `db:"attempt_count" json:"attempt_count"`
	ParticipantCount int           `db:"participant_count" json:"participant_count"`
	AverageScore     float64       `db:"average_score" json:"average_score"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Attempt is a single immutable answer a student gave to a question inside a
// practice session.
type Attempt struct {
	ID               string    `db:"id" json:"id"`
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	SessionID        string    `db:"session_id" json:"session_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	QuestionID       string    `db:"question_id" json:"question_id"`
	SelectedOption   string    `db:"selected_option" json:"selected_option"`
	IsCorrect        bool      `db:"is_correct" json:"is_correct"`
	TimeSpentSeconds int       `db:"time_spent_seconds" json:"time_spent_seconds"`
	AttemptNumber    int       `db:"attempt_number" json:"attempt_number"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// PracticeSessionFilter scopes session listings.
type PracticeSessionFilter struct {
	ClassID   string
	SectionID string
	SubjectID string
	TopicID   string
	Status    SessionStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SessionParticipant is one student's participation entry for a session.
type SessionParticipant struct {
	StudentID string
	Status    ParticipationStatus
}
