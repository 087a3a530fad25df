package models

import "time"

// TopicMastery accumulates a student's practice history on a single topic.
// mastery_percent is always derived from the two attempt counters in the same
// statement that moves them; it is stored only for query convenience.
type TopicMastery struct {
	ID                   string     `db:"id" json:"id"`
	TenantID             string     `db:"tenant_id" json:"tenant_id"`
	StudentID            string     `db:"student_id" json:"student_id"`
	TopicID              string     `db:"topic_id" json:"topic_id"`
	TotalAttempts        int        `db:"total_attempts" json:"total_attempts"`
	CorrectAttempts      int        `db:"correct_attempts" json:"correct_attempts"`
	MasteryPercent       float64    `db:"mastery_percent" json:"mastery_percent"`
	CurrentStreak        int        `db:"current_streak" json:"current_streak"`
	BestStreak           int        `db:"best_streak" json:"best_streak"`
	LastActivityDate     *time.Time `db:"last_activity_date" json:"last_activity_date,omitempty"`
	SessionsScheduled    int        `db:"sessions_scheduled" json:"sessions_scheduled"`
	SessionsParticipated int        `db:"sessions_participated" json:"sessions_participated"`
	ExcusedAbsences      int        `db:"excused_absences" json:"excused_absences"`
	UnexcusedAbsences    int        `db:"unexcused_absences" json:"unexcused_absences"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// TopicMasteryDelta describes one atomic adjustment to a student's counters.
// The repository applies the whole delta in a single upsert statement so
// concurrent writers never lose increments.
type TopicMasteryDelta struct {
	TenantID  string
	StudentID string
	TopicID   string

	TotalAttempts   int
	CorrectAttempts int

	// StreakOutcome: nil leaves streaks untouched, true extends the current
	// streak by one, false resets it. Best streak only ever grows.
	StreakOutcome *bool

	SessionsScheduled    int
	SessionsParticipated int
	ExcusedAbsences      int
	UnexcusedAbsences    int

	LastActivityDate *time.Time
}
