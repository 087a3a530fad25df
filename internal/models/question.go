package models

import (
	"time"

	"github.com/lib/pq"
)

// QuestionStatus is the review state of a question in the shared bank.
type QuestionStatus string

const (
	QuestionStatusDraft    QuestionStatus = "DRAFT"
	QuestionStatusApproved QuestionStatus = "APPROVED"
	QuestionStatusRetired  QuestionStatus = "RETIRED"
)

// QuestionDifficulty grades the intended difficulty of a question.
type QuestionDifficulty string

const (
	QuestionDifficultyEasy   QuestionDifficulty = "EASY"
	QuestionDifficultyMedium QuestionDifficulty = "MEDIUM"
	QuestionDifficultyHard   QuestionDifficulty = "HARD"
)

// Question is the engine's read view of the shared question bank. The engine
// only reads approved questions and bumps usage_count; all other writes
// belong to the content system.
type Question struct {
	ID            string             `db:"id" json:"id"`
	TenantID      string             `db:"tenant_id" json:"tenant_id"`
	TopicID       string             `db:"topic_id" json:"topic_id"`
	Text          string             `db:"text" json:"text"`
	Options       pq.StringArray     `db:"options" json:"options"`
	CorrectOption string             `db:"correct_option" json:"-"`
	Difficulty    QuestionDifficulty `db:"difficulty" json:"difficulty"`
	Status        QuestionStatus     `db:"status" json:"status"`
	UsageCount    int                `db:"usage_count" json:"usage_count"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	DeletedAt     *time.Time         `db:"deleted_at" json:"deleted_at,omitempty"`
}
