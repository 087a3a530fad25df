package models

import "time"

// RecommendationType names the intervention suggested for a student.
type RecommendationType string

const (
	// RecommendationRevision suggests self-guided revision of the topic.
	RecommendationRevision RecommendationType = "REVISION"
	// RecommendationExtraDailyLoop schedules additional practice sessions.
	RecommendationExtraDailyLoop RecommendationType = "EXTRA_DAILY_LOOP"
	// RecommendationRemedialClass asks for teacher-led remediation.
	RecommendationRemedialClass RecommendationType = "REMEDIAL_CLASS"
)

// RecommendationPriority orders interventions for teacher attention.
type RecommendationPriority string

const (
	RecommendationPriorityLow    RecommendationPriority = "LOW"
	RecommendationPriorityMedium RecommendationPriority = "MEDIUM"
	RecommendationPriorityHigh   RecommendationPriority = "HIGH"
)

// AdaptiveRecommendation is one generated intervention for a student on a
// topic. Rows are append-only; each generation run inserts fresh rows.
type AdaptiveRecommendation struct {
	ID             string                 `db:"id" json:"id"`
	TenantID       string                 `db:"tenant_id" json:"tenant_id"`
	StudentID      string                 `db:"student_id" json:"student_id"`
	TopicID        string                 `db:"topic_id" json:"topic_id"`
	EvaluationID   *string                `db:"evaluation_id" json:"evaluation_id,omitempty"`
	Type           RecommendationType     `db:"type" json:"type"`
	Priority       RecommendationPriority `db:"priority" json:"priority"`
	MasteryPercent float64                `db:"mastery_percent" json:"mastery_percent"`
	Reason         string                 `db:"reason" json:"reason"`
	Actioned       bool                   `db:"actioned" json:"actioned"`
	ActionedBy     *string                `db:"actioned_by" json:"actioned_by,omitempty"`
	ActionedAt     *time.Time             `db:"actioned_at" json:"actioned_at,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updated_at"`
}

// RecommendationFilter scopes recommendation listings.
type RecommendationFilter struct {
	StudentID string
	TopicID   string
	Type      RecommendationType
	Priority  RecommendationPriority
	Actioned  *bool
	Page      int
	PageSize  int
}
