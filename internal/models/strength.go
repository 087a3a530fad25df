package models

// PoolQuestion is one question with its observed accuracy over a set of
// attempts. Accuracy is derived from the two counters by the classifier.
type PoolQuestion struct {
	QuestionID string  `db:"question_id" json:"question_id"`
	TopicID    string  `db:"topic_id" json:"topic_id"`
	Attempts   int     `db:"attempts" json:"attempts"`
	Correct    int     `db:"correct" json:"correct"`
	Accuracy   float64 `db:"accuracy" json:"accuracy"`
}

// StrengthPools partitions every attempted question into exactly one
// accuracy bucket.
type StrengthPools struct {
	Strong   []PoolQuestion `json:"strong"`
	Moderate []PoolQuestion `json:"moderate"`
	Weak     []PoolQuestion `json:"weak"`
}

// Size returns the total number of pooled questions.
func (p StrengthPools) Size() int {
	return len(p.Strong) + len(p.Moderate) + len(p.Weak)
}
