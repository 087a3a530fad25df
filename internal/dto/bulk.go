package dto

// BulkFailure captures one rejected item in a bulk ingestion.
type BulkFailure struct {
	StudentID string `json:"studentId"`
	Reason    string `json:"reason"`
}

// BulkSubmitResult aggregates per-item outcomes of a bulk ingestion. Items
// fail in isolation; one bad entry never rolls back its neighbours.
type BulkSubmitResult struct {
	SuccessCount int           `json:"successCount"`
	Failures     []BulkFailure `json:"failures,omitempty"`
}

// CombinedMasteryResult reports the blended mastery computed after a lesson
// evaluation result lands for a chapter-linked evaluation.
type CombinedMasteryResult struct {
	SnapshotID             string  `json:"snapshotId"`
	DailyMastery           float64 `json:"dailyMastery"`
	WeeklyMastery          float64 `json:"weeklyMastery"`
	LessonMastery          float64 `json:"lessonMastery"`
	CombinedMastery        float64 `json:"combinedMastery"`
	RecommendationsCreated int     `json:"recommendationsCreated"`
}
