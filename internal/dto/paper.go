package dto

// GeneratePaperOptions controls question selection when building a test
// paper. A nil Seed falls back to a time-based seed.
type GeneratePaperOptions struct {
	Shuffle                 bool   `json:"shuffle"`
	IncludeModerateFallback bool   `json:"includeModerateFallback"`
	Seed                    *int64 `json:"seed,omitempty"`
}

// GeneratePaperResult summarises a weekly paper generation run. Shortfalls
// surface as warnings, never as errors.
type GeneratePaperResult struct {
	TotalSelected int      `json:"totalSelected"`
	StrongCount   int      `json:"strongCount"`
	WeakCount     int      `json:"weakCount"`
	ModerateCount int      `json:"moderateCount"`
	Warnings      []string `json:"warnings,omitempty"`
}

// LessonPaperResult summarises a lesson evaluation paper generation run.
type LessonPaperResult struct {
	TotalSelected int      `json:"totalSelected"`
	TopicsCovered int      `json:"topicsCovered"`
	Warnings      []string `json:"warnings,omitempty"`
}
