package domain

// RelevanceVerdict is the typed outcome of the relevance check. An error from
// the classifier never reaches planning logic untyped: the caller maps it to
// the documented fail-closed default.
type RelevanceVerdict struct {
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason"`
}

// QueryClassification is the typed outcome of complexity/intent analysis.
type QueryClassification struct {
	Complexity Complexity `json:"complexity"`
	Intent     Intent     `json:"intent"`
	Entities   []string   `json:"entities"`
}

type FollowUpVerdict struct {
	IsFollowUp bool   `json:"is_follow_up"`
	Entity     string `json:"entity"`
}

// GradeRequest asks the grader whether a generated answer should be rejected.
type GradeRequest struct {
	Question string
	Answer   string
	RAGCount int
	KGCount  int
}

// GradeVerdict is only honored when Confidence clears the configured
// threshold; a low-confidence model opinion never overrides the
// deterministic checks.
type GradeVerdict struct {
	Reject     bool    `json:"reject"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
