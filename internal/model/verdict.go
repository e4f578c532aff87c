package model

import "math"

// ClaimVerdict is the judgment for one atomic claim. TruthPercentage and
// Confidence arrive raw from the generation stage and are post-processed by
// the calibration engine before display.
type ClaimVerdict struct {
	ClaimID               string   `json:"claim_id"`
	ClaimText             string   `json:"claim_text"`
	TruthPercentage       float64  `json:"truth_percentage"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
	SupportingEvidenceIDs []string `json:"supporting_evidence_ids"`
}

// ContextAnswer is one contextual sub-question answered during analysis,
// carrying its own confidence. The calibration engine compares these against
// the overall confidence for internal consistency.
type ContextAnswer struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Adjustment records one calibration layer changing the working confidence.
type Adjustment struct {
	Type   string  `json:"type"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Reason string  `json:"reason"`
}

// CalibrationResult is the output of one calibration call. It is created
// fresh per call and never mutated after return.
type CalibrationResult struct {
	CalibratedConfidence float64      `json:"calibrated_confidence"`
	Adjustments          []Adjustment `json:"adjustments"`
	Warnings             []string     `json:"warnings"`
}

// TruthLabel buckets a truth percentage for display.
type TruthLabel string

const (
	LabelFalse       TruthLabel = "false"
	LabelMostlyFalse TruthLabel = "mostly_false"
	LabelMixed       TruthLabel = "mixed"
	LabelMostlyTrue  TruthLabel = "mostly_true"
	LabelTrue        TruthLabel = "true"
)

// ClampPercent clamps a percentage to [0,100]. Non-finite inputs map to 50.
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 50
	}
	return math.Min(100, math.Max(0, v))
}

// Label maps a verdict's truth percentage to a display bucket. The percentage
// is clamped first so out-of-range raw values never leak into labeling.
func (v *ClaimVerdict) Label() TruthLabel {
	pct := ClampPercent(v.TruthPercentage)
	switch {
	case pct < 20:
		return LabelFalse
	case pct < 40:
		return LabelMostlyFalse
	case pct < 60:
		return LabelMixed
	case pct < 80:
		return LabelMostlyTrue
	default:
		return LabelTrue
	}
}

// AnalysisResult is the full outcome of verifying one claim or article.
type AnalysisResult struct {
	RunID          string                       `json:"run_id"`
	InputText      string                       `json:"input_text"`
	Verdicts       []ClaimVerdict               `json:"verdicts"`
	Evidence       []EvidenceItem               `json:"evidence"`
	Sources        []FetchedSource              `json:"sources"`
	ContextAnswers []ContextAnswer              `json:"context_answers,omitempty"`
	Calibrations   map[string]CalibrationResult `json:"calibrations,omitempty"`
	RecencyPenalty float64                      `json:"recency_penalty,omitempty"`
	Warnings       []string                     `json:"warnings,omitempty"`
	TotalTokens    int                          `json:"total_tokens,omitempty"`
}
