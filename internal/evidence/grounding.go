package evidence

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/factharbor/verify-cli/internal/model"
)

// GroundingConfig controls the grounding check and its confidence penalty.
type GroundingConfig struct {
	// Threshold is the grounding ratio below which a penalty applies.
	// Default: 0.5.
	Threshold float64

	// FloorRatio is the ratio at which the penalty saturates. Default: 0.1.
	FloorRatio float64

	// ReductionFactor scales the maximum penalty (as a fraction of 100
	// confidence points). Default: 0.3.
	ReductionFactor float64
}

func (c GroundingConfig) withDefaults() GroundingConfig {
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.FloorRatio <= 0 {
		c.FloorRatio = 0.1
	}
	if c.ReductionFactor <= 0 {
		c.ReductionFactor = 0.3
	}
	return c
}

// VerdictGrounding is the per-verdict outcome of the grounding check.
type VerdictGrounding struct {
	ClaimID       string  `json:"claim_id"`
	TotalTerms    int     `json:"total_terms"`
	GroundedTerms int     `json:"grounded_terms"`
	Ratio         float64 `json:"ratio"`
}

// GroundingReport aggregates grounding across all verdicts of an analysis.
// OverallRatio is terms-weighted: verdicts contribute proportionally to how
// many key terms their reasoning produced.
type GroundingReport struct {
	PerVerdict   []VerdictGrounding `json:"per_verdict"`
	OverallRatio float64            `json:"overall_ratio"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Ground checks how much of each verdict's reasoning is textually supported
// by its cited evidence. terms holds the key terms extracted from each
// verdict's reasoning, parallel to verdicts; extraction itself happens
// upstream in one batched LLM call. A verdict with no extracted terms is
// trivially grounded. A verdict with terms but no cited evidence is fully
// ungrounded and produces a warning.
func Ground(verdicts []model.ClaimVerdict, terms [][]string, items []model.EvidenceItem) GroundingReport {
	byID := make(map[string]model.EvidenceItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	fold := cases.Fold()

	report := GroundingReport{PerVerdict: make([]VerdictGrounding, 0, len(verdicts))}
	sumGrounded, sumTotal := 0, 0

	for i, verdict := range verdicts {
		var verdictTerms []string
		if i < len(terms) {
			verdictTerms = terms[i]
		}

		vg := VerdictGrounding{ClaimID: verdict.ClaimID, TotalTerms: len(verdictTerms)}

		if len(verdictTerms) == 0 {
			vg.Ratio = 1
			report.PerVerdict = append(report.PerVerdict, vg)
			continue
		}

		var cited strings.Builder
		for _, id := range verdict.SupportingEvidenceIDs {
			if item, ok := byID[id]; ok {
				cited.WriteString(item.Statement)
				cited.WriteString(" ")
				cited.WriteString(item.SourceExcerpt)
				cited.WriteString(" ")
			}
		}

		if cited.Len() == 0 {
			vg.Ratio = 0
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("verdict %s cites no resolvable evidence for %d key terms", verdict.ClaimID, len(verdictTerms)))
			report.PerVerdict = append(report.PerVerdict, vg)
			sumTotal += len(verdictTerms)
			continue
		}

		haystack := fold.String(cited.String())
		for _, term := range verdictTerms {
			if term == "" {
				vg.TotalTerms--
				continue
			}
			if strings.Contains(haystack, fold.String(term)) {
				vg.GroundedTerms++
			}
		}
		if vg.TotalTerms == 0 {
			vg.Ratio = 1
			report.PerVerdict = append(report.PerVerdict, vg)
			continue
		}

		vg.Ratio = float64(vg.GroundedTerms) / float64(vg.TotalTerms)
		report.PerVerdict = append(report.PerVerdict, vg)
		sumGrounded += vg.GroundedTerms
		sumTotal += vg.TotalTerms
	}

	if sumTotal == 0 {
		report.OverallRatio = 1
	} else {
		report.OverallRatio = float64(sumGrounded) / float64(sumTotal)
	}
	return report
}

// ApplyGroundingPenalty reduces confidence when the grounding ratio falls
// below the threshold. The penalty ramps linearly from zero at the threshold
// to ReductionFactor*100 points at FloorRatio, and the adjusted confidence
// never drops below 5.
func ApplyGroundingPenalty(confidence, ratio float64, cfg GroundingConfig) (adjusted float64, penalty float64) {
	cfg = cfg.withDefaults()
	if ratio >= cfg.Threshold {
		return confidence, 0
	}

	clamped := math.Max(ratio, cfg.FloorRatio)
	penalty = math.Round(((cfg.Threshold - clamped) / (cfg.Threshold - cfg.FloorRatio)) * cfg.ReductionFactor * 100)
	adjusted = math.Max(5, confidence-penalty)
	return adjusted, penalty
}
