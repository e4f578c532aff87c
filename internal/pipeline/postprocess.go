package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/calibration"
	"github.com/factharbor/verify-cli/internal/evidence"
	"github.com/factharbor/verify-cli/internal/llm"
	"github.com/factharbor/verify-cli/internal/model"
)

const termsSystem = `You extract the key factual terms from verdict reasoning:
named entities, numbers, dates, and domain-specific nouns. Return JSON only.`

const termsPromptFmt = `For each verdict below, list the key factual terms in
its reasoning. Return JSON of the form:
{"terms": [{"claimId": "...", "terms": ["...", "..."]}]}

Verdicts:
%s`

type termsPayload struct {
	Terms []struct {
		ClaimID string   `json:"claimId" validate:"required"`
		Terms   []string `json:"terms"`
	} `json:"terms" validate:"required"`
}

// postProcess runs the deterministic adjustment chain over a finished
// analysis: structural filtering, provenance validation, grounding against
// extracted terms, four-layer calibration, and the recency penalty. Every
// step mutates result in place and is pure given the same inputs, except
// term extraction which makes one batched LLM call.
func (p *Pipeline) postProcess(ctx context.Context, result *model.AnalysisResult, granularity string) {
	p.filterEvidence(result)
	p.validateProvenance(result)

	terms := p.extractTerms(ctx, result)
	report := evidence.Ground(result.Verdicts, terms, result.Evidence)
	result.Warnings = append(result.Warnings, report.Warnings...)

	ratioByClaim := make(map[string]float64, len(report.PerVerdict))
	for _, vg := range report.PerVerdict {
		ratioByClaim[vg.ClaimID] = vg.Ratio
	}

	calCfg := p.calibrationConfig()
	groundCfg := evidence.GroundingConfig{
		Threshold:       p.cfg.Grounding.Threshold,
		FloorRatio:      p.cfg.Grounding.Floor,
		ReductionFactor: p.cfg.Grounding.ReductionFactor,
	}

	for i := range result.Verdicts {
		v := &result.Verdicts[i]

		cited := citedItems(v, result.Evidence)
		cal := calibration.Calibrate(v.Confidence, v.TruthPercentage, cited, result.Sources, result.ContextAnswers, calCfg)
		result.Calibrations[v.ClaimID] = cal
		result.Warnings = append(result.Warnings, cal.Warnings...)
		v.Confidence = cal.CalibratedConfidence

		ratio, ok := ratioByClaim[v.ClaimID]
		if !ok {
			ratio = 1
		}
		adjusted, penalty := evidence.ApplyGroundingPenalty(v.Confidence, ratio, groundCfg)
		if penalty > 0 {
			zap.L().Debug("pipeline: grounding penalty applied",
				zap.String("claim_id", v.ClaimID),
				zap.Float64("ratio", ratio),
				zap.Float64("penalty", penalty))
		}
		v.Confidence = adjusted
	}

	p.applyRecencyPenalty(result, granularity)
}

// filterEvidence drops structurally unusable items and scrubs their IDs from
// verdict citations.
func (p *Pipeline) filterEvidence(result *model.AnalysisResult) {
	fr := evidence.Filter(result.Evidence, evidence.FilterConfig{
		MinStatementLength:        p.cfg.Filter.MinStatementLength,
		MinExcerptLength:          p.cfg.Filter.MinExcerptLength,
		MinStatisticExcerptLength: p.cfg.Filter.MinStatisticExcerptLength,
	})
	if len(fr.Filtered) == 0 {
		return
	}

	result.Evidence = fr.Kept
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("%d evidence items removed by structural filter", len(fr.Filtered)))
	scrubCitations(result.Verdicts, fr.Kept)
}

// validateProvenance drops items that cannot be traced to a real source and
// flags grounded-search sources that arrived without a resolvable URL.
func (p *Pipeline) validateProvenance(result *model.AnalysisResult) {
	kept := result.Evidence[:0]
	dropped := 0
	for _, item := range result.Evidence {
		pr := evidence.ValidateProvenance(item)
		if pr.IsValid {
			kept = append(kept, item)
			continue
		}
		dropped++
		zap.L().Debug("pipeline: evidence failed provenance",
			zap.String("evidence_id", item.ID),
			zap.String("reason", pr.FailureReason))
	}
	if dropped > 0 {
		result.Evidence = kept
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d evidence items failed provenance validation", dropped))
		scrubCitations(result.Verdicts, kept)
	}

	grounded := evidence.ValidateGroundedSearchProvenance(result.Sources)
	if grounded.ShouldFallbackToExternalSearch {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d of %d grounded search sources lack provenance",
				grounded.InvalidCount, grounded.GroundedCount))
	}
}

// extractTerms makes one batched call for all verdicts. On failure every
// verdict gets an empty term set, which the grounding check treats as
// trivially grounded rather than penalizing.
func (p *Pipeline) extractTerms(ctx context.Context, result *model.AnalysisResult) [][]string {
	terms := make([][]string, len(result.Verdicts))
	if len(result.Verdicts) == 0 {
		return terms
	}

	var list strings.Builder
	for _, v := range result.Verdicts {
		fmt.Fprintf(&list, "- claimId=%s: %s\n", v.ClaimID, v.Reasoning)
	}

	gen := p.newGenerator("terms", p.cfg.Anthropic.HaikuModel, termsSystem)
	payload, err := llm.GenerateValidated[termsPayload](ctx, gen, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(termsPromptFmt, list.String())},
	}, p.cfg.Pipeline.MaxSchemaRetries)
	if err != nil {
		zap.L().Warn("pipeline: term extraction failed, skipping grounding check", zap.Error(err))
		result.Warnings = append(result.Warnings, "term extraction failed, grounding check skipped")
		return terms
	}

	byClaim := make(map[string][]string, len(payload.Terms))
	for _, t := range payload.Terms {
		byClaim[t.ClaimID] = t.Terms
	}
	for i, v := range result.Verdicts {
		terms[i] = byClaim[v.ClaimID]
	}
	return terms
}

// applyRecencyPenalty extracts date signals from source metadata and
// evidence excerpts, computes one penalty for the whole analysis, and
// deducts it from every verdict's confidence with a floor of 5.
func (p *Pipeline) applyRecencyPenalty(result *model.AnalysisResult, granularity string) {
	texts := make([]string, 0, len(result.Evidence)+len(result.Sources))
	for _, item := range result.Evidence {
		texts = append(texts, item.SourceExcerpt)
	}
	for _, src := range result.Sources {
		texts = append(texts, src.FetchedAt.Format("2006-01-02"))
		if src.FullText != "" {
			texts = append(texts, src.FullText)
		}
	}

	now := p.nowFunc()
	candidates := calibration.ExtractDateCandidates(texts, now)
	rr := calibration.RecencyPenalty(candidates, calibration.RecencyConfig{
		MaxPenalty:   p.cfg.Recency.MaxPenalty,
		WindowMonths: p.cfg.Recency.WindowMonths,
		Granularity:  calibration.TopicGranularity(granularity),
	}, now)

	result.RecencyPenalty = rr.EffectivePenalty
	if rr.EffectivePenalty <= 0 {
		return
	}
	for i := range result.Verdicts {
		v := &result.Verdicts[i]
		v.Confidence = max(5, v.Confidence-rr.EffectivePenalty)
	}
	zap.L().Info("pipeline: recency penalty applied",
		zap.Float64("penalty", rr.EffectivePenalty),
		zap.Float64("months_old", rr.MonthsOld),
		zap.Int("candidates", rr.CandidateCount))
}

func (p *Pipeline) calibrationConfig() calibration.Config {
	cfg := calibration.Config{
		Enabled: p.cfg.Calibration.Enabled,
		DensityAnchor: calibration.DensityAnchorConfig{
			Enabled: true,
			Density: evidence.DensityConfig{
				SourceCountThreshold: p.cfg.Density.SourceCountThreshold,
				MinConfidenceBase:    p.cfg.Density.MinConfidenceBase,
				MinConfidenceMax:     p.cfg.Density.MinConfidenceMax,
			},
		},
		BandSnapping: calibration.BandSnappingConfig{
			Enabled:  true,
			Strength: p.cfg.Calibration.BandStrength,
		},
		VerdictCoupling: calibration.VerdictCouplingConfig{
			Enabled:                 true,
			StrongThresholdDistance: p.cfg.Calibration.StrongThresholdDistance,
			MinConfidenceStrong:     p.cfg.Calibration.MinConfidenceStrong,
			MinConfidenceNeutral:    p.cfg.Calibration.MinConfidenceNeutral,
		},
		ContextConsistency: calibration.ContextConsistencyConfig{
			Enabled:             true,
			MaxConfidenceSpread: p.cfg.Calibration.MaxConfidenceSpread,
			ReductionFactor:     p.cfg.Calibration.SpreadReductionFactor,
		},
	}

	if path := p.cfg.Calibration.BandsFile; path != "" {
		bands, err := calibration.LoadBands(path)
		if err != nil {
			zap.L().Warn("pipeline: bands file unusable, using defaults", zap.Error(err))
		} else {
			cfg.BandSnapping.Bands = bands
		}
	}
	return cfg
}

// citedItems resolves a verdict's citations to full evidence items.
func citedItems(v *model.ClaimVerdict, items []model.EvidenceItem) []model.EvidenceItem {
	byID := make(map[string]model.EvidenceItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	var out []model.EvidenceItem
	for _, id := range v.SupportingEvidenceIDs {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// scrubCitations removes citations to evidence that no longer exists.
func scrubCitations(verdicts []model.ClaimVerdict, kept []model.EvidenceItem) {
	known := make(map[string]bool, len(kept))
	for _, item := range kept {
		known[item.ID] = true
	}
	for i := range verdicts {
		v := &verdicts[i]
		filtered := v.SupportingEvidenceIDs[:0]
		for _, id := range v.SupportingEvidenceIDs {
			if known[id] {
				filtered = append(filtered, id)
			}
		}
		v.SupportingEvidenceIDs = filtered
	}
}
