// Package evidence implements the deterministic quality gates applied to
// extracted evidence before calibration: structural filtering, provenance
// validation, and density/grounding scoring. Everything here is pure: no
// I/O, no provider calls.
package evidence

import (
	"strings"
	"unicode"

	"github.com/factharbor/verify-cli/internal/model"
)

// Reject reasons emitted by the structural filter.
const (
	ReasonOpinionSource            = "opinion_source"
	ReasonLowProbativeValue        = "low_probative_value"
	ReasonStatementTooShort        = "statement_too_short"
	ReasonMissingOrShortExcerpt    = "missing_or_short_excerpt"
	ReasonMissingSourceURL         = "missing_source_url"
	ReasonStatisticWithoutNumber   = "statistic_without_number"
	ReasonStatisticExcerptTooShort = "statistic_excerpt_too_short"
)

// FilterConfig controls the structural filter. Zero values take the stated
// defaults; Require* flags default to enabled and are expressed inverted so
// the zero config is the default config.
type FilterConfig struct {
	// MinStatementLength rejects statements shorter than this. Default: 20.
	MinStatementLength int

	// MinExcerptLength rejects excerpts shorter than this when excerpts are
	// required. Default: 30.
	MinExcerptLength int

	// MinStatisticExcerptLength is the stricter excerpt minimum for
	// statistic-category items. Default: 50.
	MinStatisticExcerptLength int

	// SkipExcerptCheck disables the source-excerpt requirement.
	SkipExcerptCheck bool

	// SkipURLCheck disables the source-URL requirement.
	SkipURLCheck bool

	// SkipNumberCheck disables the digit requirement for statistics.
	SkipNumberCheck bool
}

func (c FilterConfig) withDefaults() FilterConfig {
	if c.MinStatementLength <= 0 {
		c.MinStatementLength = 20
	}
	if c.MinExcerptLength <= 0 {
		c.MinExcerptLength = 30
	}
	if c.MinStatisticExcerptLength <= 0 {
		c.MinStatisticExcerptLength = 50
	}
	return c
}

// FilteredItem pairs a rejected item with the first rule that matched it.
type FilteredItem struct {
	Item   model.EvidenceItem `json:"item"`
	Reason string             `json:"reason"`
}

// FilterStats summarizes one filter pass. FilterReasons counts sum to the
// number of filtered items.
type FilterStats struct {
	Total         int            `json:"total"`
	Kept          int            `json:"kept"`
	Filtered      int            `json:"filtered"`
	FilterReasons map[string]int `json:"filter_reasons"`
}

// FilterResult holds the outcome of a structural filter pass. Kept preserves
// input order; input items are never mutated.
type FilterResult struct {
	Kept     []model.EvidenceItem `json:"kept"`
	Filtered []FilteredItem       `json:"filtered"`
	Stats    FilterStats          `json:"stats"`
}

// Filter applies the structural accept/reject rules to each item. Rules run
// in fixed priority order and the first matching rule wins. Semantic quality
// checks (vague phrasing, attribution, temporal anchors, citations,
// near-duplicates) are not performed here; those belong to the upstream LLM
// quality assessment, not to structural gating.
func Filter(items []model.EvidenceItem, cfg FilterConfig) FilterResult {
	cfg = cfg.withDefaults()

	result := FilterResult{
		Kept: make([]model.EvidenceItem, 0, len(items)),
		Stats: FilterStats{
			Total:         len(items),
			FilterReasons: map[string]int{},
		},
	}

	for _, item := range items {
		if reason := rejectReason(item, cfg); reason != "" {
			result.Filtered = append(result.Filtered, FilteredItem{Item: item, Reason: reason})
			result.Stats.FilterReasons[reason]++
			continue
		}
		result.Kept = append(result.Kept, item)
	}

	result.Stats.Kept = len(result.Kept)
	result.Stats.Filtered = len(result.Filtered)
	return result
}

// rejectReason returns the first matching reject rule, or "" to keep.
func rejectReason(item model.EvidenceItem, cfg FilterConfig) string {
	if item.Authority == model.AuthorityOpinion {
		return ReasonOpinionSource
	}
	if item.Probative == model.ProbativeLow {
		return ReasonLowProbativeValue
	}
	if len(item.Statement) < cfg.MinStatementLength {
		return ReasonStatementTooShort
	}
	if !cfg.SkipExcerptCheck && len(item.SourceExcerpt) < cfg.MinExcerptLength {
		return ReasonMissingOrShortExcerpt
	}
	if !cfg.SkipURLCheck && item.SourceURL == "" {
		return ReasonMissingSourceURL
	}
	if item.Category == model.CategoryStatistic {
		if !cfg.SkipNumberCheck && !containsDigit(item.Statement) && !containsDigit(item.SourceExcerpt) {
			return ReasonStatisticWithoutNumber
		}
		if len(item.SourceExcerpt) < cfg.MinStatisticExcerptLength {
			return ReasonStatisticExcerptTooShort
		}
	}
	return ""
}

func containsDigit(s string) bool {
	return strings.ContainsFunc(s, unicode.IsDigit)
}
