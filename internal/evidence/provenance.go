package evidence

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/factharbor/verify-cli/internal/model"
)

// ProvenanceSeverity grades a provenance failure.
type ProvenanceSeverity string

const (
	SeverityNone  ProvenanceSeverity = ""
	SeverityError ProvenanceSeverity = "error"
)

// ProvenanceResult is the outcome of validating one evidence item's
// traceability to a real source.
type ProvenanceResult struct {
	IsValid       bool               `json:"is_valid"`
	Severity      ProvenanceSeverity `json:"severity,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// ValidateProvenance checks that an evidence item traces to a fetchable HTTP
// source with a non-empty excerpt. The contract is deliberately permissive:
// localhost URLs and short excerpts pass. An earlier variant rejected
// localhost and synthetic-looking excerpts; that stricter behavior was
// dropped because it produced false rejections on intranet and fixture
// sources, and the permissive contract is now authoritative.
func ValidateProvenance(item model.EvidenceItem) ProvenanceResult {
	if item.SourceURL == "" {
		return fail("Missing sourceUrl")
	}

	lower := strings.ToLower(item.SourceURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fail(fmt.Sprintf("Non-HTTP URL: %s", item.SourceURL))
	}

	if _, err := url.Parse(item.SourceURL); err != nil {
		return fail(fmt.Sprintf("Malformed URL: %s", item.SourceURL))
	}

	if item.SourceExcerpt == "" {
		return fail("Missing sourceExcerpt")
	}

	return ProvenanceResult{IsValid: true}
}

func fail(reason string) ProvenanceResult {
	return ProvenanceResult{IsValid: false, Severity: SeverityError, FailureReason: reason}
}

// SourceProvenance is the outcome of checking one fetched source.
type SourceProvenance struct {
	SourceID      string `json:"source_id"`
	HasProvenance bool   `json:"has_provenance"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ValidateSourceProvenance checks a FetchedSource for traceability. Grounded
// search results sometimes arrive without a resolvable URL; those are
// flagged so the orchestrator can fall back to external search.
func ValidateSourceProvenance(source model.FetchedSource) SourceProvenance {
	if strings.TrimSpace(source.URL) == "" {
		return SourceProvenance{
			SourceID:      source.ID,
			HasProvenance: false,
			FailureReason: "missing URL",
		}
	}
	return SourceProvenance{SourceID: source.ID, HasProvenance: true}
}

// GroundedProvenanceReport aggregates provenance over the grounded-search
// subset of a source list.
type GroundedProvenanceReport struct {
	GroundedCount                  int                `json:"grounded_count"`
	ValidCount                     int                `json:"valid_count"`
	InvalidCount                   int                `json:"invalid_count"`
	Invalid                        []SourceProvenance `json:"invalid,omitempty"`
	ShouldFallbackToExternalSearch bool               `json:"should_fallback_to_external_search"`
}

// ValidateGroundedSearchProvenance checks every grounded-search source and
// signals fallback whenever at least one lacks provenance.
func ValidateGroundedSearchProvenance(sources []model.FetchedSource) GroundedProvenanceReport {
	var report GroundedProvenanceReport
	for _, src := range sources {
		if src.Category != model.SourceGroundedSearch {
			continue
		}
		report.GroundedCount++
		sp := ValidateSourceProvenance(src)
		if sp.HasProvenance {
			report.ValidCount++
			continue
		}
		report.InvalidCount++
		report.Invalid = append(report.Invalid, sp)
	}
	report.ShouldFallbackToExternalSearch = report.InvalidCount > 0
	return report
}
