package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FallbackNote records one defaulting decision made while normalizing raw
// provider output. Notes exist for observability: a high fallback count on a
// field signals a prompt or provider regression.
type FallbackNote struct {
	Field   string `json:"field"`
	Applied string `json:"applied"`
}

// Normalizer converts untyped JSON maps from provider responses into strict
// domain types. It is the single boundary where duck-typed data enters the
// pipeline; everything downstream works on validated structs.
type Normalizer struct {
	Fallbacks []FallbackNote
}

func (n *Normalizer) note(field, applied string) {
	n.Fallbacks = append(n.Fallbacks, FallbackNote{Field: field, Applied: applied})
}

// EvidenceItem maps a raw object into a strict EvidenceItem, applying
// documented defaults for absent or wrong-typed fields.
func (n *Normalizer) EvidenceItem(raw map[string]any, fallbackID string) EvidenceItem {
	item := EvidenceItem{
		ID:            n.str(raw, "id", fallbackID),
		SourceID:      n.str(raw, "sourceId", ""),
		Statement:     n.str(raw, "statement", ""),
		SourceURL:     n.str(raw, "sourceUrl", ""),
		SourceExcerpt: n.str(raw, "sourceExcerpt", ""),
		SourceTitle:   n.str(raw, "sourceTitle", ""),
	}

	item.Category = EvidenceCategory(n.enum(raw, "category", string(CategoryGeneral), []string{
		string(CategoryStatistic), string(CategoryExpertQuote), string(CategoryEvent),
		string(CategoryLegalProvision), string(CategoryDirectEvidence), string(CategoryGeneral),
	}))
	item.Direction = ClaimDirection(n.enum(raw, "claimDirection", string(DirectionNeutral), []string{
		string(DirectionSupports), string(DirectionContradicts), string(DirectionNeutral),
	}))
	item.Probative = ProbativeValue(n.enum(raw, "probativeValue", string(ProbativeMedium), []string{
		string(ProbativeHigh), string(ProbativeMedium), string(ProbativeLow),
	}))
	item.Authority = SourceAuthority(n.enum(raw, "sourceAuthority", string(AuthoritySecondary), []string{
		string(AuthorityPrimary), string(AuthoritySecondary), string(AuthorityOpinion), string(AuthorityContested),
	}))
	item.Basis = EvidenceBasis(n.enum(raw, "evidenceBasis", string(BasisDocumented), []string{
		string(BasisScientific), string(BasisDocumented), string(BasisAnecdotal),
		string(BasisTheoretical), string(BasisPseudoscientific),
	}))

	if scope, ok := raw["evidenceScope"].(map[string]any); ok {
		item.Scope = &EvidenceScope{
			Temporal:     n.str(scope, "temporal", ""),
			Jurisdiction: n.str(scope, "jurisdiction", ""),
		}
	}

	return item
}

// ClaimVerdict maps a raw object into a strict ClaimVerdict with clamped
// numeric fields. Non-finite or missing numbers default to 50.
func (n *Normalizer) ClaimVerdict(raw map[string]any, fallbackID string) ClaimVerdict {
	v := ClaimVerdict{
		ClaimID:   n.str(raw, "claimId", fallbackID),
		ClaimText: n.str(raw, "claimText", ""),
		Reasoning: n.str(raw, "reasoning", ""),
	}

	truth, ok := toFloat64(raw["truthPercentage"])
	if !ok {
		truth, ok = toFloat64(raw["verdict"])
	}
	if !ok {
		n.note("truthPercentage", "default 50")
		truth = 50
	}
	v.TruthPercentage = ClampPercent(truth)

	conf, ok := toFloat64(raw["confidence"])
	if !ok {
		n.note("confidence", "default 50")
		conf = 50
	}
	v.Confidence = ClampPercent(conf)

	switch ids := raw["supportingEvidenceIds"].(type) {
	case []any:
		for _, id := range ids {
			if s, ok := id.(string); ok && s != "" {
				v.SupportingEvidenceIDs = append(v.SupportingEvidenceIDs, s)
			}
		}
	case []string:
		v.SupportingEvidenceIDs = append(v.SupportingEvidenceIDs, ids...)
	case nil:
	default:
		n.note("supportingEvidenceIds", "ignored non-array value")
	}

	return v
}

func (n *Normalizer) str(raw map[string]any, field, fallback string) string {
	val, present := raw[field]
	if !present {
		if fallback != "" {
			n.note(field, fmt.Sprintf("default %q", fallback))
		}
		return fallback
	}
	s, ok := val.(string)
	if !ok {
		n.note(field, fmt.Sprintf("non-string value coerced to %q", fallback))
		return fallback
	}
	return strings.TrimSpace(s)
}

func (n *Normalizer) enum(raw map[string]any, field, fallback string, allowed []string) string {
	s := n.str(raw, field, fallback)
	lower := strings.ToLower(s)
	for _, a := range allowed {
		if lower == a {
			return a
		}
	}
	n.note(field, fmt.Sprintf("unrecognized %q defaulted to %q", s, fallback))
	return fallback
}

// toFloat64 accepts the numeric shapes JSON decoding can produce, plus
// numeric strings, which some providers emit for percentage fields.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
