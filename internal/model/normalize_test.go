package model

import "testing"

func TestNormalizer_EvidenceItem_Defaults(t *testing.T) {
	n := &Normalizer{}
	item := n.EvidenceItem(map[string]any{
		"statement": "  GDP grew 2.1% in 2024  ",
		"category":  "statistic",
	}, "ev-1")

	if item.ID != "ev-1" {
		t.Errorf("expected fallback id, got %q", item.ID)
	}
	if item.Statement != "GDP grew 2.1% in 2024" {
		t.Errorf("statement not trimmed: %q", item.Statement)
	}
	if item.Category != CategoryStatistic {
		t.Errorf("category = %s, want statistic", item.Category)
	}
	if item.Probative != ProbativeMedium {
		t.Errorf("missing probativeValue should default medium, got %s", item.Probative)
	}
	if item.Authority != AuthoritySecondary {
		t.Errorf("missing sourceAuthority should default secondary, got %s", item.Authority)
	}
	if len(n.Fallbacks) == 0 {
		t.Error("expected fallback notes for defaulted fields")
	}
}

func TestNormalizer_EvidenceItem_UnrecognizedEnum(t *testing.T) {
	n := &Normalizer{}
	item := n.EvidenceItem(map[string]any{
		"id":             "ev-2",
		"statement":      "quote",
		"category":       "vibes",
		"claimDirection": "SUPPORTS",
	}, "")

	if item.Category != CategoryGeneral {
		t.Errorf("unknown category should default general, got %s", item.Category)
	}
	// Enum matching is case-insensitive.
	if item.Direction != DirectionSupports {
		t.Errorf("uppercase direction should normalize, got %s", item.Direction)
	}

	found := false
	for _, fb := range n.Fallbacks {
		if fb.Field == "category" {
			found = true
		}
	}
	if !found {
		t.Error("expected a fallback note for the bad category")
	}
}

func TestNormalizer_ClaimVerdict_ClampsAndDefaults(t *testing.T) {
	n := &Normalizer{}
	v := n.ClaimVerdict(map[string]any{
		"claimId":         "c-1",
		"truthPercentage": float64(130),
		"confidence":      "85",
		"supportingEvidenceIds": []any{"ev-1", "ev-2", 3},
	}, "")

	if v.TruthPercentage != 100 {
		t.Errorf("truth percentage not clamped: %v", v.TruthPercentage)
	}
	if v.Confidence != 85 {
		t.Errorf("numeric string confidence should parse, got %v", v.Confidence)
	}
	if len(v.SupportingEvidenceIDs) != 2 {
		t.Errorf("expected 2 string evidence ids, got %v", v.SupportingEvidenceIDs)
	}
}

func TestNormalizer_ClaimVerdict_VerdictAlias(t *testing.T) {
	n := &Normalizer{}
	v := n.ClaimVerdict(map[string]any{"verdict": float64(72)}, "c-9")

	if v.TruthPercentage != 72 {
		t.Errorf("verdict alias not honored: %v", v.TruthPercentage)
	}
	if v.ClaimID != "c-9" {
		t.Errorf("fallback claim id not applied: %q", v.ClaimID)
	}
}

func TestNormalizer_ClaimVerdict_MissingNumbersDefault50(t *testing.T) {
	n := &Normalizer{}
	v := n.ClaimVerdict(map[string]any{"claimId": "c-2"}, "")

	if v.TruthPercentage != 50 || v.Confidence != 50 {
		t.Errorf("missing numerics should default 50/50, got %v/%v", v.TruthPercentage, v.Confidence)
	}
	if len(n.Fallbacks) < 2 {
		t.Errorf("expected fallback notes for both defaults, got %v", n.Fallbacks)
	}
}
