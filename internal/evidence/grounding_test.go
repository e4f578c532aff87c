package evidence

import (
	"math"
	"testing"

	"github.com/factharbor/verify-cli/internal/model"
)

func groundingFixture() ([]model.ClaimVerdict, []model.EvidenceItem) {
	verdicts := []model.ClaimVerdict{
		{ClaimID: "c1", SupportingEvidenceIDs: []string{"e1", "e2"}},
	}
	items := []model.EvidenceItem{
		{ID: "e1", Statement: "The vaccine reduced hospitalization by 89%", SourceExcerpt: "Trial data showed reduced hospitalization rates."},
		{ID: "e2", Statement: "Regulators approved the vaccine in 2021", SourceExcerpt: "FDA approval was granted in August 2021."},
	}
	return verdicts, items
}

func TestGround_TermsFoundInCitedEvidence(t *testing.T) {
	verdicts, items := groundingFixture()
	report := Ground(verdicts, [][]string{{"vaccine", "hospitalization", "unrelated-term"}}, items)

	if len(report.PerVerdict) != 1 {
		t.Fatalf("expected 1 per-verdict entry, got %d", len(report.PerVerdict))
	}
	vg := report.PerVerdict[0]
	if vg.GroundedTerms != 2 || vg.TotalTerms != 3 {
		t.Errorf("grounded/total = %d/%d, want 2/3", vg.GroundedTerms, vg.TotalTerms)
	}
	if math.Abs(report.OverallRatio-2.0/3.0) > 1e-9 {
		t.Errorf("overall ratio = %v, want 2/3", report.OverallRatio)
	}
}

func TestGround_CaseFoldedMatching(t *testing.T) {
	verdicts, items := groundingFixture()
	report := Ground(verdicts, [][]string{{"VACCINE", "Hospitalization"}}, items)

	if report.PerVerdict[0].GroundedTerms != 2 {
		t.Errorf("case-folded terms should match, got %d grounded", report.PerVerdict[0].GroundedTerms)
	}
}

func TestGround_ZeroTermsTriviallyGrounded(t *testing.T) {
	verdicts, items := groundingFixture()
	report := Ground(verdicts, [][]string{{}}, items)

	if report.PerVerdict[0].Ratio != 1 {
		t.Errorf("zero extracted terms must be trivially grounded, got %v", report.PerVerdict[0].Ratio)
	}
	if report.OverallRatio != 1 {
		t.Errorf("overall ratio with no terms must be 1, got %v", report.OverallRatio)
	}
}

func TestGround_NoCitedEvidenceIsUngrounded(t *testing.T) {
	verdicts := []model.ClaimVerdict{{ClaimID: "c1"}} // no supporting IDs
	report := Ground(verdicts, [][]string{{"vaccine", "trial"}}, nil)

	if report.PerVerdict[0].Ratio != 0 {
		t.Errorf("terms without cited evidence must be fully ungrounded, got %v", report.PerVerdict[0].Ratio)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("expected a warning, got %v", report.Warnings)
	}
	if report.OverallRatio != 0 {
		t.Errorf("overall ratio = %v, want 0", report.OverallRatio)
	}
}

func TestGround_OverallRatioIsTermsWeighted(t *testing.T) {
	verdicts := []model.ClaimVerdict{
		{ClaimID: "c1", SupportingEvidenceIDs: []string{"e1"}},
		{ClaimID: "c2", SupportingEvidenceIDs: []string{"e2"}},
	}
	items := []model.EvidenceItem{
		{ID: "e1", Statement: "alpha beta gamma delta"},
		{ID: "e2", Statement: "epsilon"},
	}
	// c1: 4/4 grounded; c2: 1/2 grounded. Terms-weighted: 5/6, not (1+0.5)/2.
	report := Ground(verdicts, [][]string{
		{"alpha", "beta", "gamma", "delta"},
		{"epsilon", "zeta"},
	}, items)

	if math.Abs(report.OverallRatio-5.0/6.0) > 1e-9 {
		t.Errorf("overall ratio = %v, want 5/6 (terms-weighted)", report.OverallRatio)
	}
}

func TestApplyGroundingPenalty_NoOpAboveThreshold(t *testing.T) {
	adjusted, penalty := ApplyGroundingPenalty(70, 0.5, GroundingConfig{})
	if adjusted != 70 || penalty != 0 {
		t.Errorf("ratio at threshold must be a no-op, got %v (penalty %v)", adjusted, penalty)
	}
}

func TestApplyGroundingPenalty_RampAndFloor(t *testing.T) {
	cfg := GroundingConfig{Threshold: 0.5, FloorRatio: 0.1, ReductionFactor: 0.3}

	// Ratio at floor: full penalty round(1.0 * 0.3 * 100) = 30.
	adjusted, penalty := ApplyGroundingPenalty(70, 0.1, cfg)
	if penalty != 30 || adjusted != 40 {
		t.Errorf("floor ratio: adjusted=%v penalty=%v, want 40/30", adjusted, penalty)
	}

	// Ratio below floor clamps to floor.
	_, penaltyBelow := ApplyGroundingPenalty(70, 0.0, cfg)
	if penaltyBelow != 30 {
		t.Errorf("below-floor ratio must clamp, penalty=%v", penaltyBelow)
	}

	// Midpoint: round(((0.5-0.3)/0.4) * 30) = 15.
	_, midPenalty := ApplyGroundingPenalty(70, 0.3, cfg)
	if midPenalty != 15 {
		t.Errorf("mid ratio penalty = %v, want 15", midPenalty)
	}

	// Confidence floored at 5.
	adjusted, _ = ApplyGroundingPenalty(10, 0.1, cfg)
	if adjusted != 5 {
		t.Errorf("adjusted confidence must floor at 5, got %v", adjusted)
	}
}
