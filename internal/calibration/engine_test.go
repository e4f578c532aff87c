package calibration

import (
	"math"
	"strings"
	"testing"

	"github.com/factharbor/verify-cli/internal/model"
)

func oneItemOneSource() ([]model.EvidenceItem, []model.FetchedSource) {
	items := []model.EvidenceItem{{
		ID:        "e1",
		SourceID:  "s1",
		Statement: "The measure passed the senate on a 61-39 vote.",
		Probative: model.ProbativeHigh,
		Direction: model.DirectionSupports,
	}}
	sources := []model.FetchedSource{{ID: "s1", FetchSuccess: true}}
	return items, sources
}

func TestCalibrate_Disabled_ShortCircuits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	res := Calibrate(137, 85, nil, nil, nil, cfg)
	if res.CalibratedConfidence != 100 {
		t.Errorf("disabled engine must return clamped raw, got %v", res.CalibratedConfidence)
	}
	if len(res.Adjustments) != 0 || len(res.Warnings) != 0 {
		t.Errorf("disabled engine must not adjust or warn: %+v", res)
	}
}

func TestCalibrate_ResultAlwaysInRange(t *testing.T) {
	items, sources := oneItemOneSource()
	for _, raw := range []float64{-50, 0, 1, 5, 37, 50, 99, 100, 400, math.NaN(), math.Inf(1)} {
		for _, verdict := range []float64{0, 15, 50, 85, 100, math.NaN()} {
			res := Calibrate(raw, verdict, items, sources, nil, DefaultConfig())
			if res.CalibratedConfidence < 5 || res.CalibratedConfidence > 100 {
				t.Fatalf("calibrated %v out of [5,100] for raw=%v verdict=%v", res.CalibratedConfidence, raw, verdict)
			}
		}
	}
}

func TestCalibrate_MonotonicInRawConfidence(t *testing.T) {
	items, sources := oneItemOneSource()
	prev := -1.0
	for raw := 0.0; raw <= 100; raw++ {
		res := Calibrate(raw, 72, items, sources, nil, DefaultConfig())
		if res.CalibratedConfidence < prev {
			t.Fatalf("raising raw %v decreased calibrated %v -> %v", raw, prev, res.CalibratedConfidence)
		}
		prev = res.CalibratedConfidence
	}
}

func TestCalibrate_LayerOrdering(t *testing.T) {
	// Low raw confidence + strong verdict + divergent contexts: every layer
	// that fires must appear in chain order.
	items, sources := oneItemOneSource()
	answers := []model.ContextAnswer{{Confidence: 10}, {Confidence: 95}}

	res := Calibrate(8, 90, items, sources, answers, DefaultConfig())

	order := map[string]int{
		AdjustDensityAnchor:      0,
		AdjustBandSnapping:       1,
		AdjustVerdictCoupling:    2,
		AdjustContextConsistency: 3,
	}
	last := -1
	for _, adj := range res.Adjustments {
		rank, ok := order[adj.Type]
		if !ok {
			t.Fatalf("unknown adjustment type %q", adj.Type)
		}
		if rank < last {
			t.Fatalf("adjustment %q out of order in %+v", adj.Type, res.Adjustments)
		}
		last = rank
	}

	if len(res.Adjustments) == 0 {
		t.Fatal("expected adjustments to fire for this input")
	}
	if res.Adjustments[0].Type != AdjustDensityAnchor {
		t.Errorf("density anchor must precede all other layers, got %q first", res.Adjustments[0].Type)
	}
}

func TestCalibrate_AdjustmentsOnlyWhenValueChanges(t *testing.T) {
	// Confidence 50, neutral verdict, no contexts: band [45,55) snaps toward
	// 50 which is a no-op, coupling floor 25 is already met. No adjustments.
	res := Calibrate(50, 50, nil, nil, nil, DefaultConfig())
	if len(res.Adjustments) != 0 {
		t.Errorf("no layer changed the value, but adjustments recorded: %+v", res.Adjustments)
	}
	if res.CalibratedConfidence != 50 {
		t.Errorf("expected 50 untouched, got %v", res.CalibratedConfidence)
	}
}

func TestCalibrate_StrongVerdictSparseEvidence(t *testing.T) {
	items, sources := oneItemOneSource()
	res := Calibrate(15, 85, items, sources, nil, DefaultConfig())

	if res.CalibratedConfidence < 50 {
		t.Errorf("strong verdict must floor confidence at 50, got %v", res.CalibratedConfidence)
	}
	found := false
	for _, adj := range res.Adjustments {
		if adj.Type == AdjustVerdictCoupling {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a verdict_coupling adjustment, got %+v", res.Adjustments)
	}
}

func TestCalibrate_DivergentContexts(t *testing.T) {
	answers := []model.ContextAnswer{{Confidence: 20}, {Confidence: 80}}
	res := Calibrate(50, 50, nil, nil, answers, DefaultConfig())

	// spread 60: 50 - round((60-25)*0.5) = 50 - 18 = 32.
	if res.CalibratedConfidence != 32 {
		t.Errorf("calibrated = %v, want 32", res.CalibratedConfidence)
	}

	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", res.Warnings)
	}
	if !strings.Contains(res.Warnings[0], "context_confidence_divergence") {
		t.Errorf("warning missing marker: %q", res.Warnings[0])
	}
	if !strings.Contains(res.Warnings[0], "60") {
		t.Errorf("warning missing numeric spread: %q", res.Warnings[0])
	}
}

func TestCalibrate_SingleContextAnswerIgnored(t *testing.T) {
	answers := []model.ContextAnswer{{Confidence: 5}}
	res := Calibrate(50, 50, nil, nil, answers, DefaultConfig())
	if res.CalibratedConfidence != 50 {
		t.Errorf("one context answer must not trigger consistency, got %v", res.CalibratedConfidence)
	}
}

func TestCalibrate_BandSnappingNeverBelowDensityFloor(t *testing.T) {
	items, sources := oneItemOneSource()
	cfg := DefaultConfig()
	cfg.VerdictCoupling.Enabled = false
	cfg.ContextConsistency.Enabled = false

	// Density floor for this fixture: density = 1/3*0.5 + 1*0.3 + 0.5*0.2
	// = 0.5667 -> floor round(20 + 0.5667*25) = 34.
	res := Calibrate(0, 50, items, sources, nil, cfg)
	if res.CalibratedConfidence < 34 {
		t.Errorf("band snapping pulled value below density floor: %v", res.CalibratedConfidence)
	}
}

func TestCouplingFloor(t *testing.T) {
	cfg := DefaultConfig().VerdictCoupling

	cases := []struct {
		verdict float64
		want    float64
	}{
		{85, 50},   // strong, distance 35
		{70, 50},   // strong boundary, distance 20
		{30, 50},   // strong on the low side
		{50, 25},   // neutral center
		{40, 25},   // neutral boundary
		{60, 25},   // neutral boundary
		{65, 38},   // moderate: distance 15, round(25 + 0.5*25)
		{35, 38},   // moderate mirror
	}
	for _, c := range cases {
		if got := couplingFloor(c.verdict, cfg); got != c.want {
			t.Errorf("couplingFloor(%v) = %v, want %v", c.verdict, got, c.want)
		}
	}
}

func TestFindBand(t *testing.T) {
	bands := DefaultBands()

	cases := []struct {
		value float64
		want  float64
	}{
		{0, 10},
		{14.9, 10},
		{15, 25},
		{44, 40},
		{50, 50},
		{69, 60},
		{84, 75},
		{85, 90},
		{100, 90}, // last band inclusive
	}
	for _, c := range cases {
		band, ok := findBand(bands, c.value)
		if !ok {
			t.Errorf("findBand(%v): no band", c.value)
			continue
		}
		if band.SnapTo != c.want {
			t.Errorf("findBand(%v).SnapTo = %v, want %v", c.value, band.SnapTo, c.want)
		}
	}
}
