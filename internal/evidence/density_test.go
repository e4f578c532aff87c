package evidence

import (
	"math"
	"testing"

	"github.com/factharbor/verify-cli/internal/model"
)

func densityFixture() ([]model.EvidenceItem, []model.FetchedSource) {
	items := []model.EvidenceItem{
		{ID: "a", SourceID: "s1", Probative: model.ProbativeHigh, Direction: model.DirectionSupports},
		{ID: "b", SourceID: "s2", Probative: model.ProbativeMedium, Direction: model.DirectionContradicts},
		{ID: "c", SourceID: "s3", Probative: model.ProbativeHigh, Direction: model.DirectionSupports},
	}
	sources := []model.FetchedSource{
		{ID: "s1", FetchSuccess: true},
		{ID: "s2", FetchSuccess: true},
		{ID: "s3", FetchSuccess: true},
	}
	return items, sources
}

func TestDensityScore_Empty(t *testing.T) {
	if got := DensityScore(nil, nil, DensityConfig{}); got != 0 {
		t.Errorf("empty evidence must score 0, got %v", got)
	}
}

func TestDensityScore_FullFixture(t *testing.T) {
	items, sources := densityFixture()
	got := DensityScore(items, sources, DensityConfig{SourceCountThreshold: 3})

	// source 3/3 -> 1.0 * 0.5; quality 2/3 * 0.3; diversity 2/2 -> 1.0 * 0.2
	want := 0.5 + (2.0/3.0)*0.3 + 0.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("DensityScore = %v, want %v", got, want)
	}
}

func TestDensityScore_UnfetchedSourcesIgnored(t *testing.T) {
	items, sources := densityFixture()
	sources[1].FetchSuccess = false
	sources[2].FetchSuccess = false

	got := DensityScore(items, sources, DensityConfig{SourceCountThreshold: 3})
	want := (1.0/3.0)*0.5 + (2.0/3.0)*0.3 + 0.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("DensityScore = %v, want %v", got, want)
	}
}

func TestDensityScore_SourceFactorCapped(t *testing.T) {
	items, sources := densityFixture()
	got := DensityScore(items, sources, DensityConfig{SourceCountThreshold: 1})

	// 3 sources over threshold 1 still caps the factor at 1.
	want := 0.5 + (2.0/3.0)*0.3 + 0.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("DensityScore = %v, want %v", got, want)
	}
}

func TestDensityScore_NeverExceedsOne(t *testing.T) {
	items, sources := densityFixture()
	for i := range items {
		items[i].Probative = model.ProbativeHigh
	}
	got := DensityScore(items, sources, DensityConfig{SourceCountThreshold: 1})
	if got > 1 {
		t.Errorf("density %v exceeds 1", got)
	}
}

func TestMinConfidenceFromDensity(t *testing.T) {
	cfg := DensityConfig{MinConfidenceBase: 20, MinConfidenceMax: 45}

	cases := []struct {
		density float64
		want    float64
	}{
		{0, 20},
		{1, 45},
		{0.5, 33}, // round(20 + 0.5*25)
	}
	for _, c := range cases {
		if got := MinConfidenceFromDensity(c.density, cfg); got != c.want {
			t.Errorf("MinConfidenceFromDensity(%v) = %v, want %v", c.density, got, c.want)
		}
	}
}

func TestMinConfidenceFromDensity_NeverExceedsMax(t *testing.T) {
	cfg := DensityConfig{MinConfidenceBase: 20, MinConfidenceMax: 45}
	for d := 0.0; d <= 1.0; d += 0.05 {
		if got := MinConfidenceFromDensity(d, cfg); got > cfg.MinConfidenceMax {
			t.Fatalf("floor %v at density %v exceeds max %v", got, d, cfg.MinConfidenceMax)
		}
	}
}
