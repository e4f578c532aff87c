package evidence

import (
	"math"

	"github.com/factharbor/verify-cli/internal/model"
)

// Density factor weights. Source coverage dominates because confident
// verdicts built on one or two documents are the main failure mode the
// anchor exists to catch.
const (
	densitySourceWeight    = 0.50
	densityQualityWeight   = 0.30
	densityDiversityWeight = 0.20
)

// DensityConfig controls the density score and the confidence floor derived
// from it.
type DensityConfig struct {
	// SourceCountThreshold is the number of distinct, successfully fetched
	// sources at which the source factor saturates. Default: 3.
	SourceCountThreshold int

	// MinConfidenceBase is the confidence floor at density 0. Default: 20.
	MinConfidenceBase float64

	// MinConfidenceMax is the confidence floor at density 1. Default: 45.
	MinConfidenceMax float64
}

func (c DensityConfig) withDefaults() DensityConfig {
	if c.SourceCountThreshold <= 0 {
		c.SourceCountThreshold = 3
	}
	if c.MinConfidenceBase <= 0 {
		c.MinConfidenceBase = 20
	}
	if c.MinConfidenceMax <= 0 {
		c.MinConfidenceMax = 45
	}
	return c
}

// DensityScore computes a [0,1] evidence-density score from three factors:
// distinct successfully-fetched sources cited (0.50), share of high
// probative-value items (0.30), and direction diversity (0.20). Each factor
// is independently capped at 1. Empty evidence scores 0.
func DensityScore(items []model.EvidenceItem, sources []model.FetchedSource, cfg DensityConfig) float64 {
	cfg = cfg.withDefaults()
	if len(items) == 0 {
		return 0
	}

	fetched := make(map[string]bool, len(sources))
	for _, s := range sources {
		if s.FetchSuccess {
			fetched[s.ID] = true
		}
	}

	usedSources := map[string]bool{}
	highCount := 0
	directions := map[model.ClaimDirection]bool{}
	for _, item := range items {
		if item.SourceID != "" && fetched[item.SourceID] {
			usedSources[item.SourceID] = true
		}
		if item.Probative == model.ProbativeHigh {
			highCount++
		}
		if item.Direction != "" {
			directions[item.Direction] = true
		}
	}

	sourceScore := math.Min(1, float64(len(usedSources))/float64(cfg.SourceCountThreshold))
	qualityScore := float64(highCount) / float64(len(items))
	diversityScore := math.Min(1, float64(len(directions))/2)

	return sourceScore*densitySourceWeight +
		qualityScore*densityQualityWeight +
		diversityScore*densityDiversityWeight
}

// MinConfidenceFromDensity interpolates the evidence-backed confidence floor
// between the configured base and max.
func MinConfidenceFromDensity(density float64, cfg DensityConfig) float64 {
	cfg = cfg.withDefaults()
	return math.Round(cfg.MinConfidenceBase + density*(cfg.MinConfidenceMax-cfg.MinConfidenceBase))
}
