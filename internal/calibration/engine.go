package calibration

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/evidence"
	"github.com/factharbor/verify-cli/internal/model"
)

// Adjustment type tags, in the only order layers may apply.
const (
	AdjustDensityAnchor      = "density_anchor"
	AdjustBandSnapping       = "band_snapping"
	AdjustVerdictCoupling    = "verdict_coupling"
	AdjustContextConsistency = "context_consistency"
)

// Calibrate runs the four-layer transform chain over a raw confidence.
// Layer order is fixed: density anchor, band snapping, verdict coupling,
// context consistency. Later layers consume the already-adjusted value, so
// reordering would change results even though each layer is pure. The
// returned result is clamped to [5,100] and records an adjustment for every
// layer that actually changed the value.
func Calibrate(rawConfidence, verdict float64, items []model.EvidenceItem, sources []model.FetchedSource, contextAnswers []model.ContextAnswer, cfg Config) model.CalibrationResult {
	cfg = cfg.withDefaults()

	working := model.ClampPercent(rawConfidence)
	verdict = model.ClampPercent(verdict)

	result := model.CalibrationResult{}
	if !cfg.Enabled {
		result.CalibratedConfidence = working
		return result
	}

	record := func(adjType string, before, after float64, reason string) {
		if before == after {
			return
		}
		result.Adjustments = append(result.Adjustments, model.Adjustment{
			Type:   adjType,
			Before: before,
			After:  after,
			Reason: reason,
		})
	}

	// Layer 1: density anchor. The floor computed here also re-applies after
	// band snapping so blending can never pull below the evidence minimum.
	densityFloor := -1.0
	if cfg.DensityAnchor.Enabled {
		density := evidence.DensityScore(items, sources, cfg.DensityAnchor.Density)
		densityFloor = evidence.MinConfidenceFromDensity(density, cfg.DensityAnchor.Density)
		if working < densityFloor {
			record(AdjustDensityAnchor, working, densityFloor,
				fmt.Sprintf("confidence below evidence density floor %.0f (density %.2f)", densityFloor, density))
			working = densityFloor
		}
	}

	// Layer 2: band snapping.
	if cfg.BandSnapping.Enabled {
		bands := cfg.BandSnapping.Bands
		if len(bands) == 0 {
			bands = DefaultBands()
		}
		if band, ok := findBand(bands, working); ok {
			blended := math.Round(working*(1-cfg.BandSnapping.Strength) + band.SnapTo*cfg.BandSnapping.Strength)
			if densityFloor >= 0 {
				blended = math.Max(blended, densityFloor)
			}
			record(AdjustBandSnapping, working, blended,
				fmt.Sprintf("snapped toward band target %.0f", band.SnapTo))
			working = blended
		}
	}

	// Layer 3: verdict-confidence coupling. Only ever raises.
	if cfg.VerdictCoupling.Enabled {
		floor := couplingFloor(verdict, cfg.VerdictCoupling)
		if working < floor {
			record(AdjustVerdictCoupling, working, floor,
				fmt.Sprintf("verdict %.0f requires confidence >= %.0f", verdict, floor))
			working = floor
		}
	}

	// Layer 4: context consistency.
	if cfg.ContextConsistency.Enabled && len(contextAnswers) >= 2 {
		spread := confidenceSpread(contextAnswers)
		if spread > cfg.ContextConsistency.MaxConfidenceSpread {
			reduction := math.Round((spread - cfg.ContextConsistency.MaxConfidenceSpread) * cfg.ContextConsistency.ReductionFactor)
			reduced := math.Max(10, working-reduction)
			record(AdjustContextConsistency, working, reduced,
				fmt.Sprintf("context confidence spread %.0f exceeds %.0f", spread, cfg.ContextConsistency.MaxConfidenceSpread))
			working = reduced
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("context_confidence_divergence: answer confidences spread %.0f points", spread))
		}
	}

	final := math.Min(100, math.Max(5, working))
	if final != working {
		zap.L().Debug("calibration: final clamp applied",
			zap.Float64("before", working),
			zap.Float64("after", final),
		)
	}
	result.CalibratedConfidence = final
	return result
}

// findBand locates the band containing value. The last band is inclusive of
// its upper bound.
func findBand(bands []Band, value float64) (Band, bool) {
	for i, b := range bands {
		if value >= b.Min && (value < b.Max || (i == len(bands)-1 && value <= b.Max)) {
			return b, true
		}
	}
	return Band{}, false
}

// couplingFloor computes the minimum confidence a verdict's distance from
// neutral demands. Strong verdicts (distance >= threshold) take the strong
// floor, neutral verdicts (distance <= 10) the neutral floor, and the
// moderate band in between interpolates linearly.
func couplingFloor(verdict float64, cfg VerdictCouplingConfig) float64 {
	distance := math.Abs(verdict - 50)
	switch {
	case distance >= cfg.StrongThresholdDistance:
		return cfg.MinConfidenceStrong
	case distance <= 10:
		return cfg.MinConfidenceNeutral
	default:
		frac := (distance - 10) / (cfg.StrongThresholdDistance - 10)
		return math.Round(cfg.MinConfidenceNeutral + frac*(cfg.MinConfidenceStrong-cfg.MinConfidenceNeutral))
	}
}

func confidenceSpread(answers []model.ContextAnswer) float64 {
	lo, hi := answers[0].Confidence, answers[0].Confidence
	for _, a := range answers[1:] {
		lo = math.Min(lo, a.Confidence)
		hi = math.Max(hi, a.Confidence)
	}
	return hi - lo
}
