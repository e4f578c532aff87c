// Package calibration implements the deterministic post-processing that
// turns raw LLM verdict confidences into stable, internally consistent
// outputs: a four-layer confidence transform chain and a graduated recency
// penalty.
package calibration

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/factharbor/verify-cli/internal/evidence"
)

// Band is one confidence band: values in [Min, Max) snap toward SnapTo.
// The last band of a table is inclusive of its Max.
type Band struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	SnapTo float64 `yaml:"snap_to"`
}

// DefaultBands is the fixed default snapping table.
func DefaultBands() []Band {
	return []Band{
		{Min: 0, Max: 15, SnapTo: 10},
		{Min: 15, Max: 30, SnapTo: 25},
		{Min: 30, Max: 45, SnapTo: 40},
		{Min: 45, Max: 55, SnapTo: 50},
		{Min: 55, Max: 70, SnapTo: 60},
		{Min: 70, Max: 85, SnapTo: 75},
		{Min: 85, Max: 101, SnapTo: 90},
	}
}

// LoadBands reads a band table override from a YAML file.
func LoadBands(path string) ([]Band, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "calibration: read bands %s", path)
	}
	var wrapper struct {
		Bands []Band `yaml:"bands"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "calibration: parse bands")
	}
	if len(wrapper.Bands) == 0 {
		return nil, eris.New("calibration: bands file defines no bands")
	}
	return wrapper.Bands, nil
}

// DensityAnchorConfig controls the evidence-density confidence floor.
type DensityAnchorConfig struct {
	Enabled bool
	Density evidence.DensityConfig
}

// BandSnappingConfig controls jitter reduction via band snapping.
type BandSnappingConfig struct {
	Enabled bool

	// Strength blends the working value toward the band's snap target:
	// 0 leaves the value alone, 1 snaps fully. Default: 0.5.
	Strength float64

	// Bands overrides DefaultBands when non-empty.
	Bands []Band
}

// VerdictCouplingConfig controls the verdict-distance confidence floor.
type VerdictCouplingConfig struct {
	Enabled bool

	// StrongThresholdDistance is the |verdict-50| distance at which a
	// verdict counts as strong. Default: 20.
	StrongThresholdDistance float64

	// MinConfidenceStrong is the floor for strong verdicts. Default: 50.
	MinConfidenceStrong float64

	// MinConfidenceNeutral is the floor for neutral verdicts. Default: 25.
	MinConfidenceNeutral float64
}

// ContextConsistencyConfig controls the cross-context spread penalty.
type ContextConsistencyConfig struct {
	Enabled bool

	// MaxConfidenceSpread is the tolerated max-min spread across context
	// answer confidences. Default: 25.
	MaxConfidenceSpread float64

	// ReductionFactor scales the penalty per point of excess spread.
	// Default: 0.5.
	ReductionFactor float64
}

// Config holds the full calibration engine configuration.
type Config struct {
	Enabled            bool
	DensityAnchor      DensityAnchorConfig
	BandSnapping       BandSnappingConfig
	VerdictCoupling    VerdictCouplingConfig
	ContextConsistency ContextConsistencyConfig
}

// DefaultConfig returns the engine defaults with all four layers enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		DensityAnchor: DensityAnchorConfig{Enabled: true},
		BandSnapping: BandSnappingConfig{
			Enabled:  true,
			Strength: 0.5,
		},
		VerdictCoupling: VerdictCouplingConfig{
			Enabled:                 true,
			StrongThresholdDistance: 20,
			MinConfidenceStrong:     50,
			MinConfidenceNeutral:    25,
		},
		ContextConsistency: ContextConsistencyConfig{
			Enabled:             true,
			MaxConfidenceSpread: 25,
			ReductionFactor:     0.5,
		},
	}
}

func (c Config) withDefaults() Config {
	if c.BandSnapping.Strength <= 0 {
		c.BandSnapping.Strength = 0.5
	}
	if c.VerdictCoupling.StrongThresholdDistance <= 0 {
		c.VerdictCoupling.StrongThresholdDistance = 20
	}
	if c.VerdictCoupling.MinConfidenceStrong <= 0 {
		c.VerdictCoupling.MinConfidenceStrong = 50
	}
	if c.VerdictCoupling.MinConfidenceNeutral <= 0 {
		c.VerdictCoupling.MinConfidenceNeutral = 25
	}
	if c.ContextConsistency.MaxConfidenceSpread <= 0 {
		c.ContextConsistency.MaxConfidenceSpread = 25
	}
	if c.ContextConsistency.ReductionFactor <= 0 {
		c.ContextConsistency.ReductionFactor = 0.5
	}
	return c
}
