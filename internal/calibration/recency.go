package calibration

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// TopicGranularity describes how fast a topic's facts churn. Weekly topics
// (markets, ongoing events) are penalized hardest for stale evidence;
// institutional topics barely at all.
type TopicGranularity string

const (
	GranularityWeek  TopicGranularity = "week"
	GranularityMonth TopicGranularity = "month"
	GranularityYear  TopicGranularity = "year"
	GranularityNone  TopicGranularity = "none"
)

// RecencyConfig controls the recency penalty.
type RecencyConfig struct {
	// MaxPenalty is the largest confidence deduction. Default: 20.
	MaxPenalty float64

	// WindowMonths is the freshness window: evidence newer than this takes
	// no penalty, and staleness saturates at twice the window. Default: 6.
	WindowMonths float64

	// Granularity is the topic's volatility class. Unrecognized or empty
	// values take a middle multiplier.
	Granularity TopicGranularity
}

func (c RecencyConfig) withDefaults() RecencyConfig {
	if c.MaxPenalty <= 0 {
		c.MaxPenalty = 20
	}
	if c.WindowMonths <= 0 {
		c.WindowMonths = 6
	}
	return c
}

// RecencyResult breaks down one penalty computation.
type RecencyResult struct {
	CandidateCount   int     `json:"candidate_count"`
	MonthsOld        float64 `json:"months_old"`
	Staleness        float64 `json:"staleness"`
	Volatility       float64 `json:"volatility"`
	Volume           float64 `json:"volume"`
	EffectivePenalty float64 `json:"effective_penalty"`
}

const daysPerMonth = 30.4375

// RecencyPenalty combines evidence staleness, topic volatility, and date
// signal volume into one deterministic penalty:
// round(maxPenalty × staleness × volatility × volume).
func RecencyPenalty(candidates []time.Time, cfg RecencyConfig, now time.Time) RecencyResult {
	cfg = cfg.withDefaults()

	result := RecencyResult{
		CandidateCount: len(candidates),
		Volatility:     volatilityMultiplier(cfg.Granularity),
		Volume:         volumeMultiplier(len(candidates)),
	}

	if len(candidates) == 0 {
		// No extractable date at all: treat as maximally stale.
		result.Staleness = 1
		result.MonthsOld = -1
	} else {
		latest := dedupeByDay(candidates)
		result.MonthsOld = now.Sub(latest).Hours() / 24 / daysPerMonth
		result.Staleness = stalenessMultiplier(result.MonthsOld, cfg.WindowMonths)
	}

	result.EffectivePenalty = math.Round(cfg.MaxPenalty * result.Staleness * result.Volatility * result.Volume)
	return result
}

// stalenessMultiplier is 0 within the window, then ramps linearly to 1.0 at
// twice the window.
func stalenessMultiplier(monthsOld, window float64) float64 {
	if monthsOld <= window {
		return 0
	}
	return math.Min(1, math.Max(0, (monthsOld-window)/window))
}

func volatilityMultiplier(g TopicGranularity) float64 {
	switch g {
	case GranularityWeek:
		return 1.0
	case GranularityMonth:
		return 0.8
	case GranularityYear:
		return 0.4
	case GranularityNone:
		return 0.2
	default:
		return 0.7
	}
}

// volumeMultiplier attenuates the penalty as more date signals accumulate:
// many independent timestamps make the staleness estimate trustworthy enough
// to soften.
func volumeMultiplier(count int) float64 {
	switch {
	case count == 0:
		return 1.0
	case count <= 10:
		return 0.9
	case count <= 25:
		return 0.7
	default:
		return 0.5
	}
}

// dedupeByDay collapses same-calendar-day candidates and returns the most
// recent remaining date.
func dedupeByDay(candidates []time.Time) time.Time {
	seen := map[string]bool{}
	var latest time.Time
	for _, c := range candidates {
		key := c.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		if c.After(latest) {
			latest = c
		}
	}
	return latest
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	quarterRe   = regexp.MustCompile(`\bQ([1-4])\s+(\d{4})\b`)
	yearRangeRe = regexp.MustCompile(`\b(\d{4})\s*[-–]\s*(\d{4})\b`)
	bareYearRe  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// ExtractDateCandidates pulls date signals from evidence text: ISO dates,
// quarter notation ("Q1 2024"), year ranges, and standalone years in the
// plausible range [1900, currentYear+1]. Year-level signals resolve to
// mid-year so they compare sensibly against full dates.
func ExtractDateCandidates(texts []string, now time.Time) []time.Time {
	maxYear := now.Year() + 1
	var candidates []time.Time

	for _, text := range texts {
		for _, m := range isoDateRe.FindAllStringSubmatch(text, -1) {
			t, err := time.Parse("2006-01-02", m[0])
			if err != nil {
				continue
			}
			if t.Year() >= 1900 && t.Year() <= maxYear {
				candidates = append(candidates, t)
			}
		}

		for _, m := range quarterRe.FindAllStringSubmatch(text, -1) {
			q, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[2])
			if year < 1900 || year > maxYear {
				continue
			}
			// Middle month of the quarter.
			candidates = append(candidates, time.Date(year, time.Month(q*3-1), 15, 0, 0, 0, 0, time.UTC))
		}

		for _, m := range yearRangeRe.FindAllStringSubmatch(text, -1) {
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			if start < 1900 || end > maxYear || end < start {
				continue
			}
			// A range's relevance is its endpoint.
			candidates = append(candidates, time.Date(end, time.July, 1, 0, 0, 0, 0, time.UTC))
		}

		// Bare years only count where no richer pattern already matched the
		// same position; cheap approximation: skip years that are part of an
		// ISO date, quarter, or range match.
		masked := isoDateRe.ReplaceAllString(text, "")
		masked = quarterRe.ReplaceAllString(masked, "")
		masked = yearRangeRe.ReplaceAllString(masked, "")
		for _, m := range bareYearRe.FindAllStringSubmatch(masked, -1) {
			year, _ := strconv.Atoi(m[1])
			if year < 1900 || year > maxYear {
				continue
			}
			candidates = append(candidates, time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC))
		}
	}

	return candidates
}
