package domain

import (
	"fmt"
	"strings"
)

// SeverityTier is the ordered urgency class of a reading.
type SeverityTier string

const (
	TierCritical SeverityTier = "CRITICAL"
	TierHigh     SeverityTier = "HIGH"
	TierModerate SeverityTier = "MODERATE"
	TierWatch    SeverityTier = "WATCH"
)

// SeverityAll is the filter sentinel that passes every tier.
const SeverityAll = "all"

// Tiers lists every tier from most to least urgent.
var Tiers = []SeverityTier{TierCritical, TierHigh, TierModerate, TierWatch}

// Rank orders tiers: CRITICAL is 3, WATCH is 0, anything unknown is -1.
func (t SeverityTier) Rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierHigh:
		return 2
	case TierModerate:
		return 1
	case TierWatch:
		return 0
	default:
		return -1
	}
}

// ParseSeverityTier parses a tier name case-insensitively. The "all" sentinel
// and the empty string return ("", nil), meaning no severity restriction.
func ParseSeverityTier(s string) (SeverityTier, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, SeverityAll) {
		return "", nil
	}
	t := SeverityTier(strings.ToUpper(s))
	if t.Rank() < 0 {
		return "", fmt.Errorf("unknown severity tier %q", s)
	}
	return t, nil
}

// FireThresholds are the cutoffs applied when the reading carries the fire flag.
type FireThresholds struct {
	CriticalTemperature float64 `yaml:"critical_temperature"`
	CriticalCO2         float64 `yaml:"critical_co2"`
	CriticalConfidence  float64 `yaml:"critical_confidence"`
	HighTemperature     float64 `yaml:"high_temperature"`
	HighCO2             float64 `yaml:"high_co2"`
	HighConfidence      float64 `yaml:"high_confidence"`
}

// WatchThresholds are the cutoffs applied to readings without the fire flag.
type WatchThresholds struct {
	ModerateTemperature float64 `yaml:"moderate_temperature"`
	ModerateConfidence  float64 `yaml:"moderate_confidence"`
}

// Thresholds configures the classifier.
type Thresholds struct {
	Fire   FireThresholds  `yaml:"fire"`
	NoFire WatchThresholds `yaml:"no_fire"`
}

// DefaultThresholds returns the operational cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fire: FireThresholds{
			CriticalTemperature: 80,
			CriticalCO2:         450,
			CriticalConfidence:  0.92,
			HighTemperature:     65,
			HighCO2:             380,
			HighConfidence:      0.75,
		},
		NoFire: WatchThresholds{
			ModerateTemperature: 55,
			ModerateConfidence:  0.6,
		},
	}
}

// Classify maps a reading to its tier. It is total: every reading, including
// one with zero-valued fields, lands in exactly one tier.
func Classify(r Reading, th Thresholds) SeverityTier {
	if r.IsFire {
		f := th.Fire
		switch {
		case r.Temperature >= f.CriticalTemperature || r.CO2Level >= f.CriticalCO2 || r.Confidence >= f.CriticalConfidence:
			return TierCritical
		case r.Temperature >= f.HighTemperature || r.CO2Level >= f.HighCO2 || r.Confidence >= f.HighConfidence:
			return TierHigh
		default:
			return TierModerate
		}
	}

	if r.Temperature >= th.NoFire.ModerateTemperature || r.Confidence >= th.NoFire.ModerateConfidence {
		return TierModerate
	}
	return TierWatch
}

// TierCounts tallies readings per tier.
type TierCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Moderate int `json:"moderate"`
	Watch    int `json:"watch"`
}

// Add increments the counter for t.
func (c *TierCounts) Add(t SeverityTier) {
	switch t {
	case TierCritical:
		c.Critical++
	case TierHigh:
		c.High++
	case TierModerate:
		c.Moderate++
	case TierWatch:
		c.Watch++
	}
}
