// Package risk turns analyzed issues into weighted risk dimensions, an
// overall level, cost and timeline estimates and recommendations.
package risk

import "fmt"

// Level is a risk band. It is used both for the overall assessment and for
// the severity of individual issues.
type Level string

const (
	Critical Level = "critical"
	High     Level = "high"
	Moderate Level = "moderate"
	Low      Level = "low"
	Minimal  Level = "minimal"
)

// LevelFor maps a 0-100 score to its band.
func LevelFor(score float64) Level {
	switch {
	case score >= 75:
		return Critical
	case score >= 60:
		return High
	case score >= 40:
		return Moderate
	case score >= 20:
		return Low
	default:
		return Minimal
	}
}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case Critical, High, Moderate, Low, Minimal:
		return l, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}
