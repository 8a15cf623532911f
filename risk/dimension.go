package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidDimension is returned when a dimension is out of range.
var ErrInvalidDimension = errors.New("risk: invalid dimension")

// DimensionName identifies one of the four risk dimensions.
type DimensionName string

const (
	RejectionLikelihood    DimensionName = "rejection_likelihood"
	OvercomingDifficulty   DimensionName = "overcoming_difficulty"
	LegalPrecedentStrength DimensionName = "legal_precedent_strength"
	ExaminerDiscretion     DimensionName = "examiner_discretion"
)

// DimensionNames lists the dimensions in their fixed order.
var DimensionNames = [4]DimensionName{
	RejectionLikelihood,
	OvercomingDifficulty,
	LegalPrecedentStrength,
	ExaminerDiscretion,
}

// weightPct holds the fixed weights as whole percentages so they sum to
// exactly 100.
var weightPct = map[DimensionName]int{
	RejectionLikelihood:    40,
	OvercomingDifficulty:   30,
	LegalPrecedentStrength: 20,
	ExaminerDiscretion:     10,
}

// Weight returns the fixed weight of the dimension in (0,1].
func (n DimensionName) Weight() float64 {
	return float64(weightPct[n]) / 100
}

// TotalWeight returns the sum of all dimension weights, exactly 1.
func TotalWeight() float64 {
	total := 0
	for _, n := range DimensionNames {
		total += weightPct[n]
	}
	return float64(total) / 100
}

// Dimension is one scored aspect of risk.
type Dimension struct {
	Name        DimensionName `json:"name"`
	Score       float64       `json:"score"`
	Weight      float64       `json:"weight"`
	Confidence  float64       `json:"confidence"`
	Explanation string        `json:"explanation"`
}

// NewDimension builds a dimension, deriving its weight from the name.
func NewDimension(name DimensionName, score, confidence float64, explanation string) (Dimension, error) {
	d := Dimension{
		Name:        name,
		Score:       score,
		Weight:      name.Weight(),
		Confidence:  confidence,
		Explanation: explanation,
	}
	if err := d.Validate(); err != nil {
		return Dimension{}, err
	}
	return d, nil
}

// Validate checks ranges and that the weight is the fixed one for the name.
func (d Dimension) Validate() error {
	pct, ok := weightPct[d.Name]
	if !ok {
		return fmt.Errorf("%w: unknown dimension %q", ErrInvalidDimension, d.Name)
	}
	if d.Score < 0 || d.Score > 100 {
		return fmt.Errorf("%w: %s score %v outside [0,100]", ErrInvalidDimension, d.Name, d.Score)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: %s confidence %v outside [0,1]", ErrInvalidDimension, d.Name, d.Confidence)
	}
	if d.Weight != float64(pct)/100 {
		return fmt.Errorf("%w: %s weight %v, want %v", ErrInvalidDimension, d.Name, d.Weight, float64(pct)/100)
	}
	return nil
}

// Dimensions is the full set of four dimensions in fixed order. The
// overall figures are recomputed from it on every call.
type Dimensions [4]Dimension

// Get returns the dimension with the given name.
func (ds Dimensions) Get(name DimensionName) Dimension {
	for _, d := range ds {
		if d.Name == name {
			return d
		}
	}
	return Dimension{}
}

// OverallScore is the weighted sum of the dimension scores.
func (ds Dimensions) OverallScore() float64 {
	var sum float64
	for _, d := range ds {
		sum += d.Score * float64(weightPct[d.Name])
	}
	return sum / 100
}

// OverallLevel is the band of OverallScore.
func (ds Dimensions) OverallLevel() Level {
	return LevelFor(ds.OverallScore())
}

// OverallConfidence is the weighted mean of the dimension confidences.
func (ds Dimensions) OverallConfidence() float64 {
	var sum float64
	for _, d := range ds {
		sum += d.Confidence * float64(weightPct[d.Name])
	}
	return sum / 100
}

// Validate checks every dimension and that each name appears exactly once.
func (ds Dimensions) Validate() error {
	seen := make(map[DimensionName]bool, len(ds))
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate dimension %q", ErrInvalidDimension, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}
