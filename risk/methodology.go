package risk

import "github.com/brunobiangulo/tmrisk/analysis"

// CategoryProfile holds the per-category figures used for difficulty,
// cost and timeline estimates. Costs are USD, times are months.
type CategoryProfile struct {
	Difficulty int
	CostLow    int
	CostHigh   int
	MonthsLow  int
	MonthsHigh int
}

func (p CategoryProfile) costMid() float64   { return float64(p.CostLow+p.CostHigh) / 2 }
func (p CategoryProfile) monthsMid() float64 { return float64(p.MonthsLow+p.MonthsHigh) / 2 }

// Band is a per-severity cost or time range shown on individual issues.
type Band struct {
	Low  int
	High int
}

// Methodology holds every threshold, multiplier and table used in scoring.
// It is passed by value and never modified after construction.
type Methodology struct {
	// Rejection likelihood.
	CriticalPoints, CriticalCap   int
	HighPoints, HighCap           int
	PriorMarkPoints, PriorMarkCap int
	EvidencePoints                map[EvidenceStrength]int

	// Overcoming difficulty.
	Categories          map[analysis.Category]CategoryProfile
	UnknownDifficulty   int
	DifficultyAvgWeight float64
	DifficultyMaxWeight float64
	CostSurchargeOver   float64 // summed cost midpoints
	TimeSurchargeOver   float64 // summed month midpoints
	Surcharge           int

	// Legal precedent strength.
	PrecedentBase, PrecedentStep int
	PrecedentMinIssues           int
	PrecedentEvidenceBonus       int

	// Examiner discretion.
	DiscretionBase, DiscretionActiveBase int
	DiscretionPerIssue                   int
	SubjectivePoints, SubjectiveCap      int
	SubjectiveElements                   map[analysis.Category]string

	DefaultDimensionConfidence float64

	// Cost and timeline.
	ExtraIssuesAfter       int
	ExtraIssuePct          int
	DiscretionAdjustAt     float64
	DiscretionAdjustPct    int
	PrecedentAdjustAt      float64
	PrecedentAdjustPct     int
	HighRangePct           int
	AppealCost             int
	AppealMonths           int
	DefaultMonths          int
	TimelineSpreadMonths   int
	SeverityCost           map[Level]Band
	SeverityMonths         map[Level]Band
	ConfusionHighSelfAbove float64
	ConfusionHighMarksOver int
	DescriptiveModAbove    float64
}

// DefaultMethodology returns the standard scoring tables.
func DefaultMethodology() Methodology {
	return Methodology{
		CriticalPoints:  30,
		CriticalCap:     60,
		HighPoints:      15,
		HighCap:         30,
		PriorMarkPoints: 10,
		PriorMarkCap:    25,
		// Banded form of 5 points per distinct citation up to 15; one or
		// two citations both grade moderate and score the upper value.
		EvidencePoints: map[EvidenceStrength]int{
			EvidenceNone:     0,
			EvidenceModerate: 10,
			EvidenceStrong:   15,
		},

		Categories: map[analysis.Category]CategoryProfile{
			analysis.LikelihoodOfConfusion: {Difficulty: 70, CostLow: 2000, CostHigh: 4000, MonthsLow: 6, MonthsHigh: 9},
			analysis.Descriptiveness:       {Difficulty: 50, CostLow: 1500, CostHigh: 3000, MonthsLow: 4, MonthsHigh: 6},
			analysis.Genericness:           {Difficulty: 90, CostLow: 3000, CostHigh: 6000, MonthsLow: 9, MonthsHigh: 12},
			analysis.SpecimenDeficiency:    {Difficulty: 20, CostLow: 500, CostHigh: 1500, MonthsLow: 3, MonthsHigh: 6},
			analysis.IdentificationIssue:   {Difficulty: 15, CostLow: 300, CostHigh: 800, MonthsLow: 1, MonthsHigh: 3},
			analysis.OwnershipIssue:        {Difficulty: 40, CostLow: 1000, CostHigh: 2500, MonthsLow: 3, MonthsHigh: 6},
			analysis.FilingBasisIssue:      {Difficulty: 25, CostLow: 500, CostHigh: 1200, MonthsLow: 2, MonthsHigh: 4},
			analysis.ProceduralIssue:       {Difficulty: 10, CostLow: 200, CostHigh: 600, MonthsLow: 1, MonthsHigh: 3},
		},
		UnknownDifficulty:   30,
		DifficultyAvgWeight: 0.6,
		DifficultyMaxWeight: 0.4,
		CostSurchargeOver:   5000,
		TimeSurchargeOver:   12,
		Surcharge:           10,

		PrecedentBase:          50,
		PrecedentStep:          20,
		PrecedentMinIssues:     3,
		PrecedentEvidenceBonus: 15,

		DiscretionBase:       30,
		DiscretionActiveBase: 50,
		DiscretionPerIssue:   10,
		SubjectivePoints:     5,
		SubjectiveCap:        20,
		SubjectiveElements: map[analysis.Category]string{
			analysis.LikelihoodOfConfusion: "commercial impression",
			analysis.Descriptiveness:       "suggestiveness",
			analysis.Genericness:           "primary significance",
		},

		DefaultDimensionConfidence: 0.70,

		ExtraIssuesAfter:     2,
		ExtraIssuePct:        10,
		DiscretionAdjustAt:   60,
		DiscretionAdjustPct:  15,
		PrecedentAdjustAt:    70,
		PrecedentAdjustPct:   20,
		HighRangePct:         150,
		AppealCost:           3000,
		AppealMonths:         6,
		DefaultMonths:        6,
		TimelineSpreadMonths: 3,
		SeverityCost: map[Level]Band{
			Critical: {5000, 10000},
			High:     {3000, 6000},
			Moderate: {1500, 3000},
			Low:      {500, 1500},
			Minimal:  {0, 500},
		},
		SeverityMonths: map[Level]Band{
			Critical: {12, 18},
			High:     {9, 12},
			Moderate: {6, 9},
			Low:      {3, 6},
			Minimal:  {1, 3},
		},
		ConfusionHighSelfAbove: 0.7,
		ConfusionHighMarksOver: 5,
		DescriptiveModAbove:    0.6,
	}
}

func (m Methodology) profile(c analysis.Category) (CategoryProfile, bool) {
	p, ok := m.Categories[c]
	return p, ok
}

func (m Methodology) difficulty(i Issue) int {
	if i.Analysis.Unavailable {
		return m.UnknownDifficulty
	}
	if p, ok := m.profile(i.Analysis.Category); ok {
		return p.Difficulty
	}
	return m.UnknownDifficulty
}
