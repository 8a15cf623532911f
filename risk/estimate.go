package risk

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Estimate is a cost and timeline range for resolving all issues.
type Estimate struct {
	CostLow       int  `json:"cost_low"`
	CostHigh      int  `json:"cost_high"`
	MonthsLow     int  `json:"months_low"`
	MonthsHigh    int  `json:"months_high"`
	AdjustmentPct int  `json:"adjustment_pct"`
	AppealLikely  bool `json:"appeal_likely"`
}

var printer = message.NewPrinter(language.English)

// CostRange formats the cost as "$3,500-$5,250".
func (e Estimate) CostRange() string {
	return printer.Sprintf("$%d-$%d", e.CostLow, e.CostHigh)
}

// TimelineRange formats the timeline as "6-9 months".
func (e Estimate) TimelineRange() string {
	return printer.Sprintf("%d-%d months", e.MonthsLow, e.MonthsHigh)
}

// FormatCostBand formats a per-issue cost band.
func FormatCostBand(b Band) string {
	return printer.Sprintf("$%d-$%d", b.Low, b.High)
}

// FormatMonthsBand formats a per-issue time band.
func FormatMonthsBand(b Band) string {
	return printer.Sprintf("%d-%d months", b.Low, b.High)
}

// Estimator derives cost and timeline from issues and dimension scores.
type Estimator struct {
	m Methodology
}

// NewEstimator creates an estimator using m.
func NewEstimator(m Methodology) *Estimator {
	return &Estimator{m: m}
}

// Estimate sums the cost midpoints of every issue, takes the longest time
// midpoint as the timeline base (responses to one Office action run
// concurrently) and applies additive percentage adjustments. The same
// inputs always give the same output.
func (e *Estimator) Estimate(issues []Issue, dims Dimensions) Estimate {
	m := e.m

	var baseCost, baseMonths float64
	for _, is := range issues {
		p, ok := m.profile(is.Analysis.Category)
		if !ok {
			continue
		}
		baseCost += p.costMid()
		baseMonths = math.Max(baseMonths, p.monthsMid())
	}
	if baseMonths == 0 {
		baseMonths = float64(m.DefaultMonths)
	}

	pct := 0
	if extra := len(issues) - m.ExtraIssuesAfter; extra > 0 {
		pct += extra * m.ExtraIssuePct
	}
	if dims.Get(ExaminerDiscretion).Score >= m.DiscretionAdjustAt {
		pct += m.DiscretionAdjustPct
	}
	appeal := dims.Get(LegalPrecedentStrength).Score >= m.PrecedentAdjustAt
	if appeal {
		pct += m.PrecedentAdjustPct
	}

	low := int(math.Round(baseCost * float64(100+pct) / 100))
	high := int(math.Round(float64(low) * float64(m.HighRangePct) / 100))
	monthsLow := int(math.Ceil(baseMonths))
	monthsHigh := monthsLow + m.TimelineSpreadMonths
	if appeal {
		high += m.AppealCost
		monthsHigh += m.AppealMonths
	}

	return Estimate{
		CostLow:       low,
		CostHigh:      high,
		MonthsLow:     monthsLow,
		MonthsHigh:    monthsHigh,
		AdjustmentPct: pct,
		AppealLikely:  appeal,
	}
}

// IssueCost returns the cost band for an issue of the given severity.
func (m Methodology) IssueCost(severity Level) Band { return m.SeverityCost[severity] }

// IssueMonths returns the time band for an issue of the given severity.
func (m Methodology) IssueMonths(severity Level) Band { return m.SeverityMonths[severity] }
