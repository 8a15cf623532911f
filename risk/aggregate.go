package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/tmrisk/analysis"
)

// EvidenceStrength grades how much authoritative support the analyses found.
type EvidenceStrength string

const (
	EvidenceNone     EvidenceStrength = "none"
	EvidenceModerate EvidenceStrength = "moderate"
	EvidenceStrong   EvidenceStrength = "strong"
)

// EvidenceFromCitations grades evidence by the number of distinct valid
// citations across all issues.
func EvidenceFromCitations(n int) EvidenceStrength {
	switch {
	case n >= 3:
		return EvidenceStrong
	case n >= 1:
		return EvidenceModerate
	default:
		return EvidenceNone
	}
}

// Issue is an analyzed issue with its severity.
type Issue struct {
	Analysis analysis.IssueAnalysis `json:"analysis"`
	Severity Level                  `json:"severity"`
}

// Result is the aggregated risk picture. Overall figures are methods so
// they always reflect the current dimensions.
type Result struct {
	Dimensions   Dimensions `json:"dimensions"`
	IssueReviews int        `json:"issue_reviews"`
}

// OverallScore is the fixed-weight sum of dimension scores.
func (r Result) OverallScore() float64 { return r.Dimensions.OverallScore() }

// OverallLevel is the band of the overall score.
func (r Result) OverallLevel() Level { return r.Dimensions.OverallLevel() }

// OverallConfidence is the weighted mean of dimension confidences.
func (r Result) OverallConfidence() float64 { return r.Dimensions.OverallConfidence() }

// RequiresHumanReview is true when overall confidence is under the review
// threshold or any issue requires review.
func (r Result) RequiresHumanReview() bool {
	return analysis.NeedsReview(r.OverallConfidence()) || r.IssueReviews > 0
}

// Aggregator scores the four dimensions.
type Aggregator struct {
	m Methodology
}

// NewAggregator creates an aggregator using m.
func NewAggregator(m Methodology) *Aggregator {
	return &Aggregator{m: m}
}

// Aggregate computes all dimensions from the issues, the number of prior
// federal marks and the citation evidence strength.
func (a *Aggregator) Aggregate(issues []Issue, priorMarks int, evidence EvidenceStrength) (Result, error) {
	var substantive, discretionary []Issue
	reviews := 0
	for _, is := range issues {
		if is.Analysis.Category.Substantive() {
			substantive = append(substantive, is)
		}
		if is.Analysis.Category.Discretionary() {
			discretionary = append(discretionary, is)
		}
		if is.Analysis.RequiresReview {
			reviews++
		}
	}

	builders := []func() (Dimension, error){
		func() (Dimension, error) { return a.rejection(issues, priorMarks, evidence) },
		func() (Dimension, error) { return a.overcoming(issues) },
		func() (Dimension, error) { return a.precedent(substantive, evidence) },
		func() (Dimension, error) { return a.discretion(discretionary) },
	}

	var res Result
	for i, build := range builders {
		d, err := build()
		if err != nil {
			return Result{}, err
		}
		res.Dimensions[i] = d
	}
	res.IssueReviews = reviews
	return res, nil
}

func (a *Aggregator) rejection(issues []Issue, priorMarks int, evidence EvidenceStrength) (Dimension, error) {
	m := a.m
	critical, high := 0, 0
	for _, is := range issues {
		if is.Analysis.Unavailable {
			continue
		}
		switch is.Severity {
		case Critical:
			critical++
		case High:
			high++
		}
	}

	score := min(critical*m.CriticalPoints, m.CriticalCap) +
		min(high*m.HighPoints, m.HighCap) +
		min(priorMarks*m.PriorMarkPoints, m.PriorMarkCap) +
		m.EvidencePoints[evidence]
	score = min(score, 100)

	explanation := fmt.Sprintf(
		"%d critical and %d high severity issues, %d similar registered marks, %s supporting TMEP evidence",
		critical, high, priorMarks, evidence)
	return NewDimension(RejectionLikelihood, float64(score), a.confidence(issues), explanation)
}

func (a *Aggregator) overcoming(issues []Issue) (Dimension, error) {
	m := a.m
	if len(issues) == 0 {
		return NewDimension(OvercomingDifficulty, 0, a.confidence(issues), "No issues to overcome")
	}

	sum, maxD := 0, 0
	var costMid, monthsMid float64
	for _, is := range issues {
		d := m.difficulty(is)
		sum += d
		maxD = max(maxD, d)
		if p, ok := m.profile(is.Analysis.Category); ok {
			costMid += p.costMid()
			monthsMid += p.monthsMid()
		}
	}
	avg := float64(sum) / float64(len(issues))
	score := avg*m.DifficultyAvgWeight + float64(maxD)*m.DifficultyMaxWeight

	var notes []string
	if costMid > m.CostSurchargeOver {
		score += float64(m.Surcharge)
		notes = append(notes, "high expected response cost")
	}
	if monthsMid > m.TimeSurchargeOver {
		score += float64(m.Surcharge)
		notes = append(notes, "long expected prosecution")
	}
	score = min(score, 100)

	explanation := fmt.Sprintf("Average difficulty %.0f, hardest issue %d", avg, maxD)
	if len(notes) > 0 {
		explanation += "; " + strings.Join(notes, ", ")
	}
	return NewDimension(OvercomingDifficulty, score, a.confidence(issues), explanation)
}

func (a *Aggregator) precedent(substantive []Issue, evidence EvidenceStrength) (Dimension, error) {
	m := a.m
	cited := 0
	for _, is := range substantive {
		if len(is.Analysis.Citations) > 0 {
			cited++
		}
	}

	score := m.PrecedentBase
	switch {
	case cited >= m.PrecedentMinIssues:
		score += m.PrecedentStep
	case cited == 0:
		score -= m.PrecedentStep
	}
	if evidence == EvidenceStrong {
		score += m.PrecedentEvidenceBonus
	}
	score = max(0, min(score, 100))

	explanation := fmt.Sprintf("%d substantive issues supported by TMEP citations", cited)
	return NewDimension(LegalPrecedentStrength, float64(score), a.confidence(substantive), explanation)
}

func (a *Aggregator) discretion(discretionary []Issue) (Dimension, error) {
	m := a.m
	if len(discretionary) == 0 {
		return NewDimension(ExaminerDiscretion, float64(m.DiscretionBase), a.confidence(nil),
			"No issues turning on examiner judgement")
	}

	elements := make(map[string]bool)
	for _, is := range discretionary {
		if e, ok := m.SubjectiveElements[is.Analysis.Category]; ok {
			elements[e] = true
		}
	}
	names := make([]string, 0, len(elements))
	for e := range elements {
		names = append(names, e)
	}
	sort.Strings(names)

	score := m.DiscretionActiveBase + len(discretionary)*m.DiscretionPerIssue +
		min(len(names)*m.SubjectivePoints, m.SubjectiveCap)
	score = min(score, 100)

	explanation := fmt.Sprintf("%d issues depend on examiner judgement", len(discretionary))
	if len(names) > 0 {
		explanation += " (" + strings.Join(names, ", ") + ")"
	}
	return NewDimension(ExaminerDiscretion, float64(score), a.confidence(discretionary), explanation)
}

// confidence is the mean computed confidence of the feeding issues, or the
// methodology default when none feed the dimension.
func (a *Aggregator) confidence(issues []Issue) float64 {
	if len(issues) == 0 {
		return a.m.DefaultDimensionConfidence
	}
	var sum float64
	for _, is := range issues {
		sum += is.Analysis.ComputedConfidence
	}
	return sum / float64(len(issues))
}

// ClassifySeverity assigns a severity from the issue category, the
// self-reported confidence of its analysis and the number of prior marks.
func (m Methodology) ClassifySeverity(category analysis.Category, selfConfidence float64, priorMarks int, unavailable bool) Level {
	if unavailable {
		return Moderate
	}
	switch category {
	case analysis.LikelihoodOfConfusion:
		if selfConfidence > m.ConfusionHighSelfAbove || priorMarks > m.ConfusionHighMarksOver {
			return High
		}
		return Moderate
	case analysis.Descriptiveness:
		if selfConfidence > m.DescriptiveModAbove {
			return Moderate
		}
		return Low
	case analysis.Genericness:
		return High
	case analysis.OwnershipIssue:
		return Moderate
	default:
		return Low
	}
}
