package tmrisk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/brunobiangulo/tmrisk/analysis"
	"github.com/brunobiangulo/tmrisk/parser"
	"github.com/brunobiangulo/tmrisk/risk"
)

// HighSimilarity is the similarity at or above which a prior mark counts
// as a close match in the summary.
const HighSimilarity = 0.7

// IssueCheck names one issue to analyze for an application.
type IssueCheck struct {
	Category    analysis.Category `json:"category"`
	Description string            `json:"description"`
	// Severity overrides classification when set. Critical severity is
	// only ever caller-supplied.
	Severity risk.Level `json:"severity,omitempty"`
}

// DefaultIssueChecks are analyzed when a request names no issues.
var DefaultIssueChecks = []IssueCheck{
	{Category: analysis.LikelihoodOfConfusion, Description: "likelihood of confusion with prior marks"},
	{Category: analysis.Descriptiveness, Description: "descriptiveness or genericness of mark elements"},
	{Category: analysis.SpecimenDeficiency, Description: "specimen and identification requirements"},
	{Category: analysis.FilingBasisIssue, Description: "filing basis and ownership verification"},
}

// Request is the input to an assessment.
type Request struct {
	Application parser.Application                   `json:"application"`
	PriorMarks  map[parser.Source][]parser.PriorMark `json:"prior_marks,omitempty"`
	Issues      []IssueCheck                         `json:"issues,omitempty"`
}

// PriorMarkSummary counts the prior marks behind an assessment.
type PriorMarkSummary struct {
	USPTO          int `json:"uspto"`
	State          int `json:"state"`
	CommonLaw      int `json:"common_law"`
	Domain         int `json:"domain"`
	Total          int `json:"total"`
	HighSimilarity int `json:"high_similarity"`
}

func summarizePriorMarks(marks map[parser.Source][]parser.PriorMark) PriorMarkSummary {
	s := PriorMarkSummary{
		USPTO:     len(marks[parser.SourceUSPTO]),
		State:     len(marks[parser.SourceState]),
		CommonLaw: len(marks[parser.SourceCommonLaw]),
		Domain:    len(marks[parser.SourceDomain]),
	}
	for _, ms := range marks {
		s.Total += len(ms)
		for _, m := range ms {
			if m.Similarity >= HighSimilarity {
				s.HighSimilarity++
			}
		}
	}
	return s
}

// IssueResult is one analyzed issue inside an assessment.
type IssueResult struct {
	Description    string                 `json:"description"`
	Severity       risk.Level             `json:"severity"`
	Analysis       analysis.IssueAnalysis `json:"analysis"`
	EstimatedCost  string                 `json:"estimated_cost"`
	EstimatedTime  string                 `json:"estimated_time"`
	Recommendation string                 `json:"recommendation"`
}

// Assessment is the scored result for one application. Overall figures are
// methods recomputed from Dimensions; an Assessment is never mutated after
// the engine returns it.
type Assessment struct {
	ID             string           `json:"id"`
	Mark           string           `json:"mark"`
	GoodsServices  []string         `json:"goods_services"`
	Classes        []int            `json:"classes"`
	CreatedAt      time.Time        `json:"created_at"`
	Dimensions     risk.Dimensions  `json:"dimensions"`
	Issues         []IssueResult    `json:"issues"`
	PriorMarks     PriorMarkSummary `json:"prior_marks"`
	Estimate       risk.Estimate    `json:"estimate"`
	Recommendation string           `json:"recommendation"`
	Alternatives   []string         `json:"alternatives"`
}

// OverallScore is the weighted sum of the dimension scores.
func (a Assessment) OverallScore() float64 { return a.Dimensions.OverallScore() }

// OverallRiskLevel is the band of the overall score.
func (a Assessment) OverallRiskLevel() risk.Level { return a.Dimensions.OverallLevel() }

// OverallConfidence is the weighted mean of the dimension confidences.
func (a Assessment) OverallConfidence() float64 { return a.Dimensions.OverallConfidence() }

// RequiresHumanReview reports low overall confidence or any issue that
// requires review.
func (a Assessment) RequiresHumanReview() bool {
	if analysis.NeedsReview(a.OverallConfidence()) {
		return true
	}
	for _, is := range a.Issues {
		if is.Analysis.RequiresReview {
			return true
		}
	}
	return false
}

// Citations returns every distinct citation across all issues, sorted.
func (a Assessment) Citations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, is := range a.Issues {
		for _, c := range is.Analysis.Citations {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

type plainAssessment Assessment

// MarshalJSON adds the computed overall figures and formatted estimate.
func (a Assessment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		plainAssessment
		OverallScore        float64    `json:"overall_score"`
		OverallRiskLevel    risk.Level `json:"overall_risk_level"`
		OverallConfidence   float64    `json:"overall_confidence"`
		RequiresHumanReview bool       `json:"requires_human_review"`
		EstimatedCost       string     `json:"estimated_cost"`
		EstimatedTimeline   string     `json:"estimated_timeline"`
	}{
		plainAssessment:     plainAssessment(a),
		OverallScore:        a.OverallScore(),
		OverallRiskLevel:    a.OverallRiskLevel(),
		OverallConfidence:   a.OverallConfidence(),
		RequiresHumanReview: a.RequiresHumanReview(),
		EstimatedCost:       a.Estimate.CostRange(),
		EstimatedTimeline:   a.Estimate.TimelineRange(),
	})
}

// Digest returns the sha256 hex digest of the RFC 8785 canonical JSON form
// of the assessment content. ID and CreatedAt are blanked first, so two
// runs that reach the same result share a digest.
func (a Assessment) Digest() (string, error) {
	a.ID = ""
	a.CreatedAt = time.Time{}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encoding assessment: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing assessment: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
