package risk

import "github.com/brunobiangulo/tmrisk/analysis"

// MaxAlternatives caps the number of alternative strategies returned.
const MaxAlternatives = 5

// Recommendation is the advice attached to an assessment.
type Recommendation struct {
	Primary      string   `json:"primary"`
	Alternatives []string `json:"alternatives"`
}

var levelAdvice = map[Level]Recommendation{
	Critical: {
		Primary: "DO NOT FILE - Likelihood of rejection is very high. Consider substantial mark modification or an alternative mark entirely.",
		Alternatives: []string{
			"Conduct a comprehensive knockout search to identify a less risky mark",
			"If the brand is essential, budget for extensive legal costs and a real chance of failure",
			"Consider foreign filing first to establish some rights",
			"Explore common law rights instead of federal registration",
		},
	},
	High: {
		Primary: "PROCEED WITH CAUTION - Significant rejection risk exists. Address issues before filing or budget for extensive Office action responses.",
		Alternatives: []string{
			"Amend goods/services to avoid conflicting classes",
			"Develop secondary meaning evidence before filing",
			"File intent-to-use to delay specimen submission while addressing issues",
			"Consult a trademark attorney for pre-filing risk mitigation",
			"Consider a consent agreement if a single prior mark is the primary issue",
		},
	},
	Moderate: {
		Primary: "PROCEED WITH PREPARATION - Issues exist but can likely be overcome. Budget for 1-2 Office action responses.",
		Alternatives: []string{
			"Prepare response arguments in advance",
			"Gather evidence of non-descriptiveness or acquired distinctiveness",
			"Ensure specimens meet all USPTO requirements",
			"Consider a trademark attorney for the Office action response",
			"Monitor similar applications during prosecution",
		},
	},
	Low: {
		Primary: "PROCEED - Minor issues may arise but registration is likely. Standard prosecution expected.",
		Alternatives: []string{
			"Ensure all filing requirements are met",
			"Monitor application status regularly",
			"Prepare for possible minor amendments",
			"Consider DIY filing or limited attorney assistance",
		},
	},
	Minimal: {
		Primary: "PROCEED CONFIDENTLY - Clear path to registration. Minimal risk identified.",
		Alternatives: []string{
			"File the application as soon as ready",
			"DIY filing is reasonable given the low risk",
			"Maintain specimens and usage evidence",
			"Plan for a straightforward prosecution timeline (8-12 months)",
		},
	},
}

// IssueAdvice returns the recommendation for a single issue.
func IssueAdvice(is Issue) string {
	if is.Analysis.RequiresReview {
		return "Review analysis and consider attorney consultation"
	}
	switch is.Analysis.Category {
	case analysis.LikelihoodOfConfusion:
		return "Consider a consent agreement or amendment to limit goods/services"
	case analysis.Descriptiveness:
		return "Gather evidence of acquired distinctiveness or argue suggestiveness"
	}
	return "Address in the Office action response with supporting evidence"
}

// Recommend returns the primary recommendation for level followed by up to
// MaxAlternatives strategies: level strategies first, then issue advice.
func Recommend(level Level, issues []Issue) Recommendation {
	base, ok := levelAdvice[level]
	if !ok {
		base = levelAdvice[Moderate]
	}

	alts := make([]string, 0, len(base.Alternatives)+len(issues))
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			alts = append(alts, s)
		}
	}
	for _, s := range base.Alternatives {
		add(s)
	}
	for _, is := range issues {
		add(IssueAdvice(is))
	}
	if len(alts) > MaxAlternatives {
		alts = alts[:MaxAlternatives]
	}
	return Recommendation{Primary: base.Primary, Alternatives: alts}
}
