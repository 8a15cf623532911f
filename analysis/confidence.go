package analysis

// ReviewThreshold is the computed confidence below which an analysis must
// be reviewed by a human.
const ReviewThreshold = 0.60

const (
	retrievalWeight = 0.4
	selfWeight      = 0.3
	citationWeight  = 0.3
)

// NeedsReview applies the review gate to a confidence value.
func NeedsReview(confidence float64) bool {
	return confidence < ReviewThreshold
}

// retrievalFactor buckets the best retrieval relevance.
func retrievalFactor(maxRelevance float64) float64 {
	switch {
	case maxRelevance > 0.5:
		return 0.3
	case maxRelevance > 0.3:
		return 0.2
	default:
		return 0.1
	}
}

// Estimate returns a copy of a with ComputedConfidence and RequiresReview
// set from retrieval quality, the self-reported confidence and the share of
// extracted citations that survived validation.
func Estimate(a IssueAnalysis) IssueAnalysis {
	if a.Unavailable {
		a.ComputedConfidence = 0
		a.RequiresReview = true
		return a
	}

	retrievalTerm := retrievalWeight * retrievalFactor(a.Retrieval.MaxRelevance())
	selfTerm := selfWeight * clamp01(a.SelfReportedConfidence)
	citationTerm := 0.0
	if a.ExtractedCount > 0 {
		citationTerm = citationWeight * float64(len(a.Citations)) / float64(a.ExtractedCount)
	}

	a.ComputedConfidence = clamp01(retrievalTerm + selfTerm + citationTerm)
	a.RequiresReview = NeedsReview(a.ComputedConfidence)
	return a
}
