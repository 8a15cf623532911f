package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brunobiangulo/tmrisk/retrieval"
)

func withRelevance(r float64) retrieval.Result {
	return retrieval.Result{Hits: []retrieval.Hit{{EntryID: "1207", Relevance: r}}}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name       string
		in         IssueAnalysis
		want       float64
		wantReview bool
	}{
		{
			name: "strong retrieval, all citations valid",
			in: IssueAnalysis{
				Retrieval:              withRelevance(0.9),
				SelfReportedConfidence: 0.9,
				Citations:              []string{"1207", "1209"},
				ExtractedCount:         2,
			},
			want: 0.12 + 0.27 + 0.3,
		},
		{
			name: "mid retrieval, half the citations invalid",
			in: IssueAnalysis{
				Retrieval:              withRelevance(0.4),
				SelfReportedConfidence: 0.5,
				Citations:              []string{"1207"},
				ExtractedCount:         2,
			},
			want:       0.08 + 0.15 + 0.15,
			wantReview: true,
		},
		{
			name: "weak retrieval, no citations extracted",
			in: IssueAnalysis{
				Retrieval:              withRelevance(0.3),
				SelfReportedConfidence: 1,
			},
			want:       0.04 + 0.3,
			wantReview: true,
		},
		{
			name:       "no hits",
			in:         IssueAnalysis{SelfReportedConfidence: 0},
			want:       0.04,
			wantReview: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.in)
			assert.InDelta(t, tt.want, got.ComputedConfidence, 1e-9)
			assert.Equal(t, tt.wantReview, got.RequiresReview)
		})
	}
}

func TestEstimateMonotonicInValidRatio(t *testing.T) {
	prev := -1.0
	for valid := 0; valid <= 4; valid++ {
		in := IssueAnalysis{
			Retrieval:              withRelevance(0.6),
			SelfReportedConfidence: 0.7,
			Citations:              make([]string, valid),
			ExtractedCount:         4,
		}
		got := Estimate(in).ComputedConfidence
		assert.Greater(t, got, prev, "valid=%d", valid)
		prev = got
	}
}

func TestEstimateDoesNotMutateInput(t *testing.T) {
	in := IssueAnalysis{Retrieval: withRelevance(0.9), SelfReportedConfidence: 0.9}
	_ = Estimate(in)
	assert.Zero(t, in.ComputedConfidence)
	assert.False(t, in.RequiresReview)
}

func TestNeedsReviewBoundary(t *testing.T) {
	assert.False(t, NeedsReview(0.60))
	assert.True(t, NeedsReview(0.599))
	assert.False(t, NeedsReview(0.72))
	assert.True(t, NeedsReview(0))
}

func TestRetrievalFactorBuckets(t *testing.T) {
	assert.Equal(t, 0.3, retrievalFactor(0.51))
	assert.Equal(t, 0.2, retrievalFactor(0.5))
	assert.Equal(t, 0.2, retrievalFactor(0.31))
	assert.Equal(t, 0.1, retrievalFactor(0.3))
}
