package tmrisk

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/tmrisk/analysis"
	"github.com/brunobiangulo/tmrisk/knowledge"
	"github.com/brunobiangulo/tmrisk/metrics"
	"github.com/brunobiangulo/tmrisk/parser"
	"github.com/brunobiangulo/tmrisk/retrieval"
	"github.com/brunobiangulo/tmrisk/risk"
)

// keywordEmbedder maps text onto one axis per issue family so that
// retrieval is deterministic.
type keywordEmbedder struct{}

var embedAxes = []string{"confusion", "descripti", "specimen", "filing"}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := make([]float32, len(embedAxes))
		for j, axis := range embedAxes {
			if strings.Contains(t, axis) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, int) (retrieval.Result, error) {
	return retrieval.Result{}, errors.New("embedding query: service down")
}

// funcGenerator adapts a function to analysis.Generator.
type funcGenerator func(prompt string) (string, error)

func (f funcGenerator) Generate(_ context.Context, prompt string, _ analysis.GenerateOptions) (string, error) {
	return f(prompt)
}

var testSections = []knowledge.Section{
	{ID: "1207", Title: "Likelihood of Confusion", Category: "substantive", Text: "Confusion under Section 2(d) weighs similarity of marks and relatedness of goods."},
	{ID: "1209", Title: "Descriptiveness", Category: "substantive", Text: "A mark is merely descriptive if it immediately conveys a quality of the goods."},
	{ID: "904", Title: "Specimens", Category: "procedural", Text: "A specimen must show the mark as actually used in commerce."},
	{ID: "806", Title: "Filing Basis", Category: "procedural", Text: "An applicant must specify a filing basis for each class."},
}

const goodResponse = `ANALYSIS: The mark shares its dominant element with a registered mark, see TMEP §1207, and partially describes the goods under TMEP §1209. Earlier practice in TMEP §9999 does not apply.
CONFIDENCE: 80%
CITATIONS_USED: 1207, 1209, 9999`

func alwaysGood(string) (string, error) { return goodResponse, nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DisableCache = true
	cfg.EmbeddingDim = len(embedAxes)
	cfg.RetryBackoffMs = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, gen analysis.Generator, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithGenerator(gen),
		WithEmbedder(keywordEmbedder{}),
		WithSections(testSections),
	}, opts...)
	e, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func testRequest() Request {
	return Request{
		Application: parser.NewApplication("sunbrew", []string{"Coffee; tea; cocoa"}, []int{30}),
		PriorMarks: map[parser.Source][]parser.PriorMark{
			parser.SourceUSPTO: {
				{Mark: "SUNBREW COFFEE", Status: "Registered", Similarity: 0.85, Source: parser.SourceUSPTO},
				{Mark: "SUN BREWERS", Status: "Registered", Similarity: 0.6, Source: parser.SourceUSPTO},
			},
			parser.SourceDomain: {
				{Mark: "SUNBREW", Status: "Active", Similarity: 1, Source: parser.SourceDomain},
			},
		},
	}
}

func TestAssessAllIssuesAnalyzed(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))

	a, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, a.Issues, len(DefaultIssueChecks))
	for i, is := range a.Issues {
		assert.Equal(t, DefaultIssueChecks[i].Category, is.Analysis.Category)
		assert.Equal(t, DefaultIssueChecks[i].Description, is.Description)
		assert.False(t, is.Analysis.Unavailable)
		assert.Equal(t, []string{"9999"}, is.Analysis.Rejected)
		assert.NotEmpty(t, is.EstimatedCost)
		assert.NotEmpty(t, is.Recommendation)
	}

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "SUNBREW", a.Mark)
	assert.Equal(t, []int{30}, a.Classes)
	assert.Equal(t, PriorMarkSummary{USPTO: 2, Domain: 1, Total: 3, HighSimilarity: 2}, a.PriorMarks)
	assert.Equal(t, []string{"1207", "1209"}, a.Citations())

	assert.GreaterOrEqual(t, a.OverallScore(), 0.0)
	assert.LessOrEqual(t, a.OverallScore(), 100.0)
	assert.Equal(t, risk.LevelFor(a.OverallScore()), a.OverallRiskLevel())
	assert.NotEmpty(t, a.Recommendation)
	assert.LessOrEqual(t, a.Estimate.CostLow, a.Estimate.CostHigh)
	assert.LessOrEqual(t, a.Estimate.MonthsLow, a.Estimate.MonthsHigh)
}

func TestAssessCitationsAlwaysInKnowledgeStore(t *testing.T) {
	responses := []string{
		goodResponse,
		"ANALYSIS: Nothing applies beyond TMEP §1501.01 and §404.\nCONFIDENCE: 0.4\nCITATIONS_USED: none",
		"The examiner may cite § 904 or TMEP 904.07(a).\nCONFIDENCE: 65",
		"no structure at all",
	}
	var n atomic.Int32
	gen := funcGenerator(func(string) (string, error) {
		return responses[int(n.Add(1)-1)%len(responses)], nil
	})
	e := newTestEngine(t, testConfig(), gen)

	a, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)

	for _, is := range a.Issues {
		for _, c := range is.Analysis.Citations {
			assert.True(t, e.Knowledge().IsValid(c), "citation %s is not in the knowledge store", c)
		}
	}
	for _, c := range a.Citations() {
		assert.True(t, e.Knowledge().IsValid(c))
	}
}

func TestAssessDegradesOnIssueFailure(t *testing.T) {
	var calls atomic.Int32
	gen := funcGenerator(func(prompt string) (string, error) {
		calls.Add(1)
		if strings.Contains(prompt, "specimen and identification") {
			return "", errors.New("model overloaded")
		}
		return goodResponse, nil
	})
	cfg := testConfig()
	cfg.IssueRetries = 1
	reg := prometheus.NewRegistry()
	e := newTestEngine(t, cfg, gen, WithMetrics(metrics.New(reg)))

	a, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, a.Issues, 4)
	failed := a.Issues[2].Analysis
	assert.Equal(t, analysis.SpecimenDeficiency, failed.Category)
	assert.True(t, failed.Unavailable)
	assert.True(t, failed.RequiresReview)
	assert.Zero(t, failed.ComputedConfidence)
	assert.Contains(t, failed.Failure, "model overloaded")
	assert.Equal(t, risk.Moderate, a.Issues[2].Severity)

	for _, i := range []int{0, 1, 3} {
		assert.False(t, a.Issues[i].Analysis.Unavailable)
	}
	assert.True(t, a.RequiresHumanReview())
	// three good issues, plus the failing one tried twice
	assert.Equal(t, int32(5), calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.IssueOutcome.WithLabelValues("unavailable", string(analysis.SpecimenDeficiency))))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.metrics.CitationsRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Assessments.WithLabelValues(string(a.OverallRiskLevel()))))
}

func TestAssessAbortPolicy(t *testing.T) {
	gen := funcGenerator(func(prompt string) (string, error) {
		if strings.Contains(prompt, "filing basis and ownership") {
			return "", errors.New("context window exceeded")
		}
		return goodResponse, nil
	})
	cfg := testConfig()
	cfg.FailurePolicy = PolicyAbort
	cfg.IssueRetries = 0
	e := newTestEngine(t, cfg, gen)

	a, err := e.Assess(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrAssessmentFailed)
	assert.ErrorIs(t, err, ErrGeneration)

	var ae *AssessmentError
	require.ErrorAs(t, err, &ae)
	assert.Len(t, ae.Failures, 1)
	assert.Contains(t, ae.Failures, analysis.FilingBasisIssue)
	assert.Contains(t, err.Error(), "context window exceeded")
}

func TestAssessRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	gen := funcGenerator(func(string) (string, error) {
		if calls.Add(1) <= 2 {
			return "", errors.New("connection reset")
		}
		return goodResponse, nil
	})
	cfg := testConfig()
	cfg.IssueRetries = 2
	e := newTestEngine(t, cfg, gen)

	req := testRequest()
	req.Issues = []IssueCheck{{Category: analysis.LikelihoodOfConfusion}}
	a, err := e.Assess(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, a.Issues, 1)
	assert.False(t, a.Issues[0].Analysis.Unavailable)
	assert.Equal(t, analysis.LikelihoodOfConfusion.Label(), a.Issues[0].Description)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAssessConcurrentKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	gen := funcGenerator(func(prompt string) (string, error) {
		mu.Lock()
		seen[prompt]++
		mu.Unlock()
		return goodResponse, nil
	})
	cfg := testConfig()
	cfg.IssueConcurrency = 4
	e := newTestEngine(t, cfg, gen)

	a, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)
	for i, is := range a.Issues {
		assert.Equal(t, DefaultIssueChecks[i].Category, is.Analysis.Category)
		assert.Contains(t, is.Analysis.Query, DefaultIssueChecks[i].Description)
	}
	assert.Len(t, seen, 4)
}

func TestAssessSeverityOverride(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))

	req := testRequest()
	req.Issues = []IssueCheck{
		{Category: analysis.LikelihoodOfConfusion, Description: "confusion with SUNBREW COFFEE", Severity: risk.Critical},
		{Category: analysis.Descriptiveness},
	}
	a, err := e.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, risk.Critical, a.Issues[0].Severity)
	assert.NotEqual(t, risk.Critical, a.Issues[1].Severity)
}

func TestAssessInvalidRequest(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))

	tests := []struct {
		name string
		req  Request
	}{
		{"empty mark", Request{Application: parser.Application{Mark: "  "}}},
		{"unknown category", Request{
			Application: parser.Application{Mark: "SUNBREW"},
			Issues:      []IssueCheck{{Category: "dilution"}},
		}},
		{"unknown severity", Request{
			Application: parser.Application{Mark: "SUNBREW"},
			Issues:      []IssueCheck{{Category: analysis.Genericness, Severity: "severe"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Assess(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestAssessEmptyStoreIsFatal(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood), WithSections([]knowledge.Section{}))

	_, err := e.Assess(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrEmptyStore)
}

func TestAssessEmbeddingFailureDegrades(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))
	// Sections are embedded; queries then fail.
	e.analyzer = analysis.New(failingRetriever{}, funcGenerator(alwaysGood), e.knowledge, analysis.Config{})

	a, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)
	for _, is := range a.Issues {
		assert.True(t, is.Analysis.Unavailable)
	}
	assert.True(t, a.RequiresHumanReview())
}

func TestNewRejectsDimensionMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.EmbeddingDim = 8
	_, err := New(context.Background(), cfg,
		WithGenerator(funcGenerator(alwaysGood)),
		WithEmbedder(keywordEmbedder{}),
		WithSections(testSections),
	)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// shrinkingEmbedder behaves like keywordEmbedder until shrink is set, then
// returns vectors one axis short, as after an embedding model swap.
type shrinkingEmbedder struct{ shrink *atomic.Bool }

func (e shrinkingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := keywordEmbedder{}.Embed(ctx, texts)
	if err != nil || !e.shrink.Load() {
		return out, err
	}
	for i := range out {
		out[i] = out[i][:len(out[i])-1]
	}
	return out, nil
}

func TestAssessQueryDimensionMismatchIsConfigError(t *testing.T) {
	var shrink atomic.Bool
	var calls atomic.Int32
	e := newTestEngine(t, testConfig(), funcGenerator(func(string) (string, error) {
		calls.Add(1)
		return goodResponse, nil
	}), WithEmbedder(shrinkingEmbedder{shrink: &shrink}))
	shrink.Store(true)

	a, err := e.Assess(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, retrieval.ErrDimensionMismatch)
	assert.Zero(t, calls.Load(), "no generation without context")
}

func TestNewEmbeddingFailure(t *testing.T) {
	_, err := New(context.Background(), testConfig(),
		WithGenerator(funcGenerator(alwaysGood)),
		WithEmbedder(failingEmbedder{}),
		WithSections(testSections),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")
}

func TestNewUsesEmbeddingCache(t *testing.T) {
	cfg := testConfig()
	cfg.DisableCache = false
	cfg.DBPath = filepath.Join(t.TempDir(), "cache.db")

	e := newTestEngine(t, cfg, funcGenerator(alwaysGood))
	h, err := e.Health(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.Cache)
	assert.Equal(t, len(testSections), h.Cache.Embeddings)
	require.NoError(t, e.Close())

	// A second start reads every vector from the cache.
	e2, err := New(context.Background(), cfg,
		WithGenerator(funcGenerator(alwaysGood)),
		WithEmbedder(failingEmbedder{}),
		WithSections(testSections),
	)
	require.NoError(t, err)
	defer e2.Close()
	assert.Equal(t, len(testSections), e2.Knowledge().Len())
}

func TestHealth(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))

	h, err := e.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 4, h.KnowledgeSections)
	assert.Equal(t, 4, h.EmbeddingDim)
	assert.ElementsMatch(t, []string{"1207", "1209", "904", "806"}, h.ValidCitations)
	assert.Nil(t, h.Cache)
}

func TestParseReportErrors(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))
	dir := t.TempDir()

	_, err := e.ParseReport(context.Background(), filepath.Join(dir, "report.docx"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.NotErrorIs(t, err, ErrParsingFailed)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = e.ParseReport(context.Background(), empty)
	assert.ErrorIs(t, err, ErrParsingFailed)
	assert.ErrorIs(t, err, parser.ErrNoText)
}

func TestAssessReport(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))

	path := filepath.Join(t.TempDir(), "search.txt")
	report := "TRADEMARK SEARCH REPORT\n\nApplied-for Mark: SUNBREW\nInternational Class: 30\n"
	require.NoError(t, os.WriteFile(path, []byte(report), 0o644))

	a, err := e.AssessReport(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "SUNBREW", a.Mark)
	assert.Len(t, a.Issues, len(DefaultIssueChecks))
}

func TestAssessmentJSONAndDigest(t *testing.T) {
	e := newTestEngine(t, testConfig(), funcGenerator(alwaysGood))
	a, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{
		"id", "mark", "dimensions", "issues", "prior_marks", "recommendation",
		"overall_score", "overall_risk_level", "overall_confidence",
		"requires_human_review", "estimated_cost", "estimated_timeline",
	} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, string(a.OverallRiskLevel()), doc["overall_risk_level"])
	assert.Len(t, doc["dimensions"], 4)

	d1, err := a.Digest()
	require.NoError(t, err)
	d2, err := a.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	// A second run of the same request gets a fresh ID and timestamp but
	// the same content.
	again, err := e.Assess(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotEqual(t, a.ID, again.ID)
	d4, err := again.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d4)

	b := *a
	b.Mark = "MOONBREW"
	d3, err := b.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestAssessmentErrorMessage(t *testing.T) {
	err := &AssessmentError{Failures: map[analysis.Category]error{
		analysis.SpecimenDeficiency:    errors.New("b"),
		analysis.LikelihoodOfConfusion: errors.New("a"),
	}}
	assert.Equal(t,
		"tmrisk: assessment failed: 2 issue(s) failed (likelihood_of_confusion: a; specimen_deficiency: b)",
		err.Error())
	assert.ErrorIs(t, err, ErrAssessmentFailed)
}
