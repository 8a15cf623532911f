package tmrisk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/tmrisk/analysis"
	"github.com/brunobiangulo/tmrisk/knowledge"
	"github.com/brunobiangulo/tmrisk/llm"
	"github.com/brunobiangulo/tmrisk/metrics"
	"github.com/brunobiangulo/tmrisk/parser"
	"github.com/brunobiangulo/tmrisk/retrieval"
	"github.com/brunobiangulo/tmrisk/risk"
	"github.com/brunobiangulo/tmrisk/store"
)

// Embedder produces embeddings for a batch of texts. llm.Provider
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	generator   analysis.Generator
	embedder    Embedder
	metrics     *metrics.Metrics
	sections    []knowledge.Section
	methodology *risk.Methodology
}

// WithGenerator replaces the chat provider built from Config.Chat.
func WithGenerator(g analysis.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithEmbedder replaces the embedding provider built from Config.Embedding.
func WithEmbedder(e Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithMetrics records assessment metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSections loads these sections instead of the configured or built-in
// knowledge.
func WithSections(sections []knowledge.Section) Option {
	return func(o *options) { o.sections = sections }
}

// WithMethodology overrides the default scoring constants.
func WithMethodology(m risk.Methodology) Option {
	return func(o *options) { o.methodology = &m }
}

// Engine runs risk assessments against a loaded knowledge store.
type Engine struct {
	cfg         Config
	cache       *store.Store
	knowledge   *knowledge.Store
	analyzer    *analysis.Analyzer
	aggregator  *risk.Aggregator
	estimator   *risk.Estimator
	methodology risk.Methodology
	parsers     *parser.Registry
	metrics     *metrics.Metrics
	closers     []io.Closer
}

var tracer = otel.Tracer("tmrisk")

// New builds the engine: providers, embedding cache, knowledge store and
// the scoring pipeline. Knowledge sections are embedded here, so ctx bounds
// startup.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:         cfg,
		methodology: risk.DefaultMethodology(),
		parsers:     parser.NewRegistry(),
		metrics:     o.metrics,
	}
	if o.methodology != nil {
		e.methodology = *o.methodology
	}

	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	generator := o.generator
	if generator == nil {
		chat, err := llm.NewProvider(ctx, cfg.Chat)
		if err != nil {
			return nil, fmt.Errorf("%w: creating chat provider: %v", ErrInvalidConfig, err)
		}
		e.track(chat)
		generator = llm.NewGenerator(chat, cfg.Chat.Model)
	}

	embedder := o.embedder
	if embedder == nil {
		p, err := llm.NewProvider(ctx, cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: creating embedding provider: %v", ErrInvalidConfig, err)
		}
		e.track(p)
		embedder = p
	}

	sections, err := e.loadSections(o.sections)
	if err != nil {
		return nil, err
	}

	var cache knowledge.Cache
	if !cfg.DisableCache {
		s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("opening embedding cache: %w", err)
		}
		e.cache = s
		cache = s
	}

	ks, err := knowledge.Build(ctx, sections, embedder, cache, knowledge.BuildOptions{
		Model: cfg.Embedding.Model,
		Dim:   cfg.EmbeddingDim,
	})
	if err != nil {
		if errors.Is(err, knowledge.ErrDimension) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return nil, fmt.Errorf("building knowledge store: %w", err)
	}
	e.knowledge = ks

	e.analyzer = analysis.New(retrieval.New(ks, embedder), generator, ks, analysis.Config{
		K:           cfg.RetrievalK,
		Temperature: cfg.Temperature,
		Timeout:     cfg.generationTimeout(),
	})
	e.aggregator = risk.NewAggregator(e.methodology)
	e.estimator = risk.NewEstimator(e.methodology)

	ok = true
	return e, nil
}

func (e *Engine) loadSections(override []knowledge.Section) ([]knowledge.Section, error) {
	switch {
	case override != nil:
		return override, nil
	case e.cfg.KnowledgePath != "":
		return knowledge.ReadSections(e.cfg.KnowledgePath)
	default:
		return knowledge.BuiltinSections(), nil
	}
}

// track remembers providers that hold resources (the Gemini SDK client).
func (e *Engine) track(v any) {
	if c, ok := v.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}
}

// Knowledge returns the loaded knowledge store.
func (e *Engine) Knowledge() *knowledge.Store { return e.knowledge }

// Assess analyzes every issue of req and scores the application. Under the
// degrade policy a failed issue is marked unavailable and the assessment
// completes with lowered confidence; under the abort policy an
// *AssessmentError is returned instead.
func (e *Engine) Assess(ctx context.Context, req Request) (*Assessment, error) {
	ctx, span := tracer.Start(ctx, "tmrisk.Assess",
		trace.WithAttributes(attribute.String("mark", req.Application.Mark)))
	defer span.End()

	start := time.Now()
	checks, err := e.checks(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	priorMarks := len(req.PriorMarks[parser.SourceUSPTO])
	query := queryText(req.Application)

	analyses, err := e.analyzeAll(ctx, checks, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		return nil, err
	}

	issues := make([]risk.Issue, len(checks))
	distinct := make(map[string]bool)
	for i, a := range analyses {
		a = analysis.Estimate(a)
		sev := checks[i].Severity
		if sev == "" {
			sev = e.methodology.ClassifySeverity(a.Category, a.SelfReportedConfidence, priorMarks, a.Unavailable)
		}
		issues[i] = risk.Issue{Analysis: a, Severity: sev}
		for _, c := range a.Citations {
			distinct[c] = true
		}
	}

	res, err := e.aggregator.Aggregate(issues, priorMarks, risk.EvidenceFromCitations(len(distinct)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, fmt.Errorf("aggregating risk: %w", err)
	}
	est := e.estimator.Estimate(issues, res.Dimensions)
	rec := risk.Recommend(res.OverallLevel(), issues)

	results := make([]IssueResult, len(issues))
	for i, is := range issues {
		results[i] = IssueResult{
			Description:    checks[i].Description,
			Severity:       is.Severity,
			Analysis:       is.Analysis,
			EstimatedCost:  risk.FormatCostBand(e.methodology.IssueCost(is.Severity)),
			EstimatedTime:  risk.FormatMonthsBand(e.methodology.IssueMonths(is.Severity)),
			Recommendation: risk.IssueAdvice(is),
		}
	}

	app := req.Application
	out := &Assessment{
		ID:             uuid.NewString(),
		Mark:           app.Mark,
		GoodsServices:  append([]string(nil), app.GoodsServices...),
		Classes:        append([]int(nil), app.Classes...),
		CreatedAt:      time.Now().UTC(),
		Dimensions:     res.Dimensions,
		Issues:         results,
		PriorMarks:     summarizePriorMarks(req.PriorMarks),
		Estimate:       est,
		Recommendation: rec.Primary,
		Alternatives:   rec.Alternatives,
	}

	level := out.OverallRiskLevel()
	e.metrics.IncrementAssessment(string(level))
	e.metrics.ObserveAssess(time.Since(start))
	span.SetAttributes(
		attribute.String("level", string(level)),
		attribute.Float64("score", out.OverallScore()),
	)
	slog.Info("assess: assessment complete",
		"id", out.ID,
		"mark", out.Mark,
		"issues", len(results),
		"score", out.OverallScore(),
		"level", level,
		"confidence", out.OverallConfidence(),
		"review", out.RequiresHumanReview(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

func (e *Engine) checks(req Request) ([]IssueCheck, error) {
	if strings.TrimSpace(req.Application.Mark) == "" {
		return nil, fmt.Errorf("%w: application mark is required", ErrInvalidRequest)
	}
	checks := req.Issues
	if len(checks) == 0 {
		checks = DefaultIssueChecks
	}
	out := make([]IssueCheck, len(checks))
	for i, c := range checks {
		if _, err := analysis.ParseCategory(string(c.Category)); err != nil {
			return nil, fmt.Errorf("%w: issue %d: %v", ErrInvalidRequest, i, err)
		}
		if c.Severity != "" {
			if _, err := risk.ParseLevel(string(c.Severity)); err != nil {
				return nil, fmt.Errorf("%w: issue %d: %v", ErrInvalidRequest, i, err)
			}
		}
		if c.Description == "" {
			c.Description = c.Category.Label()
		}
		out[i] = c
	}
	return out, nil
}

// queryText is the retrieval and generation query for one issue.
func queryText(app parser.Application) func(IssueCheck) string {
	goods := "unspecified goods/services"
	if len(app.GoodsServices) > 0 {
		goods = strings.Join(app.GoodsServices, ", ")
	}
	return func(c IssueCheck) string {
		return fmt.Sprintf("Analyze %s for trademark '%s' used on %s", c.Description, app.Mark, goods)
	}
}

// analyzeAll runs every check, fanning out up to IssueConcurrency at a
// time. Results keep the order of checks.
func (e *Engine) analyzeAll(ctx context.Context, checks []IssueCheck, query func(IssueCheck) string) ([]analysis.IssueAnalysis, error) {
	results := make([]analysis.IssueAnalysis, len(checks))
	var mu sync.Mutex
	failures := make(map[analysis.Category]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.IssueConcurrency))

	for i, c := range checks {
		g.Go(func() error {
			q := query(c)
			start := time.Now()
			a, err := e.analyzeWithRetry(gctx, c.Category, q)
			e.metrics.ObserveGeneration(string(c.Category), time.Since(start))

			if err == nil {
				results[i] = a
				e.metrics.IncrementIssue("analyzed", string(c.Category))
				e.metrics.AddRejectedCitations(len(a.Rejected))
				return nil
			}
			// Store and configuration errors affect every issue alike.
			if errors.Is(err, retrieval.ErrDimensionMismatch) {
				return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
			if !errors.Is(err, analysis.ErrGeneration) {
				return err
			}

			slog.Warn("assess: issue analysis unavailable",
				"category", c.Category,
				"policy", e.cfg.failurePolicy(),
				"error", err,
			)
			e.metrics.IncrementIssue("unavailable", string(c.Category))
			results[i] = analysis.Unavailable(c.Category, q, err)
			mu.Lock()
			if prev, ok := failures[c.Category]; ok {
				err = errors.Join(prev, err)
			}
			failures[c.Category] = err
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(failures) > 0 && e.cfg.failurePolicy() == PolicyAbort {
		return nil, &AssessmentError{Failures: failures}
	}
	return results, nil
}

// analyzeWithRetry retries generation failures with exponential backoff.
// Analysis of a (category, query) pair is idempotent.
func (e *Engine) analyzeWithRetry(ctx context.Context, category analysis.Category, query string) (analysis.IssueAnalysis, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.IssueRetries; attempt++ {
		if attempt > 0 {
			delay := e.cfg.retryBackoff() * time.Duration(1<<(attempt-1))
			slog.Warn("assess: retrying issue analysis",
				"category", category,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return analysis.IssueAnalysis{}, &analysis.GenerationError{Stage: "retry", Err: ctx.Err()}
			}
		}

		a, err := e.analyzer.Analyze(ctx, category, query)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, analysis.ErrGeneration) || ctx.Err() != nil {
			return analysis.IssueAnalysis{}, err
		}
		lastErr = err
	}
	return analysis.IssueAnalysis{}, lastErr
}

// ParseReport parses a search report file by extension.
func (e *Engine) ParseReport(ctx context.Context, path string) (*parser.Report, error) {
	r, err := e.parsers.ParseFile(ctx, path)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	slog.Info("assess: report parsed",
		"path", path,
		"mark", r.Application.Mark,
		"conflicts", r.TotalConflicts(),
	)
	return r, nil
}

// AssessReport parses a search report and assesses its application against
// its prior marks. checks may be nil to use DefaultIssueChecks.
func (e *Engine) AssessReport(ctx context.Context, path string, checks []IssueCheck) (*Assessment, error) {
	r, err := e.ParseReport(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.Assess(ctx, Request{
		Application: r.Application,
		PriorMarks:  r.PriorMarks,
		Issues:      checks,
	})
}

// Health describes the loaded engine state.
type Health struct {
	Status            string         `json:"status"`
	KnowledgeSections int            `json:"knowledge_sections"`
	EmbeddingDim      int            `json:"embedding_dim"`
	ValidCitations    []string       `json:"valid_citations"`
	Cache             *store.DBStats `json:"cache,omitempty"`
}

// Health reports knowledge store size, validity index and cache stats.
func (e *Engine) Health(ctx context.Context) (*Health, error) {
	h := &Health{
		Status:            "ok",
		KnowledgeSections: e.knowledge.Len(),
		EmbeddingDim:      e.knowledge.Dim(),
		ValidCitations:    e.knowledge.IDs(),
	}
	if e.cache != nil {
		stats, err := e.cache.DBStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading cache stats: %w", err)
		}
		h.Cache = stats
	}
	return h, nil
}

// Close releases the cache database and provider clients.
func (e *Engine) Close() error {
	var errs []error
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
		e.cache = nil
	}
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}
