// Package analysis produces citation-constrained assessments of single
// trademark issues and scores how far each assessment can be trusted.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brunobiangulo/tmrisk/citation"
	"github.com/brunobiangulo/tmrisk/knowledge"
	"github.com/brunobiangulo/tmrisk/retrieval"
)

// ErrGeneration marks failures of the external generation capability.
var ErrGeneration = errors.New("analysis: generation failed")

// GenerationError wraps a failed call to an external capability.
type GenerationError struct {
	Stage string // "embed" or "generate"
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("analysis: %s failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// GenerateOptions configures a single generation call.
type GenerateOptions struct {
	System      string
	Temperature float64
	Timeout     time.Duration
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Retriever returns knowledge entries relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (retrieval.Result, error)
}

// IssueAnalysis is the outcome of analyzing one issue.
type IssueAnalysis struct {
	Category               Category         `json:"category"`
	Query                  string           `json:"query"`
	Narrative              string           `json:"narrative"`
	Citations              []string         `json:"citations"`
	Rejected               []string         `json:"rejected_citations,omitempty"`
	ExtractedCount         int              `json:"extracted_citations"`
	Retrieval              retrieval.Result `json:"retrieval"`
	SelfReportedConfidence float64          `json:"self_reported_confidence"`
	ComputedConfidence     float64          `json:"computed_confidence"`
	RequiresReview         bool             `json:"requires_review"`
	Unavailable            bool             `json:"unavailable,omitempty"`
	Failure                string           `json:"failure,omitempty"`
}

// Config holds analyzer configuration.
type Config struct {
	K           int
	Temperature float64
	Timeout     time.Duration
}

// Analyzer runs retrieve, generate, parse and validate for one issue.
type Analyzer struct {
	retriever Retriever
	generator Generator
	knowledge *knowledge.Store
	validator *citation.Validator
	cfg       Config
}

// New creates an analyzer. The knowledge store is both the prompt source
// and the citation validity index.
func New(retriever Retriever, generator Generator, store *knowledge.Store, cfg Config) *Analyzer {
	if cfg.K <= 0 {
		cfg.K = retrieval.DefaultK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Analyzer{
		retriever: retriever,
		generator: generator,
		knowledge: store,
		validator: citation.NewValidator(store),
		cfg:       cfg,
	}
}

var tracer = otel.Tracer("tmrisk/analysis")

// Analyze produces an IssueAnalysis whose citations are all present in the
// knowledge store. ComputedConfidence and RequiresReview are left for
// Estimate to fill in.
func (a *Analyzer) Analyze(ctx context.Context, category Category, query string) (IssueAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.String("category", string(category))))
	defer span.End()

	start := time.Now()
	res, err := a.retriever.Retrieve(ctx, query, a.cfg.K)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		if errors.Is(err, retrieval.ErrEmptyStore) || errors.Is(err, retrieval.ErrDimensionMismatch) {
			return IssueAnalysis{}, err
		}
		return IssueAnalysis{}, &GenerationError{Stage: "embed", Err: err}
	}

	prompt := buildPrompt(category, query, a.contextEntries(res))

	genCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	text, err := a.generator.Generate(genCtx, prompt, GenerateOptions{
		System:      systemPrompt,
		Temperature: a.cfg.Temperature,
		Timeout:     a.cfg.Timeout,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return IssueAnalysis{}, &GenerationError{Stage: "generate", Err: err}
	}

	parsed := ParseResponse(text)
	checked := a.validator.Validate(parsed.Citations)

	if len(checked.Invalid) > 0 {
		slog.Warn("analysis: rejected citations outside knowledge store",
			"category", category,
			"rejected", checked.Invalid,
		)
	}

	span.SetAttributes(
		attribute.Int("citations_valid", len(checked.Valid)),
		attribute.Int("citations_rejected", len(checked.Invalid)),
	)
	slog.Info("analysis: issue analyzed",
		"category", category,
		"hits", len(res.Hits),
		"citations", len(checked.Valid),
		"self_confidence", parsed.Confidence,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return IssueAnalysis{
		Category:               category,
		Query:                  query,
		Narrative:              parsed.Narrative,
		Citations:              checked.Valid,
		Rejected:               checked.Invalid,
		ExtractedCount:         checked.Total(),
		Retrieval:              res,
		SelfReportedConfidence: parsed.Confidence,
	}, nil
}

func (a *Analyzer) contextEntries(res retrieval.Result) []knowledge.Entry {
	entries := make([]knowledge.Entry, 0, len(res.Hits))
	for _, h := range res.Hits {
		if e, ok := a.knowledge.Lookup(h.EntryID); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Unavailable builds the record for an issue whose analysis failed. It
// carries zero confidence and always requires review.
func Unavailable(category Category, query string, err error) IssueAnalysis {
	failure := ""
	if err != nil {
		failure = err.Error()
	}
	return IssueAnalysis{
		Category:           category,
		Query:              query,
		Narrative:          "Analysis unavailable; manual review required.",
		ComputedConfidence: 0,
		RequiresReview:     true,
		Unavailable:        true,
		Failure:            failure,
	}
}
