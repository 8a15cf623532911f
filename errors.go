package tmrisk

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/tmrisk/analysis"
	"github.com/brunobiangulo/tmrisk/knowledge"
	"github.com/brunobiangulo/tmrisk/parser"
	"github.com/brunobiangulo/tmrisk/retrieval"
)

var (
	// ErrLoad is returned when the knowledge store rejects its entries.
	ErrLoad = knowledge.ErrLoad

	// ErrEmptyStore is returned when retrieval runs against no entries.
	ErrEmptyStore = retrieval.ErrEmptyStore

	// ErrGeneration is returned when the text generator fails or times out.
	ErrGeneration = analysis.ErrGeneration

	// ErrUnsupportedFormat is returned for unrecognized report formats.
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("tmrisk: invalid configuration")

	// ErrInvalidRequest is returned for assessment requests that cannot be run.
	ErrInvalidRequest = errors.New("tmrisk: invalid request")

	// ErrAssessmentFailed is returned when the abort policy stops an
	// assessment after an issue failed.
	ErrAssessmentFailed = errors.New("tmrisk: assessment failed")

	// ErrParsingFailed is returned when report parsing fails.
	ErrParsingFailed = errors.New("tmrisk: parsing failed")
)

// AssessmentError lists the issues whose analysis failed under the abort
// policy.
type AssessmentError struct {
	Failures map[analysis.Category]error
}

func (e *AssessmentError) Error() string {
	cats := e.categories()
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("%s: %v", c, e.Failures[c])
	}
	return fmt.Sprintf("%v: %d issue(s) failed (%s)", ErrAssessmentFailed, len(cats), strings.Join(parts, "; "))
}

// Unwrap exposes ErrAssessmentFailed and each issue's error.
func (e *AssessmentError) Unwrap() []error {
	errs := []error{ErrAssessmentFailed}
	for _, c := range e.categories() {
		errs = append(errs, e.Failures[c])
	}
	return errs
}

func (e *AssessmentError) categories() []analysis.Category {
	cats := make([]analysis.Category, 0, len(e.Failures))
	for c := range e.Failures {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}
