package parser

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when no parser handles a file extension.
	ErrUnsupportedFormat = errors.New("parser: unsupported format")
	// ErrNoText is returned when a document yields no extractable text.
	ErrNoText = errors.New("parser: no extractable text")
)

// Source identifies where a prior conflicting mark was found.
type Source string

const (
	SourceUSPTO     Source = "uspto"
	SourceState     Source = "state"
	SourceCommonLaw Source = "common_law"
	SourceDomain    Source = "domain"
)

// Sources lists every source in report order.
var Sources = []Source{SourceUSPTO, SourceState, SourceCommonLaw, SourceDomain}

// sourceCap bounds how many marks of each source a report keeps.
var sourceCap = map[Source]int{
	SourceUSPTO:     50,
	SourceState:     25,
	SourceCommonLaw: 20,
	SourceDomain:    30,
}

// ParseSource maps free-form source labels ("USPTO", "State (CA)",
// "Common Law", "Domain Name") to a Source.
func ParseSource(s string) (Source, bool) {
	l := strings.ToLower(strings.TrimSpace(s))
	l = strings.NewReplacer("_", " ", "-", " ").Replace(l)
	switch {
	case l == "" || l == "uspto" || l == "federal" || strings.Contains(l, "patent and trademark"):
		return SourceUSPTO, true
	case strings.HasPrefix(l, "state"):
		return SourceState, true
	case strings.HasPrefix(l, "common"):
		return SourceCommonLaw, true
	case strings.HasPrefix(l, "domain"):
		return SourceDomain, true
	}
	return "", false
}

// Application is the applied-for mark described by a report.
type Application struct {
	Mark          string   `json:"mark"`
	Applicant     string   `json:"applicant,omitempty"`
	GoodsServices []string `json:"goods_services"`
	Classes       []int    `json:"classes"`
	FilingBasis   string   `json:"filing_basis,omitempty"`
}

// NewApplication builds an Application from manual input. Marks are
// upper-cased and the filing basis defaults to intent to use.
func NewApplication(mark string, goodsServices []string, classes []int) Application {
	return Application{
		Mark:          strings.ToUpper(strings.TrimSpace(mark)),
		GoodsServices: append([]string(nil), goodsServices...),
		Classes:       append([]int(nil), classes...),
		FilingBasis:   "Intent to Use (1b)",
	}
}

// PriorMark is an earlier mark that may conflict with the application.
type PriorMark struct {
	Mark               string  `json:"mark"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	SerialNumber       string  `json:"serial_number,omitempty"`
	Owner              string  `json:"owner,omitempty"`
	Classes            []int   `json:"classes,omitempty"`
	GoodsServices      string  `json:"goods_services,omitempty"`
	Status             string  `json:"status"`
	Similarity         float64 `json:"similarity"`
	Source             Source  `json:"source"`
	Jurisdiction       string  `json:"jurisdiction,omitempty"`
}

// Report is a parsed trademark search report.
type Report struct {
	Application Application            `json:"application"`
	PriorMarks  map[Source][]PriorMark `json:"prior_marks"`
	ReportDate  string                 `json:"report_date,omitempty"`
	ReportType  string                 `json:"report_type"`
}

// TotalConflicts counts prior marks across all sources.
func (r *Report) TotalConflicts() int {
	n := 0
	for _, marks := range r.PriorMarks {
		n += len(marks)
	}
	return n
}

// Count returns the number of prior marks found in one source.
func (r *Report) Count(s Source) int {
	return len(r.PriorMarks[s])
}

// add appends m under its source unless the source is already full.
func (r *Report) add(m PriorMark) bool {
	if r.PriorMarks == nil {
		r.PriorMarks = make(map[Source][]PriorMark)
	}
	if len(r.PriorMarks[m.Source]) >= sourceCap[m.Source] {
		return false
	}
	r.PriorMarks[m.Source] = append(r.PriorMarks[m.Source], m)
	return true
}

// Parser can parse a specific report format.
type Parser interface {
	Parse(ctx context.Context, path string) (*Report, error)
	SupportedFormats() []string
}
