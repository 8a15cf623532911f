package analysis

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brunobiangulo/tmrisk/citation"
)

// DefaultSelfConfidence is assumed when a response states no usable confidence.
const DefaultSelfConfidence = 0.50

// Parsed is the structured content of a generated response.
type Parsed struct {
	Narrative       string
	Citations       []string // raw, as written
	Confidence      float64  // in [0,1]
	ConfidenceFound bool
}

var (
	analysisLabel   = regexp.MustCompile(`(?im)^\s*\**ANALYSIS\**\s*:\**\s*`)
	confidenceLine  = regexp.MustCompile(`(?im)^\s*\**CONFIDENCE\**\s*:\**\s*\[?\s*(\d+(?:\.\d+)?)\s*(%?)`)
	citationsLine   = regexp.MustCompile(`(?im)^\s*\**CITATIONS_USED\**\s*:\**[ \t]*(.*)$`)
	structuredLabel = regexp.MustCompile(`(?im)^\s*\**(?:CONFIDENCE|CITATIONS_USED)\**\s*:.*$`)
)

// ParseResponse extracts the narrative, citations and self-reported
// confidence from generated text. It never fails: missing parts yield an
// empty narrative, no citations or DefaultSelfConfidence.
func ParseResponse(text string) Parsed {
	p := Parsed{Confidence: DefaultSelfConfidence}

	if m := confidenceLine.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			// Only a decimal in [0,1] without % is already a fraction;
			// "1" means 1%, "1.0" means certainty.
			fraction := m[2] == "" && strings.Contains(m[1], ".") && v <= 1
			if !fraction {
				v /= 100
			}
			p.Confidence = clamp01(v)
			p.ConfidenceFound = true
		}
	}

	body := text
	if loc := analysisLabel.FindStringIndex(body); loc != nil {
		body = body[loc[1]:]
	}
	body = structuredLabel.ReplaceAllString(body, "")
	p.Narrative = strings.TrimSpace(body)

	if m := citationsLine.FindStringSubmatch(text); m != nil {
		for _, part := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' }) {
			part = strings.TrimSpace(strings.Trim(part, "[]"))
			switch strings.ToLower(part) {
			case "", "none", "n/a", "na":
				continue
			}
			p.Citations = append(p.Citations, part)
		}
	}
	p.Citations = append(p.Citations, citation.Extract(p.Narrative)...)

	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
