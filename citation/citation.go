// Package citation normalizes TMEP citations and checks them against the
// knowledge store's validity index.
package citation

import (
	"regexp"
	"sort"
	"strings"
)

// Index answers whether a section id exists. *knowledge.Store satisfies it.
type Index interface {
	IsValid(id string) bool
}

// Result partitions a set of citations into valid and invalid ids.
// Both lists are sorted and free of duplicates.
type Result struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
}

// Total is the number of distinct citations that were checked.
func (r Result) Total() int { return len(r.Valid) + len(r.Invalid) }

var (
	// TMEP §1207.01, TMEP 1207, §1209
	inlinePattern = regexp.MustCompile(`(?i)(?:TMEP\s*§*\s*|§\s*)(\d+(?:\.\d+)*)`)

	sectionIDPattern = regexp.MustCompile(`\d+(?:\.\d+)*`)
	labelPattern     = regexp.MustCompile(`(?i)\b(?:TMEP|sections?|sec\.?)\b`)
)

// Normalize strips labels and punctuation from a raw citation, leaving a
// bare section identifier such as "1207.01". It returns "" when raw holds
// no identifier.
func Normalize(raw string) string {
	s := labelPattern.ReplaceAllString(raw, " ")
	s = strings.ReplaceAll(s, "§", " ")
	return sectionIDPattern.FindString(s)
}

// Extract finds inline citations in free text and returns them as written.
func Extract(text string) []string {
	matches := inlinePattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}

// Validator checks citations against an index.
type Validator struct {
	index Index
}

// NewValidator creates a validator backed by index.
func NewValidator(index Index) *Validator {
	return &Validator{index: index}
}

// Validate normalizes every raw citation and splits the distinct ids into
// valid and invalid sets. Input order does not affect the result. Raw
// strings that hold no identifier at all are reported as invalid verbatim.
func (v *Validator) Validate(raws []string) Result {
	valid := make(map[string]struct{})
	invalid := make(map[string]struct{})

	for _, raw := range raws {
		id := Normalize(raw)
		if id == "" {
			if t := strings.TrimSpace(raw); t != "" {
				invalid[t] = struct{}{}
			}
			continue
		}
		if v.index.IsValid(id) {
			valid[id] = struct{}{}
		} else {
			invalid[id] = struct{}{}
		}
	}

	return Result{Valid: sortedKeys(valid), Invalid: sortedKeys(invalid)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
