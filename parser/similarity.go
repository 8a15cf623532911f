package parser

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Similarity scores how alike two marks read, in [0,1]: one minus the
// edit distance over the longer length, after dropping case, spacing and
// punctuation. Empty marks score 0.
func Similarity(a, b string) float64 {
	na, nb := foldMark(a), foldMark(b)
	if na == "" || nb == "" {
		return 0
	}
	longest := max(len([]rune(na)), len([]rune(nb)))
	d := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(d)/float64(longest)
}

func foldMark(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
