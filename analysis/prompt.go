package analysis

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/tmrisk/knowledge"
)

const systemPrompt = `You are a trademark examination analyst. Assess registrability issues using ONLY the TMEP sections provided in the context.
Rules:
1. Only cite sections that appear in the provided context. Never cite a section that is not listed.
2. Cite sections exactly in the format TMEP §XXXX (for example TMEP §1207.01).
3. If the provided sections do not support a conclusion, say so explicitly.
4. State your confidence as a percentage from 0 to 100.`

func buildContext(entries []knowledge.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "--- TMEP §%s: %s", e.ID, e.Title)
		if e.Category != "" {
			fmt.Fprintf(&b, " | %s", e.Category)
		}
		b.WriteString(" ---\n")
		b.WriteString(e.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func buildPrompt(category Category, query string, entries []knowledge.Entry) string {
	allowed := make([]string, len(entries))
	for i, e := range entries {
		allowed[i] = "TMEP §" + e.ID
	}
	if len(allowed) == 0 {
		allowed = []string{"(none)"}
	}

	return fmt.Sprintf(`Context:
%s
Issue: %s
Question: %s

You may cite only these sections: %s

Respond in exactly this format:
ANALYSIS: <your assessment of the issue>
CONFIDENCE: <0-100>%%
CITATIONS_USED: <comma separated TMEP sections you relied on, or NONE>`,
		buildContext(entries), category.Label(), query, strings.Join(allowed, ", "))
}
