package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	markLine      = regexp.MustCompile(`(?im)^[ \t]*(?:Applied-for Mark|Trademark|Mark):[ \t]*([^\n]+)$`)
	classLine     = regexp.MustCompile(`(?i)Class(?:es)?:[ \t]*([\d, \t]+)`)
	goodsLine     = regexp.MustCompile(`(?i)Goods/Services:[ \t]*([^\n]+)`)
	classGoods    = regexp.MustCompile(`(?i)Class \d+:[ \t]*([^\n]+)`)
	reportDate    = regexp.MustCompile(`(?i)(?:Report Date|Search Date|Date):\s*([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
	filingBasis   = regexp.MustCompile(`(?im)^[ \t]*Filing Basis:[ \t]*([^\n]+)$`)
	applicantLine = regexp.MustCompile(`(?im)^[ \t]*(?:Applicant|Owner):[ \t]*([^\n]+)$`)

	usptoHeader    = regexp.MustCompile(`(?i)UNITED STATES PATENT AND TRADEMARK OFFICE`)
	usptoAltHeader = regexp.MustCompile(`(?i)USPTO`)
	stateHeader    = regexp.MustCompile(`(?i)STATE TRADEMARK`)
	commonHeader   = regexp.MustCompile(`(?i)COMMON LAW`)
	domainHeader   = regexp.MustCompile(`(?i)DOMAIN NAMES?`)
	usptoAltEnd    = regexp.MustCompile(`(?i)State|Common|Domain`)
	blankRun       = regexp.MustCompile(`\n\n\n`)

	// Mark names are upper-case runs on a single line.
	federalRecord = regexp.MustCompile(`([A-Z][A-Z0-9 \t,.'\-]{2,50})\s+(?:Reg\.?\s*No\.?\s*:?\s*([\d,]+)|Serial\s*No\.?\s*:?\s*([\d,]+))`)
	stateRecord   = regexp.MustCompile(`([A-Z][A-Z0-9 \t,.'\-]{2,50})\s+\(([A-Z]{2})\)`)
	commonRecord  = regexp.MustCompile(`[A-Z][A-Z0-9 \t,.'\-]{2,50}`)
	domainRecord  = regexp.MustCompile(`(?i)\b([a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,})\b`)
)

const defaultReportType = "Trademark Search Report"

// ParseReportText extracts the application and prior marks from the
// plain text of a search report. Missing pieces are left empty; the mark
// defaults to "UNKNOWN".
func ParseReportText(text string) *Report {
	r := &Report{
		Application: parseApplication(text),
		PriorMarks:  make(map[Source][]PriorMark),
		ReportDate:  firstGroup(reportDate, text),
		ReportType:  detectReportType(text),
	}

	if body, ok := usptoSection(text); ok {
		parseFederal(r, body)
	}
	if body, ok := section(text, stateHeader, commonHeader, domainHeader); ok {
		parseState(r, body)
	}
	if body, ok := section(text, commonHeader, domainHeader); ok {
		parseCommonLaw(r, body)
	}
	if body, ok := section(text, domainHeader, blankRun); ok {
		parseDomains(r, body)
	}

	slog.Debug("parser: report parsed",
		"mark", r.Application.Mark,
		"uspto", r.Count(SourceUSPTO),
		"state", r.Count(SourceState),
		"common_law", r.Count(SourceCommonLaw),
		"domain", r.Count(SourceDomain),
	)
	return r
}

func parseApplication(text string) Application {
	app := Application{
		Mark:        "UNKNOWN",
		Applicant:   firstGroup(applicantLine, text),
		FilingBasis: firstGroup(filingBasis, text),
	}
	if m := firstGroup(markLine, text); m != "" {
		app.Mark = m
	}
	if c := firstGroup(classLine, text); c != "" {
		app.Classes = parseClasses(c)
	}
	for _, re := range []*regexp.Regexp{goodsLine, classGoods} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			gs := strings.TrimSpace(m[1])
			// Short fragments are headings or noise.
			if len(gs) > 10 {
				app.GoodsServices = append(app.GoodsServices, gs)
			}
		}
	}
	return app
}

func detectReportType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "compumark"):
		return "CompuMark Search Report"
	case strings.Contains(text, "TESS"):
		return "USPTO TESS Report"
	}
	return defaultReportType
}

// usptoSection prefers the full office name as the header and falls back
// to the bare acronym.
func usptoSection(text string) (string, bool) {
	if body, ok := section(text, usptoHeader, stateHeader, commonHeader, domainHeader); ok {
		return body, true
	}
	return section(text, usptoAltHeader, usptoAltEnd)
}

// section returns the text after the first match of header up to the
// earliest match of any end pattern, or to the end of text.
func section(text string, header *regexp.Regexp, ends ...*regexp.Regexp) (string, bool) {
	loc := header.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	cut := len(body)
	for _, end := range ends {
		if e := end.FindStringIndex(body); e != nil && e[0] < cut {
			cut = e[0]
		}
	}
	return body[:cut], true
}

func parseFederal(r *Report, body string) {
	for _, m := range federalRecord.FindAllStringSubmatch(restOfHeaderLine(body), -1) {
		pm := PriorMark{
			Mark:               cleanMark(m[1]),
			RegistrationNumber: strings.TrimRight(m[2], ","),
			SerialNumber:       strings.TrimRight(m[3], ","),
			Source:             SourceUSPTO,
			Status:             "Pending",
		}
		if pm.RegistrationNumber != "" {
			pm.Status = "Registered"
		}
		pm.Similarity = Similarity(r.Application.Mark, pm.Mark)
		if !r.add(pm) {
			return
		}
	}
}

func parseState(r *Report, body string) {
	for _, m := range stateRecord.FindAllStringSubmatch(restOfHeaderLine(body), -1) {
		pm := PriorMark{
			Mark:          cleanMark(m[1]),
			GoodsServices: "State registration (" + m[2] + ")",
			Status:        "Registered",
			Source:        SourceState,
			Jurisdiction:  m[2],
		}
		pm.Similarity = Similarity(r.Application.Mark, pm.Mark)
		if !r.add(pm) {
			return
		}
	}
}

func parseCommonLaw(r *Report, body string) {
	seen := make(map[string]bool)
	for _, raw := range commonRecord.FindAllString(restOfHeaderLine(body), -1) {
		name := cleanMark(raw)
		if len(name) < 3 || seen[name] {
			continue
		}
		seen[name] = true
		pm := PriorMark{
			Mark:          name,
			GoodsServices: "Common law use",
			Status:        "Unregistered",
			Source:        SourceCommonLaw,
		}
		pm.Similarity = Similarity(r.Application.Mark, pm.Mark)
		if !r.add(pm) {
			return
		}
	}
}

func parseDomains(r *Report, body string) {
	seen := make(map[string]bool)
	for _, m := range domainRecord.FindAllStringSubmatch(restOfHeaderLine(body), -1) {
		domain := strings.TrimPrefix(strings.ToLower(m[1]), "www.")
		if seen[domain] {
			continue
		}
		seen[domain] = true
		brand := strings.ToUpper(strings.SplitN(domain, ".", 2)[0])
		pm := PriorMark{
			Mark:          brand,
			GoodsServices: "Domain: " + domain,
			Status:        "Active",
			Source:        SourceDomain,
		}
		pm.Similarity = Similarity(r.Application.Mark, pm.Mark)
		if !r.add(pm) {
			return
		}
	}
}

// restOfHeaderLine drops whatever follows the section header on its own
// line ("COMMON LAW USES", "DOMAIN NAMES FOUND") so it is not read as data.
func restOfHeaderLine(body string) string {
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		return body[i+1:]
	}
	return ""
}

func parseClasses(s string) []int {
	var out []int
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > 45 {
			continue
		}
		out = append(out, n)
	}
	return out
}

func cleanMark(s string) string {
	return strings.Join(strings.Fields(strings.Trim(s, " \t,.-'")), " ")
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
