package parser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser reads prior-mark spreadsheets. Each sheet may open with a
// key/value preamble describing the application ("Mark" | "ACME") followed
// by a header row that names a Mark column; every row below the header is
// one prior mark.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

// column identifies the prior-mark field a header cell names.
type column int

const (
	colIgnored column = iota
	colMark
	colRegistration
	colSerial
	colOwner
	colClass
	colGoods
	colStatus
	colSource
)

var stateCode = regexp.MustCompile(`\(([A-Za-z]{2})\)`)

// markTable is the tabular part of one sheet.
type markTable struct {
	sheet  string
	header []column
	rows   [][]string
}

func (p *XLSXParser) Parse(ctx context.Context, path string) (*Report, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var preamble strings.Builder
	var tables []markTable

	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			slog.Warn("parser: skipping unreadable sheet", "sheet", sheet, "error", err)
			continue
		}

		t := markTable{sheet: sheet}
		for _, row := range rows {
			if t.header == nil {
				if h, ok := detectHeader(row); ok {
					t.header = h
					continue
				}
				writePreamble(&preamble, row)
				continue
			}
			if !rowEmpty(row) {
				t.rows = append(t.rows, row)
			}
		}
		if t.header != nil {
			tables = append(tables, t)
		}
	}

	if preamble.Len() == 0 && len(tables) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}

	r := &Report{
		Application: parseApplication(preamble.String()),
		PriorMarks:  make(map[Source][]PriorMark),
		ReportDate:  firstGroup(reportDate, preamble.String()),
		ReportType:  "Prior Mark Spreadsheet",
	}
	for _, t := range tables {
		for _, row := range t.rows {
			pm, ok := rowMark(t.header, row)
			if !ok {
				continue
			}
			pm.Similarity = Similarity(r.Application.Mark, pm.Mark)
			r.add(pm)
		}
	}
	return r, nil
}

// writePreamble turns a "Key | Value" row into a "Key: Value" line so the
// text extractors can read it.
func writePreamble(b *strings.Builder, row []string) {
	if len(row) < 2 {
		return
	}
	key := strings.TrimSuffix(strings.TrimSpace(row[0]), ":")
	val := strings.TrimSpace(row[1])
	if key == "" || val == "" {
		return
	}
	b.WriteString(key + ": " + val + "\n")
}

// detectHeader reports whether row is a table header, i.e. it names a Mark
// column alongside at least one other recognised column.
func detectHeader(row []string) ([]column, bool) {
	cols := make([]column, len(row))
	hasMark, known := false, 0
	for i, cell := range row {
		cols[i] = headerColumn(cell)
		if cols[i] == colMark {
			hasMark = true
		}
		if cols[i] != colIgnored {
			known++
		}
	}
	return cols, hasMark && known >= 2
}

func headerColumn(cell string) column {
	h := strings.ToLower(strings.TrimSpace(cell))
	switch {
	case h == "mark" || h == "trademark" || h == "prior mark" || h == "name":
		return colMark
	case strings.HasPrefix(h, "reg"):
		return colRegistration
	case strings.HasPrefix(h, "serial"):
		return colSerial
	case h == "owner" || h == "registrant" || h == "applicant":
		return colOwner
	case strings.HasPrefix(h, "class"):
		return colClass
	case strings.HasPrefix(h, "goods"):
		return colGoods
	case h == "status":
		return colStatus
	case h == "source":
		return colSource
	}
	return colIgnored
}

func rowMark(header []column, row []string) (PriorMark, bool) {
	pm := PriorMark{Source: SourceUSPTO}
	for i, cell := range row {
		if i >= len(header) {
			break
		}
		v := strings.TrimSpace(cell)
		switch header[i] {
		case colMark:
			pm.Mark = cleanMark(strings.ToUpper(v))
		case colRegistration:
			pm.RegistrationNumber = v
		case colSerial:
			pm.SerialNumber = v
		case colOwner:
			pm.Owner = v
		case colClass:
			pm.Classes = parseClasses(v)
		case colGoods:
			pm.GoodsServices = v
		case colStatus:
			pm.Status = v
		case colSource:
			src, ok := ParseSource(v)
			if !ok {
				slog.Debug("parser: unknown prior mark source", "source", v)
				src = SourceUSPTO
			}
			pm.Source = src
			if src == SourceState {
				pm.Jurisdiction = jurisdiction(v)
			}
		}
	}
	if pm.Mark == "" {
		return pm, false
	}
	if pm.Status == "" {
		pm.Status = defaultStatus(pm)
	}
	return pm, true
}

func defaultStatus(pm PriorMark) string {
	switch {
	case pm.RegistrationNumber != "":
		return "Registered"
	case pm.SerialNumber != "":
		return "Pending"
	case pm.Source == SourceCommonLaw:
		return "Unregistered"
	case pm.Source == SourceDomain:
		return "Active"
	}
	return "Unknown"
}

// jurisdiction pulls "CA" out of labels like "State (CA)".
func jurisdiction(label string) string {
	if m := stateCode.FindStringSubmatch(label); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
