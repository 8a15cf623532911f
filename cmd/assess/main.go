// Command assess scores the registration risk of a trademark application.
//
// From a search report:
//
//	go run ./cmd/assess --report ./search.pdf
//
// From manual input:
//
//	go run ./cmd/assess \
//	  --mark "SUNBREW" --goods "Coffee; tea" --classes 30 \
//	  --issues likelihood_of_confusion,descriptiveness
//
// The assessment is written as JSON with its canonical sha256 digest.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/brunobiangulo/tmrisk"
	"github.com/brunobiangulo/tmrisk/analysis"
	"github.com/brunobiangulo/tmrisk/parser"
)

type flags struct {
	config  string
	report  string
	mark    string
	goods   string
	classes string
	issues  string
	out     string
	verbose bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "Path to config file (YAML or JSON)")
	flag.StringVar(&f.report, "report", "", "Search report to assess (pdf, txt, xlsx)")
	flag.StringVar(&f.mark, "mark", "", "Mark to assess when no report is given")
	flag.StringVar(&f.goods, "goods", "", "Semicolon separated goods/services")
	flag.StringVar(&f.classes, "classes", "", "Comma separated Nice classes")
	flag.StringVar(&f.issues, "issues", "", "Comma separated issue categories (default: all standard checks)")
	flag.StringVar(&f.out, "out", "", "Write JSON here instead of stdout")
	flag.BoolVar(&f.verbose, "v", false, "Debug logging")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "assess:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg := tmrisk.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = tmrisk.LoadConfig(f.config); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	level := cfg.SlogLevel()
	if f.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	checks, err := parseIssues(f.issues)
	if err != nil {
		return err
	}
	if f.report == "" && f.mark == "" {
		return errors.New("either --report or --mark is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine, err := tmrisk.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	var a *tmrisk.Assessment
	if f.report != "" {
		a, err = engine.AssessReport(ctx, f.report, checks)
	} else {
		var classes []int
		if classes, err = parseClasses(f.classes); err != nil {
			return err
		}
		a, err = engine.Assess(ctx, tmrisk.Request{
			Application: parser.NewApplication(f.mark, splitList(f.goods, ";"), classes),
			Issues:      checks,
		})
	}
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return writeResult(w, a)
}

func writeResult(w io.Writer, a *tmrisk.Assessment) error {
	digest, err := a.Digest()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Assessment *tmrisk.Assessment `json:"assessment"`
		Digest     string             `json:"digest"`
	}{a, digest})
}

func parseIssues(s string) ([]tmrisk.IssueCheck, error) {
	var checks []tmrisk.IssueCheck
	for _, name := range splitList(s, ",") {
		cat, err := analysis.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		checks = append(checks, tmrisk.IssueCheck{Category: cat})
	}
	return checks, nil
}

func parseClasses(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 45 {
			return nil, fmt.Errorf("invalid class %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
