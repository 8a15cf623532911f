package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/tmrisk"
	"github.com/brunobiangulo/tmrisk/analysis"
	"github.com/brunobiangulo/tmrisk/parser"
)

const maxUpload = 32 << 20

// assessor is the part of *tmrisk.Engine the handlers use.
type assessor interface {
	Assess(ctx context.Context, req tmrisk.Request) (*tmrisk.Assessment, error)
	AssessReport(ctx context.Context, path string, checks []tmrisk.IssueCheck) (*tmrisk.Assessment, error)
	ParseReport(ctx context.Context, path string) (*parser.Report, error)
	Health(ctx context.Context) (*tmrisk.Health, error)
}

type handler struct {
	engine  assessor
	timeout time.Duration
}

func newHandler(e assessor, timeout time.Duration) *handler {
	return &handler{engine: e, timeout: timeout}
}

// routes builds the router. gatherer serves /metrics.
func (h *handler) routes(apiKey, corsOrigins string, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// recovery -> request id -> cors -> auth -> logging -> routes
	r.Use(recoveryMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(corsOrigins))
	r.Use(authMiddleware(apiKey))
	r.Use(logMiddleware)

	r.Post("/assess", h.handleAssess)
	r.Post("/assess/report", h.handleAssessReport)
	r.Post("/parse", h.handleParse)
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type assessRequest struct {
	Mark          string                               `json:"mark"`
	GoodsServices []string                             `json:"goods_services"`
	Classes       []int                                `json:"classes"`
	Applicant     string                               `json:"applicant,omitempty"`
	FilingBasis   string                               `json:"filing_basis,omitempty"`
	PriorMarks    map[parser.Source][]parser.PriorMark `json:"prior_marks,omitempty"`
	Issues        []tmrisk.IssueCheck                  `json:"issues,omitempty"`
}

func (req assessRequest) toRequest() tmrisk.Request {
	app := parser.NewApplication(req.Mark, req.GoodsServices, req.Classes)
	app.Applicant = req.Applicant
	if req.FilingBasis != "" {
		app.FilingBasis = req.FilingBasis
	}
	return tmrisk.Request{Application: app, PriorMarks: req.PriorMarks, Issues: req.Issues}
}

// POST /assess
// JSON body describing the application, its prior marks and optional issues.
func (h *handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req assessRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := h.engine.Assess(ctx, req.toRequest())
	if err != nil {
		h.fail(w, r, "assess", err)
		return
	}
	writeAssessment(w, a)
}

// POST /assess/report
// Multipart upload of a search report ("file"), with optional comma
// separated "issues" categories.
func (h *handler) handleAssessReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	var checks []tmrisk.IssueCheck
	if v := r.FormValue("issues"); v != "" {
		for _, name := range strings.Split(v, ",") {
			cat, err := analysis.ParseCategory(strings.TrimSpace(name))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			checks = append(checks, tmrisk.IssueCheck{Category: cat})
		}
	}

	a, err := h.engine.AssessReport(ctx, path, checks)
	if err != nil {
		h.fail(w, r, "assess report", err)
		return
	}
	writeAssessment(w, a)
}

// POST /parse
// Multipart upload of a search report; returns the parsed report.
func (h *handler) handleParse(w http.ResponseWriter, r *http.Request) {
	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	report, err := h.engine.ParseReport(r.Context(), path)
	if err != nil {
		h.fail(w, r, "parse", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":          report,
		"total_conflicts": report.TotalConflicts(),
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.engine.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// saveUpload copies the "file" form field into a temp file that keeps the
// upload's extension, which selects the parser.
func saveUpload(w http.ResponseWriter, r *http.Request) (string, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a 'file' field")
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field")
		return "", nil, false
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal.
	ext := strings.ToLower(filepath.Ext(filepath.Base(header.Filename)))
	dst, err := os.CreateTemp("", "tmrisk-report-*"+ext)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return "", nil, false
	}
	cleanup := func() { os.Remove(dst.Name()) }

	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return "", nil, false
	}
	if err := dst.Close(); err != nil {
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return "", nil, false
	}
	return dst.Name(), cleanup, true
}

// fail maps engine errors onto HTTP statuses.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" error", "request_id", requestID(r.Context()), "error", err)
	} else {
		slog.Warn(op+" rejected", "request_id", requestID(r.Context()), "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tmrisk.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, tmrisk.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, tmrisk.ErrParsingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tmrisk.ErrAssessmentFailed):
		return http.StatusBadGateway
	case errors.Is(err, tmrisk.ErrEmptyStore), errors.Is(err, tmrisk.ErrInvalidConfig):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeAssessment sends an assessment with its canonical digest header.
func writeAssessment(w http.ResponseWriter, a *tmrisk.Assessment) {
	digest, err := a.Digest()
	if err != nil {
		slog.Error("digest error", "assessment", a.ID, "error", err)
	} else {
		w.Header().Set("X-Assessment-Digest", digest)
	}
	writeJSON(w, http.StatusOK, a)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
