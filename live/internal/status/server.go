// Package status serves the operator surface of a running shield: health,
// live page summaries, run history from the journal, and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/domshield/live/report"
)

// Pages reports the current summary of every page.
type Pages interface {
	Summaries() []report.Summary
}

// History reads past runs. The journal sink implements it.
type History interface {
	Reports(ctx context.Context, runID string) ([]report.Report, error)
	Summaries(ctx context.Context, pageID string, limit int) ([]report.Summary, error)
}

// Server is the status HTTP server.
type Server struct {
	log     *slog.Logger
	pages   Pages
	history History
	metrics *Metrics
	started time.Time
}

// NewServer creates a Server. history and metrics may be nil; their routes
// then answer 404.
func NewServer(logger *slog.Logger, pages Pages, history History, metrics *Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{log: logger, pages: pages, history: history, metrics: metrics, started: time.Now()}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(headToGet, securityHeaders, traceID(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})
	r.Get("/pages", s.handlePages)
	if s.history != nil {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleRuns)
			r.Get("/{runID}/reports", s.handleReports)
		})
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func (s *Server) handlePages(w http.ResponseWriter, _ *http.Request) {
	var out []report.Summary
	if s.pages != nil {
		out = s.pages.Summaries()
	}
	if out == nil {
		out = []report.Summary{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	sums, err := s.history.Summaries(r.Context(), r.URL.Query().Get("page"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sums == nil {
		sums = []report.Summary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	reps, err := s.history.Reports(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(reps) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run"})
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	requestLogger(r.Context()).Error("status: request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("status: listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutCtx)
	if serr := <-errc; serr != nil && !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
