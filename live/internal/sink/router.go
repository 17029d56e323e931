package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/domshield/live/report"
)

// Router fans reports out to every sink. A failing sink does not stop the
// others; errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, rep report.Report) error {
	return r.each("report", func(s Sink) error { return s.Send(ctx, rep) })
}

func (r *Router) SendSummary(ctx context.Context, sum report.Summary) error {
	return r.each("summary", func(s Sink) error { return s.SendSummary(ctx, sum) })
}

func (r *Router) Close() error {
	return r.each("close", Sink.Close)
}

func (r *Router) each(what string, fn func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("sink: delivery failed", "what", what, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
