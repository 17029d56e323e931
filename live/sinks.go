package live

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/domshield/live/internal/sink"
	"github.com/hazyhaar/domshield/live/internal/status"
	"github.com/hazyhaar/domshield/live/report"
)

// Sink is the output interface for reports and summaries.
type Sink = sink.Sink

// Journal is the SQLite sink. It also answers history queries.
type Journal = sink.Journal

// Metrics is the Prometheus sink.
type Metrics = status.Metrics

// StatusServer serves health, pages, history and metrics over HTTP.
type StatusServer = status.Server

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// OpenJournal opens (or creates) a journal database at path.
func OpenJournal(path string) (*Journal, error) {
	return sink.OpenJournal(path)
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(
	onReport func(ctx context.Context, r report.Report) error,
	onSummary func(ctx context.Context, s report.Summary) error,
) Sink {
	return sink.NewCallback(onReport, onSummary)
}

// NewMetrics creates a metrics sink with its own registry.
func NewMetrics() *Metrics {
	return status.NewMetrics()
}

// NewStatusServer creates the status server for s. journal and metrics may
// be nil.
func NewStatusServer(logger *slog.Logger, s *Shield, journal *Journal, metrics *Metrics) *StatusServer {
	var hist status.History
	if journal != nil {
		hist = journal
	}
	return status.NewServer(logger, s, hist, metrics)
}

// BuildSinks opens the sinks named in cfg. The caller owns the returned
// sinks; the journal, if any, is also returned for history queries.
func BuildSinks(cfg *Config, stdout io.Writer, logger *slog.Logger) ([]Sink, *Journal, error) {
	var (
		sinks   []Sink
		journal *Journal
	)
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(stdout))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		case "journal":
			j, err := OpenJournal(sc.Path)
			if err != nil {
				for _, s := range sinks {
					s.Close()
				}
				return nil, nil, err
			}
			if journal == nil {
				journal = j
			}
			sinks = append(sinks, j)
		}
	}
	return sinks, journal, nil
}
