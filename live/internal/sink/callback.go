package sink

import (
	"context"

	"github.com/hazyhaar/domshield/live/report"
)

// ReportFunc receives each report in process.
type ReportFunc func(ctx context.Context, r report.Report) error

// SummaryFunc receives each run summary.
type SummaryFunc func(ctx context.Context, s report.Summary) error

// Callback delivers records through Go function calls, for embedding
// domshield without serialisation.
type Callback struct {
	onReport  ReportFunc
	onSummary SummaryFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onReport ReportFunc, onSummary SummaryFunc) *Callback {
	return &Callback{onReport: onReport, onSummary: onSummary}
}

func (c *Callback) Send(ctx context.Context, r report.Report) error {
	if c.onReport != nil {
		return c.onReport(ctx, r)
	}
	return nil
}

func (c *Callback) SendSummary(ctx context.Context, s report.Summary) error {
	if c.onSummary != nil {
		return c.onSummary(ctx, s)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
