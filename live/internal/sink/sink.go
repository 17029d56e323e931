// Package sink delivers domshield reports to output backends.
package sink

import (
	"context"

	"github.com/hazyhaar/domshield/live/report"
)

// Sink is the output interface. Implementations must be safe for
// concurrent use: pages report from their own goroutines.
type Sink interface {
	Send(ctx context.Context, r report.Report) error
	SendSummary(ctx context.Context, s report.Summary) error
	Close() error
}

// envelope tags JSON output with its record type.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
