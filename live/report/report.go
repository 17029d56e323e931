// Package report defines the records domshield emits while enforcing rules
// on a page.
package report

import (
	"encoding/json"
	"time"
)

// Kind distinguishes report events.
type Kind string

const (
	KindHide      Kind = "hide"      // an element was hidden
	KindReassert  Kind = "reassert"  // a page script undid a hide and it was restored
	KindWon       Kind = "won"       // a rule took a winner slot
	KindCancelled Kind = "cancelled" // a rule was stopped by the race
)

// Report is one enforcement event.
type Report struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	PageID   string    `json:"page_id"`
	PageURL  string    `json:"page_url,omitempty"`
	Kind     Kind      `json:"kind"`
	Rule     string    `json:"rule,omitempty"`
	Selector string    `json:"selector,omitempty"`
	XPath    string    `json:"xpath,omitempty"`
	Tag      string    `json:"tag,omitempty"`
	Time     time.Time `json:"time"`
}

// Summary aggregates one run over a page.
type Summary struct {
	RunID     string    `json:"run_id"`
	PageID    string    `json:"page_id"`
	PageURL   string    `json:"page_url,omitempty"`
	Rules     int       `json:"rules"`
	Matches   int64     `json:"matches"`
	Hidden    int       `json:"hidden"`
	Reasserts int       `json:"reasserts"`
	Winners   []string  `json:"winners,omitempty"`
	Cancelled []string  `json:"cancelled,omitempty"`
	Started   time.Time `json:"started"`
	Ended     time.Time `json:"ended,omitzero"`
}

// Active reports whether the run is still going.
func (s Summary) Active() bool { return s.Ended.IsZero() }

// Marshal encodes r as JSON.
func Marshal(r Report) ([]byte, error) { return json.Marshal(r) }

// Unmarshal decodes a JSON report.
func Unmarshal(data []byte) (Report, error) {
	var r Report
	err := json.Unmarshal(data, &r)
	return r, err
}
