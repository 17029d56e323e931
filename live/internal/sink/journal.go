package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domshield/internal/dbopen"
	"github.com/hazyhaar/domshield/live/report"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id       TEXT PRIMARY KEY,
	run_id   TEXT NOT NULL,
	page_id  TEXT NOT NULL,
	page_url TEXT NOT NULL DEFAULT '',
	kind     TEXT NOT NULL,
	rule     TEXT NOT NULL DEFAULT '',
	selector TEXT NOT NULL DEFAULT '',
	xpath    TEXT NOT NULL DEFAULT '',
	tag      TEXT NOT NULL DEFAULT '',
	at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_run ON reports(run_id, at);

CREATE TABLE IF NOT EXISTS summaries (
	run_id  TEXT PRIMARY KEY,
	page_id TEXT NOT NULL,
	started INTEGER NOT NULL,
	ended   INTEGER NOT NULL DEFAULT 0,
	data    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS summaries_page ON summaries(page_id, started);
`

// Journal persists reports and summaries in SQLite.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(journalSchema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// NewJournal wraps an already opened database, creating the tables.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Send(ctx context.Context, r report.Report) error {
	_, err := dbopen.Exec(ctx, j.db,
		`INSERT OR IGNORE INTO reports (id, run_id, page_id, page_url, kind, rule, selector, xpath, tag, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.PageID, r.PageURL, string(r.Kind), r.Rule, r.Selector, r.XPath, r.Tag, r.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("journal: insert report: %w", err)
	}
	return nil
}

// SendSummary upserts the summary of a run; later summaries of the same
// run replace earlier ones.
func (j *Journal) SendSummary(ctx context.Context, s report.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("journal: marshal summary: %w", err)
	}
	var ended int64
	if !s.Ended.IsZero() {
		ended = s.Ended.UnixMilli()
	}
	_, err = dbopen.Exec(ctx, j.db,
		`INSERT INTO summaries (run_id, page_id, started, ended, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET ended = excluded.ended, data = excluded.data`,
		s.RunID, s.PageID, s.Started.UnixMilli(), ended, string(data))
	if err != nil {
		return fmt.Errorf("journal: upsert summary: %w", err)
	}
	return nil
}

// Reports returns the reports of a run in time order.
func (j *Journal) Reports(ctx context.Context, runID string) ([]report.Report, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, page_id, page_url, kind, rule, selector, xpath, tag, at
		 FROM reports WHERE run_id = ? ORDER BY at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: query reports: %w", err)
	}
	defer rows.Close()

	var out []report.Report
	for rows.Next() {
		var r report.Report
		var kind string
		var at int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.PageID, &r.PageURL, &kind, &r.Rule, &r.Selector, &r.XPath, &r.Tag, &at); err != nil {
			return nil, fmt.Errorf("journal: scan report: %w", err)
		}
		r.Kind = report.Kind(kind)
		r.Time = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summaries returns the most recent summaries, newest first. An empty
// pageID selects every page.
func (j *Journal) Summaries(ctx context.Context, pageID string, limit int) ([]report.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT data FROM summaries WHERE (? = '' OR page_id = ?) ORDER BY started DESC LIMIT ?`,
		pageID, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query summaries: %w", err)
	}
	defer rows.Close()

	var out []report.Summary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("journal: scan summary: %w", err)
		}
		var s report.Summary
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("journal: decode summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error { return j.db.Close() }
