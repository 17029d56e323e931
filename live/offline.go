package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/domshield/dom"
	"github.com/hazyhaar/domshield/filter"
	"github.com/hazyhaar/domshield/internal/idgen"
	"github.com/hazyhaar/domshield/live/report"
)

// offlinePage is the page ID of ApplyHTML runs.
const offlinePage = "offline"

// ApplyHTML runs rules over src without a browser and returns the rewritten
// HTML and the reports. Styles come from the document's own <style>
// elements. Reports and the final summary also go to the sinks.
func (s *Shield) ApplyHTML(ctx context.Context, src string, rules []string) (string, []report.Report, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return "", nil, err
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	doc, err := dom.ParseString(src, dom.WithLogger(s.log))
	if err != nil {
		return "", nil, fmt.Errorf("domshield: parse html: %w", err)
	}

	runID := idgen.Run()
	var reps []report.Report
	track := newTracker(doc, runID, offlinePage, "", func(r report.Report) { reps = append(reps, r) })

	rt := filter.New(doc, s.runtimeConfig(s.log.With("run_id", runID)))
	for _, r := range track.attach(rt, compiled) {
		if _, err := rt.Run(r); err != nil {
			rt.Close()
			return "", nil, err
		}
	}
	if err := doc.Flush(); err != nil {
		if !errors.Is(err, dom.ErrFlushLimit) {
			return "", nil, err
		}
		s.log.Warn("domshield: offline flush", "error", err)
	}
	rt.Close()
	sum := track.finish()

	for _, r := range reps {
		if err := s.sinkR.Send(ctx, r); err != nil {
			s.log.Warn("domshield: send report", "error", err)
		}
	}
	if err := s.sinkR.SendSummary(ctx, sum); err != nil {
		s.log.Warn("domshield: send summary", "error", err)
	}
	return doc.String(), reps, nil
}
