package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is one navigated page.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	Mode    Mode

	router *rod.HijackRouter
}

// OpenTab creates a tab in the given mode, applies resource blocking and
// navigates to pageURL, waiting for the load event.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string, mode Mode) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, ErrNoBrowser
	}

	var page *rod.Page
	var err error
	if mode == ModeStealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	tab := &Tab{Page: page, PageURL: pageURL, PageID: pageID, Mode: mode}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		r, err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
		if err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
		tab.router = r
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		tab.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return tab, nil
}

// HTML serialises the current document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
