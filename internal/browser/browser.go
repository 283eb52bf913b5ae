// Package browser drives a real Chrome through rod and adapts its pages to
// the fill and engine contracts.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/config"
	"github.com/sells-group/formpilot/internal/engine"
)

// ErrUnknownTab means no page is open under the tab id.
var ErrUnknownTab = eris.New("browser: unknown tab")

// Browser owns one Chrome connection and the pages opened through it.
type Browser struct {
	cfg     config.BrowserConfig
	browser *rod.Browser
	lnch    *launcher.Launcher

	mu    sync.Mutex
	pages map[int]*rod.Page
	next  int
}

var _ engine.Pages = (*Browser)(nil)

// Open connects to ControlURL, or launches a local Chrome when it is empty.
func Open(ctx context.Context, cfg config.BrowserConfig) (*Browser, error) {
	b := &Browser{cfg: cfg, pages: make(map[int]*rod.Page)}

	u := cfg.ControlURL
	if u == "" {
		l := launcher.New().Context(ctx).Headless(cfg.Headless)
		var err error
		if u, err = l.Launch(); err != nil {
			return nil, eris.Wrap(err, "browser: launch chrome")
		}
		b.lnch = l
		zap.L().Info("browser: launched local chrome", zap.Bool("headless", cfg.Headless))
	} else {
		zap.L().Info("browser: connecting to remote chrome", zap.String("url", u))
	}

	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return nil, eris.Wrap(err, "browser: connect")
	}
	b.browser = rb
	return b, nil
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.cfg.NavigationTimeoutSecs) * time.Second
}

// NewTab opens url in a new page and returns its tab id.
func (b *Browser) NewTab(ctx context.Context, url string) (int, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return 0, eris.Wrap(err, "browser: create tab")
	}

	navCtx, cancel := context.WithTimeout(ctx, b.navTimeout())
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		_ = page.Close()
		return 0, eris.Wrapf(err, "browser: navigate %s", url)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		zap.L().Warn("browser: wait load", zap.String("url", url), zap.Error(err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.pages[b.next] = page
	return b.next, nil
}

// Page returns the adapter for an open tab.
func (b *Browser) Page(_ context.Context, tabID int) (engine.Page, error) {
	b.mu.Lock()
	p, ok := b.pages[tabID]
	b.mu.Unlock()
	if !ok {
		return nil, eris.Wrapf(ErrUnknownTab, "tab %d", tabID)
	}
	return newPage(p), nil
}

// CloseTab closes one page.
func (b *Browser) CloseTab(tabID int) error {
	b.mu.Lock()
	p, ok := b.pages[tabID]
	delete(b.pages, tabID)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return eris.Wrap(p.Close(), "browser: close tab")
}

// Close closes every page and the browser, and kills a launched Chrome.
func (b *Browser) Close() error {
	b.mu.Lock()
	pages := b.pages
	b.pages = make(map[int]*rod.Page)
	b.mu.Unlock()
	for id, p := range pages {
		if err := p.Close(); err != nil {
			zap.L().Debug("browser: close page", zap.Int("tab", id), zap.Error(err))
		}
	}
	return b.cleanup()
}

func (b *Browser) cleanup() error {
	var err error
	if b.browser != nil {
		err = eris.Wrap(b.browser.Close(), "browser: close")
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Kill()
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}
