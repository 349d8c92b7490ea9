// Package cdp captures tabs with a Chrome instance driven over the DevTools
// protocol. It attaches to a running browser when a DevTools URL is
// configured and launches a headless one otherwise.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/platform"
)

// DefaultTimeout bounds one capture, browser start included.
const DefaultTimeout = 20 * time.Second

// Options configures a Shooter.
type Options struct {
	// URL is a DevTools endpoint (ws:// or http://host:9222). Empty launches
	// a local headless Chrome.
	URL     string
	Timeout time.Duration
	Width   int64
	Height  int64
	// Source supplies live markup for tabs. Without it the shooter
	// navigates to the tab's URL.
	Source platform.DocumentSource
	Logger *slog.Logger
}

// Shooter implements platform.Screenshotter.
type Shooter struct {
	opts Options
	log  *slog.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// New creates a Shooter. The browser is started on first use.
func New(opts Options) *Shooter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 800
	}
	return &Shooter{opts: opts, log: logging.For(opts.Logger, "cdp")}
}

// browser returns a live browser context, reconnecting when the previous
// one went away.
func (s *Shooter) browser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx != nil {
		err := chromedp.Run(s.browserCtx)
		if err == nil {
			return s.browserCtx, nil
		}
		s.log.Warn("browser connection stale, reconnecting", "error", err)
		s.close()
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if s.opts.URL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), s.opts.URL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(int(s.opts.Width), int(s.opts.Height)),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	ctx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, bridgeerr.New(bridgeerr.CodeUnsupported, fmt.Sprintf("start capture browser: %v", err), bridgeerr.ErrUnsupported)
	}
	s.allocCancel, s.browserCtx, s.cancel = allocCancel, ctx, cancel
	if s.opts.URL != "" {
		s.log.Info("attached to browser", "url", s.opts.URL)
	} else {
		s.log.Info("launched headless browser")
	}
	return ctx, nil
}

func (s *Shooter) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx, s.cancel, s.allocCancel = nil, nil, nil
}

// Close shuts the browser down, or detaches from a remote one.
func (s *Shooter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
	return nil
}

// CaptureVisible renders tab in a fresh browser tab and returns a PNG of
// its viewport.
func (s *Shooter) CaptureVisible(ctx context.Context, tab model.Tab, _ platform.ScreenshotOptions) ([]byte, error) {
	bctx, err := s.browser()
	if err != nil {
		return nil, err
	}
	render, err := s.render(ctx, tab)
	if err != nil {
		return nil, err
	}

	tctx, cancel := chromedp.NewContext(bctx)
	defer cancel()
	tctx, cancelTimeout := context.WithTimeout(tctx, s.opts.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var buf []byte
	start := time.Now()
	err = chromedp.Run(tctx,
		chromedp.EmulateViewport(s.opts.Width, s.opts.Height),
		render,
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("capture tab %d: %w", tab.ID, err)
	}
	s.log.Debug("captured", "tab", tab.ID, "bytes", len(buf), "elapsed", time.Since(start))
	return buf, nil
}

// render picks how the tab's content reaches the capture browser.
func (s *Shooter) render(ctx context.Context, tab model.Tab) (chromedp.Action, error) {
	if s.opts.Source != nil {
		markup, err := s.opts.Source.Source(ctx, tab.ID)
		if err != nil {
			return nil, err
		}
		markup, err = withBase(markup, tab.URL)
		if err != nil {
			return nil, err
		}
		return chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
		}), nil
	}
	u, err := url.Parse(tab.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") {
		return nil, bridgeerr.Newf(bridgeerr.CodeUnsupported, "cannot capture %q without a document source", tab.URL).With("tabId", tab.ID)
	}
	return chromedp.Navigate(tab.URL), nil
}

// withBase points relative references in markup at pageURL.
func withBase(markup, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") {
		return markup, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse document source: %w", err)
	}
	head := doc.Find("head")
	if head.Find("base[href]").Length() > 0 {
		return markup, nil
	}
	base := fmt.Sprintf(`<base href="%s">`, strings.ReplaceAll(u.String(), `"`, "%22"))
	head.PrependHtml(base)
	out, err := goquery.OuterHtml(doc.Selection.Children())
	if err != nil {
		return "", fmt.Errorf("render document source: %w", err)
	}
	return "<!DOCTYPE html>" + out, nil
}
