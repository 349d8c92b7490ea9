// Package headless is an in-process browser host. Tabs load documents over
// HTTP(S), file:// or inline markup and every reachable frame gets its own
// page loop, automation engine and relay.
package headless

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/config"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/page"
	"github.com/mj1618/web-bridge/internal/platform"
)

const maxFrameDepth = 3

func init() {
	platform.Register("headless", func(cfg config.Config) (*platform.Provider, error) {
		return NewProvider(FromConfig(cfg, slog.Default())), nil
	})
}

// Options configures a Browser.
type Options struct {
	Page         page.Options
	RelayTimeout time.Duration
	Viewport     dom.Viewport
	UserAgent    string
	LoadTimeout  time.Duration
	Client       *http.Client
	Logger       *slog.Logger
}

// FromConfig maps the config file onto Options.
func FromConfig(cfg config.Config, logger *slog.Logger) Options {
	vp := dom.DefaultViewport()
	vp.Width, vp.Height = cfg.Page.ViewportWidth, cfg.Page.ViewportHeight
	return Options{
		Page: page.Options{
			Ambiguity:      cfg.Page.Ambiguity,
			SettleDelay:    cfg.Page.SettleDelay,
			WatchDebounce:  cfg.Page.WatchDebounce,
			WatchThreshold: cfg.Page.WatchThreshold,
			ConsoleBuffer:  cfg.Page.ConsoleBuffer,
			NetworkBuffer:  cfg.Page.NetworkBuffer,
			Logger:         logger,
		},
		RelayTimeout: cfg.Page.RelayTimeout,
		Viewport:     vp,
		UserAgent:    cfg.Bridge.UserAgent,
		Logger:       logger,
	}
}

// Browser implements platform.TabManager and platform.FrameEnumerator.
type Browser struct {
	opts   Options
	log    *slog.Logger
	client *http.Client
	jar    http.CookieJar

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tabs    map[int]*tab
	order   []int
	active  int
	nextTab int
	sink    func(model.MutationReport)
}

// entry is one history item. Inline documents keep their markup so going
// back restores them.
type entry struct {
	url  string
	html string
}

type tab struct {
	id      int
	history []entry
	pos     int
	frames  []*frame
	loading bool
}

func (t *tab) top() *frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[0]
}

// New creates a browser with no tabs.
func New(opts Options) *Browser {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	if opts.Viewport.Width == 0 {
		opts.Viewport = dom.DefaultViewport()
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.LoadTimeout}
	}
	if client.Jar == nil {
		c := *client
		c.Jar = jar
		client = &c
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Browser{
		opts:    opts,
		log:     logging.For(opts.Logger, "headless"),
		client:  client,
		jar:     client.Jar,
		ctx:     ctx,
		cancel:  cancel,
		tabs:    make(map[int]*tab),
		nextTab: 1,
	}
}

// NewProvider exposes a new Browser as a platform provider.
func NewProvider(opts Options) *platform.Provider {
	b := New(opts)
	return &platform.Provider{Tabs: b, Frames: b, Mutations: b, Close: b.Close}
}

// OnMutation sets the receiver of mutation reports from every frame.
func (b *Browser) OnMutation(fn func(model.MutationReport)) {
	b.mu.Lock()
	b.sink = fn
	b.mu.Unlock()
}

func (b *Browser) emit(r model.MutationReport) {
	b.mu.Lock()
	fn := b.sink
	b.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// Close tears down every tab.
func (b *Browser) Close() error {
	b.mu.Lock()
	var all []*frame
	for _, t := range b.tabs {
		all = append(all, t.frames...)
	}
	b.tabs = make(map[int]*tab)
	b.order = nil
	b.active = 0
	b.mu.Unlock()
	for _, f := range all {
		f.stop()
	}
	b.cancel()
	return nil
}

func (b *Browser) tab(id int) (*tab, error) {
	t, ok := b.tabs[id]
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.CodeTabNotFound, "no tab %d", id).With("tabId", id)
	}
	return t, nil
}

// snapshot describes t. Called with b.mu held.
func (b *Browser) snapshot(ctx context.Context, t *tab) model.Tab {
	out := model.Tab{ID: t.id, Active: t.id == b.active, Loading: t.loading, WindowID: 1}
	if len(t.history) > 0 {
		out.URL = t.history[t.pos].url
	}
	if f := t.top(); f != nil {
		out.URL, out.Title = f.identity(ctx)
	}
	return out
}

// ListTabs returns tabs in creation order.
func (b *Browser) ListTabs(ctx context.Context) ([]model.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Tab, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.snapshot(ctx, b.tabs[id]))
	}
	return out, nil
}

// ActiveTab returns the focused tab.
func (b *Browser) ActiveTab(ctx context.Context) (model.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[b.active]
	if !ok {
		return model.Tab{}, bridgeerr.Newf(bridgeerr.CodeTabNotFound, "no tab is open")
	}
	return b.snapshot(ctx, t), nil
}

// FocusTab makes tabID the active tab.
func (b *Browser) FocusTab(ctx context.Context, tabID int) (model.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.tab(tabID)
	if err != nil {
		return model.Tab{}, err
	}
	b.active = t.id
	return b.snapshot(ctx, t), nil
}

// CreateTab opens a tab and loads its first document.
func (b *Browser) CreateTab(ctx context.Context, opts platform.CreateOptions) (model.Tab, error) {
	target := opts.URL
	if target == "" {
		target = "about:blank"
	}
	var frames []*frame
	var err error
	b.mu.Lock()
	id := b.nextTab
	b.nextTab++
	b.mu.Unlock()

	if opts.HTML != "" {
		frames, err = b.loadMarkup(ctx, id, opts.HTML, target)
	} else {
		frames, err = b.load(ctx, id, target)
	}
	if err != nil {
		return model.Tab{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	t := &tab{id: id, history: []entry{{url: target, html: opts.HTML}}, frames: frames}
	b.tabs[id] = t
	b.order = append(b.order, id)
	if opts.Active == nil || *opts.Active || b.active == 0 {
		b.active = id
	}
	b.log.Info("tab created", "tab", id, "url", target, "frames", len(frames))
	return b.snapshot(ctx, t), nil
}

// CloseTab closes tabID. Closing the active tab activates the most recently
// created remaining tab.
func (b *Browser) CloseTab(_ context.Context, tabID int) error {
	b.mu.Lock()
	t, err := b.tab(tabID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	delete(b.tabs, tabID)
	for i, id := range b.order {
		if id == tabID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if b.active == tabID {
		b.active = 0
		if n := len(b.order); n > 0 {
			b.active = b.order[n-1]
		}
	}
	frames := t.frames
	b.mu.Unlock()

	for _, f := range frames {
		f.stop()
	}
	b.log.Info("tab closed", "tab", tabID)
	return nil
}

// Navigate loads rawURL in tabID, dropping any forward history.
func (b *Browser) Navigate(ctx context.Context, tabID int, rawURL string) (model.Tab, error) {
	return b.goTo(ctx, tabID, func(t *tab) (entry, bool) {
		return entry{url: rawURL}, true
	}, func(t *tab) {
		t.history = append(t.history[:t.pos+1], entry{url: rawURL})
		t.pos = len(t.history) - 1
	})
}

// GoBack moves one entry back in the tab's history. At the first entry it
// does nothing.
func (b *Browser) GoBack(ctx context.Context, tabID int) (model.Tab, error) {
	return b.goTo(ctx, tabID, func(t *tab) (entry, bool) {
		if t.pos == 0 {
			return entry{}, false
		}
		return t.history[t.pos-1], true
	}, func(t *tab) { t.pos-- })
}

// GoForward moves one entry forward in the tab's history.
func (b *Browser) GoForward(ctx context.Context, tabID int) (model.Tab, error) {
	return b.goTo(ctx, tabID, func(t *tab) (entry, bool) {
		if t.pos >= len(t.history)-1 {
			return entry{}, false
		}
		return t.history[t.pos+1], true
	}, func(t *tab) { t.pos++ })
}

func (b *Browser) goTo(ctx context.Context, tabID int, next func(*tab) (entry, bool), commit func(*tab)) (model.Tab, error) {
	b.mu.Lock()
	t, err := b.tab(tabID)
	if err != nil {
		b.mu.Unlock()
		return model.Tab{}, err
	}
	target, ok := next(t)
	if !ok {
		snap := b.snapshot(ctx, t)
		b.mu.Unlock()
		return snap, nil
	}
	t.loading = true
	b.mu.Unlock()

	var frames []*frame
	if target.html != "" {
		frames, err = b.loadMarkup(ctx, tabID, target.html, target.url)
	} else {
		frames, err = b.load(ctx, tabID, target.url)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	t.loading = false
	if err != nil {
		return model.Tab{}, err
	}
	if _, open := b.tabs[tabID]; !open {
		for _, f := range frames {
			f.stop()
		}
		return model.Tab{}, bridgeerr.Newf(bridgeerr.CodeTabNotFound, "tab %d closed during navigation", tabID).With("tabId", tabID)
	}
	old := t.frames
	t.frames = frames
	commit(t)
	for _, f := range old {
		go f.stop()
	}
	b.log.Info("navigated", "tab", tabID, "url", target.url)
	return b.snapshot(ctx, t), nil
}

// Frames lists the frames of tabID, top frame first.
func (b *Browser) Frames(_ context.Context, tabID int) ([]model.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.tab(tabID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Frame, 0, len(t.frames))
	for _, f := range t.frames {
		out = append(out, f.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Frame returns the relay of one reachable frame.
func (b *Browser) Frame(_ context.Context, tabID, frameID int) (platform.FrameTarget, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.tab(tabID)
	if err != nil {
		return nil, err
	}
	for _, f := range t.frames {
		if f.info.ID != frameID {
			continue
		}
		if f.relay == nil {
			return nil, bridgeerr.Newf(bridgeerr.CodeFrameUnreachable, "frame %d (%s) is cross-origin", frameID, f.info.URL).
				With("tabId", tabID).With("frameId", frameID)
		}
		return f.relay, nil
	}
	return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "tab %d has no frame %d", tabID, frameID).
		With("tabId", tabID).With("frameId", frameID)
}

// Source returns the current markup of the tab's top document.
func (b *Browser) Source(ctx context.Context, tabID int) (string, error) {
	b.mu.Lock()
	t, err := b.tab(tabID)
	var top *frame
	if err == nil {
		top = t.top()
	}
	b.mu.Unlock()
	if err != nil {
		return "", err
	}
	if top == nil || top.loop == nil {
		return "", bridgeerr.Newf(bridgeerr.CodeFrameUnreachable, "tab %d has no document", tabID)
	}
	var markup string
	err = top.loop.Do(ctx, func() {
		if root := top.doc.DocumentElement(); root != nil {
			markup = "<!DOCTYPE html>" + root.OuterHTML()
		}
	})
	if err != nil {
		return "", err
	}
	return markup, nil
}

// load fetches rawURL as the top frame of a tab and discovers its iframes.
func (b *Browser) load(ctx context.Context, tabID int, rawURL string) ([]*frame, error) {
	top, err := b.fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rawURL, err)
	}
	return b.attach(ctx, tabID, top), nil
}

func (b *Browser) loadMarkup(ctx context.Context, tabID int, markup, pageURL string) ([]*frame, error) {
	top, err := b.inline(markup, pageURL)
	if err != nil {
		return nil, err
	}
	return b.attach(ctx, tabID, top), nil
}

// attach walks the frame tree under top and starts a page context for every
// reachable frame. Cross-origin frames are listed but get no context.
func (b *Browser) attach(ctx context.Context, tabID int, top *loaded) []*frame {
	var frames []*frame
	var walk func(l *loaded, parentID, depth int)
	walk = func(l *loaded, parentID, depth int) {
		id := len(frames)
		f := b.start(tabID, id, parentID, l)
		frames = append(frames, f)
		if depth >= maxFrameDepth {
			return
		}
		for _, c := range iframes(l.doc) {
			if c.inline {
				child, err := b.inline(c.srcdoc, "about:srcdoc")
				if err != nil {
					b.log.Warn("srcdoc frame failed to parse", "tab", tabID, "error", err)
					continue
				}
				child.doc.URL = l.doc.URL
				f := len(frames)
				walk(child, id, depth+1)
				frames[f].info.Name = c.name
				continue
			}
			childURL, err := l.doc.URL.Parse(c.src)
			if err != nil {
				continue
			}
			if !sameOrigin(frames[0].url, childURL) {
				frames = append(frames, &frame{info: model.Frame{
					ID: len(frames), ParentID: id, TabID: tabID, URL: childURL.String(), Name: c.name,
				}})
				continue
			}
			child, err := b.fetch(ctx, childURL.String())
			if err != nil {
				b.log.Warn("frame failed to load", "tab", tabID, "url", childURL.String(), "error", err)
				continue
			}
			f := len(frames)
			walk(child, id, depth+1)
			frames[f].info.Name = c.name
		}
	}
	walk(top, -1, 0)
	return frames
}
