package headless

import (
	"context"
	"net/url"
	"time"

	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/page"
	"github.com/mj1618/web-bridge/internal/relay"
)

// frame is one document in a tab. Cross-origin frames have no loop, engine
// or relay.
type frame struct {
	info  model.Frame
	url   *url.URL
	title string

	loop   *dom.Loop
	doc    *dom.Document
	engine *page.Engine
	relay  *relay.Relay
	cancel context.CancelFunc
	done   chan struct{}
}

// start gives l its own page loop, engine and relay.
func (b *Browser) start(tabID, id, parentID int, l *loaded) *frame {
	doc := l.doc
	doc.Viewport = b.opts.Viewport
	f := &frame{
		info: model.Frame{
			ID:         id,
			ParentID:   parentID,
			TabID:      tabID,
			URL:        doc.URL.String(),
			Accessible: true,
		},
		url:   doc.URL,
		title: doc.Title(),
		loop:  dom.NewLoop(),
		doc:   doc,
		done:  make(chan struct{}),
	}

	opts := b.opts.Page
	opts.FrameID = id
	f.engine = page.New(f.loop, doc, opts)

	down := make(chan relay.DownCommand)
	up := make(chan relay.UpEvent, 16)
	f.relay = relay.New(down, relay.Options{
		TabID:   tabID,
		FrameID: id,
		Timeout: b.opts.RelayTimeout,
		Extend:  page.CommandDeadline,
		Logger:  b.opts.Logger,
	})
	f.relay.OnMutation(b.emit)

	ctx, cancel := context.WithCancel(b.ctx)
	f.cancel = cancel
	if err := f.engine.Start(ctx); err != nil {
		b.log.Warn("page context failed to start", "tab", tabID, "frame", id, "error", err)
	}
	if l.entry.URL != "" {
		entry := l.entry
		f.loop.Post(func() { doc.RecordNetwork(entry) })
	}
	go func() { _ = f.relay.Run(ctx, up) }()
	go func() {
		defer close(f.done)
		if err := f.engine.Serve(ctx, down, up); err != nil && ctx.Err() == nil {
			b.log.Warn("page context stopped", "tab", tabID, "frame", id, "error", err)
		}
	}()
	return f
}

// stop ends the frame's page context.
func (f *frame) stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.loop.Stop()
	<-f.done
}

// identity returns the frame's current URL and title, falling back to the
// values seen at load when the page is busy.
func (f *frame) identity(ctx context.Context) (string, string) {
	if f.loop == nil {
		return f.info.URL, f.title
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	u, title := f.info.URL, f.title
	_ = f.loop.Do(ctx, func() {
		u, title = f.doc.URL.String(), f.doc.Title()
	})
	return u, title
}
