// Package page is the page-context automation engine: it indexes and
// locates elements, drives synthetic input, reads forms, captures console
// and network activity and watches the DOM for significant change.
package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/relay"
)

// Ambiguity policies for selectors that match several elements.
const (
	AmbiguityBestEffort = "best-effort"
	AmbiguityStrict     = "strict"
)

// Options configures an Engine. Zero values take the defaults.
type Options struct {
	FrameID        int
	Ambiguity      string
	SettleDelay    time.Duration
	WatchDebounce  time.Duration
	WatchThreshold int
	ConsoleBuffer  int
	NetworkBuffer  int
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Ambiguity == "" {
		o.Ambiguity = AmbiguityBestEffort
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 300 * time.Millisecond
	}
	if o.WatchDebounce <= 0 {
		o.WatchDebounce = 250 * time.Millisecond
	}
	if o.WatchThreshold <= 0 {
		o.WatchThreshold = 10
	}
	if o.ConsoleBuffer <= 0 {
		o.ConsoleBuffer = 500
	}
	if o.NetworkBuffer <= 0 {
		o.NetworkBuffer = 200
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

type handlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Engine runs automation commands against one document. Every DOM access
// happens on the document's loop.
type Engine struct {
	loop *dom.Loop
	doc  *dom.Document
	opts Options
	log  *slog.Logger

	console *Ring[dom.ConsoleEntry]
	network *Ring[dom.NetworkEntry]
	watcher *Watcher
	hovered *dom.Node

	handlers map[string]handlerFunc

	startOnce sync.Once
	startErr  error
	mu        sync.Mutex
	sink      func(model.MutationReport)
}

// New creates an engine for doc. doc must only be touched from loop.
func New(loop *dom.Loop, doc *dom.Document, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		loop:    loop,
		doc:     doc,
		opts:    opts,
		log:     logging.For(opts.Logger, "page").With("frame", opts.FrameID),
		console: NewRing[dom.ConsoleEntry](opts.ConsoleBuffer),
		network: NewRing[dom.NetworkEntry](opts.NetworkBuffer),
	}
	e.watcher = NewWatcher(doc, loop, opts.WatchDebounce, opts.WatchThreshold, opts.FrameID, e.log, e.emit)
	e.handlers = e.commands()
	return e
}

// Document returns the engine's document. Callers must use it from the loop.
func (e *Engine) Document() *dom.Document { return e.doc }

// Loop returns the page loop.
func (e *Engine) Loop() *dom.Loop { return e.loop }

// Start installs the console and network capture hooks. It is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.startOnce.Do(func() {
		e.startErr = e.loop.Do(ctx, func() {
			e.doc.OnConsole(e.console.Push)
			e.doc.OnNetwork(e.network.Push)
		})
	})
	return e.startErr
}

// OnMutation sets the receiver of mutation reports. It is called on the loop.
func (e *Engine) OnMutation(fn func(model.MutationReport)) {
	e.mu.Lock()
	e.sink = fn
	e.mu.Unlock()
}

func (e *Engine) emit(r model.MutationReport) {
	e.mu.Lock()
	fn := e.sink
	e.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// Handle runs one command.
func (e *Engine) Handle(ctx context.Context, action string, payload json.RawMessage) (any, error) {
	h, ok := e.handlers[action]
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.CodeUnknownAction, "unknown page action %q", action)
	}
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := h(ctx, payload)
	if err != nil {
		e.log.Debug("command failed", "action", action, "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	e.log.Debug("command done", "action", action, "elapsed", time.Since(start))
	return res, nil
}

// Actions lists the commands the engine understands.
func (e *Engine) Actions() []string {
	out := make([]string, 0, len(e.handlers))
	for k := range e.handlers {
		out = append(out, k)
	}
	return out
}

// Serve answers DownCommands until ctx ends, down closes or the loop stops.
// It signals readiness once the capture hooks are installed. Commands run
// concurrently; each DOM step is serialized by the loop.
func (e *Engine) Serve(ctx context.Context, down <-chan relay.DownCommand, up chan<- relay.UpEvent) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	send := func(ev relay.UpEvent) {
		ev.Source = relay.SourcePage
		select {
		case up <- ev:
		case <-ctx.Done():
		}
	}
	e.OnMutation(func(r model.MutationReport) {
		// emit runs on the loop; never block it on the relay.
		go send(relay.UpEvent{Kind: relay.KindMutation, Mutation: &r})
	})
	send(relay.UpEvent{Kind: relay.KindReady})

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.loop.Done():
			return dom.ErrLoopStopped
		case cmd, ok := <-down:
			if !ok {
				return nil
			}
			if cmd.Source != relay.SourceRelay {
				e.log.Debug("ignoring command with foreign source", "source", cmd.Source)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				send(e.reply(ctx, cmd))
			}()
		}
	}
}

func (e *Engine) reply(ctx context.Context, cmd relay.DownCommand) relay.UpEvent {
	ev := relay.UpEvent{Kind: relay.KindReply, RequestID: cmd.RequestID}
	res, err := e.Handle(ctx, cmd.Action, cmd.Payload)
	if err == nil {
		var raw []byte
		raw, err = json.Marshal(res)
		ev.Result = raw
	}
	if err != nil {
		ev.Result = nil
		ev.Error = bridgeerr.ToWire(err)
	}
	return ev
}

// do runs fn on the loop and returns its error.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	var ferr error
	if err := e.loop.Do(ctx, func() { ferr = fn() }); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return bridgeerr.New(bridgeerr.CodeRequestTimeout, "page did not respond in time", bridgeerr.ErrRequestTimeout)
		}
		return fmt.Errorf("page loop: %w", err)
	}
	return ferr
}

// resolve finds the element an interaction should target, applying the
// ambiguity policy. It runs on the loop.
func (e *Engine) resolve(selector string) (*dom.Node, error) {
	if selector == "" {
		return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "selector is required")
	}
	r, err := FindElementWithDebug(e.doc, selector, e.opts.FrameID)
	if err != nil {
		return nil, err
	}
	if err := r.Err(e.opts.Ambiguity == AmbiguityStrict); err != nil {
		return nil, err
	}
	if r.Status == StatusAmbiguous {
		e.log.Warn("ambiguous selector", "selector", selector, "matches", r.MatchCount, "picked", r.Element.Selector)
	}
	return r.node, nil
}

// queryOne returns the first element matching selector, visible or not.
func queryOne(doc *dom.Document, selector string) (*dom.Node, error) {
	if selector == "" {
		return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "selector is required")
	}
	n, err := doc.Query(selector)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, bridgeerr.Newf(bridgeerr.CodeElementNotFound, "no element matches %s", selector).
			With("suggestions", Suggest(doc, selector))
	}
	return n, nil
}
