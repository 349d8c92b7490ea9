// Package relay sits between the orchestrator and one page context. It
// holds commands until the page reports ready, forwards them down with a
// fresh request id and waits a bounded time for the matching reply.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/model"
)

// DefaultTimeout bounds the wait for a page reply.
const DefaultTimeout = 5 * time.Second

// Options configures a Relay.
type Options struct {
	TabID   int
	FrameID int
	Timeout time.Duration
	// Extend returns extra time a command may need beyond Timeout, such as a
	// caller-supplied wait timeout.
	Extend func(action string, payload json.RawMessage) time.Duration
	Logger *slog.Logger
}

// Relay forwards commands to one page context.
type Relay struct {
	down chan<- DownCommand
	opts Options
	log  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	seq       atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan UpEvent
	sink    func(model.MutationReport)
}

// New creates a relay that sends commands on down. Call Run to consume the
// page's events.
func New(down chan<- DownCommand, opts Options) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Relay{
		down:    down,
		opts:    opts,
		log:     logging.For(opts.Logger, "relay").With("tab", opts.TabID, "frame", opts.FrameID),
		ready:   make(chan struct{}),
		pending: make(map[string]chan UpEvent),
	}
}

// FrameID returns the frame this relay serves.
func (r *Relay) FrameID() int { return r.opts.FrameID }

// Ready is closed once the page has announced itself.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// OnMutation sets the receiver of the page's mutation reports.
func (r *Relay) OnMutation(fn func(model.MutationReport)) {
	r.mu.Lock()
	r.sink = fn
	r.mu.Unlock()
}

// Run consumes page events until ctx ends or up is closed.
func (r *Relay) Run(ctx context.Context, up <-chan UpEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-up:
			if !ok {
				return nil
			}
			r.receive(ev)
		}
	}
}

func (r *Relay) receive(ev UpEvent) {
	if ev.Source != SourcePage {
		r.log.Debug("ignoring event with foreign source", "source", ev.Source)
		return
	}
	switch ev.Kind {
	case KindReady:
		r.readyOnce.Do(func() {
			r.log.Debug("page ready")
			close(r.ready)
		})
	case KindReply:
		r.mu.Lock()
		ch, ok := r.pending[ev.RequestID]
		delete(r.pending, ev.RequestID)
		r.mu.Unlock()
		if !ok {
			r.log.Debug("reply for unknown request", "requestId", ev.RequestID)
			return
		}
		ch <- ev
	case KindMutation:
		if ev.Mutation == nil {
			return
		}
		m := *ev.Mutation
		m.TabID = r.opts.TabID
		m.FrameID = r.opts.FrameID
		r.mu.Lock()
		sink := r.sink
		r.mu.Unlock()
		if sink != nil {
			sink(m)
		}
	default:
		r.log.Debug("ignoring event of unknown kind", "kind", ev.Kind)
	}
}

// Handle sends one command to the page and returns its result. A command
// issued before the page is ready waits for it; only ctx ends that wait.
func (r *Relay) Handle(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	select {
	case <-r.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	id := strconv.FormatUint(r.seq.Add(1), 10)
	ch := make(chan UpEvent, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	timeout := r.opts.Timeout
	if r.opts.Extend != nil {
		if extra := r.opts.Extend(action, payload); extra > 0 {
			timeout += extra
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	cmd := DownCommand{Source: SourceRelay, RequestID: id, Action: action, Payload: payload}
	select {
	case r.down <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, r.timeoutErr(action, timeout)
	}

	select {
	case ev := <-ch:
		if ev.Error != nil {
			return nil, bridgeerr.FromWire(ev.Error)
		}
		return ev.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, r.timeoutErr(action, timeout)
	}
}

func (r *Relay) timeoutErr(action string, d time.Duration) error {
	r.log.Warn("page did not reply", "action", action, "timeout", d)
	return bridgeerr.Newf(bridgeerr.CodeRequestTimeout, "page did not answer %s within %s", action, d).
		With("action", action).
		With("frameId", r.opts.FrameID)
}
