// Package transport owns the bridge connection: the primary websocket
// channel, the framed secondary fallback, correlation ids and the reconnect
// loop.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/metrics"
	"github.com/mj1618/web-bridge/internal/transport/nativemsg"
)

const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultSecondaryTimeout = 10 * time.Second
	logLimit                = 300
)

// Kind names a channel.
type Kind string

const (
	Primary   Kind = "primary"
	Secondary Kind = "secondary"
)

// Handler executes commands the bridge sends unprompted.
type Handler interface {
	Dispatch(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Dispatch(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, action, payload)
}

// Options configures a ConnectionManager.
type Options struct {
	URL            string
	Identity       Identity
	ReconnectDelay time.Duration
	Header         http.Header
	Dialer         *websocket.Dialer

	// Secondary opens the fallback channel. Nil disables the fallback.
	Secondary        func(ctx context.Context) (*nativemsg.Conn, error)
	SecondaryTimeout time.Duration

	Handler Handler
	Logger  *slog.Logger
}

// State is a snapshot of the connection.
type State struct {
	Connected  bool   `json:"connected"`
	Channel    Kind   `json:"channel,omitempty"`
	Pending    int    `json:"pending"`
	Reconnects uint64 `json:"reconnects"`
}

// PendingRequest is one outbound request awaiting its reply.
type PendingRequest struct {
	ID      int64
	Action  string
	Created time.Time

	via   *link
	timer *time.Timer
	done  chan result
}

type result struct {
	raw json.RawMessage
	err error
}

// msgConn is the part of a channel the manager needs.
type msgConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	Close() error
}

type link struct {
	kind Kind
	conn msgConn
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() { _ = l.conn.Close() })
}

// wsConn serializes writes on a gorilla connection.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// ConnectionManager keeps one live channel to the bridge and correlates
// requests with replies.
type ConnectionManager struct {
	opts Options
	log  *slog.Logger

	seq        atomic.Int64
	reconnects atomic.Uint64

	mu        sync.Mutex
	pending   map[int64]*PendingRequest
	primary   *link
	secondary *link

	stop      chan struct{}
	stopOnce  sync.Once
	handlerWG sync.WaitGroup
}

// New creates a manager. Nothing is dialed until Run.
func New(opts Options) *ConnectionManager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.SecondaryTimeout <= 0 {
		opts.SecondaryTimeout = DefaultSecondaryTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	}
	return &ConnectionManager{
		opts:    opts,
		log:     logging.For(opts.Logger, "transport"),
		pending: make(map[int64]*PendingRequest),
		stop:    make(chan struct{}),
	}
}

// Run dials the bridge and keeps reconnecting until ctx ends or Close is
// called.
func (m *ConnectionManager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stop:
			cancel()
		case <-ctx.Done():
		}
		// Unblocks reads in serve.
		m.shutdown()
	}()

	for {
		l, err := m.dialPrimary(ctx)
		if err == nil {
			m.closeSecondary()
			m.serve(ctx, l)
		} else if ctx.Err() == nil {
			m.log.Warn("bridge dial failed", "url", m.opts.URL, "error", err)
			m.startSecondary(ctx)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.reconnects.Add(1)
		metrics.Reconnects.Inc()
		m.log.Debug("reconnect scheduled", "delay", m.opts.ReconnectDelay)
		t := time.NewTimer(m.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Close stops the reconnect loop, closes open channels and rejects every
// pending request.
func (m *ConnectionManager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.shutdown()
	return nil
}

func (m *ConnectionManager) shutdown() {
	m.mu.Lock()
	p, s := m.primary, m.secondary
	m.mu.Unlock()
	if p != nil {
		p.close()
	}
	if s != nil {
		s.close()
	}
	m.rejectAll(nil)
}

func (m *ConnectionManager) dialPrimary(ctx context.Context) (*link, error) {
	header := m.opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if m.opts.Identity.UserAgent != "" && header.Get("User-Agent") == "" {
		header.Set("User-Agent", m.opts.Identity.UserAgent)
	}
	ws, resp, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	l := &link{kind: Primary, conn: &wsConn{ws: ws}}
	if err := m.identify(l); err != nil {
		l.close()
		return nil, err
	}
	m.mu.Lock()
	m.primary = l
	m.mu.Unlock()
	metrics.ChannelUp.WithLabelValues(string(Primary)).Set(1)
	m.log.Info("bridge connected", "url", m.opts.URL)
	return l, nil
}

func (m *ConnectionManager) startSecondary(ctx context.Context) {
	if m.opts.Secondary == nil {
		return
	}
	m.mu.Lock()
	running := m.secondary != nil
	m.mu.Unlock()
	if running {
		return
	}
	conn, err := m.opts.Secondary(ctx)
	if err != nil {
		m.log.Warn("secondary channel unavailable", "error", err)
		return
	}
	l := &link{kind: Secondary, conn: conn}
	if err := m.identify(l); err != nil {
		m.log.Warn("secondary identify failed", "error", err)
		l.close()
		return
	}
	m.mu.Lock()
	m.secondary = l
	m.mu.Unlock()
	metrics.ChannelUp.WithLabelValues(string(Secondary)).Set(1)
	m.log.Info("using secondary channel")
	go m.serve(ctx, l)
}

func (m *ConnectionManager) closeSecondary() {
	m.mu.Lock()
	s := m.secondary
	m.mu.Unlock()
	if s != nil {
		m.log.Info("primary channel restored, closing secondary")
		s.close()
	}
}

func (m *ConnectionManager) identify(l *link) error {
	return m.write(l, Message{
		Type:       TypeIdentify,
		Name:       m.opts.Identity.Name,
		Version:    m.opts.Identity.Version,
		UserAgent:  m.opts.Identity.UserAgent,
		InstanceID: logging.InstanceID(),
	})
}

func (m *ConnectionManager) write(l *link, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	m.log.Debug("send", "channel", l.kind, "frame", logging.Truncate(string(data), logLimit))
	return l.conn.WriteMessage(data)
}

// serve reads frames from l until it fails, then tears it down.
func (m *ConnectionManager) serve(ctx context.Context, l *link) {
	var err error
	for {
		var data []byte
		data, err = l.conn.ReadMessage()
		if err != nil {
			break
		}
		m.log.Debug("recv", "channel", l.kind, "frame", logging.Truncate(string(data), logLimit))
		var msg Message
		if jerr := json.Unmarshal(data, &msg); jerr != nil {
			m.log.Warn("dropping malformed frame", "channel", l.kind, "error", jerr)
			continue
		}
		m.receive(ctx, l, msg)
	}

	l.close()
	m.mu.Lock()
	switch l {
	case m.primary:
		m.primary = nil
	case m.secondary:
		m.secondary = nil
	}
	m.mu.Unlock()
	metrics.ChannelUp.WithLabelValues(string(l.kind)).Set(0)
	m.rejectAll(l)
	if ctx.Err() == nil {
		m.log.Warn("channel closed", "channel", l.kind, "error", err)
	}
}

func (m *ConnectionManager) receive(ctx context.Context, l *link, msg Message) {
	if msg.Action == "" {
		if msg.ID != 0 && m.settle(msg.ID, result{raw: msg.Response, err: msg.Error.err()}) {
			return
		}
		if msg.Type == "" {
			m.log.Debug("reply for unknown request", "id", msg.ID)
		}
		return
	}
	if m.opts.Handler == nil {
		_ = m.write(l, Message{ID: msg.ID, Error: wireErr(bridgeerr.Newf(bridgeerr.CodeUnsupported, "no handler for %s", msg.Action))})
		return
	}
	m.handlerWG.Add(1)
	go func() {
		defer m.handlerWG.Done()
		res, err := m.opts.Handler.Dispatch(ctx, msg.Action, msg.Payload)
		reply := Message{ID: msg.ID}
		if err != nil {
			reply.Error = wireErr(err)
		} else {
			if len(res) == 0 {
				res = json.RawMessage("null")
			}
			reply.Response = res
		}
		if werr := m.write(l, reply); werr != nil {
			m.log.Warn("reply not delivered", "id", msg.ID, "action", msg.Action, "error", werr)
		}
	}()
}

// Send issues a request to the bridge and waits for its reply. Requests on
// the primary channel wait as long as ctx allows; on the secondary channel
// they also expire after SecondaryTimeout.
func (m *ConnectionManager) Send(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	l := m.active()
	if l == nil {
		return nil, bridgeerr.New(bridgeerr.CodeTransportDisconnected, "bridge is not connected", bridgeerr.ErrTransportDisconnected)
	}
	p := &PendingRequest{
		ID:      m.seq.Add(1),
		Action:  action,
		Created: time.Now(),
		via:     l,
		done:    make(chan result, 1),
	}
	m.mu.Lock()
	m.pending[p.ID] = p
	if l.kind == Secondary {
		id, d := p.ID, m.opts.SecondaryTimeout
		p.timer = time.AfterFunc(d, func() {
			m.settle(id, result{err: bridgeerr.Newf(bridgeerr.CodeRequestTimeout, "%s: no reply within %s", action, d).
				With("action", action).With("channel", string(Secondary))})
		})
	}
	metrics.PendingRequests.Set(float64(len(m.pending)))
	m.mu.Unlock()

	if err := m.write(l, Message{ID: p.ID, Action: action, Payload: payload}); err != nil {
		m.settle(p.ID, result{err: bridgeerr.New(bridgeerr.CodeTransportDisconnected, "send "+action+": "+err.Error(), bridgeerr.ErrTransportDisconnected)})
	}

	select {
	case r := <-p.done:
		return r.raw, r.err
	case <-ctx.Done():
		m.settle(p.ID, result{err: ctx.Err()})
		return nil, ctx.Err()
	}
}

// Publish sends an uncorrelated frame such as a mutation report.
func (m *ConnectionManager) Publish(typ string, payload any) error {
	l := m.active()
	if l == nil {
		return bridgeerr.ErrTransportDisconnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	return m.write(l, Message{Type: typ, Payload: raw})
}

// settle fires p exactly once and removes it. It reports whether id was
// still pending.
func (m *ConnectionManager) settle(id int64, r result) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
		metrics.PendingRequests.Set(float64(len(m.pending)))
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- r
	return true
}

// rejectAll rejects the requests sent on l, or every request when l is nil.
func (m *ConnectionManager) rejectAll(l *link) {
	m.mu.Lock()
	var ids []int64
	for id, p := range m.pending {
		if l == nil || p.via == l {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.settle(id, result{err: bridgeerr.New(bridgeerr.CodeTransportDisconnected, "transport disconnected", bridgeerr.ErrTransportDisconnected)})
	}
	if len(ids) > 0 {
		m.log.Debug("rejected pending requests", "count", len(ids))
	}
}

func (m *ConnectionManager) active() *link {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primary != nil {
		return m.primary
	}
	return m.secondary
}

// State reports the current connection.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{Pending: len(m.pending), Reconnects: m.reconnects.Load()}
	switch {
	case m.primary != nil:
		s.Connected, s.Channel = true, Primary
	case m.secondary != nil:
		s.Connected, s.Channel = true, Secondary
	}
	return s
}

// Pending returns the number of requests awaiting a reply.
func (m *ConnectionManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Wait blocks until in-flight inbound command handlers have replied.
func (m *ConnectionManager) Wait() {
	m.handlerWG.Wait()
}
