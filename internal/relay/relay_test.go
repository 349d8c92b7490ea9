package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/model"
)

type harness struct {
	relay *Relay
	down  chan DownCommand
	up    chan UpEvent
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{down: make(chan DownCommand, 4), up: make(chan UpEvent, 4)}
	h.relay = New(h.down, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.relay.Run(ctx, h.up) }()
	return h
}

func (h *harness) ready() {
	h.up <- UpEvent{Source: SourcePage, Kind: KindReady}
}

// echo answers every command with its own action name.
func (h *harness) echo(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.down:
			res, _ := json.Marshal(map[string]string{"action": cmd.Action})
			h.up <- UpEvent{Source: SourcePage, Kind: KindReply, RequestID: cmd.RequestID, Result: res}
		}
	}
}

func TestHandle_WaitsForReady(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.echo(ctx)

	type result struct {
		raw json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := h.relay.Handle(ctx, "get_page_info", nil)
		done <- result{raw, err}
	}()

	select {
	case <-done:
		t.Fatal("command completed before the page was ready")
	case <-time.After(50 * time.Millisecond):
	}
	h.ready()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.JSONEq(t, `{"action":"get_page_info"}`, string(r.raw))
	case <-time.After(time.Second):
		t.Fatal("command never completed")
	}
}

func TestHandle_DownCommandShape(t *testing.T) {
	h := newHarness(t, Options{})
	h.ready()
	go func() { _, _ = h.relay.Handle(context.Background(), "click", json.RawMessage(`{"selector":"#a"}`)) }()

	select {
	case cmd := <-h.down:
		assert.Equal(t, SourceRelay, cmd.Source)
		assert.Equal(t, "click", cmd.Action)
		assert.NotEmpty(t, cmd.RequestID)
		assert.JSONEq(t, `{"selector":"#a"}`, string(cmd.Payload))
	case <-time.After(time.Second):
		t.Fatal("no command sent down")
	}
}

func TestHandle_Timeout(t *testing.T) {
	h := newHarness(t, Options{Timeout: 60 * time.Millisecond})
	h.ready()
	go func() { <-h.down }()

	start := time.Now()
	_, err := h.relay.Handle(context.Background(), "click", nil)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, bridgeerr.ErrRequestTimeout)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestHandle_ExtendedTimeout(t *testing.T) {
	h := newHarness(t, Options{
		Timeout: 30 * time.Millisecond,
		Extend: func(action string, _ json.RawMessage) time.Duration {
			if action == "wait_for_selector" {
				return 100 * time.Millisecond
			}
			return 0
		},
	})
	h.ready()
	go func() {
		cmd := <-h.down
		time.Sleep(60 * time.Millisecond)
		h.up <- UpEvent{Source: SourcePage, Kind: KindReply, RequestID: cmd.RequestID, Result: json.RawMessage(`true`)}
	}()

	raw, err := h.relay.Handle(context.Background(), "wait_for_selector", nil)
	require.NoError(t, err)
	assert.Equal(t, "true", string(raw))
}

func TestHandle_ErrorReply(t *testing.T) {
	h := newHarness(t, Options{})
	h.ready()
	go func() {
		cmd := <-h.down
		h.up <- UpEvent{Source: SourcePage, Kind: KindReply, RequestID: cmd.RequestID, Error: &bridgeerr.Wire{
			Code:    bridgeerr.CodeElementAmbiguous,
			Message: ".btn matches 3 elements",
			Details: map[string]any{"matchCount": 3},
		}}
	}()

	_, err := h.relay.Handle(context.Background(), "click", nil)
	require.ErrorIs(t, err, bridgeerr.ErrElementAmbiguous)
	var be *bridgeerr.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 3, be.Details["matchCount"])
}

func TestRelay_IgnoresForeignSource(t *testing.T) {
	h := newHarness(t, Options{})
	h.up <- UpEvent{Source: "some-extension", Kind: KindReady}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err := h.relay.Handle(ctx, "click", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-h.relay.Ready():
		t.Fatal("foreign ready event was accepted")
	default:
	}
}

func TestRelay_LateReplyIsDropped(t *testing.T) {
	h := newHarness(t, Options{Timeout: 30 * time.Millisecond})
	h.ready()
	ids := make(chan string, 1)
	go func() { ids <- (<-h.down).RequestID }()
	_, err := h.relay.Handle(context.Background(), "click", nil)
	require.ErrorIs(t, err, bridgeerr.ErrRequestTimeout)

	h.up <- UpEvent{Source: SourcePage, Kind: KindReply, RequestID: <-ids, Result: json.RawMessage(`1`)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.echo(ctx)
	raw, err := h.relay.Handle(context.Background(), "next", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"next"}`, string(raw))
}

func TestRelay_ForwardsMutations(t *testing.T) {
	h := newHarness(t, Options{TabID: 7, FrameID: 2})
	got := make(chan model.MutationReport, 1)
	h.relay.OnMutation(func(m model.MutationReport) { got <- m })

	h.up <- UpEvent{Source: SourcePage, Kind: KindMutation, Mutation: &model.MutationReport{
		HasNewForms: true,
		URL:         "https://example.test/signup",
		Title:       "Sign up",
	}}

	select {
	case m := <-got:
		assert.True(t, m.HasNewForms)
		assert.Equal(t, 7, m.TabID)
		assert.Equal(t, 2, m.FrameID)
		assert.Equal(t, "https://example.test/signup", m.URL)
		assert.Equal(t, "Sign up", m.Title)
	case <-time.After(time.Second):
		t.Fatal("mutation not forwarded")
	}
}
