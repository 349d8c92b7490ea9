package server

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dispatch"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/page"
	"github.com/mj1618/web-bridge/internal/platform"
)

type call struct {
	action  string
	payload string
}

type recorder struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]json.RawMessage
	fail    map[string]error
}

func (r *recorder) HandleCommand(_ context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{action, string(payload)})
	if err := r.fail[action]; err != nil {
		return nil, err
	}
	if res, ok := r.replies[action]; ok {
		return res, nil
	}
	return json.RawMessage(`{}`), nil
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tl, ok := lookup(name)
	require.True(t, ok, "no tool %s", name)
	res, err := s.handler(tl)(context.Background(), request(args))
	require.NoError(t, err)
	return res
}

func TestToolsCoverTheCommandVocabulary(t *testing.T) {
	engine := page.New(dom.NewLoop(), dom.MustParse(""), page.Options{})
	pageCmds := map[string]bool{}
	for _, a := range engine.Actions() {
		pageCmds[a] = true
	}
	tabCmds := map[string]bool{}
	for _, a := range dispatch.New(&platform.Provider{}, nil).Commands() {
		tabCmds[a] = true
	}

	seen := map[string]bool{}
	for _, tl := range tools {
		assert.False(t, seen[tl.name], "duplicate tool %s", tl.name)
		seen[tl.name] = true
		if tl.tabLevel {
			assert.True(t, tabCmds[tl.name], "%s is not a tab command", tl.name)
		} else {
			assert.True(t, pageCmds[tl.name], "%s is not a page command", tl.name)
		}
	}
	var missing []string
	for a := range pageCmds {
		if !seen[a] && a != "index" {
			missing = append(missing, a)
		}
	}
	for a := range tabCmds {
		if !seen[a] {
			missing = append(missing, a)
		}
	}
	sort.Strings(missing)
	assert.Empty(t, missing, "commands without a tool")
}

func TestTool_ForwardsArgumentsAndRendersYAML(t *testing.T) {
	rec := &recorder{replies: map[string]json.RawMessage{
		"click": json.RawMessage(`{"selector":"#buy","text":"Buy now"}`),
	}}
	s := New(rec, Config{})

	res := callTool(t, s, "click", map[string]any{"selector": "#buy", "tabId": 2, "frameId": 1})
	assert.False(t, res.IsError)
	assert.Equal(t, "selector: '#buy'\ntext: Buy now\n", text(t, res))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "click", rec.calls[0].action)
	assert.JSONEq(t, `{"selector":"#buy","tabId":2,"frameId":1}`, rec.calls[0].payload)
}

func TestTool_ErrorsCarryCodeAndDetails(t *testing.T) {
	rec := &recorder{fail: map[string]error{
		"click": bridgeerr.Newf(bridgeerr.CodeElementAmbiguous, "3 elements match .btn").With("count", 3),
	}}
	s := New(rec, Config{})

	res := callTool(t, s, "click", map[string]any{"selector": ".btn"})
	assert.True(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, "code: element_ambiguous")
	assert.Contains(t, out, "count: 3")
}

func TestTool_Screenshot(t *testing.T) {
	rec := &recorder{replies: map[string]json.RawMessage{
		"screenshot": json.RawMessage(`{"tabId":1,"format":"jpg","data":"AAAA"}`),
	}}
	s := New(rec, Config{})

	res := callTool(t, s, "screenshot", map[string]any{"format": "jpg"})
	require.Len(t, res.Content, 1)
	img, ok := res.Content[0].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, "AAAA", img.Data)
}

func TestReadOnlyResultsAreCached(t *testing.T) {
	rec := &recorder{}
	s := New(rec, Config{CacheTTL: time.Minute})

	callTool(t, s, "list_elements", map[string]any{"limit": 5})
	callTool(t, s, "list_elements", map[string]any{"limit": 5})
	callTool(t, s, "list_elements", map[string]any{"limit": 6})
	assert.Len(t, rec.calls, 2)

	callTool(t, s, "fill", map[string]any{"selector": "#q", "value": "x"})
	callTool(t, s, "list_elements", map[string]any{"limit": 5})
	assert.Len(t, rec.calls, 4, "a write clears the cache")

	s.Invalidate()
	callTool(t, s, "list_elements", map[string]any{"limit": 5})
	assert.Len(t, rec.calls, 5)
}

func TestResultCache_TTL(t *testing.T) {
	c := NewResultCache(time.Second)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	n := 0
	fetch := func() (json.RawMessage, error) {
		n++
		return json.RawMessage(`[]`), nil
	}

	_, _ = c.Get("index", nil, fetch)
	_, _ = c.Get("index", nil, fetch)
	assert.Equal(t, 1, n)
	now = now.Add(2 * time.Second)
	_, _ = c.Get("index", nil, fetch)
	assert.Equal(t, 2, n)

	off := NewResultCache(0)
	_, _ = off.Get("index", nil, fetch)
	_, _ = off.Get("index", nil, fetch)
	assert.Equal(t, 4, n)
}

func TestDo(t *testing.T) {
	rec := &recorder{fail: map[string]error{
		"click": bridgeerr.Newf(bridgeerr.CodeElementNotFound, "nothing matches #go"),
	}}
	s := New(rec, Config{})
	steps := []any{
		map[string]any{"action": "fill", "selector": "#q", "value": "shoes"},
		map[string]any{"action": "click", "selector": "#go"},
		map[string]any{"action": "press_key", "key": "Enter"},
	}

	res, err := s.handleDo(context.Background(), request(map[string]any{"steps": steps, "tabId": 4}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	out := text(t, res)
	assert.Contains(t, out, "element_not_found")
	require.Len(t, rec.calls, 2, "stops at the first failure")
	assert.JSONEq(t, `{"selector":"#q","value":"shoes","tabId":4}`, rec.calls[0].payload)

	rec.calls = nil
	res, err = s.handleDo(context.Background(), request(map[string]any{"steps": steps, "stop-on-error": false}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Len(t, rec.calls, 3)
	assert.Equal(t, 3, strings.Count(text(t, res), "action:"))
}

func TestDo_RejectsBadSteps(t *testing.T) {
	s := New(&recorder{}, Config{})

	res, err := s.handleDo(context.Background(), request(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleDo(context.Background(), request(map[string]any{"steps": []any{
		map[string]any{"action": "teleport"},
	}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "unknown_action")
}
