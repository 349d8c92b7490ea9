package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dispatch"
	"github.com/mj1618/web-bridge/internal/platform"
	"github.com/mj1618/web-bridge/internal/platform/headless"
	"github.com/mj1618/web-bridge/internal/transport"
)

type commandFunc func(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)

func (f commandFunc) HandleCommand(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, action, payload)
}

type staticState transport.State

func (s staticState) State() transport.State { return transport.State(s) }

type reply struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details map[string]any  `json:"details"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, reply) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var r reply
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	}
	return rec.Code, r
}

func TestCommand_Success(t *testing.T) {
	var gotAction string
	var gotPayload json.RawMessage
	h := NewRouter(Options{Commands: commandFunc(func(_ context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
		gotAction, gotPayload = action, payload
		return json.RawMessage(`{"clicked":true}`), nil
	})})

	status, r := do(t, h, http.MethodPost, "/browser/click", `{"selector":"#go"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, r.Success)
	assert.JSONEq(t, `{"clicked":true}`, string(r.Result))
	assert.Equal(t, "click", gotAction)
	assert.JSONEq(t, `{"selector":"#go"}`, string(gotPayload))
}

func TestCommand_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"transport", bridgeerr.New(bridgeerr.CodeTransportDisconnected, "bridge went away", bridgeerr.ErrTransportDisconnected), http.StatusBadGateway, bridgeerr.CodeTransportDisconnected},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, bridgeerr.CodeRequestTimeout},
		{"not found", bridgeerr.Newf(bridgeerr.CodeElementNotFound, "nothing matches #go").With("selector", "#go"), http.StatusUnprocessableEntity, bridgeerr.CodeElementNotFound},
		{"unknown", bridgeerr.Newf(bridgeerr.CodeUnknownAction, "no such command"), http.StatusBadRequest, bridgeerr.CodeUnknownAction},
		{"tab", bridgeerr.Newf(bridgeerr.CodeTabNotFound, "no tab 9"), http.StatusNotFound, bridgeerr.CodeTabNotFound},
		{"plain", io.ErrUnexpectedEOF, http.StatusInternalServerError, bridgeerr.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(Options{Commands: commandFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
				return nil, tt.err
			})})
			status, r := do(t, h, http.MethodPost, "/browser/click", "")
			assert.Equal(t, tt.status, status)
			assert.False(t, r.Success)
			assert.Equal(t, tt.code, r.Code)
			assert.NotEmpty(t, r.Error)
		})
	}
}

func TestCommand_ErrorDetails(t *testing.T) {
	h := NewRouter(Options{Commands: commandFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
		return nil, bridgeerr.Newf(bridgeerr.CodeElementAmbiguous, "3 elements match").With("count", 3)
	})})
	_, r := do(t, h, http.MethodPost, "/browser/click", "")
	assert.Equal(t, float64(3), r.Details["count"])
}

func TestCommand_RejectsInvalidJSON(t *testing.T) {
	called := false
	h := NewRouter(Options{Commands: commandFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
		called = true
		return nil, nil
	})})
	status, r := do(t, h, http.MethodPost, "/browser/fill", `{"selector":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, bridgeerr.CodeInvalidRequest, r.Code)
	assert.False(t, called)
}

func TestCommand_Timeout(t *testing.T) {
	h := NewRouter(Options{
		Timeout: 30 * time.Millisecond,
		Commands: commandFunc(func(ctx context.Context, _ string, _ json.RawMessage) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	status, r := do(t, h, http.MethodPost, "/browser/wait_for_selector", `{"selector":"#late"}`)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, bridgeerr.CodeRequestTimeout, r.Code)
}

func TestHealth(t *testing.T) {
	h := NewRouter(Options{Commands: commandFunc(nil)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h = NewRouter(Options{Commands: commandFunc(nil), Transport: staticState{Pending: 2, Reconnects: 4}})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body.Status)
	require.NotNil(t, body.Transport)
	assert.Equal(t, 2, body.Transport.Pending)
	assert.Equal(t, uint64(4), body.Transport.Reconnects)
}

func TestAgainstHeadlessHost(t *testing.T) {
	p := headless.NewProvider(headless.Options{RelayTimeout: 2 * time.Second})
	t.Cleanup(func() { _ = p.Close() })
	h := NewRouter(Options{Commands: dispatch.New(p, nil)})

	_, err := p.Tabs.CreateTab(context.Background(), platform.CreateOptions{
		HTML: `<title>Signup</title><form><label for="e">Email</label><input id="e" name="email"></form>`,
	})
	require.NoError(t, err)

	status, r := do(t, h, http.MethodGet, "/tabs", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(r.Result), `"title":"Signup"`)

	status, r = do(t, h, http.MethodPost, "/browser/fill", `{"selector":"#e","value":"a@b.test"}`)
	require.Equal(t, http.StatusOK, status, r.Error)

	status, r = do(t, h, http.MethodPost, "/browser/get_form_structure", "")
	require.Equal(t, http.StatusOK, status, r.Error)
	assert.Contains(t, string(r.Result), "Email")

	status, r = do(t, h, http.MethodPost, "/browser/click", `{"selector":"#missing"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, bridgeerr.CodeElementNotFound, r.Code)

	status, r = do(t, h, http.MethodPost, "/browser/screenshot", "")
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Equal(t, bridgeerr.CodeUnsupported, r.Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `web_bridge_dispatches_total{command="fill",outcome="ok"}`)
}
