// Package httpapi serves the command vocabulary over HTTP. It is the local
// proxy surface: POST /browser/{action} runs one command and answers with
// {"success": true, "result": ...} or {"success": false, "error": ...}.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/metrics"
	"github.com/mj1618/web-bridge/internal/transport"
)

const maxBodyBytes = 4 << 20

// Commander runs one command. *dispatch.Dispatcher implements it.
type Commander interface {
	HandleCommand(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)
}

// Stater reports the bridge connection. *transport.ConnectionManager
// implements it.
type Stater interface {
	State() transport.State
}

// Options configures the router.
type Options struct {
	Commands Commander
	// Transport is optional; without it /healthz only reports liveness.
	Transport Stater
	// Timeout bounds one command. Zero leaves it to the dispatcher.
	Timeout time.Duration
	Logger  *slog.Logger
}

type api struct {
	opts Options
	log  *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	a := &api{opts: opts, log: logging.For(opts.Logger, "http")}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", a.handleHealth)
	r.Get("/tabs", a.handleTabs)
	r.Post("/browser/{action}", a.handleCommand)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "elapsed", time.Since(start))
	})
}

type health struct {
	Status    string           `json:"status"`
	Transport *transport.State `json:"transport,omitempty"`
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := health{Status: "ok"}
	if a.opts.Transport != nil {
		st := a.opts.Transport.State()
		h.Transport = &st
		if !st.Connected {
			h.Status = "disconnected"
		}
	}
	respondJSON(w, http.StatusOK, h)
}

func (a *api) handleTabs(w http.ResponseWriter, r *http.Request) {
	a.run(w, r, "list_tabs", nil)
}

func (a *api) handleCommand(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondFailure(w, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "read body: %v", err))
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		respondFailure(w, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "body is not valid JSON"))
		return
	}
	a.run(w, r, action, body)
}

func (a *api) run(w http.ResponseWriter, r *http.Request, action string, payload json.RawMessage) {
	ctx := r.Context()
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	res, err := a.opts.Commands.HandleCommand(ctx, action, payload)
	if errors.Is(err, context.DeadlineExceeded) {
		err = bridgeerr.New(bridgeerr.CodeRequestTimeout, fmt.Sprintf("%s timed out", action), bridgeerr.ErrRequestTimeout)
	}
	if err != nil {
		a.log.Info("command failed", "action", action, "code", bridgeerr.CodeOf(err), "error", err)
		respondFailure(w, err)
		return
	}
	if len(res) == 0 {
		res = json.RawMessage("null")
	}
	respondJSON(w, http.StatusOK, struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
	}{true, res})
}

// statusOf maps an error code onto an HTTP status. Transport failures are
// 502 since the bridge itself could not be reached.
func statusOf(code string) int {
	switch code {
	case bridgeerr.CodeTransportDisconnected:
		return http.StatusBadGateway
	case bridgeerr.CodeRequestTimeout:
		return http.StatusGatewayTimeout
	case bridgeerr.CodeInvalidRequest, bridgeerr.CodeInvalidSelector, bridgeerr.CodeUnknownAction:
		return http.StatusBadRequest
	case bridgeerr.CodeTabNotFound:
		return http.StatusNotFound
	case bridgeerr.CodeUnsupported:
		return http.StatusNotImplemented
	case bridgeerr.CodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

func respondFailure(w http.ResponseWriter, err error) {
	wire := bridgeerr.ToWire(err)
	respondJSON(w, statusOf(wire.Code), struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Code    string         `json:"code"`
		Details map[string]any `json:"details,omitempty"`
	}{false, wire.Message, wire.Code, wire.Details})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
