// Package dispatch routes commands to tabs and frames. Page-level queries in
// the aggregation set fan out to every frame of the tab; everything else
// page-level goes to one frame, and tab lifecycle commands go to the host.
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/capture"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/metrics"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/platform"
)

// aggregated lists the commands answered by every frame of a tab.
var aggregated = map[string]bool{
	"list_elements":         true,
	"index":                 true,
	"get_form_structure":    true,
	"get_page_context":      true,
	"find_elements_by_text": true,
}

// Aggregated reports whether action fans out across frames.
func Aggregated(action string) bool { return aggregated[action] }

// Dispatcher resolves the target of each command.
type Dispatcher struct {
	tabs   platform.TabManager
	frames platform.FrameEnumerator
	shots  platform.Screenshotter
	log    *slog.Logger
	tab    map[string]tabHandler
}

type tabHandler func(ctx context.Context, tabID int, payload json.RawMessage) (any, error)

// New creates a dispatcher over a host.
func New(p *platform.Provider, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		tabs:   p.Tabs,
		frames: p.Frames,
		shots:  p.Screenshotter,
		log:    logging.For(logger, "dispatch"),
	}
	d.tab = d.tabCommands()
	return d
}

// target is the routing part every payload may carry.
type target struct {
	TabID   int  `json:"tabId"`
	FrameID *int `json:"frameId"`
}

// HandleCommand adapts Dispatch to the transport's handler signature. The
// tab is read from the payload's tabId. An explicit frameId sends a page
// command to that frame alone, aggregated or not.
func (d *Dispatcher) HandleCommand(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	var t target
	if len(bytes.TrimSpace(payload)) > 0 && bytes.TrimSpace(payload)[0] == '{' {
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "invalid payload for %s: %v", action, err)
		}
	}
	if t.FrameID != nil && d.tab[action] == nil {
		return d.observe(action, func() (json.RawMessage, error) {
			return d.frame(ctx, t.TabID, *t.FrameID, action, payload)
		})
	}
	return d.Dispatch(ctx, t.TabID, action, payload)
}

// Dispatch runs action in tab tabID. Zero means the active tab.
func (d *Dispatcher) Dispatch(ctx context.Context, tabID int, action string, payload json.RawMessage) (json.RawMessage, error) {
	return d.observe(action, func() (json.RawMessage, error) {
		if h, ok := d.tab[action]; ok {
			res, err := h(ctx, tabID, payload)
			if err != nil {
				return nil, err
			}
			return json.Marshal(res)
		}
		if aggregated[action] {
			return d.aggregate(ctx, tabID, action, payload)
		}
		return d.frame(ctx, tabID, 0, action, payload)
	})
}

func (d *Dispatcher) observe(action string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	start := time.Now()
	res, err := fn()
	outcome := "ok"
	if err != nil {
		outcome = bridgeerr.CodeOf(err)
	}
	metrics.Dispatches.WithLabelValues(action, outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	d.log.Debug("dispatched", "action", action, "outcome", outcome, "elapsed", time.Since(start))
	return res, err
}

func (d *Dispatcher) resolveTab(ctx context.Context, tabID int) (int, error) {
	if tabID != 0 {
		return tabID, nil
	}
	t, err := d.tabs.ActiveTab(ctx)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (d *Dispatcher) frame(ctx context.Context, tabID, frameID int, action string, payload json.RawMessage) (json.RawMessage, error) {
	tabID, err := d.resolveTab(ctx, tabID)
	if err != nil {
		return nil, err
	}
	f, err := d.frames.Frame(ctx, tabID, frameID)
	if err != nil {
		return nil, err
	}
	return f.Handle(ctx, action, payload)
}

type frameResult struct {
	frame model.Frame
	raw   json.RawMessage
	err   error
}

// aggregate fans action out to every frame of the tab and merges the
// replies. Frames that cannot be reached or fail are left out.
func (d *Dispatcher) aggregate(ctx context.Context, tabID int, action string, payload json.RawMessage) (json.RawMessage, error) {
	tabID, err := d.resolveTab(ctx, tabID)
	if err != nil {
		return nil, err
	}
	frames, err := d.frames.Frames(ctx, tabID)
	if err != nil {
		return nil, fmt.Errorf("enumerate frames of tab %d: %w", tabID, err)
	}

	results := make([]frameResult, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range frames {
		results[i].frame = f
		if !f.Accessible {
			results[i].err = bridgeerr.ErrFrameUnreachable
			continue
		}
		g.Go(func() error {
			target, err := d.frames.Frame(gctx, tabID, f.ID)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].raw, results[i].err = target.Handle(gctx, action, payload)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool { return results[a].frame.ID < results[b].frame.ID })

	var ok []frameResult
	var topErr error
	for _, r := range results {
		switch {
		case r.err == nil:
			ok = append(ok, r)
		case errors.Is(r.err, bridgeerr.ErrFrameUnreachable):
			metrics.FramesSkipped.WithLabelValues("unreachable").Inc()
			d.log.Debug("skipping unreachable frame", "tab", tabID, "frame", r.frame.ID, "url", r.frame.URL)
		default:
			metrics.FramesSkipped.WithLabelValues("error").Inc()
			d.log.Warn("frame failed", "tab", tabID, "frame", r.frame.ID, "action", action, "error", r.err)
			if r.frame.ID == 0 {
				topErr = r.err
			}
		}
	}
	if len(ok) == 0 && topErr != nil {
		return nil, topErr
	}
	return merge(ok)
}

// merge concatenates array results, tagging each object item with its
// frame. Object results have their array fields merged the same way and
// their scalar fields taken from the top-most frame.
func merge(results []frameResult) (json.RawMessage, error) {
	var list []any
	var obj map[string]any
	isObject := false
	for _, r := range results {
		v, err := decode(r.raw)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", r.frame.ID, err)
		}
		switch val := v.(type) {
		case []any:
			list = append(list, tag(val, r.frame.ID)...)
		case map[string]any:
			isObject = true
			if obj == nil {
				obj = make(map[string]any, len(val))
			}
			for k, fv := range val {
				arr, isArr := fv.([]any)
				if !isArr {
					if _, seen := obj[k]; !seen {
						obj[k] = fv
					}
					continue
				}
				prev, _ := obj[k].([]any)
				if prev == nil {
					prev = []any{}
				}
				obj[k] = append(prev, tag(arr, r.frame.ID)...)
			}
		}
	}
	if isObject {
		return json.Marshal(obj)
	}
	if list == nil {
		list = []any{}
	}
	return json.Marshal(list)
}

func decode(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode frame result: %w", err)
	}
	return v, nil
}

func tag(items []any, frameID int) []any {
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			m["frameId"] = frameID
		}
	}
	return items
}

func decodeInto[T any](action string, payload json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(payload)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "invalid payload for %s: %v", action, err)
	}
	return v, nil
}

// Screenshot is the result of the screenshot command.
type Screenshot struct {
	TabID  int    `json:"tabId"`
	Format string `json:"format"`
	Data   string `json:"data"`
}

func (d *Dispatcher) tabCommands() map[string]tabHandler {
	return map[string]tabHandler{
		"list_tabs": func(ctx context.Context, _ int, _ json.RawMessage) (any, error) {
			return d.tabs.ListTabs(ctx)
		},
		"find_tabs": func(ctx context.Context, _ int, payload json.RawMessage) (any, error) {
			opts, err := decodeInto[platform.FindOptions]("find_tabs", payload)
			if err != nil {
				return nil, err
			}
			tabs, err := d.tabs.ListTabs(ctx)
			if err != nil {
				return nil, err
			}
			found, err := platform.FindTabs(tabs, opts)
			if err != nil {
				return nil, bridgeerr.New(bridgeerr.CodeInvalidRequest, err.Error(), bridgeerr.ErrInvalidRequest)
			}
			return found, nil
		},
		"focus_tab": func(ctx context.Context, tabID int, _ json.RawMessage) (any, error) {
			if tabID == 0 {
				return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "focus_tab needs a tabId")
			}
			return d.tabs.FocusTab(ctx, tabID)
		},
		"create_tab": func(ctx context.Context, _ int, payload json.RawMessage) (any, error) {
			opts, err := decodeInto[platform.CreateOptions]("create_tab", payload)
			if err != nil {
				return nil, err
			}
			return d.tabs.CreateTab(ctx, opts)
		},
		"close_tab": func(ctx context.Context, tabID int, _ json.RawMessage) (any, error) {
			id, err := d.resolveTab(ctx, tabID)
			if err != nil {
				return nil, err
			}
			if err := d.tabs.CloseTab(ctx, id); err != nil {
				return nil, err
			}
			return map[string]any{"closed": true, "tabId": id}, nil
		},
		"navigate": func(ctx context.Context, tabID int, payload json.RawMessage) (any, error) {
			req, err := decodeInto[struct {
				URL string `json:"url"`
			}]("navigate", payload)
			if err != nil {
				return nil, err
			}
			if req.URL == "" {
				return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "navigate needs a url")
			}
			id, err := d.resolveTab(ctx, tabID)
			if err != nil {
				return nil, err
			}
			return d.tabs.Navigate(ctx, id, req.URL)
		},
		"go_back": func(ctx context.Context, tabID int, _ json.RawMessage) (any, error) {
			id, err := d.resolveTab(ctx, tabID)
			if err != nil {
				return nil, err
			}
			return d.tabs.GoBack(ctx, id)
		},
		"go_forward": func(ctx context.Context, tabID int, _ json.RawMessage) (any, error) {
			id, err := d.resolveTab(ctx, tabID)
			if err != nil {
				return nil, err
			}
			return d.tabs.GoForward(ctx, id)
		},
		"list_frames": func(ctx context.Context, tabID int, _ json.RawMessage) (any, error) {
			id, err := d.resolveTab(ctx, tabID)
			if err != nil {
				return nil, err
			}
			return d.frames.Frames(ctx, id)
		},
		"screenshot": d.screenshot,
	}
}

func (d *Dispatcher) screenshot(ctx context.Context, tabID int, payload json.RawMessage) (any, error) {
	if d.shots == nil {
		return nil, bridgeerr.Newf(bridgeerr.CodeUnsupported, "this host has no capture capability")
	}
	opts, err := decodeInto[platform.ScreenshotOptions]("screenshot", payload)
	if err != nil {
		return nil, err
	}
	id, err := d.resolveTab(ctx, tabID)
	if err != nil {
		return nil, err
	}
	tabs, err := d.tabs.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	var tab *model.Tab
	for i := range tabs {
		if tabs[i].ID == id {
			tab = &tabs[i]
		}
	}
	if tab == nil {
		return nil, bridgeerr.Newf(bridgeerr.CodeTabNotFound, "no tab %d", id).With("tabId", id)
	}
	labels, err := capture.ParseLabelMode(opts.Labels)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.CodeInvalidRequest, err.Error(), bridgeerr.ErrInvalidRequest)
	}
	data, err := d.shots.CaptureVisible(ctx, *tab, opts)
	if err != nil {
		return nil, err
	}
	popts := capture.Options{Format: opts.Format, Quality: opts.Quality, Scale: opts.Scale, Labels: labels}
	if opts.Annotate {
		raw, err := d.frame(ctx, id, 0, "list_elements", nil)
		if err != nil {
			return nil, fmt.Errorf("list elements for annotation: %w", err)
		}
		if err := json.Unmarshal(raw, &popts.Elements); err != nil {
			return nil, fmt.Errorf("decode elements for annotation: %w", err)
		}
	}
	data, err = capture.Process(data, popts)
	if err != nil {
		return nil, err
	}
	return Screenshot{TabID: id, Format: capture.Format(opts.Format), Data: base64.StdEncoding.EncodeToString(data)}, nil
}

// Commands lists the tab-level commands the dispatcher answers itself.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.tab))
	for k := range d.tab {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
