package page

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

const (
	defaultWaitTimeout = 10 * time.Second
	waitPollInterval   = 100 * time.Millisecond
	answerDeadline     = 30 * time.Second
)

// Target names an element by selector or by ref.
type Target struct {
	Selector string `json:"selector,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

type fillRequest struct {
	Target
	Value string `json:"value"`
	FillOptions
}

type selectRequest struct {
	Target
	Value string `json:"value"`
}

type dragRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type keyRequest struct {
	Key      string `json:"key"`
	Selector string `json:"selector,omitempty"`
}

type scrollRequest struct {
	Selector string   `json:"selector,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	DeltaX   float64  `json:"deltaX,omitempty"`
	DeltaY   float64  `json:"deltaY,omitempty"`
}

type waitRequest struct {
	Selector string `json:"selector"`
	// Timeout is in milliseconds.
	Timeout int  `json:"timeout,omitempty"`
	Visible bool `json:"visible,omitempty"`
}

type contentRequest struct {
	Selector string `json:"selector,omitempty"`
	Outer    bool   `json:"outer,omitempty"`
}

type textSearch struct {
	Text  string `json:"text"`
	Exact bool   `json:"exact,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type dropdownRequest struct {
	Selector string `json:"selector"`
	DropdownOptions
}

type logRequest struct {
	Level      string `json:"level,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Clear      bool   `json:"clear,omitempty"`
	FailedOnly bool   `json:"failedOnly,omitempty"`
}

type storageRequest struct {
	Key string `json:"key,omitempty"`
}

type watchRequest struct {
	Enabled bool `json:"enabled"`
}

// PageContext is a compact picture of the page for an agent deciding what
// to do next.
type PageContext struct {
	URL        string                    `json:"url"        yaml:"url"`
	Title      string                    `json:"title"      yaml:"title"`
	ReadyState string                    `json:"readyState" yaml:"readyState"`
	Headings   []string                  `json:"headings"   yaml:"headings"`
	Elements   []model.ElementDescriptor `json:"elements"   yaml:"elements"`
	Questions  []model.Question          `json:"questions"  yaml:"questions"`
}

// Cookie is the wire form of a page cookie.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

func decode(payload json.RawMessage, v any) error {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 || string(p) == "null" {
		return nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return bridgeerr.New(bridgeerr.CodeInvalidRequest, fmt.Sprintf("invalid payload: %v", err), bridgeerr.ErrInvalidRequest)
	}
	return nil
}

// typed adapts a handler taking a decoded request.
func typed[T any](fn func(context.Context, T) (any, error)) handlerFunc {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req T
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

func (e *Engine) commands() map[string]handlerFunc {
	index := typed(e.cmdIndex)
	return map[string]handlerFunc{
		"index":                 index,
		"list_elements":         index,
		"find_elements_by_text": typed(e.cmdFindByText),
		"get_page_info":         typed(e.cmdPageInfo),
		"get_page_context":      typed(e.cmdPageContext),
		"get_form_structure":    typed(e.cmdFormStructure),
		"answer_questions":      typed(e.cmdAnswer),
		"click":                 typed(e.cmdClick),
		"click_by_text":         typed(e.cmdClickByText),
		"fill":                  typed(e.cmdFill),
		"select_option":         typed(e.cmdSelect),
		"hover":                 typed(e.cmdHover),
		"drag":                  typed(e.cmdDrag),
		"press_key":             typed(e.cmdPressKey),
		"scroll":                typed(e.cmdScroll),
		"scroll_into_view":      typed(e.cmdScrollIntoView),
		"wait_for_selector":     typed(e.cmdWaitForSelector),
		"wait_for_load":         typed(e.cmdWaitForLoad),
		"get_text":              typed(e.cmdGetText),
		"get_html":              typed(e.cmdGetHTML),
		"detect_combobox":       typed(e.cmdDetectComboBox),
		"get_dropdown_options":  typed(e.cmdDropdownOptions),
		"find_element":          typed(e.cmdFindElement),
		"get_console_logs":      typed(e.cmdConsoleLogs),
		"get_network_requests":  typed(e.cmdNetworkRequests),
		"get_local_storage":     typed(e.cmdLocalStorage),
		"get_cookies":           typed(e.cmdCookies),
		"set_watch_mode":        typed(e.cmdSetWatch),
	}
}

// CommandDeadline returns how long the page may take to answer action when
// that exceeds the usual short bound, or zero.
func CommandDeadline(action string, payload json.RawMessage) time.Duration {
	switch action {
	case "wait_for_selector", "wait_for_load":
		var req waitRequest
		_ = json.Unmarshal(payload, &req)
		if req.Timeout > 0 {
			return time.Duration(req.Timeout) * time.Millisecond
		}
		return defaultWaitTimeout
	case "get_dropdown_options":
		var req dropdownRequest
		_ = json.Unmarshal(payload, &req)
		return time.Duration(req.WaitMs)*time.Millisecond + 2*time.Second
	case "answer_questions", "select_option":
		return answerDeadline
	}
	return 0
}

// target resolves t on the loop.
func (e *Engine) target(t Target) (*dom.Node, error) {
	if t.Selector == "" && t.Ref != "" {
		els, err := Index(e.doc, IndexOptions{}, e.opts.FrameID)
		if err != nil {
			return nil, err
		}
		d, err := model.FindElementByRef(els, t.Ref)
		if err != nil {
			return nil, bridgeerr.New(bridgeerr.CodeElementNotFound, err.Error(), bridgeerr.ErrElementNotFound)
		}
		return e.resolve(d.Selector)
	}
	return e.resolve(t.Selector)
}

func (e *Engine) cmdIndex(ctx context.Context, opts IndexOptions) (any, error) {
	var out []model.ElementDescriptor
	err := e.do(ctx, func() error {
		var err error
		out, err = Index(e.doc, opts, e.opts.FrameID)
		return err
	})
	if out == nil {
		out = []model.ElementDescriptor{}
	}
	return out, err
}

func (e *Engine) cmdFindByText(ctx context.Context, req textSearch) (any, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "text is required")
	}
	out := []model.ElementDescriptor{}
	err := e.do(ctx, func() error {
		for i, n := range elementsByText(e.doc, req.Text, req.Exact) {
			if req.Limit > 0 && i >= req.Limit {
				break
			}
			out = append(out, Describe(e.doc, n, i, e.opts.FrameID))
		}
		return nil
	})
	return out, err
}

// elementsByText returns the innermost visible elements whose text matches.
func elementsByText(doc *dom.Document, text string, exact bool) []*dom.Node {
	want := strings.ToLower(collapse(text))
	var ms []textMatch
	for _, n := range doc.Elements() {
		switch n.Tag() {
		case "html", "head", "body", "script", "style":
			continue
		}
		if !n.Visible() {
			continue
		}
		got := strings.ToLower(clickableText(n))
		if got == "" || (exact && got != want) || (!exact && !strings.Contains(got, want)) {
			continue
		}
		ms = append(ms, textMatch{node: n})
	}
	var out []*dom.Node
	for _, m := range innermost(ms) {
		out = append(out, m.node)
	}
	return out
}

func (e *Engine) pageInfo() model.PageInfo {
	vp := e.doc.Viewport
	info := model.PageInfo{
		URL:        e.doc.URL.String(),
		Title:      e.doc.Title(),
		ReadyState: e.doc.ReadyState,
		Viewport:   model.Box{Width: vp.Width, Height: vp.Height},
		Scroll:     model.Point{X: vp.ScrollX, Y: vp.ScrollY},
		Elements:   len(e.doc.Elements()),
		Forms:      e.doc.Count("form"),
		Frames:     e.doc.Count("iframe, frame"),
		Watching:   e.watcher.Watching(),
		FrameID:    e.opts.FrameID,
	}
	if root := e.doc.DocumentElement(); root != nil {
		r := root.BoundingBox()
		info.DocumentSize = model.Box{Width: r.Width, Height: r.Height}
	}
	if cands, err := Candidates(e.doc, ""); err == nil {
		info.Interactive = len(cands)
	}
	return info
}

func (e *Engine) cmdPageInfo(ctx context.Context, _ struct{}) (any, error) {
	var info model.PageInfo
	err := e.do(ctx, func() error {
		info = e.pageInfo()
		return nil
	})
	return info, err
}

func (e *Engine) cmdPageContext(ctx context.Context, opts IndexOptions) (any, error) {
	var pc PageContext
	err := e.do(ctx, func() error {
		pc.URL = e.doc.URL.String()
		pc.Title = e.doc.Title()
		pc.ReadyState = e.doc.ReadyState
		pc.Headings = []string{}
		if hs, err := e.doc.QueryAll("h1, h2, h3"); err == nil {
			for _, h := range hs {
				if t := h.VisibleText(); t != "" {
					pc.Headings = append(pc.Headings, truncate(t, maxLabelLen))
				}
			}
		}
		els, err := Index(e.doc, opts, e.opts.FrameID)
		if err != nil {
			return err
		}
		pc.Elements = append([]model.ElementDescriptor{}, els...)
		pc.Questions = GetStructure(e.doc, e.opts.FrameID).Questions
		return nil
	})
	return pc, err
}

func (e *Engine) cmdFormStructure(ctx context.Context, _ struct{}) (any, error) {
	var fs model.FormStructure
	err := e.do(ctx, func() error {
		fs = GetStructure(e.doc, e.opts.FrameID)
		return nil
	})
	return fs, err
}

func (e *Engine) cmdAnswer(ctx context.Context, req AnswerOptions) (any, error) {
	if len(req.Answers) == 0 && req.DefaultAnswer == "" {
		return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "answers or defaultAnswer is required")
	}
	return e.AnswerQuestions(ctx, req)
}

func (e *Engine) cmdClick(ctx context.Context, t Target) (any, error) {
	var res ClickResult
	err := e.do(ctx, func() error {
		n, err := e.target(t)
		if err != nil {
			return err
		}
		res.Selector = Synthesize(e.doc, n).Primary
		res.Text = truncate(clickableText(n), maxLabelLen)
		res.Type = SemanticType(n, false)
		if cover := e.obscuredBy(n); cover != nil {
			res.ObscuredBy = Synthesize(e.doc, cover).Primary
		}
		return e.click(n)
	})
	return res, err
}

func (e *Engine) cmdClickByText(ctx context.Context, opts ClickByTextOptions) (any, error) {
	var res *ClickResult
	err := e.do(ctx, func() error {
		var err error
		res, err = e.clickByText(opts)
		return err
	})
	return res, err
}

func (e *Engine) cmdFill(ctx context.Context, req fillRequest) (any, error) {
	out := map[string]any{}
	err := e.do(ctx, func() error {
		n, err := e.target(req.Target)
		if err != nil {
			return err
		}
		if err := e.fill(n, req.Value, req.FillOptions); err != nil {
			return err
		}
		out["selector"] = Synthesize(e.doc, n).Primary
		out["value"] = currentValue(n)
		return nil
	})
	return out, err
}

func (e *Engine) cmdSelect(ctx context.Context, req selectRequest) (any, error) {
	var (
		native bool
		sel    string
		out    = map[string]any{}
	)
	err := e.do(ctx, func() error {
		n, err := e.target(req.Target)
		if err != nil {
			return err
		}
		sel = Synthesize(e.doc, n).Primary
		if n.Tag() != "select" {
			return nil
		}
		native = true
		opt, err := e.selectNative(n, req.Value)
		if err != nil {
			return err
		}
		out["value"] = opt.Value()
		out["text"] = collapse(opt.Text())
		return nil
	})
	if err != nil {
		return nil, err
	}
	out["selector"] = sel
	out["native"] = native
	if native {
		return out, nil
	}
	res, err := e.GetDropdownOptions(ctx, sel, DropdownOptions{})
	if err != nil {
		return nil, err
	}
	if err := e.pickHarvested(ctx, res, req.Value); err != nil {
		return nil, err
	}
	out["text"] = req.Value
	out["family"] = res.Family
	return out, nil
}

func (e *Engine) cmdHover(ctx context.Context, t Target) (any, error) {
	out := map[string]any{}
	err := e.do(ctx, func() error {
		n, err := e.target(t)
		if err != nil {
			return err
		}
		n.ScrollIntoView()
		e.hover(n)
		out["selector"] = Synthesize(e.doc, n).Primary
		return nil
	})
	return out, err
}

func (e *Engine) cmdDrag(ctx context.Context, req dragRequest) (any, error) {
	out := map[string]any{"from": req.From, "to": req.To}
	err := e.do(ctx, func() error {
		src, err := e.resolve(req.From)
		if err != nil {
			return err
		}
		dst, err := e.resolve(req.To)
		if err != nil {
			return err
		}
		html5, err := e.drag(src, dst)
		out["html5"] = html5
		return err
	})
	return out, err
}

func (e *Engine) cmdPressKey(ctx context.Context, req keyRequest) (any, error) {
	kp, err := ParseKey(req.Key)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"key": kp}
	err = e.do(ctx, func() error {
		var n *dom.Node
		switch {
		case req.Selector != "":
			n, err = e.resolve(req.Selector)
			if err != nil {
				return err
			}
			e.doc.Focus(n)
		case e.doc.ActiveElement() != nil:
			n = e.doc.ActiveElement()
		default:
			n = e.doc.Body()
		}
		if n == nil {
			return bridgeerr.Newf(bridgeerr.CodeElementNotFound, "page has no element to receive keys")
		}
		e.keySequence(n, kp)
		out["target"] = Synthesize(e.doc, n).Primary
		return nil
	})
	return out, err
}

func (e *Engine) cmdScroll(ctx context.Context, req scrollRequest) (any, error) {
	var vp dom.Viewport
	err := e.do(ctx, func() error {
		if req.Selector != "" {
			n, err := queryOne(e.doc, req.Selector)
			if err != nil {
				return err
			}
			n.ScrollIntoView()
		} else {
			x, y := e.doc.Viewport.ScrollX, e.doc.Viewport.ScrollY
			if req.X != nil {
				x = *req.X
			}
			if req.Y != nil {
				y = *req.Y
			}
			e.doc.SetScroll(x+req.DeltaX, y+req.DeltaY)
		}
		if root := e.doc.DocumentElement(); root != nil {
			e.doc.Fire(root, "scroll")
		}
		vp = e.doc.Viewport
		return nil
	})
	return map[string]float64{"scrollX": vp.ScrollX, "scrollY": vp.ScrollY}, err
}

func (e *Engine) cmdScrollIntoView(ctx context.Context, t Target) (any, error) {
	var d model.ElementDescriptor
	err := e.do(ctx, func() error {
		n, err := e.target(t)
		if err != nil {
			return err
		}
		n.ScrollIntoView()
		d = Describe(e.doc, n, 0, e.opts.FrameID)
		return nil
	})
	return d, err
}

func (e *Engine) cmdWaitForSelector(ctx context.Context, req waitRequest) (any, error) {
	if req.Selector == "" {
		return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "selector is required")
	}
	timeout := defaultWaitTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	start := time.Now()
	for {
		var found *model.ElementDescriptor
		err := e.do(ctx, func() error {
			n, err := e.doc.Query(req.Selector)
			if err != nil {
				return err
			}
			if n != nil && (!req.Visible || n.Visible()) {
				d := Describe(e.doc, n, 0, e.opts.FrameID)
				found = &d
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return map[string]any{"found": true, "elapsedMs": time.Since(start).Milliseconds(), "element": found}, nil
		}
		if time.Since(start) >= timeout {
			return nil, bridgeerr.Newf(bridgeerr.CodeRequestTimeout, "%s did not appear within %s", req.Selector, timeout).
				With("selector", req.Selector).
				With("visible", req.Visible)
		}
		if err := sleep(ctx, waitPollInterval); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) cmdWaitForLoad(ctx context.Context, req waitRequest) (any, error) {
	timeout := defaultWaitTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	start := time.Now()
	for {
		var state string
		if err := e.do(ctx, func() error {
			state = e.doc.ReadyState
			return nil
		}); err != nil {
			return nil, err
		}
		if state == "complete" {
			return map[string]any{"readyState": state, "elapsedMs": time.Since(start).Milliseconds()}, nil
		}
		if time.Since(start) >= timeout {
			return nil, bridgeerr.Newf(bridgeerr.CodeRequestTimeout, "page still %s after %s", state, timeout)
		}
		if err := sleep(ctx, waitPollInterval); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) contentRoot(selector string) (*dom.Node, error) {
	if selector == "" {
		if b := e.doc.Body(); b != nil {
			return b, nil
		}
		return e.doc.DocumentElement(), nil
	}
	return queryOne(e.doc, selector)
}

func (e *Engine) cmdGetText(ctx context.Context, req contentRequest) (any, error) {
	out := map[string]string{}
	err := e.do(ctx, func() error {
		n, err := e.contentRoot(req.Selector)
		if err != nil {
			return err
		}
		out["text"] = n.VisibleText()
		return nil
	})
	return out, err
}

func (e *Engine) cmdGetHTML(ctx context.Context, req contentRequest) (any, error) {
	out := map[string]string{}
	err := e.do(ctx, func() error {
		n, err := e.contentRoot(req.Selector)
		if err != nil {
			return err
		}
		if req.Outer || req.Selector == "" {
			out["html"] = n.OuterHTML()
		} else {
			out["html"] = n.InnerHTML()
		}
		return nil
	})
	return out, err
}

func (e *Engine) cmdDetectComboBox(ctx context.Context, t Target) (any, error) {
	var info *model.ComboBoxInfo
	err := e.do(ctx, func() error {
		var err error
		info, err = DetectComboBox(e.doc, t.Selector)
		return err
	})
	return info, err
}

func (e *Engine) cmdDropdownOptions(ctx context.Context, req dropdownRequest) (any, error) {
	return e.GetDropdownOptions(ctx, req.Selector, req.DropdownOptions)
}

func (e *Engine) cmdFindElement(ctx context.Context, t Target) (any, error) {
	var res *DebugResult
	err := e.do(ctx, func() error {
		var err error
		res, err = FindElementWithDebug(e.doc, t.Selector, e.opts.FrameID)
		return err
	})
	return res, err
}

func (e *Engine) cmdConsoleLogs(_ context.Context, req logRequest) (any, error) {
	all := e.console.Items()
	entries := make([]dom.ConsoleEntry, 0, len(all))
	for _, c := range all {
		if req.Level == "" || strings.EqualFold(c.Level, req.Level) {
			entries = append(entries, c)
		}
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[len(entries)-req.Limit:]
	}
	if req.Clear {
		e.console.Clear()
	}
	return map[string]any{"entries": entries, "total": len(all)}, nil
}

func (e *Engine) cmdNetworkRequests(_ context.Context, req logRequest) (any, error) {
	all := e.network.Items()
	entries := make([]dom.NetworkEntry, 0, len(all))
	for _, n := range all {
		if req.FailedOnly && n.Error == "" && n.Status < 400 {
			continue
		}
		entries = append(entries, n)
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[len(entries)-req.Limit:]
	}
	if req.Clear {
		e.network.Clear()
	}
	return map[string]any{"entries": entries, "total": len(all)}, nil
}

func (e *Engine) cmdLocalStorage(ctx context.Context, req storageRequest) (any, error) {
	var out map[string]string
	err := e.do(ctx, func() error {
		if req.Key != "" {
			out = map[string]string{}
			if v, ok := e.doc.Storage.Get(req.Key); ok {
				out[req.Key] = v
			}
			return nil
		}
		out = e.doc.Storage.Snapshot()
		return nil
	})
	return out, err
}

func (e *Engine) cmdCookies(ctx context.Context, _ struct{}) (any, error) {
	out := []Cookie{}
	err := e.do(ctx, func() error {
		for _, c := range e.doc.Cookies {
			out = append(out, Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HttpOnly,
			})
		}
		return nil
	})
	return out, err
}

func (e *Engine) cmdSetWatch(ctx context.Context, req watchRequest) (any, error) {
	var watching bool
	err := e.do(ctx, func() error {
		if req.Enabled {
			e.watcher.Enable()
		} else {
			e.watcher.Disable()
		}
		watching = e.watcher.Watching()
		return nil
	})
	return map[string]bool{"watching": watching}, err
}
