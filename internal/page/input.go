package page

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

// KeyPress is a parsed key combination.
type KeyPress struct {
	Key   string `json:"key"`
	Code  string `json:"code,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

var namedKeys = map[string]string{
	"enter": "Enter", "return": "Enter",
	"tab": "Tab",
	"esc": "Escape", "escape": "Escape",
	"space": " ", "spacebar": " ",
	"backspace": "Backspace",
	"delete": "Delete", "del": "Delete",
	"up": "ArrowUp", "arrowup": "ArrowUp",
	"down": "ArrowDown", "arrowdown": "ArrowDown",
	"left": "ArrowLeft", "arrowleft": "ArrowLeft",
	"right": "ArrowRight", "arrowright": "ArrowRight",
	"home": "Home", "end": "End",
	"pageup": "PageUp", "pagedown": "PageDown",
	"insert": "Insert",
}

// ParseKey parses combinations such as "ctrl+shift+a", "Enter" or "cmd+k".
// A trailing "+" is the plus key itself.
func ParseKey(combo string) (KeyPress, error) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return KeyPress{}, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "empty key")
	}
	var kp KeyPress
	var parts []string
	switch {
	case combo == "+":
		parts = []string{"+"}
	case strings.HasSuffix(combo, "++"):
		parts = append(strings.Split(strings.TrimSuffix(combo, "++"), "+"), "+")
	default:
		parts = strings.Split(combo, "+")
	}
	key := parts[len(parts)-1]
	for _, mod := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(mod)) {
		case "ctrl", "control":
			kp.Ctrl = true
		case "shift":
			kp.Shift = true
		case "alt", "option", "opt":
			kp.Alt = true
		case "meta", "cmd", "command", "super", "win":
			kp.Meta = true
		default:
			return KeyPress{}, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "unknown modifier %q in %q", mod, combo)
		}
	}
	if named, ok := namedKeys[strings.ToLower(key)]; ok {
		kp.Key = named
	} else if len(key) > 1 && (key[0] == 'f' || key[0] == 'F') {
		if n, err := strconv.Atoi(key[1:]); err == nil && n >= 1 && n <= 24 {
			kp.Key = "F" + key[1:]
		}
	}
	if kp.Key == "" {
		if utf8.RuneCountInString(key) != 1 {
			return KeyPress{}, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "unknown key %q", key)
		}
		kp.Key = key
		if kp.Shift {
			kp.Key = strings.ToUpper(key)
		}
	}
	kp.Code = keyCode(kp.Key)
	return kp, nil
}

// parseKey is ParseKey for names known to be valid.
func parseKey(name string) KeyPress {
	kp, _ := ParseKey(name)
	return kp
}

func keyCode(key string) string {
	if key == " " {
		return "Space"
	}
	r, size := utf8.DecodeRuneInString(key)
	if size != len(key) {
		return key
	}
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return "Key" + strings.ToUpper(key)
	case r >= '0' && r <= '9':
		return "Digit" + key
	case r == '\n':
		return "Enter"
	}
	return ""
}

func (kp KeyPress) printable() bool {
	return utf8.RuneCountInString(kp.Key) == 1 && !kp.Ctrl && !kp.Meta
}

func keyForRune(r rune) KeyPress {
	if r == '\n' {
		return KeyPress{Key: "Enter", Code: "Enter"}
	}
	s := string(r)
	return KeyPress{Key: s, Code: keyCode(s), Shift: unicode.IsUpper(r)}
}

func (e *Engine) keyEvent(typ string, kp KeyPress) *dom.Event {
	ev := dom.NewEvent(typ)
	ev.Key, ev.Code = kp.Key, kp.Code
	ev.Ctrl, ev.Shift, ev.Alt, ev.Meta = kp.Ctrl, kp.Shift, kp.Alt, kp.Meta
	return ev
}

// keySequence dispatches keydown, keypress for printable keys, the default
// editing action and keyup at target.
func (e *Engine) keySequence(target *dom.Node, kp KeyPress) {
	if e.doc.Dispatch(target, e.keyEvent("keydown", kp)) {
		pressed := true
		if kp.printable() || kp.Key == "Enter" {
			pressed = e.doc.Dispatch(target, e.keyEvent("keypress", kp))
		}
		if pressed {
			e.keyDefault(target, kp)
		}
	}
	e.doc.Dispatch(target, e.keyEvent("keyup", kp))
}

func (e *Engine) keyDefault(target *dom.Node, kp KeyPress) {
	switch {
	case kp.printable():
		e.insertText(target, kp.Key)
	case kp.Key == "Enter" && target.Tag() == "textarea":
		e.insertText(target, "\n")
	case kp.Key == "Backspace":
		e.deleteBackward(target)
	case kp.Key == "Tab":
		e.moveFocus(target, kp.Shift)
	}
}

func editable(n *dom.Node) bool {
	if n.Disabled() || n.HasAttr("readonly") {
		return false
	}
	switch n.Tag() {
	case "textarea":
		return true
	case "input":
		switch n.InputType() {
		case "checkbox", "radio", "file", "submit", "button", "reset", "image", "hidden", "range", "color":
			return false
		}
		return true
	}
	return n.IsContentEditable()
}

func maxLength(n *dom.Node) int {
	if v, ok := n.Attr("maxlength"); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i >= 0 {
			return i
		}
	}
	return -1
}

func (e *Engine) writeValue(n *dom.Node, v string) {
	if n.Tag() == "input" || n.Tag() == "textarea" {
		n.SetValue(v)
		return
	}
	n.SetText(v)
}

func (e *Engine) inputEvent(typ, inputType, data string) *dom.Event {
	ev := dom.NewEvent(typ)
	ev.InputType, ev.Data = inputType, data
	return ev
}

// insertText appends text at the end of an editable node, firing a
// cancelable beforeinput and then input.
func (e *Engine) insertText(n *dom.Node, text string) {
	if !editable(n) {
		return
	}
	if !e.doc.Dispatch(n, e.inputEvent("beforeinput", "insertText", text)) {
		return
	}
	cur := n.Value()
	if limit := maxLength(n); limit >= 0 && utf8.RuneCountInString(cur)+utf8.RuneCountInString(text) > limit {
		return
	}
	e.writeValue(n, cur+text)
	e.doc.Dispatch(n, e.inputEvent("input", "insertText", text))
}

func (e *Engine) deleteBackward(n *dom.Node) {
	if !editable(n) {
		return
	}
	cur := []rune(n.Value())
	if len(cur) == 0 {
		return
	}
	if !e.doc.Dispatch(n, e.inputEvent("beforeinput", "deleteContentBackward", "")) {
		return
	}
	e.writeValue(n, string(cur[:len(cur)-1]))
	e.doc.Dispatch(n, e.inputEvent("input", "deleteContentBackward", ""))
}

func (e *Engine) clearValue(n *dom.Node) {
	if n.Value() == "" {
		return
	}
	if !e.doc.Dispatch(n, e.inputEvent("beforeinput", "deleteContentBackward", "")) {
		return
	}
	e.writeValue(n, "")
	e.doc.Dispatch(n, e.inputEvent("input", "deleteContentBackward", ""))
}

// moveFocus moves focus to the next (or previous) visible focusable element.
func (e *Engine) moveFocus(from *dom.Node, backwards bool) {
	var order []*dom.Node
	for _, n := range e.doc.Elements() {
		if n.Focusable() && n.AttrOr("tabindex", "") != "-1" && n.Visible() {
			order = append(order, n)
		}
	}
	if len(order) == 0 {
		return
	}
	idx := -1
	for i, n := range order {
		if n == from {
			idx = i
			break
		}
	}
	switch {
	case idx < 0:
		idx = 0
		if backwards {
			idx = len(order) - 1
		}
	case backwards:
		idx = (idx - 1 + len(order)) % len(order)
	default:
		idx = (idx + 1) % len(order)
	}
	e.doc.Focus(order[idx])
}

// FillOptions controls Fill. Both flags default to true.
type FillOptions struct {
	SimulateTyping *bool `json:"simulateTyping,omitempty"`
	ClearFirst     *bool `json:"clearFirst,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// fill writes value into n. Typing goes one character at a time, each
// producing keydown, keypress, beforeinput, the value change, input and
// keyup. A change and blur pair closes the edit.
func (e *Engine) fill(n *dom.Node, value string, opts FillOptions) error {
	switch {
	case n.Tag() == "select":
		_, err := e.selectNative(n, value)
		return err
	case n.Tag() == "input" && (n.InputType() == "checkbox" || n.InputType() == "radio"):
		want := truthy(value)
		if n.Checked() != want && (want || n.InputType() == "checkbox") {
			return e.click(n)
		}
		return nil
	case !editable(n):
		return bridgeerr.Newf(bridgeerr.CodeElementNotInteractable, "%s is not editable", n.Tag()).
			With("disabled", n.Disabled()).
			With("readonly", n.HasAttr("readonly")).
			With("type", n.InputType())
	}

	n.ScrollIntoView()
	e.doc.Focus(n)
	if boolOr(opts.ClearFirst, true) {
		e.clearValue(n)
	}
	typed := boolOr(opts.SimulateTyping, true) && (n.Tag() != "input" || isTextLike(n.InputType()))
	if typed {
		for _, r := range value {
			e.keySequence(n, keyForRune(r))
		}
	} else if value != "" {
		e.writeValue(n, n.Value()+value)
		e.doc.Dispatch(n, e.inputEvent("input", "insertReplacementText", value))
	}
	e.doc.Fire(n, "change")
	e.doc.Blur(n)
	return nil
}

func (e *Engine) mouseEvent(n *dom.Node, typ string) *dom.Event {
	ev := dom.NewEvent(typ)
	vr := e.doc.ViewportRect(n.BoundingBox())
	ev.ClientX, ev.ClientY = vr.Center()
	return ev
}

func (e *Engine) fireMouse(n *dom.Node, typ string) bool {
	return e.doc.Dispatch(n, e.mouseEvent(n, typ))
}

// pointerDown fires pointerdown and, unless canceled, mousedown.
func (e *Engine) pointerDown(n *dom.Node) {
	if e.fireMouse(n, "pointerdown") {
		e.fireMouse(n, "mousedown")
	}
}

func (e *Engine) pointerUp(n *dom.Node) {
	if e.fireMouse(n, "pointerup") {
		e.fireMouse(n, "mouseup")
	}
}

// hover moves the pointer onto n, leaving the previously hovered element.
func (e *Engine) hover(n *dom.Node) {
	if prev := e.hovered; prev != nil && prev != n && prev.Connected() {
		e.fireMouse(prev, "pointerout")
		e.fireMouse(prev, "mouseout")
		e.fireMouse(prev, "pointerleave")
		e.fireMouse(prev, "mouseleave")
	}
	if e.hovered != n {
		e.fireMouse(n, "pointerover")
		e.fireMouse(n, "pointerenter")
		e.fireMouse(n, "mouseover")
		e.fireMouse(n, "mouseenter")
	}
	e.hovered = n
	e.fireMouse(n, "pointermove")
	e.fireMouse(n, "mousemove")
}

// click runs the full pointer sequence on n.
func (e *Engine) click(n *dom.Node) error {
	if n.Disabled() {
		return bridgeerr.Newf(bridgeerr.CodeElementNotInteractable, "%s is disabled", n.Tag()).With("disabled", true)
	}
	n.ScrollIntoView()
	e.hover(n)
	e.pointerDown(n)
	e.pointerUp(n)
	e.fireMouse(n, "click")
	return nil
}

// obscuredBy returns the element covering the center of n, if any.
func (e *Engine) obscuredBy(n *dom.Node) *dom.Node {
	vr := e.doc.ViewportRect(n.BoundingBox())
	x, y := vr.Center()
	hit := e.doc.ElementFromPoint(x, y)
	if hit == nil || n.Contains(hit) || hit.Contains(n) {
		return nil
	}
	return hit
}

// drag presses on src, moves to dst and releases there. Elements marked
// draggable also get the HTML5 drag events.
func (e *Engine) drag(src, dst *dom.Node) (bool, error) {
	if src.Disabled() {
		return false, bridgeerr.Newf(bridgeerr.CodeElementNotInteractable, "drag source is disabled")
	}
	html5 := src.AttrOr("draggable", "") == "true"
	e.hover(src)
	e.pointerDown(src)
	if html5 {
		if !e.doc.Dispatch(src, e.mouseEvent(src, "dragstart")) {
			e.pointerUp(src)
			return false, nil
		}
		e.fireMouse(src, "drag")
	}
	e.hover(dst)
	if html5 {
		e.fireMouse(dst, "dragenter")
		e.fireMouse(dst, "dragover")
		e.fireMouse(dst, "drop")
		e.fireMouse(src, "dragend")
	}
	e.pointerUp(dst)
	return html5, nil
}

// selectNative picks the option of a <select> matching value by value,
// then by text, then by substring of text.
func (e *Engine) selectNative(n *dom.Node, value string) (*dom.Node, error) {
	if n.Disabled() {
		return nil, bridgeerr.Newf(bridgeerr.CodeElementNotInteractable, "select is disabled")
	}
	opt := matchOption(n.Options(), value)
	if opt == nil {
		return nil, bridgeerr.Newf(bridgeerr.CodeElementNotFound, "no option matches %q", value).
			With("availableOptions", optionTexts(n.Options()))
	}
	if opt.Disabled() {
		return nil, bridgeerr.Newf(bridgeerr.CodeElementNotInteractable, "option %q is disabled", value)
	}
	e.doc.Focus(n)
	n.SetValue(opt.Value())
	e.doc.Fire(n, "input")
	e.doc.Fire(n, "change")
	e.doc.Blur(n)
	return opt, nil
}

func matchOption(opts []*dom.Node, value string) *dom.Node {
	lv := strings.ToLower(strings.TrimSpace(value))
	for _, o := range opts {
		if o.Value() == value {
			return o
		}
	}
	for _, o := range opts {
		if strings.ToLower(collapse(o.Text())) == lv {
			return o
		}
	}
	if lv == "" {
		return nil
	}
	for _, o := range opts {
		if strings.Contains(strings.ToLower(collapse(o.Text())), lv) {
			return o
		}
	}
	return nil
}

func optionTexts(opts []*dom.Node) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if t := collapse(o.Text()); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ClickByTextOptions narrows ClickByText.
type ClickByTextOptions struct {
	Text        string `json:"text"`
	Index       int    `json:"index,omitempty"`
	ElementType string `json:"elementType,omitempty"`
}

// ClickResult reports what a click hit.
type ClickResult struct {
	Selector   string `json:"selector"             yaml:"selector"`
	Text       string `json:"text,omitempty"       yaml:"text,omitempty"`
	Type       string `json:"type,omitempty"       yaml:"type,omitempty"`
	MatchCount int    `json:"matchCount,omitempty" yaml:"matchCount,omitempty"`
	Exact      bool   `json:"exact,omitempty"      yaml:"exact,omitempty"`
	ObscuredBy string `json:"obscuredBy,omitempty" yaml:"obscuredBy,omitempty"`
	Warning    string `json:"warning,omitempty"    yaml:"warning,omitempty"`
}

type textMatch struct {
	node  *dom.Node
	text  string
	typ   string
	exact bool
}

func clickableText(n *dom.Node) string {
	if n.Tag() == "input" {
		switch n.InputType() {
		case "submit", "button", "reset":
			if v := collapse(n.AttrOr("value", "")); v != "" {
				return v
			}
		}
	}
	if t := n.VisibleText(); t != "" {
		return t
	}
	return collapse(n.AttrOr("aria-label", n.AttrOr("title", "")))
}

// textMatches finds visible nodes whose text equals or contains text,
// case-insensitively. Interactive candidates and labels are searched first;
// when none match, any element whose own text matches is used. Outer nodes
// whose matching descendant is also in the set are dropped.
func textMatches(doc *dom.Document, text, elementType string) []textMatch {
	want := strings.ToLower(collapse(text))
	collect := func(pool func(*dom.Node) bool) []textMatch {
		var out []textMatch
		for _, n := range doc.Elements() {
			if !pool(n) || !n.Visible() {
				continue
			}
			typ := SemanticType(n, false)
			if elementType != "" && !matchesType(n, typ, elementType) {
				continue
			}
			got := strings.ToLower(clickableText(n))
			if got == "" || !strings.Contains(got, want) {
				continue
			}
			out = append(out, textMatch{node: n, text: clickableText(n), typ: typ, exact: got == want})
		}
		return innermost(out)
	}
	matches := collect(func(n *dom.Node) bool { return IsCandidate(n) || n.Tag() == "label" })
	if len(matches) == 0 {
		matches = collect(func(n *dom.Node) bool {
			switch n.Tag() {
			case "html", "body", "head", "script", "style":
				return false
			}
			return true
		})
	}
	var exact []textMatch
	for _, m := range matches {
		if m.exact {
			exact = append(exact, m)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return matches
}

func matchesType(n *dom.Node, typ, want string) bool {
	for _, t := range model.ExpandTypes([]string{want}) {
		if t == typ {
			return true
		}
	}
	return strings.EqualFold(n.Tag(), want)
}

func innermost(ms []textMatch) []textMatch {
	var out []textMatch
	for _, m := range ms {
		outer := false
		for _, o := range ms {
			if o.node != m.node && m.node.Contains(o.node) {
				outer = true
				break
			}
		}
		if !outer {
			out = append(out, m)
		}
	}
	return out
}

// clickByText clicks the index-th element whose visible text matches.
func (e *Engine) clickByText(opts ClickByTextOptions) (*ClickResult, error) {
	if strings.TrimSpace(opts.Text) == "" {
		return nil, bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "text is required")
	}
	matches := textMatches(e.doc, opts.Text, opts.ElementType)
	if len(matches) == 0 {
		return nil, bridgeerr.Newf(bridgeerr.CodeElementNotFound, "no visible element with text %q", opts.Text).
			With("matchCount", 0)
	}
	if opts.Index < 0 || opts.Index >= len(matches) {
		alts := make([]map[string]any, 0, maxCandidates)
		for i, m := range matches {
			if i >= maxCandidates {
				break
			}
			alts = append(alts, map[string]any{
				"index":    i,
				"text":     truncate(m.text, maxLabelLen),
				"type":     m.typ,
				"selector": Synthesize(e.doc, m.node).Primary,
			})
		}
		return nil, bridgeerr.Newf(bridgeerr.CodeElementNotFound,
			"index %d out of range: %d elements match %q", opts.Index, len(matches), opts.Text).
			With("matchCount", len(matches)).
			With("alternatives", alts)
	}
	m := matches[opts.Index]
	res := &ClickResult{
		Selector:   Synthesize(e.doc, m.node).Primary,
		Text:       truncate(m.text, maxLabelLen),
		Type:       m.typ,
		MatchCount: len(matches),
		Exact:      m.exact,
	}
	if len(matches) > 1 && opts.Index == 0 {
		res.Warning = "several elements match; pass index to pick another"
	}
	if cover := e.obscuredBy(m.node); cover != nil {
		res.ObscuredBy = Synthesize(e.doc, cover).Primary
	}
	if err := e.click(m.node); err != nil {
		return nil, err
	}
	return res, nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1", "on", "checked", "x":
		return true
	}
	return false
}
