package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Event is a synthetic DOM event.
type Event struct {
	Type      string
	Target    *Node
	Bubbles   bool
	Key       string
	Code      string
	Ctrl      bool
	Shift     bool
	Alt       bool
	Meta      bool
	Button    int
	ClientX   float64
	ClientY   float64
	Data      string
	InputType string
	// Trusted is false for every event produced by automation.
	Trusted bool

	defaultPrevented bool
	stopped          bool
	current          *Node
}

// PreventDefault cancels the default action.
func (ev *Event) PreventDefault() { ev.defaultPrevented = true }

// DefaultPrevented reports whether a listener canceled the event.
func (ev *Event) DefaultPrevented() bool { return ev.defaultPrevented }

// StopPropagation stops bubbling after the current target.
func (ev *Event) StopPropagation() { ev.stopped = true }

// CurrentTarget is the node whose listener is running, nil at the document.
func (ev *Event) CurrentTarget() *Node { return ev.current }

// Listener handles an event.
type Listener func(ev *Event)

type listener struct {
	id int
	fn Listener
}

// nonBubbling events only reach their target.
var nonBubbling = map[string]bool{
	"focus": true, "blur": true, "mouseenter": true, "mouseleave": true,
	"load": true, "scroll": true,
}

// AddEventListener registers fn for typ on target (the document when target
// is nil) and returns a function that removes it.
func (d *Document) AddEventListener(target *Node, typ string, fn Listener) func() {
	key := d.root
	if target != nil {
		key = target.n
	}
	d.nextListenerID++
	id := d.nextListenerID
	if d.listeners[key] == nil {
		d.listeners[key] = make(map[string][]*listener)
	}
	d.listeners[key][typ] = append(d.listeners[key][typ], &listener{id: id, fn: fn})
	return func() {
		ls := d.listeners[key][typ]
		for i, l := range ls {
			if l.id == id {
				d.listeners[key][typ] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// HasListener reports whether target has a listener for typ registered
// directly on it.
func (d *Document) HasListener(target *Node, typ string) bool {
	return len(d.listeners[target.n][typ]) > 0
}

// NewEvent builds an event with the bubbling flag set from its type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ, Bubbles: !nonBubbling[typ]}
}

// Dispatch delivers ev to target and its ancestors, then runs the default
// action unless a listener prevented it. It reports whether the default
// action ran.
func (d *Document) Dispatch(target *Node, ev *Event) bool {
	ev.Target = target
	path := []*html.Node{target.n}
	if ev.Bubbles {
		for p := target.n.Parent; p != nil; p = p.Parent {
			path = append(path, p)
		}
	}
	for _, n := range path {
		ls := d.listeners[n][ev.Type]
		if len(ls) == 0 {
			continue
		}
		if n == d.root {
			ev.current = nil
		} else {
			ev.current = d.Wrap(n)
		}
		for _, l := range append([]*listener(nil), ls...) {
			l.fn(ev)
		}
		if ev.stopped {
			break
		}
	}
	ev.current = nil
	if ev.defaultPrevented {
		return false
	}
	d.defaultAction(target, ev)
	return true
}

// Fire dispatches a plain event of the given type.
func (d *Document) Fire(target *Node, typ string) bool {
	return d.Dispatch(target, NewEvent(typ))
}

func (d *Document) defaultAction(target *Node, ev *Event) {
	switch ev.Type {
	case "mousedown":
		if f := focusTarget(target); f != nil {
			d.Focus(f)
		}
	case "click":
		d.clickDefault(target)
	case "keydown":
		if ev.Key == "Enter" && target.Tag() == "input" && isTextLike(target.InputType()) {
			if form := target.Form(); form != nil {
				d.Fire(form, "submit")
			}
		}
	}
}

func (d *Document) clickDefault(target *Node) {
	if target.Disabled() {
		return
	}
	switch target.Tag() {
	case "input":
		switch target.InputType() {
		case "checkbox":
			target.SetChecked(!target.Checked())
			d.Fire(target, "input")
			d.Fire(target, "change")
			return
		case "radio":
			if !target.Checked() {
				target.SetChecked(true)
				d.Fire(target, "input")
				d.Fire(target, "change")
			}
			return
		case "submit", "image":
			if form := target.Form(); form != nil {
				d.Fire(form, "submit")
			}
			return
		}
	case "button":
		t := strings.ToLower(target.AttrOr("type", "submit"))
		if t == "submit" {
			if form := target.Form(); form != nil {
				d.Fire(form, "submit")
			}
		}
		return
	case "summary":
		if det := target.Parent(); det != nil && det.Tag() == "details" {
			if det.HasAttr("open") {
				det.RemoveAttr("open")
			} else {
				det.SetAttr("open", "")
			}
		}
		return
	}
	if label := target.Closest("label"); label != nil {
		control := LabeledControl(label)
		if control != nil && !control.Contains(target) && control != target {
			d.Dispatch(control, NewEvent("click"))
		}
	}
}

// LabeledControl returns the control a <label> is bound to.
func LabeledControl(label *Node) *Node {
	if id, ok := label.Attr("for"); ok && id != "" {
		n, _ := label.doc.Query("#" + cssEscapeIdent(id))
		return n
	}
	for _, c := range label.Descendants() {
		if isLabelable(c) {
			return c
		}
	}
	return nil
}

func isLabelable(n *Node) bool {
	switch n.Tag() {
	case "input":
		return n.InputType() != "hidden"
	case "select", "textarea", "button", "meter", "output", "progress":
		return true
	}
	return false
}

func focusTarget(n *Node) *Node {
	for ; n != nil; n = n.Parent() {
		if n.Focusable() {
			return n
		}
	}
	return nil
}

func isTextLike(t string) bool {
	switch t {
	case "text", "search", "email", "url", "tel", "password", "number":
		return true
	}
	return false
}

// Focus moves focus to n, firing blur/focusout on the previous element and
// focus/focusin on n.
func (d *Document) Focus(n *Node) {
	if n == nil || d.active == n.n {
		return
	}
	prev := d.active
	d.active = n.n
	if prev != nil {
		p := d.Wrap(prev)
		d.Fire(p, "blur")
		d.Fire(p, "focusout")
	}
	d.Fire(n, "focus")
	d.Fire(n, "focusin")
}

// Blur removes focus from n when it is focused.
func (d *Document) Blur(n *Node) {
	if n == nil || d.active != n.n {
		return
	}
	d.active = nil
	d.Fire(n, "blur")
	d.Fire(n, "focusout")
}
