package dom

import (
	"bytes"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// QueryableNode is the read-only view the page heuristics work against.
// Everything that classifies elements (labels, combo-box families, control
// types) takes this interface so it can be tested without a live document.
type QueryableNode interface {
	Tag() string
	Attributes() map[string]string
	BoundingBox() Rect
	ComputedVisibility() Visibility
}

// Rect is a box in document coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports a zero-area box.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Center returns the center point.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Intersects reports whether the two boxes overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width && r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Visibility is the subset of computed style that decides whether an element
// can be seen.
type Visibility struct {
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	Opacity    float64 `json:"opacity"`
	// Hidden is true when the element or an ancestor is not rendered.
	Hidden bool `json:"hidden"`
}

// Node wraps an html.Node with live control state.
type Node struct {
	doc      *Document
	n        *html.Node
	value    *string
	checked  *bool
	selected *bool
}

// HTML returns the underlying node.
func (e *Node) HTML() *html.Node { return e.n }

// Document returns the owning document.
func (e *Node) Document() *Document { return e.doc }

// IsElement reports whether this is an element node.
func (e *Node) IsElement() bool { return e.n.Type == html.ElementNode }

// Tag returns the lowercase tag name, or "" for non-elements.
func (e *Node) Tag() string {
	if e.n.Type != html.ElementNode {
		return ""
	}
	return e.n.Data
}

// Attr returns an attribute value.
func (e *Node) Attr(key string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def.
func (e *Node) AttrOr(key, def string) string {
	if v, ok := e.Attr(key); ok {
		return v
	}
	return def
}

// HasAttr reports whether the attribute is present.
func (e *Node) HasAttr(key string) bool {
	_, ok := e.Attr(key)
	return ok
}

// Attributes returns a copy of all attributes.
func (e *Node) Attributes() map[string]string {
	m := make(map[string]string, len(e.n.Attr))
	for _, a := range e.n.Attr {
		m[a.Key] = a.Val
	}
	return m
}

// AttributeNames returns attribute names in source order.
func (e *Node) AttributeNames() []string {
	out := make([]string, 0, len(e.n.Attr))
	for _, a := range e.n.Attr {
		out = append(out, a.Key)
	}
	return out
}

// SetAttr sets an attribute and records a mutation.
func (e *Node) SetAttr(key, val string) {
	old, had := e.Attr(key)
	if had && old == val {
		return
	}
	set := false
	for i, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == key {
			e.n.Attr[i].Val = val
			set = true
			break
		}
	}
	if !set {
		e.n.Attr = append(e.n.Attr, html.Attribute{Key: key, Val: val})
	}
	e.doc.touch()
	e.doc.notify(MutationRecord{Type: MutationAttributes, Target: e, AttributeName: key, OldValue: old})
}

// RemoveAttr deletes an attribute and records a mutation.
func (e *Node) RemoveAttr(key string) {
	for i, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == key {
			e.n.Attr = append(e.n.Attr[:i], e.n.Attr[i+1:]...)
			e.doc.touch()
			e.doc.notify(MutationRecord{Type: MutationAttributes, Target: e, AttributeName: key, OldValue: a.Val})
			return
		}
	}
}

// ID returns the id attribute.
func (e *Node) ID() string { return e.AttrOr("id", "") }

// Classes returns the class list.
func (e *Node) Classes() []string {
	return strings.Fields(e.AttrOr("class", ""))
}

// HasClass reports whether the class list contains c.
func (e *Node) HasClass(c string) bool {
	for _, x := range e.Classes() {
		if x == c {
			return true
		}
	}
	return false
}

// Parent returns the parent element, or nil at the top.
func (e *Node) Parent() *Node {
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.Wrap(p)
}

// Children returns the child elements.
func (e *Node) Children() []*Node {
	var out []*Node
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.Wrap(c))
		}
	}
	return out
}

// Descendants returns every descendant element in document order.
func (e *Node) Descendants() []*Node {
	var out []*Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, e.doc.Wrap(c))
			}
			walk(c)
		}
	}
	walk(e.n)
	return out
}

// Contains reports whether o is e or a descendant of e.
func (e *Node) Contains(o *Node) bool {
	for n := o.n; n != nil; n = n.Parent {
		if n == e.n {
			return true
		}
	}
	return false
}

// Connected reports whether the node is attached to its document.
func (e *Node) Connected() bool {
	n := e.n
	for n.Parent != nil {
		n = n.Parent
	}
	return n == e.doc.root
}

// NthOfType returns the 1-based position among same-tag siblings and the
// number of such siblings.
func (e *Node) NthOfType() (int, int) {
	if e.n.Parent == nil {
		return 1, 1
	}
	idx, total := 0, 0
	for c := e.n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == e.n.Data {
			total++
			if c == e.n {
				idx = total
			}
		}
	}
	return idx, total
}

// Matches reports whether e matches selector.
func (e *Node) Matches(selector string) bool {
	s, err := e.doc.Compile(selector)
	if err != nil {
		return false
	}
	return s.Match(e.n)
}

// Closest returns the nearest inclusive ancestor matching selector.
func (e *Node) Closest(selector string) *Node {
	s, err := e.doc.Compile(selector)
	if err != nil {
		return nil
	}
	for n := e.n; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && s.Match(n) {
			return e.doc.Wrap(n)
		}
	}
	return nil
}

// QueryAll returns descendants matching selector.
func (e *Node) QueryAll(selector string) ([]*Node, error) {
	s, err := e.doc.Compile(selector)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, m := range s.MatchAll(e.n) {
		if m != e.n {
			out = append(out, e.doc.Wrap(m))
		}
	}
	return out, nil
}

// Query returns the first descendant matching selector.
func (e *Node) Query(selector string) (*Node, error) {
	s, err := e.doc.Compile(selector)
	if err != nil {
		return nil, err
	}
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if m := s.MatchFirst(c); m != nil {
			return e.doc.Wrap(m), nil
		}
	}
	return nil, nil
}

// Text returns the text content.
func (e *Node) Text() string {
	if e.n.Type == html.TextNode {
		return e.n.Data
	}
	return goquery.NewDocumentFromNode(e.n).Text()
}

// VisibleText returns the rendered text with whitespace collapsed, skipping
// subtrees that are not displayed.
func (e *Node) VisibleText() string {
	e.doc.ensureLayout()
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if cs := e.doc.layout.styles[n]; cs != nil && cs.Display == "none" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// OuterHTML renders the element.
func (e *Node) OuterHTML() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, e.n)
	return buf.String()
}

// InnerHTML renders the children.
func (e *Node) InnerHTML() string {
	var buf bytes.Buffer
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// InputType returns the lowercased type of an <input>, defaulting to "text".
func (e *Node) InputType() string {
	if e.Tag() != "input" {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(e.AttrOr("type", "text")))
	if t == "" {
		return "text"
	}
	return t
}

// Value returns the current control value.
func (e *Node) Value() string {
	switch e.Tag() {
	case "input":
		if e.value != nil {
			return *e.value
		}
		v := e.AttrOr("value", "")
		if (e.InputType() == "checkbox" || e.InputType() == "radio") && !e.HasAttr("value") {
			return "on"
		}
		return v
	case "textarea":
		if e.value != nil {
			return *e.value
		}
		return e.Text()
	case "select":
		for _, o := range e.Options() {
			if o.Selected() {
				return o.Value()
			}
		}
		return ""
	case "option":
		if v, ok := e.Attr("value"); ok {
			return v
		}
		return strings.Join(strings.Fields(e.Text()), " ")
	}
	if e.IsContentEditable() {
		return e.Text()
	}
	return e.AttrOr("value", "")
}

// SetValue writes the control value without firing events.
func (e *Node) SetValue(v string) {
	switch e.Tag() {
	case "select":
		for _, o := range e.Options() {
			o.setSelected(o.Value() == v)
		}
		e.doc.touch()
		return
	case "input", "textarea":
		e.value = &v
		e.doc.touch()
		return
	}
	if e.IsContentEditable() {
		e.SetText(v)
	}
}

// Checked reports the checkedness of a checkbox or radio.
func (e *Node) Checked() bool {
	if e.checked != nil {
		return *e.checked
	}
	return e.HasAttr("checked")
}

// SetChecked changes checkedness. Checking a radio unchecks the rest of its
// group.
func (e *Node) SetChecked(v bool) {
	e.checked = &v
	if v && e.InputType() == "radio" {
		for _, r := range e.RadioGroup() {
			if r != e {
				f := false
				r.checked = &f
			}
		}
	}
	e.doc.touch()
}

// RadioGroup returns the radios sharing this radio's name within its form
// (or document when outside a form).
func (e *Node) RadioGroup() []*Node {
	name := e.AttrOr("name", "")
	if name == "" {
		return []*Node{e}
	}
	scope := e.doc.DocumentElement()
	if f := e.Form(); f != nil {
		scope = f
	}
	var out []*Node
	for _, n := range scope.Descendants() {
		if n.InputType() == "radio" && n.AttrOr("name", "") == name {
			out = append(out, n)
		}
	}
	return out
}

// Options returns the <option> elements of a <select>.
func (e *Node) Options() []*Node {
	var out []*Node
	for _, d := range e.Descendants() {
		if d.Tag() == "option" {
			out = append(out, d)
		}
	}
	if e.Tag() == "select" && !e.HasAttr("multiple") && len(out) > 0 {
		picked := false
		for _, o := range out {
			if o.Selected() {
				picked = true
				break
			}
		}
		if !picked {
			t := true
			out[0].selected = &t
		}
	}
	return out
}

// Selected reports option selectedness.
func (e *Node) Selected() bool {
	if e.selected != nil {
		return *e.selected
	}
	return e.HasAttr("selected")
}

func (e *Node) setSelected(v bool) {
	e.selected = &v
}

// Form returns the owning <form>.
func (e *Node) Form() *Node {
	if id, ok := e.Attr("form"); ok && id != "" {
		if f, _ := e.doc.Query("#" + cssEscapeIdent(id)); f != nil {
			return f
		}
	}
	p := e.Parent()
	if p == nil {
		return nil
	}
	return p.Closest("form")
}

// Disabled reports whether a control is disabled, including through a
// disabled fieldset.
func (e *Node) Disabled() bool {
	if e.HasAttr("disabled") {
		switch e.Tag() {
		case "input", "button", "select", "textarea", "option", "fieldset", "optgroup":
			return true
		}
	}
	if strings.EqualFold(e.AttrOr("aria-disabled", ""), "true") {
		return true
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		if p.Tag() == "fieldset" && p.HasAttr("disabled") {
			return true
		}
	}
	return false
}

// IsContentEditable reports an editable host.
func (e *Node) IsContentEditable() bool {
	for n := e; n != nil; n = n.Parent() {
		v, ok := n.Attr("contenteditable")
		if !ok {
			continue
		}
		return !strings.EqualFold(v, "false")
	}
	return false
}

// Focusable reports whether the element can receive focus.
func (e *Node) Focusable() bool {
	if !e.IsElement() || e.Disabled() {
		return false
	}
	switch e.Tag() {
	case "input":
		return e.InputType() != "hidden"
	case "select", "textarea", "button", "iframe", "summary":
		return true
	case "a":
		return e.HasAttr("href")
	}
	if v, ok := e.Attr("tabindex"); ok && strings.TrimSpace(v) != "" {
		return true
	}
	return e.IsContentEditable()
}

// ShadowHost returns the host element when e lives inside a declarative
// shadow root (<template shadowrootmode>).
func (e *Node) ShadowHost() *Node {
	for n := e.n.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "template" && hasAttr(n, "shadowrootmode") {
			if n.Parent != nil && n.Parent.Type == html.ElementNode {
				return e.doc.Wrap(n.Parent)
			}
		}
	}
	return nil
}

// SetText replaces the children with a single text node.
func (e *Node) SetText(s string) {
	removed := e.detachChildren()
	var added []*Node
	if s != "" {
		t := &html.Node{Type: html.TextNode, Data: s}
		e.n.AppendChild(t)
		added = append(added, e.doc.Wrap(t))
	}
	e.doc.touch()
	e.doc.notify(MutationRecord{Type: MutationChildList, Target: e, Added: added, Removed: removed})
}

// SetInnerHTML replaces the children with parsed markup.
func (e *Node) SetInnerHTML(markup string) error {
	nodes, err := e.doc.ParseFragment(markup, e)
	if err != nil {
		return err
	}
	removed := e.detachChildren()
	for _, c := range nodes {
		e.n.AppendChild(c.n)
	}
	e.doc.touch()
	e.doc.notify(MutationRecord{Type: MutationChildList, Target: e, Added: nodes, Removed: removed})
	return nil
}

// AppendHTML parses markup and appends the result.
func (e *Node) AppendHTML(markup string) ([]*Node, error) {
	nodes, err := e.doc.ParseFragment(markup, e)
	if err != nil {
		return nil, err
	}
	for _, c := range nodes {
		e.n.AppendChild(c.n)
	}
	e.doc.touch()
	e.doc.notify(MutationRecord{Type: MutationChildList, Target: e, Added: nodes})
	return nodes, nil
}

// AppendChild attaches child as the last child, detaching it first if needed.
func (e *Node) AppendChild(child *Node) {
	e.InsertBefore(child, nil)
}

// InsertBefore attaches child before ref (append when ref is nil).
func (e *Node) InsertBefore(child, ref *Node) {
	if child.n.Parent != nil {
		child.Remove()
	}
	var refNode *html.Node
	if ref != nil {
		refNode = ref.n
	}
	e.n.InsertBefore(child.n, refNode)
	e.doc.touch()
	e.doc.notify(MutationRecord{Type: MutationChildList, Target: e, Added: []*Node{child}})
}

// Remove detaches e from its parent.
func (e *Node) Remove() {
	p := e.n.Parent
	if p == nil {
		return
	}
	p.RemoveChild(e.n)
	if e.doc.active != nil && e.Contains(e.doc.Wrap(e.doc.active)) {
		e.doc.active = nil
	}
	e.doc.touch()
	e.doc.notify(MutationRecord{Type: MutationChildList, Target: e.doc.Wrap(p), Removed: []*Node{e}})
}

func (e *Node) detachChildren() []*Node {
	var removed []*Node
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		removed = append(removed, e.doc.Wrap(c))
		c = next
	}
	if e.doc.active != nil && !e.doc.Wrap(e.doc.active).Connected() {
		e.doc.active = nil
	}
	return removed
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SortByDocumentOrder orders nodes as they appear in the document.
func SortByDocumentOrder(d *Document, nodes []*Node) {
	pos := make(map[*html.Node]int)
	for i, el := range d.Elements() {
		pos[el.n] = i
	}
	sort.SliceStable(nodes, func(i, j int) bool { return pos[nodes[i].n] < pos[nodes[j].n] })
}

// cssEscapeIdent escapes an identifier for use after # or . in a selector.
func cssEscapeIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r >= 0x80:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteString(`\3`)
				b.WriteRune(r)
				b.WriteByte(' ')
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EscapeIdent is exported for selector builders.
func EscapeIdent(s string) string { return cssEscapeIdent(s) }

// QuoteAttr quotes a value for use inside [attr="..."].
func QuoteAttr(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\A `)
	return `"` + r.Replace(s) + `"`
}
