package dom

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	charWidth  = 8.0
	lineHeight = 20.0
)

var inlineTags = map[string]bool{
	"a": true, "span": true, "label": true, "b": true, "strong": true, "i": true,
	"em": true, "small": true, "code": true, "abbr": true, "img": true, "svg": true,
	"button": true, "input": true, "select": true, "textarea": true,
}

type layoutResult struct {
	version uint64
	styles  map[*html.Node]*ComputedStyle
	boxes   map[*html.Node]Rect
	hidden  map[*html.Node]bool
}

// ensureLayout recomputes styles and boxes when the document changed.
func (d *Document) ensureLayout() {
	if d.layout != nil && d.layout.version == d.version {
		return
	}
	lr := &layoutResult{
		version: d.version,
		styles:  make(map[*html.Node]*ComputedStyle),
		boxes:   make(map[*html.Node]Rect),
		hidden:  make(map[*html.Node]bool),
	}
	rules := d.collectRules()
	var cascade func(n *html.Node, parent *ComputedStyle, parentHidden bool, parentOpacity float64)
	cascade = func(n *html.Node, parent *ComputedStyle, parentHidden bool, parentOpacity float64) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			cs := computeStyle(c, parent, rules)
			lr.styles[c] = cs
			opacity := parentOpacity * cs.Opacity
			hidden := parentHidden || cs.Display == "none" || cs.Visibility == "hidden" ||
				cs.Visibility == "collapse" || opacity <= 0
			lr.hidden[c] = hidden
			cascade(c, cs, parentHidden || cs.Display == "none", opacity)
		}
	}
	cascade(d.root, nil, false, 1)
	lr.place(d.root, 0, 0, d.Viewport.Width)
	d.layout = lr
}

// place lays out the children of n in a single column starting at (x, y) and
// returns the height they consume.
func (lr *layoutResult) place(n *html.Node, x, y, w float64) float64 {
	h := 0.0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			h += textHeight(c.Data, w)
		case html.ElementNode:
			h += lr.placeElement(c, x, y+h, w)
		}
	}
	return h
}

func (lr *layoutResult) placeElement(n *html.Node, x, y, w float64) float64 {
	cs := lr.styles[n]
	if cs == nil || cs.Display == "none" {
		return 0
	}
	if cs.Display == "contents" {
		return lr.place(n, x, y, w)
	}
	out := cs.Position == "absolute" || cs.Position == "fixed"
	if out {
		if cs.HasLeft {
			x = cs.Left
		}
		if cs.HasTop {
			y = cs.Top
		}
	}
	iw, ih := intrinsicSize(n)
	width := w
	switch {
	case cs.Width >= 0:
		width = cs.Width
	case iw >= 0:
		width = math.Min(iw, w)
	case cs.Display == "inline" || cs.Display == "inline-block" || cs.Display == "inline-flex":
		if tw := textWidth(collapsedText(n)); tw > 0 {
			width = math.Min(tw, w)
		}
	}
	content := 0.0
	if n.Data != "iframe" && n.Data != "select" && n.Data != "textarea" {
		content = lr.place(n, x, y, width)
	}
	height := content
	switch {
	case cs.Height >= 0:
		height = cs.Height
	case ih >= 0:
		height = math.Max(ih, content)
	}
	if n.Data == "br" {
		height = lineHeight
	}
	lr.boxes[n] = Rect{X: x, Y: y, Width: width, Height: height}
	if out {
		return 0
	}
	return height
}

// intrinsicSize returns the default size of replaced and form elements, or
// -1 when the element sizes to its content.
func intrinsicSize(n *html.Node) (float64, float64) {
	num := func(key string, def float64) float64 {
		if v, err := strconv.ParseFloat(attrVal(n, key), 64); err == nil {
			return v
		}
		return def
	}
	switch n.Data {
	case "input":
		switch strings.ToLower(attrVal(n, "type")) {
		case "checkbox", "radio":
			return 16, 16
		case "submit", "button", "reset":
			return math.Max(64, textWidth(attrVal(n, "value"))+32), 32
		case "file":
			return 240, 32
		case "range":
			return 160, 20
		case "color":
			return 50, 30
		case "image":
			return num("width", 24), num("height", 24)
		}
		return 200, 32
	case "textarea":
		return 300, num("rows", 2)*lineHeight + 4
	case "select":
		if hasAttr(n, "multiple") {
			return 200, num("size", 4) * lineHeight
		}
		return 200, 32
	case "button":
		return math.Max(64, textWidth(collapsedText(n))+32), 32
	case "img", "svg", "canvas":
		return num("width", 24), num("height", 24)
	case "iframe", "video", "embed", "object":
		return num("width", 300), num("height", 150)
	case "hr":
		return -1, 2
	}
	return -1, -1
}

func textWidth(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * charWidth
}

func textHeight(s string, w float64) float64 {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return 0
	}
	perLine := math.Max(1, math.Floor(w/charWidth))
	return math.Ceil(float64(utf8.RuneCountInString(s))/perLine) * lineHeight
}

func collapsedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// BoundingBox returns the element's box in document coordinates. Elements
// that are not rendered have an empty box.
func (e *Node) BoundingBox() Rect {
	if !e.IsElement() || !e.Connected() {
		return Rect{}
	}
	e.doc.ensureLayout()
	return e.doc.layout.boxes[e.n]
}

// Style returns the computed style.
func (e *Node) Style() ComputedStyle {
	if !e.IsElement() || !e.Connected() {
		return ComputedStyle{Display: "none", Visibility: "visible", Width: -1, Height: -1}
	}
	e.doc.ensureLayout()
	if cs := e.doc.layout.styles[e.n]; cs != nil {
		return *cs
	}
	return ComputedStyle{Display: "block", Visibility: "visible", Opacity: 1, Width: -1, Height: -1}
}

// ComputedVisibility folds display, visibility and opacity over the
// ancestor chain.
func (e *Node) ComputedVisibility() Visibility {
	cs := e.Style()
	v := Visibility{Display: cs.Display, Visibility: cs.Visibility, Opacity: cs.Opacity}
	if !e.IsElement() || !e.Connected() {
		v.Hidden = true
		return v
	}
	v.Hidden = e.doc.layout.hidden[e.n]
	return v
}

// Visible reports a rendered element with a non-empty box.
func (e *Node) Visible() bool {
	return !e.ComputedVisibility().Hidden && !e.BoundingBox().Empty()
}

// ViewportRect converts a document box to viewport coordinates.
func (d *Document) ViewportRect(r Rect) Rect {
	r.X -= d.Viewport.ScrollX
	r.Y -= d.Viewport.ScrollY
	return r
}

// InViewport reports whether the box intersects the visible area.
func (d *Document) InViewport(r Rect) bool {
	return d.ViewportRect(r).Intersects(Rect{Width: d.Viewport.Width, Height: d.Viewport.Height})
}

// ScrollIntoView scrolls so that e is centered vertically when it is not
// already fully visible.
func (e *Node) ScrollIntoView() {
	r := e.BoundingBox()
	vp := e.doc.Viewport
	if r.Y >= vp.ScrollY && r.Y+r.Height <= vp.ScrollY+vp.Height &&
		r.X >= vp.ScrollX && r.X+r.Width <= vp.ScrollX+vp.Width {
		return
	}
	e.doc.SetScroll(vp.ScrollX, r.Y+r.Height/2-vp.Height/2)
}

// ElementFromPoint returns the deepest rendered element whose box contains
// the viewport point.
func (d *Document) ElementFromPoint(x, y float64) *Node {
	d.ensureLayout()
	px, py := x+d.Viewport.ScrollX, y+d.Viewport.ScrollY
	var hit *Node
	for _, el := range d.Elements() {
		if d.layout.hidden[el.n] {
			continue
		}
		if cs := d.layout.styles[el.n]; cs != nil && cs.PointerEvents == "none" {
			continue
		}
		r := d.layout.boxes[el.n]
		if !r.Empty() && px >= r.X && px < r.X+r.Width && py >= r.Y && py < r.Y+r.Height {
			hit = el
		}
	}
	return hit
}
