package page

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
	"golang.org/x/net/html"
)

const maxLabelLen = 80

// IndexOptions filters the element index.
type IndexOptions struct {
	Types      []string `json:"types,omitempty"      yaml:"types,omitempty"`
	Text       string   `json:"text,omitempty"       yaml:"text,omitempty"`
	InViewport bool     `json:"inViewport,omitempty" yaml:"inViewport,omitempty"`
	Limit      int      `json:"limit,omitempty"      yaml:"limit,omitempty"`
	// Scope restricts the search to descendants of the first match.
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Index enumerates the visible interactive elements of doc. Off-screen
// elements are kept and flagged through InViewport. Refs are assigned over
// the full set before filters apply, so a ref does not change with the
// filter used to read it.
func Index(doc *dom.Document, opts IndexOptions, frameID int) ([]model.ElementDescriptor, error) {
	nodes, err := Candidates(doc, opts.Scope)
	if err != nil {
		return nil, err
	}
	elements := make([]model.ElementDescriptor, 0, len(nodes))
	for i, n := range nodes {
		elements = append(elements, Describe(doc, n, i, frameID))
	}
	model.GenerateRefs(elements)

	elements = model.FilterElements(elements, opts.Types, nil)
	elements = model.FilterByText(elements, opts.Text)
	if opts.InViewport {
		elements = model.FilterInViewport(elements)
	}
	return model.Limit(elements, opts.Limit), nil
}

// Candidates returns the visible interactive nodes in document order.
func Candidates(doc *dom.Document, scope string) ([]*dom.Node, error) {
	pool := doc.Elements()
	if scope != "" {
		root, err := doc.Query(scope)
		if err != nil {
			return nil, err
		}
		if root == nil {
			return nil, nil
		}
		pool = root.Descendants()
	}
	var out []*dom.Node
	for _, n := range pool {
		if IsCandidate(n) && n.Visible() {
			out = append(out, n)
		}
	}
	return out, nil
}

// IsCandidate reports whether n is something a user can interact with.
func IsCandidate(n *dom.Node) bool {
	switch n.Tag() {
	case "input":
		return n.InputType() != "hidden"
	case "select", "textarea", "button", "summary":
		return true
	case "a":
		return n.HasAttr("href")
	}
	if model.MapRole(primaryRole(n.AttrOr("role", ""))) != "" {
		return true
	}
	if v, ok := n.Attr("tabindex"); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i >= 0 {
			return true
		}
	}
	if n.HasAttr("onclick") || n.Document().HasListener(n, "click") {
		return true
	}
	if v, ok := n.Attr("contenteditable"); ok && !strings.EqualFold(v, "false") {
		if p := n.Parent(); p == nil || !p.IsContentEditable() {
			return true
		}
	}
	// Custom controls without semantics usually still declare a pointer
	// cursor on themselves.
	if n.Style().Declared["cursor"] == "pointer" {
		for p := n.Parent(); p != nil; p = p.Parent() {
			if IsCandidate(p) {
				return false
			}
		}
		return true
	}
	return false
}

func primaryRole(role string) string {
	f := strings.Fields(strings.ToLower(role))
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// SemanticType classifies n. combo marks a text input already recognised as
// the visible half of a custom dropdown.
func SemanticType(n dom.QueryableNode, combo bool) string {
	attrs := n.Attributes()
	if t := model.MapRole(primaryRole(attrs["role"])); t != "" {
		return t
	}
	switch n.Tag() {
	case "a":
		return model.TypeLink
	case "button":
		return model.TypeButton
	case "select":
		return model.TypeDropdown
	case "textarea":
		return model.TypeTextArea
	case "summary":
		return model.TypeSummary
	case "input":
		t := strings.ToLower(strings.TrimSpace(attrs["type"]))
		if mt, ok := model.InputTypeMap[t]; ok {
			return mt
		}
		if combo {
			return model.TypeComboBox
		}
		return model.TypeTextInput
	}
	if v, ok := attrs["contenteditable"]; ok && !strings.EqualFold(v, "false") {
		return model.TypeEditable
	}
	return model.TypeOther
}

// LabelInputs carries the document-derived facts label inference needs.
type LabelInputs struct {
	// Associated is the text of a label[for] or wrapping <label>.
	Associated string
	// LabelledBy is the joined text of the aria-labelledby targets.
	LabelledBy string
	// Text is the element's own visible text.
	Text string
}

// InferLabel picks the human label for n: associated label, aria-label,
// aria-labelledby, placeholder, title, alt, then the element's own text.
func InferLabel(n dom.QueryableNode, in LabelInputs) string {
	attrs := n.Attributes()
	for _, s := range []string{in.Associated, attrs["aria-label"], in.LabelledBy, attrs["placeholder"], attrs["title"], attrs["alt"]} {
		if s = collapse(s); s != "" {
			return truncate(s, maxLabelLen)
		}
	}
	if n.Tag() == "input" {
		switch strings.ToLower(attrs["type"]) {
		case "submit", "button", "reset":
			if v := collapse(attrs["value"]); v != "" {
				return truncate(v, maxLabelLen)
			}
		}
	}
	return truncate(collapse(in.Text), maxLabelLen)
}

// LabelFor gathers LabelInputs for n and infers its label.
func LabelFor(doc *dom.Document, n *dom.Node) string {
	return InferLabel(n, labelInputs(doc, n))
}

func labelInputs(doc *dom.Document, n *dom.Node) LabelInputs {
	var in LabelInputs
	if id := n.ID(); id != "" {
		if labels, err := doc.QueryAll("label[for=" + dom.QuoteAttr(id) + "]"); err == nil && len(labels) > 0 {
			in.Associated = labelText(labels[0])
		}
	}
	if in.Associated == "" {
		if l := n.Closest("label"); l != nil && l != n {
			in.Associated = labelText(l)
		}
	}
	if ids := strings.Fields(n.AttrOr("aria-labelledby", "")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if t, _ := doc.Query("#" + dom.EscapeIdent(id)); t != nil {
				parts = append(parts, t.VisibleText())
			}
		}
		in.LabelledBy = strings.Join(parts, " ")
	}
	switch n.Tag() {
	case "input", "select", "textarea":
	default:
		in.Text = n.VisibleText()
	}
	return in
}

// labelText is a label's text without the text of controls nested in it.
func labelText(label *dom.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
				b.WriteByte(' ')
			case html.ElementNode:
				switch c.Data {
				case "select", "textarea", "option", "script", "style":
					continue
				}
				walk(c)
			}
		}
	}
	walk(label.HTML())
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

// landmarkSelector matches regions whose label becomes part of a ref.
const landmarkSelector = "form, dialog, fieldset, nav, section, aside, header, footer, main, [role=dialog], [role=region], [role=form], [role=navigation]"

// landmarkPath builds the slug path of labeled regions enclosing n,
// outermost first.
func landmarkPath(n *dom.Node) string {
	var segs []string
	for p := n.Parent(); p != nil; p = p.Parent() {
		if !p.Matches(landmarkSelector) {
			continue
		}
		if slug := model.Slugify(regionName(p)); slug != "" {
			segs = append(segs, slug)
		}
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}

func regionName(p *dom.Node) string {
	if v := p.AttrOr("aria-label", ""); v != "" {
		return v
	}
	if p.Tag() == "fieldset" {
		if lg, _ := p.Query("legend"); lg != nil {
			return lg.VisibleText()
		}
	}
	if h, _ := p.Query("h1, h2, h3, h4"); h != nil {
		return h.VisibleText()
	}
	if v := p.AttrOr("name", ""); v != "" {
		return v
	}
	return p.ID()
}

// Describe builds the descriptor for n.
func Describe(doc *dom.Document, n *dom.Node, index, frameID int) model.ElementDescriptor {
	sel := Synthesize(doc, n)
	combo := false
	if n.Tag() == "input" && isTextLike(n.InputType()) {
		combo = comboContainer(n) != nil
	}
	d := model.ElementDescriptor{
		Index:        index,
		Tag:          n.Tag(),
		Type:         SemanticType(n, combo),
		Role:         n.AttrOr("role", ""),
		Label:        LabelFor(doc, n),
		Value:        currentValue(n),
		Name:         n.AttrOr("name", ""),
		Placeholder:  n.AttrOr("placeholder", ""),
		Href:         n.AttrOr("href", ""),
		Selector:     sel.Primary,
		Alternatives: sel.Alternatives,
		Disabled:     n.Disabled(),
		Required:     n.HasAttr("required") || n.AttrOr("aria-required", "") == "true",
		Checked:      checkedState(n),
		Focused:      doc.ActiveElement() == n,
		FrameID:      frameID,
		Landmark:     landmarkPath(n),
	}
	if host := n.ShadowHost(); host != nil {
		d.ShadowHost = Synthesize(doc, host).Primary
	}
	placeBox(doc, n.BoundingBox(), &d)
	return d
}

func placeBox(doc *dom.Document, r dom.Rect, d *model.ElementDescriptor) {
	vp := doc.Viewport
	vr := doc.ViewportRect(r)
	d.Bounds = model.Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	if vp.Width > 0 && vp.Height > 0 {
		d.Viewport = model.Box{
			X:      round4(vr.X / vp.Width),
			Y:      round4(vr.Y / vp.Height),
			Width:  round4(r.Width / vp.Width),
			Height: round4(r.Height / vp.Height),
		}
	}
	d.Screen = screenBox(vp, vr)
	d.ScreenCenter = d.Screen.Center()
	d.InViewport = doc.InViewport(r)
}

// screenBox converts a viewport-relative box to screen coordinates.
func screenBox(vp dom.Viewport, vr dom.Rect) model.Box {
	return model.Box{
		X:      vp.ScreenX + vp.ChromeLeft + vr.X,
		Y:      vp.ScreenY + vp.ChromeTop + vr.Y,
		Width:  vr.Width,
		Height: vr.Height,
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

func currentValue(n *dom.Node) string {
	switch n.Tag() {
	case "input":
		switch n.InputType() {
		case "password":
			return ""
		case "checkbox", "radio":
			return n.AttrOr("value", "")
		}
		return n.Value()
	case "textarea", "select":
		return n.Value()
	}
	if n.IsContentEditable() {
		return collapse(n.Text())
	}
	return ""
}

func checkedState(n *dom.Node) *bool {
	if n.Tag() == "input" {
		switch n.InputType() {
		case "checkbox", "radio":
			v := n.Checked()
			return &v
		}
	}
	switch primaryRole(n.AttrOr("role", "")) {
	case "checkbox", "switch", "radio", "menuitemcheckbox", "menuitemradio":
		v := n.AttrOr("aria-checked", "") == "true"
		return &v
	}
	return nil
}

func isTextLike(t string) bool {
	switch t {
	case "text", "search", "email", "url", "tel", "password", "number", "":
		return true
	}
	return false
}
