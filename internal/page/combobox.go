package page

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
	"golang.org/x/net/html"
)

const (
	// maxComboDepth bounds the ancestor walk looking for a container.
	maxComboDepth = 6

	toggleSelector = `[class*="indicator"], [class*="toggle"], [class*="arrow"], [class*="caret"], ` +
		`[class*="__open"], [aria-label*="open"], [aria-label*="Open"], button, [role=button]`

	listboxSelector = `[role=listbox], [class*="__menu"], .ant-select-dropdown, .select2-results, ` +
		`.chosen-results, .vs__dropdown-menu, .MuiAutocomplete-popper, .MuiAutocomplete-listbox, ` +
		`[class*="dropdown-menu"], [class*="menu-list"], [class*="options"], ul`

	optionSelector = `[role=option], [class*="__option"], .ant-select-item-option, .select2-results__option, ` +
		`.active-result, .vs__dropdown-option, [class*="option"], li`
)

// FindComboContainer returns the index in chain (innermost first, starting
// with the input's parent) of the first node whose class, id or role marks
// it as a custom dropdown container, or -1.
func FindComboContainer(chain []dom.QueryableNode) int {
	for i, n := range chain {
		if i >= maxComboDepth {
			break
		}
		attrs := n.Attributes()
		if attrs["role"] == "combobox" || model.NameHints(attrs, model.ComboBoxHints...) {
			return i
		}
	}
	return -1
}

func comboContainer(n *dom.Node) *dom.Node {
	var chain []*dom.Node
	var q []dom.QueryableNode
	for p := n.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
		q = append(q, p)
	}
	if i := FindComboContainer(q); i >= 0 {
		return chain[i]
	}
	if n.AttrOr("role", "") == "combobox" && len(chain) > 0 {
		return chain[0]
	}
	return nil
}

// DetectComboBox probes the text input matched by selector. It returns nil
// when the input is not part of a custom dropdown.
func DetectComboBox(doc *dom.Document, selector string) (*model.ComboBoxInfo, error) {
	el, err := queryOne(doc, selector)
	if err != nil {
		return nil, err
	}
	return detectNode(doc, el), nil
}

func detectNode(doc *dom.Document, el *dom.Node) *model.ComboBoxInfo {
	if el.Tag() != "input" || !isTextLike(el.InputType()) {
		return nil
	}
	container := comboContainer(el)
	if container == nil {
		return nil
	}
	return probe(doc, el, container)
}

func probe(doc *dom.Document, el, container *dom.Node) *model.ComboBoxInfo {
	info := &model.ComboBoxInfo{
		InputSelector:     Synthesize(doc, el).Primary,
		Family:            familyOf(el, container),
		ContainerSelector: Synthesize(doc, container).Primary,
	}
	if t := findToggle(container, el); t != nil {
		info.ToggleSelector = Synthesize(doc, t).Primary
	}
	if lb := findListbox(doc, el, container); lb != nil {
		info.ListboxSelector = Synthesize(doc, lb).Primary
		info.Options = harvestOptions(doc, lb)
		info.Open = len(info.Options) > 0 || el.AttrOr("aria-expanded", "") == "true"
	}
	return info
}

func familyOf(el, container *dom.Node) string {
	chain := []map[string]string{el.Attributes()}
	n := 0
	for p := el.Parent(); p != nil && n < maxComboDepth+2; p = p.Parent() {
		chain = append(chain, p.Attributes())
		n++
	}
	return model.ClassifyFamily(chain)
}

func findToggle(container, el *dom.Node) *dom.Node {
	nodes, _ := container.QueryAll(toggleSelector)
	for _, n := range nodes {
		if n != el && !n.Contains(el) && n.Visible() {
			return n
		}
	}
	return nil
}

func findListbox(doc *dom.Document, el, container *dom.Node) *dom.Node {
	for _, attr := range []string{"aria-controls", "aria-owns"} {
		for _, id := range strings.Fields(el.AttrOr(attr, "")) {
			if lb, _ := doc.Query("#" + dom.EscapeIdent(id)); lb != nil && lb.Visible() {
				return lb
			}
		}
	}
	nodes, _ := container.QueryAll(listboxSelector)
	for _, n := range nodes {
		if !n.Contains(el) && n.Visible() {
			return n
		}
	}
	return nil
}

// harvestOptions collects the innermost visible option nodes under lb.
func harvestOptions(doc *dom.Document, lb *dom.Node) []model.DropdownOption {
	nodes, _ := lb.QueryAll(optionSelector)
	var picked []*dom.Node
	for _, n := range nodes {
		if !n.Visible() {
			continue
		}
		// a later match inside n means n is a wrapper
		inner := false
		for _, m := range nodes {
			if m != n && n.Contains(m) && m.Visible() {
				inner = true
				break
			}
		}
		if !inner {
			picked = append(picked, n)
		}
	}
	out := make([]model.DropdownOption, 0, len(picked))
	for _, n := range picked {
		text := n.VisibleText()
		if text == "" {
			continue
		}
		var d model.ElementDescriptor
		placeBox(doc, n.BoundingBox(), &d)
		out = append(out, model.DropdownOption{
			Text:     text,
			Value:    optionValue(n),
			Selector: Synthesize(doc, n).Primary,
			Selected: n.AttrOr("aria-selected", "") == "true" || hasClassFragment(n, "selected"),
			Disabled: n.AttrOr("aria-disabled", "") == "true" || hasClassFragment(n, "disabled"),
			Bounds:   d.Bounds,
			Screen:   d.ScreenCenter,
		})
	}
	return out
}

func optionValue(n *dom.Node) string {
	for _, a := range []string{"data-value", "value", "data-key"} {
		if v := n.AttrOr(a, ""); v != "" {
			return v
		}
	}
	return ""
}

func hasClassFragment(n *dom.Node, frag string) bool {
	return strings.Contains(strings.ToLower(n.AttrOr("class", "")), frag)
}

func nativeOptions(doc *dom.Document, sel *dom.Node) []model.DropdownOption {
	var out []model.DropdownOption
	box := sel.BoundingBox()
	for _, o := range sel.Options() {
		var d model.ElementDescriptor
		placeBox(doc, box, &d)
		out = append(out, model.DropdownOption{
			Text:     collapse(o.Text()),
			Value:    o.Value(),
			Selector: Synthesize(doc, o).Primary,
			Selected: o.Selected(),
			Disabled: o.Disabled(),
			Bounds:   d.Bounds,
			Screen:   d.ScreenCenter,
		})
	}
	return out
}

// DropdownOptions controls GetDropdownOptions.
type DropdownOptions struct {
	// WaitMs overrides the settle interval after opening.
	WaitMs     int  `json:"waitMs,omitempty"`
	CloseAfter bool `json:"closeAfter,omitempty"`
}

// GetDropdownOptions returns the options of the dropdown at selector,
// opening a closed custom dropdown first. When nothing can be harvested the
// result carries a hint for the next step instead of an error.
func (e *Engine) GetDropdownOptions(ctx context.Context, selector string, opts DropdownOptions) (*model.DropdownResult, error) {
	res := &model.DropdownResult{Selector: selector}
	var (
		el, container *dom.Node
		before        map[*html.Node]bool
		done          bool
	)
	err := e.do(ctx, func() error {
		var err error
		el, err = e.resolve(selector)
		if err != nil {
			return err
		}
		if el.Tag() == "select" {
			res.Native = true
			res.Source = "native"
			res.Options = nativeOptions(e.doc, el)
			done = true
			return nil
		}
		container = comboContainer(el)
		if container == nil && opensPopup(el) {
			container = el.Parent()
		}
		if container == nil {
			return bridgeerr.Newf(bridgeerr.CodeComboBoxNotDetected,
				"%s is neither a <select> nor inside a recognised dropdown container", selector).
				With("hint", "use click and find_elements_by_text to work with this control")
		}
		info := probe(e.doc, el, container)
		res.Family = info.Family
		if len(info.Options) > 0 {
			res.Source = "container"
			res.Options = info.Options
			done = true
			return nil
		}
		before = visibleListboxes(e.doc)
		var toggle *dom.Node
		if info.ToggleSelector != "" {
			toggle, _ = e.doc.Query(info.ToggleSelector)
		}
		e.openDropdown(el, toggle)
		res.Opened = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if done {
		return res, nil
	}

	wait := e.opts.SettleDelay
	if opts.WaitMs > 0 {
		wait = time.Duration(opts.WaitMs) * time.Millisecond
	}
	if err := sleep(ctx, wait); err != nil {
		return nil, err
	}

	err = e.do(ctx, func() error {
		if !el.Connected() {
			res.Hint = "the dropdown input was removed while opening; re-index and retry"
			return nil
		}
		info := probe(e.doc, el, container)
		if len(info.Options) > 0 {
			res.Source = "container"
			res.Options = info.Options
		} else {
			for _, lb := range e.doc.Elements() {
				if before[lb.HTML()] || !lb.Matches(listboxSelector) || !lb.Visible() || lb.Contains(el) {
					continue
				}
				if found := harvestOptions(e.doc, lb); len(found) > 0 {
					res.Source = "document-scan"
					res.Options = found
					break
				}
			}
		}
		if opts.CloseAfter {
			e.keySequence(el, parseKey("Escape"))
			res.Closed = true
		}
		if len(res.Options) == 0 {
			res.Hint = fmt.Sprintf("no options appeared after %s; type part of the value with fill to trigger a search, "+
				"or click the toggle and call get_dropdown_options again", wait)
			if res.Family != "" {
				res.Hint += fmt.Sprintf(" (detected %s)", res.Family)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Options == nil {
		res.Options = []model.DropdownOption{}
	}
	return res, nil
}

func opensPopup(el *dom.Node) bool {
	if primaryRole(el.AttrOr("role", "")) == "combobox" {
		return true
	}
	switch el.AttrOr("aria-haspopup", "") {
	case "listbox", "true", "menu":
		return true
	}
	return false
}

func visibleListboxes(doc *dom.Document) map[*html.Node]bool {
	out := make(map[*html.Node]bool)
	nodes, _ := doc.QueryAll(listboxSelector)
	for _, n := range nodes {
		if n.Visible() {
			out[n.HTML()] = true
		}
	}
	return out
}

// openDropdown clicks the toggle when there is one. Otherwise it presses on
// the input, clicks twice and sends ArrowDown, which covers widgets that
// open on pointer input as well as those that open on keys.
func (e *Engine) openDropdown(input, toggle *dom.Node) {
	if toggle != nil {
		e.pointerDown(toggle)
		e.pointerUp(toggle)
		e.fireMouse(toggle, "click")
		return
	}
	e.pointerDown(input)
	e.pointerUp(input)
	e.fireMouse(input, "click")
	e.fireMouse(input, "click")
	e.doc.Focus(input)
	e.keySequence(input, parseKey("ArrowDown"))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
