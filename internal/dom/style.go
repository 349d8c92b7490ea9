package dom

import (
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ComputedStyle is the resolved style of one element.
type ComputedStyle struct {
	Display       string  `json:"display"`
	Visibility    string  `json:"visibility"`
	Opacity       float64 `json:"opacity"`
	Position      string  `json:"position"`
	PointerEvents string  `json:"pointerEvents"`
	Cursor        string  `json:"cursor"`
	// Width and Height are negative when auto.
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Top     float64 `json:"top"`
	Left    float64 `json:"left"`
	HasTop  bool    `json:"-"`
	HasLeft bool    `json:"-"`
	// Declared holds every property that survived the cascade.
	Declared map[string]string `json:"-"`
}

// Map renders the style as strings for diagnostics.
func (cs *ComputedStyle) Map() map[string]string {
	m := map[string]string{
		"display":        cs.Display,
		"visibility":     cs.Visibility,
		"opacity":        strconv.FormatFloat(cs.Opacity, 'f', -1, 64),
		"position":       cs.Position,
		"pointer-events": cs.PointerEvents,
	}
	if cs.Width >= 0 {
		m["width"] = strconv.FormatFloat(cs.Width, 'f', -1, 64) + "px"
	}
	if cs.Height >= 0 {
		m["height"] = strconv.FormatFloat(cs.Height, 'f', -1, 64) + "px"
	}
	return m
}

// uaHidden lists elements that are never rendered.
var uaHidden = map[string]bool{
	"head": true, "script": true, "style": true, "title": true, "meta": true,
	"link": true, "noscript": true, "template": true, "datalist": true,
	"option": true, "optgroup": true, "base": true, "param": true, "source": true, "track": true,
}

type cssRule struct {
	group cascadia.SelectorGroup
	decls map[string]string
	order int
}

type matchedDecls struct {
	spec  cascadia.Specificity
	order int
	decls map[string]string
}

// collectRules gathers author rules from every <style> element in source order.
func (d *Document) collectRules() []cssRule {
	var rules []cssRule
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "style" {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			for _, r := range parseStylesheet(b.String()) {
				r.order = len(rules)
				rules = append(rules, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return rules
}

// parseStylesheet understands plain rule sets. At-rules are skipped along
// with their blocks.
func parseStylesheet(css string) []cssRule {
	css = stripComments(css)
	var rules []cssRule
	for i := 0; i < len(css); {
		open := strings.IndexByte(css[i:], '{')
		if open < 0 {
			break
		}
		prelude := strings.TrimSpace(css[i : i+open])
		end := matchingBrace(css, i+open)
		if end < 0 {
			break
		}
		body := css[i+open+1 : end]
		i = end + 1
		if strings.HasPrefix(prelude, "@") {
			continue
		}
		group, err := cascadia.ParseGroup(prelude)
		if err != nil {
			continue
		}
		rules = append(rules, cssRule{group: group, decls: parseDeclarations(body)})
	}
	return rules
}

func matchingBrace(s string, open int) int {
	depth := 0
	for j := open; j < len(s); j++ {
		switch s[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func stripComments(s string) string {
	for {
		i := strings.Index(s, "/*")
		if i < 0 {
			return s
		}
		j := strings.Index(s[i+2:], "*/")
		if j < 0 {
			return s[:i]
		}
		s = s[:i] + s[i+2+j+2:]
	}
}

// parseDeclarations parses "a: b; c: d".
func parseDeclarations(s string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// computeStyle resolves the style for n given its parent's style.
func computeStyle(n *html.Node, parent *ComputedStyle, rules []cssRule) *ComputedStyle {
	cs := &ComputedStyle{
		Display:       "block",
		Visibility:    "visible",
		Opacity:       1,
		Position:      "static",
		PointerEvents: "auto",
		Cursor:        "auto",
		Width:         -1,
		Height:        -1,
		Declared:      make(map[string]string),
	}
	if parent != nil {
		cs.Visibility = parent.Visibility
		cs.PointerEvents = parent.PointerEvents
		cs.Cursor = parent.Cursor
	}
	if inlineTags[n.Data] {
		cs.Display = "inline"
	}

	// user agent layer
	switch {
	case n.Data == "template" && hasAttr(n, "shadowrootmode"):
		cs.Display = "contents"
	case uaHidden[n.Data]:
		cs.Display = "none"
	case n.Data == "input" && strings.EqualFold(attrVal(n, "type"), "hidden"):
		cs.Display = "none"
	case n.Data == "dialog" && !hasAttr(n, "open"):
		cs.Display = "none"
	case hasAttr(n, "hidden"):
		cs.Display = "none"
	}

	// author layer
	var matched []matchedDecls
	for _, r := range rules {
		best, ok := cascadia.Specificity{}, false
		for _, sel := range r.group {
			if sel.PseudoElement() != "" || !sel.Match(n) {
				continue
			}
			if sp := sel.Specificity(); !ok || best.Less(sp) {
				best, ok = sp, true
			}
		}
		if ok {
			matched = append(matched, matchedDecls{spec: best, order: r.order, decls: r.decls})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].spec != matched[j].spec {
			return matched[i].spec.Less(matched[j].spec)
		}
		return matched[i].order < matched[j].order
	})
	for _, m := range matched {
		for k, v := range m.decls {
			cs.Declared[k] = v
		}
	}
	if inline := attrVal(n, "style"); inline != "" {
		for k, v := range parseDeclarations(inline) {
			cs.Declared[k] = v
		}
	}
	cs.apply()
	return cs
}

func (cs *ComputedStyle) apply() {
	for k, v := range cs.Declared {
		v = strings.ToLower(v)
		switch k {
		case "display":
			cs.Display = v
		case "visibility":
			cs.Visibility = v
		case "opacity":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				cs.Opacity = f
			}
		case "position":
			cs.Position = v
		case "pointer-events":
			cs.PointerEvents = v
		case "cursor":
			cs.Cursor = v
		case "width":
			if f, ok := parseLength(v); ok {
				cs.Width = f
			}
		case "height":
			if f, ok := parseLength(v); ok {
				cs.Height = f
			}
		case "top":
			if f, ok := parseLength(v); ok {
				cs.Top, cs.HasTop = f, true
			}
		case "left":
			if f, ok := parseLength(v); ok {
				cs.Left, cs.HasLeft = f, true
			}
		}
	}
}

// parseLength understands px and unitless zero.
func parseLength(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "0" {
		return 0, true
	}
	if !strings.HasSuffix(v, "px") {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
