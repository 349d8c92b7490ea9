package page

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

// TestAttributes are the test-automation attributes tried first, in order.
var TestAttributes = []string{
	"data-testid",
	"data-test-id",
	"data-test",
	"data-cy",
	"data-qa",
	"data-automation-id",
}

// Selector strategies reported with each alternative.
const (
	StrategyTestAttribute = "test-attribute"
	StrategyID            = "id"
	StrategyName          = "name"
	StrategyAriaLabel     = "aria-label"
	StrategyClass         = "class"
	StrategyPath          = "path"
)

// stateClasses flip with interaction and never identify an element.
var stateClasses = map[string]bool{
	"active": true, "open": true, "opened": true, "selected": true,
	"focus": true, "focused": true, "hover": true, "hovered": true,
	"disabled": true, "checked": true, "expanded": true, "collapsed": true,
	"visible": true, "hidden": true, "show": true, "shown": true,
	"current": true, "highlighted": true, "loading": true, "error": true,
	"invalid": true, "valid": true, "dirty": true, "touched": true,
	"pristine": true,
}

var statePrefixes = []string{"is-", "has-", "ng-", "was-"}

// generatedClass matches CSS-in-JS class names that change between builds.
var generatedClass = regexp.MustCompile(`^(css|sc|jsx|emotion|svelte)-\w*\d`)

const (
	maxClassCandidates = 8
	maxClassCombo      = 3
)

// SelectorSet is the result of running the cascade for one element.
type SelectorSet struct {
	Primary      string
	Strategy     string
	Confidence   string
	Alternatives []model.SelectorAlternative
}

// Synthesize runs the selector cascade for el. Every selector it returns
// resolves to exactly el in the current document. The first unique selector
// becomes the primary; the rest are alternatives. Each candidate is
// re-queried against the whole document, so indexing n elements costs O(n·k)
// queries for k cascade steps.
func Synthesize(doc *dom.Document, el *dom.Node) SelectorSet {
	var found []model.SelectorAlternative
	seen := make(map[string]bool)
	add := func(sel, strategy, confidence string) {
		if sel == "" || seen[sel] || !resolvesTo(doc, sel, el) {
			return
		}
		seen[sel] = true
		found = append(found, model.SelectorAlternative{Selector: sel, Strategy: strategy, Confidence: confidence})
	}

	for _, attr := range TestAttributes {
		if v := el.AttrOr(attr, ""); v != "" {
			add(attrSelector("", attr, v), StrategyTestAttribute, model.ConfidenceHigh)
		}
	}
	if id := el.ID(); id != "" {
		add("#"+dom.EscapeIdent(id), StrategyID, model.ConfidenceHigh)
	}
	if name := el.AttrOr("name", ""); name != "" && isFormControl(el) {
		add(attrSelector(el.Tag(), "name", name), StrategyName, model.ConfidenceMedium)
	}
	if label := el.AttrOr("aria-label", ""); label != "" {
		add(attrSelector("", "aria-label", label), StrategyAriaLabel, model.ConfidenceMedium)
	}
	add(classSelector(doc, el), StrategyClass, model.ConfidenceMedium)
	add(PathSelector(doc, el), StrategyPath, model.ConfidenceLow)

	if len(found) == 0 {
		return SelectorSet{}
	}
	return SelectorSet{
		Primary:      found[0].Selector,
		Strategy:     found[0].Strategy,
		Confidence:   found[0].Confidence,
		Alternatives: found[1:],
	}
}

// resolvesTo reports whether sel matches exactly one element and that
// element is el.
func resolvesTo(doc *dom.Document, sel string, el *dom.Node) bool {
	nodes, err := doc.QueryAll(sel)
	return err == nil && len(nodes) == 1 && nodes[0] == el
}

func attrSelector(tag, attr, value string) string {
	return fmt.Sprintf("%s[%s=%s]", tag, attr, dom.QuoteAttr(value))
}

func isFormControl(el *dom.Node) bool {
	switch el.Tag() {
	case "input", "select", "textarea", "button":
		return true
	}
	return false
}

// StableClasses filters out state and generated class names.
func StableClasses(classes []string) []string {
	var out []string
	for _, c := range classes {
		lc := strings.ToLower(c)
		if stateClasses[lc] || generatedClass.MatchString(lc) {
			continue
		}
		skip := false
		for _, p := range statePrefixes {
			if strings.HasPrefix(lc, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}

// classSelector returns the smallest unique combination of stable classes,
// trying each combination bare and then qualified by tag.
func classSelector(doc *dom.Document, el *dom.Node) string {
	classes := StableClasses(el.Classes())
	if len(classes) > maxClassCandidates {
		classes = classes[:maxClassCandidates]
	}
	for k := 1; k <= maxClassCombo && k <= len(classes); k++ {
		var hit string
		combinations(len(classes), k, func(idx []int) bool {
			var b strings.Builder
			for _, i := range idx {
				b.WriteByte('.')
				b.WriteString(dom.EscapeIdent(classes[i]))
			}
			for _, sel := range []string{b.String(), el.Tag() + b.String()} {
				if resolvesTo(doc, sel, el) {
					hit = sel
					return false
				}
			}
			return true
		})
		if hit != "" {
			return hit
		}
	}
	return ""
}

// combinations calls fn with every k-subset of [0,n) in lexical order until
// fn returns false.
func combinations(n, k int, fn func([]int) bool) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// PathSelector builds a child-combinator path from el up to the root,
// stopping early at an ancestor that carries a unique id or test attribute.
// Same-tag siblings are told apart with :nth-of-type.
func PathSelector(doc *dom.Document, el *dom.Node) string {
	var segs []string
	for n := el; n != nil; n = n.Parent() {
		if n != el {
			if anchor := anchorSelector(doc, n); anchor != "" {
				segs = append(segs, anchor)
				break
			}
		}
		seg := n.Tag()
		switch seg {
		case "html", "body", "head":
		default:
			if idx, total := n.NthOfType(); total > 1 {
				seg += fmt.Sprintf(":nth-of-type(%d)", idx)
			}
		}
		segs = append(segs, seg)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, " > ")
}

func anchorSelector(doc *dom.Document, n *dom.Node) string {
	if id := n.ID(); id != "" {
		if sel := "#" + dom.EscapeIdent(id); resolvesTo(doc, sel, n) {
			return sel
		}
	}
	for _, attr := range TestAttributes {
		if v := n.AttrOr(attr, ""); v != "" {
			if sel := attrSelector("", attr, v); resolvesTo(doc, sel, n) {
				return sel
			}
		}
	}
	return ""
}
