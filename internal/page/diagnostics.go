package page

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/sahilm/fuzzy"
)

// Ring is a fixed-capacity buffer that evicts the oldest entry when full.
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	next int
	full bool
}

// NewRing creates a ring holding at most capacity entries.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Items returns the entries oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]T(nil), r.buf[:r.next]...)
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Clear drops every entry.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.next, r.full = 0, false
}

// Lookup outcomes.
const (
	StatusFound           = "found"
	StatusNotFound        = "not_found"
	StatusAmbiguous       = "ambiguous"
	StatusNotInteractable = "not_interactable"
)

const (
	maxCandidates  = 5
	maxSuggestions = 10
)

// DebugResult explains how a selector resolved.
type DebugResult struct {
	Selector    string                    `json:"selector"              yaml:"selector"`
	Status      string                    `json:"status"                yaml:"status"`
	MatchCount  int                       `json:"matchCount"            yaml:"matchCount"`
	Element     *model.ElementDescriptor  `json:"element,omitempty"     yaml:"element,omitempty"`
	Candidates  []model.ElementDescriptor `json:"candidates,omitempty"  yaml:"candidates,omitempty"`
	Warning     string                    `json:"warning,omitempty"     yaml:"warning,omitempty"`
	Style       map[string]string         `json:"style,omitempty"       yaml:"style,omitempty"`
	Suggestions []string                  `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`

	node *dom.Node
}

// FindElementWithDebug resolves selector and classifies the outcome. Zero
// matches come with suggestions, several matches with up to five candidates
// and the first visible one picked, and a single invisible match is reported
// as not interactable together with its computed style.
func FindElementWithDebug(doc *dom.Document, selector string, frameID int) (*DebugResult, error) {
	nodes, err := doc.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	res := &DebugResult{Selector: selector, MatchCount: len(nodes)}
	switch len(nodes) {
	case 0:
		res.Status = StatusNotFound
		res.Suggestions = Suggest(doc, selector)
	case 1:
		n := nodes[0]
		d := Describe(doc, n, 0, frameID)
		res.Element = &d
		res.node = n
		res.Status = StatusFound
		if !n.Visible() {
			res.Status = StatusNotInteractable
			res.Style = styleReport(n)
		}
	default:
		res.Status = StatusAmbiguous
		for i, n := range nodes {
			if i < maxCandidates {
				res.Candidates = append(res.Candidates, Describe(doc, n, i, frameID))
			}
			if res.node == nil && n.Visible() {
				res.node = n
				d := Describe(doc, n, i, frameID)
				res.Element = &d
			}
		}
		if res.node == nil {
			res.Warning = fmt.Sprintf("selector matched %d elements and none is visible", len(nodes))
		} else {
			res.Warning = fmt.Sprintf("selector matched %d elements; using the first visible one (%s)",
				len(nodes), res.Element.Selector)
		}
	}
	return res, nil
}

func styleReport(n *dom.Node) map[string]string {
	cs := n.Style()
	m := cs.Map()
	box := n.BoundingBox()
	m["box"] = fmt.Sprintf("%gx%g at (%g,%g)", box.Width, box.Height, box.X, box.Y)
	if n.ComputedVisibility().Hidden {
		m["rendered"] = "false"
	}
	return m
}

// Err converts a non-success result into a taxonomy error. Under the
// best-effort policy an ambiguous result with a visible pick is not an error.
func (r *DebugResult) Err(strict bool) error {
	switch r.Status {
	case StatusFound:
		return nil
	case StatusNotFound:
		return bridgeerr.Newf(bridgeerr.CodeElementNotFound, "no element matches %s", r.Selector).
			With("suggestions", r.Suggestions)
	case StatusNotInteractable:
		return bridgeerr.Newf(bridgeerr.CodeElementNotInteractable,
			"element %s exists but is not visible", r.Selector).
			With("style", r.Style)
	}
	if r.node != nil && !strict {
		return nil
	}
	sels := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		sels = append(sels, c.Selector)
	}
	return bridgeerr.Newf(bridgeerr.CodeElementAmbiguous, "%s matches %d elements", r.Selector, r.MatchCount).
		With("matchCount", r.MatchCount).
		With("candidates", sels)
}

var (
	idToken    = regexp.MustCompile(`#([\w-]+)`)
	classToken = regexp.MustCompile(`\.([\w-]+)`)
	tagToken   = regexp.MustCompile(`(?:^|[\s>+~,])([a-zA-Z][a-zA-Z0-9-]*)`)
	attrToken  = regexp.MustCompile(`\[([\w-]+)\s*[~|^$*]?=\s*["']?([^"'\]]*)`)
)

// Suggest lists ids, classes, tags and attribute selectors present in doc
// that resemble the parts of a selector that failed to match.
func Suggest(doc *dom.Document, selector string) []string {
	ids := make(map[string]bool)
	classes := make(map[string]bool)
	tags := make(map[string]int)
	attrVals := make(map[string]map[string]bool)
	for _, el := range doc.Elements() {
		if id := el.ID(); id != "" {
			ids[id] = true
		}
		for _, c := range el.Classes() {
			classes[c] = true
		}
		tags[el.Tag()]++
		for k, v := range el.Attributes() {
			if strings.HasPrefix(k, "data-") || k == "name" || k == "aria-label" {
				if attrVals[k] == nil {
					attrVals[k] = make(map[string]bool)
				}
				attrVals[k][v] = true
			}
		}
	}

	var out []string
	seen := make(map[string]bool)
	push := func(s string) {
		if !seen[s] && len(out) < maxSuggestions {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range idToken.FindAllStringSubmatch(selector, -1) {
		for _, id := range similar(m[1], keys(ids)) {
			push("#" + dom.EscapeIdent(id))
		}
	}
	for _, m := range classToken.FindAllStringSubmatch(selector, -1) {
		for _, c := range similar(m[1], keys(classes)) {
			push("." + dom.EscapeIdent(c))
		}
	}
	for _, m := range attrToken.FindAllStringSubmatch(selector, -1) {
		for _, v := range similar(m[2], keys(attrVals[m[1]])) {
			push(fmt.Sprintf("[%s=%s]", m[1], dom.QuoteAttr(v)))
		}
	}
	for _, m := range tagToken.FindAllStringSubmatch(selector, -1) {
		tag := strings.ToLower(m[1])
		if n := tags[tag]; n > 0 {
			push(fmt.Sprintf("%s (%d on page)", tag, n))
		}
	}
	return out
}

// similar returns the entries of pool that fuzzily match want or contain it,
// best first.
func similar(want string, pool []string) []string {
	if want == "" || len(pool) == 0 {
		return nil
	}
	lw := strings.ToLower(want)
	var out []string
	seen := make(map[string]bool)
	for _, m := range fuzzy.Find(lw, lowerAll(pool)) {
		out = append(out, pool[m.Index])
		seen[pool[m.Index]] = true
	}
	for _, p := range pool {
		if !seen[p] && strings.Contains(lw, strings.ToLower(p)) && len(p) > 2 {
			out = append(out, p)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
