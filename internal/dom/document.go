package dom

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"golang.org/x/net/html"
)

// Viewport describes the visible area of the page and where the browser
// window sits on screen.
type Viewport struct {
	Width   float64 `json:"width"   yaml:"width"`
	Height  float64 `json:"height"  yaml:"height"`
	ScrollX float64 `json:"scrollX" yaml:"scrollX"`
	ScrollY float64 `json:"scrollY" yaml:"scrollY"`
	// ScreenX/ScreenY are the window's outer origin in screen coordinates.
	ScreenX float64 `json:"screenX" yaml:"screenX"`
	ScreenY float64 `json:"screenY" yaml:"screenY"`
	// ChromeLeft/ChromeTop are the window chrome (frame, tab strip, toolbar)
	// between the outer window origin and the page viewport.
	ChromeLeft float64 `json:"chromeLeft" yaml:"chromeLeft"`
	ChromeTop  float64 `json:"chromeTop"  yaml:"chromeTop"`
}

// DefaultViewport returns a typical desktop browser window.
func DefaultViewport() Viewport {
	return Viewport{Width: 1280, Height: 800, ChromeTop: 85}
}

// Document is a parsed page plus the browser-side state attached to it.
type Document struct {
	root       *html.Node
	URL        *url.URL
	ReadyState string
	Viewport   Viewport
	Storage    *Storage
	Cookies    []*http.Cookie

	nodes     map[*html.Node]*Node
	selectors map[string]cascadia.Selector
	version   uint64
	layout    *layoutResult

	listeners      map[*html.Node]map[string][]*listener
	nextListenerID int
	observers      []*observer
	nextObserverID int
	consoleSubs    []func(ConsoleEntry)
	networkSubs    []func(NetworkEntry)
	active         *html.Node
}

// Parse reads an HTML document. pageURL may be empty.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var u *url.URL
	if pageURL != "" {
		u, err = url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse page url: %w", err)
		}
	}
	return NewDocument(root, u), nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL)
}

// MustParse parses s and panics on error. Intended for tests and fixtures.
func MustParse(s string) *Document {
	d, err := ParseString(s, "about:blank")
	if err != nil {
		panic(err)
	}
	return d
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node, u *url.URL) *Document {
	if u == nil {
		u = &url.URL{Scheme: "about", Opaque: "blank"}
	}
	return &Document{
		root:       root,
		URL:        u,
		ReadyState: "complete",
		Viewport:   DefaultViewport(),
		Storage:    NewStorage(),
		nodes:      make(map[*html.Node]*Node),
		selectors:  make(map[string]cascadia.Selector),
		listeners:  make(map[*html.Node]map[string][]*listener),
	}
}

// HTMLRoot returns the underlying document node.
func (d *Document) HTMLRoot() *html.Node { return d.root }

// Version increments on every structural or attribute mutation.
func (d *Document) Version() uint64 { return d.version }

func (d *Document) touch() {
	d.version++
}

// Wrap returns the Node for n, creating it on first use. Wrapping the same
// html.Node twice returns the same *Node.
func (d *Document) Wrap(n *html.Node) *Node {
	if n == nil {
		return nil
	}
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &Node{doc: d, n: n}
	d.nodes[n] = w
	return w
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.Wrap(c)
		}
	}
	return nil
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *Node {
	n, _ := d.Query("body")
	return n
}

// Title returns the trimmed text of the first <title>.
func (d *Document) Title() string {
	n, _ := d.Query("title")
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text())
}

// Compile compiles and caches a CSS selector.
func (d *Document) Compile(selector string) (cascadia.Selector, error) {
	if s, ok := d.selectors[selector]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.CodeInvalidSelector,
			fmt.Sprintf("invalid selector %q: %v", selector, err), bridgeerr.ErrInvalidSelector)
	}
	d.selectors[selector] = s
	return s, nil
}

// QueryAll returns every element matching selector in document order.
func (d *Document) QueryAll(selector string) ([]*Node, error) {
	s, err := d.Compile(selector)
	if err != nil {
		return nil, err
	}
	return d.wrapAll(s.MatchAll(d.root)), nil
}

// Query returns the first element matching selector, or nil.
func (d *Document) Query(selector string) (*Node, error) {
	s, err := d.Compile(selector)
	if err != nil {
		return nil, err
	}
	return d.Wrap(s.MatchFirst(d.root)), nil
}

// Count returns how many elements match selector. Invalid selectors count as
// zero matches.
func (d *Document) Count(selector string) int {
	s, err := d.Compile(selector)
	if err != nil {
		return 0
	}
	return len(s.MatchAll(d.root))
}

// Elements returns every element node in document order.
func (d *Document) Elements() []*Node {
	var out []*Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, d.Wrap(c))
			}
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() *Node {
	if d.active == nil {
		return nil
	}
	return d.Wrap(d.active)
}

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string) *Node {
	n := &html.Node{Type: html.ElementNode, Data: strings.ToLower(tag)}
	return d.Wrap(n)
}

// ParseFragment parses markup in the context of parent (body when nil) and
// returns the detached top-level nodes.
func (d *Document) ParseFragment(markup string, parent *Node) ([]*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body"}
	if parent != nil {
		ctx = &html.Node{Type: html.ElementNode, Data: parent.n.Data, DataAtom: parent.n.DataAtom}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return d.wrapAll(nodes), nil
}

// SetScroll scrolls the viewport.
func (d *Document) SetScroll(x, y float64) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	d.Viewport.ScrollX = x
	d.Viewport.ScrollY = y
}

func (d *Document) wrapAll(ns []*html.Node) []*Node {
	out := make([]*Node, 0, len(ns))
	for _, n := range ns {
		out = append(out, d.Wrap(n))
	}
	return out
}

// Storage is the page's localStorage.
type Storage struct {
	items map[string]string
}

// NewStorage returns an empty storage area.
func NewStorage() *Storage {
	return &Storage{items: make(map[string]string)}
}

// Get returns the value for key.
func (s *Storage) Get(key string) (string, bool) {
	v, ok := s.items[key]
	return v, ok
}

// Set stores value under key.
func (s *Storage) Set(key, value string) {
	s.items[key] = value
}

// Remove deletes key.
func (s *Storage) Remove(key string) {
	delete(s.items, key)
}

// Keys returns the stored keys in sorted order.
func (s *Storage) Keys() []string {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the storage contents.
func (s *Storage) Snapshot() map[string]string {
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}
