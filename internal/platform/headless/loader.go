package headless

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mj1618/web-bridge/internal/dom"
)

const maxDocumentSize = 16 << 20

// loaded is a fetched document before any page context owns it.
type loaded struct {
	doc     *dom.Document
	status  int
	entry   dom.NetworkEntry
	cookies []*http.Cookie
}

// fetch loads rawURL into a document. It handles http(s), file and
// about:blank. Error statuses still produce a document, as a browser would
// render the error page.
func (b *Browser) fetch(ctx context.Context, rawURL string) (*loaded, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "about":
		return b.inline("", u.String())
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", u.Path, err)
		}
		return b.inline(string(data), u.String())
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	if b.opts.UserAgent != "" {
		req.Header.Set("User-Agent", b.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if resp.StatusCode >= 400 {
		b.log.Warn("document load returned error status", "url", u.String(), "status", resp.StatusCode)
	}
	final := resp.Request.URL
	doc, err := dom.Parse(bytes.NewReader(body), final.String())
	if err != nil {
		return nil, err
	}
	l := &loaded{
		doc:    doc,
		status: resp.StatusCode,
		entry: dom.NetworkEntry{
			Method:    http.MethodGet,
			URL:       final.String(),
			Status:    resp.StatusCode,
			Type:      "document",
			Size:      int64(len(body)),
			Duration:  time.Since(start),
			Timestamp: start,
		},
		cookies: b.cookiesFor(final, resp.Cookies()),
	}
	doc.Cookies = l.cookies
	return l, nil
}

// inline builds a document from markup without touching the network.
func (b *Browser) inline(markup, pageURL string) (*loaded, error) {
	doc, err := dom.ParseString(markup, pageURL)
	if err != nil {
		return nil, err
	}
	return &loaded{doc: doc, status: http.StatusOK}, nil
}

// cookiesFor returns the jar's cookies for u, filling in the attributes the
// jar drops from what the response set.
func (b *Browser) cookiesFor(u *url.URL, set []*http.Cookie) []*http.Cookie {
	byName := make(map[string]*http.Cookie, len(set))
	for _, c := range set {
		byName[c.Name] = c
	}
	var out []*http.Cookie
	for _, c := range b.jar.Cookies(u) {
		full := &http.Cookie{Name: c.Name, Value: c.Value, Domain: u.Hostname(), Path: "/"}
		if s, ok := byName[c.Name]; ok {
			if s.Domain != "" {
				full.Domain = s.Domain
			}
			if s.Path != "" {
				full.Path = s.Path
			}
			full.Secure, full.HttpOnly = s.Secure, s.HttpOnly
		}
		out = append(out, full)
	}
	return out
}

// childFrame is an iframe discovered in a parent document.
type childFrame struct {
	name   string
	src    string
	srcdoc string
	inline bool
}

// iframes lists the iframes of doc in document order. It runs before the
// document is handed to its loop.
func iframes(doc *dom.Document) []childFrame {
	var out []childFrame
	goquery.NewDocumentFromNode(doc.HTMLRoot()).Find("iframe").Each(func(_ int, s *goquery.Selection) {
		c := childFrame{name: s.AttrOr("name", s.AttrOr("id", ""))}
		if srcdoc, ok := s.Attr("srcdoc"); ok {
			c.srcdoc, c.inline = srcdoc, true
		} else if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			if ref, err := doc.URL.Parse(src); err == nil {
				c.src = ref.String()
			}
		}
		if c.src == "" && !c.inline {
			c.src = "about:blank"
		}
		out = append(out, c)
	})
	return out
}

// sameOrigin reports whether child may be scripted from parent. about:
// documents inherit the parent's origin.
func sameOrigin(parent, child *url.URL) bool {
	if child.Scheme == "about" {
		return true
	}
	if parent.Scheme == "about" {
		return false
	}
	if parent.Scheme == "file" && child.Scheme == "file" {
		return true
	}
	return parent.Scheme == child.Scheme && strings.EqualFold(parent.Host, child.Host)
}
