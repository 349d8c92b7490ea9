package platform

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mj1618/web-bridge/internal/model"
)

// CreateOptions describes a new tab. URL and HTML are exclusive; an empty
// tab opens about:blank.
type CreateOptions struct {
	URL    string `json:"url,omitempty"`
	HTML   string `json:"html,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// ScreenshotOptions configures a capture. Hosts capture at full scale;
// format, quality, scale and annotation are applied afterwards.
type ScreenshotOptions struct {
	Format  string  `json:"format,omitempty"`  // "png" or "jpg"
	Quality int     `json:"quality,omitempty"` // JPEG quality 1-100
	Scale   float64 `json:"scale,omitempty"`   // 0.1-1.0, default 1

	// Annotate outlines the top frame's interactive elements. Labels is
	// "index" (the default) or "coords".
	Annotate bool   `json:"annotate,omitempty"`
	Labels   string `json:"labels,omitempty"`
}

// FindOptions selects tabs by glob patterns over URL and title. Empty
// patterns match everything.
type FindOptions struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// FindTabs filters tabs with FindOptions. Title matching ignores case.
func FindTabs(tabs []model.Tab, opts FindOptions) ([]model.Tab, error) {
	urlGlob, err := compile(opts.URL, false)
	if err != nil {
		return nil, err
	}
	titleGlob, err := compile(opts.Title, true)
	if err != nil {
		return nil, err
	}
	out := []model.Tab{}
	for _, t := range tabs {
		if urlGlob != nil && !urlGlob.Match(t.URL) {
			continue
		}
		if titleGlob != nil && !titleGlob.Match(strings.ToLower(t.Title)) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func compile(pattern string, fold bool) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	if fold {
		pattern = strings.ToLower(pattern)
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return g, nil
}
