package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mj1618/web-bridge/internal/dispatch"
	"github.com/mj1618/web-bridge/internal/platform"
	"github.com/mj1618/web-bridge/internal/platform/cdp"
	_ "github.com/mj1618/web-bridge/internal/platform/headless"
)

// host is a browser provider with capture attached and a dispatcher in
// front of it.
type host struct {
	provider *platform.Provider
	dispatch *dispatch.Dispatcher
}

func addHostFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "headless", fmt.Sprintf("Browser host: %s", strings.Join(platform.Hosts(), ", ")))
	cmd.Flags().Bool("no-capture", false, "Do not attach the Chrome capture backend")
}

// openHost builds the host named by --host. Hosts that can serialize their
// documents get a Chrome capture backend unless --no-capture is set.
func openHost(cmd *cobra.Command) (*host, error) {
	name, _ := cmd.Flags().GetString("host")
	noCapture, _ := cmd.Flags().GetBool("no-capture")

	p, err := platform.NewProvider(name, cfg)
	if err != nil {
		return nil, err
	}
	src, ok := p.Tabs.(platform.DocumentSource)
	if ok && p.Screenshotter == nil && !noCapture {
		shooter := cdp.New(cdp.Options{
			URL:     cfg.CDP.URL,
			Timeout: cfg.CDP.Timeout,
			Width:   int64(cfg.Page.ViewportWidth),
			Height:  int64(cfg.Page.ViewportHeight),
			Source:  src,
			Logger:  logger,
		})
		p.Screenshotter = shooter
		closeHost := p.Close
		p.Close = func() error {
			err := shooter.Close()
			if closeHost != nil {
				err = errors.Join(err, closeHost())
			}
			return err
		}
	}
	return &host{provider: p, dispatch: dispatch.New(p, logger)}, nil
}

func (h *host) Close() error {
	if h.provider.Close == nil {
		return nil
	}
	return h.provider.Close()
}

// open creates a tab for each target. The last one ends up focused.
func (h *host) open(ctx context.Context, targets []platform.CreateOptions) error {
	for _, t := range targets {
		tab, err := h.provider.Tabs.CreateTab(ctx, t)
		if err != nil {
			return fmt.Errorf("open %s: %w", describe(t), err)
		}
		logger.Info("opened tab", "tab", tab.ID, "url", tab.URL, "title", tab.Title)
	}
	return nil
}

func describe(t platform.CreateOptions) string {
	if t.URL != "" {
		return t.URL
	}
	return "inline document"
}

// fileURL turns a local path into a file:// URL.
func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// parsePayload accepts a command payload as JSON or as YAML flow/block
// mapping and returns it as JSON.
func parsePayload(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("payload is neither JSON nor YAML: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("payload must be an object, got %q", s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
