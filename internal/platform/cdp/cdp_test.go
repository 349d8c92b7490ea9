package cdp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/model"
)

func TestWithBase(t *testing.T) {
	out, err := withBase(`<html><head><title>T</title></head><body><img src="logo.png"></body></html>`, "https://shop.test/cart/")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html><html><head><base href=\"https://shop.test/cart/\"/><title>T</title>"), out)
	assert.Contains(t, out, `<img src="logo.png"/>`)

	kept := `<html><head><base href="/static/"></head><body></body></html>`
	out, err = withBase(kept, "https://shop.test/")
	require.NoError(t, err)
	assert.Equal(t, kept, out)

	out, err = withBase("<p>draft</p>", "about:blank")
	require.NoError(t, err)
	assert.Equal(t, "<p>draft</p>", out)
}

func TestRender_NeedsSourceForInlineTabs(t *testing.T) {
	s := New(Options{})
	_, err := s.render(context.Background(), model.Tab{ID: 2, URL: "about:blank"})
	assert.ErrorIs(t, err, bridgeerr.ErrUnsupported)

	_, err = s.render(context.Background(), model.Tab{ID: 2, URL: "https://shop.test/"})
	assert.NoError(t, err)
}

type staticSource map[int]string

func (s staticSource) Source(_ context.Context, tabID int) (string, error) {
	markup, ok := s[tabID]
	if !ok {
		return "", bridgeerr.Newf(bridgeerr.CodeTabNotFound, "no tab %d", tabID)
	}
	return markup, nil
}

func TestRender_PrefersSource(t *testing.T) {
	s := New(Options{Source: staticSource{1: "<p>live</p>"}})
	action, err := s.render(context.Background(), model.Tab{ID: 1, URL: "about:blank"})
	require.NoError(t, err)
	assert.NotNil(t, action)

	_, err = s.render(context.Background(), model.Tab{ID: 5})
	assert.ErrorIs(t, err, bridgeerr.ErrTabNotFound)
}
