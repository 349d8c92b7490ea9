// Package platform describes the capabilities the hosting browser provides:
// tab management, frame enumeration and visible-area capture.
package platform

import (
	"context"
	"encoding/json"

	"github.com/mj1618/web-bridge/internal/model"
)

// TabManager manages tabs and their navigation.
type TabManager interface {
	ListTabs(ctx context.Context) ([]model.Tab, error)
	// ActiveTab returns the focused tab, or ErrTabNotFound when none is open.
	ActiveTab(ctx context.Context) (model.Tab, error)
	FocusTab(ctx context.Context, tabID int) (model.Tab, error)
	CreateTab(ctx context.Context, opts CreateOptions) (model.Tab, error)
	CloseTab(ctx context.Context, tabID int) error
	Navigate(ctx context.Context, tabID int, url string) (model.Tab, error)
	GoBack(ctx context.Context, tabID int) (model.Tab, error)
	GoForward(ctx context.Context, tabID int) (model.Tab, error)
}

// FrameEnumerator lists the frames of a tab and reaches their page contexts.
// Frames are never cached by callers; they may come and go between commands.
type FrameEnumerator interface {
	Frames(ctx context.Context, tabID int) ([]model.Frame, error)
	// Frame returns the command target for one frame. Cross-origin frames
	// yield ErrFrameUnreachable.
	Frame(ctx context.Context, tabID, frameID int) (FrameTarget, error)
}

// FrameTarget runs page commands in one frame. *relay.Relay implements it.
type FrameTarget interface {
	Handle(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)
}

// MutationNotifier delivers mutation reports from every watched frame.
type MutationNotifier interface {
	OnMutation(fn func(model.MutationReport))
}

// Screenshotter captures the visible area of a tab as an encoded image.
type Screenshotter interface {
	CaptureVisible(ctx context.Context, tab model.Tab, opts ScreenshotOptions) ([]byte, error)
}

// DocumentSource serializes the live top-level document of a tab. Hosts
// without a real renderer offer it so a capture backend can draw the page
// as it is now, including typed values.
type DocumentSource interface {
	Source(ctx context.Context, tabID int) (string, error)
}
