package model

import "testing"

var testViewport = Box{0, 0, 1000, 800}

func TestIsOverlaySized(t *testing.T) {
	if !IsOverlaySized(Box{200, 200, 600, 400}, testViewport) {
		t.Error("expected dialog-sized box to be overlay sized")
	}
	if IsOverlaySized(Box{0, 0, 1000, 800}, testViewport) {
		t.Error("full viewport box is not an overlay")
	}
	if IsOverlaySized(Box{}, testViewport) {
		t.Error("empty box is not an overlay")
	}
}

func TestIsCentered(t *testing.T) {
	if !IsCentered(Box{200, 200, 600, 400}, testViewport) {
		t.Error("expected centered box")
	}
	if IsCentered(Box{0, 0, 100, 100}, testViewport) {
		t.Error("corner box is not centered")
	}
}

func TestLooksModal(t *testing.T) {
	tests := []struct {
		name     string
		tag      string
		attrs    map[string]string
		position string
		box      Box
		want     bool
	}{
		{"dialog tag", "dialog", nil, "static", Box{}, true},
		{"role", "div", map[string]string{"role": "alertdialog"}, "static", Box{}, true},
		{"aria-modal", "div", map[string]string{"aria-modal": "true"}, "static", Box{}, true},
		{"class", "div", map[string]string{"class": "ReactModal__Content"}, "static", Box{}, true},
		{"fixed centered", "div", map[string]string{}, "fixed", Box{300, 250, 400, 300}, true},
		{"fixed banner", "div", map[string]string{}, "fixed", Box{0, 0, 1000, 60}, false},
		{"plain div", "div", map[string]string{"class": "row"}, "static", Box{300, 250, 400, 300}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksModal(tt.tag, tt.attrs, tt.position, tt.box, testViewport); got != tt.want {
				t.Errorf("LooksModal() = %v, want %v", got, tt.want)
			}
		})
	}
}
