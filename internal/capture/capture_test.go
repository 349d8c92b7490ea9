package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/mj1618/web-bridge/internal/model"
)

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestResize(t *testing.T) {
	img := blank(200, 100)
	tests := []struct {
		factor float64
		w, h   int
	}{
		{0, 200, 100},
		{1, 200, 100},
		{0.5, 100, 50},
		{0.01, 20, 10},
	}
	for _, tt := range tests {
		got := Resize(img, tt.factor).Bounds()
		if got.Dx() != tt.w || got.Dy() != tt.h {
			t.Errorf("Resize(%v) = %dx%d, want %dx%d", tt.factor, got.Dx(), got.Dy(), tt.w, tt.h)
		}
	}
}

func TestAnnotate_DrawsBoxFromViewportFraction(t *testing.T) {
	img := blank(100, 100)
	els := []model.ElementDescriptor{
		{Index: 1, InViewport: true, Viewport: model.Box{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.3}},
		{Index: 2, InViewport: false, Viewport: model.Box{X: 0.9, Y: 0.9, Width: 0.05, Height: 0.05}},
	}
	out := Annotate(img, els, LabelIndex)

	if got := out.RGBAAt(10, 20); got != boxColor {
		t.Errorf("top-left corner = %v, want box color", got)
	}
	if got := out.RGBAAt(59, 49); got != boxColor {
		t.Errorf("bottom-right corner = %v, want box color", got)
	}
	if got := out.RGBAAt(90, 90); got == boxColor {
		t.Error("elements outside the viewport should not be outlined")
	}
}

func TestAnnotate_ClipsToImage(t *testing.T) {
	img := blank(50, 50)
	els := []model.ElementDescriptor{{InViewport: true, Viewport: model.Box{X: -0.5, Y: 0.5, Width: 2, Height: 2}}}
	out := Annotate(img, els, LabelCoords)
	if out.Bounds() != img.Bounds() {
		t.Fatalf("bounds changed: %v", out.Bounds())
	}
	if got := out.RGBAAt(0, 25); got != boxColor {
		t.Errorf("clipped edge = %v, want box color", got)
	}
}

func TestProcess(t *testing.T) {
	data := pngBytes(t, blank(80, 40))

	out, err := Process(data, Options{Format: "jpeg", Quality: 60, Scale: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("size = %dx%d, want 40x20", b.Dx(), b.Dy())
	}

	out, err = Process(data, Options{Elements: []model.ElementDescriptor{
		{Index: 3, InViewport: true, Viewport: model.Box{Width: 1, Height: 1}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	img, err = png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a png: %v", err)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r>>8 != 255 {
		t.Errorf("annotated corner red = %d, want 255", r>>8)
	}

	if _, err := Process([]byte("not an image"), Options{}); err == nil {
		t.Error("expected a decode error")
	}
}

func TestParseLabelMode(t *testing.T) {
	for in, want := range map[string]LabelMode{"": LabelIndex, "index": LabelIndex, "COORDS": LabelCoords} {
		got, err := ParseLabelMode(in)
		if err != nil || got != want {
			t.Errorf("ParseLabelMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLabelMode("pixels"); err == nil {
		t.Error("expected an error")
	}
}
