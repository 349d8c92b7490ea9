// Package capture post-processes screenshots: it rescales them, outlines
// interactive elements and re-encodes them as PNG or JPEG.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mj1618/web-bridge/internal/model"
)

// LabelMode controls the text drawn on each annotated element.
type LabelMode int

const (
	// LabelIndex draws "[n]" with the element's index.
	LabelIndex LabelMode = iota
	// LabelCoords draws "(x,y)" with the element's screen center.
	LabelCoords
)

// ParseLabelMode maps "index" or "coords" to a LabelMode.
func ParseLabelMode(s string) (LabelMode, error) {
	switch strings.ToLower(s) {
	case "", "index":
		return LabelIndex, nil
	case "coords":
		return LabelCoords, nil
	}
	return LabelIndex, fmt.Errorf("unknown label mode %q", s)
}

// Options configures Process.
type Options struct {
	Format  string
	Quality int
	Scale   float64
	// Elements are outlined when non-empty. Their Viewport boxes locate them
	// in the image, so they must come from the captured frame.
	Elements []model.ElementDescriptor
	Labels   LabelMode
}

// Format normalizes an output format name. Anything but jpg/jpeg is PNG.
func Format(s string) string {
	switch strings.ToLower(s) {
	case "jpg", "jpeg":
		return "jpg"
	}
	return "png"
}

// Process decodes data, applies opts and encodes the result.
func Process(data []byte, opts Options) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	img = Resize(img, opts.Scale)
	if len(opts.Elements) > 0 {
		img = Annotate(img, opts.Elements, opts.Labels)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, img, opts.Format, opts.Quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes img as PNG or JPEG.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	if Format(format) == "jpg" {
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
		return nil
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Resize scales img by factor, clamped to 0.1-1. A factor of 0 or 1 returns
// img unchanged.
func Resize(img image.Image, factor float64) image.Image {
	if factor <= 0 || factor >= 1 {
		return img
	}
	factor = math.Max(factor, 0.1)
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

var (
	boxColor     = color.RGBA{R: 255, A: 255}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outlineColor = color.RGBA{A: 220}
)

// Annotate outlines every in-viewport element and labels it.
func Annotate(img image.Image, elements []model.ElementDescriptor, mode LabelMode) *image.RGBA {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	for _, el := range elements {
		if !el.InViewport {
			continue
		}
		vb := el.Viewport
		x1 := b.Min.X + int(vb.X*w)
		y1 := b.Min.Y + int(vb.Y*h)
		x2 := b.Min.X + int((vb.X+vb.Width)*w)
		y2 := b.Min.Y + int((vb.Y+vb.Height)*h)
		rectangle(rgba, x1, y1, x2, y2, boxColor)

		var label string
		if mode == LabelCoords {
			label = fmt.Sprintf("(%d,%d)", int(math.Round(el.ScreenCenter.X)), int(math.Round(el.ScreenCenter.Y)))
		} else {
			label = fmt.Sprintf("[%d]", el.Index)
		}
		text(rgba, label, (x1+x2)/2, (y1+y2)/2)
	}
	return rgba
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// rectangle draws a one pixel outline clipped to the image.
func rectangle(img *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	r := image.Rect(x1, y1, x2, y2).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// text draws s centered on (x, y) with a dark halo.
func text(img *image.RGBA, s string, x, y int) {
	face := basicfont.Face7x13
	left := x - len(s)*face.Advance/2
	base := y + face.Ascent/2
	d := &font.Drawer{Dst: img, Face: face}
	d.Src = image.NewUniform(outlineColor)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d.Dot = fixed.P(left+dx, base+dy)
			d.DrawString(s)
		}
	}
	d.Src = image.NewUniform(textColor)
	d.Dot = fixed.P(left, base)
	d.DrawString(s)
}
