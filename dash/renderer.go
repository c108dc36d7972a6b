package dash

import (
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Marker geometry in map pixels.
const (
	MarkerRadius      = 5.0
	MarkerStrokeWidth = 2.0
	// mapRotation turns the map a quarter turn counter-clockwise so it lines
	// up with the robot's reference frame.
	mapRotation = -math.Pi / 2
)

var (
	markerFill   = parseHexColor("#ef4444")
	markerStroke = color.RGBA{255, 255, 255, 255}
)

// MapRenderer owns the map bitmap and its metadata and composes the live view.
type MapRenderer struct {
	meta   MapMeta
	bitmap *image.RGBA
}

// NewMapRenderer creates a renderer with no map loaded.
func NewMapRenderer() *MapRenderer {
	return &MapRenderer{meta: MapMeta{Resolution: DefaultResolution}}
}

// HasMap reports whether a map has been loaded.
func (r *MapRenderer) HasMap() bool { return r.bitmap != nil }

// Meta returns the current map metadata.
func (r *MapRenderer) Meta() MapMeta { return r.meta }

// Bitmap returns the raw map bitmap, or nil before the first map.
// The image is owned by the renderer; callers must not modify it.
func (r *MapRenderer) Bitmap() *image.RGBA { return r.bitmap }

// SetMap rebuilds the bitmap and replaces the metadata. A grid whose length
// does not match width*height leaves the renderer untouched.
func (r *MapRenderer) SetMap(m MapMessage) error {
	if !gridFits(m.Width, m.Height, len(m.Gray)) {
		return fmt.Errorf("%w: %dx%d with %d values", ErrGridMismatch, m.Width, m.Height, len(m.Gray))
	}

	bmp := r.bitmap
	if bmp == nil || bmp.Bounds().Dx() != m.Width || bmp.Bounds().Dy() != m.Height {
		bmp = image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	}
	for i, g := range m.Gray {
		j := i * 4
		bmp.Pix[j] = g
		bmp.Pix[j+1] = g
		bmp.Pix[j+2] = g
		bmp.Pix[j+3] = 255
	}
	r.bitmap = bmp

	meta := MapMeta{Width: m.Width, Height: m.Height, Resolution: r.meta.Resolution}
	if m.Resolution != nil && *m.Resolution > 0 {
		meta.Resolution = *m.Resolution
	}
	if m.Origin != nil {
		meta.Origin = *m.Origin
	}
	r.meta = meta
	return nil
}

// WorldToPixel projects world meters onto unrotated map pixels.
func (r *MapRenderer) WorldToPixel(x, y float64) Point {
	return WorldToPixel(r.meta, x, y)
}

// WorldToPixel projects world meters onto unrotated map pixels for meta.
// Map rows grow downward while world y grows upward.
func WorldToPixel(meta MapMeta, x, y float64) Point {
	res := meta.Resolution
	if res <= 0 {
		res = DefaultResolution
	}
	return Point{
		X: (x - meta.Origin.X) / res,
		Y: float64(meta.Height) - (y-meta.Origin.Y)/res,
	}
}

// Layout returns the uniform scale and integer centering offsets that fit
// the map into a view of vw x vh pixels.
func (r *MapRenderer) Layout(vw, vh int) (scale float64, offX, offY int) {
	return Layout(r.meta, vw, vh)
}

// Layout fits meta into a vw x vh view preserving aspect ratio.
func Layout(meta MapMeta, vw, vh int) (scale float64, offX, offY int) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return 0, 0, 0
	}
	scale = math.Min(float64(vw)/float64(meta.Width), float64(vh)/float64(meta.Height))
	offX = int(math.Floor((float64(vw) - float64(meta.Width)*scale) / 2))
	offY = int(math.Floor((float64(vh) - float64(meta.Height)*scale) / 2))
	return scale, offX, offY
}

// ViewTransform maps unrotated map pixels to view pixels: rotate about the
// map center, then scale, then offset.
func (r *MapRenderer) ViewTransform(vw, vh int) AffineMatrix {
	return ViewTransform(r.meta, vw, vh)
}

// ViewTransform is the map-to-view transform for meta in a vw x vh view.
func ViewTransform(meta MapMeta, vw, vh int) AffineMatrix {
	scale, offX, offY := Layout(meta, vw, vh)
	cx, cy := float64(meta.Width)/2, float64(meta.Height)/2
	return Compose(
		Translation(float64(offX), float64(offY)),
		Scale(scale, scale),
		RotationAbout(mapRotation, cx, cy),
	)
}

// Redraw composes the map and, when pose is non-nil, the robot marker into
// a vw x vh surface. dst is reused when its size matches; otherwise a new
// surface is allocated. Before the first map nothing is drawn and dst is
// returned as given.
func (r *MapRenderer) Redraw(dst *image.RGBA, vw, vh int, pose *Pose) *image.RGBA {
	if r.bitmap == nil || vw <= 0 || vh <= 0 {
		return dst
	}
	if dst == nil || dst.Bounds().Dx() != vw || dst.Bounds().Dy() != vh {
		dst = image.NewRGBA(image.Rect(0, 0, vw, vh))
	} else {
		clear(dst.Pix)
	}

	view := r.ViewTransform(vw, vh)
	xdraw.NearestNeighbor.Transform(dst, view.Aff3(), r.bitmap, r.bitmap.Bounds(), xdraw.Over, nil)

	if pose != nil {
		scale, _, _ := r.Layout(vw, vh)
		center := TransformPoint(r.WorldToPixel(pose.X, pose.Y), view)
		drawMarker(dst, center, MarkerRadius*scale, MarkerStrokeWidth*scale)
	}
	return dst
}

// drawMarker draws a filled circle of radius r with a stroke of width sw
// centered on the circle's edge, matching a canvas arc fill+stroke.
func drawMarker(img *image.RGBA, c Point, r, sw float64) {
	outer := r + sw/2
	inner := r - sw/2
	b := img.Bounds()
	x0 := int(math.Floor(c.X - outer))
	x1 := int(math.Ceil(c.X + outer))
	y0 := int(math.Floor(c.Y - outer))
	y1 := int(math.Ceil(c.Y + outer))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
				continue
			}
			// Sample at the pixel center.
			d := math.Hypot(float64(x)+0.5-c.X, float64(y)+0.5-c.Y)
			switch {
			case d <= inner:
				img.SetRGBA(x, y, markerFill)
			case d <= outer:
				img.SetRGBA(x, y, markerStroke)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// Placeholder returns a vw x vh frame with a centered message, used before the
// first map arrives.
func Placeholder(vw, vh int, text string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, vw, vh))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{243, 244, 246, 255}), image.Point{}, xdraw.Src)
	w := font.MeasureString(basicfont.Face7x13, text).Round()
	drawText(img, (vw-w)/2, vh/2, text, color.RGBA{107, 114, 128, 255})
	return img
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	// Default to red if parsing fails
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}

	// Remove # prefix if present
	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return defaultColor
	}

	return color.RGBA{r, g, b, 255}
}
