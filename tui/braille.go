package tui

import (
	"image"
	"strings"
)

type brailleBuf struct {
	w, h  int       // in cells
	m     [][]uint8 // per-cell 8-bit mask
	robot [][]bool  // cells covered by the robot marker
}

func newBrailleBuf(w, h int) *brailleBuf {
	m := make([][]uint8, h)
	robot := make([][]bool, h)
	for i := range m {
		m[i] = make([]uint8, w)
		robot[i] = make([]bool, w)
	}
	return &brailleBuf{w: w, h: h, m: m, robot: robot}
}

// cellOf maps micro coords (2x4 per cell) to a cell, or ok=false when outside.
func (b *brailleBuf) cellOf(mx, my int) (cx, cy int, ok bool) {
	if mx < 0 || my < 0 {
		return 0, 0, false
	}
	cx, cy = mx/2, my/4
	if cy >= b.h || cx >= b.w {
		return 0, 0, false
	}
	return cx, cy, true
}

// setPixel sets a micro-pixel at micro coords (2x4 per cell)
func (b *brailleBuf) setPixel(mx, my int) {
	cx, cy, ok := b.cellOf(mx, my)
	if !ok {
		return
	}
	rx, ry := mx%2, my%4
	var bit uint8
	if rx == 0 {
		switch ry {
		case 0:
			bit = 0x01
		case 1:
			bit = 0x02
		case 2:
			bit = 0x04
		case 3:
			bit = 0x40
		}
	} else {
		switch ry {
		case 0:
			bit = 0x08
		case 1:
			bit = 0x10
		case 2:
			bit = 0x20
		case 3:
			bit = 0x80
		}
	}
	b.m[cy][cx] |= bit
}

func (b *brailleBuf) markRobot(mx, my int) {
	if cx, cy, ok := b.cellOf(mx, my); ok {
		b.robot[cy][cx] = true
	}
}

// plot fills the buffer from a frame rendered at exactly 2w x 4h pixels.
// Dark opaque pixels (occupied space) are set; marker pixels flag the cell.
func (b *brailleBuf) plot(img *image.RGBA) {
	if img == nil {
		return
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			mx, my := x-bounds.Min.X, y-bounds.Min.Y
			switch {
			case isMarker(c.R, c.G, c.B, c.A):
				b.markRobot(mx, my)
			case c.A > 0 && luma(c.R, c.G, c.B) < 128:
				b.setPixel(mx, my)
			}
		}
	}
}

func isMarker(r, g, bl, a uint8) bool {
	return a == 255 && r > 200 && g < 100 && bl < 100
}

func luma(r, g, b uint8) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

func (b *brailleBuf) toLines() []string {
	out := make([]string, b.h)
	for y := 0; y < b.h; y++ {
		var row strings.Builder
		for x := 0; x < b.w; x++ {
			mask := b.m[y][x]
			switch {
			case b.robot[y][x]:
				row.WriteString(robotStyle.Render("●"))
			case mask == 0:
				row.WriteRune(' ')
			default:
				row.WriteRune(rune(0x2800 + int(mask)))
			}
		}
		out[y] = row.String()
	}
	return out
}
