package dash

import (
	"image/color"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is the part of the tdewolff renderers the live view uses.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the live view as SVG. Equal-gray runs of each map row
// become one polygon, so the output stays proportional to map detail rather
// than pixel count.
func RenderSVG(w io.Writer, meta MapMeta, gray []uint8, pose *Pose, vw, vh int) error {
	width, height := float64(vw), float64(vh)
	svgRenderer := svg.New(w, width, height, nil)
	renderToCanvas(svgRenderer, meta, gray, pose, vw, vh)
	return svgRenderer.Close()
}

// renderToCanvas draws map runs and the marker using the raster view transform.
// canvas is y-up, so view rows are flipped on the way in.
func renderToCanvas(r canvasRenderer, meta MapMeta, gray []uint8, pose *Pose, vw, vh int) {
	height := float64(vh)
	view := ViewTransform(meta, vw, vh)
	toCanvas := func(p Point) (float64, float64) {
		v := TransformPoint(p, view)
		return v.X, height - v.Y
	}

	if len(gray) == meta.Width*meta.Height {
		style := canvas.DefaultStyle
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		for y := 0; y < meta.Height; y++ {
			row := gray[y*meta.Width : (y+1)*meta.Width]
			for x0 := 0; x0 < len(row); {
				g := row[x0]
				x1 := x0 + 1
				for x1 < len(row) && row[x1] == g {
					x1++
				}
				corners := [4]Point{
					{X: float64(x0), Y: float64(y)},
					{X: float64(x1), Y: float64(y)},
					{X: float64(x1), Y: float64(y + 1)},
					{X: float64(x0), Y: float64(y + 1)},
				}
				p := &canvas.Path{}
				for i, c := range corners {
					cx, cy := toCanvas(c)
					if i == 0 {
						p.MoveTo(cx, cy)
					} else {
						p.LineTo(cx, cy)
					}
				}
				p.Close()
				style.Fill = canvas.Paint{Color: color.RGBA{g, g, g, 255}}
				r.RenderPath(p, style, canvas.Identity)
				x0 = x1
			}
		}
	}

	if pose != nil {
		scale, _, _ := Layout(meta, vw, vh)
		cx, cy := toCanvas(WorldToPixel(meta, pose.X, pose.Y))
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: markerFill}
		style.Stroke = canvas.Paint{Color: markerStroke}
		style.StrokeWidth = MarkerStrokeWidth * scale
		marker := canvas.Circle(MarkerRadius * scale).Translate(cx, cy)
		r.RenderPath(marker, style, canvas.Identity)
	}
}
