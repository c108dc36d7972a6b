package relay

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/png" // map images are PNG
	"os"
)

// DefaultResolution is used when map_yaml omits a resolution.
const DefaultResolution = 0.05

// MapInfo is the subset of a ROS map_server YAML the relay needs.
type MapInfo struct {
	Resolution float64
	OriginX    float64
	OriginY    float64
}

// Size is the map image size in pixels.
type Size struct {
	Width, Height int
}

// Valid reports whether the size can be used for conversion.
func (s Size) Valid() bool { return s.Width > 0 && s.Height > 0 }

// ImageSize reads the dimensions from the header of an image file.
func ImageSize(path string) (Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return Size{}, fmt.Errorf("opening map image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Size{}, fmt.Errorf("decoding map image %s: %w", path, err)
	}
	return Size{Width: cfg.Width, Height: cfg.Height}, nil
}

type mapYAML struct {
	Resolution *float64  `json:"resolution"`
	Origin     []float64 `json:"origin"`
}

// ParseMapInfo decodes the data object of a map_yaml frame. An empty object
// yields nil, which leaves pose conversion disabled.
func ParseMapInfo(raw json.RawMessage) (*MapInfo, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("map_yaml data: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	var y mapYAML
	if err := json.Unmarshal(raw, &y); err != nil {
		return nil, fmt.Errorf("map_yaml data: %w", err)
	}
	info := &MapInfo{Resolution: DefaultResolution}
	if y.Resolution != nil && *y.Resolution > 0 {
		info.Resolution = *y.Resolution
	}
	if len(y.Origin) > 0 {
		info.OriginX = y.Origin[0]
	}
	if len(y.Origin) > 1 {
		info.OriginY = y.Origin[1]
	}
	return info, nil
}

// Pose is the data object of a robot_pose frame. Missing coordinates are 0.
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixel is the payload of a robot_pixel frame.
type Pixel struct {
	PX int `json:"px"`
	PY int `json:"py"`
}

// ToPixel projects a world pose onto the map image. The y axis is flipped,
// the result is clamped to [0,w]x[0,h] and truncated.
func ToPixel(p Pose, info MapInfo, size Size) Pixel {
	px := (p.X - info.OriginX) / info.Resolution
	py := float64(size.Height) - (p.Y-info.OriginY)/info.Resolution
	return Pixel{
		PX: int(clamp(px, 0, float64(size.Width))),
		PY: int(clamp(py, 0, float64(size.Height))),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
