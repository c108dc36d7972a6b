package dash

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MapBounds returns the map footprint in world meters.
func MapBounds(meta MapMeta) orb.Bound {
	res := meta.Resolution
	if res <= 0 {
		res = DefaultResolution
	}
	lo := orb.Point{meta.Origin.X, meta.Origin.Y}
	hi := orb.Point{
		meta.Origin.X + float64(meta.Width)*res,
		meta.Origin.Y + float64(meta.Height)*res,
	}
	return orb.Bound{Min: lo, Max: hi}
}

// PoseGeoJSON builds a feature collection with the map footprint (when a map
// is loaded) and the robot position (when a pose is known), in world meters.
func PoseGeoJSON(snap Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	var bound orb.Bound
	if snap.Map != nil {
		bound = MapBounds(*snap.Map)
		f := geojson.NewFeature(bound.ToPolygon())
		f.Properties["kind"] = "map"
		f.Properties["width"] = snap.Map.Width
		f.Properties["height"] = snap.Map.Height
		f.Properties["resolution"] = snap.Map.Resolution
		fc.Append(f)
	}

	if snap.Pose != nil {
		pt := orb.Point{snap.Pose.X, snap.Pose.Y}
		f := geojson.NewFeature(pt)
		f.Properties["kind"] = "robot"
		f.Properties["yaw"] = snap.Pose.Yaw
		f.Properties["stale"] = snap.PoseStale
		f.Properties["status"] = string(snap.Status)
		if snap.Map != nil {
			f.Properties["onMap"] = bound.Contains(pt)
			px := WorldToPixel(*snap.Map, snap.Pose.X, snap.Pose.Y)
			f.Properties["pixel"] = []float64{px.X, px.Y}
		}
		fc.Append(f)
	}
	return fc
}
