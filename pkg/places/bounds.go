package places

import "github.com/twpayne/go-geom"

// seoulBounds is the WGS84 bounding box of the greater Seoul service
// area, with margin to cover Gimpo and Incheon approaches.
var seoulBounds = geom.NewBounds(geom.XY).Set(126.76, 37.41, 127.20, 37.72)

// InServiceArea reports whether a coordinate falls inside the Seoul
// service area.
func InServiceArea(lat, lng float64) bool {
	return seoulBounds.OverlapsPoint(geom.XY, geom.Coord{lng, lat})
}
