package boardloop

import (
	"fmt"
	"math"
)

// TileKey uniquely addresses a cached map tile.
type TileKey struct {
	Provider string
	Zoom     int
	X        int
	Y        int
}

// String returns the stable cache key of the tile.
func (k TileKey) String() string {
	return fmt.Sprintf("tile:%s:%d:%d:%d", k.Provider, k.Zoom, k.X, k.Y)
}

// TileAt projects latitude/longitude to integer tile coordinates at zoom using
// the spherical Web Mercator tiling formula. Deterministic and pure.
//
// Latitude is clamped to the Web Mercator domain (±85.0511°), coordinates are
// clamped to the tile grid of the zoom level.
func TileAt(lat, lon float64, zoom int) (x, y int) {
	const maxLat = 85.05112877980659

	if lat > maxLat {
		lat = maxLat
	}

	if lat < -maxLat {
		lat = -maxLat
	}

	n := float64(int(1) << uint(zoom))

	x = int(math.Floor((lon + 180) / 360 * n))

	latRad := lat * math.Pi / 180
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))

	max := int(n) - 1

	if x < 0 {
		x = 0
	} else if x > max {
		x = max
	}

	if y < 0 {
		y = 0
	} else if y > max {
		y = max
	}

	return x, y
}
