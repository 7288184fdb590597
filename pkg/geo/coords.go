// pkg/geo/coords.go - Geographic bounds and tile coverage math
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// webMercatorLatLimit is the latitude extent of the Web Mercator projection.
const webMercatorLatLimit = 85.05112877980659

// ErrInvalidBounds indicates degenerate or inverted geographic bounds.
var ErrInvalidBounds = fmt.Errorf("invalid geographic bounds")

// ZoomRule maps a span threshold to a tile zoom level. A bound whose larger
// dimension exceeds SpanAbove degrees is planned at Zoom.
type ZoomRule struct {
	SpanAbove float64 `mapstructure:"span_above" json:"span_above"`
	Zoom      int     `mapstructure:"zoom" json:"zoom"`
}

// DefaultZoomRules balance image resolution against tile-fetch cost.
// Pools need roughly 0.3-0.6 m/pixel to be visually resolvable.
func DefaultZoomRules() []ZoomRule {
	return []ZoomRule{
		{SpanAbove: 0.01, Zoom: 16},
		{SpanAbove: 0.005, Zoom: 17},
		{SpanAbove: 0.002, Zoom: 18},
	}
}

// DefaultFinestZoom is used when no zoom rule matches (small parcels).
const DefaultFinestZoom = 19

// PolygonBound extracts the bounding box of a GeoJSON Polygon geometry.
func PolygonBound(geometry *geojson.Geometry) (orb.Bound, error) {
	if geometry == nil {
		return orb.Bound{}, ErrInvalidBounds
	}

	polygon, ok := geometry.Geometry().(orb.Polygon)
	if !ok || len(polygon) == 0 || len(polygon[0]) == 0 {
		return orb.Bound{}, fmt.Errorf("%w: only Polygon geometry is supported", ErrInvalidBounds)
	}

	bound := polygon.Bound()
	if err := ValidateBound(bound); err != nil {
		return orb.Bound{}, err
	}

	return bound, nil
}

// ValidateBound checks the minLng < maxLng, minLat < maxLat invariant.
func ValidateBound(b orb.Bound) error {
	if b.Min.X() >= b.Max.X() || b.Min.Y() >= b.Max.Y() {
		return fmt.Errorf("%w: [%f,%f,%f,%f]", ErrInvalidBounds, b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
	}
	return nil
}

// ZoomFor selects a tile zoom level for the given bound using a step
// function of the larger dimension. Rules are evaluated in order; the
// first rule whose SpanAbove is exceeded wins, otherwise finest is used.
func ZoomFor(b orb.Bound, rules []ZoomRule, finest int) maptile.Zoom {
	span := math.Max(b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y())

	for _, rule := range rules {
		if span > rule.SpanAbove {
			return maptile.Zoom(rule.Zoom)
		}
	}
	return maptile.Zoom(finest)
}

// CoverTiles enumerates the rectangular grid of tiles covering the bound
// at the given zoom, in deterministic row-major order.
func CoverTiles(b orb.Bound, zoom maptile.Zoom) ([]maptile.Tile, error) {
	if err := ValidateBound(b); err != nil {
		return nil, err
	}

	// Clamp to Web Mercator limits before converting to tile space.
	clamped := orb.Bound{
		Min: orb.Point{
			math.Max(-180.0, b.Min.X()),
			math.Max(-webMercatorLatLimit, b.Min.Y()),
		},
		Max: orb.Point{
			math.Min(180.0-1e-9, b.Max.X()),
			math.Min(webMercatorLatLimit, b.Max.Y()),
		},
	}

	minTile := maptile.At(clamped.Min, zoom)
	maxTile := maptile.At(clamped.Max, zoom)

	// Tile Y grows southward, so the bound's max latitude maps to min Y.
	minTile.Y, maxTile.Y = maxTile.Y, minTile.Y

	tiles := make([]maptile.Tile, 0, int(maxTile.X-minTile.X+1)*int(maxTile.Y-minTile.Y+1))
	for x := minTile.X; x <= maxTile.X; x++ {
		for y := minTile.Y; y <= maxTile.Y; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}

	return tiles, nil
}

// Plan selects a zoom level and enumerates the covering tiles for a bound.
func Plan(b orb.Bound, rules []ZoomRule, finest int) (maptile.Zoom, []maptile.Tile, error) {
	zoom := ZoomFor(b, rules, finest)
	tiles, err := CoverTiles(b, zoom)
	if err != nil {
		return 0, nil, err
	}
	return zoom, tiles, nil
}
