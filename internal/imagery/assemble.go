// internal/imagery/assemble.go - Raster assembly from fetched tiles
package imagery

import (
	"image"
	"math"

	"github.com/paulmach/orb"
)

// Raster is a geo-referenced image ready for detection.
type Raster struct {
	Image image.Image
	Bound orb.Bound
}

// Assemble combines fetched tiles into a single geo-referenced raster.
// The current implementation passes through the tile that covers the most
// of the requested bound; stitching adjacent tiles into a mosaic is the
// extension point here. Returns nil when no tiles are available.
func Assemble(tiles []*FetchedTile, want orb.Bound) *Raster {
	if len(tiles) == 0 {
		return nil
	}

	best := tiles[0]
	bestArea := overlapArea(best.Bound, want)

	for _, tile := range tiles[1:] {
		if area := overlapArea(tile.Bound, want); area > bestArea {
			best = tile
			bestArea = area
		}
	}

	return &Raster{
		Image: best.Image,
		Bound: best.Bound,
	}
}

// overlapArea computes the intersection area of two bounds in square degrees
func overlapArea(a, b orb.Bound) float64 {
	width := math.Min(a.Max.X(), b.Max.X()) - math.Max(a.Min.X(), b.Min.X())
	height := math.Min(a.Max.Y(), b.Max.Y()) - math.Max(a.Min.Y(), b.Min.Y())

	if width <= 0 || height <= 0 {
		return 0
	}
	return width * height
}
