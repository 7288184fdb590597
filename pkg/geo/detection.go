// pkg/geo/detection.go - Geographic detections and pixel-space projection
package geo

import (
	"github.com/paulmach/orb"
)

// Detection is a detected object projected into geographic space.
type Detection struct {
	Polygon    orb.Polygon
	Confidence float64
	ClassID    int
}

// Bound returns the axis-aligned bounding box of the detection polygon.
func (d Detection) Bound() orb.Bound {
	return d.Polygon.Bound()
}

// ProjectBox maps a pixel-space bounding box onto a geographic polygon
// using the raster's known bounds. The image Y axis is inverted relative
// to latitude. The result is a closed 5-point ring.
func ProjectBox(x1, y1, x2, y2 float64, width, height int, raster orb.Bound) orb.Polygon {
	lngPerPixel := (raster.Max.X() - raster.Min.X()) / float64(width)
	latPerPixel := (raster.Max.Y() - raster.Min.Y()) / float64(height)

	minLng := raster.Min.X() + x1*lngPerPixel
	maxLng := raster.Min.X() + x2*lngPerPixel
	minLat := raster.Max.Y() - y2*latPerPixel
	maxLat := raster.Max.Y() - y1*latPerPixel

	return orb.Polygon{orb.Ring{
		{minLng, minLat},
		{maxLng, minLat},
		{maxLng, maxLat},
		{minLng, maxLat},
		{minLng, minLat},
	}}
}

// Overlaps reports whether the detection's bounding box intersects the
// parcel's bounding box. This is the documented axis-aligned
// approximation of polygon intersection.
func Overlaps(d Detection, parcel orb.Bound) bool {
	return d.Bound().Intersects(parcel)
}

// FilterToParcel keeps only detections whose bounding box intersects the
// parcel's bounding box.
func FilterToParcel(detections []Detection, parcel orb.Bound) []Detection {
	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if Overlaps(d, parcel) {
			kept = append(kept, d)
		}
	}
	return kept
}
