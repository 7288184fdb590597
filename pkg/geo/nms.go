// pkg/geo/nms.go - Non-maximum suppression over geographic detections
package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// BoundIoU computes intersection-over-union of two axis-aligned bounding
// boxes. Degenerate (zero-area) boxes yield 0.
func BoundIoU(a, b orb.Bound) float64 {
	interMinLng := math.Max(a.Min.X(), b.Min.X())
	interMaxLng := math.Min(a.Max.X(), b.Max.X())
	interMinLat := math.Max(a.Min.Y(), b.Min.Y())
	interMaxLat := math.Min(a.Max.Y(), b.Max.Y())

	if interMinLng >= interMaxLng || interMinLat >= interMaxLat {
		return 0
	}

	interArea := (interMaxLng - interMinLng) * (interMaxLat - interMinLat)
	areaA := (a.Max.X() - a.Min.X()) * (a.Max.Y() - a.Min.Y())
	areaB := (b.Max.X() - b.Min.X()) * (b.Max.Y() - b.Min.Y())

	unionArea := areaA + areaB - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}

// Suppress applies greedy non-maximum suppression: detections are taken in
// descending confidence order (stable, so ties keep their relative order)
// and a candidate is dropped when its IoU with any accepted detection
// strictly exceeds iouThreshold. The result is deterministic regardless of
// input order and idempotent.
func Suppress(detections []Detection, iouThreshold float64) []Detection {
	if len(detections) <= 1 {
		return detections
	}

	ordered := make([]Detection, len(detections))
	copy(ordered, detections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})

	accepted := make([]Detection, 0, len(ordered))
	for _, candidate := range ordered {
		duplicate := false
		for _, kept := range accepted {
			if BoundIoU(candidate.Bound(), kept.Bound()) > iouThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			accepted = append(accepted, candidate)
		}
	}

	return accepted
}
