package detection

import (
	"image"
	"math"

	"github.com/your-org/faceapi/internal/models"
)

const centerEpsilon = 1e-6

// centralIndex returns the index of the face whose box center is nearest the
// center of bounds. Ties go to the larger box, then to the higher confidence.
func centralIndex(dets []models.Detection, bounds image.Rectangle) int {
	cx := float64(bounds.Min.X) + float64(bounds.Dx())/2
	cy := float64(bounds.Min.Y) + float64(bounds.Dy())/2
	best := -1
	bestDist := math.Inf(1)
	for i, d := range dets {
		x, y := d.Rect.Center()
		dist := math.Hypot(x-cx, y-cy)
		switch {
		case best < 0 || dist < bestDist-centerEpsilon:
		case math.Abs(dist-bestDist) <= centerEpsilon && betterTie(d, dets[best]):
		default:
			continue
		}
		best, bestDist = i, dist
	}
	return best
}

func betterTie(a, b models.Detection) bool {
	if a.Rect.Area() != b.Rect.Area() {
		return a.Rect.Area() > b.Rect.Area()
	}
	return a.Confidence > b.Confidence
}
