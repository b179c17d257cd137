package detection

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/faceapi/internal/models"
)

func TestCentralIndex(t *testing.T) {
	dets := []models.Detection{
		{Rect: models.Rect{X: 0, Y: 0, Width: 20, Height: 20}},
		{Rect: models.Rect{X: 40, Y: 40, Width: 20, Height: 20}},
		{Rect: models.Rect{X: 80, Y: 80, Width: 20, Height: 20}},
	}
	assert.Equal(t, 1, centralIndex(dets, image.Rect(0, 0, 100, 100)))
}

func TestCentralIndexOffsetBounds(t *testing.T) {
	dets := []models.Detection{
		{Rect: models.Rect{X: 40, Y: 40, Width: 20, Height: 20}},
		{Rect: models.Rect{X: 240, Y: 140, Width: 20, Height: 20}},
	}
	// A 100x100 sub-image whose origin is (200, 100).
	assert.Equal(t, 1, centralIndex(dets, image.Rect(200, 100, 300, 200)))
}

func TestCentralIndexTieBreaks(t *testing.T) {
	// Both boxes are centered on the image.
	dets := []models.Detection{
		{Rect: models.Rect{X: 40, Y: 40, Width: 20, Height: 20}, Confidence: 0.99},
		{Rect: models.Rect{X: 30, Y: 30, Width: 40, Height: 40}, Confidence: 0.6},
	}
	assert.Equal(t, 1, centralIndex(dets, image.Rect(0, 0, 100, 100)), "larger box wins")

	dets[1].Rect = models.Rect{X: 40, Y: 40, Width: 20, Height: 20}
	assert.Equal(t, 0, centralIndex(dets, image.Rect(0, 0, 100, 100)), "higher confidence wins on equal area")
}

func TestQualityGeometry(t *testing.T) {
	in := metricInput{landmarks: [5][2]float32{
		{30, 40}, {70, 50}, {50, 60}, {35, 80}, {65, 80},
	}}
	assert.InDelta(t, 14.036, roll(in), 0.01)
	assert.InDelta(t, 41.231, eyesDistance(in), 0.01)

	in.landmarks = [5][2]float32{{30, 40}, {70, 40}, {62, 59.6}, {35, 80}, {65, 80}}
	assert.Greater(t, yaw(in), 0.0)
	assert.InDelta(t, 0, pitch(in), 0.5)
}
