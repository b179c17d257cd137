package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNMS(t *testing.T) {
	faces := []rawFace{
		{box: [4]float32{0, 0, 10, 10}, confidence: 0.7},
		{box: [4]float32{1, 1, 11, 11}, confidence: 0.9},
		{box: [4]float32{50, 50, 60, 60}, confidence: 0.8},
	}

	kept := nms(faces, 0.4)
	assert.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].confidence)
	assert.Equal(t, float32(0.8), kept[1].confidence)
}

func TestIoU(t *testing.T) {
	assert.InDelta(t, 1.0, iou([4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}), 1e-6)
	assert.InDelta(t, 0.0, iou([4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}), 1e-6)
	assert.InDelta(t, 25.0/175.0, iou([4]float32{0, 0, 10, 10}, [4]float32{5, 5, 15, 15}), 1e-6)
}

func TestSimilarityMapsTemplateOntoItself(t *testing.T) {
	var src [5][2]float32
	for i, p := range arcfaceTemplate {
		src[i] = [2]float32{float32(p[0]*2 + 10), float32(p[1]*2 + 20)}
	}

	m := similarity(src, arcfaceTemplate)
	for i, p := range src {
		x := m[0]*float64(p[0]) + m[1]*float64(p[1]) + m[2]
		y := m[3]*float64(p[0]) + m[4]*float64(p[1]) + m[5]
		assert.InDelta(t, arcfaceTemplate[i][0], x, 1e-3)
		assert.InDelta(t, arcfaceTemplate[i][1], y, 1e-3)
	}
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	dst := make([]float32, 6)
	toCHW(dst, img, [3]float32{0, 0, 0}, [3]float32{255, 255, 255})
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, dst)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestSoftmax2(t *testing.T) {
	assert.InDelta(t, 0.5, softmax2(1, 1), 1e-6)
	assert.Greater(t, softmax2(3, 0), float32(0.9))
}
