package detection

import (
	"image"
	"math"
	"strings"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
)

const (
	MetricRoll         = "Roll"
	MetricYaw          = "Yaw"
	MetricPitch        = "Pitch"
	MetricEyesDistance = "EyesDistance"
	MetricSharpness    = "Sharpness"
	MetricBrightness   = "Brightness"
)

// Landmark indices as produced by the oracle.
const (
	lmLeftEye = iota
	lmRightEye
	lmNose
	lmLeftMouth
	lmRightMouth
)

// frontalNoseRatio is where the nose tip sits between the eye line and the
// mouth line on a frontal face in the reference alignment template.
const frontalNoseRatio = 0.49

type metricSpec struct {
	name  string
	rng   [2]float64
	value func(in metricInput) float64
}

type metricInput struct {
	img       image.Image
	rect      models.Rect
	landmarks [5][2]float32
}

var metricOrder = []string{MetricRoll, MetricYaw, MetricPitch, MetricEyesDistance, MetricSharpness, MetricBrightness}

var defaultMetrics = map[string]metricSpec{
	MetricRoll:         {name: MetricRoll, rng: [2]float64{-10, 10}, value: roll},
	MetricYaw:          {name: MetricYaw, rng: [2]float64{-10, 10}, value: yaw},
	MetricPitch:        {name: MetricPitch, rng: [2]float64{-15, 15}, value: pitch},
	MetricEyesDistance: {name: MetricEyesDistance, rng: [2]float64{30, 10000}, value: eyesDistance},
	MetricSharpness:    {name: MetricSharpness, rng: [2]float64{0.5, 1}, value: sharpness},
	MetricBrightness:   {name: MetricBrightness, rng: [2]float64{0.25, 0.85}, value: brightness},
}

func resolveMetrics(scenario Scenario, q *QualityParams) ([]metricSpec, error) {
	if q != nil && len(q.Config) > 0 {
		specs := make([]metricSpec, 0, len(q.Config))
		for _, c := range q.Config {
			spec, ok := lookupMetric(c.Name)
			if !ok {
				return nil, resultcode.Validationf("unknown quality metric %q", c.Name)
			}
			if c.Range != nil {
				if c.Range[0] > c.Range[1] {
					return nil, resultcode.Validationf("quality metric %s range is inverted", spec.name)
				}
				spec.rng = *c.Range
			}
			specs = append(specs, spec)
		}
		return specs, nil
	}

	if scenario == ScenarioQualityFull || q != nil {
		specs := make([]metricSpec, 0, len(metricOrder))
		for _, name := range metricOrder {
			specs = append(specs, defaultMetrics[name])
		}
		return specs, nil
	}
	return nil, nil
}

func lookupMetric(name string) (metricSpec, bool) {
	for _, canonical := range metricOrder {
		if strings.EqualFold(canonical, strings.TrimSpace(name)) {
			return defaultMetrics[canonical], true
		}
	}
	return metricSpec{}, false
}

func assessQuality(specs []metricSpec, in metricInput) *models.Quality {
	q := &models.Quality{Compliant: true, Details: make([]models.QualityDetail, 0, len(specs))}
	for _, spec := range specs {
		v := round(spec.value(in), 3)
		ok := v >= spec.rng[0] && v <= spec.rng[1]
		if !ok {
			q.Compliant = false
		}
		q.Details = append(q.Details, models.QualityDetail{
			Name:   spec.name,
			Value:  v,
			Range:  spec.rng,
			Status: ok,
		})
	}
	return q
}

func eyes(lm [5][2]float32) (lx, ly, rx, ry float64) {
	return float64(lm[lmLeftEye][0]), float64(lm[lmLeftEye][1]),
		float64(lm[lmRightEye][0]), float64(lm[lmRightEye][1])
}

// roll is the in-plane rotation of the eye line, in degrees.
func roll(in metricInput) float64 {
	lx, ly, rx, ry := eyes(in.landmarks)
	return math.Atan2(ry-ly, rx-lx) * 180 / math.Pi
}

// yaw estimates left/right head turn from the nose offset against the eye midpoint.
func yaw(in metricInput) float64 {
	lx, _, rx, _ := eyes(in.landmarks)
	dist := eyesDistance(in)
	if dist == 0 {
		return 0
	}
	offset := (float64(in.landmarks[lmNose][0]) - (lx+rx)/2) / dist
	return clamp(offset*90, -90, 90)
}

// pitch estimates up/down head tilt from the nose position between eyes and mouth.
func pitch(in metricInput) float64 {
	_, ly, _, ry := eyes(in.landmarks)
	eyeY := (ly + ry) / 2
	mouthY := (float64(in.landmarks[lmLeftMouth][1]) + float64(in.landmarks[lmRightMouth][1])) / 2
	span := mouthY - eyeY
	if span <= 0 {
		return 0
	}
	t := (float64(in.landmarks[lmNose][1]) - eyeY) / span
	return clamp((t-frontalNoseRatio)*180, -90, 90)
}

func eyesDistance(in metricInput) float64 {
	lx, ly, rx, ry := eyes(in.landmarks)
	return math.Hypot(rx-lx, ry-ly)
}

// sharpness is the variance of the Laplacian over the face region, squashed into [0, 1).
func sharpness(in metricInput) float64 {
	gray := grayRegion(in.img, in.rect)
	h := len(gray)
	if h < 3 || len(gray[0]) < 3 {
		return 0
	}
	w := len(gray[0])

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			l := 4*gray[y][x] - gray[y-1][x] - gray[y+1][x] - gray[y][x-1] - gray[y][x+1]
			sum += l
			sumSq += l * l
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	return variance / (variance + 100)
}

// brightness is the mean luminance of the face region in [0, 1].
func brightness(in metricInput) float64 {
	gray := grayRegion(in.img, in.rect)
	var sum float64
	n := 0
	for _, row := range gray {
		for _, v := range row {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 255
}

// grayRegion samples at most 128x128 luminance values from rect.
func grayRegion(img image.Image, rect models.Rect) [][]float64 {
	r := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	step := max(1, max(r.Dx(), r.Dy())/128)
	var out [][]float64
	for y := r.Min.Y; y < r.Max.Y; y += step {
		row := make([]float64, 0, r.Dx()/step+1)
		for x := r.Min.X; x < r.Max.X; x += step {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			row = append(row, 0.299*float64(cr>>8)+0.587*float64(cg>>8)+0.114*float64(cb>>8))
		}
		out = append(out, row)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
