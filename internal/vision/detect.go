package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// rawFace is a RetinaFace detection in source image coordinates.
type rawFace struct {
	box        [4]float32 // x1, y1, x2, y2
	confidence float32
	landmarks  [5][2]float32
}

// detector runs RetinaFace det_10g. It owns its tensors and is not safe for
// concurrent use.
type detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsThreshold  float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// det_10g output names: scores, then boxes, then landmarks for strides 8, 16, 32.
var detOutputs = []struct {
	name string
	cols int64
}{
	{"448", 1}, {"471", 1}, {"494", 1},
	{"451", 4}, {"474", 4}, {"497", 4},
	{"454", 10}, {"477", 10}, {"500", 10},
}

func newDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	names := make([]string, len(detOutputs))
	tensors := make([]*ort.Tensor[float32], 0, len(detOutputs))
	values := make([]ort.Value, len(detOutputs))
	destroy := func() {
		inputTensor.Destroy()
		for _, t := range tensors {
			t.Destroy()
		}
	}

	for i, out := range detOutputs {
		rows := int64(inputW/strides[i%3]) * int64(inputH/strides[i%3]) * anchorsPerStride
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, out.cols))
		if err != nil {
			destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", out.name, err)
		}
		names[i] = out.name
		tensors = append(tensors, t)
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		names,
		[]ort.Value{inputTensor},
		values,
		opts,
	)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: tensors,
		threshold:     threshold,
		nmsThreshold:  0.4,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// detect letterboxes img into the model input and returns faces above the
// confidence threshold after NMS, highest confidence first.
func (d *detector) detect(img image.Image) ([]rawFace, error) {
	b := img.Bounds()
	scale := math.Min(float64(d.inputW)/float64(b.Dx()), float64(d.inputH)/float64(b.Dy()))
	sw := max(1, int(float64(b.Dx())*scale))
	sh := max(1, int(float64(b.Dy())*scale))

	canvas := image.NewRGBA(image.Rect(0, 0, d.inputW, d.inputH))
	scaleInto(canvas, image.Rect(0, 0, sw, sh), img)
	toCHW(d.inputTensor.GetData(), canvas, detMean, detStd)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	faces := d.decode(float32(1/scale), float32(b.Dx()), float32(b.Dy()))
	for i := range faces {
		faces[i].translate(float32(b.Min.X), float32(b.Min.Y))
	}
	return nms(faces, d.nmsThreshold), nil
}

// decode turns anchor-relative outputs into source-pixel faces.
func (d *detector) decode(inv, maxW, maxH float32) []rawFace {
	var faces []rawFace
	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[si+3].GetData()
		marks := d.outputTensors[si+6].GetData()

		st := float32(stride)
		fmW, fmH := d.inputW/stride, d.inputH/stride
		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if score := scores[idx]; score >= d.threshold {
						ax, ay := float32(cx)*st, float32(cy)*st
						f := rawFace{
							box: [4]float32{
								clampF((ax-boxes[idx*4+0]*st)*inv, 0, maxW),
								clampF((ay-boxes[idx*4+1]*st)*inv, 0, maxH),
								clampF((ax+boxes[idx*4+2]*st)*inv, 0, maxW),
								clampF((ay+boxes[idx*4+3]*st)*inv, 0, maxH),
							},
							confidence: score,
						}
						for li := 0; li < 5; li++ {
							f.landmarks[li][0] = (ax + marks[idx*10+li*2]*st) * inv
							f.landmarks[li][1] = (ay + marks[idx*10+li*2+1]*st) * inv
						}
						faces = append(faces, f)
					}
					idx++
				}
			}
		}
	}
	return faces
}

func (f *rawFace) translate(dx, dy float32) {
	f.box[0] += dx
	f.box[1] += dy
	f.box[2] += dx
	f.box[3] += dy
	for i := range f.landmarks {
		f.landmarks[i][0] += dx
		f.landmarks[i][1] += dy
	}
}

func (d *detector) close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms keeps the most confident face of every overlapping cluster.
func nms(faces []rawFace, iouThreshold float32) []rawFace {
	sort.Slice(faces, func(i, j int) bool {
		return faces[i].confidence > faces[j].confidence
	})

	kept := faces[:0:0]
	for _, f := range faces {
		suppressed := false
		for _, k := range kept {
			if iou(k.box, f.box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, f)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	ix := max(0, min(a[2], b[2])-max(a[0], b[0]))
	iy := max(0, min(a[3], b[3])-max(a[1], b[1]))
	inter := ix * iy

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}
