package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// embedder extracts ArcFace w600k_r50 embeddings from aligned 112x112 faces.
type embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	size         int
	dims         int
}

func newEmbedder(modelPath string, opts *ort.SessionOptions) (*embedder, error) {
	size, dims := 112, 512

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dims)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		size:         size,
		dims:         dims,
	}, nil
}

// embed aligns the face described by landmarks and returns its L2-normalized
// embedding.
func (e *embedder) embed(img image.Image, landmarks [5][2]float32) ([]float32, error) {
	toCHW(e.inputTensor.GetData(), alignFace(img, landmarks, e.size), embMean, embStd)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	v := make([]float32, e.dims)
	copy(v, e.outputTensor.GetData())
	normalize(v)
	return v, nil
}

func (e *embedder) close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalization in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if norm := float32(math.Sqrt(sum)); norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
