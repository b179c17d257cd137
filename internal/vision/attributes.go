package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceapi/internal/detection"
)

// attributePredictor runs the InsightFace genderage model on 96x96 crops.
type attributePredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	size         int
}

func newAttributePredictor(modelPath string, opts *ort.SessionOptions) (*attributePredictor, error) {
	size := 96

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	// [female score, male score, age / 100]
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create attribute session: %w", err)
	}

	return &attributePredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		size:         size,
	}, nil
}

func (p *attributePredictor) predict(img image.Image, box [4]float32) (*detection.FaceAttributes, error) {
	toCHW(p.inputTensor.GetData(), cropBox(img, box, p.size, p.size), attrMean, attrStd)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("run attributes: %w", err)
	}

	out := p.outputTensor.GetData()
	if len(out) < 3 {
		return nil, fmt.Errorf("unexpected attribute output size %d", len(out))
	}

	female, male := out[0], out[1]
	attrs := &detection.FaceAttributes{
		Age:              clampF(out[2]*100, 0, 100),
		Gender:           "female",
		GenderConfidence: softmax2(female, male),
	}
	if male > female {
		attrs.Gender = "male"
		attrs.GenderConfidence = softmax2(male, female)
	}
	return attrs, nil
}

func (p *attributePredictor) close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
}
