// Package detection turns a decoded image into an ordered list of resolved
// face detections: boxes, landmarks, embeddings and the optional quality,
// attribute and crop analyses selected by a scenario.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/internal/resultcode"
)

// Face is one raw face as reported by the oracle. Box is x1, y1, x2, y2.
type Face struct {
	Box        [4]float32
	Confidence float32
	Landmarks  [5][2]float32
	Embedding  []float32
	Attributes *FaceAttributes
}

// FaceAttributes are the demographic estimates for one face.
type FaceAttributes struct {
	Age              float32
	Gender           string
	GenderConfidence float32
}

// OracleOptions tell the oracle which optional outputs are needed.
type OracleOptions struct {
	Attributes bool
}

// Oracle is the ML capability that localizes and embeds faces. Implementations
// must be safe for concurrent use.
type Oracle interface {
	Faces(ctx context.Context, img image.Image, opts OracleOptions) ([]Face, error)
	Version() string
}

// Result is the outcome of one successful pipeline run.
type Result struct {
	Scenario      Scenario
	Detections    []models.Detection
	ImageWidth    int
	ImageHeight   int
	OracleVersion string
}

type Pipeline struct {
	oracle  Oracle
	timeout time.Duration
}

// NewPipeline returns a Pipeline that bounds every oracle call by timeout.
// A zero timeout disables the bound.
func NewPipeline(oracle Oracle, timeout time.Duration) *Pipeline {
	return &Pipeline{oracle: oracle, timeout: timeout}
}

// OracleVersion identifies the model set producing embeddings.
func (p *Pipeline) OracleVersion() string {
	return p.oracle.Version()
}

// Detect runs the pipeline over img. It never returns a partially populated
// detection: either every requested analysis succeeds for a face or the face
// is not reported.
func (p *Pipeline) Detect(ctx context.Context, img image.Image, params Params) (res *Result, err error) {
	start := time.Now()
	defer func() {
		code := resultcode.Of(err)
		observability.DetectRequests.WithLabelValues(string(params.Scenario), code.String()).Inc()
		observability.InferenceDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
		if res != nil {
			observability.FacesDetected.Add(float64(len(res.Detections)))
		}
	}()

	pl, err := resolve(params)
	if err != nil {
		return nil, err
	}

	faces, err := p.faces(ctx, img, OracleOptions{Attributes: pl.wantsAttributes()})
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	type candidate struct {
		det  models.Detection
		face *Face
	}
	cands := make([]candidate, 0, len(faces))
	for i := range faces {
		d, ok := toDetection(faces[i], bounds)
		if !ok {
			slog.Debug("dropping incomplete face", "box", faces[i].Box, "embedding_dims", len(faces[i].Embedding))
			continue
		}
		cands = append(cands, candidate{det: d, face: &faces[i]})
	}
	if len(cands) == 0 {
		return nil, resultcode.ErrNoFace
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].det.Rect, cands[j].det.Rect
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	if pl.central {
		dets := make([]models.Detection, len(cands))
		for i := range cands {
			dets[i] = cands[i].det
		}
		i := centralIndex(dets, bounds)
		cands = cands[i : i+1]
	}

	dets := make([]models.Detection, 0, len(cands))
	for i, c := range cands {
		d := c.det
		d.FaceIndex = i

		if len(pl.metrics) > 0 {
			d.Quality = assessQuality(pl.metrics, metricInput{img: img, rect: d.Rect, landmarks: d.Landmarks})
		}
		if pl.wantsAttributes() {
			attrs, err := buildAttributes(pl.attributes, c.face)
			if err != nil {
				return nil, err
			}
			d.Attributes = attrs
		}
		if pl.crop != nil {
			crop, orig, err := renderCrop(img, d.Rect, *pl.crop, pl.background)
			if err != nil {
				return nil, fmt.Errorf("render crop: %w: %v", resultcode.ErrInternal, err)
			}
			d.Crop = crop
			if pl.crop.ReturnOriginalRect {
				d.OriginalRect = &orig
			}
		}
		dets = append(dets, d)
	}

	return &Result{
		Scenario:      pl.scenario,
		Detections:    dets,
		ImageWidth:    bounds.Dx(),
		ImageHeight:   bounds.Dy(),
		OracleVersion: p.oracle.Version(),
	}, nil
}

// faces calls the oracle under the configured timeout.
func (p *Pipeline) faces(ctx context.Context, img image.Image, opts OracleOptions) ([]Face, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		faces []Face
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		faces, err := p.oracle.Faces(ctx, img, opts)
		ch <- result{faces, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if resultcode.Of(r.err) == resultcode.Internal {
				return nil, fmt.Errorf("oracle: %w: %v", resultcode.ErrInternal, r.err)
			}
			return nil, fmt.Errorf("oracle: %w", r.err)
		}
		return r.faces, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("oracle: %w", resultcode.ErrTimeout)
		}
		return nil, fmt.Errorf("oracle: %w", ctx.Err())
	}
}

// toDetection clamps the face box to the image and rejects faces the oracle
// returned without an embedding or with a degenerate box.
func toDetection(f Face, bounds image.Rectangle) (models.Detection, bool) {
	if len(f.Embedding) == 0 {
		return models.Detection{}, false
	}
	x1 := max(bounds.Min.X, int(math.Floor(float64(f.Box[0]))))
	y1 := max(bounds.Min.Y, int(math.Floor(float64(f.Box[1]))))
	x2 := min(bounds.Max.X, int(math.Ceil(float64(f.Box[2]))))
	y2 := min(bounds.Max.Y, int(math.Ceil(float64(f.Box[3]))))
	if x2 <= x1 || y2 <= y1 {
		return models.Detection{}, false
	}
	return models.Detection{
		Rect:       models.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
		Confidence: f.Confidence,
		Landmarks:  f.Landmarks,
		Embedding:  f.Embedding,
	}, true
}

func buildAttributes(cfg []AttributeConfig, f *Face) (*models.Attributes, error) {
	if f == nil || f.Attributes == nil {
		return nil, fmt.Errorf("oracle returned no attributes: %w", resultcode.ErrInternal)
	}
	out := &models.Attributes{Details: make([]models.AttributeDetail, 0, len(cfg))}
	for _, c := range cfg {
		switch c.Name {
		case AttributeAge:
			lo := int(math.Floor(float64(f.Attributes.Age)/5)) * 5
			out.Details = append(out.Details, models.AttributeDetail{
				Name:  AttributeAge,
				Value: [2]int{lo, lo + 5},
				Range: c.Range,
			})
		case AttributeGender:
			out.Details = append(out.Details, models.AttributeDetail{
				Name:       AttributeGender,
				Value:      f.Attributes.Gender,
				Range:      c.Range,
				Confidence: f.Attributes.GenderConfidence,
			})
		}
	}
	return out, nil
}
