// Package matching compares face images pairwise and orders every pair by
// the capture provenance of its images.
package matching

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/internal/similarity"
)

// Image is one tagged input of a Match call.
type Image struct {
	Index  int
	Type   ImageSource
	Source imagesrc.Source
}

// Params apply to every image of a Match call.
type Params struct {
	Output *detection.OutputImageParams
}

// ImageResult is the per-image outcome. Detection is nil when Code is not OK.
type ImageResult struct {
	Index     int
	Type      ImageSource
	Code      resultcode.Code
	Err       error
	Detection *models.Detection
}

// PairResult compares two images. First always holds the higher-precedence
// source. A single-image call yields one PairResult with Second unset.
type PairResult struct {
	First       ImageSource
	FirstIndex  int
	Second      *ImageSource
	SecondIndex *int
	Similarity  float64
	Code        resultcode.Code
}

type Result struct {
	Images []ImageResult
	Pairs  []PairResult
}

// Detections returns the successfully resolved detections in input order.
func (r *Result) Detections() []ImageResult {
	var out []ImageResult
	for _, img := range r.Images {
		if img.Code == resultcode.OK {
			out = append(out, img)
		}
	}
	return out
}

type Resolver interface {
	Resolve(ctx context.Context, src imagesrc.Source) (*imagesrc.Resolved, error)
}

type Detector interface {
	Detect(ctx context.Context, img image.Image, params detection.Params) (*detection.Result, error)
}

type Engine struct {
	resolver    Resolver
	detector    Detector
	scorer      similarity.Scorer
	parallelism int
}

// NewEngine returns an engine detecting at most parallelism images at once.
func NewEngine(resolver Resolver, detector Detector, scorer similarity.Scorer, parallelism int) *Engine {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Engine{resolver: resolver, detector: detector, scorer: scorer, parallelism: parallelism}
}

// Match detects one face per image in parallel and compares every pair.
// Per-image failures are reported in the result; the call itself fails only
// on invalid input or when no image produced a detection.
func (e *Engine) Match(ctx context.Context, images []Image, params Params) (*Result, error) {
	if err := validate(images); err != nil {
		return nil, err
	}

	res := &Result{Images: make([]ImageResult, len(images))}
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, img := range images {
		g.Go(func() error {
			det, err := e.detectOne(ctx, img, params)
			res.Images[i] = ImageResult{
				Index:     img.Index,
				Type:      img.Type,
				Code:      resultcode.Of(err),
				Err:       err,
				Detection: det,
			}
			if err != nil {
				slog.Debug("match image failed", "index", img.Index, "type", img.Type.String(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(res.Detections()) == 0 {
		return nil, fmt.Errorf("match: %w", firstError(res.Images))
	}

	res.Pairs = e.pairs(res.Images)
	for _, p := range res.Pairs {
		observability.MatchResults.WithLabelValues(p.Code.String()).Inc()
	}
	return res, nil
}

func validate(images []Image) error {
	if len(images) == 0 {
		return resultcode.Validationf("at least one image is required")
	}
	seen := make(map[int]bool, len(images))
	for _, img := range images {
		if !img.Type.Valid() {
			return resultcode.Validationf("image %d has unknown source type %d", img.Index, img.Type)
		}
		if seen[img.Index] {
			return resultcode.Validationf("duplicate image index %d", img.Index)
		}
		seen[img.Index] = true
	}
	return nil
}

// detectOne resolves a single face for img. A document-with-live image carries
// both the printed portrait and the embedded ghost photo; it collapses to the
// smallest face, the embedded photo.
func (e *Engine) detectOne(ctx context.Context, img Image, params Params) (*models.Detection, error) {
	resolved, err := e.resolver.Resolve(ctx, img.Source)
	if err != nil {
		return nil, err
	}

	dp := detection.CentralOnly()
	if img.Type == SourceDocumentWithLive {
		dp.OnlyCentralFace = nil
	}
	dp.Output = params.Output

	out, err := e.detector.Detect(ctx, resolved.Image, dp)
	if err != nil {
		return nil, err
	}

	det := out.Detections[0]
	if img.Type == SourceDocumentWithLive {
		for _, d := range out.Detections[1:] {
			if d.Rect.Area() < det.Rect.Area() {
				det = d
			}
		}
		det.FaceIndex = 0
	}
	return &det, nil
}

// pairs compares every i < j pair in input order. With a single image the
// result has only a first side.
func (e *Engine) pairs(images []ImageResult) []PairResult {
	if len(images) == 1 {
		return []PairResult{{
			First:      images[0].Type,
			FirstIndex: images[0].Index,
			Code:       images[0].Code,
		}}
	}

	var out []PairResult
	for i := 0; i < len(images); i++ {
		for j := i + 1; j < len(images); j++ {
			out = append(out, e.compare(images[i], images[j]))
		}
	}
	return out
}

func (e *Engine) compare(a, b ImageResult) PairResult {
	first, second := order(a, b)
	secondType, secondIndex := second.Type, second.Index
	p := PairResult{
		First:       first.Type,
		FirstIndex:  first.Index,
		Second:      &secondType,
		SecondIndex: &secondIndex,
	}

	switch {
	case first.Code != resultcode.OK:
		p.Code = first.Code
	case second.Code != resultcode.OK:
		p.Code = second.Code
	default:
		score, err := e.scorer.Score(first.Detection.Embedding, second.Detection.Embedding)
		if err != nil {
			p.Code = resultcode.Of(err)
			break
		}
		p.Similarity = score
		p.Code = resultcode.OK
	}
	return p
}

// order puts the higher-precedence image first; equal sources keep input order.
func order(a, b ImageResult) (ImageResult, ImageResult) {
	if b.Type.Outranks(a.Type) {
		return b, a
	}
	return a, b
}

func firstError(images []ImageResult) error {
	sorted := make([]ImageResult, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for _, img := range sorted {
		if img.Err != nil {
			return img.Err
		}
	}
	return errors.New("no detections")
}
