// Package vision implements the face oracle on ONNX Runtime: RetinaFace
// detection, ArcFace embeddings and InsightFace gender/age estimation.
package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/observability"
)

// InitRuntime loads the ONNX Runtime shared library. The returned func
// tears the environment down.
func InitRuntime() (func(), error) {
	ort.SetSharedLibraryPath(sharedLibraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}
	return func() { _ = ort.DestroyEnvironment() }, nil
}

func sharedLibraryPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// session is one independent set of model sessions. ONNX sessions bound to
// fixed tensors cannot run concurrently, so the oracle keeps a pool of them.
type session struct {
	det  *detector
	emb  *embedder
	attr *attributePredictor
}

func (s *session) close() {
	if s.det != nil {
		s.det.close()
	}
	if s.emb != nil {
		s.emb.close()
	}
	if s.attr != nil {
		s.attr.close()
	}
}

// Oracle is a pooled ONNX implementation of detection.Oracle.
type Oracle struct {
	pool    chan *session
	all     []*session
	version string
}

var _ detection.Oracle = (*Oracle)(nil)

// NewOracle loads cfg.PoolSize copies of every model from cfg.ModelsDir.
func NewOracle(cfg config.VisionConfig) (*Oracle, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
	attrPath := filepath.Join(cfg.ModelsDir, "genderage.onnx")

	o := &Oracle{
		pool:    make(chan *session, cfg.PoolSize),
		version: cfg.OracleVersion,
	}

	slog.Info("loading vision models", "dir", cfg.ModelsDir, "pool_size", cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		s, err := newSession(detPath, embPath, attrPath, float32(cfg.DetectionThreshold))
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("load session %d: %w", i, err)
		}
		o.all = append(o.all, s)
		o.pool <- s
	}
	slog.Info("vision oracle ready", "version", o.version)
	return o, nil
}

func newSession(detPath, embPath, attrPath string, threshold float32) (*session, error) {
	s := &session{}
	var err error
	if s.det, err = newDetector(detPath, threshold, nil); err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	if s.emb, err = newEmbedder(embPath, nil); err != nil {
		s.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	if s.attr, err = newAttributePredictor(attrPath, nil); err != nil {
		s.close()
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	return s, nil
}

func (o *Oracle) Version() string {
	return o.version
}

// Faces detects every face in img and embeds it.
func (o *Oracle) Faces(ctx context.Context, img image.Image, opts detection.OracleOptions) ([]detection.Face, error) {
	waitStart := time.Now()
	var s *session
	select {
	case s = <-o.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	observability.OraclePoolWait.Observe(time.Since(waitStart).Seconds())
	defer func() { o.pool <- s }()

	start := time.Now()
	raw, err := s.det.detect(img)
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]detection.Face, 0, len(raw))
	for _, r := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start = time.Now()
		emb, err := s.emb.embed(img, r.landmarks)
		if err != nil {
			return nil, err
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		f := detection.Face{
			Box:        r.box,
			Confidence: r.confidence,
			Landmarks:  r.landmarks,
			Embedding:  emb,
		}
		if opts.Attributes {
			start = time.Now()
			if f.Attributes, err = s.attr.predict(img, r.box); err != nil {
				return nil, err
			}
			observability.InferenceDuration.WithLabelValues("attrs").Observe(time.Since(start).Seconds())
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// Close releases every ONNX session. It must not be called while Faces runs.
func (o *Oracle) Close() {
	for _, s := range o.all {
		s.close()
	}
	o.all = nil
}

// softmax2 is the probability of a in a two-class softmax over (a, b).
func softmax2(a, b float32) float32 {
	return float32(1 / (1 + math.Exp(float64(b-a))))
}
