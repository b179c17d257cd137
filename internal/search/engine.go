// Package search ranks enrolled persons against a query face.
package search

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/internal/similarity"
)

// Gallery is the read side of the identity store used by search.
type Gallery interface {
	ScanGallery(ctx context.Context, groupIDs []uuid.UUID, fn func(models.GalleryEntry) error) error
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
}

// NearestSearcher is implemented by galleries that rank persons by cosine
// distance natively.
type NearestSearcher interface {
	NearestPersons(ctx context.Context, embedding []float32, groupIDs []uuid.UUID, minScore float64, limit int) ([]models.PersonMatch, error)
}

type Resolver interface {
	Resolve(ctx context.Context, src imagesrc.Source) (*imagesrc.Resolved, error)
}

type Detector interface {
	Detect(ctx context.Context, img image.Image, params detection.Params) (*detection.Result, error)
}

type Request struct {
	Image    imagesrc.Source
	GroupIDs []uuid.UUID
	// Limit of 0 selects the configured default.
	Limit int
	// Threshold nil selects the configured default.
	Threshold *float64
	Output    *detection.OutputImageParams
}

// Candidate is one ranked person with its best-matching enrolled image.
type Candidate struct {
	Person      models.Person
	ImageID     uuid.UUID
	Path        string
	ContentType string
	Similarity  float64
}

// Result is empty, never nil, when nothing in scope reaches the threshold.
type Result struct {
	Detection *models.Detection
	Persons   []Candidate
}

type Engine struct {
	gallery      Gallery
	nearest      NearestSearcher
	resolver     Resolver
	detector     Detector
	scorer       similarity.Scorer
	cfg          config.SearchConfig
	storeTimeout time.Duration
}

// NewEngine returns an Engine. When gallery also implements NearestSearcher
// and scorer is similarity.Cosine, ranking is delegated to the gallery.
func NewEngine(gallery Gallery, resolver Resolver, detector Detector, scorer similarity.Scorer, cfg config.SearchConfig, storeTimeout time.Duration) *Engine {
	e := &Engine{
		gallery:      gallery,
		resolver:     resolver,
		detector:     detector,
		scorer:       scorer,
		cfg:          cfg,
		storeTimeout: storeTimeout,
	}
	if ns, ok := gallery.(NearestSearcher); ok {
		if _, cosine := scorer.(similarity.Cosine); cosine {
			e.nearest = ns
		}
	}
	return e
}

func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

func (e *Engine) params(req Request) (limit int, threshold float64, err error) {
	limit = req.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit < 0 || limit > e.cfg.MaxLimit {
		return 0, 0, resultcode.Validationf("limit must be within [1, %d], got %d", e.cfg.MaxLimit, limit)
	}
	threshold = e.cfg.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return 0, 0, resultcode.Validationf("threshold must be within [0, 1], got %g", threshold)
	}
	return limit, threshold, nil
}

// Search detects the central face of the query image and ranks the persons
// in scope by their best-scoring enrolled image. An empty GroupIDs searches
// every group. Only an unusable query image or an infrastructure failure is
// an error; a query without a face or an empty gallery yield an empty result.
func (e *Engine) Search(ctx context.Context, req Request) (res *Result, err error) {
	defer func() {
		observability.SearchRequests.WithLabelValues(resultcode.Of(err).String()).Inc()
	}()

	limit, threshold, err := e.params(req)
	if err != nil {
		return nil, err
	}

	resolved, err := e.resolver.Resolve(ctx, req.Image)
	if err != nil {
		return nil, fmt.Errorf("resolve query image: %w", err)
	}

	dp := detection.CentralOnly()
	dp.Output = req.Output
	det, err := e.detector.Detect(ctx, resolved.Image, dp)
	if errors.Is(err, resultcode.ErrNoFace) {
		return &Result{Persons: []Candidate{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("detect query face: %w", err)
	}
	query := det.Detections[0]
	res = &Result{Detection: &query, Persons: []Candidate{}}

	// Persons deleted since the gallery read consume slots, so the window
	// widens until limit is met or the candidates run out.
	for fetch := limit; ; fetch += limit {
		matches, exhausted, err := e.candidates(ctx, query.Embedding, req.GroupIDs, threshold, fetch)
		if err != nil {
			return nil, err
		}
		res.Persons, err = e.resolve(ctx, matches, limit)
		if err != nil {
			return nil, err
		}
		if len(res.Persons) == limit || exhausted {
			break
		}
	}

	slog.Debug("search done", "groups", len(req.GroupIDs), "persons", len(res.Persons), "threshold", threshold)
	return res, nil
}

// candidates returns up to fetch ranked matches; exhausted reports that no
// further match exists past the returned ones.
func (e *Engine) candidates(ctx context.Context, emb []float32, groupIDs []uuid.UUID, threshold float64, fetch int) ([]models.PersonMatch, bool, error) {
	if e.nearest != nil {
		matches, err := e.nearestMatches(ctx, emb, groupIDs, threshold, fetch)
		return matches, len(matches) < fetch, err
	}
	// A scan sees the whole gallery, so one pass ranks every candidate.
	matches, err := e.scan(ctx, emb, groupIDs, threshold)
	return matches, true, err
}

// resolve loads the persons behind matches in rank order, skipping deleted
// ones, until limit candidates are collected.
func (e *Engine) resolve(ctx context.Context, matches []models.PersonMatch, limit int) ([]Candidate, error) {
	out := make([]Candidate, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		p, err := e.person(ctx, m.PersonID)
		if errors.Is(err, resultcode.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{
			Person:      *p,
			ImageID:     m.ImageID,
			Path:        m.Path,
			ContentType: m.ContentType,
			Similarity:  m.Score,
		})
	}
	return out, nil
}

func (e *Engine) person(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	sctx, cancel := e.bounded(ctx)
	defer cancel()
	p, err := e.gallery.GetPerson(sctx, id)
	if err != nil {
		return nil, fmt.Errorf("load matched person: %w", err)
	}
	return p, nil
}

func (e *Engine) nearestMatches(ctx context.Context, emb []float32, groupIDs []uuid.UUID, threshold float64, limit int) ([]models.PersonMatch, error) {
	sctx, cancel := e.bounded(ctx)
	defer cancel()
	matches, err := e.nearest.NearestPersons(sctx, emb, groupIDs, threshold, limit)
	if errors.Is(err, resultcode.ErrDimensionMismatch) {
		slog.Warn("query embedding incompatible with gallery", "dims", len(emb), "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nearest persons: %w", err)
	}
	observability.SearchCandidates.Observe(float64(len(matches)))
	return matches, nil
}

// scan scores every enrolled embedding in scope and keeps the best image per person.
func (e *Engine) scan(ctx context.Context, emb []float32, groupIDs []uuid.UUID, threshold float64) ([]models.PersonMatch, error) {
	best := map[uuid.UUID]models.PersonMatch{}
	scored, skipped := 0, 0

	sctx, cancel := e.bounded(ctx)
	defer cancel()
	err := e.gallery.ScanGallery(sctx, groupIDs, func(entry models.GalleryEntry) error {
		score, err := e.scorer.Score(emb, entry.Embedding)
		if errors.Is(err, resultcode.ErrDimensionMismatch) {
			skipped++
			return nil
		}
		if err != nil {
			return err
		}
		scored++
		if cur, ok := best[entry.PersonID]; !ok || score > cur.Score {
			best[entry.PersonID] = models.PersonMatch{
				PersonID:    entry.PersonID,
				ImageID:     entry.ImageID,
				Path:        entry.Path,
				ContentType: entry.ContentType,
				Score:       score,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan gallery: %w", err)
	}
	observability.SearchCandidates.Observe(float64(scored))
	if skipped > 0 {
		slog.Warn("skipped incompatible gallery embeddings", "count", skipped, "dims", len(emb))
	}

	return rank(best, threshold), nil
}

// rank orders matches by descending score, ties by person id, and drops
// those below threshold.
func rank(best map[uuid.UUID]models.PersonMatch, threshold float64) []models.PersonMatch {
	out := make([]models.PersonMatch, 0, len(best))
	for _, m := range best {
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PersonID.String() < out[j].PersonID.String()
	})
	return out
}
