package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/api"
	"github.com/your-org/faceapi/internal/api/handlers"
	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/detection/detectiontest"
	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/matching"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/internal/search"
	"github.com/your-org/faceapi/internal/similarity"
	"github.com/your-org/faceapi/internal/storage"
	"github.com/your-org/faceapi/pkg/dto"
)

const apiKey = "test-key"

type taskRecorder struct {
	tasks []models.ReindexTask
}

func (r *taskRecorder) PublishReindexTask(ctx context.Context, task models.ReindexTask) error {
	r.tasks = append(r.tasks, task)
	return nil
}

type fixture struct {
	handler http.Handler
	oracle  *detectiontest.Oracle
	store   *storage.MemoryStore
}

func newFixture(t *testing.T, tasks identity.TaskPublisher, checks map[string]handlers.Check) *fixture {
	t.Helper()
	cfg := config.Default()

	store := storage.NewMemoryStore()
	blobs := storage.NewMemoryBlobStore()
	oracle := &detectiontest.Oracle{}
	pipeline := detection.NewPipeline(oracle, time.Second)
	normalizer := imagesrc.NewNormalizer(nil)

	router := api.NewRouter(api.RouterConfig{
		APIKey:       apiKey,
		MaxBodyBytes: 1 << 20,
		Identity:     identity.NewService(store, blobs, normalizer, pipeline, time.Second),
		Matching:     matching.NewEngine(normalizer, pipeline, similarity.Cosine{}, 4),
		Search:       search.NewEngine(store, normalizer, pipeline, similarity.Cosine{}, cfg.Search, time.Second),
		Detector:     pipeline,
		Resolver:     normalizer,
		Tasks:        tasks,
		Checks:       checks,
	})
	return &fixture{handler: router, oracle: oracle, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRequiresAPIKey(t *testing.T) {
	f := newFixture(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/groups", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz(t *testing.T) {
	f := newFixture(t, nil, map[string]handlers.Check{
		"store": func(ctx context.Context) error { return nil },
		"queue": func(ctx context.Context) error { return errors.New("nats: no servers available") },
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no servers available")
}

func TestDetect(t *testing.T) {
	f := newFixture(t, nil, nil)

	img := detectiontest.PNG(t, 300, 100,
		detectiontest.Block{Rect: image.Rect(210, 30, 250, 70), Color: detectiontest.Blue},
		detectiontest.Block{Rect: image.Rect(10, 30, 50, 70), Color: detectiontest.Red},
	)
	w := f.do(t, http.MethodPost, "/v1/matching/detect", dto.DetectRequest{
		Image:        dto.ImageInput{Content: img},
		ProcessParam: dto.ProcessParam{Scenario: "QualityFull"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[dto.DetectResponse](t, w)
	assert.Equal(t, 0, resp.Code)
	require.NotNil(t, resp.Results)
	assert.Equal(t, "QualityFull", resp.Results.Scenario)
	require.Len(t, resp.Results.Detections, 2)
	assert.Less(t, resp.Results.Detections[0].Roi[0], resp.Results.Detections[1].Roi[0])
	assert.Equal(t, 0, resp.Results.Detections[0].FaceIndex)
	assert.Equal(t, 1, resp.Results.Detections[1].FaceIndex)
	assert.NotNil(t, resp.Results.Detections[0].Quality)
}

func TestDetectOutcomes(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		req    dto.DetectRequest
		status int
		code   resultcode.Code
	}{
		{"no face", dto.DetectRequest{Image: dto.ImageInput{Content: detectiontest.PNG(t, 50, 50)}}, http.StatusOK, resultcode.NoFaceDetected},
		{"undecodable", dto.DetectRequest{Image: dto.ImageInput{Content: []byte("not an image")}}, http.StatusOK, resultcode.DecodeError},
		{"no image", dto.DetectRequest{}, http.StatusBadRequest, resultcode.ValidationError},
		{"unknown scenario", dto.DetectRequest{
			Image:        dto.ImageInput{Content: detectiontest.Portrait(t, detectiontest.Red)},
			ProcessParam: dto.ProcessParam{Scenario: "Selfie"},
		}, http.StatusBadRequest, resultcode.ValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/v1/matching/detect", tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[dto.DetectResponse](t, w)
			assert.Equal(t, int(tt.code), resp.Code)
			assert.Nil(t, resp.Results)
		})
	}
}

func TestDetectRejectsOversizedBody(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(t, http.MethodPost, "/v1/matching/detect", dto.DetectRequest{
		Image: dto.ImageInput{Content: make([]byte, 2<<20)},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int(resultcode.ValidationError), decode[dto.ErrorResponse](t, w).Code)
}

func TestMatchOrdersBySourcePrecedence(t *testing.T) {
	f := newFixture(t, nil, nil)

	red := detectiontest.Portrait(t, detectiontest.Red)
	w := f.do(t, http.MethodPost, "/v1/matching/match", dto.MatchRequest{
		Images: []dto.MatchImage{
			{Index: 0, Type: int(matching.SourceDocumentPrinted), Data: red},
			{Index: 1, Type: int(matching.SourceLive), Data: red},
			{Index: 2, Type: int(matching.SourceLive), Data: detectiontest.PNG(t, 40, 40)},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[dto.MatchResponse](t, w)
	assert.Equal(t, 0, resp.Code)
	require.Len(t, resp.Detections, 3)
	assert.Equal(t, int(resultcode.NoFaceDetected), resp.Detections[2].Code)
	assert.Len(t, resp.Detections[0].Faces, 1)

	require.Len(t, resp.Results, 3)
	first := resp.Results[0]
	assert.Equal(t, int(matching.SourceLive), first.First)
	assert.Equal(t, 1, first.FirstIndex)
	require.NotNil(t, first.Second)
	assert.Equal(t, int(matching.SourceDocumentPrinted), *first.Second)
	assert.Equal(t, 0, *first.SecondIndex)
	assert.InDelta(t, 1.0, first.Similarity, 1e-6)
	assert.Equal(t, first.Similarity, first.Score)
	assert.Equal(t, 0, first.Code)

	for _, r := range resp.Results[1:] {
		assert.Equal(t, int(resultcode.NoFaceDetected), r.Code)
		assert.Zero(t, r.Similarity)
	}
}

func TestMatchFailures(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(t, http.MethodPost, "/v1/matching/match", dto.MatchRequest{
		Images: []dto.MatchImage{{Index: 0, Type: 9, Data: detectiontest.Portrait(t, detectiontest.Red)}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int(resultcode.ValidationError), decode[dto.MatchResponse](t, w).Code)

	w = f.do(t, http.MethodPost, "/v1/matching/match", dto.MatchRequest{
		Images: []dto.MatchImage{{Index: 0, Type: int(matching.SourceLive), Data: detectiontest.PNG(t, 40, 40)}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int(resultcode.NoFaceDetected), decode[dto.MatchResponse](t, w).Code)
}

func TestIdentityLifecycleAndSearch(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(t, http.MethodPost, "/v1/groups", dto.GroupRequest{Name: "staff"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[dto.GroupResponse](t, w)
	assert.NotNil(t, group.Metadata)

	w = f.do(t, http.MethodPost, "/v1/persons", dto.CreatePersonRequest{
		Name:     "alice",
		Groups:   []uuid.UUID{group.ID},
		Metadata: map[string]any{"badge": "A-1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	alice := decode[dto.PersonResponse](t, w)
	assert.Equal(t, []uuid.UUID{group.ID}, alice.Groups)

	w = f.do(t, http.MethodPost, "/v1/persons/"+alice.ID.String()+"/images", dto.ImageInput{
		Content: detectiontest.Portrait(t, detectiontest.Green),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	img := decode[dto.ImageResponse](t, w)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "fake-v1", img.OracleVersion)
	assert.Len(t, img.Detections, 1)
	assert.Equal(t, "/v1/persons/"+alice.ID.String()+"/images/"+img.ID.String(), img.URL)

	w = f.do(t, http.MethodGet, img.URL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, detectiontest.Portrait(t, detectiontest.Green), w.Body.Bytes())

	w = f.do(t, http.MethodGet, "/v1/groups/"+group.ID.String()+"/persons", nil)
	require.Equal(t, http.StatusOK, w.Code)
	persons := decode[dto.Page[dto.PersonResponse]](t, w)
	assert.Equal(t, 1, persons.Total)
	assert.Equal(t, 20, persons.Size)

	w = f.do(t, http.MethodPost, "/v1/search", dto.SearchRequest{
		GroupIDs: []uuid.UUID{group.ID},
		Image:    dto.ImageInput{Content: detectiontest.Portrait(t, detectiontest.Green)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dto.SearchResponse](t, w)
	assert.Equal(t, 0, res.Code)
	require.Len(t, res.Persons, 1)
	assert.Equal(t, alice.ID, res.Persons[0].ID)
	assert.Equal(t, "A-1", res.Persons[0].Metadata["badge"])
	require.Len(t, res.Persons[0].Images, 1)
	assert.Equal(t, img.ID, res.Persons[0].Images[0].ID)
	assert.InDelta(t, 1.0, res.Persons[0].Images[0].Similarity, 1e-6)
	assert.NotNil(t, res.Persons[0].Detection)

	w = f.do(t, http.MethodPost, "/v1/search", dto.SearchRequest{
		Image: dto.ImageInput{Content: detectiontest.Portrait(t, detectiontest.Purple)},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.SearchResponse](t, w).Persons)

	w = f.do(t, http.MethodPost, "/v1/groups/"+group.ID.String()+"/persons", dto.MembershipRequest{
		RemoveItems: []uuid.UUID{alice.ID},
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/persons/"+alice.ID.String()+"/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[dto.Page[dto.GroupResponse]](t, w).Total)

	w = f.do(t, http.MethodDelete, "/v1/persons/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, img.URL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCRUDErrorStatuses(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   resultcode.Code
	}{
		{"missing group", http.MethodGet, "/v1/groups/" + uuid.NewString(), nil, http.StatusNotFound, resultcode.NotFound},
		{"malformed id", http.MethodGet, "/v1/persons/xyz", nil, http.StatusBadRequest, resultcode.ValidationError},
		{"empty name", http.MethodPost, "/v1/groups", dto.GroupRequest{Name: "  "}, http.StatusBadRequest, resultcode.ValidationError},
		{"page zero", http.MethodGet, "/v1/groups?page=0", nil, http.StatusBadRequest, resultcode.ValidationError},
		{"page size too large", http.MethodGet, "/v1/groups?size=1001", nil, http.StatusBadRequest, resultcode.ValidationError},
		{"unknown group for person", http.MethodPost, "/v1/persons", dto.CreatePersonRequest{
			Name: "bob", Groups: []uuid.UUID{uuid.New()},
		}, http.StatusNotFound, resultcode.NotFound},
		{"image for missing person", http.MethodPost, "/v1/persons/" + uuid.NewString() + "/images", dto.ImageInput{
			Content: detectiontest.Portrait(t, detectiontest.Red),
		}, http.StatusNotFound, resultcode.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, int(tt.code), decode[dto.ErrorResponse](t, w).Code)
		})
	}
}

func TestEnrollNoFace(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(t, http.MethodPost, "/v1/persons", dto.CreatePersonRequest{Name: "carol"})
	require.Equal(t, http.StatusCreated, w.Code)
	carol := decode[dto.PersonResponse](t, w)

	w = f.do(t, http.MethodPost, "/v1/persons/"+carol.ID.String()+"/images", dto.ImageInput{
		Content: detectiontest.PNG(t, 60, 60),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int(resultcode.NoFaceDetected), decode[dto.ErrorResponse](t, w).Code)
}

func TestReindex(t *testing.T) {
	t.Run("without queue", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		w := f.do(t, http.MethodPost, "/v1/admin/reindex", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("queues stale images", func(t *testing.T) {
		tasks := &taskRecorder{}
		f := newFixture(t, tasks, nil)

		p := &models.Person{ID: uuid.New(), Name: "dave"}
		require.NoError(t, f.store.CreatePerson(context.Background(), p))
		require.NoError(t, f.store.AddImage(context.Background(), &models.EnrolledImage{
			ID:            uuid.New(),
			PersonID:      p.ID,
			Path:          "persons/" + p.ID.String() + "/legacy.jpg",
			ContentType:   "image/jpeg",
			OracleVersion: "old",
		}))

		w := f.do(t, http.MethodPost, "/v1/admin/reindex", nil)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, 1, decode[dto.ReindexResponse](t, w).Queued)
		require.Len(t, tasks.tasks, 1)
		assert.Equal(t, p.ID, tasks.tasks[0].PersonID)
	})
}
