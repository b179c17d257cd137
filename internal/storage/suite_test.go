package storage

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
)

// identityStore is the surface shared by MemoryStore and PostgresStore.
type identityStore interface {
	CreateGroup(ctx context.Context, g *models.Group) error
	GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error)
	UpdateGroup(ctx context.Context, id uuid.UUID, name string, metadata models.Metadata) (*models.Group, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	ListGroups(ctx context.Context, req models.PageRequest) (models.Page[models.Group], error)
	ListGroupsByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.Group], error)
	UpdateGroupMembership(ctx context.Context, groupID uuid.UUID, m models.GroupMembership) error
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	UpdatePerson(ctx context.Context, id uuid.UUID, u models.PersonUpdate) (*models.Person, error)
	DeletePerson(ctx context.Context, id uuid.UUID) error
	ListPersonsByGroup(ctx context.Context, groupID uuid.UUID, req models.PageRequest) (models.Page[models.Person], error)
	AddImage(ctx context.Context, img *models.EnrolledImage) error
	GetImage(ctx context.Context, personID, imageID uuid.UUID) (*models.EnrolledImage, error)
	DeleteImage(ctx context.Context, personID, imageID uuid.UUID) error
	ListImagesByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.EnrolledImage], error)
	ReplaceDetections(ctx context.Context, imageID uuid.UUID, oracleVersion string, dets []models.Detection) error
	ListStaleImages(ctx context.Context, oracleVersion string) ([]models.EnrolledImage, error)
	ScanGallery(ctx context.Context, groupIDs []uuid.UUID, fn func(models.GalleryEntry) error) error
}

func unitVector(hot int) []float32 {
	v := make([]float32, 512)
	v[hot] = 1
	return v
}

func mustGroup(t *testing.T, s identityStore, name string) *models.Group {
	t.Helper()
	g := &models.Group{ID: uuid.New(), Name: name}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	return g
}

func mustPerson(t *testing.T, s identityStore, name string, groups ...uuid.UUID) *models.Person {
	t.Helper()
	p := &models.Person{ID: uuid.New(), Name: name, Groups: groups}
	require.NoError(t, s.CreatePerson(context.Background(), p))
	return p
}

func mustImage(t *testing.T, s identityStore, personID uuid.UUID, hot int) *models.EnrolledImage {
	t.Helper()
	id := uuid.New()
	img := &models.EnrolledImage{
		ID:            id,
		PersonID:      personID,
		Path:          fmt.Sprintf("persons/%s/%s.jpg", personID, id),
		ContentType:   "image/jpeg",
		OracleVersion: "v1",
		Detections: []models.Detection{{
			Rect:       models.Rect{X: 1, Y: 2, Width: 30, Height: 40},
			Confidence: 0.9,
			Embedding:  unitVector(hot),
			Quality:    &models.Quality{Compliant: true, Details: []models.QualityDetail{{Name: "Roll", Range: [2]float64{-10, 10}, Status: true}}},
		}},
	}
	require.NoError(t, s.AddImage(context.Background(), img))
	return img
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) identityStore) {
	ctx := context.Background()
	page := func(p, s int) models.PageRequest { return models.PageRequest{Page: p, Size: s} }

	t.Run("group without metadata", func(t *testing.T) {
		s := newStore(t)
		g := mustGroup(t, s, "staff")

		got, err := s.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, "staff", got.Name)
		assert.NotNil(t, got.Metadata)
	})

	t.Run("update and delete group", func(t *testing.T) {
		s := newStore(t)
		g := mustGroup(t, s, "old")

		got, err := s.UpdateGroup(ctx, g.ID, "new", models.Metadata{"floor": "3"})
		require.NoError(t, err)
		assert.Equal(t, "new", got.Name)
		assert.Equal(t, "3", got.Metadata["floor"])

		require.NoError(t, s.DeleteGroup(ctx, g.ID))
		_, err = s.GetGroup(ctx, g.ID)
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
		assert.Equal(t, resultcode.NotFound, resultcode.Of(s.DeleteGroup(ctx, g.ID)))
		_, err = s.UpdateGroup(ctx, g.ID, "x", nil)
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
	})

	t.Run("group pagination is creation ordered", func(t *testing.T) {
		s := newStore(t)
		var names []string
		for i := 0; i < 7; i++ {
			names = append(names, mustGroup(t, s, fmt.Sprintf("g%d", i)).Name)
		}

		var seen []string
		for p := 1; p <= 3; p++ {
			res, err := s.ListGroups(ctx, page(p, 3))
			require.NoError(t, err)
			assert.Equal(t, 7, res.Total)
			for _, g := range res.Items {
				seen = append(seen, g.Name)
			}
		}
		assert.Equal(t, names, seen)

		res, err := s.ListGroups(ctx, page(4, 3))
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.NotNil(t, res.Items)
	})

	t.Run("person with zero, one and many groups", func(t *testing.T) {
		s := newStore(t)
		a, b := mustGroup(t, s, "a"), mustGroup(t, s, "b")

		none := mustPerson(t, s, "none")
		one := mustPerson(t, s, "one", a.ID)
		many := mustPerson(t, s, "many", b.ID, a.ID)

		got, err := s.GetPerson(ctx, none.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Groups)

		got, err = s.GetPerson(ctx, one.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a.ID}, got.Groups)

		got, err = s.GetPerson(ctx, many.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a.ID, b.ID}, got.Groups)

		groups, err := s.ListGroupsByPerson(ctx, many.ID, page(1, 10))
		require.NoError(t, err)
		assert.Equal(t, 2, groups.Total)
	})

	t.Run("person in unknown group", func(t *testing.T) {
		s := newStore(t)
		err := s.CreatePerson(ctx, &models.Person{ID: uuid.New(), Name: "x", Groups: []uuid.UUID{uuid.New()}})
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
	})

	t.Run("update person", func(t *testing.T) {
		s := newStore(t)
		a, b := mustGroup(t, s, "a"), mustGroup(t, s, "b")
		p := mustPerson(t, s, "before", a.ID)

		name := "after"
		got, err := s.UpdatePerson(ctx, p.ID, models.PersonUpdate{Name: &name, Groups: []uuid.UUID{b.ID}})
		require.NoError(t, err)
		assert.Equal(t, "after", got.Name)
		assert.Equal(t, []uuid.UUID{b.ID}, got.Groups)

		_, err = s.UpdatePerson(ctx, uuid.New(), models.PersonUpdate{Name: &name})
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
	})

	t.Run("membership update", func(t *testing.T) {
		s := newStore(t)
		g := mustGroup(t, s, "g")
		old := mustPerson(t, s, "old", g.ID)

		require.NoError(t, s.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Remove: []uuid.UUID{old.ID}}))
		p1 := mustPerson(t, s, "p1")
		p2 := mustPerson(t, s, "p2")
		require.NoError(t, s.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Add: []uuid.UUID{p1.ID, p2.ID}}))

		res, err := s.ListPersonsByGroup(ctx, g.ID, page(1, 10))
		require.NoError(t, err)
		var ids []string
		for _, p := range res.Items {
			ids = append(ids, p.ID.String())
		}
		want := []string{p1.ID.String(), p2.ID.String()}
		sort.Strings(ids)
		sort.Strings(want)
		assert.Equal(t, want, ids)

		// Removing a non-member is a no-op.
		require.NoError(t, s.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Remove: []uuid.UUID{old.ID, uuid.New()}}))
		// Adding twice is idempotent.
		require.NoError(t, s.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Add: []uuid.UUID{p1.ID}}))
		res, err = s.ListPersonsByGroup(ctx, g.ID, page(1, 10))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)

		err = s.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Add: []uuid.UUID{uuid.New()}})
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
		err = s.UpdateGroupMembership(ctx, uuid.New(), models.GroupMembership{})
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
	})

	t.Run("deleting a group keeps its persons", func(t *testing.T) {
		s := newStore(t)
		g, other := mustGroup(t, s, "g"), mustGroup(t, s, "other")
		p := mustPerson(t, s, "p", g.ID, other.ID)

		require.NoError(t, s.DeleteGroup(ctx, g.ID))

		got, err := s.GetPerson(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{other.ID}, got.Groups)
		_, err = s.ListPersonsByGroup(ctx, g.ID, page(1, 10))
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
	})

	t.Run("deleting a person removes listings and images", func(t *testing.T) {
		s := newStore(t)
		g := mustGroup(t, s, "g")
		p := mustPerson(t, s, "p", g.ID)
		img := mustImage(t, s, p.ID, 0)

		require.NoError(t, s.DeletePerson(ctx, p.ID))

		res, err := s.ListPersonsByGroup(ctx, g.ID, page(1, 10))
		require.NoError(t, err)
		assert.Zero(t, res.Total)
		_, err = s.GetImage(ctx, p.ID, img.ID)
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))

		var n int
		require.NoError(t, s.ScanGallery(ctx, nil, func(models.GalleryEntry) error { n++; return nil }))
		assert.Zero(t, n)
	})

	t.Run("images", func(t *testing.T) {
		s := newStore(t)
		p := mustPerson(t, s, "p")
		first := mustImage(t, s, p.ID, 1)
		second := mustImage(t, s, p.ID, 2)

		got, err := s.GetImage(ctx, p.ID, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Path, got.Path)
		require.Len(t, got.Detections, 1)
		assert.Equal(t, models.Rect{X: 1, Y: 2, Width: 30, Height: 40}, got.Detections[0].Rect)
		assert.Equal(t, unitVector(1), got.Detections[0].Embedding)
		require.NotNil(t, got.Detections[0].Quality)
		assert.True(t, got.Detections[0].Quality.Compliant)

		res, err := s.ListImagesByPerson(ctx, p.ID, page(2, 1))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		require.Len(t, res.Items, 1)
		assert.Equal(t, second.ID, res.Items[0].ID)

		_, err = s.GetImage(ctx, uuid.New(), first.ID)
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
		require.NoError(t, s.DeleteImage(ctx, p.ID, first.ID))
		assert.Equal(t, resultcode.NotFound, resultcode.Of(s.DeleteImage(ctx, p.ID, first.ID)))

		err = s.AddImage(ctx, &models.EnrolledImage{ID: uuid.New(), PersonID: uuid.New(), Path: "x", ContentType: "image/png", OracleVersion: "v1"})
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
		_, err = s.ListImagesByPerson(ctx, uuid.New(), page(1, 1))
		assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
	})

	t.Run("stale images and replace", func(t *testing.T) {
		s := newStore(t)
		p := mustPerson(t, s, "p")
		img := mustImage(t, s, p.ID, 3)

		stale, err := s.ListStaleImages(ctx, "v2")
		require.NoError(t, err)
		require.Len(t, stale, 1)

		require.NoError(t, s.ReplaceDetections(ctx, img.ID, "v2", []models.Detection{{Confidence: 0.5, Embedding: unitVector(4)}}))
		stale, err = s.ListStaleImages(ctx, "v2")
		require.NoError(t, err)
		assert.Empty(t, stale)

		got, err := s.GetImage(ctx, p.ID, img.ID)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.OracleVersion)
		assert.Equal(t, unitVector(4), got.Detections[0].Embedding)
	})

	t.Run("gallery scope", func(t *testing.T) {
		s := newStore(t)
		a, b := mustGroup(t, s, "a"), mustGroup(t, s, "b")
		pa := mustPerson(t, s, "pa", a.ID)
		pb := mustPerson(t, s, "pb", b.ID)
		mustImage(t, s, pa.ID, 1)
		mustImage(t, s, pb.ID, 2)
		mustImage(t, s, mustPerson(t, s, "loner").ID, 3)

		collect := func(groups []uuid.UUID) []uuid.UUID {
			var ids []uuid.UUID
			require.NoError(t, s.ScanGallery(ctx, groups, func(e models.GalleryEntry) error {
				ids = append(ids, e.PersonID)
				return nil
			}))
			return ids
		}
		assert.Len(t, collect(nil), 3)
		assert.Equal(t, []uuid.UUID{pa.ID}, collect([]uuid.UUID{a.ID}))
		assert.Len(t, collect([]uuid.UUID{a.ID, b.ID}), 2)
		assert.Empty(t, collect([]uuid.UUID{uuid.New()}))
	})

	t.Run("invalid page", func(t *testing.T) {
		assert.Equal(t, resultcode.ValidationError, resultcode.Of(page(0, 10).Validate()))
	})
}
