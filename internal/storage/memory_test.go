package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) identityStore { return NewMemoryStore() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	g := mustGroup(t, s, "g")
	p := mustPerson(t, s, "p", g.ID)

	got, err := s.GetPerson(context.Background(), p.ID)
	require.NoError(t, err)
	got.Groups[0] = uuid.New()
	got.Metadata["k"] = "v"

	again, err := s.GetPerson(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{g.ID}, again.Groups)
	assert.Empty(t, again.Metadata)
}

func TestMemoryStoreConcurrentMembership(t *testing.T) {
	s := NewMemoryStore()
	g := mustGroup(t, s, "g")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &models.Person{ID: uuid.New(), Name: "p"}
			if err := s.CreatePerson(context.Background(), p); err != nil {
				t.Error(err)
				return
			}
			if err := s.UpdateGroupMembership(context.Background(), g.ID, models.GroupMembership{Add: []uuid.UUID{p.ID}}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	res, err := s.ListPersonsByGroup(context.Background(), g.ID, models.PageRequest{Page: 1, Size: 100})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Total)
}

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlobStore()
	require.NoError(t, b.PutObject(ctx, "persons/a/1.jpg", []byte{1}, "image/jpeg"))
	require.NoError(t, b.PutObject(ctx, "persons/a/2.jpg", []byte{2}, "image/jpeg"))
	require.NoError(t, b.PutObject(ctx, "persons/b/3.jpg", []byte{3}, "image/png"))

	data, ct, err := b.GetObject(ctx, "persons/b/3.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, data)
	assert.Equal(t, "image/png", ct)

	keys, err := b.ListObjects(ctx, "persons/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"persons/a/1.jpg", "persons/a/2.jpg"}, keys)

	require.NoError(t, b.DeleteObjects(ctx, keys))
	assert.Equal(t, 1, b.Len())

	_, _, err = b.GetObject(ctx, "persons/a/1.jpg")
	assert.Equal(t, resultcode.NotFound, resultcode.Of(err))
}
