//go:build integration

package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/models"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "faces",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	store, err := NewPostgresStore(config.DatabaseConfig{
		Host: host, Port: portNum, Name: "faces", User: "test", Password: "test", MaxConns: 5,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	return store
}

func truncate(t *testing.T, s *PostgresStore) {
	t.Helper()
	_, err := s.pool.Exec(context.Background(),
		`TRUNCATE image_detections, images, person_groups, persons, groups`)
	require.NoError(t, err)
}

func TestPostgresStore(t *testing.T) {
	store := setupPostgres(t)

	runStoreSuite(t, func(t *testing.T) identityStore {
		truncate(t, store)
		return store
	})
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	store := setupPostgres(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestPostgresNearestPersons(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	g := mustGroup(t, store, "g")
	near := mustPerson(t, store, "near", g.ID)
	far := mustPerson(t, store, "far", g.ID)
	outside := mustPerson(t, store, "outside")

	mustImage(t, store, near.ID, 0)
	mustImage(t, store, near.ID, 1)
	mustImage(t, store, far.ID, 2)
	mustImage(t, store, outside.ID, 0)

	query := unitVector(0)

	matches, err := store.NearestPersons(ctx, query, []uuid.UUID{g.ID}, 0.4, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, near.ID, matches[0].PersonID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.5, matches[1].Score, 1e-6)

	matches, err = store.NearestPersons(ctx, query, nil, 0.9, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2, "near and outside both match exactly")

	_, err = store.NearestPersons(ctx, make([]float32, 8), nil, 0, 10)
	assert.Error(t, err)
}

func TestPostgresConcurrentMembershipWrites(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	g := mustGroup(t, store, "g")
	other := mustGroup(t, store, "other")
	p := mustPerson(t, store, "p")

	for i := 0; i < 25; i++ {
		var eg errgroup.Group
		eg.Go(func() error {
			return store.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Add: []uuid.UUID{p.ID}})
		})
		eg.Go(func() error {
			_, err := store.UpdatePerson(ctx, p.ID, models.PersonUpdate{Groups: []uuid.UUID{g.ID, other.ID}})
			return err
		})
		require.NoError(t, eg.Wait(), "round %d", i)

		require.NoError(t, store.UpdateGroupMembership(ctx, g.ID, models.GroupMembership{Remove: []uuid.UUID{p.ID}}))
	}

	got, err := store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Groups, g.ID)
}
