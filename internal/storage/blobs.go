package storage

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/your-org/faceapi/internal/resultcode"
)

// MemoryBlobStore is an in-process stand-in for MinIOStore.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]blob
}

type blob struct {
	data        []byte
	contentType string
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string]blob{}}
}

func (s *MemoryBlobStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = blob{data: slices.Clone(data), contentType: contentType}
	return nil
}

func (s *MemoryBlobStore) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, "", resultcode.NotFoundf("object %s", key)
	}
	return slices.Clone(b.data), b.contentType, nil
}

func (s *MemoryBlobStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryBlobStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MemoryBlobStore) DeleteObjects(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

func (s *MemoryBlobStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len reports the number of stored objects.
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
