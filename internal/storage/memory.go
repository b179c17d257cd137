package storage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
)

// MemoryStore is an in-process identity store. Collections keep creation
// order; every read returns copies. A single lock serializes all writes, so
// unrelated records contend; it backs tests and single-node trials, not
// production load.
type MemoryStore struct {
	mu       sync.RWMutex
	groups   map[uuid.UUID]*models.Group
	persons  map[uuid.UUID]*models.Person
	images   map[uuid.UUID]*models.EnrolledImage
	groupSeq []uuid.UUID
	persSeq  []uuid.UUID
	imageSeq []uuid.UUID
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:  map[uuid.UUID]*models.Group{},
		persons: map[uuid.UUID]*models.Person{},
		images:  map[uuid.UUID]*models.EnrolledImage{},
		now:     time.Now,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() {}

// --- Groups ---

func (s *MemoryStore) CreateGroup(ctx context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.Metadata == nil {
		g.Metadata = models.Metadata{}
	}
	g.CreatedAt = s.now()
	g.UpdatedAt = g.CreatedAt
	s.groups[g.ID] = copyGroup(g)
	s.groupSeq = append(s.groupSeq, g.ID)
	return nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, resultcode.NotFoundf("group %s", id)
	}
	return copyGroup(g), nil
}

func (s *MemoryStore) UpdateGroup(ctx context.Context, id uuid.UUID, name string, metadata models.Metadata) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, resultcode.NotFoundf("group %s", id)
	}
	if metadata == nil {
		metadata = models.Metadata{}
	}
	g.Name = name
	g.Metadata = maps.Clone(metadata)
	g.UpdatedAt = s.now()
	return copyGroup(g), nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return resultcode.NotFoundf("group %s", id)
	}
	delete(s.groups, id)
	s.groupSeq = slices.DeleteFunc(s.groupSeq, func(g uuid.UUID) bool { return g == id })
	for _, p := range s.persons {
		p.Groups = slices.DeleteFunc(p.Groups, func(g uuid.UUID) bool { return g == id })
	}
	return nil
}

func (s *MemoryStore) ListGroups(ctx context.Context, req models.PageRequest) (models.Page[models.Group], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Group, 0, len(s.groupSeq))
	for _, id := range s.groupSeq {
		all = append(all, *copyGroup(s.groups[id]))
	}
	return models.Slice(all, req), nil
}

func (s *MemoryStore) ListGroupsByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.Group], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.persons[personID]
	if !ok {
		return models.Page[models.Group]{}, resultcode.NotFoundf("person %s", personID)
	}
	var all []models.Group
	for _, id := range s.groupSeq {
		if slices.Contains(p.Groups, id) {
			all = append(all, *copyGroup(s.groups[id]))
		}
	}
	return models.Slice(all, req), nil
}

func (s *MemoryStore) UpdateGroupMembership(ctx context.Context, groupID uuid.UUID, m models.GroupMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return resultcode.NotFoundf("group %s", groupID)
	}
	for _, pid := range m.Add {
		if _, ok := s.persons[pid]; !ok {
			return resultcode.NotFoundf("person %s", pid)
		}
	}

	for _, pid := range m.Remove {
		if p, ok := s.persons[pid]; ok {
			p.Groups = slices.DeleteFunc(p.Groups, func(g uuid.UUID) bool { return g == groupID })
		}
	}
	for _, pid := range m.Add {
		p := s.persons[pid]
		if !slices.Contains(p.Groups, groupID) {
			p.Groups = s.orderGroups(append(p.Groups, groupID))
			p.UpdatedAt = s.now()
		}
	}
	return nil
}

// orderGroups sorts group ids by group creation order.
func (s *MemoryStore) orderGroups(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range s.groupSeq {
		if slices.Contains(ids, id) {
			out = append(out, id)
		}
	}
	return out
}

// --- Persons ---

func (s *MemoryStore) CreatePerson(ctx context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, gid := range p.Groups {
		if _, ok := s.groups[gid]; !ok {
			return resultcode.NotFoundf("group %s", gid)
		}
	}
	if p.Metadata == nil {
		p.Metadata = models.Metadata{}
	}
	p.Groups = s.orderGroups(p.Groups)
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.persons[p.ID] = copyPerson(p)
	s.persSeq = append(s.persSeq, p.ID)
	return nil
}

func (s *MemoryStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.persons[id]
	if !ok {
		return nil, resultcode.NotFoundf("person %s", id)
	}
	return copyPerson(p), nil
}

func (s *MemoryStore) UpdatePerson(ctx context.Context, id uuid.UUID, u models.PersonUpdate) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.persons[id]
	if !ok {
		return nil, resultcode.NotFoundf("person %s", id)
	}
	if u.Groups != nil {
		for _, gid := range u.Groups {
			if _, ok := s.groups[gid]; !ok {
				return nil, resultcode.NotFoundf("group %s", gid)
			}
		}
		p.Groups = s.orderGroups(u.Groups)
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Metadata != nil {
		p.Metadata = maps.Clone(u.Metadata)
	}
	p.UpdatedAt = s.now()
	return copyPerson(p), nil
}

func (s *MemoryStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.persons[id]; !ok {
		return resultcode.NotFoundf("person %s", id)
	}
	delete(s.persons, id)
	s.persSeq = slices.DeleteFunc(s.persSeq, func(p uuid.UUID) bool { return p == id })
	s.imageSeq = slices.DeleteFunc(s.imageSeq, func(imgID uuid.UUID) bool {
		if s.images[imgID].PersonID == id {
			delete(s.images, imgID)
			return true
		}
		return false
	})
	return nil
}

func (s *MemoryStore) ListPersonsByGroup(ctx context.Context, groupID uuid.UUID, req models.PageRequest) (models.Page[models.Person], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return models.Page[models.Person]{}, resultcode.NotFoundf("group %s", groupID)
	}
	var all []models.Person
	for _, id := range s.persSeq {
		if p := s.persons[id]; slices.Contains(p.Groups, groupID) {
			all = append(all, *copyPerson(p))
		}
	}
	return models.Slice(all, req), nil
}

// --- Images ---

func (s *MemoryStore) AddImage(ctx context.Context, img *models.EnrolledImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.persons[img.PersonID]; !ok {
		return resultcode.NotFoundf("person %s", img.PersonID)
	}
	img.CreatedAt = s.now()
	s.images[img.ID] = copyImage(img)
	s.imageSeq = append(s.imageSeq, img.ID)
	return nil
}

func (s *MemoryStore) GetImage(ctx context.Context, personID, imageID uuid.UUID) (*models.EnrolledImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[imageID]
	if !ok || img.PersonID != personID {
		return nil, resultcode.NotFoundf("image %s of person %s", imageID, personID)
	}
	return copyImage(img), nil
}

func (s *MemoryStore) DeleteImage(ctx context.Context, personID, imageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[imageID]
	if !ok || img.PersonID != personID {
		return resultcode.NotFoundf("image %s of person %s", imageID, personID)
	}
	delete(s.images, imageID)
	s.imageSeq = slices.DeleteFunc(s.imageSeq, func(id uuid.UUID) bool { return id == imageID })
	return nil
}

func (s *MemoryStore) ListImagesByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.EnrolledImage], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.persons[personID]; !ok {
		return models.Page[models.EnrolledImage]{}, resultcode.NotFoundf("person %s", personID)
	}
	var all []models.EnrolledImage
	for _, id := range s.imageSeq {
		if img := s.images[id]; img.PersonID == personID {
			all = append(all, *copyImage(img))
		}
	}
	return models.Slice(all, req), nil
}

func (s *MemoryStore) ReplaceDetections(ctx context.Context, imageID uuid.UUID, oracleVersion string, dets []models.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[imageID]
	if !ok {
		return resultcode.NotFoundf("image %s", imageID)
	}
	img.OracleVersion = oracleVersion
	img.Detections = slices.Clone(dets)
	return nil
}

func (s *MemoryStore) ListStaleImages(ctx context.Context, oracleVersion string) ([]models.EnrolledImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.EnrolledImage
	for _, id := range s.imageSeq {
		if img := s.images[id]; img.OracleVersion != oracleVersion {
			out = append(out, *copyImage(img))
		}
	}
	return out, nil
}

// --- Gallery ---

func (s *MemoryStore) ScanGallery(ctx context.Context, groupIDs []uuid.UUID, fn func(models.GalleryEntry) error) error {
	s.mu.RLock()
	var entries []models.GalleryEntry
	for _, id := range s.imageSeq {
		img := s.images[id]
		if len(groupIDs) > 0 && !inAnyGroup(s.persons[img.PersonID], groupIDs) {
			continue
		}
		for _, d := range img.Detections {
			entries = append(entries, models.GalleryEntry{
				PersonID:    img.PersonID,
				ImageID:     img.ID,
				Path:        img.Path,
				ContentType: img.ContentType,
				Embedding:   d.Embedding,
			})
		}
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func inAnyGroup(p *models.Person, groupIDs []uuid.UUID) bool {
	for _, gid := range groupIDs {
		if slices.Contains(p.Groups, gid) {
			return true
		}
	}
	return false
}

func copyGroup(g *models.Group) *models.Group {
	c := *g
	c.Metadata = maps.Clone(g.Metadata)
	return &c
}

func copyPerson(p *models.Person) *models.Person {
	c := *p
	c.Metadata = maps.Clone(p.Metadata)
	c.Groups = append([]uuid.UUID{}, p.Groups...)
	return &c
}

func copyImage(img *models.EnrolledImage) *models.EnrolledImage {
	c := *img
	c.Detections = append([]models.Detection{}, img.Detections...)
	return &c
}
