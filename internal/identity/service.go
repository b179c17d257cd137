// Package identity manages groups, persons and their enrolled images on top
// of an identity store, a blob store and the detection pipeline.
package identity

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/internal/resultcode"
)

type Store interface {
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
}

// Blobs holds the bytes of enrolled images.
type Blobs interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, string, error)
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

type Resolver interface {
	Resolve(ctx context.Context, src imagesrc.Source) (*imagesrc.Resolved, error)
}

type Detector interface {
	Detect(ctx context.Context, img image.Image, params detection.Params) (*detection.Result, error)
	OracleVersion() string
}

// EventPublisher receives a notification for every identity change.
type EventPublisher interface {
	PublishIdentityEvent(ctx context.Context, ev models.IdentityEvent) error
}

type Service struct {
	store        Store
	blobs        Blobs
	resolver     Resolver
	detector     Detector
	events       EventPublisher
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService returns a Service. Every store and blob call is bounded by storeTimeout.
func NewService(store Store, blobs Blobs, resolver Resolver, detector Detector, storeTimeout time.Duration) *Service {
	return &Service{
		store:        store,
		blobs:        blobs,
		resolver:     resolver,
		detector:     detector,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// SetPublisher enables identity events. A nil publisher disables them.
func (s *Service) SetPublisher(p EventPublisher) {
	s.events = p
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) publish(ctx context.Context, kind models.EventKind, action models.EventAction, id uuid.UUID, personID, groupID *uuid.UUID) {
	if s.events == nil {
		return
	}
	ev := models.IdentityEvent{
		Kind:      kind,
		Action:    action,
		ID:        id,
		PersonID:  personID,
		GroupID:   groupID,
		Timestamp: s.now().UTC(),
	}
	if err := s.events.PublishIdentityEvent(ctx, ev); err != nil {
		slog.Warn("publish identity event", "kind", kind, "action", action, "id", id, "error", err)
	}
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", resultcode.Validationf("name is required")
	}
	return name, nil
}

// --- Groups ---

// CreateGroup stores a new group. metadata may be nil.
func (s *Service) CreateGroup(ctx context.Context, name string, metadata models.Metadata) (*models.Group, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	g := &models.Group{ID: uuid.New(), Name: name, Metadata: metadata}

	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.CreateGroup(sctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.publish(ctx, models.EventKindGroup, models.EventCreated, g.ID, nil, nil)
	return g, nil
}

func (s *Service) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	g, err := s.store.GetGroup(sctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *Service) UpdateGroup(ctx context.Context, id uuid.UUID, name string, metadata models.Metadata) (*models.Group, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	g, err := s.store.UpdateGroup(sctx, id, name, metadata)
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	s.publish(ctx, models.EventKindGroup, models.EventUpdated, id, nil, nil)
	return g, nil
}

// DeleteGroup removes the group and its memberships; member persons survive.
func (s *Service) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.DeleteGroup(sctx, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	s.publish(ctx, models.EventKindGroup, models.EventDeleted, id, nil, nil)
	return nil
}

func (s *Service) ListGroups(ctx context.Context, req models.PageRequest) (models.Page[models.Group], error) {
	if err := req.Validate(); err != nil {
		return models.Page[models.Group]{}, err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	page, err := s.store.ListGroups(sctx, req)
	if err != nil {
		return page, fmt.Errorf("list groups: %w", err)
	}
	return page, nil
}

func (s *Service) ListPersonsByGroup(ctx context.Context, groupID uuid.UUID, req models.PageRequest) (models.Page[models.Person], error) {
	if err := req.Validate(); err != nil {
		return models.Page[models.Person]{}, err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	page, err := s.store.ListPersonsByGroup(sctx, groupID, req)
	if err != nil {
		return page, fmt.Errorf("list persons by group: %w", err)
	}
	return page, nil
}

// UpdateGroupMembership adds and removes persons. Removing a non-member is a no-op.
func (s *Service) UpdateGroupMembership(ctx context.Context, groupID uuid.UUID, m models.GroupMembership) error {
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.UpdateGroupMembership(sctx, groupID, m); err != nil {
		return fmt.Errorf("update group membership: %w", err)
	}
	s.publish(ctx, models.EventKindGroup, models.EventUpdated, groupID, nil, nil)
	return nil
}

// --- Persons ---

func (s *Service) CreatePerson(ctx context.Context, name string, groups []uuid.UUID, metadata models.Metadata) (*models.Person, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	p := &models.Person{ID: uuid.New(), Name: name, Groups: groups, Metadata: metadata}

	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.CreatePerson(sctx, p); err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	if p.Groups == nil {
		p.Groups = []uuid.UUID{}
	}
	s.publish(ctx, models.EventKindPerson, models.EventCreated, p.ID, nil, nil)
	return p, nil
}

func (s *Service) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	p, err := s.store.GetPerson(sctx, id)
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *Service) UpdatePerson(ctx context.Context, id uuid.UUID, u models.PersonUpdate) (*models.Person, error) {
	if u.Name != nil {
		name, err := requireName(*u.Name)
		if err != nil {
			return nil, err
		}
		u.Name = &name
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	p, err := s.store.UpdatePerson(sctx, id, u)
	if err != nil {
		return nil, fmt.Errorf("update person: %w", err)
	}
	s.publish(ctx, models.EventKindPerson, models.EventUpdated, id, nil, nil)
	return p, nil
}

// DeletePerson removes the person, its memberships and its enrolled images.
// Blob cleanup failures are logged; the store is the source of truth.
func (s *Service) DeletePerson(ctx context.Context, id uuid.UUID) error {
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.DeletePerson(sctx, id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}

	keys, err := s.blobs.ListObjects(sctx, personPrefix(id))
	if err == nil && len(keys) > 0 {
		err = s.blobs.DeleteObjects(sctx, keys)
	}
	if err != nil {
		slog.Warn("delete person blobs", "person_id", id, "error", err)
	}

	s.publish(ctx, models.EventKindPerson, models.EventDeleted, id, nil, nil)
	return nil
}

func (s *Service) ListGroupsByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.Group], error) {
	if err := req.Validate(); err != nil {
		return models.Page[models.Group]{}, err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	page, err := s.store.ListGroupsByPerson(sctx, personID, req)
	if err != nil {
		return page, fmt.Errorf("list groups by person: %w", err)
	}
	return page, nil
}

func (s *Service) ListImagesByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.EnrolledImage], error) {
	if err := req.Validate(); err != nil {
		return models.Page[models.EnrolledImage]{}, err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	page, err := s.store.ListImagesByPerson(sctx, personID, req)
	if err != nil {
		return page, fmt.Errorf("list images by person: %w", err)
	}
	return page, nil
}

// --- Images ---

func personPrefix(personID uuid.UUID) string {
	return fmt.Sprintf("persons/%s/", personID)
}

// imagePath is the blob key of an enrolled image; the extension follows its content type.
func imagePath(personID, imageID uuid.UUID, contentType string) string {
	ext := ".bin"
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return personPrefix(personID) + imageID.String() + ext
}

// AddImage enrolls an image for a person: it detects the central face,
// stores the bytes and persists the detection next to them.
func (s *Service) AddImage(ctx context.Context, personID uuid.UUID, src imagesrc.Source) (*models.EnrolledImage, error) {
	if _, err := s.GetPerson(ctx, personID); err != nil {
		return nil, fmt.Errorf("enroll image: %w", err)
	}

	resolved, err := s.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("enroll image: %w", err)
	}
	res, err := s.detector.Detect(ctx, resolved.Image, detection.CentralOnly())
	if err != nil {
		return nil, fmt.Errorf("enroll image: %w", err)
	}

	id := uuid.New()
	img := &models.EnrolledImage{
		ID:            id,
		PersonID:      personID,
		Path:          imagePath(personID, id, resolved.ContentType),
		ContentType:   resolved.ContentType,
		OracleVersion: res.OracleVersion,
		Detections:    res.Detections,
	}

	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.blobs.PutObject(sctx, img.Path, resolved.Data, img.ContentType); err != nil {
		return nil, fmt.Errorf("store image blob: %w", err)
	}
	if err := s.store.AddImage(sctx, img); err != nil {
		if derr := s.blobs.DeleteObject(sctx, img.Path); derr != nil {
			slog.Warn("remove orphaned image blob", "path", img.Path, "error", derr)
		}
		return nil, fmt.Errorf("enroll image: %w", err)
	}

	observability.EnrolledImages.Inc()
	slog.Info("image enrolled", "person_id", personID, "image_id", id, "faces", len(img.Detections))
	s.publish(ctx, models.EventKindImage, models.EventCreated, id, &personID, nil)
	return img, nil
}

func (s *Service) GetImage(ctx context.Context, personID, imageID uuid.UUID) (*models.EnrolledImage, error) {
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	img, err := s.store.GetImage(sctx, personID, imageID)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// GetImageContent returns the stored bytes of an enrolled image.
func (s *Service) GetImageContent(ctx context.Context, personID, imageID uuid.UUID) ([]byte, string, error) {
	img, err := s.GetImage(ctx, personID, imageID)
	if err != nil {
		return nil, "", err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	data, contentType, err := s.blobs.GetObject(sctx, img.Path)
	if err != nil {
		return nil, "", fmt.Errorf("get image content: %w", err)
	}
	if img.ContentType != "" {
		contentType = img.ContentType
	}
	return data, contentType, nil
}

func (s *Service) DeleteImage(ctx context.Context, personID, imageID uuid.UUID) error {
	img, err := s.GetImage(ctx, personID, imageID)
	if err != nil {
		return err
	}
	sctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.DeleteImage(sctx, personID, imageID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if err := s.blobs.DeleteObject(sctx, img.Path); err != nil && !errors.Is(err, resultcode.ErrNotFound) {
		slog.Warn("delete image blob", "path", img.Path, "error", err)
	}
	s.publish(ctx, models.EventKindImage, models.EventDeleted, imageID, &personID, nil)
	return nil
}
