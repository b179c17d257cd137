package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventKindGroup  EventKind = "group"
	EventKindPerson EventKind = "person"
	EventKindImage  EventKind = "image"
)

type EventAction string

const (
	EventCreated EventAction = "created"
	EventUpdated EventAction = "updated"
	EventDeleted EventAction = "deleted"
)

// IdentityEvent is published to NATS whenever the identity store changes.
type IdentityEvent struct {
	Kind      EventKind   `json:"kind"`
	Action    EventAction `json:"action"`
	ID        uuid.UUID   `json:"id"`
	PersonID  *uuid.UUID  `json:"person_id,omitempty"`
	GroupID   *uuid.UUID  `json:"group_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ReindexTask asks a worker to recompute the detections of one enrolled image.
type ReindexTask struct {
	ImageID   uuid.UUID `json:"image_id"`
	PersonID  uuid.UUID `json:"person_id"`
	Path      string    `json:"path"`
	Requested time.Time `json:"requested"`
}
