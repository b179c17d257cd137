package models

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is free-form key/value data attached to groups and persons.
type Metadata map[string]any

type Group struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Metadata  Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Person struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Metadata  Metadata    `json:"metadata,omitempty" db:"metadata"`
	Groups    []uuid.UUID `json:"groups" db:"-"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// EnrolledImage is an image stored for a person together with the
// detections computed from it at enrollment time.
type EnrolledImage struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	PersonID      uuid.UUID   `json:"person_id" db:"person_id"`
	Path          string      `json:"path" db:"path"`
	ContentType   string      `json:"content_type" db:"content_type"`
	OracleVersion string      `json:"oracle_version" db:"oracle_version"`
	Detections    []Detection `json:"detections" db:"-"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// PersonUpdate carries the mutable fields of a person. Nil fields are left untouched.
type PersonUpdate struct {
	Name     *string
	Metadata Metadata
	Groups   []uuid.UUID
}

// GroupMembership lists person ids to add to and remove from a group.
type GroupMembership struct {
	Add    []uuid.UUID
	Remove []uuid.UUID
}
