package models

import "github.com/google/uuid"

// GalleryEntry is one enrolled face embedding visited by a gallery scan.
type GalleryEntry struct {
	PersonID    uuid.UUID
	ImageID     uuid.UUID
	Path        string
	ContentType string
	Embedding   []float32
}

// PersonMatch is the best-scoring enrolled image of one person.
type PersonMatch struct {
	PersonID    uuid.UUID
	ImageID     uuid.UUID
	Path        string
	ContentType string
	Score       float64
}
