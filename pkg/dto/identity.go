package dto

import (
	"time"

	"github.com/google/uuid"
)

type GroupRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type GroupResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// MembershipRequest adds and removes person ids from a group.
type MembershipRequest struct {
	AddItems    []uuid.UUID `json:"addItems,omitempty"`
	RemoveItems []uuid.UUID `json:"removeItems,omitempty"`
}

type CreatePersonRequest struct {
	Name     string         `json:"name"`
	Groups   []uuid.UUID    `json:"groups,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdatePersonRequest leaves absent fields untouched.
type UpdatePersonRequest struct {
	Name     *string        `json:"name,omitempty"`
	Groups   []uuid.UUID    `json:"groups,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type PersonResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Groups    []uuid.UUID    `json:"groups"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type ImageResponse struct {
	ID            uuid.UUID   `json:"id"`
	Path          string      `json:"path"`
	ContentType   string      `json:"contentType"`
	URL           string      `json:"url"`
	OracleVersion string      `json:"oracleVersion"`
	Detections    []Detection `json:"detections"`
	CreatedAt     time.Time   `json:"createdAt"`
}

type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type ReindexResponse struct {
	Queued int `json:"queued"`
}
