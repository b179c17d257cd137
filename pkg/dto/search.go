package dto

import "github.com/google/uuid"

type SearchRequest struct {
	GroupIDs          []uuid.UUID        `json:"groupIds,omitempty"`
	Image             ImageInput         `json:"image"`
	Limit             int                `json:"limit,omitempty"`
	Threshold         *float64           `json:"threshold,omitempty"`
	OutputImageParams *OutputImageParams `json:"outputImageParams,omitempty"`
}

type SearchResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message,omitempty"`
	Persons []SearchPerson `json:"persons"`
}

type SearchPerson struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Groups    []uuid.UUID    `json:"groups"`
	Metadata  map[string]any `json:"metadata"`
	Detection *Detection     `json:"detection,omitempty"`
	Images    []SearchImage  `json:"images"`
}

type SearchImage struct {
	ID          uuid.UUID `json:"id"`
	Path        string    `json:"path"`
	ContentType string    `json:"contentType"`
	Similarity  float64   `json:"similarity"`
}
