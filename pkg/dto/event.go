package dto

import (
	"time"

	"github.com/google/uuid"
)

// WSEvent is pushed to websocket clients; Type is "<kind>.<action>".
type WSEvent struct {
	Type string        `json:"type"`
	Data IdentityEvent `json:"data"`
}

type IdentityEvent struct {
	Kind      string     `json:"kind"`
	Action    string     `json:"action"`
	ID        uuid.UUID  `json:"id"`
	PersonID  *uuid.UUID `json:"personId,omitempty"`
	GroupID   *uuid.UUID `json:"groupId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
