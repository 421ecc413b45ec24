// internal/events/event.go
// Package events carries change events out of the runtime after successful
// writes. Delivery is at-least-once: a failed publication degrades
// observably but never fails the request and never re-attempts the write.
package events

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind classifies the mutation an event describes.
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeUpdated     ChangeKind = "updated"
	ChangeDeleted     ChangeKind = "deleted"
	ChangeSoftDeleted ChangeKind = "soft-deleted"
)

// ChangeEvent is an immutable record of one committed mutation. The payload
// is the record snapshot as persisted; nothing mutates the event after
// construction.
type ChangeEvent struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Resource  string                 `json:"resource"`
	Key       string                 `json:"key"`
	Kind      ChangeKind             `json:"kind"`
	Payload   map[string]interface{} `json:"payload"`
	EmittedAt time.Time              `json:"emittedAt"`
	Topic     string                 `json:"-"`
}

// NewChangeEvent stamps identity and emission time onto an event.
func NewChangeEvent(name, resource, key string, kind ChangeKind, payload map[string]interface{}, topic string) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.New().String(),
		Name:      name,
		Resource:  resource,
		Key:       key,
		Kind:      kind,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
		Topic:     topic,
	}
}
