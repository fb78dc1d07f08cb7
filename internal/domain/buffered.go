package domain

import "github.com/google/uuid"

// BufferedEntity tracks one entity's lifecycle from daemon-side
// discovery through server-side confirmation: Pending until the server
// acknowledges it, Created afterward with the authoritative copy. The
// transition is monotonic — never back to Pending.
type BufferedEntity[T any] struct {
	created   bool
	pendingID uuid.UUID
	data      T
}

// NewPendingEntity wraps a freshly-discovered value as Pending.
func NewPendingEntity[T any](pendingID uuid.UUID, data T) BufferedEntity[T] {
	return BufferedEntity[T]{pendingID: pendingID, data: data}
}

// IsPending reports whether the entity has not yet been confirmed.
func (e BufferedEntity[T]) IsPending() bool {
	return !e.created
}

// IsCreated reports whether the server has confirmed this entity.
func (e BufferedEntity[T]) IsCreated() bool {
	return e.created
}

// Data returns the best-known value: authoritative if Created, pending
// otherwise.
func (e BufferedEntity[T]) Data() T {
	return e.data
}

// MarkCreated replaces the wrapped value with the server's authoritative
// copy and flips the entity terminal within the buffer. The pending ID
// is preserved for remap lookups even after this call.
func (e BufferedEntity[T]) MarkCreated(actual T) BufferedEntity[T] {
	e.created = true
	e.data = actual
	return e
}

// PendingID returns the daemon-assigned identifier this entity was
// first pushed under, regardless of its current state.
func (e BufferedEntity[T]) PendingID() uuid.UUID {
	return e.pendingID
}
