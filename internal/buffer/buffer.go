// Package buffer implements the entity buffer: a thread-safe two-phase
// store that accumulates discovered subnets and hosts between the
// moment a probe yields them and the moment the server confirms them
// with authoritative IDs. Pull-mode daemons drain it into outgoing
// batches; push-mode daemons let the server poll it directly.
//
// Grounded on original_source's daemon/discovery/buffer.rs
// (EntityBuffer / BufferedEntity<T>), translated from Rust's
// tokio::sync::RwLock<HashMap<Uuid, BufferedEntity<T>>> pairs to Go's
// sync.RWMutex-guarded maps, and from async polling-with-sleep to the
// same 100ms poll granularity via a plain ticker.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/domain"
)

const awaitPollInterval = 100 * time.Millisecond

// entityMap is a thread-safe pending_id -> BufferedEntity[T] table. It
// holds the locking and iteration logic shared by subnets and hosts;
// EntityBuffer wires one up per entity kind rather than exposing a
// fully generic multi-kind map, mirroring the teacher's two concrete
// fields (subnets, hosts) instead of a type-erased registry.
type entityMap[T any] struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]domain.BufferedEntity[T]
}

func newEntityMap[T any]() *entityMap[T] {
	return &entityMap[T]{entries: make(map[uuid.UUID]domain.BufferedEntity[T])}
}

func (m *entityMap[T]) push(id uuid.UUID, data T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = domain.NewPendingEntity(id, data)
}

// markCreated atomically replaces the pending entry with the server's
// authoritative value. If the authoritative ID differs from pendingID
// (server-side deduplication), the remap is returned for the caller to
// propagate to anything still referencing the pending ID.
func (m *entityMap[T]) markCreated(pendingID uuid.UUID, actual T, actualID uuid.UUID) (remap *IDRemap, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, found := m.entries[pendingID]
	if !found {
		return nil, false
	}
	m.entries[pendingID] = entry.MarkCreated(actual)
	if actualID != pendingID {
		return &IDRemap{PendingID: pendingID, AuthoritativeID: actualID}, true
	}
	return nil, true
}

func (m *entityMap[T]) get(pendingID uuid.UUID) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, found := m.entries[pendingID]
	if !found {
		var zero T
		return zero, false
	}
	return entry.Data(), true
}

// await polls until pendingID's entry transitions to Created or ctx is
// done / the timeout elapses, at the same 100ms granularity as the
// original implementation.
func (m *entityMap[T]) await(ctx context.Context, pendingID uuid.UUID, timeout time.Duration) (T, bool) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		m.mu.RLock()
		entry, found := m.entries[pendingID]
		m.mu.RUnlock()
		if found && entry.IsCreated() {
			return entry.Data(), true
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, false
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-ticker.C:
		}
	}
}

// drain atomically removes and returns every entry's current value,
// regardless of Pending/Created state.
func (m *entityMap[T]) drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	drained := make([]T, 0, len(m.entries))
	for _, entry := range m.entries {
		drained = append(drained, entry.Data())
	}
	m.entries = make(map[uuid.UUID]domain.BufferedEntity[T])
	return drained
}

func (m *entityMap[T]) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *entityMap[T]) pendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, entry := range m.entries {
		if entry.IsPending() {
			n++
		}
	}
	return n
}

// IDRemap records that a pending_id was confirmed under a different
// authoritative id (server-side deduplication merged it with an
// existing entity).
type IDRemap struct {
	PendingID       uuid.UUID
	AuthoritativeID uuid.UUID
}

// Buffer is the thread-safe store for subnets and hosts discovered this
// session, tracked from Pending through server confirmation.
type Buffer struct {
	subnets *entityMap[domain.Subnet]
	hosts   *entityMap[domain.Host]
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{
		subnets: newEntityMap[domain.Subnet](),
		hosts:   newEntityMap[domain.Host](),
	}
}

// Drained is a batch of everything a drain() call removed from the
// buffer, handed to the transport layer as one unit (push-mode poll
// response body, or the pull-mode upload payload).
type Drained struct {
	Hosts   []domain.Host
	Subnets []domain.Subnet
}

// PushSubnet records a newly-discovered subnet as Pending.
func (b *Buffer) PushSubnet(s domain.Subnet) {
	b.subnets.push(s.ID, s)
}

// MarkSubnetCreated replaces subnet pendingID with the server's
// authoritative copy.
func (b *Buffer) MarkSubnetCreated(pendingID uuid.UUID, actual domain.Subnet) *IDRemap {
	remap, _ := b.subnets.markCreated(pendingID, actual, actual.ID)
	return remap
}

// GetSubnet returns the best-known value for pendingID: authoritative
// if confirmed, the originally-discovered value otherwise.
func (b *Buffer) GetSubnet(pendingID uuid.UUID) (domain.Subnet, bool) {
	return b.subnets.get(pendingID)
}

// AwaitSubnet blocks until pendingID is confirmed or timeout elapses.
func (b *Buffer) AwaitSubnet(ctx context.Context, pendingID uuid.UUID, timeout time.Duration) (domain.Subnet, bool) {
	return b.subnets.await(ctx, pendingID, timeout)
}

// PushHost records a newly-discovered host (with its interfaces, ports,
// services, if-entries already attached) as Pending.
func (b *Buffer) PushHost(h domain.Host) {
	b.hosts.push(h.ID, h)
}

// MarkHostCreated replaces host pendingID with the server's
// authoritative copy. Children (interfaces/ports/services/if-entries)
// from the server response take precedence when present; an empty
// slice in the response is treated as "server didn't echo these back,"
// keeping the daemon's originally-discovered children rather than
// losing them — matching the teacher's fallback-to-pending-data rule.
func (b *Buffer) MarkHostCreated(pendingID uuid.UUID, actual domain.Host) *IDRemap {
	if pending, ok := b.hosts.get(pendingID); ok {
		if len(actual.Interfaces) == 0 {
			actual.Interfaces = pending.Interfaces
		}
		if len(actual.Ports) == 0 {
			actual.Ports = pending.Ports
		}
		if len(actual.Services) == 0 {
			actual.Services = pending.Services
		}
		if len(actual.IfEntries) == 0 {
			actual.IfEntries = pending.IfEntries
		}
	}
	remap, _ := b.hosts.markCreated(pendingID, actual, actual.ID)
	return remap
}

// GetHost returns the best-known value for pendingID.
func (b *Buffer) GetHost(pendingID uuid.UUID) (domain.Host, bool) {
	return b.hosts.get(pendingID)
}

// AwaitHost blocks until pendingID is confirmed or timeout elapses.
func (b *Buffer) AwaitHost(ctx context.Context, pendingID uuid.UUID, timeout time.Duration) (domain.Host, bool) {
	return b.hosts.await(ctx, pendingID, timeout)
}

// Drain atomically empties the buffer and returns everything it held,
// Pending or Created alike.
func (b *Buffer) Drain() Drained {
	return Drained{
		Hosts:   b.hosts.drain(),
		Subnets: b.subnets.drain(),
	}
}

// IsEmpty reports whether both entity maps are empty.
func (b *Buffer) IsEmpty() bool {
	return b.hosts.count() == 0 && b.subnets.count() == 0
}

// Count returns (hosts, subnets) regardless of state.
func (b *Buffer) Count() (hosts, subnets int) {
	return b.hosts.count(), b.subnets.count()
}

// PendingCount returns (hosts, subnets) still awaiting confirmation.
func (b *Buffer) PendingCount() (hosts, subnets int) {
	return b.hosts.pendingCount(), b.subnets.pendingCount()
}
