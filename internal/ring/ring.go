// Package ring implements the depth-bounded frame store a device owns:
// a FIFO of in-flight frames with a selectable overflow rule.
//
// Philosophy, inherited from the frame-distribution layer: under KeepNewest
// the producer never blocks and never queues beyond the depth — the oldest
// undelivered entry is evicted in favour of the newest arrival. QueueAll
// inverts the trade: arrival order is preserved and the producer stalls
// while the ring is full.
package ring

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout: no entry arrived within the bounded wait.
	ErrTimeout = errors.New("ring: pop timed out")
	// ErrClosed: the ring was closed and drained.
	ErrClosed = errors.New("ring: closed")
)

// Policy is the overflow rule applied when the ring is full.
type Policy int

const (
	// KeepNewest evicts the oldest undelivered entry. Push never blocks.
	KeepNewest Policy = iota
	// QueueAll preserves every entry; Push blocks until space frees up.
	QueueAll
)

// Ring is a fixed-depth FIFO with blocking consume semantics (sync.Cond,
// single lock). Delivery order matches arrival order, modulo KeepNewest
// evictions; the ring never reorders.
type Ring[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	depth  int
	policy Policy
	closed bool
	drops  uint64
}

// New creates a ring. Depth < 1 is treated as 1.
func New[T any](depth int, policy Policy) *Ring[T] {
	if depth < 1 {
		depth = 1
	}
	r := &Ring[T]{depth: depth, policy: policy}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push appends v.
//
// KeepNewest: never blocks; when full, the oldest entry is evicted and
// returned so the owner can release its buffer slot. QueueAll: blocks while
// full until space frees or the ring closes.
//
// accepted=false means the ring is closed and v was not stored; the caller
// still owns v.
func (r *Ring[T]) Push(v T) (evicted T, wasEvicted bool, accepted bool) {
	var zero T

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return zero, false, false
	}

	if len(r.items) >= r.depth {
		switch r.policy {
		case KeepNewest:
			evicted = r.items[0]
			r.items = r.items[1:]
			r.drops++
			wasEvicted = true
		case QueueAll:
			for len(r.items) >= r.depth && !r.closed {
				r.cond.Wait()
			}
			if r.closed {
				return zero, false, false
			}
		}
	}

	r.items = append(r.items, v)
	r.cond.Broadcast()
	return evicted, wasEvicted, true
}

// Pop removes the oldest entry, blocking up to timeout. Returns ErrTimeout
// on an empty wait and ErrClosed once the ring is closed.
func (r *Ring[T]) Pop(timeout time.Duration) (T, error) {
	var zero T

	deadline := time.Now().Add(timeout)
	// sync.Cond has no timed wait; a timer broadcast bounds it.
	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.items) == 0 {
		if r.closed {
			return zero, ErrClosed
		}
		if !time.Now().Before(deadline) {
			return zero, ErrTimeout
		}
		r.cond.Wait()
	}

	v := r.items[0]
	r.items = r.items[1:]
	r.cond.Broadcast()
	return v, nil
}

// Len returns the number of undelivered entries.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Drops returns the lifetime count of KeepNewest evictions.
func (r *Ring[T]) Drops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops
}

// Close wakes all waiters and returns the undelivered entries so the owner
// can release their buffer slots. Idempotent; later pushes are rejected.
func (r *Ring[T]) Close() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	remaining := r.items
	r.items = nil
	r.cond.Broadcast()
	return remaining
}
