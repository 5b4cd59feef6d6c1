package mux

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Status distinguishes the states Read alone cannot tell apart.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Table maps correlation identifiers to pending requests and resolved
// responses. An identifier is in at most one of the two maps.
type Table[Req, Resp any] struct {
	mu        sync.RWMutex
	equal     func(a, b Req) bool
	newID     func() uuid.UUID
	requests  map[uuid.UUID]Req
	responses map[uuid.UUID]Resp
}

func NewTable[Req, Resp any](equal func(a, b Req) bool) *Table[Req, Resp] {
	return &Table[Req, Resp]{
		equal:     equal,
		newID:     uuid.New,
		requests:  make(map[uuid.UUID]Req),
		responses: make(map[uuid.UUID]Resp),
	}
}

// Send returns the identifier of an equal pending request if one exists,
// otherwise stores req under a fresh identifier.
func (t *Table[Req, Resp]) Send(req Req) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, pending := range t.requests {
		if t.equal(pending, req) {
			return id
		}
	}
	id := t.newID()
	for t.has(id) {
		id = t.newID()
	}
	t.requests[id] = req
	return id
}

func (t *Table[Req, Resp]) has(id uuid.UUID) bool {
	if _, ok := t.requests[id]; ok {
		return true
	}
	_, ok := t.responses[id]
	return ok
}

func (t *Table[Req, Resp]) Read(id uuid.UUID) (Resp, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	resp, ok := t.responses[id]
	return resp, ok
}

// Take returns the response for id and forgets it.
func (t *Table[Req, Resp]) Take(id uuid.UUID) (Resp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	resp, ok := t.responses[id]
	if ok {
		delete(t.responses, id)
	}
	return resp, ok
}

func (t *Table[Req, Resp]) Status(id uuid.UUID) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.responses[id]; ok {
		return StatusResolved
	}
	if _, ok := t.requests[id]; ok {
		return StatusPending
	}
	return StatusUnknown
}

// Resolve completes the exchange for id. A second resolve for the same
// identifier is rejected with ErrAlreadyResolved.
func (t *Table[Req, Resp]) Resolve(id uuid.UUID, resp Resp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.responses[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}
	if _, ok := t.requests[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	delete(t.requests, id)
	t.responses[id] = resp
	return nil
}

// Cancel removes a pending request. Resolved responses are left alone; use
// Take for those.
func (t *Table[Req, Resp]) Cancel(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.requests[id]; !ok {
		return false
	}
	delete(t.requests, id)
	return true
}

func (t *Table[Req, Resp]) Pending(id uuid.UUID) (Req, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	req, ok := t.requests[id]
	return req, ok
}

// PendingIDs lists pending identifiers ascending by identifier bytes.
func (t *Table[Req, Resp]) PendingIDs() []uuid.UUID {
	t.mu.RLock()
	out := make([]uuid.UUID, 0, len(t.requests))
	for id := range t.requests {
		out = append(out, id)
	}
	t.mu.RUnlock()
	SortIDs(out)
	return out
}

func (t *Table[Req, Resp]) Counts() (pending, resolved int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.requests), len(t.responses)
}

// SortIDs orders identifiers ascending by their 16 raw bytes.
func SortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}
