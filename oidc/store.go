package oidc

import (
	"context"
	"fmt"
	"sync"
)

// RequestStore is keyed storage for in-flight authorization Requests.  A
// request is indexed by its state value, scoped to a caller-supplied context
// key (a session id, cookie id, connection id - whatever represents "the
// current interaction" to the caller).  Multiple pending requests coexist
// under distinct states within one context, so two browser tabs or a
// multi-provider login don't interfere.
//
// Implementations must be concurrently safe: Remove is an atomic
// check-and-delete, so a replayed callback yields the request to exactly one
// caller.
type RequestStore interface {
	// Save persists the request, indexed by its state value within
	// contextKey.  Saving a request with a state already present replaces
	// the earlier request (it is abandoned).
	Save(ctx context.Context, contextKey string, r *Request) error

	// Remove atomically retrieves and deletes the request stored under state
	// within contextKey.  It returns nil (and no error) when no request is
	// stored there - absent, already consumed, or expired.  Callers treat
	// nil as "authorization request not found", a distinct condition from
	// "request found but invalid".
	Remove(ctx context.Context, contextKey string, state string) (*Request, error)
}

// MemoryStore is an in-memory RequestStore.  Expired requests are swept on
// every Save, so abandoned flows can't accumulate unboundedly.
type MemoryStore struct {
	mu sync.Mutex

	// requests maps contextKey -> state -> request.  A context's inner map
	// is deleted when its last request is removed, never left empty.
	requests map[string]map[string]*Request
}

// ensure that MemoryStore implements the RequestStore interface
var _ RequestStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: map[string]map[string]*Request{},
	}
}

// Save implements RequestStore.Save
func (s *MemoryStore) Save(ctx context.Context, contextKey string, r *Request) error {
	const op = "MemoryStore.Save"
	if contextKey == "" {
		return fmt.Errorf("%s: context key is empty: %w", op, ErrInvalidParameter)
	}
	if r == nil {
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == "" {
		return fmt.Errorf("%s: request state is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	byState, ok := s.requests[contextKey]
	if !ok {
		byState = map[string]*Request{}
		s.requests[contextKey] = byState
	}
	byState[r.State()] = r
	return nil
}

// Remove implements RequestStore.Remove
func (s *MemoryStore) Remove(ctx context.Context, contextKey string, state string) (*Request, error) {
	const op = "MemoryStore.Remove"
	if contextKey == "" {
		return nil, fmt.Errorf("%s: context key is empty: %w", op, ErrInvalidParameter)
	}
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byState, ok := s.requests[contextKey]
	if !ok {
		return nil, nil
	}
	r, ok := byState[state]
	if !ok {
		return nil, nil
	}
	delete(byState, state)
	if len(byState) == 0 {
		delete(s.requests, contextKey)
	}
	if r.IsExpired() {
		// consumed the slot, but an expired request is gone as far as
		// callers are concerned
		return nil, nil
	}
	return r, nil
}

// sweep deletes expired requests and any context containers they empty.
// Callers must hold s.mu.
func (s *MemoryStore) sweep() {
	for contextKey, byState := range s.requests {
		for state, r := range byState {
			if r.IsExpired() {
				delete(byState, state)
			}
		}
		if len(byState) == 0 {
			delete(s.requests, contextKey)
		}
	}
}
