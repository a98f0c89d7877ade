// Package state owns the shared mutable state of the bot. Every read and
// write of the highest-id counter, the ticket index, the group roster, and
// the sessions goes through one Store and therefore one lock; this is what
// keeps ticket ids unique and roster membership consistent under concurrent
// handlers.
package state

import (
	"context"
	"fmt"

	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/domain"
)

// Persister saves the state blob after a successful mutation. Implementations
// are expected to be crash-consistent: a completed Save must survive restart.
type Persister interface {
	Save(ctx context.Context, st *domain.State) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(ctx context.Context, st *domain.State) error

// Save calls f.
func (f PersistFunc) Save(ctx context.Context, st *domain.State) error { return f(ctx, st) }

// Store guards a domain.State behind a single mutex and persists it after
// every mutation.
type Store struct {
	mu      sync.Mutex
	st      *domain.State
	persist Persister
}

// New wraps an already-loaded state. persist may be nil (tests, ephemeral
// runs); mutations then live only in memory.
func New(st *domain.State, persist Persister) *Store {
	if st == nil {
		st = domain.NewState()
	}
	return &Store{st: st, persist: persist}
}

// Update runs fn on the state under the lock and, when fn succeeds, saves the
// blob. fn must not retain references to state internals beyond the call.
func (s *Store) Update(ctx context.Context, fn func(st *domain.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.st); err != nil {
		return err
	}
	if s.persist != nil {
		if err := s.persist.Save(ctx, s.st); err != nil {
			// The in-memory mutation stands; losing one save is recoverable,
			// running two states is not.
			log.Error().Err(err).Msg("persisting state failed")
			return fmt.Errorf("persist state: %w", err)
		}
	}
	return nil
}

// View runs fn on the state under the lock without persisting. fn must copy
// anything it wants to keep.
func (s *Store) View(fn func(st *domain.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}
