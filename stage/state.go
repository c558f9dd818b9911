package stage

import (
	"context"
	"sync"

	"github.com/sitedag/sitedag"
)

// State is the durable record for one staging tree:
// the persisted root it derives from and the change root holding
// uncommitted edits. It is keyed by the tree's name and survives restarts;
// binding a tree to a different persisted root discards the stale record.
type State struct {
	Name      string
	Persisted sitedag.Ref
	Change    sitedag.Ref
}

// StateStore holds staging-tree records durably.
//
// There is no compare-and-swap on Save: the design assumes a single
// logical writer per staging tree, and concurrent writers can silently
// drop an edit.
type StateStore interface {
	// LoadState returns the record with the given name,
	// or sitedag.ErrNotFound if there is none.
	LoadState(ctx context.Context, name string) (*State, error)

	// SaveState stores the record, replacing any previous one with its name.
	SaveState(ctx context.Context, s *State) error
}

var _ StateStore = (*MemStates)(nil)

// MemStates is a memory-based StateStore.
type MemStates struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemStates produces a new MemStates.
func NewMemStates() *MemStates {
	return &MemStates{states: make(map[string]State)}
}

// LoadState implements StateStore.
func (m *MemStates) LoadState(_ context.Context, name string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[name]; ok {
		return &s, nil
	}
	return nil, sitedag.ErrNotFound
}

// SaveState implements StateStore.
func (m *MemStates) SaveState(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.Name] = *s
	return nil
}
