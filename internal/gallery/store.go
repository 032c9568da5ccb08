// Package gallery holds the in-memory set of enrolled face embeddings that
// recognition queries match against. The external storage layer owns loading
// and saving entries; it feeds the store through Reload.
package gallery

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDimensionMismatch is returned when an embedding's length disagrees
	// with the store's fixed dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrDuplicateIdentity is returned when adding an identity that is already
	// enrolled. Remove it first to replace the embedding.
	ErrDuplicateIdentity = errors.New("identity already enrolled")
	// ErrNotFound is returned by Remove when the identity is not enrolled.
	ErrNotFound = errors.New("identity not found")
)

// Identity is one enrolled person: a stable id, a display name and the face
// embedding computed from their enrollment photo.
type Identity struct {
	ID          string
	DisplayName string
	Embedding   []float32
}

// Store keeps enrolled identities in memory with copy-on-write snapshots.
// Readers grab the current snapshot and match against it without holding any
// lock; writers build a fresh slice and swap it in, so a match in flight sees
// either the fully-old or fully-new set, never a partial mix.
type Store struct {
	mu       sync.RWMutex
	dim      int // fixed embedding length, established by construction or first insert
	entries  []Identity
	byID     map[string]int // identity id -> index into entries
	index    *nnIndex
	indexMin int // gallery size at which the HNSW index is maintained (0 = never)
}

// NewStore creates an empty store. dim fixes the embedding dimensionality;
// pass 0 to let the first inserted entry establish it.
func NewStore(dim int) *Store {
	return &Store{
		dim:  dim,
		byID: make(map[string]int),
	}
}

// EnableIndex maintains an HNSW index for galleries with at least threshold
// entries. Matching stays exact: the index only narrows the candidate list.
func (s *Store) EnableIndex(threshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexMin = threshold
	s.rebuildIndexLocked()
}

// Dim returns the store's embedding dimensionality (0 until the first insert).
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Add enrolls a new identity. The embedding slice is copied, so the caller
// may reuse its buffer.
func (s *Store) Add(id, displayName string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		if len(embedding) == 0 {
			return fmt.Errorf("identity %s: empty embedding: %w", id, ErrDimensionMismatch)
		}
		s.dim = len(embedding)
	}
	if len(embedding) != s.dim {
		return fmt.Errorf("identity %s: got %d values, store holds %d-dimensional embeddings: %w",
			id, len(embedding), s.dim, ErrDimensionMismatch)
	}
	if _, ok := s.byID[id]; ok {
		return fmt.Errorf("identity %s: %w", id, ErrDuplicateIdentity)
	}

	entry := Identity{
		ID:          id,
		DisplayName: displayName,
		Embedding:   append([]float32(nil), embedding...),
	}

	next := make([]Identity, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	next = append(next, entry)
	s.publishLocked(next)
	return nil
}

// Remove deletes an enrolled identity. Returns ErrNotFound when absent.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}

	next := make([]Identity, 0, len(s.entries)-1)
	next = append(next, s.entries[:pos]...)
	next = append(next, s.entries[pos+1:]...)
	s.publishLocked(next)
	return nil
}

// Reload atomically replaces the whole gallery. Every entry is validated
// before the swap, so a bad batch leaves the previous set untouched.
func (s *Store) Reload(entries []Identity) error {
	dim := s.fixedDim()
	if dim == 0 && len(entries) > 0 {
		dim = len(entries[0].Embedding)
	}

	next := make([]Identity, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if len(e.Embedding) != dim || dim == 0 {
			return fmt.Errorf("identity %s: got %d values, want %d: %w",
				e.ID, len(e.Embedding), dim, ErrDimensionMismatch)
		}
		if seen[e.ID] {
			return fmt.Errorf("identity %s: %w", e.ID, ErrDuplicateIdentity)
		}
		seen[e.ID] = true
		next = append(next, Identity{
			ID:          e.ID,
			DisplayName: e.DisplayName,
			Embedding:   append([]float32(nil), e.Embedding...),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) > 0 {
		s.dim = dim
	}
	s.publishLocked(next)
	return nil
}

func (s *Store) fixedDim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// publishLocked swaps in a new snapshot and refreshes derived state.
// Callers must hold the write lock.
func (s *Store) publishLocked(next []Identity) {
	byID := make(map[string]int, len(next))
	for i := range next {
		byID[next[i].ID] = i
	}
	s.entries = next
	s.byID = byID
	s.rebuildIndexLocked()
}

func (s *Store) rebuildIndexLocked() {
	if s.indexMin > 0 && len(s.entries) >= s.indexMin {
		s.index = buildIndex(s.entries)
	} else {
		s.index = nil
	}
}

// Snapshot returns the current candidate set. The returned slice and its
// embeddings are immutable; callers must not modify them.
func (s *Store) Snapshot() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries
}

// All returns a copy of the enrolled identities for listing purposes.
func (s *Store) All() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Identity, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the enrolled identity with the given id.
func (s *Store) Get(id string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.byID[id]
	if !ok {
		return Identity{}, false
	}
	return s.entries[pos], true
}

// FindByName returns identities whose display name matches after
// normalization (lowercase, diacritics stripped, dashes as spaces).
func (s *Store) FindByName(name string) []Identity {
	want := NormalizeName(name)
	var out []Identity
	for _, e := range s.Snapshot() {
		if NormalizeName(e.DisplayName) == want {
			out = append(out, e)
		}
	}
	return out
}

// Candidates returns the identities worth matching a query against. With the
// HNSW index active it returns the k nearest entries; otherwise the full
// snapshot. Either way the caller re-verifies exact distances.
func (s *Store) Candidates(query []float32, k int) []Identity {
	s.mu.RLock()
	index := s.index
	entries := s.entries
	s.mu.RUnlock()

	if index == nil || k <= 0 || len(entries) <= k {
		return entries
	}
	ids := index.search(query, k)
	out := make([]Identity, 0, len(ids))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if pos, ok := s.byID[id]; ok {
			out = append(out, s.entries[pos])
		}
	}
	return out
}
