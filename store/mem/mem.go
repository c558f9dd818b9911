// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/store"
)

var _ sitedag.Store = &Store{}

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu    sync.Mutex
	blobs map[sitedag.Ref]sitedag.Blob
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs: make(map[sitedag.Ref]sitedag.Blob),
	}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref sitedag.Ref) (sitedag.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[ref]; ok {
		return b, nil
	}
	return nil, sitedag.ErrNotFound
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b sitedag.Blob) (sitedag.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added bool

	r := b.Ref()
	if _, ok := s.blobs[r]; !ok {
		s.blobs[r] = b
		added = true
	}
	return r, added, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start sitedag.Ref, f func(sitedag.Ref) error) error {
	s.mu.Lock()
	refs := make([]sitedag.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (sitedag.Store, error) {
		return New(), nil
	})
}
