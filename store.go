package sitedag

import (
	"context"

	"github.com/pkg/errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its ref.
	// It returns ErrNotFound if the store has no blob with that ref.
	Get(context.Context, Ref) (Blob, error)

	// ListRefs calls a function for each blob ref in the store in
	// lexicographic order, beginning with the first ref _after_ the
	// specified one.
	//
	// The calls reflect at least the set of refs known at the moment
	// ListRefs was called. It is unspecified whether later changes, that
	// happen concurrently with ListRefs, are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(Ref) error) error
}

// Store is a blob store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob can be retrieved using its "ref" as a lookup key.
// A ref is simply the SHA2-256 hash of the blob's content.
//
// Writes of identical content are idempotent no-ops:
// the blob is already present under its ref and nothing changes.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's ref and a boolean that is true iff the blob had to be added.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)
}

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent ref.
var ErrNotFound = errors.New("not found")

// Has tells whether g holds a blob with the given ref.
func Has(ctx context.Context, g Getter, ref Ref) (bool, error) {
	_, err := g.Get(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
