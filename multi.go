package sitedag

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// GetMulti gets multiple blobs concurrently with a single call.
// The result maps each input ref to the blob that was found.
// Any individual Get error fails the whole call.
func GetMulti(ctx context.Context, g Getter, refs []Ref) (map[Ref]Blob, error) {
	var (
		mu     sync.Mutex
		result = make(map[Ref]Blob, len(refs))
	)

	eg, ctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		eg.Go(func() error {
			blob, err := g.Get(ctx, ref)
			if err != nil {
				return err
			}
			mu.Lock()
			result[ref] = blob
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
