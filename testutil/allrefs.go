// Package testutil has utilities for testing blob stores.
package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/sitedag/sitedag"
)

// AllRefs writes a random set of random blobs to an empty store
// and makes sure that the right set of refs comes back in a call to ListRefs.
func AllRefs(ctx context.Context, t *testing.T, storeFactory func() sitedag.Store) {
	if err := quick.Check(allRefsHelper(ctx, t, storeFactory), nil); err != nil {
		t.Error(err)
	}
}

func allRefsHelper(ctx context.Context, t *testing.T, storeFactory func() sitedag.Store) func([]sitedag.Blob) bool {
	return func(blobs []sitedag.Blob) bool {
		var (
			store = storeFactory()
			want  []sitedag.Ref
		)
		for _, blob := range blobs {
			ref, added, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, ref)
			}
		}
		var got []sitedag.Ref
		err := store.ListRefs(ctx, sitedag.Zero, func(r sitedag.Ref) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })
		sort.Slice(got, func(i, j int) bool { return got[i].Less(got[j]) })

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
