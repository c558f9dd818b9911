// Package diff computes the unchanged-subtree set between two site roots.
//
// Because a directory node's ref embeds the refs of its children, editing
// one file changes the ref of every directory on the path from that file up
// to the root - and nothing else. The subtrees hanging off that path keep
// their refs byte for byte. Finding those shared subtrees is what makes
// incremental commits affordable: everything in the unchanged set is
// already held by the remote counterpart and need not be transmitted again.
package diff

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/tree"
)

// Unchanged returns the maximal set of refs in the tree rooted at newRoot
// that are provably identical to some subtree of oldRoot.
//
// If newRoot equals oldRoot the result is {newRoot}: the whole tree is
// shared, and the single root ref covers it. Otherwise both roots must be
// directory nodes; for every child name present in both, the child ref
// pair is compared the same way and the results unioned. Children present
// only in the new node are genuinely new and contribute nothing. Differing
// file entries are not decomposed further.
func Unchanged(ctx context.Context, g sitedag.Getter, newRoot, oldRoot sitedag.Ref) (map[sitedag.Ref]bool, error) {
	result := make(map[sitedag.Ref]bool)
	err := unchanged(ctx, g, newRoot, oldRoot, result, make(map[refPair]bool))
	return result, err
}

type refPair struct {
	new, old sitedag.Ref
}

func unchanged(ctx context.Context, g sitedag.Getter, newRef, oldRef sitedag.Ref, result map[sitedag.Ref]bool, seen map[refPair]bool) error {
	if newRef == oldRef {
		result[newRef] = true
		return nil
	}

	// Deep or structurally shared trees revisit the same pair.
	pair := refPair{new: newRef, old: oldRef}
	if seen[pair] {
		return nil
	}
	seen[pair] = true

	newDir, err := tree.Load(ctx, g, newRef)
	if err != nil {
		return errors.Wrapf(err, "loading new node %s", newRef.Short())
	}
	oldDir, err := tree.Load(ctx, g, oldRef)
	if err != nil {
		return errors.Wrapf(err, "loading old node %s", oldRef.Short())
	}

	for _, newEntry := range newDir.Entries {
		oldEntry := oldDir.Lookup(newEntry.Name)
		if oldEntry == nil {
			continue
		}
		if newEntry.Ref == oldEntry.Ref {
			result[newEntry.Ref] = true
			continue
		}
		if newEntry.Dir && oldEntry.Dir {
			err = unchanged(ctx, g, newEntry.Ref, oldEntry.Ref, result, seen)
			if err != nil {
				return err
			}
		}
		// A changed file entry is an opaque leaf here.
	}
	return nil
}
