package remote

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/tree"
)

var _ Resolver = (*StorePeer)(nil)

// StorePeer is an in-process Resolver backed by a blob store.
// It behaves like the remote service: it holds the published blocks,
// serves them back one at a time or as whole archives, and recomputes the
// root of every uploaded archive from the blocks it actually received.
type StorePeer struct {
	s sitedag.Store

	mu   sync.Mutex
	meta map[sitedag.Ref]VersionMeta
}

// NewStorePeer produces a StorePeer storing blocks in s.
func NewStorePeer(s sitedag.Store) *StorePeer {
	return &StorePeer{
		s:    s,
		meta: make(map[sitedag.Ref]VersionMeta),
	}
}

// FetchBlock implements Resolver.
func (p *StorePeer) FetchBlock(ctx context.Context, ref sitedag.Ref) (sitedag.Blob, error) {
	return p.s.Get(ctx, ref)
}

// UploadArchive implements Resolver.
// Blocks are stored under their recomputed refs;
// the returned root is the archive's declared root as the peer holds it,
// which therefore reflects what was actually received.
func (p *StorePeer) UploadArchive(ctx context.Context, a *Archive) (sitedag.Ref, error) {
	if len(a.Roots) == 0 {
		return sitedag.Zero, errors.New("archive has no root")
	}
	for _, b := range a.Blocks {
		_, _, err := p.s.Put(ctx, b)
		if err != nil {
			return sitedag.Zero, errors.Wrap(err, "storing uploaded block")
		}
	}

	root := a.Roots[0]
	ok, err := sitedag.Has(ctx, p.s, root)
	if err != nil {
		return sitedag.Zero, err
	}
	if !ok {
		return sitedag.Zero, errors.Errorf("uploaded archive missing its root block %s", root)
	}

	p.mu.Lock()
	for ref, m := range a.Meta {
		p.meta[ref] = m
	}
	p.mu.Unlock()

	return root, nil
}

// SetMeta records anchoring metadata for a version root.
// The real service learns this from the anchoring chain;
// the in-process peer is told directly.
func (p *StorePeer) SetMeta(root sitedag.Ref, m VersionMeta) {
	p.mu.Lock()
	p.meta[root] = m
	p.mu.Unlock()
}

// DownloadArchive implements Resolver.
// It walks the version chain from root through each version's embedded
// predecessors and bundles every reachable block.
func (p *StorePeer) DownloadArchive(ctx context.Context, root sitedag.Ref) (*Archive, error) {
	a := &Archive{
		Meta: make(map[sitedag.Ref]VersionMeta),
	}

	versions := []sitedag.Ref{root}
	seenVersions := map[sitedag.Ref]bool{root: true}
	seenBlocks := make(map[sitedag.Ref]bool)

	for len(versions) > 0 {
		v := versions[0]
		versions = versions[1:]
		a.Roots = append(a.Roots, v)

		p.mu.Lock()
		if m, ok := p.meta[v]; ok {
			a.Meta[v] = m
		}
		p.mu.Unlock()

		var refs []sitedag.Ref
		err := tree.Walk(ctx, p.s, v, func(ref sitedag.Ref) (bool, error) {
			if seenBlocks[ref] {
				return false, nil
			}
			seenBlocks[ref] = true
			refs = append(refs, ref)
			return true, nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walking version %s", v.Short())
		}

		blocks, err := sitedag.GetMulti(ctx, p.s, refs)
		if err != nil {
			return nil, errors.Wrapf(err, "bundling blocks of version %s", v.Short())
		}
		for _, ref := range refs {
			a.Blocks = append(a.Blocks, blocks[ref])
		}

		parents, err := tree.List(ctx, p.s, v, "_prev")
		if errors.Is(err, sitedag.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "listing predecessors of %s", v.Short())
		}
		for _, e := range parents {
			if !seenVersions[e.Ref] {
				seenVersions[e.Ref] = true
				versions = append(versions, e.Ref)
			}
		}
	}

	return a, nil
}
