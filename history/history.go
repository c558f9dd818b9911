// Package history reconstructs and verifies a site's version lineage.
//
// Every committed version embeds its predecessor(s) under _prev, so the
// full lineage is reachable from any root. An archive's metadata names the
// anchoring transaction for each version the remote counterpart knows to
// be confirmed; verification cross-checks each such transaction's receipt
// against the version root it claims to anchor before trusting the
// embedded parent pointers.
package history

import (
	"bytes"
	"context"
	stderrs "errors"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/anchor"
	"github.com/sitedag/sitedag/remote"
	"github.com/sitedag/sitedag/repo"
	"github.com/sitedag/sitedag/store/mem"
	"github.com/sitedag/sitedag/tree"
)

// Entry is one verified version in a site's history.
type Entry struct {
	Ref     sitedag.Ref
	Parents []sitedag.Ref

	// Confirmed versions carry the anchoring transaction and its block.
	Confirmed   bool
	Tx          string
	BlockNumber uint64

	// SiteName is the name recorded in the version's settings document,
	// empty if the version has none.
	SiteName string
}

// Get reconstructs the verified history of the named site from an
// archive, newest first.
//
// Every version the archive's metadata marks as confirmed must carry an
// anchoring transaction whose receipt succeeded and whose contenthash
// event names this site and this exact version root; any discrepancy is
// an error, not a skipped entry. Unconfirmed versions (reachable via
// parent pointers but absent from the metadata) are included unverified
// and ordered as the newest among their lineage position.
func Get(ctx context.Context, client anchor.Client, a *remote.Archive, name string) ([]*Entry, error) {
	s := mem.New()
	for _, b := range a.Blocks {
		_, _, err := s.Put(ctx, b)
		if err != nil {
			return nil, errors.Wrap(err, "indexing archive blocks")
		}
	}

	v := &verifier{
		client: client,
		store:  s,
		meta:   a.Meta,
		name:   name,
		nodes:  make(map[sitedag.Ref]*node),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range a.Roots {
		root := root
		g.Go(func() error { return v.visit(gctx, root) })
	}
	for ref := range a.Meta {
		ref := ref
		g.Go(func() error { return v.visit(gctx, ref) })
	}
	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return v.order(), nil
}

type verifier struct {
	client anchor.Client
	store  sitedag.Store
	meta   map[sitedag.Ref]remote.VersionMeta
	name   string

	mu    sync.Mutex
	nodes map[sitedag.Ref]*node
}

type node struct {
	entry *Entry
	err   error
	seq   int // discovery order, for deterministic ties
	done  chan struct{}
}

// visit verifies ref and, concurrently, its ancestors.
// Each ref is verified once; later visitors wait on the first.
// A merkle tree cannot contain a reference cycle, so waiting cannot
// deadlock.
func (v *verifier) visit(ctx context.Context, ref sitedag.Ref) error {
	v.mu.Lock()
	if n, ok := v.nodes[ref]; ok {
		v.mu.Unlock()
		select {
		case <-n.done:
			return n.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n := &node{seq: len(v.nodes), done: make(chan struct{})}
	v.nodes[ref] = n
	v.mu.Unlock()

	n.entry, n.err = v.verify(ctx, ref)
	close(n.done)
	if n.err != nil {
		return n.err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, parent := range n.entry.Parents {
		parent := parent
		g.Go(func() error { return v.visit(gctx, parent) })
	}
	return g.Wait()
}

func (v *verifier) verify(ctx context.Context, ref sitedag.Ref) (*Entry, error) {
	e := &Entry{Ref: ref}

	if meta, ok := v.meta[ref]; ok {
		receipt, err := v.client.TransactionReceipt(ctx, meta.Tx)
		if err != nil {
			return nil, errors.Wrapf(err, "fetching receipt %s for site %s", meta.Tx, v.name)
		}
		if !receipt.Succeeded() {
			return nil, errors.Errorf("transaction %s anchoring version %s failed", meta.Tx, ref.Short())
		}
		err = v.checkAnchor(receipt, ref)
		if err != nil {
			return nil, err
		}
		e.Confirmed = true
		e.Tx = meta.Tx
		e.BlockNumber = receipt.BlockNumber
	}

	nameDoc, err := tree.ReadFile(ctx, v.store, ref, repo.SettingsMount+"/"+repo.SettingsFile)
	if err != nil && !stderrs.Is(err, sitedag.ErrNotFound) {
		return nil, errors.Wrapf(err, "reading settings of version %s", ref.Short())
	}
	if err == nil {
		var doc map[string]interface{}
		err = sitedag.Unmarshal(nameDoc, &doc)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding settings of version %s", ref.Short())
		}
		e.SiteName, _ = doc["name"].(string)
	}

	prev, err := tree.List(ctx, v.store, ref, repo.PrevMount)
	if err != nil && !stderrs.Is(err, sitedag.ErrNotFound) {
		return nil, errors.Wrapf(err, "listing parents of version %s", ref.Short())
	}
	for _, pe := range prev {
		if pe.Dir {
			e.Parents = append(e.Parents, pe.Ref)
		}
	}
	return e, nil
}

// checkAnchor confirms that the receipt emitted a contenthash-changed
// event for this site's name node with exactly this version root.
func (v *verifier) checkAnchor(receipt *anchor.Receipt, ref sitedag.Ref) error {
	var (
		wantNode = anchor.NameHash(v.name)
		wantHash = anchor.EncodeContenthash(ref)
	)
	for _, l := range receipt.Logs {
		ev, ok, err := anchor.DecodeContenthashChanged(l)
		if err != nil {
			return errors.Wrapf(err, "decoding event in receipt %s", receipt.Tx)
		}
		if !ok {
			continue
		}
		if ev.Node != wantNode {
			continue
		}
		if !bytes.Equal(ev.Hash, wantHash) {
			return errors.Errorf("receipt %s anchors a different root than version %s", receipt.Tx, ref.Short())
		}
		return nil
	}
	return errors.Errorf("receipt %s has no contenthash event for site %s", receipt.Tx, v.name)
}

// order emits the verified versions newest first: a version is ready once
// every version descending from it has been emitted, and among ready
// versions the one with the highest anchoring block goes first, with
// unconfirmed versions treated as newer than any confirmed one.
func (v *verifier) order() []*Entry {
	remaining := make(map[sitedag.Ref]int, len(v.nodes)) // children not yet emitted
	for ref := range v.nodes {
		if _, ok := remaining[ref]; !ok {
			remaining[ref] = 0
		}
		for _, parent := range v.nodes[ref].entry.Parents {
			remaining[parent]++
		}
	}

	var ready []sitedag.Ref
	for ref, n := range remaining {
		if n == 0 {
			ready = append(ready, ref)
		}
	}

	out := make([]*Entry, 0, len(v.nodes))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if v.newer(ready[i], ready[best]) {
				best = i
			}
		}
		ref := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		n := v.nodes[ref]
		out = append(out, n.entry)
		for _, parent := range n.entry.Parents {
			remaining[parent]--
			if remaining[parent] == 0 {
				ready = append(ready, parent)
			}
		}
	}
	return out
}

func (v *verifier) newer(a, b sitedag.Ref) bool {
	var (
		ea = v.nodes[a].entry
		eb = v.nodes[b].entry
	)
	if ea.Confirmed != eb.Confirmed {
		return !ea.Confirmed // unconfirmed sorts newest
	}
	if ea.BlockNumber != eb.BlockNumber {
		return ea.BlockNumber > eb.BlockNumber
	}
	return v.nodes[a].seq < v.nodes[b].seq
}
