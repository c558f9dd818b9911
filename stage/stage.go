// Package stage accumulates local edits against a committed site tree,
// the way a git index accumulates edits against HEAD.
//
// A staging tree holds two root refs: the persisted root (the last
// committed state) and the change root (the working state). Edits mutate
// only the change root; structural sharing means an edit rewrites just the
// node path it touches. The change root is persisted after every edit,
// keyed by the persisted root it derives from, so a crash resumes exactly
// where it left off and an externally advanced persisted root invalidates
// the stale record.
package stage

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/diff"
	"github.com/sitedag/sitedag/remote"
	"github.com/sitedag/sitedag/tree"
)

// Status annotates a listing entry with how it differs between the
// persisted root and the change root.
type Status int

const (
	StatusNone Status = iota
	StatusNew
	StatusEdit
	StatusDelete
	StatusUpgrade // assigned by the orchestrator during template updates
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return ""
	case StatusNew:
		return "new"
	case StatusEdit:
		return "edit"
	case StatusDelete:
		return "delete"
	case StatusUpgrade:
		return "upgrade"
	}
	return "unknown"
}

// Change is one pending edit, derived at listing time by comparing the two
// roots. Changes are never stored.
type Change struct {
	Path string
	Kind Status
}

// Item is one annotated listing entry.
type Item struct {
	Entry  *tree.Entry
	Status Status
}

// AvatarName is the reserved top-level name for a tree's single avatar
// asset. Ordinary writes under it are rejected; SetAvatar is the explicit
// override, and assigning a new avatar displaces any previous occupant.
const AvatarName = "_avatar"

// Errors returned by staging operations.
var (
	ErrNotBound = errors.New("root not set")
	ErrReserved = errors.New("reserved name")
)

// Tree is a staging tree for one logical resource
// (pages, auxiliary files, or the settings document).
type Tree struct {
	name     string
	store    sitedag.Store
	states   StateStore
	resolver remote.Resolver // may be nil: no remote fallback

	persisted sitedag.Ref
	change    sitedag.Ref
	bound     bool
}

// New produces an unbound staging tree.
// Every operation fails with ErrNotBound until SetRoot succeeds.
// The resolver, when non-nil, serves blocks missing from the local store;
// fetched blocks are cached locally.
func New(name string, store sitedag.Store, states StateStore, resolver remote.Resolver) *Tree {
	return &Tree{
		name:     name,
		store:    store,
		states:   states,
		resolver: resolver,
	}
}

// Name is the tree's durable-state key.
func (t *Tree) Name() string { return t.name }

// SetRoot binds the tree to a persisted root.
// A durable record whose persisted root matches resumes the previous
// change root; anything else (no record, or a stale one) starts the change
// root equal to the persisted root.
func (t *Tree) SetRoot(ctx context.Context, persisted sitedag.Ref) error {
	state, err := t.states.LoadState(ctx, t.name)
	if err != nil && !errors.Is(err, sitedag.ErrNotFound) {
		return errors.Wrapf(err, "loading staging state for %s", t.name)
	}

	t.persisted = persisted
	if state != nil && state.Persisted == persisted {
		t.change = state.Change
	} else {
		t.change = persisted
	}

	err = t.saveState(ctx)
	if err != nil {
		return err
	}
	t.bound = true
	return nil
}

func (t *Tree) saveState(ctx context.Context) error {
	err := t.states.SaveState(ctx, &State{
		Name:      t.name,
		Persisted: t.persisted,
		Change:    t.change,
	})
	return errors.Wrapf(err, "saving staging state for %s", t.name)
}

func (t *Tree) guard() error {
	if !t.bound {
		return errors.Wrap(ErrNotBound, t.name)
	}
	return nil
}

// Roots returns the persisted root and the change root.
func (t *Tree) Roots() (persisted, change sitedag.Ref) {
	return t.persisted, t.change
}

// store access with remote fallback for missing local blocks

var _ sitedag.Store = fetchStore{}

type fetchStore struct {
	s        sitedag.Store
	resolver remote.Resolver
}

func (f fetchStore) Get(ctx context.Context, ref sitedag.Ref) (sitedag.Blob, error) {
	b, err := f.s.Get(ctx, ref)
	if !errors.Is(err, sitedag.ErrNotFound) || f.resolver == nil {
		return b, err
	}
	b, err = f.resolver.FetchBlock(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching missing block %s", ref.Short())
	}
	_, _, err = f.s.Put(ctx, b)
	return b, errors.Wrapf(err, "caching fetched block %s", ref.Short())
}

func (f fetchStore) ListRefs(ctx context.Context, start sitedag.Ref, fn func(sitedag.Ref) error) error {
	return f.s.ListRefs(ctx, start, fn)
}

func (f fetchStore) Put(ctx context.Context, b sitedag.Blob) (sitedag.Ref, bool, error) {
	return f.s.Put(ctx, b)
}

func (t *Tree) fs() fetchStore {
	return fetchStore{s: t.store, resolver: t.resolver}
}

func reserved(path string) bool {
	return strings.SplitN(strings.Trim(path, "/"), "/", 2)[0] == AvatarName
}

// Add writes a file at path in the change root.
// Writing under a non-existent parent fails;
// writing under the reserved avatar name fails (use SetAvatar).
func (t *Tree) Add(ctx context.Context, path string, data []byte) error {
	if err := t.guard(); err != nil {
		return err
	}
	if reserved(path) {
		return errors.Wrap(ErrReserved, path)
	}
	return t.addFile(ctx, path, data)
}

func (t *Tree) addFile(ctx context.Context, path string, data []byte) error {
	newChange, err := tree.AddFile(ctx, t.fs(), t.change, path, data)
	if err != nil {
		return errors.Wrapf(err, "adding %s", path)
	}
	t.change = newChange
	return t.saveState(ctx)
}

// SetAvatar assigns the tree's single avatar asset,
// displacing any previous occupant of the reserved slot.
func (t *Tree) SetAvatar(ctx context.Context, data []byte) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.addFile(ctx, AvatarName, data)
}

// Mkdir creates an empty directory at path in the change root.
// It fails if anything is already at path.
func (t *Tree) Mkdir(ctx context.Context, path string) error {
	if err := t.guard(); err != nil {
		return err
	}
	if reserved(path) {
		return errors.Wrap(ErrReserved, path)
	}
	newChange, err := tree.Mkdir(ctx, t.fs(), t.change, path)
	if err != nil {
		return errors.Wrapf(err, "making directory %s", path)
	}
	t.change = newChange
	return t.saveState(ctx)
}

// Remove deletes the entry at path from the change root.
func (t *Tree) Remove(ctx context.Context, path string) error {
	if err := t.guard(); err != nil {
		return err
	}
	newChange, err := tree.Remove(ctx, t.fs(), t.change, path)
	if err != nil {
		return errors.Wrapf(err, "removing %s", path)
	}
	t.change = newChange
	return t.saveState(ctx)
}

// Read returns the content of the file at path in the change root.
// A block missing locally is fetched through the remote resolver and
// cached before returning.
func (t *Tree) Read(ctx context.Context, path string) ([]byte, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return tree.ReadFile(ctx, t.fs(), t.change, path)
}

// List merges both roots' entries at path and annotates each with its
// change status: present only in the persisted root means DELETE, present
// only in the change root means NEW, present in both with different refs
// means EDIT, identical entries carry no annotation.
func (t *Tree) List(ctx context.Context, path string) ([]Item, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}

	persistedEntries, inPersisted, err := t.listIfPresent(ctx, t.persisted, path)
	if err != nil {
		return nil, err
	}
	changeEntries, inChange, err := t.listIfPresent(ctx, t.change, path)
	if err != nil {
		return nil, err
	}
	if !inPersisted && !inChange {
		return nil, errors.Wrap(sitedag.ErrNotFound, path)
	}

	old := make(map[string]*tree.Entry, len(persistedEntries))
	for _, e := range persistedEntries {
		old[e.Name] = e
	}

	var items []Item
	for _, e := range changeEntries {
		switch oldEntry, ok := old[e.Name]; {
		case !ok:
			items = append(items, Item{Entry: e, Status: StatusNew})
		case oldEntry.Ref == e.Ref:
			items = append(items, Item{Entry: e, Status: StatusNone})
		default:
			items = append(items, Item{Entry: e, Status: StatusEdit})
		}
		delete(old, e.Name)
	}
	for _, e := range old {
		items = append(items, Item{Entry: e, Status: StatusDelete})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Entry.Name < items[j].Entry.Name
	})
	return items, nil
}

// listIfPresent lists the directory at path under root.
// The boolean result distinguishes a missing path from an empty directory.
func (t *Tree) listIfPresent(ctx context.Context, root sitedag.Ref, path string) ([]*tree.Entry, bool, error) {
	entries, err := tree.List(ctx, t.fs(), root, path)
	if errors.Is(err, sitedag.ErrNotFound) {
		return nil, false, nil
	}
	return entries, err == nil, errors.Wrapf(err, "listing %s", path)
}

// Restore reverts the entry at path in the change root to its value in
// the persisted root, or removes it if the persisted root has none.
// Restoring an already clean path is a no-op.
func (t *Tree) Restore(ctx context.Context, path string) error {
	if err := t.guard(); err != nil {
		return err
	}

	want, err := tree.Lookup(ctx, t.fs(), t.persisted, path)
	if err != nil {
		return errors.Wrapf(err, "looking up %s in persisted root", path)
	}
	have, err := tree.Lookup(ctx, t.fs(), t.change, path)
	if err != nil {
		return errors.Wrapf(err, "looking up %s in change root", path)
	}

	var newChange sitedag.Ref
	switch {
	case want == nil && have == nil:
		return nil
	case want == nil:
		newChange, err = tree.Remove(ctx, t.fs(), t.change, path)
	case have != nil && want.Ref == have.Ref:
		return nil
	default:
		newChange, err = tree.Copy(ctx, t.fs(), want, t.change, path)
	}
	if err != nil {
		return errors.Wrapf(err, "restoring %s", path)
	}
	t.change = newChange
	return t.saveState(ctx)
}

// HasChanges tells whether the change root differs from the persisted root.
func (t *Tree) HasChanges() bool {
	return t.change != t.persisted
}

// Changes derives the pending per-file change records by comparing the two
// roots. Records are ordered by path.
func (t *Tree) Changes(ctx context.Context) ([]Change, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	var out []Change
	err := t.changes(ctx, t.persisted, t.change, true, true, "", &out)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (t *Tree) changes(ctx context.Context, oldRef, newRef sitedag.Ref, haveOld, haveNew bool, prefix string, out *[]Change) error {
	if haveOld && haveNew && oldRef == newRef {
		return nil
	}

	var oldEntries, newEntries []*tree.Entry
	if haveOld {
		d, err := tree.Load(ctx, t.fs(), oldRef)
		if err != nil {
			return err
		}
		oldEntries = d.Entries
	}
	if haveNew {
		d, err := tree.Load(ctx, t.fs(), newRef)
		if err != nil {
			return err
		}
		newEntries = d.Entries
	}

	old := make(map[string]*tree.Entry, len(oldEntries))
	for _, e := range oldEntries {
		old[e.Name] = e
	}

	for _, e := range newEntries {
		path := prefix + e.Name
		oldEntry := old[e.Name]
		delete(old, e.Name)

		switch {
		case oldEntry == nil && e.Dir:
			if err := t.changes(ctx, sitedag.Zero, e.Ref, false, true, path+"/", out); err != nil {
				return err
			}
		case oldEntry == nil:
			*out = append(*out, Change{Path: path, Kind: StatusNew})
		case oldEntry.Ref == e.Ref:
			// unchanged
		case oldEntry.Dir && e.Dir:
			if err := t.changes(ctx, oldEntry.Ref, e.Ref, true, true, path+"/", out); err != nil {
				return err
			}
		default:
			*out = append(*out, Change{Path: path, Kind: StatusEdit})
		}
	}

	for name, e := range old {
		path := prefix + name
		if e.Dir {
			if err := t.changes(ctx, e.Ref, sitedag.Zero, true, false, path+"/", out); err != nil {
				return err
			}
		} else {
			*out = append(*out, Change{Path: path, Kind: StatusDelete})
		}
	}
	return nil
}

// Stage returns the change root and the set of refs under it that the
// persisted root already covers (and that the remote counterpart
// therefore already holds).
func (t *Tree) Stage(ctx context.Context) (sitedag.Ref, map[sitedag.Ref]bool, error) {
	if err := t.guard(); err != nil {
		return sitedag.Zero, nil, err
	}
	unchanged, err := diff.Unchanged(ctx, t.fs(), t.change, t.persisted)
	if err != nil {
		return sitedag.Zero, nil, errors.Wrapf(err, "diffing staged tree %s", t.name)
	}
	return t.change, unchanged, nil
}

// FinalizeCommit sets both roots to the given committed ref.
// The caller is responsible for only doing this once the commit is
// externally confirmed.
func (t *Tree) FinalizeCommit(ctx context.Context, newRoot sitedag.Ref) error {
	if err := t.guard(); err != nil {
		return err
	}
	t.persisted = newRoot
	t.change = newRoot
	return t.saveState(ctx)
}

// ClearChanges restores every top-level entry that differs between the two
// roots, leaving HasChanges false.
func (t *Tree) ClearChanges(ctx context.Context) error {
	if err := t.guard(); err != nil {
		return err
	}

	persistedEntries, _, err := t.listIfPresent(ctx, t.persisted, "")
	if err != nil {
		return err
	}
	changeEntries, _, err := t.listIfPresent(ctx, t.change, "")
	if err != nil {
		return err
	}

	names := make(map[string]bool)
	for _, e := range persistedEntries {
		names[e.Name] = true
	}
	for _, e := range changeEntries {
		names[e.Name] = true
	}
	for name := range names {
		err = t.Restore(ctx, name)
		if err != nil {
			return err
		}
	}
	return nil
}
