// Package tree implements the directory nodes of a content-addressed site
// tree and the path operations over them.
//
// A directory node is an immutable, name-ordered list of entries, each
// mapping a child name to a ref and a cumulative size. Every edit produces
// a new node (and therefore a new ref) for the edited directory and each of
// its ancestors; sibling subtrees keep their refs. That property is what
// the diff package exploits.
package tree

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
)

// Entry is one child of a directory node.
// For a file, Ref is the root of a split tree (see the split package) and
// Size is the file's byte size. For a directory, Ref is a Dir blob and Size
// is the sum of the child entries' sizes.
type Entry struct {
	Name string      `cbor:"1,keyasint"`
	Ref  sitedag.Ref `cbor:"2,keyasint"`
	Size uint64      `cbor:"3,keyasint"`
	Dir  bool        `cbor:"4,keyasint,omitempty"`
}

// Dir is a directory node: entries sorted by name.
type Dir struct {
	Entries []*Entry `cbor:"1,keyasint,omitempty"`
}

// Load loads the directory node at ref.
func Load(ctx context.Context, g sitedag.Getter, ref sitedag.Ref) (*Dir, error) {
	var d Dir
	err := sitedag.GetCBOR(ctx, g, ref, &d)
	return &d, errors.Wrapf(err, "loading directory %s", ref.Short())
}

// Empty stores an empty directory node and returns its ref.
func Empty(ctx context.Context, s sitedag.Store) (sitedag.Ref, error) {
	ref, _, err := sitedag.PutCBOR(ctx, s, &Dir{})
	return ref, errors.Wrap(err, "storing empty directory")
}

// Ref computes the ref d would have when stored.
func (d *Dir) Ref() (sitedag.Ref, error) {
	return sitedag.CBORRef(d)
}

// Size is the cumulative size of everything under d.
func (d *Dir) Size() uint64 {
	var total uint64
	for _, e := range d.Entries {
		total += e.Size
	}
	return total
}

// Lookup finds the entry with the given name, or nil.
func (d *Dir) Lookup(name string) *Entry {
	i := sort.Search(len(d.Entries), func(i int) bool {
		return d.Entries[i].Name >= name
	})
	if i < len(d.Entries) && d.Entries[i].Name == name {
		return d.Entries[i]
	}
	return nil
}

// set replaces or inserts an entry, keeping the name order.
func (d *Dir) set(e *Entry) {
	i := sort.Search(len(d.Entries), func(i int) bool {
		return d.Entries[i].Name >= e.Name
	})
	if i < len(d.Entries) && d.Entries[i].Name == e.Name {
		d.Entries[i] = e
		return
	}
	d.Entries = append(d.Entries, nil)
	copy(d.Entries[i+1:], d.Entries[i:])
	d.Entries[i] = e
}

// remove deletes the entry with the given name.
// It reports whether the entry was present.
func (d *Dir) remove(name string) bool {
	i := sort.Search(len(d.Entries), func(i int) bool {
		return d.Entries[i].Name >= name
	})
	if i >= len(d.Entries) || d.Entries[i].Name != name {
		return false
	}
	copy(d.Entries[i:], d.Entries[i+1:])
	d.Entries[len(d.Entries)-1] = nil
	d.Entries = d.Entries[:len(d.Entries)-1]
	return true
}
