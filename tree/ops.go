package tree

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/split"
)

// Sentinel errors for path operations.
// They are wrapped with the offending path when returned.
var (
	ErrParentMissing = errors.New("parent missing")
	ErrExists        = errors.New("path exists")
	ErrNotDir        = errors.New("not a directory")
)

// SplitPath breaks a slash-separated path into segments.
// The empty path and "/" name the root (no segments).
// Empty segments and "."/".." are rejected.
func SplitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if seg == "" || seg == "." || seg == ".." {
			return nil, errors.Errorf("invalid path segment %q in %s", seg, path)
		}
	}
	return segs, nil
}

// Lookup finds the entry at path under root.
// It returns nil (and no error) if no such entry exists.
func Lookup(ctx context.Context, g sitedag.Getter, root sitedag.Ref, path string) (*Entry, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		d, err := Load(ctx, g, root)
		if err != nil {
			return nil, err
		}
		return &Entry{Ref: root, Size: d.Size(), Dir: true}, nil
	}
	ref := root
	for i, seg := range segs {
		d, err := Load(ctx, g, ref)
		if err != nil {
			return nil, err
		}
		e := d.Lookup(seg)
		if e == nil {
			return nil, nil
		}
		if i == len(segs)-1 {
			return e, nil
		}
		if !e.Dir {
			return nil, nil
		}
		ref = e.Ref
	}
	return nil, nil // unreached
}

// List returns the entries of the directory at path under root.
// Listing a missing or non-directory path is an error.
func List(ctx context.Context, g sitedag.Getter, root sitedag.Ref, path string) ([]*Entry, error) {
	e, err := Lookup(ctx, g, root, path)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.Wrap(sitedag.ErrNotFound, path)
	}
	if !e.Dir {
		return nil, errors.Wrap(ErrNotDir, path)
	}
	d, err := Load(ctx, g, e.Ref)
	if err != nil {
		return nil, err
	}
	return d.Entries, nil
}

// SetEntry writes an entry at path under root
// and returns the resulting new root ref.
// Every intermediate path segment must already exist as a directory;
// a missing one fails with ErrParentMissing.
func SetEntry(ctx context.Context, s sitedag.Store, root sitedag.Ref, path string, e *Entry) (sitedag.Ref, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return sitedag.Zero, err
	}
	if len(segs) == 0 {
		return sitedag.Zero, errors.Errorf("cannot set entry at root")
	}
	e.Name = segs[len(segs)-1]
	newRef, _, err := update(ctx, s, root, segs[:len(segs)-1], path, func(d *Dir) error {
		d.set(e)
		return nil
	})
	return newRef, err
}

// Remove deletes the entry at path under root
// and returns the resulting new root ref.
// Removing a missing path fails with sitedag.ErrNotFound.
func Remove(ctx context.Context, s sitedag.Store, root sitedag.Ref, path string) (sitedag.Ref, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return sitedag.Zero, err
	}
	if len(segs) == 0 {
		return sitedag.Zero, errors.Errorf("cannot remove root")
	}
	name := segs[len(segs)-1]
	newRef, _, err := update(ctx, s, root, segs[:len(segs)-1], path, func(d *Dir) error {
		if !d.remove(name) {
			return errors.Wrap(sitedag.ErrNotFound, path)
		}
		return nil
	})
	return newRef, err
}

// Mkdir creates an empty directory at path under root
// and returns the resulting new root ref.
// It fails with ErrExists if anything is already at path:
// there is no silent merging with an existing directory.
func Mkdir(ctx context.Context, s sitedag.Store, root sitedag.Ref, path string) (sitedag.Ref, error) {
	existing, err := Lookup(ctx, s, root, path)
	if err != nil {
		return sitedag.Zero, err
	}
	if existing != nil {
		return sitedag.Zero, errors.Wrap(ErrExists, path)
	}
	emptyRef, err := Empty(ctx, s)
	if err != nil {
		return sitedag.Zero, err
	}
	return SetEntry(ctx, s, root, path, &Entry{Ref: emptyRef, Dir: true})
}

// AddFile splits data into chunks, stores them,
// and writes a file entry at path under root.
// It returns the resulting new root ref.
func AddFile(ctx context.Context, s sitedag.Store, root sitedag.Ref, path string, data []byte) (sitedag.Ref, error) {
	fileRef, size, err := split.WriteBytes(ctx, s, data)
	if err != nil {
		return sitedag.Zero, errors.Wrapf(err, "storing content for %s", path)
	}
	return SetEntry(ctx, s, root, path, &Entry{Ref: fileRef, Size: size})
}

// Copy grafts the subtree (or file) at src into root under path,
// returning the new root ref. The source bytes are shared, not duplicated.
func Copy(ctx context.Context, s sitedag.Store, src *Entry, root sitedag.Ref, path string) (sitedag.Ref, error) {
	cp := *src
	return SetEntry(ctx, s, root, path, &cp)
}

// ReadFile reassembles the content of the file at path under root.
// A missing path fails with sitedag.ErrNotFound.
func ReadFile(ctx context.Context, g sitedag.Getter, root sitedag.Ref, path string) ([]byte, error) {
	e, err := Lookup(ctx, g, root, path)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.Wrap(sitedag.ErrNotFound, path)
	}
	if e.Dir {
		return nil, errors.Wrapf(ErrNotDir, "%s is not a file", path)
	}
	content, err := split.ReadAll(ctx, g, e.Ref)
	return content, errors.Wrapf(err, "reading %s", path)
}

// update rebuilds the node path from root down through dirSegs,
// applying mutate to the directory at the bottom.
// It returns the new ref and cumulative size of the rebuilt node.
func update(ctx context.Context, s sitedag.Store, ref sitedag.Ref, dirSegs []string, fullPath string, mutate func(*Dir) error) (sitedag.Ref, uint64, error) {
	d, err := Load(ctx, s, ref)
	if err != nil {
		return sitedag.Zero, 0, err
	}

	if len(dirSegs) == 0 {
		err = mutate(d)
	} else {
		child := d.Lookup(dirSegs[0])
		if child == nil {
			return sitedag.Zero, 0, errors.Wrap(ErrParentMissing, fullPath)
		}
		if !child.Dir {
			return sitedag.Zero, 0, errors.Wrapf(ErrNotDir, "%s in %s", dirSegs[0], fullPath)
		}
		var (
			newChildRef  sitedag.Ref
			newChildSize uint64
		)
		newChildRef, newChildSize, err = update(ctx, s, child.Ref, dirSegs[1:], fullPath, mutate)
		if err != nil {
			return sitedag.Zero, 0, err
		}
		d.set(&Entry{Name: child.Name, Ref: newChildRef, Size: newChildSize, Dir: true})
	}
	if err != nil {
		return sitedag.Zero, 0, err
	}

	newRef, _, err := sitedag.PutCBOR(ctx, s, d)
	return newRef, d.Size(), errors.Wrapf(err, "storing updated directory for %s", fullPath)
}

// Walk visits every blob ref reachable from root:
// directory nodes, file split-tree nodes, and leaf chunks.
// The callback's boolean result tells whether to descend below the given
// ref. If the callback returns an error, Walk exits with that error.
func Walk(ctx context.Context, g sitedag.Getter, root sitedag.Ref, f func(sitedag.Ref) (bool, error)) error {
	descend, err := f(root)
	if err != nil || !descend {
		return err
	}
	d, err := Load(ctx, g, root)
	if err != nil {
		return err
	}
	for _, e := range d.Entries {
		if e.Dir {
			err = Walk(ctx, g, e.Ref, f)
		} else {
			err = split.Walk(ctx, g, e.Ref, f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
