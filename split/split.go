// Package split implements reading and writing of hashsplit trees in a blob store.
// See github.com/bobg/hashsplit for more information.
//
// File content is chunked with a rolling hash, each chunk stored as its own
// blob, and the chunks assembled into a tree of Node blobs. Editing part of
// a file changes only the chunks it touches (plus the node path above them),
// so most of an edited file's blobs keep their refs.
package split

import (
	"bytes"
	"context"
	"io"

	"github.com/bobg/hashsplit"
	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
)

// Node is one interior or leaf node of a hashsplit tree.
// A leaf node lists chunk refs in Leaves;
// an interior node lists child Node refs in Nodes.
// Size is the total byte size of the content under the node.
type Node struct {
	Size   uint64        `cbor:"1,keyasint"`
	Leaves []sitedag.Ref `cbor:"2,keyasint,omitempty"`
	Nodes  []sitedag.Ref `cbor:"3,keyasint,omitempty"`
}

const fanout = 4

// Write splits the content of r with a hashsplit.Splitter,
// writing the chunks to s as separate blobs and assembling them into a tree.
// It returns the ref of the tree's root Node and the total content size.
func Write(ctx context.Context, s sitedag.Store, r io.Reader) (sitedag.Ref, uint64, error) {
	var (
		tb   hashsplit.TreeBuilder
		size uint64
	)
	spl := hashsplit.NewSplitter(func(chunk []byte, level uint) error {
		size += uint64(len(chunk))
		return tb.Add(chunk, level/fanout)
	})
	spl.MinSize = 1024
	spl.SplitBits = 14

	_, err := io.Copy(spl, r)
	if err != nil {
		return sitedag.Zero, 0, errors.Wrap(err, "splitting input")
	}
	err = spl.Close()
	if err != nil {
		return sitedag.Zero, 0, errors.Wrap(err, "closing splitter")
	}

	root, err := tb.Root()
	if err != nil {
		return sitedag.Zero, 0, errors.Wrap(err, "building split tree")
	}
	if root == nil {
		// Empty input: a leaf node over a single empty chunk.
		ref, _, err := s.Put(ctx, sitedag.Blob{})
		if err != nil {
			return sitedag.Zero, 0, errors.Wrap(err, "storing empty chunk")
		}
		rootRef, _, err := sitedag.PutCBOR(ctx, s, &Node{Leaves: []sitedag.Ref{ref}})
		return rootRef, 0, errors.Wrap(err, "storing empty tree root")
	}

	rootRef, err := storeTree(ctx, s, root.(*hashsplit.TreeBuilderNode))
	return rootRef, size, err
}

// WriteBytes is Write over an in-memory byte slice.
func WriteBytes(ctx context.Context, s sitedag.Store, b []byte) (sitedag.Ref, uint64, error) {
	return Write(ctx, s, bytes.NewReader(b))
}

// storeTree stores the hashsplit tree rooted at n.
// With no transform function on the TreeBuilder, every node in the tree is
// a *TreeBuilderNode: leaves carry raw chunks, interior nodes carry Nodes.
func storeTree(ctx context.Context, s sitedag.Store, n *hashsplit.TreeBuilderNode) (sitedag.Ref, error) {
	node := &Node{Size: n.Size()}
	if len(n.Chunks) > 0 {
		for _, chunk := range n.Chunks {
			ref, _, err := s.Put(ctx, chunk)
			if err != nil {
				return sitedag.Zero, errors.Wrap(err, "writing split chunk to store")
			}
			node.Leaves = append(node.Leaves, ref)
		}
	} else {
		for _, child := range n.Nodes {
			childRef, err := storeTree(ctx, s, child.(*hashsplit.TreeBuilderNode))
			if err != nil {
				return sitedag.Zero, err
			}
			node.Nodes = append(node.Nodes, childRef)
		}
	}
	ref, _, err := sitedag.PutCBOR(ctx, s, node)
	return ref, errors.Wrap(err, "storing tree node")
}

// Read reassembles the content of the hashsplit tree rooted at ref,
// writing it to w.
func Read(ctx context.Context, g sitedag.Getter, ref sitedag.Ref, w io.Writer) error {
	var node Node
	err := sitedag.GetCBOR(ctx, g, ref, &node)
	if err != nil {
		return errors.Wrapf(err, "getting tree node %s", ref.Short())
	}
	if len(node.Leaves) > 0 {
		for _, leaf := range node.Leaves {
			chunk, err := g.Get(ctx, leaf)
			if err != nil {
				return errors.Wrapf(err, "getting chunk %s", leaf.Short())
			}
			_, err = w.Write(chunk)
			if err != nil {
				return errors.Wrap(err, "writing chunk")
			}
		}
		return nil
	}
	for _, child := range node.Nodes {
		err = Read(ctx, g, child, w)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadAll is Read into a byte slice.
func ReadAll(ctx context.Context, g sitedag.Getter, ref sitedag.Ref) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := Read(ctx, g, ref, buf)
	return buf.Bytes(), err
}

// Walk calls f for every blob ref reachable from the hashsplit tree rooted
// at ref, including ref itself, interior nodes, and leaf chunks.
// The callback's boolean result tells whether to descend below the given
// ref; it is ignored for leaf chunks.
// If f returns an error, Walk exits with that error.
func Walk(ctx context.Context, g sitedag.Getter, ref sitedag.Ref, f func(sitedag.Ref) (bool, error)) error {
	descend, err := f(ref)
	if err != nil || !descend {
		return err
	}
	var node Node
	err = sitedag.GetCBOR(ctx, g, ref, &node)
	if err != nil {
		return errors.Wrapf(err, "getting tree node %s", ref.Short())
	}
	for _, leaf := range node.Leaves {
		_, err = f(leaf)
		if err != nil {
			return err
		}
	}
	for _, child := range node.Nodes {
		err = Walk(ctx, g, child, f)
		if err != nil {
			return err
		}
	}
	return nil
}
