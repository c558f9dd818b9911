package split

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/store/mem"
)

func testData(n int) []byte {
	rng := rand.New(rand.NewSource(17))
	data := make([]byte, n)
	rng.Read(data)
	return data
}

func TestWriteRead(t *testing.T) {
	var (
		ctx  = context.Background()
		s    = mem.New()
		data = testData(40000)
	)

	ref, size, err := WriteBytes(ctx, s, data)
	if err != nil {
		t.Fatal(err)
	}
	if size != uint64(len(data)) {
		t.Errorf("got size %d, want %d", size, len(data))
	}

	got, err := ReadAll(ctx, s, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want %d, and they differ", len(got), len(data))
	}
}

func TestWriteEmpty(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	ref, size, err := WriteBytes(ctx, s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if size != 0 {
		t.Errorf("got size %d, want 0", size)
	}
	if ref.IsZero() {
		t.Error("empty content produced the zero ref")
	}

	got, err := ReadAll(ctx, s, ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes, want 0", len(got))
	}
}

// An edit near the end of the content must leave the refs of earlier
// chunks intact.
func TestEditLocality(t *testing.T) {
	var (
		ctx  = context.Background()
		s    = mem.New()
		data = testData(200000)
	)

	ref1, _, err := WriteBytes(ctx, s, data)
	if err != nil {
		t.Fatal(err)
	}

	edited := append([]byte{}, data...)
	edited[len(edited)-1] ^= 0xff
	ref2, _, err := WriteBytes(ctx, s, edited)
	if err != nil {
		t.Fatal(err)
	}
	if ref1 == ref2 {
		t.Fatal("edit did not change the root ref")
	}

	refs := func(root sitedag.Ref) map[sitedag.Ref]bool {
		out := make(map[sitedag.Ref]bool)
		err := Walk(ctx, s, root, func(ref sitedag.Ref) (bool, error) {
			out[ref] = true
			return true, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	var (
		before = refs(ref1)
		after  = refs(ref2)
		shared int
	)
	for ref := range after {
		if before[ref] {
			shared++
		}
	}
	if shared == 0 {
		t.Errorf("no refs shared between original and edited content (%d vs %d)", len(before), len(after))
	}
}

// Stored nodes must carry the byte size of the content under them,
// and be either a leaf (chunk refs) or an interior node (child refs),
// never both.
func TestStoredNodes(t *testing.T) {
	var (
		ctx  = context.Background()
		s    = mem.New()
		data = testData(300000)
	)

	ref, _, err := WriteBytes(ctx, s, data)
	if err != nil {
		t.Fatal(err)
	}

	var root Node
	err = sitedag.GetCBOR(ctx, s, ref, &root)
	if err != nil {
		t.Fatal(err)
	}
	if root.Size != uint64(len(data)) {
		t.Errorf("root node has size %d, want %d", root.Size, len(data))
	}

	var check func(n *Node)
	check = func(n *Node) {
		if len(n.Leaves) > 0 && len(n.Nodes) > 0 {
			t.Error("node has both chunk refs and child refs")
		}
		if len(n.Leaves) == 0 && len(n.Nodes) == 0 {
			t.Error("node has neither chunk refs nor child refs")
		}
		var total uint64
		for _, leaf := range n.Leaves {
			b, err := s.Get(ctx, leaf)
			if err != nil {
				t.Fatalf("chunk %s not in store: %s", leaf.Short(), err)
			}
			total += uint64(len(b))
		}
		for _, childRef := range n.Nodes {
			var child Node
			if err := sitedag.GetCBOR(ctx, s, childRef, &child); err != nil {
				t.Fatal(err)
			}
			check(&child)
			total += child.Size
		}
		if n.Size != total {
			t.Errorf("node has size %d, children total %d", n.Size, total)
		}
	}
	check(&root)
}

func TestWalkVisitsRoot(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	ref, _, err := WriteBytes(ctx, s, testData(5000))
	if err != nil {
		t.Fatal(err)
	}

	var visited []sitedag.Ref
	err = Walk(ctx, s, ref, func(r sitedag.Ref) (bool, error) {
		visited = append(visited, r)
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(visited) == 0 || visited[0] != ref {
		t.Errorf("walk did not visit the root first")
	}
	for _, r := range visited {
		if _, err := s.Get(ctx, r); err != nil {
			t.Errorf("walked ref %s not in store: %s", r.Short(), err)
		}
	}
}
