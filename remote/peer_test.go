package remote

import (
	"context"
	"testing"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/store/mem"
	"github.com/sitedag/sitedag/tree"
)

func TestUploadArchive(t *testing.T) {
	var (
		ctx  = context.Background()
		peer = NewStorePeer(mem.New())
		s    = mem.New()
	)

	_, err := peer.UploadArchive(ctx, &Archive{})
	if err == nil {
		t.Error("rootless archive unexpectedly accepted")
	}

	root, err := tree.Empty(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	root, err = tree.AddFile(ctx, s, root, "f", []byte("content"))
	if err != nil {
		t.Fatal(err)
	}

	// An archive that does not include its own root block is rejected.
	_, err = peer.UploadArchive(ctx, &Archive{Roots: []sitedag.Ref{root}})
	if err == nil {
		t.Error("archive missing its root block unexpectedly accepted")
	}

	var blocks []sitedag.Blob
	err = tree.Walk(ctx, s, root, func(ref sitedag.Ref) (bool, error) {
		b, err := s.Get(ctx, ref)
		if err != nil {
			return false, err
		}
		blocks = append(blocks, b)
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := peer.UploadArchive(ctx, &Archive{Roots: []sitedag.Ref{root}, Blocks: blocks})
	if err != nil {
		t.Fatal(err)
	}
	if got != root {
		t.Errorf("peer computed root %s, want %s", got.Short(), root.Short())
	}

	// The peer can now serve any block of the version.
	b, err := peer.FetchBlock(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if sitedag.Blob(b).Ref() != root {
		t.Error("fetched root block does not hash to its ref")
	}
}

func TestDownloadArchiveChain(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)
	peer := NewStorePeer(s)

	// Two versions, the second embedding the first under _prev/0.
	v1, err := tree.Empty(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	v1, err = tree.AddFile(ctx, s, v1, "f", []byte("version one"))
	if err != nil {
		t.Fatal(err)
	}

	v2, err := tree.AddFile(ctx, s, v1, "f", []byte("version two"))
	if err != nil {
		t.Fatal(err)
	}
	v2, err = tree.Mkdir(ctx, s, v2, "_prev")
	if err != nil {
		t.Fatal(err)
	}
	d, err := tree.Load(ctx, s, v1)
	if err != nil {
		t.Fatal(err)
	}
	v2, err = tree.SetEntry(ctx, s, v2, "_prev/0", &tree.Entry{Ref: v1, Size: d.Size(), Dir: true})
	if err != nil {
		t.Fatal(err)
	}

	peer.SetMeta(v2, VersionMeta{Tx: "tx2"})

	a, err := peer.DownloadArchive(ctx, v2)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Roots) != 2 || a.Roots[0] != v2 || a.Roots[1] != v1 {
		t.Errorf("got roots %v, want [%s %s]", a.Roots, v2.Short(), v1.Short())
	}
	if a.Meta[v2].Tx != "tx2" {
		t.Errorf("got meta %+v", a.Meta)
	}

	// Every block of both versions is bundled.
	bundled := make(map[sitedag.Ref]bool)
	for _, b := range a.Blocks {
		bundled[b.Ref()] = true
	}
	for _, root := range []sitedag.Ref{v2, v1} {
		err = tree.Walk(ctx, s, root, func(ref sitedag.Ref) (bool, error) {
			if !bundled[ref] {
				t.Errorf("block %s not bundled", ref.Short())
			}
			return true, nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}
