package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/anchor"
	"github.com/sitedag/sitedag/remote"
	"github.com/sitedag/sitedag/repo"
	"github.com/sitedag/sitedag/stage"
	"github.com/sitedag/sitedag/store/mem"
)

const siteName = "example.site"

// publishChain commits n versions through a repo backed by peer,
// anchoring each with a synthetic transaction and receipt.
// It returns the version roots oldest first and the receipts by tx.
func publishChain(ctx context.Context, t *testing.T, peer *remote.StorePeer, n int) ([]sitedag.Ref, anchor.StaticClient) {
	t.Helper()

	r := repo.New(repo.Config{
		Store:    mem.New(),
		States:   stage.NewMemStates(),
		Resolver: peer,
	})
	_, err := r.Init(ctx, "example")
	if err != nil {
		t.Fatal(err)
	}

	var (
		roots  []sitedag.Ref
		client = make(anchor.StaticClient)
	)
	for i := 0; i < n; i++ {
		err = r.Pages().Add(ctx, fmt.Sprintf("page%d.md", i), []byte(fmt.Sprintf("# page %d", i)))
		if err != nil {
			t.Fatal(err)
		}
		commit, err := r.Stage(ctx, siteName, false)
		if err != nil {
			t.Fatal(err)
		}
		err = r.FinalizeCommit(ctx, commit.Root)
		if err != nil {
			t.Fatal(err)
		}

		tx := fmt.Sprintf("tx%d", i)
		client[tx] = makeReceipt(tx, uint64(100+i), siteName, commit.Root)
		peer.SetMeta(commit.Root, remote.VersionMeta{Tx: tx})
		roots = append(roots, commit.Root)
	}
	return roots, client
}

func makeReceipt(tx string, block uint64, name string, root sitedag.Ref) *anchor.Receipt {
	node := anchor.NameHash(name)
	return &anchor.Receipt{
		Tx:          tx,
		Status:      anchor.StatusOK,
		BlockNumber: block,
		Logs: []anchor.Log{{
			Address: "0xresolver",
			Topics:  [][]byte{anchor.ContenthashChangedTopic, node[:]},
			Data:    anchor.EncodeContenthash(root),
		}},
	}
}

func TestVerifiedLineage(t *testing.T) {
	var (
		ctx  = context.Background()
		peer = remote.NewStorePeer(mem.New())
	)
	roots, client := publishChain(ctx, t, peer, 3)

	archive, err := peer.DownloadArchive(ctx, roots[2])
	if err != nil {
		t.Fatal(err)
	}

	entries, err := Get(ctx, client, archive, siteName)
	if err != nil {
		t.Fatal(err)
	}

	// Three anchored versions plus the unanchored initial one,
	// newest first.
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	for i := 0; i < 3; i++ {
		want := roots[2-i]
		if entries[i].Ref != want {
			t.Errorf("entry %d is %s, want %s", i, entries[i].Ref.Short(), want.Short())
		}
		if !entries[i].Confirmed {
			t.Errorf("entry %d unexpectedly unconfirmed", i)
		}
		if entries[i].SiteName != "example" {
			t.Errorf("entry %d has site name %q", i, entries[i].SiteName)
		}
	}
	last := entries[3]
	if last.Confirmed {
		t.Error("initial version unexpectedly confirmed")
	}
	if len(last.Parents) != 0 {
		t.Errorf("initial version has parents %v", last.Parents)
	}
}

func TestRejectsWrongRoot(t *testing.T) {
	var (
		ctx  = context.Background()
		peer = remote.NewStorePeer(mem.New())
	)
	roots, client := publishChain(ctx, t, peer, 2)

	// Repoint the newest version's receipt at the older root.
	client["tx1"] = makeReceipt("tx1", 101, siteName, roots[0])

	archive, err := peer.DownloadArchive(ctx, roots[1])
	if err != nil {
		t.Fatal(err)
	}
	_, err = Get(ctx, client, archive, siteName)
	if err == nil {
		t.Fatal("tampered receipt passed verification")
	}
}

func TestRejectsWrongName(t *testing.T) {
	var (
		ctx  = context.Background()
		peer = remote.NewStorePeer(mem.New())
	)
	roots, client := publishChain(ctx, t, peer, 1)

	client["tx0"] = makeReceipt("tx0", 100, "other.site", roots[0])

	archive, err := peer.DownloadArchive(ctx, roots[0])
	if err != nil {
		t.Fatal(err)
	}
	_, err = Get(ctx, client, archive, siteName)
	if err == nil {
		t.Fatal("receipt for a different name passed verification")
	}
}

func TestRejectsFailedTransaction(t *testing.T) {
	var (
		ctx  = context.Background()
		peer = remote.NewStorePeer(mem.New())
	)
	roots, client := publishChain(ctx, t, peer, 1)

	client["tx0"].Status = 0

	archive, err := peer.DownloadArchive(ctx, roots[0])
	if err != nil {
		t.Fatal(err)
	}
	_, err = Get(ctx, client, archive, siteName)
	if err == nil {
		t.Fatal("failed transaction passed verification")
	}
}

func TestMissingReceipt(t *testing.T) {
	var (
		ctx  = context.Background()
		peer = remote.NewStorePeer(mem.New())
	)
	roots, _ := publishChain(ctx, t, peer, 1)

	archive, err := peer.DownloadArchive(ctx, roots[0])
	if err != nil {
		t.Fatal(err)
	}
	_, err = Get(ctx, make(anchor.StaticClient), archive, siteName)
	if err == nil {
		t.Fatal("version with an unfetchable receipt passed verification")
	}
}
