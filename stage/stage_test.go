package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/store/mem"
	"github.com/sitedag/sitedag/tree"
)

func newBound(ctx context.Context, t *testing.T) (*Tree, *mem.Store, *MemStates, sitedag.Ref) {
	t.Helper()

	var (
		s      = mem.New()
		states = NewMemStates()
	)

	root, err := tree.Empty(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	root, err = tree.AddFile(ctx, s, root, "test.txt", []byte("committed content"))
	if err != nil {
		t.Fatal(err)
	}

	tr := New("pages", s, states, nil)
	err = tr.SetRoot(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	return tr, s, states, root
}

func TestEditCycle(t *testing.T) {
	ctx := context.Background()
	tr, _, _, persisted := newBound(ctx, t)

	if tr.HasChanges() {
		t.Fatal("fresh tree reports changes")
	}

	err := tr.Add(ctx, "newfile.txt", []byte("new content"))
	if err != nil {
		t.Fatal(err)
	}
	if !tr.HasChanges() {
		t.Fatal("tree reports no changes after an add")
	}

	items, err := tr.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	statuses := make(map[string]Status)
	for _, item := range items {
		statuses[item.Entry.Name] = item.Status
	}
	want := map[string]Status{"test.txt": StatusNone, "newfile.txt": StatusNew}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}

	changes, err := tr.Changes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantChanges := []Change{{Path: "newfile.txt", Kind: StatusNew}}
	if diff := cmp.Diff(wantChanges, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	newRoot, unchanged, err := tr.Stage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if newRoot == persisted {
		t.Fatal("staged root equals persisted root despite changes")
	}
	testEntry, err := tree.Lookup(ctx, tr.fs(), newRoot, "test.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !unchanged[testEntry.Ref] {
		t.Error("untouched file not in unchanged set")
	}

	err = tr.FinalizeCommit(ctx, newRoot)
	if err != nil {
		t.Fatal(err)
	}
	if tr.HasChanges() {
		t.Error("tree reports changes after finalize")
	}

	items, err = tr.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		if item.Status != StatusNone {
			t.Errorf("%s still annotated %s after finalize", item.Entry.Name, item.Status)
		}
	}
}

func TestStatusAnnotations(t *testing.T) {
	ctx := context.Background()
	tr, _, _, _ := newBound(ctx, t)

	err := tr.Add(ctx, "test.txt", []byte("edited content"))
	if err != nil {
		t.Fatal(err)
	}
	items, err := tr.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != StatusEdit {
		t.Fatalf("got %+v, want one edit item", items)
	}

	err = tr.Remove(ctx, "test.txt")
	if err != nil {
		t.Fatal(err)
	}
	items, err = tr.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != StatusDelete {
		t.Fatalf("got %+v, want one delete item", items)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	tr, _, _, persisted := newBound(ctx, t)

	err := tr.Add(ctx, "test.txt", []byte("edited content"))
	if err != nil {
		t.Fatal(err)
	}
	err = tr.Restore(ctx, "test.txt")
	if err != nil {
		t.Fatal(err)
	}
	if tr.HasChanges() {
		t.Error("tree reports changes after restoring the only edit")
	}
	_, change := tr.Roots()
	if change != persisted {
		t.Errorf("change root %s, want %s", change.Short(), persisted.Short())
	}

	// Restoring a clean path is a no-op.
	err = tr.Restore(ctx, "test.txt")
	if err != nil {
		t.Fatal(err)
	}

	// Restoring a path absent from both roots is a no-op too.
	err = tr.Restore(ctx, "never-existed.txt")
	if err != nil {
		t.Fatal(err)
	}
}

func TestClearChanges(t *testing.T) {
	ctx := context.Background()
	tr, _, _, persisted := newBound(ctx, t)

	err := tr.Add(ctx, "a.txt", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	err = tr.Add(ctx, "test.txt", []byte("edited"))
	if err != nil {
		t.Fatal(err)
	}
	err = tr.ClearChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tr.HasChanges() {
		t.Error("tree reports changes after ClearChanges")
	}
	_, change := tr.Roots()
	if change != persisted {
		t.Errorf("change root %s, want %s", change.Short(), persisted.Short())
	}
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	tr, s, states, persisted := newBound(ctx, t)

	err := tr.Add(ctx, "pending.txt", []byte("pending"))
	if err != nil {
		t.Fatal(err)
	}
	_, wantChange := tr.Roots()

	// A new tree bound to the same persisted root resumes the change root.
	tr2 := New("pages", s, states, nil)
	err = tr2.SetRoot(ctx, persisted)
	if err != nil {
		t.Fatal(err)
	}
	_, gotChange := tr2.Roots()
	if gotChange != wantChange {
		t.Errorf("resumed change root %s, want %s", gotChange.Short(), wantChange.Short())
	}

	// Binding to a different persisted root discards the stale record.
	other, err := tree.Empty(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	tr3 := New("pages", s, states, nil)
	err = tr3.SetRoot(ctx, other)
	if err != nil {
		t.Fatal(err)
	}
	if tr3.HasChanges() {
		t.Error("stale change root survived a root change")
	}
}

func TestAvatar(t *testing.T) {
	ctx := context.Background()
	tr, _, _, _ := newBound(ctx, t)

	err := tr.Add(ctx, AvatarName, []byte("sneaky"))
	if !errors.Is(err, ErrReserved) {
		t.Errorf("got %v, want ErrReserved", err)
	}
	err = tr.Mkdir(ctx, AvatarName+"/sub")
	if !errors.Is(err, ErrReserved) {
		t.Errorf("got %v, want ErrReserved", err)
	}

	err = tr.SetAvatar(ctx, []byte("first"))
	if err != nil {
		t.Fatal(err)
	}
	err = tr.SetAvatar(ctx, []byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := tr.Read(ctx, AvatarName)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("got avatar %q, want %q", got, "second")
	}
}

func TestUnbound(t *testing.T) {
	tr := New("pages", mem.New(), NewMemStates(), nil)
	err := tr.Add(context.Background(), "f", []byte("x"))
	if !errors.Is(err, ErrNotBound) {
		t.Errorf("got %v, want ErrNotBound", err)
	}
}
