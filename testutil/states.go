package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/stage"
)

// States exercises a StateStore implementation:
// missing records report not-found, saves replace by name,
// and records round-trip intact.
func States(ctx context.Context, t *testing.T, states stage.StateStore) {
	_, err := states.LoadState(ctx, "absent")
	if !errors.Is(err, sitedag.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	want := &stage.State{
		Name:      "pages",
		Persisted: sitedag.Ref{0x1a},
		Change:    sitedag.Ref{0x1b},
	}
	err = states.SaveState(ctx, want)
	if err != nil {
		t.Fatal(err)
	}

	got, err := states.LoadState(ctx, "pages")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	want.Change = sitedag.Ref{0x2}
	err = states.SaveState(ctx, want)
	if err != nil {
		t.Fatal(err)
	}

	got, err = states.LoadState(ctx, "pages")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch after replace (-want +got):\n%s", diff)
	}
}
