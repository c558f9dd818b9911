package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/split"
)

// ReadWrite permits testing a Store implementation
// by split-writing some data to it,
// then reading it back out to make sure it's the same.
func ReadWrite(ctx context.Context, t *testing.T, store sitedag.Store, data []byte) {
	ref, size, err := split.Write(ctx, store, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if size != uint64(len(data)) {
		t.Errorf("got size %d, want %d", size, len(data))
	}

	got, err := split.ReadAll(ctx, store, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want %d, and they differ", len(got), len(data))
	}
}
