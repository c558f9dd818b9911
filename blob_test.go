package sitedag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/store/mem"
)

func TestRef(t *testing.T) {
	b := sitedag.Blob("some content")
	ref := b.Ref()
	if ref.IsZero() {
		t.Fatal("content hashed to the zero ref")
	}

	got, err := sitedag.RefFromHex(ref.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != ref {
		t.Errorf("hex round trip produced %s, want %s", got, ref)
	}

	_, err = sitedag.RefFromHex("abc")
	if err == nil {
		t.Error("short hex string unexpectedly accepted")
	}
	_, err = sitedag.RefFromBytes([]byte{1, 2, 3})
	if err == nil {
		t.Error("short byte slice unexpectedly accepted")
	}
}

func TestRefCBOR(t *testing.T) {
	ref := sitedag.Blob("some content").Ref()

	enc, err := sitedag.Marshal(ref)
	if err != nil {
		t.Fatal(err)
	}
	var got sitedag.Ref
	err = sitedag.Unmarshal(enc, &got)
	if err != nil {
		t.Fatal(err)
	}
	if got != ref {
		t.Errorf("CBOR round trip produced %s, want %s", got, ref)
	}
}

func TestHas(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	ref, added, err := s.Put(ctx, sitedag.Blob("present"))
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatal("first put did not add")
	}

	ok, err := sitedag.Has(ctx, s, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("stored blob not found")
	}

	ok, err = sitedag.Has(ctx, s, sitedag.Blob("absent").Ref())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing blob reported present")
	}
}

func TestGetMulti(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	blobs := []sitedag.Blob{
		sitedag.Blob("one"),
		sitedag.Blob("two"),
		sitedag.Blob("three"),
	}
	var refs []sitedag.Ref
	for _, b := range blobs {
		ref, _, err := s.Put(ctx, b)
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}

	got, err := sitedag.GetMulti(ctx, s, refs)
	if err != nil {
		t.Fatal(err)
	}
	want := make(map[sitedag.Ref]sitedag.Blob)
	for i, b := range blobs {
		want[refs[i]] = b
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err = sitedag.GetMulti(ctx, s, []sitedag.Ref{sitedag.Blob("absent").Ref()})
	if !errors.Is(err, sitedag.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
