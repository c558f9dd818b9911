package anchor

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/sitedag/sitedag"
)

func TestContenthashRoundTrip(t *testing.T) {
	ref := sitedag.Blob("some site root").Ref()

	enc := EncodeContenthash(ref)
	if len(enc) != 2+len(ref) {
		t.Fatalf("encoded contenthash has length %d", len(enc))
	}

	got, err := DecodeContenthash(enc)
	if err != nil {
		t.Fatal(err)
	}
	if got != ref {
		t.Errorf("got %s, want %s", got, ref)
	}

	_, err = DecodeContenthash([]byte{0x00, 0x01, 0x02})
	if err == nil {
		t.Error("decoding a bad prefix unexpectedly succeeded")
	}
}

func TestNameHash(t *testing.T) {
	if NameHash("") != ([32]byte{}) {
		t.Error("empty name must hash to the zero node")
	}

	// Folding is right to left, one label at a time.
	var (
		site  = sha256.Sum256([]byte("site"))
		label = sha256.Sum256([]byte("example"))
		node  [32]byte
	)
	node = sha256.Sum256(append(node[:], site[:]...))
	want := sha256.Sum256(append(node[:], label[:]...))

	if got := NameHash("example.site"); got != want {
		t.Errorf("got %x, want %x", got, want)
	}

	if NameHash("a.site") == NameHash("b.site") {
		t.Error("distinct names collide")
	}
}

func TestDecodeContenthashChanged(t *testing.T) {
	var (
		ref  = sitedag.Blob("root").Ref()
		node = NameHash("example.site")
	)

	ev, ok, err := DecodeContenthashChanged(Log{
		Topics: [][]byte{ContenthashChangedTopic, node[:]},
		Data:   EncodeContenthash(ref),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("event not recognized")
	}
	if ev.Node != node {
		t.Error("wrong node")
	}
	if !bytes.Equal(ev.Hash, EncodeContenthash(ref)) {
		t.Error("wrong hash")
	}

	// Some other event: not ours, not an error.
	_, ok, err = DecodeContenthashChanged(Log{Topics: [][]byte{{0x01}}})
	if err != nil || ok {
		t.Errorf("got ok=%v err=%v for a foreign event", ok, err)
	}

	// Our topic with a malformed node is an error.
	_, _, err = DecodeContenthashChanged(Log{Topics: [][]byte{ContenthashChangedTopic, {0x01}}})
	if err == nil {
		t.Error("malformed node unexpectedly accepted")
	}
}
