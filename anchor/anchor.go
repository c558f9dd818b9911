// Package anchor binds site roots to human-readable names through an
// external name-resolution registry.
//
// The registry itself is not implemented here. This package speaks its
// wire vocabulary: the contenthash encoding of a root ref, the
// "content hash changed" event emitted when a name is repointed, and the
// prepared (never submitted) "set content hash" call that a commit
// produces. The history package uses the read side to audit a name's
// lineage; the repo package uses the write side to prepare updates.
package anchor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"strings"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
)

// contenthash prefix identifying a sha2-256 site-tree root.
var contenthashPrefix = []byte{0xe3, 0x01}

// EncodeContenthash produces the registry's contenthash encoding of a root ref.
func EncodeContenthash(ref sitedag.Ref) []byte {
	return append(append([]byte{}, contenthashPrefix...), ref[:]...)
}

// DecodeContenthash recovers a root ref from its contenthash encoding.
func DecodeContenthash(b []byte) (sitedag.Ref, error) {
	if !bytes.HasPrefix(b, contenthashPrefix) {
		return sitedag.Zero, errors.Errorf("contenthash %x has unknown prefix", b)
	}
	return sitedag.RefFromBytes(b[len(contenthashPrefix):])
}

// NameHash computes the registry's hash of a dotted name:
// the labels are hashed right to left, each folded into the accumulated
// hash, so that every name maps to a fixed-size node identifier.
func NameHash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := sha256.Sum256([]byte(labels[i]))
		node = sha256.Sum256(append(node[:], labelHash[:]...))
	}
	return node
}

// Client is read-only access to the anchoring chain.
type Client interface {
	// TransactionReceipt looks up the receipt for a transaction hash.
	TransactionReceipt(ctx context.Context, tx string) (*Receipt, error)
}
