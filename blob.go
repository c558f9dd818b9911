package sitedag

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

type (
	// Blob is the type of a blob.
	Blob []byte

	// Ref is the ref of a blob: its sha2-256 hash.
	Ref [sha256.Size]byte
)

// Ref computes the Ref of a blob.
func (b Blob) Ref() Ref {
	return sha256.Sum256(b)
}

// Zero is the zero value of a Ref.
// No blob hashes to it; it serves as an "unset" sentinel.
var Zero Ref

// IsZero tells whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r == Zero
}

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// Short is an abbreviated form of a ref for log and error messages.
func (r Ref) Short() string {
	return hex.EncodeToString(r[:4])
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// FromHex parses the given hex string into r.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.Errorf("ref hex string has length %d, want %d", len(s), 2*sha256.Size)
	}
	_, err := hex.Decode(r[:], []byte(s))
	return err
}

// RefFromBytes produces a Ref from a byte slice.
// The slice must have the right length.
func RefFromBytes(b []byte) (Ref, error) {
	var out Ref
	if len(b) != len(out) {
		return Zero, errors.Errorf("ref has length %d, want %d", len(b), len(out))
	}
	copy(out[:], b)
	return out, nil
}

// RefFromHex produces a Ref from a hex string.
func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}

// MarshalCBOR encodes the ref as a CBOR byte string.
func (r Ref) MarshalCBOR() ([]byte, error) {
	return Marshal(r[:])
}

// UnmarshalCBOR decodes a CBOR byte string into the ref.
func (r *Ref) UnmarshalCBOR(inp []byte) error {
	var b []byte
	err := Unmarshal(inp, &b)
	if err != nil {
		return err
	}
	got, err := RefFromBytes(b)
	if err != nil {
		return err
	}
	*r = got
	return nil
}
