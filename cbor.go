package sitedag

import (
	"context"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Structured blobs (directory nodes, file-chunk nodes, settings documents,
// manifests) are CBOR, encoded in core-deterministic mode so that equal
// values always produce equal bytes and therefore equal refs.

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em

	// Nested maps in untyped documents (settings) must decode as
	// map[string]interface{}, not the codec's default map[interface{}]interface{}.
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into v.
func Unmarshal(b []byte, v interface{}) error {
	return decMode.Unmarshal(b, v)
}

// GetCBOR reads a blob from a blob store and decodes it into v.
func GetCBOR(ctx context.Context, g Getter, ref Ref, v interface{}) error {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return err
	}
	return errors.Wrapf(decMode.Unmarshal(b, v), "decoding blob %s", ref.Short())
}

// PutCBOR encodes v as deterministic CBOR and stores the result.
func PutCBOR(ctx context.Context, s Store, v interface{}) (Ref, bool, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return Zero, false, errors.Wrap(err, "encoding blob")
	}
	return s.Put(ctx, b)
}

// CBORRef computes the ref v would have when stored with PutCBOR,
// without storing anything.
func CBORRef(v interface{}) (Ref, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return Zero, errors.Wrap(err, "encoding blob")
	}
	return Blob(b).Ref(), nil
}
