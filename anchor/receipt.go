package anchor

import (
	"bytes"
	"crypto/sha256"

	"github.com/pkg/errors"
)

// Receipt is the outcome of an anchoring transaction.
type Receipt struct {
	Tx          string
	Status      uint64 // StatusOK on success
	BlockNumber uint64
	Logs        []Log
}

// StatusOK is the Status of a successful transaction.
const StatusOK = 1

// Succeeded tells whether the receipt records a successful transaction.
func (r *Receipt) Succeeded() bool {
	return r.Status == StatusOK
}

// Log is one event emitted by an anchoring transaction.
type Log struct {
	Address string   // emitting resolver
	Topics  [][]byte // Topics[0] identifies the event, Topics[1] the name node
	Data    []byte
}

// ContenthashChangedTopic identifies the registry's
// "content hash changed" event.
var ContenthashChangedTopic = func() []byte {
	h := sha256.Sum256([]byte("ContenthashChanged(bytes32,bytes)"))
	return h[:]
}()

// ContenthashChanged is the decoded form of a "content hash changed" event:
// the registry repointed the name with hash Node at the content Hash.
type ContenthashChanged struct {
	Node [32]byte
	Hash []byte
}

// DecodeContenthashChanged decodes l as a "content hash changed" event.
// The boolean result is false when l is some other event.
func DecodeContenthashChanged(l Log) (*ContenthashChanged, bool, error) {
	if len(l.Topics) == 0 || !bytes.Equal(l.Topics[0], ContenthashChangedTopic) {
		return nil, false, nil
	}
	if len(l.Topics) < 2 || len(l.Topics[1]) != 32 {
		return nil, false, errors.New("content-hash-changed event has malformed name node")
	}
	var ev ContenthashChanged
	copy(ev.Node[:], l.Topics[1])
	ev.Hash = l.Data
	return &ev, true, nil
}
