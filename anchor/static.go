package anchor

import (
	"context"

	"github.com/pkg/errors"
)

var _ Client = StaticClient{}

// StaticClient is a Client that answers from a fixed set of receipts,
// keyed by transaction id. It serves offline verification from receipts
// exported ahead of time, and tests.
type StaticClient map[string]*Receipt

// TransactionReceipt implements Client.
func (c StaticClient) TransactionReceipt(_ context.Context, tx string) (*Receipt, error) {
	r, ok := c[tx]
	if !ok {
		return nil, errors.Errorf("no receipt for transaction %s", tx)
	}
	return r, nil
}
