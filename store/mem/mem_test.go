package mem

import (
	"context"
	"math/rand"
	"testing"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	data := make([]byte, 50000)
	rand.New(rand.NewSource(42)).Read(data)

	testutil.ReadWrite(ctx, t, New(), data)
}

func TestAllRefs(t *testing.T) {
	ctx := context.Background()
	testutil.AllRefs(ctx, t, func() sitedag.Store { return New() })
}
