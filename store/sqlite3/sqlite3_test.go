package sqlite3

import (
	"context"
	"database/sql"
	"math/rand"
	"os"
	"testing"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	data := make([]byte, 50000)
	rand.New(rand.NewSource(42)).Read(data)

	err := withTestStore(ctx, func(s *Store) error {
		testutil.ReadWrite(ctx, t, s, data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllRefs(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.AllRefs(ctx, t, func() sitedag.Store {
			// AllRefs wants an empty store per iteration.
			_, err := s.db.ExecContext(ctx, `DELETE FROM blobs`)
			if err != nil {
				t.Fatal(err)
			}
			return s
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStates(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.States(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func withTestStore(ctx context.Context, fn func(*Store) error) error {
	f, err := os.CreateTemp("", "sitedagsqlite3test")
	if err != nil {
		return err
	}

	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	db, err := sql.Open("sqlite3", tmpfile)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := New(ctx, db)
	if err != nil {
		return err
	}

	return fn(s)
}
