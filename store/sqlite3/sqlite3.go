// Package sqlite3 implements a Sqlite-based blob store.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/stage"
	"github.com/sitedag/sitedag/store"
)

var (
	_ sitedag.Store    = &Store{}
	_ stage.StateStore = &Store{}
)

// Store is a Sqlite-based blob store.
// It doubles as a stage.StateStore, keeping staging-tree records in the
// same database as the blobs they refer to.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` and `staging_states` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_states (
  name TEXT PRIMARY KEY NOT NULL,
  persisted_root BLOB NOT NULL,
  change_root BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `blobs` and `staging_states`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref sitedag.Ref) (sitedag.Blob, error) {
	const q = `SELECT data FROM blobs WHERE ref = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, sitedag.ErrNotFound
	}
	return sitedag.Blob(b), errors.Wrapf(err, "querying blob %s", ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b sitedag.Blob) (sitedag.Ref, bool, error) {
	const q = `INSERT INTO blobs (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	ref := b.Ref()
	res, err := s.db.ExecContext(ctx, q, ref[:], []byte(b))
	if err != nil {
		return sitedag.Ref{}, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return sitedag.Ref{}, false, errors.Wrap(err, "counting affected rows")
	}

	return ref, aff > 0, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start sitedag.Ref, f func(sitedag.Ref) error) error {
	const q = `SELECT ref FROM blobs WHERE ref > $1 ORDER BY ref`

	return sqlutil.ForQueryRows(ctx, s.db, q, start[:], func(refbytes []byte) error {
		ref, err := sitedag.RefFromBytes(refbytes)
		if err != nil {
			return err
		}
		return f(ref)
	})
}

// LoadState implements stage.StateStore.
func (s *Store) LoadState(ctx context.Context, name string) (*stage.State, error) {
	const q = `SELECT persisted_root, change_root FROM staging_states WHERE name = $1`

	var persisted, change []byte
	err := s.db.QueryRowContext(ctx, q, name).Scan(&persisted, &change)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, sitedag.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "querying staging state %s", name)
	}

	result := &stage.State{Name: name}
	result.Persisted, err = sitedag.RefFromBytes(persisted)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding persisted root of %s", name)
	}
	result.Change, err = sitedag.RefFromBytes(change)
	return result, errors.Wrapf(err, "decoding change root of %s", name)
}

// SaveState implements stage.StateStore.
func (s *Store) SaveState(ctx context.Context, state *stage.State) error {
	const q = `
		INSERT INTO staging_states (name, persisted_root, change_root) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET persisted_root = $2, change_root = $3`

	_, err := s.db.ExecContext(ctx, q, state.Name, state.Persisted[:], state.Change[:])
	return errors.Wrapf(err, "saving staging state %s", state.Name)
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (sitedag.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
