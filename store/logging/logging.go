// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/store"
)

var _ sitedag.Store = &Store{}

type Store struct {
	s sitedag.Store
}

func New(s sitedag.Store) *Store {
	return &Store{s: s}
}

func (s *Store) Get(ctx context.Context, ref sitedag.Ref) (sitedag.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		log.Printf("ERROR Get %s: %s", ref, err)
	} else {
		log.Printf("Get %s", ref)
	}
	return b, err
}

func (s *Store) Put(ctx context.Context, b sitedag.Blob) (sitedag.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		log.Printf("ERROR in Put: %s", err)
	} else {
		log.Printf("Put %s, added=%v", ref, added)
	}
	return ref, added, err
}

func (s *Store) ListRefs(ctx context.Context, start sitedag.Ref, f func(sitedag.Ref) error) error {
	log.Printf("ListRefs, start=%s", start)
	return s.s.ListRefs(ctx, start, func(ref sitedag.Ref) error {
		err := f(ref)
		if err != nil {
			log.Printf("  ERROR in ListRefs: %s: %s", ref, err)
		} else {
			log.Printf("  ListRefs: %s", ref)
		}
		return err
	})
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (sitedag.Store, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore), nil
	})
}
