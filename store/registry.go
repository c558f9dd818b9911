// Package store provides a registry of blob-store types,
// for creating stores from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/sitedag/sitedag"
)

type Factory func(context.Context, map[string]interface{}) (sitedag.Store, error)

var registry = make(map[string]Factory)

func Register(key string, f Factory) {
	registry[key] = f
}

func Create(ctx context.Context, key string, conf map[string]interface{}) (sitedag.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
