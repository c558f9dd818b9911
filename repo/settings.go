package repo

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
)

// SettingsFile is the canonical entry of the settings tree:
// a CBOR document of string-keyed site settings.
// Well-known keys: "name" (the site's embedded name), "template" (the
// template version the site was last rendered with), "redirects"
// (path-to-path map), "theme" (stylesheet inputs).
const SettingsFile = "site.cbor"

// SetKey sets a dotted-path key in a settings document,
// creating intermediate maps as needed.
// An empty segment, or a segment that would descend into a non-map value,
// is a validation error naming the offending segment.
func SetKey(doc map[string]interface{}, key string, value interface{}) error {
	segs := strings.Split(key, ".")
	for _, seg := range segs {
		if seg == "" {
			return errors.Errorf("settings key %q has an empty segment", key)
		}
	}
	m := doc
	for _, seg := range segs[:len(segs)-1] {
		switch sub := m[seg].(type) {
		case nil:
			next := make(map[string]interface{})
			m[seg] = next
			m = next
		case map[string]interface{}:
			m = sub
		default:
			return errors.Errorf("settings segment %q in key %q is not a map", seg, key)
		}
	}
	m[segs[len(segs)-1]] = value
	return nil
}

// GetKey looks up a dotted-path key in a settings document.
func GetKey(doc map[string]interface{}, key string) (interface{}, bool) {
	var cur interface{} = doc
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SettingsDoc reads the settings document from the settings tree's change
// root. A tree with no settings file yields an empty document.
func (r *Repo) SettingsDoc(ctx context.Context) (map[string]interface{}, error) {
	b, err := r.settings.Read(ctx, SettingsFile)
	if errors.Is(err, sitedag.ErrNotFound) {
		return make(map[string]interface{}), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading settings document")
	}
	return decodeSettings(b)
}

func decodeSettings(b []byte) (map[string]interface{}, error) {
	doc := make(map[string]interface{})
	err := sitedag.Unmarshal(b, &doc)
	return doc, errors.Wrap(err, "decoding settings document")
}

// SetSetting sets one dotted-path key in the settings document and stages
// the updated document in the settings tree.
func (r *Repo) SetSetting(ctx context.Context, key string, value interface{}) error {
	doc, err := r.SettingsDoc(ctx)
	if err != nil {
		return err
	}
	err = SetKey(doc, key, value)
	if err != nil {
		return err
	}
	return r.writeSettings(ctx, doc)
}

func (r *Repo) writeSettings(ctx context.Context, doc map[string]interface{}) error {
	b, err := sitedag.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encoding settings document")
	}
	return errors.Wrap(r.settings.Add(ctx, SettingsFile, b), "staging settings document")
}
