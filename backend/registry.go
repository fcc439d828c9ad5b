// Package backend is a registry of destination backend types.
// Implementations register a Factory under a type name in an init function,
// and configuration refers to them by that name.
package backend

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// Factory creates a Backend from its configuration.
// The configuration is a JSON object decoded into a map,
// including the "type" key that selected the factory.
type Factory func(context.Context, map[string]interface{}) (docsync.Backend, error)

var registry = make(map[string]Factory)

func Register(key string, f Factory) {
	registry[key] = f
}

// Create looks up the factory registered as key and calls it.
func Create(ctx context.Context, key string, conf map[string]interface{}) (docsync.Backend, error) {
	f, ok := registry[key]
	if !ok {
		return nil, docsync.ConfigErrorf("type", "unknown backend type %q, want one of %v", key, Types())
	}
	b, err := f(ctx, conf)
	return b, errors.Wrapf(err, "creating %s backend", key)
}

// FromConfig is Create with the key taken from the "type" entry of conf.
func FromConfig(ctx context.Context, conf map[string]interface{}) (docsync.Backend, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, &docsync.ConfigError{Field: "type", Msg: "missing backend type"}
	}
	return Create(ctx, typ, conf)
}

// Types lists the registered backend types.
func Types() []string {
	var out []string
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String fetches an optional string parameter from conf.
func String(conf map[string]interface{}, key string) (string, error) {
	v, ok := conf[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &docsync.ConfigError{Field: key, Msg: "must be a string"}
	}
	return s, nil
}

// Int fetches an optional integer parameter from conf,
// returning def if it is absent.
// Numbers may arrive as json.Number (when decoded with UseNumber), float64, or int.
func Int(conf map[string]interface{}, key string, def int) (int, error) {
	v, ok := conf[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, &docsync.ConfigError{Field: key, Msg: "must be an integer"}
		}
		return int(n), nil
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0, &docsync.ConfigError{Field: key, Msg: err.Error()}
		}
		return int(i), nil
	}
	return 0, &docsync.ConfigError{Field: key, Msg: "must be an integer"}
}
