// Package logging implements a backend that delegates everything to a nested backend,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/backend"
)

var (
	_ docsync.Backend = &Backend{}
	_ docsync.Cycler  = &Backend{}
)

type Backend struct {
	b docsync.Backend
}

func New(b docsync.Backend) *Backend {
	return &Backend{b: b}
}

func (b *Backend) Name() string {
	return b.b.Name()
}

func (b *Backend) Exists(ctx context.Context, rel string) (bool, error) {
	ok, err := b.b.Exists(ctx, rel)
	if err != nil {
		log.Printf("ERROR %s: Exists %s: %s", b.Name(), rel, err)
	} else {
		log.Printf("%s: Exists %s: %v", b.Name(), rel, ok)
	}
	return ok, err
}

func (b *Backend) Fingerprint(ctx context.Context, rel string) (docsync.Ref, error) {
	ref, err := b.b.Fingerprint(ctx, rel)
	switch {
	case errors.Is(err, docsync.ErrNotFound):
		log.Printf("%s: Fingerprint %s: not found", b.Name(), rel)
	case err != nil:
		log.Printf("ERROR %s: Fingerprint %s: %s", b.Name(), rel, err)
	default:
		log.Printf("%s: Fingerprint %s: %s", b.Name(), rel, ref)
	}
	return ref, err
}

func (b *Backend) MaterializeParents(ctx context.Context, rel string) error {
	err := b.b.MaterializeParents(ctx, rel)
	if err != nil {
		log.Printf("ERROR %s: MaterializeParents %s: %s", b.Name(), rel, err)
	} else {
		log.Printf("%s: MaterializeParents %s", b.Name(), rel)
	}
	return err
}

func (b *Backend) Receive(ctx context.Context, rel string, src docsync.Source) error {
	err := b.b.Receive(ctx, rel, src)
	if err != nil {
		log.Printf("ERROR %s: Receive %s from %s: %s", b.Name(), rel, src.Path(), err)
	} else {
		log.Printf("%s: Receive %s from %s", b.Name(), rel, src.Path())
	}
	return err
}

// BeginCycle passes the start of a cycle to the nested backend,
// if it wants to know.
func (b *Backend) BeginCycle() {
	if c, ok := b.b.(docsync.Cycler); ok {
		c.BeginCycle()
	}
	log.Printf("%s: BeginCycle", b.Name())
}

func (b *Backend) Close() error {
	err := b.b.Close()
	if err != nil {
		log.Printf("ERROR %s: Close: %s", b.Name(), err)
	} else {
		log.Printf("%s: Close", b.Name())
	}
	return err
}

func init() {
	backend.Register("logging", func(ctx context.Context, conf map[string]interface{}) (docsync.Backend, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, &docsync.ConfigError{Field: "nested", Msg: `missing "nested" parameter`}
		}
		nestedBackend, err := backend.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested backend")
		}
		return New(nestedBackend), nil
	})
}
