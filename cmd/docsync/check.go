package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// check validates the source directories and every target,
// connecting to remote targets once.
// For each pair it reports whether the root's folder is present on the target yet.
func (c maincmd) check(ctx context.Context, _ []string) error {
	provider, err := c.conf.provider()
	if err != nil {
		return err
	}
	roots, err := provider.Roots(ctx)
	if err != nil {
		return err
	}

	backends, err := c.conf.backends(ctx)
	if err != nil {
		return err
	}
	defer closeAll(backends)

	var failed int
	for _, b := range backends {
		for _, root := range roots {
			t := docsync.Target{Backend: b, RelPath: root.Name()}
			ok, err := t.Exists(ctx)
			if err != nil {
				fmt.Fprintf(c.out, "%s: %s\n", t, err)
				failed++
				break
			}
			if ok {
				fmt.Fprintf(c.out, "%s: present\n", t)
			} else {
				fmt.Fprintf(c.out, "%s: not yet synced\n", t)
			}
		}
	}
	if failed > 0 {
		return errors.Wrapf(docsync.ErrRemoteUnreachable, "%d of %d targets failed", failed, len(backends))
	}
	return nil
}
