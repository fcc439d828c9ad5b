package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/docsync/docsync/dsync"
)

// lockDur is how long a lock file outlives a run that stopped refreshing it.
const lockDur = time.Minute

func (c maincmd) run(ctx context.Context, lockfile string, _ []string) error {
	if lockfile == "" {
		p, err := xdg.RuntimeFile("docsync/docsync.lock")
		if err != nil {
			return errors.Wrap(err, "locating lock file")
		}
		lockfile = p
	}

	flocker := flock.Locker{
		Lockfile: func(p string) string { return p },
		LockDur:  lockDur,
	}
	if err := flocker.Lock(lockfile); err != nil {
		if errors.Is(err, flock.ErrLocked) {
			return errors.Wrapf(err, "another docsync run holds %s", lockfile)
		}
		return errors.Wrapf(err, "locking %s", lockfile)
	}
	defer flocker.Unlock(lockfile)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(lockDur / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := flocker.Refresh(lockfile); err != nil {
					log.Printf("WARNING refreshing lock %s: %s", lockfile, err)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("got signal %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	provider, err := c.conf.provider()
	if err != nil {
		return err
	}

	backends, err := c.conf.backends(ctx)
	if err != nil {
		return err
	}
	defer closeAll(backends)

	s, err := dsync.New(c.conf.syncConfig(), provider, backends)
	if err != nil {
		return err
	}

	log.Printf("syncing to %d targets every %s", len(backends), c.conf.Interval)
	return s.Run(ctx)
}
