// Package dsync runs the synchronization loop:
// resolve source roots, scan them, and bring every destination backend up to date,
// over and over.
package dsync

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/catalog"
)

// DefaultInterval is the pause between cycles when none is configured.
const DefaultInterval = 30 * time.Second

// State is the phase of a Syncer.
type State int32

const (
	Idle State = iota
	Scanning
	Diffing
	Transferring
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Diffing:
		return "diffing"
	case Transferring:
		return "transferring"
	case Sleeping:
		return "sleeping"
	}
	return "unknown"
}

// RootProvider resolves the source roots for a cycle.
// It may return some roots along with an error.
type RootProvider interface {
	Roots(context.Context) ([]*catalog.Root, error)
}

// Config controls a Syncer.
type Config struct {
	Filter catalog.Filter

	// Interval is the pause between cycles.
	// Default DefaultInterval.
	Interval time.Duration

	// Watch wakes the Syncer before Interval elapses
	// when something changes in a directory it has scanned.
	Watch bool

	// Verbose logs every file that is already up to date.
	Verbose bool

	// OnCycle, if set, is called with the results of each cycle.
	OnCycle func(Stats)
}

// Stats summarizes one cycle.
type Stats struct {
	Roots       int
	Candidates  int
	Transferred int
	Unchanged   int
	Failed      int

	// Names of the backends abandoned part way through the cycle.
	Skipped []string
}

// Syncer copies candidate files to backends, one cycle at a time.
// It does one thing at a time:
// no two scans, transfers, or backend calls ever overlap.
type Syncer struct {
	cfg      Config
	roots    RootProvider
	backends []docsync.Backend

	state int32
	wake  chan struct{}
	w     *watcher
}

// New produces a Syncer.
// The Syncer does not own the backends; the caller closes them.
func New(cfg Config, roots RootProvider, backends []docsync.Backend) (*Syncer, error) {
	if cfg.Interval < 0 {
		return nil, docsync.ConfigErrorf("refresh_interval_seconds", "must be positive, got %s", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	minDepth, maxDepth := cfg.Filter.MinDepth, cfg.Filter.MaxDepth
	if (minDepth != nil && *minDepth < 0) || (maxDepth != nil && *maxDepth < 0) {
		return nil, docsync.ConfigErrorf("min_depth", "depths must not be negative")
	}
	if minDepth != nil && maxDepth != nil && *minDepth > *maxDepth {
		return nil, docsync.ConfigErrorf("min_depth", "min_depth %d exceeds max_depth %d", *minDepth, *maxDepth)
	}
	if len(backends) == 0 {
		return nil, docsync.ConfigErrorf("targets", "no destination backends")
	}
	return &Syncer{
		cfg:      cfg,
		roots:    roots,
		backends: backends,
		wake:     make(chan struct{}, 1),
	}, nil
}

// State reports what s is doing.
// It is safe to call from any goroutine.
func (s *Syncer) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Syncer) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Wake cuts the current sleep short.
// It is safe to call from any goroutine.
func (s *Syncer) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run runs cycles until ctx is canceled,
// which is not an error.
func (s *Syncer) Run(ctx context.Context) error {
	if s.cfg.Watch {
		w, err := newWatcher()
		if err != nil {
			return errors.Wrap(err, "starting filesystem watcher")
		}
		s.w = w
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.w != nil {
		w := s.w
		g.Go(func() error {
			w.run(ctx, s.Wake)
			return nil
		})
	}

	g.Go(func() error {
		defer s.setState(Idle)
		for {
			s.Cycle(ctx)

			s.setState(Sleeping)
			select {
			case <-ctx.Done():
				log.Print("context canceled, exiting sync loop")
				return nil
			case <-s.wake:
				log.Print("woken early")
			case <-time.After(s.cfg.Interval):
			}
		}
	})

	err := g.Wait()
	s.w = nil
	return err
}

// Cycle runs a single scan-diff-transfer pass.
func (s *Syncer) Cycle(ctx context.Context) Stats {
	var stats Stats
	defer func() {
		log.Printf("cycle done: %d roots, %d candidates, %d transferred, %d unchanged, %d failed, %d backends skipped",
			stats.Roots, stats.Candidates, stats.Transferred, stats.Unchanged, stats.Failed, len(stats.Skipped))
		if s.cfg.OnCycle != nil {
			s.cfg.OnCycle(stats)
		}
	}()

	s.setState(Scanning)

	roots, err := s.roots.Roots(ctx)
	if err != nil {
		log.Printf("ERROR resolving source roots: %s", err)
	}
	stats.Roots = len(roots)

	set := catalog.NewSet()
	for _, root := range roots {
		rootSet, err := catalog.Scan(ctx, root, s.cfg.Filter)
		if err != nil {
			if ctx.Err() != nil {
				return stats
			}
			log.Printf("ERROR scanning %s: %s", root, err)
			continue
		}
		set.Union(rootSet)
	}
	files := set.Files()
	stats.Candidates = len(files)

	if s.w != nil {
		s.w.update(roots, files)
	}

	for _, b := range s.backends {
		if ctx.Err() != nil {
			return stats
		}
		if c, ok := b.(docsync.Cycler); ok {
			c.BeginCycle()
		}
		s.syncBackend(ctx, b, files, &stats)
	}
	return stats
}

func (s *Syncer) syncBackend(ctx context.Context, b docsync.Backend, files []*catalog.File, stats *Stats) {
	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		sent, err := s.syncFile(ctx, b, f)
		switch {
		case err == nil && sent:
			stats.Transferred++
		case err == nil:
			stats.Unchanged++
		case ctx.Err() != nil:
			return
		case docsync.IsBackendFatal(err):
			log.Printf("ERROR skipping backend %s for the rest of this cycle: %s", b.Name(), err)
			stats.Skipped = append(stats.Skipped, b.Name())
			return
		default:
			log.Printf("ERROR syncing %s to %s: %s", f, b.Name(), err)
			stats.Failed++
		}
	}
}

// syncFile brings one file up to date on one backend.
// It reports whether any bytes were copied.
func (s *Syncer) syncFile(ctx context.Context, b docsync.Backend, f *catalog.File) (bool, error) {
	rel, err := f.TargetPath()
	if err != nil {
		return false, err
	}
	t := docsync.Target{Backend: b, RelPath: rel}

	s.setState(Diffing)

	if err = t.MaterializeParents(ctx); err != nil {
		return false, errors.Wrapf(err, "creating parents of %s", t)
	}

	same, err := s.upToDate(ctx, f, t)
	if err != nil {
		return false, err
	}
	if same {
		if s.cfg.Verbose {
			log.Printf("%s is up to date at %s", f, t)
		}
		return false, nil
	}

	s.setState(Transferring)

	if err = t.Receive(ctx, f); err != nil {
		return false, errors.Wrapf(err, "sending %s to %s", f, t)
	}
	log.Printf("sent %s to %s", f, t)
	return true, nil
}

// upToDate tells whether t already holds f's content.
// A match against a cached fingerprint is confirmed by rehashing f,
// in case it changed since it was first hashed.
func (s *Syncer) upToDate(ctx context.Context, f *catalog.File, t docsync.Target) (bool, error) {
	local, err := f.Fingerprint(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "hashing %s", f)
	}
	remote, err := t.Fingerprint(ctx)
	if errors.Is(err, docsync.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "hashing %s", t)
	}
	if local != remote {
		return false, nil
	}
	local, err = f.Refresh(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "rehashing %s", f)
	}
	return local == remote, nil
}
