package dsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/backend/local"
	"github.com/docsync/docsync/catalog"
)

type staticRoots []*catalog.Root

func (r staticRoots) Roots(context.Context) ([]*catalog.Root, error) {
	return r, nil
}

// countingBackend counts Receive calls
// and fails the ones whose paths are in fail.
type countingBackend struct {
	docsync.Backend
	receives []string
	fail     map[string]error
	cycles   int
}

func (b *countingBackend) Receive(ctx context.Context, rel string, src docsync.Source) error {
	if err := b.fail[rel]; err != nil {
		return err
	}
	b.receives = append(b.receives, rel)
	return b.Backend.Receive(ctx, rel, src)
}

func (b *countingBackend) BeginCycle() {
	b.cycles++
}

func memRoot(t *testing.T, path string, files map[string]string) *catalog.Root {
	fs := memfs.New()
	for name, content := range files {
		write(t, fs, name, content)
	}
	return &catalog.Root{Path: path, FS: fs}
}

func write(t *testing.T, fs billy.Filesystem, name, content string) {
	if err := util.WriteFile(fs, name, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newBackend(name string) (*countingBackend, billy.Filesystem) {
	fs := memfs.New()
	return &countingBackend{Backend: local.NewFS(name, fs)}, fs
}

func testConfig() Config {
	return Config{Filter: catalog.Filter{Extensions: catalog.DefaultExtensions}}
}

func TestCycle(t *testing.T) {
	ctx := context.Background()

	root := memRoot(t, "/home/alice/Desktop", map[string]string{
		"deck.pptx":          "slides",
		"reports/q1.xlsx":    "numbers",
		"photo.jpg":          "not a document",
		"~$deck.pptx":        "lock file",
		"reports/.draft.txt": "hidden",
	})
	b, bfs := newBackend("mem")

	s, err := New(testConfig(), staticRoots{root}, []docsync.Backend{b})
	if err != nil {
		t.Fatal(err)
	}

	stats := s.Cycle(ctx)
	want := Stats{Roots: 1, Candidates: 2, Transferred: 2}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("first cycle mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Desktop/deck.pptx", "Desktop/reports/q1.xlsx"}, b.receives); diff != "" {
		t.Errorf("received mismatch (-want +got):\n%s", diff)
	}

	got, err := util.ReadFile(bfs, "Desktop/reports/q1.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "numbers" {
		t.Errorf("got %q, want %q", got, "numbers")
	}

	t.Run("idempotent", func(t *testing.T) {
		b.receives = nil
		stats := s.Cycle(ctx)
		want := Stats{Roots: 1, Candidates: 2, Unchanged: 2}
		if diff := cmp.Diff(want, stats); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
		if len(b.receives) != 0 {
			t.Errorf("got %d transfers, want 0", len(b.receives))
		}
	})

	t.Run("changed", func(t *testing.T) {
		b.receives = nil
		write(t, root.FS, "deck.pptx", "new slides")
		stats := s.Cycle(ctx)
		want := Stats{Roots: 1, Candidates: 2, Transferred: 1, Unchanged: 1}
		if diff := cmp.Diff(want, stats); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
		got, err := util.ReadFile(bfs, "Desktop/deck.pptx")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "new slides" {
			t.Errorf("got %q, want %q", got, "new slides")
		}
	})

	t.Run("deleted at destination", func(t *testing.T) {
		b.receives = nil
		if err := bfs.Remove("Desktop/reports/q1.xlsx"); err != nil {
			t.Fatal(err)
		}
		s.Cycle(ctx)
		if diff := cmp.Diff([]string{"Desktop/reports/q1.xlsx"}, b.receives); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	if b.cycles != 4 {
		t.Errorf("got %d BeginCycle calls, want 4", b.cycles)
	}
}

func TestCycleFileFailure(t *testing.T) {
	root := memRoot(t, "/home/alice/Desktop", map[string]string{
		"a.docx": "a",
		"b.docx": "b",
		"c.docx": "c",
	})
	b, _ := newBackend("mem")
	b.fail = map[string]error{"Desktop/b.docx": errors.New("disk full")}

	s, err := New(testConfig(), staticRoots{root}, []docsync.Backend{b})
	if err != nil {
		t.Fatal(err)
	}
	stats := s.Cycle(context.Background())
	want := Stats{Roots: 1, Candidates: 3, Transferred: 2, Failed: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCycleBackendFatal(t *testing.T) {
	root := memRoot(t, "/home/alice/Desktop", map[string]string{
		"a.docx": "a",
		"b.docx": "b",
		"c.docx": "c",
	})
	bad, _ := newBackend("bad")
	bad.fail = map[string]error{"Desktop/a.docx": docsync.ErrSessionUnavailable}
	good, _ := newBackend("good")

	s, err := New(testConfig(), staticRoots{root}, []docsync.Backend{bad, good})
	if err != nil {
		t.Fatal(err)
	}
	stats := s.Cycle(context.Background())
	want := Stats{Roots: 1, Candidates: 3, Transferred: 3, Skipped: []string{"local:bad"}}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if len(bad.receives) != 0 {
		t.Errorf("got %d transfers to the failed backend, want 0", len(bad.receives))
	}

	// The next cycle tries the backend again.
	delete(bad.fail, "Desktop/a.docx")
	stats = s.Cycle(context.Background())
	if stats.Transferred != 3 || len(stats.Skipped) != 0 {
		t.Errorf("got %+v, want 3 transfers and no skipped backends", stats)
	}
}

func TestCycleRoots(t *testing.T) {
	desktop := memRoot(t, "/home/alice/Desktop", map[string]string{"notes.md": "desktop"})
	stick := memRoot(t, "/media/alice/USB STICK!", map[string]string{"notes.md": "stick"})
	b, bfs := newBackend("mem")

	s, err := New(testConfig(), staticRoots{desktop, stick}, []docsync.Backend{b})
	if err != nil {
		t.Fatal(err)
	}
	stats := s.Cycle(context.Background())
	if stats.Transferred != 2 {
		t.Fatalf("got %d transfers, want 2", stats.Transferred)
	}

	for rel, want := range map[string]string{
		"Desktop/notes.md":    "desktop",
		"USB STICK_/notes.md": "stick",
	} {
		got, err := util.ReadFile(bfs, rel)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s: got %q, want %q", rel, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	b, _ := newBackend("mem")
	backends := []docsync.Backend{b}

	cases := []struct {
		name    string
		cfg     Config
		backs   []docsync.Backend
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}, backs: backends},
		{name: "negative interval", cfg: Config{Interval: -time.Second}, backs: backends, wantErr: true},
		{name: "negative depth", cfg: Config{Filter: catalog.Filter{MinDepth: catalog.Depth(-1)}}, backs: backends, wantErr: true},
		{name: "inverted depths", cfg: Config{Filter: catalog.Filter{MinDepth: catalog.Depth(3), MaxDepth: catalog.Depth(2)}}, backs: backends, wantErr: true},
		{name: "no backends", cfg: Config{}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.cfg, staticRoots{}, tc.backs)
			if tc.wantErr {
				if !docsync.IsConfigError(err) {
					t.Errorf("got error %v, want a config error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if s.cfg.Interval != DefaultInterval {
				t.Errorf("got interval %s, want %s", s.cfg.Interval, DefaultInterval)
			}
		})
	}
}

func TestRun(t *testing.T) {
	root := memRoot(t, "/home/alice/Desktop", map[string]string{"a.docx": "a"})
	b, _ := newBackend("mem")

	cycles := make(chan Stats, 10)
	cfg := testConfig()
	cfg.Interval = time.Hour
	cfg.OnCycle = func(stats Stats) { cycles <- stats }

	s, err := New(cfg, staticRoots{root}, []docsync.Backend{b})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	next := func() Stats {
		select {
		case stats := <-cycles:
			return stats
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for a cycle")
		}
		return Stats{}
	}

	if stats := next(); stats.Transferred != 1 {
		t.Errorf("first cycle: got %d transfers, want 1", stats.Transferred)
	}

	s.Wake()
	if stats := next(); stats.Unchanged != 1 {
		t.Errorf("second cycle: got %d unchanged, want 1", stats.Unchanged)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("got error %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for Run to exit")
	}
	if s.State() != Idle {
		t.Errorf("got state %s, want %s", s.State(), Idle)
	}
}

func TestRunWatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.docx"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	root, err := catalog.NewRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newBackend("mem")

	cycles := make(chan Stats, 10)
	cfg := testConfig()
	cfg.Interval = time.Hour
	cfg.Watch = true
	cfg.OnCycle = func(stats Stats) { cycles <- stats }

	s, err := New(cfg, staticRoots{root}, []docsync.Backend{b})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-cycles:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the first cycle")
	}

	if err := os.WriteFile(filepath.Join(dir, "b.docx"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	// A wake-up queued before the write can produce a cycle that misses it.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case stats := <-cycles:
			if stats.Candidates == 2 {
				cancel()
				if err := <-errCh; err != nil {
					t.Errorf("got error %v, want nil", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a cycle that sees the new file")
		}
	}
}
