package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

type fakeLister struct {
	vols []Volume
	err  error
}

func (l *fakeLister) Volumes(context.Context) ([]Volume, error) {
	return l.vols, l.err
}

func mkdirs(t *testing.T, base string, names ...string) []string {
	var out []string
	for _, n := range names {
		p := filepath.Join(base, n)
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatal(err)
		}
		c, err := docsync.Canonical(p)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, c)
	}
	return out
}

func rootPaths(t *testing.T, p *Provider) []string {
	roots, err := p.Roots(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, r := range roots {
		out = append(out, r.Path)
	}
	return out
}

func TestRoots(t *testing.T) {
	var (
		tmp  = t.TempDir()
		dirs = mkdirs(t, tmp, "Desktop", "usb", "fixed", "extra")
	)
	lister := &fakeLister{vols: []Volume{
		{MountPoint: dirs[1], Removable: true},
		{MountPoint: dirs[2], Removable: false},
		{MountPoint: filepath.Join(tmp, "ejected"), Removable: true},
	}}

	p, err := New(Config{Desktop: dirs[0], Extra: []string{dirs[3], dirs[0]}, Removable: true}, lister)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{dirs[0], dirs[1], dirs[3]}
	if diff := cmp.Diff(want, rootPaths(t, p)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	// The media is pulled and the extra directory removed.
	lister.vols = lister.vols[1:]
	if err = os.Remove(dirs[3]); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(dirs[:1], rootPaths(t, p)); diff != "" {
		t.Errorf("after removal, mismatch (-want +got):\n%s", diff)
	}
}

func TestRemovableDisabled(t *testing.T) {
	dirs := mkdirs(t, t.TempDir(), "Desktop", "usb")
	lister := &fakeLister{vols: []Volume{{MountPoint: dirs[1], Removable: true}}}
	p, err := New(Config{Desktop: dirs[0]}, lister)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(dirs[:1], rootPaths(t, p)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestListerFailure(t *testing.T) {
	dirs := mkdirs(t, t.TempDir(), "Desktop")
	boom := errors.New("boom")
	p, err := New(Config{Desktop: dirs[0], Removable: true}, &fakeLister{err: boom})
	if err != nil {
		t.Fatal(err)
	}
	roots, err := p.Roots(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
	if len(roots) != 1 || roots[0].Path != dirs[0] {
		t.Errorf("got roots %v, want just the desktop", roots)
	}
}

func TestValidation(t *testing.T) {
	tmp := t.TempDir()
	dirs := mkdirs(t, tmp, "Desktop")
	file := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	cases := []Config{
		{Desktop: filepath.Join(tmp, "missing")},
		{Desktop: file},
		{Desktop: dirs[0], Extra: []string{filepath.Join(tmp, "nope")}},
		{Desktop: dirs[0], Extra: []string{file}},
	}
	for i, c := range cases {
		if _, err := New(c, &fakeLister{}); !docsync.IsConfigError(err) {
			t.Errorf("case %d: got %v, want a config error", i, err)
		}
	}
}
