package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/backend"
	"github.com/docsync/docsync/testutil"
)

func TestBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "dest"))
	if err != nil {
		t.Fatal(err)
	}
	testutil.Backend(context.Background(), t, b)
}

func TestMemBackend(t *testing.T) {
	testutil.Backend(context.Background(), t, NewFS("mem", memfs.New()))
}

func TestReceiveLandsOnDisk(t *testing.T) {
	var (
		ctx  = context.Background()
		base = t.TempDir()
		src  = &testutil.Source{Name: "a.md", Data: []byte("# hi\n")}
	)
	b, err := New(base)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.MaterializeParents(ctx, "Desktop/notes/a.md"); err != nil {
		t.Fatal(err)
	}
	if err = b.Receive(ctx, "Desktop/notes/a.md", src); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(base, "Desktop", "notes", "a.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(src.Data) {
		t.Errorf("got %q, want %q", got, src.Data)
	}
}

func TestRegistered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := backend.Create(ctx, "local", map[string]interface{}{"type": "local", "root": dir})
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "local:"+dir {
		t.Errorf("got name %s", b.Name())
	}

	_, err = backend.Create(ctx, "local", map[string]interface{}{"type": "local"})
	if !docsync.IsConfigError(err) {
		t.Errorf("got %v, want a config error", err)
	}
}
