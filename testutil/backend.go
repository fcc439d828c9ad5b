package testutil

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// Backend exercises the docsync.Backend contract against a fresh, empty backend.
func Backend(ctx context.Context, t *testing.T, b docsync.Backend) {
	const rel = "Desktop/reports/2024/q1.xlsx"

	ok, err := b.Exists(ctx, rel)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("%s exists in an empty backend", rel)
	}

	_, err = b.Fingerprint(ctx, rel)
	if !errors.Is(err, docsync.ErrNotFound) {
		t.Fatalf("fingerprint of missing file: got %v, want ErrNotFound", err)
	}

	for i := 0; i < 2; i++ {
		if err = b.MaterializeParents(ctx, rel); err != nil {
			t.Fatalf("materialize #%d: %s", i+1, err)
		}
	}

	src := &Source{Name: "q1.xlsx", Data: []byte("first version")}
	if err = b.Receive(ctx, rel, src); err != nil {
		t.Fatal(err)
	}

	ok, err = b.Exists(ctx, rel)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("%s missing after Receive", rel)
	}

	target := docsync.Target{Backend: b, RelPath: rel}
	eq, err := docsync.Equal(ctx, src, target)
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Error("fingerprints differ after Receive")
	}

	src2 := &Source{Name: "q1.xlsx", Data: []byte("second, longer version")}
	if err = target.Receive(ctx, src2); err != nil {
		t.Fatal(err)
	}
	got, err := target.Fingerprint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := docsync.HashBytes(src2.Data); got != want {
		t.Errorf("after overwrite got fingerprint %s, want %s", got, want)
	}

	short := &Source{Name: "q1.xlsx", Data: []byte("x")}
	if err = target.Receive(ctx, short); err != nil {
		t.Fatal(err)
	}
	if got, err = target.Fingerprint(ctx); err != nil {
		t.Fatal(err)
	}
	if want := docsync.HashBytes(short.Data); got != want {
		t.Error("overwrite with shorter content left stale bytes")
	}

	if err = b.MaterializeParents(ctx, "top-level.txt"); err != nil {
		t.Errorf("materializing a file at the base: %s", err)
	}

	if err = b.Receive(ctx, "../escape.txt", src); !errors.Is(err, docsync.ErrPathEscapes) {
		t.Errorf("receive outside the base: got %v, want ErrPathEscapes", err)
	}
}
