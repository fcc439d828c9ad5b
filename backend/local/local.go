// Package local implements a destination backend in a directory on the local machine.
package local

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/backend"
)

var _ docsync.Backend = &Backend{}

// Backend stores files beneath a base directory.
type Backend struct {
	name string
	fs   billy.Filesystem
}

// New produces a Backend storing files beneath base,
// creating base if necessary.
func New(base string) (*Backend, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", base)
	}
	return NewFS(base, osfs.New(base)), nil
}

// NewFS produces a Backend over an arbitrary filesystem.
func NewFS(name string, fs billy.Filesystem) *Backend {
	return &Backend{name: name, fs: fs}
}

func (b *Backend) Name() string {
	return "local:" + b.name
}

func (b *Backend) Exists(_ context.Context, rel string) (bool, error) {
	if err := docsync.CheckRel(rel); err != nil {
		return false, err
	}
	_, err := b.fs.Stat(rel)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "statting %s", rel)
	}
	return true, nil
}

func (b *Backend) Fingerprint(_ context.Context, rel string) (docsync.Ref, error) {
	if err := docsync.CheckRel(rel); err != nil {
		return docsync.Zero, err
	}
	f, err := b.fs.Open(rel)
	if os.IsNotExist(err) {
		return docsync.Zero, errors.Wrapf(docsync.ErrNotFound, "opening %s", rel)
	}
	if err != nil {
		return docsync.Zero, errors.Wrapf(err, "opening %s", rel)
	}
	defer f.Close()

	ref, err := docsync.HashReader(f)
	return ref, errors.Wrapf(err, "reading %s", rel)
}

func (b *Backend) MaterializeParents(_ context.Context, rel string) error {
	if err := docsync.CheckRel(rel); err != nil {
		return err
	}
	dir := path.Dir(rel)
	if dir == "." {
		return nil
	}
	return errors.Wrapf(b.fs.MkdirAll(dir, 0755), "creating %s", dir)
}

func (b *Backend) Receive(_ context.Context, rel string, src docsync.Source) error {
	if err := docsync.CheckRel(rel); err != nil {
		return err
	}

	in, err := src.Open()
	if err != nil {
		return errors.Wrapf(err, "opening %s", src.Path())
	}
	defer in.Close()

	out, err := b.fs.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating %s", rel)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return errors.Wrapf(err, "copying %s to %s", src.Path(), rel)
	}
	return errors.Wrapf(out.Close(), "closing %s", rel)
}

func (b *Backend) Close() error {
	return nil
}

func init() {
	backend.Register("local", func(ctx context.Context, conf map[string]interface{}) (docsync.Backend, error) {
		root, err := backend.String(conf, "root")
		if err != nil {
			return nil, err
		}
		if root == "" {
			return nil, &docsync.ConfigError{Field: "root", Msg: "local backend requires a root directory"}
		}
		return New(root)
	})
}
