// Package catalog discovers candidate files beneath source roots.
package catalog

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// Root is a source root:
// the canonical path of an existing directory,
// and a filesystem view rooted there.
type Root struct {
	Path string
	FS   billy.Filesystem
}

// NewRoot validates dir and produces a Root for it.
// The directory must exist.
func NewRoot(dir string) (*Root, error) {
	c, err := docsync.Canonical(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(c)
	if err != nil {
		return nil, errors.Wrapf(err, "statting %s", c)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", c)
	}
	return &Root{Path: c, FS: osfs.New(c)}, nil
}

// Name is the sanitized name under which the root's files land on a destination.
func (r *Root) Name() string {
	return docsync.RootName(r.Path)
}

func (r *Root) String() string {
	return r.Path
}

var (
	_ docsync.Source        = &File{}
	_ docsync.Fingerprinter = &File{}
)

// File is a candidate discovered by Scan.
// It points back at its Root but does not own it.
// Its fingerprint is computed at most once unless Refresh is called;
// a new scan produces new Files, so nothing is remembered across scans.
type File struct {
	root *Root
	rel  string // slash-separated, relative to root
	cell docsync.RefCell
}

// NewFile produces a File for the slash-separated path rel beneath root.
func NewFile(root *Root, rel string) *File {
	return &File{root: root, rel: rel}
}

func (f *File) Root() *Root { return f.root }

// Rel is the slash-separated path of f relative to its root.
func (f *File) Rel() string { return f.rel }

// Path is the absolute path of f.
func (f *File) Path() string {
	return filepath.Join(f.root.Path, filepath.FromSlash(f.rel))
}

func (f *File) String() string {
	return f.Path()
}

// Open opens f for reading.
func (f *File) Open() (io.ReadCloser, error) {
	fh, err := f.root.FS.Open(f.rel)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(docsync.ErrNotFound, "opening %s", f.Path())
	}
	return fh, errors.Wrapf(err, "opening %s", f.Path())
}

// Fingerprint returns f's content hash,
// computing it the first time it is needed.
func (f *File) Fingerprint(_ context.Context) (docsync.Ref, error) {
	return f.cell.Get(f.hash)
}

// Refresh recomputes f's content hash,
// replacing any cached value.
func (f *File) Refresh(_ context.Context) (docsync.Ref, error) {
	return f.cell.Refresh(f.hash)
}

// TargetPath is the destination-relative path of f.
func (f *File) TargetPath() (string, error) {
	return docsync.DeriveTarget(f.root.Path, f.Path())
}

func (f *File) hash() (docsync.Ref, error) {
	r, err := f.Open()
	if err != nil {
		return docsync.Zero, err
	}
	defer r.Close()

	ref, err := docsync.HashReader(r)
	return ref, errors.Wrapf(err, "hashing %s", f.Path())
}
