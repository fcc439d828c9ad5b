package docsync

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Target is the place under a Backend where a source file lands.
// It refers to its Backend but does not own it.
type Target struct {
	Backend Backend
	RelPath string
}

func (t Target) String() string {
	return t.Backend.Name() + ":" + t.RelPath
}

func (t Target) Exists(ctx context.Context) (bool, error) {
	return t.Backend.Exists(ctx, t.RelPath)
}

func (t Target) Fingerprint(ctx context.Context) (Ref, error) {
	return t.Backend.Fingerprint(ctx, t.RelPath)
}

func (t Target) MaterializeParents(ctx context.Context) error {
	return t.Backend.MaterializeParents(ctx, t.RelPath)
}

func (t Target) Receive(ctx context.Context, src Source) error {
	return t.Backend.Receive(ctx, t.RelPath, src)
}

// SanitizeName maps s to the characters that are safe in a destination path component:
// letters, digits, '-', '_', '.', and space.
// Anything else becomes '_'.
// The result is never empty, ".", or "..".
func SanitizeName(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '-', r == '_', r == '.', r == ' ':
			return r
		}
		return '_'
	}, s)
	if out == "" || strings.Trim(out, ".") == "" {
		out = strings.Repeat("_", len(out)+1)
	}
	return out
}

// RootName is the sanitized name of a canonical root directory.
// It is the root's last path component,
// or the whole path when there is none (a filesystem or drive root).
func RootName(root string) string {
	base := filepath.Base(root)
	if base == string(filepath.Separator) || base == "." || base == filepath.VolumeName(root)+string(filepath.Separator) {
		base = root
	}
	return SanitizeName(base)
}

// Canonical returns the absolute, symlink-free form of p.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrapf(err, "making %s absolute", p)
	}
	c, err := filepath.EvalSymlinks(abs)
	return c, errors.Wrapf(err, "resolving %s", abs)
}

// TargetPath is the destination-relative path of file beneath root:
// RootName(root) followed by file's slash-separated path relative to root.
// Both are canonicalized first
// (file's directory is resolved, not file itself, so a symlinked file stays put).
// It fails with ErrPathEscapes rather than truncate when file is not strictly beneath root.
func TargetPath(root, file string) (string, error) {
	croot, err := Canonical(root)
	if err != nil {
		return "", err
	}
	cfile, err := canonicalFile(file)
	if err != nil {
		return "", err
	}
	return DeriveTarget(croot, cfile)
}

// DeriveTarget is TargetPath for a root and file that are already canonical.
// It does no filesystem access.
func DeriveTarget(croot, cfile string) (string, error) {
	rel, err := relUnder(croot, cfile)
	if err != nil {
		return "", err
	}
	return path.Join(RootName(croot), rel), nil
}

func relUnder(croot, cfile string) (string, error) {
	prefix := croot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(cfile, prefix) {
		return "", errors.Wrapf(ErrPathEscapes, "%s is not beneath %s", cfile, croot)
	}
	rel := filepath.ToSlash(strings.TrimPrefix(cfile, prefix))
	if err := CheckRel(rel); err != nil {
		return "", errors.Wrapf(err, "deriving path of %s beneath %s", cfile, croot)
	}
	return rel, nil
}

func canonicalFile(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", errors.Wrapf(err, "making %s absolute", file)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", filepath.Dir(abs))
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// CheckRel makes sure rel is a usable destination-relative path:
// slash-separated, relative, and free of empty, "." and ".." segments.
func CheckRel(rel string) error {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return errors.Wrapf(ErrPathEscapes, "bad destination path %q", rel)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return errors.Wrapf(ErrPathEscapes, "bad segment %q in destination path %q", seg, rel)
		}
	}
	return nil
}
