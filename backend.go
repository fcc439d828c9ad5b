package docsync

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Source is a local file whose bytes a Backend can receive.
type Source interface {
	// Path is the absolute path of the file.
	Path() string

	// Open opens the file for reading.
	Open() (io.ReadCloser, error)
}

// Fingerprinter is anything with a content fingerprint.
type Fingerprinter interface {
	Fingerprint(context.Context) (Ref, error)
}

// Backend is a destination for synchronized files.
// Paths passed to its methods are slash-separated and relative to the backend's base,
// as produced by TargetPath.
//
// A Backend exclusively owns whatever connection it needs.
// It is not safe for concurrent use.
type Backend interface {
	// Name identifies the backend in log messages.
	Name() string

	// Exists tells whether there is a file at rel.
	Exists(ctx context.Context, rel string) (bool, error)

	// Fingerprint computes the Ref of the file at rel.
	// If there is no such file the error is (or wraps) ErrNotFound.
	Fingerprint(ctx context.Context, rel string) (Ref, error)

	// MaterializeParents ensures every ancestor directory of rel exists.
	// It is idempotent.
	MaterializeParents(ctx context.Context, rel string) error

	// Receive copies the bytes of src to rel,
	// unconditionally overwriting any existing file.
	Receive(ctx context.Context, rel string, src Source) error

	// Close releases the backend's resources.
	Close() error
}

// Equal tells whether a and b have the same fingerprint.
// If either one does not exist,
// the result is false with no error.
func Equal(ctx context.Context, a, b Fingerprinter) (bool, error) {
	ra, err := a.Fingerprint(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rb, err := b.Fingerprint(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ra == rb, nil
}

// Cycler is implemented by backends that keep state for the length of one sync cycle.
// BeginCycle is called at the start of each cycle, before any other method.
type Cycler interface {
	BeginCycle()
}
