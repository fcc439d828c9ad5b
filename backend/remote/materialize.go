package remote

import (
	"context"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// Materialize makes sure dir exists on fs,
// creating missing ancestors with nothing but Stat and Mkdir.
//
// It finds the lowest ancestor that exists,
// then creates each missing directory below it in order.
// A Mkdir that fails because the directory appeared meanwhile is not an error.
// If no ancestor exists at all the destination is unreachable,
// and the error wraps docsync.ErrRemoteUnreachable.
// A lost connection is returned as soon as it is seen.
func Materialize(ctx context.Context, fs FileSystem, dir string) error {
	dir = path.Clean(dir)

	ok, err := exists(fs, dir)
	if err != nil || ok {
		return err
	}

	// Walking up is bounded by the number of segments in dir.
	var (
		missing = []string{dir}
		limit   = strings.Count(dir, "/") + 2
		found   bool
	)
	for p := dir; len(missing) <= limit; {
		if err := ctx.Err(); err != nil {
			return err
		}
		parent := path.Dir(p)
		if parent == p {
			break
		}
		ok, err := exists(fs, parent)
		if err != nil {
			return err
		}
		if ok {
			found = true
			break
		}
		missing = append(missing, parent)
		p = parent
	}
	if !found {
		return errors.Wrapf(docsync.ErrRemoteUnreachable, "no ancestor of %s exists", dir)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := missing[i]
		err := fs.Mkdir(d)
		if err == nil {
			continue
		}
		if errors.Is(err, docsync.ErrConnectionLost) {
			return err
		}
		if ok, _ := exists(fs, d); ok {
			continue
		}
		return errors.Wrapf(err, "creating %s", d)
	}
	return nil
}

// exists tells whether anything is at p.
// Failures other than a lost connection count as "does not exist".
func exists(fs FileSystem, p string) (bool, error) {
	_, err := fs.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, docsync.ErrConnectionLost) {
		return false, err
	}
	return false, nil
}
