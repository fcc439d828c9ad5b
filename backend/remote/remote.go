// Package remote implements a destination backend on a host reached over SSH.
// Files are written over SFTP,
// and fingerprints are computed on the remote host
// so that comparing a file does not mean transferring it.
package remote

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/backend"
)

var (
	_ docsync.Backend = &Backend{}
	_ docsync.Cycler  = &Backend{}
)

const dirCacheSize = 1024

// Backend stores files beneath a base directory on a remote host.
// It exclusively owns its Session.
type Backend struct {
	sess *Session
	base string

	// Directories known to exist.
	// Forgotten at the start of each cycle and whenever the session reconnects.
	dirs       *lru.Cache
	reconnects int
}

// New produces a Backend storing files beneath base on the host sess connects to.
// A relative base is relative to the remote user's login directory.
func New(sess *Session, base string) (*Backend, error) {
	base = path.Clean(strings.ReplaceAll(base, `\`, "/"))
	c, err := lru.New(dirCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating directory cache")
	}
	return &Backend{sess: sess, base: base, dirs: c}, nil
}

func (b *Backend) Name() string {
	return "remote:" + b.sess.String() + ":" + b.base
}

// Session is the backend's session, for inspection.
func (b *Backend) Session() *Session {
	return b.sess
}

func (b *Backend) remotePath(rel string) (string, error) {
	if err := docsync.CheckRel(rel); err != nil {
		return "", err
	}
	return path.Join(b.base, rel), nil
}

func (b *Backend) Exists(ctx context.Context, rel string) (bool, error) {
	p, err := b.remotePath(rel)
	if err != nil {
		return false, err
	}
	var ok bool
	err = b.sess.Transfer(ctx, func(fs FileSystem) error {
		_, err := fs.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "statting %s", p)
		}
		ok = true
		return nil
	})
	return ok, err
}

// Fingerprint runs sha256sum on the remote host.
func (b *Backend) Fingerprint(ctx context.Context, rel string) (docsync.Ref, error) {
	ok, err := b.Exists(ctx, rel)
	if err != nil {
		return docsync.Zero, err
	}
	if !ok {
		return docsync.Zero, errors.Wrapf(docsync.ErrNotFound, "%s", rel)
	}

	p, _ := b.remotePath(rel)
	out, err := b.sess.Exec(ctx, "sha256sum -- "+shellQuote(p))
	if err != nil {
		return docsync.Zero, errors.Wrapf(err, "hashing %s", p)
	}
	return parseDigest(out)
}

// parseDigest extracts the hash from a line of sha256sum output.
// sha256sum prefixes the line with a backslash when it had to escape the file name.
func parseDigest(out []byte) (docsync.Ref, error) {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return docsync.Zero, errors.New("empty output from sha256sum")
	}
	return docsync.RefFromHex(strings.TrimPrefix(fields[0], `\`))
}

func (b *Backend) MaterializeParents(ctx context.Context, rel string) error {
	p, err := b.remotePath(rel)
	if err != nil {
		return err
	}
	dir := path.Dir(p)

	b.checkReconnects()
	if b.dirs.Contains(dir) {
		return nil
	}

	err = b.sess.Transfer(ctx, func(fs FileSystem) error {
		return Materialize(ctx, fs, dir)
	})
	if err != nil {
		return err
	}
	for d := dir; d != "." && d != "/" && !b.dirs.Contains(d); d = path.Dir(d) {
		b.dirs.Add(d, struct{}{})
	}
	return nil
}

func (b *Backend) Receive(ctx context.Context, rel string, src docsync.Source) error {
	p, err := b.remotePath(rel)
	if err != nil {
		return err
	}
	return b.sess.Transfer(ctx, func(fs FileSystem) error {
		in, err := src.Open()
		if err != nil {
			return errors.Wrapf(err, "opening %s", src.Path())
		}
		defer in.Close()

		out, err := fs.Create(p)
		if errors.Is(err, os.ErrNotExist) {
			b.dirs.Remove(path.Dir(p))
		}
		if err != nil {
			return errors.Wrapf(err, "creating %s", p)
		}

		if _, err = io.Copy(out, in); err != nil {
			out.Close()
			return errors.Wrapf(err, "copying %s to %s", src.Path(), p)
		}
		return errors.Wrapf(out.Close(), "closing %s", p)
	})
}

// BeginCycle forgets which remote directories are known to exist.
func (b *Backend) BeginCycle() {
	b.dirs.Purge()
}

// Close disconnects the session.
func (b *Backend) Close() error {
	b.dirs.Purge()
	return b.sess.Close()
}

func (b *Backend) checkReconnects() {
	if n := b.sess.Reconnects(); n != b.reconnects {
		b.dirs.Purge()
		b.reconnects = n
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func init() {
	backend.Register("remote", create)
	backend.Register("ssh", create)
}

func create(ctx context.Context, conf map[string]interface{}) (docsync.Backend, error) {
	strs := make(map[string]string)
	for _, k := range []string{"host", "username", "password", "key", "root", "known_hosts"} {
		s, err := backend.String(conf, k)
		if err != nil {
			return nil, err
		}
		strs[k] = s
	}
	port, err := backend.Int(conf, "port", 22)
	if err != nil {
		return nil, err
	}
	attempts, err := backend.Int(conf, "max_attempts", DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	timeout, err := backend.Int(conf, "timeout_seconds", 30)
	if err != nil {
		return nil, err
	}

	cred, err := NewCredential(strs["username"], strs["password"], strs["key"])
	if err != nil {
		return nil, err
	}

	dialer := &SSHDialer{
		KnownHosts: expandHome(strs["known_hosts"]),
		Timeout:    time.Duration(timeout) * time.Second,
	}
	sess, err := NewSession(SessionConfig{
		Endpoint:    Endpoint{Host: strs["host"], Port: port},
		Credential:  cred,
		MaxAttempts: attempts,
	}, dialer)
	if err != nil {
		return nil, err
	}

	base := strs["root"]
	if base == "" {
		if base, err = docsync.DefaultFolder(time.Now()); err != nil {
			return nil, errors.Wrap(err, "computing default remote folder")
		}
	}
	return New(sess, base)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
