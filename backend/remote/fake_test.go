package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
)

// fakeFS is an in-memory FileSystem.
type fakeFS struct {
	dirs  map[string]bool
	files map[string][]byte

	stats, mkdirs int

	// Hooks run before the operation; a non-nil error is returned in its place.
	onStat  func(p string) error
	onMkdir func(p string) error
}

func newFakeFS(dirs ...string) *fakeFS {
	fs := &fakeFS{dirs: map[string]bool{"/": true, ".": true}, files: make(map[string][]byte)}
	for _, d := range dirs {
		fs.dirs[d] = true
	}
	return fs
}

type fakeInfo struct {
	name string
	size int64
	dir  bool
}

func (fi fakeInfo) Name() string       { return fi.name }
func (fi fakeInfo) Size() int64        { return fi.size }
func (fi fakeInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeInfo) IsDir() bool        { return fi.dir }
func (fi fakeInfo) Sys() interface{}   { return nil }

func (fi fakeInfo) Mode() os.FileMode {
	if fi.dir {
		return os.ModeDir | 0755
	}
	return 0644
}

func (fs *fakeFS) Stat(p string) (os.FileInfo, error) {
	fs.stats++
	if fs.onStat != nil {
		if err := fs.onStat(p); err != nil {
			return nil, err
		}
	}
	if fs.dirs[p] {
		return fakeInfo{name: path.Base(p), dir: true}, nil
	}
	if b, ok := fs.files[p]; ok {
		return fakeInfo{name: path.Base(p), size: int64(len(b))}, nil
	}
	return nil, os.ErrNotExist
}

func (fs *fakeFS) Mkdir(p string) error {
	fs.mkdirs++
	if fs.onMkdir != nil {
		if err := fs.onMkdir(p); err != nil {
			return err
		}
	}
	if fs.dirs[p] {
		return errors.New("file exists")
	}
	if !fs.dirs[path.Dir(p)] {
		return os.ErrNotExist
	}
	fs.dirs[p] = true
	return nil
}

func (fs *fakeFS) Create(p string) (io.WriteCloser, error) {
	if !fs.dirs[path.Dir(p)] {
		return nil, os.ErrNotExist
	}
	return &fakeWriter{fs: fs, p: p}, nil
}

type fakeWriter struct {
	bytes.Buffer
	fs *fakeFS
	p  string
}

func (w *fakeWriter) Close() error {
	w.fs.files[w.p] = append([]byte(nil), w.Bytes()...)
	return nil
}

// fakeConn serves a shared fakeFS.
// While *failures is positive, each operation decrements it and fails with ErrConnectionLost.
type fakeConn struct {
	fs       *fakeFS
	failures *int
	execErr  error
	closed   bool
}

func (c *fakeConn) fail() error {
	if c.closed {
		return errors.Wrap(docsync.ErrConnectionLost, "use of closed connection")
	}
	if c.failures != nil && *c.failures > 0 {
		*c.failures--
		return errors.Wrap(docsync.ErrConnectionLost, "simulated")
	}
	return nil
}

func (c *fakeConn) FileSystem() (FileSystem, error) {
	if err := c.fail(); err != nil {
		return nil, err
	}
	return c.fs, nil
}

func (c *fakeConn) Exec(_ context.Context, cmd string) ([]byte, error) {
	if err := c.fail(); err != nil {
		return nil, err
	}
	if c.execErr != nil {
		return nil, c.execErr
	}
	const prefix = "sha256sum -- "
	if !strings.HasPrefix(cmd, prefix) {
		return nil, &docsync.RemoteExecError{Cmd: cmd, ExitCode: 127}
	}
	p := unquote(strings.TrimPrefix(cmd, prefix))
	b, ok := c.fs.files[p]
	if !ok {
		return nil, &docsync.RemoteExecError{Cmd: cmd, ExitCode: 1, Stderr: "No such file or directory"}
	}
	return []byte(fmt.Sprintf("%s  %s\n", docsync.HashBytes(b), p)), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func unquote(s string) string {
	s = strings.TrimPrefix(strings.TrimSuffix(s, "'"), "'")
	return strings.ReplaceAll(s, `'\''`, "'")
}

type fakeDialer struct {
	fs       *fakeFS
	failures int
	dialErr  error
	execErr  error
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ Endpoint, cred Credential) (Conn, error) {
	d.dials++
	if _, err := cred.authMethods(); err != nil {
		return nil, err
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := &fakeConn{fs: d.fs, failures: &d.failures, execErr: d.execErr}
	d.conns = append(d.conns, c)
	return c, nil
}

func newTestSession(d Dialer) (*Session, error) {
	return NewSession(SessionConfig{
		Endpoint:   Endpoint{Host: "backup.example", Port: 22},
		Credential: PasswordAuth{Username: "alice", Password: "secret"},
		Step:       time.Microsecond,
	}, d)
}
