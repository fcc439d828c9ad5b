package remote

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/docsync/docsync"
)

// Endpoint is the address of a remote host.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Dialer opens authenticated connections.
type Dialer interface {
	Dial(context.Context, Endpoint, Credential) (Conn, error)
}

// Conn is one live, authenticated connection
// with a file-transfer channel and the ability to run commands.
type Conn interface {
	// FileSystem returns the connection's file-transfer channel,
	// opening it if necessary.
	FileSystem() (FileSystem, error)

	// Exec runs cmd on the remote host and returns its standard output.
	// A non-zero exit status produces a *docsync.RemoteExecError.
	Exec(ctx context.Context, cmd string) ([]byte, error)

	Close() error
}

// FileSystem is the subset of file-transfer primitives the remote backend uses.
// Errors for missing files satisfy os.IsNotExist.
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)
	Mkdir(path string) error
	Create(path string) (io.WriteCloser, error)
}

// SSHDialer dials real SSH servers and speaks SFTP over them.
type SSHDialer struct {
	// KnownHosts is an optional known_hosts file used to verify host keys.
	// When empty, any host key is accepted.
	KnownHosts string

	// Timeout bounds the TCP connect and the protocol handshake.
	Timeout time.Duration
}

var _ Dialer = &SSHDialer{}

func (d *SSHDialer) Dial(ctx context.Context, ep Endpoint, cred Credential) (Conn, error) {
	methods, err := cred.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := d.hostKeyCallback(ep)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            cred.User(),
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.Timeout,
	}

	addr := ep.String()
	dialer := net.Dialer{Timeout: d.Timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	if d.Timeout > 0 {
		nc.SetDeadline(time.Now().Add(d.Timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(nc, addr, cfg)
	if err != nil {
		nc.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, errors.Wrapf(docsync.ErrAuthenticationFailed, "as %s at %s: %s", cred.User(), addr, err)
		}
		return nil, errors.Wrapf(err, "handshake with %s", addr)
	}
	nc.SetDeadline(time.Time{})

	return &sshConn{client: ssh.NewClient(c, chans, reqs)}, nil
}

func (d *SSHDialer) hostKeyCallback(ep Endpoint) (ssh.HostKeyCallback, error) {
	if d.KnownHosts == "" {
		return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
			log.Printf("WARNING accepting unverified %s host key for %s (%s)", key.Type(), hostname, ssh.FingerprintSHA256(key))
			return nil
		}, nil
	}
	cb, err := knownhosts.New(d.KnownHosts)
	if err != nil {
		return nil, &docsync.ConfigError{Field: "known_hosts", Msg: err.Error()}
	}
	return cb, nil
}

type sshConn struct {
	client *ssh.Client
	sftp   *sftp.Client
}

func (c *sshConn) FileSystem() (FileSystem, error) {
	if c.sftp == nil {
		s, err := sftp.NewClient(c.client)
		if err != nil {
			return nil, errors.Wrapf(docsync.ErrConnectionLost, "opening sftp channel: %s", err)
		}
		c.sftp = s
	}
	return sftpFS{c: c.sftp}, nil
}

func (c *sshConn) Exec(ctx context.Context, cmd string) ([]byte, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, errors.Wrapf(docsync.ErrConnectionLost, "opening exec channel: %s", err)
	}
	defer sess.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-done:
		}
	}()

	stderr := new(bytes.Buffer)
	sess.Stderr = stderr

	out, err := sess.Output(cmd)

	var (
		exitErr    *ssh.ExitError
		exitMisErr *ssh.ExitMissingError
	)
	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.As(err, &exitErr):
		return nil, &docsync.RemoteExecError{Cmd: cmd, ExitCode: exitErr.ExitStatus(), Stderr: strings.TrimSpace(stderr.String())}
	case errors.As(err, &exitMisErr):
		return nil, errors.Wrapf(docsync.ErrConnectionLost, "running %q: no exit status", cmd)
	}
	return nil, errors.Wrapf(docsync.ErrConnectionLost, "running %q: %s", cmd, err)
}

func (c *sshConn) Close() error {
	if c.sftp != nil {
		c.sftp.Close()
		c.sftp = nil
	}
	return c.client.Close()
}

// sftpFS adapts an sftp client to FileSystem,
// translating a dropped connection to docsync.ErrConnectionLost.
type sftpFS struct {
	c *sftp.Client
}

func (fs sftpFS) Stat(p string) (os.FileInfo, error) {
	info, err := fs.c.Stat(p)
	return info, connErr(err)
}

func (fs sftpFS) Mkdir(p string) error {
	return connErr(fs.c.Mkdir(p))
}

func (fs sftpFS) Create(p string) (io.WriteCloser, error) {
	f, err := fs.c.Create(p)
	if err != nil {
		return nil, connErr(err)
	}
	return sftpFile{f: f}, nil
}

type sftpFile struct {
	f *sftp.File
}

func (f sftpFile) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	return n, connErr(err)
}

func (f sftpFile) ReadFrom(r io.Reader) (int64, error) {
	n, err := f.f.ReadFrom(r)
	return n, connErr(err)
}

func (f sftpFile) Close() error {
	return connErr(f.f.Close())
}

func connErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(docsync.ErrConnectionLost, "%s", err)
	}
	return err
}
