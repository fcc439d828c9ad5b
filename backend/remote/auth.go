package remote

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/docsync/docsync"
)

// Credential authenticates a remote session.
type Credential interface {
	User() string
	authMethods() ([]ssh.AuthMethod, error)
}

// PasswordAuth authenticates with a username and password.
type PasswordAuth struct {
	Username string
	Password string
}

func (a PasswordAuth) User() string { return a.Username }

func (a PasswordAuth) authMethods() ([]ssh.AuthMethod, error) {
	return []ssh.AuthMethod{ssh.Password(a.Password)}, nil
}

// KeyAuth names a private key to authenticate with.
// Key authentication is recognized but not implemented:
// connecting with a KeyAuth always fails with docsync.ErrNotSupported.
type KeyAuth struct {
	Username string
	KeyPath  string
}

func (a KeyAuth) User() string { return a.Username }

func (a KeyAuth) authMethods() ([]ssh.AuthMethod, error) {
	return nil, errors.Wrap(docsync.ErrNotSupported, "key authentication")
}

// NewCredential chooses a credential kind from configured values.
// Exactly one of password and keyPath must be set,
// and user must be non-empty.
func NewCredential(user, password, keyPath string) (Credential, error) {
	if user == "" {
		return nil, &docsync.ConfigError{Field: "username", Msg: "remote target requires a username"}
	}
	switch {
	case password != "" && keyPath != "":
		return nil, &docsync.ConfigError{Field: "password", Msg: "password and key authentication are mutually exclusive"}
	case password != "":
		return PasswordAuth{Username: user, Password: password}, nil
	case keyPath != "":
		return KeyAuth{Username: user, KeyPath: keyPath}, nil
	}
	return nil, &docsync.ConfigError{Field: "password", Msg: "remote target requires a password or a key"}
}
