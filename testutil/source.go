// Package testutil holds helpers shared by the tests of several packages.
package testutil

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/docsync/docsync"
)

var (
	_ docsync.Source        = &Source{}
	_ docsync.Fingerprinter = &Source{}
)

// Source is an in-memory docsync.Source.
// It counts how many times it is opened.
type Source struct {
	Name  string
	Data  []byte
	Opens int
}

func (s *Source) Path() string { return s.Name }

func (s *Source) Open() (io.ReadCloser, error) {
	s.Opens++
	return ioutil.NopCloser(bytes.NewReader(s.Data)), nil
}

func (s *Source) Fingerprint(context.Context) (docsync.Ref, error) {
	return docsync.HashBytes(s.Data), nil
}
