package docsync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Ref is a content fingerprint: the sha256 hash of a file's bytes.
type Ref [sha256.Size]byte

// Zero is the zero value of a Ref.
var Zero Ref

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// FromHex parses the hex string s into r.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.Errorf("wrong length %d for hex ref", len(s))
	}
	_, err := hex.Decode(r[:], []byte(s))
	return errors.Wrapf(err, "decoding hex ref %q", s)
}

func RefFromBytes(b []byte) Ref {
	var out Ref
	copy(out[:], b)
	return out
}

func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}

// HashBytes computes the Ref of an in-memory byte sequence.
func HashBytes(b []byte) Ref {
	return sha256.Sum256(b)
}

// HashReader streams everything in r through sha256.
func HashReader(r io.Reader) (Ref, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Zero, errors.Wrap(err, "hashing")
	}
	return RefFromBytes(h.Sum(nil)), nil
}

// HashFile computes the Ref of the file at path.
// It returns ErrNotFound if the file does not exist,
// which can happen when a file disappears between discovery and hashing.
func HashFile(path string) (Ref, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Zero, errors.Wrapf(ErrNotFound, "opening %s", path)
	}
	if err != nil {
		return Zero, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	ref, err := HashReader(f)
	return ref, errors.Wrapf(err, "reading %s", path)
}
