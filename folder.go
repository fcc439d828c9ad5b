package docsync

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DefaultFolder is the destination base used when none is configured:
// the date, then the local home directory's name and the hostname,
// as in "2024-05-17/alice--laptop".
func DefaultFolder(now time.Time) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "finding home directory")
	}
	host, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, "getting hostname")
	}
	return defaultFolder(now, home, host), nil
}

func defaultFolder(now time.Time, home, host string) string {
	ident := SanitizeName(filepath.Base(home))
	if host != "" {
		ident += "--" + SanitizeName(host)
	}
	return now.Format("2006-01-02") + "/" + ident
}
