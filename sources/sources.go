// Package sources decides which directories are scanned each cycle.
package sources

import (
	"context"
	"log"
	"os"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/catalog"
)

// Volume is a mounted filesystem.
type Volume struct {
	MountPoint string
	Removable  bool
}

// VolumeLister enumerates mounted filesystems.
type VolumeLister interface {
	Volumes(context.Context) ([]Volume, error)
}

// Config says where to find source roots.
type Config struct {
	// Desktop is always scanned.
	// Default DefaultDesktop().
	Desktop string

	// Extra directories, always scanned.
	Extra []string

	// Removable enables scanning every mounted removable volume.
	Removable bool
}

// Provider resolves the live set of source roots.
type Provider struct {
	desktop   string
	extra     []string
	removable bool
	lister    VolumeLister
}

// DefaultDesktop is the user's desktop directory.
func DefaultDesktop() string {
	return xdg.UserDirs.Desktop
}

// New validates conf and produces a Provider.
// The desktop and every extra directory must exist and be directories;
// otherwise the result is a *docsync.ConfigError.
// Removable volumes are not checked here, since they come and go.
func New(conf Config, lister VolumeLister) (*Provider, error) {
	desktop := conf.Desktop
	if desktop == "" {
		desktop = DefaultDesktop()
	}
	d, err := Validate("desktop", desktop)
	if err != nil {
		return nil, err
	}

	p := &Provider{desktop: d, removable: conf.Removable, lister: lister}
	for _, e := range conf.Extra {
		c, err := Validate("extra_paths", e)
		if err != nil {
			return nil, err
		}
		p.extra = append(p.extra, c)
	}
	if p.removable && p.lister == nil {
		p.lister = SystemVolumes{}
	}
	return p, nil
}

// Validate canonicalizes dir and makes sure it is an existing directory.
// Failures are reported as a *docsync.ConfigError naming field.
func Validate(field, dir string) (string, error) {
	c, err := docsync.Canonical(dir)
	if err != nil {
		return "", docsync.ConfigErrorf(field, "%s: %s", dir, err)
	}
	info, err := os.Stat(c)
	if err != nil {
		return "", docsync.ConfigErrorf(field, "%s: %s", dir, err)
	}
	if !info.IsDir() {
		return "", docsync.ConfigErrorf(field, "%s is not a directory", dir)
	}
	return c, nil
}

// Roots resolves the source roots for one cycle:
// the desktop, every currently mounted removable volume if enabled, and the extra directories.
// Each is checked again, since even a validated directory can disappear.
// Roots that cannot be used are logged and left out.
// Duplicates are removed.
// An error is returned only when volumes cannot be listed at all,
// and then the other roots are still returned.
func (p *Provider) Roots(ctx context.Context) ([]*catalog.Root, error) {
	var (
		out  []*catalog.Root
		seen = make(map[string]bool)
	)
	add := func(kind, dir string) {
		r, err := catalog.NewRoot(dir)
		if err != nil {
			log.Printf("ERROR skipping %s root %s: %s", kind, dir, err)
			return
		}
		if seen[r.Path] {
			return
		}
		seen[r.Path] = true
		out = append(out, r)
	}

	add("desktop", p.desktop)

	var volErr error
	if p.removable {
		vols, err := p.lister.Volumes(ctx)
		if err != nil {
			volErr = errors.Wrap(err, "listing volumes")
		}
		for _, v := range vols {
			if v.Removable {
				add("removable", v.MountPoint)
			}
		}
	}

	for _, e := range p.extra {
		add("extra", e)
	}

	return out, volErr
}
