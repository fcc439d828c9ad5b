package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/backend"
	_ "github.com/docsync/docsync/backend/local"
	_ "github.com/docsync/docsync/backend/logging"
	_ "github.com/docsync/docsync/backend/remote"
	"github.com/docsync/docsync/catalog"
	"github.com/docsync/docsync/dsync"
	"github.com/docsync/docsync/sources"
)

type config struct {
	Desktop         string                   `json:"desktop"`
	Extra           []string                 `json:"extra_paths"`
	Removable       bool                     `json:"removable"`
	Extensions      []string                 `json:"extensions"`
	Regex           string                   `json:"regex"`
	MinDepth        *int                     `json:"min_depth"`
	MaxDepth        *int                     `json:"max_depth"`
	IntervalSeconds int                      `json:"refresh_interval_seconds"`
	Watch           bool                     `json:"watch"`
	Verbose         bool                     `json:"verbose"`
	Targets         []map[string]interface{} `json:"targets"`

	Interval time.Duration `json:"-"`
}

func loadConfig(filename string) (*config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	conf, err := parseConfig(f)
	return conf, errors.Wrapf(err, "reading config file %s", filename)
}

func parseConfig(r io.Reader) (*config, error) {
	var conf config

	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&conf); err != nil {
		return nil, &docsync.ConfigError{Field: "config", Msg: err.Error()}
	}

	if conf.IntervalSeconds < 0 {
		return nil, docsync.ConfigErrorf("refresh_interval_seconds", "must be positive, got %d", conf.IntervalSeconds)
	}
	if conf.IntervalSeconds == 0 {
		conf.IntervalSeconds = int(dsync.DefaultInterval / time.Second)
	}
	conf.Interval = time.Duration(conf.IntervalSeconds) * time.Second

	if len(conf.Extensions) == 0 {
		conf.Extensions = catalog.DefaultExtensions
	}
	return &conf, nil
}

// validate checks what can be checked without touching the filesystem or the network.
func (c *config) validate() error {
	if c.Interval <= 0 {
		return docsync.ConfigErrorf("refresh_interval_seconds", "must be positive, got %s", c.Interval)
	}
	if c.MinDepth != nil && *c.MinDepth < 0 {
		return docsync.ConfigErrorf("min_depth", "must not be negative")
	}
	if c.MaxDepth != nil && *c.MaxDepth < 0 {
		return docsync.ConfigErrorf("max_depth", "must not be negative")
	}
	if c.MinDepth != nil && c.MaxDepth != nil && *c.MinDepth > *c.MaxDepth {
		return docsync.ConfigErrorf("min_depth", "%d exceeds max_depth %d", *c.MinDepth, *c.MaxDepth)
	}
	if len(c.Targets) == 0 {
		return docsync.ConfigErrorf("targets", "no destinations configured")
	}
	return nil
}

func (c *config) filter() catalog.Filter {
	return catalog.Filter{
		Extensions: c.Extensions,
		Regex:      c.Regex,
		MinDepth:   c.MinDepth,
		MaxDepth:   c.MaxDepth,
	}
}

func (c *config) provider() (*sources.Provider, error) {
	return sources.New(sources.Config{
		Desktop:   c.Desktop,
		Extra:     c.Extra,
		Removable: c.Removable,
	}, nil)
}

func (c *config) syncConfig() dsync.Config {
	return dsync.Config{
		Filter:   c.filter(),
		Interval: c.Interval,
		Watch:    c.Watch,
		Verbose:  c.Verbose,
	}
}

// backends creates every configured target.
// On error, the ones already created are closed.
func (c *config) backends(ctx context.Context) ([]docsync.Backend, error) {
	var out []docsync.Backend
	for i, t := range c.Targets {
		b, err := backend.FromConfig(ctx, t)
		if err != nil {
			closeAll(out)
			return nil, errors.Wrapf(err, "target %d", i)
		}
		out = append(out, b)
	}
	return out, nil
}

func closeAll(backends []docsync.Backend) {
	for _, b := range backends {
		if err := b.Close(); err != nil {
			log.Printf("ERROR closing %s: %s", b.Name(), err)
		}
	}
}
