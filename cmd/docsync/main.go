// Command docsync copies document files from the desktop, removable media,
// and other configured directories to local and remote destinations,
// checking again every few seconds.
//
// Usage:
//
//	docsync [flags] run
//	docsync [flags] scan
//	docsync [flags] check
//
// See docsync.json.example for the config file format.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/bobg/subcmd"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/docsync/docsync/catalog"
)

type maincmd struct {
	conf *config
	out  io.Writer
}

func main() {
	var (
		configFile = flag.String("config", "docsync.json", "path to config file")
		logfile    = flag.String("logfile", "", "write logs to this file, with rotation (default: stderr)")
		logmaxsize = flag.Int("logmaxsize", 10, "rotate the log file after this many megabytes")
		verbose    = flag.Bool("v", false, "verbose logging")
		interval   = flag.Duration("interval", 0, "pause between cycles (overrides refresh_interval_seconds)")
		removable  = flag.Bool("removable", false, "scan removable volumes (overrides removable)")
		regex      = flag.String("regex", "", "also include files whose names match this regex (overrides regex)")
	)
	flag.Parse()

	if *logfile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   *logfile,
			MaxSize:    *logmaxsize,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	conf, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			conf.Interval = *interval
		case "removable":
			conf.Removable = *removable
		case "regex":
			conf.Regex = *regex
		case "v":
			conf.Verbose = *verbose
		}
	})
	if err = conf.validate(); err != nil {
		log.Fatal(err)
	}
	catalog.Verbose = conf.Verbose

	err = subcmd.Run(context.Background(), maincmd{conf: conf, out: os.Stdout}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"check", c.check, nil,
		"run", c.run, subcmd.Params(
			"lock", subcmd.String, "", "lock file preventing two runs at once (default: in the XDG runtime dir)",
		),
		"scan", c.scan, subcmd.Params(
			"v", subcmd.Bool, false, "also print each candidate's fingerprint",
		),
	)
}
