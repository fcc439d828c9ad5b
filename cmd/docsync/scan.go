package main

import (
	"context"
	"fmt"
	"log"

	"github.com/docsync/docsync"
	"github.com/docsync/docsync/catalog"
)

// scan prints what the next cycle would consider,
// one candidate per line with its destination path,
// and with verbose its fingerprint too.
func (c maincmd) scan(ctx context.Context, verbose bool, _ []string) error {
	provider, err := c.conf.provider()
	if err != nil {
		return err
	}
	roots, err := provider.Roots(ctx)
	if err != nil {
		log.Printf("ERROR %s", err)
	}

	filter := c.conf.filter()
	set := catalog.NewSet()
	for _, root := range roots {
		rootSet, err := catalog.Scan(ctx, root, filter)
		if err != nil {
			log.Printf("ERROR scanning %s: %s", root, err)
			continue
		}
		set.Union(rootSet)
	}

	for _, f := range set.Files() {
		target, err := f.TargetPath()
		if err != nil {
			log.Printf("ERROR %s: %s", f, err)
			continue
		}
		if !verbose {
			fmt.Fprintf(c.out, "%s\t%s\n", f.Path(), target)
			continue
		}
		ref, err := docsync.HashFile(f.Path())
		if err != nil {
			log.Printf("ERROR %s: %s", f, err)
			continue
		}
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", f.Path(), target, ref)
	}
	return nil
}
