package catalog

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

// Set is a collection of Files keyed by absolute path.
type Set struct {
	m map[string]*File
}

func NewSet() *Set {
	return &Set{m: make(map[string]*File)}
}

// Add adds f unless a File with the same path is already present.
// It reports whether f was added.
func (s *Set) Add(f *File) bool {
	p := f.Path()
	if _, ok := s.m[p]; ok {
		return false
	}
	s.m[p] = f
	return true
}

// Union adds every member of other to s.
func (s *Set) Union(other *Set) {
	for _, f := range other.m {
		s.Add(f)
	}
}

func (s *Set) Len() int {
	return len(s.m)
}

// Files returns the members of s ordered by path.
func (s *Set) Files() []*File {
	out := make([]*File, 0, len(s.m))
	for _, f := range s.m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// Verbose enables a log line for every file Scan includes.
var Verbose bool

// Scan walks root and returns the files that pass filter.
//
// Excluded entries are never descended into.
// Unreadable entries are logged and contribute nothing.
// An invalid Regex is logged and treated as matching nothing.
// Scan fails only if root itself cannot be read or ctx is canceled.
func Scan(ctx context.Context, root *Root, filter Filter) (*Set, error) {
	m, err := filter.matcher()
	if err != nil {
		log.Printf("WARNING invalid regex %q, treating as no match: %s", filter.Regex, err)
	}

	set := NewSet()

	err = util.Walk(root.FS, "/", func(p string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if err != nil {
			if rel == "" {
				return errors.Wrapf(err, "reading root %s", root.Path)
			}
			log.Printf("ERROR scanning %s in %s: %s", rel, root.Path, err)
			return nil
		}
		if rel == "" {
			return nil
		}

		var (
			isDir = info.IsDir()
			depth = strings.Count(rel, "/") + 1
		)

		if Excluded(info.Name()) {
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isDir {
			if filter.MaxDepth != nil && depth >= *filter.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if filter.MinDepth != nil && depth < *filter.MinDepth {
			return nil
		}
		if filter.MaxDepth != nil && depth > *filter.MaxDepth {
			return nil
		}
		if !m.match(info.Name()) {
			return nil
		}

		if set.Add(NewFile(root, rel)) && Verbose {
			log.Printf("candidate %s in %s", rel, root.Path)
		}
		return nil
	})
	return set, err
}
