package catalog

import (
	"path"
	"regexp"
	"strings"
)

// DefaultExtensions is the set of document types synchronized when none are configured.
var DefaultExtensions = []string{
	"ppt", "pptx", "odp",
	"doc", "docx", "odt",
	"xls", "xlsx", "ods",
	"csv", "txt", "md",
}

// Filter says which files a scan includes.
type Filter struct {
	// Extensions are lowercase and without a leading dot.
	// A file whose extension, lowercased, is in this list is included.
	Extensions []string

	// Regex, if set, is matched against the base name of files not included by extension.
	Regex string

	// MinDepth and MaxDepth bound the depth of included files,
	// inclusively.
	// The root itself is at depth 0
	// and a file directly inside it is at depth 1,
	// so a MaxDepth of 0 includes nothing.
	// Nil means no bound.
	MinDepth, MaxDepth *int
}

// Depth is a convenience for setting Filter.MinDepth and Filter.MaxDepth.
func Depth(n int) *int {
	return &n
}

// Excluded tells whether a directory entry is skipped outright,
// without descending into it if it is a directory:
// dotfiles, names starting with an underscore, and office lock files.
func Excluded(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "_") ||
		strings.HasPrefix(name, "~$")
}

type matcher struct {
	exts map[string]bool
	re   *regexp.Regexp
}

func (f Filter) matcher() (*matcher, error) {
	m := &matcher{exts: make(map[string]bool)}
	for _, e := range f.Extensions {
		m.exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	if f.Regex != "" {
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return m, err
		}
		m.re = re
	}
	return m, nil
}

// match applies the inclusion test to a base name.
// An extension hit short-circuits the regex.
func (m *matcher) match(name string) bool {
	if ext := path.Ext(name); ext != "" && m.exts[strings.ToLower(ext[1:])] {
		return true
	}
	return m.re != nil && m.re.MatchString(name)
}
