package locator

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// DefaultPattern matches live and rotated tracesbc_sip files whose names
// embed an epoch timestamp, e.g. tracesbc_sip_1747386600.
const DefaultPattern = "tracesbc_sip_[1-9][0-9][0-9]*[!_][!_]"

var reToken = regexp.MustCompile(`[0-9]+`)

// Locator selects trace files in a directory by name pattern. Ordering is
// derived from the numeric token embedded in the filename, not mtime: the
// appliance naming convention guarantees the token is monotonic.
type Locator struct {
	fs      afero.Fs
	dir     string
	pattern string
}

// New creates a Locator over the given filesystem. An empty pattern falls
// back to DefaultPattern.
func New(fs afero.Fs, dir, pattern string) *Locator {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Locator{fs: fs, dir: dir, pattern: pattern}
}

// List returns all matching files ordered oldest to newest.
func (l *Locator) List() ([]string, error) {
	infos, err := afero.ReadDir(l.fs, l.dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		ok, err := doublestar.Match(l.pattern, fi.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, fi.Name())
		}
	}

	sort.Slice(names, func(i, j int) bool {
		ti, tj := token(names[i]), token(names[j])
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(l.dir, n)
	}
	return paths, nil
}

// Latest returns the newest matching file, or "" if none match.
func (l *Locator) Latest() (string, error) {
	paths, err := l.List()
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", nil
	}
	return paths[len(paths)-1], nil
}

// Count returns the number of matching files; used for gauges only.
func (l *Locator) Count() int {
	paths, err := l.List()
	if err != nil {
		return 0
	}
	return len(paths)
}

// Compressed reports whether a path refers to a compressed historical file.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".bz2")
}

// token extracts the embedded numeric ordering token from a file name.
// Files without a token sort before all files with one.
func token(name string) int64 {
	m := reToken.FindString(name)
	if m == "" {
		return -1
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
