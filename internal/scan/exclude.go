package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// LoadIgnoreFile compiles a gitignore-syntax file of URL path rules. A
// missing file yields nil and no error.
func LoadIgnoreFile(path string) (*ignore.GitIgnore, error) {
	if path == "" {
		return nil, nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading ignore file %s: %w", path, err)
	}
	return gi, nil
}

// exclusions decides whether a URL is skipped by path rules. Patterns are
// doublestar globs matched against the URL path, e.g. "/blog/**".
type exclusions struct {
	patterns []string
	ignore   *ignore.GitIgnore
}

func newExclusions(patterns []string, gi *ignore.GitIgnore) exclusions {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" && doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		}
	}
	return exclusions{patterns: valid, ignore: gi}
}

// Match reports whether rawURL is excluded by a path rule.
func (e exclusions) Match(rawURL string) bool {
	if len(e.patterns) == 0 && e.ignore == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, p := range e.patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	if e.ignore != nil {
		if rel := strings.TrimPrefix(path, "/"); rel != "" && e.ignore.MatchesPath(rel) {
			return true
		}
	}
	return false
}
