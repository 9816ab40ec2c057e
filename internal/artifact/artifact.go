// Package artifact persists scan artifacts such as HAR recordings.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyKey is returned when an artifact is stored without a key.
var ErrEmptyKey = errors.New("artifact key is required")

// Store saves an artifact and returns where it can be found afterwards.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Local writes artifacts below a directory.
type Local struct {
	dir string
}

// NewLocal returns a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Put writes body to dir/key and returns the file path.
func (l *Local) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	rel := filepath.Clean("/" + key)
	path := filepath.Join(l.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return path, nil
}

// Key builds an artifact key for a page, safe for both file systems and
// object stores.
func Key(prefix, pageURL, ext string) string {
	var sb strings.Builder
	for _, r := range strings.TrimPrefix(strings.TrimPrefix(pageURL, "https://"), "http://") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := strings.Trim(sb.String(), "_")
	if name == "" {
		name = "page"
	}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + name + ext
	}
	return name + ext
}
