// Package objectstore uploads binary blobs and returns publicly fetchable URLs.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store puts bytes under a generated path.
type Store interface {
	Put(ctx context.Context, data []byte, key string) (string, error)
}

// Filesystem writes objects below Dir and serves them from BaseURL + "/media/".
type Filesystem struct {
	Dir     string
	BaseURL string
}

// NewFilesystem creates a filesystem store, creating dir if needed.
func NewFilesystem(dir, baseURL string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create %s: %w", dir, err)
	}
	return &Filesystem{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data to Dir/key and returns its public URL.
func (f *Filesystem) Put(ctx context.Context, data []byte, key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Join(f.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write %s: %w", clean, err)
	}
	return f.BaseURL + "/media/" + (&url.URL{Path: clean}).EscapedPath(), nil
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("objectstore: empty key")
	}
	return clean, nil
}
