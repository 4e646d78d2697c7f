package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes under a local directory that the server exposes on /media.
type DiskStore struct {
	Dir     string
	BaseURL string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{Dir: dir, BaseURL: "/media"}
}

func (d *DiskStore) Put(_ context.Context, key, _ string, r io.Reader, size int64) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	full := filepath.Join(d.Dir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	src := r
	if size >= 0 {
		src = io.LimitReader(r, size+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: got %d bytes, want %d", n, size)
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return d.BaseURL + "/" + filepath.ToSlash(clean), nil
}
