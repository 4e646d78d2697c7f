package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ImageStore keeps uploaded product images and avatars and returns the URL
// they are served from.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Extension returns the file extension for an accepted image content type.
func Extension(contentType string) (string, bool) {
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// NewKey builds a unique object key under prefix ("products", "avatars", ...).
func NewKey(prefix, owner, contentType string) (string, error) {
	ext, ok := Extension(contentType)
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}
	return path.Join(prefix, owner, uuid.NewString()+ext), nil
}
