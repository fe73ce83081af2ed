// Package storage keeps PNG previews of the best capture attempt.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrPreviewNotFound is returned by Get for unknown preview names.
var ErrPreviewNotFound = errors.New("preview not found")

// PreviewRoute is the API path prefix stored previews are served under.
const PreviewRoute = "/api/v1/capture/previews/"

// PreviewStore persists encoded preview images.
type PreviewStore interface {
	// Put stores data under name and returns the API location it is served at
	Put(ctx context.Context, name string, data []byte) (string, error)

	// Get loads a stored preview
	Get(ctx context.Context, name string) ([]byte, error)
}

// PreviewName builds the object name of a session preview.
func PreviewName(sessionID string) string {
	return sanitizeName(sessionID) + ".png"
}

// PreviewLocation is the API path a stored preview can be fetched from.
func PreviewLocation(name string) string {
	return PreviewRoute + strings.TrimSuffix(sanitizeName(name), ".png")
}

// sanitizeName strips any directory components so names cannot escape the
// store root.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." {
		return ""
	}
	return name
}
