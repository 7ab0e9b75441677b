// Package storage defines the page file-system abstraction.
package storage

import "github.com/starford/notecanvas/internal/models"

// Provider is the interface for page file operations.
type Provider interface {
	// List returns metadata for every page file under dir (relative to the data root).
	List(dir string) ([]models.PageMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the data root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the data root).
	Write(path string, content []byte) error
	// Root returns the absolute data directory.
	Root() string
}
