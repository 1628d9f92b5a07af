// Package storage defines the file-tree abstraction the cleaner reads the
// export from and writes the cleaned tree to.
package storage

import (
	"io"

	"github.com/starford/notionclean/internal/models"
)

// Provider is the interface for tree operations. All paths are relative to
// the provider root and use forward slashes.
type Provider interface {
	// Root returns the absolute directory the provider is rooted at.
	Root() string
	// List returns every file under dir whose extension equals ext.
	// An empty ext matches all files.
	List(dir, ext string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Open opens the file at path for streaming reads.
	Open(path string) (io.ReadCloser, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Copy atomically streams r into path, creating parent directories.
	Copy(path string, r io.Reader) error
	// Delete removes the file at path.
	Delete(path string) error
}
