// Package storage defines the library directory abstraction.
package storage

import "github.com/starford/catread/internal/models"

// Provider is the interface for library file operations. Paths are relative
// to the library root.
type Provider interface {
	// List returns the regular files directly under the root whose extension
	// matches one of exts (case-insensitive), sorted by name.
	List(exts ...string) ([]models.LibraryFile, error)
	// Stat returns metadata for one file.
	Stat(name string) (models.LibraryFile, error)
	// Read returns the raw bytes of a file.
	Read(name string) ([]byte, error)
	// Write atomically writes content to name.
	Write(name string, content []byte) error
	// Root returns the absolute library directory.
	Root() string
}
