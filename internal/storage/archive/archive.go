// Package archive cold-stores completed grid-search runs so result sets
// survive a Reset and can be pulled into offline analysis.
package archive

import "context"

// Storage is a flat blob store. Backends: local filesystem, S3-compatible.
type Storage interface {
	// Write stores data at the given path.
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if data exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)
}
