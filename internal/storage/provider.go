// Package storage defines the watched-root file-system abstraction
// consumed by the reconciler and the periodic audit.
package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// FileMeta is lightweight metadata for one watched document file.
type FileMeta struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for watched-root file operations.
type Provider interface {
	// List returns metadata for every document file under dir
	// (relative to the watched root).
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to the
	// watched root).
	Read(path string) ([]byte, error)
}

// docExts lists the file extensions treated as documents.
var docExts = map[string]struct{}{
	".md":  {},
	".txt": {},
}

// IsDocFile reports whether path has a watched document extension.
func IsDocFile(path string) bool {
	_, ok := docExts[strings.ToLower(filepath.Ext(path))]
	return ok
}
