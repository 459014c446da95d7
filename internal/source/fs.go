// Package source provides the byte streams the cache parses: the bundled CSV
// files on disk, or the Embrapa download site over HTTP.
package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

// Lookup resolves a dataset ID to its definition. core.Get satisfies it.
type Lookup func(id core.DatasetID) (core.DatasetDefinition, bool)

// FS serves dataset files from a file system, keyed by DatasetDefinition.FileName.
type FS struct {
	fsys   fs.FS
	lookup Lookup
}

// NewFS returns a provider reading from fsys.
func NewFS(fsys fs.FS, lookup Lookup) *FS {
	return &FS{fsys: fsys, lookup: lookup}
}

// NewDir returns a provider reading from a directory on disk.
func NewDir(dir string, lookup Lookup) *FS {
	return NewFS(os.DirFS(dir), lookup)
}

// Open implements core.SourceProvider.
func (p *FS) Open(ctx context.Context, id core.DatasetID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, ok := p.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDataset, id)
	}
	f, err := p.fsys.Open(def.FileName)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	return f, nil
}

// Check verifies that every dataset file exists and is a regular file.
func (p *FS) Check(defs []core.DatasetDefinition) error {
	for _, def := range defs {
		info, err := fs.Stat(p.fsys, def.FileName)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", def.ID, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("dataset %s: %s is not a regular file", def.ID, def.FileName)
		}
	}
	return nil
}
