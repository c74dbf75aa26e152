// Package docfs reads and writes the on-disk JSON body backing a document,
// stored at "<collection.documentsDirectory>/<document.id>.json" (spec.md
// §3). Both internal/ingest (the writer) and internal/planner (the reader,
// via its BodyLoader interface) depend on this package rather than on each
// other.
package docfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lattice/internal/core"
)

// Store reads and writes document bodies under a collection's configured
// directory.
type Store struct{}

func New() Store { return Store{} }

// Path returns the on-disk path a document's body is (or will be) stored at.
func Path(collectionDir, documentID string) string {
	return filepath.Join(collectionDir, documentID+".json")
}

// Write creates collectionDir if needed and writes raw to the document's
// body path. Existing bodies are overwritten, matching the ingestion
// pipeline's step 10 (spec.md §4.8): the document row is already committed
// by the time this runs, so a retry of the same document id is expected to
// be idempotent here too.
func (Store) Write(ctx context.Context, collectionDir, documentID string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(collectionDir, 0o755); err != nil {
		return &core.IOError{Op: "mkdir", Path: collectionDir, Err: err}
	}
	path := Path(collectionDir, documentID)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return &core.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Load reads a document's body back. It satisfies internal/planner.BodyLoader.
func (Store) Load(ctx context.Context, collectionDir, documentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := Path(collectionDir, documentID)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.IOError{Op: "read", Path: path, Err: err}
	}
	return raw, nil
}

// Remove deletes a document's body, used by ingestion's step-10 compensating
// cleanup and by collection/document deletion. A missing file is not an
// error: deletion is idempotent.
func (Store) Remove(ctx context.Context, collectionDir, documentID string) error {
	path := Path(collectionDir, documentID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &core.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// RemoveCollectionDir deletes an entire collection's document directory,
// used when a collection itself is deleted. A missing directory is not an
// error.
func (Store) RemoveCollectionDir(ctx context.Context, collectionDir string) error {
	if err := os.RemoveAll(collectionDir); err != nil {
		return &core.IOError{Op: "rmdir", Path: collectionDir, Err: fmt.Errorf("%w", err)}
	}
	return nil
}
