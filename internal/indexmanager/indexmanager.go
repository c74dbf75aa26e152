// Package indexmanager provisions and maintains the per-path idx_* tables
// spec.md §4.2 and §4.10 describe: a global index-table-mapping registry
// plus the physical tables themselves. Ingestion and rebuild both go through
// here rather than talking to the repository port's mapping/table methods
// directly, so the "ensure it exists, racing is fine" contract lives in one
// place (spec.md §5: the loser of a concurrent create races the unique
// index on indextablemappings.key and must reuse, never fail).
package indexmanager

import (
	"context"

	"lattice/internal/core"
	"lattice/internal/hashutil"
	"lattice/internal/ids"
	"lattice/internal/repository"
)

// Manager ensures index tables exist and routes value inserts to them by path
// rather than by physical table name. Scans and deletes go through the
// repository port directly.
type Manager struct {
	repo repository.Repository
}

func New(repo repository.Repository) *Manager {
	return &Manager{repo: repo}
}

// Ensure returns the physical table name backing path, creating the mapping
// row and the table itself if this is the first time path has been seen.
// Safe to call concurrently for the same path from different goroutines or
// processes: the loser of the mapping-row race reuses the winner's table
// name (repository.CreateMapping already implements the lookup-and-reuse).
func (m *Manager) Ensure(ctx context.Context, path string) (string, error) {
	existing, err := m.repo.FindMappingByKey(ctx, path)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.TableName, nil
	}

	tableName := hashutil.IndexTableName(path)
	mapping := &core.IndexTableMapping{ID: ids.New(ids.PrefixIndexTableMap), Key: path, TableName: tableName}
	if err := m.repo.CreateMapping(ctx, mapping); err != nil {
		return "", err
	}
	if err := m.repo.CreateIndexTable(ctx, mapping.TableName); err != nil {
		return "", err
	}
	return mapping.TableName, nil
}

// InsertValues provisions path's table (if needed) and inserts rows into it.
func (m *Manager) InsertValues(ctx context.Context, path string, rows []core.IndexedValue) error {
	tableName, err := m.Ensure(ctx, path)
	if err != nil {
		return err
	}
	return m.repo.InsertValues(ctx, tableName, rows)
}

// TableForPath resolves path to its physical table name without creating
// anything; callers that only need to scan (never to insert) use this to
// avoid provisioning a table for a path nothing has ever written.
func (m *Manager) TableForPath(ctx context.Context, path string) (string, bool, error) {
	mapping, err := m.repo.FindMappingByKey(ctx, path)
	if err != nil {
		return "", false, err
	}
	if mapping == nil {
		return "", false, nil
	}
	return mapping.TableName, true, nil
}

// TablesForCollection lists every physical table any document in collectionID
// currently has a value row in.
func (m *Manager) TablesForCollection(ctx context.Context, collectionID string) ([]core.IndexTableMapping, error) {
	return m.repo.ListTablesForCollection(ctx, collectionID)
}
