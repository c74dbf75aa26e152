package rebuild_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/core"
	"lattice/internal/ingest"
	"lattice/internal/query"
	"lattice/internal/rebuild"
	"lattice/internal/repository"
	_ "lattice/internal/repository/sqlite"
)

func setup(t *testing.T, mode core.IndexingMode) (repository.Repository, *core.Collection) {
	t.Helper()
	repo, err := repository.Open(context.Background(), repository.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	c := &core.Collection{Name: "events", DocumentsDirectory: t.TempDir(), IndexingMode: mode}
	require.NoError(t, repo.CreateCollection(context.Background(), c))
	return repo, c
}

func TestRebuildReindexesAfterExternalValueCorruption(t *testing.T) {
	ctx := context.Background()
	repo, c := setup(t, core.IndexingAll)

	p := ingest.New(repo, nil)
	doc, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":1}`)})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteValuesByCollection(ctx, c.ID))
	mapping, err := repo.FindMappingByKey(ctx, "x")
	require.NoError(t, err)
	empty, err := repo.Scan(ctx, mapping.TableName, query.Filter{Condition: query.Eq, Value: "1"})
	require.NoError(t, err)
	require.Empty(t, empty)

	engine := rebuild.New(repo)
	result, err := engine.Rebuild(ctx, c.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsIndexed)
	assert.Empty(t, result.Errors)

	restored, err := repo.Scan(ctx, mapping.TableName, query.Filter{Condition: query.Eq, Value: "1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{doc.ID}, restored)
}

func TestRebuildDropsTablesNoLongerSelected(t *testing.T) {
	ctx := context.Background()
	repo, c := setup(t, core.IndexingAll)

	p := ingest.New(repo, nil)
	_, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":1,"y":2}`)})
	require.NoError(t, err)
	require.NotEmpty(t, mustTable(t, repo, "y"))

	// Switch to selective indexing of "x" only: "y" is no longer selected
	// going into the rebuild.
	require.NoError(t, repo.CreateIndexedField(ctx, &core.IndexedField{CollectionID: c.ID, FieldPath: "x"}))
	coll, err := repo.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	coll.IndexingMode = core.IndexingSelective
	require.NoError(t, repo.UpdateCollection(ctx, coll))

	engine := rebuild.New(repo)
	var events []rebuild.Progress
	result, err := engine.Rebuild(ctx, c.ID, true, func(p rebuild.Progress) { events = append(events, p) })
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsIndexed)
	assert.Equal(t, 1, result.IndexesDropped)

	yMapping, err := repo.FindMappingByKey(ctx, "y")
	require.NoError(t, err)
	yRows, err := repo.Scan(ctx, yMapping.TableName, query.Filter{Condition: query.Eq, Value: "2"})
	require.NoError(t, err)
	assert.Empty(t, yRows, "y should stay empty: it was dropped before reindexing, and selective reindex only reinserts x")

	xMapping, err := repo.FindMappingByKey(ctx, "x")
	require.NoError(t, err)
	xRows, err := repo.Scan(ctx, xMapping.TableName, query.Filter{Condition: query.Eq, Value: "1"})
	require.NoError(t, err)
	assert.NotEmpty(t, xRows)

	assert.NotEmpty(t, events)
}

func TestRebuildReportsPerDocumentErrorOnMissingBody(t *testing.T) {
	ctx := context.Background()
	repo, c := setup(t, core.IndexingAll)

	p := ingest.New(repo, nil)
	doc, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":1}`)})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(c.DocumentsDirectory, doc.ID+".json")))

	engine := rebuild.New(repo)
	result, err := engine.Rebuild(ctx, c.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DocumentsIndexed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, doc.ID, result.Errors[0].DocumentID)
}

func TestRebuildCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo, c := setup(t, core.IndexingAll)

	engine := rebuild.New(repo)
	result, err := engine.Rebuild(ctx, c.ID, false, nil)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}

func mustTable(t *testing.T, repo repository.Repository, path string) string {
	t.Helper()
	m, err := repo.FindMappingByKey(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.TableName
}
