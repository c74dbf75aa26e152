package ingest_test

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
	"lattice/internal/repository"
	_ "lattice/internal/repository/sqlite"
)

func openRepo(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.Open(context.Background(), repository.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestIngestAllModeWritesMetadataIndexAndBody(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := t.TempDir()

	c := &core.Collection{Name: "events", DocumentsDirectory: dir, IndexingMode: core.IndexingAll}
	require.NoError(t, repo.CreateCollection(ctx, c))

	p := ingest.New(repo, nil)
	doc, err := p.Ingest(ctx, ingest.Input{
		CollectionID: c.ID,
		Name:         "event-1",
		Labels:       []string{"important"},
		Tags:         map[string]string{"env": "prod"},
		Body:         []byte(`{"user":{"email":"a@example.com"},"count":3}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	body, err := os.ReadFile(filepath.Join(dir, doc.ID+".json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{"email":"a@example.com"},"count":3}`, string(body))

	mapping, err := repo.FindMappingByKey(ctx, "user.email")
	require.NoError(t, err)
	require.NotNil(t, mapping)

	ids, err := repo.Scan(ctx, mapping.TableName, query.Filter{Condition: query.Eq, Value: "a@example.com"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{doc.ID}, ids)

	labels, err := repo.ListLabels(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "important", labels[0].Value)
}

func TestIngestNoneModeSkipsIndexing(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := t.TempDir()

	c := &core.Collection{Name: "events", DocumentsDirectory: dir, IndexingMode: core.IndexingNone}
	require.NoError(t, repo.CreateCollection(ctx, c))

	p := ingest.New(repo, nil)
	doc, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":1}`)})
	require.NoError(t, err)

	mapping, err := repo.FindMappingByKey(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, mapping)
	assert.NotEmpty(t, doc.ID)
}

func TestIngestSelectiveModeKeepsOnlyIndexedFields(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := t.TempDir()

	c := &core.Collection{Name: "events", DocumentsDirectory: dir, IndexingMode: core.IndexingSelective}
	require.NoError(t, repo.CreateCollection(ctx, c))
	require.NoError(t, repo.CreateIndexedField(ctx, &core.IndexedField{CollectionID: c.ID, FieldPath: "x"}))

	p := ingest.New(repo, nil)
	_, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":1,"y":2}`)})
	require.NoError(t, err)

	xMapping, err := repo.FindMappingByKey(ctx, "x")
	require.NoError(t, err)
	assert.NotNil(t, xMapping)

	yMapping, err := repo.FindMappingByKey(ctx, "y")
	require.NoError(t, err)
	assert.Nil(t, yMapping)
}

func TestIngestSchemaDedupAcrossDocumentsWithSameShape(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := t.TempDir()

	c := &core.Collection{Name: "events", DocumentsDirectory: dir, IndexingMode: core.IndexingAll}
	require.NoError(t, repo.CreateCollection(ctx, c))

	p := ingest.New(repo, nil)
	first, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":1}`)})
	require.NoError(t, err)
	second, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"x":2}`)})
	require.NoError(t, err)

	assert.Equal(t, first.SchemaID, second.SchemaID)
}

func TestIngestRejectsInvalidDocumentUnderStrictEnforcement(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := t.TempDir()

	c := &core.Collection{Name: "events", DocumentsDirectory: dir, SchemaEnforcement: core.EnforcementStrict}
	require.NoError(t, repo.CreateCollection(ctx, c))
	require.NoError(t, repo.CreateFieldConstraint(ctx, &core.FieldConstraint{
		CollectionID: c.ID, FieldPath: "email", DataType: core.TypeString, Required: true,
	}))

	p := ingest.New(repo, nil)
	_, err := p.Ingest(ctx, ingest.Input{CollectionID: c.ID, Body: []byte(`{"other":1}`)})
	require.Error(t, err)
	var valErr *core.SchemaValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestIngestUnknownCollectionFails(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	p := ingest.New(repo, nil)

	_, err := p.Ingest(ctx, ingest.Input{CollectionID: "col_missing", Body: []byte(`{}`)})
	require.Error(t, err)
	var notFound *core.CollectionNotFoundError
	require.ErrorAs(t, err, &notFound)
}
