// Package collection provides collection lifecycle operations on top of the
// repository port: plain CRUD plus the cascading delete spec.md §3 describes
// ("deleting a collection cascades to ... every value row belonging to its
// documents") but the repository port alone only reaches (metadata rows;
// this package also removes the documents' on-disk bodies, since deleting a
// collection's rows without deleting its directory would leave orphaned
// files behind.
package collection

import (
	"context"

	"lattice/internal/core"
	"lattice/internal/docfs"
	"lattice/internal/repository"
)

// Service wraps a Repository with the filesystem side-effects collection
// lifecycle operations need.
type Service struct {
	repo  repository.Repository
	files docfs.Store
}

func New(repo repository.Repository) *Service {
	return &Service{repo: repo, files: docfs.New()}
}

// Create persists a new collection, delegating id assignment to the
// repository (see internal/ids).
func (s *Service) Create(ctx context.Context, c *core.Collection) error {
	return s.repo.CreateCollection(ctx, c)
}

func (s *Service) Get(ctx context.Context, id string) (*core.Collection, error) {
	return s.repo.GetCollection(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]core.Collection, error) {
	return s.repo.ListCollections(ctx)
}

func (s *Service) Update(ctx context.Context, c *core.Collection) error {
	return s.repo.UpdateCollection(ctx, c)
}

// Delete removes a collection's metadata, index values, and document
// bodies. The metadata/index-value deletion happens first (DeleteCollection
// run inside one repository transaction); the directory removal
// is a best-effort step after that commit, matching the ingestion
// pipeline's convention of treating filesystem state as downstream of
// metadata state rather than the other way around.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.WithinTransaction(ctx, func(ctx context.Context, tx repository.Repository) error {
		return tx.DeleteCollection(ctx, id)
	}); err != nil {
		return err
	}
	if c.DocumentsDirectory == "" {
		return nil
	}
	return s.files.RemoveCollectionDir(ctx, c.DocumentsDirectory)
}

// DeleteDocument removes a single document's metadata, index values, and
// on-disk body — the explicit per-document delete spec.md §3 describes
// ("deleted explicitly (removes value rows and body file)"), distinct from
// the cascading collection-level Delete above. The repository's
// DeleteDocument call already reaches the value rows, labels, and tags; this
// method adds the body-file removal repo.DeleteDocument can't reach on its
// own, the same division of responsibility Delete uses for collections.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	c, err := s.repo.GetCollection(ctx, doc.CollectionID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if c.DocumentsDirectory == "" {
		return nil
	}
	return s.files.Remove(ctx, c.DocumentsDirectory, documentID)
}

// AddFieldConstraint declares one validation rule for the collection.
func (s *Service) AddFieldConstraint(ctx context.Context, fc *core.FieldConstraint) error {
	return s.repo.CreateFieldConstraint(ctx, fc)
}

// FieldConstraints lists the collection's declared validation rules.
func (s *Service) FieldConstraints(ctx context.Context, collectionID string) ([]core.FieldConstraint, error) {
	return s.repo.ListFieldConstraints(ctx, collectionID)
}

// AddIndexedField marks path for indexing under IndexingSelective.
func (s *Service) AddIndexedField(ctx context.Context, f *core.IndexedField) error {
	return s.repo.CreateIndexedField(ctx, f)
}

// IndexedFields lists the paths selected for indexing under IndexingSelective.
func (s *Service) IndexedFields(ctx context.Context, collectionID string) ([]core.IndexedField, error) {
	return s.repo.ListIndexedFields(ctx, collectionID)
}
