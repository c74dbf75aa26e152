// Package ingest implements the document ingestion pipeline spec.md §4.8
// describes: validate, extract/dedupe a schema, flatten, apply the
// collection's indexing policy, persist metadata and index values inside a
// single transaction, then write the body to disk.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"

	"lattice/internal/core"
	"lattice/internal/docfs"
	"lattice/internal/extractor"
	"lattice/internal/indexmanager"
	"lattice/internal/jsonflat"
	"lattice/internal/repository"
	"lattice/internal/retry"
	"lattice/internal/validator"
)

// Input is one document submitted for ingestion.
type Input struct {
	CollectionID string
	Name         string
	Labels       []string
	Tags         map[string]string
	Body         []byte
}

// Pipeline runs Input through the steps spec.md §4.8 lists.
type Pipeline struct {
	repo  repository.Repository
	index *indexmanager.Manager
	files docfs.Store
	log   *log.Logger
}

func New(repo repository.Repository, log *log.Logger) *Pipeline {
	return &Pipeline{repo: repo, index: indexmanager.New(repo), files: docfs.New(), log: log}
}

// Ingest runs the full pipeline for one document and returns its persisted
// core.Document row.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (*core.Document, error) {
	// Step 1: resolve collection. Retried under transient backend failure —
	// the first repository round trip in the pipeline, and the one most
	// likely to race a not-yet-warm connection pool.
	var coll *core.Collection
	err := retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		var err error
		coll, err = p.repo.GetCollection(ctx, in.CollectionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Step 2: schema validation, skipped entirely under EnforcementNone.
	if coll.SchemaEnforcement != core.EnforcementNone {
		constraints, err := p.repo.ListFieldConstraints(ctx, coll.ID)
		if err != nil {
			return nil, err
		}
		result, err := validator.Validate(in.Body, coll.SchemaEnforcement, constraints)
		if err != nil {
			return nil, err
		}
		if !result.OK() {
			return nil, &core.SchemaValidationError{CollectionID: coll.ID, Errors: result.Errors}
		}
	}

	// Step 3: extract elements + fingerprint; step 4: flatten.
	extracted, err := extractor.Extract(in.Body)
	if err != nil {
		return nil, err
	}
	records, err := jsonflat.Flatten(in.Body)
	if err != nil {
		return nil, err
	}

	// Step 5: apply indexing policy.
	retained, err := p.applyIndexingPolicy(ctx, coll, records)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Body)
	doc := &core.Document{
		CollectionID:  coll.ID,
		Name:          in.Name,
		ContentLength: int64(len(in.Body)),
		SHA256:        hex.EncodeToString(sum[:]),
	}

	// Steps 3 (persist), 6, 7, 8, 9 run inside one transaction, retried as a
	// whole on a transient failure — WithinTransaction itself rolls back
	// cleanly on any error, so a retry here re-runs against a consistent
	// starting state rather than risking a partially-applied transaction.
	err = retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		return p.repo.WithinTransaction(ctx, func(ctx context.Context, tx repository.Repository) error {
			schema, err := findOrCreateSchema(ctx, tx, extracted)
			if err != nil {
				return err
			}
			doc.SchemaID = schema.ID

			if err := tx.CreateDocument(ctx, doc); err != nil {
				return err
			}

			if len(in.Labels) > 0 {
				if err := tx.CreateLabels(ctx, doc.ID, in.Labels); err != nil {
					return err
				}
			}
			if len(in.Tags) > 0 {
				if err := tx.CreateDocumentTags(ctx, doc.ID, in.Tags); err != nil {
					return err
				}
			}

			return insertValuesByPath(ctx, indexmanager.New(tx), retained, doc.ID)
		})
	})
	if err != nil {
		return nil, err
	}

	// Step 10: write the body to disk after commit; compensate on failure.
	if err := p.files.Write(ctx, coll.DocumentsDirectory, doc.ID, in.Body); err != nil {
		p.cleanup(ctx, doc.ID)
		return nil, err
	}

	doc.Labels = in.Labels
	doc.Tags = in.Tags
	return doc, nil
}

// applyIndexingPolicy implements spec.md §4.8 step 5.
func (p *Pipeline) applyIndexingPolicy(ctx context.Context, coll *core.Collection, records []jsonflat.Record) ([]jsonflat.Record, error) {
	switch coll.IndexingMode {
	case core.IndexingAll:
		return records, nil
	case core.IndexingNone:
		return nil, nil
	case core.IndexingSelective:
		selected, err := p.repo.ListIndexedFields(ctx, coll.ID)
		if err != nil {
			return nil, err
		}
		allowed := make(map[string]bool, len(selected))
		for _, f := range selected {
			allowed[f.FieldPath] = true
		}
		out := make([]jsonflat.Record, 0, len(records))
		for _, r := range records {
			if allowed[r.Path] {
				out = append(out, r)
			}
		}
		return out, nil
	default:
		return records, nil
	}
}

// findOrCreateSchema implements spec.md §4.8 step 3: look up an existing
// schema by fingerprint, or insert a new one with its element rows.
func findOrCreateSchema(ctx context.Context, tx repository.Repository, extracted extractor.Result) (*core.Schema, error) {
	existing, err := tx.FindSchemaByHash(ctx, extracted.Fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	schema, err := tx.CreateSchema(ctx, extracted.Fingerprint)
	if err != nil {
		return nil, err
	}

	elements := make([]core.SchemaElement, 0, len(extracted.Elements))
	for i, e := range extracted.Elements {
		elements = append(elements, core.SchemaElement{
			SchemaID: schema.ID,
			Position: i,
			Key:      e.Key,
			DataType: e.DataType,
			Nullable: e.Nullable,
		})
	}
	if len(elements) > 0 {
		if err := tx.CreateSchemaElements(ctx, elements); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

// insertValuesByPath implements spec.md §4.8 steps 6 and 9: ensure a
// physical index table exists for every distinct retained path, then
// batch-insert its value rows.
func insertValuesByPath(ctx context.Context, idx *indexmanager.Manager, records []jsonflat.Record, documentID string) error {
	byPath := make(map[string][]jsonflat.Record)
	var order []string
	for _, r := range records {
		if _, ok := byPath[r.Path]; !ok {
			order = append(order, r.Path)
		}
		byPath[r.Path] = append(byPath[r.Path], r)
	}

	for _, path := range order {
		rows := make([]core.IndexedValue, 0, len(byPath[path]))
		for _, r := range byPath[path] {
			rows = append(rows, core.IndexedValue{DocumentID: documentID, Position: r.Position, Value: r.Value})
		}
		if err := idx.InsertValues(ctx, path, rows); err != nil {
			return err
		}
	}
	return nil
}

// cleanup performs the best-effort compensating deletion spec.md §4.8
// requires when step 10 fails after the metadata transaction has already
// committed: the document row, its labels/tags, and its index values.
func (p *Pipeline) cleanup(ctx context.Context, documentID string) {
	if err := p.repo.DeleteDocument(ctx, documentID); err != nil {
		p.logf("ingest: compensating cleanup failed for document %s: %v", documentID, err)
	}
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
