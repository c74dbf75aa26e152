// Package rebuild implements the index rebuild engine spec.md §4.9
// describes: re-derive every index value for a collection's documents from
// their on-disk bodies, optionally deleting this collection's value rows from
// the index tables of paths the current indexedfields selection no longer
// covers. The tables themselves are shared across collections and are not
// dropped.
package rebuild

import (
	"context"

	"lattice/internal/core"
	"lattice/internal/docfs"
	"lattice/internal/indexmanager"
	"lattice/internal/jsonflat"
	"lattice/internal/repository"
)

// Phase names the engine's progress boundaries.
type Phase string

const (
	PhaseScanning Phase = "scanning"
	PhaseDropping Phase = "dropping"
	PhaseClearing Phase = "clearing"
	PhaseIndexing Phase = "indexing"
)

// Progress is one event reported through a Progress callback: a phase
// boundary (DocumentID empty) or a per-document completion within Indexing.
type Progress struct {
	Phase      Phase
	DocumentID string
	Processed  int
	Total      int
}

// DocumentError pairs a document id with the error hit while reindexing it;
// per-document failures don't abort the rebuild (spec.md §4.9 step 4).
type DocumentError struct {
	DocumentID string
	Err        error
}

// Result is the outcome spec.md §4.9's contract returns.
type Result struct {
	DocumentsIndexed int
	IndexesDropped   int
	Errors           []DocumentError
	Cancelled        bool
}

// Engine runs rebuilds against a Repository and the on-disk document bodies
// a collection's documents were written to by internal/ingest.
type Engine struct {
	repo  repository.Repository
	index *indexmanager.Manager
	files docfs.Store
}

func New(repo repository.Repository) *Engine {
	return &Engine{repo: repo, index: indexmanager.New(repo), files: docfs.New()}
}

// ProgressFunc receives Progress events as the rebuild advances.
type ProgressFunc func(Progress)

// Rebuild runs the four phases spec.md §4.9 describes for collectionID.
// dropUnused only takes effect when the collection's IndexingMode is
// Selective — spec.md step 2 scopes dropping to that mode specifically,
// since All/None never leave an indexedfields selection to fall out of
// date. progress may be nil. ctx cancellation is checked between documents
// and at each phase boundary; a cancelled rebuild returns the partial
// Result with Cancelled set, not an error, so a caller always gets back
// whatever work had already committed.
func (e *Engine) Rebuild(ctx context.Context, collectionID string, dropUnused bool, progress ProgressFunc) (Result, error) {
	var result Result
	report := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	coll, err := e.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return result, err
	}

	// Phase 1: Scanning.
	report(Progress{Phase: PhaseScanning})
	docs, err := e.repo.ListDocumentsByCollection(ctx, collectionID)
	if err != nil {
		return result, err
	}
	report(Progress{Phase: PhaseScanning, Total: len(docs)})

	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	// Phase 2: Dropping (Selective mode + dropUnused only).
	if dropUnused && coll.IndexingMode == core.IndexingSelective {
		report(Progress{Phase: PhaseDropping})
		dropped, err := e.dropUnusedTables(ctx, coll)
		if err != nil {
			return result, err
		}
		result.IndexesDropped = dropped
	}
	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	// Phase 3: Clearing.
	report(Progress{Phase: PhaseClearing})
	if err := e.repo.DeleteValuesByCollection(ctx, collectionID); err != nil {
		return result, err
	}
	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	// Phase 4: Indexing.
	var selective map[string]bool
	if coll.IndexingMode == core.IndexingSelective {
		fields, err := e.repo.ListIndexedFields(ctx, collectionID)
		if err != nil {
			return result, err
		}
		selective = make(map[string]bool, len(fields))
		for _, f := range fields {
			selective[f.FieldPath] = true
		}
	}

	for i, d := range docs {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}

		if err := e.reindexDocument(ctx, coll, d, selective); err != nil {
			result.Errors = append(result.Errors, DocumentError{DocumentID: d.ID, Err: err})
		} else {
			result.DocumentsIndexed++
		}
		report(Progress{Phase: PhaseIndexing, DocumentID: d.ID, Processed: i + 1, Total: len(docs)})
	}

	return result, nil
}

// dropUnusedTables implements spec.md §4.9 phase 2: for every table this
// collection currently references whose path is not in the live
// indexedfields selection, delete this collection's value rows from it.
func (e *Engine) dropUnusedTables(ctx context.Context, coll *core.Collection) (int, error) {
	current, err := e.repo.ListTablesForCollection(ctx, coll.ID)
	if err != nil {
		return 0, err
	}
	fields, err := e.repo.ListIndexedFields(ctx, coll.ID)
	if err != nil {
		return 0, err
	}
	selected := make(map[string]bool, len(fields))
	for _, f := range fields {
		selected[f.FieldPath] = true
	}

	dropped := 0
	for _, m := range current {
		if selected[m.Key] {
			continue
		}
		if err := e.repo.DeleteValuesFromTable(ctx, m.TableName, coll.ID); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}

// reindexDocument implements spec.md §4.9 phase 4 for one document: load its
// body, flatten, filter by the current indexing policy, ensure tables exist,
// batch-insert.
func (e *Engine) reindexDocument(ctx context.Context, coll *core.Collection, d core.Document, selective map[string]bool) error {
	if coll.IndexingMode == core.IndexingNone {
		return nil
	}

	raw, err := e.files.Load(ctx, coll.DocumentsDirectory, d.ID)
	if err != nil {
		return err
	}
	records, err := jsonflat.Flatten(raw)
	if err != nil {
		return err
	}

	if selective != nil {
		filtered := records[:0]
		for _, r := range records {
			if selective[r.Path] {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

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
			rows = append(rows, core.IndexedValue{DocumentID: d.ID, Position: r.Position, Value: r.Value})
		}
		if err := e.index.InsertValues(ctx, path, rows); err != nil {
			return err
		}
	}
	return nil
}
