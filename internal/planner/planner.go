// Package planner executes a structured SearchQuery against the repository
// port per spec.md §4.7: resolve each filter to an index table, scan and
// intersect, restrict to the collection, then fetch, order, and paginate
// metadata.
package planner

import (
	"context"
	"sort"

	"lattice/internal/core"
	"lattice/internal/query"
	"lattice/internal/repository"
)

// SearchQuery is the structured input the planner runs, equivalent whether
// it was parsed from SQL text or built directly by a caller.
type SearchQuery struct {
	CollectionID   string
	Filters        []query.Filter
	Labels         []string
	Tags           map[string]string
	OrderBy        query.OrderKey
	OrderDirection query.OrderDirection
	MaxResults     int
	Skip           int

	IncludeContent bool
	IncludeLabels  bool
	IncludeTags    bool
}

// FromParsedQuery composes a SearchQuery around a ParsedQuery, the split
// spec.md §4.7 describes between SQL-derived filters/ordering and the
// caller-supplied collection scope and inclusion flags.
func FromParsedQuery(collectionID string, pq query.ParsedQuery, maxResults, skip int) SearchQuery {
	dir := pq.OrderDirection
	key := pq.OrderBy
	if !pq.HasOrderBy {
		key = query.OrderCreatedUTC
	}
	if dir == "" {
		dir = query.DefaultDirection(key)
	}
	return SearchQuery{
		CollectionID:   collectionID,
		Filters:        pq.Filters,
		OrderBy:        key,
		OrderDirection: dir,
		MaxResults:     maxResults,
		Skip:           skip,
	}
}

// ResultDocument is one document returned by a search, with its optional
// payloads populated per the query's inclusion flags.
type ResultDocument struct {
	core.Document
	Content []byte
	Labels  []string
	Tags    map[string]string
}

// Result is the shape spec.md §4.7 specifies: a page of documents plus the
// bookkeeping a caller needs to page through the rest.
type Result struct {
	Success          bool
	Documents        []ResultDocument
	TotalRecords     int
	RecordsRemaining int
	EndOfResults     bool
}

// Planner runs SearchQuery against a Repository and, when content inclusion
// is requested, a document body loader.
type Planner struct {
	repo repository.Repository
	load BodyLoader
}

// BodyLoader reads a document's raw JSON body from wherever ingestion wrote
// it. docfs.Store, which internal/ingest writes bodies through, satisfies this.
type BodyLoader interface {
	Load(ctx context.Context, collectionDir string, documentID string) ([]byte, error)
}

func New(repo repository.Repository, load BodyLoader) *Planner {
	return &Planner{repo: repo, load: load}
}

// Search executes q and returns the requested page of results.
func (p *Planner) Search(ctx context.Context, q SearchQuery) (Result, error) {
	collection, err := p.repo.GetCollection(ctx, q.CollectionID)
	if err != nil {
		return Result{}, err
	}

	ids, err := p.resolveFilterSets(ctx, q)
	if err != nil {
		return Result{}, err
	}

	docs, err := p.fetchAndRestrict(ctx, ids, q.CollectionID)
	if err != nil {
		return Result{}, err
	}

	if len(q.Labels) > 0 {
		docs, err = p.filterByLabels(ctx, docs, q.Labels)
		if err != nil {
			return Result{}, err
		}
	}
	if len(q.Tags) > 0 {
		docs, err = p.filterByTags(ctx, docs, q.Tags)
		if err != nil {
			return Result{}, err
		}
	}

	orderDocuments(docs, q.OrderBy, q.OrderDirection)

	total := len(docs)
	page := paginate(docs, q.Skip, q.MaxResults)

	out := make([]ResultDocument, 0, len(page))
	for _, d := range page {
		rd := ResultDocument{Document: d}
		if q.IncludeContent && p.load != nil {
			content, err := p.load.Load(ctx, collection.DocumentsDirectory, d.ID)
			if err != nil {
				return Result{}, err
			}
			rd.Content = content
		}
		if q.IncludeLabels {
			labels, err := p.repo.ListLabels(ctx, d.ID)
			if err != nil {
				return Result{}, err
			}
			for _, l := range labels {
				rd.Labels = append(rd.Labels, l.Value)
			}
		}
		if q.IncludeTags {
			tags, err := p.repo.ListDocumentTags(ctx, d.ID)
			if err != nil {
				return Result{}, err
			}
			rd.Tags = tags
		}
		out = append(out, rd)
	}

	return Result{
		Success:          true,
		Documents:        out,
		TotalRecords:     total,
		RecordsRemaining: remaining(total, q.Skip, len(out)),
		EndOfResults:     q.Skip+len(out) >= total,
	}, nil
}

// resolveFilterSets implements steps 1-3 of spec.md §4.7: resolve each
// filter's path to a physical table, scan it, and intersect the per-filter
// document-id sets. A nil return (as opposed to an empty, non-nil slice)
// means "no filters were supplied" — every document in the collection is a
// candidate, deferred to fetchAndRestrict's collection-scoped listing.
func (p *Planner) resolveFilterSets(ctx context.Context, q SearchQuery) ([]string, error) {
	if len(q.Filters) == 0 {
		return nil, nil
	}

	var sets [][]string
	for _, f := range q.Filters {
		mapping, err := p.repo.FindMappingByKey(ctx, f.Field)
		if err != nil {
			return nil, err
		}
		if mapping == nil {
			if f.Condition == query.IsNull {
				all, err := p.repo.ListDocumentsByCollection(ctx, q.CollectionID)
				if err != nil {
					return nil, err
				}
				ids := make([]string, 0, len(all))
				for _, d := range all {
					ids = append(ids, d.ID)
				}
				sets = append(sets, ids)
				continue
			}
			// No mapping exists for this path at all: the filter matches
			// nothing, and AND composition collapses the whole query to empty.
			return []string{}, nil
		}

		matched, err := p.repo.Scan(ctx, mapping.TableName, f)
		if err != nil {
			return nil, err
		}
		sets = append(sets, matched)
	}

	return intersectAll(sets), nil
}

// filterByLabels keeps only documents carrying every one of labels
// (spec.md §4.7 step 4).
func (p *Planner) filterByLabels(ctx context.Context, docs []core.Document, labels []string) ([]core.Document, error) {
	out := make([]core.Document, 0, len(docs))
	for _, d := range docs {
		have, err := p.repo.ListLabels(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		haveSet := make(map[string]bool, len(have))
		for _, l := range have {
			haveSet[l.Value] = true
		}
		if hasAll(haveSet, labels) {
			out = append(out, d)
		}
	}
	return out, nil
}

// filterByTags keeps only documents carrying every (key, value) pair in tags.
func (p *Planner) filterByTags(ctx context.Context, docs []core.Document, tags map[string]string) ([]core.Document, error) {
	out := make([]core.Document, 0, len(docs))
	for _, d := range docs {
		have, err := p.repo.ListDocumentTags(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		match := true
		for k, v := range tags {
			if have[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *Planner) fetchAndRestrict(ctx context.Context, ids []string, collectionID string) ([]core.Document, error) {
	if ids == nil {
		return p.repo.ListDocumentsByCollection(ctx, collectionID)
	}

	out := make([]core.Document, 0, len(ids))
	for _, id := range ids {
		d, err := p.repo.GetDocument(ctx, id)
		if err != nil {
			if _, ok := asNotFound(err); ok {
				continue
			}
			return nil, err
		}
		if d.CollectionID != collectionID {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func asNotFound(err error) (*core.DocumentNotFoundError, bool) {
	nf, ok := err.(*core.DocumentNotFoundError)
	return nf, ok
}

func orderDocuments(docs []core.Document, key query.OrderKey, dir query.OrderDirection) {
	less := func(i, j int) bool {
		switch key {
		case query.OrderName:
			return docs[i].Name < docs[j].Name
		case query.OrderLastUpdateUTC:
			return docs[i].LastUpdateUTC.Before(docs[j].LastUpdateUTC)
		default:
			return docs[i].CreatedUTC.Before(docs[j].CreatedUTC)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if dir == query.Desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func paginate(docs []core.Document, skip, max int) []core.Document {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(docs) {
		return nil
	}
	end := len(docs)
	if max > 0 && skip+max < end {
		end = skip + max
	}
	return docs[skip:end]
}

func remaining(total, skip, returned int) int {
	r := total - skip - returned
	if r < 0 {
		return 0
	}
	return r
}

func intersectAll(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		seen := make(map[string]bool, len(set))
		for _, id := range set {
			if seen[id] {
				continue
			}
			seen[id] = true
			counts[id]++
		}
	}
	out := []string{}
	for id, c := range counts {
		if c == len(sets) {
			out = append(out, id)
		}
	}
	return out
}

func hasAll(have map[string]bool, want []string) bool {
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}
