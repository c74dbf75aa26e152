// Package query implements the tokenizer, parser, and structured query
// representation for the WHERE-clause SQL dialect spec.md §4.6 defines.
package query

// Condition is the predicate operator a Filter applies against an index
// table's value column. Comparison is always string-lexicographic (spec.md
// §4.7; this is intentional even for numeric-typed fields).
type Condition string

const (
	Eq          Condition = "eq"
	Neq         Condition = "neq"
	Gt          Condition = "gt"
	Gte         Condition = "gte"
	Lt          Condition = "lt"
	Lte         Condition = "lte"
	IsNull      Condition = "is_null"
	IsNotNull   Condition = "is_not_null"
	Contains    Condition = "contains"
	StartsWith  Condition = "starts_with"
	EndsWith    Condition = "ends_with"
)

// Filter is one resolved WHERE predicate: a dot-path, the operator, and
// (except for the two NULL conditions) the literal to compare against.
type Filter struct {
	Field     string
	Condition Condition
	Value     string
}

// OrderKey is the closed set of columns a query may sort by, spec.md §6's
// "ordering vocabulary".
type OrderKey string

const (
	OrderCreatedUTC    OrderKey = "createdutc"
	OrderLastUpdateUTC OrderKey = "lastupdateutc"
	OrderName          OrderKey = "name"
)

// OrderDirection is ascending or descending.
type OrderDirection string

const (
	Asc  OrderDirection = "asc"
	Desc OrderDirection = "desc"
)

// DefaultDirection returns the default sort direction for a given order key:
// DESC for timestamps, ASC for name (spec.md §6).
func DefaultDirection(key OrderKey) OrderDirection {
	if key == OrderName {
		return Asc
	}
	return Desc
}

// ParsedQuery is the structured form produced by Parse. It carries no
// collection id or inclusion flags — those are supplied by the caller when
// composing a planner.SearchQuery around it.
type ParsedQuery struct {
	Filters        []Filter
	OrderBy        OrderKey
	OrderDirection OrderDirection
	HasOrderBy     bool
	Limit          *int
	Offset         *int
}
