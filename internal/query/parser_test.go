package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/core"
)

func TestParseBareWhere(t *testing.T) {
	q, err := Parse(`WHERE age > 18`)
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	assert.Equal(t, "age", q.Filters[0].Field)
	assert.Equal(t, Gt, q.Filters[0].Condition)
	assert.Equal(t, "18", q.Filters[0].Value)
}

func TestParseFullSelectForm(t *testing.T) {
	q, err := Parse(`SELECT * FROM documents WHERE name = 'bob'`)
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	assert.Equal(t, Eq, q.Filters[0].Condition)
	assert.Equal(t, "bob", q.Filters[0].Value)
}

func TestParseAndComposition(t *testing.T) {
	q, err := Parse(`WHERE Category = 'Category_2' AND IsActive = 'true'`)
	require.NoError(t, err)
	require.Len(t, q.Filters, 2)
	assert.Equal(t, "Category", q.Filters[0].Field)
	assert.Equal(t, "IsActive", q.Filters[1].Field)
}

func TestParseDottedFieldPath(t *testing.T) {
	q, err := Parse(`WHERE People.Name = 'Alice'`)
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	assert.Equal(t, "People.Name", q.Filters[0].Field)
}

func TestParseIsNull(t *testing.T) {
	q, err := Parse(`WHERE deletedAt IS NULL`)
	require.NoError(t, err)
	assert.Equal(t, IsNull, q.Filters[0].Condition)
}

func TestParseIsNotNull(t *testing.T) {
	q, err := Parse(`WHERE deletedAt IS NOT NULL`)
	require.NoError(t, err)
	assert.Equal(t, IsNotNull, q.Filters[0].Condition)
}

func TestParseLikeVariants(t *testing.T) {
	cases := []struct {
		pattern   string
		condition Condition
		value     string
	}{
		{"%x%", Contains, "x"},
		{"x%", StartsWith, "x"},
		{"%x", EndsWith, "x"},
		{"x", Eq, "x"},
	}
	for _, tc := range cases {
		q, err := Parse(`WHERE name LIKE '` + tc.pattern + `'`)
		require.NoError(t, err)
		assert.Equal(t, tc.condition, q.Filters[0].Condition, tc.pattern)
		assert.Equal(t, tc.value, q.Filters[0].Value, tc.pattern)
	}
}

func TestParseNeqSynonyms(t *testing.T) {
	a, err := Parse(`WHERE x != '1'`)
	require.NoError(t, err)
	b, err := Parse(`WHERE x <> '1'`)
	require.NoError(t, err)
	assert.Equal(t, Neq, a.Filters[0].Condition)
	assert.Equal(t, Neq, b.Filters[0].Condition)
}

func TestParseOrderByDefaults(t *testing.T) {
	q, err := Parse(`ORDER BY createdutc`)
	require.NoError(t, err)
	require.True(t, q.HasOrderBy)
	assert.Equal(t, OrderCreatedUTC, q.OrderBy)
	assert.Equal(t, Desc, q.OrderDirection)

	q2, err := Parse(`ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, Asc, q2.OrderDirection)
}

func TestParseOrderByExplicitDirection(t *testing.T) {
	q, err := Parse(`ORDER BY lastupdateutc ASC`)
	require.NoError(t, err)
	assert.Equal(t, Asc, q.OrderDirection)
}

func TestParseLimitOffset(t *testing.T) {
	q, err := Parse(`WHERE x = '1' LIMIT 10 OFFSET 20`)
	require.NoError(t, err)
	require.NotNil(t, q.Limit)
	require.NotNil(t, q.Offset)
	assert.Equal(t, 10, *q.Limit)
	assert.Equal(t, 20, *q.Offset)
}

func TestParseEmptyQueryMatchesEverything(t *testing.T) {
	q, err := Parse(``)
	require.NoError(t, err)
	assert.Empty(t, q.Filters)
	assert.False(t, q.HasOrderBy)
}

func TestParseMalformedReturnsPositionedError(t *testing.T) {
	_, err := Parse(`WHERE = 1`)
	require.Error(t, err)
	var parseErr *core.QueryParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, `WHERE = 1`, parseErr.Query)
	assert.Equal(t, 6, parseErr.Position)
}

func TestParseUnterminatedString(t *testing.T) {
	_, err := Parse(`WHERE name = 'bob`)
	require.Error(t, err)
	var parseErr *core.QueryParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestParseNumericLiteral(t *testing.T) {
	q, err := Parse(`WHERE age = 42`)
	require.NoError(t, err)
	assert.Equal(t, "42", q.Filters[0].Value)
}

func TestParseBooleanLiteral(t *testing.T) {
	q, err := Parse(`WHERE active = true`)
	require.NoError(t, err)
	assert.Equal(t, "true", q.Filters[0].Value)
}

func TestParseUnknownOrderKeyFails(t *testing.T) {
	_, err := Parse(`ORDER BY bogus`)
	require.Error(t, err)
}

func TestParseCaseInsensitiveKeywords(t *testing.T) {
	q, err := Parse(`select * from documents where age > 1 order by name desc limit 5`)
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	assert.True(t, q.HasOrderBy)
	assert.Equal(t, Desc, q.OrderDirection)
}
