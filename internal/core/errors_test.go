package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidationErrorMessage(t *testing.T) {
	err := &SchemaValidationError{
		CollectionID: "col_abc",
		Errors: []FieldError{
			{FieldPath: "age", Code: "TYPE_MISMATCH", Message: "expected integer"},
		},
	}
	assert.Contains(t, err.Error(), "col_abc")
	assert.Contains(t, err.Error(), "age")
}

func TestRepositoryErrorUnwraps(t *testing.T) {
	root := errors.New("connection refused")
	wrapped := fmt.Errorf("insert failed: %w", &RepositoryError{Op: "InsertValues", Err: root, Transient: true})

	var repoErr *RepositoryError
	require.True(t, errors.As(wrapped, &repoErr))
	assert.True(t, repoErr.Transient)
	assert.ErrorIs(t, wrapped, root)
}

func TestCollectionNotFoundErrorIsTyped(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &CollectionNotFoundError{CollectionID: "col_x"})
	var notFound *CollectionNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "col_x", notFound.CollectionID)
}
