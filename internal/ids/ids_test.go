package ids

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasPrefix(t *testing.T) {
	id := New(PrefixDocument)
	require.True(t, HasPrefix(id, PrefixDocument))
	assert.False(t, HasPrefix(id, PrefixCollection))
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(PrefixCollection)
		require.False(t, seen[id], "generated duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewIsRoughlySortable(t *testing.T) {
	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, New(PrefixDocument))
	}
	// UUIDv7 tokens embed a millisecond timestamp in their leading bytes,
	// so ids minted in a tight loop on one host should already be sorted.
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	assert.Equal(t, ids, sorted)
}
