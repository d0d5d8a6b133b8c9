package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordIndexRanksCloserTaskHigher(t *testing.T) {
	ctx := context.Background()
	idx := NewKeywordIndex()

	require.NoError(t, idx.Store(ctx, Entry{TaskText: "fix the login authentication bug", Success: true}))
	require.NoError(t, idx.Store(ctx, Entry{TaskText: "write documentation for the billing api", Success: true}))

	results, err := idx.Search(ctx, "fix the authentication bug in login", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "fix the login authentication bug", results[0].Entry.TaskText)
}

func TestKeywordIndexIsDeterministic(t *testing.T) {
	ctx := context.Background()
	idx := NewKeywordIndex()
	require.NoError(t, idx.Store(ctx, Entry{TaskText: "build a rest api with tests", Success: true}))
	require.NoError(t, idx.Store(ctx, Entry{TaskText: "build a graphql api with tests", Success: true}))

	first, err := idx.Search(ctx, "build an api with tests", 2)
	require.NoError(t, err)
	second, err := idx.Search(ctx, "build an api with tests", 2)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Entry.TaskText, second[i].Entry.TaskText)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestFilterSuccessDropsFailures(t *testing.T) {
	entries := []ScoredEntry{
		{Entry: Entry{TaskText: "a", Success: true}, Score: 0.9},
		{Entry: Entry{TaskText: "b", Success: false}, Score: 0.8},
	}
	filtered := FilterSuccess(entries)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].Entry.TaskText)
}

func TestVectorIndexStoreAndSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(&Config{Backend: BackendVector})
	require.NoError(t, err)

	entry := Entry{
		TaskText: "add caching layer to the api gateway",
		Success:  true,
		Decomposition: Decomposition{Steps: []DecompositionStep{
			{Agent: "architect", Role: "design"},
			{Agent: "codesmith", Role: "implement", Dependencies: []int{1}},
		}},
	}
	require.NoError(t, idx.Store(ctx, entry))

	results, err := idx.Search(ctx, "add a caching layer to the gateway", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.TaskText, results[0].Entry.TaskText)
}

func TestNewIndexDefaultsToKeyword(t *testing.T) {
	idx, err := NewIndex(nil)
	require.NoError(t, err)
	_, ok := idx.(*KeywordIndex)
	assert.True(t, ok)
}
