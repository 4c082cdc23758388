package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/nobletooth/seqlist/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListStore() *ListStore {
	return newListStore(4, 64, 0.01)
}

func TestListStore_Push(t *testing.T) {
	store := newTestListStore()
	assert.Equal(t, 2, store.PushBack("k", "b", "c"))
	assert.Equal(t, 4, store.PushFront("k", "a", "z"))
	assert.Equal(t, []string{"z", "a", "b", "c"}, store.Range("k", 0, -1))
	assert.Equal(t, 4, store.Len("k"))

	t.Run("Pushing nothing doesn't create a list", func(t *testing.T) {
		assert.Equal(t, 0, store.PushBack("empty"))
		assert.Equal(t, 0, store.PushFront("empty"))
		assert.NotContains(t, store.Keys(), "empty")
	})
}

func TestListStore_Pop(t *testing.T) {
	store := newTestListStore()
	store.PushBack("k", "a", "b", "c")

	value, err := store.PopFront("k")
	assert.NoError(t, err)
	assert.Equal(t, "a", value)
	value, err = store.PopBack("k")
	assert.NoError(t, err)
	assert.Equal(t, "c", value)
	value, err = store.PopBack("k")
	assert.NoError(t, err)
	assert.Equal(t, "b", value)

	// The drained list is dropped.
	assert.Empty(t, store.Keys())
	_, err = store.PopBack("k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = store.PopFront("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestListStore_InsertAndRemove(t *testing.T) {
	store := newTestListStore()
	for _, fragment := range []string{"Hello", " world,", "I am ", "aaaa", " super mega developer"} {
		store.PushBack("sentence", fragment)
	}

	removed, err := store.Remove("sentence", 3)
	require.NoError(t, err)
	assert.Equal(t, "aaaa", removed)
	assert.Equal(t, []string{"Hello", " world,", "I am ", " super mega developer"}, store.Range("sentence", 0, -1))

	assert.Equal(t, 5, store.Insert("sentence", 1, ","))
	assert.Equal(t, 6, store.Insert("sentence", 100, "!"))
	assert.Equal(t, []string{"Hello", ",", " world,", "I am ", " super mega developer", "!"},
		store.Range("sentence", 0, -1))

	removed, err = store.Remove("sentence", 100)
	require.NoError(t, err)
	assert.Equal(t, "!", removed)

	assert.Equal(t, 1, store.Insert("new", 7, "v"), "Insert creates missing lists")
	_, err = store.Remove("missing", 0)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestListStore_Contains(t *testing.T) {
	store := newTestListStore()
	store.PushBack("k", "a", "b")

	absentBefore := testutil.ToFloat64(bloomLookups.WithLabelValues("absent"))
	assert.True(t, store.Contains("k", "a"))
	assert.False(t, store.Contains("missing", "a"))
	assert.False(t, store.Contains("k", "never-pushed"))
	assert.GreaterOrEqual(t, testutil.ToFloat64(bloomLookups.WithLabelValues("absent")), absentBefore)

	// Removed values leave stale filter bits but are still reported absent.
	_, err := store.PopFront("k")
	require.NoError(t, err)
	assert.False(t, store.Contains("k", "a"))
	assert.True(t, store.Contains("k", "b"))
}

func TestListStore_Range(t *testing.T) {
	store := newTestListStore()
	store.PushBack("k", "0", "1", "2", "3", "4")
	for _, testCase := range []struct {
		name        string
		start, stop int
		expected    []string
	}{
		{name: "all", start: 0, stop: -1, expected: []string{"0", "1", "2", "3", "4"}},
		{name: "head", start: 0, stop: 1, expected: []string{"0", "1"}},
		{name: "middle", start: 1, stop: 3, expected: []string{"1", "2", "3"}},
		{name: "negative", start: -2, stop: -1, expected: []string{"3", "4"}},
		{name: "stop beyond", start: 3, stop: 100, expected: []string{"3", "4"}},
		{name: "start before", start: -100, stop: 0, expected: []string{"0"}},
		{name: "start beyond", start: 5, stop: 10, expected: []string{}},
		{name: "inverted", start: 3, stop: 1, expected: []string{}},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, store.Range("k", testCase.start, testCase.stop))
		})
	}
	assert.Equal(t, []string{}, store.Range("missing", 0, -1))
}

func TestListStore_DeleteAndKeys(t *testing.T) {
	store := newTestListStore()
	store.PushBack("b", "1")
	store.PushBack("a", "1")
	store.PushBack("c", "1")
	assert.Equal(t, []string{"a", "b", "c"}, store.Keys())

	assert.Equal(t, 2, store.Delete("a", "c", "missing"))
	assert.Equal(t, []string{"b"}, store.Keys())
	assert.Equal(t, 0, store.Len("a"))
	assert.False(t, store.Contains("a", "1"))
}

func TestListStore_InvalidSettings(t *testing.T) {
	if utils.IsTestMode {
		t.Skip("Invariants panic in test mode.")
	}
	store := newListStore(0, 0, 2)
	assert.Len(t, store.shards, 1)
	assert.Equal(t, uint(1), store.expectedItems)
	assert.Equal(t, 0.01, store.falsePositiveRate)
	assert.Equal(t, 1, store.PushBack("k", "v"))
}

func TestListStore_FromFlags(t *testing.T) {
	utils.SetTestFlags(t, map[string]string{
		"store_shard_count":         "3",
		"bloom_expected_items":      "10",
		"bloom_false_positive_rate": "0.2",
	})
	store := NewListStore()
	assert.Len(t, store.shards, 3)
	assert.Equal(t, uint(10), store.expectedItems)
	assert.Equal(t, 0.2, store.falsePositiveRate)
}

func TestListStore_Concurrent(t *testing.T) {
	store := newTestListStore()
	const writers, pushes = 8, 200
	var wg sync.WaitGroup
	for writer := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", writer%3)
			for i := range pushes {
				store.PushBack(key, fmt.Sprintf("%d-%d", writer, i))
				_ = store.Contains(key, "0-0")
				_ = store.Len(key)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, key := range store.Keys() {
		total += store.Len(key)
	}
	assert.Equal(t, writers*pushes, total)
}
