// The list store keeps many named lists for the Redis port. A single list isn't safe for concurrent use, so keys are
// distributed across shards, each guarded by its own lock; goroutines working on keys of different shards don't
// block each other.
//
// Every list carries a bloom filter of the values ever pushed into it. Containment checks consult the filter first
// and only scan the list when the filter says the value may be present. Filters never give false negatives; values
// removed from a list simply leave stale bits behind until the list is dropped.

package storage

import (
	"errors"
	"flag"
	"maps"
	"runtime"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/seqlist/pkg/linkedlist"
	"github.com/nobletooth/seqlist/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrKeyNotFound = errors.New("key was not found")

var (
	shardCount = flag.Int("store_shard_count", runtime.NumCPU(),
		"The number of shards the list store distributes keys across.")
	bloomExpectedItems = flag.Uint("bloom_expected_items", 1_024,
		"The number of values each list's bloom filter is sized for.")
	bloomFalsePositiveRate = flag.Float64("bloom_false_positive_rate", 0.01,
		"The target false positive rate of each list's bloom filter; must be in (0, 1).")

	liveLists = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_lists",
		Help: "Number of non-empty lists held by the list store.",
	})
	bloomLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_bloom_lookups_total",
		Help: "Total number of bloom filter lookups done by containment checks.",
	}, []string{"result" /* absent | maybe */})
)

// listEntry is a named list with its containment filter.
type listEntry struct {
	list   *linkedlist.List[string]
	filter *bloom.BloomFilter
}

// listShard holds the lists whose keys hash to it.
type listShard struct {
	mux     sync.RWMutex // Protects against race conditions.
	entries map[ /*key*/ string]*listEntry
}

// ListStore is a thread-safe collection of named string lists. Lists are created on the first push and dropped
// once they become empty.
type ListStore struct {
	shards            []*listShard
	expectedItems     uint
	falsePositiveRate float64
}

// NewListStore creates a list store configured by the --store_shard_count and --bloom_* flags.
func NewListStore() *ListStore {
	return newListStore(*shardCount, *bloomExpectedItems, *bloomFalsePositiveRate)
}

func newListStore(shards int, expectedItems uint, falsePositiveRate float64) *ListStore {
	// Ensure there is at least one shard.
	if shards <= 0 {
		utils.RaiseInvariant("storage", "non_positive_shard_count",
			"Invalid shard count has been given to list store.", "shardCount", shards)
		shards = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		utils.RaiseInvariant("storage", "invalid_false_positive_rate",
			"Bloom filter false positive rate must be in (0, 1).", "rate", falsePositiveRate)
		falsePositiveRate = 0.01
	}
	store := &ListStore{
		shards:            make([]*listShard, shards),
		expectedItems:     max(expectedItems, 1),
		falsePositiveRate: falsePositiveRate,
	}
	for i := range shards {
		store.shards[i] = &listShard{entries: make(map[string]*listEntry)}
	}
	return store
}

// getShard picks the shard of `key` by hashing it.
func (s *ListStore) getShard(key string) *listShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// getOrCreate returns the entry of `key`, creating an empty one if needed. The shard lock must be held.
func (s *ListStore) getOrCreate(shard *listShard, key string) *listEntry {
	if entry, exists := shard.entries[key]; exists {
		return entry
	}
	entry := &listEntry{
		list:   linkedlist.New[string](),
		filter: bloom.NewWithEstimates(s.expectedItems, s.falsePositiveRate),
	}
	shard.entries[key] = entry
	liveLists.Inc()
	return entry
}

// dropIfEmpty removes the entry of `key` once its list has no values left. The shard lock must be held.
func dropIfEmpty(shard *listShard, key string, entry *listEntry) {
	if entry.list.IsEmpty() {
		delete(shard.entries, key)
		liveLists.Dec()
	}
}

// PushBack appends `values` in order to the list at `key` and returns the new list length.
func (s *ListStore) PushBack(key string, values ...string) int {
	shard := s.getShard(key)
	shard.mux.Lock()
	defer shard.mux.Unlock()

	entry := s.getOrCreate(shard, key)
	for _, value := range values {
		entry.list.PushBack(value)
		entry.filter.AddString(value)
	}
	defer dropIfEmpty(shard, key, entry) // Pushing nothing mustn't leave an empty list behind.
	return entry.list.Len()
}

// PushFront prepends `values` one at a time to the list at `key`, so the last value ends up first.
// Returns the new list length.
func (s *ListStore) PushFront(key string, values ...string) int {
	shard := s.getShard(key)
	shard.mux.Lock()
	defer shard.mux.Unlock()

	entry := s.getOrCreate(shard, key)
	for _, value := range values {
		entry.list.PushFront(value)
		entry.filter.AddString(value)
	}
	defer dropIfEmpty(shard, key, entry)
	return entry.list.Len()
}

// Insert places `value` at `index` of the list at `key`, following the list clamp policy, and returns the new length.
func (s *ListStore) Insert(key string, index int, value string) int {
	shard := s.getShard(key)
	shard.mux.Lock()
	defer shard.mux.Unlock()

	entry := s.getOrCreate(shard, key)
	entry.list.Insert(index, value)
	entry.filter.AddString(value)
	return entry.list.Len()
}

// pop runs `popFn` on the list at `key` and drops the list if it became empty.
func (s *ListStore) pop(key string, popFn func(list *linkedlist.List[string]) (string, error)) (string, error) {
	shard := s.getShard(key)
	shard.mux.Lock()
	defer shard.mux.Unlock()

	entry, exists := shard.entries[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	value, err := popFn(entry.list)
	if errors.Is(err, linkedlist.ErrEmptyList) {
		utils.RaiseInvariant("storage", "empty_list_kept", "An empty list was kept in the store.", "key", key)
	}
	dropIfEmpty(shard, key, entry)
	return value, err
}

// PopBack removes and returns the last value of the list at `key`.
func (s *ListStore) PopBack(key string) (string, error) {
	return s.pop(key, (*linkedlist.List[string]).PopBack)
}

// PopFront removes and returns the first value of the list at `key`.
func (s *ListStore) PopFront(key string) (string, error) {
	return s.pop(key, (*linkedlist.List[string]).PopFront)
}

// Remove deletes and returns the value at `index` of the list at `key`, following the list clamp policy.
func (s *ListStore) Remove(key string, index int) (string, error) {
	return s.pop(key, func(list *linkedlist.List[string]) (string, error) { return list.Remove(index) })
}

// Len returns the length of the list at `key`; missing keys have length 0.
func (s *ListStore) Len(key string) int {
	shard := s.getShard(key)
	shard.mux.RLock()
	defer shard.mux.RUnlock()

	if entry, exists := shard.entries[key]; exists {
		return entry.list.Len()
	}
	return 0
}

// Contains returns true if the list at `key` holds `value`.
func (s *ListStore) Contains(key, value string) bool {
	shard := s.getShard(key)
	shard.mux.RLock()
	defer shard.mux.RUnlock()

	entry, exists := shard.entries[key]
	if !exists {
		return false
	}
	if !entry.filter.TestString(value) {
		bloomLookups.WithLabelValues("absent").Inc()
		return false
	}
	bloomLookups.WithLabelValues("maybe").Inc()
	return entry.list.Contains(value)
}

// Range returns the values of the list at `key` between `start` and `stop`, both inclusive.
// Negative indexes count from the end of the list, e.g. -1 is the last value, like Redis LRANGE.
func (s *ListStore) Range(key string, start, stop int) []string {
	shard := s.getShard(key)
	shard.mux.RLock()
	defer shard.mux.RUnlock()

	entry, exists := shard.entries[key]
	if !exists {
		return []string{}
	}
	length := entry.list.Len()
	if start < 0 {
		start = max(start+length, 0)
	}
	if stop < 0 {
		stop += length
	}
	stop = min(stop, length-1)
	if start > stop {
		return []string{}
	}

	values := make([]string, 0, stop-start+1)
	index := 0
	for value := range entry.list.All() {
		if index > stop {
			break
		}
		if index >= start {
			values = append(values, value)
		}
		index++
	}
	return values
}

// Delete drops the lists at `keys` and returns how many of them existed.
func (s *ListStore) Delete(keys ...string) int {
	deleted := 0
	for _, key := range keys {
		shard := s.getShard(key)
		shard.mux.Lock()
		if entry, exists := shard.entries[key]; exists {
			entry.list.Clear()
			dropIfEmpty(shard, key, entry)
			deleted++
		}
		shard.mux.Unlock()
	}
	return deleted
}

// Keys returns the sorted keys of all lists in the store.
func (s *ListStore) Keys() []string {
	keys := make([]string, 0)
	for _, shard := range s.shards {
		shard.mux.RLock()
		keys = slices.AppendSeq(keys, maps.Keys(shard.entries))
		shard.mux.RUnlock()
	}
	slices.Sort(keys)
	return keys
}
