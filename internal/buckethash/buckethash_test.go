package buckethash

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReducesPowerOfTwo(t *testing.T) {
	h := New(1024)
	assert.Equal(t, 1023, h.NumBuckets(), "power-of-two bucket counts should be reduced by one")

	h2 := New(1023)
	assert.Equal(t, 1023, h2.NumBuckets(), "non-power-of-two counts pass through unchanged")

	h3 := New(1)
	assert.Equal(t, 3, h3.NumBuckets(), "bucket counts below 3 are clamped up to 3")
}

func TestLookupMissThenInsert(t *testing.T) {
	h := New(17)
	_, ok := h.Lookup([]byte("/a"))
	require.False(t, ok, "fresh hash should have no entries")

	oh := h.LookupOrInsert([]byte("/a"), "candidate-1")
	require.NotNil(t, oh)
	assert.Equal(t, "candidate-1", oh.Payload)
	assert.EqualValues(t, 1, h.Refcount(oh))

	found, ok := h.Lookup([]byte("/a"))
	require.True(t, ok)
	assert.Same(t, oh, found)
	assert.EqualValues(t, 2, h.Refcount(oh), "Lookup increments refcount")
}

// Scenario 1 from spec.md §8: two goroutines race to insert the same
// fingerprint; exactly one candidate wins, and both calls observe the same
// resulting ObjHead.
func TestLookupOrInsertConcurrentRace(t *testing.T) {
	h := New(7)
	var wg sync.WaitGroup
	results := make([]*ObjHead, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = h.LookupOrInsert([]byte("/a"), "cand1")
	}()
	go func() {
		defer wg.Done()
		results[1] = h.LookupOrInsert([]byte("/a"), "cand2")
	}()
	wg.Wait()

	require.Same(t, results[0], results[1], "both racers must observe the same ObjHead")
	assert.Contains(t, []any{"cand1", "cand2"}, results[0].Payload)
	assert.EqualValues(t, 2, h.Refcount(results[0]), "refcount reflects both callers")
}

func TestDerefUnlinksAtZero(t *testing.T) {
	h := New(5)
	oh := h.LookupOrInsert([]byte("/x"), "only")
	assert.True(t, h.Deref(oh), "refcount from 1->0 should report the final deref")
	_, ok := h.Lookup([]byte("/x"))
	assert.False(t, ok, "entry should be unlinked once refcount reaches zero")
}

func TestSortedOrderWithinBucket(t *testing.T) {
	// Force everything into bucket 0 isn't practical without a hash
	// collision; instead, verify the total order holds across many keys by
	// exercising lookups after a batch of inserts and confirming every
	// insert remains independently findable (a broken sort would corrupt
	// neighboring entries' links).
	h := New(11)
	keys := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		keys = append(keys, fmt.Sprintf("/item/%d", i))
	}
	heads := make(map[string]*ObjHead, len(keys))
	for _, k := range keys {
		heads[k] = h.LookupOrInsert([]byte(k), k)
	}
	for _, k := range keys {
		found, ok := h.Lookup([]byte(k))
		require.True(t, ok, "key %q should still be findable", k)
		assert.Equal(t, k, found.Payload)
		assert.Same(t, heads[k], found)
	}
}
