// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package cuckoo

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, capacity int, options ...Option) *Cuckoo {
	t.Helper()
	c, err := New(capacity, options...)
	require.NoError(t, err)
	return c
}

func TestBucketLayout(t *testing.T) {
	var b bucket
	require.Equal(t, uintptr(CacheLineBytes), unsafe.Sizeof(b.keys)+unsafe.Sizeof(b.vals),
		"bucket payload must fill exactly one cache line")
	require.Equal(t, CacheLineBytes, Slots*(8+8))
}

func TestBucketPacking(t *testing.T) {
	var b bucket
	for i := 1; i <= Slots; i++ {
		require.Equal(t, placed, b.insert(Key(i), Value(i*10)))
	}
	require.Equal(t, full, b.insert(99, 0))
	require.Equal(t, duplicate, b.insert(2, 1234))

	v, ok := b.remove(2)
	require.True(t, ok)
	require.Equal(t, Value(20), v)

	// survivors shifted left, no gaps, vacated slot cleared
	require.Equal(t, int8(Slots-1), b.n)
	require.Equal(t, [Slots]Key{1, 3, 4, 0}, b.keys)
	require.Equal(t, placed, b.insert(5, 50))
	require.Equal(t, [Slots]Key{1, 3, 4, 5}, b.keys)
}

func TestNew(t *testing.T) {
	c := mustNew(t, 16, WithSeed(1))
	require.Equal(t, 2, c.Nbuckets)
	require.Equal(t, Slots, c.Nslots)
	require.Equal(t, 16, c.Size)
	require.Equal(t, DefaultHashName, c.HashName)
	require.Equal(t, int(unsafe.Sizeof(bucket{})), c.BucketBytes)

	// a tiny capacity still gets one bucket per table
	c = mustNew(t, 1, WithSeed(1))
	require.Equal(t, 1, c.Nbuckets)
}

func TestNewErrors(t *testing.T) {
	_, err := New(0)
	require.Equal(t, ErrBadCapacity, err)
	_, err = New(-5)
	require.Equal(t, ErrBadCapacity, err)
	_, err = New(16, WithHash("fnv"))
	require.Error(t, err)
}

func TestWithPrimeBuckets(t *testing.T) {
	c := mustNew(t, 1000, WithSeed(1), WithPrimeBuckets())
	require.Equal(t, 127, c.Nbuckets) // ceil(1000/8) = 125, next prime 127
}

func TestMaxTries(t *testing.T) {
	require.Equal(t, 32, maxTries(1))     // floor(log2(4)) = 2
	require.Equal(t, 48, maxTries(2))     // floor(log2(8)) = 3
	require.Equal(t, 192, maxTries(1024)) // floor(log2(4096)) = 12
}

// The concrete end to end scenario: duplicate inserts keep the first
// value, deletes are precise, and a thousand extra keys force growth
// without losing anything.
func TestScenario(t *testing.T) {
	c := mustNew(t, 16, WithSeed(42))
	initialSize := c.Size

	require.True(t, c.Insert(5, 1))
	require.True(t, c.Insert(5, 2)) // duplicate, stored value survives
	v, ok := c.Lookup(5)
	require.True(t, ok)
	require.Equal(t, Value(1), v)
	require.Equal(t, 1, c.Len())

	require.True(t, c.Insert(6, 3))
	c.Delete(5)
	require.False(t, c.Exists(5))
	require.True(t, c.Exists(6))

	for i := 0; i < 1000; i++ {
		require.True(t, c.Insert(Key(100+i), Value(i)))
	}
	require.Greater(t, c.Size, initialSize)
	require.Greater(t, c.Grows, 0)
	require.Equal(t, 1001, c.Len())
	for i := 0; i < 1000; i++ {
		v, ok := c.Lookup(Key(100 + i))
		require.True(t, ok, "key %d lost after growth", 100+i)
		require.Equal(t, Value(i), v)
	}
}

func TestRoundTripRandom(t *testing.T) {
	const n = 20000
	c := mustNew(t, 64, WithSeed(3))
	r := rand.New(rand.NewSource(99))

	ref := make(map[Key]Value, n)
	for len(ref) < n {
		k := Key(r.Uint64())
		if k == 0 {
			continue
		}
		if _, dup := ref[k]; dup {
			continue
		}
		v := Value(r.Uint64())
		ref[k] = v
		require.True(t, c.Insert(k, v))
	}
	require.Equal(t, n, c.Len())

	for k, v := range ref {
		got, ok := c.Lookup(k)
		require.True(t, ok, "key %d missing", k)
		require.Equal(t, v, got)
	}

	// delete roughly half and re-check both sides of the split
	deleted := make(map[Key]bool)
	for k := range ref {
		if len(deleted) >= n/2 {
			break
		}
		_, ok := c.Delete(k)
		require.True(t, ok)
		deleted[k] = true
	}
	require.Equal(t, n-len(deleted), c.Len())
	for k, v := range ref {
		got, ok := c.Lookup(k)
		if deleted[k] {
			require.False(t, ok, "deleted key %d still present", k)
		} else {
			require.True(t, ok, "key %d lost by unrelated delete", k)
			require.Equal(t, v, got)
		}
	}
}

// Re-inserting keys that earlier displacement chains may have parked
// in table2 or the stash must not store them a second time: every key
// still appears exactly once under Map and keeps its first value.
func TestDuplicateInsertDoesNotMutate(t *testing.T) {
	c := mustNew(t, 128, WithSeed(5))
	for i := 1; i <= 50; i++ {
		require.True(t, c.Insert(Key(i), Value(i)))
	}
	before := c.Len()
	for i := 1; i <= 50; i++ {
		require.True(t, c.Insert(Key(i), Value(9999)))
	}
	require.Equal(t, before, c.Len())

	seen := make(map[Key]int)
	c.Map(func(k Key, v Value) bool {
		seen[k]++
		return false
	})
	require.Len(t, seen, 50)
	for i := 1; i <= 50; i++ {
		require.Equal(t, 1, seen[Key(i)], "key %d stored more than once", i)
		v, ok := c.Lookup(Key(i))
		require.True(t, ok)
		require.Equal(t, Value(i), v)
	}
}

func TestDeleteAbsent(t *testing.T) {
	c := mustNew(t, 64, WithSeed(7))
	require.True(t, c.Insert(10, 100))
	_, ok := c.Delete(11)
	require.False(t, ok)
	require.Equal(t, 1, c.Len())
	v, ok := c.Lookup(10)
	require.True(t, ok)
	require.Equal(t, Value(100), v)
}

// Keys that share a table1 bucket must spill to table2 via eviction and
// stay independently retrievable.
func TestForcedCollision(t *testing.T) {
	c := mustNew(t, 16, WithSeed(11)) // 2 buckets per table
	target := c.index1(1)

	var keys []Key
	for k := Key(1); len(keys) < 3*Slots; k++ {
		if c.index1(k) == target {
			keys = append(keys, k)
		}
	}
	for i, k := range keys {
		require.True(t, c.Insert(k, Value(i+1)))
	}
	for i, k := range keys {
		v, ok := c.Lookup(k)
		require.True(t, ok, "colliding key %d lost", k)
		require.Equal(t, Value(i+1), v)
	}
}

// A one bucket table makes every key hash to the same two buckets, so
// the ninth distinct key must exhaust its displacement chain and land
// in the stash, whatever the seeds are.
func TestStash(t *testing.T) {
	c := mustNew(t, 1, WithSeed(41))
	require.Equal(t, 1, c.Nbuckets)

	for i := 1; i <= 2*Slots+1; i++ {
		require.True(t, c.Insert(Key(i), Value(i*10)))
	}
	require.Equal(t, 1, c.Stashed)
	require.Equal(t, int8(1), c.stash.n)
	require.Equal(t, 0, c.Grows)
	require.Equal(t, 2*Slots+1, c.Len())

	// every key is retrievable, including whichever pair the chain
	// finally parked in the stash
	for i := 1; i <= 2*Slots+1; i++ {
		v, ok := c.Lookup(Key(i))
		require.True(t, ok, "key %d lost", i)
		require.Equal(t, Value(i*10), v)
	}

	// re-inserting the stashed key is a no-op, not a second copy
	sk := c.stash.keys[0]
	require.True(t, c.Insert(sk, 9999))
	require.Equal(t, 2*Slots+1, c.Len())
	require.Equal(t, int8(1), c.stash.n)
	v, ok := c.Lookup(sk)
	require.True(t, ok)
	require.Equal(t, Value(uint64(sk)*10), v)

	// stash deletes compact and count down like any other bucket
	v, ok = c.Delete(sk)
	require.True(t, ok)
	require.Equal(t, Value(uint64(sk)*10), v)
	require.False(t, c.Exists(sk))
	require.Equal(t, int8(0), c.stash.n)
	require.Equal(t, 2*Slots, c.Len())

	// keep going: the stash refills and the table finally doubles
	for i := 100; i < 100+Slots+1; i++ {
		require.True(t, c.Insert(Key(i), Value(i*10)))
	}
	require.Greater(t, c.Grows, 0)
	require.Equal(t, 3*Slots+1, c.Len())
	for i := 100; i < 100+Slots+1; i++ {
		v, ok := c.Lookup(Key(i))
		require.True(t, ok)
		require.Equal(t, Value(i*10), v)
	}
}

func TestSeedsCarriedAcrossGrowth(t *testing.T) {
	c := mustNew(t, 16, WithSeed(13))
	s1, s2 := c.seed1, c.seed2
	for i := 0; i < 2000; i++ {
		require.True(t, c.Insert(Key(i+1), Value(i)))
	}
	require.Greater(t, c.Grows, 0)
	require.Equal(t, s1, c.seed1)
	require.Equal(t, s2, c.seed2)
}

func TestDeterministicSeeding(t *testing.T) {
	a := mustNew(t, 64, WithSeed(17))
	b := mustNew(t, 64, WithSeed(17))
	for i := 0; i < 3000; i++ {
		require.Equal(t, a.Insert(Key(i+1), Value(i)), b.Insert(Key(i+1), Value(i)))
	}
	require.Equal(t, a.Counters, b.Counters)
	require.Equal(t, a.Nbuckets, b.Nbuckets)
}

func TestLoadFactorDropsOnGrowth(t *testing.T) {
	c := mustNew(t, 16, WithSeed(19))
	var peak float64
	for i := 0; i < 500; i++ {
		grows := c.Grows
		if lf := c.LoadFactor(); lf > peak {
			peak = lf
		}
		require.True(t, c.Insert(Key(i+1), Value(i)))
		if c.Grows > grows {
			require.Less(t, c.LoadFactor(), peak)
		}
	}
	require.Greater(t, c.Grows, 0)
}

func TestMap(t *testing.T) {
	c := mustNew(t, 64, WithSeed(23))
	want := make(map[Key]Value)
	for i := 1; i <= 100; i++ {
		want[Key(i)] = Value(i * 3)
		require.True(t, c.Insert(Key(i), Value(i*3)))
	}

	got := make(map[Key]Value)
	c.Map(func(k Key, v Value) bool {
		got[k] = v
		return false
	})
	require.Equal(t, want, got)

	// early stop
	seen := 0
	c.Map(func(k Key, v Value) bool {
		seen++
		return seen == 5
	})
	require.Equal(t, 5, seen)
}

func TestReset(t *testing.T) {
	c := mustNew(t, 64, WithSeed(29))
	s1, s2 := c.seed1, c.seed2
	for i := 1; i <= 200; i++ {
		require.True(t, c.Insert(Key(i), Value(i)))
	}
	c.Reset()
	require.Equal(t, 0, c.Len())
	require.False(t, c.Exists(7))
	require.Equal(t, s1, c.seed1)
	require.Equal(t, s2, c.seed2)
	require.True(t, c.Insert(7, 70))
	v, ok := c.Lookup(7)
	require.True(t, ok)
	require.Equal(t, Value(70), v)
}

func TestGetCounter(t *testing.T) {
	c := mustNew(t, 64, WithSeed(31))
	require.True(t, c.Insert(1, 1))
	c.Lookup(1)
	require.Equal(t, 1, c.GetCounter("elements"))
	require.Equal(t, 1, c.GetCounter("inserts"))
	require.Equal(t, 1, c.GetCounter("lookups"))
	require.Equal(t, c.Size, c.GetCounter("size"))
	require.Panics(t, func() { c.GetCounter("nope") })
}
