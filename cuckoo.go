// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package cuckoo implements a cuckoo hash table that maps 64 bit keys
// to 64 bit values with two bucket arrays, two independently seeded
// hash functions, and a single bucket overflow stash. Displacement
// chains are bounded; when a chain is exhausted and the stash is full
// the table doubles and the stuck pair is retried. The table is not
// safe for concurrent use, synchronization is the caller's job.
// Edit the file "kv.go" to define the types for your Key and Value.
package cuckoo

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"math/rand"
	"unsafe"

	"github.com/dstk/cuckoo/internal/primes"
)

const (
	// Slots per bucket. A bucket's key array and value array are 32
	// bytes each, so the payload of one bucket fills exactly one cache
	// line. CacheLineBytes is asserted against the real layout in the
	// tests, it is a contract and not an accident.
	Slots          = 4
	CacheLineBytes = 64

	// Buckets per table never exceeds maxBuckets so a 32 bit hash can
	// still address every bucket after any number of doublings.
	maxBuckets = 1 << 30

	// Safety factor applied to log2(capacity) to bound displacement
	// chains. Past that many bumps a cycle is overwhelmingly likely.
	triesScale = 16
)

var (
	ErrBadCapacity = errors.New("cuckoo: capacity must be positive")
	ErrTooLarge    = errors.New("cuckoo: table cannot grow that large")
)

// A bucket holds up to Slots key/value pairs. Occupied slots are packed
// from slot 0 with no gaps: inserts always land on slot n and removal
// compacts by shifting later slots left. Duplicate detection depends on
// that invariant because probes stop at the first free slot.
type bucket struct {
	n    int8
	keys [Slots]Key
	vals [Slots]Value
}

type outcome int

const (
	placed outcome = iota
	duplicate
	full
)

// insert places the pair on the first free slot. It reports duplicate,
// without touching the stored value, when the key is already present.
func (b *bucket) insert(k Key, v Value) outcome {
	for i := int8(0); i < b.n; i++ {
		if b.keys[i] == k {
			return duplicate
		}
	}
	if b.n == Slots {
		return full
	}
	b.keys[b.n], b.vals[b.n] = k, v
	b.n++
	return placed
}

// evict swaps the pair with the occupant of the last slot of a full
// bucket and returns the displaced occupant.
func (b *bucket) evict(k Key, v Value) (Key, Value) {
	ek, ev := b.keys[Slots-1], b.vals[Slots-1]
	b.keys[Slots-1], b.vals[Slots-1] = k, v
	return ek, ev
}

func (b *bucket) lookup(k Key) (Value, bool) {
	for i := int8(0); i < b.n; i++ {
		if b.keys[i] == k {
			return b.vals[i], true
		}
	}
	return 0, false
}

// remove compacts the bucket over the vacated slot and clears the last
// occupied slot so stale pairs never survive past n.
func (b *bucket) remove(k Key) (Value, bool) {
	for i := int8(0); i < b.n; i++ {
		if b.keys[i] != k {
			continue
		}
		v := b.vals[i]
		for j := i + 1; j < b.n; j++ {
			b.keys[j-1], b.vals[j-1] = b.keys[j], b.vals[j]
		}
		b.n--
		b.keys[b.n], b.vals[b.n] = 0, 0
		return v, true
	}
	return 0, false
}

// Configuration of the table, fixed at New except for the geometry
// fields which change when the table grows. All public.
type Config struct {
	Nbuckets int    // buckets per table
	Nslots   int    // slots per bucket
	Size     int    // total primary slots, 2 * Nbuckets * Nslots
	HashName string // name of the hash pair in use
}

// Counters. All public but we have an API to access them.
type Counters struct {
	Elements    int // number of elements currently residing in the table
	Inserts     int // number of times Insert has been called
	Lookups     int // number of lookups
	Deletes     int // number of times Delete has been called
	Attempts    int // number of bucket placement attempts
	Bumps       int // number of evicted pairs
	Stashed     int // number of inserts that landed in the stash
	Grows       int // number of table doublings
	Fails       int // number of inserts that failed even after growing
	MaxPathLen  int // longest displacement chain seen
	BucketBytes int // size of a single bucket in bytes
}

// The main data structure for the cuckoo hash. Most fields are private
// but the config and counters are public.
type Cuckoo struct {
	Config
	Counters
	t1, t2       []bucket
	stash        bucket
	seed1, seed2 uint64 // fixed at New, carried unchanged across grows
	h1, h2       hashFn
}

// New creates a table that can hold about capacity elements before its
// first doubling. The per table bucket count is capacity split over two
// tables of Slots wide buckets, minimum one bucket.
func New(capacity int, options ...Option) (*Cuckoo, error) {
	var o tableOptions
	for _, opt := range options {
		opt(&o)
	}
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	nb := (capacity + 2*Slots - 1) / (2 * Slots)
	if o.prime {
		nb = primes.NextPrime(nb)
	}
	if nb > maxBuckets {
		return nil, ErrTooLarge
	}
	h1, h2, err := hashPair(o.hashName)
	if err != nil {
		return nil, err
	}
	seed := o.seed
	if !o.seeded {
		if seed, err = entropySeed(); err != nil {
			return nil, err
		}
	}
	rnd := rand.New(rand.NewSource(seed))

	c := &Cuckoo{h1: h1, h2: h2, seed1: rnd.Uint64(), seed2: rnd.Uint64()}
	c.HashName = o.hashName
	if c.HashName == "" {
		c.HashName = DefaultHashName
	}
	c.Nslots = Slots
	c.BucketBytes = int(unsafe.Sizeof(bucket{}))
	c.alloc(nb)
	return c, nil
}

// entropySeed seeds the PRNG that draws seed1/seed2 when the caller did
// not supply a deterministic seed.
func entropySeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("cuckoo: seed: %v", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (c *Cuckoo) alloc(nb int) {
	c.t1 = make([]bucket, nb)
	c.t2 = make([]bucket, nb)
	c.stash = bucket{}
	c.Nbuckets = nb
	c.Size = 2 * nb * Slots
}

func (c *Cuckoo) index1(k Key) int {
	return int(c.h1(uint64(k), c.seed1) % uint64(c.Nbuckets))
}

func (c *Cuckoo) index2(k Key) int {
	return int(c.h2(uint64(k), c.seed2) % uint64(c.Nbuckets))
}

// maxTries bounds a displacement chain at triesScale placement attempts
// per power of two of per table capacity, never less than triesScale.
func maxTries(nbuckets int) int {
	lg := bits.Len(uint(nbuckets*Slots)) - 1
	if lg < 1 {
		lg = 1
	}
	return triesScale * lg
}

// contains reports whether key is anywhere in the table without
// touching the Lookups counter.
func (c *Cuckoo) contains(k Key) bool {
	if _, ok := c.t1[c.index1(k)].lookup(k); ok {
		return true
	}
	if _, ok := c.t2[c.index2(k)].lookup(k); ok {
		return true
	}
	_, ok := c.stash.lookup(k)
	return ok
}

// insertNoResize runs the displacement chain for one pair without ever
// growing the table. On failure the stuck pair is returned so the
// caller can grow and retry it; the original pair may well have landed
// earlier in the chain by then.
func (c *Cuckoo) insertNoResize(k Key, v Value) (ok bool, sk Key, sv Value) {
	// A key already resident anywhere in the table must be caught
	// before the chain starts. Each step below only sees the bucket
	// it is placing into, so a pair an earlier chain parked in the
	// other table or the stash would otherwise be stored twice.
	if c.contains(k) {
		return true, 0, 0
	}

	path := 0
	t1 := true
	for try := maxTries(c.Nbuckets); try > 0; try-- {
		var b *bucket
		if t1 {
			b = &c.t1[c.index1(k)]
		} else {
			b = &c.t2[c.index2(k)]
		}
		c.Attempts++
		switch b.insert(k, v) {
		case placed:
			c.Elements++
			fallthrough
		case duplicate:
			if path > c.MaxPathLen {
				c.MaxPathLen = path
			}
			return true, 0, 0
		}
		k, v = b.evict(k, v)
		c.Bumps++
		path++
		t1 = !t1
	}

	// Out of tries, the stash is the last resort. No eviction here.
	c.Attempts++
	switch c.stash.insert(k, v) {
	case placed:
		c.Elements++
		c.Stashed++
		fallthrough
	case duplicate:
		if path > c.MaxPathLen {
			c.MaxPathLen = path
		}
		return true, 0, 0
	}
	return false, k, v
}

// Insert adds key/value to the table. Inserting a key that is already
// present succeeds without overwriting the stored value. Insert only
// returns false when the stuck pair of a failed displacement chain
// still cannot be placed after growing the table to its size cap.
func (c *Cuckoo) Insert(key Key, val Value) bool {
	c.Inserts++
	ok, k, v := c.insertNoResize(key, val)
	for !ok {
		if !c.grow() {
			c.Fails++
			return false
		}
		ok, k, v = c.insertNoResize(k, v)
	}
	return true
}

// grow doubles the per table bucket count, false at the size cap.
func (c *Cuckoo) grow() bool {
	if c.Nbuckets > maxBuckets/2 {
		return false
	}
	c.resize(c.Nbuckets * 2)
	c.Grows++
	return true
}

// resize rebuilds both tables and the stash at nb buckets per table and
// re-inserts every live pair, carrying seed1/seed2 over unchanged. The
// old arrays are kept until the rebuild has fully succeeded, so a
// mis-sized target never corrupts the live table: if any re-insert
// fails the old arrays are put back and the next doubling is tried.
func (c *Cuckoo) resize(nb int) {
	for {
		if nb*2*Slots <= c.Elements {
			panic("cuckoo: resize: target smaller than live element count")
		}
		old1, old2, oldStash := c.t1, c.t2, c.stash
		oldNb, oldElements := c.Nbuckets, c.Elements
		c.alloc(nb)
		c.Elements = 0
		if c.reinsert(old1) && c.reinsert(old2) && c.reinsert([]bucket{oldStash}) {
			return
		}
		c.t1, c.t2, c.stash = old1, old2, oldStash
		c.Nbuckets, c.Size = oldNb, 2*oldNb*Slots
		c.Elements = oldElements
		if nb > maxBuckets/2 {
			panic("cuckoo: resize: table cannot grow further")
		}
		nb *= 2
	}
}

func (c *Cuckoo) reinsert(tbl []bucket) bool {
	for i := range tbl {
		b := &tbl[i]
		for s := int8(0); s < b.n; s++ {
			if ok, _, _ := c.insertNoResize(b.keys[s], b.vals[s]); !ok {
				return false
			}
		}
	}
	return true
}

// Lookup returns the value stored for key and an "ok" bool indicating
// whether the key was found.
func (c *Cuckoo) Lookup(key Key) (Value, bool) {
	c.Lookups++
	if v, ok := c.t1[c.index1(key)].lookup(key); ok {
		return v, true
	}
	if v, ok := c.t2[c.index2(key)].lookup(key); ok {
		return v, true
	}
	return c.stash.lookup(key)
}

// Exists reports whether key is in the table.
func (c *Cuckoo) Exists(key Key) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Delete removes key and returns the value it held. Deleting an absent
// key is a no-op. The freed slot is not backfilled from the stash or
// the other table, there is no rebalancing on delete.
func (c *Cuckoo) Delete(key Key) (Value, bool) {
	c.Deletes++
	v, ok := c.t1[c.index1(key)].remove(key)
	if !ok {
		v, ok = c.t2[c.index2(key)].remove(key)
	}
	if !ok {
		v, ok = c.stash.remove(key)
	}
	if ok {
		c.Elements--
		if c.Elements < 0 {
			panic("cuckoo: Delete")
		}
	}
	return v, ok
}

// Map calls iter for every live pair until iter returns true.
func (c *Cuckoo) Map(iter func(key Key, val Value) (stop bool)) {
	tables := [3][]bucket{c.t1, c.t2, {c.stash}}
	for _, tbl := range tables {
		for i := range tbl {
			b := &tbl[i]
			for s := int8(0); s < b.n; s++ {
				if iter(b.keys[s], b.vals[s]) {
					return
				}
			}
		}
	}
}

// Len returns the number of elements in the table.
func (c *Cuckoo) Len() int {
	return c.Elements
}

// LoadFactor is elements over primary capacity. Informational only; it
// can nudge past 1.0 if the stash is holding pairs.
func (c *Cuckoo) LoadFactor() float64 {
	return float64(c.Elements) / float64(c.Size)
}

// Reset drops every entry but keeps the geometry, seeds and hash pair.
func (c *Cuckoo) Reset() {
	for i := range c.t1 {
		c.t1[i] = bucket{}
	}
	for i := range c.t2 {
		c.t2[i] = bucket{}
	}
	c.stash = bucket{}
	c.Counters = Counters{BucketBytes: c.BucketBytes}
}

// GetCounter returns the value of a counter by name.
func (c *Cuckoo) GetCounter(s string) int {
	switch s {
	case "elements":
		return c.Elements
	case "inserts":
		return c.Inserts
	case "lookups":
		return c.Lookups
	case "deletes":
		return c.Deletes
	case "attempts":
		return c.Attempts
	case "bumps":
		return c.Bumps
	case "stashed":
		return c.Stashed
	case "grows":
		return c.Grows
	case "fails":
		return c.Fails
	case "MaxPathLen":
		return c.MaxPathLen
	case "size":
		return c.Size
	default:
		panic("GetCounter")
	}
}
