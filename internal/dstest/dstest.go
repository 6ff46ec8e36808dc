// Copyright © 2014-2017 Lawrence E. Bakst. All rights reserved.

// Package dstest drives keyed data structures through fill, verify and
// drain workloads and reports what happened.
package dstest

import (
	"fmt"
	"math/rand"

	"github.com/dataence/bloom/standard"
	"github.com/willf/bitset"

	"github.com/dstk/cuckoo"
)

// Interface is the slice of the table API a workload needs. The cuckoo
// table satisfies it directly, as does a Recorder wrapped around one.
type Interface interface {
	Insert(key cuckoo.Key, val cuckoo.Value) bool
	Lookup(key cuckoo.Key) (cuckoo.Value, bool)
	Delete(key cuckoo.Key) (cuckoo.Value, bool)
	Map(iter func(key cuckoo.Key, val cuckoo.Value) bool)
	Len() int
	LoadFactor() float64
	GetCounter(name string) int
}

// FillStats reports what a fill did. Placed records, per key offset,
// whether the insert succeeded, so later passes only check keys that
// actually landed.
type FillStats struct {
	Base   int     // first key of the run
	N      int     // keys attempted
	Used   int     // keys that landed
	Fails  int     // keys the structure refused
	Failed bool    // any insert failed
	Load   float64 // load factor after the fill
	Placed *bitset.BitSet
}

// RandomBase picks a base for a key run, away from zero so the run
// never contains the zero key.
func RandomBase(r *rand.Rand) int {
	return rbetween(r, 1, 1<<29)
}

// rbetween returns a random int in [a, b].
func rbetween(r *rand.Rand, a, b int) int {
	return a + int(r.Float64()*float64(b-a+1))
}

// Fill inserts the n keys base..base+n-1 with value offset+1.
func Fill(d Interface, base, n int) *FillStats {
	fs := &FillStats{Base: base, N: n, Placed: bitset.New(uint(n))}
	for i := 0; i < n; i++ {
		if d.Insert(cuckoo.Key(base+i), cuckoo.Value(i+1)) {
			fs.Placed.Set(uint(i))
		} else {
			fs.Fails++
			fs.Failed = true
		}
	}
	fs.Used = int(fs.Placed.Count())
	fs.Load = d.LoadFactor()
	return fs
}

// Verify checks that every key the fill placed is still present with
// the value the fill gave it.
func Verify(d Interface, fs *FillStats) error {
	for i := 0; i < fs.N; i++ {
		if !fs.Placed.Test(uint(i)) {
			continue
		}
		k := cuckoo.Key(fs.Base + i)
		v, ok := d.Lookup(k)
		if !ok {
			return fmt.Errorf("dstest: verify: key %d missing", k)
		}
		if v != cuckoo.Value(i+1) {
			return fmt.Errorf("dstest: verify: key %d holds %d, want %d", k, v, i+1)
		}
	}
	return nil
}

// Drain deletes every key the fill placed and confirms each one is
// gone afterwards.
func Drain(d Interface, fs *FillStats) error {
	for i := 0; i < fs.N; i++ {
		if !fs.Placed.Test(uint(i)) {
			continue
		}
		k := cuckoo.Key(fs.Base + i)
		if _, ok := d.Delete(k); !ok {
			return fmt.Errorf("dstest: drain: key %d would not delete", k)
		}
		if _, ok := d.Lookup(k); ok {
			return fmt.Errorf("dstest: drain: key %d still present after delete", k)
		}
	}
	return nil
}

// CrossCheck walks every pair the structure holds and checks it against
// a bloom filter of the keys the fill placed. The filter has no false
// negatives, so any miss is a key the structure invented or corrupted.
func CrossCheck(d Interface, fs *FillStats) error {
	n := fs.Used
	if n < 1 {
		n = 1
	}
	bf := standard.New(uint(n))
	var kb [8]byte
	for i := 0; i < fs.N; i++ {
		if fs.Placed.Test(uint(i)) {
			keyBytes(kb[:], cuckoo.Key(fs.Base+i))
			bf.Add(kb[:])
		}
	}

	var err error
	d.Map(func(k cuckoo.Key, v cuckoo.Value) bool {
		keyBytes(kb[:], k)
		if !bf.Check(kb[:]) {
			err = fmt.Errorf("dstest: crosscheck: key %d was never inserted", k)
			return true
		}
		return false
	})
	return err
}

func keyBytes(b []byte, k cuckoo.Key) {
	b[0], b[1], b[2], b[3] = byte(k), byte(k>>8), byte(k>>16), byte(k>>24)
	b[4], b[5], b[6], b[7] = byte(k>>32), byte(k>>40), byte(k>>48), byte(k>>56)
}
