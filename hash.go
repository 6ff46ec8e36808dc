// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package cuckoo

import (
	"fmt"

	"github.com/dataence/cityhash"
	"github.com/spaolacci/murmur3"
	"leb.io/aeshash"
)

// DefaultHashName pairs two structurally unrelated hash families, one per
// table, so eviction chains in table1 and table2 do not correlate.
const DefaultHashName = "m364+city64"

// hashFn maps an 8 byte key and a seed to a bucket-addressable hash.
type hashFn func(key, seed uint64) uint64

// hashPair selects the hash functions for table1 and table2 by name.
// Pairs that reuse one family still get independent seeds.
func hashPair(name string) (h1, h2 hashFn, err error) {
	switch name {
	case "", DefaultHashName:
		return murmur64, city64, nil
	case "m364":
		return murmur64, murmur64, nil
	case "city64":
		return city64, city64, nil
	case "aes":
		return aes64, aes64, nil
	}
	return nil, nil, fmt.Errorf("cuckoo: unknown hash function %q", name)
}

func murmur64(key, seed uint64) uint64 {
	var b [8]byte
	ui64tob(b[:], key)
	return murmur3.Sum64WithSeed(b[:], uint32(seed))
}

func city64(key, seed uint64) uint64 {
	var b [8]byte
	ui64tob(b[:], key)
	return cityhash.CityHash64WithSeed(b[:], 8, seed)
}

func aes64(key, seed uint64) uint64 {
	return aeshash.Hash64(key, seed)
}

func ui64tob(b []byte, key uint64) {
	b[0], b[1], b[2], b[3] = byte(key), byte(key>>8), byte(key>>16), byte(key>>24)
	b[4], b[5], b[6], b[7] = byte(key>>32), byte(key>>40), byte(key>>48), byte(key>>56)
}
