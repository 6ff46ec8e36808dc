// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package cuckoo

// Option tweaks table construction. The zero option set gives the
// default hash pair and seeds drawn from the OS entropy source.
type Option func(*tableOptions)

type tableOptions struct {
	hashName string
	seed     int64
	seeded   bool
	prime    bool
}

// WithHash selects the hash function pair by name. See DefaultHashName
// for the default pairing; "m364", "city64" and "aes" reuse one family
// for both tables with independent seeds.
func WithHash(name string) Option {
	return func(o *tableOptions) { o.hashName = name }
}

// WithSeed makes seed1 and seed2 a deterministic function of seed so a
// test can reproduce an exact eviction history.
func WithSeed(seed int64) Option {
	return func(o *tableOptions) { o.seed, o.seeded = seed, true }
}

// WithPrimeBuckets rounds the initial per-table bucket count up to the
// next prime, which decorrelates bucket indices from stride patterns in
// the key space.
func WithPrimeBuckets() Option {
	return func(o *tableOptions) { o.prime = true }
}
