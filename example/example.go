// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// This program provides a test interface to the cuckoo hash table.
// Each trial creates a table, fills it with a run of keys, verifies
// every key landed, cross checks the table contents against a bloom
// filter of what was inserted, drains the table, and prints what it
// cost. SIGINFO dumps the live counters mid run.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"leb.io/hrff"

	"github.com/dstk/cuckoo"
	"github.com/dstk/cuckoo/internal/dstest"
	"github.com/dstk/cuckoo/internal/siginfo"
)

var hashName = flag.String("h", cuckoo.DefaultHashName, "name of hash pair {m364+city64, m364, city64, aes}")
var nkeys = flag.Int("n", 1<<20, "keys per trial")
var ntrials = flag.Int("nt", 5, "number of trials")
var ibase = flag.Int("base", 1, "base of the fill series")
var ranb = flag.Bool("rb", false, "ignore base, use a random base per trial")
var seed = flag.Int64("seed", 0, "deterministic seed, 0 draws from entropy")
var prime = flag.Bool("p", false, "prime bucket counts")
var tracef = flag.String("trace", "", "record the operation trace to this file")
var verbose = flag.Bool("v", false, "verbose")

var cp = flag.String("cp", "", "write cpu profile to file")
var mp = flag.String("mp", "", "write memory profile to this file")

// live is what a SIGINFO handler dumps, whatever trial is running.
// The table is single threaded, so the handler goroutine and the trial
// share it through liveMu: every table operation goes through a
// lockedTable and dump takes the same mutex.
var liveMu sync.Mutex
var live *cuckoo.Cuckoo

// lockedTable serializes table access against the SIGINFO dump.
type lockedTable struct {
	d dstest.Interface
}

func (l *lockedTable) Insert(key cuckoo.Key, val cuckoo.Value) bool {
	liveMu.Lock()
	defer liveMu.Unlock()
	return l.d.Insert(key, val)
}

func (l *lockedTable) Lookup(key cuckoo.Key) (cuckoo.Value, bool) {
	liveMu.Lock()
	defer liveMu.Unlock()
	return l.d.Lookup(key)
}

func (l *lockedTable) Delete(key cuckoo.Key) (cuckoo.Value, bool) {
	liveMu.Lock()
	defer liveMu.Unlock()
	return l.d.Delete(key)
}

func (l *lockedTable) Map(iter func(key cuckoo.Key, val cuckoo.Value) bool) {
	liveMu.Lock()
	defer liveMu.Unlock()
	l.d.Map(iter)
}

func (l *lockedTable) Len() int {
	liveMu.Lock()
	defer liveMu.Unlock()
	return l.d.Len()
}

func (l *lockedTable) LoadFactor() float64 {
	liveMu.Lock()
	defer liveMu.Unlock()
	return l.d.LoadFactor()
}

func (l *lockedTable) GetCounter(name string) int {
	liveMu.Lock()
	defer liveMu.Unlock()
	return l.d.GetCounter(name)
}

func hi(v int, u string) hrff.Int64 {
	return hrff.Int64{V: int64(v), U: u}
}

func dump() {
	liveMu.Lock()
	defer liveMu.Unlock()
	c := live
	if c == nil {
		return
	}
	fmt.Printf("elements=%h, size=%h, load=%0.4f, grows=%d, bumps=%d, stashed=%d, fails=%d, MaxPathLen=%d\n",
		hi(c.Len(), ""), hi(c.Size, ""), c.LoadFactor(),
		c.Grows, c.Bumps, c.Stashed, c.Fails, c.MaxPathLen)
}

func trial(tn int, r *rand.Rand) {
	opts := []cuckoo.Option{cuckoo.WithHash(*hashName)}
	if *seed != 0 {
		opts = append(opts, cuckoo.WithSeed(*seed+int64(tn)))
	}
	if *prime {
		opts = append(opts, cuckoo.WithPrimeBuckets())
	}
	c, err := cuckoo.New(*nkeys, opts...)
	if err != nil {
		log.Fatal(err)
	}
	liveMu.Lock()
	live = c
	liveMu.Unlock()

	var d dstest.Interface = c
	var rec *dstest.Recorder
	if *tracef != "" {
		f, err := os.Create(fmt.Sprintf("%s.%d", *tracef, tn))
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		rec = dstest.NewRecorder(c, f)
		d = rec
	}
	d = &lockedTable{d: d}

	base := *ibase
	if *ranb {
		base = dstest.RandomBase(r)
	}
	if *verbose {
		fmt.Printf("trial %d: base=%d, n=%d, buckets=%d\n", tn, base, *nkeys, c.Nbuckets)
	}

	start := time.Now()
	fs := dstest.Fill(d, base, *nkeys)
	fill := time.Since(start)
	if fs.Failed {
		log.Fatalf("trial %d: %d of %d inserts failed", tn, fs.Fails, fs.N)
	}
	if err := dstest.Verify(d, fs); err != nil {
		log.Fatal(err)
	}
	if err := dstest.CrossCheck(d, fs); err != nil {
		log.Fatal(err)
	}
	if err := dstest.Drain(d, fs); err != nil {
		log.Fatal(err)
	}
	if rec != nil {
		if err := rec.Err(); err != nil {
			log.Fatal(err)
		}
	}

	rate := hrff.Float64{V: float64(fs.N) / fill.Seconds(), U: "ops/s"}
	fmt.Printf("trial %d: n=%h, fill=%v, %h, load=%0.4f, grows=%d, bumps=%d, stashed=%d, MaxPathLen=%d\n",
		tn, hi(fs.N, ""), fill.Round(time.Millisecond), rate, fs.Load,
		c.Grows, c.Bumps, c.Stashed, c.MaxPathLen)
}

func main() {
	flag.Parse()

	if *cp != "" {
		f, err := os.Create(*cp)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	stop := siginfo.SetHandler(dump)
	defer stop()

	rs := *seed
	if rs == 0 {
		rs = time.Now().UTC().UnixNano()
	}
	r := rand.New(rand.NewSource(rs))

	for t := 0; t < *ntrials; t++ {
		trial(t, r)
	}

	if *mp != "" {
		f, err := os.Create(*mp)
		if err != nil {
			log.Fatal(err)
		}
		pprof.WriteHeapProfile(f)
		f.Close()
	}
}
