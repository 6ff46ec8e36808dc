// Copyright © 2014-2017 Lawrence E. Bakst. All rights reserved.

package dstest

import (
	"fmt"
	"io"

	"github.com/alecthomas/binary"

	"github.com/dstk/cuckoo"
)

// Operation codes for trace records.
const (
	OpInsert uint8 = iota
	OpLookup
	OpDelete
)

// Op is one trace record. Val is meaningful for inserts only.
type Op struct {
	Code uint8
	Key  uint64
	Val  uint64
}

// Recorder wraps an Interface and writes every mutating or probing
// operation to w, so a failing workload can be replayed against a
// fresh table. Encoding errors are sticky, check Err at the end.
type Recorder struct {
	d   Interface
	enc *binary.Encoder
	err error
}

func NewRecorder(d Interface, w io.Writer) *Recorder {
	return &Recorder{d: d, enc: binary.NewEncoder(w)}
}

func (r *Recorder) record(code uint8, k cuckoo.Key, v cuckoo.Value) {
	if r.err != nil {
		return
	}
	r.err = r.enc.Encode(&Op{Code: code, Key: uint64(k), Val: uint64(v)})
}

func (r *Recorder) Insert(k cuckoo.Key, v cuckoo.Value) bool {
	r.record(OpInsert, k, v)
	return r.d.Insert(k, v)
}

func (r *Recorder) Lookup(k cuckoo.Key) (cuckoo.Value, bool) {
	r.record(OpLookup, k, 0)
	return r.d.Lookup(k)
}

func (r *Recorder) Delete(k cuckoo.Key) (cuckoo.Value, bool) {
	r.record(OpDelete, k, 0)
	return r.d.Delete(k)
}

func (r *Recorder) Map(iter func(key cuckoo.Key, val cuckoo.Value) bool) {
	r.d.Map(iter)
}

func (r *Recorder) Len() int                   { return r.d.Len() }
func (r *Recorder) LoadFactor() float64        { return r.d.LoadFactor() }
func (r *Recorder) GetCounter(name string) int { return r.d.GetCounter(name) }

// Err returns the first encoding error, if any.
func (r *Recorder) Err() error { return r.err }

// Replay feeds a recorded trace into d and returns the number of
// operations applied.
func Replay(rd io.Reader, d Interface) (n int, err error) {
	dec := binary.NewDecoder(rd)
	for {
		var op Op
		if err := dec.Decode(&op); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return n, nil
			}
			return n, err
		}
		switch op.Code {
		case OpInsert:
			d.Insert(cuckoo.Key(op.Key), cuckoo.Value(op.Val))
		case OpLookup:
			d.Lookup(cuckoo.Key(op.Key))
		case OpDelete:
			d.Delete(cuckoo.Key(op.Key))
		default:
			return n, fmt.Errorf("dstest: replay: bad op code %d", op.Code)
		}
		n++
	}
}
