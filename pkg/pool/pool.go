// Buffer pools for G-code streams
//
// Reading a sliced file and re-joining its layers allocates buffers the
// size of the file. The pool keeps buffers up to MaxPooledSize around
// for the next run; larger ones are left to the GC.
//
// Usage:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//	buf.ReadFrom(r)
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// MaxPooledSize is the largest buffer capacity returned to the pool.
const MaxPooledSize = 32 << 20

// initialSize is the capacity of freshly allocated buffers.
const initialSize = 64 << 10

var bufferPool = sync.Pool{
	New: func() any {
		misses.Add(1)
		return bytes.NewBuffer(make([]byte, 0, initialSize))
	},
}

var gets, misses, drops atomic.Uint64

// GetBuffer gets an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	gets.Add(1)
	b := bufferPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// PutBuffer returns a buffer to the pool. The caller must not use b
// afterwards.
func PutBuffer(b *bytes.Buffer) {
	if b == nil {
		return
	}
	if b.Cap() > MaxPooledSize {
		drops.Add(1)
		return
	}
	b.Reset()
	bufferPool.Put(b)
}

// Stats holds pool usage counters.
type Stats struct {
	Gets   uint64
	Misses uint64
	Drops  uint64
}

// GetStats returns the counters accumulated since process start.
func GetStats() Stats {
	return Stats{Gets: gets.Load(), Misses: misses.Load(), Drops: drops.Load()}
}
