// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package workerbuf is the small piece every strategy's inbuf/outbuf
// management has in common (spec.md §4.2 "a strategy owns the
// worker's local input and output scratch buffers"): allocate lazily,
// resize by reallocation when the invocation's record size changes,
// grow monotonically otherwise (spec.md §9 "Scratch growth").
package workerbuf

import (
	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/memory"
)

// Buffers holds a worker rank's inbuf/outbuf; on a non-worker rank
// both stay nil and every Ensure* call returns a zero-length slice.
type Buffers struct {
	Job      mexico.Job
	IsWorker bool

	in  *memory.Buffer
	out *memory.Buffer
}

// New returns a Buffers for job; job is nil on non-worker ranks.
func New(job mexico.Job, isWorker bool) *Buffers {
	return &Buffers{Job: job, IsWorker: isWorker}
}

// EnsureIn returns the worker's input scratch sized for cnt elements
// of typ per record, reallocating if the per-record size changed
// since the last call and otherwise only growing.
func (b *Buffers) EnsureIn(cnt int, typ mexico.ElementType) (buf []byte, recordSize int) {
	if !b.IsWorker {
		return nil, cnt * typ.Extent()
	}
	recordSize = cnt * typ.Extent()
	n := b.Job.InputCount()
	if b.in == nil || b.in.RecordSize() != recordSize {
		b.in = memory.NewBuffer(recordSize, n)
	} else {
		b.in.Grow(n)
	}
	return b.in.Bytes(), recordSize
}

// EnsureOut is EnsureIn's output-side counterpart.
func (b *Buffers) EnsureOut(cnt int, typ mexico.ElementType) (buf []byte, recordSize int) {
	if !b.IsWorker {
		return nil, cnt * typ.Extent()
	}
	recordSize = cnt * typ.Extent()
	n := b.Job.OutputCount()
	if b.out == nil || b.out.RecordSize() != recordSize {
		b.out = memory.NewBuffer(recordSize, n)
	} else {
		b.out.Grow(n)
	}
	return b.out.Bytes(), recordSize
}

// In returns the current input scratch, or nil if never allocated.
func (b *Buffers) In() []byte {
	if b.in == nil {
		return nil
	}
	return b.in.Bytes()
}

// Out returns the current output scratch, or nil if never allocated.
func (b *Buffers) Out() []byte {
	if b.out == nil {
		return nil
	}
	return b.out.Bytes()
}
