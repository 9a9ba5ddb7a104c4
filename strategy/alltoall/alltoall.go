// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package alltoall implements the collective all-to-all strategy
// (spec.md §4.3, component C7): gather and scatter each batch all
// routing entries addressed to a given worker into one bulk transfer
// per destination, issued concurrently — the observable shape of a
// variable all-to-all exchange — rather than one transfer per record.
package alltoall

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/group"
	"github.com/kraused/mexico/internal/transport"
	"github.com/kraused/mexico/strategy/internal/workerbuf"
)

// Strategy is C7's Strategy implementation.
type Strategy struct {
	grp  *group.Group
	buf  *workerbuf.Buffers
	pack bool
	pt2p bool
}

// New constructs an all-to-all strategy. hints is the runtime
// namelist's free-form hint string (spec.md §6); recognized tokens
// are "pack" and "exch_with_pt2pt".
func New(grp *group.Group, job mexico.Job, isWorker bool, hints string) *Strategy {
	return &Strategy{
		grp:  grp,
		buf:  workerbuf.New(job, isWorker),
		pack: strings.Contains(hints, "pack"),
		pt2p: strings.Contains(hints, "exch_with_pt2pt"),
	}
}

// PreComm implements mexico.Strategy.
//
// The "pack" hint (fuse offset and payload into one struct datatype,
// spec.md §4.3 step 2) has no separate wire representation here: every
// Deliver call already carries (slot, payload) pairs as one unit, so
// packed and unpacked exchanges are observably identical scratch-wise.
// "exch_with_pt2pt" is parsed into an unexported field and nothing
// reads it: the dispatch below is the same concurrent-Deliver fan-out
// either way, since our RPC substrate has no separate all-to-all
// collective to substitute away from. See DESIGN.md.
func (s *Strategy) PreComm(ctx context.Context, in mexico.GatherSpec) error {
	recordSize := in.RecordSize()
	inBuf, wRecSize := s.buf.EnsureIn(in.Cnt, in.Type)
	s.grp.Bind("in", inBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil { // fence open
		return mexico.TransportError(err)
	}

	batches := make(map[int][]transport.IndexedRecord)
	in.Routing.Sweep(func(v, k, w, offset int) {
		data := make([]byte, recordSize)
		copy(data, in.Record(v))
		batches[w] = append(batches[w], transport.IndexedRecord{Slot: offset, Data: data})
	})

	eg, ctx := errgroup.WithContext(ctx)
	for w, recs := range batches {
		w, recs := w, recs
		eg.Go(func() error {
			return s.grp.Deliver(ctx, w, "in", recs)
		})
	}
	if err := eg.Wait(); err != nil {
		return mexico.TransportError(err)
	}
	return s.grp.Barrier(ctx)
}

// ExecJob implements mexico.Strategy.
func (s *Strategy) ExecJob(ctx context.Context, job mexico.Job) error {
	if s.buf.IsWorker {
		if err := job.Compute(ctx, s.buf.In(), s.buf.Out()); err != nil {
			return err
		}
	}
	return s.grp.Barrier(ctx)
}

// PostComm implements mexico.Strategy.
func (s *Strategy) PostComm(ctx context.Context, out mexico.ScatterSpec) error {
	outBuf, wRecSize := s.buf.EnsureOut(out.Cnt, out.Type)
	s.grp.Bind("out", outBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil { // fence open
		return mexico.TransportError(err)
	}

	type pull struct{ v, k, worker, slot int }
	byWorker := make(map[int][]pull)
	out.Routing.Sweep(func(v, k, w, offset int) {
		byWorker[w] = append(byWorker[w], pull{v: v, k: k, worker: w, slot: offset})
	})

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	for w, pulls := range byWorker {
		w, pulls := w, pulls
		eg.Go(func() error {
			slots := make([]int, len(pulls))
			for i, p := range pulls {
				slots[i] = p.slot
			}
			records, err := s.grp.Fetch(ctx, w, "out", slots)
			if err != nil {
				return err
			}
			mu.Lock()
			for i, p := range pulls {
				out.SetRecord(p.v, p.k, records[i])
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return mexico.TransportError(err)
	}
	return nil
}
