// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rma implements the one-sided RMA strategy (spec.md §4.5,
// component C9): worker input/output buffers are (re)bound as windows
// at the start of every pre_comm/post_comm, which put and get records
// into them directly,
// framed by fence epochs — here, a Barrier before and after the puts
// and a Barrier before the gets, since a fence carries no payload of
// its own beyond the rendezvous.
package rma

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/limiter"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/group"
	"github.com/kraused/mexico/internal/transport"
	"github.com/kraused/mexico/strategy/internal/coalesce"
	"github.com/kraused/mexico/strategy/internal/workerbuf"
)

// maxInFlight bounds the number of concurrent put/get RPCs a single
// epoch may have outstanding, the same role commitLimiter plays for
// bigmachine.go's concurrent combiner commits.
const maxInFlight = 64

// Strategy is C9's Strategy implementation.
type Strategy struct {
	grp      *group.Group
	buf      *workerbuf.Buffers
	coalesce bool
	inFlight *limiter.Limiter
}

// New constructs an RMA strategy. Recognized hint: "coalesce".
func New(grp *group.Group, job mexico.Job, isWorker bool, hints string) *Strategy {
	lim := limiter.New()
	lim.Release(maxInFlight)
	return &Strategy{grp: grp, buf: workerbuf.New(job, isWorker), coalesce: strings.Contains(hints, "coalesce"), inFlight: lim}
}

// PreComm implements mexico.Strategy: a fence-opened epoch of puts.
func (s *Strategy) PreComm(ctx context.Context, in mexico.GatherSpec) error {
	recordSize := in.RecordSize()
	inBuf, wRecSize := s.buf.EnsureIn(in.Cnt, in.Type)
	s.grp.Bind("in", inBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil { // fence open
		return mexico.TransportError(err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	if s.coalesce {
		for _, run := range coalesce.Coalesce(&in.Routing) {
			run := run
			records := make([]transport.IndexedRecord, run.Len)
			for i := 0; i < run.Len; i++ {
				data := make([]byte, recordSize)
				copy(data, in.Record(run.VStart+i))
				records[i] = transport.IndexedRecord{Slot: run.OffsetStart + i, Data: data}
			}
			eg.Go(func() error {
				if err := s.inFlight.Acquire(ctx, 1); err != nil {
					return err
				}
				defer s.inFlight.Release(1)
				return s.grp.Deliver(ctx, run.Worker, "in", records)
			})
		}
	} else {
		in.Routing.Sweep(func(v, k, w, offset int) {
			data := make([]byte, recordSize)
			copy(data, in.Record(v))
			eg.Go(func() error {
				if err := s.inFlight.Acquire(ctx, 1); err != nil {
					return err
				}
				defer s.inFlight.Release(1)
				return s.grp.Deliver(ctx, w, "in", []transport.IndexedRecord{{Slot: offset, Data: data}})
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return mexico.TransportError(err)
	}
	if err := s.grp.Barrier(ctx); err != nil { // fence close
		return mexico.TransportError(err)
	}
	return nil
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

// PostComm implements mexico.Strategy: a fence-opened epoch of gets.
func (s *Strategy) PostComm(ctx context.Context, out mexico.ScatterSpec) error {
	outBuf, wRecSize := s.buf.EnsureOut(out.Cnt, out.Type)
	s.grp.Bind("out", outBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil { // fence open
		return mexico.TransportError(err)
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	if s.coalesce {
		for _, run := range coalesce.Coalesce(&out.Routing) {
			run := run
			slots := make([]int, run.Len)
			for i := range slots {
				slots[i] = run.OffsetStart + i
			}
			eg.Go(func() error {
				if err := s.inFlight.Acquire(ctx, 1); err != nil {
					return err
				}
				defer s.inFlight.Release(1)
				records, err := s.grp.Fetch(ctx, run.Worker, "out", slots)
				if err != nil {
					return err
				}
				mu.Lock()
				for i := 0; i < run.Len; i++ {
					out.SetRecord(run.VStart+i, run.K, records[i])
				}
				mu.Unlock()
				return nil
			})
		}
	} else {
		out.Routing.Sweep(func(v, k, w, offset int) {
			v, k, w, offset := v, k, w, offset
			eg.Go(func() error {
				if err := s.inFlight.Acquire(ctx, 1); err != nil {
					return err
				}
				defer s.inFlight.Release(1)
				records, err := s.grp.Fetch(ctx, w, "out", []int{offset})
				if err != nil {
					return err
				}
				mu.Lock()
				out.SetRecord(v, k, records[0])
				mu.Unlock()
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return mexico.TransportError(err)
	}
	return nil
}
