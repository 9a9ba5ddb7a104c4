// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shmem implements the symmetric-shared-memory strategy
// (spec.md §4.6, component C10): worker input/output capacity is
// reconciled to the maximum requested by any rank (spec.md §9
// "Symmetric allocation constraint" — symmetric allocation requires a
// single uniform size, reconciled by an all-reduce-max), then
// gather/scatter are remote put/get framed by barriers, with the same
// optional coalescing as rma.
package shmem

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/limiter"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/group"
	"github.com/kraused/mexico/internal/memory"
	"github.com/kraused/mexico/internal/transport"
	"github.com/kraused/mexico/strategy/internal/coalesce"
)

// maxInFlight bounds the number of concurrent put/get RPCs a single
// epoch may have outstanding, the same role commitLimiter plays for
// bigmachine.go's concurrent combiner commits.
const maxInFlight = 64

// Strategy is C10's Strategy implementation.
type Strategy struct {
	grp      *group.Group
	job      mexico.Job
	isWorker bool
	coalesce bool
	inFlight *limiter.Limiter

	inN, outN int // reconciled (max over ranks) buffer capacity, in records

	in, out *memory.Buffer
}

// New constructs a symmetric-shared-memory strategy, reconciling every
// worker's requested input/output capacity via an all-reduce-max
// before any buffer is allocated. Recognized hint: "coalesce".
func New(ctx context.Context, grp *group.Group, job mexico.Job, isWorker bool, hints string) (*Strategy, error) {
	localInN, localOutN := 0, 0
	if isWorker {
		localInN, localOutN = job.InputCount(), job.OutputCount()
	}
	inN, err := allReduceMax(ctx, grp, "shmem:inN", localInN)
	if err != nil {
		return nil, mexico.ResourceError("shmem: reconciling input capacity: %v", err)
	}
	outN, err := allReduceMax(ctx, grp, "shmem:outN", localOutN)
	if err != nil {
		return nil, mexico.ResourceError("shmem: reconciling output capacity: %v", err)
	}
	lim := limiter.New()
	lim.Release(maxInFlight)
	return &Strategy{
		grp: grp, job: job, isWorker: isWorker,
		coalesce: strings.Contains(hints, "coalesce"),
		inFlight: lim,
		inN:      inN, outN: outN,
	}, nil
}

// allReduceMax reconciles local across every rank in grp by reusing
// the fixed-size count exchange: announce local to every rank, and
// take the max of what every rank announced back.
func allReduceMax(ctx context.Context, grp *group.Group, exchangeID string, local int) (int, error) {
	sendCounts := make([]int, grp.Size())
	for i := range sendCounts {
		sendCounts[i] = local
	}
	recv, err := grp.ExchangeCounts(ctx, exchangeID, sendCounts)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, v := range recv {
		if v > max {
			max = v
		}
	}
	return max, nil
}

func (s *Strategy) ensureIn(cnt int, typ mexico.ElementType) (buf []byte, recordSize int) {
	recordSize = cnt * typ.Extent()
	if s.in == nil || s.in.RecordSize() != recordSize {
		s.in = memory.NewBuffer(recordSize, s.inN)
	} else {
		s.in.Grow(s.inN)
	}
	return s.in.Bytes(), recordSize
}

func (s *Strategy) ensureOut(cnt int, typ mexico.ElementType) (buf []byte, recordSize int) {
	recordSize = cnt * typ.Extent()
	if s.out == nil || s.out.RecordSize() != recordSize {
		s.out = memory.NewBuffer(recordSize, s.outN)
	} else {
		s.out.Grow(s.outN)
	}
	return s.out.Bytes(), recordSize
}

// PreComm implements mexico.Strategy: a barrier-framed epoch of puts.
func (s *Strategy) PreComm(ctx context.Context, in mexico.GatherSpec) error {
	recordSize := in.RecordSize()
	inBuf, wRecSize := s.ensureIn(in.Cnt, in.Type)
	s.grp.Bind("in", inBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil {
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
	return s.grp.Barrier(ctx)
}

// ExecJob implements mexico.Strategy.
func (s *Strategy) ExecJob(ctx context.Context, job mexico.Job) error {
	if s.isWorker {
		if err := job.Compute(ctx, s.in.Bytes(), s.out.Bytes()); err != nil {
			return err
		}
	}
	return s.grp.Barrier(ctx)
}

// PostComm implements mexico.Strategy: a barrier-framed epoch of gets.
func (s *Strategy) PostComm(ctx context.Context, out mexico.ScatterSpec) error {
	outBuf, wRecSize := s.ensureOut(out.Cnt, out.Type)
	s.grp.Bind("out", outBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil {
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
