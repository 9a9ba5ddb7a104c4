// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gaput implements the distributed-array put/get strategy
// (spec.md §4.7, component C11): worker capacities are concatenated
// in rank order into one global linear address space per side, with
// a prefix sum giving each rank's segment start; routing entries are
// addressed globally rather than per-rank, so a coalesced run may
// span a rank boundary and must be split into per-rank puts/gets at
// dispatch time — the one genuine behavioral difference from the RMA
// and SHMEM strategies' per-rank coalescing.
package gaput

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/status"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/group"
	"github.com/kraused/mexico/internal/memory"
	"github.com/kraused/mexico/internal/transport"
)

// maxInFlight bounds the number of concurrent put/get RPCs a single
// epoch may have outstanding, the same role commitLimiter plays for
// bigmachine.go's concurrent combiner commits.
const maxInFlight = 64

// Strategy is C11's Strategy implementation.
type Strategy struct {
	grp          *group.Group
	job          mexico.Job
	isWorker     bool
	coalesce     bool
	useIrregDist bool
	inFlight     *limiter.Limiter

	inStart, outStart []int
	inSizes, outSizes []int

	in, out *memory.Buffer

	stats     *group.EpochStats
	statusGrp *status.Group
}

// New constructs a distributed-array put/get strategy. statusGrp may
// be nil; if non-nil, per-epoch put/get counters (spec.md §4.7) are
// reported to it. Recognized hints: "coalesce", "use_irreg_distr".
func New(ctx context.Context, grp *group.Group, job mexico.Job, isWorker bool, hints string, statusGrp *status.Group) (*Strategy, error) {
	localIn, localOut := 0, 0
	if isWorker {
		localIn, localOut = job.InputCount(), job.OutputCount()
	}
	inSizes, err := exchangeSizes(ctx, grp, "ga:inN", localIn)
	if err != nil {
		return nil, mexico.ResourceError("gaput: building input address space: %v", err)
	}
	outSizes, err := exchangeSizes(ctx, grp, "ga:outN", localOut)
	if err != nil {
		return nil, mexico.ResourceError("gaput: building output address space: %v", err)
	}
	lim := limiter.New()
	lim.Release(maxInFlight)
	return &Strategy{
		grp: grp, job: job, isWorker: isWorker,
		coalesce:     strings.Contains(hints, "coalesce"),
		useIrregDist: strings.Contains(hints, "use_irreg_distr"),
		inFlight:     lim,
		inStart:      prefixSum(inSizes), outStart: prefixSum(outSizes),
		inSizes: inSizes, outSizes: outSizes,
		stats:     group.NewEpochStats(),
		statusGrp: statusGrp,
	}, nil
}

func exchangeSizes(ctx context.Context, grp *group.Group, exchangeID string, local int) ([]int, error) {
	sendCounts := make([]int, grp.Size())
	for i := range sendCounts {
		sendCounts[i] = local
	}
	return grp.ExchangeCounts(ctx, exchangeID, sendCounts)
}

func prefixSum(sizes []int) []int {
	start := make([]int, len(sizes))
	sum := 0
	for i, n := range sizes {
		start[i] = sum
		sum += n
	}
	return start
}

// resolve maps a global record index back to the (rank, local slot)
// that owns it.
func resolve(start, sizes []int, idx int) (rank, slot int) {
	for r := len(start) - 1; r >= 0; r-- {
		if idx >= start[r] {
			return r, idx - start[r]
		}
	}
	return 0, idx
}

// run is a maximal contiguous bucket in the global address space: Len
// consecutive source records starting at VStart (column K) all
// targeting consecutive global slots starting at GlobalStart.
type run struct {
	K, VStart, Len, GlobalStart int
}

// buildRuns sweeps m column-major (spec.md §9's required order) and
// merges entries that are contiguous both in global address and in
// source position (spec.md §4.7 "both conditions are required because
// the source region of a single bulk put must itself be contiguous").
// When coalesce is false every entry is its own run of length 1.
func buildRuns(m *mexico.RoutingMatrix, start []int, coalesce bool) []run {
	var runs []run
	for k := 0; k < m.MaxWorkerPerVal; k++ {
		var cur *run
		for v := 0; v < m.NumVals; v++ {
			w, offset := m.At(v, k)
			if w < 0 {
				cur = nil
				continue
			}
			global := start[w] + offset
			if coalesce && cur != nil && cur.GlobalStart+cur.Len == global && cur.VStart+cur.Len == v {
				cur.Len++
				continue
			}
			runs = append(runs, run{K: k, VStart: v, Len: 1, GlobalStart: global})
			cur = &runs[len(runs)-1]
		}
	}
	return runs
}

func (s *Strategy) ensureIn(cnt int, typ mexico.ElementType) (buf []byte, recordSize int) {
	recordSize = cnt * typ.Extent()
	n := 0
	if s.isWorker {
		n = s.job.InputCount()
	}
	if s.in == nil || s.in.RecordSize() != recordSize {
		s.in = memory.NewBuffer(recordSize, n)
	} else {
		s.in.Grow(n)
	}
	return s.in.Bytes(), recordSize
}

func (s *Strategy) ensureOut(cnt int, typ mexico.ElementType) (buf []byte, recordSize int) {
	recordSize = cnt * typ.Extent()
	n := 0
	if s.isWorker {
		n = s.job.OutputCount()
	}
	if s.out == nil || s.out.RecordSize() != recordSize {
		s.out = memory.NewBuffer(recordSize, n)
	} else {
		s.out.Grow(n)
	}
	return s.out.Bytes(), recordSize
}

// PreComm implements mexico.Strategy.
//
// The useIrregDist hint distinguishes, in the original design, between
// workers computing directly against their pinned segment of the
// global array (zero-copy) and workers copying their segment into a
// local buffer first. Here every rank's local buffer IS its segment
// of the global array — there is no separate shared global array
// object to avoid copying out of — so both paths produce identical
// bytes; the hint is still recorded for parity with spec.md, but
// changes no observable behavior in this implementation. See
// DESIGN.md.
func (s *Strategy) PreComm(ctx context.Context, in mexico.GatherSpec) error {
	recordSize := in.RecordSize()
	inBuf, wRecSize := s.ensureIn(in.Cnt, in.Type)
	s.grp.Bind("in", inBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil { // fence open
		return mexico.TransportError(err)
	}

	runs := buildRuns(&in.Routing, s.inStart, s.coalesce)

	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range runs {
		r := r
		eg.Go(func() error { return s.dispatchPut(ctx, r, in, recordSize) })
	}
	if err := eg.Wait(); err != nil {
		return mexico.TransportError(err)
	}
	s.stats.Report(s.statusGrp, "gaput gather")
	return s.grp.Barrier(ctx)
}

// dispatchPut splits r across rank boundaries (a single coalesced run
// may span more than one owning rank) and issues one Deliver per
// owned sub-segment.
func (s *Strategy) dispatchPut(ctx context.Context, r run, in mexico.GatherSpec, recordSize int) error {
	remaining := r.Len
	globalPos := r.GlobalStart
	srcV := r.VStart
	for remaining > 0 {
		rank, slot := resolve(s.inStart, s.inSizes, globalPos)
		avail := s.inSizes[rank] - slot
		take := remaining
		if avail < take {
			take = avail
		}
		records := make([]transport.IndexedRecord, take)
		for i := 0; i < take; i++ {
			data := make([]byte, recordSize)
			copy(data, in.Record(srcV+i))
			records[i] = transport.IndexedRecord{Slot: slot + i, Data: data}
		}
		if err := s.inFlight.Acquire(ctx, 1); err != nil {
			return err
		}
		err := s.grp.Deliver(ctx, rank, "in", records)
		s.inFlight.Release(1)
		if err != nil {
			return err
		}
		s.stats.RecordPut(take * recordSize)
		remaining -= take
		globalPos += take
		srcV += take
	}
	return nil
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

// PostComm implements mexico.Strategy.
func (s *Strategy) PostComm(ctx context.Context, out mexico.ScatterSpec) error {
	outBuf, wRecSize := s.ensureOut(out.Cnt, out.Type)
	s.grp.Bind("out", outBuf, wRecSize)

	if err := s.grp.Barrier(ctx); err != nil { // fence open
		return mexico.TransportError(err)
	}

	runs := buildRuns(&out.Routing, s.outStart, s.coalesce)

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range runs {
		r := r
		eg.Go(func() error { return s.dispatchGet(ctx, r, out, &mu) })
	}
	if err := eg.Wait(); err != nil {
		return mexico.TransportError(err)
	}
	s.stats.Report(s.statusGrp, "gaput scatter")
	return nil
}

func (s *Strategy) dispatchGet(ctx context.Context, r run, out mexico.ScatterSpec, mu *sync.Mutex) error {
	recordSize := out.RecordSize()
	remaining := r.Len
	globalPos := r.GlobalStart
	destV := r.VStart
	for remaining > 0 {
		rank, slot := resolve(s.outStart, s.outSizes, globalPos)
		avail := s.outSizes[rank] - slot
		take := remaining
		if avail < take {
			take = avail
		}
		slots := make([]int, take)
		for i := range slots {
			slots[i] = slot + i
		}
		if err := s.inFlight.Acquire(ctx, 1); err != nil {
			return err
		}
		records, err := s.grp.Fetch(ctx, rank, "out", slots)
		s.inFlight.Release(1)
		if err != nil {
			return err
		}
		mu.Lock()
		for i := 0; i < take; i++ {
			out.SetRecord(destV+i, r.K, records[i])
		}
		mu.Unlock()
		s.stats.RecordGet(take * recordSize)
		remaining -= take
		globalPos += take
		destV += take
	}
	return nil
}
