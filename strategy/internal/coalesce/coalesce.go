// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package coalesce implements the bucket-merging rule shared by the
// RMA and SHMEM strategies (spec.md §4.5, §4.6; the distributed-array
// put/get strategy applies the same rule to global addresses in its
// own buildRuns):
// consecutive routing entries within one max_worker_per_val column
// that target the same worker at contiguous offsets, from contiguous
// source record indices, collapse into a single run and therefore a
// single RPC.
package coalesce

import "github.com/kraused/mexico"

// Run is one coalesced bucket: Len consecutive source records
// starting at VStart, in column K of the routing matrix, all destined
// for Worker starting at local offset OffsetStart.
type Run struct {
	K           int
	VStart      int
	Len         int
	Worker      int
	OffsetStart int
}

// Coalesce sweeps m one column at a time (spec.md §9's required sweep
// order: outer k, inner v) and merges contiguous runs.
func Coalesce(m *mexico.RoutingMatrix) []Run {
	var runs []Run
	for k := 0; k < m.MaxWorkerPerVal; k++ {
		var cur *Run
		for v := 0; v < m.NumVals; v++ {
			worker, offset := m.At(v, k)
			if worker < 0 {
				cur = nil
				continue
			}
			if cur != nil && cur.Worker == worker &&
				cur.OffsetStart+cur.Len == offset &&
				cur.VStart+cur.Len == v {
				cur.Len++
				continue
			}
			runs = append(runs, Run{K: k, VStart: v, Len: 1, Worker: worker, OffsetStart: offset})
			cur = &runs[len(runs)-1]
		}
	}
	return runs
}
