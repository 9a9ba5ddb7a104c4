// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package group

import (
	"sync"

	"github.com/grailbio/base/status"
)

// EpochStats accumulates the per-call byte sizes of the puts and gets
// of the distributed-array strategies (spec.md §4.7: "the runtime
// tracks, per epoch, the min/max/avg/count of put and get sizes, for
// diagnostic purposes only — no behavior depends on them"). Reporting
// uses status.Group the way the teacher reports per-task progress, so
// the counters show up next to everything else the process reports.
type EpochStats struct {
	mu       sync.Mutex
	putSizes []int
	getSizes []int
}

// NewEpochStats returns an empty counter set.
func NewEpochStats() *EpochStats {
	return &EpochStats{}
}

// RecordPut records one put of n bytes.
func (e *EpochStats) RecordPut(n int) {
	e.mu.Lock()
	e.putSizes = append(e.putSizes, n)
	e.mu.Unlock()
}

// RecordGet records one get of n bytes.
func (e *EpochStats) RecordGet(n int) {
	e.mu.Lock()
	e.getSizes = append(e.getSizes, n)
	e.mu.Unlock()
}

// summary is the min/max/avg/count tuple of a set of observed sizes.
type summary struct {
	Min, Max, Count int
	Avg             float64
}

func summarize(sizes []int) summary {
	if len(sizes) == 0 {
		return summary{}
	}
	s := summary{Min: sizes[0], Max: sizes[0], Count: len(sizes)}
	total := 0
	for _, n := range sizes {
		if n < s.Min {
			s.Min = n
		}
		if n > s.Max {
			s.Max = n
		}
		total += n
	}
	s.Avg = float64(total) / float64(len(sizes))
	return s
}

// Report writes a one-line put/get summary to grp under label, then
// resets the counters for the next epoch.
func (e *EpochStats) Report(grp *status.Group, label string) {
	e.mu.Lock()
	put := summarize(e.putSizes)
	get := summarize(e.getSizes)
	e.putSizes = nil
	e.getSizes = nil
	e.mu.Unlock()

	if grp == nil {
		return
	}
	task := grp.Startf("%s epoch", label)
	task.Printf("put: count=%d min=%d max=%d avg=%.1f; get: count=%d min=%d max=%d avg=%.1f",
		put.Count, put.Min, put.Max, put.Avg,
		get.Count, get.Min, get.Max, get.Avg)
	task.Done()
}
