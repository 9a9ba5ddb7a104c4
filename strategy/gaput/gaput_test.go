// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gaput

import (
	"context"
	"sync"
	"testing"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/strategy/internal/testharness"
)

func identityJob(n int) *mexico.FuncJob {
	return &mexico.FuncJob{
		INumRecords: n, ONumRecords: n,
		IType: mexico.Int32, OType: mexico.Int32,
		ComputeFunc: func(ctx context.Context, in, out []byte) error {
			copy(out, in)
			return nil
		},
	}
}

// TestCrossRankRoute is spec.md §8 scenario 2: rank 0 routes its one
// record to worker rank 1; the round trip must deliver it back.
func TestCrossRankRoute(t *testing.T) {
	groups := testharness.NewCluster(2)
	job0 := identityJob(0)
	job1 := identityJob(1)

	// New is collective, so every rank must construct concurrently.
	var strat0, strat1 *Strategy
	var err0, err1 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); strat0, err0 = New(context.Background(), groups[0], job0, false, "", nil) }()
	go func() { defer wg.Done(); strat1, err1 = New(context.Background(), groups[1], job1, true, "", nil) }()
	wg.Wait()
	if err0 != nil {
		t.Fatalf("New(rank0): %v", err0)
	}
	if err1 != nil {
		t.Fatalf("New(rank1): %v", err1)
	}

	r0 := mexico.NewRoutingMatrix(1, 1)
	r0.Set(0, 0, 1, 0)
	r1 := mexico.NewRoutingMatrix(0, 1)

	iBuf := make([]byte, 4)
	mexico.Int32.PutInt(iBuf, 42)
	oBuf := make([]byte, 4)

	in0 := mexico.GatherSpec{Buf: iBuf, Cnt: 1, Type: mexico.Int32, Routing: r0}
	out0 := mexico.ScatterSpec{Buf: oBuf, Cnt: 1, Type: mexico.Int32, Routing: r0}
	in1 := mexico.GatherSpec{Cnt: 1, Type: mexico.Int32, Routing: r1}
	out1 := mexico.ScatterSpec{Cnt: 1, Type: mexico.Int32, Routing: r1}

	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat0, strat1}, []mexico.Job{job0, job1},
		[]mexico.GatherSpec{in0, in1}, []mexico.ScatterSpec{out0, out1})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	if got := mexico.Int32.GetInt(oBuf); got != 42 {
		t.Fatalf("o_buf = %d, want 42", got)
	}
}

// TestCoalescedRunSpansRankBoundary exercises the one behavior unique
// to the global-address-space strategy: a single coalesced run whose
// global addresses are contiguous across two different workers' local
// segments must be split into two Deliver/Fetch calls.
func TestCoalescedRunSpansRankBoundary(t *testing.T) {
	groups := testharness.NewCluster(3)
	job0 := identityJob(0)
	job1 := identityJob(1) // worker 1's segment: global [0,1)
	job2 := identityJob(1) // worker 2's segment: global [1,2)

	var strat0, strat1, strat2 *Strategy
	var err0, err1, err2 error
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		strat0, err0 = New(context.Background(), groups[0], job0, false, "coalesce", nil)
	}()
	go func() {
		defer wg.Done()
		strat1, err1 = New(context.Background(), groups[1], job1, true, "coalesce", nil)
	}()
	go func() {
		defer wg.Done()
		strat2, err2 = New(context.Background(), groups[2], job2, true, "coalesce", nil)
	}()
	wg.Wait()
	if err0 != nil {
		t.Fatalf("New(rank0): %v", err0)
	}
	if err1 != nil {
		t.Fatalf("New(rank1): %v", err1)
	}
	if err2 != nil {
		t.Fatalf("New(rank2): %v", err2)
	}

	// Two contiguous source records, routed to worker 1 offset 0 and
	// worker 2 offset 0 respectively — contiguous in the global
	// address space (worker 1's segment immediately precedes worker
	// 2's), so the coalescer merges them into one run that dispatchPut
	// must then split back across the rank boundary.
	r0 := mexico.NewRoutingMatrix(2, 1)
	r0.Set(0, 0, 1, 0)
	r0.Set(1, 0, 2, 0)
	r1 := mexico.NewRoutingMatrix(0, 1)
	r2 := mexico.NewRoutingMatrix(0, 1)

	iBuf := make([]byte, 2*4)
	mexico.Int32.PutInt(iBuf[0:4], 100)
	mexico.Int32.PutInt(iBuf[4:8], 200)
	oBuf := make([]byte, 2*4)

	in0 := mexico.GatherSpec{Buf: iBuf, Cnt: 1, Type: mexico.Int32, Routing: r0}
	out0 := mexico.ScatterSpec{Buf: oBuf, Cnt: 1, Type: mexico.Int32, Routing: r0}
	in1 := mexico.GatherSpec{Cnt: 1, Type: mexico.Int32, Routing: r1}
	out1 := mexico.ScatterSpec{Cnt: 1, Type: mexico.Int32, Routing: r1}
	in2 := mexico.GatherSpec{Cnt: 1, Type: mexico.Int32, Routing: r2}
	out2 := mexico.ScatterSpec{Cnt: 1, Type: mexico.Int32, Routing: r2}

	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat0, strat1, strat2},
		[]mexico.Job{job0, job1, job2},
		[]mexico.GatherSpec{in0, in1, in2},
		[]mexico.ScatterSpec{out0, out1, out2})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	if got := mexico.Int32.GetInt(oBuf[0:4]); got != 100 {
		t.Fatalf("o_buf[0] = %d, want 100", got)
	}
	if got := mexico.Int32.GetInt(oBuf[4:8]); got != 200 {
		t.Fatalf("o_buf[1] = %d, want 200", got)
	}
}

// TestEmptyInput is spec.md §8 scenario 6.
func TestEmptyInput(t *testing.T) {
	groups := testharness.NewCluster(1)
	job := identityJob(0)
	strat, err := New(context.Background(), groups[0], job, true, "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	routing := mexico.NewRoutingMatrix(0, 0)
	in := mexico.GatherSpec{Cnt: 1, Type: mexico.Int32, Routing: routing}
	out := mexico.ScatterSpec{Cnt: 1, Type: mexico.Int32, Routing: routing}
	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat}, []mexico.Job{job},
		[]mexico.GatherSpec{in}, []mexico.ScatterSpec{out})
	if errs[0] != nil {
		t.Fatalf("RunExec: %v", errs[0])
	}
}
