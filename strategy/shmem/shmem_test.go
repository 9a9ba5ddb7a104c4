// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shmem

import (
	"context"
	"sync"
	"testing"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/strategy/internal/testharness"
)

func identityJob(inN, outN int) *mexico.FuncJob {
	return &mexico.FuncJob{
		INumRecords: inN, ONumRecords: outN,
		IType: mexico.Int32, OType: mexico.Int32,
		ComputeFunc: func(ctx context.Context, in, out []byte) error {
			copy(out, in)
			return nil
		},
	}
}

// TestReconciliationAcrossIrregularPartition constructs two workers
// with different i_N/o_N, and checks that both sides nonetheless
// exchange correctly: the smaller-capacity worker's windows must have
// been sized to the larger worker's capacity (spec.md §9 "Symmetric
// allocation constraint").
func TestReconciliationAcrossIrregularPartition(t *testing.T) {
	groups := testharness.NewCluster(2)
	job0 := identityJob(1, 1) // smaller capacity
	job1 := identityJob(3, 3) // larger capacity

	var strat0, strat1 *Strategy
	var err0, err1 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); strat0, err0 = New(context.Background(), groups[0], job0, true, "") }()
	go func() { defer wg.Done(); strat1, err1 = New(context.Background(), groups[1], job1, true, "") }()
	wg.Wait()
	if err0 != nil || err1 != nil {
		t.Fatalf("New: %v, %v", err0, err1)
	}
	if strat0.inN != 3 || strat1.inN != 3 {
		t.Fatalf("reconciled inN = %d, %d; want 3, 3", strat0.inN, strat1.inN)
	}

	r0 := mexico.NewRoutingMatrix(1, 1)
	r0.Set(0, 0, 1, 0) // rank 0 routes its one record to worker 1
	r1 := mexico.NewRoutingMatrix(0, 1)

	iBuf0 := make([]byte, 4)
	mexico.Int32.PutInt(iBuf0, 77)
	oBuf0 := make([]byte, 4)

	in0 := mexico.GatherSpec{Buf: iBuf0, Cnt: 1, Type: mexico.Int32, Routing: r0}
	out0 := mexico.ScatterSpec{Buf: oBuf0, Cnt: 1, Type: mexico.Int32, Routing: r0}
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
	if got := mexico.Int32.GetInt(oBuf0); got != 77 {
		t.Fatalf("o_buf = %d, want 77", got)
	}
}
