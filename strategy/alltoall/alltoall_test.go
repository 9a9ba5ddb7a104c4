// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alltoall

import (
	"context"
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

// TestEchoThroughOneWorker is spec.md §8 scenario 1.
func TestEchoThroughOneWorker(t *testing.T) {
	groups := testharness.NewCluster(1)
	job := identityJob(2)
	strat := New(groups[0], job, true, "")

	routing := mexico.NewRoutingMatrix(2, 1)
	routing.Set(0, 0, 0, 0)
	routing.Set(1, 0, 0, 1)

	iBuf := make([]byte, 2*4)
	mexico.Int32.PutInt(iBuf[0:4], 7)
	mexico.Int32.PutInt(iBuf[4:8], 9)
	oBuf := make([]byte, 2*4)

	in := mexico.GatherSpec{Buf: iBuf, Cnt: 1, Type: mexico.Int32, Routing: routing}
	out := mexico.ScatterSpec{Buf: oBuf, Cnt: 1, Type: mexico.Int32, Routing: routing}

	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat}, []mexico.Job{job},
		[]mexico.GatherSpec{in}, []mexico.ScatterSpec{out})
	if errs[0] != nil {
		t.Fatalf("RunExec: %v", errs[0])
	}
	if got := mexico.Int32.GetInt(oBuf[0:4]); got != 7 {
		t.Fatalf("o_buf[0] = %d, want 7", got)
	}
	if got := mexico.Int32.GetInt(oBuf[4:8]); got != 9 {
		t.Fatalf("o_buf[1] = %d, want 9", got)
	}
}

// TestCrossRankRoute is spec.md §8 scenario 2.
func TestCrossRankRoute(t *testing.T) {
	groups := testharness.NewCluster(2)
	job0 := identityJob(1)
	job1 := identityJob(1)
	strat0 := New(groups[0], job0, true, "")
	strat1 := New(groups[1], job1, true, "")

	r0 := mexico.NewRoutingMatrix(1, 1)
	r0.Set(0, 0, 1, 0)
	r1 := mexico.NewRoutingMatrix(1, 1)
	r1.Set(0, 0, 0, 0)

	iBuf0, iBuf1 := make([]byte, 4), make([]byte, 4)
	mexico.Int32.PutInt(iBuf0, 42)
	mexico.Int32.PutInt(iBuf1, 99)
	oBuf0, oBuf1 := make([]byte, 4), make([]byte, 4)

	ins := []mexico.GatherSpec{
		{Buf: iBuf0, Cnt: 1, Type: mexico.Int32, Routing: r0},
		{Buf: iBuf1, Cnt: 1, Type: mexico.Int32, Routing: r1},
	}
	outs := []mexico.ScatterSpec{
		{Buf: oBuf0, Cnt: 1, Type: mexico.Int32, Routing: r0},
		{Buf: oBuf1, Cnt: 1, Type: mexico.Int32, Routing: r1},
	}

	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat0, strat1}, []mexico.Job{job0, job1}, ins, outs)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	if got := mexico.Int32.GetInt(oBuf0); got != 42 {
		t.Fatalf("rank 0 o_buf = %d, want 42", got)
	}
	if got := mexico.Int32.GetInt(oBuf1); got != 99 {
		t.Fatalf("rank 1 o_buf = %d, want 99", got)
	}
}

// TestFanOut is spec.md §8 scenario 3: max_worker_per_val = 2.
func TestFanOut(t *testing.T) {
	groups := testharness.NewCluster(2)
	job0 := identityJob(1)
	job1 := identityJob(1)
	strat0 := New(groups[0], job0, true, "")
	strat1 := New(groups[1], job1, true, "")

	rIn := mexico.NewRoutingMatrix(1, 2)
	rIn.Set(0, 0, 0, 0)
	rIn.Set(0, 1, 1, 0)
	rOut := mexico.NewRoutingMatrix(1, 2)
	rOut.Set(0, 0, 0, 0)
	rOut.Set(0, 1, 1, 0)

	iBuf0 := make([]byte, 4)
	mexico.Int32.PutInt(iBuf0, 5)
	oBuf0 := make([]byte, 2*4)

	in0 := mexico.GatherSpec{Buf: iBuf0, Cnt: 1, Type: mexico.Int32, Routing: rIn}
	out0 := mexico.ScatterSpec{Buf: oBuf0, Cnt: 1, Type: mexico.Int32, Routing: rOut}

	empty := mexico.NewRoutingMatrix(0, 2)
	in1 := mexico.GatherSpec{Buf: nil, Cnt: 1, Type: mexico.Int32, Routing: empty}
	out1 := mexico.ScatterSpec{Buf: nil, Cnt: 1, Type: mexico.Int32, Routing: empty}

	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat0, strat1}, []mexico.Job{job0, job1},
		[]mexico.GatherSpec{in0, in1}, []mexico.ScatterSpec{out0, out1})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	if got := mexico.Int32.GetInt(oBuf0[0:4]); got != 5 {
		t.Fatalf("o_buf[0] = %d, want 5", got)
	}
	if got := mexico.Int32.GetInt(oBuf0[4:8]); got != 5 {
		t.Fatalf("o_buf[1] = %d, want 5", got)
	}
}
