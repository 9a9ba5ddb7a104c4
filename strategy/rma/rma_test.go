// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rma

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

func runBinning(t *testing.T, hints string) {
	t.Helper()
	groups := testharness.NewCluster(1)
	job := identityJob(3)
	strat := New(groups[0], job, true, hints)

	routing := mexico.NewRoutingMatrix(3, 1)
	routing.Set(0, 0, 0, 0)
	routing.Set(1, 0, 0, 1)
	routing.Set(2, 0, 0, 2)

	iBuf := make([]byte, 3*4)
	for i, v := range []int64{10, 20, 30} {
		mexico.Int32.PutInt(iBuf[i*4:i*4+4], v)
	}
	oBuf := make([]byte, 3*4)

	in := mexico.GatherSpec{Buf: iBuf, Cnt: 1, Type: mexico.Int32, Routing: routing}
	out := mexico.ScatterSpec{Buf: oBuf, Cnt: 1, Type: mexico.Int32, Routing: routing}

	errs := testharness.RunExec(context.Background(),
		[]mexico.Strategy{strat}, []mexico.Job{job},
		[]mexico.GatherSpec{in}, []mexico.ScatterSpec{out})
	if errs[0] != nil {
		t.Fatalf("RunExec: %v", errs[0])
	}
	for i, want := range []int64{10, 20, 30} {
		if got := mexico.Int32.GetInt(oBuf[i*4 : i*4+4]); got != want {
			t.Fatalf("o_buf[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestCoalescedRun(t *testing.T) { runBinning(t, "coalesce") }
func TestNoCoalescing(t *testing.T) { runBinning(t, "") }
