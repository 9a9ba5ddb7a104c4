// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package testharness drives a small in-process cluster through one
// Exec-shaped round (pre_comm → exec_job → post_comm) across every
// rank concurrently, for the six strategy packages' tests. It is not
// itself a strategy implementation and is not imported by any
// production code path.
package testharness

import (
	"context"
	"sync"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/group"
	"github.com/kraused/mexico/internal/transport"
)

// NewCluster returns n ranks' worth of Group, each backed by its own
// LocalTransport, all addressable from one another.
func NewCluster(n int) []*group.Group {
	locals := transport.NewLocalCluster(n)
	groups := make([]*group.Group, n)
	for i, lt := range locals {
		groups[i] = group.New(lt, lt.Service())
	}
	return groups
}

// RunExec calls PreComm, then ExecJob, then PostComm on every rank's
// strategy concurrently, mirroring the orchestrator's collective call
// pattern. It returns one error per rank (nil on success).
func RunExec(ctx context.Context, strategies []mexico.Strategy, jobs []mexico.Job, ins []mexico.GatherSpec, outs []mexico.ScatterSpec) []error {
	n := len(strategies)
	errs := make([]error, n)
	run := func(phase func(i int) error) {
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			i := i
			go func() {
				defer wg.Done()
				if errs[i] != nil {
					return
				}
				errs[i] = phase(i)
			}()
		}
		wg.Wait()
	}
	run(func(i int) error { return strategies[i].PreComm(ctx, ins[i]) })
	run(func(i int) error { return strategies[i].ExecJob(ctx, jobs[i]) })
	run(func(i int) error { return strategies[i].PostComm(ctx, outs[i]) })
	return errs
}
