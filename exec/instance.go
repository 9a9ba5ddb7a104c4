// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements the top-level Instance (spec.md §4.1,
// component C5): the object an application constructs once per
// process group and then calls Exec on, once per bulk-synchronous
// round. Instance reads configuration through internal/config,
// dispatches to one of the six transport strategies (C7–C12) chosen
// once at construction, and logs one line per rank when it constructs
// the strategy; the Exec phases themselves are not logged.
package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/limitbuf"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"

	"github.com/kraused/mexico"
	"github.com/kraused/mexico/internal/config"
	"github.com/kraused/mexico/internal/group"
	"github.com/kraused/mexico/strategy/alltoall"
	"github.com/kraused/mexico/strategy/gaput"
	"github.com/kraused/mexico/strategy/gascatter"
	"github.com/kraused/mexico/strategy/pt2pt"
	"github.com/kraused/mexico/strategy/rma"
	"github.com/kraused/mexico/strategy/shmem"
)

// Instance is the caller-facing handle constructed once per process
// group. Exec drives exactly one pre_comm → exec_job → post_comm
// round (spec.md §4.1); the strategy it dispatches to was chosen once
// at New and never changes for the Instance's lifetime (spec.md §9
// "dispatch once, not per call").
type Instance struct {
	grp      *group.Group
	job      mexico.Job
	isWorker bool
	strategy mexico.Strategy
}

// New constructs an Instance for this rank. cfg is read once, under
// the "runtime" namelist, for the strategy name ("runtime.implementation")
// and its transport hints ("runtime.hints"); an unknown or missing
// implementation is a ConfigError (spec.md §4.10), fatal to the whole
// process group. workerRanks lists which of grp's ranks participate in
// job.Compute; a rank named outside [0, grp.Size()) is a TopologyError.
// statusGrp may be nil; if non-nil, C11/C12's per-epoch put/get
// counters are reported to it.
func New(ctx context.Context, grp *group.Group, cfg config.View, job mexico.Job, workerRanks []int, statusGrp *status.Group) (*Instance, error) {
	if len(workerRanks) == 0 {
		return nil, mexico.TopologyError("empty worker set")
	}
	isWorker := false
	for _, r := range workerRanks {
		if r < 0 || r >= grp.Size() {
			return nil, mexico.TopologyError("worker rank %d out of range [0, %d)", r, grp.Size())
		}
		if r == grp.Rank() {
			isWorker = true
		}
	}

	impl, ok := cfg.String("runtime", "implementation")
	if !ok {
		return nil, mexico.ConfigError("runtime.implementation not set")
	}
	hints, _ := cfg.String("runtime", "hints")

	log.Printf("mexico: rank %d: constructing strategy %q (worker=%v, hints=%q)", grp.Rank(), truncatef(impl), isWorker, truncatef(hints))

	strat, err := newStrategy(ctx, mexico.StrategyName(impl), grp, job, isWorker, hints, statusGrp)
	if err != nil {
		return nil, err
	}
	return &Instance{grp: grp, job: job, isWorker: isWorker, strategy: strat}, nil
}

func newStrategy(ctx context.Context, name mexico.StrategyName, grp *group.Group, job mexico.Job, isWorker bool, hints string, statusGrp *status.Group) (mexico.Strategy, error) {
	switch name {
	case mexico.AllToAll:
		return alltoall.New(grp, job, isWorker, hints), nil
	case mexico.PointToPoint:
		return pt2pt.New(grp, job, isWorker), nil
	case mexico.RMA:
		return rma.New(grp, job, isWorker, hints), nil
	case mexico.SymmetricShmem:
		s, err := shmem.New(ctx, grp, job, isWorker, hints)
		if err != nil {
			return nil, err
		}
		return s, nil
	case mexico.DistArrayPutGet:
		s, err := gaput.New(ctx, grp, job, isWorker, hints, statusGrp)
		if err != nil {
			return nil, err
		}
		return s, nil
	case mexico.DistArrayScatter:
		s, err := gascatter.New(ctx, grp, job, isWorker, hints, statusGrp)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, mexico.ConfigError("unknown runtime.implementation %q", truncatef(name))
	}
}

// truncatef bounds the string form of a config-supplied value before it
// is interpolated into an error message, the same role it plays for
// bigmachine.go's own error-path logging: a namelist value is caller
// data and should not be allowed to blow up an error message's size.
func truncatef(v interface{}) string {
	b := limitbuf.NewLogger(512)
	fmt.Fprint(b, v)
	return b.String()
}

// Exec drives one complete bulk-synchronous round: PreComm gathers in
// per the caller's routing table, ExecJob invokes the Job's compute
// callback on worker ranks, and PostComm scatters out per its routing
// table. Exec is collective: every rank in the process group must call
// it every round, each with its own routing tables; record count and
// type must agree across ranks (spec.md §3 Invariants).
func (inst *Instance) Exec(ctx context.Context, in mexico.GatherSpec, out mexico.ScatterSpec) error {
	if err := validateRouting(in.Routing, inst.grp.Size()); err != nil {
		return err
	}
	if err := validateRouting(out.Routing, inst.grp.Size()); err != nil {
		return err
	}
	if err := inst.strategy.PreComm(ctx, in); err != nil {
		return fmt.Errorf("exec: pre_comm: %v", err)
	}
	if err := inst.strategy.ExecJob(ctx, inst.job); err != nil {
		return fmt.Errorf("exec: exec_job: %v", err)
	}
	if err := inst.strategy.PostComm(ctx, out); err != nil {
		return fmt.Errorf("exec: post_comm: %v", err)
	}
	return nil
}

// ExecBackground is Exec against backgroundcontext.Get(), the same
// process-wide default bigmachine.go hands its own RPCs when calling
// into an API — here, an MPI-style collective — that takes no
// context.Context of its own.
func (inst *Instance) ExecBackground(in mexico.GatherSpec, out mexico.ScatterSpec) error {
	return inst.Exec(backgroundcontext.Get(), in, out)
}

// validateRouting checks every valid entry of m names a rank within
// [0, size). spec.md §4.10 scopes this check to debug builds; this
// implementation always performs it, since the cost is linear in the
// routing table the caller already built and a bad rank would
// otherwise surface as an opaque RPC failure deep inside a strategy.
func validateRouting(m mexico.RoutingMatrix, size int) error {
	var rangeErr error
	m.Sweep(func(v, k, w, offset int) {
		if rangeErr != nil {
			return
		}
		if w >= size {
			rangeErr = mexico.RoutingError("entry (v=%d, k=%d) names rank %d, outside [0, %d)", v, k, w, size)
		}
	})
	return rangeErr
}
