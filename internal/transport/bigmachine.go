// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/bigmachine"
)

// retryPolicy governs retries of the underlying RPC call, not of
// collective semantics: spec.md's "no concept of retry" describes the
// gather/compute/scatter contract (a failed call aborts the process
// group), and is orthogonal to whether a single dial or RPC attempt
// gets to retry before that abort. Mirrors exec/bigmachine.go's
// retryPolicy in the teacher.
var retryPolicy = retry.Backoff(time.Second, 5*time.Second, 1.5)

// BigmachineTransport is the production Transport: ranks are
// bigmachine machines, dialed once at construction and addressed by
// rank from then on. The application is responsible for bootstrapping
// the *bigmachine.B and registering a *Service under the name
// "Service" on every machine before handing the dialed machines to
// NewBigmachineTransport — machine provisioning is explicitly out of
// scope here (spec.md §1 "process-group bootstrap").
type BigmachineTransport struct {
	rank     int
	world    []int
	machines []*bigmachine.Machine
	local    *Service
}

// NewBigmachineTransport builds a Transport for rank-th of machines,
// which must all have a "Service" bigmachine.Service registered.
// local is this rank's own Service, used to Bind windows without a
// network round-trip.
func NewBigmachineTransport(rank int, world []int, machines []*bigmachine.Machine, local *Service) *BigmachineTransport {
	return &BigmachineTransport{rank: rank, world: world, machines: machines, local: local}
}

func (t *BigmachineTransport) Rank() int { return t.rank }
func (t *BigmachineTransport) Size() int { return len(t.machines) }

func (t *BigmachineTransport) WorldRank(rank int) int { return t.world[rank] }

// Service returns this rank's own Service.
func (t *BigmachineTransport) Service() *Service { return t.local }

func (t *BigmachineTransport) Call(ctx context.Context, rank int, method string, arg, reply interface{}) error {
	if rank == t.rank {
		// Calling ourselves never needs the network: dispatch straight
		// into the local Service, same as LocalTransport would.
		return dispatchLocal(ctx, t.local, method, arg, reply)
	}
	return t.machines[rank].RetryCall(ctx, retryPolicy, "Service."+stripPrefix(method), arg, reply)
}

// dispatchLocal mirrors LocalTransport.Call's switch, used for the
// self-call shortcut above.
func dispatchLocal(ctx context.Context, svc *Service, method string, arg, reply interface{}) error {
	switch method {
	case "Service.Deliver":
		return svc.Deliver(ctx, arg.(DeliverRequest), reply.(*DeliverReply))
	case "Service.Fetch":
		return svc.Fetch(ctx, arg.(FetchRequest), reply.(*FetchReply))
	case "Service.SetCount":
		return svc.SetCount(ctx, arg.(SetCountRequest), reply.(*SetCountReply))
	case "Service.Arrive":
		return svc.Arrive(ctx, arg.(BarrierRequest), reply.(*BarrierReply))
	default:
		return &unknownMethodError{method}
	}
}

type unknownMethodError struct{ method string }

func (e *unknownMethodError) Error() string { return "transport: unknown method " + e.method }

// stripPrefix removes a leading "Service." from method, so callers may
// pass either "Service.Deliver" or "Deliver" — the former matches
// LocalTransport's switch literally, the latter is what one would
// write calling bigmachine directly.
func stripPrefix(method string) string {
	const prefix = "Service."
	if len(method) > len(prefix) && method[:len(prefix)] == prefix {
		return method[len(prefix):]
	}
	return method
}
