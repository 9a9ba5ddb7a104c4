// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
)

// LocalTransport is an in-process Transport used by tests: every rank
// is a *Service value in the same address space, and Call dispatches
// directly instead of going over the wire. It implements exactly the
// verb set BigmachineTransport forwards to "Service.*" methods, so
// strategy code is oblivious to which Transport it was built with.
type LocalTransport struct {
	rank     int
	world    []int
	services []*Service
}

// NewLocalCluster builds n ranks' worth of LocalTransport, one per
// rank, each wired to call every other rank's Service directly.
func NewLocalCluster(n int) []*LocalTransport {
	services := make([]*Service, n)
	world := make([]int, n)
	for i := range services {
		services[i] = NewService()
		world[i] = i
	}
	out := make([]*LocalTransport, n)
	for i := range out {
		out[i] = &LocalTransport{rank: i, world: world, services: services}
	}
	return out
}

func (t *LocalTransport) Rank() int { return t.rank }
func (t *LocalTransport) Size() int { return len(t.services) }

func (t *LocalTransport) WorldRank(rank int) int { return t.world[rank] }

// Service returns this rank's local Service, for strategies to Bind
// their windows against directly (never over RPC).
func (t *LocalTransport) Service() *Service { return t.services[t.rank] }

func (t *LocalTransport) Call(ctx context.Context, rank int, method string, arg, reply interface{}) error {
	if rank < 0 || rank >= len(t.services) {
		return fmt.Errorf("transport: rank %d out of range [0,%d)", rank, len(t.services))
	}
	svc := t.services[rank]
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
		return fmt.Errorf("transport: unknown method %q", method)
	}
}
