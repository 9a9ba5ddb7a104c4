// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package group wraps the internal/transport primitive with the
// collective operations every strategy needs: a barrier, a fixed-size
// count exchange, and point-to-point window put/get. It is the C1
// "process group" component of spec.md §3.
package group

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kraused/mexico/internal/transport"
)

// Group is a duplicated, fixed-size process group: a Transport for
// reaching other ranks, and this rank's own Service for exposing
// windows locally.
type Group struct {
	tr  transport.Transport
	svc *transport.Service
}

// New wraps tr and the local Service it exposes into a Group.
func New(tr transport.Transport, svc *transport.Service) *Group {
	return &Group{tr: tr, svc: svc}
}

// Rank is this process's rank within the group.
func (g *Group) Rank() int { return g.tr.Rank() }

// Size is the number of ranks in the group.
func (g *Group) Size() int { return g.tr.Size() }

// WorldRank translates a local rank to its rank in the world group
// this group was duplicated from.
func (g *Group) WorldRank(rank int) int { return g.tr.WorldRank(rank) }

// Bind exposes buf as window windowID, addressed in recordSize-byte
// slots, for other ranks to Deliver into or Fetch from.
func (g *Group) Bind(windowID string, buf []byte, recordSize int) {
	g.svc.Bind(windowID, buf, recordSize)
}

// Barrier blocks until every rank in the group has called Barrier.
// RMA fences and SHMEM barriers are both framed as a Barrier call
// before and after the bulk of an epoch's puts/gets (spec.md §4.5,
// §4.6): neither primitive carries payload beyond the rendezvous
// itself in this implementation.
func (g *Group) Barrier(ctx context.Context) error {
	var reply transport.BarrierReply
	if err := g.tr.Call(ctx, 0, "Service.Arrive", transport.BarrierRequest{Size: g.Size()}, &reply); err != nil {
		return fmt.Errorf("group: barrier: %v", err)
	}
	return nil
}

// ExchangeCounts performs the fixed-size count exchange every gather
// or scatter phase starts with (spec.md §4.3 step 1): it tells every
// rank how many records this rank intends to send it under
// exchangeID, then returns how many records every rank told this rank
// to expect.
func (g *Group) ExchangeCounts(ctx context.Context, exchangeID string, sendCounts []int) ([]int, error) {
	if len(sendCounts) != g.Size() {
		return nil, fmt.Errorf("group: ExchangeCounts: len(sendCounts) = %d, want %d", len(sendCounts), g.Size())
	}
	eg, ctx := errgroup.WithContext(ctx)
	for dst := 0; dst < g.Size(); dst++ {
		dst := dst
		eg.Go(func() error {
			var reply transport.SetCountReply
			req := transport.SetCountRequest{ExchangeID: exchangeID, From: g.Rank(), Count: sendCounts[dst]}
			return g.tr.Call(ctx, dst, "Service.SetCount", req, &reply)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("group: ExchangeCounts: %v", err)
	}
	if err := g.Barrier(ctx); err != nil {
		return nil, err
	}
	recv := make([]int, g.Size())
	for src := 0; src < g.Size(); src++ {
		c, ok := g.svc.CountFrom(exchangeID, src)
		if !ok {
			return nil, fmt.Errorf("group: ExchangeCounts: no count received from rank %d for exchange %q", src, exchangeID)
		}
		recv[src] = c
	}
	g.svc.ClearCounts(exchangeID)
	return recv, nil
}

// Deliver pushes records into rank's window windowID.
func (g *Group) Deliver(ctx context.Context, rank int, windowID string, records []transport.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}
	var reply transport.DeliverReply
	req := transport.DeliverRequest{WindowID: windowID, Records: records}
	if err := g.tr.Call(ctx, rank, "Service.Deliver", req, &reply); err != nil {
		return fmt.Errorf("group: Deliver to rank %d window %q: %v", rank, windowID, err)
	}
	return nil
}

// Fetch pulls the named slots out of rank's window windowID.
func (g *Group) Fetch(ctx context.Context, rank int, windowID string, slots []int) ([][]byte, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	var reply transport.FetchReply
	req := transport.FetchRequest{WindowID: windowID, Slots: slots}
	if err := g.tr.Call(ctx, rank, "Service.Fetch", req, &reply); err != nil {
		return nil, fmt.Errorf("group: Fetch from rank %d window %q: %v", rank, windowID, err)
	}
	return reply.Records, nil
}
