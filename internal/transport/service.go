// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
)

// Service is the RPC-reachable object every rank exposes. It owns the
// rank's local "windows" (the input/output scratch buffers strategies
// bind at construction time), a small per-exchange send-count table
// used by the count-exchange step every strategy starts a gather or
// scatter phase with, and a single group-wide barrier used to frame
// epochs (RMA fences, SHMEM barriers, distributed-array syncs are all
// the same rendezvous).
//
// Every strategy in strategy/... is, underneath, a distinct addressing
// and batching algorithm layered over these four verbs — there is no
// Go binding for MPI one-sided windows, SHMEM's symmetric heap, or
// Global Arrays in the retrieval pack (or the wider ecosystem) to bind
// to directly, so each strategy expresses its transport's semantics
// (RMA put/get, SHMEM put/get, distributed-array put/get or
// scatter/gather) as calls into this shared substrate. See DESIGN.md.
type Service struct {
	mu      sync.Mutex
	windows map[string]*window
	counts  map[string]map[int]int

	barrierMu      sync.Mutex
	barrierCond    *ctxsync.Cond
	barrierArrived int
	barrierGen     int
}

type window struct {
	mu         sync.Mutex
	buf        []byte
	recordSize int
}

// NewService returns an empty, unbound Service.
func NewService() *Service {
	s := &Service{
		windows: make(map[string]*window),
		counts:  make(map[string]map[int]int),
	}
	s.barrierCond = ctxsync.NewCond(&s.barrierMu)
	return s
}

// Bind registers buf as the window named id, addressed in units of
// recordSize-byte slots, replacing any window already bound under id.
// Bind is called locally, never over RPC: strategies call it at the
// start of every PreComm/PostComm to expose their current
// inbuf/outbuf, since the per-call record size decides the buffer.
func (s *Service) Bind(id string, buf []byte, recordSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[id] = &window{buf: buf, recordSize: recordSize}
}

func (s *Service) window(id string) (*window, error) {
	s.mu.Lock()
	w := s.windows[id]
	s.mu.Unlock()
	if w == nil {
		return nil, fmt.Errorf("transport: unknown window %q", id)
	}
	return w, nil
}

// IndexedRecord is one (slot, payload) pair of a DeliverRequest.
type IndexedRecord struct {
	Slot int
	Data []byte
}

// DeliverRequest pushes records into slots of a named window — the
// "put" verb every gather phase (and the RMA/SHMEM/GA put strategies)
// is built from.
type DeliverRequest struct {
	WindowID string
	Records  []IndexedRecord
}

// DeliverReply carries nothing; its presence matches the net/rpc-style
// calling convention bigmachine requires (a pointer reply argument).
type DeliverReply struct{}

// Deliver writes every record in req into the named window at the
// given slot.
func (s *Service) Deliver(ctx context.Context, req DeliverRequest, reply *DeliverReply) error {
	w, err := s.window(req.WindowID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range req.Records {
		lo := r.Slot * w.recordSize
		hi := lo + w.recordSize
		if r.Slot < 0 || hi > len(w.buf) {
			return fmt.Errorf("transport: slot %d out of range for window %q", r.Slot, req.WindowID)
		}
		if len(r.Data) != w.recordSize {
			return fmt.Errorf("transport: record size mismatch for window %q: got %d want %d", req.WindowID, len(r.Data), w.recordSize)
		}
		copy(w.buf[lo:hi], r.Data)
	}
	return nil
}

// FetchRequest pulls records out of slots of a named window — the
// "get" verb every scatter phase (and the RMA/SHMEM/GA get strategies)
// is built from.
type FetchRequest struct {
	WindowID string
	Slots    []int
}

// FetchReply carries the requested records, in the same order as
// FetchRequest.Slots.
type FetchReply struct {
	Records [][]byte
}

// Fetch reads every slot named in req out of the named window.
func (s *Service) Fetch(ctx context.Context, req FetchRequest, reply *FetchReply) error {
	w, err := s.window(req.WindowID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	reply.Records = make([][]byte, len(req.Slots))
	for i, slot := range req.Slots {
		lo := slot * w.recordSize
		hi := lo + w.recordSize
		if slot < 0 || hi > len(w.buf) {
			return fmt.Errorf("transport: slot %d out of range for window %q", slot, req.WindowID)
		}
		rec := make([]byte, w.recordSize)
		copy(rec, w.buf[lo:hi])
		reply.Records[i] = rec
	}
	return nil
}

// SetCountRequest records that rank From intends to send Count
// records in the exchange named ExchangeID — the fixed-size
// count-exchange every strategy performs before its variable exchange
// (spec.md §4.3 step 1, §4.4 "send counts are computed as in C7").
type SetCountRequest struct {
	ExchangeID string
	From       int
	Count      int
}

// SetCountReply carries nothing.
type SetCountReply struct{}

// SetCount records req on the receiving rank.
func (s *Service) SetCount(ctx context.Context, req SetCountRequest, reply *SetCountReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.counts[req.ExchangeID]
	if m == nil {
		m = make(map[int]int)
		s.counts[req.ExchangeID] = m
	}
	m[req.From] = req.Count
	return nil
}

// CountFrom returns the count rank `from` most recently set for
// exchangeID, if any.
func (s *Service) CountFrom(exchangeID string, from int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.counts[exchangeID]
	if m == nil {
		return 0, false
	}
	c, ok := m[from]
	return c, ok
}

// ClearCounts discards the exchange's count table; called once the
// strategy has consumed it, so that scratch memory does not grow
// without bound across calls (spec.md §9 "Scratch growth").
func (s *Service) ClearCounts(exchangeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, exchangeID)
}

// BarrierRequest is sent by every rank to the coordinator (rank 0) to
// arrive at a rendezvous. It frames RMA fences, SHMEM barriers, and
// distributed-array syncs alike — all are, observably, "wait until
// every rank has reached this point" (spec.md §4.5–§4.7).
type BarrierRequest struct {
	Size int
}

// BarrierReply carries nothing.
type BarrierReply struct{}

// Arrive blocks until Size ranks (including the coordinator's own
// arrival) have called Arrive, then releases them all.
func (s *Service) Arrive(ctx context.Context, req BarrierRequest, reply *BarrierReply) error {
	s.barrierMu.Lock()
	gen := s.barrierGen
	s.barrierArrived++
	if s.barrierArrived == req.Size {
		s.barrierArrived = 0
		s.barrierGen++
		s.barrierCond.Broadcast()
		s.barrierMu.Unlock()
		return nil
	}
	for s.barrierGen == gen {
		if err := s.barrierCond.Wait(ctx); err != nil {
			s.barrierMu.Unlock()
			return err
		}
	}
	s.barrierMu.Unlock()
	return nil
}
