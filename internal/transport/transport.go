// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package transport provides the point-to-point RPC primitive every
// strategy is built from: Call(rank, method, arg, reply). It
// intentionally says nothing about how ranks came to be reachable —
// spec.md §1 treats process-group bootstrap as an external
// collaborator — only how an already-reachable rank is called.
package transport

import "context"

// Transport is the minimal point-to-point primitive a Group (package
// group) is built on. Rank numbers are local to the duplicated group,
// not world ranks.
type Transport interface {
	// Rank is this process's local rank within the group.
	Rank() int
	// Size is the number of ranks in the group.
	Size() int
	// WorldRank translates a local rank to its canonical rank in the
	// world group the transport was duplicated from.
	WorldRank(rank int) int
	// Call invokes method on the given rank, synchronously. arg and
	// reply follow the net/rpc convention the bigmachine-backed
	// implementation is built on: arg is value-encoded, reply is a
	// pointer the callee populates.
	Call(ctx context.Context, rank int, method string, arg, reply interface{}) error
}
