// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package mexico implements a bulk-synchronous data-shuffle runtime:
// callers on every rank of a fixed process group submit a local input
// buffer together with per-record routing tables naming the worker
// ranks (and target slots) each record must be delivered to, and a
// symmetric output specification naming where result records should be
// pulled back from. The runtime gathers inputs into each worker's
// local buffer, invokes a per-worker compute callback, then scatters
// results back to the callers.
//
// The three-phase contract (gather, compute, scatter) is fixed; how it
// is carried out is pluggable. See package exec for the orchestrator
// and the strategy/... packages for the six interchangeable
// transports.
package mexico
