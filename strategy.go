package mexico

import "context"

// Strategy implements the three-phase bulk-synchronous contract
// (spec.md §4.1 and §9 "dispatch once, not per call"): PreComm
// gathers each worker's input records from wherever the caller's
// routing table says they live, ExecJob runs the Job's compute
// callback over the assembled input, and PostComm scatters the
// computed output records back out per the output routing table.
// Every phase is collective: all ranks must call it, in this order,
// every Exec.
type Strategy interface {
	PreComm(ctx context.Context, in GatherSpec) error
	ExecJob(ctx context.Context, job Job) error
	PostComm(ctx context.Context, out ScatterSpec) error
}

// StrategyName identifies one of the six interchangeable transport
// strategies a process group may be configured with (spec.md §2).
type StrategyName string

const (
	AllToAll         StrategyName = "mpi_alltoall"
	PointToPoint     StrategyName = "mpi_pt2pt"
	RMA              StrategyName = "mpi_rma"
	SymmetricShmem   StrategyName = "shmem"
	DistArrayPutGet  StrategyName = "ga"
	DistArrayScatter StrategyName = "ga_gs"
)
