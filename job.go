package mexico

import "context"

// Job is the immutable per-instance contract a worker rank executes.
// InputCount and OutputCount may differ across worker ranks (an
// irregular partition); InputType and OutputType must agree across
// every rank for a given instance.
type Job interface {
	// InputCount is the local input buffer capacity i_N, in records.
	InputCount() int
	// InputType is the element type i_type of an input record.
	InputType() ElementType
	// OutputCount is the local output buffer capacity o_N, in records.
	OutputCount() int
	// OutputType is the element type o_type of an output record.
	OutputType() ElementType

	// Compute is invoked once per Exec call on worker ranks only. in
	// holds InputCount contiguous input records; out must be filled
	// with OutputCount contiguous output records. Compute must not
	// retain in or out past return.
	Compute(ctx context.Context, in, out []byte) error
}

// FuncJob adapts a plain function and four descriptors into a Job. It
// is the usual way to build a Job in tests and small programs, mirroring
// the teacher's own preference for constructing small adapters over
// bigger interface types by hand.
type FuncJob struct {
	INumRecords, ONumRecords int
	IType, OType             ElementType
	ComputeFunc              func(ctx context.Context, in, out []byte) error
}

func (j *FuncJob) InputCount() int       { return j.INumRecords }
func (j *FuncJob) InputType() ElementType { return j.IType }
func (j *FuncJob) OutputCount() int      { return j.ONumRecords }
func (j *FuncJob) OutputType() ElementType { return j.OType }

func (j *FuncJob) Compute(ctx context.Context, in, out []byte) error {
	return j.ComputeFunc(ctx, in, out)
}
