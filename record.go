package mexico

// RoutingMatrix is the pair of column-major integer matrices a caller
// supplies per invocation: Worker names, for each (v, k), the target
// rank a record should be routed to or from; Offset names the slot in
// that rank's local buffer. A Worker entry of -1 marks column k unused
// for record v; its paired Offset is ignored.
//
// Storage is column-major (index v + k*NumVals) rather than row-major
// because the coalescing rules used by the RMA, SHMEM and
// distributed-array strategies depend on contiguity in v within a
// fixed k — see spec.md §9 "Column-major routing matrices".
type RoutingMatrix struct {
	NumVals         int
	MaxWorkerPerVal int
	Worker          []int
	Offset          []int
}

// NewRoutingMatrix allocates a routing matrix of the given shape, with
// every Worker entry initialized to -1 (unused) and every Offset to 0.
func NewRoutingMatrix(numVals, maxWorkerPerVal int) RoutingMatrix {
	m := RoutingMatrix{
		NumVals:         numVals,
		MaxWorkerPerVal: maxWorkerPerVal,
		Worker:          make([]int, numVals*maxWorkerPerVal),
		Offset:          make([]int, numVals*maxWorkerPerVal),
	}
	for i := range m.Worker {
		m.Worker[i] = -1
	}
	return m
}

// Set records that value v's column k entry routes to rank worker at
// slot offset.
func (m *RoutingMatrix) Set(v, k, worker, offset int) {
	i := v + k*m.NumVals
	m.Worker[i] = worker
	m.Offset[i] = offset
}

// At returns the (worker, offset) pair stored at (v, k). worker is -1
// if the column is unused.
func (m *RoutingMatrix) At(v, k int) (worker, offset int) {
	i := v + k*m.NumVals
	return m.Worker[i], m.Offset[i]
}

// Sweep calls fn for every valid (non -1) entry of the matrix, in
// column-major order: the outer loop ranges over k, the inner loop
// over v. Strategies that coalesce contiguous runs rely on this exact
// order.
func (m *RoutingMatrix) Sweep(fn func(v, k, worker, offset int)) {
	for k := 0; k < m.MaxWorkerPerVal; k++ {
		base := k * m.NumVals
		for v := 0; v < m.NumVals; v++ {
			w := m.Worker[base+v]
			if w < 0 {
				continue
			}
			fn(v, k, w, m.Offset[base+v])
		}
	}
}

// GatherSpec describes one side (input) of an Exec invocation as seen
// by the caller: the local buffer holding cnt-element records of type
// typ, and the routing matrix naming, for each record, the worker(s)
// and slot(s) it must be delivered to.
type GatherSpec struct {
	Buf     []byte
	Cnt     int
	Type    ElementType
	Routing RoutingMatrix
}

// RecordSize is the byte extent of one record of this spec.
func (g GatherSpec) RecordSize() int { return g.Cnt * g.Type.Extent() }

// Record returns the v'th record of g.Buf.
func (g GatherSpec) Record(v int) []byte {
	return recordAt(g.Buf, v, g.RecordSize())
}

// ScatterSpec is the symmetric output-side counterpart of GatherSpec:
// Buf is populated by the runtime at return, for every valid routing
// entry, with the record pulled from the named worker's output slot.
// Buf is laid out identically to the routing matrices: record
// (v, k) lives at index v + k*Routing.NumVals.
type ScatterSpec struct {
	Buf     []byte
	Cnt     int
	Type    ElementType
	Routing RoutingMatrix
}

// RecordSize is the byte extent of one record of this spec.
func (s ScatterSpec) RecordSize() int { return s.Cnt * s.Type.Extent() }

// SetRecord copies data into the (v, k) column-major slot of s.Buf.
func (s ScatterSpec) SetRecord(v, k int, data []byte) {
	idx := v + k*s.Routing.NumVals
	copy(recordAt(s.Buf, idx, s.RecordSize()), data)
}

// recordAt returns the byte slice of the i'th record of size
// recordSize within buf.
func recordAt(buf []byte, i, recordSize int) []byte {
	return buf[i*recordSize : (i+1)*recordSize]
}
