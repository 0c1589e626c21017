package parallel

import (
	"context"
	"math"
)

type ReduceOp uint8

const (
	OpSum ReduceOp = iota
	OpMax
	OpMin
)

func (op ReduceOp) apply(a, b float64) float64 {
	switch op {
	case OpMax:
		return math.Max(a, b)
	case OpMin:
		return math.Min(a, b)
	}
	return a + b
}

/*
Communicator is the process-topology capability the solver core depends on.
Every call is collective over the participating ranks: all of them must make
the same sequence of calls, or the exchange fails with a communication error.
The only inter-process paths are these calls.
*/
type Communicator interface {
	Rank() int
	Size() int
	// SendRecv sends to dest and receives len(recv) values from source
	SendRecv(ctx context.Context, dest int, send []float64, source int, recv []float64) error
	// AllToAll exchanges send[n] for recv[n] with rank group[n]; group includes the caller
	AllToAll(ctx context.Context, group []int, send, recv [][]float64) error
	// AllReduce combines vals element-wise over all ranks, in place
	AllReduce(ctx context.Context, op ReduceOp, vals []float64) error
	// Abort unblocks every rank with a communication error
	Abort(err error)
}

// AllReduceScalar is AllReduce for a single value
func AllReduceScalar(ctx context.Context, comm Communicator, op ReduceOp, val float64) (float64, error) {
	var (
		vals = []float64{val}
	)
	if err := comm.AllReduce(ctx, op, vals); err != nil {
		return 0, err
	}
	return vals[0], nil
}

// AgreeOnFailure returns true on every rank if any rank passes failed=true
func AgreeOnFailure(ctx context.Context, comm Communicator, failed bool) (bool, error) {
	var flag float64
	if failed {
		flag = 1
	}
	global, err := AllReduceScalar(ctx, comm, OpMax, flag)
	if err != nil {
		return false, err
	}
	return global > 0, nil
}
