package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/SteveHuang27GitHub/microhh/types"
)

// Depth of each rank-to-rank mailbox. Ranks in lock-step never have more than
// a few messages in flight per pair.
const mailboxDepth = 64

type envelope struct {
	seq  uint64
	data []float64
}

/*
LocalWorld runs Size ranks as goroutines of one process. Each ordered pair of
ranks (src, dst) has its own FIFO mailbox, so messages between two ranks are
never reordered. It stands in for a distributed-memory launcher in tests and
on a single machine.
*/
type LocalWorld struct {
	size  int
	boxes [][]chan envelope // boxes[src][dst]
	comms []*localComm
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	cause error
}

func NewLocalWorld(size int) (w *LocalWorld) {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, have %d", size))
	}
	w = &LocalWorld{
		size:  size,
		boxes: make([][]chan envelope, size),
		comms: make([]*localComm, size),
		done:  make(chan struct{}),
	}
	for src := 0; src < size; src++ {
		w.boxes[src] = make([]chan envelope, size)
		for dst := 0; dst < size; dst++ {
			w.boxes[src][dst] = make(chan envelope, mailboxDepth)
		}
		w.comms[src] = &localComm{world: w, rank: src}
	}
	return
}

func (w *LocalWorld) Size() int { return w.size }

func (w *LocalWorld) Comm(rank int) Communicator { return w.comms[rank] }

// Abort releases every blocked rank. The first cause is kept.
func (w *LocalWorld) Abort(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.cause = err
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *LocalWorld) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cause
}

// Run executes fn once per rank, concurrently. When a rank fails the world is
// aborted so the remaining ranks cannot block forever; the error of the first
// failing rank is returned.
func (w *LocalWorld) Run(ctx context.Context, fn func(ctx context.Context, comm Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.size; rank++ {
		comm := w.comms[rank]
		g.Go(func() error {
			if err := fn(gctx, comm); err != nil {
				w.Abort(err)
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	if cause := w.Err(); cause != nil {
		// The rank that aborted the world, not the ranks it released
		return cause
	}
	return err
}

type localComm struct {
	world *LocalWorld
	rank  int
	seq   uint64 // number of collective calls made so far
}

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return c.world.size }

func (c *localComm) Abort(err error) { c.world.Abort(err) }

func (c *localComm) SendRecv(ctx context.Context, dest int, send []float64, source int, recv []float64) (err error) {
	c.seq++
	if err = c.send(ctx, dest, send); err != nil {
		return
	}
	return c.recv(ctx, source, recv)
}

func (c *localComm) AllToAll(ctx context.Context, group []int, send, recv [][]float64) (err error) {
	c.seq++
	if len(send) != len(group) || len(recv) != len(group) {
		return fmt.Errorf("%w: all-to-all over %d ranks with %d send and %d receive buffers",
			types.ErrCommunication, len(group), len(send), len(recv))
	}
	for n, dest := range group {
		if err = c.send(ctx, dest, send[n]); err != nil {
			return
		}
	}
	for n, source := range group {
		if err = c.recv(ctx, source, recv[n]); err != nil {
			return
		}
	}
	return
}

func (c *localComm) AllReduce(ctx context.Context, op ReduceOp, vals []float64) (err error) {
	var (
		size    = c.world.size
		partial = make([]float64, len(vals))
		result  = make([]float64, len(vals))
	)
	c.seq++
	for dest := 0; dest < size; dest++ {
		if err = c.send(ctx, dest, vals); err != nil {
			return
		}
	}
	// Reduce in rank order so every rank computes a bit-identical result
	for source := 0; source < size; source++ {
		if err = c.recv(ctx, source, partial); err != nil {
			return
		}
		for i, v := range partial {
			if source == 0 {
				result[i] = v
			} else {
				result[i] = op.apply(result[i], v)
			}
		}
	}
	copy(vals, result)
	return
}

func (c *localComm) send(ctx context.Context, dest int, data []float64) error {
	if dest < 0 || dest >= c.world.size {
		return fmt.Errorf("%w: rank %d sending to nonexistent rank %d",
			types.ErrCommunication, c.rank, dest)
	}
	var (
		box = c.world.boxes[c.rank][dest]
		env = envelope{seq: c.seq, data: append([]float64(nil), data...)}
	)
	select {
	case box <- env:
		return nil
	default:
	}
	select {
	case box <- env:
		return nil
	case <-ctx.Done():
		return c.interrupted(ctx.Err())
	case <-c.world.done:
		return c.interrupted(c.world.Err())
	}
}

func (c *localComm) recv(ctx context.Context, source int, data []float64) error {
	if source < 0 || source >= c.world.size {
		return fmt.Errorf("%w: rank %d receiving from nonexistent rank %d",
			types.ErrCommunication, c.rank, source)
	}
	var (
		box = c.world.boxes[source][c.rank]
		env envelope
	)
	// Messages already delivered win over cancellation
	select {
	case env = <-box:
	default:
		select {
		case env = <-box:
		case <-ctx.Done():
			return c.interrupted(ctx.Err())
		case <-c.world.done:
			return c.interrupted(c.world.Err())
		}
	}
	if env.seq != c.seq {
		return fmt.Errorf("%w: rank %d out of step with rank %d, call %d met call %d",
			types.ErrCommunication, c.rank, source, c.seq, env.seq)
	}
	if len(env.data) != len(data) {
		return fmt.Errorf("%w: rank %d expected %d values from rank %d, got %d",
			types.ErrCommunication, c.rank, len(data), source, len(env.data))
	}
	copy(data, env.data)
	return nil
}

func (c *localComm) interrupted(cause error) error {
	if cause == nil {
		cause = errors.New("aborted")
	}
	return fmt.Errorf("%w: rank %d interrupted: %v", types.ErrCommunication, c.rank, cause)
}
