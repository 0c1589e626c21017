package halo

import (
	"context"
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
)

// Exchanger fills the horizontal ghost cells of fields from the periodic
// neighbors. Only ghost cells are written.
type Exchanger struct {
	g          *grid.Grid
	topo       *parallel.Topology
	comm       parallel.Communicator
	send, recv []float64
}

func New(g *grid.Grid, topo *parallel.Topology, comm parallel.Communicator) *Exchanger {
	return &Exchanger{g: g, topo: topo, comm: comm}
}

// block is a rectangular index range [i0,i1) x [j0,j1) over all levels
type block struct {
	i0, i1, j0, j1 int
}

func (b block) size(kcells int) int {
	return (b.i1 - b.i0) * (b.j1 - b.j0) * kcells
}

/*
Synchronize runs the x direction first, over the interior rows, then the y
direction over complete rows including the x ghosts, which fills the corners.
All fields share one message per direction and sense.
*/
func (ex *Exchanger) Synchronize(ctx context.Context, flds ...*fields.Field) (err error) {
	var (
		g  = ex.g
		gc = g.GC
	)
	if len(flds) == 0 {
		return
	}
	// Eastward: east interior strip to the west ghosts of the east neighbor
	if err = ex.exchange(ctx, flds,
		block{g.IEnd - gc, g.IEnd, g.JStart, g.JEnd}, ex.topo.East,
		block{0, g.IStart, g.JStart, g.JEnd}, ex.topo.West); err != nil {
		return fmt.Errorf("halo exchange east: %w", err)
	}
	if err = ex.exchange(ctx, flds,
		block{g.IStart, g.IStart + gc, g.JStart, g.JEnd}, ex.topo.West,
		block{g.IEnd, g.ICells, g.JStart, g.JEnd}, ex.topo.East); err != nil {
		return fmt.Errorf("halo exchange west: %w", err)
	}
	if err = ex.exchange(ctx, flds,
		block{0, g.ICells, g.JEnd - gc, g.JEnd}, ex.topo.North,
		block{0, g.ICells, 0, g.JStart}, ex.topo.South); err != nil {
		return fmt.Errorf("halo exchange north: %w", err)
	}
	if err = ex.exchange(ctx, flds,
		block{0, g.ICells, g.JStart, g.JStart + gc}, ex.topo.South,
		block{0, g.ICells, g.JEnd, g.JCells}, ex.topo.North); err != nil {
		return fmt.Errorf("halo exchange south: %w", err)
	}
	return
}

func (ex *Exchanger) exchange(ctx context.Context, flds []*fields.Field,
	from block, dest int, to block, source int) (err error) {
	var (
		kc = ex.g.KCells
		n  = from.size(kc) * len(flds)
	)
	if cap(ex.send) < n {
		ex.send, ex.recv = make([]float64, n), make([]float64, n)
	}
	send, recv := ex.send[:n], ex.recv[:n]
	var pos int
	for _, f := range flds {
		pos = ex.pack(f.Data, from, send, pos)
	}
	if err = ex.comm.SendRecv(ctx, dest, send, source, recv); err != nil {
		return
	}
	pos = 0
	for _, f := range flds {
		pos = ex.unpack(recv, pos, to, f.Data)
	}
	return
}

func (ex *Exchanger) pack(data []float64, b block, buf []float64, pos int) int {
	g := ex.g
	for k := 0; k < g.KCells; k++ {
		for j := b.j0; j < b.j1; j++ {
			ijk := g.Index(b.i0, j, k)
			pos += copy(buf[pos:], data[ijk:ijk+b.i1-b.i0])
		}
	}
	return pos
}

func (ex *Exchanger) unpack(buf []float64, pos int, b block, data []float64) int {
	g := ex.g
	for k := 0; k < g.KCells; k++ {
		for j := b.j0; j < b.j1; j++ {
			ijk := g.Index(b.i0, j, k)
			pos += copy(data[ijk:ijk+b.i1-b.i0], buf[pos:pos+b.i1-b.i0])
		}
	}
	return pos
}
