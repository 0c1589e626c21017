package pres

import (
	"context"

	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/utils"
)

/*
transposer redistributes complex work arrays between three pencil layouts.
Every layout is stored i fastest, then j, then k.

	z pencil: i in XP[mx], j in YP[my], all k       (the physical decomposition)
	x pencil: all i,       j in YP[my], k in KX[mx] (within the row group)
	y pencil: i in IY[my], all j,       k in KX[mx] (within the column group)

Blocks are always packed k outermost, then j, then i, one complex value as two
consecutive floats, so sender and receiver agree on the order of the values.
*/
type transposer struct {
	comm     parallel.Communicator
	row, col []int
	mx, my   int

	xp, yp, kx, iy *utils.PartitionMap

	imax, jmax       int
	itot, jtot, ktot int
	nkx, niy         int // local extents of the x and y pencils

	send, recv [][]float64
}

func newTransposer(g *grid.Grid, comm parallel.Communicator) (tr *transposer) {
	var (
		topo = g.Topo
	)
	tr = &transposer{
		comm: comm,
		row:  topo.RowGroup(),
		col:  topo.ColGroup(),
		mx:   topo.MyPX,
		my:   topo.MyPY,
		xp:   g.XPart,
		yp:   g.YPart,
		kx:   utils.NewPartitionMap(topo.NPX, g.KTot),
		iy:   utils.NewPartitionMap(topo.NPY, g.ITot),
		imax: g.IMax, jmax: g.JMax,
		itot: g.ITot, jtot: g.JTot, ktot: g.KTot,
	}
	tr.nkx = tr.kx.GetBucketDimension(tr.mx)
	tr.niy = tr.iy.GetBucketDimension(tr.my)
	n := topo.NPX
	if topo.NPY > n {
		n = topo.NPY
	}
	tr.send, tr.recv = make([][]float64, n), make([][]float64, n)
	return
}

func (tr *transposer) zSize() int { return tr.imax * tr.jmax * tr.ktot }
func (tr *transposer) xSize() int { return tr.itot * tr.jmax * tr.nkx }
func (tr *transposer) ySize() int { return tr.niy * tr.jtot * tr.nkx }

func resize(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

func (tr *transposer) exchange(ctx context.Context, group []int) error {
	n := len(group)
	return tr.comm.AllToAll(ctx, group, tr.send[:n], tr.recv[:n])
}

// zToX gathers complete x lines within the row group
func (tr *transposer) zToX(ctx context.Context, zp, xp []complex128) (err error) {
	var (
		ij = tr.imax * tr.jmax
	)
	for p := range tr.row {
		k0, k1 := tr.kx.GetBucketRange(p)
		buf := resize(tr.send[p], 2*ij*(k1-k0))
		n := 0
		for k := k0; k < k1; k++ {
			for j := 0; j < tr.jmax; j++ {
				for i := 0; i < tr.imax; i++ {
					c := zp[i+j*tr.imax+k*ij]
					buf[n], buf[n+1] = real(c), imag(c)
					n += 2
				}
			}
		}
		tr.send[p] = buf
		tr.recv[p] = resize(tr.recv[p], 2*tr.xp.GetBucketDimension(p)*tr.jmax*tr.nkx)
	}
	if err = tr.exchange(ctx, tr.row); err != nil {
		return
	}
	for q := range tr.row {
		i0, i1 := tr.xp.GetBucketRange(q)
		buf := tr.recv[q]
		n := 0
		for k := 0; k < tr.nkx; k++ {
			for j := 0; j < tr.jmax; j++ {
				for i := i0; i < i1; i++ {
					xp[i+j*tr.itot+k*tr.itot*tr.jmax] = complex(buf[n], buf[n+1])
					n += 2
				}
			}
		}
	}
	return
}

// xToZ is the inverse of zToX
func (tr *transposer) xToZ(ctx context.Context, xp, zp []complex128) (err error) {
	var (
		ij = tr.imax * tr.jmax
	)
	for p := range tr.row {
		i0, i1 := tr.xp.GetBucketRange(p)
		buf := resize(tr.send[p], 2*(i1-i0)*tr.jmax*tr.nkx)
		n := 0
		for k := 0; k < tr.nkx; k++ {
			for j := 0; j < tr.jmax; j++ {
				for i := i0; i < i1; i++ {
					c := xp[i+j*tr.itot+k*tr.itot*tr.jmax]
					buf[n], buf[n+1] = real(c), imag(c)
					n += 2
				}
			}
		}
		tr.send[p] = buf
		tr.recv[p] = resize(tr.recv[p], 2*ij*tr.kx.GetBucketDimension(p))
	}
	if err = tr.exchange(ctx, tr.row); err != nil {
		return
	}
	for q := range tr.row {
		k0, k1 := tr.kx.GetBucketRange(q)
		buf := tr.recv[q]
		n := 0
		for k := k0; k < k1; k++ {
			for j := 0; j < tr.jmax; j++ {
				for i := 0; i < tr.imax; i++ {
					zp[i+j*tr.imax+k*ij] = complex(buf[n], buf[n+1])
					n += 2
				}
			}
		}
	}
	return
}

// xToY gathers complete y lines within the column group
func (tr *transposer) xToY(ctx context.Context, xp, yp []complex128) (err error) {
	for p := range tr.col {
		i0, i1 := tr.iy.GetBucketRange(p)
		buf := resize(tr.send[p], 2*(i1-i0)*tr.jmax*tr.nkx)
		n := 0
		for k := 0; k < tr.nkx; k++ {
			for j := 0; j < tr.jmax; j++ {
				for i := i0; i < i1; i++ {
					c := xp[i+j*tr.itot+k*tr.itot*tr.jmax]
					buf[n], buf[n+1] = real(c), imag(c)
					n += 2
				}
			}
		}
		tr.send[p] = buf
		tr.recv[p] = resize(tr.recv[p], 2*tr.niy*tr.yp.GetBucketDimension(p)*tr.nkx)
	}
	if err = tr.exchange(ctx, tr.col); err != nil {
		return
	}
	for q := range tr.col {
		j0, j1 := tr.yp.GetBucketRange(q)
		buf := tr.recv[q]
		n := 0
		for k := 0; k < tr.nkx; k++ {
			for j := j0; j < j1; j++ {
				for i := 0; i < tr.niy; i++ {
					yp[i+j*tr.niy+k*tr.niy*tr.jtot] = complex(buf[n], buf[n+1])
					n += 2
				}
			}
		}
	}
	return
}

// yToX is the inverse of xToY
func (tr *transposer) yToX(ctx context.Context, yp, xp []complex128) (err error) {
	for p := range tr.col {
		j0, j1 := tr.yp.GetBucketRange(p)
		buf := resize(tr.send[p], 2*tr.niy*(j1-j0)*tr.nkx)
		n := 0
		for k := 0; k < tr.nkx; k++ {
			for j := j0; j < j1; j++ {
				for i := 0; i < tr.niy; i++ {
					c := yp[i+j*tr.niy+k*tr.niy*tr.jtot]
					buf[n], buf[n+1] = real(c), imag(c)
					n += 2
				}
			}
		}
		tr.send[p] = buf
		tr.recv[p] = resize(tr.recv[p], 2*tr.iy.GetBucketDimension(p)*tr.jmax*tr.nkx)
	}
	if err = tr.exchange(ctx, tr.col); err != nil {
		return
	}
	for q := range tr.col {
		i0, i1 := tr.iy.GetBucketRange(q)
		buf := tr.recv[q]
		n := 0
		for k := 0; k < tr.nkx; k++ {
			for j := 0; j < tr.jmax; j++ {
				for i := i0; i < i1; i++ {
					xp[i+j*tr.itot+k*tr.itot*tr.jmax] = complex(buf[n], buf[n+1])
					n += 2
				}
			}
		}
	}
	return
}
