package grid

import (
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
	"github.com/SteveHuang27GitHub/microhh/utils"
)

/*
Grid is the local subdomain of one rank, on a staggered Arakawa-C layout:
u lives on west faces, v on south faces, w on bottom faces, scalars and
pressure at cell centres. Every array covers the interior plus GC ghost cells
on each side, in all three directions. The horizontal axes are periodic and
decomposed over the process grid, the vertical axis is bounded and complete on
every rank.

Linear index: i + j*ICells + k*IJCells
*/
type Grid struct {
	ITot, JTot, KTot       int // global interior dimensions
	IMax, JMax, KMax       int // local interior dimensions
	GC                     int // ghost cells, identical on all sides and all ranks
	ICells, JCells, KCells int
	IJCells, NCells        int
	IStart, IEnd           int // interior is [IStart, IEnd)
	JStart, JEnd           int
	KStart, KEnd           int
	IOffset, JOffset       int // global index of the first local interior cell

	XSize, YSize, ZSize float64
	DX, DY, DXI, DYI    float64

	X, XH, Y, YH               []float64 // local, including ghosts
	Z, ZH, DZ, DZH, DZI, DZHI []float64

	// Decomposition of the two horizontal axes, bucket n belongs to process coordinate n
	XPart, YPart *utils.PartitionMap
	Topo         *parallel.Topology
}

func New(gp InputParameters.GridParams, gc int, topo *parallel.Topology) (g *Grid, err error) {
	if gp.ITot < 1 || gp.JTot < 1 || gp.KTot < 1 {
		err = fmt.Errorf("%w: grid dimensions must be positive, have %dx%dx%d",
			types.ErrConfiguration, gp.ITot, gp.JTot, gp.KTot)
		return
	}
	if gp.XSize <= 0 || gp.YSize <= 0 || gp.ZSize <= 0 {
		err = fmt.Errorf("%w: domain extents must be positive", types.ErrConfiguration)
		return
	}
	if gc < 1 {
		err = fmt.Errorf("%w: halo width must be at least one, have %d", types.ErrConfiguration, gc)
		return
	}
	g = &Grid{
		ITot: gp.ITot, JTot: gp.JTot, KTot: gp.KTot,
		GC:    gc,
		XSize: gp.XSize, YSize: gp.YSize, ZSize: gp.ZSize,
		XPart: utils.NewPartitionMap(topo.NPX, gp.ITot),
		YPart: utils.NewPartitionMap(topo.NPY, gp.JTot),
		Topo:  topo,
	}
	var i0, i1, j0, j1 int
	i0, i1 = g.XPart.GetBucketRange(topo.MyPX)
	j0, j1 = g.YPart.GetBucketRange(topo.MyPY)
	g.IMax, g.JMax, g.KMax = i1-i0, j1-j0, gp.KTot
	g.IOffset, g.JOffset = i0, j0

	// A halo can only be filled from the direct neighbor
	if minI, minJ := g.XPart.MinBucketDimension(), g.YPart.MinBucketDimension(); minI < gc || minJ < gc {
		err = fmt.Errorf("%w: smallest subdomain is %dx%d cells, the halo needs at least %d in each direction",
			types.ErrConfiguration, minI, minJ, gc)
		g = nil
		return
	}

	g.ICells, g.JCells, g.KCells = g.IMax+2*gc, g.JMax+2*gc, g.KMax+2*gc
	g.IJCells = g.ICells * g.JCells
	g.NCells = g.IJCells * g.KCells
	g.IStart, g.IEnd = gc, gc+g.IMax
	g.JStart, g.JEnd = gc, gc+g.JMax
	g.KStart, g.KEnd = gc, gc+g.KMax

	g.DX, g.DY = g.XSize/float64(g.ITot), g.YSize/float64(g.JTot)
	g.DXI, g.DYI = 1./g.DX, 1./g.DY
	g.X, g.XH = horizontal(g.ICells, g.IStart, g.IOffset, g.DX)
	g.Y, g.YH = horizontal(g.JCells, g.JStart, g.JOffset, g.DY)

	if err = g.vertical(gp.Z); err != nil {
		g = nil
	}
	return
}

func horizontal(cells, start, offset int, delta float64) (x, xh []float64) {
	x, xh = make([]float64, cells), make([]float64, cells)
	for i := 0; i < cells; i++ {
		xh[i] = float64(offset+i-start) * delta
		x[i] = xh[i] + 0.5*delta
	}
	return
}

// vertical fills the vertical arrays from the listed cell centre heights, or
// uniform levels if none are listed. Ghost levels mirror the interior at the
// bottom and top walls.
func (g *Grid) vertical(zc []float64) (err error) {
	var (
		kc         = g.KCells
		ks, ke, gc = g.KStart, g.KEnd, g.GC
	)
	if len(zc) == 0 {
		zc = make([]float64, g.KTot)
		dz := g.ZSize / float64(g.KTot)
		for k := range zc {
			zc[k] = (float64(k) + 0.5) * dz
		}
	}
	if len(zc) != g.KTot {
		return fmt.Errorf("%w: %d vertical levels listed, ktot is %d",
			types.ErrConfiguration, len(zc), g.KTot)
	}
	for k, z := range zc {
		if z <= 0 || z >= g.ZSize || (k > 0 && z <= zc[k-1]) {
			return fmt.Errorf("%w: vertical levels must increase strictly inside (0, %g), level %d is %g",
				types.ErrConfiguration, g.ZSize, k, z)
		}
	}
	g.Z, g.ZH = make([]float64, kc), make([]float64, kc)
	g.DZ, g.DZH = make([]float64, kc), make([]float64, kc)
	g.DZI, g.DZHI = make([]float64, kc), make([]float64, kc)

	copy(g.Z[ks:ke], zc)
	for n := 0; n < gc; n++ {
		g.Z[ks-1-n] = -g.Z[ks+n]
		g.Z[ke+n] = 2.*g.ZSize - g.Z[ke-1-n]
	}
	g.ZH[ks] = 0
	for k := ks + 1; k < ke; k++ {
		g.ZH[k] = 0.5 * (g.Z[k-1] + g.Z[k])
	}
	g.ZH[ke] = g.ZSize
	for n := 1; n <= gc; n++ {
		g.ZH[ks-n] = -g.ZH[ks+n]
		if ke+n < kc {
			g.ZH[ke+n] = 2.*g.ZSize - g.ZH[ke-n]
		}
	}

	for k := ks; k < ke; k++ {
		g.DZ[k] = g.ZH[k+1] - g.ZH[k]
	}
	for n := 0; n < gc; n++ {
		g.DZ[ks-1-n] = g.DZ[ks+n]
		g.DZ[ke+n] = g.DZ[ke-1-n]
	}
	for k := ks; k <= ke; k++ {
		g.DZH[k] = g.Z[k] - g.Z[k-1]
	}
	for n := 1; n <= gc; n++ {
		g.DZH[ks-n] = g.DZH[ks+n]
		if ke+n < kc {
			g.DZH[ke+n] = g.DZH[ke-n]
		}
	}
	for k := 0; k < kc; k++ {
		g.DZI[k] = 1. / g.DZ[k]
		g.DZHI[k] = 1. / g.DZH[k]
	}
	return
}

func (g *Grid) Index(i, j, k int) int {
	return i + j*g.ICells + k*g.IJCells
}

// Global returns the global horizontal position of the local cell (i, j)
func (g *Grid) Global(i, j int) (ig, jg int) {
	ig = g.XPart.GetGlobalK(i-g.IStart, g.Topo.MyPX)
	jg = g.YPart.GetGlobalK(j-g.JStart, g.Topo.MyPY)
	return
}

// Local returns the local cell of the global position (ig, jg) and whether
// this rank owns it
func (g *Grid) Local(ig, jg int) (i, j int, owned bool) {
	il, _, px := g.XPart.GetLocalK(ig)
	jl, _, py := g.YPart.GetLocalK(jg)
	return il + g.IStart, jl + g.JStart, px == g.Topo.MyPX && py == g.Topo.MyPY
}

// Strides to the neighbor cell in each direction
func (g *Grid) Strides() (ii, jj, kk int) {
	return 1, g.ICells, g.IJCells
}

// Interior calls fn for every local interior cell, k outermost
func (g *Grid) Interior(fn func(i, j, k, ijk int)) {
	for k := g.KStart; k < g.KEnd; k++ {
		for j := g.JStart; j < g.JEnd; j++ {
			ijk := g.Index(g.IStart, j, k)
			for i := g.IStart; i < g.IEnd; i++ {
				fn(i, j, k, ijk)
				ijk++
			}
		}
	}
}

func (g *Grid) InteriorCount() int {
	return g.IMax * g.JMax * g.KMax
}

func (g *Grid) String() string {
	return fmt.Sprintf("[%d x %d x %d] global, [%d x %d x %d] local at (%d, %d), %d ghost cells",
		g.ITot, g.JTot, g.KTot, g.IMax, g.JMax, g.KMax, g.IOffset, g.JOffset, g.GC)
}
