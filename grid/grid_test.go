package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
)

func newGrid(t *testing.T, gp InputParameters.GridParams, gc, npx, npy, rank int) *Grid {
	topo, err := parallel.NewTopology(npx, npy, rank)
	require.NoError(t, err)
	g, err := New(gp, gc, topo)
	require.NoError(t, err)
	return g
}

func TestGrid(t *testing.T) {
	gp := InputParameters.GridParams{
		ITot: 11, JTot: 7, KTot: 8,
		XSize: 11, YSize: 14, ZSize: 4,
	}
	{ // Test local extents sum to the global extents along each decomposed axis
		var (
			npx, npy = 3, 2
			sumI     = make(map[int]int)
			sumJ     = make(map[int]int)
		)
		for rank := 0; rank < npx*npy; rank++ {
			g := newGrid(t, gp, 2, npx, npy, rank)
			if g.Topo.MyPY == 0 {
				sumI[0] += g.IMax
			}
			if g.Topo.MyPX == 0 {
				sumJ[0] += g.JMax
			}
			assert.Equal(t, gp.KTot, g.KMax)
			assert.Equal(t, 2, g.GC)
			assert.LessOrEqual(t, g.IMax-g.XPart.MinBucketDimension(), 1)
		}
		assert.Equal(t, gp.ITot, sumI[0])
		assert.Equal(t, gp.JTot, sumJ[0])
	}
	{ // Test offsets and staggered coordinates
		g := newGrid(t, gp, 1, 3, 2, 4)
		assert.Equal(t, 4, g.IOffset) // buckets 4,4,3
		assert.Equal(t, 4, g.JOffset) // buckets 4,3
		assert.Equal(t, 1., g.DX)
		assert.Equal(t, 2., g.DY)
		assert.InDelta(t, 4., g.XH[g.IStart], 1.e-12)
		assert.InDelta(t, 4.5, g.X[g.IStart], 1.e-12)
		assert.InDelta(t, 3., g.XH[g.IStart-1], 1.e-12)
		assert.InDelta(t, 8., g.YH[g.JStart], 1.e-12)
		assert.Equal(t, g.ICells*g.JCells*g.KCells, g.NCells)
		assert.Equal(t, 1+2*g.ICells+3*g.IJCells, g.Index(1, 2, 3))
		ig, jg := g.Global(g.IStart+2, g.JStart+1)
		assert.Equal(t, [2]int{6, 5}, [2]int{ig, jg})
		i, j, owned := g.Local(ig, jg)
		assert.True(t, owned)
		assert.Equal(t, [2]int{g.IStart + 2, g.JStart + 1}, [2]int{i, j})
		_, _, owned = g.Local(3, 5)
		assert.False(t, owned)
	}
	{ // Test uniform vertical levels and mirrored ghosts
		g := newGrid(t, gp, 2, 1, 1, 0)
		ks, ke := g.KStart, g.KEnd
		assert.InDelta(t, 0.25, g.Z[ks], 1.e-12)
		assert.InDelta(t, -0.25, g.Z[ks-1], 1.e-12)
		assert.InDelta(t, 0., g.ZH[ks], 1.e-12)
		assert.InDelta(t, 4., g.ZH[ke], 1.e-12)
		assert.InDelta(t, 4.25, g.Z[ke], 1.e-12)
		for k := 0; k < g.KCells; k++ {
			assert.InDelta(t, 0.5, g.DZ[k], 1.e-12)
			assert.InDelta(t, 0.5, g.DZH[k], 1.e-12)
			assert.InDelta(t, 2., g.DZI[k], 1.e-12)
		}
	}
	{ // Test stretched levels
		sp := gp
		sp.KTot = 3
		sp.Z = []float64{0.5, 1.5, 3.}
		g := newGrid(t, sp, 1, 1, 1, 0)
		ks := g.KStart
		assert.InDeltaSlice(t, []float64{0, 1, 2.25, 4}, g.ZH[ks:ks+4], 1.e-12)
		assert.InDeltaSlice(t, []float64{1, 1.25, 1.75}, g.DZ[ks:ks+3], 1.e-12)
		assert.InDeltaSlice(t, []float64{1, 1, 1.5, 2}, g.DZH[ks:ks+4], 1.e-12)
		var sum float64
		for k := g.KStart; k < g.KEnd; k++ {
			sum += g.DZ[k]
		}
		assert.InDelta(t, sp.ZSize, sum, 1.e-12)
	}
	{ // Test configuration errors
		topo, _ := parallel.NewTopology(4, 1, 0)
		small := gp
		small.ITot = 7 // smallest bucket has one cell, less than the halo
		_, err := New(small, 2, topo)
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		topo, _ = parallel.NewTopology(1, 1, 0)
		bad := gp
		bad.KTot = 3
		bad.Z = []float64{0.5, 0.4, 3.}
		_, err = New(bad, 1, topo)
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		bad.Z = []float64{0.5, 1.}
		_, err = New(bad, 1, topo)
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		bad = gp
		bad.ZSize = 0
		_, err = New(bad, 1, topo)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
	{ // Test interior traversal visits every owned cell once
		g := newGrid(t, gp, 1, 2, 1, 1)
		seen := make(map[int]bool)
		g.Interior(func(i, j, k, ijk int) {
			assert.Equal(t, g.Index(i, j, k), ijk)
			seen[ijk] = true
		})
		assert.Equal(t, g.InteriorCount(), len(seen))
	}
}
