package fields

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
)

func newStore(t *testing.T, scalars ...string) *FieldStore {
	topo, err := parallel.NewTopology(1, 1, 0)
	require.NoError(t, err)
	g, err := grid.New(InputParameters.GridParams{
		ITot: 4, JTot: 3, KTot: 2, XSize: 4, YSize: 3, ZSize: 2,
	}, 1, topo)
	require.NoError(t, err)
	fs, err := NewFieldStore(g, scalars)
	require.NoError(t, err)
	return fs
}

func TestFieldStore(t *testing.T) {
	{ // Test layout and lookup
		fs := newStore(t, "th", "qt")
		assert.Equal(t, 5, fs.NumPrognostic())
		assert.Equal(t, []string{"th", "qt"}, fs.ScalarNames())
		assert.Equal(t, 3, fs.Index("th"))
		assert.Equal(t, IW, fs.Index("w"))
		assert.Equal(t, -1, fs.Index("ql"))
		f, ok := fs.Get("qt")
		require.True(t, ok)
		assert.Equal(t, Scalar, f.Kind)
		f, ok = fs.Get("p")
		require.True(t, ok)
		assert.Equal(t, Pressure, f.Kind)
		assert.Equal(t, "w", fs.Cur[IW].Kind.String())
		assert.Equal(t, fs.Grid.NCells, len(fs.Tend[4].Data))
	}
	{ // Test swapping exchanges the buffers without copying
		fs := newStore(t)
		cur, next := fs.Cur[IU], fs.Next[IU]
		fs.Swap()
		assert.Same(t, next, fs.Cur[IU])
		assert.Same(t, cur, fs.Next[IU])
	}
	{ // Test duplicate names are rejected
		topo, _ := parallel.NewTopology(1, 1, 0)
		g, _ := grid.New(InputParameters.GridParams{ITot: 2, JTot: 2, KTot: 2, XSize: 1, YSize: 1, ZSize: 1}, 1, topo)
		_, err := NewFieldStore(g, []string{"th", "th"})
		assert.Error(t, err)
		_, err = NewFieldStore(g, []string{"u"})
		assert.Error(t, err)
	}
	{ // Test the non-finite scan ignores ghost cells
		fs := newStore(t, "th")
		g := fs.Grid
		fs.Cur[3].Data[0] = math.NaN()
		_, found := fs.HasNonFinite(fs.Cur)
		assert.False(t, found)
		fs.Cur[3].Data[g.Index(g.IEnd-1, g.JStart, g.KStart)] = math.Inf(1)
		name, found := fs.HasNonFinite(fs.Cur)
		assert.True(t, found)
		assert.Equal(t, "th", name)
	}
	{ // Test tendencies are zeroed and level sums skip the halo
		fs := newStore(t)
		g := fs.Grid
		fs.Tend[IV].Fill(3)
		fs.ZeroTendencies()
		assert.Equal(t, 0., fs.Tend[IV].Data[g.Index(2, 2, 2)])
		fs.Cur[IU].Fill(1)
		prof := fs.ProfileSum(fs.Cur[IU])
		assert.Equal(t, 0., prof[0])
		assert.Equal(t, 12., prof[g.KStart])
		assert.Equal(t, 12., prof[g.KEnd-1])
	}
}
