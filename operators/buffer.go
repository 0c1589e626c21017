package operators

import (
	"context"
	"math"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
)

/*
Buffer is a sponge layer between ZStart and the domain top that relaxes every
prognostic field towards the horizontal mean profile it had at Init, and w
towards zero. The damping rate grows from zero at ZStart to sigma at the top
as ((z-zstart)/(zsize-zstart))^beta.
*/
type Buffer struct {
	g                   *grid.Grid
	comm                parallel.Communicator
	zstart, sigma, beta float64
	sigmaz, sigmazh     []float64 // damping rate at full and half levels
	ref                 [][]float64
}

func NewBuffer(g *grid.Grid, comm parallel.Communicator, zstart, sigma, beta float64) (b *Buffer) {
	b = &Buffer{g: g, comm: comm, zstart: zstart, sigma: sigma, beta: beta}
	b.sigmaz, b.sigmazh = make([]float64, g.KCells), make([]float64, g.KCells)
	for k := g.KStart; k < g.KEnd; k++ {
		b.sigmaz[k] = b.rate(g.Z[k])
		b.sigmazh[k] = b.rate(g.ZH[k])
	}
	return
}

func (b *Buffer) rate(z float64) float64 {
	if z <= b.zstart {
		return 0
	}
	return b.sigma * math.Pow((z-b.zstart)/(b.g.ZSize-b.zstart), b.beta)
}

func (b *Buffer) Name() string { return "buffer" }

func (b *Buffer) Init(ctx context.Context, fs *fields.FieldStore) (err error) {
	b.ref = make([][]float64, fs.NumPrognostic())
	for n := 0; n < fs.NumPrognostic(); n++ {
		if n == fields.IW {
			b.ref[n] = make([]float64, b.g.KCells)
			continue
		}
		if b.ref[n], err = MeanProfile(ctx, b.comm, fs, fs.Cur[n]); err != nil {
			return
		}
	}
	return
}

func (b *Buffer) ComputeTendency(fs *fields.FieldStore) {
	var (
		g = b.g
	)
	for n := 0; n < fs.NumPrognostic(); n++ {
		var (
			f, ft = fs.Cur[n].Data, fs.Tend[n].Data
			ref   = b.ref[n]
			sigma = b.sigmaz
		)
		if n == fields.IW {
			sigma = b.sigmazh
		}
		g.Interior(func(i, j, k, ijk int) {
			if sigma[k] != 0 {
				ft[ijk] -= sigma[k] * (f[ijk] - ref[k])
			}
		})
	}
}
