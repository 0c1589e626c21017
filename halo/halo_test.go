package halo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
)

// pattern is unique per global cell, periodic in i and j
func pattern(gp InputParameters.GridParams, i, j, k int) float64 {
	i = ((i % gp.ITot) + gp.ITot) % gp.ITot
	j = ((j % gp.JTot) + gp.JTot) % gp.JTot
	return float64(i + 100*j + 10000*k)
}

func TestSynchronize(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	gp := InputParameters.GridParams{ITot: 9, JTot: 6, KTot: 3, XSize: 1, YSize: 1, ZSize: 1}
	for _, dec := range [][3]int{{1, 1, 1}, {3, 1, 1}, {2, 2, 2}, {3, 2, 1}} {
		npx, npy, gc := dec[0], dec[1], dec[2]
		w := parallel.NewLocalWorld(npx * npy)
		err := w.Run(ctx, func(ctx context.Context, comm parallel.Communicator) error {
			topo, err := parallel.NewTopology(npx, npy, comm.Rank())
			if err != nil {
				return err
			}
			g, err := grid.New(gp, gc, topo)
			if err != nil {
				return err
			}
			var (
				a    = fields.NewField("a", fields.Scalar, g)
				b    = fields.NewField("b", fields.Scalar, g)
				ex   = New(g, topo, comm)
				glob = func(i, j int) (int, int) { return i - g.IStart + g.IOffset, j - g.JStart + g.JOffset }
			)
			a.Fill(-1)
			g.Interior(func(i, j, k, ijk int) {
				ig, jg := glob(i, j)
				a.Data[ijk] = pattern(gp, ig, jg, k)
				b.Data[ijk] = -pattern(gp, ig, jg, k)
			})
			if err = ex.Synchronize(ctx, a, b); err != nil {
				return err
			}
			{ // Test every horizontal ghost, corners included, holds the periodic neighbor value
				for k := g.KStart; k < g.KEnd; k++ {
					for j := 0; j < g.JCells; j++ {
						for i := 0; i < g.ICells; i++ {
							ig, jg := glob(i, j)
							assert.Equal(t, pattern(gp, ig, jg, k), a.Data[g.Index(i, j, k)], "dec %v at %d %d %d", dec, i, j, k)
							assert.Equal(t, -pattern(gp, ig, jg, k), b.Data[g.Index(i, j, k)])
						}
					}
				}
			}
			{ // Test a second exchange changes nothing
				before := append([]float64(nil), a.Data...)
				if err = ex.Synchronize(ctx, a); err != nil {
					return err
				}
				assert.Equal(t, before, a.Data)
			}
			return nil
		})
		require.NoError(t, err)
	}
}
