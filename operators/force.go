package operators

import (
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
)

// Force turns the horizontal wind towards the geostrophic wind (ug, vg)
// with Coriolis parameter fc
type Force struct {
	g          *grid.Grid
	fc, ug, vg float64
}

func NewForce(g *grid.Grid, fc, ug, vg float64) *Force {
	return &Force{g: g, fc: fc, ug: ug, vg: vg}
}

func (fo *Force) Name() string { return "force geo" }

func (fo *Force) ComputeTendency(fs *fields.FieldStore) {
	var (
		g         = fo.g
		ii, jj, _ = g.Strides()
		u, v, _   = fs.Velocity()
		ut, vt    = fs.Tend[fields.IU].Data, fs.Tend[fields.IV].Data
		ud, vd    = u.Data, v.Data
	)
	g.Interior(func(i, j, k, ijk int) {
		vAtU := 0.25 * (vd[ijk-ii] + vd[ijk] + vd[ijk-ii+jj] + vd[ijk+jj])
		uAtV := 0.25 * (ud[ijk-jj] + ud[ijk+ii-jj] + ud[ijk] + ud[ijk+ii])
		ut[ijk] += fo.fc * (vAtU - fo.vg)
		vt[ijk] -= fo.fc * (uAtV - fo.ug)
	})
}
