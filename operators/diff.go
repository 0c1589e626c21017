package operators

import (
	"math"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
)

// Diffusion with constant viscosity for momentum and constant diffusivity
// for the scalars, second order
type Diffusion struct {
	g           *grid.Grid
	visc, svisc float64
	dnmax       float64 // largest allowed diffusion number
}

func NewDiffusion(g *grid.Grid, visc, svisc, dnmax float64) *Diffusion {
	return &Diffusion{g: g, visc: visc, svisc: svisc, dnmax: dnmax}
}

func (d *Diffusion) Name() string { return "diffusion c2" }

func (d *Diffusion) ComputeTendency(fs *fields.FieldStore) {
	for n := 0; n < fs.NumPrognostic(); n++ {
		var (
			f, ft = fs.Cur[n].Data, fs.Tend[n].Data
		)
		switch n {
		case fields.IU, fields.IV:
			d.centred(f, ft, d.visc)
		case fields.IW:
			d.faces(f, ft, d.visc)
		default:
			d.centred(f, ft, d.svisc)
		}
	}
}

// centred serves every field located at full levels
func (d *Diffusion) centred(f, ft []float64, nu float64) {
	var (
		g          = d.g
		ii, jj, kk = g.Strides()
		dxidxi     = g.DXI * g.DXI
		dyidyi     = g.DYI * g.DYI
	)
	if nu == 0 {
		return
	}
	g.Interior(func(i, j, k, ijk int) {
		ft[ijk] += nu * ((f[ijk+ii]-2.*f[ijk]+f[ijk-ii])*dxidxi +
			(f[ijk+jj]-2.*f[ijk]+f[ijk-jj])*dyidyi +
			((f[ijk+kk]-f[ijk])*g.DZHI[k+1]-(f[ijk]-f[ijk-kk])*g.DZHI[k])*g.DZI[k])
	})
}

// faces serves w, at half levels; the wall value is fixed
func (d *Diffusion) faces(f, ft []float64, nu float64) {
	var (
		g          = d.g
		ii, jj, kk = g.Strides()
		dxidxi     = g.DXI * g.DXI
		dyidyi     = g.DYI * g.DYI
	)
	if nu == 0 {
		return
	}
	g.Interior(func(i, j, k, ijk int) {
		if k == g.KStart {
			return
		}
		ft[ijk] += nu * ((f[ijk+ii]-2.*f[ijk]+f[ijk-ii])*dxidxi +
			(f[ijk+jj]-2.*f[ijk]+f[ijk-jj])*dyidyi +
			((f[ijk+kk]-f[ijk])*g.DZI[k]-(f[ijk]-f[ijk-kk])*g.DZI[k-1])*g.DZHI[k])
	})
}

// MaxTimeStep keeps the diffusion number dt*nu*(1/dx^2+1/dy^2+1/dz^2) below dnmax
func (d *Diffusion) MaxTimeStep(fs *fields.FieldStore) float64 {
	var (
		g      = d.g
		nu     = math.Max(d.visc, d.svisc)
		dnmult float64
	)
	if nu == 0 {
		return math.Inf(1)
	}
	for k := g.KStart; k < g.KEnd; k++ {
		dnmult = math.Max(dnmult, nu*(g.DXI*g.DXI+g.DYI*g.DYI+g.DZI[k]*g.DZI[k]))
	}
	return d.dnmax / dnmult
}
