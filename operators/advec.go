package operators

import (
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
)

// interpolator returns the value of f midway between ijk-s and ijk
type interpolator func(f []float64, ijk, s int) float64

func interp2(f []float64, ijk, s int) float64 {
	return 0.5 * (f[ijk-s] + f[ijk])
}

func interp4(f []float64, ijk, s int) float64 {
	return (-f[ijk-2*s] + 9.*f[ijk-s] + 9.*f[ijk] - f[ijk+s]) * (1. / 16.)
}

/*
Advection is the flux form advection of momentum and scalars with second
order divergence. Order 2 interpolates all face values linearly, order 4
uses fourth order interpolation in the horizontal and needs two ghost cells.
The vertical is always second order.
*/
type Advection struct {
	g     *grid.Grid
	order int
	hi    interpolator
}

func NewAdvection(g *grid.Grid, order int) (a *Advection) {
	a = &Advection{g: g, order: order, hi: interp2}
	if order == 4 {
		a.hi = interp4
	}
	return
}

func (a *Advection) Name() string { return fmt.Sprintf("advection order %d", a.order) }

func (a *Advection) ComputeTendency(fs *fields.FieldStore) {
	var (
		u, v, w = fs.Velocity()
	)
	a.momentumU(u.Data, v.Data, w.Data, fs.Tend[fields.IU].Data)
	a.momentumV(u.Data, v.Data, w.Data, fs.Tend[fields.IV].Data)
	a.momentumW(u.Data, v.Data, w.Data, fs.Tend[fields.IW].Data)
	for n := fields.NumVelocity; n < fs.NumPrognostic(); n++ {
		a.scalar(u.Data, v.Data, w.Data, fs.Cur[n].Data, fs.Tend[n].Data)
	}
}

func vi(f []float64, ijk, kk int) float64 { return 0.5 * (f[ijk-kk] + f[ijk]) }

func (a *Advection) momentumU(u, v, w, ut []float64) {
	var (
		g          = a.g
		ii, jj, kk = g.Strides()
		hi         = a.hi
	)
	g.Interior(func(i, j, k, ijk int) {
		ut[ijk] -= (hi(u, ijk+ii, ii)*hi(u, ijk+ii, ii)-hi(u, ijk, ii)*hi(u, ijk, ii))*g.DXI +
			(hi(v, ijk+jj, ii)*hi(u, ijk+jj, jj)-hi(v, ijk, ii)*hi(u, ijk, jj))*g.DYI +
			(hi(w, ijk+kk, ii)*vi(u, ijk+kk, kk)-hi(w, ijk, ii)*vi(u, ijk, kk))*g.DZI[k]
	})
}

func (a *Advection) momentumV(u, v, w, vt []float64) {
	var (
		g          = a.g
		ii, jj, kk = g.Strides()
		hi         = a.hi
	)
	g.Interior(func(i, j, k, ijk int) {
		vt[ijk] -= (hi(u, ijk+ii, jj)*hi(v, ijk+ii, ii)-hi(u, ijk, jj)*hi(v, ijk, ii))*g.DXI +
			(hi(v, ijk+jj, jj)*hi(v, ijk+jj, jj)-hi(v, ijk, jj)*hi(v, ijk, jj))*g.DYI +
			(hi(w, ijk+kk, jj)*vi(v, ijk+kk, kk)-hi(w, ijk, jj)*vi(v, ijk, kk))*g.DZI[k]
	})
}

// momentumW skips the bottom wall, where w is fixed
func (a *Advection) momentumW(u, v, w, wt []float64) {
	var (
		g          = a.g
		ii, jj, kk = g.Strides()
		hi         = a.hi
	)
	g.Interior(func(i, j, k, ijk int) {
		if k == g.KStart {
			return
		}
		wt[ijk] -= (vi(u, ijk+ii, kk)*hi(w, ijk+ii, ii)-vi(u, ijk, kk)*hi(w, ijk, ii))*g.DXI +
			(vi(v, ijk+jj, kk)*hi(w, ijk+jj, jj)-vi(v, ijk, kk)*hi(w, ijk, jj))*g.DYI +
			(vi(w, ijk+kk, kk)*vi(w, ijk+kk, kk)-vi(w, ijk, kk)*vi(w, ijk, kk))*g.DZHI[k]
	})
}

func (a *Advection) scalar(u, v, w, s, st []float64) {
	var (
		g          = a.g
		ii, jj, kk = g.Strides()
		hi         = a.hi
	)
	g.Interior(func(i, j, k, ijk int) {
		st[ijk] -= (u[ijk+ii]*hi(s, ijk+ii, ii)-u[ijk]*hi(s, ijk, ii))*g.DXI +
			(v[ijk+jj]*hi(s, ijk+jj, jj)-v[ijk]*hi(s, ijk, jj))*g.DYI +
			(w[ijk+kk]*vi(s, ijk+kk, kk)-w[ijk]*vi(s, ijk, kk))*g.DZI[k]
	})
}
