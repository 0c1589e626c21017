package operators

import (
	"fmt"
	"math"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/types"
)

const (
	rd = 287.04 // gas constant of dry air
	rv = 461.5  // gas constant of water vapour
	ep = rd / rv
	cp = 1005.  // specific heat of dry air at constant pressure
	lv = 2.5e6  // latent heat of vaporization
	p0 = 1.e5   // reference pressure of the Exner function

	maxAdjustIterations = 100
)

// moistState holds the hydrostatic reference atmosphere at the full levels
// and the virtual potential temperature scratch field
type moistState struct {
	g    *grid.Grid
	exn  []float64
	pref []float64
	thv  *fields.Field
}

func (th *Thermo) newMoistState() (ms *moistState, err error) {
	var (
		g = th.g
	)
	if th.PBot <= 0 {
		return nil, fmt.Errorf("%w: moist thermodynamics needs a positive surface pressure", types.ErrConfiguration)
	}
	ms = &moistState{
		g:    g,
		exn:  make([]float64, g.KCells),
		pref: make([]float64, g.KCells),
		thv:  fields.NewField("thv", fields.Scalar, g),
	}
	for k := g.KStart; k < g.KEnd; k++ {
		ms.exn[k] = math.Pow(th.PBot/p0, rd/cp) - th.gravity*g.Z[k]/(cp*th.thref)
		if ms.exn[k] <= 0 {
			return nil, fmt.Errorf("%w: level %g m is above the reference atmosphere", types.ErrConfiguration, g.Z[k])
		}
		ms.pref[k] = p0 * math.Pow(ms.exn[k], cp/rd)
	}
	return
}

// virtualTemperature fills the interior of thv from thl and qt
func (ms *moistState) virtualTemperature(thl, qt *fields.Field) {
	var (
		thv = ms.thv.Data
	)
	ms.g.Interior(func(i, j, k, ijk int) {
		ql, _ := satAdjust(thl.Data[ijk], qt.Data[ijk], ms.pref[k], ms.exn[k])
		thv[ijk] = virtualPotentialTemperature(thl.Data[ijk], qt.Data[ijk], ql, ms.exn[k])
	})
}

func virtualPotentialTemperature(thl, qt, ql, exn float64) float64 {
	return (thl + lv*ql/(cp*exn)) * (1. - (1.-rv/rd)*qt - rv/rd*ql)
}

// esat is the saturation vapour pressure over liquid water
func esat(t float64) float64 {
	return 610.78 * math.Exp(17.27*(t-273.16)/(t-35.86))
}

func qsat(p, t float64) float64 {
	es := esat(t)
	return ep * es / (p - (1.-ep)*es)
}

/*
satAdjust returns the liquid water and the temperature of air with liquid
water potential temperature thl and total water qt at pressure p. The
temperature solves T = Tl + Lv/cp*(qt - qsat(p, T)) by Newton iteration.
*/
func satAdjust(thl, qt, p, exn float64) (ql, t float64) {
	tl := thl * exn
	if qt <= qsat(p, tl) {
		return 0, tl
	}
	t = tl
	for n := 0; n < maxAdjustIterations; n++ {
		var (
			es   = esat(t)
			den  = p - (1.-ep)*es
			des  = es * 17.27 * (273.16 - 35.86) / ((t - 35.86) * (t - 35.86))
			dqs  = ep * p * des / (den * den)
			f    = t - tl - lv/cp*(qt-ep*es/den)
			step = f / (1. + lv/cp*dqs)
		)
		t -= step
		if math.Abs(step) < 1.e-10*t {
			break
		}
	}
	ql = math.Max(0, qt-qsat(p, t))
	return
}
