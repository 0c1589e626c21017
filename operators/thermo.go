package operators

import (
	"context"
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
)

/*
Thermo adds the buoyancy force to w. The dry variant derives the buoyancy
from the potential temperature th relative to the horizontal mean reference
profile of the initial state, the buoy variant carries the buoyancy b as its
prognostic scalar. The moist variant carries the liquid water potential
temperature thl and the total water qt and takes the buoyancy from the
virtual potential temperature after saturation adjustment.
*/
type Thermo struct {
	Kind    types.ThermoType
	PBot    float64 // surface pressure of the moist reference state
	g       *grid.Grid
	comm    parallel.Communicator
	thref   float64
	gravity float64
	threfh  []float64 // reference (virtual) potential temperature at half levels
	scalars []int
	moist   *moistState
}

func NewThermo(kind types.ThermoType, g *grid.Grid, comm parallel.Communicator, thref, gravity float64) (*Thermo, error) {
	if kind != types.Thermo_Buoy && thref <= 0 {
		return nil, fmt.Errorf("%w: %s thermodynamics needs a positive reference temperature", types.ErrConfiguration, kind)
	}
	return &Thermo{Kind: kind, PBot: p0, g: g, comm: comm, thref: thref, gravity: gravity}, nil
}

func (th *Thermo) Name() string { return "thermo " + th.Kind.String() }

func (th *Thermo) Init(ctx context.Context, fs *fields.FieldStore) (err error) {
	th.scalars = th.scalars[:0]
	for _, name := range th.Kind.Scalars() {
		n := fs.Index(name)
		if n < 0 {
			return fmt.Errorf("%w: thermodynamics needs scalar %q", types.ErrConfiguration, name)
		}
		th.scalars = append(th.scalars, n)
	}
	var ref *fields.Field
	switch th.Kind {
	case types.Thermo_Dry:
		ref = fs.Cur[th.scalars[0]]
	case types.Thermo_Moist:
		if th.moist, err = th.newMoistState(); err != nil {
			return
		}
		th.moist.virtualTemperature(fs.Cur[th.scalars[0]], fs.Cur[th.scalars[1]])
		ref = th.moist.thv
	default:
		// b is the buoyancy itself
		th.threfh = make([]float64, th.g.KCells)
		return
	}
	var prof []float64
	if prof, err = MeanProfile(ctx, th.comm, fs, ref); err != nil {
		return
	}
	g := th.g
	th.threfh = make([]float64, g.KCells)
	for k := g.KStart + 1; k < g.KEnd; k++ {
		th.threfh[k] = 0.5 * (prof[k-1] + prof[k])
	}
	return
}

func (th *Thermo) ComputeTendency(fs *fields.FieldStore) {
	var (
		wt = fs.Tend[fields.IW].Data
	)
	switch th.Kind {
	case types.Thermo_Dry:
		th.addBuoyancy(wt, fs.Cur[th.scalars[0]].Data, th.gravity/th.thref, th.threfh)
	case types.Thermo_Moist:
		th.moist.virtualTemperature(fs.Cur[th.scalars[0]], fs.Cur[th.scalars[1]])
		th.addBuoyancy(wt, th.moist.thv.Data, th.gravity/th.thref, th.threfh)
	case types.Thermo_Buoy:
		th.addBuoyancy(wt, fs.Cur[th.scalars[0]].Data, 1, th.threfh)
	}
}

// addBuoyancy adds fac times the deviation of s interpolated to the w levels
// from ref. w on the bottom wall is left alone.
func (th *Thermo) addBuoyancy(wt, s []float64, fac float64, ref []float64) {
	var (
		g        = th.g
		_, _, kk = g.Strides()
	)
	g.Interior(func(i, j, k, ijk int) {
		if k > g.KStart {
			wt[ijk] += fac * (0.5*(s[ijk-kk]+s[ijk]) - ref[k])
		}
	})
}

// MeanProfile returns the global horizontal mean of f per level, indexed by k
func MeanProfile(ctx context.Context, comm parallel.Communicator, fs *fields.FieldStore, f *fields.Field) (prof []float64, err error) {
	var (
		g = fs.Grid
	)
	prof = fs.ProfileSum(f)
	if err = comm.AllReduce(ctx, parallel.OpSum, prof); err != nil {
		return nil, err
	}
	n := float64(g.ITot * g.JTot)
	for k := range prof {
		prof[k] /= n
	}
	return
}
