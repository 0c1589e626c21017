package model

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/operators"
	"github.com/SteveHuang27GitHub/microhh/timeloop"
)

/*
Create sets the initial state: uniform horizontal wind (U0, V0), scalars with
a surface value and a constant lapse rate, and a random perturbation below
RndZ. The velocity is then made divergence free and the operators derive
their reference profiles from the result.
*/
func (m *Model) Create(ctx context.Context) (err error) {
	var (
		g  = m.Grid
		fs = m.Fields
		fp = m.Params.Fields
	)
	fs.Cur[fields.IU].Fill(fp.U0)
	fs.Cur[fields.IV].Fill(fp.V0)
	fs.Cur[fields.IW].Fill(0)
	for _, name := range fs.ScalarNames() {
		var (
			s        = fs.Cur[fs.Index(name)].Data
			s0, dsdz = fp.S0[name], fp.DSDz[name]
		)
		for k := 0; k < g.KCells; k++ {
			val := s0 + dsdz*g.Z[k]
			for ij := 0; ij < g.IJCells; ij++ {
				s[ij+k*g.IJCells] = val
			}
		}
	}
	m.perturb()
	fs.P.Fill(0)
	fs.ZeroRegisters()
	m.TimeLoop.State = timeloop.TimeState{Dt: m.Params.Time.Dt, CFLLimit: m.Params.Advec.CFLMax}

	if err = m.TimeLoop.Synchronize(ctx, fs.Cur); err != nil {
		return
	}
	u, v, w := fs.Velocity()
	if err = m.Pres.Project(ctx, u, v, w, fs.P, 1); err != nil {
		return
	}
	if err = m.TimeLoop.Synchronize(ctx, fs.Cur[:fields.NumVelocity]); err != nil {
		return
	}
	if err = m.initOperators(ctx); err != nil {
		return
	}
	if err = m.TimeLoop.LimitDt(ctx); err != nil {
		return
	}
	if m.comm.Rank() == 0 {
		m.log.WithFields(logrus.Fields{
			"rndamp": fp.RndAmp,
			"dt":     m.TimeLoop.State.Dt,
		}).Info("created initial state")
	}
	return
}

// perturb adds uniform noise in [-RndAmp, RndAmp] to every prognostic field
// below RndZ. The random sequence runs over the global grid, so the initial
// state does not depend on the decomposition.
func (m *Model) perturb() {
	var (
		g  = m.Grid
		fp = m.Params.Fields
	)
	if fp.RndAmp == 0 {
		return
	}
	rng := rand.New(rand.NewSource(fp.RndSeed))
	for _, f := range m.Fields.Cur {
		for k := g.KStart; k < g.KEnd && g.Z[k] < fp.RndZ; k++ {
			for jg := 0; jg < g.JTot; jg++ {
				for ig := 0; ig < g.ITot; ig++ {
					r := fp.RndAmp * (2.*rng.Float64() - 1.)
					if i, j, owned := g.Local(ig, jg); owned {
						f.Data[g.Index(i, j, k)] += r
					}
				}
			}
		}
	}
}

func (m *Model) initOperators(ctx context.Context) (err error) {
	for _, op := range m.Operators {
		if in, ok := op.(operators.Initializer); ok {
			if err = in.Init(ctx, m.Fields); err != nil {
				return
			}
		}
	}
	return
}
