package timeloop

import (
	"context"
	"fmt"
	"math"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/halo"
	"github.com/SteveHuang27GitHub/microhh/operators"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/pres"
	"github.com/SteveHuang27GitHub/microhh/types"
	"github.com/SteveHuang27GitHub/microhh/utils"
)

// TimeState is mutated by the Integrator only, once per completed step.
// Dt is the step size proposed for the next step.
type TimeState struct {
	Time     float64
	Step     int
	Dt       float64
	CFLLimit float64
}

// Low storage Runge-Kutta coefficients, register S and stage n:
//
//	S = a[n]*S + tendency
//	f = f + b[n]*dt*S
var (
	rk3a = []float64{0., -5. / 9., -153. / 128.}
	rk3b = []float64{1. / 3., 15. / 16., 8. / 15.}

	rk4a = []float64{0.,
		-567301805773. / 1357537059087.,
		-2404267990393. / 2016746695238.,
		-3550918686646. / 2091501179385.,
		-1275806237668. / 842570457699.}
	rk4b = []float64{
		1432997174477. / 9575080441755.,
		5161836677717. / 13612068292357.,
		1720146321549. / 2090206949498.,
		3134564353537. / 4481467310338.,
		2277821191437. / 14882151754819.}
)

type Integrator struct {
	State        TimeState
	DtMax, DtMin float64
	RKOrder      int

	g        *grid.Grid
	fs       *fields.FieldStore
	ops      []operators.Operator
	limiters []operators.StabilityLimiter
	bnd      *operators.Boundary
	halo     *halo.Exchanger
	pres     *pres.Solver
	comm     parallel.Communicator
	rka, rkb []float64
}

func New(tp InputParameters.TimeParams, cflLimit float64, fs *fields.FieldStore,
	ops []operators.Operator, bnd *operators.Boundary, ex *halo.Exchanger,
	solver *pres.Solver, comm parallel.Communicator) (it *Integrator, err error) {
	it = &Integrator{
		State:   TimeState{Dt: tp.Dt, CFLLimit: cflLimit},
		DtMax:   tp.DtMax,
		DtMin:   tp.DtMin,
		RKOrder: tp.RKOrder,
		g:       fs.Grid,
		fs:      fs,
		ops:     ops,
		bnd:     bnd,
		halo:    ex,
		pres:    solver,
		comm:    comm,
	}
	switch tp.RKOrder {
	case 3:
		it.rka, it.rkb = rk3a, rk3b
	case 4:
		it.rka, it.rkb = rk4a, rk4b
	default:
		return nil, fmt.Errorf("%w: runge kutta order must be 3 or 4, have %d", types.ErrConfiguration, tp.RKOrder)
	}
	if cflLimit <= 0 {
		return nil, fmt.Errorf("%w: cfl limit must be positive", types.ErrConfiguration)
	}
	for _, op := range ops {
		if lim, ok := op.(operators.StabilityLimiter); ok {
			it.limiters = append(it.limiters, lim)
		}
	}
	return
}

func (it *Integrator) NumStages() int { return len(it.rkb) }

/*
AdvanceOneStep advances the committed fields by dt and returns the step size
proposed for the next step. Every error is returned as a *types.RunError
carrying the index of the failed step and the time at its start; errors that
arise from the field values are agreed between all ranks first.
*/
func (it *Integrator) AdvanceOneStep(ctx context.Context, dt float64) (newDt float64, err error) {
	step, time := it.State.Step+1, it.State.Time
	if !(dt > 0) || math.IsInf(dt, 0) {
		return 0, types.NewRunError(fmt.Errorf("%w: invalid time step %g", types.ErrConfiguration, dt), step, time)
	}
	for n := range it.rkb {
		if err = it.stage(ctx, n, dt); err != nil {
			return 0, types.NewRunError(fmt.Errorf("stage %d: %w", n+1, err), step, time)
		}
	}
	it.State.Time += dt
	it.State.Step++
	if newDt, err = it.ComputeDt(ctx, dt); err != nil {
		return 0, types.NewRunError(err, it.State.Step, it.State.Time)
	}
	it.State.Dt = newDt
	return
}

func (it *Integrator) stage(ctx context.Context, n int, dt float64) (err error) {
	var (
		fs  = it.fs
		g   = it.g
		a   = it.rka[n]
		bdt = it.rkb[n] * dt
	)
	if err = it.Synchronize(ctx, fs.Cur); err != nil {
		return
	}
	fs.ZeroTendencies()
	for _, op := range it.ops {
		op.ComputeTendency(fs)
	}
	for m := range fs.Cur {
		var (
			cur, next = fs.Cur[m].Data, fs.Next[m].Data
			reg, tend = fs.Reg[m].Data, fs.Tend[m].Data
		)
		copy(next, cur)
		g.Interior(func(i, j, k, ijk int) {
			if n == 0 {
				reg[ijk] = tend[ijk]
			} else {
				reg[ijk] = a*reg[ijk] + tend[ijk]
			}
			next[ijk] = cur[ijk] + bdt*reg[ijk]
		})
	}
	if err = it.Synchronize(ctx, fs.Next); err != nil {
		return
	}
	u, v, w := fs.NextVelocity()
	if err = it.pres.Project(ctx, u, v, w, fs.P, bdt); err != nil {
		return
	}
	if err = it.halo.Synchronize(ctx, u, v, w); err != nil {
		return
	}
	// Keep the pressure gradient in the register of the velocity components
	for m := 0; m < fields.NumVelocity; m++ {
		var (
			cur, next = fs.Cur[m].Data, fs.Next[m].Data
			reg       = fs.Reg[m].Data
		)
		g.Interior(func(i, j, k, ijk int) {
			reg[ijk] = (next[ijk] - cur[ijk]) / bdt
		})
	}
	name, found := fs.HasNonFinite(fs.Next)
	failed, err := parallel.AgreeOnFailure(ctx, it.comm, found)
	if err != nil {
		return
	}
	if failed {
		if found {
			return fmt.Errorf("%w: non-finite value in field %s", types.ErrDivergence, name)
		}
		return fmt.Errorf("%w: non-finite value on another rank", types.ErrDivergence)
	}
	fs.Swap()
	return
}

// Synchronize applies the wall conditions and exchanges the halos of flds
func (it *Integrator) Synchronize(ctx context.Context, flds []*fields.Field) error {
	it.bnd.Apply(flds...)
	return it.halo.Synchronize(ctx, flds...)
}

/*
ComputeDt returns the step size that brings the global Courant number of the
committed velocity to the CFL limit, capped by DtMax and by the stability
limit of every operator. A non-finite Courant number or a step size below
DtMin is a divergence error.
*/
func (it *Integrator) ComputeDt(ctx context.Context, dt float64) (newDt float64, err error) {
	var cfl, limit float64
	if cfl, err = it.CFL(ctx, dt); err != nil {
		return
	}
	if !utils.IsFinite(cfl) {
		return 0, fmt.Errorf("%w: courant number is %g", types.ErrDivergence, cfl)
	}
	newDt = it.DtMax
	if cfl > 0 {
		newDt = math.Min(newDt, dt*it.State.CFLLimit/cfl)
	}
	limit = math.Inf(1)
	for _, lim := range it.limiters {
		limit = math.Min(limit, lim.MaxTimeStep(it.fs))
	}
	if limit, err = parallel.AllReduceScalar(ctx, it.comm, parallel.OpMin, limit); err != nil {
		return
	}
	newDt = math.Min(newDt, limit)
	if newDt < it.DtMin {
		return 0, fmt.Errorf("%w: time step %g below the minimum %g at courant number %g",
			types.ErrDivergence, newDt, it.DtMin, cfl)
	}
	return
}

// LimitDt lowers the proposed step size of a fresh state to what the
// committed fields allow
func (it *Integrator) LimitDt(ctx context.Context) (err error) {
	var newDt float64
	if newDt, err = it.ComputeDt(ctx, it.State.Dt); err != nil {
		return
	}
	it.State.Dt = math.Min(it.State.Dt, newDt)
	return
}

// CFL is the largest Courant number over all ranks for step size dt,
// with the velocity interpolated to the cell centres
func (it *Integrator) CFL(ctx context.Context, dt float64) (float64, error) {
	var (
		g          = it.g
		ii, jj, kk = g.Strides()
		u, v, w    = it.fs.Velocity()
		cflMax     float64
	)
	g.Interior(func(i, j, k, ijk int) {
		c := (math.Abs(0.5*(u.Data[ijk]+u.Data[ijk+ii]))*g.DXI +
			math.Abs(0.5*(v.Data[ijk]+v.Data[ijk+jj]))*g.DYI +
			math.Abs(0.5*(w.Data[ijk]+w.Data[ijk+kk]))*g.DZI[k]) * dt
		if c > cflMax || math.IsNaN(c) {
			cflMax = c
		}
	})
	return parallel.AllReduceScalar(ctx, it.comm, parallel.OpMax, cflMax)
}
