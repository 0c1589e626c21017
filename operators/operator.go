package operators

import (
	"context"
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
)

/*
Operator adds the contribution of one term of the governing equations to the
tendencies of a FieldStore. It reads Cur, interior plus halo, writes only
interior cells of Tend and keeps no state between calls. The order in which
operators run does not change the summed tendency.
*/
type Operator interface {
	Name() string
	ComputeTendency(fs *fields.FieldStore)
}

// Initializer is implemented by operators that derive reference data from
// the initial state, e.g. mean profiles. All ranks call Init collectively.
type Initializer interface {
	Init(ctx context.Context, fs *fields.FieldStore) error
}

// StabilityLimiter is implemented by operators with an explicit time step
// restriction of their own, next to the advective CFL limit
type StabilityLimiter interface {
	MaxTimeStep(fs *fields.FieldStore) float64
}

// Build instantiates the configured variant of every operator family, once,
// in the order advection, diffusion, thermodynamics, force, buffer. Disabled
// families are left out. The boundary is returned separately because it is
// applied to fields, not accumulated.
func Build(sch types.Schemes, ip *InputParameters.LESParameters, g *grid.Grid,
	comm parallel.Communicator) (ops []Operator, bnd *Boundary, err error) {
	switch sch.Advec {
	case types.Advec_2:
		ops = append(ops, NewAdvection(g, 2))
	case types.Advec_2i4:
		if g.GC < 2 {
			err = fmt.Errorf("%w: advection %s needs two ghost cells, grid has %d",
				types.ErrConfiguration, sch.Advec, g.GC)
			return
		}
		ops = append(ops, NewAdvection(g, 4))
	}
	if sch.Diff == types.Diff_Constant2 {
		ops = append(ops, NewDiffusion(g, ip.Diff.Visc, ip.Diff.SVisc, ip.Diff.DNMax))
	}
	if sch.Thermo != types.Thermo_Disabled {
		var th *Thermo
		if th, err = NewThermo(sch.Thermo, g, comm, ip.Thermo.ThRef, ip.Thermo.Gravity); err != nil {
			return
		}
		th.PBot = ip.Thermo.PBot
		ops = append(ops, th)
	}
	if sch.Force == types.Force_Geostrophic {
		ops = append(ops, NewForce(g, ip.Force.FC, ip.Force.UG, ip.Force.VG))
	}
	if sch.Buffer == types.Switch_On {
		if ip.Buffer.Sigma <= 0 {
			err = fmt.Errorf("%w: buffer needs a positive damping coefficient sigma", types.ErrConfiguration)
			return
		}
		ops = append(ops, NewBuffer(g, comm, ip.Buffer.ZStart, ip.Buffer.Sigma, ip.Buffer.Beta))
	}
	bnd, err = NewBoundary(sch.Boundary, g, ip.Boundary)
	return
}
