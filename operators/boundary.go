package operators

import (
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/types"
)

type scalarBCType uint8

const (
	bcNeumann scalarBCType = iota
	bcDirichlet
)

type scalarBC struct {
	botType, topType scalarBCType
	bot, top         float64 // wall value or wall gradient
}

/*
Boundary sets the vertical ghost cells of the bottom and top walls. The walls
are impermeable, w is zero on them. With noslip the horizontal velocity
vanishes on the walls, with freeslip its vertical gradient does. Scalars take
a value (dirichlet) or a gradient (neumann) at each wall, the default is a
zero gradient. Ghost cells are set on every column including the horizontal
halo.
*/
type Boundary struct {
	Kind    types.BoundaryType
	g       *grid.Grid
	scalars map[string]scalarBC
}

func NewBoundary(kind types.BoundaryType, g *grid.Grid, bp InputParameters.BoundaryParams) (b *Boundary, err error) {
	b = &Boundary{Kind: kind, g: g, scalars: make(map[string]scalarBC)}
	parse := func(label string) (scalarBCType, error) {
		switch label {
		case "", "neumann":
			return bcNeumann, nil
		case "dirichlet":
			return bcDirichlet, nil
		}
		return 0, fmt.Errorf("%w: scalar boundary type must be dirichlet or neumann, have %q",
			types.ErrConfiguration, label)
	}
	names := make(map[string]bool)
	for _, m := range []map[string]string{bp.SBotType, bp.STopType} {
		for name := range m {
			names[name] = true
		}
	}
	for _, m := range []map[string]float64{bp.SBot, bp.STop} {
		for name := range m {
			names[name] = true
		}
	}
	for name := range names {
		var bc scalarBC
		if bc.botType, err = parse(bp.SBotType[name]); err != nil {
			return nil, err
		}
		if bc.topType, err = parse(bp.STopType[name]); err != nil {
			return nil, err
		}
		bc.bot, bc.top = bp.SBot[name], bp.STop[name]
		b.scalars[name] = bc
	}
	return
}

// Apply sets the ghost cells of the given fields according to their kind
func (b *Boundary) Apply(flds ...*fields.Field) {
	for _, f := range flds {
		switch f.Kind {
		case fields.U, fields.V:
			sign := -1.
			if b.Kind == types.Boundary_FreeSlip {
				sign = 1.
			}
			b.mirror(f.Data, sign)
		case fields.W:
			b.walls(f.Data)
		case fields.Pressure:
			b.scalar(f.Data, scalarBC{})
		default:
			b.scalar(f.Data, b.scalars[f.Name])
		}
	}
}

func (b *Boundary) columns(fn func(ij int)) {
	g := b.g
	for ij := 0; ij < g.IJCells; ij++ {
		fn(ij)
	}
}

func (b *Boundary) mirror(f []float64, sign float64) {
	var (
		g = b.g
	)
	b.columns(func(ij int) {
		for n := 0; n < g.GC; n++ {
			f[ij+(g.KStart-1-n)*g.IJCells] = sign * f[ij+(g.KStart+n)*g.IJCells]
			f[ij+(g.KEnd+n)*g.IJCells] = sign * f[ij+(g.KEnd-1-n)*g.IJCells]
		}
	})
}

func (b *Boundary) walls(w []float64) {
	var (
		g = b.g
	)
	b.columns(func(ij int) {
		w[ij+g.KStart*g.IJCells] = 0
		w[ij+g.KEnd*g.IJCells] = 0
		for n := 1; n <= g.GC; n++ {
			w[ij+(g.KStart-n)*g.IJCells] = -w[ij+(g.KStart+n)*g.IJCells]
			if g.KEnd+n < g.KCells {
				w[ij+(g.KEnd+n)*g.IJCells] = -w[ij+(g.KEnd-n)*g.IJCells]
			}
		}
	})
}

func (b *Boundary) scalar(s []float64, bc scalarBC) {
	var (
		g      = b.g
		ks, ke = g.KStart, g.KEnd
	)
	b.columns(func(ij int) {
		for n := 0; n < g.GC; n++ {
			in, gh := ij+(ks+n)*g.IJCells, ij+(ks-1-n)*g.IJCells
			if bc.botType == bcDirichlet {
				s[gh] = 2.*bc.bot - s[in]
			} else {
				s[gh] = s[in] - bc.bot*(g.Z[ks+n]-g.Z[ks-1-n])
			}
			in, gh = ij+(ke-1-n)*g.IJCells, ij+(ke+n)*g.IJCells
			if bc.topType == bcDirichlet {
				s[gh] = 2.*bc.top - s[in]
			} else {
				s[gh] = s[in] + bc.top*(g.Z[ke+n]-g.Z[ke-1-n])
			}
		}
	})
}
