package cross

import (
	"context"
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/timeloop"
	"github.com/SteveHuang27GitHub/microhh/types"
)

/*
Cross writes xz cross sections at the global row JLoc as PNG heat maps, one
file per variable and sample. Every rank contributes the part of the row it
owns, the section is assembled with a sum reduction and rank 0 renders it.
*/
type Cross struct {
	sampleTime float64
	vars       []string
	jloc       int
	dir        string
	g          *grid.Grid
	comm       parallel.Communicator
}

func New(cp InputParameters.CrossParams, dir string, names []string, g *grid.Grid,
	comm parallel.Communicator) (c *Cross, err error) {
	if cp.SampleTime <= 0 {
		return nil, fmt.Errorf("%w: cross sample time must be positive", types.ErrConfiguration)
	}
	if cp.JLoc < 0 || cp.JLoc >= g.JTot {
		return nil, fmt.Errorf("%w: cross section row %d outside of [0, %d)",
			types.ErrConfiguration, cp.JLoc, g.JTot)
	}
	known := map[string]bool{"p": true}
	for _, name := range names {
		known[name] = true
	}
	for _, v := range cp.Vars {
		if !known[v] {
			return nil, fmt.Errorf("%w: cross section of unknown field %q", types.ErrConfiguration, v)
		}
	}
	c = &Cross{
		sampleTime: cp.SampleTime,
		vars:       cp.Vars,
		jloc:       cp.JLoc,
		dir:        dir,
		g:          g,
		comm:       comm,
	}
	return
}

func (c *Cross) SampleTime() float64 { return c.sampleTime }

// FileName is the image of variable name at the given step
func (c *Cross) FileName(name string, step int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.xz.%05d.%07d.png", name, c.jloc, step))
}

// OnStepCompleted is collective over all ranks
func (c *Cross) OnStepCompleted(ctx context.Context, fs *fields.FieldStore, state timeloop.TimeState) (err error) {
	for _, name := range c.vars {
		f, _ := fs.Get(name)
		var sec []float64
		if sec, err = c.section(ctx, f); err != nil {
			return
		}
		if c.comm.Rank() != 0 {
			continue
		}
		if err = c.render(f, sec, state); err != nil {
			return fmt.Errorf("cross section of %s: %w", name, err)
		}
	}
	return
}

// section returns the global xz section of f, i fastest
func (c *Cross) section(ctx context.Context, f *fields.Field) (sec []float64, err error) {
	var (
		g            = c.g
		jl, _, owner = g.YPart.GetLocalK(c.jloc)
		j            = jl + g.JStart
	)
	sec = make([]float64, g.ITot*g.KTot)
	if owner == g.Topo.MyPY {
		for k := g.KStart; k < g.KEnd; k++ {
			for i := g.IStart; i < g.IEnd; i++ {
				ig, _ := g.Global(i, j)
				sec[ig+(k-g.KStart)*g.ITot] = f.Data[g.Index(i, j, k)]
			}
		}
	}
	err = c.comm.AllReduce(ctx, parallel.OpSum, sec)
	return
}

func (c *Cross) render(f *fields.Field, sec []float64, state timeloop.TimeState) (err error) {
	var (
		g  = c.g
		xy = &sectionGrid{g: g, kind: f.Kind, data: sec}
	)
	h := plotter.NewHeatMap(xy, palette.Heat(64, 1))
	if h.Min == h.Max {
		h.Min, h.Max = h.Min-0.5, h.Max+0.5
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s at y = %g m, t = %g s", f.Name, (float64(c.jloc)+0.5)*g.DY, state.Time)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "z (m)"
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, c.FileName(f.Name, state.Step))
}

// sectionGrid is the plotter.GridXYZ view of a section, columns along x and
// rows along z at the staggered location of the field kind
type sectionGrid struct {
	g    *grid.Grid
	kind fields.Kind
	data []float64
}

func (s *sectionGrid) Dims() (c, r int) { return s.g.ITot, s.g.KTot }

func (s *sectionGrid) Z(c, r int) float64 { return s.data[c+r*s.g.ITot] }

func (s *sectionGrid) X(c int) float64 {
	if s.kind == fields.U {
		return float64(c) * s.g.DX
	}
	return (float64(c) + 0.5) * s.g.DX
}

func (s *sectionGrid) Y(r int) float64 {
	if s.kind == fields.W {
		return s.g.ZH[r+s.g.KStart]
	}
	return s.g.Z[r+s.g.KStart]
}
