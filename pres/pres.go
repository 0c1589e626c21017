package pres

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/halo"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
)

/*
Solver projects a provisional velocity onto the discretely divergence free
space. The pressure Poisson equation is transformed along both periodic
horizontal axes, which leaves one tridiagonal system in the vertical per
horizontal wavenumber pair. The vertical walls carry w = 0 and a zero normal
pressure gradient.
*/
type Solver struct {
	Kind types.PresType
	g    *grid.Grid
	comm parallel.Communicator
	halo *halo.Exchanger
	sys  *poissonSystem
}

func New(kind types.PresType, g *grid.Grid, comm parallel.Communicator, ex *halo.Exchanger) *Solver {
	return &Solver{Kind: kind, g: g, comm: comm, halo: ex}
}

// poissonSystem is the workspace of a solve. Its shape only depends on the
// grid, so it is built on the first projection and reused.
type poissonSystem struct {
	tr         *transposer
	zp, xp, yp []complex128

	fftX, fftY       *fourier.CmplxFFT
	lineX, specX     []complex128
	lineY, specY     []complex128
	normX, normY     float64
	lambdaX, lambdaY []float64 // modified wavenumbers of the second order Laplacian
	a, c, bz         []float64 // vertical operator, bz = -(a+c)
	b, cw, gam       []float64
	col              []complex128
}

func (s *Solver) system() *poissonSystem {
	if s.sys != nil {
		return s.sys
	}
	var (
		g  = s.g
		tr = newTransposer(g, s.comm)
		ps = &poissonSystem{tr: tr}
	)
	ps.zp = make([]complex128, tr.zSize())
	ps.xp = make([]complex128, tr.xSize())
	ps.yp = make([]complex128, tr.ySize())

	ps.fftX, ps.fftY = fourier.NewCmplxFFT(g.ITot), fourier.NewCmplxFFT(g.JTot)
	ps.lineX, ps.specX = make([]complex128, g.ITot), make([]complex128, g.ITot)
	ps.lineY, ps.specY = make([]complex128, g.JTot), make([]complex128, g.JTot)
	ps.normX = inverseScale(ps.fftX, ps.lineX, ps.specX)
	ps.normY = inverseScale(ps.fftY, ps.lineY, ps.specY)

	ps.lambdaX = modifiedWavenumbers(g.ITot, g.DXI)
	ps.lambdaY = modifiedWavenumbers(g.JTot, g.DYI)

	kt := g.KTot
	ps.a, ps.c, ps.bz = make([]float64, kt), make([]float64, kt), make([]float64, kt)
	ps.b, ps.cw, ps.gam = make([]float64, kt), make([]float64, kt), make([]float64, kt)
	ps.col = make([]complex128, kt)
	for k := 0; k < kt; k++ {
		kg := k + g.KStart
		ps.a[k] = g.DZI[kg] * g.DZHI[kg]
		ps.c[k] = g.DZI[kg] * g.DZHI[kg+1]
	}
	// No flux through the walls
	ps.a[0], ps.c[kt-1] = 0, 0
	for k := 0; k < kt; k++ {
		ps.bz[k] = -(ps.a[k] + ps.c[k])
	}
	s.sys = ps
	return ps
}

// inverseScale returns the factor that makes Sequence the exact inverse of
// Coefficients, measured on a unit impulse
func inverseScale(fft *fourier.CmplxFFT, line, spec []complex128) float64 {
	for i := range line {
		line[i] = 0
	}
	line[0] = 1
	fft.Coefficients(spec, line)
	fft.Sequence(line, spec)
	return 1. / real(line[0])
}

func modifiedWavenumbers(n int, dxi float64) (lambda []float64) {
	lambda = make([]float64, n)
	for m := 0; m < n; m++ {
		lambda[m] = 2. * (math.Cos(2.*math.Pi*float64(m)/float64(n)) - 1.) * dxi * dxi
	}
	return
}

func (s *Solver) Close() {
	s.sys = nil
}

/*
Project removes the divergence from u, v, w, which must have valid halos and
w = 0 on the walls. On return p holds the pressure correction including its
ghost cells and the velocity interior is divergence free; the velocity halos
are stale. A pivot failure is agreed between all ranks before any of them
returns, so no rank leaves the collective sequence early.
*/
func (s *Solver) Project(ctx context.Context, u, v, w, p *fields.Field, dt float64) (err error) {
	if s.Kind == types.Pres_Disabled {
		return
	}
	var (
		g  = s.g
		ps = s.system()
		ij = g.IMax * g.JMax
	)
	// Right hand side, in z pencils
	idt := 1. / dt
	g.Interior(func(i, j, k, ijk int) {
		ps.zp[(i-g.IStart)+(j-g.JStart)*g.IMax+(k-g.KStart)*ij] =
			complex(s.divergenceAt(u, v, w, k, ijk)*idt, 0)
	})

	if err = s.forward(ctx, ps); err != nil {
		return fmt.Errorf("pressure forward transform: %w", err)
	}

	solveErr := s.solveColumns(ps)
	failed, err := parallel.AgreeOnFailure(ctx, s.comm, solveErr != nil)
	if err != nil {
		return fmt.Errorf("pressure solve agreement: %w", err)
	}
	if failed {
		if solveErr == nil {
			solveErr = fmt.Errorf("%w: pivot failure on another rank", types.ErrSingularSystem)
		}
		return fmt.Errorf("pressure solve: %w", solveErr)
	}

	if err = s.inverse(ctx, ps); err != nil {
		return fmt.Errorf("pressure inverse transform: %w", err)
	}
	scale := ps.normX * ps.normY
	g.Interior(func(i, j, k, ijk int) {
		p.Data[ijk] = scale * real(ps.zp[(i-g.IStart)+(j-g.JStart)*g.IMax+(k-g.KStart)*ij])
	})
	s.neumannGhosts(p)
	if err = s.halo.Synchronize(ctx, p); err != nil {
		return fmt.Errorf("pressure halo: %w", err)
	}
	s.subtractGradient(u, v, w, p, dt)
	return
}

func (s *Solver) forward(ctx context.Context, ps *poissonSystem) (err error) {
	tr := ps.tr
	if err = tr.zToX(ctx, ps.zp, ps.xp); err != nil {
		return
	}
	s.transformX(ps, false)
	if err = tr.xToY(ctx, ps.xp, ps.yp); err != nil {
		return
	}
	s.transformY(ps, false)
	if err = tr.yToX(ctx, ps.yp, ps.xp); err != nil {
		return
	}
	return tr.xToZ(ctx, ps.xp, ps.zp)
}

func (s *Solver) inverse(ctx context.Context, ps *poissonSystem) (err error) {
	tr := ps.tr
	if err = tr.zToX(ctx, ps.zp, ps.xp); err != nil {
		return
	}
	if err = tr.xToY(ctx, ps.xp, ps.yp); err != nil {
		return
	}
	s.transformY(ps, true)
	if err = tr.yToX(ctx, ps.yp, ps.xp); err != nil {
		return
	}
	s.transformX(ps, true)
	return tr.xToZ(ctx, ps.xp, ps.zp)
}

// transformX runs over the contiguous x lines of the x pencil
func (s *Solver) transformX(ps *poissonSystem, inverse bool) {
	var (
		tr = ps.tr
	)
	for k := 0; k < tr.nkx; k++ {
		for j := 0; j < tr.jmax; j++ {
			line := ps.xp[j*tr.itot+k*tr.itot*tr.jmax:][:tr.itot]
			copy(ps.lineX, line)
			if inverse {
				ps.fftX.Sequence(ps.specX, ps.lineX)
			} else {
				ps.fftX.Coefficients(ps.specX, ps.lineX)
			}
			copy(line, ps.specX)
		}
	}
}

// transformY gathers the strided y lines of the y pencil
func (s *Solver) transformY(ps *poissonSystem, inverse bool) {
	var (
		tr = ps.tr
	)
	for k := 0; k < tr.nkx; k++ {
		for i := 0; i < tr.niy; i++ {
			base := i + k*tr.niy*tr.jtot
			for j := 0; j < tr.jtot; j++ {
				ps.lineY[j] = ps.yp[base+j*tr.niy]
			}
			if inverse {
				ps.fftY.Sequence(ps.specY, ps.lineY)
			} else {
				ps.fftY.Coefficients(ps.specY, ps.lineY)
			}
			for j := 0; j < tr.jtot; j++ {
				ps.yp[base+j*tr.niy] = ps.specY[j]
			}
		}
	}
}

// solveColumns solves the vertical system of every wavenumber pair owned in
// the z pencil. It stops at the first pivot failure.
func (s *Solver) solveColumns(ps *poissonSystem) error {
	var (
		g  = s.g
		ij = g.IMax * g.JMax
		kt = g.KTot
	)
	for j := 0; j < g.JMax; j++ {
		my := g.JOffset + j
		for i := 0; i < g.IMax; i++ {
			mx := g.IOffset + i
			lambda := ps.lambdaX[mx] + ps.lambdaY[my]
			for k := 0; k < kt; k++ {
				ps.b[k] = ps.bz[k] + lambda
				ps.col[k] = ps.zp[i+j*g.IMax+k*ij]
			}
			copy(ps.cw, ps.c)
			if mx == 0 && my == 0 {
				// The mean mode is only defined up to a constant: pin the bottom value
				ps.b[0], ps.cw[0], ps.col[0] = 1, 0, 0
			}
			if err := solveTridiagonal(ps.a, ps.b, ps.cw, ps.col, ps.gam); err != nil {
				return fmt.Errorf("mode (%d, %d): %w", mx, my, err)
			}
			for k := 0; k < kt; k++ {
				ps.zp[i+j*g.IMax+k*ij] = ps.col[k]
			}
		}
	}
	return nil
}

func (s *Solver) neumannGhosts(p *fields.Field) {
	var (
		g = s.g
	)
	for j := g.JStart; j < g.JEnd; j++ {
		for i := g.IStart; i < g.IEnd; i++ {
			for n := 0; n < g.GC; n++ {
				p.Data[g.Index(i, j, g.KStart-1-n)] = p.Data[g.Index(i, j, g.KStart+n)]
				p.Data[g.Index(i, j, g.KEnd+n)] = p.Data[g.Index(i, j, g.KEnd-1-n)]
			}
		}
	}
}

func (s *Solver) subtractGradient(u, v, w, p *fields.Field, dt float64) {
	var (
		g         = s.g
		_, jj, kk = g.Strides()
		dxi, dyi  = g.DXI, g.DYI
	)
	g.Interior(func(i, j, k, ijk int) {
		u.Data[ijk] -= dt * (p.Data[ijk] - p.Data[ijk-1]) * dxi
		v.Data[ijk] -= dt * (p.Data[ijk] - p.Data[ijk-jj]) * dyi
		// w on the bottom wall stays put
		if k > g.KStart {
			w.Data[ijk] -= dt * (p.Data[ijk] - p.Data[ijk-kk]) * g.DZHI[k]
		}
	})
}

func (s *Solver) divergenceAt(u, v, w *fields.Field, k, ijk int) float64 {
	var (
		g         = s.g
		_, jj, kk = g.Strides()
	)
	return (u.Data[ijk+1]-u.Data[ijk])*g.DXI +
		(v.Data[ijk+jj]-v.Data[ijk])*g.DYI +
		(w.Data[ijk+kk]-w.Data[ijk])*g.DZI[k]
}

// MaxDivergence is the largest absolute divergence over all ranks
func (s *Solver) MaxDivergence(ctx context.Context, u, v, w *fields.Field) (float64, error) {
	var divMax float64
	s.g.Interior(func(i, j, k, ijk int) {
		if d := math.Abs(s.divergenceAt(u, v, w, k, ijk)); d > divMax || math.IsNaN(d) {
			divMax = d
		}
	})
	return parallel.AllReduceScalar(ctx, s.comm, parallel.OpMax, divMax)
}
