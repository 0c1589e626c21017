package pres

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/halo"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
)

type rankSetup struct {
	comm parallel.Communicator
	g    *grid.Grid
	ex   *halo.Exchanger
	s    *Solver
}

func runRanks(t *testing.T, npx, npy int, gp InputParameters.GridParams,
	fn func(ctx context.Context, r *rankSetup) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	w := parallel.NewLocalWorld(npx * npy)
	err := w.Run(ctx, func(ctx context.Context, comm parallel.Communicator) error {
		topo, err := parallel.NewTopology(npx, npy, comm.Rank())
		if err != nil {
			return err
		}
		g, err := grid.New(gp, 1, topo)
		if err != nil {
			return err
		}
		ex := halo.New(g, topo, comm)
		return fn(ctx, &rankSetup{
			comm: comm, g: g, ex: ex,
			s: New(types.Pres_Spectral2, g, comm, ex),
		})
	})
	require.NoError(t, err)
}

// roughField is an arbitrary smooth-free pattern that only depends on global indices
func roughField(g *grid.Grid, f *fields.Field, phase float64) {
	g.Interior(func(i, j, k, ijk int) {
		ig, jg := g.Global(i, j)
		f.Data[ijk] = math.Sin(0.37*float64(ig*ig)+1.3*float64(jg)+2.9*float64(k)+phase) +
			0.5*math.Cos(float64(ig*jg+k*k)+phase)
	})
}

func TestSolveTridiagonal(t *testing.T) {
	{ // Test against a known solution
		var (
			a   = []float64{0, 1, 1, 1}
			b   = []float64{-2, -3, -3, -2}
			c   = []float64{1, 1, 1, 0}
			x   = []complex128{1, complex(2, 1), -1, 0.5}
			d   = make([]complex128, 4)
			gam = make([]float64, 4)
		)
		for k := range x {
			d[k] = complex(b[k], 0) * x[k]
			if k > 0 {
				d[k] += complex(a[k], 0) * x[k-1]
			}
			if k < 3 {
				d[k] += complex(c[k], 0) * x[k+1]
			}
		}
		require.NoError(t, solveTridiagonal(a, b, c, d, gam))
		for k := range x {
			assert.InDelta(t, 0., cmplx.Abs(d[k]-x[k]), 1.e-13)
		}
	}
	{ // Test against a dense solve of a vertical Poisson column
		var (
			n          = 12
			a, b, c    = make([]float64, n), make([]float64, n), make([]float64, n)
			d          = make([]complex128, n)
			gam        = make([]float64, n)
			A          = mat.NewDense(n, n, nil)
			rhsR, rhsI = mat.NewVecDense(n, nil), mat.NewVecDense(n, nil)
		)
		for k := 0; k < n; k++ {
			dzi := 1. / (1. + 0.1*float64(k))
			if k > 0 {
				a[k] = dzi
				A.Set(k, k-1, a[k])
			}
			if k < n-1 {
				c[k] = dzi
				A.Set(k, k+1, c[k])
			}
			b[k] = -a[k] - c[k] - 0.3
			A.Set(k, k, b[k])
			d[k] = complex(math.Sin(float64(k)), math.Cos(2*float64(k)))
			rhsR.SetVec(k, real(d[k]))
			rhsI.SetVec(k, imag(d[k]))
		}
		var xR, xI mat.VecDense
		require.NoError(t, xR.SolveVec(A, rhsR))
		require.NoError(t, xI.SolveVec(A, rhsI))
		require.NoError(t, solveTridiagonal(a, b, c, d, gam))
		for k := 0; k < n; k++ {
			assert.InDelta(t, xR.AtVec(k), real(d[k]), 1.e-12)
			assert.InDelta(t, xI.AtVec(k), imag(d[k]), 1.e-12)
		}
	}
	{ // Test zero and vanishing pivots are reported
		gam := make([]float64, 2)
		err := solveTridiagonal([]float64{0, 1}, []float64{0, 1}, []float64{1, 0}, make([]complex128, 2), gam)
		assert.True(t, errors.Is(err, types.ErrSingularSystem))
		err = solveTridiagonal([]float64{0, 1}, []float64{1, 1}, []float64{1, 0}, make([]complex128, 2), gam)
		assert.True(t, errors.Is(err, types.ErrSingularSystem))
		assert.Contains(t, err.Error(), "row 1")
		err = solveTridiagonal([]float64{0}, []float64{math.NaN()}, []float64{0}, make([]complex128, 1), gam)
		assert.True(t, errors.Is(err, types.ErrSingularSystem))
	}
}

func TestTranspose(t *testing.T) {
	gp := InputParameters.GridParams{ITot: 7, JTot: 5, KTot: 4, XSize: 1, YSize: 1, ZSize: 1}
	value := func(i, j, k int) complex128 {
		return complex(float64(i+10*j+100*k), -float64(k))
	}
	for _, dec := range [][2]int{{1, 1}, {2, 2}, {3, 2}, {1, 3}} {
		runRanks(t, dec[0], dec[1], gp, func(ctx context.Context, r *rankSetup) error {
			var (
				tr = newTransposer(r.g, r.comm)
				zp = make([]complex128, tr.zSize())
				xp = make([]complex128, tr.xSize())
				yp = make([]complex128, tr.ySize())
				g  = r.g
			)
			for k := 0; k < g.KTot; k++ {
				for j := 0; j < g.JMax; j++ {
					for i := 0; i < g.IMax; i++ {
						zp[i+j*g.IMax+k*g.IMax*g.JMax] = value(i+g.IOffset, j+g.JOffset, k)
					}
				}
			}
			orig := append([]complex128(nil), zp...)
			if err := tr.zToX(ctx, zp, xp); err != nil {
				return err
			}
			{ // Test the x pencil holds complete x lines
				k0, _ := tr.kx.GetBucketRange(tr.mx)
				for k := 0; k < tr.nkx; k++ {
					for j := 0; j < g.JMax; j++ {
						for i := 0; i < g.ITot; i++ {
							assert.Equal(t, value(i, j+g.JOffset, k+k0), xp[i+j*g.ITot+k*g.ITot*g.JMax])
						}
					}
				}
			}
			if err := tr.xToY(ctx, xp, yp); err != nil {
				return err
			}
			{ // Test the y pencil holds complete y lines
				k0, _ := tr.kx.GetBucketRange(tr.mx)
				i0, _ := tr.iy.GetBucketRange(tr.my)
				for k := 0; k < tr.nkx; k++ {
					for j := 0; j < g.JTot; j++ {
						for i := 0; i < tr.niy; i++ {
							assert.Equal(t, value(i+i0, j, k+k0), yp[i+j*tr.niy+k*tr.niy*g.JTot])
						}
					}
				}
			}
			for i := range xp {
				xp[i] = 0
			}
			for i := range zp {
				zp[i] = 0
			}
			if err := tr.yToX(ctx, yp, xp); err != nil {
				return err
			}
			if err := tr.xToZ(ctx, xp, zp); err != nil {
				return err
			}
			{ // Test the round trip is exact
				assert.Equal(t, orig, zp, "decomposition %v", dec)
			}
			return nil
		})
	}
}

func TestProject(t *testing.T) {
	gp := InputParameters.GridParams{
		ITot: 8, JTot: 6, KTot: 5, XSize: 800, YSize: 600, ZSize: 400,
		Z: []float64{20, 70, 140, 240, 350},
	}
	const dt = 2.
	{ // Test the divergence vanishes after projection, on any decomposition
		var (
			mu       sync.Mutex
			profiles = make(map[[2]int]map[[3]int]float64)
		)
		for _, dec := range [][2]int{{1, 1}, {2, 2}, {2, 3}} {
			dec := dec
			runRanks(t, dec[0], dec[1], gp, func(ctx context.Context, r *rankSetup) error {
				var (
					g        = r.g
					u        = fields.NewField("u", fields.U, g)
					v        = fields.NewField("v", fields.V, g)
					w        = fields.NewField("w", fields.W, g)
					p        = fields.NewField("p", fields.Pressure, g)
					_, _, kk = g.Strides()
				)
				roughField(g, u, 0)
				roughField(g, v, 1)
				roughField(g, w, 2)
				g.Interior(func(i, j, k, ijk int) {
					if k == g.KStart {
						w.Data[ijk] = 0
					}
					if k == g.KEnd-1 {
						w.Data[ijk+kk] = 0
					}
				})
				if err := r.ex.Synchronize(ctx, u, v, w); err != nil {
					return err
				}
				before, err := r.s.MaxDivergence(ctx, u, v, w)
				if err != nil {
					return err
				}
				assert.Greater(t, before, 1.e-3)
				if err = r.s.Project(ctx, u, v, w, p, dt); err != nil {
					return err
				}
				if err = r.ex.Synchronize(ctx, u, v, w); err != nil {
					return err
				}
				after, err := r.s.MaxDivergence(ctx, u, v, w)
				if err != nil {
					return err
				}
				assert.Less(t, after, 1.e-12*before*1.e3, "decomposition %v", dec)
				// the second projection reuses the workspace and finds nothing to remove
				ps := r.s.sys
				if err = r.s.Project(ctx, u, v, w, p, dt); err != nil {
					return err
				}
				assert.Same(t, ps, r.s.sys)
				mu.Lock()
				defer mu.Unlock()
				if profiles[dec] == nil {
					profiles[dec] = make(map[[3]int]float64)
				}
				g.Interior(func(i, j, k, ijk int) {
					ig, jg := g.Global(i, j)
					assert.InDelta(t, 0., p.Data[ijk], 1.e-9)
					profiles[dec][[3]int{ig, jg, k}] = u.Data[ijk]
				})
				return nil
			})
		}
		{ // Test the projected field does not depend on the decomposition
			ref := profiles[[2]int{1, 1}]
			require.Len(t, ref, gp.ITot*gp.JTot*gp.KTot)
			for dec, prof := range profiles {
				for key, val := range prof {
					assert.InDelta(t, ref[key], val, 1.e-10, "decomposition %v", dec)
				}
			}
		}
	}
}

func TestProjectSingular(t *testing.T) {
	gp := InputParameters.GridParams{ITot: 8, JTot: 6, KTot: 5, XSize: 800, YSize: 600, ZSize: 400}
	errs := make([]error, 2)
	runRanks(t, 2, 1, gp, func(ctx context.Context, r *rankSetup) error {
		var (
			g = r.g
			u = fields.NewField("u", fields.U, g)
			v = fields.NewField("v", fields.V, g)
			w = fields.NewField("w", fields.W, g)
			p = fields.NewField("p", fields.Pressure, g)
		)
		roughField(g, u, 0)
		roughField(g, v, 1)
		if err := r.ex.Synchronize(ctx, u, v, w); err != nil {
			return err
		}
		if r.comm.Rank() == 1 {
			r.s.system().bz[0] = math.NaN()
		}
		errs[r.comm.Rank()] = r.s.Project(ctx, u, v, w, p, 1)
		// all ranks left the solve together and keep communicating
		return r.ex.Synchronize(ctx, u, v, w)
	})
	{ // Test a pivot failure on one rank fails the projection on every rank
		for rank, err := range errs {
			assert.True(t, errors.Is(err, types.ErrSingularSystem), "rank %d: %v", rank, err)
		}
		assert.Contains(t, errs[0].Error(), "another rank")
		assert.Contains(t, errs[1].Error(), "pivot NaN in row 0")
	}
}

func TestProjectIdempotent(t *testing.T) {
	gp := InputParameters.GridParams{ITot: 6, JTot: 4, KTot: 6, XSize: 6, YSize: 4, ZSize: 3}
	runRanks(t, 2, 1, gp, func(ctx context.Context, r *rankSetup) error {
		var (
			g = r.g
			u = fields.NewField("u", fields.U, g)
			v = fields.NewField("v", fields.V, g)
			w = fields.NewField("w", fields.W, g)
			p = fields.NewField("p", fields.Pressure, g)
		)
		// Uniform flow plus the discrete curl of a stream function that vanishes on the walls
		psi := func(i, k int) float64 {
			return math.Sin(2.*math.Pi*g.XH[i]/g.XSize) * math.Sin(math.Pi*g.ZH[k]/g.ZSize)
		}
		g.Interior(func(i, j, k, ijk int) {
			u.Data[ijk] = 2. + (psi(i, k+1)-psi(i, k))*g.DZI[k]
			v.Data[ijk] = -1.
			w.Data[ijk] = -(psi(i+1, k) - psi(i, k)) * g.DXI
		})
		if err := r.ex.Synchronize(ctx, u, v, w); err != nil {
			return err
		}
		uu, vv, ww := append([]float64(nil), u.Data...), append([]float64(nil), v.Data...), append([]float64(nil), w.Data...)
		if err := r.s.Project(ctx, u, v, w, p, 0.5); err != nil {
			return err
		}
		g.Interior(func(i, j, k, ijk int) {
			assert.InDelta(t, uu[ijk], u.Data[ijk], 1.e-12)
			assert.InDelta(t, vv[ijk], v.Data[ijk], 1.e-12)
			assert.InDelta(t, ww[ijk], w.Data[ijk], 1.e-12)
			assert.InDelta(t, 0., p.Data[ijk], 1.e-12)
		})
		return nil
	})
}

func TestProjectAnalytic(t *testing.T) {
	const dt = 0.5
	exact := func(x, z, lx, lz float64) float64 {
		return math.Cos(2.*math.Pi*x/lx) * math.Cos(math.Pi*z/lz)
	}
	{ // Test the discrete gradient of a known pressure is removed and the pressure recovered
		gp := InputParameters.GridParams{
			ITot: 12, JTot: 4, KTot: 8, XSize: 3, YSize: 1, ZSize: 2,
			Z: []float64{0.05, 0.15, 0.3, 0.5, 0.8, 1.2, 1.6, 1.9},
		}
		runRanks(t, 3, 2, gp, func(ctx context.Context, r *rankSetup) error {
			var (
				g         = r.g
				_, jj, kk = g.Strides()
				u         = fields.NewField("u", fields.U, g)
				v         = fields.NewField("v", fields.V, g)
				w         = fields.NewField("w", fields.W, g)
				pe        = fields.NewField("pe", fields.Pressure, g)
				p         = fields.NewField("p", fields.Pressure, g)
			)
			for k := 0; k < g.KCells; k++ {
				for j := 0; j < g.JCells; j++ {
					for i := 0; i < g.ICells; i++ {
						pe.Data[g.Index(i, j, k)] = exact(g.X[i], g.Z[k], g.XSize, g.ZSize)
					}
				}
			}
			g.Interior(func(i, j, k, ijk int) {
				u.Data[ijk] = dt * (pe.Data[ijk] - pe.Data[ijk-1]) * g.DXI
				v.Data[ijk] = dt * (pe.Data[ijk] - pe.Data[ijk-jj]) * g.DYI
				if k > g.KStart {
					w.Data[ijk] = dt * (pe.Data[ijk] - pe.Data[ijk-kk]) * g.DZHI[k]
				}
			})
			if err := r.ex.Synchronize(ctx, u, v, w); err != nil {
				return err
			}
			if err := r.s.Project(ctx, u, v, w, p, dt); err != nil {
				return err
			}
			g.Interior(func(i, j, k, ijk int) {
				assert.InDelta(t, pe.Data[ijk], p.Data[ijk], 1.e-10)
				assert.InDelta(t, 0., u.Data[ijk], 1.e-10)
				assert.InDelta(t, 0., w.Data[ijk], 1.e-10)
			})
			return nil
		})
	}
	{ // Test the continuous divergence pattern gives the analytic pressure within discretization error
		gp := InputParameters.GridParams{ITot: 32, JTot: 4, KTot: 32, XSize: 1, YSize: 1, ZSize: 1}
		runRanks(t, 1, 2, gp, func(ctx context.Context, r *rankSetup) error {
			var (
				g  = r.g
				lx = g.XSize
				lz = g.ZSize
				u  = fields.NewField("u", fields.U, g)
				v  = fields.NewField("v", fields.V, g)
				w  = fields.NewField("w", fields.W, g)
				p  = fields.NewField("p", fields.Pressure, g)
			)
			g.Interior(func(i, j, k, ijk int) {
				u.Data[ijk] = -dt * 2. * math.Pi / lx * math.Sin(2.*math.Pi*g.XH[i]/lx) * math.Cos(math.Pi*g.Z[k]/lz)
				w.Data[ijk] = -dt * math.Pi / lz * math.Cos(2.*math.Pi*g.X[i]/lx) * math.Sin(math.Pi*g.ZH[k]/lz)
			})
			if err := r.ex.Synchronize(ctx, u, v, w); err != nil {
				return err
			}
			if err := r.s.Project(ctx, u, v, w, p, dt); err != nil {
				return err
			}
			g.Interior(func(i, j, k, ijk int) {
				assert.InDelta(t, exact(g.X[i], g.Z[k], lx, lz), p.Data[ijk], 0.02)
			})
			return nil
		})
	}
}

func TestProjectDisabled(t *testing.T) {
	gp := InputParameters.GridParams{ITot: 4, JTot: 4, KTot: 4, XSize: 1, YSize: 1, ZSize: 1}
	runRanks(t, 1, 1, gp, func(ctx context.Context, r *rankSetup) error {
		var (
			g = r.g
			u = fields.NewField("u", fields.U, g)
			p = fields.NewField("p", fields.Pressure, g)
		)
		roughField(g, u, 0)
		orig := append([]float64(nil), u.Data...)
		s := New(types.Pres_Disabled, g, r.comm, r.ex)
		if err := s.Project(ctx, u, u, u, p, 1); err != nil {
			return err
		}
		assert.Equal(t, orig, u.Data)
		assert.Nil(t, s.sys)
		return nil
	})
}
