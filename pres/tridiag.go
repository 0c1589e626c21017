package pres

import (
	"fmt"
	"math"

	"github.com/SteveHuang27GitHub/microhh/types"
)

// Relative pivot size below which a tridiagonal system counts as singular
const pivotTolerance = 1.e-12

/*
solveTridiagonal solves the system with sub diagonal a, diagonal b and super
diagonal c for a complex right hand side, overwriting d with the solution.
a[0] and c[n-1] are not referenced. gam is scratch of length n.
*/
func solveTridiagonal(a, b, c []float64, d []complex128, gam []float64) (err error) {
	var (
		n    = len(d)
		beta float64
	)
	if n == 0 {
		return
	}
	beta = b[0]
	if err = checkPivot(beta, 0, math.Abs(b[0])+math.Abs(c0(c, n))); err != nil {
		return
	}
	d[0] /= complex(beta, 0)
	for k := 1; k < n; k++ {
		gam[k] = c[k-1] / beta
		beta = b[k] - a[k]*gam[k]
		scale := math.Abs(a[k]) + math.Abs(b[k])
		if k < n-1 {
			scale += math.Abs(c[k])
		}
		if err = checkPivot(beta, k, scale); err != nil {
			return
		}
		d[k] = (d[k] - complex(a[k], 0)*d[k-1]) / complex(beta, 0)
	}
	for k := n - 2; k >= 0; k-- {
		d[k] -= complex(gam[k+1], 0) * d[k+1]
	}
	return
}

func c0(c []float64, n int) float64 {
	if n > 1 {
		return c[0]
	}
	return 0
}

func checkPivot(beta float64, row int, scale float64) error {
	if math.IsNaN(beta) || math.IsInf(beta, 0) || math.Abs(beta) <= pivotTolerance*scale || beta == 0 {
		return fmt.Errorf("%w: pivot %g in row %d", types.ErrSingularSystem, beta, row)
	}
	return nil
}
