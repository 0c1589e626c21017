package stats

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/timeloop"
	"github.com/SteveHuang27GitHub/microhh/types"
)

//go:embed schema.sql
var schemaSQL string

/*
Stats samples the horizontal mean and variance of every prognostic field and
the pressure at each level. The sums are reduced over all ranks, rank 0 owns
the database and writes one row per field and level into profiles, plus one
row per field with the dz weighted volume mean into timeseries.
*/
type Stats struct {
	RunID      uuid.UUID
	sampleTime float64
	g          *grid.Grid
	comm       parallel.Communicator
	db         *sql.DB // rank 0 only
}

// New opens the database on rank 0. All ranks call it collectively and fail
// together if rank 0 cannot open the file.
func New(ctx context.Context, sampleTime float64, path string, runID uuid.UUID,
	g *grid.Grid, comm parallel.Communicator) (s *Stats, err error) {
	var (
		openErr error
		failed  bool
	)
	if sampleTime <= 0 {
		return nil, fmt.Errorf("%w: stats sample time must be positive", types.ErrConfiguration)
	}
	s = &Stats{RunID: runID, sampleTime: sampleTime, g: g, comm: comm}
	if comm.Rank() == 0 {
		s.db, openErr = openDB(path)
	}
	if failed, err = parallel.AgreeOnFailure(ctx, comm, openErr != nil); err != nil {
		return nil, err
	}
	if failed {
		if openErr != nil {
			return nil, fmt.Errorf("%w: stats database %s: %v", types.ErrConfiguration, path, openErr)
		}
		return nil, fmt.Errorf("%w: stats database could not be opened on rank 0", types.ErrConfiguration)
	}
	return
}

func openDB(path string) (db *sql.DB, err error) {
	if db, err = sql.Open("sqlite", path); err != nil {
		return
	}
	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, err
	}
	return
}

func (s *Stats) SampleTime() float64 { return s.sampleTime }

func (s *Stats) Close() (err error) {
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	return
}

// OnStepCompleted is collective over all ranks
func (s *Stats) OnStepCompleted(ctx context.Context, fs *fields.FieldStore, state timeloop.TimeState) (err error) {
	var (
		g    = s.g
		kc   = g.KCells
		flds = make([]*fields.Field, 0, fs.NumPrognostic()+1)
		mean []float64
		vari []float64
	)
	flds = append(append(flds, fs.Cur...), fs.P)
	if mean, err = s.means(ctx, fs, flds); err != nil {
		return
	}
	vari = make([]float64, len(flds)*kc)
	for n, f := range flds {
		var (
			data = f.Data
			prof = vari[n*kc : (n+1)*kc]
			m    = mean[n*kc : (n+1)*kc]
		)
		g.Interior(func(i, j, k, ijk int) {
			d := data[ijk] - m[k]
			prof[k] += d * d
		})
	}
	if err = s.comm.AllReduce(ctx, parallel.OpSum, vari); err != nil {
		return
	}
	npoints := float64(g.ITot * g.JTot)
	for n := range vari {
		vari[n] /= npoints
	}
	if s.db == nil {
		return
	}
	return s.write(ctx, flds, mean, vari, state)
}

func (s *Stats) means(ctx context.Context, fs *fields.FieldStore, flds []*fields.Field) (mean []float64, err error) {
	var (
		kc = s.g.KCells
	)
	mean = make([]float64, len(flds)*kc)
	for n, f := range flds {
		copy(mean[n*kc:], fs.ProfileSum(f))
	}
	if err = s.comm.AllReduce(ctx, parallel.OpSum, mean); err != nil {
		return
	}
	npoints := float64(s.g.ITot * s.g.JTot)
	for n := range mean {
		mean[n] /= npoints
	}
	return
}

func (s *Stats) write(ctx context.Context, flds []*fields.Field, mean, vari []float64,
	state timeloop.TimeState) (err error) {
	var (
		g     = s.g
		kc    = g.KCells
		runID = s.RunID.String()
		tx    *sql.Tx
	)
	if tx, err = s.db.BeginTx(ctx, nil); err != nil {
		return fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	const (
		profileQuery = `
		INSERT INTO profiles (run_id, step, time, field, k, z, mean, variance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		seriesQuery = `
		INSERT INTO timeseries (run_id, step, time, dt, field, mean, variance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	)
	for n, f := range flds {
		var (
			m, v = mean[n*kc : (n+1)*kc], vari[n*kc : (n+1)*kc]
			z    = g.Z
		)
		if f.Kind == fields.W {
			z = g.ZH
		}
		for k := g.KStart; k < g.KEnd; k++ {
			if _, err = tx.ExecContext(ctx, profileQuery, runID, state.Step, state.Time,
				f.Name, k-g.KStart, z[k], m[k], v[k]); err != nil {
				return fmt.Errorf("failed to insert profile of %s: %w", f.Name, err)
			}
		}
		vm, vv := s.volumeMean(m, v)
		if _, err = tx.ExecContext(ctx, seriesQuery, runID, state.Step, state.Time, state.Dt,
			f.Name, vm, vv); err != nil {
			return fmt.Errorf("failed to insert time series of %s: %w", f.Name, err)
		}
	}
	return tx.Commit()
}

// volumeMean combines level means and variances into the domain mean and
// variance, weighted by the layer depth
func (s *Stats) volumeMean(mean, vari []float64) (vm, vv float64) {
	var (
		g = s.g
	)
	for k := g.KStart; k < g.KEnd; k++ {
		vm += mean[k] * g.DZ[k]
	}
	vm /= g.ZSize
	for k := g.KStart; k < g.KEnd; k++ {
		d := mean[k] - vm
		vv += (vari[k] + d*d) * g.DZ[k]
	}
	vv /= g.ZSize
	return
}
