package model

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/SteveHuang27GitHub/microhh/InputParameters"
	"github.com/SteveHuang27GitHub/microhh/cross"
	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/halo"
	"github.com/SteveHuang27GitHub/microhh/operators"
	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/pres"
	"github.com/SteveHuang27GitHub/microhh/stats"
	"github.com/SteveHuang27GitHub/microhh/timeloop"
	"github.com/SteveHuang27GitHub/microhh/types"
)

// PostProcessor is called collectively on every rank after a completed step
type PostProcessor interface {
	OnStepCompleted(ctx context.Context, fs *fields.FieldStore, state timeloop.TimeState) error
}

// Sampler is implemented by post-processors that run at a fixed interval of
// simulation time instead of after every step. The time loop shortens steps
// so that every sample time is hit exactly.
type Sampler interface {
	SampleTime() float64
}

type Option func(m *Model)

func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Model) { m.log = log }
}

// WithOutputDir sets the directory of checkpoints, statistics and cross sections
func WithOutputDir(dir string) Option {
	return func(m *Model) { m.outDir = dir }
}

func WithPostProcessors(pp ...PostProcessor) Option {
	return func(m *Model) { m.post = append(m.post, pp...) }
}

// WithStop makes Exec return ErrInterrupted after the step during which stop
// was closed on any rank. Every rank must be given a stop channel.
func WithStop(stop <-chan struct{}) Option {
	return func(m *Model) { m.stop = stop }
}

/*
Model owns every component of one rank. They are built by Init in dependency
order, grid, fields, operators, pressure solver, integrator and post-processing,
and released by Close in the reverse order.
*/
type Model struct {
	Params  *InputParameters.LESParameters
	Schemes types.Schemes
	RunID   uuid.UUID

	Topo      *parallel.Topology
	Grid      *grid.Grid
	Fields    *fields.FieldStore
	Operators []operators.Operator
	Boundary  *operators.Boundary
	Halo      *halo.Exchanger
	Pres      *pres.Solver
	TimeLoop  *timeloop.Integrator

	comm   parallel.Communicator
	log    logrus.FieldLogger
	outDir string
	post   []PostProcessor
	stop   <-chan struct{}
	owned  []io.Closer
}

// New validates the configuration. Every rank holds the same configuration,
// so a ConfigurationError is raised by all of them before any step runs.
func New(cfg *InputParameters.LESParameters, comm parallel.Communicator, opts ...Option) (m *Model, err error) {
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	m = &Model{
		Params: cfg,
		comm:   comm,
		log:    logrus.StandardLogger(),
		outDir: ".",
	}
	if m.Schemes, err = cfg.Schemes(); err != nil {
		return nil, err
	}
	if np := cfg.MPI.NPX * cfg.MPI.NPY; np != comm.Size() {
		return nil, fmt.Errorf("%w: process grid %dx%d needs %d ranks, have %d",
			types.ErrConfiguration, cfg.MPI.NPX, cfg.MPI.NPY, np, comm.Size())
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("rank", comm.Rank())
	return
}

func (m *Model) Init(ctx context.Context) (err error) {
	var (
		cfg = m.Params
		sch = m.Schemes
	)
	if m.RunID, err = broadcastID(ctx, m.comm, uuid.New()); err != nil {
		return
	}
	if m.Topo, err = parallel.NewTopology(cfg.MPI.NPX, cfg.MPI.NPY, m.comm.Rank()); err != nil {
		return
	}
	if m.Grid, err = grid.New(cfg.Grid, sch.Advec.HaloWidth(), m.Topo); err != nil {
		return
	}
	if m.Fields, err = fields.NewFieldStore(m.Grid, cfg.ScalarNames(sch.Thermo)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if m.Operators, m.Boundary, err = operators.Build(sch, cfg, m.Grid, m.comm); err != nil {
		return
	}
	m.Halo = halo.New(m.Grid, m.Topo, m.comm)
	m.Pres = pres.New(sch.Pres, m.Grid, m.comm, m.Halo)
	if m.TimeLoop, err = timeloop.New(cfg.Time, cfg.Advec.CFLMax, m.Fields, m.Operators,
		m.Boundary, m.Halo, m.Pres, m.comm); err != nil {
		return
	}
	if err = m.initPostProcessing(ctx); err != nil {
		return
	}
	m.printInitialization()
	return
}

func (m *Model) initPostProcessing(ctx context.Context) (err error) {
	var (
		cfg = m.Params
	)
	if m.Schemes.Stats == types.Switch_On {
		var st *stats.Stats
		path := filepath.Join(m.outDir, cfg.Stats.File)
		if st, err = stats.New(ctx, cfg.Stats.SampleTime, path, m.RunID, m.Grid, m.comm); err != nil {
			return
		}
		m.post = append(m.post, st)
		m.owned = append(m.owned, st)
	}
	if m.Schemes.Cross == types.Switch_On {
		var cr *cross.Cross
		if cr, err = cross.New(cfg.Cross, m.outDir, m.Fields.Names, m.Grid, m.comm); err != nil {
			return
		}
		m.post = append(m.post, cr)
	}
	return
}

// broadcastID returns the id of rank 0 on every rank
func broadcastID(ctx context.Context, comm parallel.Communicator, id uuid.UUID) (uuid.UUID, error) {
	vals := make([]float64, len(id))
	if comm.Rank() == 0 {
		for n, b := range id {
			vals[n] = float64(b)
		}
	}
	if err := comm.AllReduce(ctx, parallel.OpSum, vals); err != nil {
		return uuid.Nil, err
	}
	for n, v := range vals {
		id[n] = byte(v)
	}
	return id, nil
}

func (m *Model) printInitialization() {
	if m.comm.Rank() != 0 {
		return
	}
	names := make([]string, len(m.Operators))
	for n, op := range m.Operators {
		names[n] = op.Name()
	}
	m.log.WithFields(logrus.Fields{
		"run":       m.RunID.String(),
		"grid":      m.Grid.String(),
		"processes": fmt.Sprintf("%dx%d", m.Topo.NPX, m.Topo.NPY),
		"halo":      m.Grid.GC,
		"fields":    strings.Join(m.Fields.Names, ","),
	}).Info("initialized model")
	m.log.WithFields(logrus.Fields{
		"schemes":   m.Schemes.String(),
		"operators": strings.Join(names, ", "),
		"rk_order":  m.TimeLoop.RKOrder,
	}).Info("selected schemes")
}

// Close releases the components in reverse order of construction
func (m *Model) Close() (err error) {
	for n := len(m.owned) - 1; n >= 0; n-- {
		if cerr := m.owned[n].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.owned = nil
	if m.Pres != nil {
		m.Pres.Close()
	}
	return
}

// agree returns err on the failing ranks and an error of class kind on the
// others, or nil everywhere
func (m *Model) agree(ctx context.Context, err, kind error, what string) error {
	failed, aerr := parallel.AgreeOnFailure(ctx, m.comm, err != nil)
	if aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("%w: %s failed on another rank", kind, what)
	}
	return nil
}
