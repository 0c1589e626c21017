package model

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/SteveHuang27GitHub/microhh/fields"
	"github.com/SteveHuang27GitHub/microhh/timeloop"
	"github.com/SteveHuang27GitHub/microhh/types"
)

const stateVersion = 1

// State is the checkpoint of one rank. Field arrays include the ghost cells.
type State struct {
	Version          int
	RunID            uuid.UUID
	Rank             int
	ITot, JTot, KTot int
	IMax, JMax, GC   int
	Time             timeloop.TimeState
	Names            []string
	Fields           [][]float64
	Pressure         []float64
}

// CheckpointName is the file of rank written after step
func CheckpointName(step, rank int) string {
	return fmt.Sprintf("restart.%07d.%04d.gob", step, rank)
}

// ExportState returns a deep copy of the committed fields and time state
func (m *Model) ExportState() (st *State, err error) {
	if m.Fields == nil {
		return nil, errors.New("model is not initialized")
	}
	g := m.Grid
	st = &State{
		Version:  stateVersion,
		RunID:    m.RunID,
		Rank:     m.comm.Rank(),
		ITot:     g.ITot,
		JTot:     g.JTot,
		KTot:     g.KTot,
		IMax:     g.IMax,
		JMax:     g.JMax,
		GC:       g.GC,
		Time:     m.TimeLoop.State,
		Names:    append([]string(nil), m.Fields.Names...),
		Pressure: append([]float64(nil), m.Fields.P.Data...),
	}
	for _, f := range m.Fields.Cur {
		st.Fields = append(st.Fields, append([]float64(nil), f.Data...))
	}
	return
}

// ImportState replaces the committed fields and time state. A checkpoint of
// a different grid, decomposition or field list is a ConfigurationError.
func (m *Model) ImportState(st *State) (err error) {
	if m.Fields == nil {
		return errors.New("model is not initialized")
	}
	var (
		g  = m.Grid
		fs = m.Fields
	)
	mismatch := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: checkpoint does not match the model: %s",
			types.ErrConfiguration, fmt.Sprintf(format, args...))
	}
	switch {
	case st.Version != stateVersion:
		return mismatch("version %d, expected %d", st.Version, stateVersion)
	case st.Rank != m.comm.Rank():
		return mismatch("written by rank %d, read by rank %d", st.Rank, m.comm.Rank())
	case st.ITot != g.ITot || st.JTot != g.JTot || st.KTot != g.KTot:
		return mismatch("grid %dx%dx%d, model has %dx%dx%d", st.ITot, st.JTot, st.KTot, g.ITot, g.JTot, g.KTot)
	case st.IMax != g.IMax || st.JMax != g.JMax || st.GC != g.GC:
		return mismatch("subdomain %dx%d with %d ghost cells, model has %dx%d with %d",
			st.IMax, st.JMax, st.GC, g.IMax, g.JMax, g.GC)
	case len(st.Names) != len(fs.Names) || len(st.Fields) != len(fs.Names):
		return mismatch("fields %v, model has %v", st.Names, fs.Names)
	case len(st.Pressure) != g.NCells:
		return mismatch("pressure has %d cells, expected %d", len(st.Pressure), g.NCells)
	}
	for n, name := range fs.Names {
		if st.Names[n] != name {
			return mismatch("field %d is %s, model has %s", n, st.Names[n], name)
		}
		if len(st.Fields[n]) != g.NCells {
			return mismatch("field %s has %d cells, expected %d", name, len(st.Fields[n]), g.NCells)
		}
	}
	for n, f := range fs.Cur {
		copy(f.Data, st.Fields[n])
	}
	copy(fs.P.Data, st.Pressure)
	fs.ZeroRegisters()
	m.TimeLoop.State = st.Time
	m.RunID = st.RunID
	return
}

func WriteState(w io.Writer, st *State) error {
	if err := gob.NewEncoder(w).Encode(st); err != nil {
		return fmt.Errorf("model.WriteState: %v", err)
	}
	return nil
}

func ReadState(r io.Reader) (st *State, err error) {
	st = &State{}
	if err = gob.NewDecoder(r).Decode(st); err != nil {
		return nil, fmt.Errorf("%w: model.ReadState: %v", types.ErrConfiguration, err)
	}
	return
}

// Save writes the checkpoint of this rank to w
func (m *Model) Save(w io.Writer) error {
	st, err := m.ExportState()
	if err != nil {
		return err
	}
	return WriteState(w, st)
}

/*
Load reads the checkpoint of this rank from r. It is collective: when any rank
fails to read or import its state, all of them return an error. Afterwards the
ghost cells are restored and the operators derive their reference profiles
from the loaded state.
*/
func (m *Model) Load(ctx context.Context, r io.Reader) (err error) {
	st, err := ReadState(r)
	if err == nil {
		err = m.ImportState(st)
	}
	if err = m.agree(ctx, err, types.ErrConfiguration, "loading the checkpoint"); err != nil {
		return
	}
	return m.restore(ctx)
}

func (m *Model) restore(ctx context.Context) (err error) {
	var (
		fs   = m.Fields
		flds = append(append([]*fields.Field(nil), fs.Cur...), fs.P)
	)
	if err = m.TimeLoop.Synchronize(ctx, flds); err != nil {
		return
	}
	if err = m.initOperators(ctx); err != nil {
		return
	}
	// the stored step size was derived from the stored fields, only a
	// lowered ceiling can change it
	m.TimeLoop.State.Dt = math.Min(m.TimeLoop.State.Dt, m.Params.Time.DtMax)
	if m.comm.Rank() == 0 {
		m.log.WithFields(logrus.Fields{
			"step": m.TimeLoop.State.Step,
			"time": m.TimeLoop.State.Time,
		}).Info("loaded checkpoint")
	}
	return
}

// SaveCheckpoint writes the checkpoint of every rank into the output
// directory. It is collective and returns the file name of this rank.
func (m *Model) SaveCheckpoint(ctx context.Context) (path string, err error) {
	path = filepath.Join(m.outDir, CheckpointName(m.TimeLoop.State.Step, m.comm.Rank()))
	err = m.writeFile(path)
	if err = m.agree(ctx, err, types.ErrConfiguration, "writing the checkpoint"); err != nil {
		return
	}
	if m.comm.Rank() == 0 {
		m.log.WithField("step", m.TimeLoop.State.Step).Info("saved checkpoint")
	}
	return
}

func (m *Model) writeFile(path string) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	if err = m.Save(f); err != nil {
		f.Close()
		return
	}
	return f.Close()
}

// LoadCheckpoint reads the checkpoint written after step from the output directory
func (m *Model) LoadCheckpoint(ctx context.Context, step int) (err error) {
	var f *os.File
	path := filepath.Join(m.outDir, CheckpointName(step, m.comm.Rank()))
	if f, err = os.Open(path); err != nil {
		return m.agree(ctx, fmt.Errorf("%w: %v", types.ErrConfiguration, err),
			types.ErrConfiguration, "loading the checkpoint")
	}
	defer f.Close()
	return m.Load(ctx, f)
}
