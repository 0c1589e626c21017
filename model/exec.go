package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SteveHuang27GitHub/microhh/parallel"
	"github.com/SteveHuang27GitHub/microhh/types"
	"github.com/SteveHuang27GitHub/microhh/utils"
)

// Relative tolerance for landing on end, sample and save times
const eventTolerance = 1.e-8

/*
Exec advances the model until EndTime. Step sizes are shortened so that the
end time and every sample and save time are hit exactly. After each step the
post-processors whose sample time has come are called, and checkpoints are
written every SaveTime. Any error is returned by all ranks, as a
*types.RunError with the step and time of the failure.
*/
func (m *Model) Exec(ctx context.Context) (err error) {
	var (
		it      = m.TimeLoop
		tp      = m.Params.Time
		step0   = it.State.Step
		elapsed time.Duration
	)
	if m.comm.Rank() == 0 {
		m.log.WithFields(logrus.Fields{
			"time":    it.State.Time,
			"endtime": tp.EndTime,
			"dt":      it.State.Dt,
		}).Info("starting time loop")
	}
	for !m.finished() {
		if err = m.stopRequested(ctx); err != nil {
			m.logFailure(err)
			return
		}
		dt := m.clipTimeStep(it.State.Dt)
		start := time.Now()
		if _, err = it.AdvanceOneStep(ctx, dt); err != nil {
			m.logFailure(err)
			return
		}
		elapsed += time.Since(start)
		if err = m.postProcess(ctx); err != nil {
			m.logFailure(err)
			return
		}
		if tp.LogSteps > 0 && (it.State.Step%tp.LogSteps == 0 || m.finished()) {
			if err = m.printUpdate(ctx); err != nil {
				return
			}
		}
		if tp.SaveTime > 0 && atEvent(it.State.Time, tp.SaveTime) && !m.finished() {
			if _, err = m.SaveCheckpoint(ctx); err != nil {
				err = types.NewRunError(err, it.State.Step, it.State.Time)
				m.logFailure(err)
				return
			}
		}
	}
	m.printFinal(elapsed, it.State.Step-step0)
	return
}

func (m *Model) finished() bool {
	var (
		endTime = m.Params.Time.EndTime
	)
	return endTime-m.TimeLoop.State.Time <= eventTolerance*endTime
}

// intervals returns the save interval and the sample times of the post-processors
func (m *Model) intervals() (iv []float64) {
	if m.Params.Time.SaveTime > 0 {
		iv = append(iv, m.Params.Time.SaveTime)
	}
	for _, pp := range m.post {
		if s, ok := pp.(Sampler); ok {
			iv = append(iv, s.SampleTime())
		}
	}
	return
}

// stopRequested agrees between the ranks whether any of them was asked to
// stop, so all of them leave the time loop at the same step
func (m *Model) stopRequested(ctx context.Context) (err error) {
	if m.stop == nil {
		return
	}
	var requested, stopped bool
	select {
	case <-m.stop:
		requested = true
	default:
	}
	if stopped, err = parallel.AgreeOnFailure(ctx, m.comm, requested); err != nil || !stopped {
		return
	}
	return types.NewRunError(types.ErrInterrupted, m.TimeLoop.State.Step, m.TimeLoop.State.Time)
}

// clipTimeStep shortens dt so the step ends on the next event time, if any
func (m *Model) clipTimeStep(dt float64) float64 {
	var (
		t = m.TimeLoop.State.Time
	)
	dt = math.Min(dt, m.Params.Time.EndTime-t)
	for _, interval := range m.intervals() {
		dt = math.Min(dt, untilNext(t, interval))
	}
	return dt
}

// untilNext returns the time from t to the first multiple of interval after t
func untilNext(t, interval float64) float64 {
	n := math.Floor(t/interval + eventTolerance)
	return (n+1.)*interval - t
}

func atEvent(t, interval float64) bool {
	r := t / interval
	return r > 0.5 && math.Abs(r-math.Round(r)) < eventTolerance
}

// postProcess calls the post-processors that are due. A failure on any rank
// is agreed so all ranks stop after the same step.
func (m *Model) postProcess(ctx context.Context) (err error) {
	var (
		it = m.TimeLoop
	)
	for _, pp := range m.post {
		if s, ok := pp.(Sampler); ok && !atEvent(it.State.Time, s.SampleTime()) {
			continue
		}
		perr := pp.OnStepCompleted(ctx, m.Fields, it.State)
		if err = m.agree(ctx, perr, types.ErrCommunication, "post-processing"); err != nil {
			return types.NewRunError(err, it.State.Step, it.State.Time)
		}
	}
	return
}

// printUpdate reports the progress. It is collective, only rank 0 logs.
func (m *Model) printUpdate(ctx context.Context) (err error) {
	var (
		it      = m.TimeLoop
		u, v, w = m.Fields.Velocity()
		cfl     float64
		div     float64
	)
	if cfl, err = it.CFL(ctx, it.State.Dt); err != nil {
		return
	}
	if div, err = m.Pres.MaxDivergence(ctx, u, v, w); err != nil {
		return
	}
	if m.comm.Rank() != 0 {
		return
	}
	m.log.WithFields(logrus.Fields{
		"step": it.State.Step,
		"time": fmt.Sprintf("%8.5f", it.State.Time),
		"dt":   fmt.Sprintf("%8.5f", it.State.Dt),
		"cfl":  fmt.Sprintf("%6.4f", cfl),
		"div":  fmt.Sprintf("%11.4e", div),
	}).Info("step")
	return
}

func (m *Model) printFinal(elapsed time.Duration, steps int) {
	if m.comm.Rank() != 0 || steps == 0 {
		return
	}
	rate := float64(elapsed.Microseconds()) / float64(m.Grid.InteriorCount()*steps)
	m.log.WithFields(logrus.Fields{
		"steps":  steps,
		"time":   m.TimeLoop.State.Time,
		"rate":   fmt.Sprintf("%8.5f us/(cell*step)", rate),
		"memory": utils.GetMemUsage(),
	}).Info("finished time loop")
}

func (m *Model) logFailure(err error) {
	var (
		re    *types.RunError
		entry = m.log.WithError(err).WithField("class", types.Classify(err))
	)
	if errors.As(err, &re) {
		entry = entry.WithFields(logrus.Fields{"step": re.Step, "time": re.Time})
	}
	entry.Error("run failed")
}
