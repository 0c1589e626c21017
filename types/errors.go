package types

import (
	"errors"
	"fmt"
)

// Error classes of a run. All of them are fatal; inside the time loop they are
// agreed between processes before anybody returns.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrDivergence     = errors.New("divergence error")
	ErrSingularSystem = errors.New("singular system error")
	ErrCommunication  = errors.New("communication error")
	ErrInterrupted    = errors.New("interrupted")
)

// RunError attaches the step index and simulation time at which a failure
// inside the time loop occurred.
type RunError struct {
	Step int
	Time float64
	Err  error
}

func NewRunError(err error, step int, time float64) error {
	var re *RunError
	if err == nil || errors.As(err, &re) {
		return err
	}
	return &RunError{Step: step, Time: time, Err: err}
}

func (re *RunError) Error() string {
	return fmt.Sprintf("%s at step %d, time %.6g: %v", re.Class(), re.Step, re.Time, re.Err)
}

func (re *RunError) Unwrap() error { return re.Err }

// Class names the error class, or "error" if the cause is unclassified
func (re *RunError) Class() string {
	return Classify(re.Err)
}

func Classify(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrDivergence):
		return "DivergenceError"
	case errors.Is(err, ErrSingularSystem):
		return "SingularSystemError"
	case errors.Is(err, ErrCommunication):
		return "CommunicationError"
	case errors.Is(err, ErrInterrupted):
		return "Interrupted"
	}
	return "error"
}
