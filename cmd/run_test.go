package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveHuang27GitHub/microhh/model"
	"github.com/SteveHuang27GitHub/microhh/types"
)

var testInput = `
Title: "Uniform wind"
Grid:
  itot: 8
  jtot: 8
  ktot: 4
  xsize: 800
  ysize: 800
  zsize: 400
MPI:
  npx: 2
  npy: 2
Boundary:
  swboundary: freeslip
Fields:
  u0: 2
  slist: [s]
  s0:
    s: 300
Time:
  endtime: 20
  dt: 5
  dtmax: 5
`

func writeInput(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	{ // Test a complete input file
		ip, err := readInput(writeInput(t, testInput))
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, validate(ip, &buf))
		assert.Contains(t, buf.String(), "Uniform wind")
		assert.Contains(t, buf.String(), "= Schemes")
	}
	{ // Test a missing input file name prints an example
		_, err := readInput("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "swadvec")
	}
	{ // Test an unknown scheme
		ip, err := readInput(writeInput(t, testInput+"Advec:\n  swadvec: \"3\"\n"))
		require.NoError(t, err)
		err = validate(ip, &bytes.Buffer{})
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
}

func TestRun(t *testing.T) {
	var (
		dir    = t.TempDir()
		log, _ = logtest.NewNullLogger()
		ctx    = context.Background()
	)
	ip, err := readInput(writeInput(t, testInput))
	require.NoError(t, err)
	{ // Test a run from scratch leaves a checkpoint per rank
		require.NoError(t, Run(ctx, ip, &RunConfig{OutDir: dir, Restart: -1}, log))
		for rank := 0; rank < 4; rank++ {
			_, err = os.Stat(filepath.Join(dir, model.CheckpointName(4, rank)))
			assert.NoError(t, err)
		}
	}
	{ // Test a restart continues to the new end time
		ip.Time.EndTime = 40
		require.NoError(t, Run(ctx, ip, &RunConfig{OutDir: dir, Restart: 4}, log))
		_, err = os.Stat(filepath.Join(dir, model.CheckpointName(8, 0)))
		assert.NoError(t, err)
	}
	{ // Test an interrupt ends the run at a step boundary with a checkpoint
		stop := make(chan struct{})
		close(stop)
		dir := t.TempDir()
		err = Run(ctx, ip, &RunConfig{OutDir: dir, Restart: -1, Stop: stop}, log)
		assert.True(t, errors.Is(err, types.ErrInterrupted), "%v", err)
		assert.False(t, errors.Is(err, types.ErrCommunication))
		for rank := 0; rank < 4; rank++ {
			_, err = os.Stat(filepath.Join(dir, model.CheckpointName(0, rank)))
			assert.NoError(t, err)
		}
	}
	{ // Test a restart from a step that was never saved
		err = Run(ctx, ip, &RunConfig{OutDir: dir, Restart: 5}, log)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
}
