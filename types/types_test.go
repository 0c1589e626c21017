package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes(t *testing.T) {
	{ // Test scheme switch lookup
		at, err := ParseSwitch("advection", "2i4", AdvecNameMap)
		require.NoError(t, err)
		assert.Equal(t, Advec_2i4, at)
		assert.Equal(t, 2, at.HaloWidth())
		assert.Equal(t, 1, Advec_2.HaloWidth())
		assert.Equal(t, "2i4", at.String())

		_, err = ParseSwitch("advection", "5", AdvecNameMap)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
		assert.Contains(t, err.Error(), `"5"`)

		th, err := ParseSwitch("thermo", "dry", ThermoNameMap)
		require.NoError(t, err)
		assert.Equal(t, []string{"th"}, th.Scalars())
		assert.Nil(t, Thermo_Disabled.Scalars())
		assert.Equal(t, []string{"thl", "qt"}, Thermo_Moist.Scalars())
	}
	{ // Test run error classification
		cause := fmt.Errorf("%w: NaN in u", ErrDivergence)
		err := NewRunError(cause, 12, 3.5)
		var re *RunError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, 12, re.Step)
		assert.Equal(t, "DivergenceError", re.Class())
		assert.True(t, errors.Is(err, ErrDivergence))
		assert.Contains(t, err.Error(), "step 12")
		// Wrapping twice keeps the innermost location
		assert.Equal(t, err, NewRunError(err, 13, 4))
		assert.Nil(t, NewRunError(nil, 1, 1))
		assert.Equal(t, "error", Classify(errors.New("x")))
		assert.Equal(t, "Interrupted", Classify(NewRunError(ErrInterrupted, 3, 1)))
	}
}
