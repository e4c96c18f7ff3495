package objective

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateScenario(t *testing.T) {
	f, _, _, _, _ := newBilinearFunction(t)

	value, err := f.Evaluate([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 7.0, value)

	_, err = f.Evaluate([]float64{1, 2})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEvaluateDoesNotTouchLiveBlocks(t *testing.T) {
	f, _, _, a, b := newBilinearFunction(t)
	a[0], a[1], b[0] = 4, 5, 6

	_, err := f.Evaluate([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, a)
	assert.Equal(t, []float64{6}, b)
}

func TestEvaluateLiveMatchesPacked(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	f := New()
	blocks := make([][]float64, 5)
	vars := make([]Var, 5)
	for i := range blocks {
		blocks[i] = make([]float64, 3)
		v, err := f.AddVariable(blocks[i])
		require.NoError(t, err)
		vars[i] = v
	}
	for i := 0; i+1 < len(vars); i++ {
		require.NoError(t, f.AddTerm(&couplingTerm{dim: 3, w: float64(i) + 0.5}, vars[i], vars[i+1]))
	}
	require.NoError(t, f.AddTerm(&squareTerm{dim: 3, c: 2}, vars[2]))

	for round := 0; round < 10; round++ {
		for _, blk := range blocks {
			for k := range blk {
				blk[k] = rng.NormFloat64()
			}
		}
		live := f.EvaluateLive()
		packed, err := f.Evaluate(f.Pack())
		require.NoError(t, err)
		assert.InDelta(t, packed, live, 1e-12)
	}
}

func TestEvaluateLiveFollowsRebind(t *testing.T) {
	f, va, _, a, b := newBilinearFunction(t)
	a[0], a[1], b[0] = 1, 2, 3
	assert.Equal(t, 7.0, f.EvaluateLive())

	moved := []float64{3, 1}
	require.NoError(t, f.Rebind(va, moved))
	assert.Equal(t, 12.0, f.EvaluateLive())
}

func TestEvaluateEmpty(t *testing.T) {
	f := New()
	value, err := f.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
	assert.Equal(t, 0.0, f.EvaluateLive())
}
