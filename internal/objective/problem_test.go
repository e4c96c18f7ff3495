package objective_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/sumfunc/internal/objective"
	"github.com/copyleftdev/sumfunc/internal/objective/terms"
)

func TestMinimizeRosenbrock(t *testing.T) {
	tests := []struct {
		name   string
		method optimize.Method
	}{
		{name: "newton", method: &optimize.Newton{}},
		{name: "bfgs", method: &optimize.BFGS{}},
		{name: "lbfgs", method: &optimize.LBFGS{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := objective.New(objective.WithWorkers(2))
			blocks := [][]float64{{-1.2, 1}, {0.5, -0.3}, {2, 2}}
			for _, b := range blocks {
				v, err := f.AddVariable(b)
				require.NoError(t, err)
				require.NoError(t, f.AddTerm(terms.NewRosenbrock(), v))
			}

			result, err := objective.Minimize(f, tt.method, &optimize.Settings{GradientThreshold: 1e-10})
			require.NoError(t, err)
			require.NotNil(t, result)

			for _, b := range blocks {
				assert.InDelta(t, 1.0, b[0], 1e-4)
				assert.InDelta(t, 1.0, b[1], 1e-4)
			}
			assert.InDelta(t, 0.0, f.EvaluateLive(), 1e-8)
		})
	}
}

func TestMinimizeChain(t *testing.T) {
	// Points pulled towards two anchors and towards each other. The problem
	// is symmetric about x = 2 and has its optimum on y = 0.
	f := objective.New()
	points := make([][]float64, 5)
	vars := make([]objective.Var, len(points))
	for i := range points {
		points[i] = []float64{float64(i) * 3, 1}
		v, err := f.AddVariable(points[i])
		require.NoError(t, err)
		vars[i] = v
	}
	for i := 0; i+1 < len(vars); i++ {
		require.NoError(t, f.AddTerm(&terms.SquaredDistance{Dim: 2, Weight: 1}, vars[i], vars[i+1]))
	}
	require.NoError(t, f.AddTerm(&terms.Anchor{Target: []float64{0, 0}, Weight: 1}, vars[0]))
	require.NoError(t, f.AddTerm(&terms.Anchor{Target: []float64{4, 0}, Weight: 1}, vars[4]))

	_, err := objective.Minimize(f, &optimize.Newton{}, nil)
	require.NoError(t, err)

	for i, p := range points {
		assert.InDelta(t, 0.0, p[1], 1e-6, "point %d", i)
		assert.InDelta(t, 4.0, p[0]+points[len(points)-1-i][0], 1e-6, "point %d", i)
		if i > 0 {
			assert.Greater(t, p[0], points[i-1][0])
		}
	}
	assert.InDelta(t, 2.0, points[2][0], 1e-6)

	_, grad, _, err := f.EvaluateDense(f.Pack())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mat.Norm(grad, 2), 1e-6)
}

func TestMinimizeWithoutVariables(t *testing.T) {
	_, err := objective.Minimize(objective.New(), &optimize.Newton{}, nil)
	require.ErrorIs(t, err, objective.ErrDimensionMismatch)
}

func TestProblemCallbacks(t *testing.T) {
	f := objective.New()
	a := []float64{0, 0}
	b := []float64{0}
	va, _ := f.AddVariable(a)
	vb, _ := f.AddVariable(b)
	require.NoError(t, f.AddTerm(terms.Bilinear{}, va, vb))

	p := objective.NewProblem(f)
	prob := p.Optimize()
	x := []float64{1, 2, 3}

	grad := make([]float64, 3)
	prob.Grad(grad, x)
	assert.Equal(t, []float64{2, 3, 2}, grad)

	hess := mat.NewSymDense(3, nil)
	prob.Hess(hess, x)
	assert.Equal(t, 1.0, hess.At(1, 2))
	assert.Equal(t, 1.0, hess.At(2, 1))
	assert.Equal(t, 2.0, hess.At(0, 0))

	assert.Equal(t, 7.0, prob.Func(x))
	assert.Equal(t, int64(1), f.Stats().DerivativeEvaluations, "grad and hess share one assembly")
	assert.Equal(t, int64(0), f.Stats().Evaluations, "value comes from the cache")

	assert.Equal(t, 1.0+0*3, prob.Func([]float64{1, 0, 3}))
	assert.Equal(t, int64(1), f.Stats().Evaluations)

	status, err := prob.Status()
	require.NoError(t, err)
	assert.Equal(t, optimize.NotTerminated, status)
	assert.NoError(t, p.Err())
}

func TestMinimizeCancelled(t *testing.T) {
	f := objective.New()
	x := []float64{-1.2, 1}
	v, err := f.AddVariable(x)
	require.NoError(t, err)
	require.NoError(t, f.AddTerm(terms.NewRosenbrock(), v))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = objective.MinimizeContext(ctx, f, &optimize.Newton{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{-1.2, 1}, x)

	p := objective.NewProblemContext(ctx, f)
	status, err := p.Optimize().Status()
	assert.Equal(t, optimize.Failure, status)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, p.Err(), context.Canceled)
}
