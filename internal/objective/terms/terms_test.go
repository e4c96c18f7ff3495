package terms

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/sumfunc/internal/objective"
)

// checkDerivatives compares the analytic gradient and Hessian of the function
// built from term against central finite differences at x.
func checkDerivatives(t *testing.T, term objective.Term, x []float64) {
	t.Helper()

	f := objective.New()
	args := make([]objective.Var, term.NumVariables())
	for i := range args {
		v, err := f.AddVariable(make([]float64, term.VariableDimension(i)))
		require.NoError(t, err)
		args[i] = v
	}
	require.NoError(t, f.AddTerm(term, args...))
	require.Equal(t, len(x), f.NumScalars())

	value, grad, hess, err := f.EvaluateDense(x)
	require.NoError(t, err)

	fn := func(y []float64) float64 {
		v, err := f.Evaluate(y)
		require.NoError(t, err)
		return v
	}
	assert.InDelta(t, fn(x), value, 1e-12)

	wantGrad := fd.Gradient(nil, fn, x, &fd.Settings{Formula: fd.Central})
	for i, g := range wantGrad {
		assert.InDelta(t, g, grad.AtVec(i), 1e-5*math.Max(1, math.Abs(g)), "gradient %d", i)
	}

	wantHess := mat.NewSymDense(len(x), nil)
	fd.Hessian(wantHess, fn, x, &fd.Settings{Formula: fd.Central})
	n := len(x)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := wantHess.At(i, j)
			assert.InDelta(t, want, hess.At(i, j), 1e-4*math.Max(1, math.Abs(want)), "hessian (%d,%d)", i, j)
		}
	}
}

func TestTermDerivatives(t *testing.T) {
	tests := []struct {
		name string
		term objective.Term
		x    []float64
	}{
		{name: "rosenbrock", term: NewRosenbrock(), x: []float64{-1.2, 1}},
		{name: "rosenbrock custom", term: &Rosenbrock{A: 2, B: 10}, x: []float64{0.3, -0.7}},
		{name: "squared distance", term: &SquaredDistance{Dim: 3, Weight: 0.5}, x: []float64{1, 2, 3, -1, 0, 4}},
		{name: "anchor", term: &Anchor{Target: []float64{1, -1}, Weight: 3}, x: []float64{0.5, 2}},
		{name: "bilinear", term: Bilinear{}, x: []float64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkDerivatives(t, tt.term, tt.x)
		})
	}
}

func TestFunc(t *testing.T) {
	term := &Func{
		Dims:  []int{1},
		Value: func(x [][]float64) float64 { return 3 * x[0][0] },
	}
	assert.Equal(t, 1, term.NumVariables())
	assert.Equal(t, 1, term.VariableDimension(0))
	assert.Equal(t, 6.0, term.Evaluate([][]float64{{2}}))

	grad := []*mat.VecDense{mat.NewVecDense(1, nil)}
	hess := [][]*mat.Dense{{mat.NewDense(1, 1, nil)}}
	assert.Equal(t, 6.0, term.EvaluateDerivatives([][]float64{{2}}, grad, hess))
	assert.Equal(t, 0.0, grad[0].AtVec(0))

	term.Derivatives = func(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
		grad[0].SetVec(0, 3)
		return 3 * x[0][0]
	}
	checkDerivatives(t, term, []float64{2})
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		dims    []int
		params  []float64
		wantErr bool
		check   func(t *testing.T, term objective.Term)
	}{
		{
			name: "rosenbrock defaults",
			kind: "rosenbrock",
			dims: []int{2},
			check: func(t *testing.T, term objective.Term) {
				assert.Equal(t, &Rosenbrock{A: 1, B: 100}, term)
			},
		},
		{
			name:   "rosenbrock params",
			kind:   "rosenbrock",
			dims:   []int{2},
			params: []float64{2, 5},
			check: func(t *testing.T, term objective.Term) {
				assert.Equal(t, &Rosenbrock{A: 2, B: 5}, term)
			},
		},
		{
			name:   "squared distance",
			kind:   "squared_distance",
			dims:   []int{3, 3},
			params: []float64{0.25},
			check: func(t *testing.T, term objective.Term) {
				assert.Equal(t, &SquaredDistance{Dim: 3, Weight: 0.25}, term)
			},
		},
		{
			name:   "anchor with weight",
			kind:   "anchor",
			dims:   []int{2},
			params: []float64{1, 2, 10},
			check: func(t *testing.T, term objective.Term) {
				assert.Equal(t, &Anchor{Target: []float64{1, 2}, Weight: 10}, term)
			},
		},
		{
			name:   "anchor default weight",
			kind:   "anchor",
			dims:   []int{1},
			params: []float64{4},
			check: func(t *testing.T, term objective.Term) {
				assert.Equal(t, &Anchor{Target: []float64{4}, Weight: 1}, term)
			},
		},
		{name: "anchor missing target", kind: "anchor", dims: []int{2}, params: []float64{1}, wantErr: true},
		{name: "bilinear", kind: "bilinear", dims: []int{2, 1}, check: func(t *testing.T, term objective.Term) {
			assert.Equal(t, Bilinear{}, term)
		}},
		{name: "wrong arity", kind: "rosenbrock", dims: []int{2, 2}, wantErr: true},
		{name: "unknown", kind: "cubic", dims: []int{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, err := Build(tt.kind, tt.dims, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, term)
		})
	}

	_, err := Build("squared_distance", []int{1}, nil)
	require.ErrorIs(t, err, objective.ErrArityMismatch)
}

func TestKinds(t *testing.T) {
	for _, kind := range Kinds {
		assert.True(t, IsKind(kind))
	}
	assert.False(t, IsKind("cubic"))
}
