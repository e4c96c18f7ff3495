package objective

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// bilinearTerm is a0^2 + a1*b0 with a of size 2 and b of size 1.
type bilinearTerm struct{}

func (bilinearTerm) NumVariables() int { return 2 }
func (bilinearTerm) VariableDimension(i int) int {
	if i == 0 {
		return 2
	}
	return 1
}
func (bilinearTerm) Evaluate(x [][]float64) float64 {
	return x[0][0]*x[0][0] + x[0][1]*x[1][0]
}
func (t bilinearTerm) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	grad[0].SetVec(0, 2*x[0][0])
	grad[0].SetVec(1, x[1][0])
	grad[1].SetVec(0, x[0][1])
	hess[0][0].Set(0, 0, 2)
	hess[0][1].Set(1, 0, 1)
	hess[1][0].Set(0, 1, 1)
	return t.Evaluate(x)
}

// couplingTerm is w * sum_k p_k q_k + sum_k p_k^2 for two blocks of size dim.
// Its Hessian blocks are all structurally nonzero on the diagonal.
type couplingTerm struct {
	dim int
	w   float64
}

func (t *couplingTerm) NumVariables() int         { return 2 }
func (t *couplingTerm) VariableDimension(int) int { return t.dim }
func (t *couplingTerm) Evaluate(x [][]float64) float64 {
	v := 0.0
	for k := 0; k < t.dim; k++ {
		v += t.w*x[0][k]*x[1][k] + x[0][k]*x[0][k]
	}
	return v
}
func (t *couplingTerm) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	for k := 0; k < t.dim; k++ {
		grad[0].SetVec(k, t.w*x[1][k]+2*x[0][k])
		grad[1].SetVec(k, t.w*x[0][k])
		hess[0][0].Set(k, k, 2)
		hess[0][1].Set(k, k, t.w)
		hess[1][0].Set(k, k, t.w)
	}
	return t.Evaluate(x)
}

// squareTerm is sum_k c * x_k^2 over one block of size dim.
type squareTerm struct {
	dim int
	c   float64
}

func (t *squareTerm) NumVariables() int         { return 1 }
func (t *squareTerm) VariableDimension(int) int { return t.dim }
func (t *squareTerm) Evaluate(x [][]float64) float64 {
	v := 0.0
	for _, xi := range x[0] {
		v += t.c * xi * xi
	}
	return v
}
func (t *squareTerm) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	for k, xi := range x[0] {
		grad[0].SetVec(k, 2*t.c*xi)
		hess[0][0].Set(k, k, 2*t.c)
	}
	return t.Evaluate(x)
}

// panicTerm panics whenever derivatives are requested.
type panicTerm struct{}

func (panicTerm) NumVariables() int              { return 1 }
func (panicTerm) VariableDimension(int) int      { return 1 }
func (panicTerm) Evaluate(x [][]float64) float64 { return x[0][0] }
func (panicTerm) EvaluateDerivatives([][]float64, []*mat.VecDense, [][]*mat.Dense) float64 {
	panic("boom")
}

// closingTerm counts Close calls.
type closingTerm struct {
	squareTerm
	closed int
}

func (t *closingTerm) Close() error {
	t.closed++
	return nil
}

// payloadTerm is a value-receiver closer whose payload may hold an unhashable
// value, which makes the term itself unhashable.
type payloadTerm struct {
	payload interface{}
	closed  *int
}

func (payloadTerm) NumVariables() int              { return 1 }
func (payloadTerm) VariableDimension(int) int      { return 1 }
func (payloadTerm) Evaluate(x [][]float64) float64 { return x[0][0] }
func (t payloadTerm) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, _ [][]*mat.Dense) float64 {
	grad[0].SetVec(0, 1)
	return t.Evaluate(x)
}
func (t payloadTerm) Close() error {
	*t.closed++
	return nil
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// assertMatEqual checks if two matrices are approximately equal
func assertMatEqual(t *testing.T, got, want mat.Matrix, tol float64) {
	t.Helper()

	rg, cg := got.Dims()
	rw, cw := want.Dims()
	if rg != rw || cg != cw {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rw, cw)
	}

	for i := 0; i < rg; i++ {
		for j := 0; j < cg; j++ {
			g := got.At(i, j)
			w := want.At(i, j)
			if math.Abs(g-w) > tol {
				t.Fatalf("at (%d,%d): got %v, want %v (tolerance %v)", i, j, g, w, tol)
			}
		}
	}
}

// newBilinearFunction registers a (dim 2) and b (dim 1) and the bilinear term.
func newBilinearFunction(t *testing.T, opts ...Option) (*Function, Var, Var, []float64, []float64) {
	t.Helper()

	a := []float64{0, 0}
	b := []float64{0}
	f := New(opts...)
	va, err := f.AddVariable(a)
	if err != nil {
		t.Fatalf("AddVariable(a): %v", err)
	}
	vb, err := f.AddVariable(b)
	if err != nil {
		t.Fatalf("AddVariable(b): %v", err)
	}
	if err := f.AddTerm(bilinearTerm{}, va, vb); err != nil {
		t.Fatalf("AddTerm: %v", err)
	}
	return f, va, vb, a, b
}
