// Package terms provides ready-made objective terms.
package terms

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/sumfunc/internal/objective"
)

var (
	_ objective.Term = (*Func)(nil)
	_ objective.Term = (*Rosenbrock)(nil)
	_ objective.Term = (*SquaredDistance)(nil)
	_ objective.Term = (*Anchor)(nil)
	_ objective.Term = (*Bilinear)(nil)
)

// Func is a term built from closures.
type Func struct {
	Dims []int
	// Value computes the term value.
	Value func(x [][]float64) float64
	// Derivatives computes the value and fills grad and hess. If nil, the
	// term reports zero derivatives.
	Derivatives func(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64
}

// NumVariables returns the number of blocks in Dims.
func (t *Func) NumVariables() int { return len(t.Dims) }

// VariableDimension returns Dims[i].
func (t *Func) VariableDimension(i int) int { return t.Dims[i] }

// Evaluate calls Value.
func (t *Func) Evaluate(x [][]float64) float64 {
	return t.Value(x)
}

// EvaluateDerivatives calls Derivatives. Without one it returns Value and
// leaves the blocks zero.
func (t *Func) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	if t.Derivatives == nil {
		return t.Value(x)
	}
	return t.Derivatives(x, grad, hess)
}

// Rosenbrock is (A - x0)^2 + B (x1 - x0^2)^2 over a single 2-block.
type Rosenbrock struct {
	A, B float64
}

// NewRosenbrock returns the classic a=1, b=100 instance.
func NewRosenbrock() *Rosenbrock { return &Rosenbrock{A: 1, B: 100} }

// NumVariables returns 1.
func (t *Rosenbrock) NumVariables() int { return 1 }

// VariableDimension returns 2.
func (t *Rosenbrock) VariableDimension(int) int { return 2 }

// Evaluate returns the Rosenbrock value at the block.
func (t *Rosenbrock) Evaluate(x [][]float64) float64 {
	d0 := t.A - x[0][0]
	d1 := x[0][1] - x[0][0]*x[0][0]
	return d0*d0 + t.B*d1*d1
}

// EvaluateDerivatives writes the analytic gradient and the full 2x2 Hessian.
func (t *Rosenbrock) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	x0, x1 := x[0][0], x[0][1]
	d0 := t.A - x0
	d1 := x1 - x0*x0

	grad[0].SetVec(0, -2*d0-4*t.B*x0*d1)
	grad[0].SetVec(1, 2*t.B*d1)

	h := hess[0][0]
	h.Set(0, 0, 2-4*t.B*(x1-3*x0*x0))
	h.Set(0, 1, -4*t.B*x0)
	h.Set(1, 0, -4*t.B*x0)
	h.Set(1, 1, 2*t.B)
	return d0*d0 + t.B*d1*d1
}

// SquaredDistance is Weight * |p - q|^2 for two blocks of equal size.
type SquaredDistance struct {
	Dim    int
	Weight float64
}

// NumVariables returns 2: p and q.
func (t *SquaredDistance) NumVariables() int { return 2 }

// VariableDimension returns Dim for both blocks.
func (t *SquaredDistance) VariableDimension(int) int { return t.Dim }

// Evaluate returns Weight times the squared Euclidean distance of p and q.
func (t *SquaredDistance) Evaluate(x [][]float64) float64 {
	d := floats.Distance(x[0], x[1], 2)
	return t.Weight * d * d
}

// EvaluateDerivatives writes ±2 Weight (p - q), with Hessian blocks 2 Weight I
// on the diagonal and -2 Weight I off it.
func (t *SquaredDistance) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	value := 0.0
	for k := 0; k < t.Dim; k++ {
		d := x[0][k] - x[1][k]
		value += d * d
		grad[0].SetVec(k, 2*t.Weight*d)
		grad[1].SetVec(k, -2*t.Weight*d)
		hess[0][0].Set(k, k, 2*t.Weight)
		hess[1][1].Set(k, k, 2*t.Weight)
		hess[0][1].Set(k, k, -2*t.Weight)
		hess[1][0].Set(k, k, -2*t.Weight)
	}
	return t.Weight * value
}

// Anchor is Weight * |p - Target|^2.
type Anchor struct {
	Target []float64
	Weight float64
}

// NumVariables returns 1.
func (t *Anchor) NumVariables() int { return 1 }

// VariableDimension returns len(Target).
func (t *Anchor) VariableDimension(int) int { return len(t.Target) }

// Evaluate returns Weight times the squared distance to Target.
func (t *Anchor) Evaluate(x [][]float64) float64 {
	d := floats.Distance(x[0], t.Target, 2)
	return t.Weight * d * d
}

// EvaluateDerivatives writes 2 Weight (p - Target) and 2 Weight I.
func (t *Anchor) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	value := 0.0
	for k, c := range t.Target {
		d := x[0][k] - c
		value += d * d
		grad[0].SetVec(k, 2*t.Weight*d)
		hess[0][0].Set(k, k, 2*t.Weight)
	}
	return t.Weight * value
}

// Bilinear is a0^2 + a1*b0 over a 2-block a and a 1-block b.
type Bilinear struct{}

// NumVariables returns 2: a and b.
func (Bilinear) NumVariables() int { return 2 }

// VariableDimension returns 2 for a and 1 for b.
func (Bilinear) VariableDimension(i int) int {
	if i == 0 {
		return 2
	}
	return 1
}

// Evaluate returns a0^2 + a1*b0.
func (Bilinear) Evaluate(x [][]float64) float64 {
	return x[0][0]*x[0][0] + x[0][1]*x[1][0]
}

// EvaluateDerivatives writes the gradient and the constant Hessian blocks.
func (b Bilinear) EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64 {
	a, c := x[0], x[1]
	grad[0].SetVec(0, 2*a[0])
	grad[0].SetVec(1, c[0])
	grad[1].SetVec(0, a[1])

	hess[0][0].Set(0, 0, 2)
	hess[0][1].Set(1, 0, 1)
	hess[1][0].Set(0, 1, 1)
	return b.Evaluate(x)
}

// Kinds lists the names Build accepts.
var Kinds = []string{"rosenbrock", "squared_distance", "anchor", "bilinear"}

// IsKind reports whether Build knows kind.
func IsKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Build constructs a term by kind name. dims are the sizes of the variables
// the term will be added with; params are kind specific.
func Build(kind string, dims []int, params []float64) (objective.Term, error) {
	switch kind {
	case "rosenbrock":
		if err := wantArity(kind, dims, 1); err != nil {
			return nil, err
		}
		t := NewRosenbrock()
		if len(params) >= 2 {
			t.A, t.B = params[0], params[1]
		}
		return t, nil
	case "squared_distance":
		if err := wantArity(kind, dims, 2); err != nil {
			return nil, err
		}
		return &SquaredDistance{Dim: dims[0], Weight: weight(params, 0)}, nil
	case "anchor":
		if err := wantArity(kind, dims, 1); err != nil {
			return nil, err
		}
		if len(params) != dims[0] && len(params) != dims[0]+1 {
			return nil, fmt.Errorf("anchor: want %d target values and an optional weight, got %d params", dims[0], len(params))
		}
		return &Anchor{Target: append([]float64(nil), params[:dims[0]]...), Weight: weight(params, dims[0])}, nil
	case "bilinear":
		if err := wantArity(kind, dims, 2); err != nil {
			return nil, err
		}
		return Bilinear{}, nil
	default:
		return nil, fmt.Errorf("unknown term type %q", kind)
	}
}

func wantArity(kind string, dims []int, k int) error {
	if len(dims) != k {
		return fmt.Errorf("%s: %w: takes %d variables, got %d", kind, objective.ErrArityMismatch, k, len(dims))
	}
	return nil
}

func weight(params []float64, i int) float64 {
	if len(params) > i {
		return params[i]
	}
	return 1
}
