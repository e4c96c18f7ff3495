package objective

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const componentProblem = "problem"

// Problem adapts a Function to gonum's optimize package. Value, gradient and
// Hessian are assembled together and cached for the last point, since
// optimize asks for them in separate callbacks at the same x.
type Problem struct {
	f   *Function
	ctx context.Context

	x     []float64
	valid bool
	value float64
	grad  *mat.VecDense
	hess  *mat.Dense

	err error
}

// NewProblem returns an adapter for f.
func NewProblem(f *Function) *Problem {
	return NewProblemContext(context.Background(), f)
}

// NewProblemContext returns an adapter for f whose Status reports failure
// once ctx is done.
func NewProblemContext(ctx context.Context, f *Function) *Problem {
	return &Problem{
		f:    f,
		ctx:  ctx,
		grad: &mat.VecDense{},
		hess: &mat.Dense{},
	}
}

// Err returns the first engine error raised inside an optimize callback.
func (p *Problem) Err() error { return p.err }

// Optimize returns the optimize.Problem backed by the engine.
func (p *Problem) Optimize() optimize.Problem {
	return optimize.Problem{
		Func:   p.value0,
		Grad:   p.gradient,
		Hess:   p.hessian,
		Status: p.status,
	}
}

func (p *Problem) value0(x []float64) float64 {
	if p.valid && floats.Equal(p.x, x) {
		return p.value
	}
	value, err := p.f.Evaluate(x)
	if err != nil {
		p.fail(err)
		return math.Inf(1)
	}
	return value
}

func (p *Problem) gradient(grad, x []float64) {
	if !p.update(x) {
		return
	}
	copy(grad, p.grad.RawVector().Data)
}

func (p *Problem) hessian(hess *mat.SymDense, x []float64) {
	if !p.update(x) {
		return
	}
	n := hess.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			hess.SetSym(i, j, 0.5*(p.hess.At(i, j)+p.hess.At(j, i)))
		}
	}
}

func (p *Problem) status() (optimize.Status, error) {
	if err := p.ctx.Err(); err != nil {
		p.fail(err)
	}
	if p.err != nil {
		return optimize.Failure, p.err
	}
	return optimize.NotTerminated, nil
}

// update assembles derivatives at x unless they are cached.
func (p *Problem) update(x []float64) bool {
	if p.valid && floats.Equal(p.x, x) {
		return true
	}
	p.valid = false
	value, err := p.f.EvaluateDenseInto(x, p.grad, p.hess)
	if err != nil {
		p.fail(err)
		return false
	}
	p.x = append(p.x[:0], x...)
	p.value = value
	p.valid = true
	return true
}

func (p *Problem) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// Minimize runs method from the current live variable values and writes the
// best point found back into the live blocks. A nil settings uses optimize's
// defaults.
func Minimize(f *Function, method optimize.Method, settings *optimize.Settings) (*optimize.Result, error) {
	return MinimizeContext(context.Background(), f, method, settings)
}

// MinimizeContext is Minimize with cancellation. The run stops at the next
// major iteration after ctx is done and returns ctx.Err(); the live blocks
// are left at the starting point.
func MinimizeContext(ctx context.Context, f *Function, method optimize.Method, settings *optimize.Settings) (*optimize.Result, error) {
	const op = "Minimize"

	if f.NumScalars() == 0 {
		return nil, newError(componentProblem, op, ErrDimensionMismatch, "no variables registered")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := NewProblemContext(ctx, f)
	x0 := f.Pack()
	result, err := optimize.Minimize(p.Optimize(), x0, settings, method)
	if p.Err() != nil {
		return result, p.Err()
	}
	if result != nil && len(result.X) == f.NumScalars() {
		if uerr := f.Unpack(result.X); uerr != nil {
			return result, uerr
		}
		f.logger.Debug("Minimized",
			zap.Float64("value", result.F),
			zap.String("status", result.Status.String()),
			zap.Int("iterations", result.Stats.MajorIterations),
		)
	}
	return result, err
}
