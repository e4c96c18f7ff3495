package objective

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const componentAssembler = "assembler"

// chunksPerWorker controls how finely the term list is split across workers.
const chunksPerWorker = 4

// EvaluateDense returns the value, gradient and dense Hessian at x. With no
// registered variables the gradient and Hessian are nil.
func (f *Function) EvaluateDense(x []float64) (float64, *mat.VecDense, *mat.Dense, error) {
	n := f.NumScalars()
	if n == 0 {
		value, err := f.evaluateEmpty(x)
		return value, nil, nil, err
	}
	grad := mat.NewVecDense(n, nil)
	hess := mat.NewDense(n, n, nil)
	value, err := f.EvaluateDenseInto(x, grad, hess)
	if err != nil {
		return 0, nil, nil, err
	}
	return value, grad, hess, nil
}

// EvaluateDenseInto is EvaluateDense writing into caller-owned targets. Empty
// targets are sized to NumScalars; non-empty ones must already have that size.
// Both must be non-nil and are overwritten.
func (f *Function) EvaluateDenseInto(x []float64, grad *mat.VecDense, hess *mat.Dense) (float64, error) {
	const op = "EvaluateDense"

	n := f.NumScalars()
	if n == 0 {
		return f.evaluateEmpty(x)
	}
	if err := f.vars.copyGlobalToLocal(x); err != nil {
		return 0, err
	}

	start := time.Now()
	if err := prepareVec(op, grad, n); err != nil {
		return 0, err
	}
	if err := prepareDense(op, hess, n); err != nil {
		return 0, err
	}
	f.stats.write.add(time.Since(start))

	value, err := f.mapTerms()
	if err != nil {
		return 0, err
	}

	start = time.Now()
	err = f.reduce(op, grad, denseAccumulator{m: hess})
	f.stats.write.add(time.Since(start))
	if err != nil {
		return 0, err
	}
	return value, nil
}

// EvaluateSparse returns the value, gradient and sparse Hessian at x. Every
// term contributes its full dense blocks; cells reached by several terms are
// summed. With no registered variables the gradient is nil.
func (f *Function) EvaluateSparse(x []float64) (float64, *mat.VecDense, *CSR, error) {
	const op = "EvaluateSparse"

	n := f.NumScalars()
	if n == 0 {
		value, err := f.evaluateEmpty(x)
		if err != nil {
			return 0, nil, nil, err
		}
		return value, nil, NewTriplets(0, 0).ToCSR(), nil
	}
	if err := f.vars.copyGlobalToLocal(x); err != nil {
		return 0, nil, nil, err
	}

	start := time.Now()
	grad := mat.NewVecDense(n, nil)
	trip := NewTriplets(n, f.hessianElements)
	f.stats.write.add(time.Since(start))

	value, err := f.mapTerms()
	if err != nil {
		return 0, nil, nil, err
	}

	start = time.Now()
	if err := f.reduce(op, grad, trip); err != nil {
		return 0, nil, nil, err
	}
	f.hessianElements = trip.Len()
	hess := trip.ToCSR()
	f.stats.write.add(time.Since(start))

	f.logger.Debug("Assembled sparse Hessian",
		zap.Int("scalars", n),
		zap.Int("scattered", trip.Len()),
		zap.Int("nnz", hess.NNZ()),
	)
	return value, grad, hess, nil
}

// SparsityPattern returns the structure of the Hessian: every cell any term
// can write to, with value 1. No term is evaluated.
func (f *Function) SparsityPattern() (*CSR, error) {
	const op = "SparsityPattern"

	start := time.Now()
	trip := NewTriplets(f.NumScalars(), f.hessianElements)
	if err := f.reduce(op, nil, structural{trip}); err != nil {
		return nil, err
	}
	f.hessianElements = trip.Len()
	pattern := trip.ToCSR()
	pattern.setStructural()
	f.stats.write.add(time.Since(start))

	f.logger.Debug("Built Hessian sparsity pattern",
		zap.Int("scalars", f.NumScalars()),
		zap.Int("scattered", trip.Len()),
		zap.Int("nnz", pattern.NNZ()),
	)
	return pattern, nil
}

// structural replaces every value with a unit placeholder.
type structural struct{ acc HessianAccumulator }

func (s structural) Add(i, j int, _ float64) { s.acc.Add(i, j, 1) }

// evaluateEmpty handles a Function without variables, where only terms of
// no arguments can exist.
func (f *Function) evaluateEmpty(x []float64) (float64, error) {
	if err := f.vars.copyGlobalToLocal(x); err != nil {
		return 0, err
	}
	return f.mapTerms()
}

// mapTerms evaluates every term into its private scratch and returns the sum
// of the term values. Terms only read variable scratch and only write their
// own blocks, so they can run on any goroutine. The sum is taken in
// registration order.
func (f *Function) mapTerms() (float64, error) {
	start := time.Now()
	defer func() {
		f.stats.derivative.add(time.Since(start))
		f.stats.derivativeEvaluations.Add(1)
	}()

	terms := f.terms.terms
	if f.workers < 2 || len(terms) < 2 {
		for i, at := range terms {
			if err := evaluateTerm(i, at); err != nil {
				return 0, err
			}
		}
	} else {
		chunk := (len(terms) + f.workers*chunksPerWorker - 1) / (f.workers * chunksPerWorker)
		var g errgroup.Group
		g.SetLimit(f.workers)
		for lo := 0; lo < len(terms); lo += chunk {
			hi := min(lo+chunk, len(terms))
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if err := evaluateTerm(i, terms[i]); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
	}

	value := 0.0
	for _, at := range terms {
		value += at.value
	}
	return value, nil
}

func evaluateTerm(i int, at *addedTerm) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(componentAssembler, "evaluateTerm", ErrTermPanic, "term %d: %v", i, r)
		}
	}()
	at.resetScratch()
	at.value = at.term.EvaluateDerivatives(at.values, at.grad, at.hess)
	return nil
}

// reduce scatters every term's scratch into grad and hess, term by term in
// registration order. A nil grad skips the gradient.
func (f *Function) reduce(op string, grad *mat.VecDense, hess HessianAccumulator) error {
	for _, at := range f.terms.terms {
		offsets := make([]int, len(at.args))
		for i, a := range at.args {
			v, err := f.vars.lookup(op, a)
			if err != nil {
				return err
			}
			offsets[i] = v.offset
		}

		if grad != nil {
			for i, g := range at.grad {
				for a := 0; a < g.Len(); a++ {
					k := offsets[i] + a
					grad.SetVec(k, grad.AtVec(k)+g.AtVec(a))
				}
			}
		}

		for i := range at.hess {
			for j, block := range at.hess[i] {
				r, c := block.Dims()
				for a := 0; a < r; a++ {
					for b := 0; b < c; b++ {
						hess.Add(offsets[i]+a, offsets[j]+b, block.At(a, b))
					}
				}
			}
		}
	}
	return nil
}

func prepareVec(op string, v *mat.VecDense, n int) error {
	if v.IsEmpty() {
		v.ReuseAsVec(n)
	} else if v.Len() != n {
		return newError(componentAssembler, op, ErrDimensionMismatch,
			"gradient has length %d, want %d", v.Len(), n)
	}
	v.Zero()
	return nil
}

func prepareDense(op string, m *mat.Dense, n int) error {
	if m.IsEmpty() {
		m.ReuseAs(n, n)
	} else if r, c := m.Dims(); r != n || c != n {
		return newError(componentAssembler, op, ErrDimensionMismatch,
			"hessian is %dx%d, want %dx%d", r, c, n, n)
	}
	m.Zero()
	return nil
}
