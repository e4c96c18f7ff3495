// Package objective assembles a scalar objective written as a sum of terms
// over caller-owned variable blocks.
//
// Variables are registered once and laid out contiguously, in registration
// order, in a global vector. Terms are registered against variable handles
// and receive private scratch for their gradient and Hessian blocks. Every
// evaluation reads the current registry state: derivative evaluations run the
// per-term work on a bounded worker pool and then scatter the results, term by
// term in registration order, into a dense or sparse global Hessian.
//
// A Function is not safe for concurrent use, with the exception of Stats.
package objective

import (
	"runtime"

	"go.uber.org/zap"
)

// Function is the objective engine.
type Function struct {
	vars  *variableRegistry
	terms *termRegistry
	stats *statsCounters

	workers int
	logger  *zap.Logger

	// hessianElements is the number of scattered Hessian entries, duplicates
	// included, seen by the last sparse assembly.
	hessianElements int
}

// Option configures a Function.
type Option func(*Function)

// WithWorkers bounds the number of goroutines evaluating terms in parallel.
// Values below 2 evaluate sequentially.
func WithWorkers(n int) Option {
	return func(f *Function) { f.workers = n }
}

// WithTermOwnership sets what Close does with registered terms.
func WithTermOwnership(o TermOwnership) Option {
	return func(f *Function) { f.terms.ownership = o }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(f *Function) {
		if l != nil {
			f.logger = l.Named("objective")
		}
	}
}

// New creates an empty Function. By default it owns its terms and uses
// GOMAXPROCS workers.
func New(opts ...Option) *Function {
	stats := &statsCounters{}
	vars := newVariableRegistry(stats)
	f := &Function{
		vars:    vars,
		terms:   newTermRegistry(vars, OwnTerms),
		stats:   stats,
		workers: runtime.GOMAXPROCS(0),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddVariable registers block and returns its handle. Registering the same
// block again returns the same handle as long as its length is unchanged.
// The caller keeps ownership of block; its backing array must not be
// replaced without a call to Rebind.
func (f *Function) AddVariable(block []float64) (Var, error) {
	before := f.vars.scalars
	v, err := f.vars.add(block)
	if err != nil {
		return Var{}, err
	}
	if f.vars.scalars != before {
		f.logger.Debug("Registered variable",
			zap.Int("dimension", len(block)),
			zap.Int("offset", before),
			zap.Int("scalars", f.vars.scalars),
		)
	}
	return v, nil
}

// Rebind moves an existing variable to new storage of the same length. Its
// offset in the global vector is unchanged.
func (f *Function) Rebind(v Var, block []float64) error {
	return f.vars.rebind(v, block)
}

// AddTerm registers t with the given arguments. On error the Function is
// left unchanged.
func (f *Function) AddTerm(t Term, args ...Var) error {
	if err := f.terms.add(t, args); err != nil {
		return err
	}
	f.logger.Debug("Registered term",
		zap.Int("arity", len(args)),
		zap.Int("terms", len(f.terms.terms)),
	)
	return nil
}

// NumScalars returns the length of the global vector.
func (f *Function) NumScalars() int { return f.vars.scalars }

// NumVariables returns the number of registered variables.
func (f *Function) NumVariables() int { return len(f.vars.vars) }

// NumTerms returns the number of registered terms.
func (f *Function) NumTerms() int { return len(f.terms.terms) }

// GlobalOffset returns the index of v's first scalar in the global vector.
func (f *Function) GlobalOffset(v Var) (int, error) {
	vr, err := f.vars.lookup("GlobalOffset", v)
	if err != nil {
		return 0, err
	}
	return vr.offset, nil
}

// Dimension returns the number of scalars in v.
func (f *Function) Dimension(v Var) (int, error) {
	vr, err := f.vars.lookup("Dimension", v)
	if err != nil {
		return 0, err
	}
	return vr.dim, nil
}

// Pack returns the current values of all live blocks as a global vector.
func (f *Function) Pack() []float64 {
	x := make([]float64, f.vars.scalars)
	// The length always matches.
	_ = f.vars.copyUserToGlobal(x)
	return x
}

// PackInto is Pack writing into x, which must have length NumScalars.
func (f *Function) PackInto(x []float64) error {
	return f.vars.copyUserToGlobal(x)
}

// Unpack writes x into the live blocks.
func (f *Function) Unpack(x []float64) error {
	return f.vars.copyGlobalToUser(x)
}

// HessianElements returns the number of Hessian entries scattered by the
// last sparse assembly, duplicates included.
func (f *Function) HessianElements() int { return f.hessianElements }

// Stats returns the cumulative timing counters.
func (f *Function) Stats() Stats { return f.stats.snapshot() }

// Close releases owned terms. The Function must not be used afterwards.
func (f *Function) Close() error {
	return f.terms.close()
}
