package objective

import (
	"io"
	"reflect"

	"gonum.org/v1/gonum/mat"
)

const componentTerms = "terms"

// addedTerm is a registered term together with its private scratch.
type addedTerm struct {
	term Term
	args []Var
	vars []*variable

	// values[i] aliases vars[i].scratch; live is refilled from vars[i].block
	// on every live evaluation so that Rebind takes effect.
	values [][]float64
	live   [][]float64

	grad []*mat.VecDense
	hess [][]*mat.Dense

	value float64
}

// termRegistry stores terms in registration order.
type termRegistry struct {
	vars      *variableRegistry
	ownership TermOwnership

	terms   []*addedTerm
	closers []io.Closer
	seen    map[Term]struct{}
}

func newTermRegistry(vars *variableRegistry, ownership TermOwnership) *termRegistry {
	return &termRegistry{
		vars:      vars,
		ownership: ownership,
		seen:      make(map[Term]struct{}),
	}
}

// add validates t against args and records it. Nothing is modified unless
// every check passes.
func (r *termRegistry) add(t Term, args []Var) error {
	const op = "AddTerm"

	if t == nil {
		return newError(componentTerms, op, ErrArityMismatch, "term is nil")
	}
	k := t.NumVariables()
	if k != len(args) {
		return newError(componentTerms, op, ErrArityMismatch,
			"term takes %d variables, got %d", k, len(args))
	}

	vars := make([]*variable, k)
	for i, a := range args {
		v, err := r.vars.lookup(op, a)
		if err != nil {
			return newError(componentTerms, op, ErrUnknownVariable, "argument %d", i)
		}
		if want := t.VariableDimension(i); v.dim != want {
			return newError(componentTerms, op, ErrDimensionMismatch,
				"argument %d has dimension %d, term expects %d", i, v.dim, want)
		}
		vars[i] = v
	}

	at := &addedTerm{
		term:   t,
		args:   append([]Var(nil), args...),
		vars:   vars,
		values: make([][]float64, k),
		live:   make([][]float64, k),
		grad:   make([]*mat.VecDense, k),
		hess:   make([][]*mat.Dense, k),
	}
	for i, v := range vars {
		at.values[i] = v.scratch
		at.grad[i] = mat.NewVecDense(v.dim, nil)
		at.hess[i] = make([]*mat.Dense, k)
		for j, w := range vars {
			at.hess[i][j] = mat.NewDense(v.dim, w.dim, nil)
		}
	}

	r.track(t)
	r.terms = append(r.terms, at)
	return nil
}

// track remembers t for Close. Terms whose dynamic value cannot be hashed, such
// as a struct holding a slice in an interface field, are tracked per
// registration.
func (r *termRegistry) track(t Term) {
	c, ok := t.(io.Closer)
	if !ok {
		return
	}
	if reflect.ValueOf(t).Comparable() {
		if _, dup := r.seen[t]; dup {
			return
		}
		r.seen[t] = struct{}{}
	}
	r.closers = append(r.closers, c)
}

// close closes owned terms once and forgets them.
func (r *termRegistry) close() error {
	var first error
	if r.ownership == OwnTerms {
		for _, c := range r.closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	r.closers = nil
	r.seen = make(map[Term]struct{})
	return first
}

// liveArgs returns the term arguments as views of the caller's blocks.
func (at *addedTerm) liveArgs() [][]float64 {
	for i, v := range at.vars {
		at.live[i] = v.block
	}
	return at.live
}

// resetScratch zeroes the private gradient and Hessian blocks.
func (at *addedTerm) resetScratch() {
	for i := range at.grad {
		at.grad[i].Zero()
		for j := range at.hess[i] {
			at.hess[i][j].Zero()
		}
	}
}
