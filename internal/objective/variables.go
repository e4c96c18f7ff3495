package objective

import "time"

const componentVariables = "variables"

// Var is an opaque handle to a registered variable block. Handles are only
// valid for the Function that issued them; the zero Var is never valid.
type Var struct {
	reg *variableRegistry
	id  int
}

// variable is one registered block. scratch is shared by every term that
// references the block and is only written by copyGlobalToLocal.
type variable struct {
	block   []float64
	dim     int
	offset  int
	scratch []float64
}

// variableRegistry maps caller-owned blocks to contiguous ranges of the
// global vector. Offsets are assigned in registration order and never change.
type variableRegistry struct {
	vars    []*variable
	byAddr  map[*float64]int
	scalars int
	stats   *statsCounters
}

func newVariableRegistry(stats *statsCounters) *variableRegistry {
	return &variableRegistry{
		byAddr: make(map[*float64]int),
		stats:  stats,
	}
}

// add registers block. A block is identified by the address of its first
// element, so re-slicing the same array from the same start yields the same
// variable.
func (r *variableRegistry) add(block []float64) (Var, error) {
	const op = "AddVariable"

	if len(block) == 0 {
		return Var{}, newError(componentVariables, op, ErrDimensionMismatch,
			"variable dimension must be positive")
	}

	key := &block[0]
	if id, ok := r.byAddr[key]; ok {
		if r.vars[id].dim != len(block) {
			return Var{}, newError(componentVariables, op, ErrDimensionMismatch,
				"variable registered with dimension %d, got %d", r.vars[id].dim, len(block))
		}
		return Var{reg: r, id: id}, nil
	}

	id := len(r.vars)
	r.vars = append(r.vars, &variable{
		block:   block,
		dim:     len(block),
		offset:  r.scalars,
		scratch: make([]float64, len(block)),
	})
	r.byAddr[key] = id
	r.scalars += len(block)
	return Var{reg: r, id: id}, nil
}

// lookup resolves a handle issued by this registry.
func (r *variableRegistry) lookup(op string, v Var) (*variable, error) {
	if v.reg != r || v.id < 0 || v.id >= len(r.vars) {
		return nil, newError(componentVariables, op, ErrUnknownVariable,
			"handle was not issued by this function")
	}
	return r.vars[v.id], nil
}

// rebind points an existing variable at new caller storage of the same size.
func (r *variableRegistry) rebind(v Var, block []float64) error {
	const op = "Rebind"

	vr, err := r.lookup(op, v)
	if err != nil {
		return err
	}
	if len(block) != vr.dim {
		return newError(componentVariables, op, ErrDimensionMismatch,
			"variable registered with dimension %d, got %d", vr.dim, len(block))
	}
	newKey := &block[0]
	if id, ok := r.byAddr[newKey]; ok && id != v.id {
		return newError(componentVariables, op, ErrBlockInUse,
			"block already registered as variable %d", id)
	}

	delete(r.byAddr, &vr.block[0])
	r.byAddr[newKey] = v.id
	vr.block = block
	return nil
}

func (r *variableRegistry) checkLength(op string, x []float64) error {
	if len(x) != r.scalars {
		return newError(componentVariables, op, ErrDimensionMismatch,
			"global vector has length %d, want %d", len(x), r.scalars)
	}
	return nil
}

// copyGlobalToLocal fills every variable's scratch from x.
func (r *variableRegistry) copyGlobalToLocal(x []float64) error {
	if err := r.checkLength("copyGlobalToLocal", x); err != nil {
		return err
	}
	start := time.Now()
	for _, v := range r.vars {
		copy(v.scratch, x[v.offset:v.offset+v.dim])
	}
	r.stats.copy.add(time.Since(start))
	return nil
}

// copyUserToGlobal writes the live blocks into x in registration order.
func (r *variableRegistry) copyUserToGlobal(x []float64) error {
	if err := r.checkLength("copyUserToGlobal", x); err != nil {
		return err
	}
	start := time.Now()
	for _, v := range r.vars {
		copy(x[v.offset:v.offset+v.dim], v.block)
	}
	r.stats.copy.add(time.Since(start))
	return nil
}

// copyGlobalToUser writes x back into the live blocks.
func (r *variableRegistry) copyGlobalToUser(x []float64) error {
	if err := r.checkLength("copyGlobalToUser", x); err != nil {
		return err
	}
	start := time.Now()
	for _, v := range r.vars {
		copy(v.block, x[v.offset:v.offset+v.dim])
	}
	r.stats.copy.add(time.Since(start))
	return nil
}
