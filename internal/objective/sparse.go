package objective

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// HessianAccumulator receives Hessian entries during the reduce phase.
// Entries for the same cell must combine by addition.
type HessianAccumulator interface {
	Add(i, j int, v float64)
}

// denseAccumulator adds straight into a dense matrix.
type denseAccumulator struct{ m *mat.Dense }

func (a denseAccumulator) Add(i, j int, v float64) {
	a.m.Set(i, j, a.m.At(i, j)+v)
}

// Triplets is an additive coordinate list. Duplicate cells are kept until
// ToCSR merges them.
type Triplets struct {
	n    int
	rows []int
	cols []int
	vals []float64
}

// NewTriplets returns an empty n×n list with room for capacity entries.
func NewTriplets(n, capacity int) *Triplets {
	return &Triplets{
		n:    n,
		rows: make([]int, 0, capacity),
		cols: make([]int, 0, capacity),
		vals: make([]float64, 0, capacity),
	}
}

// Add appends v at (i, j).
func (t *Triplets) Add(i, j int, v float64) {
	if i < 0 || j < 0 || i >= t.n || j >= t.n {
		panic(mat.ErrIndexOutOfRange)
	}
	t.rows = append(t.rows, i)
	t.cols = append(t.cols, j)
	t.vals = append(t.vals, v)
}

// Len returns the number of entries appended so far, duplicates included.
func (t *Triplets) Len() int { return len(t.vals) }

// ToCSR sorts the entries by row then column and sums duplicates.
func (t *Triplets) ToCSR() *CSR {
	order := make([]int, len(t.vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := t.rows[order[a]], t.rows[order[b]]
		if ra != rb {
			return ra < rb
		}
		return t.cols[order[a]] < t.cols[order[b]]
	})

	m := &CSR{
		n:      t.n,
		indptr: make([]int, t.n+1),
		ind:    make([]int, 0, len(order)),
		data:   make([]float64, 0, len(order)),
	}
	lastRow, lastCol := -1, -1
	for _, k := range order {
		r, c := t.rows[k], t.cols[k]
		if r == lastRow && c == lastCol {
			m.data[len(m.data)-1] += t.vals[k]
			continue
		}
		m.ind = append(m.ind, c)
		m.data = append(m.data, t.vals[k])
		m.indptr[r+1]++
		lastRow, lastCol = r, c
	}
	for r := 0; r < t.n; r++ {
		m.indptr[r+1] += m.indptr[r]
	}
	return m
}

// CSR is a square compressed sparse row matrix. Column indices within a row
// are strictly increasing.
type CSR struct {
	n      int
	indptr []int
	ind    []int
	data   []float64
}

// Dims implements mat.Matrix.
func (m *CSR) Dims() (r, c int) { return m.n, m.n }

// At implements mat.Matrix. Structurally absent cells read as zero.
func (m *CSR) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= m.n || j >= m.n {
		panic(mat.ErrIndexOutOfRange)
	}
	lo, hi := m.indptr[i], m.indptr[i+1]
	k := lo + sort.SearchInts(m.ind[lo:hi], j)
	if k < hi && m.ind[k] == j {
		return m.data[k]
	}
	return 0
}

// T implements mat.Matrix.
func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.data) }

// Has reports whether (i, j) is part of the structure.
func (m *CSR) Has(i, j int) bool {
	lo, hi := m.indptr[i], m.indptr[i+1]
	k := lo + sort.SearchInts(m.ind[lo:hi], j)
	return k < hi && m.ind[k] == j
}

// DoNonZero calls fn for every stored entry in row-major order.
func (m *CSR) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < m.n; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			fn(i, m.ind[k], m.data[k])
		}
	}
}

// ToDense expands m into a new dense matrix. An empty m yields nil.
func (m *CSR) ToDense() *mat.Dense {
	if m.n == 0 {
		return nil
	}
	d := mat.NewDense(m.n, m.n, nil)
	m.DoNonZero(func(i, j int, v float64) { d.Set(i, j, v) })
	return d
}

// setStructural overwrites every stored value with 1.
func (m *CSR) setStructural() {
	for k := range m.data {
		m.data[k] = 1
	}
}
