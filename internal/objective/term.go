package objective

import "gonum.org/v1/gonum/mat"

// Term is one additive contribution to the objective. It depends on a fixed,
// ordered list of variable blocks whose sizes it declares up front.
type Term interface {
	// NumVariables returns the number of variable blocks the term reads.
	NumVariables() int

	// VariableDimension returns the number of scalars in argument i.
	VariableDimension(i int) int

	// Evaluate returns the term value. x[i] holds argument i and must not be
	// modified.
	Evaluate(x [][]float64) float64

	// EvaluateDerivatives returns the term value and writes the gradient with
	// respect to argument i into grad[i] and the second derivative block with
	// respect to arguments i and j into hess[i][j]. Every output block is
	// zeroed before the call.
	EvaluateDerivatives(x [][]float64, grad []*mat.VecDense, hess [][]*mat.Dense) float64
}

// TermOwnership decides what Close does with registered terms.
type TermOwnership int

const (
	// OwnTerms closes every registered term implementing io.Closer when the
	// Function is closed. A term added several times is closed once.
	OwnTerms TermOwnership = iota
	// BorrowTerms leaves the terms to the caller.
	BorrowTerms
)

func (o TermOwnership) String() string {
	switch o {
	case OwnTerms:
		return "own"
	case BorrowTerms:
		return "borrow"
	default:
		return "unknown"
	}
}
