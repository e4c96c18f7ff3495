package objective

import "time"

// Evaluate returns the objective value at the global vector x. The live
// variable blocks are not touched.
func (f *Function) Evaluate(x []float64) (float64, error) {
	if err := f.vars.copyGlobalToLocal(x); err != nil {
		return 0, err
	}

	start := time.Now()
	value := 0.0
	for _, at := range f.terms.terms {
		value += at.term.Evaluate(at.values)
	}
	f.stats.evaluate.add(time.Since(start))
	f.stats.evaluations.Add(1)
	return value, nil
}

// EvaluateLive returns the objective value at the current contents of the
// live variable blocks, without going through a global vector. It agrees
// with Evaluate(f.Pack()).
func (f *Function) EvaluateLive() float64 {
	start := time.Now()
	value := 0.0
	for _, at := range f.terms.terms {
		value += at.term.Evaluate(at.liveArgs())
	}
	f.stats.evaluate.add(time.Since(start))
	f.stats.evaluations.Add(1)
	return value
}
