package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/sumfunc/internal/config"
	"github.com/copyleftdev/sumfunc/internal/errors"
	"github.com/copyleftdev/sumfunc/internal/objective"
	"github.com/copyleftdev/sumfunc/internal/objective/terms"
)

// requestValidate is shared by all handlers; validator caches struct
// metadata and is safe for concurrent use.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("termkind", func(fl validator.FieldLevel) bool {
		return terms.IsKind(fl.Field().String())
	})
	_ = requestValidate.RegisterValidation("method", func(fl validator.FieldLevel) bool {
		return config.ValidMethod(fl.Field().String())
	})
}

// VariableSpec is one named variable block and its starting value.
type VariableSpec struct {
	Name  string    `json:"name" validate:"required"`
	Value []float64 `json:"value" validate:"required,min=1"`
}

// TermSpec is one term built by the terms library, applied to the named
// variables in Args order.
type TermSpec struct {
	Type   string    `json:"type" validate:"required,termkind"`
	Args   []string  `json:"args" validate:"required,min=1,dive,required"`
	Params []float64 `json:"params,omitempty"`
}

// ProblemRequest describes an objective and how to minimize it.
type ProblemRequest struct {
	Variables     []VariableSpec `json:"variables" validate:"required,min=1,unique=Name,dive"`
	Terms         []TermSpec     `json:"terms" validate:"required,min=1,dive"`
	Method        string         `json:"method,omitempty" validate:"omitempty,method"`
	MaxIterations int            `json:"max_iterations,omitempty" validate:"gte=0"`
}

// Validate checks the request against its tags and the configured limits.
func (req *ProblemRequest) Validate(cfg *config.Config) error {
	if err := requestValidate.Struct(req); err != nil {
		return errors.WithStatus(errors.Wrap(err, "invalid problem"), http.StatusBadRequest)
	}
	if limit := cfg.Objective.MaxVariables; limit > 0 && len(req.Variables) > limit {
		return errors.WithStatus(errors.Errorf("too many variables: %d > %d", len(req.Variables), limit), http.StatusBadRequest)
	}
	if limit := cfg.Objective.MaxTerms; limit > 0 && len(req.Terms) > limit {
		return errors.WithStatus(errors.Errorf("too many terms: %d > %d", len(req.Terms), limit), http.StatusBadRequest)
	}
	if limit := cfg.Objective.MaxScalars; limit > 0 {
		scalars := 0
		for _, vs := range req.Variables {
			scalars += len(vs.Value)
		}
		if scalars > limit {
			return errors.WithStatus(errors.Errorf("too many scalars: %d > %d", scalars, limit), http.StatusBadRequest)
		}
	}
	return nil
}

// builtProblem is a Function assembled from a request, with the blocks it
// reads and writes.
type builtProblem struct {
	f      *objective.Function
	names  []string
	blocks map[string][]float64
	vars   map[string]objective.Var
}

func (s *Server) build(req *ProblemRequest) (*builtProblem, error) {
	opts := []objective.Option{objective.WithLogger(s.zlog)}
	if n := s.cfg.Objective.WorkerCount; n > 0 {
		opts = append(opts, objective.WithWorkers(n))
	}

	bp := &builtProblem{
		f:      objective.New(opts...),
		names:  make([]string, 0, len(req.Variables)),
		blocks: make(map[string][]float64, len(req.Variables)),
		vars:   make(map[string]objective.Var, len(req.Variables)),
	}
	for _, vs := range req.Variables {
		block := append([]float64(nil), vs.Value...)
		v, err := bp.f.AddVariable(block)
		if err != nil {
			return nil, errors.WithStatus(errors.Wrapf(err, "variable %q", vs.Name), http.StatusBadRequest)
		}
		bp.names = append(bp.names, vs.Name)
		bp.blocks[vs.Name] = block
		bp.vars[vs.Name] = v
	}

	for i, ts := range req.Terms {
		args := make([]objective.Var, len(ts.Args))
		dims := make([]int, len(ts.Args))
		for k, name := range ts.Args {
			v, ok := bp.vars[name]
			if !ok {
				return nil, errors.WithStatus(errors.Errorf("term %d: unknown variable %q", i, name), http.StatusBadRequest)
			}
			args[k] = v
			dims[k] = len(bp.blocks[name])
		}
		term, err := terms.Build(ts.Type, dims, ts.Params)
		if err != nil {
			return nil, errors.WithStatus(errors.Wrapf(err, "term %d", i), http.StatusBadRequest)
		}
		if err := bp.f.AddTerm(term, args...); err != nil {
			return nil, errors.WithStatus(errors.Wrapf(err, "term %d", i), http.StatusBadRequest)
		}
	}
	return bp, nil
}

// StatsView is objective.Stats in seconds.
type StatsView struct {
	CopySeconds                 float64 `json:"copy_seconds"`
	EvaluateSeconds             float64 `json:"evaluate_seconds"`
	EvaluateHessianSeconds      float64 `json:"evaluate_hessian_seconds"`
	WriteGradientHessianSeconds float64 `json:"write_gradient_hessian_seconds"`
	Evaluations                 int64   `json:"evaluations"`
	DerivativeEvaluations       int64   `json:"derivative_evaluations"`
}

func newStatsView(st objective.Stats) StatsView {
	return StatsView{
		CopySeconds:                 st.CopyTime.Seconds(),
		EvaluateSeconds:             st.EvaluateTime.Seconds(),
		EvaluateHessianSeconds:      st.EvaluateWithHessianTime.Seconds(),
		WriteGradientHessianSeconds: st.WriteGradientHessianTime.Seconds(),
		Evaluations:                 st.Evaluations,
		DerivativeEvaluations:       st.DerivativeEvaluations,
	}
}

// Result is a finished minimization run.
type Result struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"` // "completed" or "failed"
	Termination string               `json:"termination,omitempty"`
	Method      string               `json:"method"`
	Value       *float64             `json:"value,omitempty"`
	GradNorm    *float64             `json:"gradient_norm,omitempty"`
	Variables   map[string][]float64 `json:"variables"`
	Iterations  int                  `json:"iterations"`
	Error       string               `json:"error,omitempty"`
	Stats       StatsView            `json:"stats"`
	StartTime   time.Time            `json:"start_time"`
	EndTime     time.Time            `json:"end_time"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newMethod(name string) (optimize.Method, error) {
	switch name {
	case "newton":
		return &optimize.Newton{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "lbfgs":
		return &optimize.LBFGS{}, nil
	case "neldermead":
		return &optimize.NelderMead{}, nil
	default:
		return nil, fmt.Errorf("unknown method %q", name)
	}
}

// minimize validates and builds req, runs it to completion and returns the
// result. Only request errors are returned; a failed run is a Result.
func (s *Server) minimize(ctx context.Context, req *ProblemRequest) (*Result, error) {
	if err := req.Validate(s.cfg); err != nil {
		return nil, err
	}

	methodName := req.Method
	if methodName == "" {
		methodName = s.cfg.Objective.Method
	}
	method, err := newMethod(methodName)
	if err != nil {
		return nil, errors.WithStatus(err, http.StatusBadRequest)
	}
	maxIter := req.MaxIterations
	if maxIter == 0 {
		maxIter = s.cfg.Objective.MaxIterations
	}

	bp, err := s.build(req)
	if err != nil {
		return nil, err
	}
	defer bp.f.Close()

	res := &Result{
		Method:    methodName,
		StartTime: time.Now().UTC(),
	}
	opt, runErr := objective.MinimizeContext(ctx, bp.f, method, &optimize.Settings{MajorIterations: maxIter})
	res.EndTime = time.Now().UTC()

	res.Status = "completed"
	if runErr != nil {
		res.Status = "failed"
		res.Error = runErr.Error()
	}
	if opt != nil {
		res.Termination = opt.Status.String()
		res.Iterations = opt.Stats.MajorIterations
	}

	res.Variables = make(map[string][]float64, len(bp.names))
	for _, name := range bp.names {
		block := bp.blocks[name]
		for _, v := range block {
			if finite(v) == nil {
				// JSON has no encoding for NaN or Inf.
				block = nil
				res.Status = "failed"
				res.Error = fmt.Sprintf("variable %q diverged", name)
				break
			}
		}
		res.Variables[name] = block
	}
	if value, grad, _, err := bp.f.EvaluateSparse(bp.f.Pack()); err == nil {
		res.Value = finite(value)
		res.GradNorm = finite(mat.Norm(grad, 2))
	}

	st := bp.f.Stats()
	res.Stats = newStatsView(st)
	s.metrics.observe(methodName, res.Status, res.EndTime.Sub(res.StartTime).Seconds(), st)
	return res, nil
}

// PatternResult is the structural Hessian of a problem in coordinate form,
// rows then columns ascending.
type PatternResult struct {
	Dimension       int            `json:"dimension"`
	NNZ             int            `json:"nnz"`
	HessianElements int            `json:"hessian_elements"`
	Offsets         map[string]int `json:"offsets"`
	Rows            []int          `json:"rows"`
	Cols            []int          `json:"cols"`
}

func (s *Server) pattern(req *ProblemRequest) (*PatternResult, error) {
	if err := req.Validate(s.cfg); err != nil {
		return nil, err
	}
	bp, err := s.build(req)
	if err != nil {
		return nil, err
	}
	defer bp.f.Close()

	csr, err := bp.f.SparsityPattern()
	if err != nil {
		return nil, errors.WithStatus(err, http.StatusUnprocessableEntity)
	}

	out := &PatternResult{
		Dimension:       bp.f.NumScalars(),
		NNZ:             csr.NNZ(),
		HessianElements: bp.f.HessianElements(),
		Offsets:         make(map[string]int, len(bp.names)),
		Rows:            make([]int, 0, csr.NNZ()),
		Cols:            make([]int, 0, csr.NNZ()),
	}
	for _, name := range bp.names {
		off, err := bp.f.GlobalOffset(bp.vars[name])
		if err != nil {
			return nil, errors.Wrapf(err, "offset of %q", name)
		}
		out.Offsets[name] = off
	}
	csr.DoNonZero(func(i, j int, _ float64) {
		out.Rows = append(out.Rows, i)
		out.Cols = append(out.Cols, j)
	})
	return out, nil
}
