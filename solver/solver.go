// Package solver wraps the satisfiability oracle behind a small
// formula-level API: assert a set of formulas, get back one of three
// outcomes, and on a satisfiable outcome read scalar witness values out
// of the model.
package solver

import (
	"time"

	"github.com/aclements/go-z3/z3"
	"github.com/pkg/errors"

	"github.com/goprove/goprove/formula"
)

// Version names the oracle backing every proof, recorded into
// certificates so a cached proof carries its provenance.
const Version = "z3 (go-z3 bindings)"

// Outcome is the oracle's three-way verdict.
type Outcome int

const (
	// Unsat: no assignment satisfies the asserted formulas.
	Unsat Outcome = iota
	// Sat: a satisfying assignment exists and a model is available.
	Sat
	// Unknown: the oracle gave up, most often on timeout.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Unsat:
		return "unsat"
	case Sat:
		return "sat"
	case Unknown:
		return "unknown"
	}
	return "invalid"
}

// Solver is a single-check oracle instance. The timeout is fixed at
// construction because the underlying context bakes it in.
type Solver struct {
	ctx *z3.Context
	enc *encoder
}

// New builds a solver whose checks abort after the given timeout.
// A non-positive timeout means no limit.
func New(timeout time.Duration) *Solver {
	cfg := z3.NewContextConfig()
	if timeout > 0 {
		cfg.SetUint("timeout", uint(timeout.Milliseconds()))
	}
	ctx := z3.NewContext(cfg)
	return &Solver{ctx: ctx, enc: newEncoder(ctx)}
}

// Result is the outcome of one Check, with the model retained on Sat
// so witness values can be extracted.
type Result struct {
	Outcome Outcome
	Elapsed time.Duration
	Reason  string

	model *z3.Model
	enc   *encoder
}

// Check asserts the given formulas and asks the oracle for
// satisfiability. Encoding failures surface as errors, never panics.
func (s *Solver) Check(asserts []formula.Expr) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ee, ok := r.(*encodeError)
			if !ok {
				panic(r)
			}
			res, err = nil, errors.Errorf("encoding failed: %s", ee.msg)
		}
	}()

	sv := z3.NewSolver(s.ctx)
	for _, a := range asserts {
		sv.Assert(s.enc.encodeBool(a))
	}

	start := time.Now()
	sat, cerr := sv.Check()
	elapsed := time.Since(start)

	if cerr != nil {
		return &Result{Outcome: Unknown, Elapsed: elapsed, Reason: cerr.Error(), enc: s.enc}, nil
	}
	if !sat {
		return &Result{Outcome: Unsat, Elapsed: elapsed, enc: s.enc}, nil
	}
	return &Result{Outcome: Sat, Elapsed: elapsed, model: sv.Model(), enc: s.enc}, nil
}

// Eval reads the model's value for x as a native Go scalar: int64 (or
// a decimal string when it overflows), float64, or bool. It reports
// false when there is no model or the value cannot be read back.
func (r *Result) Eval(x formula.Expr) (val any, ok bool) {
	if r.model == nil {
		return nil, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			val, ok = nil, false
		}
	}()
	v := r.model.Eval(r.enc.encode(x), true)
	switch v := v.(type) {
	case z3.Int:
		b, exact := v.AsBigInt()
		if !exact {
			return v.String(), true
		}
		if b.IsInt64() {
			return b.Int64(), true
		}
		return b.String(), true
	case z3.Real:
		q, exact := v.AsBigRat()
		if !exact {
			return v.String(), true
		}
		if q.IsInt() && q.Num().IsInt64() {
			return q.Num().Int64(), true
		}
		f, _ := q.Float64()
		return f, true
	case z3.Bool:
		b, exact := v.AsBool()
		if !exact {
			return v.String(), true
		}
		return b, true
	}
	return nil, false
}
