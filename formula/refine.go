package formula

import "fmt"

type refineOp int

const (
	refGt refineOp = iota
	refGe
	refLt
	refLe
	refBetween
	refNotEq
	refWhere
)

// Refinement is a declarative bound attachable to a parameter or the
// return value; it expands into one or more formulas over the
// corresponding symbolic variable.
type Refinement struct {
	op     refineOp
	lo, hi Expr
	where  func(Expr) Expr
}

// RefGt bounds a variable strictly above b.
func RefGt(b Expr) Refinement { return Refinement{op: refGt, lo: b} }

// RefGe bounds a variable at or above b.
func RefGe(b Expr) Refinement { return Refinement{op: refGe, lo: b} }

// RefLt bounds a variable strictly below b.
func RefLt(b Expr) Refinement { return Refinement{op: refLt, hi: b} }

// RefLe bounds a variable at or below b.
func RefLe(b Expr) Refinement { return Refinement{op: refLe, hi: b} }

// RefBetween bounds a variable to the inclusive interval [lo, hi].
func RefBetween(lo, hi Expr) Refinement {
	return Refinement{op: refBetween, lo: lo, hi: hi}
}

// RefNotEq excludes a single value.
func RefNotEq(v Expr) Refinement { return Refinement{op: refNotEq, lo: v} }

// RefWhere attaches an arbitrary predicate over the variable.
func RefWhere(fn func(v Expr) Expr) Refinement {
	return Refinement{op: refWhere, where: fn}
}

// Constrain expands the refinement into formulas over v. Panics from
// an arbitrary-predicate refinement are recovered into the error.
func (r Refinement) Constrain(v Expr) (out []Expr, err error) {
	defer RecoverBuild(&err)
	switch r.op {
	case refGt:
		return []Expr{Gt(v, r.lo)}, nil
	case refGe:
		return []Expr{Ge(v, r.lo)}, nil
	case refLt:
		return []Expr{Lt(v, r.hi)}, nil
	case refLe:
		return []Expr{Le(v, r.hi)}, nil
	case refBetween:
		return []Expr{Ge(v, r.lo), Le(v, r.hi)}, nil
	case refNotEq:
		return []Expr{Ne(v, r.lo)}, nil
	case refWhere:
		defer func() {
			if rec := recover(); rec != nil {
				out, err = nil, fmt.Errorf("refinement predicate failed: %v", rec)
			}
		}()
		e := r.where(v)
		if e == nil || e.Sort().Kind != KindBool {
			return nil, fmt.Errorf("refinement predicate must return a Boolean formula")
		}
		return []Expr{e}, nil
	}
	return nil, fmt.Errorf("unknown refinement")
}
