package formula

import (
	"fmt"
	"math/big"
)

// BuildError reports a misuse of the builder API, most commonly an
// impossible sort pairing. Builders panic with it; Predicate.Apply and
// the translator recover it into their own error channels.
type BuildError struct {
	Op  string
	Msg string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("formula: %s: %s", e.Op, e.Msg)
}

func fail(op, format string, args ...any) Expr {
	panic(&BuildError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// RecoverBuild converts a BuildError panic into an error return. It is
// meant to be deferred by code that evaluates untrusted builder calls.
func RecoverBuild(err *error) {
	if r := recover(); r != nil {
		be, ok := r.(*BuildError)
		if !ok {
			panic(r)
		}
		*err = be
	}
}

// V builds a free variable of the given sort.
func V(name string, s Sort) Expr { return Var{Name: name, S: s} }

// I builds an integer literal.
func I(v int64) Expr { return IntLit{Val: v} }

// R builds a real literal from a float64, exactly.
func R(v float64) Expr {
	r := new(big.Rat)
	if r.SetFloat64(v) == nil {
		fail("real", "not a finite value: %v", v)
	}
	return RealLit{Val: r}
}

// Rat builds a real literal from an exact rational.
func Rat(v *big.Rat) Expr { return RealLit{Val: new(big.Rat).Set(v)} }

// B builds a boolean literal.
func B(v bool) Expr { return BoolLit{Val: v} }

// boolToInt lowers a Boolean operand into the 0/1 Integer encoding.
func boolToInt(x Expr) Expr {
	if l, ok := x.(BoolLit); ok {
		if l.Val {
			return IntLit{Val: 1}
		}
		return IntLit{Val: 0}
	}
	return Ite{Cond: x, Then: IntLit{Val: 1}, Else: IntLit{Val: 0}}
}

// toReal wraps x in an Int→Real cast, folding literals.
func toReal(x Expr) Expr {
	if l, ok := x.(IntLit); ok {
		return RealLit{Val: new(big.Rat).SetInt64(l.Val)}
	}
	return Cast{To: RealSort, X: x}
}

// Coerce promotes two operands to a common sort: identical sorts pass
// through, Integer promotes to Real, Boolean promotes to Integer. Any
// other pairing panics with a BuildError.
func Coerce(op string, a, b Expr) (Expr, Expr) {
	as, bs := a.Sort(), b.Sort()
	switch {
	case as.Equal(bs):
		return a, b
	case as.Kind == KindInt && bs.Kind == KindReal:
		return toReal(a), b
	case as.Kind == KindReal && bs.Kind == KindInt:
		return a, toReal(b)
	case as.Kind == KindBool && bs.Numeric():
		return Coerce(op, boolToInt(a), b)
	case bs.Kind == KindBool && as.Numeric():
		return Coerce(op, a, boolToInt(b))
	default:
		fail(op, "cannot coerce sorts %s and %s", as, bs)
		return nil, nil
	}
}

func binary(op BinOp, name string, x, y Expr) Expr {
	x, y = Coerce(name, x, y)
	if !x.Sort().Numeric() {
		fail(name, "operands must be numeric, got %s", x.Sort())
	}
	if folded, ok := foldBinary(op, x, y); ok {
		return folded
	}
	if op == OpDiv && x.Sort().Kind == KindInt {
		op = OpIntDiv
	}
	return Binary{Op: op, X: x, Y: y}
}

// Add builds x + y.
func Add(x, y Expr) Expr { return binary(OpAdd, "add", x, y) }

// Sub builds x - y.
func Sub(x, y Expr) Expr { return binary(OpSub, "sub", x, y) }

// Mul builds x * y.
func Mul(x, y Expr) Expr { return binary(OpMul, "mul", x, y) }

// Div builds x / y: real division on Real operands, integer division
// truncating toward zero on Integer operands.
func Div(x, y Expr) Expr { return binary(OpDiv, "div", x, y) }

// Mod builds x % y; defined on the Integer sort only. The result takes
// the dividend's sign.
func Mod(x, y Expr) Expr {
	x, y = Coerce("mod", x, y)
	if x.Sort().Kind != KindInt {
		fail("mod", "modulo requires Integer operands, got %s", x.Sort())
	}
	if folded, ok := foldBinary(OpMod, x, y); ok {
		return folded
	}
	return Binary{Op: OpMod, X: x, Y: y}
}

// Pow expands x**k for constant exponents 0 through 3.
func Pow(x Expr, k int64) Expr {
	if !x.Sort().Numeric() {
		fail("pow", "base must be numeric, got %s", x.Sort())
	}
	switch k {
	case 0:
		if x.Sort().Kind == KindReal {
			return R(1)
		}
		return I(1)
	case 1:
		return x
	case 2:
		return Mul(x, x)
	case 3:
		return Mul(Mul(x, x), x)
	default:
		return fail("pow", "only constant exponents 0-3 are supported, got %d", k)
	}
}

// Negate builds -x.
func Negate(x Expr) Expr {
	if !x.Sort().Numeric() {
		x = boolToInt(x)
	}
	switch l := x.(type) {
	case IntLit:
		return IntLit{Val: -l.Val}
	case RealLit:
		return RealLit{Val: new(big.Rat).Neg(l.Val)}
	}
	return Neg{X: x}
}

// NotOf builds logical negation.
func NotOf(x Expr) Expr {
	if x.Sort().Kind != KindBool {
		fail("not", "operand must be Boolean, got %s", x.Sort())
	}
	if l, ok := x.(BoolLit); ok {
		return BoolLit{Val: !l.Val}
	}
	return Not{X: x}
}

func compare(op CmpOp, x, y Expr) Expr {
	x, y = Coerce(op.String(), x, y)
	if x.Sort().Kind == KindBool && op != OpEq && op != OpNe {
		fail(op.String(), "ordering requires numeric operands, got %s", x.Sort())
	}
	if x.Sort().Kind == KindTuple {
		if op != OpEq && op != OpNe {
			fail(op.String(), "tuples admit only equality")
		}
		return tupleEq(op, x, y)
	}
	if folded, ok := foldCompare(op, x, y); ok {
		return folded
	}
	return Compare{Op: op, X: x, Y: y}
}

// Lt builds x < y.
func Lt(x, y Expr) Expr { return compare(OpLt, x, y) }

// Le builds x <= y.
func Le(x, y Expr) Expr { return compare(OpLe, x, y) }

// Gt builds x > y.
func Gt(x, y Expr) Expr { return compare(OpGt, x, y) }

// Ge builds x >= y.
func Ge(x, y Expr) Expr { return compare(OpGe, x, y) }

// Eq builds x == y.
func Eq(x, y Expr) Expr { return compare(OpEq, x, y) }

// Ne builds x != y.
func Ne(x, y Expr) Expr { return compare(OpNe, x, y) }

// Conj builds the conjunction of xs, folding literals.
func Conj(xs ...Expr) Expr {
	kept := make([]Expr, 0, len(xs))
	for _, x := range xs {
		if x.Sort().Kind != KindBool {
			fail("and", "operand must be Boolean, got %s", x.Sort())
		}
		if l, ok := x.(BoolLit); ok {
			if !l.Val {
				return BoolLit{Val: false}
			}
			continue
		}
		kept = append(kept, x)
	}
	switch len(kept) {
	case 0:
		return BoolLit{Val: true}
	case 1:
		return kept[0]
	}
	return And{Xs: kept}
}

// Disj builds the disjunction of xs, folding literals.
func Disj(xs ...Expr) Expr {
	kept := make([]Expr, 0, len(xs))
	for _, x := range xs {
		if x.Sort().Kind != KindBool {
			fail("or", "operand must be Boolean, got %s", x.Sort())
		}
		if l, ok := x.(BoolLit); ok {
			if l.Val {
				return BoolLit{Val: true}
			}
			continue
		}
		kept = append(kept, x)
	}
	switch len(kept) {
	case 0:
		return BoolLit{Val: false}
	case 1:
		return kept[0]
	}
	return Or{Xs: kept}
}

// IteOf builds a conditional expression, coercing the arms to a common
// sort and folding literal conditions.
func IteOf(cond, then, els Expr) Expr {
	if cond.Sort().Kind != KindBool {
		fail("ite", "condition must be Boolean, got %s", cond.Sort())
	}
	if ts, es := then.Sort(), els.Sort(); ts.Kind == KindTuple || es.Kind == KindTuple {
		if !ts.Equal(es) {
			fail("ite", "cannot coerce sorts %s and %s", ts, es)
		}
	} else {
		then, els = Coerce("ite", then, els)
	}
	if l, ok := cond.(BoolLit); ok {
		if l.Val {
			return then
		}
		return els
	}
	return Ite{Cond: cond, Then: then, Else: els}
}

// Min builds the smaller of x and y.
func Min(x, y Expr) Expr {
	x, y = Coerce("min", x, y)
	return IteOf(Le(x, y), x, y)
}

// Max builds the larger of x and y.
func Max(x, y Expr) Expr {
	x, y = Coerce("max", x, y)
	return IteOf(Ge(x, y), x, y)
}

// Abs builds the absolute value of x.
func Abs(x Expr) Expr {
	if !x.Sort().Numeric() {
		fail("abs", "operand must be numeric, got %s", x.Sort())
	}
	zero := Expr(IntLit{Val: 0})
	if x.Sort().Kind == KindReal {
		zero = RealLit{Val: new(big.Rat)}
	}
	return IteOf(Ge(x, zero), x, Negate(x))
}

// ToReal builds the Integer→Real promotion of x.
func ToReal(x Expr) Expr {
	switch x.Sort().Kind {
	case KindReal:
		return x
	case KindInt:
		return toReal(x)
	case KindBool:
		return toReal(boolToInt(x))
	}
	return fail("real", "cannot convert %s to Real", x.Sort())
}

// ToInt builds the Real→Integer conversion (floor) of x.
func ToInt(x Expr) Expr {
	switch x.Sort().Kind {
	case KindInt:
		return x
	case KindBool:
		return boolToInt(x)
	case KindReal:
		if l, ok := x.(RealLit); ok && l.Val.IsInt() {
			return IntLit{Val: l.Val.Num().Int64()}
		}
		return Cast{To: IntSort, X: x}
	}
	return fail("int", "cannot convert %s to Int", x.Sort())
}

// ToBool builds the numeric→Boolean conversion x != 0.
func ToBool(x Expr) Expr {
	if x.Sort().Kind == KindBool {
		return x
	}
	if !x.Sort().Numeric() {
		fail("bool", "cannot convert %s to Bool", x.Sort())
	}
	return Ne(x, IntLit{Val: 0})
}

// TupleOf builds a tuple from element expressions.
func TupleOf(elems ...Expr) Expr { return Tuple{Elems: elems} }

// AtOf selects a tuple element by constant index, distributing the
// selection over conditionals and structural tuples so that the solver
// only ever sees selections on opaque (uninterpreted) tuples.
func AtOf(t Expr, i int) Expr {
	s := t.Sort()
	if s.Kind != KindTuple {
		fail("at", "subscript base must be a tuple, got %s", s)
	}
	if i < 0 || i >= len(s.Elems) {
		fail("at", "index %d out of range for %s", i, s)
	}
	switch t := t.(type) {
	case Tuple:
		return t.Elems[i]
	case Ite:
		return IteOf(t.Cond, AtOf(t.Then, i), AtOf(t.Else, i))
	}
	return At{Tup: t, Index: i}
}

// tupleEq expands tuple (in)equality into elementwise comparison.
func tupleEq(op CmpOp, x, y Expr) Expr {
	xs, ys := x.Sort(), y.Sort()
	if !xs.Equal(ys) {
		fail(op.String(), "cannot compare tuples of sorts %s and %s", xs, ys)
	}
	parts := make([]Expr, len(xs.Elems))
	for i := range xs.Elems {
		parts[i] = Eq(AtOf(x, i), AtOf(y, i))
	}
	all := Conj(parts...)
	if op == OpNe {
		return NotOf(all)
	}
	return all
}

// foldBinary evaluates arithmetic on literal operands.
func foldBinary(op BinOp, x, y Expr) (Expr, bool) {
	if a, ok := x.(IntLit); ok {
		if b, ok := y.(IntLit); ok {
			switch op {
			case OpAdd:
				return IntLit{Val: a.Val + b.Val}, true
			case OpSub:
				return IntLit{Val: a.Val - b.Val}, true
			case OpMul:
				return IntLit{Val: a.Val * b.Val}, true
			case OpDiv, OpIntDiv:
				if b.Val == 0 {
					return nil, false
				}
				return IntLit{Val: a.Val / b.Val}, true
			case OpMod:
				if b.Val == 0 {
					return nil, false
				}
				return IntLit{Val: a.Val % b.Val}, true
			}
		}
	}
	if a, ok := x.(RealLit); ok {
		if b, ok := y.(RealLit); ok {
			r := new(big.Rat)
			switch op {
			case OpAdd:
				return RealLit{Val: r.Add(a.Val, b.Val)}, true
			case OpSub:
				return RealLit{Val: r.Sub(a.Val, b.Val)}, true
			case OpMul:
				return RealLit{Val: r.Mul(a.Val, b.Val)}, true
			case OpDiv:
				if b.Val.Sign() == 0 {
					return nil, false
				}
				return RealLit{Val: r.Quo(a.Val, b.Val)}, true
			}
		}
	}
	return nil, false
}

// foldCompare evaluates comparisons on literal operands.
func foldCompare(op CmpOp, x, y Expr) (Expr, bool) {
	var cmp int
	switch a := x.(type) {
	case IntLit:
		b, ok := y.(IntLit)
		if !ok {
			return nil, false
		}
		switch {
		case a.Val < b.Val:
			cmp = -1
		case a.Val > b.Val:
			cmp = 1
		}
	case RealLit:
		b, ok := y.(RealLit)
		if !ok {
			return nil, false
		}
		cmp = a.Val.Cmp(b.Val)
	case BoolLit:
		b, ok := y.(BoolLit)
		if !ok {
			return nil, false
		}
		switch op {
		case OpEq:
			return BoolLit{Val: a.Val == b.Val}, true
		case OpNe:
			return BoolLit{Val: a.Val != b.Val}, true
		}
		return nil, false
	default:
		return nil, false
	}
	switch op {
	case OpLt:
		return BoolLit{Val: cmp < 0}, true
	case OpLe:
		return BoolLit{Val: cmp <= 0}, true
	case OpGt:
		return BoolLit{Val: cmp > 0}, true
	case OpGe:
		return BoolLit{Val: cmp >= 0}, true
	case OpEq:
		return BoolLit{Val: cmp == 0}, true
	case OpNe:
		return BoolLit{Val: cmp != 0}, true
	}
	return nil, false
}
