package solver

import (
	"fmt"
	"math/big"

	"github.com/aclements/go-z3/z3"

	"github.com/goprove/goprove/formula"
)

// encoder lowers formula terms into the oracle's term language. Free
// variables and uninterpreted functions are memoized so every mention
// of a name refers to the same declaration.
type encoder struct {
	ctx   *z3.Context
	vars  map[string]z3.Value
	funcs map[string]z3.FuncDecl
}

func newEncoder(ctx *z3.Context) *encoder {
	return &encoder{
		ctx:   ctx,
		vars:  make(map[string]z3.Value),
		funcs: make(map[string]z3.FuncDecl),
	}
}

type encodeError struct{ msg string }

func encodeFail(format string, args ...any) z3.Value {
	panic(&encodeError{msg: fmt.Sprintf(format, args...)})
}

func (e *encoder) sort(s formula.Sort) z3.Sort {
	switch s.Kind {
	case formula.KindInt:
		return e.ctx.IntSort()
	case formula.KindReal:
		return e.ctx.RealSort()
	case formula.KindBool:
		return e.ctx.BoolSort()
	}
	encodeFail("no solver sort for %s", s)
	panic("unreachable")
}

func (e *encoder) variable(name string, s formula.Sort) z3.Value {
	if v, ok := e.vars[name]; ok {
		return v
	}
	v := e.ctx.Const(name, e.sort(s))
	e.vars[name] = v
	return v
}

func (e *encoder) fdecl(name string, args []formula.Expr, out formula.Sort) z3.FuncDecl {
	if f, ok := e.funcs[name]; ok {
		return f
	}
	domain := make([]z3.Sort, len(args))
	for i, a := range args {
		domain[i] = e.sort(a.Sort())
	}
	f := e.ctx.FuncDecl(name, domain, e.sort(out))
	e.funcs[name] = f
	return f
}

func (e *encoder) encodeBool(x formula.Expr) z3.Bool {
	v, ok := e.encode(x).(z3.Bool)
	if !ok {
		encodeFail("expected a Boolean term, got %s", x.Sort())
	}
	return v
}

func (e *encoder) encode(x formula.Expr) z3.Value {
	switch x := x.(type) {
	case formula.Var:
		return e.variable(x.Name, x.S)

	case formula.IntLit:
		return e.ctx.FromInt(x.Val, e.ctx.IntSort())

	case formula.RealLit:
		return e.fromRat(x.Val)

	case formula.BoolLit:
		return e.ctx.FromBool(x.Val)

	case formula.Binary:
		return e.binary(x)

	case formula.Neg:
		switch v := e.encode(x.X).(type) {
		case z3.Int:
			return v.Neg()
		case z3.Real:
			return v.Neg()
		}
		return encodeFail("cannot negate a %s term", x.X.Sort())

	case formula.Not:
		return e.encodeBool(x.X).Not()

	case formula.Compare:
		return e.compare(x)

	case formula.And:
		acc := e.encodeBool(x.Xs[0])
		for _, y := range x.Xs[1:] {
			acc = acc.And(e.encodeBool(y))
		}
		return acc

	case formula.Or:
		acc := e.encodeBool(x.Xs[0])
		for _, y := range x.Xs[1:] {
			acc = acc.Or(e.encodeBool(y))
		}
		return acc

	case formula.Ite:
		return e.encodeBool(x.Cond).IfThenElse(e.encode(x.Then), e.encode(x.Else))

	case formula.App:
		if x.Out.Kind == formula.KindTuple {
			encodeFail("tuple-valued application '%s' outside a selection", x.Fn)
		}
		return e.apply(x.Fn, x.Args, x.Out)

	case formula.At:
		return e.at(x)

	case formula.Cast:
		return e.cast(x)

	case formula.Tuple:
		encodeFail("tuple value in scalar position")
	}
	encodeFail("unknown term %T", x)
	panic("unreachable")
}

func (e *encoder) apply(name string, args []formula.Expr, out formula.Sort) z3.Value {
	f := e.fdecl(name, args, out)
	enc := make([]z3.Value, len(args))
	for i, a := range args {
		enc[i] = e.encode(a)
	}
	return f.Apply(enc...)
}

// at lowers a selection on an opaque tuple: each element of a
// tuple-sorted variable or application becomes its own declaration,
// suffixed with the element index.
func (e *encoder) at(x formula.At) z3.Value {
	elem := x.Tup.Sort().Elems[x.Index]
	switch tup := x.Tup.(type) {
	case formula.Var:
		return e.variable(fmt.Sprintf("%s$%d", tup.Name, x.Index), elem)
	case formula.App:
		return e.apply(fmt.Sprintf("%s$%d", tup.Fn, x.Index), tup.Args, elem)
	}
	encodeFail("selection on a non-opaque tuple %T", x.Tup)
	panic("unreachable")
}

func (e *encoder) cast(x formula.Cast) z3.Value {
	v := e.encode(x.X)
	switch x.To.Kind {
	case formula.KindReal:
		if i, ok := v.(z3.Int); ok {
			return i.ToReal()
		}
	case formula.KindInt:
		if r, ok := v.(z3.Real); ok {
			return r.ToInt()
		}
	}
	return encodeFail("unsupported cast from %s to %s", x.X.Sort(), x.To)
}

func (e *encoder) binary(x formula.Binary) z3.Value {
	left := e.encode(x.X)
	right := e.encode(x.Y)
	switch left := left.(type) {
	case z3.Int:
		r := right.(z3.Int)
		switch x.Op {
		case formula.OpAdd:
			return left.Add(r)
		case formula.OpSub:
			return left.Sub(r)
		case formula.OpMul:
			return left.Mul(r)
		case formula.OpIntDiv, formula.OpDiv:
			return e.intDiv(left, r)
		case formula.OpMod:
			return e.intMod(left, r)
		}
	case z3.Real:
		r := right.(z3.Real)
		switch x.Op {
		case formula.OpAdd:
			return left.Add(r)
		case formula.OpSub:
			return left.Sub(r)
		case formula.OpMul:
			return left.Mul(r)
		case formula.OpDiv:
			return left.Div(r)
		}
	}
	return encodeFail("no encoding for operator %s on sort %s", x.Op, x.X.Sort())
}

// intDiv encodes Go's integer division, which truncates toward zero.
// The oracle's Div/Mod are Euclidean (the remainder is never negative),
// so for a negative dividend that does not divide evenly the Euclidean
// quotient is one step past zero and gets adjusted back.
func (e *encoder) intDiv(a, b z3.Int) z3.Int {
	q := a.Div(b)
	zero := e.intConst(0)
	one := e.intConst(1)
	exactOrNonNeg := a.Mod(b).Eq(zero).Or(a.GE(zero))
	adjusted := b.GT(zero).IfThenElse(q.Add(one), q.Sub(one)).(z3.Int)
	return exactOrNonNeg.IfThenElse(q, adjusted).(z3.Int)
}

// intMod encodes Go's remainder, which takes the dividend's sign.
func (e *encoder) intMod(a, b z3.Int) z3.Int {
	m := a.Mod(b)
	zero := e.intConst(0)
	exactOrNonNeg := m.Eq(zero).Or(a.GE(zero))
	adjusted := b.GT(zero).IfThenElse(m.Sub(b), m.Add(b)).(z3.Int)
	return exactOrNonNeg.IfThenElse(m, adjusted).(z3.Int)
}

func (e *encoder) intConst(v int64) z3.Int {
	return e.ctx.FromInt(v, e.ctx.IntSort()).(z3.Int)
}

func (e *encoder) compare(x formula.Compare) z3.Value {
	left := e.encode(x.X)
	right := e.encode(x.Y)
	switch left := left.(type) {
	case z3.Int:
		r := right.(z3.Int)
		switch x.Op {
		case formula.OpLt:
			return left.LT(r)
		case formula.OpLe:
			return left.LE(r)
		case formula.OpGt:
			return left.GT(r)
		case formula.OpGe:
			return left.GE(r)
		case formula.OpEq:
			return left.Eq(r)
		case formula.OpNe:
			return left.NE(r)
		}
	case z3.Real:
		r := right.(z3.Real)
		switch x.Op {
		case formula.OpLt:
			return left.LT(r)
		case formula.OpLe:
			return left.LE(r)
		case formula.OpGt:
			return left.GT(r)
		case formula.OpGe:
			return left.GE(r)
		case formula.OpEq:
			return left.Eq(r)
		case formula.OpNe:
			return left.NE(r)
		}
	case z3.Bool:
		r := right.(z3.Bool)
		switch x.Op {
		case formula.OpEq:
			return left.Eq(r)
		case formula.OpNe:
			return left.NE(r)
		}
	}
	return encodeFail("no encoding for comparison %s on sort %s", x.Op, x.X.Sort())
}

// fromRat encodes an exact rational as a quotient of integer literals,
// so no precision is lost on values like 1/3.
func (e *encoder) fromRat(r *big.Rat) z3.Value {
	num := e.ctx.FromBigInt(r.Num(), e.ctx.IntSort()).(z3.Int).ToReal()
	if r.IsInt() {
		return num
	}
	den := e.ctx.FromBigInt(r.Denom(), e.ctx.IntSort()).(z3.Int).ToReal()
	return num.Div(den)
}
