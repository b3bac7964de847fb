package symexec

import (
	"go/ast"
	"go/token"
	"math"
	"math/big"
	"strconv"

	"github.com/goprove/goprove/formula"
)

func (t *Translator) expr(node ast.Expr, ev env) (formula.Expr, error) {
	t.pos = node.Pos()
	switch e := node.(type) {
	case *ast.ParenExpr:
		return t.expr(e.X, ev)

	case *ast.BasicLit:
		return t.literal(e)

	case *ast.Ident:
		if v, ok := ev[e.Name]; ok {
			return v, nil
		}
		if v, ok := t.consts[e.Name]; ok {
			return v, nil
		}
		switch e.Name {
		case "true":
			return formula.B(true), nil
		case "false":
			return formula.B(false), nil
		}
		return nil, t.errAt(e.Pos(), "name", "undefined name '%s'", e.Name)

	case *ast.UnaryExpr:
		x, err := t.expr(e.X, ev)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case token.SUB:
			return formula.Negate(x), nil
		case token.ADD:
			return x, nil
		case token.NOT:
			if x.Sort().Kind != formula.KindBool {
				return nil, t.errAt(e.Pos(), "type", "operand of ! must be Boolean, got %s", x.Sort())
			}
			return formula.NotOf(x), nil
		}
		return nil, t.errAt(e.Pos(), "operator", "unsupported unary operator %s", e.Op)

	case *ast.BinaryExpr:
		return t.binaryExpr(e, ev)

	case *ast.CallExpr:
		return t.call(e, ev)

	case *ast.SelectorExpr:
		return t.selector(e)

	case *ast.IndexExpr:
		return t.index(e, ev)
	}
	return nil, t.errAt(node.Pos(), "expression", "unsupported expression: %T", node)
}

func (t *Translator) literal(lit *ast.BasicLit) (formula.Expr, error) {
	switch lit.Kind {
	case token.INT:
		v, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, t.errAt(lit.Pos(), "literal", "integer literal out of range: %s", lit.Value)
		}
		return formula.I(v), nil
	case token.FLOAT:
		r, ok := new(big.Rat).SetString(lit.Value)
		if !ok {
			return nil, t.errAt(lit.Pos(), "literal", "malformed float literal: %s", lit.Value)
		}
		return formula.Rat(r), nil
	}
	return nil, t.errAt(lit.Pos(), "literal", "unsupported literal kind %s", lit.Kind)
}

func (t *Translator) binaryExpr(e *ast.BinaryExpr, ev env) (formula.Expr, error) {
	x, err := t.expr(e.X, ev)
	if err != nil {
		return nil, err
	}
	y, err := t.expr(e.Y, ev)
	if err != nil {
		return nil, err
	}
	t.pos = e.OpPos
	switch e.Op {
	case token.ADD:
		return formula.Add(x, y), nil
	case token.SUB:
		return formula.Sub(x, y), nil
	case token.MUL:
		return formula.Mul(x, y), nil
	case token.QUO:
		return formula.Div(x, y), nil
	case token.REM:
		return formula.Mod(x, y), nil
	case token.LSS:
		return formula.Lt(x, y), nil
	case token.LEQ:
		return formula.Le(x, y), nil
	case token.GTR:
		return formula.Gt(x, y), nil
	case token.GEQ:
		return formula.Ge(x, y), nil
	case token.EQL:
		return formula.Eq(x, y), nil
	case token.NEQ:
		return formula.Ne(x, y), nil
	case token.LAND:
		return formula.Conj(x, y), nil
	case token.LOR:
		return formula.Disj(x, y), nil
	}
	return nil, t.errAt(e.OpPos, "operator", "unsupported operator %s", e.Op)
}

// selector resolves the math constants; the math function names are
// intercepted earlier, in call position.
func (t *Translator) selector(e *ast.SelectorExpr) (formula.Expr, error) {
	if pkg, ok := e.X.(*ast.Ident); ok && pkg.Name == "math" {
		switch e.Sel.Name {
		case "Pi":
			return formula.R(math.Pi), nil
		case "E":
			return formula.R(math.E), nil
		}
		return nil, t.errAt(e.Pos(), "name", "unsupported math identifier 'math.%s'", e.Sel.Name)
	}
	return nil, t.errAt(e.Pos(), "expression", "unsupported selector expression")
}

// index handles constant-index subscripts of tuple values.
func (t *Translator) index(e *ast.IndexExpr, ev env) (formula.Expr, error) {
	base, err := t.expr(e.X, ev)
	if err != nil {
		return nil, err
	}
	if base.Sort().Kind != formula.KindTuple {
		return nil, t.errAt(e.X.Pos(), "subscript", "subscript base must be a tuple, got %s", base.Sort())
	}
	idx, err := t.constInt(e.Index, ev)
	if err != nil {
		return nil, t.errAt(e.Index.Pos(), "subscript", "tuple index must be a constant integer")
	}
	if idx < 0 || int(idx) >= len(base.Sort().Elems) {
		return nil, t.errAt(e.Index.Pos(), "subscript", "tuple index %d out of range", idx)
	}
	return formula.AtOf(base, int(idx)), nil
}

func (t *Translator) call(e *ast.CallExpr, ev env) (formula.Expr, error) {
	t.pos = e.Pos()
	switch fn := e.Fun.(type) {
	case *ast.SelectorExpr:
		return t.mathCall(fn, e, ev)
	case *ast.Ident:
		return t.identCall(fn, e, ev)
	}
	return nil, t.errAt(e.Pos(), "call", "unsupported call target")
}

// mathCall models the axiomatized transcendental functions as
// uninterpreted applications with per-site ground axioms: the solver
// has no quantifiers, so the range facts are instantiated at each call.
func (t *Translator) mathCall(fn *ast.SelectorExpr, e *ast.CallExpr, ev env) (formula.Expr, error) {
	pkg, ok := fn.X.(*ast.Ident)
	if !ok || pkg.Name != "math" {
		return nil, t.errAt(e.Pos(), "call", "unsupported call target")
	}
	var name string
	switch fn.Sel.Name {
	case "Sin":
		name = "sin"
	case "Cos":
		name = "cos"
	case "Exp":
		name = "exp"
	case "Log":
		name = "log"
	default:
		return nil, t.errAt(e.Pos(), "call", "unsupported math function 'math.%s'", fn.Sel.Name)
	}
	if len(e.Args) != 1 {
		return nil, t.errAt(e.Pos(), "call", "math.%s takes exactly one argument", fn.Sel.Name)
	}
	arg, err := t.expr(e.Args[0], ev)
	if err != nil {
		return nil, err
	}
	if !arg.Sort().Numeric() {
		return nil, t.errAt(e.Args[0].Pos(), "type",
			"argument of math.%s must be numeric, got %s", fn.Sel.Name, arg.Sort())
	}
	arg = formula.ToReal(arg)
	app := formula.App{Fn: name, Args: []formula.Expr{arg}, Out: formula.RealSort}
	switch name {
	case "sin", "cos":
		t.assumptions = append(t.assumptions,
			formula.Ge(app, formula.I(-1)), formula.Le(app, formula.I(1)))
	case "exp":
		t.assumptions = append(t.assumptions, formula.Gt(app, formula.I(0)))
	case "log":
		t.obligations = append(t.obligations, formula.Gt(arg, formula.I(0)))
	}
	return app, nil
}

func (t *Translator) identCall(fn *ast.Ident, e *ast.CallExpr, ev env) (formula.Expr, error) {
	if fn.Name == "assert" {
		return nil, t.errAt(e.Pos(), "assert", "assert is a statement, not an expression")
	}
	if built, ok, err := t.builtin(fn.Name, e, ev); ok || err != nil {
		return built, err
	}
	c, ok := t.contracts[fn.Name]
	if !ok {
		return nil, t.errAt(e.Pos(), "call", "unknown function '%s': no contract supplied", fn.Name)
	}
	return t.contractCall(fn.Name, c, e, ev)
}

func (t *Translator) builtin(name string, e *ast.CallExpr, ev env) (formula.Expr, bool, error) {
	args := func(want int) ([]formula.Expr, error) {
		if want >= 0 && len(e.Args) != want {
			return nil, t.errAt(e.Pos(), "call", "%s takes %d argument(s), got %d", name, want, len(e.Args))
		}
		out := make([]formula.Expr, len(e.Args))
		for i, a := range e.Args {
			v, err := t.expr(a, ev)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	switch name {
	case "min", "max":
		if len(e.Args) < 2 {
			return nil, true, t.errAt(e.Pos(), "call", "%s takes at least two arguments", name)
		}
		xs, err := args(-1)
		if err != nil {
			return nil, true, err
		}
		acc := xs[0]
		for _, x := range xs[1:] {
			if name == "min" {
				acc = formula.Min(acc, x)
			} else {
				acc = formula.Max(acc, x)
			}
		}
		return acc, true, nil

	case "abs":
		xs, err := args(1)
		if err != nil {
			return nil, true, err
		}
		return formula.Abs(xs[0]), true, nil

	case "pow":
		if len(e.Args) != 2 {
			return nil, true, t.errAt(e.Pos(), "call", "pow takes 2 argument(s), got %d", len(e.Args))
		}
		base, err := t.expr(e.Args[0], ev)
		if err != nil {
			return nil, true, err
		}
		k, err := t.constInt(e.Args[1], ev)
		if err != nil || k < 0 || k > 3 {
			return nil, true, t.errAt(e.Args[1].Pos(), "call",
				"pow exponent must be a constant integer between 0 and 3")
		}
		return formula.Pow(base, k), true, nil

	case "len":
		if _, err := args(1); err != nil {
			return nil, true, err
		}
		v := t.freshVar("len", formula.IntSort)
		t.assumptions = append(t.assumptions, formula.Ge(v, formula.I(0)))
		return v, true, nil

	case "round":
		xs, err := args(1)
		if err != nil {
			return nil, true, err
		}
		x := xs[0]
		if !x.Sort().Numeric() {
			return nil, true, t.errAt(e.Args[0].Pos(), "type",
				"argument of round must be numeric, got %s", x.Sort())
		}
		v := t.freshVar("round", formula.IntSort)
		half := formula.Rat(big.NewRat(1, 2))
		t.assumptions = append(t.assumptions,
			formula.Ge(formula.ToReal(v), formula.Sub(formula.ToReal(x), half)),
			formula.Le(formula.ToReal(v), formula.Add(formula.ToReal(x), half)))
		return v, true, nil

	case "int", "int64":
		xs, err := args(1)
		if err != nil {
			return nil, true, err
		}
		return formula.ToInt(xs[0]), true, nil

	case "float64", "float32":
		xs, err := args(1)
		if err != nil {
			return nil, true, err
		}
		return formula.ToReal(xs[0]), true, nil

	case "bool":
		xs, err := args(1)
		if err != nil {
			return nil, true, err
		}
		return formula.ToBool(xs[0]), true, nil
	}
	return nil, false, nil
}

// contractCall models a call to a verified function as an application
// of an uninterpreted function: the callee's precondition over the
// actual arguments is an obligation here, its postcondition over the
// arguments and the result is a usable assumption.
func (t *Translator) contractCall(name string, c formula.Contract, e *ast.CallExpr, ev env) (formula.Expr, error) {
	args := make([]formula.Expr, len(e.Args))
	for i, a := range e.Args {
		v, err := t.expr(a, ev)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	out := c.ReturnSort
	if out.Kind == formula.KindInvalid {
		out = formula.RealSort
	}
	app := formula.App{Fn: name, Args: args, Out: out}

	if c.Pre != nil {
		if n := c.Pre.Arity(); n != formula.Variadic && n != len(args) {
			return nil, t.errAt(e.Pos(), "contract",
				"call to '%s' passes %d argument(s), precondition expects %d", name, len(args), n)
		}
		pre, err := c.Pre.Apply(args)
		if err != nil {
			return nil, t.errAt(e.Pos(), "contract", "precondition of '%s': %v", name, err)
		}
		t.obligations = append(t.obligations, pre)
	}
	if c.Post != nil {
		postArgs := append(append([]formula.Expr{}, args...), formula.Expr(app))
		if n := c.Post.Arity(); n != formula.Variadic && n != len(postArgs) {
			return nil, t.errAt(e.Pos(), "contract",
				"call to '%s' passes %d argument(s), postcondition expects %d", name, len(args), n-1)
		}
		post, err := c.Post.Apply(postArgs)
		if err != nil {
			return nil, t.errAt(e.Pos(), "contract", "postcondition of '%s': %v", name, err)
		}
		t.assumptions = append(t.assumptions, post)
	}
	return app, nil
}

// constInt resolves an expression that must denote a compile-time
// integer: a literal, a negated literal, or a name bound to an integer
// literal value.
func (t *Translator) constInt(node ast.Expr, ev env) (int64, error) {
	v, err := t.expr(node, ev)
	if err != nil {
		return 0, err
	}
	if l, ok := v.(formula.IntLit); ok {
		return l.Val, nil
	}
	return 0, t.errAt(node.Pos(), "literal", "expected a constant integer")
}
