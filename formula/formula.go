// Package formula defines the three-sorted symbolic value algebra shared
// by the translator, the engine, and the solver encoding: a closed sum
// type of expression nodes, an explicit builder API for contract
// predicates, refinement markers, and structural fingerprints.
//
// Predicates must build formulas through this API; a predicate that
// produces anything other than a Boolean-sorted expression is rejected
// by Predicate.Apply.
package formula

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind enumerates the sorts of the symbolic universe.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindReal
	KindBool
	KindTuple
)

// Sort is a symbolic sort. Elems is populated only for tuple sorts.
type Sort struct {
	Kind  Kind
	Elems []Sort
}

var (
	IntSort  = Sort{Kind: KindInt}
	RealSort = Sort{Kind: KindReal}
	BoolSort = Sort{Kind: KindBool}
)

// TupleSort builds the sort of a tuple with the given element sorts.
func TupleSort(elems ...Sort) Sort {
	return Sort{Kind: KindTuple, Elems: elems}
}

func (s Sort) Equal(o Sort) bool {
	if s.Kind != o.Kind || len(s.Elems) != len(o.Elems) {
		return false
	}
	for i := range s.Elems {
		if !s.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	return true
}

func (s Sort) Numeric() bool {
	return s.Kind == KindInt || s.Kind == KindReal
}

func (s Sort) String() string {
	switch s.Kind {
	case KindInt:
		return "Int"
	case KindReal:
		return "Real"
	case KindBool:
		return "Bool"
	case KindTuple:
		parts := make([]string, len(s.Elems))
		for i, e := range s.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return "Invalid"
	}
}

// Expr is the closed sum type of symbolic expressions. The set of
// implementations is fixed; consumers dispatch with an exhaustive type
// switch instead of a default-unsupported fallback.
type Expr interface {
	Sort() Sort
	String() string
	isExpr()
}

// BinOp is an arithmetic operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv    // real division
	OpIntDiv // integer division, truncating toward zero
	OpMod    // remainder; takes the dividend's sign
)

func (op BinOp) String() string {
	return [...]string{"+", "-", "*", "/", "/", "%"}[op]
}

// CmpOp is a comparison operator.
type CmpOp int

const (
	OpLt CmpOp = iota
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
)

func (op CmpOp) String() string {
	return [...]string{"<", "<=", ">", ">=", "==", "!="}[op]
}

type (
	// Var is a free symbolic variable.
	Var struct {
		Name string
		S    Sort
	}

	// IntLit is an integer literal.
	IntLit struct {
		Val int64
	}

	// RealLit is an exact rational literal.
	RealLit struct {
		Val *big.Rat
	}

	// BoolLit is a boolean literal.
	BoolLit struct {
		Val bool
	}

	// Binary is an arithmetic operation over sort-coerced operands.
	Binary struct {
		Op   BinOp
		X, Y Expr
	}

	// Neg is arithmetic negation.
	Neg struct {
		X Expr
	}

	// Not is logical negation.
	Not struct {
		X Expr
	}

	// Compare is a binary comparison over sort-coerced operands.
	Compare struct {
		Op   CmpOp
		X, Y Expr
	}

	// And is n-ary logical conjunction.
	And struct {
		Xs []Expr
	}

	// Or is n-ary logical disjunction.
	Or struct {
		Xs []Expr
	}

	// Ite is a conditional (phi) expression.
	Ite struct {
		Cond, Then, Else Expr
	}

	// App is an application of an uninterpreted function. Out names
	// the result sort; the argument sorts fix the declaration.
	App struct {
		Fn   string
		Args []Expr
		Out  Sort
	}

	// Tuple is a tuple construction.
	Tuple struct {
		Elems []Expr
	}

	// At selects a tuple element by constant index.
	At struct {
		Tup   Expr
		Index int
	}

	// Cast converts between the Int and Real sorts.
	Cast struct {
		To Sort
		X  Expr
	}
)

func (Var) isExpr()     {}
func (IntLit) isExpr()  {}
func (RealLit) isExpr() {}
func (BoolLit) isExpr() {}
func (Binary) isExpr()  {}
func (Neg) isExpr()     {}
func (Not) isExpr()     {}
func (Compare) isExpr() {}
func (And) isExpr()     {}
func (Or) isExpr()      {}
func (Ite) isExpr()     {}
func (App) isExpr()     {}
func (Tuple) isExpr()   {}
func (At) isExpr()      {}
func (Cast) isExpr()    {}

func (v Var) Sort() Sort     { return v.S }
func (IntLit) Sort() Sort    { return IntSort }
func (RealLit) Sort() Sort   { return RealSort }
func (BoolLit) Sort() Sort   { return BoolSort }
func (b Binary) Sort() Sort  { return b.X.Sort() }
func (n Neg) Sort() Sort     { return n.X.Sort() }
func (Not) Sort() Sort       { return BoolSort }
func (Compare) Sort() Sort   { return BoolSort }
func (And) Sort() Sort       { return BoolSort }
func (Or) Sort() Sort        { return BoolSort }
func (i Ite) Sort() Sort     { return i.Then.Sort() }
func (a App) Sort() Sort     { return a.Out }
func (c Cast) Sort() Sort    { return c.To }

func (t Tuple) Sort() Sort {
	elems := make([]Sort, len(t.Elems))
	for i, e := range t.Elems {
		elems[i] = e.Sort()
	}
	return Sort{Kind: KindTuple, Elems: elems}
}

func (a At) Sort() Sort {
	s := a.Tup.Sort()
	if s.Kind != KindTuple || a.Index < 0 || a.Index >= len(s.Elems) {
		return Sort{}
	}
	return s.Elems[a.Index]
}

func (v Var) String() string { return v.Name }

func (l IntLit) String() string { return fmt.Sprintf("%d", l.Val) }

func (l RealLit) String() string {
	if l.Val.IsInt() {
		return l.Val.Num().String()
	}
	return l.Val.RatString()
}

func (l BoolLit) String() string {
	if l.Val {
		return "true"
	}
	return "false"
}

func (b Binary) String() string {
	op := b.Op.String()
	if b.Op == OpIntDiv {
		op = "/"
	}
	return fmt.Sprintf("(%s %s %s)", b.X, op, b.Y)
}

func (n Neg) String() string { return fmt.Sprintf("-%s", n.X) }
func (n Not) String() string { return fmt.Sprintf("!%s", n.X) }

func (c Compare) String() string {
	return fmt.Sprintf("(%s %s %s)", c.X, c.Op, c.Y)
}

func joinExprs(xs []Expr, sep string) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = x.String()
	}
	return strings.Join(parts, sep)
}

func (a And) String() string { return "(" + joinExprs(a.Xs, " && ") + ")" }
func (o Or) String() string  { return "(" + joinExprs(o.Xs, " || ") + ")" }

func (i Ite) String() string {
	return fmt.Sprintf("if(%s, %s, %s)", i.Cond, i.Then, i.Else)
}

func (a App) String() string {
	return fmt.Sprintf("%s(%s)", a.Fn, joinExprs(a.Args, ", "))
}

func (t Tuple) String() string { return "(" + joinExprs(t.Elems, ", ") + ")" }

func (a At) String() string { return fmt.Sprintf("%s[%d]", a.Tup, a.Index) }

func (c Cast) String() string {
	if c.To.Kind == KindReal {
		return fmt.Sprintf("real(%s)", c.X)
	}
	return fmt.Sprintf("int(%s)", c.X)
}
