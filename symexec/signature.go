package symexec

import (
	"go/ast"
	"go/token"

	"github.com/goprove/goprove/formula"
)

// Param is one declared parameter of a function under verification.
type Param struct {
	Name string
	Sort formula.Sort
}

// SignatureOf maps a function declaration onto solver sorts: one Param
// per declared parameter and the sort of the returned value, a tuple
// sort for multi-value returns. Functions with no results report an
// invalid return sort.
func SignatureOf(fset *token.FileSet, fn *ast.FuncDecl) ([]Param, formula.Sort, error) {
	t := &Translator{fset: fset}

	var params []Param
	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			s, err := t.sortOf(field.Type)
			if err != nil {
				return nil, formula.Sort{}, err
			}
			if len(field.Names) == 0 {
				return nil, formula.Sort{}, t.errAt(field.Pos(), "signature",
					"parameters must be named")
			}
			for _, id := range field.Names {
				params = append(params, Param{Name: id.Name, Sort: s})
			}
		}
	}

	var results []formula.Sort
	if fn.Type.Results != nil {
		for _, field := range fn.Type.Results.List {
			s, err := t.sortOf(field.Type)
			if err != nil {
				return nil, formula.Sort{}, err
			}
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				results = append(results, s)
			}
		}
	}
	switch len(results) {
	case 0:
		return params, formula.Sort{}, nil
	case 1:
		return params, results[0], nil
	}
	return params, formula.TupleSort(results...), nil
}

func (t *Translator) sortOf(typ ast.Expr) (formula.Sort, error) {
	id, ok := typ.(*ast.Ident)
	if !ok {
		return formula.Sort{}, t.errAt(typ.Pos(), "signature", "unsupported type in signature")
	}
	switch id.Name {
	case "int", "int64", "int32":
		return formula.IntSort, nil
	case "float64", "float32":
		return formula.RealSort, nil
	case "bool":
		return formula.BoolSort, nil
	}
	return formula.Sort{}, t.errAt(id.Pos(), "signature", "unsupported type '%s' in signature", id.Name)
}

// Async reports whether a function's signature marks it as
// suspension-capable: any channel- or function-typed parameter or
// result. Such functions are skipped rather than rejected.
func Async(fn *ast.FuncDecl) bool {
	suspending := false
	mark := func(typ ast.Expr) {
		ast.Inspect(typ, func(n ast.Node) bool {
			switch n.(type) {
			case *ast.ChanType, *ast.FuncType:
				suspending = true
			}
			return !suspending
		})
	}
	if fn.Type.Params != nil {
		for _, f := range fn.Type.Params.List {
			mark(f.Type)
		}
	}
	if fn.Type.Results != nil {
		for _, f := range fn.Type.Results.List {
			mark(f.Type)
		}
	}
	return suspending
}

// ForbiddenConstruct scans a body for constructs that are not merely
// untranslatable but semantically out of scope: goroutines, channel
// operations, select, defer. Reported eagerly so the error names the
// construct instead of a downstream symptom.
func ForbiddenConstruct(fset *token.FileSet, fn *ast.FuncDecl) *TranslationError {
	if fn.Body == nil {
		return nil
	}
	t := &Translator{fset: fset}
	var bad *TranslationError
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if bad != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.GoStmt:
			bad = t.errAt(n.Pos(), "statement", "unsupported statement: go statement")
		case *ast.DeferStmt:
			bad = t.errAt(n.Pos(), "statement", "unsupported statement: defer statement")
		case *ast.SelectStmt:
			bad = t.errAt(n.Pos(), "statement", "unsupported statement: select statement")
		case *ast.SendStmt:
			bad = t.errAt(n.Pos(), "statement", "unsupported statement: channel send")
		case *ast.UnaryExpr:
			if n.Op == token.ARROW {
				bad = t.errAt(n.Pos(), "statement", "unsupported expression: channel receive")
			}
		}
		return bad == nil
	})
	return bad
}

// EvalExpr translates a standalone expression, such as a contract
// directive, against the given variable bindings. Calls into contracts
// are allowed but produce no side conditions beyond their own
// obligations, which are discarded here.
func EvalExpr(fset *token.FileSet, node ast.Expr, vars map[string]formula.Expr, contracts map[string]formula.Contract) (e formula.Expr, err error) {
	t := &Translator{fset: fset, contracts: contracts, pos: node.Pos()}
	defer func() {
		if r := recover(); r != nil {
			be, ok := r.(*formula.BuildError)
			if !ok {
				panic(r)
			}
			e, err = nil, t.errAt(t.pos, "type", "%s", be.Msg)
		}
	}()
	ev := make(env, len(vars))
	for name, v := range vars {
		ev[name] = v
	}
	return t.expr(node, ev)
}
