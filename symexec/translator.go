package symexec

import (
	"fmt"
	"go/ast"
	"go/token"

	"github.com/goprove/goprove/formula"
)

// MaxUnroll caps loop unrolling. A counted loop that needs more
// iterations is a translation error; a condition loop still symbolic at
// the cap gets its guard assumed false, with a warning attached to the
// result.
const MaxUnroll = 256

// Result is the symbolic summary of one function body: the value it
// returns as a term over the parameter variables, the facts the body
// establishes, and the conditions the body demands.
type Result struct {
	// ReturnExpr is nil when some control path falls off the end of
	// the function without returning.
	ReturnExpr  formula.Expr
	Assumptions []formula.Expr
	Obligations []formula.Expr
	Warnings    []string
}

// Translator walks a function body in source order, maintaining a
// symbolic environment. It is single-use: build one per Translate call.
type Translator struct {
	fset      *token.FileSet
	contracts map[string]formula.Contract
	consts    map[string]formula.Expr

	assumptions []formula.Expr
	obligations []formula.Expr
	warnings    []string

	fresh int
	pos   token.Pos
}

// env binds in-scope names to symbolic values. Blocks clone it before
// branching so each path mutates its own copy.
type env map[string]formula.Expr

func (e env) clone() env {
	out := make(env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// guarded is a return value pending under a path condition: some paths
// through the statements so far have returned expr (when cond holds),
// while the rest fell through.
type guarded struct {
	cond formula.Expr
	expr formula.Expr
}

// retval is the return summary of a statement sequence. final is
// non-nil when every fall-through path has returned; pending holds the
// conditional returns accumulated before that point, in priority order.
type retval struct {
	pending []guarded
	final   formula.Expr
}

// resolve folds the pending conditional returns over the final value.
// Earlier pendings shadow later ones.
func (rv retval) resolve() formula.Expr {
	e := rv.final
	for i := len(rv.pending) - 1; i >= 0; i-- {
		e = formula.IteOf(rv.pending[i].cond, rv.pending[i].expr, e)
	}
	return e
}

// Translate symbolically executes fn. Parameters arrive pre-bound in
// params; contracts describe callable verified functions; consts are
// extra names visible in the body. The returned error is always a
// *TranslationError.
func Translate(fset *token.FileSet, fn *ast.FuncDecl, params map[string]formula.Expr, contracts map[string]formula.Contract, consts map[string]formula.Expr) (res *Result, err error) {
	t := &Translator{
		fset:      fset,
		contracts: contracts,
		consts:    consts,
		pos:       fn.Pos(),
	}
	defer func() {
		if r := recover(); r != nil {
			be, ok := r.(*formula.BuildError)
			if !ok {
				panic(r)
			}
			res, err = nil, t.errAt(t.pos, "type", "%s", be.Msg)
		}
	}()

	ev := make(env, len(params))
	for name, v := range params {
		ev[name] = v
	}
	if fn.Body == nil {
		return nil, t.errAt(fn.Pos(), "body", "function %s has no body", fn.Name.Name)
	}
	_, rv, terr := t.block(fn.Body.List, ev)
	if terr != nil {
		return nil, terr
	}

	out := &Result{
		Assumptions: t.assumptions,
		Obligations: t.obligations,
		Warnings:    t.warnings,
	}
	if rv.final != nil {
		out.ReturnExpr = rv.resolve()
	}
	return out, nil
}

// block executes stmts in order. An if statement consumes the rest of
// the sequence as its continuation, so the walk is linear in source
// order with no join-point bookkeeping.
func (t *Translator) block(stmts []ast.Stmt, ev env) (env, retval, error) {
	var pending []guarded
	for i, stmt := range stmts {
		t.pos = stmt.Pos()
		switch s := stmt.(type) {
		case *ast.ReturnStmt:
			e, err := t.returnValue(s, ev)
			if err != nil {
				return ev, retval{}, err
			}
			return ev, retval{pending: pending, final: e}, nil

		case *ast.IfStmt:
			ev2, rv, err := t.doIf(s, stmts[i+1:], ev)
			if err != nil {
				return ev, retval{}, err
			}
			rv.pending = append(pending, rv.pending...)
			return ev2, rv, nil

		case *ast.ForStmt:
			ev2, rv, err := t.doFor(s, ev)
			if err != nil {
				return ev, retval{}, err
			}
			pending = append(pending, rv.pending...)
			if rv.final != nil {
				return ev2, retval{pending: pending, final: rv.final}, nil
			}
			ev = ev2

		case *ast.BlockStmt:
			ev2, rv, err := t.block(s.List, ev)
			if err != nil {
				return ev, retval{}, err
			}
			pending = append(pending, rv.pending...)
			if rv.final != nil {
				return ev2, retval{pending: pending, final: rv.final}, nil
			}
			ev = ev2

		case *ast.AssignStmt:
			ev2, err := t.doAssign(s, ev)
			if err != nil {
				return ev, retval{}, err
			}
			ev = ev2

		case *ast.IncDecStmt:
			ev2, err := t.doIncDec(s, ev)
			if err != nil {
				return ev, retval{}, err
			}
			ev = ev2

		case *ast.DeclStmt:
			ev2, err := t.doDecl(s, ev)
			if err != nil {
				return ev, retval{}, err
			}
			ev = ev2

		case *ast.ExprStmt:
			if err := t.doExprStmt(s, ev); err != nil {
				return ev, retval{}, err
			}

		case *ast.EmptyStmt:

		default:
			return ev, retval{}, t.errAt(stmt.Pos(), "statement",
				"unsupported statement: %s", stmtName(stmt))
		}
	}
	return ev, retval{pending: pending}, nil
}

// doIf evaluates both arms of a symbolic condition, each followed by
// the remaining statements of the enclosing sequence, and merges the
// results under the branch condition. Environments of paths that did
// not return are phi-merged. A literal condition runs only its taken
// arm.
func (t *Translator) doIf(s *ast.IfStmt, remaining []ast.Stmt, ev env) (env, retval, error) {
	ev = ev.clone()
	if s.Init != nil {
		init, ok := s.Init.(*ast.AssignStmt)
		if !ok {
			return ev, retval{}, t.errAt(s.Init.Pos(), "statement",
				"unsupported if initializer: %s", stmtName(s.Init))
		}
		var err error
		ev, err = t.doAssign(init, ev)
		if err != nil {
			return ev, retval{}, err
		}
	}
	cond, err := t.expr(s.Cond, ev)
	if err != nil {
		return ev, retval{}, err
	}
	if cond.Sort().Kind != formula.KindBool {
		return ev, retval{}, t.errAt(s.Cond.Pos(), "type",
			"if condition must be Boolean, got %s", cond.Sort())
	}

	var orelse []ast.Stmt
	switch e := s.Else.(type) {
	case nil:
	case *ast.BlockStmt:
		orelse = e.List
	case *ast.IfStmt:
		orelse = []ast.Stmt{e}
	default:
		return ev, retval{}, t.errAt(s.Else.Pos(), "statement",
			"unsupported else clause: %s", stmtName(s.Else))
	}

	// A condition that folds to a literal decides the branch during
	// translation: only the taken arm runs, so nothing on the dead side
	// reaches the assumption or obligation sets and a certain return
	// becomes final rather than pending.
	if lit, ok := cond.(formula.BoolLit); ok {
		arm := s.Body.List
		if !lit.Val {
			arm = orelse
		}
		return t.branch(arm, remaining, ev)
	}

	tEnv, tRv, err := t.branch(s.Body.List, remaining, ev)
	if err != nil {
		return ev, retval{}, err
	}
	fEnv, fRv, err := t.branch(orelse, remaining, ev)
	if err != nil {
		return ev, retval{}, err
	}

	switch {
	case tRv.final != nil && fRv.final != nil:
		return ev, retval{final: formula.IteOf(cond, tRv.resolve(), fRv.resolve())}, nil

	case tRv.final != nil:
		pend := []guarded{{cond: cond, expr: tRv.resolve()}}
		for _, g := range fRv.pending {
			pend = append(pend, guarded{cond: formula.Conj(formula.NotOf(cond), g.cond), expr: g.expr})
		}
		return fEnv, retval{pending: pend}, nil

	case fRv.final != nil:
		pend := []guarded{{cond: formula.NotOf(cond), expr: fRv.resolve()}}
		for _, g := range tRv.pending {
			pend = append(pend, guarded{cond: formula.Conj(cond, g.cond), expr: g.expr})
		}
		return tEnv, retval{pending: pend}, nil

	default:
		pend := make([]guarded, 0, len(tRv.pending)+len(fRv.pending))
		for _, g := range tRv.pending {
			pend = append(pend, guarded{cond: formula.Conj(cond, g.cond), expr: g.expr})
		}
		for _, g := range fRv.pending {
			pend = append(pend, guarded{cond: formula.Conj(formula.NotOf(cond), g.cond), expr: g.expr})
		}
		return t.mergeEnvs(cond, tEnv, fEnv), retval{pending: pend}, nil
	}
}

// branch runs one arm of an if followed by the continuation statements
// when the arm falls through.
func (t *Translator) branch(arm, remaining []ast.Stmt, ev env) (env, retval, error) {
	aEnv, aRv, err := t.block(arm, ev.clone())
	if err != nil {
		return ev, retval{}, err
	}
	if aRv.final != nil {
		return aEnv, aRv, nil
	}
	cEnv, cRv, err := t.block(remaining, aEnv)
	if err != nil {
		return ev, retval{}, err
	}
	return cEnv, retval{
		pending: append(aRv.pending, cRv.pending...),
		final:   cRv.final,
	}, nil
}

// mergeEnvs phi-merges two branch environments under cond. Names bound
// in only one branch stay visible with the other side reading as their
// pre-branch value would; names with structurally identical values on
// both sides pass through untouched.
func (t *Translator) mergeEnvs(cond formula.Expr, tEnv, fEnv env) env {
	out := make(env, len(tEnv))
	for name, tv := range tEnv {
		fv, ok := fEnv[name]
		if !ok {
			out[name] = tv
			continue
		}
		if tv.String() == fv.String() {
			out[name] = tv
			continue
		}
		out[name] = formula.IteOf(cond, tv, fv)
	}
	for name, fv := range fEnv {
		if _, ok := out[name]; !ok {
			out[name] = fv
		}
	}
	return out
}

func (t *Translator) returnValue(s *ast.ReturnStmt, ev env) (formula.Expr, error) {
	switch len(s.Results) {
	case 0:
		return nil, t.errAt(s.Pos(), "return", "bare return is not supported")
	case 1:
		return t.expr(s.Results[0], ev)
	}
	elems := make([]formula.Expr, len(s.Results))
	for i, r := range s.Results {
		e, err := t.expr(r, ev)
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}
	return formula.TupleOf(elems...), nil
}

func (t *Translator) doAssign(s *ast.AssignStmt, ev env) (env, error) {
	t.pos = s.Pos()
	switch s.Tok {
	case token.ASSIGN, token.DEFINE:
		return t.doPlainAssign(s, ev)
	case token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN, token.QUO_ASSIGN, token.REM_ASSIGN:
		return t.doAugAssign(s, ev)
	}
	return ev, t.errAt(s.Pos(), "statement", "unsupported assignment operator %s", s.Tok)
}

func (t *Translator) doPlainAssign(s *ast.AssignStmt, ev env) (env, error) {
	names := make([]string, len(s.Lhs))
	for i, l := range s.Lhs {
		id, ok := l.(*ast.Ident)
		if !ok {
			return ev, t.errAt(l.Pos(), "assign", "assignment target must be an identifier")
		}
		names[i] = id.Name
	}

	if len(s.Rhs) == 1 && len(names) > 1 {
		// Destructuring a tuple-valued call.
		val, err := t.expr(s.Rhs[0], ev)
		if err != nil {
			return ev, err
		}
		sort := val.Sort()
		if sort.Kind != formula.KindTuple || len(sort.Elems) != len(names) {
			return ev, t.errAt(s.Rhs[0].Pos(), "assign",
				"cannot unpack a %s value into %d variables", sort, len(names))
		}
		for i, name := range names {
			if name == "_" {
				continue
			}
			ev[name] = formula.AtOf(val, i)
		}
		return ev, nil
	}

	if len(s.Rhs) != len(names) {
		return ev, t.errAt(s.Pos(), "assign",
			"assignment count mismatch: %d targets, %d values", len(names), len(s.Rhs))
	}
	vals := make([]formula.Expr, len(s.Rhs))
	for i, r := range s.Rhs {
		v, err := t.expr(r, ev)
		if err != nil {
			return ev, err
		}
		vals[i] = v
	}
	for i, name := range names {
		if name == "_" {
			continue
		}
		ev[name] = vals[i]
	}
	return ev, nil
}

func (t *Translator) doAugAssign(s *ast.AssignStmt, ev env) (env, error) {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return ev, t.errAt(s.Pos(), "assign", "compound assignment takes a single target")
	}
	id, ok := s.Lhs[0].(*ast.Ident)
	if !ok {
		return ev, t.errAt(s.Lhs[0].Pos(), "assign", "assignment target must be an identifier")
	}
	cur, ok := ev[id.Name]
	if !ok {
		return ev, t.errAt(id.Pos(), "name", "undefined variable '%s'", id.Name)
	}
	rhs, err := t.expr(s.Rhs[0], ev)
	if err != nil {
		return ev, err
	}
	switch s.Tok {
	case token.ADD_ASSIGN:
		ev[id.Name] = formula.Add(cur, rhs)
	case token.SUB_ASSIGN:
		ev[id.Name] = formula.Sub(cur, rhs)
	case token.MUL_ASSIGN:
		ev[id.Name] = formula.Mul(cur, rhs)
	case token.QUO_ASSIGN:
		ev[id.Name] = formula.Div(cur, rhs)
	case token.REM_ASSIGN:
		ev[id.Name] = formula.Mod(cur, rhs)
	}
	return ev, nil
}

func (t *Translator) doIncDec(s *ast.IncDecStmt, ev env) (env, error) {
	t.pos = s.Pos()
	id, ok := s.X.(*ast.Ident)
	if !ok {
		return ev, t.errAt(s.X.Pos(), "assign", "increment target must be an identifier")
	}
	cur, ok := ev[id.Name]
	if !ok {
		return ev, t.errAt(id.Pos(), "name", "undefined variable '%s'", id.Name)
	}
	if s.Tok == token.INC {
		ev[id.Name] = formula.Add(cur, formula.I(1))
	} else {
		ev[id.Name] = formula.Sub(cur, formula.I(1))
	}
	return ev, nil
}

func (t *Translator) doDecl(s *ast.DeclStmt, ev env) (env, error) {
	t.pos = s.Pos()
	gd, ok := s.Decl.(*ast.GenDecl)
	if !ok || (gd.Tok != token.VAR && gd.Tok != token.CONST) {
		return ev, t.errAt(s.Pos(), "statement", "unsupported declaration")
	}
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			return ev, t.errAt(spec.Pos(), "statement", "unsupported declaration")
		}
		if len(vs.Values) == 0 {
			zero, err := t.zeroValue(vs.Type, vs.Pos())
			if err != nil {
				return ev, err
			}
			for _, id := range vs.Names {
				if id.Name != "_" {
					ev[id.Name] = zero
				}
			}
			continue
		}
		if len(vs.Values) != len(vs.Names) {
			return ev, t.errAt(vs.Pos(), "assign",
				"declaration count mismatch: %d names, %d values", len(vs.Names), len(vs.Values))
		}
		for i, id := range vs.Names {
			v, err := t.expr(vs.Values[i], ev)
			if err != nil {
				return ev, err
			}
			if id.Name != "_" {
				ev[id.Name] = v
			}
		}
	}
	return ev, nil
}

func (t *Translator) zeroValue(typ ast.Expr, pos token.Pos) (formula.Expr, error) {
	id, ok := typ.(*ast.Ident)
	if !ok {
		return nil, t.errAt(pos, "type", "unsupported declaration type")
	}
	switch id.Name {
	case "int", "int64", "int32":
		return formula.I(0), nil
	case "float64", "float32":
		return formula.R(0), nil
	case "bool":
		return formula.B(false), nil
	}
	return nil, t.errAt(pos, "type", "unsupported declaration type '%s'", id.Name)
}

// doExprStmt handles statement-position calls: assert(cond) records an
// assumption, any other call is evaluated for its contract obligations
// and the value discarded.
func (t *Translator) doExprStmt(s *ast.ExprStmt, ev env) error {
	t.pos = s.Pos()
	call, ok := s.X.(*ast.CallExpr)
	if !ok {
		return t.errAt(s.Pos(), "statement", "unsupported expression statement")
	}
	if id, ok := call.Fun.(*ast.Ident); ok && id.Name == "assert" {
		if len(call.Args) != 1 {
			return t.errAt(call.Pos(), "assert", "assert takes exactly one argument")
		}
		cond, err := t.expr(call.Args[0], ev)
		if err != nil {
			return err
		}
		if cond.Sort().Kind != formula.KindBool {
			return t.errAt(call.Args[0].Pos(), "type",
				"assert condition must be Boolean, got %s", cond.Sort())
		}
		t.assumptions = append(t.assumptions, cond)
		return nil
	}
	_, err := t.call(call, ev)
	return err
}

func (t *Translator) freshVar(prefix string, s formula.Sort) formula.Expr {
	t.fresh++
	return formula.V(fmt.Sprintf("$%s%d", prefix, t.fresh), s)
}

// maxTermSize is the growth bound per binding during loop unrolling.
const maxTermSize = 64

// nameGrown rebinds any binding whose term has grown past the bound to
// a fresh variable with a defining equation. Later iterations then
// build on a name instead of another copy of the whole history, which
// keeps the unrolled encoding linear in the iteration count.
func (t *Translator) nameGrown(ev env) env {
	for name, val := range ev {
		if _, ok := val.(formula.Var); ok {
			continue
		}
		if !formula.SizeAtLeast(val, maxTermSize) {
			continue
		}
		fresh := t.freshVar("v", val.Sort())
		t.assumptions = append(t.assumptions, formula.Eq(fresh, val))
		ev[name] = fresh
	}
	return ev
}

func stmtName(s ast.Stmt) string {
	switch s.(type) {
	case *ast.GoStmt:
		return "go statement"
	case *ast.DeferStmt:
		return "defer statement"
	case *ast.SelectStmt:
		return "select statement"
	case *ast.SendStmt:
		return "channel send"
	case *ast.RangeStmt:
		return "range loop"
	case *ast.SwitchStmt, *ast.TypeSwitchStmt:
		return "switch statement"
	case *ast.BranchStmt:
		return "branch statement"
	case *ast.LabeledStmt:
		return "labeled statement"
	}
	return fmt.Sprintf("%T", s)
}
