package symexec

import (
	"fmt"
	"go/ast"
	"go/token"

	"github.com/goprove/goprove/formula"
)

// doFor dispatches between the two supported loop shapes: a counted
// loop with constant bounds, and a condition-only loop. Both are
// unrolled; the counted form must fit under MaxUnroll, the condition
// form gets its guard assumed false at the ceiling.
func (t *Translator) doFor(s *ast.ForStmt, ev env) (env, retval, error) {
	t.pos = s.Pos()
	if s.Cond == nil {
		return ev, retval{}, t.errAt(s.Pos(), "loop", "unbounded loop: a loop must have a condition")
	}
	if s.Init == nil && s.Post == nil {
		return t.doWhile(s, ev)
	}
	if s.Init == nil || s.Post == nil {
		return ev, retval{}, t.errAt(s.Pos(), "loop",
			"unsupported loop shape: a counted loop needs both an initializer and a post statement")
	}
	return t.doCounted(s, ev)
}

// doCounted unrolls `for i := a; i < b; i += c` with constant a, b, c.
// Each iteration binds the loop variable to its concrete value, so the
// body sees a literal index.
func (t *Translator) doCounted(s *ast.ForStmt, ev env) (env, retval, error) {
	ev = ev.clone()

	init, ok := s.Init.(*ast.AssignStmt)
	if !ok || len(init.Lhs) != 1 || len(init.Rhs) != 1 {
		return ev, retval{}, t.errAt(s.Init.Pos(), "loop", "unsupported loop initializer")
	}
	loopVar, ok := init.Lhs[0].(*ast.Ident)
	if !ok {
		return ev, retval{}, t.errAt(init.Lhs[0].Pos(), "loop", "loop variable must be an identifier")
	}
	start, err := t.constInt(init.Rhs[0], ev)
	if err != nil {
		return ev, retval{}, t.errAt(init.Rhs[0].Pos(), "loop", "loop start must be a constant integer")
	}

	cmp, stop, err := t.loopBound(s.Cond, loopVar.Name, ev)
	if err != nil {
		return ev, retval{}, err
	}
	step, err := t.loopStep(s.Post, loopVar.Name, ev)
	if err != nil {
		return ev, retval{}, err
	}

	values, err := t.iterationValues(s.Pos(), start, stop, step, cmp)
	if err != nil {
		return ev, retval{}, err
	}

	// The loop variable is scoped to the loop; restore any shadowed
	// binding afterwards.
	shadowed, hadShadowed := ev[loopVar.Name]

	var pending []guarded
	for _, v := range values {
		ev[loopVar.Name] = formula.I(v)
		bodyEnv, rv, err := t.block(s.Body.List, ev)
		if err != nil {
			return ev, retval{}, err
		}
		ev = bodyEnv
		pending = append(pending, rv.pending...)
		if rv.final != nil {
			t.restore(ev, loopVar.Name, shadowed, hadShadowed)
			return ev, retval{pending: pending, final: rv.final}, nil
		}
		ev = t.nameGrown(ev)
	}
	t.restore(ev, loopVar.Name, shadowed, hadShadowed)
	return ev, retval{pending: pending}, nil
}

func (t *Translator) restore(ev env, name string, old formula.Expr, had bool) {
	if had {
		ev[name] = old
	} else {
		delete(ev, name)
	}
}

// loopBound extracts the comparison operator and constant limit from a
// loop condition of the form `i OP limit`.
func (t *Translator) loopBound(cond ast.Expr, loopVar string, ev env) (token.Token, int64, error) {
	b, ok := cond.(*ast.BinaryExpr)
	if !ok {
		return 0, 0, t.errAt(cond.Pos(), "loop", "unsupported loop condition")
	}
	id, ok := b.X.(*ast.Ident)
	if !ok || id.Name != loopVar {
		return 0, 0, t.errAt(cond.Pos(), "loop",
			"loop condition must compare the loop variable against a constant")
	}
	switch b.Op {
	case token.LSS, token.LEQ, token.GTR, token.GEQ, token.NEQ:
	default:
		return 0, 0, t.errAt(b.OpPos, "loop", "unsupported loop comparison %s", b.Op)
	}
	stop, err := t.constInt(b.Y, ev)
	if err != nil {
		return 0, 0, t.errAt(b.Y.Pos(), "loop", "loop bound must be a constant integer")
	}
	return b.Op, stop, nil
}

// loopStep extracts the constant per-iteration delta from the post
// statement: i++, i--, i += c or i -= c.
func (t *Translator) loopStep(post ast.Stmt, loopVar string, ev env) (int64, error) {
	switch p := post.(type) {
	case *ast.IncDecStmt:
		id, ok := p.X.(*ast.Ident)
		if !ok || id.Name != loopVar {
			return 0, t.errAt(p.Pos(), "loop", "loop post statement must update the loop variable")
		}
		if p.Tok == token.INC {
			return 1, nil
		}
		return -1, nil
	case *ast.AssignStmt:
		if len(p.Lhs) != 1 || len(p.Rhs) != 1 {
			return 0, t.errAt(p.Pos(), "loop", "unsupported loop post statement")
		}
		id, ok := p.Lhs[0].(*ast.Ident)
		if !ok || id.Name != loopVar {
			return 0, t.errAt(p.Pos(), "loop", "loop post statement must update the loop variable")
		}
		c, err := t.constInt(p.Rhs[0], ev)
		if err != nil {
			return 0, t.errAt(p.Rhs[0].Pos(), "loop", "loop step must be a constant integer")
		}
		switch p.Tok {
		case token.ADD_ASSIGN:
			return c, nil
		case token.SUB_ASSIGN:
			return -c, nil
		}
		return 0, t.errAt(p.Pos(), "loop", "unsupported loop post operator %s", p.Tok)
	}
	return 0, t.errAt(post.Pos(), "loop", "unsupported loop post statement")
}

// iterationValues enumerates the concrete values the loop variable
// takes, failing if the loop cannot be shown to finish within the
// unroll ceiling.
func (t *Translator) iterationValues(pos token.Pos, start, stop, step int64, cmp token.Token) ([]int64, error) {
	if step == 0 {
		return nil, t.errAt(pos, "loop", "loop step must be nonzero")
	}
	holds := func(v int64) bool {
		switch cmp {
		case token.LSS:
			return v < stop
		case token.LEQ:
			return v <= stop
		case token.GTR:
			return v > stop
		case token.GEQ:
			return v >= stop
		case token.NEQ:
			return v != stop
		}
		return false
	}
	// A loop stepping away from its bound never terminates.
	if (cmp == token.LSS || cmp == token.LEQ) && step < 0 ||
		(cmp == token.GTR || cmp == token.GEQ) && step > 0 {
		if holds(start) {
			return nil, t.errAt(pos, "loop", "loop never terminates: step moves away from the bound")
		}
	}
	var values []int64
	for v := start; holds(v); v += step {
		values = append(values, v)
		if len(values) > MaxUnroll {
			return nil, t.errAt(pos, "loop",
				"loop requires more than %d iterations to unroll", MaxUnroll)
		}
	}
	return values, nil
}

// doWhile unrolls `for cond { ... }`. The guard is re-evaluated
// symbolically each round: a guard that folds to false terminates the
// unrolling with certainty, a guard that stays symbolic phi-merges the
// body effects under it. At the ceiling the guard is assumed false,
// which is recorded as a warning because it is a termination assumption
// rather than a proved fact.
func (t *Translator) doWhile(s *ast.ForStmt, ev env) (env, retval, error) {
	ev = ev.clone()
	var pending []guarded
	for i := 0; i < MaxUnroll; i++ {
		g, err := t.expr(s.Cond, ev)
		if err != nil {
			return ev, retval{}, err
		}
		if g.Sort().Kind != formula.KindBool {
			return ev, retval{}, t.errAt(s.Cond.Pos(), "type",
				"loop condition must be Boolean, got %s", g.Sort())
		}
		if lit, ok := g.(formula.BoolLit); ok {
			if !lit.Val {
				return ev, retval{pending: pending}, nil
			}
			bodyEnv, rv, err := t.block(s.Body.List, ev)
			if err != nil {
				return ev, retval{}, err
			}
			ev = bodyEnv
			pending = append(pending, rv.pending...)
			if rv.final != nil {
				return ev, retval{pending: pending, final: rv.final}, nil
			}
			ev = t.nameGrown(ev)
			continue
		}

		bodyEnv, rv, err := t.block(s.Body.List, ev.clone())
		if err != nil {
			return ev, retval{}, err
		}
		for _, p := range rv.pending {
			pending = append(pending, guarded{cond: formula.Conj(g, p.cond), expr: p.expr})
		}
		if rv.final != nil {
			// When entered, every path through the body returns: the
			// loop runs at most once more, so the guarded return joins
			// the pendings and the guard-false path falls through.
			pending = append(pending, guarded{cond: g, expr: rv.resolve()})
			return ev, retval{pending: pending}, nil
		}
		ev = t.nameGrown(t.mergeEnvs(g, bodyEnv, ev))
	}

	g, err := t.expr(s.Cond, ev)
	if err != nil {
		return ev, retval{}, err
	}
	if lit, ok := g.(formula.BoolLit); ok && !lit.Val {
		return ev, retval{pending: pending}, nil
	}
	t.assumptions = append(t.assumptions, formula.NotOf(g))
	line := 0
	if t.fset != nil {
		line = t.fset.Position(s.Pos()).Line
	}
	t.warnings = append(t.warnings, fmt.Sprintf(
		"loop at line %d not proved to terminate within %d unrollings; its guard is assumed false afterwards",
		line, MaxUnroll))
	return ev, retval{pending: pending}, nil
}
