package cmd

import (
	"go/ast"
	"go/parser"
	"strings"

	"github.com/pkg/errors"

	"github.com/goprove/goprove/formula"
	"github.com/goprove/goprove/symexec"
)

const (
	preDirective  = "goprove:pre"
	postDirective = "goprove:post"

	// resultName is the identifier a postcondition directive uses for
	// the function's return value.
	resultName = "result"
)

// directives are the contract annotations read off a function's doc
// comment: //goprove:pre and //goprove:post lines holding expressions
// over the parameters (and, for post, `result`).
type directives struct {
	pre      []ast.Expr
	post     []ast.Expr
	preText  []string
	postText []string
}

func (d *directives) empty() bool { return len(d.pre) == 0 && len(d.post) == 0 }

// parseDirectives extracts and parses the goprove directives of one
// function declaration.
func parseDirectives(decl *ast.FuncDecl) (*directives, error) {
	d := &directives{}
	if decl.Doc == nil {
		return d, nil
	}
	for _, c := range decl.Doc.List {
		text := strings.TrimPrefix(c.Text, "//")
		var kind string
		switch {
		case strings.HasPrefix(text, preDirective):
			kind, text = preDirective, text[len(preDirective):]
		case strings.HasPrefix(text, postDirective):
			kind, text = postDirective, text[len(postDirective):]
		default:
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, errors.Errorf("%s: empty %s directive", decl.Name.Name, kind)
		}
		expr, err := parser.ParseExpr(text)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: parsing %s directive %q", decl.Name.Name, kind, text)
		}
		if kind == preDirective {
			d.pre = append(d.pre, expr)
			d.preText = append(d.preText, text)
		} else {
			d.post = append(d.post, expr)
			d.postText = append(d.postText, text)
		}
	}
	return d, nil
}

// prePredicate turns the pre directives into a predicate over the
// parameters. Returns nil when there are none.
func (d *directives) prePredicate(params []symexec.Param, contracts map[string]formula.Contract) *formula.Predicate {
	if len(d.pre) == 0 {
		return nil
	}
	exprs := d.pre
	return formula.NewPredicate(len(params), func(args []formula.Expr) formula.Expr {
		vars := bindParams(params, args)
		return evalDirectives(exprs, vars, contracts)
	})
}

// postPredicate turns the post directives into a predicate over the
// parameters plus the return value, bound to `result`.
func (d *directives) postPredicate(params []symexec.Param, contracts map[string]formula.Contract) *formula.Predicate {
	if len(d.post) == 0 {
		return nil
	}
	exprs := d.post
	return formula.NewPredicate(len(params)+1, func(args []formula.Expr) formula.Expr {
		vars := bindParams(params, args[:len(args)-1])
		vars[resultName] = args[len(args)-1]
		return evalDirectives(exprs, vars, contracts)
	})
}

func bindParams(params []symexec.Param, args []formula.Expr) map[string]formula.Expr {
	vars := make(map[string]formula.Expr, len(params)+1)
	for i, p := range params {
		vars[p.Name] = args[i]
	}
	return vars
}

func evalDirectives(exprs []ast.Expr, vars map[string]formula.Expr, contracts map[string]formula.Contract) formula.Expr {
	parts := make([]formula.Expr, len(exprs))
	for i, ex := range exprs {
		e, err := symexec.EvalExpr(nil, ex, vars, contracts)
		if err != nil {
			panic(err)
		}
		parts[i] = e
	}
	return formula.Conj(parts...)
}
