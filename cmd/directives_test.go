package cmd

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goprove/goprove/formula"
	"github.com/goprove/goprove/symexec"
)

func parseDecl(t *testing.T, src string) *ast.FuncDecl {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "x.go", "package p\n\n"+src,
		parser.ParseComments|parser.SkipObjectResolution)
	require.NoError(t, err)
	for _, d := range file.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok {
			return fd
		}
	}
	t.Fatal("no function declaration in source")
	return nil
}

func TestParseDirectives(t *testing.T) {
	decl := parseDecl(t, `//goprove:pre x >= 0
//goprove:post result >= 0
//goprove:post result <= x
// Halve returns half of x.
func Halve(x float64) float64 { return x / 2.0 }`)

	d, err := parseDirectives(decl)
	require.NoError(t, err)
	assert.False(t, d.empty())
	assert.Equal(t, []string{"x >= 0"}, d.preText)
	assert.Equal(t, []string{"result >= 0", "result <= x"}, d.postText)
}

func TestParseDirectivesNoDoc(t *testing.T) {
	decl := parseDecl(t, `func Plain(x int) int { return x }`)
	d, err := parseDirectives(decl)
	require.NoError(t, err)
	assert.True(t, d.empty())
	assert.Nil(t, d.prePredicate(nil, nil))
	assert.Nil(t, d.postPredicate(nil, nil))
}

func TestParseDirectivesBadExpression(t *testing.T) {
	decl := parseDecl(t, `//goprove:pre x >=
func Bad(x int) int { return x }`)
	_, err := parseDirectives(decl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goprove:pre")
}

func TestParseDirectivesEmpty(t *testing.T) {
	decl := parseDecl(t, `//goprove:post
func Bad(x int) int { return x }`)
	_, err := parseDirectives(decl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestPrePredicateEvaluates(t *testing.T) {
	decl := parseDecl(t, `//goprove:pre lo <= hi
func Clamp(x, lo, hi float64) float64 { return x }`)
	d, err := parseDirectives(decl)
	require.NoError(t, err)

	params := []symexec.Param{
		{Name: "x", Sort: formula.RealSort},
		{Name: "lo", Sort: formula.RealSort},
		{Name: "hi", Sort: formula.RealSort},
	}
	pre := d.prePredicate(params, nil)
	require.NotNil(t, pre)
	assert.Equal(t, 3, pre.Arity())

	x := formula.V("x", formula.RealSort)
	lo := formula.V("lo", formula.RealSort)
	hi := formula.V("hi", formula.RealSort)
	got, err := pre.Apply([]formula.Expr{x, lo, hi})
	require.NoError(t, err)
	assert.Equal(t, formula.Le(lo, hi).String(), got.String())
}

func TestPostPredicateBindsResultAndConjoins(t *testing.T) {
	decl := parseDecl(t, `//goprove:post result >= 0
//goprove:post result <= x
func Halve(x float64) float64 { return x / 2.0 }`)
	d, err := parseDirectives(decl)
	require.NoError(t, err)

	params := []symexec.Param{{Name: "x", Sort: formula.RealSort}}
	post := d.postPredicate(params, nil)
	require.NotNil(t, post)
	assert.Equal(t, 2, post.Arity())

	x := formula.V("x", formula.RealSort)
	r := formula.V("$result", formula.RealSort)
	got, err := post.Apply([]formula.Expr{x, r})
	require.NoError(t, err)
	want := formula.Conj(formula.Ge(r, formula.I(0)), formula.Le(r, x))
	assert.Equal(t, want.String(), got.String())
}

func TestPostPredicateUnknownIdentifier(t *testing.T) {
	decl := parseDecl(t, `//goprove:post result >= y
func Halve(x float64) float64 { return x / 2.0 }`)
	d, err := parseDirectives(decl)
	require.NoError(t, err)

	post := d.postPredicate([]symexec.Param{{Name: "x", Sort: formula.RealSort}}, nil)
	_, err = post.Apply([]formula.Expr{
		formula.V("x", formula.RealSort),
		formula.V("$result", formula.RealSort),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "y")
}

func TestFileConstsCollected(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "x.go", `package p

const limit = 10
const derived = limit * 2
const scale = 2.5

var notAConst = 3
`, parser.SkipObjectResolution)
	require.NoError(t, err)

	consts := fileConsts(file)
	assert.Equal(t, formula.I(10), consts["limit"])
	assert.Equal(t, formula.I(20), consts["derived"], "constants may refer to earlier constants")
	require.Contains(t, consts, "scale")
	assert.Equal(t, formula.RealSort, consts["scale"].Sort())
	assert.NotContains(t, consts, "notAConst")
}

func TestPostPredicateCallsContract(t *testing.T) {
	decl := parseDecl(t, `//goprove:post result == double(x)
func Twice(x int) int { return x + x }`)
	d, err := parseDirectives(decl)
	require.NoError(t, err)

	contracts := map[string]formula.Contract{
		"double": {ReturnSort: formula.IntSort},
	}
	post := d.postPredicate([]symexec.Param{{Name: "x", Sort: formula.IntSort}}, contracts)
	x := formula.V("x", formula.IntSort)
	r := formula.V("$result", formula.IntSort)
	got, err := post.Apply([]formula.Expr{x, r})
	require.NoError(t, err)
	want := formula.Eq(r, formula.App{Fn: "double", Args: []formula.Expr{x}, Out: formula.IntSort})
	assert.Equal(t, want.String(), got.String())
}
