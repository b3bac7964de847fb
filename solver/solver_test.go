package solver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goprove/goprove/formula"
)

func TestUnsat(t *testing.T) {
	s := New(time.Second)
	x := formula.V("x", formula.IntSort)
	res, err := s.Check([]formula.Expr{
		formula.Gt(x, formula.I(0)),
		formula.Lt(x, formula.I(0)),
	})
	require.NoError(t, err)
	assert.Equal(t, Unsat, res.Outcome)
}

func TestSatYieldsModel(t *testing.T) {
	s := New(time.Second)
	x := formula.V("x", formula.IntSort)
	res, err := s.Check([]formula.Expr{
		formula.Gt(x, formula.I(41)),
		formula.Lt(x, formula.I(43)),
	})
	require.NoError(t, err)
	require.Equal(t, Sat, res.Outcome)

	val, ok := res.Eval(x)
	require.True(t, ok)
	assert.Equal(t, int64(42), val)
}

func TestRealArithmeticIsExact(t *testing.T) {
	s := New(time.Second)
	x := formula.V("x", formula.RealSort)
	res, err := s.Check([]formula.Expr{
		formula.Eq(formula.Mul(x, formula.I(3)), formula.I(1)),
	})
	require.NoError(t, err)
	require.Equal(t, Sat, res.Outcome)

	val, ok := res.Eval(x)
	require.True(t, ok)
	f, isFloat := val.(float64)
	require.True(t, isFloat)
	assert.InDelta(t, 1.0/3.0, f, 1e-9)
}

func TestBoolEval(t *testing.T) {
	s := New(time.Second)
	p := formula.V("p", formula.BoolSort)
	res, err := s.Check([]formula.Expr{p})
	require.NoError(t, err)
	require.Equal(t, Sat, res.Outcome)

	val, ok := res.Eval(p)
	require.True(t, ok)
	assert.Equal(t, true, val)
}

func TestUninterpretedApplication(t *testing.T) {
	s := New(time.Second)
	x := formula.V("x", formula.RealSort)
	fx := formula.App{Fn: "f", Args: []formula.Expr{x}, Out: formula.RealSort}
	// f(x) <= x and f(x) > x is contradictory for one and the same
	// application.
	res, err := s.Check([]formula.Expr{
		formula.Le(fx, x),
		formula.Gt(fx, x),
	})
	require.NoError(t, err)
	assert.Equal(t, Unsat, res.Outcome)
}

func TestTupleSelectionEncodes(t *testing.T) {
	s := New(time.Second)
	r := formula.V("r", formula.TupleSort(formula.IntSort, formula.BoolSort))
	first := formula.AtOf(r, 0)
	res, err := s.Check([]formula.Expr{
		formula.Eq(first, formula.I(5)),
	})
	require.NoError(t, err)
	require.Equal(t, Sat, res.Outcome)

	val, ok := res.Eval(first)
	require.True(t, ok)
	assert.Equal(t, int64(5), val)
}

func TestIntDivisionTruncatesTowardZero(t *testing.T) {
	// Symbolic operands keep the builder from folding, so these go
	// through the encoder. Quotients truncate toward zero and the
	// remainder takes the dividend's sign, matching the language.
	cases := []struct{ a, b, quo, rem int64 }{
		{7, 3, 2, 1},
		{-7, 3, -2, -1},
		{7, -3, -2, 1},
		{-7, -3, 2, -1},
		{-6, 3, -2, 0},
	}
	for _, tc := range cases {
		s := New(time.Second)
		a := formula.V("a", formula.IntSort)
		b := formula.V("b", formula.IntSort)
		q := formula.V("q", formula.IntSort)
		r := formula.V("r", formula.IntSort)
		res, err := s.Check([]formula.Expr{
			formula.Eq(a, formula.I(tc.a)),
			formula.Eq(b, formula.I(tc.b)),
			formula.Eq(q, formula.Binary{Op: formula.OpIntDiv, X: a, Y: b}),
			formula.Eq(r, formula.Binary{Op: formula.OpMod, X: a, Y: b}),
		})
		require.NoError(t, err)
		require.Equal(t, Sat, res.Outcome)

		quo, ok := res.Eval(q)
		require.True(t, ok)
		assert.Equal(t, tc.quo, quo, "%d / %d", tc.a, tc.b)
		rem, ok := res.Eval(r)
		require.True(t, ok)
		assert.Equal(t, tc.rem, rem, "%d %% %d", tc.a, tc.b)
	}
}

func TestEncodingFailureIsAnError(t *testing.T) {
	s := New(time.Second)
	// A bare tuple cannot be asserted.
	tup := formula.TupleOf(formula.I(1))
	_, err := s.Check([]formula.Expr{tup})
	require.Error(t, err)
}
