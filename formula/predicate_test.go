package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateApply(t *testing.T) {
	p := NewPredicate(1, func(args []Expr) Expr {
		return Ge(args[0], I(0))
	})
	e, err := p.Apply([]Expr{V("x", IntSort)})
	require.NoError(t, err)
	assert.Equal(t, KindBool, e.Sort().Kind)
}

func TestPredicateRejectsNonBoolean(t *testing.T) {
	p := NewPredicate(1, func(args []Expr) Expr {
		return Add(args[0], I(1))
	})
	_, err := p.Apply([]Expr{V("x", IntSort)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a Boolean formula")
}

func TestPredicateRecoversPanics(t *testing.T) {
	p := NewPredicate(1, func(args []Expr) Expr {
		return NotOf(args[0]) // panics on a numeric argument
	})
	_, err := p.Apply([]Expr{V("x", IntSort)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predicate failed")
}

func TestFingerprintIsStructural(t *testing.T) {
	mk := func() *Predicate {
		return NewPredicate(1, func(args []Expr) Expr {
			return Gt(args[0], I(10))
		})
	}
	ph := []Expr{V("$a0", RealSort)}
	assert.Equal(t, mk().Fingerprint(ph), mk().Fingerprint(ph),
		"value-identical closures must fingerprint identically")

	other := NewPredicate(1, func(args []Expr) Expr {
		return Gt(args[0], I(11))
	})
	assert.NotEqual(t, mk().Fingerprint(ph), other.Fingerprint(ph))

	var nilPred *Predicate
	assert.Equal(t, "none", nilPred.Fingerprint(ph))
}

func TestFingerprintContractsOrderIndependent(t *testing.T) {
	pre := NewPredicate(1, func(args []Expr) Expr { return Ge(args[0], I(0)) })
	post := NewPredicate(2, func(args []Expr) Expr { return Le(args[1], args[0]) })
	a := map[string]Contract{
		"f": {Pre: pre, Post: post, ReturnSort: RealSort},
		"g": {Post: post},
	}
	b := map[string]Contract{
		"g": {Post: post},
		"f": {Pre: pre, Post: post, ReturnSort: RealSort},
	}
	assert.Equal(t, FingerprintContracts(a), FingerprintContracts(b))
	assert.Equal(t, "none", FingerprintContracts(nil))
}

func TestRefinementConstrain(t *testing.T) {
	v := V("x", RealSort)

	cs, err := RefBetween(I(0), I(1)).Constrain(v)
	require.NoError(t, err)
	require.Len(t, cs, 2)

	cs, err = RefNotEq(I(0)).Constrain(v)
	require.NoError(t, err)
	require.Len(t, cs, 1)

	cs, err = RefWhere(func(x Expr) Expr { return Gt(Mul(x, x), I(2)) }).Constrain(v)
	require.NoError(t, err)
	require.Len(t, cs, 1)

	_, err = RefWhere(func(x Expr) Expr { return Add(x, I(1)) }).Constrain(v)
	require.Error(t, err)
}
