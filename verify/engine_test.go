package verify

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goprove/goprove/formula"
	"github.com/goprove/goprove/proof"
)

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := New(Options{Timeout: 5 * time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func pred(arity int, fn func(args []formula.Expr) formula.Expr) *formula.Predicate {
	return formula.NewPredicate(arity, fn)
}

const clampSrc = `func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}`

func TestClampVerifies(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Name: "Clamp", Source: clampSrc},
		WithPre(pred(3, func(a []formula.Expr) formula.Expr {
			return formula.Le(a[1], a[2])
		})),
		WithPost(pred(4, func(a []formula.Expr) formula.Expr {
			r := a[3]
			return formula.Conj(formula.Ge(r, a[1]), formula.Le(r, a[2]))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)
	assert.Equal(t, "Clamp", cert.FunctionName)
	assert.NotEmpty(t, cert.SourceHash)
	assert.NotEmpty(t, cert.SolverVersion)
	assert.NoError(t, proof.Check(cert))
}

func TestClampWithoutPreIsDisproved(t *testing.T) {
	// Without lo <= hi the bounds can cross and the clamp fails.
	v := newVerifier(t)
	cert := v.Verify(Function{Name: "Clamp", Source: clampSrc},
		WithPost(pred(4, func(a []formula.Expr) formula.Expr {
			r := a[3]
			return formula.Conj(formula.Ge(r, a[1]), formula.Le(r, a[2]))
		})),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)
	assert.Contains(t, cert.Counterexample, "lo")
	assert.Contains(t, cert.Counterexample, "hi")
	assert.Contains(t, cert.Counterexample, proof.ResultVar)
}

func TestNegateCounterexample(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Negate(x int) int { return -x }`},
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[1], formula.I(0))
		})),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)

	x, ok := cert.Counterexample["x"].(int64)
	require.True(t, ok, "witness carries a concrete parameter value")
	r, ok := cert.Counterexample[proof.ResultVar].(int64)
	require.True(t, ok, "witness carries the return value")
	assert.Equal(t, -x, r)
	assert.Less(t, r, int64(0), "the witness must actually violate the postcondition")
}

func TestRemainderKeepsDividendSign(t *testing.T) {
	// result >= 0 must be refuted: a negative dividend yields a
	// negative remainder.
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Rem(x int) int { return x % 3 }`},
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[1], formula.I(0))
		})),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)

	x, ok := cert.Counterexample["x"].(int64)
	require.True(t, ok)
	r, ok := cert.Counterexample[proof.ResultVar].(int64)
	require.True(t, ok)
	assert.Equal(t, x%3, r)
	assert.Less(t, r, int64(0))
}

func TestQuotientTruncatesTowardZero(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Quot(x int) int { return x / -2 }`},
		WithPre(pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Eq(a[0], formula.I(7))
		})),
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Eq(a[1], formula.I(-3))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)

	// Folded literal operands agree with the symbolic encoding.
	cert = v.Verify(Function{Source: `func Quot() int { return 7 / -2 }`},
		WithPost(pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Eq(a[0], formula.I(-3))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)
}

func TestDeadIterationsProveNothing(t *testing.T) {
	// The loop returns on its first iteration; the assert behind the
	// return is dead and must not make the query vacuous.
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func AlwaysOne() int {
	for i := 0; i < 5; i++ {
		if i >= 0 {
			return 1
		}
		assert(i < 0)
	}
	return 2
}`},
		WithPost(pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Eq(a[0], formula.I(999))
		})),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)
	r, ok := cert.Counterexample[proof.ResultVar].(int64)
	require.True(t, ok)
	assert.Equal(t, int64(1), r)
}

func TestCompositionUsesCalleeContract(t *testing.T) {
	v := newVerifier(t)
	half := formula.Contract{
		Pre: pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[0], formula.I(0))
		}),
		Post: pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Conj(formula.Ge(a[1], formula.I(0)), formula.Le(a[1], a[0]))
		}),
		ReturnSort: formula.RealSort,
	}
	cert := v.Verify(Function{Source: `func Quarter(x float64) float64 {
	return half(half(x))
}`},
		WithContract("half", half),
		WithPre(pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[0], formula.I(0))
		})),
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Conj(formula.Ge(a[1], formula.I(0)), formula.Le(a[1], a[0]))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)
}

func TestUnprovenObligationIsDisproved(t *testing.T) {
	// Calling half without establishing its precondition first.
	v := newVerifier(t)
	half := formula.Contract{
		Pre: pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[0], formula.I(0))
		}),
		ReturnSort: formula.RealSort,
	}
	cert := v.Verify(Function{Source: `func Careless(x float64) float64 {
	return half(x)
}`},
		WithContract("half", half),
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Eq(a[1], a[1]) // trivially true; the obligation must still fail
		})),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)
}

func TestNoPostconditionIsSkippedNotVerified(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Id(x int) int { return x }`})
	require.Equal(t, proof.StatusSkipped, cert.Status)
	assert.Contains(t, cert.Message, "nothing to prove")
	assert.Error(t, proof.Check(cert), "skipped is not a proof")
}

func TestMissingReturnIsATranslationError(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Partial(a bool) int {
	if a {
		return 1
	}
}`},
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[1], formula.I(0))
		})),
	)
	require.Equal(t, proof.StatusTranslationError, cert.Status)
	assert.Contains(t, cert.Message, "return")
}

func TestLoopCeilingIsATranslationError(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Big() int {
	total := 0
	for i := 0; i < 100000; i++ {
		total += i
	}
	return total
}`},
		WithPost(pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Ge(a[0], formula.I(0))
		})),
	)
	require.Equal(t, proof.StatusTranslationError, cert.Status)
	assert.Contains(t, cert.Message, "256")
}

func TestSuspensionCapableIsSkipped(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Recv(ch chan int) int { return <-ch }`})
	require.Equal(t, proof.StatusSkipped, cert.Status)
	assert.Contains(t, cert.Message, "suspension")
}

func TestCacheReturnsIdenticalCertificate(t *testing.T) {
	v := newVerifier(t)
	post := pred(2, func(a []formula.Expr) formula.Expr {
		return formula.Eq(a[1], formula.Mul(a[0], formula.I(2)))
	})
	fn := Function{Source: `func Double(x int) int { return x * 2 }`}

	first := v.Verify(fn, WithPost(post))
	require.Equal(t, proof.StatusVerified, first.Status)

	second := v.Verify(fn, WithPost(post))
	assert.Same(t, first, second, "a repeat query must hit the proof cache")

	// A different contract is a different proof.
	other := v.Verify(fn, WithPost(pred(2, func(a []formula.Expr) formula.Expr {
		return formula.Eq(a[1], formula.Mul(a[0], formula.I(3)))
	})))
	assert.NotSame(t, first, other)
	assert.Equal(t, proof.StatusCounterexample, other.Status)
}

func TestClearCacheForcesAFreshProof(t *testing.T) {
	v := newVerifier(t)
	post := pred(2, func(a []formula.Expr) formula.Expr {
		return formula.Eq(a[1], formula.Mul(a[0], formula.I(2)))
	})
	fn := Function{Source: `func Double(x int) int { return x * 2 }`}

	first := v.Verify(fn, WithPost(post))
	require.Equal(t, proof.StatusVerified, first.Status)

	v.ClearCache()
	second := v.Verify(fn, WithPost(post))
	assert.NotSame(t, first, second, "the dropped entry is re-proved from scratch")
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.SourceHash, second.SourceHash)
}

func TestNonBooleanPostconditionIsATranslationError(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Id(x int) int { return x }`},
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Add(a[1], formula.I(1))
		})),
	)
	require.Equal(t, proof.StatusTranslationError, cert.Status)
	assert.Contains(t, cert.Message, "postcondition")
}

func TestPersistentCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	post := pred(2, func(a []formula.Expr) formula.Expr {
		return formula.Eq(a[1], formula.Mul(a[0], formula.I(2)))
	})
	fn := Function{Source: `func Double(x int) int { return x * 2 }`}

	v1, err := New(Options{CacheDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	first := v1.Verify(fn, WithPost(post))
	require.Equal(t, proof.StatusVerified, first.Status)
	require.NoError(t, v1.Close())

	v2, err := New(Options{CacheDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer v2.Close()
	second := v2.Verify(fn, WithPost(post))
	assert.Equal(t, proof.StatusVerified, second.Status)
	assert.Equal(t, first.SourceHash, second.SourceHash)
}

func TestExactRationalArithmetic(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Third() float64 { return 1.0 / 3.0 }`},
		WithPost(pred(1, func(a []formula.Expr) formula.Expr {
			return formula.Eq(formula.Mul(a[0], formula.I(3)), formula.I(1))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)
}

func TestRefinements(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Scale(x float64) float64 { return x * 0.5 }`},
		WithParamRefinements("x", formula.RefBetween(formula.I(0), formula.I(1))),
		WithReturnRefinements(formula.RefGe(formula.I(0)), formula.RefLe(formula.I(1))),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)

	// Without the parameter bound, the return bound is refuted.
	cert = v.Verify(Function{Source: `func Scale(x float64) float64 { return x * 0.5 }`},
		WithReturnRefinements(formula.RefGe(formula.I(0))),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)
}

func TestWhileCeilingWarningReachesCertificate(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func Halve(x float64) float64 {
	for x >= 1.0 {
		x = x / 2.0
	}
	return x
}`},
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Lt(a[1], formula.I(1))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)
	assert.Contains(t, cert.Message, "assumed false", "the termination assumption is surfaced as a caveat")
}

func TestExternalConstant(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func AtMost(x int) int {
	if x > limit {
		return limit
	}
	return x
}`},
		WithConst("limit", formula.I(100)),
		WithPost(pred(2, func(a []formula.Expr) formula.Expr {
			return formula.Le(a[1], formula.I(100))
		})),
	)
	require.Equal(t, proof.StatusVerified, cert.Status, cert.Message)
}

func TestParseFailureIsATranslationError(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Name: "Broken", Source: `func Broken(x int int { return x }`})
	require.Equal(t, proof.StatusTranslationError, cert.Status)
	assert.Contains(t, cert.Message, "parse error")
}

func TestTupleReturnWitness(t *testing.T) {
	v := newVerifier(t)
	cert := v.Verify(Function{Source: `func MinMax(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}`},
		WithPost(pred(3, func(args []formula.Expr) formula.Expr {
			r := args[2]
			lo := mustAt(r, 0)
			hi := mustAt(r, 1)
			// Deliberately wrong: claims the pair is strictly ordered.
			return formula.Lt(lo, hi)
		})),
	)
	require.Equal(t, proof.StatusCounterexample, cert.Status)
	elems, ok := cert.Counterexample[proof.ResultVar].([]any)
	require.True(t, ok)
	assert.Len(t, elems, 2)
}

func mustAt(e formula.Expr, i int) formula.Expr { return formula.AtOf(e, i) }
