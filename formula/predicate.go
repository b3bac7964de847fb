package formula

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Variadic marks a predicate that accepts any number of arguments.
const Variadic = -1

// Predicate is a contract condition: a function from symbolic arguments
// to a Boolean-sorted expression, with a declared arity. Preconditions
// take one argument per parameter; postconditions take the parameters
// plus the return value.
type Predicate struct {
	arity int
	fn    func(args []Expr) Expr
}

// NewPredicate builds a predicate with the given arity. Pass Variadic
// to exempt the predicate from arity validation.
func NewPredicate(arity int, fn func(args []Expr) Expr) *Predicate {
	return &Predicate{arity: arity, fn: fn}
}

// Arity reports the declared argument count, or Variadic.
func (p *Predicate) Arity() int { return p.arity }

// Apply evaluates the predicate on args. Panics inside the predicate
// body are recovered, and any result that is not a Boolean-sorted
// expression is rejected: a contract must return a formula, never a
// native boolean or a bare value.
func (p *Predicate) Apply(args []Expr) (e Expr, err error) {
	defer func() {
		if r := recover(); r != nil {
			e = nil
			err = fmt.Errorf("predicate failed: %v", r)
		}
	}()
	res := p.fn(args)
	if res == nil {
		return nil, fmt.Errorf("predicate returned no formula")
	}
	if res.Sort().Kind != KindBool {
		return nil, fmt.Errorf("predicate returned a %s expression, expected a Boolean formula", res.Sort())
	}
	return res, nil
}

// Fingerprint computes a structural fingerprint of the predicate by
// applying it to the given placeholder variables and hashing the
// rendered term tree. Value-identical predicates built by separate
// closures fingerprint identically; a failing predicate fingerprints
// by its failure text.
func (p *Predicate) Fingerprint(placeholders []Expr) string {
	if p == nil {
		return "none"
	}
	text := ""
	if e, err := p.Apply(placeholders); err != nil {
		text = "!" + err.Error()
	} else {
		text = e.String()
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// Contract is the proved pre/post pair of a callee, consumed when a
// verified function is called from inside another function under
// verification. A zero ReturnSort defaults to Real.
type Contract struct {
	Pre        *Predicate
	Post       *Predicate
	ReturnSort Sort
}

// Fingerprint hashes a contract set for cache keying. Placeholder
// arguments are synthesized from each contract's declared arity.
func FingerprintContracts(contracts map[string]Contract) string {
	if len(contracts) == 0 {
		return "none"
	}
	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		c := contracts[name]
		fmt.Fprintf(h, "%s:%s:%s:%s;", name, c.ReturnSort,
			c.Pre.Fingerprint(contractPlaceholders(c.Pre)),
			c.Post.Fingerprint(contractPlaceholders(c.Post)))
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func contractPlaceholders(p *Predicate) []Expr {
	if p == nil {
		return nil
	}
	n := p.Arity()
	if n < 0 {
		n = 2
	}
	args := make([]Expr, n)
	for i := range args {
		args[i] = Var{Name: fmt.Sprintf("$a%d", i), S: RealSort}
	}
	return args
}
