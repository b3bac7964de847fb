package verify

import (
	"time"

	"github.com/goprove/goprove/formula"
)

// DefaultTimeout bounds a single oracle call unless overridden.
const DefaultTimeout = 5 * time.Second

// config is the per-call verification configuration, assembled from
// VerifyOptions.
type config struct {
	pre        *formula.Predicate
	post       *formula.Predicate
	timeout    time.Duration
	contracts  map[string]formula.Contract
	consts     map[string]formula.Expr
	paramRefs  map[string][]formula.Refinement
	returnRefs []formula.Refinement
}

// VerifyOption configures a single Verify call.
type VerifyOption func(*config)

// WithPre supplies the precondition predicate, applied to the
// function's parameters in declaration order.
func WithPre(p *formula.Predicate) VerifyOption {
	return func(c *config) { c.pre = p }
}

// WithPost supplies the postcondition predicate, applied to the
// parameters followed by the return value.
func WithPost(p *formula.Predicate) VerifyOption {
	return func(c *config) { c.post = p }
}

// WithTimeout overrides the verifier's oracle timeout for this call.
func WithTimeout(d time.Duration) VerifyOption {
	return func(c *config) { c.timeout = d }
}

// WithContracts makes already-verified callees available to the body
// under their names.
func WithContracts(contracts map[string]formula.Contract) VerifyOption {
	return func(c *config) {
		if c.contracts == nil {
			c.contracts = make(map[string]formula.Contract, len(contracts))
		}
		for name, ct := range contracts {
			c.contracts[name] = ct
		}
	}
}

// WithContract makes a single verified callee available.
func WithContract(name string, ct formula.Contract) VerifyOption {
	return func(c *config) {
		if c.contracts == nil {
			c.contracts = make(map[string]formula.Contract, 1)
		}
		c.contracts[name] = ct
	}
}

// WithConst binds a free name visible inside the body, typically a
// configuration constant the function closes over.
func WithConst(name string, value formula.Expr) VerifyOption {
	return func(c *config) {
		if c.consts == nil {
			c.consts = make(map[string]formula.Expr, 1)
		}
		c.consts[name] = value
	}
}

// WithParamRefinements attaches refinements to a named parameter;
// they join the assumption side of the verification condition.
func WithParamRefinements(param string, refs ...formula.Refinement) VerifyOption {
	return func(c *config) {
		if c.paramRefs == nil {
			c.paramRefs = make(map[string][]formula.Refinement, 1)
		}
		c.paramRefs[param] = append(c.paramRefs[param], refs...)
	}
}

// WithReturnRefinements attaches refinements to the return value; they
// join the goal side and must be proved.
func WithReturnRefinements(refs ...formula.Refinement) VerifyOption {
	return func(c *config) {
		c.returnRefs = append(c.returnRefs, refs...)
	}
}
