// Package verify is the orchestrator: it turns one function plus one
// contract into an immutable proof certificate, by parsing the source,
// symbolically translating the body, assembling the verification
// condition, and asking the oracle whether its negation is satisfiable.
// Every failure mode becomes a certificate; Verify never returns an
// error.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/goprove/goprove/cache"
	"github.com/goprove/goprove/formula"
	"github.com/goprove/goprove/proof"
	"github.com/goprove/goprove/solver"
	"github.com/goprove/goprove/symexec"
)

// Options configures a Verifier.
type Options struct {
	// Timeout bounds each oracle call; zero means DefaultTimeout.
	Timeout time.Duration
	// CacheDir enables a directory-backed persistent cache.
	CacheDir string
	// CacheDB enables a database-backed persistent cache. Takes
	// precedence over CacheDir when both are set.
	CacheDB string
	// Logger receives structured progress events.
	Logger zerolog.Logger
}

// Verifier runs verifications against a shared proof cache. Safe for
// concurrent use.
type Verifier struct {
	timeout time.Duration
	cache   *cache.Cache
	logger  zerolog.Logger
}

// New builds a Verifier, opening the persistent cache tier when one is
// configured.
func New(opts Options) (*Verifier, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var store cache.Store
	switch {
	case opts.CacheDB != "":
		s, err := cache.NewBoltStore(opts.CacheDB, opts.Logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening proof cache")
		}
		store = s
	case opts.CacheDir != "":
		s, err := cache.NewDirStore(opts.CacheDir, opts.Logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening proof cache")
		}
		store = s
	}
	return &Verifier{
		timeout: timeout,
		cache:   cache.New(store),
		logger:  opts.Logger,
	}, nil
}

// Close releases the persistent cache tier.
func (v *Verifier) Close() error { return v.cache.Close() }

// ClearCache drops the in-memory proof cache; persisted proofs remain.
func (v *Verifier) ClearCache() { v.cache.Clear() }

// Function is one verification subject: the source text of a single
// function declaration (a package clause is optional) and the name of
// the declaration to verify, which may be empty when the source holds
// exactly one function.
type Function struct {
	Name   string
	Source string
}

// Verify proves or disproves that fn satisfies its contract for all
// inputs. The outcome, whatever it is, arrives as a certificate:
// unsupported source is a translation error, oracle fatigue is
// unknown, a missing postcondition is skipped.
func (v *Verifier) Verify(fn Function, opts ...VerifyOption) *proof.Certificate {
	cfg := &config{timeout: v.timeout}
	for _, opt := range opts {
		opt(cfg)
	}

	fset, decl, err := parseFunction(fn.Name, fn.Source)
	if err != nil {
		return v.errCert(fn.Name, fn.Source, fmt.Sprintf("parse error: %v", err))
	}
	name := decl.Name.Name

	if symexec.Async(decl) {
		cert := &proof.Certificate{
			FunctionName: name,
			SourceHash:   sourceHash(fn.Source),
			Status:       proof.StatusSkipped,
			Message:      "suspension-capable function: verification not applicable",
		}
		v.logger.Debug().Str("function", name).Msg("skipping suspension-capable function")
		return cert
	}
	if terr := symexec.ForbiddenConstruct(fset, decl); terr != nil {
		return v.errCert(name, fn.Source, terr.Error())
	}

	params, retSort, serr := symexec.SignatureOf(fset, decl)
	if serr != nil {
		return v.errCert(name, fn.Source, serr.(*symexec.TranslationError).Error())
	}

	key := cacheKey(fn.Source, cfg, params)
	if cert, ok := v.cache.Get(key); ok {
		v.logger.Debug().Str("function", name).Str("key", key).Msg("proof cache hit")
		return cert
	}

	cert := v.prove(fset, decl, fn.Source, params, retSort, cfg)
	switch cert.Status {
	case proof.StatusVerified, proof.StatusCounterexample, proof.StatusUnknown:
		v.cache.Put(key, cert)
	default:
		v.cache.PutLocal(key, cert)
	}
	v.logger.Info().
		Str("function", name).
		Str("status", string(cert.Status)).
		Float64("solver_ms", cert.SolverTimeMS).
		Msg("verification finished")
	return cert
}

// Check is Verify for callers that want anything short of a proof to
// be an error.
func (v *Verifier) Check(fn Function, opts ...VerifyOption) error {
	return proof.Check(v.Verify(fn, opts...))
}

func (v *Verifier) prove(fset *token.FileSet, decl *ast.FuncDecl, source string, params []symexec.Param, retSort formula.Sort, cfg *config) *proof.Certificate {
	name := decl.Name.Name

	paramVars := make(map[string]formula.Expr, len(params))
	ordered := make([]formula.Expr, len(params))
	for i, p := range params {
		pv := formula.V(p.Name, p.Sort)
		paramVars[p.Name] = pv
		ordered[i] = pv
	}

	res, terr := symexec.Translate(fset, decl, paramVars, cfg.contracts, cfg.consts)
	if terr != nil {
		return v.errCert(name, source, terr.Error())
	}
	if res.ReturnExpr == nil {
		return v.errCert(name, source, "not all control paths return a value")
	}

	retVar := resultVar(retSort, res.ReturnExpr)

	var asserts []formula.Expr
	var preStrs, postStrs []string

	// Assumption side: precondition, parameter refinements, body facts.
	if cfg.pre != nil {
		if n := cfg.pre.Arity(); n != formula.Variadic && n != len(ordered) {
			return v.errCert(name, source,
				fmt.Sprintf("precondition expects %d argument(s), function has %d parameters", n, len(ordered)))
		}
		pre, err := cfg.pre.Apply(ordered)
		if err != nil {
			return v.errCert(name, source, fmt.Sprintf("precondition error: %v", err))
		}
		asserts = append(asserts, pre)
		preStrs = append(preStrs, pre.String())
	}
	for _, pname := range sortedKeys(cfg.paramRefs) {
		pv, ok := paramVars[pname]
		if !ok {
			return v.errCert(name, source,
				fmt.Sprintf("refinement on unknown parameter '%s'", pname))
		}
		for _, ref := range cfg.paramRefs[pname] {
			cs, err := ref.Constrain(pv)
			if err != nil {
				return v.errCert(name, source,
					fmt.Sprintf("refinement on '%s': %v", pname, err))
			}
			for _, c := range cs {
				asserts = append(asserts, c)
				preStrs = append(preStrs, c.String())
			}
		}
	}
	asserts = append(asserts, res.Assumptions...)

	bind, err := bindResult(retVar, res.ReturnExpr)
	if err != nil {
		return v.errCert(name, source, fmt.Sprintf("return value error: %v", err))
	}
	asserts = append(asserts, bind)

	// Goal side: postcondition, return refinements, body obligations.
	var goal []formula.Expr
	if cfg.post != nil {
		postArgs := append(append([]formula.Expr{}, ordered...), retVar)
		if n := cfg.post.Arity(); n != formula.Variadic && n != len(postArgs) {
			return v.errCert(name, source,
				fmt.Sprintf("postcondition expects %d argument(s), function provides %d", n, len(postArgs)))
		}
		post, err := cfg.post.Apply(postArgs)
		if err != nil {
			return v.errCert(name, source, fmt.Sprintf("postcondition error: %v", err))
		}
		goal = append(goal, post)
		postStrs = append(postStrs, post.String())
	}
	for _, ref := range cfg.returnRefs {
		cs, err := ref.Constrain(retVar)
		if err != nil {
			return v.errCert(name, source, fmt.Sprintf("return refinement: %v", err))
		}
		for _, c := range cs {
			goal = append(goal, c)
			postStrs = append(postStrs, c.String())
		}
	}
	for _, ob := range res.Obligations {
		goal = append(goal, ob)
		postStrs = append(postStrs, "obligation: "+ob.String())
	}

	if len(goal) == 0 {
		return &proof.Certificate{
			FunctionName:  name,
			SourceHash:    sourceHash(source),
			Status:        proof.StatusSkipped,
			Preconditions: preStrs,
			Message:       "no postcondition: nothing to prove",
		}
	}

	// A proof is the unsatisfiability of assumptions plus negated goal.
	asserts = append(asserts, formula.NotOf(formula.Conj(goal...)))

	if e := v.logger.Debug(); e.Enabled() {
		e.Str("function", name).
			Str("condition", formula.ToYAML(formula.Conj(asserts...))).
			Msg("verification condition assembled")
	}

	s := solver.New(cfg.timeout)
	result, err := s.Check(asserts)
	if err != nil {
		return v.errCert(name, source, err.Error())
	}

	cert := &proof.Certificate{
		FunctionName:   name,
		SourceHash:     sourceHash(source),
		Preconditions:  preStrs,
		Postconditions: postStrs,
		SolverTimeMS:   float64(result.Elapsed.Microseconds()) / 1000,
		SolverVersion:  solver.Version,
		Message:        strings.Join(res.Warnings, "; "),
	}
	switch result.Outcome {
	case solver.Unsat:
		cert.Status = proof.StatusVerified
	case solver.Sat:
		cert.Status = proof.StatusCounterexample
		cert.Counterexample = witness(result, params, paramVars, retVar)
		msg := fmt.Sprintf("counterexample found: %d assignment(s)", len(cert.Counterexample))
		cert.Message = joinMessages(msg, cert.Message)
	default:
		cert.Status = proof.StatusUnknown
		reason := result.Reason
		if reason == "" {
			reason = fmt.Sprintf("solver returned unknown (timeout %dms?)", cfg.timeout.Milliseconds())
		}
		cert.Message = joinMessages(reason, cert.Message)
	}
	return cert
}

// resultVar names the return value so counterexamples can report it.
// The declared sort wins for scalars; tuple returns take the sort of
// the translated expression, whose element count is authoritative.
func resultVar(declared formula.Sort, ret formula.Expr) formula.Expr {
	s := ret.Sort()
	if declared.Kind != formula.KindInvalid && declared.Kind != formula.KindTuple && s.Kind != formula.KindTuple {
		s = declared
	}
	return formula.V(proof.ResultVar, s)
}

func bindResult(retVar, ret formula.Expr) (e formula.Expr, err error) {
	defer formula.RecoverBuild(&err)
	return formula.Eq(retVar, ret), nil
}

// witness reads the model back into native values, one per parameter
// plus the return value. Tuple returns report element by element.
func witness(result *solver.Result, params []symexec.Param, paramVars map[string]formula.Expr, retVar formula.Expr) map[string]any {
	out := make(map[string]any, len(params)+1)
	for _, p := range params {
		if val, ok := result.Eval(paramVars[p.Name]); ok {
			out[p.Name] = val
		}
	}
	if s := retVar.Sort(); s.Kind == formula.KindTuple {
		elems := make([]any, 0, len(s.Elems))
		for i := range s.Elems {
			elem, err := atResult(retVar, i)
			if err != nil {
				return out
			}
			if val, ok := result.Eval(elem); ok {
				elems = append(elems, val)
			}
		}
		out[proof.ResultVar] = elems
		return out
	}
	if val, ok := result.Eval(retVar); ok {
		out[proof.ResultVar] = val
	}
	return out
}

func atResult(retVar formula.Expr, i int) (e formula.Expr, err error) {
	defer formula.RecoverBuild(&err)
	return formula.AtOf(retVar, i), nil
}

func (v *Verifier) errCert(name, source, msg string) *proof.Certificate {
	cert := &proof.Certificate{
		FunctionName: name,
		SourceHash:   sourceHash(source),
		Status:       proof.StatusTranslationError,
		Message:      msg,
	}
	v.logger.Debug().Str("function", name).Str("reason", msg).Msg("translation failed")
	return cert
}

func joinMessages(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}

// parseFunction parses source holding one or more function
// declarations, wrapping it in a synthetic package clause when needed,
// and picks out the named declaration.
func parseFunction(name, source string) (*token.FileSet, *ast.FuncDecl, error) {
	text := source
	if !strings.HasPrefix(strings.TrimSpace(text), "package ") {
		text = "package p\n\n" + text
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "subject.go", text, parser.SkipObjectResolution)
	if err != nil {
		return nil, nil, err
	}
	var found *ast.FuncDecl
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok {
			continue
		}
		if name == "" || fd.Name.Name == name {
			found = fd
			break
		}
	}
	if found == nil {
		if name == "" {
			return nil, nil, errors.New("no function declaration in source")
		}
		return nil, nil, errors.Errorf("no function named '%s' in source", name)
	}
	return fset, found, nil
}

func sourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:8])
}

// cacheKey addresses a proof by everything that determines its
// outcome: the source text and the full contract configuration. The
// oracle timeout is deliberately excluded, matching the rule that a
// proof is a pure function of source and contract.
func cacheKey(source string, cfg *config, params []symexec.Param) string {
	ordered := make([]formula.Expr, len(params))
	for i, p := range params {
		ordered[i] = formula.V(p.Name, p.Sort)
	}
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	fmt.Fprintf(h, "pre=%s;", cfg.pre.Fingerprint(ordered))
	postArgs := append(append([]formula.Expr{}, ordered...), formula.V(proof.ResultVar, formula.RealSort))
	fmt.Fprintf(h, "post=%s;", cfg.post.Fingerprint(postArgs))
	fmt.Fprintf(h, "contracts=%s;", formula.FingerprintContracts(cfg.contracts))
	for _, pname := range sortedKeys(cfg.paramRefs) {
		pv := formula.V(pname, formula.RealSort)
		for _, ref := range cfg.paramRefs[pname] {
			fmt.Fprintf(h, "ref[%s]=%s;", pname, refString(ref, pv))
		}
	}
	for _, ref := range cfg.returnRefs {
		fmt.Fprintf(h, "ret=%s;", refString(ref, formula.V(proof.ResultVar, formula.RealSort)))
	}
	for _, cname := range sortedKeys(cfg.consts) {
		fmt.Fprintf(h, "const[%s]=%s;", cname, cfg.consts[cname])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func refString(ref formula.Refinement, v formula.Expr) string {
	cs, err := ref.Constrain(v)
	if err != nil {
		return "!" + err.Error()
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, "&")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
