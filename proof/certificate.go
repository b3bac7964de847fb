// Package proof defines the immutable certificate a verification run
// produces: the outcome, the conditions that were in force, and, for a
// disproof, the witness inputs. Certificates serialize to JSON so they
// can live in a persistent cache.
package proof

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Status is the verification outcome.
type Status string

const (
	// StatusVerified: the contract holds for all inputs.
	StatusVerified Status = "verified"
	// StatusCounterexample: the contract is violated by a concrete input.
	StatusCounterexample Status = "counterexample"
	// StatusUnknown: the oracle could not decide within its budget.
	StatusUnknown Status = "unknown"
	// StatusTranslationError: the function is outside the supported subset.
	StatusTranslationError Status = "translation_error"
	// StatusSkipped: nothing to prove, or the function is out of scope.
	StatusSkipped Status = "skipped"
)

// ResultVar is the counterexample key carrying the function's return
// value alongside its parameter assignments.
const ResultVar = "$result"

// Certificate is the immutable record of one verification outcome.
// Construct it once and share it; nothing mutates it after creation.
type Certificate struct {
	FunctionName   string         `json:"function_name"`
	SourceHash     string         `json:"source_hash"`
	Status         Status         `json:"status"`
	Preconditions  []string       `json:"preconditions,omitempty"`
	Postconditions []string       `json:"postconditions,omitempty"`
	Counterexample map[string]any `json:"counterexample,omitempty"`
	Message        string         `json:"message,omitempty"`
	SolverTimeMS   float64        `json:"solver_time_ms,omitempty"`
	SolverVersion  string         `json:"solver_version,omitempty"`
}

// Verified reports whether the certificate is a proof.
func (c *Certificate) Verified() bool { return c.Status == StatusVerified }

func (c *Certificate) String() string {
	tag := strings.ToUpper(string(c.Status))
	switch c.Status {
	case StatusVerified:
		tag = "Q.E.D."
	case StatusCounterexample:
		tag = "DISPROVED"
	case StatusUnknown:
		tag = "?"
	}
	out := fmt.Sprintf("[%s] %s", tag, c.FunctionName)
	if len(c.Counterexample) > 0 {
		out += " - counterexample: " + c.renderWitness()
	}
	if c.Message != "" {
		out += " (" + c.Message + ")"
	}
	return out
}

// Explain renders a multi-line account of the outcome, including the
// violated postconditions when a witness exists.
func (c *Certificate) Explain() string {
	head := strings.ToUpper(string(c.Status))
	if c.Verified() {
		head = "Q.E.D."
	}
	lines := []string{fmt.Sprintf("%s: %s", head, c.FunctionName)}
	if len(c.Counterexample) > 0 {
		lines = append(lines, "  counterexample: "+c.renderWitness())
		if ret, ok := c.Counterexample[ResultVar]; ok {
			lines = append(lines, fmt.Sprintf("  %s(%s) = %v", c.FunctionName, c.renderArgs(), ret))
		}
		for _, post := range c.Postconditions {
			lines = append(lines, "  postcondition: "+post)
		}
	}
	if c.Message != "" {
		lines = append(lines, "  "+c.Message)
	}
	return strings.Join(lines, "\n")
}

func (c *Certificate) renderWitness() string {
	parts := make([]string, 0, len(c.Counterexample))
	for _, k := range c.witnessKeys(true) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c.Counterexample[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c *Certificate) renderArgs() string {
	parts := make([]string, 0, len(c.Counterexample))
	for _, k := range c.witnessKeys(false) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c.Counterexample[k]))
	}
	return strings.Join(parts, ", ")
}

func (c *Certificate) witnessKeys(includeResult bool) []string {
	keys := make([]string, 0, len(c.Counterexample))
	for k := range c.Counterexample {
		if k == ResultVar && !includeResult {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FailedError is returned by Check for any certificate that is not a
// proof.
type FailedError struct {
	Cert *Certificate
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("verification failed: %s", e.Cert)
}

// Check converts a non-verified certificate into a *FailedError, for
// callers that treat anything short of a proof as fatal.
func Check(c *Certificate) error {
	if c.Verified() {
		return nil
	}
	return &FailedError{Cert: c}
}

// Encode serializes the certificate as JSON.
func (c *Certificate) Encode() ([]byte, error) {
	d, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encoding certificate")
	}
	return d, nil
}

// Parse deserializes a certificate, normalizing counterexample numbers
// back to int64 or float64 so a round-tripped certificate compares
// equal to the original.
func Parse(data []byte) (*Certificate, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var c Certificate
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "parsing certificate")
	}
	if c.FunctionName == "" || c.Status == "" {
		return nil, errors.New("parsing certificate: missing required fields")
	}
	for k, v := range c.Counterexample {
		if n, ok := v.(json.Number); ok {
			c.Counterexample[k] = normalizeNumber(n)
		}
	}
	return &c, nil
}

func normalizeNumber(n json.Number) any {
	if strings.ContainsAny(n.String(), ".eE") {
		if f, err := n.Float64(); err == nil {
			return f
		}
	} else if i, err := n.Int64(); err == nil {
		return i
	}
	return n.String()
}
