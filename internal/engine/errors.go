package engine

import (
	"fmt"
	"strings"

	"github.com/caisson-io/caisson/internal/ir"
)

// CycleError reports a reference cycle in the declaration. Raised before
// any mutation.
type CycleError struct {
	// Path lists the addresses along the cycle, first repeated last.
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// UnresolvedReferenceError reports a reference to a resource or attribute
// that does not exist. Resource-level misses are raised at graph build,
// attribute-level misses when the expression is evaluated.
type UnresolvedReferenceError struct {
	SourceAddr string
	TargetAddr string
	Err        error
}

func (e *UnresolvedReferenceError) Error() string {
	if e.TargetAddr != "" {
		return fmt.Sprintf("%s references undeclared resource %s", e.SourceAddr, e.TargetAddr)
	}
	return fmt.Sprintf("%s has an unresolvable reference: %s", e.SourceAddr, e.Err)
}

func (e *UnresolvedReferenceError) Unwrap() error {
	return e.Err
}

// ProviderError wraps a provider API failure. It is scoped to one resource;
// the executor marks the resource and its transitive dependents failed and
// lets independent branches continue.
type ProviderError struct {
	Address  string
	Provider string
	Op       ir.Op
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s %s: %s", e.Provider, e.Op, e.Address, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PlanStaleError means a saved plan no longer matches the declaration or
// state it was computed against.
type PlanStaleError struct {
	Reason string
}

func (e *PlanStaleError) Error() string {
	return "saved plan is stale: " + e.Reason
}
