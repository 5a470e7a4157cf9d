package decl

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/caisson-io/caisson/internal/ir"
)

// Scope carries resolved resource outputs for expression evaluation. A
// resource that is itself changing in the current run is set unknown, so
// references into it evaluate to unknown values until the executor produces
// its outputs.
type Scope struct {
	resources map[string]cty.Value
}

func NewScope() *Scope {
	return &Scope{resources: map[string]cty.Value{}}
}

// SetOutputs binds addr to its concrete outputs object.
func (s *Scope) SetOutputs(addr string, outputs map[string]any) {
	s.resources[addr] = OutputsVal(outputs)
}

// SetUnknown binds addr to a wholly unknown value, standing in for outputs
// that only exist after the resource is applied.
func (s *Scope) SetUnknown(addr string) {
	s.resources[addr] = cty.DynamicVal
}

// EvaluateResource evaluates every attribute expression of r against the
// scope. Values may be unknown; callers that need concrete values must
// check IsWhollyKnown.
func (s *Scope) EvaluateResource(r *ir.Resource) (map[string]cty.Value, error) {
	ctx := s.evalContext()
	out := make(map[string]cty.Value, len(r.Attrs))
	for name, expr := range r.Attrs {
		v, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s.%s: %w", r.Addr(), name, diags)
		}
		out[name] = v
	}
	return out, nil
}

// Evaluate evaluates a single expression, for output blocks.
func (s *Scope) Evaluate(expr hcl.Expression) (cty.Value, error) {
	v, diags := expr.Value(s.evalContext())
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return v, nil
}

// evalContext groups bound resources into the nested shape traversals
// expect: type -> name -> outputs object.
func (s *Scope) evalContext() *hcl.EvalContext {
	byType := map[string]map[string]cty.Value{}
	for addr, val := range s.resources {
		typ, name, ok := splitAddr(addr)
		if !ok {
			continue
		}
		if byType[typ] == nil {
			byType[typ] = map[string]cty.Value{}
		}
		byType[typ][name] = val
	}

	vars := make(map[string]cty.Value, len(byType))
	for typ, names := range byType {
		vars[typ] = cty.ObjectVal(names)
	}
	return &hcl.EvalContext{Variables: vars}
}

func splitAddr(addr string) (typ, name string, ok bool) {
	i := strings.Index(addr, ".")
	if i <= 0 || i == len(addr)-1 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}
