package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/caisson-io/caisson/internal/decl"
	"github.com/caisson-io/caisson/internal/ir"
	"github.com/caisson-io/caisson/internal/logging"
	"github.com/caisson-io/caisson/internal/provider"
)

// Engine plans and applies declarations. Providers come from the registry;
// the state store is handed to Apply by the caller.
type Engine struct {
	registry    *provider.Registry
	Parallelism int
	Timeout     time.Duration
	Retry       RetryPolicy
}

func New(registry *provider.Registry) *Engine {
	return &Engine{
		registry:    registry,
		Parallelism: DefaultParallelism,
		Timeout:     DefaultTimeout,
		Retry:       DefaultRetryPolicy(),
	}
}

// Plan diffs the declaration against the snapshot and returns the ordered
// action list. It mutates nothing.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config, configHash string, snap *ir.Snapshot) (*ir.Plan, error) {
	graph, err := BuildGraph(cfg.Resources)
	if err != nil {
		return nil, err
	}

	scope := decl.NewScope()
	for _, rs := range snap.Resources {
		scope.SetOutputs(rs.Addr(), rs.Outputs)
	}

	var actions []*ir.Action
	for _, addr := range graph.CreationOrder() {
		r := cfg.Resource(addr)
		prior := snap.Resource(addr)

		schema, err := e.schemaFor(r)
		if err != nil {
			return nil, err
		}
		desired, err := scope.EvaluateResource(r)
		if err != nil {
			return nil, &UnresolvedReferenceError{SourceAddr: addr, Err: err}
		}

		if prior == nil {
			actions = append(actions, &ir.Action{
				Address:  addr,
				Op:       ir.OpCreate,
				Diff:     createDiff(desired, schema),
				Resource: r,
			})
			scope.SetUnknown(addr)
			continue
		}

		diff, replace := diffAttrs(r, desired, prior.Inputs, schema)
		if len(diff) == 0 {
			logging.Debug("no changes", "address", addr)
			continue
		}

		if replace {
			if r.Lifecycle.PreventDestroy {
				return nil, fmt.Errorf("%s: prevent_destroy is set but a changed attribute forces replacement", addr)
			}
			actions = append(actions,
				&ir.Action{Address: addr, Op: ir.OpDelete, Replace: true, Resource: r, Prior: prior},
				&ir.Action{Address: addr, Op: ir.OpCreate, Replace: true, Diff: diff, Resource: r, Prior: prior},
			)
			scope.SetUnknown(addr)
			continue
		}

		actions = append(actions, &ir.Action{
			Address:  addr,
			Op:       ir.OpUpdate,
			Diff:     diff,
			Resource: r,
			Prior:    prior,
		})
		// In-place updates keep provider-assigned outputs, so downstream
		// references stay concrete during planning.
	}

	for _, rs := range snap.Resources {
		if cfg.Resource(rs.Addr()) == nil {
			actions = append(actions, &ir.Action{
				Address: rs.Addr(),
				Op:      ir.OpDelete,
				Diff:    deleteDiff(rs),
				Prior:   rs,
			})
		}
	}

	ordered, err := orderActions(actions, graph)
	if err != nil {
		return nil, err
	}
	return &ir.Plan{Meta: planMeta(configHash, snap), Actions: ordered}, nil
}

// PlanDestroy plans the deletion of everything in the snapshot, ordered by
// the dependencies recorded when each resource was applied.
func (e *Engine) PlanDestroy(ctx context.Context, cfg *ir.Config, configHash string, snap *ir.Snapshot) (*ir.Plan, error) {
	var actions []*ir.Action
	for _, rs := range snap.Resources {
		if r := cfg.Resource(rs.Addr()); r != nil && r.Lifecycle.PreventDestroy {
			return nil, fmt.Errorf("%s: prevent_destroy is set; remove it before destroying", rs.Addr())
		}
		actions = append(actions, &ir.Action{
			Address: rs.Addr(),
			Op:      ir.OpDelete,
			Diff:    deleteDiff(rs),
			Prior:   rs,
		})
	}

	ordered, err := orderActions(actions, nil)
	if err != nil {
		return nil, err
	}
	return &ir.Plan{Meta: planMeta(configHash, snap), Actions: ordered}, nil
}

func planMeta(configHash string, snap *ir.Snapshot) *ir.PlanMeta {
	return &ir.PlanMeta{
		CreatedAt:    time.Now().UTC(),
		ConfigHash:   configHash,
		StateSerial:  snap.Serial,
		StateLineage: snap.Lineage,
	}
}

// VerifyPlan checks a saved plan against the current declaration and
// snapshot. Planning is deterministic, so matching metadata means a fresh
// plan would produce the same actions; anything else is stale.
func VerifyPlan(plan *ir.Plan, configHash string, snap *ir.Snapshot) error {
	if plan.Meta == nil {
		return &PlanStaleError{Reason: "plan file carries no metadata"}
	}
	if plan.Meta.ConfigHash != configHash {
		return &PlanStaleError{Reason: "configuration changed since the plan was created"}
	}
	if plan.Meta.StateLineage != snap.Lineage {
		return &PlanStaleError{Reason: "state lineage changed since the plan was created"}
	}
	if plan.Meta.StateSerial != snap.Serial {
		return &PlanStaleError{
			Reason: fmt.Sprintf("state serial is %d but the plan was computed at %d", snap.Serial, plan.Meta.StateSerial),
		}
	}
	return nil
}

func (e *Engine) schemaFor(r *ir.Resource) (*provider.ResourceSchema, error) {
	p, err := e.registry.Get(r.Provider)
	if err != nil {
		return nil, err
	}
	schema, err := p.Schema(r.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Addr(), err)
	}
	return schema, nil
}

// diffAttrs compares desired attribute values against the last applied
// inputs. The second result reports whether a changed attribute is
// immutable, forcing replacement.
func diffAttrs(r *ir.Resource, desired map[string]cty.Value, priorInputs map[string]any, schema *provider.ResourceSchema) (map[string]*ir.AttributeDiff, bool) {
	ignored := map[string]bool{}
	for _, name := range r.Lifecycle.IgnoreChanges {
		ignored[name] = true
	}

	keys := map[string]struct{}{}
	for k := range desired {
		keys[k] = struct{}{}
	}
	for k := range priorInputs {
		keys[k] = struct{}{}
	}

	diff := map[string]*ir.AttributeDiff{}
	replace := false
	for k := range keys {
		if ignored[k] {
			continue
		}
		dv, hasDesired := desired[k]
		pv, hasPrior := priorInputs[k]

		var changed, unknown bool
		switch {
		case hasDesired && !hasPrior:
			changed = true
			unknown = !dv.IsWhollyKnown()
		case !hasDesired && hasPrior:
			changed = true
		default:
			if !dv.IsWhollyKnown() {
				changed = true
				unknown = true
			} else {
				changed = !dv.RawEquals(decl.ToCty(pv))
			}
		}
		if !changed {
			continue
		}

		forces := schema.IsImmutable(k)
		d := &ir.AttributeDiff{
			Before:            pv,
			Unknown:           unknown,
			Sensitive:         schema.IsSensitive(k),
			ForcesReplacement: forces,
		}
		if hasDesired && !unknown {
			d.After = decl.FromCty(dv)
		}
		diff[k] = d
		if forces {
			replace = true
		}
	}
	return diff, replace
}

func createDiff(desired map[string]cty.Value, schema *provider.ResourceSchema) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(desired))
	for k, v := range desired {
		d := &ir.AttributeDiff{
			Unknown:   !v.IsWhollyKnown(),
			Sensitive: schema.IsSensitive(k),
		}
		if !d.Unknown {
			d.After = decl.FromCty(v)
		}
		diff[k] = d
	}
	return diff
}

func deleteDiff(rs *ir.ResourceState) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(rs.Inputs))
	for k, v := range rs.Inputs {
		diff[k] = &ir.AttributeDiff{Before: v}
	}
	return diff
}

// orderActions links actions into an execution DAG and flattens it
// deterministically. Rules:
//   - a create/update waits for the create/update of everything the
//     resource references;
//   - a delete waits for the deletes of resources whose snapshot entry
//     recorded a dependency on it;
//   - a plain delete additionally waits for updates of resources that used
//     to depend on it, so nothing references the old instance when it goes;
//   - a replace pair orders delete-then-create, or create-then-delete with
//     the old delete after the dependents' actions when
//     create_before_destroy is set.
func orderActions(actions []*ir.Action, graph *Graph) ([]*ir.Action, error) {
	byKey := make(map[string]*ir.Action, len(actions))
	cu := map[string]*ir.Action{}
	del := map[string]*ir.Action{}
	for _, a := range actions {
		byKey[a.Key()] = a
		if a.Op == ir.OpDelete {
			del[a.Address] = a
		} else {
			cu[a.Address] = a
		}
	}

	deps := make(map[string]map[string]struct{}, len(actions))
	addDep := func(a *ir.Action, on *ir.Action) {
		if on == nil || on == a {
			return
		}
		if deps[a.Key()] == nil {
			deps[a.Key()] = map[string]struct{}{}
		}
		deps[a.Key()][on.Key()] = struct{}{}
	}

	for _, a := range actions {
		switch a.Op {
		case ir.OpCreate, ir.OpUpdate:
			for _, depAddr := range resourceDeps(a.Resource) {
				addDep(a, cu[depAddr])
			}
			if a.Replace && !a.Resource.Lifecycle.CreateBeforeDestroy {
				addDep(a, del[a.Address])
			}

		case ir.OpDelete:
			for _, other := range actions {
				if other == a || other.Prior == nil {
					continue
				}
				if !containsString(other.Prior.Dependencies, a.Address) {
					continue
				}
				if other.Op == ir.OpDelete {
					addDep(a, other)
				} else if !a.Replace {
					addDep(a, other)
				}
			}
			if a.Replace && a.Resource.Lifecycle.CreateBeforeDestroy {
				addDep(a, cu[a.Address])
				if graph != nil {
					for _, dependent := range graph.Dependents(a.Address) {
						addDep(a, cu[dependent])
					}
				}
			}
		}
	}

	for _, a := range actions {
		a.DependsOn = sortedSet(deps[a.Key()])
	}

	ordered := make([]*ir.Action, 0, len(actions))
	degree := make(map[string]int, len(actions))
	dependents := map[string][]string{}
	for _, a := range actions {
		degree[a.Key()] = len(deps[a.Key()])
		for on := range deps[a.Key()] {
			dependents[on] = append(dependents[on], a.Key())
		}
	}

	var ready []*ir.Action
	for _, a := range actions {
		if degree[a.Key()] == 0 {
			ready = append(ready, a)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return actionLess(ready[i], ready[j])
		})
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		keys := append([]string{}, dependents[next.Key()]...)
		sort.Strings(keys)
		for _, k := range keys {
			degree[k]--
			if degree[k] == 0 {
				ready = append(ready, byKey[k])
			}
		}
	}
	if len(ordered) != len(actions) {
		return nil, fmt.Errorf("internal: action ordering is cyclic")
	}
	return ordered, nil
}

func actionLess(a, b *ir.Action) bool {
	ai, bi := declIndex(a), declIndex(b)
	if ai != bi {
		return ai < bi
	}
	if a.Address != b.Address {
		return a.Address < b.Address
	}
	return opRank(a.Op) < opRank(b.Op)
}

func declIndex(a *ir.Action) int {
	if a.Resource != nil {
		return a.Resource.Index
	}
	return math.MaxInt
}

func opRank(op ir.Op) int {
	switch op {
	case ir.OpDelete:
		return 0
	case ir.OpCreate:
		return 1
	default:
		return 2
	}
}

// resourceDeps is the union of reference targets and depends_on, sorted.
// The executor records the same list into the snapshot entry.
func resourceDeps(r *ir.Resource) []string {
	set := map[string]struct{}{}
	for _, ref := range r.References {
		set[ref.TargetAddr] = struct{}{}
	}
	for _, dep := range r.DependsOn {
		set[dep] = struct{}{}
	}
	return sortedSet(set)
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
