package ir

import "time"

// Op is the operation an action performs against a provider.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Plan is the ordered action list produced by the planner. The order is a
// deterministic topological sort; a replace appears as its two decomposed
// actions sharing an address.
type Plan struct {
	Meta    *PlanMeta `json:"meta"`
	Actions []*Action `json:"actions"`
}

// PlanMeta records what the plan was computed against, so a saved plan can
// be rejected when the declaration or state has moved since.
type PlanMeta struct {
	CreatedAt    time.Time `json:"created_at"`
	ConfigHash   string    `json:"config_hash"`
	StateSerial  uint64    `json:"state_serial"`
	StateLineage string    `json:"state_lineage"`
}

// Action is one operation bound to one resource.
type Action struct {
	Address string                    `json:"address"`
	Op      Op                        `json:"op"`
	Replace bool                      `json:"replace,omitempty"`
	Diff    map[string]*AttributeDiff `json:"diff,omitempty"`
	// DependsOn lists the keys of actions that must complete successfully
	// before this one starts.
	DependsOn []string `json:"depends_on,omitempty"`

	// Carried for execution, not part of the serialized plan.
	Resource *Resource      `json:"-"`
	Prior    *ResourceState `json:"-"`
}

// Key uniquely identifies an action within a plan. An address occurs twice
// only as a replace pair, which differs in Op.
func (a *Action) Key() string {
	return a.Address + ":" + string(a.Op)
}

// AttributeDiff is the per-attribute before/after of an update or replace.
type AttributeDiff struct {
	Before any `json:"before,omitempty"`
	After  any `json:"after,omitempty"`
	// Unknown marks values that depend on outputs not produced yet.
	Unknown           bool `json:"unknown,omitempty"`
	Sensitive         bool `json:"sensitive,omitempty"`
	ForcesReplacement bool `json:"forces_replacement,omitempty"`
}

// Summary counts the plan by operation. A replace pair counts once.
type Summary struct {
	Create  int
	Update  int
	Delete  int
	Replace int
}

func (p *Plan) Summary() Summary {
	var s Summary
	for _, a := range p.Actions {
		switch {
		case a.Replace && a.Op == OpCreate:
			s.Replace++
		case a.Replace:
			// counted with its create half
		case a.Op == OpCreate:
			s.Create++
		case a.Op == OpUpdate:
			s.Update++
		case a.Op == OpDelete:
			s.Delete++
		}
	}
	return s
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}
