package ir

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Resource is a single declared resource. Attribute values stay as
// expressions until the planner or executor evaluates them against
// resolved upstream outputs.
type Resource struct {
	Type      string
	Name      string
	Provider  string
	Attrs     map[string]hcl.Expression
	Lifecycle Lifecycle
	DependsOn []string
	// References holds the typed edges extracted from Attrs. They are
	// resolved once at decode time and consumed as-is downstream.
	References []Reference
	DeclRange  hcl.Range
	// Index is the declaration order across all loaded files, used as the
	// deterministic tie-break when topological order allows choice.
	Index int
}

// Addr returns the logical identifier, unique per declaration.
func (r *Resource) Addr() string {
	return r.Type + "." + r.Name
}

// Reference is one attribute-level dependency edge: the referring
// expression names TargetAddr's output attribute Attr.
type Reference struct {
	TargetAddr string
	Attr       string
	SourceAttr string
	Range      hcl.Range
}

type Lifecycle struct {
	CreateBeforeDestroy bool
	PreventDestroy      bool
	IgnoreChanges       []string
}

// ProviderForType derives the provider name from a resource type,
// e.g. "aws_vpc" -> "aws", "null_resource" -> "null".
func ProviderForType(resourceType string) string {
	if i := strings.Index(resourceType, "_"); i > 0 {
		return resourceType[:i]
	}
	return resourceType
}
