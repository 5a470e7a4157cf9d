package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caisson-io/caisson/internal/ir"
)

func TestBuildGraph_NoDependencies(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "a", Index: 0},
		{Type: "fake_thing", Name: "b", Index: 1},
		{Type: "fake_thing", Name: "c", Index: 2},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	// Independent resources come out in declaration order.
	assert.Equal(t, []string{"fake_thing.a", "fake_thing.b", "fake_thing.c"}, graph.CreationOrder())
}

func TestBuildGraph_ReferenceOrdering(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type: "fake_app", Name: "web", Index: 0,
			References: []ir.Reference{{TargetAddr: "fake_db.main", Attr: "id", SourceAttr: "db_id"}},
		},
		{Type: "fake_db", Name: "main", Index: 1},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	order := graph.CreationOrder()
	require.Len(t, order, 2)

	posDB := indexOf(order, "fake_db.main")
	posApp := indexOf(order, "fake_app.web")
	assert.Less(t, posDB, posApp, "referenced resource should come first")
}

func TestBuildGraph_ExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "a", Index: 0, DependsOn: []string{"fake_thing.b"}},
		{Type: "fake_thing", Name: "b", Index: 1},
		{Type: "fake_thing", Name: "c", Index: 2, DependsOn: []string{"fake_thing.a"}},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	order := graph.CreationOrder()
	require.Len(t, order, 3)

	posA := indexOf(order, "fake_thing.a")
	posB := indexOf(order, "fake_thing.b")
	posC := indexOf(order, "fake_thing.c")
	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuildGraph_DeterministicOrder(t *testing.T) {
	// A diamond where both middle nodes become ready at the same moment.
	// The declaration index breaks the tie, so repeated builds agree.
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "root", Index: 0},
		{Type: "fake_thing", Name: "right", Index: 1, DependsOn: []string{"fake_thing.root"}},
		{Type: "fake_thing", Name: "left", Index: 2, DependsOn: []string{"fake_thing.root"}},
		{Type: "fake_thing", Name: "sink", Index: 3, DependsOn: []string{"fake_thing.left", "fake_thing.right"}},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	want := []string{"fake_thing.root", "fake_thing.right", "fake_thing.left", "fake_thing.sink"}
	assert.Equal(t, want, graph.CreationOrder())

	again, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Equal(t, graph.CreationOrder(), again.CreationOrder())
}

func TestBuildGraph_CycleDetection(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "a", Index: 0, DependsOn: []string{"fake_thing.b"}},
		{Type: "fake_thing", Name: "b", Index: 1, DependsOn: []string{"fake_thing.a"}},
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, err.Error(), "dependency cycle:")
	// The path names the cycle with the starting node repeated at the end.
	require.GreaterOrEqual(t, len(cycleErr.Path), 3)
	assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
}

func TestBuildGraph_SelfReference(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "a", Index: 0, DependsOn: []string{"fake_thing.a"}},
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"fake_thing.a", "fake_thing.a"}, cycleErr.Path)
}

func TestBuildGraph_UndeclaredReference(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type: "fake_app", Name: "web", Index: 0,
			References: []ir.Reference{{TargetAddr: "fake_db.missing", Attr: "id", SourceAttr: "db_id"}},
		},
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "fake_app.web", refErr.SourceAddr)
	assert.Equal(t, "fake_db.missing", refErr.TargetAddr)
	assert.Contains(t, err.Error(), "references undeclared resource")
}

func TestGraph_DestructionOrder(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "a", Index: 0, DependsOn: []string{"fake_thing.b"}},
		{Type: "fake_thing", Name: "b", Index: 1},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	order := graph.DestructionOrder()
	require.Len(t, order, 2)

	posA := indexOf(order, "fake_thing.a")
	posB := indexOf(order, "fake_thing.b")
	assert.Less(t, posA, posB, "dependent should be destroyed first")
}

func TestGraph_DependenciesAndDependents(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_thing", Name: "a", Index: 0, DependsOn: []string{"fake_thing.b", "fake_thing.c"}},
		{Type: "fake_thing", Name: "b", Index: 1},
		{Type: "fake_thing", Name: "c", Index: 2, DependsOn: []string{"fake_thing.b"}},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	assert.Equal(t, []string{"fake_thing.b", "fake_thing.c"}, graph.Dependencies("fake_thing.a"))
	assert.Equal(t, []string{"fake_thing.a", "fake_thing.c"}, graph.Dependents("fake_thing.b"))
	assert.Empty(t, graph.Dependencies("fake_thing.b"))
	assert.Nil(t, graph.Dependencies("fake_thing.unknown"))
}

func TestGraph_DOT(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "fake_app", Name: "web", Index: 0, DependsOn: []string{"fake_db.main"}},
		{Type: "fake_db", Name: "main", Index: 1},
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	dot := graph.DOT()
	assert.Contains(t, dot, "digraph {")
	assert.Contains(t, dot, `"fake_app.web"`)
	assert.Contains(t, dot, `"fake_db.main"`)
	assert.Contains(t, dot, `"fake_app.web" -> "fake_db.main"`)
}
