package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caisson-io/caisson/internal/ir"
)

// Graph is the resource dependency graph: nodes are addresses, an edge
// points from a resource to each resource it depends on.
type Graph struct {
	nodes map[string]*graphNode
	order []string
}

type graphNode struct {
	addr       string
	index      int
	deps       map[string]struct{}
	dependents map[string]struct{}
}

// BuildGraph constructs the graph from declared resources and their typed
// references. It fails with UnresolvedReferenceError when an edge targets
// an undeclared resource and with CycleError when the graph is not acyclic.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	g := &Graph{nodes: map[string]*graphNode{}}

	for _, r := range resources {
		g.nodes[r.Addr()] = &graphNode{
			addr:       r.Addr(),
			index:      r.Index,
			deps:       map[string]struct{}{},
			dependents: map[string]struct{}{},
		}
	}

	for _, r := range resources {
		addr := r.Addr()
		for _, ref := range r.References {
			if err := g.addEdge(addr, ref.TargetAddr); err != nil {
				return nil, err
			}
		}
		for _, dep := range r.DependsOn {
			if err := g.addEdge(addr, dep); err != nil {
				return nil, err
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	g.order = g.topoSort()
	return g, nil
}

func (g *Graph) addEdge(from, to string) error {
	target, ok := g.nodes[to]
	if !ok {
		return &UnresolvedReferenceError{SourceAddr: from, TargetAddr: to}
	}
	if from == to {
		return &CycleError{Path: []string{from, to}}
	}
	g.nodes[from].deps[to] = struct{}{}
	target.dependents[from] = struct{}{}
	return nil
}

// findCycle runs a DFS over the dependency edges and returns the first
// cycle path found, or nil.
func (g *Graph) findCycle() []string {
	visited := map[string]bool{}
	inStack := map[string]bool{}
	var stack []string
	var cycle []string

	var visit func(addr string) bool
	visit = func(addr string) bool {
		visited[addr] = true
		inStack[addr] = true
		stack = append(stack, addr)

		for _, dep := range sortedSet(g.nodes[addr].deps) {
			if inStack[dep] {
				start := 0
				for i, a := range stack {
					if a == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		inStack[addr] = false
		return false
	}

	for _, addr := range g.addrs() {
		if !visited[addr] && visit(addr) {
			return cycle
		}
	}
	return nil
}

// topoSort orders nodes so every resource comes after everything it depends
// on. Ties are broken by declaration index, then address, so identical
// input yields identical order.
func (g *Graph) topoSort() []string {
	degree := make(map[string]int, len(g.nodes))
	for addr, n := range g.nodes {
		degree[addr] = len(n.deps)
	}

	var ready []string
	for addr, d := range degree {
		if d == 0 {
			ready = append(ready, addr)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			ni, nj := g.nodes[ready[i]], g.nodes[ready[j]]
			if ni.index != nj.index {
				return ni.index < nj.index
			}
			return ni.addr < nj.addr
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range sortedSet(g.nodes[next].dependents) {
			degree[dependent]--
			if degree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return order
}

// CreationOrder returns addresses in apply order.
func (g *Graph) CreationOrder() []string {
	return append([]string{}, g.order...)
}

// DestructionOrder returns addresses in delete order, dependents first.
func (g *Graph) DestructionOrder() []string {
	out := make([]string, len(g.order))
	for i, addr := range g.order {
		out[len(g.order)-1-i] = addr
	}
	return out
}

// Dependencies returns the direct dependencies of addr, sorted.
func (g *Graph) Dependencies(addr string) []string {
	n, ok := g.nodes[addr]
	if !ok {
		return nil
	}
	return sortedSet(n.deps)
}

// Dependents returns the resources that directly depend on addr, sorted.
func (g *Graph) Dependents(addr string) []string {
	n, ok := g.nodes[addr]
	if !ok {
		return nil
	}
	return sortedSet(n.dependents)
}

// DOT renders the graph for graphviz.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	b.WriteString("  rankdir = \"BT\"\n")
	b.WriteString("  node [shape = rect]\n")
	for _, addr := range g.addrs() {
		fmt.Fprintf(&b, "  %q\n", addr)
		for _, dep := range g.Dependencies(addr) {
			fmt.Fprintf(&b, "  %q -> %q\n", addr, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func (g *Graph) addrs() []string {
	out := make([]string, 0, len(g.nodes))
	for addr := range g.nodes {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
