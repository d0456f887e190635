// Package graph builds the cross-document reference graph: a directed
// acyclic graph whose nodes are identifiers from every loaded document and
// whose edges are the explicit "implements" and "derived-from" references
// (plan item → requirement, task → plan item).
//
// A graph is built fresh on every compilation run as a pure function of the
// current document set and is immutable once built. Partial graphs are
// never exposed: Build either completes or fails atomically.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/specc-dev/specc/internal/types"
)

// Diagnostic codes emitted by this package.
const (
	CodeDanglingReference = "DANGLING_REFERENCE"
	CodeCycleDetected     = "CYCLE_DETECTED"
	CodeCoverageGap       = "COVERAGE_GAP"
)

// DanglingReferenceError reports an edge whose target identifier does not
// exist in any loaded document. Fatal for the project's compilation.
type DanglingReferenceError struct {
	Source types.Identifier
	Target types.Identifier
}

// Error implements the error interface.
func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s references %s, which does not exist in any loaded document", e.Source, e.Target)
}

// CycleError reports a reference cycle. Fatal for the project's compilation.
type CycleError struct {
	Path []types.Identifier
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return fmt.Sprintf("reference cycle detected: %s", strings.Join(parts, " → "))
}

// node is one identifier in the graph, annotated with enough document
// context to evaluate coverage invariants.
type node struct {
	id       types.Identifier
	category types.Category
	flag     types.ItemFlag
}

// Graph is the immutable reference graph of one numbered project.
type Graph struct {
	nodes []node
	index map[types.Identifier]int

	// out[i] holds indexes of nodes that nodes[i] references.
	out [][]int

	// in[i] holds indexes of nodes that reference nodes[i].
	in [][]int

	topo []types.Identifier
}

// Build constructs the graph from a project's document set. It fails with
// *DanglingReferenceError when a reference target is missing and with
// *CycleError when the references do not form a DAG.
func Build(docs *types.ProjectDocs) (*Graph, error) {
	g := &Graph{index: make(map[types.Identifier]int)}

	addNode := func(id types.Identifier, c types.Category, f types.ItemFlag) error {
		if _, dup := g.index[id]; dup {
			return fmt.Errorf("duplicate identifier %s across project documents", id)
		}
		g.index[id] = len(g.nodes)
		g.nodes = append(g.nodes, node{id: id, category: c, flag: f})
		return nil
	}

	if docs.Spec != nil {
		for _, r := range docs.Spec.AllRequirements() {
			if err := addNode(r.ID, r.ID.Category(), types.FlagNone); err != nil {
				return nil, err
			}
		}
		for _, s := range docs.Spec.Scenarios {
			if err := addNode(s.ID, types.CategoryScenario, types.FlagNone); err != nil {
				return nil, err
			}
		}
	}
	if docs.Plan != nil {
		for _, item := range docs.Plan.Items {
			if err := addNode(item.ID, types.CategoryPlanItem, item.Flag); err != nil {
				return nil, err
			}
		}
	}
	if docs.Tasks != nil {
		for _, task := range docs.Tasks.Tasks {
			if err := addNode(task.ID, types.CategoryTask, task.Flag); err != nil {
				return nil, err
			}
		}
	}

	g.out = make([][]int, len(g.nodes))
	g.in = make([][]int, len(g.nodes))

	addEdge := func(src, dst types.Identifier) error {
		si, ok := g.index[src]
		if !ok {
			return fmt.Errorf("internal: edge source %s not indexed", src)
		}
		di, ok := g.index[dst]
		if !ok {
			return &DanglingReferenceError{Source: src, Target: dst}
		}
		g.out[si] = append(g.out[si], di)
		g.in[di] = append(g.in[di], si)
		return nil
	}

	if docs.Plan != nil {
		for _, item := range docs.Plan.Items {
			for _, req := range item.Implements {
				if err := addEdge(item.ID, req); err != nil {
					return nil, err
				}
			}
			for _, dep := range item.DependsOn {
				if err := addEdge(item.ID, dep); err != nil {
					return nil, err
				}
			}
		}
	}
	if docs.Tasks != nil {
		for _, task := range docs.Tasks.Tasks {
			if task.PlanItem == "" {
				continue
			}
			if err := addEdge(task.ID, task.PlanItem); err != nil {
				return nil, err
			}
		}
	}

	topo, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.topo = topo

	return g, nil
}

// topoSort runs Kahn's algorithm. When not all nodes can be ordered, a
// cycle exists and its path is extracted with a DFS for the error message.
func (g *Graph) topoSort() ([]types.Identifier, error) {
	indeg := make([]int, len(g.nodes))
	for _, targets := range g.out {
		for _, t := range targets {
			indeg[t]++
		}
	}

	queue := make([]int, 0, len(g.nodes))
	for i := range g.nodes {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	// Process in identifier order for a deterministic topological order.
	sort.Slice(queue, func(a, b int) bool { return g.nodes[queue[a]].id < g.nodes[queue[b]].id })

	order := make([]types.Identifier, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, g.nodes[n].id)

		ready := make([]int, 0)
		for _, t := range g.out[n] {
			indeg[t]--
			if indeg[t] == 0 {
				ready = append(ready, t)
			}
		}
		sort.Slice(ready, func(a, b int) bool { return g.nodes[ready[a]].id < g.nodes[ready[b]].id })
		queue = append(queue, ready...)
	}

	if len(order) != len(g.nodes) {
		return nil, &CycleError{Path: g.findCycle()}
	}
	return order, nil
}

// findCycle locates one cycle via DFS, returning the closed path.
func (g *Graph) findCycle() []types.Identifier {
	visited := make([]bool, len(g.nodes))
	recStack := make([]bool, len(g.nodes))
	var path []int

	var dfs func(int) bool
	dfs = func(n int) bool {
		visited[n] = true
		recStack[n] = true
		path = append(path, n)

		for _, next := range g.out[n] {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if recStack[next] {
				// Found a cycle - trim the path to its start and close it.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				path = append(path[start:], next)
				return true
			}
		}

		recStack[n] = false
		path = path[:len(path)-1]
		return false
	}

	for i := range g.nodes {
		if !visited[i] {
			path = path[:0]
			if dfs(i) {
				ids := make([]types.Identifier, len(path))
				for i, p := range path {
					ids[i] = g.nodes[p].id
				}
				return ids
			}
		}
	}
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// HasNode reports whether the identifier exists in the graph.
func (g *Graph) HasNode(id types.Identifier) bool {
	_, ok := g.index[id]
	return ok
}

// TopoOrder returns the deterministic topological order of all nodes.
func (g *Graph) TopoOrder() []types.Identifier {
	out := make([]types.Identifier, len(g.topo))
	copy(out, g.topo)
	return out
}

// References returns the identifiers the given node explicitly references.
func (g *Graph) References(id types.Identifier) []types.Identifier {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]types.Identifier, 0, len(g.out[i]))
	for _, t := range g.out[i] {
		out = append(out, g.nodes[t].id)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// ReferencedBy returns the identifiers that reference the given node.
func (g *Graph) ReferencedBy(id types.Identifier) []types.Identifier {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]types.Identifier, 0, len(g.in[i]))
	for _, s := range g.in[i] {
		out = append(out, g.nodes[s].id)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Uncovered returns identifiers of the given category lacking their
// required coverage: requirements with no covering plan item, and plan
// items with no owning task. Orphan-flagged entities are exempt, since
// they are already awaiting a removal decision. The result is sorted.
func (g *Graph) Uncovered(c types.Category) []types.Identifier {
	var out []types.Identifier
	for i, n := range g.nodes {
		if n.category != c || n.flag == types.FlagOrphaned {
			continue
		}
		covered := false
		for _, s := range g.in[i] {
			switch n.category {
			case types.CategoryFunctional, types.CategoryNonFunctional:
				covered = covered || g.nodes[s].category == types.CategoryPlanItem
			case types.CategoryPlanItem:
				covered = covered || g.nodes[s].category == types.CategoryTask
			}
		}
		if !covered {
			out = append(out, n.id)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
