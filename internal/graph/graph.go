// Package graph holds the dependency-graph algorithms used by the tracker.
//
// The functions here are pure: they take a snapshot of nodes and edges and
// never mutate it. Graphs are small (tens to low hundreds of nodes), so the
// algorithms favour clarity over asymptotic efficiency.
package graph

import (
	"sort"
	"time"

	"github.com/cexll/taskgraph/internal/domain"
)

// Node is the part of a task the graph algorithms need.
type Node struct {
	ID        string
	Deps      []string
	CreatedAt time.Time
}

// NodesOf converts tasks into graph nodes.
func NodesOf(tasks []*domain.Task) []Node {
	nodes := make([]Node, 0, len(tasks))
	for _, t := range tasks {
		nodes = append(nodes, Node{ID: t.ID, Deps: t.Dependencies, CreatedAt: t.CreatedAt})
	}
	return nodes
}

// Edges maps every node id to its dependency ids.
type Edges map[string][]string

// EdgesOf builds the edge map for the nodes.
func EdgesOf(nodes []Node) Edges {
	e := make(Edges, len(nodes))
	for _, n := range nodes {
		e[n.ID] = n.Deps
	}
	return e
}

// FindCycle reports whether giving origin the candidate dependencies would
// close a cycle. It walks depth-first from each newly referenced dependency
// looking for a path back to origin, using the candidate list in place of
// origin's current edges. The returned path starts and ends with origin.
func FindCycle(edges Edges, origin string, candidate []string) []string {
	visited := make(map[string]bool)

	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		if id == origin {
			return append(path, id)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		path = append(path, id)
		for _, dep := range edges[id] {
			if found := walk(dep, path); found != nil {
				return found
			}
		}
		return nil
	}

	for _, dep := range candidate {
		if found := walk(dep, []string{origin}); found != nil {
			return found
		}
	}
	return nil
}

// CheckEdges runs FindCycle for every node in changed against edges, which
// must already contain the provisional edge sets. It returns a
// CycleDetected error carrying the cycle path.
func CheckEdges(edges Edges, changed []string) error {
	for _, id := range changed {
		if path := FindCycle(edges, id, edges[id]); path != nil {
			return domain.New(domain.KindCycleDetected, "dependency cycle", path...)
		}
	}
	return nil
}

// TopologicalOrder returns node ids so that every dependency precedes its
// dependents. Among nodes that are ready at the same time the earlier
// creation time wins, then the lexically smaller id. Edges to ids outside
// the node set are ignored.
func TopologicalOrder(nodes []Node) ([]string, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	indeg := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		seen := make(map[string]bool)
		for _, dep := range n.Deps {
			if _, ok := byID[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			indeg[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	less := func(a, b string) bool {
		na, nb := byID[a], byID[b]
		if !na.CreatedAt.Equal(nb.CreatedAt) {
			return na.CreatedAt.Before(nb.CreatedAt)
		}
		return a < b
	}

	var ready []string
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, d := range dependents[id] {
			indeg[d]--
			if indeg[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if indeg[n.ID] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		sort.Strings(stuck)
		return nil, domain.New(domain.KindCycleDetected, "graph contains a cycle", stuck...)
	}
	return order, nil
}

// Positions maps ids to their index in order.
func Positions(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	return pos
}

// Dependents returns the ids of nodes that directly depend on id, in node order.
func Dependents(nodes []Node, id string) []string {
	var out []string
	for _, n := range nodes {
		for _, dep := range n.Deps {
			if dep == id {
				out = append(out, n.ID)
				break
			}
		}
	}
	return out
}

// TransitiveDependents returns every node that reaches id through
// dependency edges, breadth first, excluding id itself.
func TransitiveDependents(nodes []Node, id string) []string {
	seen := map[string]bool{id: true}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range Dependents(nodes, cur) {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
				queue = append(queue, d)
			}
		}
	}
	return out
}

// Closure returns ids plus every transitive dependency reachable through
// edges, preserving first-seen order.
func Closure(edges Edges, ids []string) []string {
	seen := make(map[string]bool)
	var out []string
	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, dep := range edges[id] {
			visit(dep)
		}
	}
	for _, id := range ids {
		visit(id)
	}
	return out
}
