// Package dag provides the directed acyclic graph over pipeline stages.
// It supports cycle detection, topological ordering, execution levels,
// and downstream closure for selective runs.
package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed acyclic graph of stage names. An edge from parent
// to child means the child depends on the parent.
type Graph struct {
	nodes    map[string]struct{}
	children map[string][]string
	parents  map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]struct{}),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// Add adds a stage to the graph. Adding an existing stage is a no-op.
func (g *Graph) Add(stage string) {
	if _, ok := g.nodes[stage]; ok {
		return
	}
	g.nodes[stage] = struct{}{}
	g.children[stage] = nil
	g.parents[stage] = nil
}

// AddDependency records that stage depends on parent.
func (g *Graph) AddDependency(stage, parent string) error {
	if _, ok := g.nodes[parent]; !ok {
		return fmt.Errorf("unknown stage %q", parent)
	}
	if _, ok := g.nodes[stage]; !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if stage == parent {
		return fmt.Errorf("stage %q cannot depend on itself", stage)
	}
	if !contains(g.children[parent], stage) {
		g.children[parent] = append(g.children[parent], stage)
	}
	if !contains(g.parents[stage], parent) {
		g.parents[stage] = append(g.parents[stage], parent)
	}
	return nil
}

// Has reports whether the stage is in the graph.
func (g *Graph) Has(stage string) bool {
	_, ok := g.nodes[stage]
	return ok
}

// Stages returns all stage names, sorted.
func (g *Graph) Stages() []string {
	out := make([]string, 0, len(g.nodes))
	for s := range g.nodes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Parents returns the dependencies of a stage, sorted.
func (g *Graph) Parents(stage string) []string {
	out := append([]string(nil), g.parents[stage]...)
	sort.Strings(out)
	return out
}

// Children returns the dependents of a stage, sorted.
func (g *Graph) Children(stage string) []string {
	out := append([]string(nil), g.children[stage]...)
	sort.Strings(out)
	return out
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Cycle returns a path describing a dependency cycle, or nil if the
// graph is acyclic.
func (g *Graph) Cycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	from := make(map[string]string)

	var cycle []string
	var visit func(s string) bool
	visit = func(s string) bool {
		state[s] = visiting
		for _, c := range g.children[s] {
			switch state[c] {
			case unvisited:
				from[c] = s
				if visit(c) {
					return true
				}
			case visiting:
				cycle = []string{c}
				for cur := s; cur != c; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{c}, cycle...)
				return true
			}
		}
		state[s] = done
		return false
	}

	for _, s := range g.Stages() {
		if state[s] == unvisited && visit(s) {
			return cycle
		}
	}
	return nil
}

// TopoSort returns the stages in dependency order (parents before
// children). Ties break alphabetically so the order is deterministic.
func (g *Graph) TopoSort() ([]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, fmt.Errorf("dependency cycle: %v", cycle)
	}

	indegree := make(map[string]int, len(g.nodes))
	for s := range g.nodes {
		indegree[s] = len(g.parents[s])
	}

	var ready []string
	for s, d := range indegree {
		if d == 0 {
			ready = append(ready, s)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]
		order = append(order, s)

		next := false
		for _, c := range g.Children(s) {
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
				next = true
			}
		}
		if next {
			sort.Strings(ready)
		}
	}
	return order, nil
}

// Levels groups stages by execution level. Stages at level N only depend
// on stages at lower levels, so each level may run concurrently once the
// previous one completed.
func (g *Graph) Levels() ([][]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, fmt.Errorf("dependency cycle: %v", cycle)
	}

	level := make(map[string]int, len(g.nodes))
	var levelOf func(s string) int
	levelOf = func(s string) int {
		if l, ok := level[s]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[s] {
			if pl := levelOf(p) + 1; pl > l {
				l = pl
			}
		}
		level[s] = l
		return l
	}

	max := 0
	for s := range g.nodes {
		if l := levelOf(s); l > max {
			max = l
		}
	}

	out := make([][]string, max+1)
	for s, l := range level {
		out[l] = append(out[l], s)
	}
	for i := range out {
		sort.Strings(out[i])
	}
	return out, nil
}

// Downstream returns the given stages plus everything that transitively
// depends on them, sorted.
func (g *Graph) Downstream(stages []string) []string {
	affected := make(map[string]struct{})
	var mark func(s string)
	mark = func(s string) {
		if _, ok := affected[s]; ok {
			return
		}
		affected[s] = struct{}{}
		for _, c := range g.children[s] {
			mark(c)
		}
	}
	for _, s := range stages {
		if _, ok := g.nodes[s]; ok {
			mark(s)
		}
	}
	out := make([]string, 0, len(affected))
	for s := range affected {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Upstream returns every transitive dependency of the stage, sorted.
func (g *Graph) Upstream(stage string) []string {
	seen := make(map[string]struct{})
	var mark func(s string)
	mark = func(s string) {
		for _, p := range g.parents[s] {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				mark(p)
			}
		}
	}
	mark(stage)
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Roots returns stages with no dependencies, sorted.
func (g *Graph) Roots() []string {
	var out []string
	for s := range g.nodes {
		if len(g.parents[s]) == 0 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Leaves returns stages with no dependents, sorted.
func (g *Graph) Leaves() []string {
	var out []string
	for s := range g.nodes {
		if len(g.children[s]) == 0 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Subgraph returns a new graph restricted to the given stages, keeping
// only edges between them.
func (g *Graph) Subgraph(stages []string) *Graph {
	sub := New()
	keep := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		if _, ok := g.nodes[s]; ok {
			keep[s] = struct{}{}
			sub.Add(s)
		}
	}
	for s := range keep {
		for _, p := range g.parents[s] {
			if _, ok := keep[p]; ok {
				_ = sub.AddDependency(s, p)
			}
		}
	}
	return sub
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
