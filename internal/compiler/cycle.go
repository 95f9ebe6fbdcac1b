package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hyperlore/internal/ir"
)

// CycleLevel tells whether a cycle stops a theory from loading.
type CycleLevel string

const (
	// LevelError cycles cannot be encoded: graph expansion never bottoms out.
	LevelError CycleLevel = "error"
	// LevelWarning cycles are legal but bounded only by the proof depth.
	LevelWarning CycleLevel = "warning"
)

// CycleWarning describes one strongly connected group of graphs or
// relations.
type CycleWarning struct {
	Path    []string   `json:"path"`
	Message string     `json:"message"`
	Level   CycleLevel `json:"level"`
}

// AnalyzeGraphs finds graphs whose bodies reach themselves through other
// graphs of the theory. Each such cycle is an error.
//
// A graph body statement whose operator names another graph expands that
// graph, so the edge runs from the graph to every graph its body calls.
func AnalyzeGraphs(graphs []GraphSpec) []CycleWarning {
	names := make(map[string]bool, len(graphs))
	for _, g := range graphs {
		names[g.Name] = true
	}

	graph := make(dependencyGraph)
	for _, g := range graphs {
		graph.addNode(g.Name)
		for _, line := range g.Body {
			st, err := ir.ParseStatement(line)
			if err != nil {
				continue
			}
			if names[st.Operator] {
				graph.addEdge(g.Name, st.Operator)
			}
		}
	}
	return findCycles(graph, LevelError, "Graph expands itself", "Graph expansion cycle")
}

// AnalyzeRules finds relations that are defined in terms of themselves
// through Implies rules. The edge runs from each relation a consequent
// concludes to each relation its antecedent needs. Recursive rules are
// legal ("ancestor" from "parent" and "ancestor") so cycles are warnings.
func AnalyzeRules(rules []ir.Compound) []CycleWarning {
	graph := make(dependencyGraph)
	for _, r := range rules {
		antecedent, consequent, ok := ir.AsRule(r)
		if !ok {
			continue
		}
		body := relations(antecedent, nil)
		for _, head := range relations(consequent, nil) {
			graph.addNode(head)
			for _, b := range body {
				graph.addEdge(head, b)
			}
		}
	}
	return findCycles(graph, LevelWarning, "Self-recursive rule", "Mutually recursive rules")
}

// relations collects the relation operators of t, looking through
// connectives.
func relations(t ir.Term, acc []string) []string {
	c, ok := t.(ir.Compound)
	if !ok {
		return acc
	}
	if !ir.IsConnective(c.Operator) {
		if !slices.Contains(acc, c.Operator) {
			acc = append(acc, c.Operator)
		}
		return acc
	}
	for _, arg := range c.Args {
		acc = relations(arg, acc)
	}
	return acc
}

// dependencyGraph maps a node to the nodes it depends on.
type dependencyGraph map[string][]string

func (g dependencyGraph) addNode(n string) {
	if _, ok := g[n]; !ok {
		g[n] = []string{}
	}
}

func (g dependencyGraph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	if !slices.Contains(g[from], to) {
		g[from] = append(g[from], to)
	}
}

// findCycles reports every SCC with more than one node and every self-loop,
// ordered by the first node of each path.
func findCycles(graph dependencyGraph, level CycleLevel, selfMsg, cycleMsg string) []CycleWarning {
	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		var path []string
		msg := cycleMsg
		if len(scc) == 1 {
			path, msg = []string{scc[0], scc[0]}, selfMsg
		} else {
			path = reconstructCyclePath(scc, graph)
		}
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("%s: %s", msg, strings.Join(path, " → ")),
			Level:   level,
		})
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order and each SCC is returned sorted, so
// the result does not depend on map iteration.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// reconstructCyclePath walks from the first SCC member along edges inside
// the SCC until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
