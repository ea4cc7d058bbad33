package topology

import (
	"fmt"
	"slices"
	"strings"
)

// Cycle levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// CycleWarning is a loop found among connectors.
//
// Request connectors that loop back to their primary for the same verb
// would forward a request around the loop forever; they are errors.
// Blocking transform connectors that form a loop are warnings: a single
// write settles fine, but concurrent writes to two sources on the loop
// can each wait on the other's queue.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "error" or "warning"
}

// AnalyzeCycles builds one source graph per request verb and one for
// blocking transform connectors, and reports every strongly connected
// component as a cycle. A topology without loops returns an empty list.
func AnalyzeCycles(cfg *Config) []CycleWarning {
	warnings := []CycleWarning{}

	requests := make(map[string]dependencyGraph)
	blocking := make(dependencyGraph)
	for _, c := range cfg.Connectors {
		switch {
		case c.Type == TypeRequest && c.Verb != "":
			g := requests[c.Verb]
			if g == nil {
				g = make(dependencyGraph)
				requests[c.Verb] = g
			}
			g.addEdge(c.From, c.To)
		case c.Type == TypeTransform && c.Blocking:
			blocking.addEdge(c.From, c.To)
		}
	}

	verbs := make([]string, 0, len(requests))
	for verb := range requests {
		verbs = append(verbs, verb)
	}
	slices.Sort(verbs)

	for _, verb := range verbs {
		g := requests[verb]
		for _, path := range cycles(g) {
			warnings = append(warnings, CycleWarning{
				Path:    path,
				Message: fmt.Sprintf("request connectors for %s loop: %s", verb, strings.Join(path, " → ")),
				Level:   LevelError,
			})
		}
	}

	for _, path := range cycles(blocking) {
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("blocking transform connectors loop: %s", strings.Join(path, " → ")),
			Level:   LevelWarning,
		})
	}

	return warnings
}

// dependencyGraph maps a source to the sources it forwards to.
type dependencyGraph map[string][]string

func (g dependencyGraph) addEdge(from, to string) {
	g[from] = append(g[from], to)
	if _, ok := g[to]; !ok {
		g[to] = []string{}
	}
}

// cycles returns one path per cyclic component, each starting at the
// component's smallest name.
func cycles(g dependencyGraph) [][]string {
	var paths [][]string
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			slices.Sort(scc)
			paths = append(paths, reconstructCyclePath(scc, g))
		}
	}
	slices.SortFunc(paths, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return paths
}

func hasSelfLoop(node string, g dependencyGraph) bool {
	return slices.Contains(g[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(g dependencyGraph) [][]string {
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

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
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
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g))
	for node := range g {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath walks edges inside scc from its first node until it
// returns to it.
func reconstructCyclePath(scc []string, g dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g[current] {
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
