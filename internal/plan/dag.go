package plan

import (
	"fmt"
	"strings"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

// ValidateBatchOrder checks the insertion-order invariant of a task batch:
// IDs are unique, and every dependency or reference that names a task of the
// same batch points at an earlier position. Prerequisites outside the batch
// are allowed. The dequeue loop never reorders, so this is the only ordering
// guarantee dependent tasks get.
func ValidateBatchOrder(tasks []model.Task) error {
	errs := &ValidationErrors{}

	position := make(map[string]int, len(tasks))
	names := make([]string, 0, len(tasks))
	for i, t := range tasks {
		if _, dup := position[t.ID]; dup {
			errs.Add(fmt.Sprintf("tasks[%d].task_id", i), fmt.Sprintf("duplicate id %q", t.ID))
			continue
		}
		position[t.ID] = i
		names = append(names, t.ID)
	}

	edges := make(map[string][]string, len(tasks))
	for i, t := range tasks {
		for _, prereq := range prerequisites(t) {
			if prereq == t.ID {
				errs.Add(fmt.Sprintf("tasks[%d]", i), "self-reference is not allowed")
				continue
			}
			at, inBatch := position[prereq]
			if !inBatch {
				continue
			}
			edges[t.ID] = append(edges[t.ID], prereq)
			if at > i {
				errs.Add(fmt.Sprintf("tasks[%d]", i),
					fmt.Sprintf("depends on %q which is queued after it (position %d)", prereq, at))
			}
		}
	}

	if _, err := validateDAG(names, edges); err != nil {
		errs.Add("tasks", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// prerequisites merges dependencies and payload references, preserving order.
func prerequisites(t model.Task) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range append(append([]string(nil), t.Dependencies...), t.References()...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// validateDAG uses Kahn's algorithm for topological sort.
// On cycle detection, uses DFS to find and report the cycle path.
func validateDAG(nodeNames []string, edges map[string][]string) ([]string, error) {
	if len(nodeNames) == 0 {
		return nil, nil
	}

	nodeSet := make(map[string]bool, len(nodeNames))
	for _, n := range nodeNames {
		nodeSet[n] = true
	}

	// in-degree and forward adjacency (prerequisite -> dependent)
	inDegree := make(map[string]int, len(nodeNames))
	forward := make(map[string][]string)
	for _, n := range nodeNames {
		inDegree[n] = 0
	}

	for node, deps := range edges {
		for _, dep := range deps {
			if !nodeSet[dep] {
				continue
			}
			inDegree[node]++
			forward[dep] = append(forward[dep], node)
		}
	}

	var queue []string
	for _, n := range nodeNames {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(nodeNames) {
		return sorted, nil
	}

	cyclePath := findCyclePath(nodeNames, edges, inDegree)
	return nil, fmt.Errorf("circular dependency detected: %s", strings.Join(cyclePath, " -> "))
}

// findCyclePath finds a cycle path among nodes with non-zero in-degree.
func findCyclePath(nodeNames []string, edges map[string][]string, inDegree map[string]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range edges[node] {
			if color[dep] == gray {
				cyclePath = []string{dep}
				current := node
				for current != dep {
					cyclePath = append(cyclePath, current)
					current = parent[current]
				}
				cyclePath = append(cyclePath, dep)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodeNames {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cyclePath
			}
		}
	}

	return []string{"(cycle detected)"}
}
