package pipesched

import "sort"

// RealizationOrder returns a topological order (producers before consumers)
// over every function transitively reachable from outputs, plus the
// outputs themselves. Kahn's algorithm over named functions.
func RealizationOrder(outputs []*Function, env Environment) []string {
	reachable := map[string]*Function{}
	for _, o := range outputs {
		reachable[o.Name()] = o
		for name, f := range FindTransitiveCalls(o, env) {
			reachable[name] = f
		}
	}

	names := make([]string, 0, len(reachable))
	for name := range reachable {
		names = append(names, name)
	}
	sort.Strings(names)

	inDegree := map[string]int{}
	dependents := map[string][]string{}
	for _, name := range names {
		inDegree[name] = 0
	}
	for _, name := range names {
		for _, callee := range FindDirectCalls(reachable[name]) {
			if _, ok := reachable[callee]; !ok || callee == name {
				continue
			}
			inDegree[name]++
			dependents[callee] = append(dependents[callee], name)
		}
	}

	var queue []string
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		next := append([]string{}, dependents[n]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}
	return order
}
