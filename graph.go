package fluxus

import "sort"

// watchDependentsLocked walks the dependent edges iteratively and returns
// every record reachable from start over watch edges, excluding start itself.
func (s *Scope) watchDependentsLocked(start *record) []*record {
	stack := make([]*record, 0, 8)
	stack = append(stack, start)

	visited := make(map[AnyProvider]bool, 8)
	visited[start.origin] = true

	var dependents []*record
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for origin, kind := range current.dependents {
			if kind != edgeWatch || visited[origin] {
				continue
			}
			visited[origin] = true
			rec, ok := s.records[origin]
			if !ok {
				continue
			}
			dependents = append(dependents, rec)
			stack = append(stack, rec)
		}
	}
	return dependents
}

// topoOrderLocked orders the affected records so that no record is
// recomputed before every one of its own watch dependencies that is also
// affected in this pass has settled. Ties break on record creation order.
func (s *Scope) topoOrderLocked(root *record, affected []*record) []*record {
	inSet := make(map[AnyProvider]*record, len(affected))
	for _, rec := range affected {
		inSet[rec.origin] = rec
	}

	indegree := make(map[*record]int, len(affected))
	for _, rec := range affected {
		count := 0
		for dep, kind := range rec.deps {
			if kind != edgeWatch || dep == root.origin {
				continue
			}
			if _, ok := inSet[dep]; ok {
				count++
			}
		}
		indegree[rec] = count
	}

	ready := make([]*record, 0, len(affected))
	for _, rec := range affected {
		if indegree[rec] == 0 {
			ready = append(ready, rec)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].id < ready[j].id })

	order := make([]*record, 0, len(affected))
	for len(ready) > 0 {
		rec := ready[0]
		ready = ready[1:]
		order = append(order, rec)

		released := make([]*record, 0, len(rec.dependents))
		for origin, kind := range rec.dependents {
			if kind != edgeWatch {
				continue
			}
			dep, ok := inSet[origin]
			if !ok {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Slice(released, func(i, j int) bool { return released[i].id < released[j].id })
		ready = append(ready, released...)
	}

	if len(order) != len(affected) {
		// The creation-time cycle check makes this unreachable; fall back to
		// creation order rather than dropping records.
		order = order[:0]
		order = append(order, affected...)
		sort.Slice(order, func(i, j int) bool { return order[i].id < order[j].id })
	}
	return order
}

// ExportDependencyGraph returns the current watch-edge adjacency of the
// scope, mapping each provider to the providers that depend on it. Intended
// for debug extensions.
func (s *Scope) ExportDependencyGraph() map[AnyProvider][]AnyProvider {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[AnyProvider][]AnyProvider)
	for origin, rec := range s.records {
		for dep, kind := range rec.deps {
			if kind == edgeWatch {
				out[dep] = append(out[dep], origin)
			}
		}
	}
	for _, dependents := range out {
		sort.Slice(dependents, func(i, j int) bool {
			return providerLabel(dependents[i]) < providerLabel(dependents[j])
		})
	}
	return out
}
