package engine

import (
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// linearize produces a topological ordering of p's node ids (including the
// __START__/__END__ sentinels) via Kahn's algorithm, breaking ties by the
// order edges were declared so that execution order is deterministic.
func linearize(p plan.Plan) ([]string, error) {
	indegree := make(map[string]int)
	adjacency := make(map[string][]string)
	nodes := map[string]bool{plan.StartSentinel: true, plan.EndSentinel: true}

	for _, n := range p.Nodes {
		nodes[n.ID()] = true
	}
	for id := range nodes {
		indegree[id] = 0
	}
	for _, e := range p.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
		indegree[e.To]++
	}

	var queue []string
	for _, n := range p.Edges {
		if indegree[n.From] == 0 && !contains(queue, n.From) {
			queue = append(queue, n.From)
		}
	}
	for id := range nodes {
		if indegree[id] == 0 && !contains(queue, id) {
			queue = append(queue, id)
		}
	}

	var order []string
	visited := make(map[string]bool)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		order = append(order, current)

		for _, next := range adjacency[current] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, apperrors.GraphCycle("")
	}
	return order, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
