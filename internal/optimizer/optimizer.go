// Package optimizer implements the route queue reordering used by
// POST /routes/optimize: a greedy nearest-neighbor construction followed by
// 2-opt improvement over an open-path asymmetric TSP, where nodes are
// queued routes and edge cost is a caller-supplied function of the prior
// route's destination and the candidate route's start.
package optimizer

import (
	"sort"

	"github.com/tabledelivery/control-core/internal/store"
)

// CostFunc returns the transition cost from one node to another. The
// default used in production is 0 for equal nodes, 1 otherwise.
type CostFunc func(from, to string) float64

// DefaultCost is the fallback cost function: free if the endpoints match,
// unit cost otherwise.
func DefaultCost(from, to string) float64 {
	if from == to {
		return 0
	}
	return 1
}

// Optimize reorders routes to approximately minimize total transition cost,
// per the specification's four-step algorithm. It does not mutate its
// input slice.
func Optimize(routes []store.QueuedRoute, cost CostFunc) []store.QueuedRoute {
	if len(routes) <= 1 {
		out := make([]store.QueuedRoute, len(routes))
		copy(out, routes)
		return out
	}

	sorted := make([]store.QueuedRoute, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AddedAt.Before(sorted[j].AddedAt)
	})

	path := greedyNearestNeighbor(sorted, cost)

	if len(path) < 4 {
		return path
	}
	return twoOpt(path, cost)
}

func greedyNearestNeighbor(sorted []store.QueuedRoute, cost CostFunc) []store.QueuedRoute {
	remaining := make([]store.QueuedRoute, len(sorted))
	copy(remaining, sorted)

	path := make([]store.QueuedRoute, 0, len(remaining))
	path = append(path, remaining[0])
	remaining = remaining[1:]

	for len(remaining) > 0 {
		last := path[len(path)-1]
		bestIdx := 0
		bestCost := cost(last.Destination, remaining[0].Start)
		for i := 1; i < len(remaining); i++ {
			c := cost(last.Destination, remaining[i].Start)
			if c < bestCost {
				bestCost = c
				bestIdx = i
			}
		}
		path = append(path, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return path
}

// twoOpt repeatedly reverses segments that reduce total cost, until a full
// pass makes no improvement.
func twoOpt(path []store.QueuedRoute, cost CostFunc) []store.QueuedRoute {
	improved := true
	for improved {
		improved = false
		for i := 0; i < len(path)-3; i++ {
			for j := i + 2; j < len(path); j++ {
				a, b := path[i], path[i+1]
				c, d := path[j-1], path[j]
				before := cost(a.Destination, b.Start) + cost(c.Destination, d.Start)
				after := cost(a.Destination, c.Start) + cost(b.Destination, d.Start)
				if after < before {
					reverse(path[i+1 : j])
					improved = true
				}
			}
		}
	}
	return path
}

func reverse(s []store.QueuedRoute) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
