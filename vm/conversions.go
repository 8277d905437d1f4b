package vm

import (
	"fmt"
	"sync"
)

// MaxConversionDepth bounds how many conversion edges an implicit
// conversion path may chain.
const MaxConversionDepth = 3

// Conversion is one edge of the conversion graph.
type Conversion struct {
	From TypeID
	To   TypeID
	Cost int
	Fn   int
}

// ConversionRegistry is a weighted graph of implicit conversions.
type ConversionRegistry struct {
	mu     sync.RWMutex
	edges  map[TypeID][]Conversion
	sealed bool
}

// NewConversionRegistry returns an empty registry.
func NewConversionRegistry() *ConversionRegistry {
	return &ConversionRegistry{edges: make(map[TypeID][]Conversion)}
}

// Register adds the edge from -> to implemented by host function fn.
func (r *ConversionRegistry) Register(from, to TypeID, cost int, fn int) error {
	if from == to {
		return fmt.Errorf("conversions: %s -> %s is an identity", from, to)
	}
	if cost <= 0 {
		return fmt.Errorf("conversions: %s -> %s needs a positive cost", from, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("conversions: registry sealed, cannot add %s -> %s", from, to)
	}
	for _, e := range r.edges[from] {
		if e.To == to {
			return fmt.Errorf("conversions: %s -> %s already registered", from, to)
		}
	}
	r.edges[from] = append(r.edges[from], Conversion{From: from, To: to, Cost: cost, Fn: fn})
	return nil
}

// BestPath returns the cheapest chain of at most MaxConversionDepth edges
// converting from into to. Ties keep the path found first, which follows
// edge registration order.
func (r *ConversionRegistry) BestPath(from, to TypeID) ([]Conversion, int, bool) {
	if from == to {
		return nil, 0, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best     []Conversion
		bestCost = -1
		path     []Conversion
		visited  = map[TypeID]bool{from: true}
	)

	var walk func(at TypeID, cost int)
	walk = func(at TypeID, cost int) {
		if bestCost >= 0 && cost >= bestCost {
			return
		}
		if at == to {
			best = append([]Conversion(nil), path...)
			bestCost = cost
			return
		}
		if len(path) == MaxConversionDepth {
			return
		}
		for _, e := range r.edges[at] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			path = append(path, e)
			walk(e.To, cost+e.Cost)
			path = path[:len(path)-1]
			visited[e.To] = false
		}
	}
	walk(from, 0)

	if bestCost < 0 {
		return nil, 0, false
	}
	return best, bestCost, true
}

func (r *ConversionRegistry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
