// Package cluster groups face embeddings into dense similarity
// neighborhoods (DBSCAN). The number of clusters is not known up front and
// points in sparse regions are reported as Noise.
package cluster

import (
	"fmt"
	"math"
	"sort"
)

// Label identifies a cluster within one run. Labels are opaque and are not
// stable across runs with different inputs.
type Label int

// Noise marks a point that belongs to no dense neighborhood.
const Noise Label = -1

const unassigned Label = -2

// Params are the two density parameters.
type Params struct {
	// Eps is the neighborhood radius.
	Eps float64
	// MinSamples is the neighborhood size, the point itself included, that
	// makes a point a core point.
	MinSamples int
}

// ConfigError reports clustering parameters that would invalidate a run.
type ConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid clustering parameter %s=%v: %s", e.Param, e.Value, e.Reason)
}

func (p Params) Validate() error {
	if math.IsNaN(p.Eps) || math.IsInf(p.Eps, 0) || p.Eps <= 0 {
		return &ConfigError{Param: "eps", Value: p.Eps, Reason: "must be a positive finite number"}
	}
	if p.MinSamples < 1 {
		return &ConfigError{Param: "min_samples", Value: p.MinSamples, Reason: "must be at least 1"}
	}
	return nil
}

// Point is one embedding to cluster. Key must identify the detection (for
// example fingerprint plus face index); it fixes the processing order.
type Point struct {
	Key    string
	Vector []float32
}

// Result holds one label per input point, aligned with the input slice.
type Result struct {
	Labels   []Label
	clusters int
}

// NumClusters is the number of distinct non-noise labels.
func (r Result) NumClusters() int { return r.clusters }

// NoiseCount is the number of points labeled Noise.
func (r Result) NoiseCount() int {
	n := 0
	for _, l := range r.Labels {
		if l == Noise {
			n++
		}
	}
	return n
}

// Clusters groups input positions by label, each group in input order.
// Noise points are included under the Noise label.
func (r Result) Clusters() map[Label][]int {
	out := make(map[Label][]int)
	for i, l := range r.Labels {
		out[l] = append(out[l], i)
	}
	return out
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIndex replaces the neighbor index constructor.
func WithIndex(build func(vectors [][]float32) NeighborIndex) Option {
	return func(e *Engine) { e.newIndex = build }
}

// Engine runs DBSCAN with fixed parameters.
type Engine struct {
	params   Params
	newIndex func(vectors [][]float32) NeighborIndex
}

func NewEngine(params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		params: params,
		newIndex: func(vectors [][]float32) NeighborIndex {
			return NewBruteForceIndex(vectors, Euclidean)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Params() Params { return e.params }

// Run partitions points. The partition does not depend on the order of
// points: they are visited in canonical (Key, Vector) order and cluster
// labels are numbered by each cluster's first canonical member.
func (e *Engine) Run(points []Point) (Result, error) {
	n := len(points)
	if n == 0 {
		return Result{}, nil
	}
	dim := len(points[0].Vector)
	if dim == 0 {
		return Result{}, fmt.Errorf("point %q has an empty embedding", points[0].Key)
	}
	for _, p := range points[1:] {
		if len(p.Vector) != dim {
			return Result{}, fmt.Errorf("point %q has dimension %d, expected %d", p.Key, len(p.Vector), dim)
		}
	}

	order := canonicalOrder(points)
	vectors := make([][]float32, n)
	for pos, idx := range order {
		vectors[pos] = points[idx].Vector
	}
	index := e.newIndex(vectors)

	neighbors := make([][]int, n)
	core := make([]bool, n)
	for pos := range vectors {
		neighbors[pos] = index.Neighbors(pos, e.params.Eps)
		core[pos] = len(neighbors[pos]) >= e.params.MinSamples
	}

	labels := make([]Label, n)
	for i := range labels {
		labels[i] = unassigned
	}

	next := Label(0)
	for pos := 0; pos < n; pos++ {
		if labels[pos] != unassigned || !core[pos] {
			continue
		}
		c := next
		next++
		labels[pos] = c
		queue := []int{pos}
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			for _, r := range neighbors[q] {
				if labels[r] != unassigned {
					continue
				}
				labels[r] = c
				if core[r] {
					queue = append(queue, r)
				}
			}
		}
	}

	out := make([]Label, n)
	for pos, idx := range order {
		l := labels[pos]
		if l == unassigned {
			l = Noise
		}
		out[idx] = l
	}
	return Result{Labels: out, clusters: int(next)}, nil
}

// canonicalOrder returns input positions sorted by Key, then vector
// components, then input position for exact ties.
func canonicalOrder(points []Point) []int {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := points[order[a]], points[order[b]]
		if pa.Key != pb.Key {
			return pa.Key < pb.Key
		}
		for k := range pa.Vector {
			if pa.Vector[k] != pb.Vector[k] {
				return pa.Vector[k] < pb.Vector[k]
			}
		}
		return false
	})
	return order
}
