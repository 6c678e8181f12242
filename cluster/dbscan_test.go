package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"
)

// partition renders a result as a sorted set of sorted key groups so two
// results can be compared independent of label numbering.
func partition(points []Point, res Result) string {
	groups := map[Label][]string{}
	for i, l := range res.Labels {
		if l == Noise {
			groups[Noise] = append(groups[Noise], "noise:"+points[i].Key)
			continue
		}
		groups[l] = append(groups[l], points[i].Key)
	}
	var parts []string
	for _, keys := range groups {
		sort.Strings(keys)
		parts = append(parts, strings.Join(keys, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, " | ")
}

func blobs() []Point {
	var pts []Point
	centers := [][]float32{{0, 0}, {10, 10}, {-10, 5}}
	for c, center := range centers {
		for i := 0; i < 6; i++ {
			angle := float64(i) * math.Pi / 3
			pts = append(pts, Point{
				Key:    fmt.Sprintf("c%d-%d", c, i),
				Vector: []float32{center[0] + float32(0.2*math.Cos(angle)), center[1] + float32(0.2*math.Sin(angle))},
			})
		}
	}
	pts = append(pts, Point{Key: "lonely", Vector: []float32{50, -50}})
	return pts
}

func TestRun_FindsBlobsAndNoise(t *testing.T) {
	e, err := NewEngine(Params{Eps: 0.5, MinSamples: 3})
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	pts := blobs()
	res, err := e.Run(pts)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.NumClusters() != 3 {
		t.Errorf("NumClusters = %d, want 3", res.NumClusters())
	}
	if res.NoiseCount() != 1 {
		t.Errorf("NoiseCount = %d, want 1", res.NoiseCount())
	}
	if res.Labels[len(pts)-1] != Noise {
		t.Errorf("lonely point label = %d, want Noise", res.Labels[len(pts)-1])
	}
	for c := 0; c < 3; c++ {
		first := res.Labels[c*6]
		for i := 1; i < 6; i++ {
			if res.Labels[c*6+i] != first {
				t.Errorf("blob %d split: point %d has label %d, want %d", c, i, res.Labels[c*6+i], first)
			}
		}
	}
}

func TestRun_OrderIndependent(t *testing.T) {
	e, _ := NewEngine(Params{Eps: 1.1, MinSamples: 2})
	// a chain where border assignment could depend on visiting order
	base := []Point{
		{Key: "a", Vector: []float32{0}},
		{Key: "b", Vector: []float32{1}},
		{Key: "c", Vector: []float32{2}},
		{Key: "d", Vector: []float32{4.5}},
		{Key: "e", Vector: []float32{5.5}},
		{Key: "f", Vector: []float32{9}},
	}
	base = append(base, blobs()...)

	want, err := e.Run(base)
	if err != nil {
		t.Fatal(err)
	}
	wantPartition := partition(base, want)

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 20; run++ {
		shuffled := append([]Point(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := e.Run(shuffled)
		if err != nil {
			t.Fatal(err)
		}
		if p := partition(shuffled, got); p != wantPartition {
			t.Fatalf("run %d: partition differs\n got: %s\nwant: %s", run, p, wantPartition)
		}
	}
}

func TestRun_ThresholdBehavior(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		points    []Point
		sameLabel bool
		noise     []int
	}{
		{
			name:   "close pair with min_samples 2 clusters",
			params: Params{Eps: 0.5, MinSamples: 2},
			points: []Point{
				{Key: "p", Vector: []float32{0, 0}},
				{Key: "q", Vector: []float32{0.3, 0}},
			},
			sameLabel: true,
		},
		{
			name:   "far pair is noise",
			params: Params{Eps: 0.5, MinSamples: 2},
			points: []Point{
				{Key: "p", Vector: []float32{0, 0}},
				{Key: "q", Vector: []float32{3, 0}},
			},
			noise: []int{0, 1},
		},
		{
			name:   "min_samples 1 makes every point a cluster",
			params: Params{Eps: 0.5, MinSamples: 1},
			points: []Point{
				{Key: "p", Vector: []float32{0, 0}},
				{Key: "q", Vector: []float32{3, 0}},
			},
		},
		{
			name:   "pair below min_samples 3 is noise",
			params: Params{Eps: 0.5, MinSamples: 3},
			points: []Point{
				{Key: "p", Vector: []float32{0, 0}},
				{Key: "q", Vector: []float32{0.1, 0}},
			},
			noise: []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(tt.params)
			if err != nil {
				t.Fatal(err)
			}
			res, err := e.Run(tt.points)
			if err != nil {
				t.Fatal(err)
			}
			if tt.sameLabel && (res.Labels[0] != res.Labels[1] || res.Labels[0] == Noise) {
				t.Errorf("labels = %v, want same non-noise cluster", res.Labels)
			}
			for _, i := range tt.noise {
				if res.Labels[i] != Noise {
					t.Errorf("point %d label = %d, want Noise", i, res.Labels[i])
				}
			}
			if tt.params.MinSamples == 1 && res.NoiseCount() != 0 {
				t.Errorf("NoiseCount = %d, want 0 with min_samples 1", res.NoiseCount())
			}
		})
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		params  Params
		wantErr bool
	}{
		{Params{Eps: 0.5, MinSamples: 2}, false},
		{Params{Eps: 0, MinSamples: 2}, true},
		{Params{Eps: -1, MinSamples: 2}, true},
		{Params{Eps: math.NaN(), MinSamples: 2}, true},
		{Params{Eps: math.Inf(1), MinSamples: 2}, true},
		{Params{Eps: 0.5, MinSamples: 0}, true},
	}
	for _, tt := range tests {
		err := tt.params.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.params, err, tt.wantErr)
		}
		var ce *ConfigError
		if tt.wantErr && !errors.As(err, &ce) {
			t.Errorf("Validate(%+v) error type %T, want *ConfigError", tt.params, err)
		}
	}
}

func TestRun_DimensionMismatch(t *testing.T) {
	e, _ := NewEngine(Params{Eps: 1, MinSamples: 1})
	_, err := e.Run([]Point{
		{Key: "a", Vector: []float32{1, 2}},
		{Key: "b", Vector: []float32{1}},
	})
	if err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestRun_Empty(t *testing.T) {
	e, _ := NewEngine(Params{Eps: 1, MinSamples: 1})
	res, err := e.Run(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Labels) != 0 || res.NumClusters() != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

type countingIndex struct {
	inner NeighborIndex
	calls int
}

func (c *countingIndex) Neighbors(i int, eps float64) []int {
	c.calls++
	return c.inner.Neighbors(i, eps)
}

func TestWithIndex(t *testing.T) {
	var idx *countingIndex
	e, _ := NewEngine(Params{Eps: 0.5, MinSamples: 2}, WithIndex(func(v [][]float32) NeighborIndex {
		idx = &countingIndex{inner: NewBruteForceIndex(v, nil)}
		return idx
	}))
	pts := blobs()
	if _, err := e.Run(pts); err != nil {
		t.Fatal(err)
	}
	if idx == nil || idx.calls != len(pts) {
		t.Errorf("expected one neighborhood query per point, got %+v", idx)
	}
}

func TestEuclidean(t *testing.T) {
	if d := Euclidean([]float32{0, 0}, []float32{3, 4}); math.Abs(d-5) > 1e-12 {
		t.Errorf("Euclidean = %v, want 5", d)
	}
}
