// Package vectorindex implements an exact, brute-force nearest neighbour index
// over fixed-dimension vectors using squared Euclidean distance.
package vectorindex

import (
	"fmt"
	"slices"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Result is one search hit. ID is the insertion position of the vector.
type Result struct {
	ID       int
	Distance float32
}

// Flat stores vectors contiguously in insertion order.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat creates an empty index for vectors of length dim.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int {
	return f.dim
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	return len(f.data) / f.dim
}

// Add appends vectors. Either all are added or, on a dimension mismatch, none are.
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return domain.Wrap(domain.ErrDimensionMismatch,
				fmt.Errorf("vector %d has %d dimensions, index has %d", i, len(v), f.dim))
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Vector returns a copy of the vector stored at id.
func (f *Flat) Vector(id int) ([]float32, bool) {
	if id < 0 || id >= f.Len() {
		return nil, false
	}
	return slices.Clone(f.data[id*f.dim : (id+1)*f.dim]), true
}

// Search returns up to k results ordered by ascending distance, ties broken by ID.
// Fewer than k results are returned when the index holds fewer vectors.
func (f *Flat) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, domain.Wrap(domain.ErrDimensionMismatch,
			fmt.Errorf("query has %d dimensions, index has %d", len(query), f.dim))
	}
	n := f.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}

	results := make([]Result, n)
	for id := 0; id < n; id++ {
		results[id] = Result{ID: id, Distance: squaredL2(query, f.data[id*f.dim:(id+1)*f.dim])}
	}

	slices.SortFunc(results, func(a, b Result) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return a.ID - b.ID
		}
	})

	if k < n {
		results = results[:k]
	}
	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
