// Package ml implements the bagged regression-tree ensemble used by the forecast models.
package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
)

// Params configures a Forest.
type Params struct {
	Estimators      int   `json:"estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"seed"`
	Workers         int   `json:"-"`
}

// DefaultParams mirrors the production model: 100 trees of depth 10.
func DefaultParams() Params {
	return Params{
		Estimators:      100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// Forest averages bootstrap-trained regression trees.
type Forest struct {
	Params    Params  `json:"params"`
	NFeatures int     `json:"n_features"`
	Trees     []*Tree `json:"trees"`
}

// Fit trains a forest on x (rows) and y. Trees are grown concurrently; each
// tree draws from its own generator seeded from Params.Seed and the tree
// index, so the fitted forest does not depend on scheduling.
func Fit(ctx context.Context, x [][]float64, y []float64, p Params) (*Forest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, errors.New("ml: empty training set")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("ml: %d rows but %d targets", len(x), len(y))
	}
	if p.Estimators < 1 {
		return nil, fmt.Errorf("ml: estimators must be positive, got %d", p.Estimators)
	}
	if p.MaxDepth < 1 {
		return nil, fmt.Errorf("ml: max depth must be positive, got %d", p.MaxDepth)
	}
	nf := len(x[0])
	for i, row := range x {
		if len(row) != nf {
			return nil, fmt.Errorf("ml: row %d has %d features, want %d", i, len(row), nf)
		}
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > p.Estimators {
		workers = p.Estimators
	}

	f := &Forest{Params: p, NFeatures: nf, Trees: make([]*Tree, p.Estimators)}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewSource(p.Seed*1_000_003 + int64(i)))
				f.Trees[i] = buildTree(x, y, bootstrap(len(x), rng), p, rng)
			}
		}()
	}

	var err error
feed:
	for i := 0; i < p.Estimators; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return f, nil
}

func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

// Predict returns the mean of the tree predictions for one row.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// PredictBatch predicts every row of x.
func (f *Forest) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.Predict(row)
	}
	return out
}

// Score returns the coefficient of determination on (x, y).
func (f *Forest) Score(x [][]float64, y []float64) float64 {
	return R2(y, f.PredictBatch(x))
}
