package ml

import (
	"math/rand"
	"sort"
)

// Tree is a CART regression tree stored as flat node arrays. Feature is -1 for leaves.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

// Predict walks the tree for a single feature row.
func (t *Tree) Predict(x []float64) float64 {
	node := 0
	for t.Feature[node] >= 0 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// Nodes returns the node count.
func (t *Tree) Nodes() int { return len(t.Value) }

// Depth returns the maximum root-to-leaf edge count.
func (t *Tree) Depth() int {
	var walk func(n, d int) int
	walk = func(n, d int) int {
		if t.Feature[n] < 0 {
			return d
		}
		l, r := walk(t.Left[n], d+1), walk(t.Right[n], d+1)
		if l > r {
			return l
		}
		return r
	}
	if len(t.Value) == 0 {
		return 0
	}
	return walk(0, 0)
}

type treeBuilder struct {
	x        [][]float64
	y        []float64
	maxDepth int
	minSplit int
	minLeaf  int
	rng      *rand.Rand
	tree     *Tree
}

// buildTree grows a tree on the rows in idx minimizing squared error.
func buildTree(x [][]float64, y []float64, idx []int, p Params, rng *rand.Rand) *Tree {
	b := &treeBuilder{
		x:        x,
		y:        y,
		maxDepth: p.MaxDepth,
		minSplit: max(p.MinSamplesSplit, 2),
		minLeaf:  max(p.MinSamplesLeaf, 1),
		rng:      rng,
		tree:     &Tree{},
	}
	b.grow(idx, 0)
	return b.tree
}

func (b *treeBuilder) addNode() int {
	t := b.tree
	t.Feature = append(t.Feature, -1)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, -1)
	t.Right = append(t.Right, -1)
	t.Value = append(t.Value, 0)
	return len(t.Value) - 1
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	node := b.addNode()
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	b.tree.Value[node] = sum / float64(len(idx))

	if depth >= b.maxDepth || len(idx) < b.minSplit || constant(b.y, idx) {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.tree.Feature[node] = feature
	b.tree.Threshold[node] = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

// bestSplit scans every feature in random order and returns the split with
// the largest reduction in squared error.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	nf := len(b.x[idx[0]])
	order := b.rng.Perm(nf)
	sorted := make([]int, n)

	bestScore := total * total / float64(n)
	bestFeature, bestThreshold, found := -1, 0.0, false

	for _, f := range order {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += b.y[sorted[k-1]]
			lo, hi := b.x[sorted[k-1]][f], b.x[sorted[k]][f]
			if lo == hi {
				continue
			}
			nl, nr := k, n-k
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			rightSum := total - leftSum
			// maximizing sum^2/n per side minimizes the children's SSE
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func constant(y []float64, idx []int) bool {
	first := y[idx[0]]
	for _, i := range idx[1:] {
		if y[i] != first {
			return false
		}
	}
	return true
}
