package ml

import (
	"math"
	"math/rand"
	"sort"

	"loto-predictor/internal/common"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// node is one entry of a tree arena. Internal nodes route rows with
// row[Feature] <= Threshold to Left; leaves carry a five-number prediction.
type node struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Leaf      []int
}

func (n *node) isLeaf() bool {
	return n.Leaf != nil
}

// tree is a regression tree stored as a flat arena rooted at index 0.
type tree struct {
	nodes []node
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	featureBags int
}

type treeBuilder struct {
	rows   [][]float64
	params treeParams
	sums   []float64
	rng    *rand.Rand
	nodes  []node
}

func buildTree(rows [][]float64, params treeParams, rng *rand.Rand) *tree {
	b := &treeBuilder{rows: rows, params: params, rng: rng, sums: make([]float64, len(rows))}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
		b.sums[i] = floats.Sum(rows[i])
	}
	b.grow(idx, 0)
	return &tree{nodes: b.nodes}
}

// grow appends the subtree for samples and returns its arena index.
func (b *treeBuilder) grow(samples []int, depth int) int32 {
	at := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{})

	if depth >= b.params.maxDepth || len(samples) < b.params.minLeaf {
		b.nodes[at] = node{Leaf: b.leaf(samples)}
		return at
	}

	feature, threshold, impurity, ok := b.bestSplit(samples)
	if !ok || impurity >= b.impurity(samples) {
		b.nodes[at] = node{Leaf: b.leaf(samples)}
		return at
	}

	var left, right []int
	for _, s := range samples {
		if b.rows[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at] = node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return at
}

// bestSplit scans a random feature subset and every unique value as a
// threshold, keeping the split of lowest weighted impurity. Splits leaving a
// branch empty are skipped.
func (b *treeBuilder) bestSplit(samples []int) (int, float64, float64, bool) {
	width := len(b.rows[samples[0]])
	bags := b.params.featureBags
	if bags > width {
		bags = width
	}
	candidates := b.rng.Perm(width)[:bags]

	best := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0
	for _, f := range candidates {
		for _, thr := range uniqueValues(b.rows, samples, f) {
			var left, right []int
			for _, s := range samples {
				if b.rows[s][f] <= thr {
					left = append(left, s)
				} else {
					right = append(right, s)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			n := float64(len(samples))
			imp := float64(len(left))/n*b.impurity(left) + float64(len(right))/n*b.impurity(right)
			if imp < best {
				best, bestFeature, bestThreshold = imp, f, thr
			}
		}
	}
	return bestFeature, bestThreshold, best, bestFeature >= 0
}

// impurity is the population variance of the row sums of samples.
func (b *treeBuilder) impurity(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sums := make([]float64, len(samples))
	for i, s := range samples {
		sums[i] = b.sums[s]
	}
	_, variance := stat.PopMeanVariance(sums, nil)
	return variance
}

// leaf averages the number indicators of samples and keeps the top five.
func (b *treeBuilder) leaf(samples []int) []int {
	avg := make([]float64, common.NumberSpace)
	for _, s := range samples {
		floats.Add(avg, b.rows[s][:common.NumberSpace])
	}
	if len(samples) > 0 {
		floats.Scale(1/float64(len(samples)), avg)
	}
	return topNumbers(avg, common.NumbersPerDraw)
}

func uniqueValues(rows [][]float64, samples []int, feature int) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, s := range samples {
		v := rows[s][feature]
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// predict walks the arena from the root to a leaf.
func (t *tree) predict(row []float64) []int {
	if len(t.nodes) == 0 {
		return nil
	}
	i := int32(0)
	for {
		n := &t.nodes[i]
		if n.isLeaf() {
			return n.Leaf
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *tree) depth() int {
	var walk func(i int32) int
	walk = func(i int32) int {
		n := &t.nodes[i]
		if n.isLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.nodes) == 0 {
		return 0
	}
	return walk(0)
}
