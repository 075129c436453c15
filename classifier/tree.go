package classifier

import (
	"math/rand"
	"sort"
)

const (
	nClasses = 2
	leaf     = -1
)

// Tree is a binary decision tree stored as parallel node arrays. Leaves have
// Feature == -1 and carry the class distribution in Value.
type Tree struct {
	Feature   []int        `json:"feature"`
	Threshold []float64    `json:"threshold"`
	Left      []int        `json:"left"`
	Right     []int        `json:"right"`
	Value     [][2]float64 `json:"value"`
}

func (t *Tree) Len() int {
	return len(t.Feature)
}

func (t *Tree) proba(x []float64) [2]float64 {
	n := 0
	for t.Feature[n] != leaf {
		if x[t.Feature[n]] <= t.Threshold[n] {
			n = t.Left[n]
		} else {
			n = t.Right[n]
		}
	}
	return t.Value[n]
}

func (t *Tree) addNode(dist [2]float64) int {
	t.Feature = append(t.Feature, leaf)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, leaf)
	t.Right = append(t.Right, leaf)

	total := dist[0] + dist[1]
	var value [2]float64
	if total > 0 {
		value[0] = dist[0] / total
		value[1] = dist[1] / total
	}
	t.Value = append(t.Value, value)
	return len(t.Feature) - 1
}

type treeBuilder struct {
	x           [][]float64
	y           []int
	w           []float64
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
	tree        *Tree
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

func gini(dist [2]float64) float64 {
	total := dist[0] + dist[1]
	if total == 0 {
		return 0
	}
	p0, p1 := dist[0]/total, dist[1]/total
	return 1 - p0*p0 - p1*p1
}

func (b *treeBuilder) distribution(idx []int) [2]float64 {
	var dist [2]float64
	for _, i := range idx {
		dist[b.y[i]] += b.w[i]
	}
	return dist
}

func (b *treeBuilder) build(idx []int, depth int) int {
	dist := b.distribution(idx)
	node := b.tree.addNode(dist)

	if depth >= b.maxDepth || len(idx) < 2 || dist[0] == 0 || dist[1] == 0 {
		return node
	}

	s, ok := b.bestSplit(idx, dist)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.tree.Feature[node] = s.feature
	b.tree.Threshold[node] = s.threshold
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

// bestSplit draws features in random order and evaluates them until
// maxFeatures non-constant features have been seen
func (b *treeBuilder) bestSplit(idx []int, dist [2]float64) (split, bool) {
	nFeatures := len(b.x[0])
	order := b.rng.Perm(nFeatures)

	best := split{impurity: -1}
	found := false
	visited := 0
	sorted := make([]int, len(idx))
	for _, f := range order {
		if visited >= b.maxFeatures {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})
		if b.x[sorted[0]][f] == b.x[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		var left [2]float64
		total := dist[0] + dist[1]
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			left[b.y[i]] += b.w[i]

			cur, next := b.x[i][f], b.x[sorted[k+1]][f]
			if cur == next {
				continue
			}
			right := [2]float64{dist[0] - left[0], dist[1] - left[1]}
			wl := left[0] + left[1]
			wr := total - wl
			impurity := (wl*gini(left) + wr*gini(right)) / total

			if !found || impurity < best.impurity {
				threshold := cur + (next-cur)/2
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, impurity: impurity}
				found = true
			}
		}
	}
	return best, found
}

func buildTree(x [][]float64, y []int, w []float64, sample []int, maxDepth, maxFeatures int, rng *rand.Rand) *Tree {
	b := treeBuilder{
		x:           x,
		y:           y,
		w:           w,
		maxDepth:    maxDepth,
		maxFeatures: maxFeatures,
		rng:         rng,
		tree:        &Tree{},
	}
	b.build(sample, 0)
	return b.tree
}
