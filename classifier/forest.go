package classifier

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
)

const (
	WeightNone     = ""
	WeightBalanced = "balanced"
)

var DefaultParams = Params{
	Trees:    100,
	MaxDepth: 10,
	Seed:     42,
}

type Params struct {
	Trees       int   `yaml:"trees"`
	MaxDepth    int   `yaml:"max-depth"`
	Seed        int64 `yaml:"seed"`
	ClassWeight string `yaml:"class-weight"`
	// explicit per-class weights, takes precedence over ClassWeight
	ClassWeights map[int]float64 `yaml:"class-weights"`
	Workers      int             `yaml:"workers"`
}

func (p Params) withDefaults() Params {
	if p.Trees <= 0 {
		p.Trees = DefaultParams.Trees
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultParams.MaxDepth
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	return p
}

// Forest is an ensemble of decision trees whose class probabilities are
// averaged
type Forest struct {
	NFeatures int     `json:"n_features"`
	Classes   []int   `json:"classes"`
	Trees     []*Tree `json:"trees"`
}

func classWeights(y []int, p Params) [2]float64 {
	res := [2]float64{1, 1}
	if p.ClassWeights != nil {
		for c := range res {
			if w, ok := p.ClassWeights[c]; ok {
				res[c] = w
			}
		}
		return res
	}
	if p.ClassWeight == WeightBalanced {
		var counts [2]float64
		for _, label := range y {
			counts[label]++
		}
		n := float64(len(y))
		for c := range res {
			if counts[c] > 0 {
				res[c] = n / (nClasses * counts[c])
			}
		}
	}
	return res
}

func validate(x [][]float64, y []int) error {
	if len(x) == 0 {
		return EmptyDatasetErr
	}
	if len(x) != len(y) {
		return DimensionErr{Expected: len(x), Actual: len(y)}
	}
	d := len(x[0])
	seen := [2]bool{}
	for i, row := range x {
		if len(row) != d {
			return DimensionErr{Expected: d, Actual: len(row)}
		}
		if y[i] != 0 && y[i] != 1 {
			return LabelErr{y[i]}
		}
		seen[y[i]] = true
	}
	if !seen[0] || !seen[1] {
		return SingleClassErr
	}
	return nil
}

// FitForest grows the trees concurrently. Every tree gets its own seed drawn
// from p.Seed up front, so the result does not depend on scheduling.
func FitForest(x [][]float64, y []int, p Params) (*Forest, error) {
	if err := validate(x, y); err != nil {
		return nil, err
	}
	p = p.withDefaults()

	n, d := len(x), len(x[0])
	maxFeatures := int(math.Sqrt(float64(d)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	cw := classWeights(y, p)
	w := make([]float64, n)
	for i, label := range y {
		w[i] = cw[label]
	}

	seeder := rand.New(rand.NewSource(p.Seed))
	seeds := make([]int64, p.Trees)
	for i := range seeds {
		seeds[i] = seeder.Int63()
	}

	f := Forest{
		NFeatures: d,
		Classes:   []int{0, 1},
		Trees:     make([]*Tree, p.Trees),
	}

	jobs := make(chan int)
	wg := sync.WaitGroup{}
	for k := 0; k < p.Workers; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				rng := rand.New(rand.NewSource(seeds[t]))
				sample := make([]int, n)
				for i := range sample {
					sample[i] = rng.Intn(n)
				}
				f.Trees[t] = buildTree(x, y, w, sample, p.MaxDepth, maxFeatures, rng)
			}
		}()
	}
	for t := 0; t < p.Trees; t++ {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	return &f, nil
}

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, DimensionErr{Expected: f.NFeatures, Actual: len(x)}
	}
	res := make([]float64, nClasses)
	for _, t := range f.Trees {
		p := t.proba(x)
		res[0] += p[0]
		res[1] += p[1]
	}
	if len(f.Trees) > 0 {
		res[0] /= float64(len(f.Trees))
		res[1] /= float64(len(f.Trees))
	}
	return res, nil
}

// Predict returns the most probable class and its probability
func (f *Forest) Predict(x []float64) (int, float64, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, 0, err
	}
	label := 0
	if proba[1] > proba[0] {
		label = 1
	}
	return f.Classes[label], proba[label], nil
}
