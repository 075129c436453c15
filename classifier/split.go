package classifier

import (
	"math"
	"math/rand"
	"sort"
)

type Fold struct {
	Train []int
	Test  []int
}

func byClass(y []int) [2][]int {
	var res [2][]int
	for i, label := range y {
		res[label] = append(res[label], i)
	}
	return res
}

// StratifiedSplit shuffles each class and holds out testSize of it, keeping
// the class ratio equal in both parts
func StratifiedSplit(y []int, testSize float64, seed int64) (Fold, error) {
	rng := rand.New(rand.NewSource(seed))
	var fold Fold
	for c, idx := range byClass(y) {
		if len(idx) < 2 {
			return Fold{}, TooFewSamplesErr{Class: c, Count: len(idx), Required: 2}
		}
		shuffled := append([]int{}, idx...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		nTest := int(math.Round(testSize * float64(len(shuffled))))
		if nTest < 1 {
			nTest = 1
		}
		if nTest >= len(shuffled) {
			nTest = len(shuffled) - 1
		}
		fold.Test = append(fold.Test, shuffled[:nTest]...)
		fold.Train = append(fold.Train, shuffled[nTest:]...)
	}
	sort.Ints(fold.Train)
	sort.Ints(fold.Test)
	return fold, nil
}

// StratifiedKFold deals the shuffled members of every class round robin over
// k folds
func StratifiedKFold(y []int, k int, seed int64) ([]Fold, error) {
	rng := rand.New(rand.NewSource(seed))
	assignment := make([]int, len(y))
	for c, idx := range byClass(y) {
		if len(idx) < k {
			return nil, TooFewSamplesErr{Class: c, Count: len(idx), Required: k}
		}
		shuffled := append([]int{}, idx...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for pos, i := range shuffled {
			assignment[i] = pos % k
		}
	}

	folds := make([]Fold, k)
	for i, f := range assignment {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}

func subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for k, i := range idx {
		xs[k] = x[i]
		ys[k] = y[i]
	}
	return xs, ys
}
