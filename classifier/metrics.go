package classifier

import (
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

func Accuracy(actual, predicted []int) float64 {
	if len(actual) == 0 {
		return 0
	}
	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

// ROCAUC computes the area under the ROC curve of the positive class scores
func ROCAUC(scores []float64, labels []int) float64 {
	y := append([]float64{}, scores...)
	classes := make([]bool, len(labels))
	for i, l := range labels {
		classes[i] = l == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// MeanStd returns the mean and population standard deviation
func MeanStd(x []float64) (float64, float64) {
	return meanStd(x)
}
