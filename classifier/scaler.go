package classifier

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance. FeatureNames
// records the column order it was fit on; artifacts written by older tooling
// may lack it.
type Scaler struct {
	FeatureNames []string  `json:"feature_names,omitempty"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

func (s *Scaler) NFeatures() int {
	return len(s.Mean)
}

func (s *Scaler) HasNames() bool {
	return len(s.FeatureNames) > 0
}

// population mean and standard deviation
func meanStd(x []float64) (float64, float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return x[0], 0
	}
	mean, variance := stat.MeanVariance(x, nil)
	return mean, math.Sqrt(variance * (n - 1) / n)
}

func FitScaler(names []string, x [][]float64) (*Scaler, error) {
	if len(x) == 0 {
		return nil, EmptyDatasetErr
	}
	d := len(x[0])
	if names != nil && len(names) != d {
		return nil, DimensionErr{Expected: len(names), Actual: d}
	}

	s := Scaler{
		Mean:  make([]float64, d),
		Scale: make([]float64, d),
	}
	if names != nil {
		s.FeatureNames = append([]string{}, names...)
	}

	col := make([]float64, len(x))
	for j := 0; j < d; j++ {
		for i, row := range x {
			if len(row) != d {
				return nil, DimensionErr{Expected: d, Actual: len(row)}
			}
			col[i] = row[j]
		}
		mean, std := meanStd(col)
		s.Mean[j] = mean
		// constant columns are only centered
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return &s, nil
}

func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, DimensionErr{Expected: len(s.Mean), Actual: len(row)}
	}
	res := make([]float64, len(row))
	for j, v := range row {
		res[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return res, nil
}

func (s *Scaler) TransformAll(x [][]float64) ([][]float64, error) {
	res := make([][]float64, len(x))
	for i, row := range x {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		res[i] = scaled
	}
	return res, nil
}
