package classifier

import (
	"time"

	"github.com/aau-network-security/phishdetect/features"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultTestSize = 0.2

type Report struct {
	Samples       int       `json:"samples"`
	TrainAccuracy float64   `json:"train_accuracy,omitempty"`
	TestAccuracy  float64   `json:"test_accuracy,omitempty"`
	CVMeanROCAUC  float64   `json:"cv_metric_mean_roc_auc,omitempty"`
	CVStdROCAUC   float64   `json:"cv_metric_std_roc_auc,omitempty"`
	FoldROCAUC    []float64 `json:"fold_roc_auc,omitempty"`
	Version       string    `json:"version"`
	ModelPath     string    `json:"model_path"`
	ScalerPath    string    `json:"scaler_path"`
	Duration      string    `json:"duration"`
}

type Trainer struct {
	Params   Params
	TestSize float64
	// number of cross-validation folds, values <= 1 use a holdout split
	Folds int
	dir   *ArtifactDir
}

func NewTrainer(dir *ArtifactDir, params Params) *Trainer {
	return &Trainer{
		Params:   params,
		TestSize: DefaultTestSize,
		dir:      dir,
	}
}

func (t *Trainer) fitPair(names []string, x [][]float64, y []int) (*ArtifactPair, error) {
	scaler, err := FitScaler(names, x)
	if err != nil {
		return nil, errors.Wrap(err, "fit scaler")
	}
	scaled, err := scaler.TransformAll(x)
	if err != nil {
		return nil, err
	}
	forest, err := FitForest(scaled, y, t.Params)
	if err != nil {
		return nil, errors.Wrap(err, "fit forest")
	}
	return &ArtifactPair{
		Forest: forest,
		Scaler: scaler,
	}, nil
}

func (pair *ArtifactPair) predictAll(x [][]float64) ([]int, []float64, error) {
	labels := make([]int, len(x))
	scores := make([]float64, len(x))
	for i, row := range x {
		scaled, err := pair.Scaler.Transform(row)
		if err != nil {
			return nil, nil, err
		}
		proba, err := pair.Forest.PredictProba(scaled)
		if err != nil {
			return nil, nil, err
		}
		scores[i] = proba[1]
		if proba[1] > proba[0] {
			labels[i] = 1
		}
	}
	return labels, scores, nil
}

// Train fits a classifier and scaler on the matrix and persists them as a new
// artifact pair
func (t *Trainer) Train(m features.Matrix, y []int) (*Report, *ArtifactPair, error) {
	start := time.Now()
	if err := validate(m.X, y); err != nil {
		return nil, nil, err
	}

	var (
		report *Report
		pair   *ArtifactPair
		err    error
	)
	if t.Folds > 1 {
		report, pair, err = t.crossValidate(m, y)
	} else {
		report, pair, err = t.holdout(m, y)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := t.dir.Save(pair); err != nil {
		return nil, nil, errors.Wrap(err, "save artifacts")
	}
	report.Samples = len(y)
	report.Version = pair.Version
	report.ModelPath = t.dir.ModelPath(pair.Version)
	report.ScalerPath = t.dir.ScalerPath(pair.Version)
	report.Duration = time.Since(start).String()

	return report, pair, nil
}

func (t *Trainer) holdout(m features.Matrix, y []int) (*Report, *ArtifactPair, error) {
	testSize := t.TestSize
	if testSize <= 0 || testSize >= 1 {
		testSize = DefaultTestSize
	}
	fold, err := StratifiedSplit(y, testSize, t.Params.Seed)
	if err != nil {
		return nil, nil, errors.Wrap(err, "split dataset")
	}
	xTrain, yTrain := subset(m.X, y, fold.Train)
	xTest, yTest := subset(m.X, y, fold.Test)
	log.Debug().Msgf("training on %d samples, testing on %d", len(yTrain), len(yTest))

	pair, err := t.fitPair(m.Names, xTrain, yTrain)
	if err != nil {
		return nil, nil, err
	}

	trainPred, _, err := pair.predictAll(xTrain)
	if err != nil {
		return nil, nil, err
	}
	testPred, _, err := pair.predictAll(xTest)
	if err != nil {
		return nil, nil, err
	}

	return &Report{
		TrainAccuracy: Accuracy(yTrain, trainPred),
		TestAccuracy:  Accuracy(yTest, testPred),
	}, pair, nil
}

// crossValidate scores the configuration on stratified folds and then fits
// the deployable pair on every sample
func (t *Trainer) crossValidate(m features.Matrix, y []int) (*Report, *ArtifactPair, error) {
	folds, err := StratifiedKFold(y, t.Folds, t.Params.Seed)
	if err != nil {
		return nil, nil, errors.Wrap(err, "split folds")
	}

	var aucs []float64
	for i, fold := range folds {
		xTrain, yTrain := subset(m.X, y, fold.Train)
		xTest, yTest := subset(m.X, y, fold.Test)

		pair, err := t.fitPair(m.Names, xTrain, yTrain)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "fold %d", i)
		}
		_, scores, err := pair.predictAll(xTest)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "fold %d", i)
		}
		auc := ROCAUC(scores, yTest)
		log.Debug().Msgf("fold %d/%d: roc auc %.4f", i+1, len(folds), auc)
		aucs = append(aucs, auc)
	}

	pair, err := t.fitPair(m.Names, m.X, y)
	if err != nil {
		return nil, nil, err
	}

	mean, std := MeanStd(aucs)
	return &Report{
		CVMeanROCAUC: mean,
		CVStdROCAUC:  std,
		FoldROCAUC:   aucs,
	}, pair, nil
}
