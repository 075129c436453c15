package classifier

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aau-network-security/phishdetect/features"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "models")
	if err != nil {
		t.Fatalf("failed to create temp dir: %s", err)
	}
	return dir
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		t, _ := time.Parse(VersionLayout, ts)
		return t
	}
}

func smallParams() Params {
	return Params{Trees: 15, MaxDepth: 6, Seed: 42}
}

func TestTrainHoldout(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	m, y := recordDataset(120)
	trainer := NewTrainer(NewArtifactDir(dir), smallParams())
	report, pair, err := trainer.Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}
	if report.TestAccuracy < 0.9 {
		t.Fatalf("expected test accuracy of at least 0.9, but got %f", report.TestAccuracy)
	}
	if report.Samples != 120 {
		t.Fatalf("expected 120 samples, but got %d", report.Samples)
	}
	if len(pair.Scaler.FeatureNames) != len(m.Names) {
		t.Fatalf("expected scaler to record %d feature names, but got %d", len(m.Names), len(pair.Scaler.FeatureNames))
	}
	for _, p := range []string{report.ModelPath, report.ScalerPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected artifact %s to exist: %s", p, err)
		}
	}
}

func TestTrainCrossValidation(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	m, y := recordDataset(100)
	trainer := NewTrainer(NewArtifactDir(dir), smallParams())
	trainer.Folds = 4
	report, pair, err := trainer.Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}
	if len(report.FoldROCAUC) != 4 {
		t.Fatalf("expected 4 fold scores, but got %d", len(report.FoldROCAUC))
	}
	if report.CVMeanROCAUC < 0.9 {
		t.Fatalf("expected mean roc auc of at least 0.9, but got %f", report.CVMeanROCAUC)
	}

	versions, _ := NewArtifactDir(dir).Versions()
	if len(versions) != 1 || versions[0] != pair.Version {
		t.Fatalf("expected a single persisted pair %s, but got %v", pair.Version, versions)
	}
}

func TestArtifactVersions(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	m, y := recordDataset(40)
	ad := NewArtifactDir(dir)
	ad.now = fixedClock("20240101_120000")
	trainer := NewTrainer(ad, smallParams())

	_, first, err := trainer.Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}
	_, second, err := trainer.Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}
	if first.Version != "20240101_120000" || second.Version != "20240101_120000_1" {
		t.Fatalf("unexpected versions %s and %s", first.Version, second.Version)
	}

	ad.now = fixedClock("20230101_120000")
	_, _, err = trainer.Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}

	latest, err := ad.Latest()
	if err != nil {
		t.Fatalf("failed to get latest version: %s", err)
	}
	if latest != second.Version {
		t.Fatalf("expected latest version %s, but got %s", second.Version, latest)
	}
}

func TestArtifactLoad(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	ad := NewArtifactDir(dir)
	if _, err := ad.LoadLatest(); !errors.Is(err, NoArtifactsErr) {
		t.Fatalf("expected no artifacts error, but got %v", err)
	}

	m, y := recordDataset(40)
	_, pair, err := NewTrainer(ad, smallParams()).Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}

	loaded, err := ad.LoadLatest()
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}
	for _, row := range m.X {
		scaled1, _ := pair.Scaler.Transform(row)
		scaled2, _ := loaded.Scaler.Transform(row)
		p1, _ := pair.Forest.PredictProba(scaled1)
		p2, _ := loaded.Forest.PredictProba(scaled2)
		if p1[1] != p2[1] {
			t.Fatalf("expected identical predictions after loading, but got %v and %v", p1, p2)
		}
	}

	// a classifier without its scaler cannot be loaded
	if err := os.Remove(filepath.Join(dir, ScalerFileName(pair.Version))); err != nil {
		t.Fatalf("failed to remove scaler: %s", err)
	}
	if _, err := ad.LoadLatest(); err == nil {
		t.Fatalf("expected error when loading classifier without scaler")
	}
}

func trainedPair(t *testing.T) *ArtifactPair {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	m, y := recordDataset(80)
	_, pair, err := NewTrainer(NewArtifactDir(dir), smallParams()).Train(m, y)
	if err != nil {
		t.Fatalf("failed to train: %s", err)
	}
	return pair
}

func TestPredictorNotLoaded(t *testing.T) {
	p := NewPredictor(nil)
	if p.Loaded() {
		t.Fatalf("expected predictor not to be loaded")
	}
	if _, err := p.Predict(record(true, 1)); err != ErrModelNotLoaded {
		t.Fatalf("expected model not loaded error, but got %v", err)
	}
}

func TestPredictor(t *testing.T) {
	p := NewPredictor(trainedPair(t))

	tests := []struct {
		name     string
		rec      features.Record
		phishing bool
	}{
		{"benign", record(false, 3), false},
		{"phishing", record(true, 5), true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pred, err := p.Predict(test.rec)
			if err != nil {
				t.Fatalf("failed to predict: %s", err)
			}
			if pred.IsPhishing() != test.phishing {
				t.Fatalf("expected phishing=%t, but got %t", test.phishing, pred.IsPhishing())
			}
			if pred.Confidence < 0 || pred.Confidence > 1 {
				t.Fatalf("expected confidence in [0, 1], but got %f", pred.Confidence)
			}
		})
	}
}

func TestAlignByName(t *testing.T) {
	pair := &ArtifactPair{
		Forest: &Forest{NFeatures: 3},
		Scaler: &Scaler{FeatureNames: []string{"a", "b", "c"}, Mean: make([]float64, 3), Scale: []float64{1, 1, 1}},
	}
	row := features.Row{
		Names:  []string{"c", "x", "a"},
		Values: []float64{3, 99, 1},
	}
	actual, err := Align(row, pair)
	if err != nil {
		t.Fatalf("failed to align: %s", err)
	}
	expected := []float64{1, 0, 3}
	for i := range expected {
		if actual[i] != expected[i] {
			t.Fatalf("expected %v, but got %v", expected, actual)
		}
	}
}

func TestAlignByCount(t *testing.T) {
	pair := &ArtifactPair{
		Forest: &Forest{NFeatures: 4},
		Scaler: &Scaler{Mean: make([]float64, 4), Scale: []float64{1, 1, 1, 1}},
	}
	tests := []struct {
		name     string
		values   []float64
		expected []float64
	}{
		{"pad", []float64{1, 2}, []float64{1, 2, 0, 0}},
		{"truncate", []float64{1, 2, 3, 4, 5, 6}, []float64{1, 2, 3, 4}},
		{"exact", []float64{1, 2, 3, 4}, []float64{1, 2, 3, 4}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			row := features.Row{Names: make([]string, len(test.values)), Values: test.values}
			actual, err := Align(row, pair)
			if err != nil {
				t.Fatalf("failed to align: %s", err)
			}
			if len(actual) != len(test.expected) {
				t.Fatalf("expected %v, but got %v", test.expected, actual)
			}
			for i := range actual {
				if actual[i] != test.expected[i] {
					t.Fatalf("expected %v, but got %v", test.expected, actual)
				}
			}
		})
	}
}

func TestPredictAlignmentFailure(t *testing.T) {
	// scaler and classifier disagree on the number of columns
	pair := &ArtifactPair{
		Forest: &Forest{NFeatures: 3, Classes: []int{0, 1}, Trees: []*Tree{{Feature: []int{leaf}, Value: [][2]float64{{1, 0}}}}},
		Scaler: &Scaler{Mean: make([]float64, 5), Scale: []float64{1, 1, 1, 1, 1}},
	}
	_, err := NewPredictor(pair).Predict(record(false, 1))
	if !errors.Is(err, ErrFeatureAlignment) {
		t.Fatalf("expected alignment failure, but got %v", err)
	}
	var ae *AlignmentError
	if !errors.As(err, &ae) || ae.Cause == nil {
		t.Fatalf("expected alignment error with cause, but got %v", err)
	}
}

func TestPredictorReload(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	ad := NewArtifactDir(dir)
	ad.now = fixedClock("20240101_000000")
	m, y := recordDataset(40)
	trainer := NewTrainer(ad, smallParams())
	if _, _, err := trainer.Train(m, y); err != nil {
		t.Fatalf("failed to train: %s", err)
	}

	p := NewPredictor(nil)
	swapped, err := p.Reload(ad)
	if err != nil || !swapped {
		t.Fatalf("expected initial reload to swap, got %t: %v", swapped, err)
	}
	swapped, _ = p.Reload(ad)
	if swapped {
		t.Fatalf("expected reload without new version to be a no-op")
	}

	ad.now = fixedClock("20240102_000000")
	if _, _, err := trainer.Train(m, y); err != nil {
		t.Fatalf("failed to train: %s", err)
	}

	// predictions keep being served while the pair is swapped
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := p.Predict(record(i%2 == 0, j)); err != nil {
					t.Errorf("failed to predict during swap: %s", err)
				}
			}
		}(i)
	}
	swapped, err = p.Reload(ad)
	wg.Wait()
	if err != nil || !swapped {
		t.Fatalf("expected reload to swap, got %t: %v", swapped, err)
	}
	if v := p.Active().Version; v != "20240102_000000" {
		t.Fatalf("expected version 20240102_000000, but got %s", v)
	}
}
