package classifier

import (
	"fmt"
	"sync/atomic"

	"github.com/aau-network-security/phishdetect/features"
	"github.com/rs/zerolog/log"
)

type Prediction struct {
	Label      int
	Confidence float64
	Version    string
}

func (p Prediction) IsPhishing() bool {
	return p.Label == 1
}

// Align reorders a feature row to the columns the pair was fit on. Scalers
// carrying feature names are matched by name: missing columns become 0 and
// unknown columns are dropped. Without names the row is padded with zero
// columns or truncated to the classifier's feature count.
func Align(row features.Row, pair *ArtifactPair) ([]float64, error) {
	if len(row.Names) != len(row.Values) {
		return nil, fmt.Errorf("row has %d names for %d values", len(row.Names), len(row.Values))
	}

	if pair.Scaler.HasNames() {
		if pair.Forest.NFeatures != len(pair.Scaler.FeatureNames) {
			return nil, DimensionErr{Expected: pair.Forest.NFeatures, Actual: len(pair.Scaler.FeatureNames)}
		}
		byName := make(map[string]float64, len(row.Names))
		for i, n := range row.Names {
			byName[n] = row.Values[i]
		}
		res := make([]float64, len(pair.Scaler.FeatureNames))
		for i, n := range pair.Scaler.FeatureNames {
			res[i] = byName[n]
		}
		return res, nil
	}

	expected := pair.Forest.NFeatures
	if expected <= 0 {
		expected = pair.Scaler.NFeatures()
	}
	if len(row.Values) != expected {
		log.Warn().
			Str("version", pair.Version).
			Int("expected", expected).
			Int("actual", len(row.Values)).
			Msg("scaler has no feature names, aligning columns by count")
	}
	res := make([]float64, expected)
	copy(res, row.Values)
	return res, nil
}

// Predictor serves predictions from the active artifact pair. The pair can be
// replaced at any time without blocking concurrent predictions.
type Predictor struct {
	active atomic.Pointer[ArtifactPair]
}

func NewPredictor(pair *ArtifactPair) *Predictor {
	p := &Predictor{}
	if pair != nil {
		p.Swap(pair)
	}
	return p
}

func (p *Predictor) Swap(pair *ArtifactPair) {
	p.active.Store(pair)
}

func (p *Predictor) Active() *ArtifactPair {
	return p.active.Load()
}

func (p *Predictor) Loaded() bool {
	pair := p.active.Load()
	return pair != nil && pair.Forest != nil && pair.Scaler != nil
}

func (p *Predictor) Predict(rec features.Record) (Prediction, error) {
	pair := p.active.Load()
	if pair == nil || pair.Forest == nil || pair.Scaler == nil {
		return Prediction{}, ErrModelNotLoaded
	}

	x, err := Align(features.Aggregate(rec), pair)
	if err != nil {
		return Prediction{}, &AlignmentError{Cause: err}
	}
	scaled, err := pair.Scaler.Transform(x)
	if err != nil {
		return Prediction{}, &AlignmentError{Cause: err}
	}
	label, confidence, err := pair.Forest.Predict(scaled)
	if err != nil {
		return Prediction{}, &AlignmentError{Cause: err}
	}

	return Prediction{
		Label:      label,
		Confidence: confidence,
		Version:    pair.Version,
	}, nil
}

// Reload activates the newest pair in dir if its version differs from the
// active one
func (p *Predictor) Reload(dir *ArtifactDir) (bool, error) {
	version, err := dir.Latest()
	if err != nil {
		return false, err
	}
	if cur := p.active.Load(); cur != nil && cur.Version == version {
		return false, nil
	}
	pair, err := dir.Load(version)
	if err != nil {
		return false, err
	}
	p.Swap(pair)
	log.Info().Str("version", version).Msg("activated model")
	return true, nil
}
