package app

import (
	"context"
	"io"

	"github.com/aau-network-security/phishdetect/classifier"
	"github.com/aau-network-security/phishdetect/dataset"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var StoreDisabledErr = errors.New("feature store is disabled")

type TrainOpts struct {
	Dataset string
	// extract lexical features only, every network source yields sentinels
	Offline   bool
	Limit     int
	Folds     int
	FromStore bool
	Workers   int
	Progress  io.Writer
}

func (e *Env) samples(ctx context.Context, opts TrainOpts) ([]dataset.Sample, error) {
	fs, err := e.FeatureStore()
	if err != nil {
		return nil, err
	}
	if fs != nil {
		defer fs.Close()
	}

	if opts.FromStore {
		if fs == nil {
			return nil, StoreDisabledErr
		}
		return fs.Samples(opts.Limit)
	}

	entries, err := dataset.Load(opts.Dataset)
	if err != nil {
		return nil, errors.Wrapf(err, "load dataset %s", opts.Dataset)
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	log.Info().Msgf("extracting features for %d urls (offline=%t)", len(entries), opts.Offline)

	src := *e
	if opts.Offline {
		src.Conf.Sources.Domain = false
		src.Conf.Sources.Content = false
		src.Conf.Sources.Certificate = false
	}
	det, err := src.Detector(classifier.NewPredictor(nil))
	if err != nil {
		return nil, err
	}

	ex := dataset.NewExtractor(det, opts.Workers).WithProgress(opts.Progress)
	if fs != nil {
		ex = ex.WithSink(fs)
	}
	return ex.Run(ctx, entries)
}

// Train extracts features for the labelled dataset, or reads them from the
// feature store, and fits a new artifact pair into the model dir
func (e *Env) Train(ctx context.Context, opts TrainOpts) (*classifier.Report, error) {
	samples, err := e.samples(ctx, opts)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("extracted features for %d urls", len(samples))

	m, y, err := dataset.Matrix(samples)
	if err != nil {
		return nil, errors.Wrap(err, "prepare feature matrix")
	}

	trainer := classifier.NewTrainer(classifier.NewArtifactDir(e.Conf.Model.Dir), e.Conf.Classifier.Params)
	trainer.TestSize = e.Conf.Classifier.TestSize
	trainer.Folds = e.Conf.Classifier.Folds
	if opts.Folds > 0 {
		trainer.Folds = opts.Folds
	}

	report, _, err := trainer.Train(m, y)
	if err != nil {
		return nil, errors.Wrap(err, "train")
	}
	return report, nil
}
