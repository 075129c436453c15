package app

import (
	"context"

	"github.com/aau-network-security/phishdetect/classifier"
	"github.com/aau-network-security/phishdetect/collectors/certificate"
	"github.com/aau-network-security/phishdetect/collectors/content"
	"github.com/aau-network-security/phishdetect/collectors/whois"
	"github.com/aau-network-security/phishdetect/config"
	"github.com/aau-network-security/phishdetect/detector"
	"github.com/aau-network-security/phishdetect/download"
	"github.com/aau-network-security/phishdetect/store"
	"github.com/aau-network-security/phishdetect/verdict"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Env holds the components shared by the binaries
type Env struct {
	Conf   config.Config
	Log    config.ErrLogger
	Influx store.InfluxService

	registry whois.Registry
}

// WithRegistry replaces the whois registry used by the domain source
func (e *Env) WithRegistry(r whois.Registry) *Env {
	e.registry = r
	return e
}

func (e *Env) Sources() (detector.Sources, error) {
	var src detector.Sources
	if e.Conf.Sources.Domain {
		registry := e.registry
		if registry == nil {
			registry = whois.NewRegistry(e.Conf.Domain.Timeout)
		}
		r, err := whois.NewResolver(registry, e.Conf.Domain, e.Influx)
		if err != nil {
			return src, errors.Wrap(err, "create domain source")
		}
		src.Domain = r
	}
	if e.Conf.Sources.Content {
		src.Content = content.New(e.Conf.Content)
	}
	if e.Conf.Sources.Certificate {
		src.Certificate = certificate.New(e.Conf.Certificate)
	}
	return src, nil
}

func (e *Env) Gate() *verdict.Gate {
	return verdict.NewGate(e.Conf.Decision.Trusted, e.Conf.Decision.Threshold, e.Conf.Domain.Policy)
}

func (e *Env) Detector(predictor *classifier.Predictor) (*detector.Detector, error) {
	src, err := e.Sources()
	if err != nil {
		return nil, err
	}
	return detector.New(src, predictor, e.Gate(), e.Influx), nil
}

// FetchModels downloads the configured artifacts missing from the model dir.
// Failures are reported but never fatal.
func (e *Env) FetchModels(ctx context.Context) {
	for _, res := range download.New(e.Conf.Model.Download, e.Conf.Model.Dir).FetchMissing(ctx) {
		if res.Err != nil {
			e.Log.Log(res.Err, config.LogOptions{
				Tags: map[string]string{"file": res.File},
				Msg:  "failed to download model artifact",
			})
		}
	}
}

// LoadModel activates the newest artifact pair of the model dir
func (e *Env) LoadModel() (*classifier.Predictor, *classifier.ArtifactDir, error) {
	dir := classifier.NewArtifactDir(e.Conf.Model.Dir)
	pair, err := dir.LoadLatest()
	if err != nil {
		return nil, dir, errors.Wrapf(err, "load model from %s", e.Conf.Model.Dir)
	}
	log.Info().Str("version", pair.Version).Msg("loaded model")
	return classifier.NewPredictor(pair), dir, nil
}

// FeatureStore connects the feature store, or returns nil when it is disabled
func (e *Env) FeatureStore() (*store.FeatureStore, error) {
	if !e.Conf.Store.Enabled {
		return nil, nil
	}
	fs, err := store.NewFeatureStore(e.Conf.Store, e.Influx)
	if err != nil {
		return nil, errors.Wrap(err, "create feature store")
	}
	return fs, nil
}

func (e *Env) Close() error {
	return e.Influx.Close()
}

// NewEnv validates conf, configures logging and builds the error loggers
func NewEnv(conf config.Config, tags map[string]string) (*Env, error) {
	if err := conf.IsValid(); err != nil {
		return nil, err
	}
	conf.Log.Setup()

	el, err := conf.ErrLoggers(tags)
	if err != nil {
		return nil, errors.Wrap(err, "create error loggers")
	}
	return &Env{
		Conf:   conf,
		Log:    el,
		Influx: store.NewInfluxService(conf.InfluxDB),
	}, nil
}
