package detector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/aau-network-security/phishdetect/classifier"
	"github.com/aau-network-security/phishdetect/collectors/lexical"
	"github.com/aau-network-security/phishdetect/features"
	"github.com/aau-network-security/phishdetect/store"
	"github.com/aau-network-security/phishdetect/verdict"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type DomainSource interface {
	Resolve(ctx context.Context, u *url.URL) features.Outcome[features.Domain]
}

type ContentSource interface {
	Fetch(ctx context.Context, u *url.URL) features.Outcome[features.Content]
}

type CertificateSource interface {
	Inspect(ctx context.Context, u *url.URL) features.Outcome[features.TLS]
}

// Sources are the network-bound feature sources. A nil source is treated as
// disabled and always yields its sentinel values.
type Sources struct {
	Domain      DomainSource
	Content     ContentSource
	Certificate CertificateSource
}

type Response struct {
	RequestID    string          `json:"request_id,omitempty"`
	IsPhishing   bool            `json:"is_phishing"`
	Confidence   float64         `json:"confidence"`
	Features     features.Record `json:"features"`
	RiskFactors  []string        `json:"risk_factors"`
	ModelVersion string          `json:"model_version,omitempty"`
}

type Detector struct {
	sources   Sources
	predictor *classifier.Predictor
	gate      *verdict.Gate
	influx    store.InfluxService
}

func (d *Detector) observe(source string, cause error, u *url.URL) {
	d.influx.SourceOutcome(source, cause != nil)
	if cause != nil {
		log.Debug().Str("source", source).Str("host", u.Hostname()).Msgf("degraded: %s", cause)
	}
}

// extract runs the network sources concurrently. Each source bounds its own
// wall time, so the record is complete once the slowest source returns.
func (d *Detector) extract(ctx context.Context, raw string, u *url.URL) features.Record {
	rec := features.Record{
		Lexical: lexical.Analyze(strings.TrimSpace(raw), u),
	}

	dom := features.Degraded(features.DegradedDomain(), features.ErrSourceDisabled)
	cnt := features.Degraded(features.DegradedContent(), features.ErrSourceDisabled)
	crt := features.Degraded(features.DegradedTLS(), features.ErrSourceDisabled)

	var g errgroup.Group
	if d.sources.Domain != nil {
		g.Go(func() error {
			dom = d.sources.Domain.Resolve(ctx, u)
			return nil
		})
	}
	if d.sources.Content != nil {
		g.Go(func() error {
			cnt = d.sources.Content.Fetch(ctx, u)
			return nil
		})
	}
	if d.sources.Certificate != nil {
		g.Go(func() error {
			crt = d.sources.Certificate.Inspect(ctx, u)
			return nil
		})
	}
	g.Wait()

	d.observe("domain", dom.Cause, u)
	d.observe("content", cnt.Cause, u)
	d.observe("certificate", crt.Cause, u)

	rec.Domain = dom.Value
	rec.Content = cnt.Value
	rec.TLS = crt.Value
	return rec
}

// Extract validates the URL and gathers its complete feature record. Source
// failures never surface as errors, only invalid input does.
func (d *Detector) Extract(ctx context.Context, raw string) (features.Record, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return features.Record{}, err
	}
	return d.extract(ctx, raw, u), nil
}

// Classify extracts features for a URL and decides whether it is phishing
func (d *Detector) Classify(ctx context.Context, raw string) (*Response, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp := Response{
		RequestID: uuid.New().String(),
		Features:  d.extract(ctx, raw, u),
	}

	if d.gate.Trusted(u.Hostname()) {
		dec := d.gate.TrustedDecision()
		resp.IsPhishing = dec.IsPhishing
		resp.Confidence = dec.Confidence
		resp.RiskFactors = []string{verdict.ReasonTrusted}
		d.influx.Verdict(verdict.ReasonTrusted)
		return &resp, nil
	}

	pred, err := d.predictor.Predict(resp.Features)
	if err != nil {
		return nil, err
	}
	dec := d.gate.Apply(pred)

	resp.IsPhishing = dec.IsPhishing
	resp.Confidence = dec.Confidence
	resp.RiskFactors = verdict.Explain(resp.Features)
	resp.ModelVersion = pred.Version

	label := "benign"
	if dec.IsPhishing {
		label = "phishing"
	}
	d.influx.Verdict(label)
	log.Debug().
		Str("id", resp.RequestID).
		Str("url", u.String()).
		Bool("phishing", resp.IsPhishing).
		Float64("confidence", resp.Confidence).
		Dur("took", time.Since(start)).
		Msg("classified url")

	return &resp, nil
}

func (d *Detector) Ready() bool {
	return d.predictor.Loaded()
}

func New(sources Sources, predictor *classifier.Predictor, gate *verdict.Gate, influx store.InfluxService) *Detector {
	if influx == nil {
		influx = store.NewDisabledInfluxService()
	}
	return &Detector{
		sources:   sources,
		predictor: predictor,
		gate:      gate,
		influx:    influx,
	}
}
