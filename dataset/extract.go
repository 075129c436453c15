package dataset

import (
	"context"
	"io"
	"sync"

	"github.com/aau-network-security/phishdetect/features"
	"github.com/aau-network-security/phishdetect/store"
	"github.com/rs/zerolog/log"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 8

type Sample = store.Sample

// FeatureSource yields the complete feature record of a single URL
type FeatureSource interface {
	Extract(ctx context.Context, raw string) (features.Record, error)
}

// SampleSink receives every extracted sample, e.g. the feature store
type SampleSink interface {
	Add(store.Sample) error
}

type Extractor struct {
	src      FeatureSource
	workers  int
	sink     SampleSink
	progress io.Writer
}

func (e *Extractor) WithSink(sink SampleSink) *Extractor {
	e.sink = sink
	return e
}

// WithProgress renders a progress bar to w while extracting
func (e *Extractor) WithProgress(w io.Writer) *Extractor {
	e.progress = w
	return e
}

func (e *Extractor) newBar(count int) (*mpb.Progress, *mpb.Bar) {
	if e.progress == nil || count == 0 {
		return nil, nil
	}
	name := "Extracting features"
	p := mpb.New(mpb.WithOutput(e.progress), mpb.WithWidth(64))
	bar := p.AddBar(int64(count),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done",
			),
		),
		mpb.AppendDecorators(decor.Percentage()))
	return p, bar
}

// Run extracts the features of every entry with a bounded number of URLs in
// flight. Entries that fail validation are skipped, the returned samples keep
// the order of the input.
func (e *Extractor) Run(ctx context.Context, entries []Entry) ([]Sample, error) {
	p, bar := e.newBar(len(entries))

	results := make([]*Sample, len(entries))
	sem := semaphore.NewWeighted(int64(e.workers))
	wg := sync.WaitGroup{}
	m := sync.Mutex{}
	var sinkErr error

	for i, entry := range entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, entry Entry) {
			defer func() {
				if bar != nil {
					bar.Increment()
				}
				sem.Release(1)
				wg.Done()
			}()

			rec, err := e.src.Extract(ctx, entry.URL)
			if err != nil {
				log.Warn().Str("url", entry.URL).Msgf("skipping entry: %s", err)
				return
			}
			s := Sample{URL: entry.URL, Label: entry.Label, Record: rec}
			results[i] = &s

			if e.sink != nil {
				m.Lock()
				defer m.Unlock()
				if err := e.sink.Add(s); err != nil && sinkErr == nil {
					sinkErr = err
				}
			}
		}(i, entry)
	}
	wg.Wait()
	if p != nil {
		if ctx.Err() != nil {
			bar.Abort(false)
		}
		p.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sinkErr != nil {
		return nil, sinkErr
	}

	var res []Sample
	for _, s := range results {
		if s != nil {
			res = append(res, *s)
		}
	}
	log.Info().Msgf("extracted features for %d of %d urls", len(res), len(entries))
	return res, nil
}

// Matrix aggregates the samples into a training matrix and its labels
func Matrix(samples []Sample) (features.Matrix, []int, error) {
	recs := make([]features.Record, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		recs[i] = s.Record
		y[i] = s.Label
	}
	m, err := features.AggregateAll(recs)
	if err != nil {
		return features.Matrix{}, nil, err
	}
	return m, y, nil
}

func NewExtractor(src FeatureSource, workers int) *Extractor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Extractor{
		src:     src,
		workers: workers,
	}
}
