package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aau-network-security/phishdetect/config"
	"github.com/aau-network-security/phishdetect/dataset"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var NoFeedsErr = errors.New("no inputs found, provide feed urls or local files")

type IngestOpts struct {
	dataset.IngestOpts
	URLs  []string
	Local []string
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Ingest merges remote and local feeds into the dataset. Feeds that cannot be
// read are reported and skipped.
func (e *Env) Ingest(ctx context.Context, opts IngestOpts) (*dataset.IngestReport, error) {
	var feeds []*dataset.Feed

	if len(opts.URLs) > 0 {
		client := retryablehttp.NewClient()
		client.Logger = nil
		client.RetryMax = e.Conf.Content.Retries
		for _, u := range opts.URLs {
			log.Info().Msgf("downloading %s", u)
			f, err := dataset.FetchFeed(ctx, client, u)
			if err != nil {
				e.Log.Log(err, config.LogOptions{
					Tags: map[string]string{"feed": u},
					Msg:  "failed to download feed",
				})
				continue
			}
			feeds = append(feeds, f)
		}
	}

	for _, p := range opts.Local {
		p = expandHome(p)
		log.Info().Msgf("reading local file %s", p)
		f, err := dataset.ReadFeedFile(p)
		if err != nil {
			e.Log.Log(err, config.LogOptions{
				Tags: map[string]string{"feed": p},
				Msg:  "failed to read feed",
			})
			continue
		}
		feeds = append(feeds, f)
	}

	if len(feeds) == 0 {
		return nil, NoFeedsErr
	}
	return dataset.Ingest(opts.IngestOpts, feeds...)
}
