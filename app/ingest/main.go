package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/aau-network-security/phishdetect/app"
	"github.com/aau-network-security/phishdetect/config"
	"github.com/aau-network-security/phishdetect/dataset"
	"github.com/rs/zerolog/log"
)

type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var urls, local listFlag
	confFile := flag.String("config", "", "location of configuration file")
	datasetFile := flag.String("dataset", "dataset.csv", "path to the dataset to merge into")
	assumed := flag.Int("assume-feed-phish", 1, "label of feed rows without a label column (0 or 1)")
	dryRun := flag.Bool("dry-run", false, "show what would be merged without writing the dataset")
	flag.Var(&urls, "urls", "csv feed url to download and ingest (repeatable)")
	flag.Var(&local, "local", "local csv feed to ingest (repeatable)")
	flag.Parse()

	if *assumed != 0 && *assumed != 1 {
		log.Fatal().Msgf("assume-feed-phish must be 0 or 1, but got %d", *assumed)
	}
	// remaining arguments are treated as local feeds
	local = append(local, flag.Args()...)

	conf, err := config.ReadConfig(*confFile)
	if err != nil {
		log.Fatal().Msgf("error while reading configuration: %s", err)
	}
	env, err := app.NewEnv(conf, map[string]string{"app": "ingest"})
	if err != nil {
		log.Fatal().Msgf("error while setting up: %s", err)
	}
	defer env.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := app.IngestOpts{
		IngestOpts: dataset.IngestOpts{
			Dataset: *datasetFile,
			Assumed: *assumed,
			DryRun:  *dryRun,
		},
		URLs:  urls,
		Local: local,
	}
	report, err := env.Ingest(ctx, opts)
	if err != nil {
		log.Fatal().Msgf("error while ingesting feeds: %s", err)
	}

	ev := log.Info().
		Int("rows", report.Rows).
		Int("contributed", report.Contributed)
	if *dryRun {
		ev.Msg("dry run, dataset not written")
		return
	}
	ev.Str("backup", report.Backup).Msgf("wrote %s", *datasetFile)
}
