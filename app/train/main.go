package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/aau-network-security/phishdetect/app"
	"github.com/aau-network-security/phishdetect/config"
	"github.com/aau-network-security/phishdetect/dataset"
	"github.com/rs/zerolog/log"
)

func main() {
	confFile := flag.String("config", "", "location of configuration file")
	datasetFile := flag.String("dataset", "dataset.csv", "labelled dataset with url and is_phishing columns")
	modelDir := flag.String("model-dir", "", "output model directory, overrides the configuration")
	offline := flag.Bool("offline", false, "extract only url features (no http, whois or tls)")
	limit := flag.Int("limit", 0, "limit number of rows to use")
	folds := flag.Int("cv", 0, "number of cross-validation folds, 0 uses a holdout split")
	fromStore := flag.Bool("from-store", false, "train on features read from the feature store")
	workers := flag.Int("workers", dataset.DefaultWorkers, "number of urls extracted concurrently")
	flag.Parse()

	conf, err := config.ReadConfig(*confFile)
	if err != nil {
		log.Fatal().Msgf("error while reading configuration: %s", err)
	}
	if *modelDir != "" {
		conf.Model.Dir = *modelDir
	}

	env, err := app.NewEnv(conf, map[string]string{"app": "train"})
	if err != nil {
		log.Fatal().Msgf("error while setting up: %s", err)
	}
	defer env.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := app.TrainOpts{
		Dataset:   *datasetFile,
		Offline:   *offline,
		Limit:     *limit,
		Folds:     *folds,
		FromStore: *fromStore,
		Workers:   *workers,
		Progress:  os.Stderr,
	}
	report, err := env.Train(ctx, opts)
	if err != nil {
		log.Fatal().Msgf("error while training: %s", err)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}
