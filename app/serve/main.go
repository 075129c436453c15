package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aau-network-security/phishdetect/api"
	"github.com/aau-network-security/phishdetect/app"
	"github.com/aau-network-security/phishdetect/config"
	"github.com/aau-network-security/phishdetect/generic"
	"github.com/rs/zerolog/log"
)

func main() {
	confFile := flag.String("config", "", "location of configuration file")
	flag.Parse()

	conf, err := config.ReadConfig(*confFile)
	if err != nil {
		log.Fatal().Msgf("error while reading configuration: %s", err)
	}

	env, err := app.NewEnv(conf, map[string]string{"app": "serve"})
	if err != nil {
		log.Fatal().Msgf("error while setting up: %s", err)
	}
	defer env.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env.FetchModels(ctx)
	predictor, dir, err := env.LoadModel()
	if err != nil {
		log.Fatal().Msgf("error while loading model: %s", err)
	}

	det, err := env.Detector(predictor)
	if err != nil {
		log.Fatal().Msgf("error while creating detector: %s", err)
	}

	if interval := conf.Model.ReloadInterval; interval > 0 {
		go func() {
			reload := func(t time.Time) error {
				if _, err := predictor.Reload(dir); err != nil {
					env.Log.Log(err, config.LogOptions{Msg: "failed to reload model"})
				}
				return nil
			}
			generic.Repeat(ctx, reload, time.Now().Add(interval), interval, -1)
		}()
	}

	lis, err := net.Listen("tcp", conf.API.Addr())
	if err != nil {
		log.Fatal().Msgf("failed to listen on %s: %s", conf.API.Addr(), err)
	}

	serv := api.Server{
		Conf: conf.API,
		Det:  det,
		Log:  env.Log,
	}
	if err := serv.Run(ctx, lis); err != nil {
		log.Fatal().Msgf("error while running api server: %s", err)
	}
}
