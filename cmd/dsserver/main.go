package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docfeed/dslisten/internal/config"
	"github.com/docfeed/dslisten/internal/directory"
	"github.com/docfeed/dslisten/internal/mock"
	"github.com/docfeed/dslisten/internal/session"
	"github.com/docfeed/dslisten/internal/watch"
	"github.com/docfeed/dslisten/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "dsserver.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Publish synthetic document activity")
	interval := flag.Duration("interval", 0, "Override mock event interval")
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash of a password and exit")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *hashPassword != "" {
		h, err := directory.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *interval > 0 {
		cfg.Mock.Interval = *interval
	}

	dir := directory.New(cfg)
	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(cfg.Broadcast)
	defer broadcaster.Stop()
	server := ws.NewServer(cfg.Server, dir, store, broadcaster)

	log.Info().
		Str("domain", dir.DefaultDomain()).
		Int("users", dir.UserCount()).
		Int("seats", cfg.License.Seats).
		Msg("directory loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *mockMode || cfg.Mock.Enabled {
		mock.NewGenerator(broadcaster, cfg).Start(ctx)
	}

	if err := watch.New(*configPath, cfg, dir, broadcaster).Start(ctx); err != nil {
		log.Warn().Err(err).Msg("config reload disabled")
	}

	if err := ws.ListenAndServe(ctx, cfg.Addr(), server.Routes()); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("shut down")
}
