package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docfeed/dslisten/internal/app"
	"github.com/docfeed/dslisten/internal/bootstrap"
	"github.com/docfeed/dslisten/internal/config"
	"github.com/docfeed/dslisten/internal/printer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := config.ParseArgs(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	closeLog := setupLogging(opts)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := bootstrap.Connect(ctx, opts.Connection, os.Stdout)
	if err != nil {
		return 1
	}
	defer sess.Close()

	sub, err := sess.Subscribe(ctx, opts.Filter)
	if err != nil {
		fmt.Fprintln(os.Stdout, bootstrap.Message(opts.Connection, err))
		return 1
	}
	defer sub.Close()

	if opts.Watch {
		err = app.Run(ctx, sub, sess.Principal(), opts.Connection.Addr())
	} else {
		fmt.Fprintln(os.Stdout, "Press CTRL C to exit....")
		p := printer.New(os.Stdout, printer.WithColor(!opts.NoColor))
		err = p.Run(ctx, sub)
		printed, dropped := p.Stats()
		log.Debug().Int("printed", printed).Int("dropped", dropped).Msg("listener stopped")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// setupLogging points the global logger at stderr. The watch screen owns
// the terminal, so there diagnostics go to dslisten.log with -debug and
// are discarded otherwise.
func setupLogging(opts config.Options) func() {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if !opts.Watch {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return func() {}
	}
	if !opts.Debug {
		log.Logger = zerolog.New(io.Discard)
		return func() {}
	}
	f, err := os.OpenFile("dslisten.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Logger = zerolog.New(io.Discard)
		return func() {}
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { f.Close() }
}
