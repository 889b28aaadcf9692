// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// msglog-archiver moves message log records into hash-chained archive
// files on a schedule and purges archived records past retention.
//
// With --once it runs a single archiving pass and exits. Otherwise it
// runs the archive and clean schedules from the configuration until
// interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/xchange-foundation/msglog/lib/clock"
	"github.com/xchange-foundation/msglog/lib/config"
	"github.com/xchange-foundation/msglog/lib/process"
	"github.com/xchange-foundation/msglog/lib/schedule"
	"github.com/xchange-foundation/msglog/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		once        bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("msglog-archiver", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the configuration file (default: $"+config.EnvVar+")")
	flagSet.BoolVar(&once, "once", false, "run one archiving pass and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		version.Print("msglog-archiver")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	realClock := clock.Real()
	service, err := newService(cfg, realClock, logger)
	if err != nil {
		return err
	}
	defer service.Close()

	logger.Info("msglog archiver starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"archive_path", cfg.Archive.Path,
		"once", once,
	)

	if once {
		_, err := service.job.Run(ctx)
		return err
	}

	archiveSchedule, err := schedule.Parse(cfg.Schedule.Archive)
	if err != nil {
		return fmt.Errorf("schedule.archive: %w", err)
	}
	cleanSchedule, err := schedule.Parse(cfg.Schedule.Clean)
	if err != nil {
		return fmt.Errorf("schedule.clean: %w", err)
	}

	var waitGroup sync.WaitGroup
	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		schedule.Run(ctx, "archive", archiveSchedule, realClock, logger, func(ctx context.Context) error {
			_, err := service.job.Run(ctx)
			return err
		})
	}()
	go func() {
		defer waitGroup.Done()
		schedule.Run(ctx, "clean", cleanSchedule, realClock, logger, func(ctx context.Context) error {
			_, err := service.job.Clean(ctx)
			return err
		})
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	waitGroup.Wait()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `msglog-archiver archives the online message log into hash-chained zip files.

Usage:
  msglog-archiver --config PATH [--once]

Without --once the archiver runs the schedule.archive and schedule.clean
cron expressions from the configuration until interrupted.

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
