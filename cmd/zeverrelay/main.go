package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/raterudder/zeverrelay/pkg/astro"
	"github.com/raterudder/zeverrelay/pkg/common"
	"github.com/raterudder/zeverrelay/pkg/config"
	"github.com/raterudder/zeverrelay/pkg/inverter"
	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/metrics"
	"github.com/raterudder/zeverrelay/pkg/poller"
	"github.com/raterudder/zeverrelay/pkg/pvoutput"
	"github.com/raterudder/zeverrelay/pkg/recorder"
	"github.com/raterudder/zeverrelay/pkg/server"
	"github.com/raterudder/zeverrelay/pkg/storage"
	"github.com/raterudder/zeverrelay/pkg/types"
)

func main() {
	// init packages
	cfg := config.Configured()
	policy := common.ConfiguredRetryPolicy()
	gate := astro.Configured(cfg)
	zever := inverter.Configured(cfg, policy)
	relay := pvoutput.Configured(cfg, policy)
	dbDir := recorder.Configured(cfg)
	intervals := poller.Configured(cfg)
	s := storage.Configured()
	m := metrics.New()

	// init server
	srv := server.Configured(s, m)

	logFormat := lflag.String("log-format", "json", "Log output format (json or text)")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	handler, err := log.NewHandler(*logFormat, os.Stdout, level)
	if err != nil {
		panic(err)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.With(ctx, logger)

	// If storage initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if err := gate.Init(); err != nil {
		fatal(ctx, err)
	}
	loc := gate.Location()
	log.Ctx(ctx).InfoContext(
		ctx,
		"location resolved",
		slog.String("name", loc.Name),
		slog.String("region", loc.Region),
		slog.String("timezone", loc.Timezone),
		slog.Float64("latitude", loc.Latitude),
		slog.Float64("longitude", loc.Longitude),
	)
	if err := zever.Init(loc.TZ); err != nil {
		fatal(ctx, err)
	}
	if err := relay.Init(); err != nil {
		fatal(ctx, err)
	}

	info, err := relay.GetSystem(ctx)
	switch {
	case errors.Is(err, pvoutput.ErrUnauthorized):
		fatal(ctx, fmt.Errorf("could not authenticate with pvoutput, check the api key and system id: %w", err))
	case err != nil:
		info = types.SystemInfo{Name: "pvoutput-" + relay.SystemID()}
		log.Ctx(ctx).WarnContext(
			ctx,
			"error retrieving system from pvoutput, using defaults",
			slog.String("system", info.Name),
			slog.Any("error", err),
		)
	}

	interval, idle, source := intervals.Resolve(info.Interval)
	log.Ctx(ctx).InfoContext(ctx, "request interval set", slog.Duration("interval", interval), slog.String("source", source))

	rec := recorder.New(recorder.PathFor(dbDir(), info.Name))
	if created, err := rec.Ensure(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to create local database", slog.String("path", rec.Path()), slog.Any("error", err))
	} else if created {
		log.Ctx(ctx).InfoContext(ctx, "new database created", slog.String("path", rec.Path()))
	} else {
		log.Ctx(ctx).InfoContext(ctx, "logging to existing database", slog.String("path", rec.Path()))
	}

	if latest, err := s.GetLatestReading(ctx, relay.SystemID()); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get latest archived reading", slog.Any("error", err))
	} else if latest != nil {
		log.Ctx(ctx).InfoContext(ctx, "latest archived reading", slog.Time("timestamp", latest.Timestamp))
	}

	p := poller.New(poller.Options{
		Device:       zever,
		Uploader:     relay,
		Recorder:     rec,
		Gate:         gate,
		Archive:      s,
		Metrics:      m,
		SystemID:     relay.SystemID(),
		SystemName:   info.Name,
		Interval:     interval,
		IdleInterval: idle,
	})

	if srv.Enabled() {
		srv.Attach(p, relay.SystemID())
		go func() {
			// Run will block until context is canceled or error happens
			if err := srv.Run(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
				cancel()
			}
		}()
	}

	if err := p.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "poller failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
}

func fatal(ctx context.Context, err error) {
	log.Critical(ctx, err.Error())
	os.Exit(1)
}
