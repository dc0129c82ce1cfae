package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/V4T54L/logflow/internal/adapter/repository"
	"github.com/V4T54L/logflow/internal/adapter/repository/segment"
	"github.com/V4T54L/logflow/internal/pkg/config"
	"github.com/V4T54L/logflow/internal/pkg/logger"
	"github.com/V4T54L/logflow/internal/usecase"
)

func main() {
	dir := flag.String("dir", "", "debug segment directory (defaults to DEBUG_FILE_DIR)")
	tags := flag.String("tags", "sink_failed", "comma-separated tags selecting events to redeliver")
	batch := flag.Int("batch", 500, "records per sink write")
	dryRun := flag.Bool("dry-run", false, "count matching events without writing them")
	truncate := flag.Bool("truncate", false, "remove the segments after a successful run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if *dir == "" {
		*dir = cfg.DebugFileDir
	}
	if *dir == "" {
		log.Error("no segment directory: set -dir or DEBUG_FILE_DIR")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	segments, err := segment.NewSegmentRepository(*dir, cfg.DebugSegmentSize, cfg.DebugMaxDiskSize, log)
	if err != nil {
		log.Error("failed to open segments", "error", err, "dir", *dir)
		os.Exit(1)
	}
	defer segments.Close()

	sink, err := repository.OpenSink(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage sink", "error", err, "backend", cfg.SinkBackend)
		os.Exit(1)
	}
	defer sink.Close()

	uc := usecase.NewRedeliverUseCase(segments, sink, strings.Split(*tags, ","), *batch, *dryRun, log)
	res, err := uc.Run(ctx)
	log.Info("redelivery finished", "scanned", res.Scanned, "redelivered", res.Redelivered, "skipped", res.Skipped, "dry_run", *dryRun)
	if err != nil {
		log.Error("redelivery failed", "error", err)
		stop()
		segments.Close()
		sink.Close()
		os.Exit(1)
	}

	if *truncate && !*dryRun {
		if err := segments.Truncate(ctx); err != nil {
			log.Error("failed to truncate segments", "error", err)
		}
	}
}
