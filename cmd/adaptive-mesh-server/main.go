// adaptive-mesh-server is a Moonraker-compatible upload server. Slicers
// upload to it as they would to Moonraker; G-code files are rewritten
// with an adaptive M557 mesh command before they are stored.
//
// Usage:
//
//	adaptive-mesh-server [options]
//
// Options:
//
//	-config string    Configuration file (.cfg or .yaml)
//	-addr string      Listen address (default from config, ":7125")
//	-gcodes string    Directory for uploaded files
//	-history string   SQLite database for run history (default: in memory)
//	-loglevel string  Log level: debug, info, warn, error
//	-logfile string   Also write logs to this file, rotated
//	-report duration  Interval for logging run totals (0 disables)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"adaptive-mesh/pkg/config"
	"adaptive-mesh/pkg/history"
	"adaptive-mesh/pkg/log"
	"adaptive-mesh/pkg/metrics"
	"adaptive-mesh/pkg/moonraker"
	"adaptive-mesh/pkg/pool"
	"adaptive-mesh/pkg/postprocess"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (.cfg or .yaml)")
	addr := flag.String("addr", "", "Listen address (default from config, \":7125\")")
	gcodesDir := flag.String("gcodes", "", "Directory for uploaded files")
	historyPath := flag.String("history", "", "SQLite database for run history (default: in memory)")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error")
	logFile := flag.String("logfile", "", "Also write logs to this file, rotated")
	report := flag.Duration("report", time.Hour, "Interval for logging run totals (0 disables)")
	flag.Parse()

	var cfg *config.Config
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	tool, err := cfg.ToolSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		tool.ServerAddr = *addr
	}
	if *gcodesDir != "" {
		tool.GCodesDir = *gcodesDir
	}
	if *historyPath != "" {
		tool.HistoryPath = *historyPath
	}

	logOpts := log.Options{
		Level:      tool.Log.Level,
		Format:     tool.Log.Format,
		File:       tool.Log.File,
		MaxSize:    tool.Log.MaxSize,
		MaxBackups: tool.Log.MaxBackups,
		MaxAge:     tool.Log.MaxAge,
		Compress:   tool.Log.Compress,
	}
	if *logLevel != "" {
		logOpts.Level = *logLevel
	}
	if *logFile != "" {
		logOpts.File = *logFile
	}
	logger, logCloser, err := log.Setup("adaptive-mesh-server", logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := serve(logger, cfg, tool, *report); err != nil {
		logger.WithError(err).Error("server failed")
		logCloser.Close()
		os.Exit(1)
	}
}

func serve(logger *log.Logger, cfg *config.Config, tool config.ToolSettings, report time.Duration) error {
	store, err := history.Open(tool.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	settings := postprocess.ConfigSettings{Config: cfg}
	if off, err := settings.Offsets(); err != nil {
		logger.WithError(err).Warn("offset settings unavailable, uploads will use 0,0")
	} else {
		logger.Info("mesh offsets X%d Y%d", off.X, off.Y)
	}

	srv, err := moonraker.New(moonraker.Config{
		Addr:      tool.ServerAddr,
		GCodesDir: tool.GCodesDir,
		History:   store,
		Settings:  settings,
		Metrics:   metrics.GlobalMetrics(),
		Logger:    logger.WithPrefix("moonraker"),
	})
	if err != nil {
		return err
	}
	if cfg != nil {
		for _, opt := range cfg.UnusedOptions() {
			logger.Warn("unused config option %s", opt)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	if report > 0 {
		g.Go(func() error {
			reportLoop(ctx, logger.WithPrefix("report"), store, report)
			return nil
		})
	}
	return g.Wait()
}

// reportLoop periodically logs the run totals until ctx is done.
func reportLoop(ctx context.Context, logger *log.Logger, store history.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		totals, err := store.Totals(ctx)
		if err != nil {
			logger.WithError(err).Warn("cannot read run totals")
			continue
		}
		ps := pool.GetStats()
		logger.WithFields(log.Fields{
			"inserted":    totals.Inserted,
			"passthrough": totals.PassThrough,
			"errors":      totals.Errors,
			"buffer_gets": ps.Gets,
			"buffer_new":  ps.Misses,
		}).Info("%d runs, %s processed", totals.Runs, humanize.Bytes(uint64(totals.Bytes)))
	}
}
