// adaptive-mesh rewrites sliced G-code so that the bed mesh is probed
// only over the printed area. The ;MESH_CALC marker in each file is
// replaced by an M557 command sized to the model.
//
// Usage:
//
//	adaptive-mesh [options] INPUT...
//
// Options:
//
//	-config string    Configuration file (.cfg or .yaml)
//	-x-offset int     Shift the mesh in X (overrides the config)
//	-y-offset int     Shift the mesh in Y (overrides the config)
//	-o string         Output file (single input only; default: rewrite in place)
//	-history string   SQLite database recording each run
//	-dry-run          Print the computed command without writing
//	-loglevel string  Log level: debug, info, warn, error
//	-logfile string   Also write logs to this file, rotated
//	-j int            Files processed in parallel
//
// An INPUT of "-" reads stdin and writes stdout. Files ending in .gz or
// .zst are decompressed on input and recompressed on output.
//
// Examples:
//
//	# Slicer post-processing script
//	adaptive-mesh -config ~/adaptive_mesh.cfg "$1"
//
//	# Preview the command for a batch
//	adaptive-mesh -dry-run prints/*.gcode
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"adaptive-mesh/pkg/adaptivemesh"
	"adaptive-mesh/pkg/config"
	"adaptive-mesh/pkg/history"
	"adaptive-mesh/pkg/log"
	"adaptive-mesh/pkg/metrics"
	"adaptive-mesh/pkg/postprocess"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adaptive-mesh", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "Configuration file (.cfg or .yaml)")
	xOffset := fs.Int("x-offset", 0, "Shift the mesh in X (overrides the config)")
	yOffset := fs.Int("y-offset", 0, "Shift the mesh in Y (overrides the config)")
	output := fs.String("o", "", "Output file (single input only; default: rewrite in place)")
	historyPath := fs.String("history", "", "SQLite database recording each run")
	dryRun := fs.Bool("dry-run", false, "Print the computed command without writing")
	logLevel := fs.String("loglevel", "", "Log level: debug, info, warn, error")
	logFile := fs.String("logfile", "", "Also write logs to this file, rotated")
	jobs := fs.Int("j", runtime.NumCPU(), "Files processed in parallel")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: adaptive-mesh [options] INPUT...\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		fmt.Fprintf(stderr, "Error: at least one INPUT is required\n")
		fs.Usage()
		return 2
	}
	if *output != "" && len(inputs) > 1 {
		fmt.Fprintf(stderr, "Error: -o requires a single INPUT\n")
		return 2
	}

	var cfg *config.Config
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	tool, err := cfg.ToolSettings()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logOpts := log.Options{
		Level:      tool.Log.Level,
		Format:     tool.Log.Format,
		File:       tool.Log.File,
		MaxSize:    tool.Log.MaxSize,
		MaxBackups: tool.Log.MaxBackups,
		MaxAge:     tool.Log.MaxAge,
		Compress:   tool.Log.Compress,
		Console:    stderr,
	}
	if *logLevel != "" {
		logOpts.Level = *logLevel
	}
	if *logFile != "" {
		logOpts.File = *logFile
	}
	logger, logCloser, err := log.Setup("adaptive-mesh", logOpts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	settings := postprocess.Overrides{Base: postprocess.ConfigSettings{Config: cfg}}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "x-offset":
			settings.X = xOffset
		case "y-offset":
			settings.Y = yOffset
		}
	})

	if *historyPath == "" {
		*historyPath = tool.HistoryPath
	}
	var recorder postprocess.Recorder
	if *historyPath != "" {
		store, err := history.OpenSQLite(*historyPath)
		if err != nil {
			logger.WithError(err).Error("cannot open run history")
			return 1
		}
		defer store.Close()
		recorder = store
	}

	proc := postprocess.New(postprocess.Options{
		Settings: settings,
		Metrics:  metrics.GlobalMetrics(),
		History:  recorder,
		Logger:   logger.WithPrefix("postprocess"),
		Source:   history.SourceCLI,
		DryRun:   *dryRun,
		Stdin:    stdin,
		Stdout:   stdout,
	})

	reports := make([]postprocess.Report, len(inputs))
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			rep, err := proc.ProcessFile(ctx, in, *output)
			reports[i] = rep
			return err
		})
	}
	err = g.Wait()

	if *dryRun {
		for _, rep := range reports {
			printDryRun(stdout, rep)
		}
	}
	if err != nil {
		return 1
	}
	return 0
}

func printDryRun(w io.Writer, rep postprocess.Report) {
	switch {
	case rep.Name == "":
		return
	case !rep.Mesh.Found:
		fmt.Fprintf(w, "%s: no model extrusion found\n", rep.Name)
	case rep.Mesh.Inserted == 0:
		fmt.Fprintf(w, "%s: %s (no %s marker)\n", rep.Name, rep.Mesh.Command, adaptivemesh.InsertionMarker)
	default:
		fmt.Fprintf(w, "%s: %s\n", rep.Name, rep.Mesh.Command)
	}
}
