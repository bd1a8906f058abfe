// Post-processing of sliced G-code files
//
// A Processor runs the adaptive mesh filter over one G-code stream:
// read (decompressing if needed), split into layer blocks, resolve the
// offsets, rewrite, write back with the same compression, then report
// the run to the logger, metrics and history.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package postprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"adaptive-mesh/pkg/adaptivemesh"
	hosterrors "adaptive-mesh/pkg/errors"
	"adaptive-mesh/pkg/gcode"
	"adaptive-mesh/pkg/history"
	"adaptive-mesh/pkg/log"
	"adaptive-mesh/pkg/metrics"
)

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) (history.Run, error)
}

// Options configures a Processor. Zero values are usable: no settings
// means zero offsets, no metrics or history means nothing is recorded.
type Options struct {
	Settings adaptivemesh.SettingsProvider
	Metrics  *metrics.MeshMetrics
	History  Recorder
	Logger   *log.Logger

	// Source is stored with each history record.
	Source string

	// DryRun computes the command without writing output.
	DryRun bool

	// Stdin and Stdout back the "-" file name. They default to the
	// process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// Processor applies the adaptive mesh filter to G-code streams. It is
// safe for concurrent use.
type Processor struct {
	settings adaptivemesh.SettingsProvider
	metrics  *metrics.MeshMetrics
	history  Recorder
	logger   *log.Logger
	source   string
	dryRun   bool
	stdin    io.Reader
	stdout   io.Writer
}

// New creates a Processor.
func New(opts Options) *Processor {
	p := &Processor{
		settings: opts.Settings,
		metrics:  opts.Metrics,
		history:  opts.History,
		logger:   opts.Logger,
		source:   opts.Source,
		dryRun:   opts.DryRun,
		stdin:    opts.Stdin,
		stdout:   opts.Stdout,
	}
	if p.logger == nil {
		p.logger = log.GetLogger("postprocess")
	}
	if p.stdin == nil {
		p.stdin = os.Stdin
	}
	if p.stdout == nil {
		p.stdout = os.Stdout
	}
	if p.source == "" {
		p.source = history.SourceCLI
	}
	return p
}

// Offsets returns the offsets the next run would use and the settings
// error, if the provider failed.
func (p *Processor) Offsets() (adaptivemesh.Offsets, error) {
	return adaptivemesh.ResolveOffsets(p.settings)
}

// DryRun reports whether output is suppressed.
func (p *Processor) DryRun() bool { return p.dryRun }

// Report describes one processed stream.
type Report struct {
	Name        string
	RunID       string
	Compression gcode.Compression
	Mesh        adaptivemesh.Result
	Layers      int
	BytesIn     int
	BytesOut    int
	Duration    time.Duration

	// Fallback is set when the settings provider failed and zero
	// offsets were used.
	Fallback bool

	// Output is the rewritten text.
	Output string
}

// Result returns the history/metrics result label of the run.
func (r Report) Result() string {
	if r.Mesh.Found && r.Mesh.Inserted > 0 {
		return history.ResultInserted
	}
	return history.ResultPassThrough
}

// ProcessString runs the filter over already-decoded G-code text.
func (p *Processor) ProcessString(ctx context.Context, name, data string) (Report, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Report{Name: name}, err
	}

	return p.complete(ctx, start, p.run(name, data), nil)
}

// Process reads a G-code stream from r and writes the result to w with
// the compression detected on input. In dry-run mode nothing is written.
func (p *Processor) Process(ctx context.Context, name string, r io.Reader, w io.Writer) (Report, error) {
	start := time.Now()
	rep, err := p.transform(ctx, name, r)
	if err == nil && !p.dryRun {
		if werr := gcode.WriteAll(w, rep.Output, rep.Compression); werr != nil {
			err = hosterrors.GCodeWriteError(name, werr)
		}
	}
	return p.complete(ctx, start, rep, err)
}

// transform reads and rewrites a stream without writing it anywhere.
func (p *Processor) transform(ctx context.Context, name string, r io.Reader) (Report, error) {
	data, comp, err := gcode.ReadAll(r)
	if err != nil {
		return Report{Name: name, Compression: comp}, hosterrors.GCodeReadError(name, err)
	}
	if err := ctx.Err(); err != nil {
		return Report{Name: name, Compression: comp}, err
	}
	rep := p.run(name, data)
	rep.Compression = comp
	return rep, nil
}

func (p *Processor) complete(ctx context.Context, start time.Time, rep Report, err error) (Report, error) {
	rep.Duration = time.Since(start)
	rep.RunID = p.finish(ctx, start, rep, err)
	return rep, err
}

func (p *Processor) run(name, data string) Report {
	blocks := gcode.Split(data)

	off, err := adaptivemesh.ResolveOffsets(p.settings)
	fallback := err != nil
	if fallback {
		p.logger.WithError(err).WithField("file", name).Warn("offset settings unavailable, using 0,0")
	}

	res := adaptivemesh.Process(blocks, off)
	out := data
	if res.Inserted > 0 {
		out = gcode.Join(res.Layers)
	}

	return Report{
		Name:     name,
		Mesh:     res,
		Layers:   gcode.CountLayers(blocks),
		BytesIn:  len(data),
		BytesOut: len(out),
		Fallback: fallback,
		Output:   out,
	}
}

// finish logs the run and reports it to metrics and history. It returns
// the history run ID, if one was recorded.
func (p *Processor) finish(ctx context.Context, start time.Time, rep Report, runErr error) string {
	result := rep.Result()
	if runErr != nil {
		result = history.ResultError
	}
	entry := p.logger.WithFields(log.Fields{
		"file":   rep.Name,
		"size":   humanize.Bytes(uint64(rep.BytesIn)),
		"layers": rep.Layers,
	})

	switch {
	case runErr != nil:
		entry.WithError(runErr).Error("post-processing failed")
	case !rep.Mesh.Found:
		entry.Info("no model extrusion found, output unchanged")
	default:
		cmd := rep.Mesh.Command
		entry = entry.WithFields(log.Fields{
			"bounds": fmt.Sprintf("X%.1f:%.1f Y%.1f:%.1f",
				cmd.Bounds.MinX, cmd.Bounds.MaxX, cmd.Bounds.MinY, cmd.Bounds.MaxY),
			"bed":     fmt.Sprintf("%.1fx%.1f", rep.Mesh.Scan.BedWidth, rep.Mesh.Scan.BedHeight),
			"offsets": fmt.Sprintf("%d,%d", rep.Mesh.Offsets.X, rep.Mesh.Offsets.Y),
		})
		if rep.Mesh.Inserted == 0 {
			entry.Warn("no %s marker, output unchanged (would insert %s)",
				adaptivemesh.InsertionMarker, cmd)
		} else {
			entry.Info("inserted %s at %d marker(s)", cmd, rep.Mesh.Inserted)
		}
	}

	if p.metrics != nil {
		stats := metrics.RunStats{
			Result:   result,
			Bytes:    rep.BytesIn,
			Layers:   rep.Layers,
			Moves:    rep.Mesh.Scan.Moves,
			Fallback: rep.Fallback,
			Duration: time.Since(start),
		}
		if rep.Mesh.Found {
			cmd := rep.Mesh.Command
			stats.Spacing = cmd.Spacing
			stats.AreaMM2 = cmd.X.Span() * cmd.Y.Span()
		}
		p.metrics.RecordRun(stats)
	}

	if p.history != nil && !p.dryRun {
		run := history.Run{
			Filename:  rep.Name,
			Source:    p.source,
			StartedAt: start,
			Duration:  time.Since(start),
			Result:    result,
			XOffset:   rep.Mesh.Offsets.X,
			YOffset:   rep.Mesh.Offsets.Y,
			BedWidth:  rep.Mesh.Scan.BedWidth,
			BedHeight: rep.Mesh.Scan.BedHeight,
			Layers:    rep.Layers,
			Bytes:     int64(rep.BytesIn),
		}
		if rep.Mesh.Found {
			cmd := rep.Mesh.Command
			run.Command = cmd.String()
			run.MinX, run.MaxX = cmd.X.Min, cmd.X.Max
			run.MinY, run.MaxY = cmd.Y.Min, cmd.Y.Max
			run.Spacing = cmd.Spacing
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		// History is best effort; a store failure never fails the run.
		rec, err := p.history.Record(context.WithoutCancel(ctx), run)
		if err != nil {
			p.logger.WithError(err).WithField("file", rep.Name).Warn("failed to record run history")
			return ""
		}
		return rec.ID
	}
	return ""
}
