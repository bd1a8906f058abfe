// Post-processing metrics
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"sync"
	"time"
)

// Run outcomes used as the "result" label.
const (
	ResultInserted    = "inserted"
	ResultPassThrough = "passthrough"
	ResultError       = "error"
)

// MeshMetrics holds the metrics recorded by post-processing runs and
// the upload server.
type MeshMetrics struct {
	RunsTotal        *Counter
	BytesProcessed   *Counter
	MovesAbsorbed    *Counter
	SettingsFallback *Counter
	RunDuration      *Histogram
	LayersPerFile    *Histogram
	ProbeSpacing     *Gauge
	MeshArea         *Gauge
	UploadsTotal     *Counter
	WebsocketClients *Gauge
	StartTime        *Gauge

	registry *Registry
}

// NewMeshMetrics creates and registers all metrics in a fresh registry.
func NewMeshMetrics() *MeshMetrics {
	m := &MeshMetrics{
		RunsTotal:        NewCounter("adaptive_mesh_runs_total", "Post-processing runs by result"),
		BytesProcessed:   NewCounter("adaptive_mesh_bytes_processed_total", "Uncompressed G-code bytes read"),
		MovesAbsorbed:    NewCounter("adaptive_mesh_moves_absorbed_total", "Extrusion moves that contributed to a bounding box"),
		SettingsFallback: NewCounter("adaptive_mesh_settings_fallback_total", "Runs that fell back to zero offsets"),
		RunDuration:      NewHistogram("adaptive_mesh_run_duration_seconds", "Post-processing run duration", DefaultBuckets()),
		LayersPerFile:    NewHistogram("adaptive_mesh_layers_per_file", "Layer blocks per processed file", ExponentialBuckets(1, 4, 8)),
		ProbeSpacing:     NewGauge("adaptive_mesh_last_probe_spacing", "Probe spacing of the last synthesized command"),
		MeshArea:         NewGauge("adaptive_mesh_last_mesh_area_mm2", "Area covered by the last synthesized mesh"),
		UploadsTotal:     NewCounter("adaptive_mesh_uploads_total", "Files accepted by the upload server by root"),
		WebsocketClients: NewGauge("adaptive_mesh_websocket_clients", "Connected websocket clients"),
		StartTime:        NewGauge("adaptive_mesh_start_time_seconds", "Process start time since the Unix epoch"),
		registry:         NewRegistry(),
	}
	m.registry.MustRegister(
		m.RunsTotal,
		m.BytesProcessed,
		m.MovesAbsorbed,
		m.SettingsFallback,
		m.RunDuration,
		m.LayersPerFile,
		m.ProbeSpacing,
		m.MeshArea,
		m.UploadsTotal,
		m.WebsocketClients,
		m.StartTime,
	)
	m.StartTime.Set(nil, float64(time.Now().Unix()))
	return m
}

// RunStats is what a finished run reports.
type RunStats struct {
	Result   string
	Bytes    int
	Layers   int
	Moves    int
	Spacing  int
	AreaMM2  float64
	Fallback bool
	Duration time.Duration
}

// RecordRun records one post-processing run.
func (m *MeshMetrics) RecordRun(s RunStats) {
	m.RunsTotal.Inc(Labels{"result": s.Result})
	m.BytesProcessed.Add(nil, uint64(max(s.Bytes, 0)))
	m.MovesAbsorbed.Add(nil, uint64(max(s.Moves, 0)))
	m.RunDuration.Observe(nil, s.Duration.Seconds())
	if s.Layers > 0 {
		m.LayersPerFile.Observe(nil, float64(s.Layers))
	}
	if s.Fallback {
		m.SettingsFallback.Inc(nil)
	}
	if s.Result == ResultInserted {
		m.ProbeSpacing.Set(nil, float64(s.Spacing))
		m.MeshArea.Set(nil, s.AreaMM2)
	}
}

// Registry returns the registry holding these metrics.
func (m *MeshMetrics) Registry() *Registry {
	return m.registry
}

// Gather renders the metrics in Prometheus text format.
func (m *MeshMetrics) Gather() string {
	return m.registry.Gather()
}

var (
	globalMetrics *MeshMetrics
	globalOnce    sync.Once
)

// GlobalMetrics returns the process-wide metrics instance.
func GlobalMetrics() *MeshMetrics {
	globalOnce.Do(func() {
		globalMetrics = NewMeshMetrics()
	})
	return globalMetrics
}
