// Metrics collection for the adaptive mesh tools
//
// Prometheus-compatible counters, gauges and histograms, rendered in
// the Prometheus text exposition format.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// key identifies a label set within one metric
func (l Labels) key() string {
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, l[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

func (l Labels) with(k, v string) Labels {
	out := make(Labels, len(l)+1)
	for kk, vv := range l {
		out[kk] = vv
	}
	out[k] = v
	return out
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// family holds the per-label-set series of one metric
type family[V any] struct {
	name   string
	help   string
	series sync.Map // label key -> *V
	newV   func(Labels) *V
}

func (f *family[V]) get(labels Labels) *V {
	k := labels.key()
	if v, ok := f.series.Load(k); ok {
		return v.(*V)
	}
	v, _ := f.series.LoadOrStore(k, f.newV(labels))
	return v.(*V)
}

func (f *family[V]) lookup(labels Labels) (*V, bool) {
	v, ok := f.series.Load(labels.key())
	if !ok {
		return nil, false
	}
	return v.(*V), true
}

// each visits series in label-key order so output is stable
func (f *family[V]) each(fn func(*V)) {
	var keys []string
	f.series.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := f.series.Load(k); ok {
			fn(v.(*V))
		}
	}
}

func writeHeader(sb *strings.Builder, name, help string, t MetricType) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, t)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Counter is a monotonically increasing metric
type Counter struct {
	family[counterValue]
}

type counterValue struct {
	labels Labels
	value  atomic.Uint64
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	c := &Counter{}
	c.name, c.help = name, help
	c.newV = func(l Labels) *counterValue { return &counterValue{labels: l} }
	return c
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) {
	c.Add(labels, 1)
}

// Add increments the counter by delta
func (c *Counter) Add(labels Labels, delta uint64) {
	c.get(labels).value.Add(delta)
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) uint64 {
	if v, ok := c.lookup(labels); ok {
		return v.value.Load()
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c.name, c.help, TypeCounter)
	c.each(func(v *counterValue) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, v.labels, v.value.Load())
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	family[gaugeValue]
}

type gaugeValue struct {
	labels Labels
	bits   atomic.Uint64
}

func (g *gaugeValue) load() float64 {
	return math.Float64frombits(g.bits.Load())
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	g := &Gauge{}
	g.name, g.help = name, help
	g.newV = func(l Labels) *gaugeValue { return &gaugeValue{labels: l} }
	return g
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) {
	g.get(labels).bits.Store(math.Float64bits(value))
}

// Add adds delta to the gauge
func (g *Gauge) Add(labels Labels, delta float64) {
	v := g.get(labels)
	for {
		old := v.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if v.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Inc increments the gauge by 1
func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }

// Dec decrements the gauge by 1
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	if v, ok := g.lookup(labels); ok {
		return v.load()
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g.name, g.help, TypeGauge)
	g.each(func(v *gaugeValue) {
		fmt.Fprintf(sb, "%s%s %s\n", g.name, v.labels, formatFloat(v.load()))
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	family[histogramValue]
	buckets []float64
}

type histogramValue struct {
	labels Labels
	mu     sync.Mutex
	count  uint64
	sum    float64
	counts []uint64 // per bucket, not cumulative
}

// NewHistogram creates a new histogram metric with the given upper bounds
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	h := &Histogram{buckets: sorted}
	h.name, h.help = name, help
	h.newV = func(l Labels) *histogramValue {
		return &histogramValue{labels: l, counts: make([]uint64, len(sorted))}
	}
	return h
}

// DefaultBuckets returns default histogram buckets for latency metrics
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// ExponentialBuckets creates count buckets starting at start with factor multiplier
func ExponentialBuckets(start, factor float64, count int) []float64 {
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start *= factor
	}
	return buckets
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	v := h.get(labels)
	i := sort.SearchFloat64s(h.buckets, value)
	v.mu.Lock()
	v.count++
	v.sum += value
	if i < len(v.counts) {
		v.counts[i]++
	}
	v.mu.Unlock()
}

// Timer returns a function that records the elapsed seconds when called
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() {
		h.Observe(labels, time.Since(start).Seconds())
	}
}

// Count returns the number of observations for labels
func (h *Histogram) Count(labels Labels) uint64 {
	v, ok := h.lookup(labels)
	if !ok {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h.name, h.help, TypeHistogram)
	h.each(func(v *histogramValue) {
		v.mu.Lock()
		count, sum := v.count, v.sum
		counts := append([]uint64(nil), v.counts...)
		v.mu.Unlock()

		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += counts[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, v.labels.with("le", formatFloat(bound)), cumulative)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, v.labels.with("le", "+Inf"), count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, v.labels, formatFloat(sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, v.labels, count)
	})
}

// Registry holds registered metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(metric Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := metric.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = metric
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(metrics ...Metric) {
	for _, m := range metrics {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Gather renders all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}

// ServeHTTP serves the registry in Prometheus text format.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	fmt.Fprint(w, r.Gather())
}
