// Package history records post-processing runs. Runs are kept in
// SQLite when a database path is configured and in memory otherwise.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Result values stored with each run.
const (
	ResultInserted    = "inserted"
	ResultPassThrough = "passthrough"
	ResultError       = "error"
)

// Run sources.
const (
	SourceCLI    = "cli"
	SourceUpload = "upload"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("history: run not found")

// Run is one post-processing run.
type Run struct {
	ID        string        `json:"run_id"`
	Filename  string        `json:"filename"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Result    string        `json:"result"`

	// Command is the synthesized probe command, empty on pass-through.
	Command   string  `json:"command,omitempty"`
	MinX      float64 `json:"min_x"`
	MaxX      float64 `json:"max_x"`
	MinY      float64 `json:"min_y"`
	MaxY      float64 `json:"max_y"`
	BedWidth  float64 `json:"bed_width"`
	BedHeight float64 `json:"bed_height"`
	Spacing   int     `json:"spacing"`
	XOffset   int     `json:"x_offset"`
	YOffset   int     `json:"y_offset"`
	Layers    int     `json:"layers"`
	Bytes     int64   `json:"bytes"`
	Error     string  `json:"error,omitempty"`
}

// Totals aggregates all recorded runs.
type Totals struct {
	Runs        int           `json:"total_runs"`
	Inserted    int           `json:"inserted"`
	PassThrough int           `json:"passthrough"`
	Errors      int           `json:"errors"`
	Bytes       int64         `json:"total_bytes"`
	Longest     time.Duration `json:"longest_run_ns"`
}

// ListOptions selects a page of runs, newest first.
type ListOptions struct {
	Limit int
	Start int
}

// DefaultLimit is used when ListOptions.Limit is not positive.
const DefaultLimit = 50

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Start < 0 {
		o.Start = 0
	}
	return o
}

// Store persists runs.
type Store interface {
	Record(ctx context.Context, run Run) (Run, error)
	List(ctx context.Context, opts ListOptions) ([]Run, error)
	Get(ctx context.Context, id string) (Run, error)
	Delete(ctx context.Context, id string) error
	Totals(ctx context.Context) (Totals, error)
	Close() error
}

// prepare fills the ID and start time of a run about to be stored.
func prepare(run Run) Run {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return run
}

func (t *Totals) add(run Run) {
	t.Runs++
	switch run.Result {
	case ResultInserted:
		t.Inserted++
	case ResultPassThrough:
		t.PassThrough++
	case ResultError:
		t.Errors++
	}
	t.Bytes += run.Bytes
	if run.Duration > t.Longest {
		t.Longest = run.Duration
	}
}

// Open returns a SQLite store for a non-empty path and a memory store
// otherwise.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(path)
}
