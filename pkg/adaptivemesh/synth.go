// Mesh command synthesis
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package adaptivemesh

import (
	"fmt"
	"math"
	"strings"
)

// Fixed synthesis parameters. These are not user settings.
const (
	// Padding is added around the printed area on every side.
	Padding = 10.0

	// TargetSpacing is the probe spacing used when the area is large enough.
	TargetSpacing = 50.0

	// MinSpacing is the floor applied to the derived spacing.
	MinSpacing = 10.0

	// DiagnosticPrefix starts the comment line written above the command.
	DiagnosticPrefix = "; [AdaptiveMesh] bounds"
)

// Offsets are the user-supplied shifts added to the mesh region.
type Offsets struct {
	X int
	Y int
}

// Range is a closed coordinate interval.
type Range struct {
	Min float64
	Max float64
}

// Span returns Max-Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// MeshCommand is the derived M557 probe grid.
type MeshCommand struct {
	X       Range
	Y       Range
	Spacing int

	// Bounds is the padded and clamped region before offsets were applied.
	Bounds BoundingBox
}

// String formats the command as a single G-code line.
func (m MeshCommand) String() string {
	return fmt.Sprintf("M557 X%.1f:%.1f Y%.1f:%.1f S%d",
		m.X.Min, m.X.Max, m.Y.Min, m.Y.Max, m.Spacing)
}

// Diagnostic formats the comment reporting the pre-offset bounds.
func (m MeshCommand) Diagnostic() string {
	return fmt.Sprintf("%s X%.1f:%.1f Y%.1f:%.1f", DiagnosticPrefix,
		m.Bounds.MinX, m.Bounds.MaxX, m.Bounds.MinY, m.Bounds.MaxY)
}

// Snippet is the text that replaces the insertion marker.
func (m MeshCommand) Snippet() string {
	return m.Diagnostic() + "\n" + m.String()
}

// Synthesize derives the mesh command for a found bounding box.
func Synthesize(box BoundingBox, bedWidth, bedHeight float64, off Offsets) MeshCommand {
	padded := BoundingBox{
		MinX: math.Max(0, box.MinX-Padding),
		MaxX: math.Min(bedWidth, box.MaxX+Padding),
		MinY: math.Max(0, box.MinY-Padding),
		MaxY: math.Min(bedHeight, box.MaxY+Padding),
	}

	// Offsets are intentionally not clamped to the bed.
	xr := Range{Min: padded.MinX + float64(off.X), Max: padded.MaxX + float64(off.X)}
	yr := Range{Min: padded.MinY + float64(off.Y), Max: padded.MaxY + float64(off.Y)}

	return MeshCommand{
		X:       xr,
		Y:       yr,
		Spacing: probeSpacing(xr.Span(), yr.Span()),
		Bounds:  padded,
	}
}

// probeSpacing picks the grid spacing: the tighter of the per-axis limits,
// never below MinSpacing, truncated to an integer.
func probeSpacing(spanX, spanY float64) int {
	spacing := TargetSpacing
	if spanX < TargetSpacing {
		spacing = spanX / 2
	}
	if spanY < TargetSpacing {
		if half := spanY / 2; half < spacing {
			spacing = half
		}
	}
	if spacing < MinSpacing {
		spacing = MinSpacing
	}
	return int(spacing)
}

// Insert replaces every insertion marker in every block with the command
// snippet. Blocks without a marker are returned untouched. The returned count
// is the number of blocks that were rewritten.
func Insert(layers []string, cmd MeshCommand) ([]string, int) {
	out := make([]string, len(layers))
	snippet := cmd.Snippet()
	rewritten := 0
	for i, layer := range layers {
		if strings.Contains(layer, InsertionMarker) {
			layer = strings.ReplaceAll(layer, InsertionMarker, snippet)
			rewritten++
		}
		out[i] = layer
	}
	return out, rewritten
}
