// Bounds scanning for adaptive mesh generation
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package adaptivemesh

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Directive strings recognized in slicer output.
const (
	LayerZeroMarker    = ";LAYER:0"
	BedLimitsDirective = ";BED_LIMITS"
	FeatureTypePrefix  = ";TYPE:"
	InsertionMarker    = ";MESH_CALC"
)

// Default bed size used until a bed limits directive is seen.
const (
	DefaultBedWidth  = 300.0
	DefaultBedHeight = 300.0
)

// allowedFeatures are the feature types whose extrusion counts as model
// geometry. Skirt, brim and travel are deliberately absent.
var allowedFeatures = map[string]bool{
	"WALL-OUTER":        true,
	"WALL-INNER":        true,
	"SKIN":              true,
	"FILL":              true,
	"SUPPORT":           true,
	"SUPPORT-INTERFACE": true,
	"PRIME-TOWER":       true,
}

var (
	// signedNumber is the grammar for move coordinates.
	signedNumber = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)$`)

	// bedLimitField matches one X or Y field of a bed limits directive.
	bedLimitField = regexp.MustCompile(`([XY])(\d+(?:\.\d*)?|\.\d+)`)
)

// IsAllowedFeature reports whether moves under the given ;TYPE: name are
// absorbed into the bounding box.
func IsAllowedFeature(name string) bool {
	return allowedFeatures[name]
}

// BoundingBox is an axis-aligned rectangle that only ever grows.
type BoundingBox struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// EmptyBox returns a box that any point will widen.
func EmptyBox() BoundingBox {
	return BoundingBox{
		MinX: math.Inf(1),
		MaxX: math.Inf(-1),
		MinY: math.Inf(1),
		MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether no point has been absorbed.
func (b BoundingBox) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Extend widens the box to include (x, y).
func (b *BoundingBox) Extend(x, y float64) {
	b.MinX = math.Min(b.MinX, x)
	b.MaxX = math.Max(b.MaxX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxY = math.Max(b.MaxY, y)
}

// ParseState is the scanner state threaded through every line.
type ParseState struct {
	BedWidth  float64
	BedHeight float64

	// EnteredFirstLayer flips once on the layer zero marker and never reverts.
	EnteredFirstLayer bool

	// FeatureAllowed holds until the next ;TYPE: line.
	FeatureAllowed bool

	Found bool
	Box   BoundingBox
}

// NewParseState returns the state at the start of a stream.
func NewParseState() *ParseState {
	return &ParseState{
		BedWidth:  DefaultBedWidth,
		BedHeight: DefaultBedHeight,
		Box:       EmptyBox(),
	}
}

// ScanResult is what the scanner reports at the end of a stream.
type ScanResult struct {
	Found     bool
	Box       BoundingBox
	BedWidth  float64
	BedHeight float64

	// Moves counts the lines absorbed into Box.
	Moves int
}

// Scan runs the bounds scanner over the ordered layer blocks.
func Scan(layers []string) ScanResult {
	st := NewParseState()
	moves := 0
	for _, layer := range layers {
		for _, line := range strings.Split(layer, "\n") {
			if st.Feed(line) {
				moves++
			}
		}
	}
	return ScanResult{
		Found:     st.Found,
		Box:       st.Box,
		BedWidth:  st.BedWidth,
		BedHeight: st.BedHeight,
		Moves:     moves,
	}
}

// Feed advances the state by one line and reports whether the line's
// coordinates were absorbed into the bounding box.
func (st *ParseState) Feed(line string) bool {
	line = strings.TrimRight(line, "\r")

	if strings.Contains(line, LayerZeroMarker) {
		st.EnteredFirstLayer = true
	}

	if strings.Contains(line, BedLimitsDirective) {
		if w, h, ok := parseBedLimits(line); ok {
			st.BedWidth = w
			st.BedHeight = h
		}
	}

	if strings.HasPrefix(line, FeatureTypePrefix) {
		st.FeatureAllowed = IsAllowedFeature(featureName(line))
	}

	if !st.EnteredFirstLayer || !st.FeatureAllowed {
		return false
	}

	x, y, ok := parseExtrusionMove(line)
	if !ok {
		return false
	}
	st.Found = true
	st.Box.Extend(x, y)
	return true
}

// featureName extracts the type name from a ";TYPE:NAME" line. Text after a
// second colon is ignored.
func featureName(line string) string {
	name := strings.TrimPrefix(line, FeatureTypePrefix)
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// parseBedLimits reads the bed size from a directive line. The width is the
// last X field after the keyword and the height the last Y field after that.
func parseBedLimits(line string) (float64, float64, bool) {
	idx := strings.Index(line, BedLimitsDirective)
	rest := line[idx+len(BedLimitsDirective):]

	fields := bedLimitField.FindAllStringSubmatchIndex(rest, -1)
	lastX := -1
	for i, m := range fields {
		if rest[m[2]:m[3]] == "X" {
			lastX = i
		}
	}
	if lastX < 0 {
		return 0, 0, false
	}
	lastY := -1
	for i := lastX + 1; i < len(fields); i++ {
		if rest[fields[i][2]:fields[i][3]] == "Y" {
			lastY = i
		}
	}
	if lastY < 0 {
		return 0, 0, false
	}

	xm, ym := fields[lastX], fields[lastY]
	w, err := strconv.ParseFloat(rest[xm[4]:xm[5]], 64)
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.ParseFloat(rest[ym[4]:ym[5]], 64)
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

// parseExtrusionMove returns the X/Y target of a G0/G1 line that carries an
// E field. Comments are stripped before the fields are read.
func parseExtrusionMove(line string) (float64, float64, bool) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return 0, 0, false
	}
	if words[0] != "G0" && words[0] != "G1" {
		return 0, 0, false
	}

	var (
		x, y         float64
		hasX, hasY   bool
		hasExtrusion bool
	)
	for _, w := range words[1:] {
		if len(w) == 0 {
			continue
		}
		switch w[0] {
		case 'E', 'e':
			hasExtrusion = true
		case 'X', 'x':
			if v, ok := parseSigned(w[1:]); ok {
				x, hasX = v, true
			}
		case 'Y', 'y':
			if v, ok := parseSigned(w[1:]); ok {
				y, hasY = v, true
			}
		}
	}
	if !hasExtrusion || !hasX || !hasY {
		return 0, 0, false
	}
	return x, y, true
}

func parseSigned(s string) (float64, bool) {
	if !signedNumber.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
