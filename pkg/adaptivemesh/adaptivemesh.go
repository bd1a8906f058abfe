// Package adaptivemesh sizes a RepRapFirmware mesh probe (M557) to the
// printed area of a sliced G-code stream.
//
// The stream is handed over as ordered layer blocks. A single scan over every
// line finds the bounding box of model extrusion after the first layer
// marker; the box is padded, clamped to the bed, shifted by the user offsets
// and written in place of the ;MESH_CALC marker together with a diagnostic
// comment.
//
// Usage:
//
//	res := adaptivemesh.Process(layers, adaptivemesh.Offsets{X: 0, Y: 0})
//	if res.Found {
//		fmt.Println(res.Command)
//	}
//	write(res.Layers)
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package adaptivemesh

// Result reports one run over a layer sequence.
type Result struct {
	// Layers is the output sequence. When nothing was found it is the input
	// slice itself.
	Layers []string

	Scan ScanResult

	// Found mirrors Scan.Found.
	Found bool

	// Command is only meaningful when Found is true.
	Command MeshCommand

	Offsets Offsets

	// Inserted counts the blocks whose marker was replaced.
	Inserted int
}

// Process runs the scanner and, if model geometry was found, synthesizes and
// inserts the mesh command.
func Process(layers []string, off Offsets) Result {
	scan := Scan(layers)
	res := Result{
		Layers:  layers,
		Scan:    scan,
		Found:   scan.Found,
		Offsets: off,
	}
	if !scan.Found {
		return res
	}

	res.Command = Synthesize(scan.Box, scan.BedWidth, scan.BedHeight, off)
	res.Layers, res.Inserted = Insert(layers, res.Command)
	return res
}

// Execute is the host-facing entry point: offsets come from p (zero on
// failure) and only the rewritten layers are returned.
func Execute(layers []string, p SettingsProvider) []string {
	off, _ := ResolveOffsets(p)
	return Process(layers, off).Layers
}
