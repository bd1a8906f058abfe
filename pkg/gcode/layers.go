// Package gcode splits sliced G-code into layer blocks and reads or
// writes it through optional gzip or zstd compression.
package gcode

import "strings"

// LayerPrefix starts a new layer block.
const LayerPrefix = ";LAYER:"

// Split cuts data into blocks. Text before the first layer line forms
// its own block; every other block starts at a line beginning with
// LayerPrefix. Line terminators stay with their lines,
// so Join(Split(data)) == data.
func Split(data string) []string {
	if data == "" {
		return nil
	}

	var blocks []string
	start := 0
	for pos := 0; pos < len(data); {
		end := strings.IndexByte(data[pos:], '\n')
		next := len(data)
		if end >= 0 {
			next = pos + end + 1
		}
		if pos > start && strings.HasPrefix(data[pos:], LayerPrefix) {
			blocks = append(blocks, data[start:pos])
			start = pos
		}
		pos = next
	}
	return append(blocks, data[start:])
}

// Join concatenates blocks back into a single stream.
func Join(blocks []string) string {
	return strings.Join(blocks, "")
}

// CountLayers returns the number of blocks that start a layer.
func CountLayers(blocks []string) int {
	n := 0
	for _, b := range blocks {
		if strings.HasPrefix(b, LayerPrefix) {
			n++
		}
	}
	return n
}
