package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	hosterrors "adaptive-mesh/pkg/errors"
	"adaptive-mesh/pkg/gcode"
)

// Stdio is the file name that selects stdin or stdout.
const Stdio = "-"

// ProcessFile filters the file at in and writes the result to out. An
// empty out rewrites in in place, keeping the compression found on
// input; any other output path is compressed according to its own
// extension. Stdio selects stdin or stdout.
func (p *Processor) ProcessFile(ctx context.Context, in, out string) (Report, error) {
	start := time.Now()
	name := in
	r := p.stdin
	mode := os.FileMode(0o644)

	if in == Stdio {
		name = "<stdin>"
		if out == "" {
			out = Stdio
		}
	} else {
		f, err := os.Open(in)
		if err != nil {
			return p.complete(ctx, start, Report{Name: name}, hosterrors.GCodeReadError(in, err))
		}
		defer f.Close()
		if fi, err := f.Stat(); err == nil {
			mode = fi.Mode().Perm()
		}
		r = f
	}

	rep, err := p.transform(ctx, name, r)
	if err != nil || p.dryRun {
		return p.complete(ctx, start, rep, err)
	}

	switch out {
	case Stdio:
		err = gcode.WriteAll(p.stdout, rep.Output, rep.Compression)
	case "", in:
		if rep.Mesh.Inserted == 0 {
			// Nothing changed; leave the file untouched.
			break
		}
		err = WriteFile(in, rep.Output, rep.Compression, mode)
	default:
		err = WriteFile(out, rep.Output, gcode.CompressionFor(out), mode)
	}
	if err != nil {
		target := out
		if target == "" {
			target = in
		}
		err = hosterrors.GCodeWriteError(target, err)
	}
	return p.complete(ctx, start, rep, err)
}

// WriteFile writes data to path through a temporary file in the same
// directory and renames it into place, so readers never see a partial
// file.
func WriteFile(path, data string, c gcode.Compression, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := gcode.WriteAll(tmp, data, c); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadFile returns the plain text of a possibly compressed G-code file.
func ReadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, _, err := gcode.ReadAll(f)
	return data, err
}
