// Log file output with size-based rotation
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the default logger for a command.
type Options struct {
	// Level is a level name: DEBUG, INFO, WARN or ERROR.
	Level string

	// Format is "text" or "json".
	Format string

	// File, when set, receives log output in addition to stderr.
	File string

	// MaxSize is the size in megabytes before the file is rotated.
	MaxSize int

	// MaxBackups is the number of rotated files to retain.
	MaxBackups int

	// MaxAge is the number of days to retain rotated files.
	MaxAge int

	// Compress gzips rotated files.
	Compress bool

	// Console receives log output besides the file. Defaults to stderr.
	Console io.Writer
}

// DefaultOptions returns the options used when no config is present.
func DefaultOptions() Options {
	return Options{
		Level:      "INFO",
		Format:     "text",
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     28,
	}
}

// NewFileWriter returns a rotating writer for opts.File.
func NewFileWriter(opts Options) (io.WriteCloser, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("log file name is required")
	}
	def := DefaultOptions()
	if opts.MaxSize <= 0 {
		opts.MaxSize = def.MaxSize
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = 0
	}
	return &lj.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}, nil
}

// Setup builds a logger from opts, installs it as the default logger
// and applies environment overrides. The returned closer releases the
// log file, if any.
func Setup(prefix string, opts Options) (*Logger, io.Closer, error) {
	logger := New(prefix)
	if opts.Level != "" {
		logger.SetLevel(ParseLevel(opts.Level))
	}
	if opts.Format != "" {
		logger.SetFormat(ParseFormat(opts.Format))
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	} else if console != io.Writer(os.Stderr) {
		logger.SetColorize(false)
	}
	logger.SetWriter(console)

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		fw, err := NewFileWriter(opts)
		if err != nil {
			return nil, nil, err
		}
		logger.SetWriter(io.MultiWriter(console, fw))
		// ANSI codes would end up in the file.
		logger.SetColorize(false)
		closer = fw
	}

	ConfigureFromEnv(logger)
	SetDefaultLogger(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
