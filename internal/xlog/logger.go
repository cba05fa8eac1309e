// Package xlog builds per-component loggers, one per subsystem instance
// (e.g. "ME exchange-1", "CancelFairy for ME exchange-1"), mirroring the
// original Python service's LogFactory: a colorized console sink plus a
// dedicated, truncated-on-start log file per component.
package xlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Dir is the root directory under which per-component log files are
// written, mirroring the original's os.getcwd()+"/logs/".
var Dir = "logs"

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// New returns a logger tagged with the given component name, writing to
// both stderr (colorized, human-readable) and a truncated log file at
// <Dir>/<subdir>/<name>.log.
//
// subdir groups files the way the original grouped them per subsystem
// (e.g. "engine_logs", "cancelfairy_logs", "exchange_logs").
func New(subdir, name string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}

	writers := []zerolog.LevelWriter{console}

	if f := openLogFile(subdir, name); f != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: "2006-01-02 15:04:05"})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Str("component", name).Logger()
}

// openLogFile creates (truncating) <Dir>/<subdir>/<name>.log, logging to
// stderr and returning nil if the directory can't be created — logging
// must never prevent the process from starting.
func openLogFile(subdir, name string) *os.File {
	dir := filepath.Join(Dir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "xlog: could not create log directory %s: %v\n", dir, err)
		return nil
	}

	path := filepath.Join(dir, name+".log")
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xlog: could not create log file %s: %v\n", path, err)
		return nil
	}
	return f
}
