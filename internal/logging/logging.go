// Package logging configures the standard library logger to tee to stdout
// and a file, ported verbatim in style from the teacher's
// go/config/logging.go.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// LogLevel stores the effective log level (informational only, no
// enforcement — nothing in this module filters log lines by level).
var LogLevel = ""

const (
	defaultLogLevel = "INFO"
	defaultLogFile  = "logs/cachecore.log"
)

// Setup configures the standard library logger to write to both stdout and
// a file, creating the log file's directory if necessary.
func Setup(level, file string) error {
	if level == "" {
		level = defaultLogLevel
	}
	if file == "" {
		file = defaultLogFile
	}

	dir := filepath.Dir(file)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	LogLevel = level
	return nil
}
