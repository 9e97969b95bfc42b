// =================================================================================
//
//			split51 - rear-channel loopback router
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package logging installs split51's default slog logger: a text
// handler writing to a log file beside the executable, plus a copy of
// every record to stderr unless Options.Quiet is set. Unlike the teacher's shared.Logging, nothing here hijacks
// os.Stdout — there is no TUI downstream competing for the terminal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const logFileName = "split51.log"

// Options controls where and how verbosely the default logger writes.
type Options struct {
	// Quiet suppresses the stderr copy of the log; the log file is
	// always written regardless.
	Quiet bool
	Debug bool
}

// Init opens (creating if necessary) the log file beside the running
// executable, installs a combined file+console slog.Logger as the
// package default, and returns it along with a closer the caller
// should defer.
func Init(opts Options) (*slog.Logger, func(), error) {
	path, err := logFilePath()
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = f
	if !opts.Quiet {
		out = io.MultiWriter(f, os.Stderr)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, func() { f.Close() }, nil
}

func logFilePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), logFileName), nil
}
