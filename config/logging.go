// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	// ErrLevel=1 - only errors.
	ErrLevel LogLevel = iota + 1

	// WarnLevel=2 - warnings and errors. A missing marker routine is reported
	// at this level.
	WarnLevel

	// InfoLevel=3 - high-level progress and results.
	InfoLevel

	// DebugLevel=4 - one line per skipped use or rejected argument.
	DebugLevel

	// TraceLevel=5 - one line per call site and table update.
	TraceLevel
)

// LogGroup is a set of loggers, one per level, that only print when the group
// is configured at that level or above.
//
// A nil *LogGroup is valid and discards everything.
type LogGroup struct {
	level LogLevel
	trace *log.Logger
	debug *log.Logger
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
}

// NewLogGroup returns a log group writing to stderr at the level set in config.
func NewLogGroup(config *Config) *LogGroup {
	return NewLogGroupTo(os.Stderr, LogLevel(config.LogLevel))
}

// NewLogGroupTo returns a log group writing to w at the given level.
func NewLogGroupTo(w io.Writer, level LogLevel) *LogGroup {
	return &LogGroup{
		level: level,
		trace: log.New(w, "[TRACE] ", 0),
		debug: log.New(w, "[DEBUG] ", 0),
		info:  log.New(w, "[INFO] ", 0),
		warn:  log.New(w, "[WARN] ", 0),
		err:   log.New(w, "[ERROR] ", 0),
	}
}

// Level returns the level of l.
func (l *LogGroup) Level() LogLevel {
	if l == nil {
		return 0
	}
	return l.level
}

// WithPrefix returns a log group at the same level and output as l whose
// messages start with prefix, after the level tag.  It returns nil if l is
// nil.
func (l *LogGroup) WithPrefix(prefix string) *LogGroup {
	if l == nil {
		return nil
	}
	sub := func(lg *log.Logger) *log.Logger {
		return log.New(lg.Writer(), lg.Prefix()+prefix, lg.Flags())
	}
	return &LogGroup{
		level: l.level,
		trace: sub(l.trace),
		debug: sub(l.debug),
		info:  sub(l.info),
		warn:  sub(l.warn),
		err:   sub(l.err),
	}
}

// Tracef prints to the trace logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Tracef(format string, v ...any) {
	if l.Level() >= TraceLevel {
		l.trace.Printf(format, v...)
	}
}

// Debugf prints to the debug logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Debugf(format string, v ...any) {
	if l.Level() >= DebugLevel {
		l.debug.Printf(format, v...)
	}
}

// Infof prints to the info logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Infof(format string, v ...any) {
	if l.Level() >= InfoLevel {
		l.info.Printf(format, v...)
	}
}

// Warnf prints to the warning logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Warnf(format string, v ...any) {
	if l.Level() >= WarnLevel {
		l.warn.Printf(format, v...)
	}
}

// Errorf prints to the error logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Errorf(format string, v ...any) {
	if l.Level() >= ErrLevel {
		l.err.Printf(format, v...)
	}
}
