// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mlog provides a simple global leveled logger for modguard.
// Time/date are omitted by default; an external supervisor (systemd or
// a daily-rolling sink) is expected to add them.
package mlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logDateTime bool

var (
	TraceWriter io.Writer = os.Stderr
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	TracePrefix string = "<7>[TRACE]    "
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	TraceLog *log.Logger = log.New(TraceWriter, TracePrefix, 0)
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	CritLog  *log.Logger = log.New(CritWriter, CritPrefix, log.Llongfile)

	TraceTimeLog *log.Logger = log.New(TraceWriter, TracePrefix, log.LstdFlags)
	DebugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	WarnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	CritTimeLog  *log.Logger = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
)

// SetLevel sets the minimum level that reaches the underlying writers.
// Levels below the threshold are redirected to io.Discard, matching the
// cost-free-when-disabled behavior expected of a hot-path logger.
func SetLevel(lvl string) {
	switch lvl {
	case "critical", "crit":
		ErrWriter = io.Discard
		fallthrough
	case "error", "err":
		WarnWriter = io.Discard
		fallthrough
	case "warn", "warning":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
		fallthrough
	case "debug":
		TraceWriter = io.Discard
	case "trace":
		// nothing discarded
	default:
		fmt.Fprintf(os.Stderr, "mlog: invalid level %q, using \"info\"\n", lvl)
		SetLevel("info")
		return
	}
	rebuild()
}

// SetOutput redirects every level's writer to w (e.g. a file opened for
// logging.filename). Level thresholds set by a prior SetLevel call are
// preserved by re-applying io.Discard where appropriate.
func SetOutput(w io.Writer) {
	pick := func(cur io.Writer) io.Writer {
		if cur == io.Discard {
			return io.Discard
		}
		return w
	}
	TraceWriter, DebugWriter, InfoWriter = pick(TraceWriter), pick(DebugWriter), pick(InfoWriter)
	WarnWriter, ErrWriter, CritWriter = pick(WarnWriter), pick(ErrWriter), pick(CritWriter)
	rebuild()
}

func SetLogDateTime(b bool) { logDateTime = b }

func rebuild() {
	TraceLog = log.New(TraceWriter, TracePrefix, 0)
	DebugLog = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog = log.New(InfoWriter, InfoPrefix, 0)
	WarnLog = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	CritLog = log.New(CritWriter, CritPrefix, log.Llongfile)
	TraceTimeLog = log.New(TraceWriter, TracePrefix, log.LstdFlags)
	DebugTimeLog = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	WarnTimeLog = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	CritTimeLog = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
}

func str(v ...interface{}) string                 { return fmt.Sprint(v...) }
func strf(format string, v ...interface{}) string { return fmt.Sprintf(format, v...) }

func Trace(v ...interface{}) { emit(TraceWriter, TraceLog, TraceTimeLog, str(v...)) }
func Debug(v ...interface{}) { emit(DebugWriter, DebugLog, DebugTimeLog, str(v...)) }
func Info(v ...interface{})  { emit(InfoWriter, InfoLog, InfoTimeLog, str(v...)) }
func Warn(v ...interface{})  { emit(WarnWriter, WarnLog, WarnTimeLog, str(v...)) }
func Error(v ...interface{}) { emit(ErrWriter, ErrLog, ErrTimeLog, str(v...)) }
func Crit(v ...interface{})  { emit(CritWriter, CritLog, CritTimeLog, str(v...)) }

func Tracef(format string, v ...interface{}) { emit(TraceWriter, TraceLog, TraceTimeLog, strf(format, v...)) }
func Debugf(format string, v ...interface{}) { emit(DebugWriter, DebugLog, DebugTimeLog, strf(format, v...)) }
func Infof(format string, v ...interface{})  { emit(InfoWriter, InfoLog, InfoTimeLog, strf(format, v...)) }
func Warnf(format string, v ...interface{})  { emit(WarnWriter, WarnLog, WarnTimeLog, strf(format, v...)) }
func Errorf(format string, v ...interface{}) { emit(ErrWriter, ErrLog, ErrTimeLog, strf(format, v...)) }
func Critf(format string, v ...interface{})  { emit(CritWriter, CritLog, CritTimeLog, strf(format, v...)) }

// Fatal logs at error level then terminates the process with status 1,
// the way an unrecoverable auth failure ends the dispatcher per the
// error handling design.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

func emit(w io.Writer, plain, timed *log.Logger, out string) {
	if w == io.Discard {
		return
	}
	if logDateTime {
		timed.Output(3, out)
	} else {
		plain.Output(3, out)
	}
}
