package logger

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type Log interface {
	WithField(name string, value interface{}) Log
	WithFields(fields Fields) Log
	Trace(args ...interface{})
	Tracef(msg string, args ...interface{})
	Debug(args ...interface{})
	Debugf(msg string, args ...interface{})
	Info(args ...interface{})
	Infof(msg string, args ...interface{})
	Warn(args ...interface{})
	Warnf(msg string, args ...interface{})
	Error(args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(msg string, args ...interface{})
	Panic(args ...interface{})
	Panicf(msg string, args ...interface{})
	Print(args ...interface{})
}

// Fields is a set of keys/values to include in a structured log message.
type Fields map[string]interface{}

// LogFactory produces a logger that can be used to log messages for the
// specified subsystem.
type LogFactory func(subsystem string) Log

// LogrusLogger is a Log implementation that using the Logrus library.
type LogrusLogger struct {
	*logrus.Entry
}

func (l *LogrusLogger) WithField(name string, value interface{}) Log {
	fields := map[string]interface{}{name: value}
	return &LogrusLogger{Entry: l.Entry.WithFields(fields)}
}

func (l *LogrusLogger) WithFields(fields Fields) Log {
	return &LogrusLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

const logTimestampFormat = "2006-01-02 15:04:05"

// MakeLogrusLogFactoryStdOut creates a log factory that writes to stdout.
func MakeLogrusLogFactoryStdOut(logRegistry *LogRegistry) LogFactory {
	return MakeLogrusLogFactory(logRegistry, os.Stdout)
}

// MakeLogrusLogFactory creates a log factory that writes to w. Log lines are text formatted when w
// is a terminal and JSON formatted otherwise, so that log shippers can parse them.
func MakeLogrusLogFactory(logRegistry *LogRegistry, w io.Writer) LogFactory {
	if file, ok := w.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		return makeLogrusLogFactory(logRegistry, w, true, &logrus.TextFormatter{
			TimestampFormat: logTimestampFormat,
			FullTimestamp:   true,
			DisableQuote:    true, // logrus quotes every value on Windows terminals otherwise
		})
	}
	return makeLogrusLogFactory(logRegistry, w, true, &logrus.JSONFormatter{TimestampFormat: logTimestampFormat})
}

// MakeLogrusLogFactoryPlain creates a log factory that writes very plain-looking log lines to w,
// with no timestamp and no system field. Intended for command line tools.
func MakeLogrusLogFactoryPlain(logRegistry *LogRegistry, w io.Writer) LogFactory {
	return makeLogrusLogFactory(logRegistry, w, false, &logrus.TextFormatter{DisableTimestamp: true})
}

// MakeLogrusLogFactoryToWriter creates a log factory that writes text-formatted log lines to w.
// Tests use this to capture and assert on log output.
func MakeLogrusLogFactoryToWriter(logRegistry *LogRegistry, w io.Writer) LogFactory {
	return makeLogrusLogFactory(logRegistry, w, true, &logrus.TextFormatter{
		TimestampFormat: logTimestampFormat,
		FullTimestamp:   true,
		DisableQuote:    true,
	})
}

func makeLogrusLogFactory(logRegistry *LogRegistry, w io.Writer, systemField bool, formatter logrus.Formatter) LogFactory {
	return func(subsystem string) Log {
		log := logrus.New()
		log.SetOutput(w)
		log.SetFormatter(formatter)
		fields := logrus.Fields{}
		if systemField {
			fields["system"] = subsystem
		}
		logRegistry.RegisterLogger(subsystem, log)
		return &LogrusLogger{Entry: log.WithFields(fields)}
	}
}

// NoOpLog implements the Log interface without actually performing any logging or other actions.
type NoOpLog struct {
}

func NewNoOpLog() *NoOpLog {
	return &NoOpLog{}
}

// NoOpLogFactory is a LogFactory function that always returns a NoOpLog, for when logging is not required.
func NoOpLogFactory(subsystem string) Log {
	return NewNoOpLog()
}

func (l *NoOpLog) WithField(name string, value interface{}) Log { return NewNoOpLog() }
func (l *NoOpLog) WithFields(fields Fields) Log                 { return NewNoOpLog() }
func (l *NoOpLog) Trace(args ...interface{})                    {}
func (l *NoOpLog) Tracef(msg string, args ...interface{})       {}
func (l *NoOpLog) Debug(args ...interface{})                    {}
func (l *NoOpLog) Debugf(msg string, args ...interface{})       {}
func (l *NoOpLog) Info(args ...interface{})                     {}
func (l *NoOpLog) Infof(msg string, args ...interface{})        {}
func (l *NoOpLog) Warn(args ...interface{})                     {}
func (l *NoOpLog) Warnf(msg string, args ...interface{})        {}
func (l *NoOpLog) Error(args ...interface{})                    {}
func (l *NoOpLog) Errorf(msg string, args ...interface{})       {}
func (l *NoOpLog) Fatal(args ...interface{})                    {}
func (l *NoOpLog) Fatalf(msg string, args ...interface{})       {}
func (l *NoOpLog) Panic(args ...interface{})                    {}
func (l *NoOpLog) Panicf(msg string, args ...interface{})       {}
func (l *NoOpLog) Print(args ...interface{})                    {}
