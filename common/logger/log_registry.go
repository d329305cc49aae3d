package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	defaultLogLevel = logrus.InfoLevel
	// AllSubsystems in a LogLevelConfig sets the level of every subsystem not named explicitly.
	AllSubsystems = "*"
)

var levelMap = map[string]logrus.Level{
	"trace":   logrus.TraceLevel,
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
	"fatal":   logrus.FatalLevel,
	"panic":   logrus.PanicLevel,
}

// LogLevelConfig is a comma separated list of subsystem=level pairs, e.g. "*=warning,VariableService=debug".
type LogLevelConfig string

// LogRegistry tracks the log level of each subsystem and the loggers made for them, so that
// levels can be changed while the server is running.
type LogRegistry struct {
	mu           sync.Mutex
	defaultLevel logrus.Level
	levels       map[string]logrus.Level
	loggers      map[string][]*logrus.Logger
}

// ListLogLevels returns a comma separated string listing valid log levels.
func ListLogLevels() string {
	names := make([]string, 0, len(levelMap))
	for name := range levelMap {
		names = append(names, fmt.Sprintf("%q", name))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func parseLevel(subsystem string, name string) (logrus.Level, error) {
	level, ok := levelMap[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("error invalid log level for %q: %q (expected one of %s)", subsystem, name, ListLogLevels())
	}
	return level, nil
}

func NewLogRegistry(config LogLevelConfig) (*LogRegistry, error) {
	r := &LogRegistry{
		defaultLevel: defaultLogLevel,
		levels:       make(map[string]logrus.Level),
		loggers:      make(map[string][]*logrus.Logger),
	}
	for _, pair := range strings.Split(string(config), ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		subsystem, name, found := strings.Cut(pair, "=")
		subsystem = strings.TrimSpace(subsystem)
		if !found || subsystem == "" {
			return nil, fmt.Errorf("error invalid log level format, expected subsystem=level: %q", pair)
		}
		level, err := parseLevel(subsystem, name)
		if err != nil {
			return nil, err
		}
		if subsystem == AllSubsystems {
			r.defaultLevel = level
		} else {
			r.levels[subsystem] = level
		}
	}
	return r, nil
}

// GetLogLevel returns the configured log level for the specified subsystem.
func (r *LogRegistry) GetLogLevel(subsystem string) logrus.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levelLocked(subsystem)
}

func (r *LogRegistry) levelLocked(subsystem string) logrus.Level {
	if level, ok := r.levels[subsystem]; ok {
		return level
	}
	return r.defaultLevel
}

// RegisterLogger sets logger to the subsystem's level and tracks it so SetLogLevel can change it later.
func (r *LogRegistry) RegisterLogger(subsystem string, logger *logrus.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger.SetLevel(r.levelLocked(subsystem))
	r.loggers[subsystem] = append(r.loggers[subsystem], logger)
}

// SetLogLevel changes the log level for a subsystem, or for every subsystem without a level of
// its own if subsystem is AllSubsystems. Loggers already made are updated too.
func (r *LogRegistry) SetLogLevel(subsystem string, levelName string) error {
	level, err := parseLevel(subsystem, levelName)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if subsystem == AllSubsystems {
		r.defaultLevel = level
	} else {
		r.levels[subsystem] = level
	}
	for name, loggers := range r.loggers {
		for _, logger := range loggers {
			logger.SetLevel(r.levelLocked(name))
		}
	}
	return nil
}
