// Package log provides named, leveled loggers for the pipeline components.
// Kernel instances log under their device name so interleaved output from
// concurrently running instances can be told apart.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

type Level uint8

// The levels that can be passed to SetLevel and SetModuleLevel.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var levelNames = [...]string{"debug", "info", "notice", "warning", "error"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// ParseLevel converts a level name (case insensitive) into a Level.
func ParseLevel(name string) (Level, error) {
	for idx, levelName := range levelNames {
		if strings.EqualFold(name, levelName) {
			return Level(idx), nil
		}
	}
	return 0, fmt.Errorf("log: unknown level %q", name)
}

func (l Level) backendLevel() logging.Level {
	switch l {
	case Debug:
		return logging.DEBUG
	case Info:
		return logging.INFO
	case Warning:
		return logging.WARNING
	case Error:
		return logging.ERROR
	}
	return logging.NOTICE
}

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
)

var plainFormat = logging.MustStringFormatter(
	`[%{module}] [%{level:.4s}] %{message}`,
)

var (
	mu             sync.Mutex
	leveledBackend logging.LeveledBackend
	globalLevel    = Notice
	moduleLevels   = map[string]Level{}
)

// Logger is implemented by all loggers returned by this package.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// New returns the logger for a module.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// ForDevice returns the logger of a component instance bound to a device,
// e.g. "gipuma (GPU:0)".
func ForDevice(component, deviceName string) Logger {
	return New(fmt.Sprintf("%s (%s)", component, deviceName))
}

// SetSink redirects all output to sink. Terminal sinks get colored output.
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	sinkFormat := plainFormat
	if f, ok := sink.(*os.File); ok && (f == os.Stderr || f == os.Stdout) {
		sinkFormat = format
	}

	backend := logging.NewLogBackend(sink, "", 0)
	leveledBackend = logging.AddModuleLevel(logging.NewBackendFormatter(backend, sinkFormat))
	applyLevels()
	logging.SetBackend(leveledBackend)
}

// SetLevel sets the verbosity of all modules without an explicit override.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()

	globalLevel = level
	applyLevels()
}

// SetModuleLevel overrides the verbosity of a single module.
func SetModuleLevel(module string, level Level) {
	mu.Lock()
	defer mu.Unlock()

	moduleLevels[module] = level
	applyLevels()
}

// Must be called with mu held.
func applyLevels() {
	leveledBackend.SetLevel(globalLevel.backendLevel(), "")
	for module, level := range moduleLevels {
		leveledBackend.SetLevel(level.backendLevel(), module)
	}
}

func init() {
	SetSink(os.Stderr)
}
