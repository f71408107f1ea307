package slink

import (
	"fmt"
	"time"

	"github.com/m-lab/go/logx"
)

// LogLevel mirrors the leveled log sink the core calls into; the core
// never decides *where* logs go, only at what level/verbosity it is
// logging.
type LogLevel int

const (
	LogError LogLevel = iota
	LogInfo
	LogDebug
)

// Logger is the leveled log sink collaborator named in the design: the
// core only needs `log(level, verbosity, message)`.
type Logger interface {
	Log(level LogLevel, verbosity int, msg string)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(level LogLevel, verbosity int, msg string)

// Log implements Logger.
func (f LoggerFunc) Log(level LogLevel, verbosity int, msg string) { f(level, verbosity, msg) }

// defaultLogger rate-limits its output through a logx.LogEvery, the
// same guard the teacher repo's snapshot.go uses for its one
// recurring "memInfo data is larger than struct" line, applied here
// across every message so a flapping connection (reconnect loop,
// suppressed keepalive) cannot flood output.
type defaultLogger struct {
	prefix    string
	verbosity int
	every     *logx.LogEvery
}

// NewDefaultLogger returns a Logger prefixed with name, logging at most
// once per second.
func NewDefaultLogger(name string) Logger {
	return &defaultLogger{prefix: name, every: logx.NewLogEvery(nil, time.Second)}
}

// SetVerbosity sets the highest message verbosity passed through for
// LogDebug/LogInfo; at 0 only their verbosity-0 messages pass. LogError
// messages always pass.
func (d *defaultLogger) SetVerbosity(v int) { d.verbosity = v }

func (d *defaultLogger) Log(level LogLevel, verbosity int, msg string) {
	if level != LogError && verbosity > d.verbosity {
		return
	}
	d.every.Println(fmt.Sprintf("%s[%s] %s", d.prefix, levelName(level), msg))
}

func levelName(l LogLevel) string {
	switch l {
	case LogError:
		return "ERROR"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	default:
		return "?"
	}
}
