// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the application-wide logger configured with JSON output.
var Log = logrus.New()

type contextHook struct{}

func (contextHook) Levels() []logrus.Level { return logrus.AllLevels }

func packageFromFunc(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		return fn[:i]
	}
	return fn
}

func (contextHook) Fire(e *logrus.Entry) error {
	if e.Caller == nil {
		return nil
	}
	pkg := packageFromFunc(e.Caller.Function)
	file := fmt.Sprintf("%s:%d", filepath.Base(e.Caller.File), e.Caller.Line)
	e.Data["package"] = pkg
	e.Data["file"] = file
	return nil
}

func init() {
	Log.SetReportCaller(true)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			function := filepath.Base(f.Function)
			file := fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			return function, file
		},
	})
	Log.AddHook(contextHook{})

	logPath := os.Getenv("DOODLEDOC_LOG_FILE")
	if logPath == "" {
		logPath = "doodledoc.log"
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		Log.SetOutput(os.Stdout)
	} else {
		mw := io.MultiWriter(os.Stdout, logFile)
		Log.SetOutput(mw)
	}

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := logrus.ParseLevel(levelStr); err == nil {
		Log.SetLevel(lvl)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}

// Fields is a convenience alias for structured log fields.
type Fields = logrus.Fields

// Logger is the narrow logging contract consumed by the core components,
// satisfied by the logrus-backed logger that New returns and by test
// doubles such as Noop.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
}

// logrusLogger adapts the package-wide logrus logger to the Logger
// interface, optionally scoped with a component name.
type logrusLogger struct {
	component string
}

// New returns a Logger that writes through the package-wide logrus logger,
// tagging every entry with component.
func New(component string) Logger {
	return logrusLogger{component: component}
}

func (l logrusLogger) entry(fields map[string]any) *logrus.Entry {
	f := logrus.Fields{}
	for k, v := range fields {
		f[k] = v
	}
	if l.component != "" {
		f["component"] = l.component
	}
	return Log.WithFields(f)
}

func (l logrusLogger) Info(msg string, fields map[string]any)  { l.entry(fields).Info(msg) }
func (l logrusLogger) Error(msg string, fields map[string]any) { l.entry(fields).Error(msg) }
func (l logrusLogger) Debug(msg string, fields map[string]any) { l.entry(fields).Debug(msg) }
func (l logrusLogger) Warn(msg string, fields map[string]any)  { l.entry(fields).Warn(msg) }

// Noop is a Logger that discards everything; used in tests that don't care
// about log output.
type Noop struct{}

func (Noop) Info(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
func (Noop) Debug(string, map[string]any) {}
func (Noop) Warn(string, map[string]any)  {}
