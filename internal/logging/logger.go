// Package logging provides the leveled console logger with an optional
// plain-text file sink. It wraps logrus; the console shows colored level
// tags, the file always receives uncolored lines.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/term"
)

const timeLayout = "2006-01-02 15:04:05"

// tagKey carries the display tag (SUCCESS is not a logrus level).
const tagKey = "tag"

// Logger provides leveled, optionally colored logging with optional file sink.
type Logger struct {
	mu   sync.Mutex
	base *logrus.Logger
	file *os.File
}

// NewLogger configures colors from cfg and optionally opens LogFile.
// In JSON mode all console lines go to stderr so stdout carries only events.
// Call Close() when done if LogFile was set.
func NewLogger(cfg *config.Config) (*Logger, error) {
	term.Configure(cfg.ColorMode)

	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.DebugLevel)
	stdout := io.Writer(os.Stdout)
	if cfg.JSON {
		stdout = os.Stderr
	}
	base.AddHook(&consoleHook{stdout: stdout, stderr: os.Stderr})

	l := &Logger{base: base}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		base.AddHook(&fileHook{w: f})
	}
	return l, nil
}

// Discard returns a Logger that writes nowhere. Used by tests and by
// callers that embed the pipeline without console output.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{base: base}
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) log(level logrus.Level, tag, format string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.WithField(tagKey, tag).Log(level, fmt.Sprintf(format, args...))
}

// Info logs at INFO level (blue).
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(logrus.InfoLevel, "INFO", format, args)
}

// Success logs at SUCCESS level (green).
func (l *Logger) Success(format string, args ...interface{}) {
	l.log(logrus.InfoLevel, "SUCCESS", format, args)
}

// Warn logs at WARN level (yellow).
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(logrus.WarnLevel, "WARN", format, args)
}

// Error logs at ERROR level (red), to stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(logrus.ErrorLevel, "ERROR", format, args)
}

// Tool logs external tool output at TOOL level (magenta).
func (l *Logger) Tool(format string, args ...interface{}) {
	l.log(logrus.InfoLevel, "TOOL", format, args)
}

// Debug logs at DEBUG level (cyan) only when verbose; no-op otherwise.
func (l *Logger) Debug(verbose bool, format string, args ...interface{}) {
	if !verbose {
		return
	}
	l.log(logrus.DebugLevel, "DEBUG", format, args)
}

// --- hooks ---

// consoleHook renders entries as "<ts> [LEVEL] text" with a colored tag.
type consoleHook struct {
	stdout io.Writer
	stderr io.Writer
}

func (h *consoleHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *consoleHook) Fire(e *logrus.Entry) error {
	tag := entryTag(e)
	out := h.stdout
	if e.Level <= logrus.ErrorLevel {
		out = h.stderr
	}
	_, err := io.WriteString(out, e.Time.Format(timeLayout)+" "+tagColor(tag).Sprint("["+tag+"]")+" "+e.Message+"\n")
	return err
}

// fileHook appends the uncolored line to the log file.
type fileHook struct {
	w io.Writer
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	var b bytes.Buffer
	b.WriteString(e.Time.Format(timeLayout))
	b.WriteString(" [" + entryTag(e) + "] ")
	b.WriteString(e.Message)
	b.WriteByte('\n')
	_, err := h.w.Write(b.Bytes())
	return err
}

func entryTag(e *logrus.Entry) string {
	if tag, ok := e.Data[tagKey].(string); ok && tag != "" {
		return tag
	}
	return strings.ToUpper(e.Level.String())
}

func tagColor(tag string) *color.Color {
	switch tag {
	case "ERROR":
		return term.Red
	case "SUCCESS":
		return term.Green
	case "WARN":
		return term.Yellow
	case "TOOL":
		return term.Magenta
	case "DEBUG":
		return term.Cyan
	default:
		return term.Blue
	}
}
