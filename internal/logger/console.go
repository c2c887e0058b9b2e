// Package logger provides the leveled console logger used by the ptw CLI.
//
// ConsoleLogger satisfies both engine.Logger and lifecycle.Logger, so one
// instance reports evaluations, cross triggers, lifecycle transitions and
// refused actions. Output is prefixed with [HH:MM:SS] and is safe for
// concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger writes leveled, timestamped messages to a writer.
// Color output is enabled automatically for terminal output.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	now         func() time.Time
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		now:         time.Now,
	}
}

// isTerminal reports whether w is a TTY that should receive ANSI colors.
// NO_COLOR (via color.NoColor) always wins.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelValues[normalized]; ok {
		return normalized
	}
	return "info"
}

var levelValues = map[string]int{
	"trace": levelTrace,
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// Level returns the configured minimum level.
func (cl *ConsoleLogger) Level() string { return cl.logLevel }

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return cl.writer != nil && levelValues[messageLevel] >= levelValues[cl.logLevel]
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) { cl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) { cl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) { cl.logWithLevel("INFO", message) }

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) { cl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) { cl.logWithLevel("ERROR", message) }

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" when the level passes the filter.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", cl.now().Format("15:04:05"), label, message)
}

// LogEvaluation reports the outcome of an evaluation pass at DEBUG level.
// Every blocking violation is repeated at WARN.
func (cl *ConsoleLogger) LogEvaluation(permitID string, ev *engine.Evaluation) {
	if ev == nil {
		return
	}
	incomplete := 0
	for _, r := range ev.Questionnaires {
		incomplete += len(r.Incomplete) + len(r.MissingControls)
	}
	cl.LogDebug(fmt.Sprintf("Permit %s evaluated: %d questionnaires, %d violations, %d controls, %d outstanding",
		permitID, len(ev.Questionnaires), len(ev.Violations), len(ev.Controls), incomplete))
	for _, v := range ev.Violations {
		cl.LogViolation(permitID, v)
	}
}

// LogViolation reports one blocking answer at WARN level.
func (cl *ConsoleLogger) LogViolation(permitID string, v engine.Violation) {
	msg := v.String()
	if cl.colorOutput {
		msg = newColorScheme().fail.Sprint(msg)
	}
	cl.LogWarn(fmt.Sprintf("Permit %s blocked by %s", permitID, msg))
}

// LogCrossTrigger reports a questionnaire forced on by another answer at INFO level.
func (cl *ConsoleLogger) LogCrossTrigger(permitID string, hit engine.TriggerHit) {
	target := hit.Target
	if cl.colorOutput {
		target = color.New(color.Bold).Sprint(target)
	}
	cl.LogInfo(fmt.Sprintf("Permit %s: %s requires %s", permitID, hit.Ref(), target))
}

// LogTransition reports a lifecycle status change at INFO level.
// Format: "Permit <id>: <action> <from> -> <to>"
func (cl *ConsoleLogger) LogTransition(permitID string, action string, from, to models.Status) {
	fromText, toText := string(from), string(to)
	if cl.colorOutput {
		scheme := newColorScheme()
		fromText = scheme.status(from).Sprint(fromText)
		toText = scheme.status(to).Sprint(toText)
	}
	cl.LogInfo(fmt.Sprintf("Permit %s: %s %s -> %s", permitID, action, fromText, toText))
}

// LogRefusal reports a refused lifecycle action at WARN level.
func (cl *ConsoleLogger) LogRefusal(permitID string, action string, err error) {
	cl.LogWarn(fmt.Sprintf("Permit %s: %s refused: %v", permitID, action, err))
}

// NoOpLogger discards everything. It satisfies the same interfaces as
// ConsoleLogger.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (n *NoOpLogger) LogTrace(string)                                            {}
func (n *NoOpLogger) LogDebug(string)                                            {}
func (n *NoOpLogger) LogInfo(string)                                             {}
func (n *NoOpLogger) LogWarn(string)                                             {}
func (n *NoOpLogger) LogError(string)                                            {}
func (n *NoOpLogger) LogEvaluation(string, *engine.Evaluation)                   {}
func (n *NoOpLogger) LogViolation(string, engine.Violation)                      {}
func (n *NoOpLogger) LogCrossTrigger(string, engine.TriggerHit)                  {}
func (n *NoOpLogger) LogTransition(string, string, models.Status, models.Status) {}
func (n *NoOpLogger) LogRefusal(string, string, error)                           {}
