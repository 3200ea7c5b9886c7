package logger

import (
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
)

// Logger is the structured-ish logger shared by services.
// Args are appended to the message; errors are reported as such by Rollbar.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type StdLogger struct {
	std *log.Logger
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(std *log.Logger) *StdLogger {
	if std == nil {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &StdLogger{std: std}
}

func (l *StdLogger) print(level, msg string, args []interface{}) {
	if len(args) == 0 {
		l.std.Printf("[%s] %s", level, msg)
		return
	}
	l.std.Printf("[%s] %s %+v", level, msg, args)
}

func (l *StdLogger) Info(msg string, args ...interface{}) { l.print("INFO", msg, args) }
func (l *StdLogger) Warn(msg string, args ...interface{}) { l.print("WARN", msg, args) }
func (l *StdLogger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

// RollbarLogger reports to Rollbar and echoes everything to the std logger.
type RollbarLogger struct {
	std *StdLogger
}

var _ Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, token, env string) *RollbarLogger {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetServerRoot("github.com/sparks-care/sparks-api")
	return &RollbarLogger{std: NewStdLogger(std)}
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(append([]interface{}{msg}, args...)...)
	l.std.Info(msg, args...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(append([]interface{}{msg}, args...)...)
	l.std.Warn(msg, args...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(append([]interface{}{msg}, args...)...)
	l.std.Error(msg, args...)
}

// Close flushes pending Rollbar items.
func (l *RollbarLogger) Close() {
	rollbar.Wait()
}

// New picks Rollbar when a token is configured.
func New(token, env string) Logger {
	std := log.New(os.Stderr, "", log.LstdFlags)
	if token == "" {
		return NewStdLogger(std)
	}
	return NewRollbarLogger(std, token, env)
}
