package throttle

import (
	"log"
)

// Logger lets you route the diagnostics emitted by the throttles
// (underflow recovery, evictions, retries) to your own logging.
//
// The default implementation writes to the "log" standard module
// via log.Default(), prefixed with "[throttle]".
//
// Pass NewNoOpLogger() to silence it.
type Logger interface {
	Debug(string)
	Info(string)
	Warning(string)
	Error(string)
}

type defaultLogger struct {
}

func (l *defaultLogger) write(level string, text string) {
	log.Default().Printf("[throttle] [%s] %s", level, text)
}

func (l *defaultLogger) Debug(text string) {
	l.write("debug", text)
}
func (l *defaultLogger) Info(text string) {
	l.write("info", text)
}
func (l *defaultLogger) Warning(text string) {
	l.write("WARNING", text)
}
func (l *defaultLogger) Error(text string) {
	l.write("ERROR", text)
}

func NewNoOpLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Debug(string)   {}
func (noOpLogger) Info(string)    {}
func (noOpLogger) Warning(string) {}
func (noOpLogger) Error(string)   {}

func loggerOrDefault(l Logger) Logger {
	if l == nil {
		return &defaultLogger{}
	}
	return l
}
