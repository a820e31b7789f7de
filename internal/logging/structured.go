// Package logging provides structured JSON logging for obsreport components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Event represents a structured log event
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	RunID     string                 `json:"run_id,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

var (
	outMu    sync.Mutex
	out      io.Writer = os.Stderr
	minLevel           = levelFromEnv()
)

func levelFromEnv() Level {
	l := Level(os.Getenv("OBSREPORT_LOG_LEVEL"))
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelInfo
}

// SetOutput redirects all loggers. Returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := out
	out = w
	return prev
}

// SetLevel sets the minimum level emitted by all loggers.
func SetLevel(l Level) {
	outMu.Lock()
	defer outMu.Unlock()
	if _, ok := levelRank[l]; ok {
		minLevel = l
	}
}

// Logger provides structured logging
type Logger struct {
	component string
	runID     string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithRun sets the run context
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		component: l.component,
		runID:     runID,
	}
}

func (l *Logger) emit(e Event) {
	outMu.Lock()
	defer outMu.Unlock()
	if levelRank[e.Level] < levelRank[minLevel] {
		return
	}
	data, _ := json.Marshal(e)
	fmt.Fprintln(out, string(data))
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		RunID:     l.runID,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	l.emit(e)
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	l.emit(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		RunID:     l.runID,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	})
}
