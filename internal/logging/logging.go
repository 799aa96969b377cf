// Package logging implements the engine's structured log stream over
// github.com/sirupsen/logrus: one JSON record per line carrying a stable
// event name plus optional task/attempt/status/error fields.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level is the set of levels this binary exposes on --log-level.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures the process-wide logger.
type Config struct {
	Level  Level
	Output io.Writer // defaults to os.Stderr
}

func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// New builds a logrus.Logger emitting one JSON object per line on the
// diagnostic stream.
func New(cfg Config) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "event",
		},
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)
	l.SetLevel(toLogrusLevel(cfg.Level))
	return l
}

func toLogrusLevel(lv Level) logrus.Level {
	switch lv {
	case LevelTrace:
		return logrus.TraceLevel
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Event is one of the engine's stable log event kinds.
type Event string

const (
	EventRunStart     Event = "run.start"
	EventRunEnd       Event = "run.end"
	EventTaskDispatch Event = "task.dispatch"
	EventTaskStart    Event = "task.start"
	EventTaskEnd      Event = "task.end"
	EventTaskRetry    Event = "task.retry"
	EventTaskSkip     Event = "task.skip"
	EventCacheHit     Event = "cache.hit"
	EventCacheStore   Event = "cache.store"
)

// Sink is the thin adapter the Scheduler emits through, producing records
// shaped `{ ts, level, event, task_id?, attempt?, duration_ms?, status?,
// error_kind?, error_msg? }`.
type Sink struct {
	log *logrus.Logger
}

func NewSink(log *logrus.Logger) *Sink { return &Sink{log: log} }

// Fields is the optional-field bag of a single log record.
type Fields struct {
	TaskID     string
	Attempt    int
	DurationMs int64
	Status     string
	ErrorKind  string
	ErrorMsg   string
}

func (s *Sink) emit(level logrus.Level, event Event, f Fields) {
	entry := s.log.WithFields(logrus.Fields{})
	if f.TaskID != "" {
		entry = entry.WithField("task_id", f.TaskID)
	}
	if f.Attempt != 0 {
		entry = entry.WithField("attempt", f.Attempt)
	}
	if f.DurationMs != 0 {
		entry = entry.WithField("duration_ms", f.DurationMs)
	}
	if f.Status != "" {
		entry = entry.WithField("status", f.Status)
	}
	if f.ErrorKind != "" {
		entry = entry.WithField("error_kind", f.ErrorKind)
	}
	if f.ErrorMsg != "" {
		entry = entry.WithField("error_msg", f.ErrorMsg)
	}
	entry.Log(level, string(event))
}

func (s *Sink) Info(event Event, f Fields)  { s.emit(logrus.InfoLevel, event, f) }
func (s *Sink) Warn(event Event, f Fields)  { s.emit(logrus.WarnLevel, event, f) }
func (s *Sink) Error(event Event, f Fields) { s.emit(logrus.ErrorLevel, event, f) }
