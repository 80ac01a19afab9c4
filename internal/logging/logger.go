package logging

import (
	"context"
	"time"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/trace"
)

// Logger emits structured records for one (category, component) pair.
// All emit methods are non-blocking once past level filtering and never
// return errors to the caller.
type Logger struct {
	category  string
	component string
	level     config.Level
	out       *writer
}

// Category returns the logger's category.
func (l *Logger) Category() string { return l.category }

// Component returns the logger's component.
func (l *Logger) Component() string { return l.component }

// Enabled reports whether records at level pass the category threshold.
func (l *Logger) Enabled(level config.Level) bool {
	return level >= l.level
}

// Log emits a record with full control over message and extra top-level
// fields. An empty message defaults to the event name.
func (l *Logger) Log(ctx context.Context, level config.Level, event, message string, data, extra map[string]any) {
	l.emit(ctx, level, event, message, data, extra, nil)
}

// Debug emits a DEBUG record.
func (l *Logger) Debug(ctx context.Context, event string, data map[string]any) {
	l.emit(ctx, config.DebugLevel, event, "", data, nil, nil)
}

// Info emits an INFO record.
func (l *Logger) Info(ctx context.Context, event string, data map[string]any) {
	l.emit(ctx, config.InfoLevel, event, "", data, nil, nil)
}

// Warning emits a WARNING record.
func (l *Logger) Warning(ctx context.Context, event string, data map[string]any) {
	l.emit(ctx, config.WarningLevel, event, "", data, nil, nil)
}

// Error emits an ERROR record.
func (l *Logger) Error(ctx context.Context, event string, data map[string]any) {
	l.emit(ctx, config.ErrorLevel, event, "", data, nil, nil)
}

// Critical emits a CRITICAL record.
func (l *Logger) Critical(ctx context.Context, event string, data map[string]any) {
	l.emit(ctx, config.CriticalLevel, event, "", data, nil, nil)
}

// Exception emits an ERROR record carrying err's type, message and the
// capture-site stack. A nil err emits a plain ERROR record with absent
// exception fields.
func (l *Logger) Exception(ctx context.Context, event string, err error, data map[string]any) {
	l.emit(ctx, config.ErrorLevel, event, "", data, nil, newException(err))
}

// Dropped reports how many records this pair has dropped on overflow.
func (l *Logger) Dropped() uint64 {
	return l.out.dropped.Load()
}

func (l *Logger) emit(ctx context.Context, level config.Level, event, message string, data, extra map[string]any, exc *Exception) {
	if !l.Enabled(level) {
		return
	}
	if message == "" {
		message = event
	}
	if data == nil {
		data = map[string]any{}
	}
	rec := &Record{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  l.category,
		Component: l.component,
		Event:     event,
		Message:   message,
		Data:      data,
		Context:   trace.Current(ctx).Snapshot(),
		Exception: exc,
		Extra:     extra,
	}
	l.out.enqueue(rec)
}
