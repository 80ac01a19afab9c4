// Package manager provides operation bracketing and fixed-schema event
// helpers on top of the structured emitter. An operation emits exactly
// one "<op>.start" record and exactly one terminal "<op>.complete" or
// "<op>.error" record sharing a trace id; the wrapped function's failure
// is always returned unchanged.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/arenalab/tracekit/internal/logging"
	"github.com/arenalab/tracekit/internal/trace"
)

// Manager traces operations and events for one (category, component)
// pair.
type Manager struct {
	logger *logging.Logger
}

// New creates a manager over the given registry.
func New(reg *logging.Registry, category, component string) *Manager {
	return &Manager{logger: reg.Get(category, component)}
}

// Logger exposes the underlying emitter for ad-hoc records.
func (m *Manager) Logger() *logging.Logger { return m.logger }

// Operation runs fn inside a child trace scope, bracketing it with
// "<name>.start" and "<name>.complete"/"<name>.error" records that carry
// the elapsed duration. fn's error (or panic) propagates unchanged; the
// pipeline never swallows the wrapped operation's failure.
func (m *Manager) Operation(ctx context.Context, name string, fields trace.Fields, fn func(context.Context) error) (err error) {
	opCtx, _ := trace.Enter(ctx, fields)
	data := fields.Map()
	data["operation"] = name

	start := time.Now()
	m.logger.Info(opCtx, name+".start", data)

	defer func() {
		duration := time.Since(start).Seconds()
		if r := recover(); r != nil {
			errData := withDuration(data, duration)
			errData["error_type"] = "panic"
			errData["error_message"] = fmt.Sprint(r)
			m.logger.Exception(opCtx, name+".error", fmt.Errorf("panic: %v", r), errData)
			panic(r)
		}
		if err != nil {
			errData := withDuration(data, duration)
			errData["error_type"] = logging.ErrorType(err)
			errData["error_message"] = err.Error()
			m.logger.Exception(opCtx, name+".error", err, errData)
			return
		}
		m.logger.Info(opCtx, name+".complete", withDuration(data, duration))
	}()

	err = fn(opCtx)
	return err
}

func withDuration(data map[string]any, seconds float64) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["duration_seconds"] = seconds
	return out
}

// Event emits a discrete event at the given level.
func (m *Manager) Event(ctx context.Context, event string, data map[string]any, level string) {
	switch level {
	case "debug":
		m.logger.Debug(ctx, event, data)
	case "warning":
		m.logger.Warning(ctx, event, data)
	case "error":
		m.logger.Error(ctx, event, data)
	case "critical":
		m.logger.Critical(ctx, event, data)
	default:
		m.logger.Info(ctx, event, data)
	}
}

// StateChange records an entity transition with its reason.
func (m *Manager) StateChange(ctx context.Context, entityType, entityID string, oldState, newState any, reason string) {
	m.logger.Info(ctx, "state_change", map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"old_state":   oldState,
		"new_state":   newState,
		"reason":      reason,
	})
}

// Metric records a sampled metric value.
func (m *Manager) Metric(ctx context.Context, name string, value float64, unit string, tags map[string]string) {
	if tags == nil {
		tags = map[string]string{}
	}
	m.logger.Debug(ctx, "metric", map[string]any{
		"metric_name": name,
		"value":       value,
		"unit":        unit,
		"tags":        tags,
	})
}

// Interaction records an exchange between two entities.
func (m *Manager) Interaction(ctx context.Context, sourceID, targetID, interactionType string, data map[string]any) {
	payload := map[string]any{
		"source_id":        sourceID,
		"target_id":        targetID,
		"interaction_type": interactionType,
	}
	for k, v := range data {
		payload[k] = v
	}
	m.logger.Info(ctx, "interaction", payload)
}

// Decision records a choice among options with its reasoning.
func (m *Manager) Decision(ctx context.Context, decisionPoint string, options []string, chosen, reasoning string, confidence float64) {
	m.logger.Info(ctx, "decision", map[string]any{
		"decision_point": decisionPoint,
		"options":        options,
		"chosen_option":  chosen,
		"reasoning":      reasoning,
		"confidence":     confidence,
	})
}

// Error records a categorized failure outside an operation bracket.
func (m *Manager) Error(ctx context.Context, errorType, message string, errCtx map[string]any, recoverable bool) {
	if errCtx == nil {
		errCtx = map[string]any{}
	}
	m.logger.Error(ctx, "error", map[string]any{
		"error_type":    errorType,
		"error_message": message,
		"context":       errCtx,
		"recoverable":   recoverable,
	})
}
