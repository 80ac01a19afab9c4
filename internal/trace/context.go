package trace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context identifies one logical operation chain. All fields except
// TraceID and CreatedAt are optional; zero values mean "not set".
type Context struct {
	TraceID        string         `json:"trace_id"`
	ParentTraceID  string         `json:"parent_trace_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	ExperimentID   string         `json:"experiment_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	SimulationStep *int           `json:"simulation_step,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Fields holds explicit overrides when deriving a child scope.
// Unset fields inherit from the parent.
type Fields struct {
	SessionID      string
	AgentID        string
	ExperimentID   string
	UserID         string
	SimulationStep *int
	Metadata       map[string]any
}

// Step is a convenience for populating Fields.SimulationStep, so that
// step zero remains distinguishable from "not overridden".
func Step(n int) *int { return &n }

// Map returns the set fields as an open key-value map, suitable for
// attaching to a record's data payload.
func (f Fields) Map() map[string]any {
	m := make(map[string]any)
	if f.SessionID != "" {
		m["session_id"] = f.SessionID
	}
	if f.AgentID != "" {
		m["agent_id"] = f.AgentID
	}
	if f.ExperimentID != "" {
		m["experiment_id"] = f.ExperimentID
	}
	if f.UserID != "" {
		m["user_id"] = f.UserID
	}
	if f.SimulationStep != nil {
		m["simulation_step"] = *f.SimulationStep
	}
	for k, v := range f.Metadata {
		m[k] = v
	}
	return m
}

// New creates a fresh root context with a new trace id.
func New() *Context {
	return &Context{
		TraceID:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Child derives a new scope from c: fresh trace id, parent set to c,
// optional fields taken from overrides when given, inherited otherwise.
// Metadata is shallow-merged with override keys winning.
func (c *Context) Child(overrides Fields) *Context {
	child := &Context{
		TraceID:        uuid.NewString(),
		ParentTraceID:  c.TraceID,
		SessionID:      c.SessionID,
		AgentID:        c.AgentID,
		ExperimentID:   c.ExperimentID,
		UserID:         c.UserID,
		SimulationStep: c.SimulationStep,
		CreatedAt:      time.Now().UTC(),
	}
	if overrides.SessionID != "" {
		child.SessionID = overrides.SessionID
	}
	if overrides.AgentID != "" {
		child.AgentID = overrides.AgentID
	}
	if overrides.ExperimentID != "" {
		child.ExperimentID = overrides.ExperimentID
	}
	if overrides.UserID != "" {
		child.UserID = overrides.UserID
	}
	if overrides.SimulationStep != nil {
		step := *overrides.SimulationStep
		child.SimulationStep = &step
	}
	if len(c.Metadata) > 0 || len(overrides.Metadata) > 0 {
		child.Metadata = make(map[string]any, len(c.Metadata)+len(overrides.Metadata))
		for k, v := range c.Metadata {
			child.Metadata[k] = v
		}
		for k, v := range overrides.Metadata {
			child.Metadata[k] = v
		}
	}
	return child
}

// Snapshot returns a copy safe to attach to an emitted record. Later
// mutation of the live context never alters the copy.
func (c *Context) Snapshot() *Context {
	cp := *c
	if c.SimulationStep != nil {
		step := *c.SimulationStep
		cp.SimulationStep = &step
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Context key for propagation
type ctxKey struct{}

// Current returns the context attached to ctx, or a fresh root when none
// is attached. A missing context is never an error.
func Current(ctx context.Context) *Context {
	if tc, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return tc
	}
	return New()
}

// With attaches tc to ctx.
func With(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// Enter derives a child scope from the context attached to ctx (or from
// a fresh root) and attaches it. The returned context.Context carries
// the child; the caller's ctx still carries the parent.
func Enter(ctx context.Context, overrides Fields) (context.Context, *Context) {
	child := Current(ctx).Child(overrides)
	return With(ctx, child), child
}
