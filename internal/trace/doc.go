// Package trace provides trace context propagation for the pipeline.
//
// A Context carries the identifying fields (trace id, session, agent,
// experiment, simulation step) that every emitted record is stamped with.
// Contexts ride on context.Context so they follow the call graph across
// goroutines without any shared mutable state:
//
//	ctx, tc := trace.Enter(ctx, trace.Fields{AgentID: "agent_123"})
//	logger.Info(ctx, "agent_action", data)
//
// Entering a scope derives a child with a fresh trace id whose
// ParentTraceID points at the enclosing scope. Optional fields are
// inherited unless overridden; metadata is shallow-merged with child keys
// winning. The parent scope is restored by simply letting the child
// context.Context go out of scope.
package trace
