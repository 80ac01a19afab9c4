package trace

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot(t *testing.T) {
	a := New()
	b := New()

	require.NotEmpty(t, a.TraceID)
	assert.NotEqual(t, a.TraceID, b.TraceID)
	assert.Empty(t, a.ParentTraceID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestChildInheritsUnlessOverridden(t *testing.T) {
	parent := New()
	parent.SessionID = "sess_1"
	parent.AgentID = "agent_1"
	parent.SimulationStep = Step(0)
	parent.Metadata = map[string]any{"region": "eu", "shard": 3}

	child := parent.Child(Fields{
		AgentID:  "agent_2",
		Metadata: map[string]any{"shard": 7},
	})

	assert.NotEqual(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.TraceID, child.ParentTraceID)

	// inherited
	assert.Equal(t, "sess_1", child.SessionID)
	require.NotNil(t, child.SimulationStep)
	assert.Equal(t, 0, *child.SimulationStep)

	// overridden
	assert.Equal(t, "agent_2", child.AgentID)

	// metadata merged, child wins on collision
	assert.Equal(t, "eu", child.Metadata["region"])
	assert.Equal(t, 7, child.Metadata["shard"])
	assert.Equal(t, 3, parent.Metadata["shard"])
}

func TestChildStepOverride(t *testing.T) {
	parent := New()
	parent.SimulationStep = Step(4)

	child := parent.Child(Fields{SimulationStep: Step(0)})

	require.NotNil(t, child.SimulationStep)
	assert.Equal(t, 0, *child.SimulationStep)
}

func TestSnapshotIsImmutable(t *testing.T) {
	ctx := New()
	ctx.AgentID = "agent_1"
	ctx.Metadata = map[string]any{"k": "v1"}

	snap := ctx.Snapshot()
	ctx.AgentID = "agent_2"
	ctx.Metadata["k"] = "v2"

	assert.Equal(t, "agent_1", snap.AgentID)
	assert.Equal(t, "v1", snap.Metadata["k"])
}

func TestCurrentSelfHeals(t *testing.T) {
	tc := Current(context.Background())

	require.NotNil(t, tc)
	assert.NotEmpty(t, tc.TraceID)
}

func TestEnterAndRestore(t *testing.T) {
	root, rootCtx := Enter(context.Background(), Fields{AgentID: "a1"})
	_ = rootCtx

	inner, innerCtx := Enter(root, Fields{})
	assert.Equal(t, Current(root).TraceID, innerCtx.ParentTraceID)
	assert.Equal(t, "a1", innerCtx.AgentID)

	// the parent scope is untouched by entering a child
	assert.Equal(t, rootCtx.TraceID, Current(root).TraceID)
	assert.Equal(t, innerCtx.TraceID, Current(inner).TraceID)
}

func TestScopeIsolationAcrossGoroutines(t *testing.T) {
	base, _ := Enter(context.Background(), Fields{SessionID: "shared"})

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx, tc := Enter(base, Fields{AgentID: agentName(n)})
			results[n] = Current(ctx).AgentID
			_ = tc
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, agentName(i), got)
	}
	// sibling scopes never leak into the shared parent
	assert.Empty(t, Current(base).AgentID)
	assert.Equal(t, "shared", Current(base).SessionID)
}

func agentName(n int) string {
	return string(rune('a'+n%26)) + "_agent"
}
