package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/trace"
)

func testConfig(t *testing.T, buffered bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TraceDir = t.TempDir()
	cfg.Level = config.DebugLevel
	cfg.Categories = map[string]config.Level{}
	cfg.Buffered = buffered
	cfg.BufferSize = 64
	return cfg
}

func readRecords(t *testing.T, cfg *config.Config, category, component string) []*Record {
	t.Helper()
	path := filepath.Join(cfg.TraceDir, category, component+".jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []*Record
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec Record
		require.NoError(t, sonic.Unmarshal([]byte(line), &rec))
		records = append(records, &rec)
	}
	return records
}

func TestEmitWritesRecord(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)

	ctx, tc := trace.Enter(context.Background(), trace.Fields{AgentID: "agent_7"})
	logger := reg.Get("system", "engine")
	logger.Info(ctx, "engine.boot", map[string]any{"mode": "fast"})

	records := readRecords(t, cfg, "system", "engine")
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, config.InfoLevel, rec.Level)
	assert.Equal(t, "system", rec.Category)
	assert.Equal(t, "engine", rec.Component)
	assert.Equal(t, "engine.boot", rec.Event)
	assert.Equal(t, "engine.boot", rec.Message, "message defaults to the event name")
	assert.Equal(t, "fast", rec.Data["mode"])
	require.NotNil(t, rec.Context)
	assert.Equal(t, tc.TraceID, rec.Context.TraceID)
	assert.Equal(t, "agent_7", rec.Context.AgentID)
	assert.WithinDuration(t, time.Now().UTC(), rec.Timestamp, 5*time.Second)
	assert.True(t, strings.HasSuffix(rec.Timestamp.Format(time.RFC3339), "Z"))
}

func TestMessageAndExtra(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "engine")
	logger.Log(context.Background(), config.WarningLevel, "engine.throttle", "throttling producers",
		map[string]any{"queue": "events"}, map[string]any{"host": "sim-1"})

	records := readRecords(t, cfg, "system", "engine")
	require.Len(t, records, 1)
	assert.Equal(t, "throttling producers", records[0].Message)
	assert.Equal(t, "sim-1", records[0].Extra["host"])
}

func TestLevelFiltering(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Categories = map[string]config.Level{"quiet": config.ErrorLevel}
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("quiet", "engine")
	logger.Debug(context.Background(), "noise.debug", nil)
	logger.Info(context.Background(), "noise.info", nil)
	logger.Warning(context.Background(), "noise.warning", nil)
	logger.Error(context.Background(), "real.error", nil)
	logger.Critical(context.Background(), "real.critical", nil)

	records := readRecords(t, cfg, "quiet", "engine")
	require.Len(t, records, 2)
	assert.Equal(t, "real.error", records[0].Event)
	assert.Equal(t, "real.critical", records[1].Event)
}

func TestRegistryCachesPairs(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)

	a := reg.Get("system", "engine")
	b := reg.Get("system", "engine")
	c := reg.Get("system", "other")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

type valueError struct{ msg string }

func (e *valueError) Error() string { return e.msg }

func TestExceptionCapture(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("errors", "engine")
	logger.Exception(context.Background(), "step.error", &valueError{msg: "boom"}, nil)

	records := readRecords(t, cfg, "errors", "engine")
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Exception)
	assert.Equal(t, config.ErrorLevel, records[0].Level)
	assert.Equal(t, "valueError", records[0].Exception.Type)
	assert.Equal(t, "boom", records[0].Exception.Message)
	assert.NotEmpty(t, records[0].Exception.Traceback)
}

func TestExceptionWithoutError(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("errors", "engine")
	logger.Exception(context.Background(), "step.error", nil, nil)

	records := readRecords(t, cfg, "errors", "engine")
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Exception, "no failure in flight means absent exception fields")
	assert.Equal(t, config.ErrorLevel, records[0].Level)
}

func TestContextSnapshotIsStable(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)

	tc := trace.New()
	tc.Metadata = map[string]any{"phase": "before"}
	ctx := trace.With(context.Background(), tc)

	logger := reg.Get("system", "engine")
	logger.Info(ctx, "first", nil)

	// mutating the live context must not alter the emitted record
	tc.Metadata["phase"] = "after"
	logger.Info(ctx, "second", nil)

	records := readRecords(t, cfg, "system", "engine")
	require.Len(t, records, 2)
	assert.Equal(t, "before", records[0].Context.Metadata["phase"])
	assert.Equal(t, "after", records[1].Context.Metadata["phase"])
}

// Scenario: scope A sets agent_id, nested scope B overrides nothing; a
// record emitted in B carries A's agent_id and points back at A.
func TestNestedScopeInheritance(t *testing.T) {
	cfg := testConfig(t, false)
	reg := NewRegistry(cfg, nil)
	logger := reg.Get("agents", "agent_a1")

	ctxA, scopeA := trace.Enter(context.Background(), trace.Fields{AgentID: "a1"})
	ctxB, _ := trace.Enter(ctxA, trace.Fields{})
	logger.Info(ctxB, "observed", nil)

	records := readRecords(t, cfg, "agents", "agent_a1")
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].Context.AgentID)
	assert.Equal(t, scopeA.TraceID, records[0].Context.ParentTraceID)
}

func TestRecordRoundTrip(t *testing.T) {
	step := 12
	rec := &Record{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Level:     config.CriticalLevel,
		Category:  "simulation",
		Component: "engine",
		Event:     "step.error",
		Message:   "step failed",
		Data:      map[string]any{"step": float64(12), "cause": "timeout"},
		Context: &trace.Context{
			TraceID:        "t-1",
			ParentTraceID:  "t-0",
			AgentID:        "agent_1",
			SimulationStep: &step,
			Metadata:       map[string]any{"shard": "eu"},
			CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
		},
		Exception: &Exception{Type: "timeoutError", Message: "deadline", Traceback: []string{"frame"}},
		Extra:     map[string]any{"host": "sim-2"},
	}

	data, err := sonic.Marshal(rec)
	require.NoError(t, err)

	var parsed Record
	require.NoError(t, sonic.Unmarshal(data, &parsed))

	assert.Equal(t, rec.Level, parsed.Level)
	assert.Equal(t, rec.Component, parsed.Component)
	assert.Equal(t, rec.Event, parsed.Event)
	assert.Equal(t, rec.Data, parsed.Data)
	assert.Equal(t, rec.Context.TraceID, parsed.Context.TraceID)
	assert.Equal(t, rec.Context.ParentTraceID, parsed.Context.ParentTraceID)
	assert.Equal(t, *rec.Context.SimulationStep, *parsed.Context.SimulationStep)
	assert.Equal(t, rec.Exception.Type, parsed.Exception.Type)
	assert.Equal(t, rec.Extra, parsed.Extra)
}

func TestErrorTypeNames(t *testing.T) {
	assert.Equal(t, "valueError", ErrorType(&valueError{msg: "x"}))
}
