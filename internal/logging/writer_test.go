package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenalab/tracekit/internal/config"
)

func listBacklog(t *testing.T, cfg *config.Config, category, component string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(cfg.TraceDir, category))
	require.NoError(t, err)

	var backlog []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, component+".jsonl.") {
			backlog = append(backlog, name)
		}
	}
	return backlog
}

// Scenario: 1KB threshold, retention 2, 500 small records. The pair must
// rotate at least 20 times while never retaining more than 2 backlog
// files plus the active one.
func TestRotationAndRetention(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.MaxBytes = 1024
	cfg.BackupCount = 2
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "rotator")
	payload := strings.Repeat("x", 50)
	for i := 0; i < 500; i++ {
		logger.Info(context.Background(), "tick", map[string]any{"payload": payload})
	}

	rotations := testutil.ToFloat64(reg.Metrics().Rotations.WithLabelValues("system", "rotator"))
	assert.GreaterOrEqual(t, rotations, 20.0)

	backlog := listBacklog(t, cfg, "system", "rotator")
	assert.LessOrEqual(t, len(backlog), 2)

	_, err := os.Stat(filepath.Join(cfg.TraceDir, "system", "rotator.jsonl"))
	assert.NoError(t, err)

	// the newest backlog slot is always .1
	assert.Contains(t, backlog, "rotator.jsonl.1")
}

func TestRotationKeepsActiveBelowThreshold(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.MaxBytes = 2048
	cfg.BackupCount = 3
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "bounded")
	for i := 0; i < 200; i++ {
		logger.Info(context.Background(), "tick", map[string]any{"n": i})
	}

	info, err := os.Stat(filepath.Join(cfg.TraceDir, "system", "bounded.jsonl"))
	require.NoError(t, err)
	assert.Less(t, info.Size(), cfg.MaxBytes)
}

func TestCompressedBacklog(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.MaxBytes = 512
	cfg.BackupCount = 3
	cfg.CompressBacklog = true
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "packed")
	for i := 0; i < 60; i++ {
		logger.Info(context.Background(), "tick", map[string]any{"n": i, "pad": strings.Repeat("y", 40)})
	}

	backlog := listBacklog(t, cfg, "system", "packed")
	require.NotEmpty(t, backlog)
	for _, name := range backlog {
		assert.True(t, strings.HasSuffix(name, ".zst"), "backlog %s should be compressed", name)
	}
}

// Scenario: a stalled drain worker and a full queue. Every emit must
// return immediately, overflow must drop rather than block, and the
// drops must be observable on the counter.
func TestOverflowDropsWithoutBlocking(t *testing.T) {
	gate := make(chan struct{})
	testHookBeforeWrite = func() { <-gate }
	defer func() { testHookBeforeWrite = nil }()

	cfg := testConfig(t, true)
	cfg.BufferSize = 8
	reg := NewRegistry(cfg, nil)
	logger := reg.Get("system", "flooded")

	const emitted = 100
	start := time.Now()
	for i := 0; i < emitted; i++ {
		logger.Info(context.Background(), "flood", map[string]any{"n": i})
	}
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "emit must never stall the caller")
	assert.GreaterOrEqual(t, logger.Dropped(), uint64(emitted-cfg.BufferSize-2))

	close(gate)
	require.NoError(t, reg.Close(5*time.Second))

	records := readRecords(t, cfg, "system", "flooded")
	assert.Less(t, len(records), cfg.BufferSize+emitted)
	assert.NotEmpty(t, records)

	dropped := testutil.ToFloat64(reg.Metrics().RecordsDropped.WithLabelValues("system", "flooded"))
	assert.Equal(t, float64(logger.Dropped()), dropped)
}

func TestCloseFlushesQueuedRecords(t *testing.T) {
	cfg := testConfig(t, true)
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "flusher")
	for i := 0; i < 50; i++ {
		logger.Info(context.Background(), "tick", map[string]any{"n": i})
	}
	require.NoError(t, reg.Close(5*time.Second))

	records := readRecords(t, cfg, "system", "flusher")
	assert.Len(t, records, 50)
	assert.Zero(t, logger.Dropped())
}

func TestEmitAfterCloseDrops(t *testing.T) {
	cfg := testConfig(t, true)
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "late")
	logger.Info(context.Background(), "before", nil)
	require.NoError(t, reg.Close(5*time.Second))

	logger.Info(context.Background(), "after", nil)

	records := readRecords(t, cfg, "system", "late")
	assert.Len(t, records, 1)
	assert.Equal(t, uint64(1), logger.Dropped())
}

func TestEmissionOrderPreserved(t *testing.T) {
	cfg := testConfig(t, true)
	reg := NewRegistry(cfg, nil)

	logger := reg.Get("system", "ordered")
	for i := 0; i < 200; i++ {
		logger.Info(context.Background(), "tick", map[string]any{"seq": i})
	}
	require.NoError(t, reg.Close(5*time.Second))

	records := readRecords(t, cfg, "system", "ordered")
	require.Len(t, records, 200)
	for i, rec := range records {
		assert.Equal(t, float64(i), rec.Data["seq"])
	}
}
