// Package analysis aggregates persisted trace records into offline
// reports: error clustering, operation latency statistics, slow
// operation detection and per-agent behavior summaries.
package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/query"
)

// ErrNoSamples is returned when an operation has no duration samples in
// the analysis window.
var ErrNoSamples = errors.New("no duration samples found")

// Analyzer computes aggregates over a trace root.
type Analyzer struct {
	reader *query.Reader
}

// New creates an analyzer over the given trace root.
func New(dir string) *Analyzer {
	return &Analyzer{reader: query.NewReader(dir)}
}

// Reader exposes the underlying record reader.
func (a *Analyzer) Reader() *query.Reader { return a.reader }

// ErrorSummary is one recent error in an ErrorReport.
type ErrorSummary struct {
	Timestamp time.Time
	Component string
	Event     string
	Message   string
}

// ErrorReport clusters ERROR-and-above records from a trailing window.
type ErrorReport struct {
	Window      time.Duration
	Total       int
	ByComponent map[string]int
	ByEvent     map[string]int
	ByErrorType map[string]int
	Recent      []ErrorSummary // newest first, at most 10
}

// Errors aggregates ERROR+ records from the trailing window.
func (a *Analyzer) Errors(window time.Duration) (*ErrorReport, error) {
	records, err := a.reader.Records(query.Filter{
		Start:    time.Now().UTC().Add(-window),
		MinLevel: config.ErrorLevel,
	})
	if err != nil {
		return nil, err
	}

	report := &ErrorReport{
		Window:      window,
		Total:       len(records),
		ByComponent: map[string]int{},
		ByEvent:     map[string]int{},
		ByErrorType: map[string]int{},
	}
	for _, rec := range records {
		report.ByComponent[rec.Component]++
		report.ByEvent[rec.Event]++
		if rec.Exception != nil {
			report.ByErrorType[rec.Exception.Type]++
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	for _, rec := range records {
		if len(report.Recent) == 10 {
			break
		}
		report.Recent = append(report.Recent, ErrorSummary{
			Timestamp: rec.Timestamp,
			Component: rec.Component,
			Event:     rec.Event,
			Message:   rec.Message,
		})
	}
	return report, nil
}

// PerformanceStats summarizes duration samples for one operation. P95
// and P99 are nil below their sample-count thresholds: small samples
// report them as absent rather than as a misleading estimate.
type PerformanceStats struct {
	Operation string
	Count     int
	Min       float64
	Max       float64
	Mean      float64
	Median    float64
	P95       *float64
	P99       *float64
}

// Performance collects "<operation>.complete" duration samples from the
// trailing window. P95 requires more than 20 samples, P99 more than 100.
func (a *Analyzer) Performance(operation string, window time.Duration) (*PerformanceStats, error) {
	records, err := a.reader.Records(query.Filter{
		Start: time.Now().UTC().Add(-window),
	})
	if err != nil {
		return nil, err
	}

	var durations []float64
	for _, rec := range records {
		if rec.Event != operation+".complete" {
			continue
		}
		if d, ok := asFloat(rec.Data["duration_seconds"]); ok {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return nil, fmt.Errorf("operation %s: %w", operation, ErrNoSamples)
	}

	sort.Float64s(durations)
	count := len(durations)
	stats := &PerformanceStats{
		Operation: operation,
		Count:     count,
		Min:       durations[0],
		Max:       durations[count-1],
		Mean:      stat.Mean(durations, nil),
		Median:    stat.Quantile(0.5, stat.Empirical, durations, nil),
	}
	if count > 20 {
		p95 := stat.Quantile(0.95, stat.Empirical, durations, nil)
		stats.P95 = &p95
	}
	if count > 100 {
		p99 := stat.Quantile(0.99, stat.Empirical, durations, nil)
		stats.P99 = &p99
	}
	return stats, nil
}

// SlowOperation is one completed span whose duration exceeded the
// threshold.
type SlowOperation struct {
	Timestamp       time.Time
	Component       string
	Operation       string
	DurationSeconds float64
	TraceID         string
}

// SlowOperations scans all "*.complete" records in the trailing window
// and returns those at or above the threshold, slowest first.
func (a *Analyzer) SlowOperations(thresholdSeconds float64, window time.Duration) ([]SlowOperation, error) {
	records, err := a.reader.Records(query.Filter{
		Start: time.Now().UTC().Add(-window),
	})
	if err != nil {
		return nil, err
	}

	var slow []SlowOperation
	for _, rec := range records {
		if !strings.HasSuffix(rec.Event, ".complete") {
			continue
		}
		d, ok := asFloat(rec.Data["duration_seconds"])
		if !ok || d < thresholdSeconds {
			continue
		}
		op := SlowOperation{
			Timestamp:       rec.Timestamp,
			Component:       rec.Component,
			Operation:       strings.TrimSuffix(rec.Event, ".complete"),
			DurationSeconds: d,
		}
		if rec.Context != nil {
			op.TraceID = rec.Context.TraceID
		}
		slow = append(slow, op)
	}
	sort.Slice(slow, func(i, j int) bool {
		return slow[i].DurationSeconds > slow[j].DurationSeconds
	})
	return slow, nil
}

// StrategyChange is one recorded strategy transition for an agent.
type StrategyChange struct {
	Timestamp   time.Time
	OldStrategy string
	NewStrategy string
	Reason      string
}

// LearningEvent is one recorded learning step with its metric deltas.
type LearningEvent struct {
	Timestamp   time.Time
	Event       string
	Improvement map[string]float64
}

// AgentReport summarizes one agent's recorded behavior.
type AgentReport struct {
	AgentID         string
	Total           int
	Actions         map[string]int
	StrategyChanges []StrategyChange
	LearningEvents  []LearningEvent
}

// AgentBehavior aggregates the agent's records from the trailing
// window: action-type counts plus ordered strategy and learning events.
func (a *Analyzer) AgentBehavior(agentID string, window time.Duration) (*AgentReport, error) {
	records, err := a.reader.Records(query.Filter{
		Category: "agents",
		Start:    time.Now().UTC().Add(-window),
	})
	if err != nil {
		return nil, err
	}

	report := &AgentReport{
		AgentID: agentID,
		Actions: map[string]int{},
	}
	for _, rec := range records {
		if rec.Context == nil || rec.Context.AgentID != agentID {
			continue
		}
		report.Total++

		switch rec.Event {
		case "agent_action":
			if actionType, ok := rec.Data["action_type"].(string); ok {
				report.Actions[actionType]++
			}
		case "state_change":
			if rec.Data["entity_type"] != "agent_strategy" {
				continue
			}
			report.StrategyChanges = append(report.StrategyChanges, StrategyChange{
				Timestamp:   rec.Timestamp,
				OldStrategy: asString(rec.Data["old_state"]),
				NewStrategy: asString(rec.Data["new_state"]),
				Reason:      asString(rec.Data["reason"]),
			})
		case "agent_learning":
			report.LearningEvents = append(report.LearningEvents, LearningEvent{
				Timestamp:   rec.Timestamp,
				Event:       asString(rec.Data["learning_event"]),
				Improvement: asFloatMap(rec.Data["improvement"]),
			})
		}
	}
	return report, nil
}

// SummaryReport renders the error analysis as a fixed-format text block.
func (a *Analyzer) SummaryReport(window time.Duration) (string, error) {
	report, err := a.Errors(window)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Arena System Report (Last %s) ===\n\n", window)
	b.WriteString("Error Summary:\n")
	fmt.Fprintf(&b, "  Total Errors: %d\n\n", report.Total)

	b.WriteString("Errors by Component:\n")
	for _, kv := range TopCounts(report.ByComponent, 5) {
		fmt.Fprintf(&b, "  %s: %d\n", kv.Key, kv.Count)
	}

	b.WriteString("\nRecent Errors:\n")
	for i, e := range report.Recent {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Component, e.Message)
	}
	return b.String(), nil
}

type KeyCount struct {
	Key   string
	Count int
}

// TopCounts orders a counter by descending count (key order breaks ties
// so output stays deterministic).
func TopCounts(counts map[string]int, n int) []KeyCount {
	out := make([]KeyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, KeyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func asFloatMap(v any) map[string]float64 {
	out := map[string]float64{}
	if m, ok := v.(map[string]any); ok {
		for k, raw := range m {
			if f, fok := asFloat(raw); fok {
				out[k] = f
			}
		}
	}
	return out
}
