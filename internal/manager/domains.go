package manager

import (
	"context"

	"github.com/arenalab/tracekit/internal/logging"
)

// AgentManager traces one agent under the "agents" category, with the
// component named after the agent.
type AgentManager struct {
	*Manager
	agentID string
}

// NewAgent creates an agent-scoped manager.
func NewAgent(reg *logging.Registry, agentID string) *AgentManager {
	return &AgentManager{
		Manager: New(reg, "agents", "agent_"+agentID),
		agentID: agentID,
	}
}

// AgentID returns the traced agent's id.
func (m *AgentManager) AgentID() string { return m.agentID }

// Action records one agent action and its optional result.
func (m *AgentManager) Action(ctx context.Context, actionType string, actionData, result map[string]any) {
	m.logger.Info(ctx, "agent_action", map[string]any{
		"agent_id":    m.agentID,
		"action_type": actionType,
		"action_data": actionData,
		"result":      result,
	})
}

// Learning records a learning event with per-metric improvement deltas.
func (m *AgentManager) Learning(ctx context.Context, event string, before, after map[string]float64) {
	improvement := make(map[string]float64, len(before)+len(after))
	for k := range before {
		improvement[k] = after[k] - before[k]
	}
	for k := range after {
		improvement[k] = after[k] - before[k]
	}
	m.logger.Info(ctx, "agent_learning", map[string]any{
		"agent_id":       m.agentID,
		"learning_event": event,
		"before_metrics": before,
		"after_metrics":  after,
		"improvement":    improvement,
	})
}

// StrategyUpdate records a strategy change as a state transition.
func (m *AgentManager) StrategyUpdate(ctx context.Context, oldStrategy, newStrategy, reason string) {
	m.StateChange(ctx, "agent_strategy", m.agentID, oldStrategy, newStrategy, reason)
}

// SimulationManager traces the simulation engine.
type SimulationManager struct {
	*Manager
}

// NewSimulation creates the simulation-scoped manager.
func NewSimulation(reg *logging.Registry) *SimulationManager {
	return &SimulationManager{Manager: New(reg, "simulation", "simulation_engine")}
}

// Step records one simulation step.
func (m *SimulationManager) Step(ctx context.Context, step int, stepData map[string]any) {
	data := map[string]any{"step_number": step}
	for k, v := range stepData {
		data[k] = v
	}
	m.logger.Info(ctx, "simulation_step", data)
}

// TrendInjection records a trend entering the simulation.
func (m *SimulationManager) TrendInjection(ctx context.Context, trendID, trendType string, impactScore float64) {
	m.logger.Info(ctx, "trend_injection", map[string]any{
		"trend_id":     trendID,
		"trend_type":   trendType,
		"impact_score": impactScore,
	})
}

// PerformanceManager traces performance samples.
type PerformanceManager struct {
	*Manager
}

// NewPerformance creates the performance-scoped manager.
func NewPerformance(reg *logging.Registry) *PerformanceManager {
	return &PerformanceManager{Manager: New(reg, "performance", "performance_monitor")}
}

// Latency records an operation latency sample in milliseconds.
func (m *PerformanceManager) Latency(ctx context.Context, operation string, latencyMS float64, tags map[string]string) {
	m.Metric(ctx, operation+"_latency", latencyMS, "ms", tags)
}

// Throughput records an operation rate over a measured interval.
func (m *PerformanceManager) Throughput(ctx context.Context, operation string, count int, seconds float64) {
	var rate float64
	if seconds > 0 {
		rate = float64(count) / seconds
	}
	m.Metric(ctx, operation+"_throughput", rate, "ops/sec", nil)
}

// ResourceUsage records resource consumption against capacity.
func (m *PerformanceManager) ResourceUsage(ctx context.Context, resourceType string, usage, capacity float64) {
	var utilization float64
	if capacity > 0 {
		utilization = usage / capacity * 100
	}
	m.logger.Debug(ctx, "resource_usage", map[string]any{
		"resource_type":       resourceType,
		"usage_value":         usage,
		"capacity":            capacity,
		"utilization_percent": utilization,
	})
}

// ExperimentManager traces one experiment under the "experiments"
// category.
type ExperimentManager struct {
	*Manager
	experimentID string
}

// NewExperiment creates an experiment-scoped manager.
func NewExperiment(reg *logging.Registry, experimentID string) *ExperimentManager {
	return &ExperimentManager{
		Manager:      New(reg, "experiments", "experiment_"+experimentID),
		experimentID: experimentID,
	}
}

// Start records the experiment configuration at launch.
func (m *ExperimentManager) Start(ctx context.Context, experimentConfig map[string]any) {
	m.logger.Info(ctx, "experiment_start", map[string]any{
		"experiment_id": m.experimentID,
		"config":        experimentConfig,
	})
}

// Result records metrics for one experiment variant.
func (m *ExperimentManager) Result(ctx context.Context, variant string, metrics map[string]float64) {
	m.logger.Info(ctx, "experiment_result", map[string]any{
		"experiment_id": m.experimentID,
		"variant":       variant,
		"metrics":       metrics,
	})
}
