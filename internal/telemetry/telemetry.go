package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/mosaic/config"
)

// Telemetry aggregates in-process counters for routing decisions, agent
// executions and LLM spend. It is deliberately separate from the
// Prometheus/OTel surface: these numbers feed the periodic operator log
// lines and the shutdown report.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds decision and execution counters.
type Metrics struct {
	TotalTurns      int64
	FailedTurns     int64
	AverageTurnTime time.Duration

	// Capability routing
	RouteCounts     map[string]int64 // capability -> turns routed there
	ClassifierFalls int64            // rule layers exhausted, LLM classifier used
	ClassifierFails int64            // classifier errored, fail-open default applied

	// Agent executions
	AgentRuns     map[string]int64
	AgentFailures map[string]int64
	AgentAvgTimes map[string]time.Duration

	// LLM usage
	LLMRequests   map[string]int64 // model -> calls
	LLMTokensUsed map[string]int64 // model -> prompt+completion tokens

	// Graph reads that failed and were absorbed (fail-soft paths)
	GraphReadFailures int64
}

// CostTracker accumulates LLM spend by model and by operation.
type CostTracker struct {
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
	TotalCost      float64
	TotalTokens    int64
}

// TurnEvent records one full conversational turn through the decision core.
type TurnEvent struct {
	ID         string
	StudentID  string
	Capability string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelsUsed []string
}

// AgentEvent records a single agent execution (solver, assessment,
// feedback, recommender).
type AgentEvent struct {
	AgentType  string
	Operation  string
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// NewTelemetry creates the telemetry aggregator. When periodic logs are
// enabled it starts a background reporter goroutine.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			RouteCounts:   make(map[string]int64),
			AgentRuns:     make(map[string]int64),
			AgentFailures: make(map[string]int64),
			AgentAvgTimes: make(map[string]time.Duration),
			LLMRequests:   make(map[string]int64),
			LLMTokensUsed: make(map[string]int64),
		},
		costTracker: &CostTracker{
			ModelCosts:     make(map[string]float64),
			OperationCosts: make(map[string]float64),
		},
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startPeriodicReporting()
	}

	return t
}

// RecordTurn records a completed conversational turn.
func (t *Telemetry) RecordTurn(ctx context.Context, event TurnEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalTurns++
	if !event.Success {
		t.metrics.FailedTurns++
	}
	t.metrics.RouteCounts[event.Capability]++

	if t.metrics.TotalTurns == 1 {
		t.metrics.AverageTurnTime = event.Duration
	} else {
		total := t.metrics.AverageTurnTime * time.Duration(t.metrics.TotalTurns-1)
		t.metrics.AverageTurnTime = (total + event.Duration) / time.Duration(t.metrics.TotalTurns)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
		t.metrics.LLMTokensUsed[model] += event.TokensUsed
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Turn: ID=%s, Capability=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.ID, event.Capability, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordAgentEvent records one agent execution.
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.AgentRuns[event.AgentType]++
	if !event.Success {
		t.metrics.AgentFailures[event.AgentType]++
	}

	runs := t.metrics.AgentRuns[event.AgentType]
	if runs == 1 {
		t.metrics.AgentAvgTimes[event.AgentType] = event.Duration
	} else {
		total := t.metrics.AgentAvgTimes[event.AgentType] * time.Duration(runs-1)
		t.metrics.AgentAvgTimes[event.AgentType] = (total + event.Duration) / time.Duration(runs)
	}

	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
	}
	if event.Operation != "" {
		t.costTracker.OperationCosts[event.Operation] += event.Cost
	}
	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Agent: Type=%s, Op=%s, Success=%t, Duration=%v, Cost=$%.4f",
		event.AgentType, event.Operation, event.Success, event.Duration, event.Cost)
}

// RecordClassifierFallback counts a turn where no rule layer matched and
// the LLM classifier was consulted.
func (t *Telemetry) RecordClassifierFallback() {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.ClassifierFalls++
	t.mu.Unlock()
}

// RecordClassifierFailure counts a classifier error that was absorbed by
// routing to the default capability.
func (t *Telemetry) RecordClassifierFailure() {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.ClassifierFails++
	t.mu.Unlock()
}

// RecordGraphReadFailure counts a curriculum graph read that errored and
// was absorbed by a fail-soft caller.
func (t *Telemetry) RecordGraphReadFailure() {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.GraphReadFailures++
	t.mu.Unlock()
}

// GetMetrics returns a copy of the current counters.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := *t.metrics
	m.RouteCounts = copyInt64Map(t.metrics.RouteCounts)
	m.AgentRuns = copyInt64Map(t.metrics.AgentRuns)
	m.AgentFailures = copyInt64Map(t.metrics.AgentFailures)
	m.LLMRequests = copyInt64Map(t.metrics.LLMRequests)
	m.LLMTokensUsed = copyInt64Map(t.metrics.LLMTokensUsed)
	m.AgentAvgTimes = make(map[string]time.Duration, len(t.metrics.AgentAvgTimes))
	for k, v := range t.metrics.AgentAvgTimes {
		m.AgentAvgTimes[k] = v
	}
	return m
}

// CostSummary is a point-in-time snapshot of accumulated spend.
type CostSummary struct {
	TotalCost      float64
	TotalTokens    int64
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
}

// GetCostSummary returns a copy of the current cost tracker state.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := CostSummary{
		TotalCost:      t.costTracker.TotalCost,
		TotalTokens:    t.costTracker.TotalTokens,
		ModelCosts:     make(map[string]float64, len(t.costTracker.ModelCosts)),
		OperationCosts: make(map[string]float64, len(t.costTracker.OperationCosts)),
	}
	for k, v := range t.costTracker.ModelCosts {
		s.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.OperationCosts {
		s.OperationCosts[k] = v
	}
	return s
}

func (t *Telemetry) startPeriodicReporting() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m := t.GetMetrics()
		c := t.GetCostSummary()
		t.logger.Printf("Snapshot: Turns=%d (failed=%d), AvgTurn=%v, ClassifierFallbacks=%d, ClassifierFailures=%d, GraphReadFailures=%d, Cost=$%.4f, Tokens=%d",
			m.TotalTurns, m.FailedTurns, m.AverageTurnTime,
			m.ClassifierFalls, m.ClassifierFails, m.GraphReadFailures,
			c.TotalCost, c.TotalTokens)
	}
}

// Shutdown logs a final report. Counters are in-process only, nothing to
// flush.
func (t *Telemetry) Shutdown() {
	m := t.GetMetrics()
	c := t.GetCostSummary()

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Turns: %d (failed %d)", m.TotalTurns, m.FailedTurns)
	t.logger.Printf("  Average Turn Time: %v", m.AverageTurnTime)
	for capability, n := range m.RouteCounts {
		t.logger.Printf("  Routed %s: %d", capability, n)
	}
	t.logger.Printf("  Total Cost: $%.4f", c.TotalCost)
	t.logger.Printf("  Total Tokens: %d", c.TotalTokens)
}

func copyInt64Map(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
