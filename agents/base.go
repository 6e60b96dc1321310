// Package agents implements the logo pipeline's agent roster: requirements
// analysis, moodboard, theme selection, SVG generation and validation,
// variants, guidelines and packaging. Each agent embeds BaseAgent for status
// and metrics bookkeeping and registers itself through RegisterAll.
package agents

import (
	"context"
	"sync"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
)

// BaseAgent provides status, metrics and run-context bookkeeping shared by
// every pipeline agent. Embed it and implement Execute.
type BaseAgent struct {
	id  string
	def agent.Def

	mu      sync.RWMutex
	status  agent.Status
	metrics agent.Metrics
	run     *agent.RunContext
}

// NewBaseAgent creates the shared base for one agent definition.
func NewBaseAgent(def agent.Def) *BaseAgent {
	return &BaseAgent{id: def.ID, def: def, status: agent.StatusIdle}
}

// ID returns the agent identifier.
func (b *BaseAgent) ID() string { return b.id }

// Initialize stores the shared run context.
func (b *BaseAgent) Initialize(ctx context.Context, rc *agent.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run = rc
	b.status = agent.StatusIdle
	return nil
}

// Status returns the current lifecycle status.
func (b *BaseAgent) Status() agent.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// SetStatus records a lifecycle transition. Called by the orchestrator.
func (b *BaseAgent) SetStatus(s agent.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Metrics returns a copy of the accumulated metrics.
func (b *BaseAgent) Metrics() agent.Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// RunContext returns the stored run context, nil before Initialize.
func (b *BaseAgent) RunContext() *agent.RunContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.run
}

// recordUsage accumulates token usage from one model call.
func (b *BaseAgent) recordUsage(u agent.TokenUsage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TokenUsage.Input += u.Input
	b.metrics.TokenUsage.Output += u.Output
	b.metrics.TokenUsage.Total += u.Total
}

// observe accumulates wall time for one execution.
func (b *BaseAgent) observe(start time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.ExecutionTime += time.Since(start)
}
