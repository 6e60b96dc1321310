// Package agent defines the contract between the pipeline orchestrator and the
// units of work it schedules. An Agent is one opaque pipeline step: it is
// initialized once with the run context, executed with an input assembled from
// earlier agents' outputs, and reports metrics afterwards.
//
// Agents never mutate orchestrator state directly. Everything an agent wants to
// say travels back through its Execute return value; the orchestrator alone
// writes shared memory.
package agent

import (
	"context"
	"time"
)

// Agent is the interface every pipeline step must implement.
type Agent interface {
	// ID returns the unique identifier for this agent within a run
	// (e.g. "requirements", "svggen"). IDs double as shared-memory keys.
	ID() string

	// Initialize prepares the agent for execution. It is called exactly once
	// per run, before any stage starts, with the run-scoped context.
	Initialize(ctx context.Context, rc *RunContext) error

	// Execute performs the agent's work. The input is assembled by the
	// orchestrator from shared memory; the agent must not reach outside it.
	// A nil error means success and a non-nil Output.
	Execute(ctx context.Context, input Input) (*Output, error)

	// Status returns the agent's current lifecycle state.
	Status() Status

	// Metrics returns token usage, wall-clock execution time and retry count
	// accumulated so far.
	Metrics() Metrics
}

// Status is the lifecycle state of an agent within a run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Brief is the brand brief driving a generation run.
type Brief struct {
	BrandName   string   `yaml:"brand_name" json:"brandName"`
	Industry    string   `yaml:"industry" json:"industry"`
	Description string   `yaml:"description" json:"description"`
	Styles      []string `yaml:"styles,omitempty" json:"styles,omitempty"`
	Colors      []string `yaml:"colors,omitempty" json:"colors,omitempty"`
}

// RunContext is the shared, read-mostly context handed to every agent at
// initialization time.
type RunContext struct {
	SessionID string
	Brief     Brief
	StartTime time.Time
	Debug     bool

	// Memory is a read-only view of the run's shared memory. Agents may read
	// earlier outputs through it but cannot write.
	Memory MemoryReader
}

// MemoryReader is the read-only view of shared memory exposed to agents.
type MemoryReader interface {
	// Output returns the stored output of the named agent, if present.
	Output(agentID string) (*Output, bool)
}

// Input is the deterministic input assembled for one agent execution.
type Input struct {
	Brief Brief

	// Upstream holds the outputs this agent's input-assembly rule selected,
	// keyed by producing agent ID.
	Upstream map[string]*Output
}

// Output is the result of one successful agent execution.
type Output struct {
	AgentID  string    `json:"agentId"`
	Kind     string    `json:"kind"`
	Payload  any       `json:"payload"`
	Produced time.Time `json:"produced"`

	// Fallback marks a degraded output substituted after a non-critical
	// agent exhausted its retries.
	Fallback bool `json:"fallback,omitempty"`
}

// TokenUsage counts LLM tokens consumed by an agent.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Metrics aggregates an agent's resource accounting for one run.
type Metrics struct {
	TokenUsage    TokenUsage    `json:"tokenUsage"`
	ExecutionTime time.Duration `json:"executionTime"`
	RetryCount    int           `json:"retryCount"`
}

// Add accumulates another metrics sample into m.
func (m *Metrics) Add(other Metrics) {
	m.TokenUsage.Input += other.TokenUsage.Input
	m.TokenUsage.Output += other.TokenUsage.Output
	m.TokenUsage.Total += other.TokenUsage.Total
	m.ExecutionTime += other.ExecutionTime
	m.RetryCount += other.RetryCount
}

// Message is an inter-agent notification appended to the orchestrator's
// stage-scoped queue. To is an agent ID or "all" for broadcast.
type Message struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcast is the wildcard recipient for Message.To.
const Broadcast = "all"
