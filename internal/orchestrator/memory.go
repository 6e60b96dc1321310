package orchestrator

import (
	"sync"

	"github.com/logoforge-dev/logoforge/agent"
)

// Memory is the per-run shared key-value store through which agents' outputs
// become visible to later agents. Keys are agent IDs and writes happen only in
// the orchestrator, immediately after an agent settles, so there are no
// write-write races with agent code.
type Memory struct {
	mu      sync.RWMutex
	outputs map[string]*agent.Output
}

// NewMemory creates an empty shared-memory store.
func NewMemory() *Memory {
	return &Memory{outputs: make(map[string]*agent.Output)}
}

// Set stores an agent's output, overwriting any previous value. Under normal
// flow keys are write-once; a retried agent overwrites its own key on success.
func (m *Memory) Set(out *agent.Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[out.AgentID] = out
}

// Output returns the stored output of the named agent, if present.
// Implements agent.MemoryReader.
func (m *Memory) Output(agentID string) (*agent.Output, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, ok := m.outputs[agentID]
	return out, ok
}

// Len returns the number of stored outputs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.outputs)
}
