// Package plan defines the static execution plan the orchestrator walks: an
// ordered list of stages, each naming its agents, its dependency stage IDs and
// whether its agents run concurrently. The plan is hand-authored rather than
// derived from agent metadata, so sequencing is reviewable by inspection.
package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDependency is returned when a stage depends on a stage ID
	// that does not exist in the plan.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrForwardDependency is returned when a stage depends on a stage that
	// appears later in the plan. The plan is ordered; dependencies must
	// always point backwards.
	ErrForwardDependency = errors.New("forward dependency")

	// ErrDuplicateStage is returned when two stages share an ID.
	ErrDuplicateStage = errors.New("duplicate stage id")

	// ErrDuplicateAgent is returned when an agent ID appears in more than
	// one stage.
	ErrDuplicateAgent = errors.New("duplicate agent id")
)

// Stage is one unit of the execution plan.
type Stage struct {
	// ID identifies the stage. Dependencies reference stage IDs, not agent IDs.
	ID string `yaml:"id"`

	// Name is a human-readable label surfaced in progress events.
	Name string `yaml:"name,omitempty"`

	// Agents lists the agent IDs this stage runs.
	Agents []string `yaml:"agents"`

	// DependsOn lists the stage IDs that must complete before this stage.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Parallel runs the stage's agents concurrently. Meaningful only when
	// the stage names more than one agent.
	Parallel bool `yaml:"parallel,omitempty"`

	// NonCritical marks the stage tolerant of failure: if its agents
	// exhaust retries, the run substitutes a fallback output instead of
	// aborting.
	NonCritical bool `yaml:"non_critical,omitempty"`

	// EstimatedDuration is an advisory duration in milliseconds for the
	// start-message stage list.
	EstimatedDuration int64 `yaml:"estimated_duration,omitempty"`
}

// Plan is the full ordered list of stages.
type Plan struct {
	Stages []Stage `yaml:"stages"`
}

// Validate checks the plan for authoring defects: duplicate stage or agent
// IDs, unknown dependencies, and dependencies on later stages. A failure here
// is a configuration error, never a runtime condition to retry.
func (p *Plan) Validate() error {
	position := make(map[string]int, len(p.Stages))
	for i, st := range p.Stages {
		if _, exists := position[st.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, st.ID)
		}
		position[st.ID] = i
	}

	seenAgents := make(map[string]string)
	for i, st := range p.Stages {
		if len(st.Agents) == 0 {
			return fmt.Errorf("stage %s names no agents", st.ID)
		}
		for _, id := range st.Agents {
			if prev, exists := seenAgents[id]; exists {
				return fmt.Errorf("%w: agent %q in stages %q and %q", ErrDuplicateAgent, id, prev, st.ID)
			}
			seenAgents[id] = st.ID
		}
		for _, dep := range st.DependsOn {
			pos, exists := position[dep]
			if !exists {
				return fmt.Errorf("%w: stage %q depends on unknown stage %q", ErrUnknownDependency, st.ID, dep)
			}
			if pos >= i {
				return fmt.Errorf("%w: stage %q depends on later stage %q", ErrForwardDependency, st.ID, dep)
			}
		}
	}

	return nil
}

// StageByID returns the stage with the given ID, if present.
func (p *Plan) StageByID(id string) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i], true
		}
	}
	return nil, false
}

// AgentIDs returns every agent ID named by the plan, in stage order.
func (p *Plan) AgentIDs() []string {
	var ids []string
	for _, st := range p.Stages {
		ids = append(ids, st.Agents...)
	}
	return ids
}

// StageOf returns the stage that runs the given agent.
func (p *Plan) StageOf(agentID string) (*Stage, bool) {
	for i := range p.Stages {
		for _, id := range p.Stages[i].Agents {
			if id == agentID {
				return &p.Stages[i], true
			}
		}
	}
	return nil, false
}
