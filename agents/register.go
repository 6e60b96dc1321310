package agents

import (
	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// RegisterAll registers the full logo pipeline roster with the registry. The
// completer may be nil, in which case every agent runs its deterministic path.
func RegisterAll(reg *agent.Registry, llm Completer) {
	reg.Register(plan.AgentRequirements, func(def agent.Def) (agent.Agent, error) {
		return NewRequirementsAgent(def, llm), nil
	})
	reg.Register(plan.AgentMoodboard, func(def agent.Def) (agent.Agent, error) {
		return NewMoodboardAgent(def, llm), nil
	})
	reg.Register(plan.AgentSelection, func(def agent.Def) (agent.Agent, error) {
		return NewSelectionAgent(def, llm), nil
	})
	reg.Register(plan.AgentSVGGen, func(def agent.Def) (agent.Agent, error) {
		return NewSVGGenAgent(def, llm), nil
	})
	reg.Register(plan.AgentSVGCheck, func(def agent.Def) (agent.Agent, error) {
		return NewSVGCheckAgent(def), nil
	})
	reg.Register(plan.AgentVariants, func(def agent.Def) (agent.Agent, error) {
		return NewVariantsAgent(def), nil
	})
	reg.Register(plan.AgentGuideline, func(def agent.Def) (agent.Agent, error) {
		return NewGuidelineAgent(def, llm), nil
	})
	reg.Register(plan.AgentPackaging, func(def agent.Def) (agent.Agent, error) {
		return NewPackagingAgent(def), nil
	})
}
