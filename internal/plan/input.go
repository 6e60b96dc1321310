package plan

import (
	"errors"
	"fmt"

	"github.com/logoforge-dev/logoforge/agent"
)

// ErrInputAssembly marks a failure to assemble an agent's input from shared
// memory. It indicates a wiring defect (a required upstream output is absent),
// distinct from the agent itself failing.
var ErrInputAssembly = errors.New("input assembly failed")

// InputBuilder computes one agent's input deterministically from the brief and
// the run's shared memory.
type InputBuilder func(brief agent.Brief, mem agent.MemoryReader) (agent.Input, error)

// InputBuilders is the per-agent input-assembly table for the logo pipeline.
// Keeping it next to the plan keeps sequencing and data-flow reviewable
// side by side.
func InputBuilders() map[string]InputBuilder {
	return map[string]InputBuilder{
		AgentRequirements: briefOnly(),
		AgentMoodboard:    needs(AgentRequirements),
		AgentSelection:    needs(AgentRequirements, AgentMoodboard),
		AgentSVGGen:       needs(AgentRequirements, AgentSelection),
		AgentSVGCheck:     needs(AgentSVGGen),
		AgentVariants:     needs(AgentSVGCheck),
		AgentGuideline:    needs(AgentRequirements, AgentSVGCheck),
		AgentPackaging:    needs(AgentSVGCheck, AgentVariants, AgentGuideline),
	}
}

// briefOnly builds an input carrying only the brand brief.
func briefOnly() InputBuilder {
	return func(brief agent.Brief, _ agent.MemoryReader) (agent.Input, error) {
		return agent.Input{Brief: brief}, nil
	}
}

// needs builds an input requiring the outputs of the named upstream agents.
// Absence of any of them is an ErrInputAssembly.
func needs(upstream ...string) InputBuilder {
	return func(brief agent.Brief, mem agent.MemoryReader) (agent.Input, error) {
		in := agent.Input{
			Brief:    brief,
			Upstream: make(map[string]*agent.Output, len(upstream)),
		}
		for _, id := range upstream {
			out, ok := mem.Output(id)
			if !ok {
				return agent.Input{}, fmt.Errorf("%w: missing output from %q", ErrInputAssembly, id)
			}
			in.Upstream[id] = out
		}
		return in, nil
	}
}
