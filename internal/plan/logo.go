package plan

import (
	"fmt"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
)

// Agent IDs for the logo generation pipeline. IDs double as shared-memory keys.
const (
	AgentRequirements = "requirements"
	AgentMoodboard    = "moodboard"
	AgentSelection    = "selection"
	AgentSVGGen       = "svggen"
	AgentSVGCheck     = "svgcheck"
	AgentVariants     = "variants"
	AgentGuideline    = "guideline"
	AgentPackaging    = "packaging"
)

// Logo returns the execution plan for a full logo package generation. The
// plan is linear with one branch: guideline authoring is non-critical, and
// packaging consumes both branches.
func Logo() *Plan {
	return &Plan{Stages: []Stage{
		{
			ID: "requirements", Name: "Analyzing requirements",
			Agents:            []string{AgentRequirements},
			EstimatedDuration: 8000,
		},
		{
			ID: "moodboard", Name: "Exploring visual directions",
			Agents:            []string{AgentMoodboard},
			DependsOn:         []string{"requirements"},
			EstimatedDuration: 12000,
		},
		{
			ID: "selection", Name: "Selecting concept",
			Agents:            []string{AgentSelection},
			DependsOn:         []string{"requirements", "moodboard"},
			EstimatedDuration: 6000,
		},
		{
			ID: "generation", Name: "Drawing logo",
			Agents:            []string{AgentSVGGen},
			DependsOn:         []string{"requirements", "selection"},
			EstimatedDuration: 20000,
		},
		{
			ID: "validation", Name: "Validating artwork",
			Agents:            []string{AgentSVGCheck},
			DependsOn:         []string{"generation"},
			EstimatedDuration: 4000,
		},
		{
			ID: "variants", Name: "Rendering variants",
			Agents:            []string{AgentVariants},
			DependsOn:         []string{"validation"},
			EstimatedDuration: 10000,
		},
		{
			ID: "guideline", Name: "Writing brand guidelines",
			Agents:            []string{AgentGuideline},
			DependsOn:         []string{"validation"},
			NonCritical:       true,
			EstimatedDuration: 15000,
		},
		{
			ID: "packaging", Name: "Packaging assets",
			Agents:            []string{AgentPackaging},
			DependsOn:         []string{"validation", "variants", "guideline"},
			EstimatedDuration: 5000,
		},
	}}
}

// FallbackOutput produces a degraded substitute for a non-critical agent that
// exhausted its retries, so downstream input assembly can still proceed.
// Returns nil if the agent has no fallback, in which case the failure is
// terminal after all.
func FallbackOutput(agentID string, brief agent.Brief) *agent.Output {
	switch agentID {
	case AgentGuideline:
		return &agent.Output{
			AgentID: AgentGuideline,
			Kind:    "guideline",
			Payload: map[string]any{
				"title": fmt.Sprintf("%s Brand Guidelines", brief.BrandName),
				"body": fmt.Sprintf(
					"# %s\n\nUse the primary logo on light backgrounds and keep clear space equal to the mark height.\n",
					brief.BrandName),
			},
			Produced: time.Now(),
			Fallback: true,
		}
	default:
		return nil
	}
}
