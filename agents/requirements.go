package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
)

// Requirements is the structured design brief distilled from the raw input.
type Requirements struct {
	BrandName   string   `json:"brandName"`
	Industry    string   `json:"industry"`
	Keywords    []string `json:"keywords"`
	Tone        string   `json:"tone"`
	Personality []string `json:"personality,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// RequirementsAgent turns the free-form brand brief into structured design
// requirements. With a model available it asks for the distillation; without
// one it derives requirements mechanically from the brief text.
type RequirementsAgent struct {
	*BaseAgent
	llm Completer
}

// NewRequirementsAgent creates the requirements analysis agent.
func NewRequirementsAgent(def agent.Def, llm Completer) *RequirementsAgent {
	return &RequirementsAgent{BaseAgent: NewBaseAgent(def), llm: llm}
}

func (a *RequirementsAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	if input.Brief.BrandName == "" {
		return nil, fmt.Errorf("brief has no brand name")
	}

	req := a.analyze(ctx, input.Brief)
	return &agent.Output{Kind: "requirements", Payload: req}, nil
}

func (a *RequirementsAgent) analyze(ctx context.Context, brief agent.Brief) Requirements {
	var req Requirements
	prompt := fmt.Sprintf(
		"Distill this brand brief into design requirements.\n\nBrand: %s\nIndustry: %s\nDescription: %s\nStyles: %v\n\nReturn JSON with fields brandName, industry, keywords, tone, personality, constraints.",
		brief.BrandName, brief.Industry, brief.Description, brief.Styles)
	if completeJSON(ctx, a.BaseAgent, a.llm,
		"You are a brand strategist extracting logo design requirements.", prompt, &req) &&
		req.BrandName != "" {
		return req
	}

	req = Requirements{
		BrandName: brief.BrandName,
		Industry:  brief.Industry,
		Keywords:  keywordsFrom(brief.Description, 8),
		Tone:      "balanced",
	}
	if len(brief.Styles) > 0 {
		req.Tone = brief.Styles[0]
		req.Personality = brief.Styles
	}
	return req
}
