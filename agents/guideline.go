package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// Guideline is the brand usage document, markdown-bodied.
type Guideline struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Sections []string `json:"sections,omitempty"`
}

// GuidelineAgent authors brand usage guidelines from the requirements and the
// validated logo. The pipeline marks its stage non-critical: when it fails for
// good, a degraded fallback document takes its place.
type GuidelineAgent struct {
	*BaseAgent
	llm Completer
}

// NewGuidelineAgent creates the guideline authoring agent.
func NewGuidelineAgent(def agent.Def, llm Completer) *GuidelineAgent {
	return &GuidelineAgent{BaseAgent: NewBaseAgent(def), llm: llm}
}

func (a *GuidelineAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	req, err := upstreamAs[Requirements](input, plan.AgentRequirements)
	if err != nil {
		return nil, err
	}
	if _, err := upstreamAs[ValidatedSVG](input, plan.AgentSVGCheck); err != nil {
		return nil, err
	}

	g := a.author(ctx, req)
	return &agent.Output{Kind: "guideline", Payload: g}, nil
}

func (a *GuidelineAgent) author(ctx context.Context, req Requirements) Guideline {
	var g Guideline
	prompt := fmt.Sprintf(
		"Write brand guidelines for %q (%s, tone %s). Cover logo usage, clear space, color and typography.\nReturn JSON {\"title\", \"body\" (markdown), \"sections\"}.",
		req.BrandName, req.Industry, req.Tone)
	if completeJSON(ctx, a.BaseAgent, a.llm,
		"You are a brand designer writing concise usage guidelines.", prompt, &g) &&
		g.Body != "" {
		if g.Title == "" {
			g.Title = fmt.Sprintf("%s Brand Guidelines", req.BrandName)
		}
		return g
	}

	sections := []string{"Logo Usage", "Clear Space", "Color", "Typography"}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Brand Guidelines\n\n", req.BrandName)
	fmt.Fprintf(&b, "## Logo Usage\n\nUse the primary logo on light backgrounds. Prefer the inverted variant on dark surfaces and the icon variant at sizes below 32px.\n\n")
	fmt.Fprintf(&b, "## Clear Space\n\nKeep clear space around the mark equal to the height of the brand initials on every side.\n\n")
	fmt.Fprintf(&b, "## Color\n\nReproduce the palette exactly; fall back to the monochrome variant when color printing is unavailable.\n\n")
	fmt.Fprintf(&b, "## Typography\n\nPair the mark with its display face for headings and a neutral sans for body copy, keeping the %s tone.\n", req.Tone)

	return Guideline{
		Title:    fmt.Sprintf("%s Brand Guidelines", req.BrandName),
		Body:     b.String(),
		Sections: sections,
	}
}
