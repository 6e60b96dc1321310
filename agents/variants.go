package agents

import (
	"context"
	"regexp"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// Variants are the derived renditions of the primary logo.
type Variants struct {
	Monochrome string `json:"monochrome"`
	Inverted   string `json:"inverted"`
	Icon       string `json:"icon"`
}

// VariantsAgent derives monochrome, inverted and icon-only renditions from the
// validated primary artwork. Pure transformation, no model involved.
type VariantsAgent struct {
	*BaseAgent
}

// NewVariantsAgent creates the variants agent.
func NewVariantsAgent(def agent.Def) *VariantsAgent {
	return &VariantsAgent{BaseAgent: NewBaseAgent(def)}
}

func (a *VariantsAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	validated, err := upstreamAs[ValidatedSVG](input, plan.AgentSVGCheck)
	if err != nil {
		return nil, err
	}

	v := Variants{
		Monochrome: recolor(validated.Markup, "#000000"),
		Inverted:   recolor(validated.Markup, "#FFFFFF"),
		Icon:       stripText(validated.Markup),
	}
	return &agent.Output{Kind: "variants", Payload: v}, nil
}

var (
	colorAttrRe = regexp.MustCompile(`(fill|stroke)="#[0-9a-fA-F]{3,8}"`)
	textElemRe  = regexp.MustCompile(`(?s)<text\b[^>]*>.*?</text>|<text\b[^>]*/>`)
)

// recolor replaces every explicit fill and stroke color with the given one.
// fill="none" carries no color and survives untouched.
func recolor(markup, color string) string {
	return colorAttrRe.ReplaceAllString(markup, `$1="`+color+`"`)
}

// stripText removes text elements, leaving only the graphic mark.
func stripText(markup string) string {
	return textElemRe.ReplaceAllString(markup, "")
}
