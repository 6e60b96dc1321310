package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// Selection is the chosen theme plus the reasoning behind the choice.
type Selection struct {
	Theme     Theme  `json:"theme"`
	Rationale string `json:"rationale,omitempty"`
}

// SelectionAgent picks the winning theme from the moodboard.
type SelectionAgent struct {
	*BaseAgent
	llm Completer
}

// NewSelectionAgent creates the concept selection agent.
func NewSelectionAgent(def agent.Def, llm Completer) *SelectionAgent {
	return &SelectionAgent{BaseAgent: NewBaseAgent(def), llm: llm}
}

func (a *SelectionAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	req, err := upstreamAs[Requirements](input, plan.AgentRequirements)
	if err != nil {
		return nil, err
	}
	board, err := upstreamAs[Moodboard](input, plan.AgentMoodboard)
	if err != nil {
		return nil, err
	}
	if len(board.Themes) == 0 {
		return nil, fmt.Errorf("moodboard has no themes to select from")
	}

	sel := a.choose(ctx, req, board)
	return &agent.Output{Kind: "selection", Payload: sel}, nil
}

func (a *SelectionAgent) choose(ctx context.Context, req Requirements, board Moodboard) Selection {
	var sel Selection
	prompt := fmt.Sprintf(
		"Given requirements (tone %s, keywords %v) and these themes:\n%s\nPick the best theme. Return JSON {\"theme\": <the chosen theme object>, \"rationale\": \"...\"}.",
		req.Tone, req.Keywords, describeThemes(board.Themes))
	if completeJSON(ctx, a.BaseAgent, a.llm,
		"You are a creative director choosing a logo concept.", prompt, &sel) &&
		sel.Theme.Name != "" {
		return sel
	}

	// Score by keyword overlap with each theme's rationale; ties go to the
	// first theme.
	best, bestScore := 0, -1
	for i, th := range board.Themes {
		score := 0
		text := strings.ToLower(th.Rationale + " " + th.Motif)
		for _, kw := range req.Keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return Selection{
		Theme:     board.Themes[best],
		Rationale: fmt.Sprintf("Strongest match for the %s tone", req.Tone),
	}
}

func describeThemes(themes []Theme) string {
	var b strings.Builder
	for i, th := range themes {
		fmt.Fprintf(&b, "%d. %s: motif %s, palette %v, font %s (%s)\n",
			i+1, th.Name, th.Motif, th.Palette, th.FontFamily, th.Rationale)
	}
	return b.String()
}
