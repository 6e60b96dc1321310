package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// Theme is one visual direction on the moodboard.
type Theme struct {
	Name       string   `json:"name"`
	Palette    []string `json:"palette"` // hex colors, primary first
	FontFamily string   `json:"fontFamily"`
	Motif      string   `json:"motif"` // circle, shield, wave or monogram
	Rationale  string   `json:"rationale,omitempty"`
}

// Moodboard is a set of candidate themes.
type Moodboard struct {
	Themes []Theme `json:"themes"`
}

// MoodboardAgent proposes candidate visual directions from the requirements.
type MoodboardAgent struct {
	*BaseAgent
	llm Completer
}

// NewMoodboardAgent creates the moodboard agent.
func NewMoodboardAgent(def agent.Def, llm Completer) *MoodboardAgent {
	return &MoodboardAgent{BaseAgent: NewBaseAgent(def), llm: llm}
}

func (a *MoodboardAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	req, err := upstreamAs[Requirements](input, plan.AgentRequirements)
	if err != nil {
		return nil, err
	}

	board := a.explore(ctx, input.Brief, req)
	if len(board.Themes) == 0 {
		return nil, fmt.Errorf("moodboard produced no themes")
	}
	return &agent.Output{Kind: "moodboard", Payload: board}, nil
}

func (a *MoodboardAgent) explore(ctx context.Context, brief agent.Brief, req Requirements) Moodboard {
	var board Moodboard
	prompt := fmt.Sprintf(
		"Propose three logo themes for %q (%s industry, tone %s, keywords %v).\nReturn JSON {\"themes\":[{\"name\",\"palette\",\"fontFamily\",\"motif\",\"rationale\"}]} where motif is one of circle, shield, wave, monogram.",
		req.BrandName, req.Industry, req.Tone, req.Keywords)
	if completeJSON(ctx, a.BaseAgent, a.llm,
		"You are an art director assembling a logo moodboard.", prompt, &board) &&
		len(board.Themes) > 0 {
		return board
	}

	return Moodboard{Themes: syntheticThemes(brief)}
}

// syntheticThemes derives deterministic themes from the brief so runs without
// a model still yield stable, brief-dependent directions.
func syntheticThemes(brief agent.Brief) []Theme {
	palettes := [][]string{
		{"#1E3A5F", "#4A90D9", "#F5F7FA"},
		{"#2D6A4F", "#74C69D", "#F1FAEE"},
		{"#7B2D26", "#E07A5F", "#FDF6EC"},
		{"#3D348B", "#7678ED", "#F7F7FF"},
	}
	motifs := []string{"circle", "shield", "wave", "monogram"}
	fonts := []string{"Inter", "Libre Baskerville", "Montserrat", "Space Grotesk"}

	h := fnv.New32a()
	h.Write([]byte(brief.BrandName + brief.Industry))
	seed := int(h.Sum32())

	themes := make([]Theme, 3)
	for i := range themes {
		idx := (seed + i) % len(palettes)
		palette := palettes[idx]
		if len(brief.Colors) > 0 {
			palette = append(append([]string(nil), brief.Colors...), palette...)
			if len(palette) > 3 {
				palette = palette[:3]
			}
		}
		themes[i] = Theme{
			Name:       fmt.Sprintf("Direction %d", i+1),
			Palette:    palette,
			FontFamily: fonts[(seed+i)%len(fonts)],
			Motif:      motifs[(seed+i)%len(motifs)],
			Rationale:  fmt.Sprintf("Derived from the %s brief", brief.Industry),
		}
	}
	return themes
}
