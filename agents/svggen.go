package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// SVGDocument is a generated vector artwork.
type SVGDocument struct {
	Markup string `json:"markup"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// SVGGenAgent renders the selected theme into SVG artwork. With a model it
// asks for the markup directly; otherwise it composes the mark from the
// theme's motif, palette and the brand initials.
type SVGGenAgent struct {
	*BaseAgent
	llm Completer
}

// NewSVGGenAgent creates the logo generation agent.
func NewSVGGenAgent(def agent.Def, llm Completer) *SVGGenAgent {
	return &SVGGenAgent{BaseAgent: NewBaseAgent(def), llm: llm}
}

func (a *SVGGenAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	req, err := upstreamAs[Requirements](input, plan.AgentRequirements)
	if err != nil {
		return nil, err
	}
	sel, err := upstreamAs[Selection](input, plan.AgentSelection)
	if err != nil {
		return nil, err
	}

	doc := a.render(ctx, req, sel)
	if !strings.Contains(doc.Markup, "<svg") {
		return nil, fmt.Errorf("generated artwork is not SVG")
	}
	return &agent.Output{Kind: "svg", Payload: doc}, nil
}

func (a *SVGGenAgent) render(ctx context.Context, req Requirements, sel Selection) SVGDocument {
	var doc SVGDocument
	prompt := fmt.Sprintf(
		"Draw an SVG logo for %q: motif %s, palette %v, font %s.\nReturn JSON {\"markup\": \"<svg...>\", \"width\": 512, \"height\": 512}.",
		req.BrandName, sel.Theme.Motif, sel.Theme.Palette, sel.Theme.FontFamily)
	if completeJSON(ctx, a.BaseAgent, a.llm,
		"You are a vector artist producing clean, minimal SVG logos.", prompt, &doc) &&
		strings.Contains(doc.Markup, "<svg") {
		if doc.Width == 0 {
			doc.Width, doc.Height = 512, 512
		}
		return doc
	}

	return composeSVG(req.BrandName, sel.Theme)
}

// composeSVG builds a deterministic mark from the theme.
func composeSVG(brandName string, th Theme) SVGDocument {
	primary, accent, bg := "#1E3A5F", "#4A90D9", "#FFFFFF"
	if len(th.Palette) > 0 {
		primary = th.Palette[0]
	}
	if len(th.Palette) > 1 {
		accent = th.Palette[1]
	}
	if len(th.Palette) > 2 {
		bg = th.Palette[2]
	}
	font := th.FontFamily
	if font == "" {
		font = "Inter"
	}

	var mark string
	switch th.Motif {
	case "shield":
		mark = fmt.Sprintf(
			`<path d="M256 64 L416 128 L416 288 Q416 400 256 448 Q96 400 96 288 L96 128 Z" fill="%s" stroke="%s" stroke-width="8"/>`,
			primary, accent)
	case "wave":
		mark = fmt.Sprintf(
			`<path d="M64 288 Q160 192 256 288 T448 288 L448 352 Q352 448 256 352 T64 352 Z" fill="%s"/><path d="M64 224 Q160 128 256 224 T448 224" fill="none" stroke="%s" stroke-width="16"/>`,
			primary, accent)
	case "monogram":
		mark = fmt.Sprintf(
			`<rect x="96" y="96" width="320" height="320" rx="48" fill="%s"/><rect x="128" y="128" width="256" height="256" rx="32" fill="none" stroke="%s" stroke-width="8"/>`,
			primary, accent)
	default: // circle
		mark = fmt.Sprintf(
			`<circle cx="256" cy="256" r="176" fill="%s"/><circle cx="256" cy="256" r="140" fill="none" stroke="%s" stroke-width="12"/>`,
			primary, accent)
	}

	markup := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 512 512" width="512" height="512">`+
			`<rect width="512" height="512" fill="%s"/>%s`+
			`<text x="256" y="276" font-family="%s" font-size="120" font-weight="700" fill="%s" text-anchor="middle" dominant-baseline="middle">%s</text>`+
			`</svg>`,
		bg, mark, font, bg, initials(brandName))
	return SVGDocument{Markup: markup, Width: 512, Height: 512}
}
