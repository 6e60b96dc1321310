package agents

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// ValidatedSVG is artwork that passed structural validation, with unsafe
// constructs stripped.
type ValidatedSVG struct {
	Markup string   `json:"markup"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Issues []string `json:"issues,omitempty"`
}

// SVGCheckAgent validates and sanitizes generated artwork. Malformed XML is an
// execution failure (the upstream generator gets retried); risky but parseable
// content is stripped and reported as issues.
type SVGCheckAgent struct {
	*BaseAgent
}

// NewSVGCheckAgent creates the artwork validation agent.
func NewSVGCheckAgent(def agent.Def) *SVGCheckAgent {
	return &SVGCheckAgent{BaseAgent: NewBaseAgent(def)}
}

// Elements that execute or embed foreign content. Never allowed in a logo.
var bannedElements = map[string]bool{
	"script":        true,
	"foreignObject": true,
	"iframe":        true,
	"use":           true,
}

func (a *SVGCheckAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	doc, err := upstreamAs[SVGDocument](input, plan.AgentSVGGen)
	if err != nil {
		return nil, err
	}

	validated, err := Sanitize(doc)
	if err != nil {
		return nil, fmt.Errorf("artwork validation: %w", err)
	}
	return &agent.Output{Kind: "svg", Payload: validated}, nil
}

// Sanitize parses the markup, rejects structurally broken documents and
// re-serializes with banned elements and event-handler attributes removed.
func Sanitize(doc SVGDocument) (ValidatedSVG, error) {
	dec := xml.NewDecoder(strings.NewReader(doc.Markup))

	var out strings.Builder
	enc := xml.NewEncoder(&out)

	var issues []string
	sawSVG := false
	skipDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ValidatedSVG{}, fmt.Errorf("malformed SVG: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if skipDepth > 0 {
				skipDepth++
				continue
			}
			if bannedElements[t.Name.Local] {
				issues = append(issues, fmt.Sprintf("removed element <%s>", t.Name.Local))
				skipDepth = 1
				continue
			}
			if t.Name.Local == "svg" {
				sawSVG = true
			}
			clean := t.Copy()
			// Drop the resolved namespace so the encoder does not repeat
			// xmlns declarations on every element; the literal xmlns
			// attribute on the root survives in Attr.
			clean.Name.Space = ""
			clean.Attr = cleanAttrs(t.Attr, &issues)
			if err := enc.EncodeToken(clean); err != nil {
				return ValidatedSVG{}, err
			}
		case xml.EndElement:
			if skipDepth > 0 {
				skipDepth--
				continue
			}
			t.Name.Space = ""
			if err := enc.EncodeToken(t); err != nil {
				return ValidatedSVG{}, err
			}
		case xml.CharData:
			if skipDepth > 0 {
				continue
			}
			if err := enc.EncodeToken(t); err != nil {
				return ValidatedSVG{}, err
			}
		default:
			// Comments, directives and processing instructions are dropped.
		}
	}

	if !sawSVG {
		return ValidatedSVG{}, fmt.Errorf("malformed SVG: no <svg> root element")
	}
	if err := enc.Flush(); err != nil {
		return ValidatedSVG{}, err
	}

	return ValidatedSVG{
		Markup: out.String(),
		Width:  doc.Width,
		Height: doc.Height,
		Issues: issues,
	}, nil
}

// cleanAttrs drops event handlers and javascript hrefs.
func cleanAttrs(attrs []xml.Attr, issues *[]string) []xml.Attr {
	out := attrs[:0]
	for _, at := range attrs {
		name := strings.ToLower(at.Name.Local)
		switch {
		case strings.HasPrefix(name, "on"):
			*issues = append(*issues, fmt.Sprintf("removed attribute %s", at.Name.Local))
		case name == "href" && strings.HasPrefix(strings.TrimSpace(strings.ToLower(at.Value)), "javascript:"):
			*issues = append(*issues, "removed javascript href")
		default:
			out = append(out, at)
		}
	}
	return out
}
