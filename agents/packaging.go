package agents

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/plan"
)

// Package is the final deliverable: a zip archive of every asset.
type Package struct {
	Archive []byte   `json:"archive"` // zip bytes, base64 in JSON
	Files   []string `json:"files"`
	Size    int      `json:"size"`
}

// PackagingAgent bundles the validated logo, its variants and the guidelines
// into one downloadable archive.
type PackagingAgent struct {
	*BaseAgent
}

// NewPackagingAgent creates the packaging agent.
func NewPackagingAgent(def agent.Def) *PackagingAgent {
	return &PackagingAgent{BaseAgent: NewBaseAgent(def)}
}

func (a *PackagingAgent) Execute(ctx context.Context, input agent.Input) (*agent.Output, error) {
	start := time.Now()
	defer a.observe(start)

	logo, err := upstreamAs[ValidatedSVG](input, plan.AgentSVGCheck)
	if err != nil {
		return nil, err
	}
	variants, err := upstreamAs[Variants](input, plan.AgentVariants)
	if err != nil {
		return nil, err
	}
	guideline, err := upstreamAs[Guideline](input, plan.AgentGuideline)
	if err != nil {
		return nil, err
	}

	files := map[string][]byte{
		"logo.svg":                []byte(logo.Markup),
		"variants/monochrome.svg": []byte(variants.Monochrome),
		"variants/inverted.svg":   []byte(variants.Inverted),
		"variants/icon.svg":       []byte(variants.Icon),
		"guidelines.md":           []byte(guideline.Body),
	}
	if brief, err := json.MarshalIndent(input.Brief, "", "  "); err == nil {
		files["brief.json"] = brief
	}

	pkg, err := buildArchive(files)
	if err != nil {
		return nil, fmt.Errorf("packaging: %w", err)
	}
	return &agent.Output{Kind: "package", Payload: pkg}, nil
}

// buildArchive zips the files in a stable order.
func buildArchive(files map[string][]byte) (Package, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return Package{}, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return Package{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return Package{}, err
	}

	return Package{Archive: buf.Bytes(), Files: names, Size: buf.Len()}, nil
}
