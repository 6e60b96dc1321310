// Package logoforge generates complete brand logo packages from a short brief:
// an agent pipeline produces the artwork, variants, guidelines and a packaged
// archive, reporting progress as it goes.
package logoforge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/agents"
	"github.com/logoforge-dev/logoforge/internal/orchestrator"
	"github.com/logoforge-dev/logoforge/internal/plan"
	"github.com/logoforge-dev/logoforge/pkg/cache"
	"github.com/logoforge-dev/logoforge/pkg/config"
	"github.com/logoforge-dev/logoforge/pkg/observability"
)

// Hooks receives run notifications. All fields optional.
type Hooks struct {
	OnProgress  orchestrator.ProgressFunc
	OnStageDone func(orchestrator.StageDone)
}

// Generator wires the agent roster, execution plan and result cache into a
// reusable entry point. One Generator serves many runs.
type Generator struct {
	cfg   *config.Config
	reg   *agent.Registry
	plan  *plan.Plan
	cache *cache.Cache
}

// New builds a Generator from configuration. The result cache, when enabled,
// is connected separately via ConnectCache so offline use stays possible.
func New(cfg *config.Config) (*Generator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	observability.InitMetrics()

	var completer agents.Completer
	if cfg.OpenAIKey != "" {
		completer = agents.NewOpenAIClient(cfg.OpenAIKey, cfg.DefaultModel, cfg.RequestsPerSecond)
	}

	reg := agent.NewRegistry()
	agents.RegisterAll(reg, completer)

	p := plan.Logo()
	if cfg.PlanPath != "" {
		data, err := os.ReadFile(cfg.PlanPath)
		if err != nil {
			return nil, fmt.Errorf("read plan: %w", err)
		}
		if p, err = plan.Parse(data); err != nil {
			return nil, err
		}
	}

	return &Generator{cfg: cfg, reg: reg, plan: p}, nil
}

// Config returns the active configuration.
func (g *Generator) Config() *config.Config { return g.cfg }

// Plan returns the active execution plan.
func (g *Generator) Plan() *plan.Plan { return g.plan }

// ConnectCache connects the Redis result cache when configured. A disabled
// cache is not an error.
func (g *Generator) ConnectCache(ctx context.Context) error {
	if !g.cfg.Redis.Enabled {
		return nil
	}
	c, err := cache.New(ctx, cache.Options{
		Addr:     g.cfg.Redis.Addr,
		Password: g.cfg.Redis.Password,
		DB:       g.cfg.Redis.DB,
		TTL:      g.cfg.Redis.TTL(),
	})
	if err != nil {
		return err
	}
	g.cache = c
	return nil
}

// Cache returns the connected result cache, nil when disabled.
func (g *Generator) Cache() *cache.Cache { return g.cache }

// CachedResult looks up a previously generated result for an identical brief.
func (g *Generator) CachedResult(ctx context.Context, brief agent.Brief) (*cache.Entry, bool) {
	if g.cache == nil {
		return nil, false
	}
	entry, err := g.cache.Get(ctx, brief)
	if err != nil {
		return nil, false
	}
	return entry, true
}

// NewRun constructs the orchestrator for one generation run, letting callers
// hold it for aborting. Most callers want Generate instead.
func (g *Generator) NewRun(brief agent.Brief, hooks Hooks) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(g.reg, g.plan, brief, orchestrator.Options{
		Defs:              g.cfg.Agents,
		RetryFailedAgents: g.cfg.Retry.Enabled,
		MaxRetries:        g.cfg.Retry.MaxRetries,
		InitialRetryDelay: g.cfg.Retry.InitialDelay(),
		Debug:             g.cfg.Debug,
		OnProgress:        hooks.OnProgress,
		OnStageDone:       hooks.OnStageDone,
	})
}

// Generate runs the full pipeline for a brief. Pipeline failures come back
// inside the Result; the error return covers construction problems only.
func (g *Generator) Generate(ctx context.Context, brief agent.Brief, hooks Hooks) (*orchestrator.Result, error) {
	run, err := g.NewRun(brief, hooks)
	if err != nil {
		return nil, err
	}
	return g.Run(ctx, run, brief), nil
}

// Run executes a prepared run, recording generation metrics and persisting a
// successful result in the cache. Callers that need the orchestrator up front,
// to expose Abort or its session ID, build it with NewRun and execute it here.
func (g *Generator) Run(ctx context.Context, run *orchestrator.Orchestrator, brief agent.Brief) *orchestrator.Result {
	done := observability.GenerationStarted()
	defer done()
	start := time.Now()

	res := run.Execute(ctx)

	outcome := "failure"
	if res.Success {
		outcome = "success"
		if g.cache != nil {
			if err := g.cache.Put(ctx, brief, res.SessionID, ViewOf(res)); err != nil {
				// Cache writes are best effort.
				res.Logs = append(res.Logs, fmt.Sprintf("[Generator] cache write failed: %v", err))
			}
		}
	}
	observability.RecordGeneration(outcome, time.Since(start))
	return res
}

// ResultView is the serializable form of a finished run, shared by the
// streaming API and the result cache.
type ResultView struct {
	SessionID string          `json:"sessionId"`
	Logo      any             `json:"logo"`
	Variants  any             `json:"variants"`
	Guideline any             `json:"guideline"`
	Package   any             `json:"package"`
	Metrics   ResultMetrics   `json:"metrics"`
	Errors    []string        `json:"errors,omitempty"`
	Fallbacks map[string]bool `json:"fallbacks,omitempty"`
}

// ResultMetrics summarizes a run's resource accounting.
type ResultMetrics struct {
	DurationMS int64 `json:"durationMs"`
	Tokens     int   `json:"tokens"`
	Retries    int   `json:"retries"`
}

// ViewOf projects a run result into its serializable view.
func ViewOf(res *orchestrator.Result) ResultView {
	view := ResultView{
		SessionID: res.SessionID,
		Metrics: ResultMetrics{
			DurationMS: res.Duration.Milliseconds(),
			Tokens:     res.Metrics.TokenUsage.Total,
			Retries:    res.Metrics.RetryCount,
		},
	}
	if res.Logo != nil {
		view.Logo = res.Logo.Payload
	}
	if res.Variants != nil {
		view.Variants = res.Variants.Payload
	}
	if res.Guideline != nil {
		view.Guideline = res.Guideline.Payload
		if res.Guideline.Fallback {
			view.Fallbacks = map[string]bool{res.Guideline.AgentID: true}
		}
	}
	if res.Package != nil {
		view.Package = res.Package.Payload
	}
	for _, e := range res.Errors {
		view.Errors = append(view.Errors, e.Error())
	}
	return view
}
