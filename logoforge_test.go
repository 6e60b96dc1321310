package logoforge

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/orchestrator"
	"github.com/logoforge-dev/logoforge/pkg/config"
)

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	cfg := config.Default()
	cfg.OpenAIKey = "" // deterministic agents only
	gen, err := New(cfg)
	require.NoError(t, err)
	return gen
}

var brief = agent.Brief{
	BrandName:   "Northwind Coffee",
	Industry:    "food and beverage",
	Description: "a specialty roaster with bold flavors",
	Styles:      []string{"warm"},
}

func TestGenerateEndToEnd(t *testing.T) {
	gen := testGenerator(t)

	var stagesDone int
	res, err := gen.Generate(context.Background(), brief, Hooks{
		OnStageDone: func(orchestrator.StageDone) { stagesDone++ },
	})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)

	assert.Equal(t, len(gen.Plan().Stages), stagesDone)
	assert.NotNil(t, res.Logo)
	assert.NotNil(t, res.Variants)
	assert.NotNil(t, res.Guideline)
	assert.NotNil(t, res.Package)
	assert.Positive(t, res.Duration)
}

func TestGenerateWithCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.OpenAIKey = ""
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	gen, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, gen.ConnectCache(ctx))

	_, ok := gen.CachedResult(ctx, brief)
	assert.False(t, ok, "cache must start cold")

	res, err := gen.Generate(ctx, brief, Hooks{})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)

	entry, ok := gen.CachedResult(ctx, brief)
	require.True(t, ok, "successful run must populate the cache")
	assert.Equal(t, res.SessionID, entry.SessionID)

	var view ResultView
	require.NoError(t, json.Unmarshal(entry.Result, &view))
	assert.Equal(t, res.SessionID, view.SessionID)
	assert.NotNil(t, view.Logo)
}

func TestViewOf(t *testing.T) {
	gen := testGenerator(t)
	res, err := gen.Generate(context.Background(), brief, Hooks{})
	require.NoError(t, err)
	require.True(t, res.Success)

	view := ViewOf(res)
	assert.Equal(t, res.SessionID, view.SessionID)
	assert.Equal(t, res.Duration.Milliseconds(), view.Metrics.DurationMS)
	assert.NotNil(t, view.Variants)
	assert.Empty(t, view.Errors)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MetricsPort = cfg.Server.Port
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewLoadsCustomPlan(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/plan.yaml"
	data := []byte("stages:\n  - id: only\n    agents: [requirements]\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg := config.Default()
	cfg.PlanPath = path
	gen, err := New(cfg)
	require.NoError(t, err)
	require.Len(t, gen.Plan().Stages, 1)
}
