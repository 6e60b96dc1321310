package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logoforge-dev/logoforge"
	"github.com/logoforge-dev/logoforge/pkg/config"
	"github.com/logoforge-dev/logoforge/stream"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.OpenAIKey = "" // force the deterministic agent paths
	cfg.Server.HeartbeatIntervalMS = 50

	gen, err := logoforge.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(New(gen).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postBrief(t *testing.T, srv *httptest.Server, brief map[string]any) []stream.Message {
	t.Helper()
	body, err := json.Marshal(brief)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var msgs []stream.Message
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		msg, err := stream.Decode([]byte(line))
		require.NoError(t, err, line)
		msgs = append(msgs, msg)
	}
	require.NoError(t, sc.Err())
	return msgs
}

func kinds(msgs []stream.Message) []stream.Type {
	out := make([]stream.Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind()
	}
	return out
}

func TestGenerateStreamsFullRun(t *testing.T) {
	srv := testServer(t)
	msgs := postBrief(t, srv, map[string]any{
		"brandName":   "Northwind Coffee",
		"industry":    "food and beverage",
		"description": "a specialty roaster",
	})

	require.NotEmpty(t, msgs)
	ks := kinds(msgs)
	assert.Equal(t, stream.TypeStart, ks[0], "stream must open with start")
	assert.Equal(t, stream.TypeEnd, ks[len(ks)-1], "stream must close with end")

	start := msgs[0].(*stream.Start)
	assert.Len(t, start.Stages, 8)
	assert.Positive(t, start.EstimatedTime)
	assert.NotEmpty(t, start.SessionID)

	var sawProgress, sawStageDone bool
	var result *stream.Result
	for _, m := range msgs {
		switch v := m.(type) {
		case *stream.Progress:
			sawProgress = true
		case *stream.StageComplete:
			sawStageDone = true
		case *stream.Result:
			result = v
		}
	}
	assert.True(t, sawProgress)
	assert.True(t, sawStageDone)
	require.NotNil(t, result)

	var view logoforge.ResultView
	require.NoError(t, json.Unmarshal(result.Result, &view))
	assert.NotEmpty(t, view.SessionID)
	assert.NotNil(t, view.Logo)
	assert.NotNil(t, view.Package)

	end := msgs[len(msgs)-1].(*stream.End)
	assert.Equal(t, stream.EndSuccess, end.Status)
}

func TestGenerateProgressIsMonotonic(t *testing.T) {
	srv := testServer(t)
	msgs := postBrief(t, srv, map[string]any{"brandName": "Acme"})

	last := -1
	for _, m := range msgs {
		if p, ok := m.(*stream.Progress); ok {
			assert.GreaterOrEqual(t, p.OverallProgress, last)
			last = p.OverallProgress
		}
	}
	assert.Equal(t, 100, last)
}

func TestGenerateServesSecondRequestFromCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.OpenAIKey = ""
	cfg.Server.HeartbeatIntervalMS = 50
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	gen, err := logoforge.New(cfg)
	require.NoError(t, err)
	require.NoError(t, gen.ConnectCache(context.Background()))

	srv := httptest.NewServer(New(gen).Handler())
	t.Cleanup(srv.Close)

	brief := map[string]any{"brandName": "Acme", "industry": "tools"}

	first := postBrief(t, srv, brief)
	require.NotEmpty(t, first)
	require.Equal(t, stream.TypeEnd, first[len(first)-1].Kind())

	// The handler persisted the result, so an identical brief short-circuits
	// the pipeline.
	second := postBrief(t, srv, brief)
	require.NotEmpty(t, second)
	cacheMsg, ok := second[0].(*stream.Cache)
	require.True(t, ok, "second stream must open with cache, got %s", second[0].Kind())
	assert.True(t, cacheMsg.Cached)
	assert.Equal(t, "full", cacheMsg.Source)
	assert.Equal(t, []stream.Type{stream.TypeCache, stream.TypeResult, stream.TypeEnd}, kinds(second))

	var view logoforge.ResultView
	result := second[1].(*stream.Result)
	require.NoError(t, json.Unmarshal(result.Result, &view))
	assert.NotNil(t, view.Logo)
}

func TestGenerateRejectsBadBrief(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelUnknownSession(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Post(srv.URL+"/api/runs/nope/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamFeedsProcessor(t *testing.T) {
	// The server's output must satisfy the client-side processor end to end.
	srv := testServer(t)

	body, err := json.Marshal(map[string]any{"brandName": "Acme", "industry": "tools"})
	require.NoError(t, err)

	var gotResult, gotEnd bool
	p := stream.NewProcessor(stream.Callbacks{
		OnResult: func(*stream.Result) { gotResult = true },
		OnEnd:    func(s stream.EndStatus) { gotEnd = assert.Equal(t, stream.EndSuccess, s) },
	}, stream.Options{HeartbeatTimeout: 30 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = p.ProcessURL(ctx, srv.URL+"/api/generate", &stream.RequestOptions{
		Method: http.MethodPost,
		Body:   body,
	})
	require.NoError(t, err)
	assert.True(t, gotResult)
	assert.True(t, gotEnd)
}
