package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects callback invocations in arrival order.
type recorder struct {
	mu       sync.Mutex
	starts   []*Start
	progress []*Progress
	previews []*Preview
	stages   []*StageComplete
	results  []*Result
	errs     []*Error
	caches   []*Cache
	ends     []EndStatus
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStart:         func(m *Start) { r.mu.Lock(); r.starts = append(r.starts, m); r.mu.Unlock() },
		OnProgress:      func(m *Progress) { r.mu.Lock(); r.progress = append(r.progress, m); r.mu.Unlock() },
		OnPreview:       func(m *Preview) { r.mu.Lock(); r.previews = append(r.previews, m); r.mu.Unlock() },
		OnStageComplete: func(m *StageComplete) { r.mu.Lock(); r.stages = append(r.stages, m); r.mu.Unlock() },
		OnResult:        func(m *Result) { r.mu.Lock(); r.results = append(r.results, m); r.mu.Unlock() },
		OnError:         func(m *Error) { r.mu.Lock(); r.errs = append(r.errs, m); r.mu.Unlock() },
		OnCache:         func(m *Cache) { r.mu.Lock(); r.caches = append(r.caches, m); r.mu.Unlock() },
		OnEnd:           func(s EndStatus) { r.mu.Lock(); r.ends = append(r.ends, s); r.mu.Unlock() },
	}
}

// chunkReader returns its chunks one Read at a time, then EOF.
type chunkReader struct {
	chunks [][]byte
	i      int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.i >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.i])
	c.i++
	return n, nil
}

// stallReader yields one chunk, then blocks until closed.
type stallReader struct {
	first []byte
	sent  bool
	block chan struct{}
}

func (s *stallReader) Read(p []byte) (int, error) {
	if !s.sent {
		s.sent = true
		return copy(p, s.first), nil
	}
	<-s.block
	return 0, io.EOF
}

const fullStream = `{"type":"start","stages":[{"id":"gen","name":"Drawing","estimatedDuration":1000}]}
{"type":"progress","currentStage":"gen","stageProgress":50,"overallProgress":25}
{"type":"preview","stageId":"gen","content":"<svg/>","contentType":"svg"}
{"type":"stage_complete","stage":{"id":"gen","name":"Drawing","duration":900,"success":true}}
{"type":"result","result":{"logo":"<svg/>"}}
{"type":"end","status":"success"}
`

func TestProcessStreamFullSequence(t *testing.T) {
	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})

	err := p.ProcessStream(context.Background(), strings.NewReader(fullStream))
	require.NoError(t, err)

	assert.Len(t, rec.starts, 1)
	assert.Len(t, rec.progress, 1)
	assert.Len(t, rec.previews, 1)
	assert.Len(t, rec.stages, 1)
	assert.Len(t, rec.results, 1)
	assert.Equal(t, []EndStatus{EndSuccess}, rec.ends)
	assert.Empty(t, rec.errs)
}

func TestProcessStreamReassemblesSplitChunks(t *testing.T) {
	// Split mid-message and mid-line in awkward places.
	raw := fullStream
	cr := &chunkReader{chunks: [][]byte{
		[]byte(raw[:17]),
		[]byte(raw[17:95]),
		[]byte(raw[95:96]),
		[]byte(raw[96:]),
	}}

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})
	require.NoError(t, p.ProcessStream(context.Background(), cr))

	assert.Len(t, rec.starts, 1)
	assert.Len(t, rec.results, 1)
	assert.Equal(t, []EndStatus{EndSuccess}, rec.ends)
}

func TestProcessStreamSkipsMalformedLines(t *testing.T) {
	raw := `{"type":"start"}
{this is not json at all
{"type":"progress","currentStage":"gen","stageProgress":10,"overallProgress":5}
{"unrecognized":"shape"}
{"type":"end","status":"success"}
`
	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(raw)))

	// Both broken lines were skipped; everything after them survived.
	assert.Len(t, rec.progress, 1)
	assert.Equal(t, []EndStatus{EndSuccess}, rec.ends)
	assert.Empty(t, rec.errs)
}

func TestProcessStreamLegacyMessages(t *testing.T) {
	raw := `{"progress":{"currentStage":"gen","stageProgress":30,"overallProgress":20}}
{"progress":80}
{"preview":"<svg/>"}
{"complete":true,"assets":{"logo":"<svg/>"}}
`
	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(raw)))

	require.Len(t, rec.progress, 2)
	assert.Equal(t, "gen", rec.progress[0].CurrentStage)
	assert.Equal(t, 80, rec.progress[1].OverallProgress)
	assert.Len(t, rec.previews, 1)
	assert.Len(t, rec.results, 1)
	// Legacy result still implies a successful end at EOF.
	assert.Equal(t, []EndStatus{EndSuccess}, rec.ends)
}

func TestProcessStreamImpliedEndAfterResult(t *testing.T) {
	raw := `{"type":"result","result":{"logo":"<svg/>"}}` + "\n"
	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(raw)))
	assert.Equal(t, []EndStatus{EndSuccess}, rec.ends)
}

func TestProcessStreamTruncatedWithoutResult(t *testing.T) {
	raw := `{"type":"progress","currentStage":"gen","stageProgress":10,"overallProgress":5}` + "\n"
	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})

	err := p.ProcessStream(context.Background(), strings.NewReader(raw))
	require.Error(t, err)
	require.Len(t, rec.errs, 1)
	assert.Equal(t, []EndStatus{EndError}, rec.ends)
}

func TestProcessStreamStageHistory(t *testing.T) {
	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(fullStream)))

	hist := p.History()
	h, ok := hist["gen"]
	require.True(t, ok)
	assert.False(t, h.StartTime.IsZero())
	assert.False(t, h.EndTime.IsZero())
	assert.Equal(t, 100, h.Progress)
	assert.Equal(t, 1, h.Previews)
}

func TestProcessStreamEstimatorFillsMissingEstimate(t *testing.T) {
	var called bool
	est := func(stages []StageInfo, current string, prog int, hist map[string]StageHistory) time.Duration {
		called = true
		return 7 * time.Second
	}

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{Estimator: est})
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(fullStream)))

	assert.True(t, called)
	require.Len(t, rec.progress, 1)
	require.NotNil(t, rec.progress[0].EstimatedTimeRemaining)
	assert.EqualValues(t, 7000, *rec.progress[0].EstimatedTimeRemaining)
}

func TestProcessStreamEstimatorRespectsProducerEstimate(t *testing.T) {
	raw := `{"type":"progress","currentStage":"gen","stageProgress":10,"overallProgress":5,"estimatedTimeRemaining":1234}
{"type":"end","status":"success"}
`
	est := func(stages []StageInfo, current string, prog int, hist map[string]StageHistory) time.Duration {
		t.Error("estimator ran despite producer-supplied estimate")
		return 0
	}

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{Estimator: est})
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(raw)))
	require.NotNil(t, rec.progress[0].EstimatedTimeRemaining)
	assert.EqualValues(t, 1234, *rec.progress[0].EstimatedTimeRemaining)
}

func TestProcessStreamHeartbeatTimeout(t *testing.T) {
	sr := &stallReader{
		first: []byte(`{"type":"start"}` + "\n"),
		block: make(chan struct{}),
	}
	defer close(sr.block)

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{
		HeartbeatInterval: 5 * time.Millisecond,
		HeartbeatTimeout:  25 * time.Millisecond,
	})

	err := p.ProcessStream(context.Background(), sr)
	require.ErrorIs(t, err, ErrHeartbeatTimeout)

	require.Len(t, rec.errs, 1)
	assert.True(t, rec.errs[0].Recoverable)
	assert.Contains(t, rec.errs[0].Message, "heartbeat")
	assert.Equal(t, []EndStatus{EndError}, rec.ends)
}

func TestProcessStreamHeartbeatsKeepConnectionAlive(t *testing.T) {
	// Heartbeat messages arrive faster than the timeout; the stream ends
	// normally instead of being declared dead.
	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(pw, "{\"type\":\"heartbeat\"}\n")
			time.Sleep(10 * time.Millisecond)
		}
		fmt.Fprintf(pw, "{\"type\":\"end\",\"status\":\"success\"}\n")
		pw.Close()
	}()

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{
		HeartbeatInterval: 5 * time.Millisecond,
		HeartbeatTimeout:  40 * time.Millisecond,
	})
	require.NoError(t, p.ProcessStream(context.Background(), pr))
	assert.Equal(t, []EndStatus{EndSuccess}, rec.ends)
}

func TestCancelAbortsStream(t *testing.T) {
	sr := &stallReader{
		first: []byte(`{"type":"start"}` + "\n"),
		block: make(chan struct{}),
	}
	defer close(sr.block)

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Cancel()
	}()

	err := p.ProcessStream(context.Background(), sr)
	require.ErrorIs(t, err, ErrCancelled)

	require.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0].Message, "cancel")
	assert.Equal(t, []EndStatus{EndCancelled}, rec.ends)
}

func TestProcessURLReconnects(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		if n == 1 {
			// Drop the connection mid-stream.
			fmt.Fprint(w, `{"type":"start"}`+"\n")
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}
		fmt.Fprint(w, fullStream)
	}))
	defer srv.Close()

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{
		AutoReconnect:        true,
		MaxReconnectAttempts: 3,
		ReconnectDelay:       time.Millisecond,
	})

	err := p.ProcessURL(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, 2, requests)
	mu.Unlock()
	assert.Len(t, rec.results, 1)
	assert.Equal(t, EndSuccess, rec.ends[len(rec.ends)-1])
}

func TestProcessURLReconnectBudgetExhausted(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		fmt.Fprint(w, `{"type":"start"}`+"\n")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{
		AutoReconnect:        true,
		MaxReconnectAttempts: 2,
		ReconnectDelay:       time.Millisecond,
	})

	err := p.ProcessURL(context.Background(), srv.URL, nil)
	require.Error(t, err)

	mu.Lock()
	assert.Equal(t, 3, requests) // initial attempt plus two reconnects
	mu.Unlock()
	assert.Equal(t, EndError, rec.ends[len(rec.ends)-1])
}

func TestProcessURLNon200IsTerminal(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &recorder{}
	p := NewProcessor(rec.callbacks(), Options{AutoReconnect: true, ReconnectDelay: time.Millisecond})

	err := p.ProcessURL(context.Background(), srv.URL, nil)
	require.Error(t, err)

	mu.Lock()
	assert.Equal(t, 1, requests)
	mu.Unlock()
	require.Len(t, rec.errs, 1)
}

func TestNetworkClassified(t *testing.T) {
	assert.True(t, networkClassified(ErrHeartbeatTimeout))
	assert.True(t, networkClassified(io.ErrUnexpectedEOF))
	assert.True(t, networkClassified(errors.New("read tcp: connection reset by peer")))
	assert.True(t, networkClassified(errors.New("network is unreachable")))
	assert.False(t, networkClassified(errors.New("server returned status 500 Internal Server Error")))
}
