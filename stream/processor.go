package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrHeartbeatTimeout marks a connection gone silent past the liveness
	// deadline. Recoverable: eligible for reconnect.
	ErrHeartbeatTimeout = errors.New("connection heartbeat timeout")

	// ErrCancelled marks a stream cancelled through Cancel.
	ErrCancelled = errors.New("stream cancelled")
)

// StageHistory is the client-side timing record for one stage, built from
// progress and stage-complete events.
type StageHistory struct {
	StartTime time.Time
	EndTime   time.Time // zero until the stage completes
	Progress  int
	Previews  int
}

// Estimator computes remaining time for a run. It is consumed as a pure
// function of the static stage list, the current position and the observed
// timing history. A negative return means no estimate.
type Estimator func(stages []StageInfo, currentStageID string, stageProgress int, history map[string]StageHistory) time.Duration

// Callbacks receives decoded protocol messages. Handlers are invoked from the
// processing goroutine, one at a time, in stream order. Nil handlers are
// skipped.
type Callbacks struct {
	OnStart         func(*Start)
	OnProgress      func(*Progress)
	OnPreview       func(*Preview)
	OnStageComplete func(*StageComplete)
	OnResult        func(*Result)
	OnError         func(*Error)
	OnWarning       func(*Warning)
	OnInfo          func(*Info)
	OnCache         func(*Cache)
	OnEnd           func(EndStatus)
}

// Options configures a Processor.
type Options struct {
	// HeartbeatInterval is how often liveness is checked. Default 5s.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the silence span after which the connection is
	// considered dead. Default 30s.
	HeartbeatTimeout time.Duration

	// AutoReconnect re-issues the request after a network-classified error.
	// Applies only to streams the processor opened itself via ProcessURL.
	AutoReconnect bool

	// MaxReconnectAttempts bounds reconnects. Default 3.
	MaxReconnectAttempts int

	// ReconnectDelay is the first backoff; it doubles per attempt. Default 1s.
	ReconnectDelay time.Duration

	// HTTPClient is used by ProcessURL. Default http.DefaultClient.
	HTTPClient *http.Client

	// Estimator fills estimatedTimeRemaining on progress messages that omit
	// it. Optional.
	Estimator Estimator
}

// RequestOptions customizes the request issued by ProcessURL.
type RequestOptions struct {
	Method string // default GET
	Header http.Header
	Body   []byte
}

// Processor turns a byte stream (or a URL to fetch) into a reliable sequence
// of typed callback invocations, tolerating partial reads, malformed lines,
// stalls and disconnects. One Processor instance serves one stream at a time.
type Processor struct {
	opts Options
	cb   Callbacks

	mu        sync.Mutex
	buffer    []byte
	stages    []StageInfo
	history   map[string]*StageHistory
	sawResult bool
	sawEnd    bool

	hbMu          sync.Mutex
	lastHeartbeat time.Time

	cancelMu  sync.Mutex
	cancelFn  context.CancelFunc
	cancelled bool
}

// NewProcessor creates a processor with the given callbacks.
func NewProcessor(cb Callbacks, opts Options) *Processor {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 5 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 30 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 3
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Processor{
		opts:    opts,
		cb:      cb,
		history: make(map[string]*StageHistory),
	}
}

// Cancel aborts any in-flight read or fetch and stops the heartbeat timer.
// The caller observes an error callback whose message contains "cancel".
func (p *Processor) Cancel() {
	p.cancelMu.Lock()
	p.cancelled = true
	cancel := p.cancelFn
	p.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// History returns a snapshot of the per-stage timing history.
func (p *Processor) History() map[string]StageHistory {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := make(map[string]StageHistory, len(p.history))
	for id, h := range p.history {
		snap[id] = *h
	}
	return snap
}

// ProcessStream consumes a pre-existing byte stream until it ends. All
// failure paths route through the error callback and, where terminal, an
// end(error) callback; the returned error mirrors the terminal condition for
// callers that want it.
func (p *Processor) ProcessStream(ctx context.Context, r io.Reader) error {
	err := p.run(ctx, r, nil)
	p.finish(err)
	return err
}

// ProcessURL opens the URL and consumes the response as a stream. On a
// network-classified failure with reconnect budget remaining, it waits
// reconnectDelay * 2^(attempt-1) and re-issues the same request from scratch;
// the protocol has no byte-range resumption.
func (p *Processor) ProcessURL(ctx context.Context, url string, reqOpts *RequestOptions) error {
	attempt := 0
	for {
		err := p.fetchOnce(ctx, url, reqOpts)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCancelled) {
			p.finish(err)
			return err
		}

		if p.opts.AutoReconnect && attempt < p.opts.MaxReconnectAttempts && networkClassified(err) {
			attempt++
			delay := p.opts.ReconnectDelay << (attempt - 1)
			log.Printf("[Stream] Reconnect attempt %d/%d in %v after error: %v",
				attempt, p.opts.MaxReconnectAttempts, delay, err)
			select {
			case <-ctx.Done():
				p.finish(ctx.Err())
				return ctx.Err()
			case <-time.After(delay):
			}
			p.resetStreamState()
			continue
		}

		p.finish(err)
		return err
	}
}

// fetchOnce issues the request and processes its body.
func (p *Processor) fetchOnce(ctx context.Context, url string, reqOpts *RequestOptions) error {
	method := http.MethodGet
	var body io.Reader
	if reqOpts != nil {
		if reqOpts.Method != "" {
			method = reqOpts.Method
		}
		if len(reqOpts.Body) > 0 {
			body = bytes.NewReader(reqOpts.Body)
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return err
	}
	if reqOpts != nil && reqOpts.Header != nil {
		req.Header = reqOpts.Header.Clone()
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		if p.isCancelled() {
			return p.surfaceCancel()
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %s", resp.Status)
	}

	return p.run(ctx, resp.Body, cancel)
}

type chunk struct {
	data []byte
	err  error
}

// run is the core processing loop: pump chunks, reassemble lines, decode and
// dispatch, and watch liveness. abortRead, when non-nil, hard-cancels the
// underlying I/O (the HTTP request) on stall or cancellation.
func (p *Processor) run(ctx context.Context, r io.Reader, abortRead context.CancelFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.cancelMu.Lock()
	if p.cancelled {
		p.cancelMu.Unlock()
		return p.surfaceCancel()
	}
	p.cancelFn = func() {
		cancel()
		if abortRead != nil {
			abortRead()
		}
	}
	p.cancelMu.Unlock()

	p.touch()

	// Liveness watchdog: any received chunk or heartbeat message resets the
	// clock; exceeding the timeout kills the read.
	hbTimedOut := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if p.sinceHeartbeat() > p.opts.HeartbeatTimeout {
					close(hbTimedOut)
					cancel()
					if abortRead != nil {
						abortRead()
					}
					return
				}
			}
		}
	}()

	chunks := make(chan chunk, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			c := chunk{err: err}
			if n > 0 {
				c.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- c:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if p.isCancelled() {
				return p.surfaceCancel()
			}
			select {
			case <-hbTimedOut:
				return p.surfaceHeartbeatTimeout()
			default:
			}
			return ctx.Err()

		case c := <-chunks:
			if len(c.data) > 0 {
				p.touch()
				if done := p.feed(c.data); done {
					return nil
				}
			}
			if c.err != nil {
				if p.isCancelled() {
					return p.surfaceCancel()
				}
				select {
				case <-hbTimedOut:
					return p.surfaceHeartbeatTimeout()
				default:
				}
				if c.err == io.EOF {
					return p.finishEOF()
				}
				return c.err
			}
		}
	}
}

// feed appends a chunk to the buffer, splits complete lines and handles each.
// The trailing fragment, if any, stays buffered until more bytes arrive.
// Returns true once an end message has been dispatched.
func (p *Processor) feed(data []byte) bool {
	p.mu.Lock()
	p.buffer = append(p.buffer, data...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(p.buffer, '\n')
		if i < 0 {
			break
		}
		line := append([]byte(nil), p.buffer[:i]...)
		p.buffer = p.buffer[i+1:]
		lines = append(lines, line)
	}
	p.mu.Unlock()

	for _, line := range lines {
		p.handleLine(line)
		p.mu.Lock()
		ended := p.sawEnd
		p.mu.Unlock()
		if ended {
			return true
		}
	}
	return false
}

// handleLine parses one complete line and dispatches it. A malformed line is
// logged and skipped; it never aborts the stream or reaches the caller.
func (p *Processor) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	msg, err := Decode(line)
	if errors.Is(err, ErrNoType) {
		msg, err = DecodeLegacy(line)
	}
	if err != nil {
		log.Printf("[Stream] Skipping unparseable line: %v", err)
		return
	}

	switch m := msg.(type) {
	case *Start:
		p.mu.Lock()
		p.stages = m.Stages
		p.mu.Unlock()
		if p.cb.OnStart != nil {
			p.cb.OnStart(m)
		}

	case *Progress:
		p.recordProgress(m)
		if p.cb.OnProgress != nil {
			p.cb.OnProgress(m)
		}

	case *Preview:
		p.mu.Lock()
		h := p.historyFor(m.StageID)
		h.Previews++
		p.mu.Unlock()
		if p.cb.OnPreview != nil {
			p.cb.OnPreview(m)
		}

	case *StageComplete:
		p.mu.Lock()
		h := p.historyFor(m.Stage.ID)
		h.EndTime = time.Now()
		h.Progress = 100
		p.mu.Unlock()
		if p.cb.OnStageComplete != nil {
			p.cb.OnStageComplete(m)
		}

	case *Result:
		p.mu.Lock()
		p.sawResult = true
		p.mu.Unlock()
		if p.cb.OnResult != nil {
			p.cb.OnResult(m)
		}

	case *Error:
		if p.cb.OnError != nil {
			p.cb.OnError(m)
		}

	case *Warning:
		if p.cb.OnWarning != nil {
			p.cb.OnWarning(m)
		}

	case *Info:
		if p.cb.OnInfo != nil {
			p.cb.OnInfo(m)
		}

	case *Cache:
		if p.cb.OnCache != nil {
			p.cb.OnCache(m)
		}

	case *Heartbeat:
		p.touch()

	case *End:
		p.dispatchEnd(m.Status)
	}
}

// recordProgress maintains the per-stage history and fills in the remaining
// time estimate when the producer omitted one.
func (p *Processor) recordProgress(m *Progress) {
	p.mu.Lock()
	if m.CurrentStage != "" {
		h := p.historyFor(m.CurrentStage)
		h.Progress = m.StageProgress
	}
	stages := p.stages
	snap := make(map[string]StageHistory, len(p.history))
	for id, h := range p.history {
		snap[id] = *h
	}
	p.mu.Unlock()

	if m.EstimatedTimeRemaining == nil && p.opts.Estimator != nil && m.CurrentStage != "" {
		if d := p.opts.Estimator(stages, m.CurrentStage, m.StageProgress, snap); d >= 0 {
			ms := d.Milliseconds()
			m.EstimatedTimeRemaining = &ms
		}
	}
}

// historyFor returns the history entry for a stage, creating it on first
// sight. Called with p.mu held.
func (p *Processor) historyFor(stageID string) *StageHistory {
	h, ok := p.history[stageID]
	if !ok {
		h = &StageHistory{StartTime: time.Now()}
		p.history[stageID] = h
	}
	return h
}

// finishEOF resolves a stream that ended without an explicit end message.
// A seen result implies end(success); anything else is a truncated stream.
func (p *Processor) finishEOF() error {
	p.mu.Lock()
	sawEnd, sawResult := p.sawEnd, p.sawResult
	p.mu.Unlock()

	if sawEnd {
		return nil
	}
	if sawResult {
		p.dispatchEnd(EndSuccess)
		return nil
	}
	return fmt.Errorf("connection closed: %w", io.ErrUnexpectedEOF)
}

// finish surfaces a terminal error to the caller-facing callbacks, avoiding
// double delivery for conditions run already reported.
func (p *Processor) finish(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	ended := p.sawEnd
	p.mu.Unlock()

	switch {
	case errors.Is(err, ErrCancelled):
		if !ended {
			p.dispatchEnd(EndCancelled)
		}
	case errors.Is(err, ErrHeartbeatTimeout):
		if !ended {
			p.dispatchEnd(EndError)
		}
	default:
		if p.cb.OnError != nil {
			p.cb.OnError(&Error{
				Envelope: Envelope{Type: TypeError},
				Message:  err.Error(),
			})
		}
		if !ended {
			p.dispatchEnd(EndError)
		}
	}
}

func (p *Processor) dispatchEnd(status EndStatus) {
	p.mu.Lock()
	already := p.sawEnd
	p.sawEnd = true
	p.mu.Unlock()
	if already {
		return
	}
	if p.cb.OnEnd != nil {
		p.cb.OnEnd(status)
	}
}

func (p *Processor) surfaceCancel() error {
	if p.cb.OnError != nil {
		p.cb.OnError(&Error{
			Envelope: Envelope{Type: TypeError},
			Message:  "stream cancelled by caller",
			Code:     "cancelled",
		})
	}
	return ErrCancelled
}

func (p *Processor) surfaceHeartbeatTimeout() error {
	if p.cb.OnError != nil {
		p.cb.OnError(&Error{
			Envelope:    Envelope{Type: TypeError},
			Message:     fmt.Sprintf("connection heartbeat timeout after %v", p.opts.HeartbeatTimeout),
			Code:        "heartbeat_timeout",
			Recoverable: true,
		})
	}
	return ErrHeartbeatTimeout
}

// resetStreamState clears per-stream state before a reconnect re-issues the
// request from scratch.
func (p *Processor) resetStreamState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = nil
	p.stages = nil
	p.history = make(map[string]*StageHistory)
	p.sawResult = false
	p.sawEnd = false
}

func (p *Processor) touch() {
	p.hbMu.Lock()
	p.lastHeartbeat = time.Now()
	p.hbMu.Unlock()
}

func (p *Processor) sinceHeartbeat() time.Duration {
	p.hbMu.Lock()
	defer p.hbMu.Unlock()
	return time.Since(p.lastHeartbeat)
}

func (p *Processor) isCancelled() bool {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	return p.cancelled
}

// networkClassified reports whether an error is eligible for reconnect:
// aborts, liveness failures and transport errors mentioning the network.
func networkClassified(err error) bool {
	if errors.Is(err, ErrHeartbeatTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "network") || strings.Contains(msg, "connection")
}
