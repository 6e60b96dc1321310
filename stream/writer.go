package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/logoforge-dev/logoforge/pkg/observability"
)

// Writer serializes protocol messages as newline-delimited JSON onto a byte
// stream. It stamps timestamps and the session ID, flushes after every message
// when the underlying writer supports it, and enforces the protocol rule that
// a result message is followed by end(success).
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	enc       *json.Encoder
	flusher   http.Flusher
	sessionID string
	closed    bool
}

// NewWriter creates a writer for one generation stream.
func NewWriter(w io.Writer, sessionID string) *Writer {
	sw := &Writer{
		w:         w,
		enc:       json.NewEncoder(w),
		sessionID: sessionID,
	}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Send writes one message as a single line. After the stream has ended
// further sends are dropped silently.
func (sw *Writer) Send(msg Message) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.sendLocked(msg)
}

func (sw *Writer) sendLocked(msg Message) error {
	if sw.closed {
		return nil
	}

	stamp(msg, sw.sessionID)
	if err := sw.enc.Encode(msg); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	observability.RecordStreamMessage(string(msg.Kind()))

	if msg.Kind() == TypeEnd {
		sw.closed = true
	}
	return nil
}

// SendResult writes the result message and the implied end(success).
func (sw *Writer) SendResult(result any, metrics *RunMetrics) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if err := sw.sendLocked(&Result{Result: raw, Metrics: metrics}); err != nil {
		return err
	}
	return sw.sendLocked(&End{Status: EndSuccess})
}

// SendError writes an error message and, when terminal, the end(error).
func (sw *Writer) SendError(message, code string, recoverable bool) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if err := sw.sendLocked(&Error{Message: message, Code: code, Recoverable: recoverable}); err != nil {
		return err
	}
	if !recoverable {
		return sw.sendLocked(&End{Status: EndError})
	}
	return nil
}

// Heartbeats writes a heartbeat every interval until the context is done or
// the stream ends. Run it in its own goroutine.
func (sw *Writer) Heartbeats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.mu.Lock()
			closed := sw.closed
			if !closed {
				_ = sw.sendLocked(&Heartbeat{})
			}
			sw.mu.Unlock()
			if closed {
				return
			}
		}
	}
}

// stamp fills the envelope fields every message may carry.
func stamp(msg Message, sessionID string) {
	env := envelopeOf(msg)
	if env == nil {
		return
	}
	env.Type = msg.Kind()
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	if env.SessionID == "" {
		env.SessionID = sessionID
	}
}

func envelopeOf(msg Message) *Envelope {
	switch m := msg.(type) {
	case *Start:
		return &m.Envelope
	case *Progress:
		return &m.Envelope
	case *Preview:
		return &m.Envelope
	case *StageComplete:
		return &m.Envelope
	case *Result:
		return &m.Envelope
	case *Error:
		return &m.Envelope
	case *Warning:
		return &m.Envelope
	case *Info:
		return &m.Envelope
	case *Cache:
		return &m.Envelope
	case *Heartbeat:
		return &m.Envelope
	case *End:
		return &m.Envelope
	default:
		return nil
	}
}
