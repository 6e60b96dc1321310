// Package stream implements the generation wire protocol: a tagged union of
// line-delimited JSON messages carrying progress, previews and results from a
// running pipeline to a remote consumer, plus the client-side processor that
// decodes it resiliently.
//
// Every message is one self-describing JSON object on its own line. The stream
// is an ordered append-only log; consumers must tolerate any single line
// failing to parse without losing subsequent lines.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags a protocol message.
type Type string

const (
	TypeStart         Type = "start"
	TypeProgress      Type = "progress"
	TypePreview       Type = "preview"
	TypeStageComplete Type = "stage_complete"
	TypeResult        Type = "result"
	TypeError         Type = "error"
	TypeWarning       Type = "warning"
	TypeInfo          Type = "info"
	TypeCache         Type = "cache"
	TypeHeartbeat     Type = "heartbeat"
	TypeEnd           Type = "end"
)

// EndStatus is the terminal status carried by an End message.
type EndStatus string

const (
	EndSuccess   EndStatus = "success"
	EndError     EndStatus = "error"
	EndCancelled EndStatus = "cancelled"
)

// Message is one protocol event. The concrete type is one of the structs
// below; there is exactly one shape per type tag.
type Message interface {
	Kind() Type
}

// Envelope carries the fields every message may have. Embedded in each
// concrete message so they serialize at the top level.
type Envelope struct {
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds
	SessionID string `json:"sessionId,omitempty"`
}

// StageInfo describes one plan stage in the start message.
type StageInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	EstimatedDuration int64  `json:"estimatedDuration,omitempty"` // milliseconds
}

// Start announces a new generation stream.
type Start struct {
	Envelope
	EstimatedTime int64       `json:"estimatedTime,omitempty"` // milliseconds
	Stages        []StageInfo `json:"stages,omitempty"`
}

func (*Start) Kind() Type { return TypeStart }

// Progress reports pipeline advancement.
type Progress struct {
	Envelope
	CurrentStage           string `json:"currentStage"`
	StageProgress          int    `json:"stageProgress"`   // 0-100
	OverallProgress        int    `json:"overallProgress"` // 0-100
	StatusMessage          string `json:"statusMessage,omitempty"`
	EstimatedTimeRemaining *int64 `json:"estimatedTimeRemaining,omitempty"` // milliseconds
	ElapsedTime            *int64 `json:"elapsedTime,omitempty"`            // milliseconds
}

func (*Progress) Kind() Type { return TypeProgress }

// Preview carries a partial render of work in progress.
type Preview struct {
	Envelope
	StageID     string `json:"stageId"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"` // svg, png or html
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

func (*Preview) Kind() Type { return TypePreview }

// CompletedStage summarizes a settled stage.
type CompletedStage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration int64  `json:"duration"` // milliseconds
	Success  bool   `json:"success"`
}

// StageComplete reports that a stage settled, optionally naming the next one.
type StageComplete struct {
	Envelope
	Stage     CompletedStage `json:"stage"`
	NextStage *StageInfo     `json:"nextStage,omitempty"`
}

func (*StageComplete) Kind() Type { return TypeStageComplete }

// RunMetrics is the optional metrics block on a result message.
type RunMetrics struct {
	TotalTime  int64            `json:"totalTime"` // milliseconds
	TokensUsed int              `json:"tokensUsed"`
	Stages     map[string]int64 `json:"stages,omitempty"` // stage id -> milliseconds
}

// Result delivers the final generation output. Emitting a result implicitly
// entails end(success) shortly after; producers need not send a separate End.
type Result struct {
	Envelope
	Result  json.RawMessage `json:"result"`
	Metrics *RunMetrics     `json:"metrics,omitempty"`
}

func (*Result) Kind() Type { return TypeResult }

// Error reports a failure. Recoverable errors are eligible for reconnect.
type Error struct {
	Envelope
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
	RetryAfter  int64  `json:"retryAfter,omitempty"` // milliseconds
}

func (*Error) Kind() Type { return TypeError }

// Warning reports a non-fatal condition.
type Warning struct {
	Envelope
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (*Warning) Kind() Type { return TypeWarning }

// Info carries an informational note.
type Info struct {
	Envelope
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (*Info) Kind() Type { return TypeInfo }

// Cache reports whether the result was served from cache.
type Cache struct {
	Envelope
	Cached  bool   `json:"cached"`
	Source  string `json:"source,omitempty"` // full or partial
	Message string `json:"message,omitempty"`
}

func (*Cache) Kind() Type { return TypeCache }

// Heartbeat is a liveness signal with no payload beyond the envelope.
type Heartbeat struct {
	Envelope
}

func (*Heartbeat) Kind() Type { return TypeHeartbeat }

// End terminates the stream.
type End struct {
	Envelope
	Status EndStatus `json:"status"`
}

func (*End) Kind() Type { return TypeEnd }

// ErrNoType marks a parsed object lacking a canonical type tag. Such lines
// may still be interpretable as legacy messages.
var ErrNoType = errors.New("message has no canonical type")

// Decode parses one line into its concrete message type. A JSON parse failure
// returns the unmarshal error; a well-formed object without a recognized type
// tag returns ErrNoType so the caller can try legacy interpretation.
func Decode(line []byte) (Message, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, err
	}

	var msg Message
	switch probe.Type {
	case TypeStart:
		msg = &Start{}
	case TypeProgress:
		msg = &Progress{}
	case TypePreview:
		msg = &Preview{}
	case TypeStageComplete:
		msg = &StageComplete{}
	case TypeResult:
		msg = &Result{}
	case TypeError:
		msg = &Error{}
	case TypeWarning:
		msg = &Warning{}
	case TypeInfo:
		msg = &Info{}
	case TypeCache:
		msg = &Cache{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeEnd:
		msg = &End{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoType, probe.Type)
	}

	if err := json.Unmarshal(line, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeLegacy interprets an object without a canonical type tag via
// field-presence heuristics, so old producers interoperate with the new
// consumer. Returns ErrNoType when no heuristic matches.
func DecodeLegacy(line []byte) (Message, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, err
	}

	if raw, ok := obj["progress"]; ok {
		// Either a structured progress object or a bare number.
		var p Progress
		if err := json.Unmarshal(raw, &p); err == nil && p.CurrentStage != "" {
			p.Type = TypeProgress
			return &p, nil
		}
		var pct int
		if err := json.Unmarshal(raw, &pct); err == nil {
			return &Progress{Envelope: Envelope{Type: TypeProgress}, OverallProgress: pct}, nil
		}
	}

	if raw, ok := obj["preview"]; ok {
		var content string
		if err := json.Unmarshal(raw, &content); err == nil {
			return &Preview{
				Envelope:    Envelope{Type: TypePreview},
				Content:     content,
				ContentType: "svg",
			}, nil
		}
	}

	if _, ok := obj["complete"]; ok {
		if assets, ok := obj["assets"]; ok {
			return &Result{Envelope: Envelope{Type: TypeResult}, Result: assets}, nil
		}
	}

	if raw, ok := obj["error"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			return &Error{Envelope: Envelope{Type: TypeError}, Message: msg}, nil
		}
	}

	return nil, ErrNoType
}
