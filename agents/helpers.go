package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/logoforge-dev/logoforge/agent"
)

// payloadAs extracts a typed payload from an upstream output. Payloads arrive
// as concrete structs within one process, but show up as generic maps after a
// JSON round trip (cached results, fallback outputs), so a failed assertion
// falls back to re-marshalling.
func payloadAs[T any](out *agent.Output) (T, bool) {
	var zero T
	if out == nil {
		return zero, false
	}
	if v, ok := out.Payload.(T); ok {
		return v, true
	}
	raw, err := json.Marshal(out.Payload)
	if err != nil {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

// upstreamAs pulls a required upstream output and decodes its payload.
func upstreamAs[T any](input agent.Input, agentID string) (T, error) {
	var zero T
	v, ok := payloadAs[T](input.Upstream[agentID])
	if !ok {
		return zero, fmt.Errorf("upstream output %q missing or malformed", agentID)
	}
	return v, nil
}

// initials derives up to two uppercase initials from a brand name.
func initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range strings.ToUpper(word) {
			out = append(out, r)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

// keywordsFrom extracts salient lowercase words from free text.
func keywordsFrom(text string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) < 4 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}

var stopwords = map[string]bool{
	"with": true, "that": true, "this": true, "from": true, "have": true,
	"will": true, "your": true, "their": true, "about": true, "into": true,
	"which": true, "where": true, "when": true, "them": true, "then": true,
}
