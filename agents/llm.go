package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/logoforge-dev/logoforge/agent"
)

// Completer is the model-call surface agents depend on. A nil Completer makes
// every agent fall back to its deterministic synthesis path, which keeps the
// pipeline runnable offline and in tests.
type Completer interface {
	Complete(ctx context.Context, model, system, user string) (string, agent.TokenUsage, error)
}

// OpenAIClient is the production Completer, backed by the OpenAI chat API with
// client-side rate limiting.
type OpenAIClient struct {
	client  *openai.Client
	limiter *rate.Limiter
	model   string
}

// NewOpenAIClient creates a rate-limited client. requestsPerSecond <= 0
// disables the limiter. defaultModel is used when an agent's definition names
// no model.
func NewOpenAIClient(apiKey, defaultModel string, requestsPerSecond float64) *OpenAIClient {
	c := &OpenAIClient{client: openai.NewClient(apiKey), model: defaultModel}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return c
}

// Complete issues one chat completion and reports token usage.
func (c *OpenAIClient) Complete(ctx context.Context, model, system, user string) (string, agent.TokenUsage, error) {
	var usage agent.TokenUsage

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", usage, err
		}
	}

	if model == "" {
		model = c.model
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", usage, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("chat completion returned no choices")
	}

	usage = agent.TokenUsage{
		Input:  resp.Usage.PromptTokens,
		Output: resp.Usage.CompletionTokens,
		Total:  resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// completeJSON runs the completer and unmarshals its reply into out. Model
// replies wrapped in markdown code fences are unwrapped first. Returns false
// when no completer is configured or the reply is unusable, signalling the
// caller to take its deterministic path.
func completeJSON(ctx context.Context, b *BaseAgent, c Completer, system, user string, out any) bool {
	if c == nil {
		return false
	}
	reply, usage, err := c.Complete(ctx, b.def.Model, system, user)
	if err != nil {
		log.Printf("[Agents] %s: model call failed, using deterministic path: %v", b.id, err)
		return false
	}
	b.recordUsage(usage)

	reply = stripFences(reply)
	return json.Unmarshal([]byte(reply), out) == nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
