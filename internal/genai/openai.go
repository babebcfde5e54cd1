package genai

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// completionClient is the slice of the OpenAI client we use, extracted so
// tests can inject a failing backend.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGateway generates content through the OpenAI chat API. Every
// failure path ends in the kind's fallback value; callers never see an
// error.
type OpenAIGateway struct {
	client completionClient
	model  string
}

const systemPrompt = "You are a tokenization structuring analyst helping a sponsor model a real-world asset offering. Be concrete and concise."

func NewOpenAIGateway(apiKey, model string) *OpenAIGateway {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGateway{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (g *OpenAIGateway) Generate(ctx context.Context, kind string, inputs, extra map[string]any) any {
	k, ok := KindByName(kind)
	if !ok {
		log.Printf("genai: unknown kind %q, using fallback", kind)
		return fallbackFor(kind)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(k, inputs, extra)},
		},
	})
	if err != nil {
		log.Printf("genai: %s call failed, using fallback: %v", kind, err)
		return k.Fallback()
	}
	if len(resp.Choices) == 0 {
		log.Printf("genai: %s returned no choices, using fallback", kind)
		return k.Fallback()
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if k.Format == FormatText {
		if content == "" {
			return k.Fallback()
		}
		return content
	}

	parsed, ok := parseJSONObject(content)
	if !ok {
		log.Printf("genai: %s returned malformed JSON, using fallback", kind)
		return k.Fallback()
	}
	return parsed
}

// parseJSONObject decodes a model response into an object, tolerating
// markdown code fences around the payload.
func parseJSONObject(content string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}
