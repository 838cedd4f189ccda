package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/recall/memory"
)

const responderSystemPrompt = `You are a helpful, friendly AI assistant with long-term memory. You are given relevant memories retrieved from the user's personal memory store.

Use the retrieved memories naturally — don't just recite them. If the memories are empty or irrelevant, just respond normally. Be warm, concise, and conversational.

IMPORTANT — Memory versioning:
Memories can be marked [OLD/SUPERSEDED] when they were true in the past but have since been replaced by newer information. When answering a question like "where did I live before?" or "what was my old job?", use [OLD/SUPERSEDED] memories for the historical part and the most recent non-old memory for the current state. Always make clear which information is current vs. past.`

// Responder generates the user-facing chat reply with retrieved memories
// injected into the system prompt.
type Responder struct {
	client *Client
}

// NewResponder creates a Responder on the shared client.
func NewResponder(client *Client) *Responder {
	return &Responder{client: client}
}

// Respond answers the latest user message given recent transcript context
// and the memories retrieved for it.
func (r *Responder) Respond(ctx context.Context, transcript []memory.Turn, retrieved []memory.RetrievedMemory) (string, error) {
	system := responderSystemPrompt
	if len(retrieved) > 0 {
		var lines []string
		lines = append(lines, "\n\n=== RETRIEVED MEMORIES ===")
		for _, mem := range retrieved {
			lines = append(lines, "- "+mem.String())
		}
		system += strings.Join(lines, "\n")
	}

	messages := make([]anthropic.MessageParam, 0, len(transcript))
	for _, turn := range transcript {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == memory.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("empty transcript")
	}

	resp, err := r.client.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.client.model,
		MaxTokens: r.client.maxTokens,
		Messages:  messages,
		System:    []anthropic.TextBlockParam{{Text: system}},
	})
	if err != nil {
		return "", fmt.Errorf("responder api call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return strings.TrimSpace(text), nil
}
