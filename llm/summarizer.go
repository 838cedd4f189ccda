package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/recall/memory"
)

const summarizerSystemPrompt = `You are given a full conversation transcript from a single chat session. Write a concise 1-3 sentence summary of what was discussed or learned about the user during this session. Focus only on facts about the USER, not the assistant's responses. This will be stored as a memory.

If nothing meaningful was shared, reply with an empty response.`

// Summarizer produces the end-of-session summary that gets stored as a
// session_summary memory.
type Summarizer struct {
	client *Client
}

// NewSummarizer creates a Summarizer on the shared client.
func NewSummarizer(client *Client) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize returns a short summary of the session, or an empty string
// when nothing notable was shared.
func (s *Summarizer) Summarize(ctx context.Context, transcript []memory.Turn) (string, error) {
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	resp, err := s.client.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.client.model,
		MaxTokens: s.client.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(transcriptJSON))),
		},
		System: []anthropic.TextBlockParam{{Text: summarizerSystemPrompt}},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer api call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return strings.TrimSpace(text), nil
}
