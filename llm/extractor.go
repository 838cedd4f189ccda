package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/recall/memory"
)

const extractorSystemPrompt = `Extract relevant information from the conversation: memory entries worth remembering when speaking to the user later. Each memory is one atomic unit of information.

You are given the memory categories already stored for this user. Reuse an existing category when the information fits it, or create a new one — personal identity facts (name, age, location) get their own category, general preferences and interests may share one.

If the transcript contains nothing relevant or important to remember, report no_info=true with an empty memory list.

Always answer by calling the extract_memories tool exactly once.`

// Extractor implements memory.Extractor: the upstream filter that decides
// whether a transcript is memory-worthy at all.
type Extractor struct {
	client *Client
}

// NewExtractor creates an Extractor on the shared client.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

var _ memory.Extractor = (*Extractor)(nil)

// Extract asks the model for candidate facts. A response without the
// expected tool call counts as "nothing worth remembering".
func (e *Extractor) Extract(ctx context.Context, transcript []memory.Turn, existingCategories []string) (bool, []memory.CandidateFact, error) {
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return false, nil, fmt.Errorf("marshal transcript: %w", err)
	}

	payload := fmt.Sprintf("Transcript:\n%s\n\nExisting categories: %s",
		transcriptJSON, strings.Join(existingCategories, ", "))

	resp, err := e.client.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.client.model,
		MaxTokens: e.client.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(payload)),
		},
		System: []anthropic.TextBlockParam{{Text: extractorSystemPrompt}},
		Tools:  []anthropic.ToolUnionParam{extractTool()},
	})
	if err != nil {
		return false, nil, fmt.Errorf("extractor api call: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != "extract_memories" {
			continue
		}

		var in struct {
			NoInfo      bool `json:"no_info"`
			NewMemories []struct {
				Information       string   `json:"information"`
				PredictedCategory []string `json:"predicted_category"`
				Sentiment         string   `json:"sentiment"`
			} `json:"new_memories"`
		}
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return false, nil, fmt.Errorf("parse extraction: %w", err)
		}
		if in.NoInfo {
			return false, nil, nil
		}

		candidates := make([]memory.CandidateFact, 0, len(in.NewMemories))
		for _, m := range in.NewMemories {
			if strings.TrimSpace(m.Information) == "" {
				continue
			}
			candidates = append(candidates, memory.CandidateFact{
				Text:       m.Information,
				Categories: m.PredictedCategory,
				Sentiment:  m.Sentiment,
			})
		}
		return len(candidates) > 0, candidates, nil
	}

	return false, nil, nil
}

func extractTool() anthropic.ToolUnionParam {
	return tool("extract_memories",
		"Report the memory entries extracted from the transcript, or no_info=true when there is nothing worth remembering.",
		map[string]interface{}{
			"no_info": booleanProperty("True when the transcript holds no information worth remembering."),
			"new_memories": arrayProperty("Extracted memory entries.",
				objectProperty("One atomic memory entry.",
					map[string]interface{}{
						"information":        stringProperty("The fact, as one short sentence."),
						"predicted_category": arrayProperty("Category labels for this fact.", stringProperty("")),
						"sentiment": map[string]interface{}{
							"type":        "string",
							"description": "The user's sentiment about this fact.",
							"enum":        []string{"happy", "sad", "neutral"},
						},
					}, "information", "predicted_category", "sentiment")),
		}, "no_info", "new_memories")
}
