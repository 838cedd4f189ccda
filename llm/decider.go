package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/recall/memory"
)

const deciderSystemPrompt = `You reconcile new conversational information with a user's existing memory store.

You are given the recent conversation and the most similar memories already in the database, each with a memory_id. Decide how to combine the new information with the existing memories using the tools:

- add_memory: store a brand-new fact as a new memory
- update_memory: replace an existing memory (by memory_id) with richer or corrected information; the old version is kept as history
- mark_memory_obsolete: mark an existing memory (by memory_id) as no longer true, with no replacement
- noop: nothing in the conversation warrants a memory change

Each memory is one atomic fact. Prefer update_memory over add_memory when the new information contradicts or enriches an existing memory.

When you are done, reply with a very short summary of what you did (less than 10 words). Think less and do actions.`

const maxDeciderTurns = 8

// existingMemory is the local-index view of a retrieved memory handed to
// the model. Ids are positions in the snapshot, not store ids.
type existingMemory struct {
	MemoryID   int      `json:"memory_id"`
	MemoryText string   `json:"memory_text"`
	Categories []string `json:"memory_categories"`
}

// Decider implements memory.Decider with a Claude tool-use loop. Tool
// invocations are recorded as tagged actions and returned; the store is
// never touched from here.
type Decider struct {
	client *Client
}

// NewDecider creates a Decider on the shared client.
func NewDecider(client *Client) *Decider {
	return &Decider{client: client}
}

var _ memory.Decider = (*Decider)(nil)

// Decide runs the tool-use loop and returns the recorded actions plus the
// model's closing summary.
func (d *Decider) Decide(ctx context.Context, transcript []memory.Turn, existing []memory.RetrievedMemory) ([]memory.Action, string, error) {
	withIDs := make([]existingMemory, 0, len(existing))
	for i, mem := range existing {
		withIDs = append(withIDs, existingMemory{
			MemoryID:   i,
			MemoryText: mem.Text,
			Categories: mem.Categories,
		})
	}

	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return nil, "", fmt.Errorf("marshal transcript: %w", err)
	}
	existingJSON, err := json.Marshal(withIDs)
	if err != nil {
		return nil, "", fmt.Errorf("marshal existing memories: %w", err)
	}

	payload := fmt.Sprintf("Conversation:\n%s\n\nExisting memories:\n%s", transcriptJSON, existingJSON)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(payload)),
	}

	var actions []memory.Action
	var summary string

	for turn := 0; turn < maxDeciderTurns; turn++ {
		resp, err := d.client.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     d.client.model,
			MaxTokens: d.client.maxTokens,
			Messages:  messages,
			System:    []anthropic.TextBlockParam{{Text: deciderSystemPrompt}},
			Tools:     deciderTools(),
		})
		if err != nil {
			return nil, "", fmt.Errorf("decider api call: %w", err)
		}

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				summary += block.Text

			case "tool_use":
				action, result, isErr := d.recordAction(block.Name, block.Input, len(existing))
				if action != nil {
					actions = append(actions, *action)
				}
				toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, result, isErr))
			}
		}

		if len(toolResults) == 0 {
			return actions, strings.TrimSpace(summary), nil
		}

		messages = append(messages, resp.ToParam())
		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	log.Printf("[RECONCILE] Decider hit turn limit with %d action(s) recorded", len(actions))
	return actions, strings.TrimSpace(summary), nil
}

func deciderTools() []anthropic.ToolUnionParam {
	categories := arrayProperty("Short category labels for the memory (e.g. \"location\", \"hobbies\").", stringProperty(""))
	return []anthropic.ToolUnionParam{
		tool("add_memory",
			"Add a brand-new memory to the database.",
			map[string]interface{}{
				"memory_text": stringProperty("The atomic fact to remember, as one short sentence."),
				"categories":  categories,
			}, "memory_text", "categories"),
		tool("update_memory",
			"Replace an existing memory (identified by memory_id) with richer or corrected text. The old version is preserved as history.",
			map[string]interface{}{
				"memory_id":   integerProperty("The memory_id of the existing memory to replace."),
				"memory_text": stringProperty("The replacement fact, as one short sentence."),
				"categories":  categories,
			}, "memory_id", "memory_text", "categories"),
		tool("mark_memory_obsolete",
			"Mark an existing memory (identified by memory_id) as no longer true. No replacement is stored.",
			map[string]interface{}{
				"memory_id": integerProperty("The memory_id of the memory that is obsolete."),
			}, "memory_id"),
		tool("noop",
			"No memory change is needed for this conversation.",
			map[string]interface{}{}),
	}
}

// recordAction converts one tool invocation into a tagged action plus the
// tool result text fed back to the model.
func (d *Decider) recordAction(name string, input json.RawMessage, existingCount int) (*memory.Action, string, bool) {
	switch name {
	case "add_memory":
		var in struct {
			MemoryText string   `json:"memory_text"`
			Categories []string `json:"categories"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Sprintf("invalid input: %v", err), true
		}
		if strings.TrimSpace(in.MemoryText) == "" {
			return nil, "memory_text must not be empty", true
		}
		return &memory.Action{
			Kind:       memory.ActionAdd,
			Text:       in.MemoryText,
			Categories: in.Categories,
		}, fmt.Sprintf("Memory added: %s", in.MemoryText), false

	case "update_memory":
		var in struct {
			MemoryID   int      `json:"memory_id"`
			MemoryText string   `json:"memory_text"`
			Categories []string `json:"categories"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Sprintf("invalid input: %v", err), true
		}
		if in.MemoryID < 0 || in.MemoryID >= existingCount {
			return nil, fmt.Sprintf("unknown memory_id %d", in.MemoryID), true
		}
		if strings.TrimSpace(in.MemoryText) == "" {
			return nil, "memory_text must not be empty", true
		}
		return &memory.Action{
			Kind:       memory.ActionUpdate,
			LocalIndex: in.MemoryID,
			Text:       in.MemoryText,
			Categories: in.Categories,
		}, fmt.Sprintf("Memory updated: %s", in.MemoryText), false

	case "mark_memory_obsolete":
		var in struct {
			MemoryID int `json:"memory_id"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Sprintf("invalid input: %v", err), true
		}
		if in.MemoryID < 0 || in.MemoryID >= existingCount {
			return nil, fmt.Sprintf("unknown memory_id %d", in.MemoryID), true
		}
		return &memory.Action{
			Kind:       memory.ActionSupersede,
			LocalIndex: in.MemoryID,
		}, fmt.Sprintf("Memory %d marked obsolete", in.MemoryID), false

	case "noop":
		return &memory.Action{Kind: memory.ActionNoop}, "No operation needed", false

	default:
		return nil, fmt.Sprintf("unknown tool: %s", name), true
	}
}
