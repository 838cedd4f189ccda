// Package llm implements the model-backed collaborators of the memory
// core on the Anthropic API: the reconciliation Decider, the candidate
// fact Extractor, the session Summarizer and the chat Responder.
//
// The Decider follows the decide/apply split: Claude invokes memory tools
// during its loop, but the tools only record tagged actions — nothing is
// written until the Reconciler applies them.
package llm

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// Config configures all collaborators in this package.
type Config struct {
	// APIKey is the Anthropic API key. Required.
	APIKey string

	// Model overrides DefaultModel.
	Model string

	// MaxTokens caps each response. Default: 1024.
	MaxTokens int64
}

// Client carries the shared Anthropic client and model settings.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates the shared client for this package's collaborators.
func NewClient(cfg Config) *Client {
	api := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &Client{
		api:       &api,
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}
