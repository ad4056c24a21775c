// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package generation invokes a pretrained causal language model for
// autoregressive text generation.
package generation

import "context"

// GenerateOptions configures text generation parameters.
type GenerateOptions struct {
	MaxLength   int     `json:"max_length"`  // Total sequence length, prompt tokens included
	Temperature float64 `json:"temperature"` // Sampling temperature
	TopP        float64 `json:"top_p"`       // Nucleus sampling probability
	DoSample    bool    `json:"do_sample"`   // Stochastic sampling instead of greedy decoding
}

// GenerateResult contains the output from text generation.
type GenerateResult struct {
	Text         string `json:"text"`          // Prompt followed by the continuation, special tokens removed
	Continuation string `json:"continuation"`  // The continuation alone, special tokens removed
	PromptTokens int    `json:"prompt_tokens"` // Tokens in the prompt
	TokensUsed   int    `json:"tokens_used"`   // Number of tokens generated
	FinishReason string `json:"finish_reason"` // "stop" or "length"
}

// Generator is the interface for text generation models.
type Generator interface {
	// Generate continues prompt using the specified options.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)

	// Model names the underlying model for logs and metrics.
	Model() string

	// Close releases any resources held by the generator.
	Close() error
}

// CompletionRequest is a raw continuation request sent to a model runtime.
type CompletionRequest struct {
	Prompt       string
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	DoSample     bool
}

// Completion is the continuation returned by a model runtime. Text does not
// include the prompt.
type Completion struct {
	Text            string
	TokensGenerated int
	FinishReason    string
}

// Completer is a model runtime that continues raw text. Implementations do
// not apply chat templates.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Backend returns the runtime name, e.g. "ollama".
	Backend() string

	// Model returns the model the runtime serves.
	Model() string

	Close() error
}
