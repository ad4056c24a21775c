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

package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/antflydb/textgen/lib/tokenizer"
	"go.uber.org/zap"
)

// Ensure CausalLMGenerator implements the Generator interface
var _ Generator = (*CausalLMGenerator)(nil)

// CausalLMGenerator turns a Completer into a Generator with causal-LM
// semantics: max_length bounds prompt plus continuation, and the returned
// text is the whole decoded sequence.
type CausalLMGenerator struct {
	completer Completer
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewCausalLMGenerator wraps completer. tk sizes the prompt and cleans output.
func NewCausalLMGenerator(completer Completer, tk tokenizer.Tokenizer, logger *zap.Logger) (*CausalLMGenerator, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if tk == nil {
		return nil, errors.New("tokenizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CausalLMGenerator{
		completer: completer,
		tokenizer: tk,
		logger:    logger,
	}, nil
}

// Generate runs one decoding pass for prompt.
func (g *CausalLMGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}

	promptTokens := g.tokenizer.CountTokens(prompt)
	budget := newTokenBudget(opts.MaxLength, promptTokens)

	g.logger.Debug("Starting generation",
		zap.Int("promptTokens", promptTokens),
		zap.Int("maxLength", opts.MaxLength),
		zap.Int("maxNewTokens", budget),
		zap.Float64("temperature", opts.Temperature),
		zap.Float64("topP", opts.TopP))

	completion, err := g.completer.Complete(ctx, CompletionRequest{
		Prompt:       prompt,
		MaxNewTokens: budget,
		Temperature:  opts.Temperature,
		TopP:         opts.TopP,
		DoSample:     opts.DoSample,
	})
	if err != nil {
		return nil, fmt.Errorf("running %s completion: %w", g.completer.Backend(), err)
	}

	tokensUsed := completion.TokensGenerated
	if tokensUsed == 0 {
		tokensUsed = g.tokenizer.CountTokens(completion.Text)
	}

	result := &GenerateResult{
		Text:         g.tokenizer.StripSpecialTokens(prompt + completion.Text),
		Continuation: g.tokenizer.StripSpecialTokens(completion.Text),
		PromptTokens: promptTokens,
		TokensUsed:   tokensUsed,
		FinishReason: completion.FinishReason,
	}

	g.logger.Debug("Generation complete",
		zap.Int("responseLength", len(result.Text)),
		zap.Int("tokensGenerated", result.TokensUsed),
		zap.String("finishReason", result.FinishReason))

	return result, nil
}

// Model returns the served model name.
func (g *CausalLMGenerator) Model() string {
	return g.completer.Model()
}

// Close releases the underlying completer.
func (g *CausalLMGenerator) Close() error {
	return g.completer.Close()
}

// newTokenBudget converts a total max_length into the number of tokens the
// runtime may add. A prompt that already fills max_length still gets one
// decoding step.
func newTokenBudget(maxLength, promptTokens int) int {
	budget := maxLength - promptTokens
	if budget < 1 {
		return 1
	}
	return budget
}
