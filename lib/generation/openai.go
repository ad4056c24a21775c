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
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

var _ Completer = (*OpenAICompleter)(nil)

// OpenAICompleter continues raw prompts through the legacy completions
// endpoint of an OpenAI-compatible server (vLLM, TGI, llama.cpp server).
// Chat completions would wrap the prompt in a template, which a base
// causal LM does not expect.
type OpenAICompleter struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAICompleter creates a client for the server at baseURL.
func NewOpenAICompleter(baseURL, apiKey, model string, httpClient *http.Client, logger *zap.Logger) (*OpenAICompleter, error) {
	if model == "" {
		return nil, errors.New("openai model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var options []option.RequestOption
	if apiKey != "" {
		options = append(options, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		logger.Info("Using custom OpenAI base URL", zap.String("url", baseURL))
		options = append(options, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		options = append(options, option.WithHTTPClient(httpClient))
	}

	return &OpenAICompleter{
		client: openai.NewClient(options...),
		model:  model,
		logger: logger,
	}, nil
}

// Complete requests a single choice continuing req.Prompt.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(c.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(req.Prompt),
		},
		MaxTokens:   openai.Int(int64(req.MaxNewTokens)),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	}
	if !req.DoSample {
		params.Temperature = openai.Float(0)
	}

	completion, err := c.client.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("creating completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("received an empty response from the completions endpoint")
	}

	choice := completion.Choices[0]
	return &Completion{
		Text:            choice.Text,
		TokensGenerated: int(completion.Usage.CompletionTokens),
		FinishReason:    string(choice.FinishReason),
	}, nil
}

// Backend returns "openai".
func (c *OpenAICompleter) Backend() string {
	return BackendOpenAI
}

// Model returns the served model id.
func (c *OpenAICompleter) Model() string {
	return c.model
}

// Close is a no-op.
func (c *OpenAICompleter) Close() error {
	return nil
}
