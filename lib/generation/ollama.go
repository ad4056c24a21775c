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
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"go.uber.org/zap"
)

var _ Completer = (*OllamaCompleter)(nil)

// OllamaCompleter continues raw prompts with a model served by Ollama.
type OllamaCompleter struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewOllamaCompleter creates a client for the Ollama server at baseURL.
// An empty baseURL falls back to OLLAMA_HOST.
func NewOllamaCompleter(baseURL, model string, httpClient *http.Client, logger *zap.Logger) (*OllamaCompleter, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	host := envconfig.Host()
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing ollama base url %q: %w", baseURL, err)
		}
		host = u
	}

	logger.Info("Using Ollama runtime",
		zap.String("host", host.String()),
		zap.String("model", model))

	return &OllamaCompleter{
		client: api.NewClient(host, httpClient),
		model:  model,
		logger: logger,
	}, nil
}

// Complete sends prompt in raw mode so no chat template is applied.
func (c *OllamaCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	stream := false
	options := map[string]any{
		"num_predict": req.MaxNewTokens,
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	if !req.DoSample {
		// Ollama has no do_sample switch; top_k=1 is greedy decoding.
		options["top_k"] = 1
	}

	genReq := &api.GenerateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		Raw:     true,
		Stream:  &stream,
		Options: options,
	}

	var (
		text         strings.Builder
		evalCount    int
		finishReason string
	)
	err := c.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		text.WriteString(resp.Response)
		if resp.Done {
			evalCount = resp.EvalCount
			finishReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finishReason == "" {
		finishReason = "stop"
	}

	return &Completion{
		Text:            text.String(),
		TokensGenerated: evalCount,
		FinishReason:    finishReason,
	}, nil
}

// Backend returns "ollama".
func (c *OllamaCompleter) Backend() string {
	return BackendOllama
}

// Model returns the Ollama model tag.
func (c *OllamaCompleter) Model() string {
	return c.model
}

// Close is a no-op; the HTTP client is shared.
func (c *OllamaCompleter) Close() error {
	return nil
}
