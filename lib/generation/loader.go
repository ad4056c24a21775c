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
	"fmt"
	"net/http"
	"time"

	"github.com/antflydb/textgen/lib/tokenizer"
	"go.uber.org/zap"
)

// Supported model runtimes.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// DefaultModel is the pretrained causal LM served when none is configured.
const DefaultModel = "gpt2"

// Config selects and configures the model runtime.
type Config struct {
	Backend   string        `json:"backend"`
	Model     string        `json:"model"`
	BaseURL   string        `json:"base_url,omitempty"`
	APIKey    string        `json:"-"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Tokenizer string        `json:"tokenizer,omitempty"`
}

// LoadGenerator builds the Generator described by cfg.
func LoadGenerator(cfg Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	tk, err := tokenizer.New(cfg.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	var completer Completer
	switch cfg.Backend {
	case "", BackendOllama:
		completer, err = NewOllamaCompleter(cfg.BaseURL, cfg.Model, httpClient, logger)
	case BackendOpenAI:
		completer, err = NewOpenAICompleter(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown generator backend %q (supported: %s, %s)", cfg.Backend, BackendOllama, BackendOpenAI)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s runtime: %w", cfg.Backend, err)
	}

	logger.Info("Generator ready",
		zap.String("backend", completer.Backend()),
		zap.String("model", completer.Model()),
		zap.String("tokenizer", tk.Name()))

	return NewCausalLMGenerator(completer, tk, logger)
}
