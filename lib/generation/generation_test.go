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
	"testing"

	"github.com/antflydb/textgen/lib/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockCompleter records the last request and returns a canned completion
type mockCompleter struct {
	completeFunc func(ctx context.Context, req CompletionRequest) (*Completion, error)
	lastRequest  CompletionRequest
	closed       bool
}

func (m *mockCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	m.lastRequest = req
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return &Completion{
		Text:            " there lived a king",
		TokensGenerated: 4,
		FinishReason:    "length",
	}, nil
}

func (m *mockCompleter) Backend() string { return "mock" }
func (m *mockCompleter) Model() string   { return "gpt2" }
func (m *mockCompleter) Close() error {
	m.closed = true
	return nil
}

func newTestGenerator(t *testing.T, completer Completer) *CausalLMGenerator {
	t.Helper()
	tk, err := tokenizer.NewBPETokenizer(tokenizer.DefaultEncoding)
	require.NoError(t, err)
	gen, err := NewCausalLMGenerator(completer, tk, zap.NewNop())
	require.NoError(t, err)
	return gen
}

func TestNewCausalLMGenerator_RequiresDependencies(t *testing.T) {
	tk, err := tokenizer.NewBPETokenizer(tokenizer.DefaultEncoding)
	require.NoError(t, err)

	_, err = NewCausalLMGenerator(nil, tk, nil)
	require.Error(t, err)

	_, err = NewCausalLMGenerator(&mockCompleter{}, nil, nil)
	require.Error(t, err)
}

func TestCausalLMGenerator_Generate(t *testing.T) {
	completer := &mockCompleter{}
	gen := newTestGenerator(t, completer)

	result, err := gen.Generate(context.Background(), "Once upon a time", GenerateOptions{
		MaxLength:   50,
		Temperature: 1.0,
		TopP:        0.9,
		DoSample:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Once upon a time there lived a king", result.Text)
	assert.Equal(t, " there lived a king", result.Continuation)
	assert.Equal(t, 4, result.PromptTokens)
	assert.Equal(t, 4, result.TokensUsed)
	assert.Equal(t, "length", result.FinishReason)

	// Sampling parameters are passed through untouched
	assert.Equal(t, "Once upon a time", completer.lastRequest.Prompt)
	assert.Equal(t, 46, completer.lastRequest.MaxNewTokens)
	assert.InDelta(t, 1.0, completer.lastRequest.Temperature, 1e-9)
	assert.InDelta(t, 0.9, completer.lastRequest.TopP, 1e-9)
	assert.True(t, completer.lastRequest.DoSample)
}

func TestCausalLMGenerator_StripsSpecialTokens(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, req CompletionRequest) (*Completion, error) {
			return &Completion{Text: " the end.<|endoftext|>", FinishReason: "stop"}, nil
		},
	}
	gen := newTestGenerator(t, completer)

	result, err := gen.Generate(context.Background(), "And that was", GenerateOptions{MaxLength: 20, Temperature: 1, TopP: 1, DoSample: true})
	require.NoError(t, err)
	assert.Equal(t, "And that was the end.", result.Text)
	assert.Equal(t, " the end.", result.Continuation)
	// Falls back to counting the continuation when the runtime reports nothing
	assert.Positive(t, result.TokensUsed)
}

func TestCausalLMGenerator_ContinuationWithSpecialTokenInPrompt(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, req CompletionRequest) (*Completion, error) {
			return &Completion{Text: " and more", FinishReason: "stop"}, nil
		},
	}
	gen := newTestGenerator(t, completer)

	result, err := gen.Generate(context.Background(), "A<|endoftext|>B", GenerateOptions{MaxLength: 20, Temperature: 1, TopP: 1, DoSample: true})
	require.NoError(t, err)
	assert.Equal(t, "AB and more", result.Text)
	assert.Equal(t, " and more", result.Continuation)
}

func TestCausalLMGenerator_EmptyPrompt(t *testing.T) {
	gen := newTestGenerator(t, &mockCompleter{})
	_, err := gen.Generate(context.Background(), "", GenerateOptions{MaxLength: 50})
	require.Error(t, err)
}

func TestCausalLMGenerator_CompleterError(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, req CompletionRequest) (*Completion, error) {
			return nil, errors.New("model unavailable")
		},
	}
	gen := newTestGenerator(t, completer)

	_, err := gen.Generate(context.Background(), "Hello", GenerateOptions{MaxLength: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Contains(t, err.Error(), "mock")
}

func TestCausalLMGenerator_ModelAndClose(t *testing.T) {
	completer := &mockCompleter{}
	gen := newTestGenerator(t, completer)

	assert.Equal(t, "gpt2", gen.Model())
	require.NoError(t, gen.Close())
	assert.True(t, completer.closed)
}

func TestNewTokenBudget(t *testing.T) {
	tests := []struct {
		name         string
		maxLength    int
		promptTokens int
		want         int
	}{
		{name: "room left", maxLength: 50, promptTokens: 4, want: 46},
		{name: "exactly full", maxLength: 4, promptTokens: 4, want: 1},
		{name: "prompt longer than max", maxLength: 2, promptTokens: 10, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newTokenBudget(tt.maxLength, tt.promptTokens))
		})
	}
}
