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

package textgen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/antflydb/textgen/lib/generation"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newOpenAITestServer(t *testing.T, node *TextgenNode) *httptest.Server {
	t.Helper()
	handler, err := newRootHandler(zaptest.NewLogger(t), node)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompletions_SDK(t *testing.T) {
	gen := &mockGenerator{}
	store := &mockStore{}
	srv := newOpenAITestServer(t, newTestNode(t, gen, store, ""))

	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/openai/v1/"),
		option.WithAPIKey("unused"),
		option.WithMaxRetries(0),
	)

	completion, err := client.Completions.New(context.Background(), openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel("gpt2"),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String("Once upon a time")},
		MaxTokens:   openai.Int(30),
		Temperature: openai.Float(0.5),
	})
	require.NoError(t, err)

	require.Len(t, completion.Choices, 1)
	assert.Equal(t, ", there lived a curious fox.", completion.Choices[0].Text)
	assert.Equal(t, "gpt2", completion.Model)
	assert.EqualValues(t, 7, completion.Usage.CompletionTokens)
	assert.EqualValues(t, 11, completion.Usage.TotalTokens)

	// max_tokens is the total budget, top_p falls back to the default
	assert.Equal(t, generation.GenerateOptions{
		MaxLength:   30,
		Temperature: 0.5,
		TopP:        0.9,
		DoSample:    true,
	}, gen.LastOpts())

	// Recorded like /generate
	require.Len(t, store.records, 1)
	assert.Equal(t, "Once upon a time, there lived a curious fox.", store.records[0].GeneratedText)
}

func TestOpenAICompletions_Errors(t *testing.T) {
	srv := newOpenAITestServer(t, newTestNode(t, &mockGenerator{}, &mockStore{}, ""))
	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/openai/v1/"),
		option.WithAPIKey("unused"),
		option.WithMaxRetries(0),
	)

	tests := []struct {
		name       string
		params     openai.CompletionNewParams
		wantStatus int
	}{
		{
			name: "unknown model",
			params: openai.CompletionNewParams{
				Model:  openai.CompletionNewParamsModel("davinci-002"),
				Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String("Hi")},
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "temperature out of range",
			params: openai.CompletionNewParams{
				Model:       openai.CompletionNewParamsModel("gpt2"),
				Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String("Hi")},
				Temperature: openai.Float(2.5),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "empty prompt",
			params: openai.CompletionNewParams{
				Model:  openai.CompletionNewParamsModel("gpt2"),
				Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String("")},
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Completions.New(context.Background(), tt.params)
			require.Error(t, err)

			var apiErr *openai.Error
			require.True(t, errors.As(err, &apiErr), err.Error())
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
		})
	}
}

func TestOpenAICompletions_PromptWithSpecialToken(t *testing.T) {
	gen := &mockGenerator{
		generateFunc: func(ctx context.Context, prompt string, opts generation.GenerateOptions) (*generation.GenerateResult, error) {
			return &generation.GenerateResult{
				Text:         "AB and more",
				Continuation: " and more",
				PromptTokens: 3,
				TokensUsed:   2,
				FinishReason: "stop",
			}, nil
		},
	}
	store := &mockStore{}
	node := newTestNode(t, gen, store, "")
	handler, err := newRootHandler(node.logger, node)
	require.NoError(t, err)

	w := doRequest(t, handler, http.MethodPost, "/openai/v1/completions", `{"model":"gpt2","prompt":"A<|endoftext|>B"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody[openAICompletion](t, w)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, " and more", resp.Choices[0].Text)

	// History keeps the full text
	require.Len(t, store.records, 1)
	assert.Equal(t, "AB and more", store.records[0].GeneratedText)
}

func TestOpenAICompletions_GenerationFailure(t *testing.T) {
	gen := &mockGenerator{
		generateFunc: func(ctx context.Context, prompt string, opts generation.GenerateOptions) (*generation.GenerateResult, error) {
			return nil, errors.New("runtime offline")
		},
	}
	store := &mockStore{}
	node := newTestNode(t, gen, store, "")
	handler, err := newRootHandler(node.logger, node)
	require.NoError(t, err)

	w := doRequest(t, handler, http.MethodPost, "/openai/v1/completions", `{"model":"gpt2","prompt":"Hi"}`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeBody[openAIErrorResponse](t, w)
	assert.Equal(t, "server_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "runtime offline")
	assert.Empty(t, store.records)
}

func TestOpenAIModels(t *testing.T) {
	node := newTestNode(t, &mockGenerator{}, &mockStore{}, "")
	handler, err := newRootHandler(node.logger, node)
	require.NoError(t, err)

	w := doRequest(t, handler, http.MethodGet, "/openai/v1/models", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[openAIModelList](t, w)
	assert.Equal(t, "list", resp.Object)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "gpt2", resp.Data[0].ID)
	assert.Equal(t, "textgen", resp.Data[0].OwnedBy)
}

func TestOpenAIRoutes_AccessGuard(t *testing.T) {
	node := newTestNode(t, &mockGenerator{}, &mockStore{}, "s3cret")
	handler, err := newRootHandler(node.logger, node)
	require.NoError(t, err)

	// SDK style "Bearer <key>" is not the accepted form
	w := doRequest(t, handler, http.MethodGet, "/openai/v1/models", "", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, handler, http.MethodGet, "/openai/v1/models", "", map[string]string{"Authorization": AuthorizationValue("s3cret")})
	assert.Equal(t, http.StatusOK, w.Code)
}
