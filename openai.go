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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// OpenAI-compatible API at /openai/v1/*
//
// Standard OpenAI SDKs can call the served model through the legacy
// completions endpoint:
//
//   - POST /openai/v1/completions - Text completion (same path as /generate)
//   - GET  /openai/v1/models      - The served model
//
// max_tokens is read as max_length, the total token budget including the
// prompt. Completions are recorded in the history log like /generate.
//
// Usage with OpenAI SDK:
//
//	client := openai.NewClient(
//	    option.WithBaseURL("http://localhost:5000/openai/v1/"),
//	    option.WithHeader("Authorization", "Bearer=<secret>"),
//	)

type openAICompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      *string  `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
}

type openAICompletionChoice struct {
	Text         string  `json:"text"`
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Logprobs     *string `json:"logprobs"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAICompletion struct {
	ID      string                   `json:"id"`
	Object  string                   `json:"object"`
	Created int64                    `json:"created"`
	Model   string                   `json:"model"`
	Choices []openAICompletionChoice `json:"choices"`
	Usage   openAIUsage              `json:"usage"`
}

// OpenAI API response types
type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type openAIModelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

type openAIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type openAIErrorResponse struct {
	Error openAIErrorBody `json:"error"`
}

// RegisterOpenAIRoutes adds OpenAI-compatible endpoints to the given mux.
func (ln *TextgenNode) RegisterOpenAIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /openai/v1/completions", ln.handleOpenAICompletions)
	mux.HandleFunc("GET /openai/v1/models", ln.handleOpenAIModels)
}

// handleOpenAICompletions runs a legacy completion request through the same
// validation, queue and history path as /generate.
func (ln *TextgenNode) handleOpenAICompletions(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	start := time.Now()
	model := ln.generator.Model()

	status := http.StatusOK
	defer func() {
		code := strconv.Itoa(status)
		RecordGenerateRequest(model, code)
		RecordRequestDuration("openai_completions", code, time.Since(start).Seconds())
	}()
	fail := func(code int, errType, msg string) {
		status = code
		writeJSON(w, ln.logger, code, openAIErrorResponse{Error: openAIErrorBody{Message: msg, Type: errType}})
	}

	var req openAICompletionRequest
	body, err := readBody(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err == nil && len(body) > 0 {
		err = sonic.Unmarshal(body, &req)
	}
	if err != nil {
		fail(http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("decoding request: %v", err))
		return
	}

	if req.Model != "" && req.Model != model {
		status = http.StatusNotFound
		writeJSON(w, ln.logger, status, openAIErrorResponse{Error: openAIErrorBody{
			Message: fmt.Sprintf("The model %q does not exist", req.Model),
			Type:    "invalid_request_error",
			Code:    "model_not_found",
		}})
		return
	}

	params, err := resolveGenerateRequest(GenerateRequest{
		Prompt:      req.Prompt,
		MaxLength:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		fail(http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	result, err := ln.generateAndRecord(r.Context(), params)
	if err != nil {
		var gerr *generateError
		switch {
		case errors.Is(err, ErrQueueFull):
			RecordQueueRejection()
			w.Header().Set("Retry-After", strconv.Itoa(int(queueRetryAfter.Seconds())))
			fail(http.StatusServiceUnavailable, "server_error", "server is busy, please retry later")
		case errors.Is(err, ErrRequestTimeout):
			RecordQueueTimeout()
			fail(http.StatusGatewayTimeout, "server_error", "timed out waiting for a generation slot")
		case errors.As(err, &gerr):
			fail(http.StatusInternalServerError, "server_error", gerr.Message())
		default:
			fail(http.StatusRequestTimeout, "server_error", msgRequestCancelled)
		}
		return
	}

	created := time.Now()
	resp := openAICompletion{
		ID:      fmt.Sprintf("cmpl-%016x", xxhash.Sum64String(strconv.FormatInt(created.UnixNano(), 10)+result.Text)),
		Object:  "text_completion",
		Created: created.Unix(),
		Model:   model,
		Choices: []openAICompletionChoice{{
			Text:         result.Continuation,
			Index:        0,
			FinishReason: result.FinishReason,
		}},
		Usage: openAIUsage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.TokensUsed,
			TotalTokens:      result.PromptTokens + result.TokensUsed,
		},
	}

	ln.logger.Info("openai completion request completed",
		zap.String("model", model),
		zap.Int("max_length", params.MaxLength),
		zap.Int("tokens_generated", result.TokensUsed),
		zap.Duration("duration", time.Since(start)))

	writeJSON(w, ln.logger, http.StatusOK, resp)
}

// handleOpenAIModels returns the served model in OpenAI-compatible format.
func (ln *TextgenNode) handleOpenAIModels(w http.ResponseWriter, r *http.Request) {
	resp := openAIModelList{
		Object: "list",
		Data: []openAIModel{{
			ID:      ln.generator.Model(),
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "textgen",
		}},
	}
	writeJSON(w, ln.logger, http.StatusOK, resp)
}
