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

//go:build go1.22

//go:generate go tool oapi-codegen --config=cfg.yaml ./openapi.yaml
package textgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/antflydb/textgen/lib/generation"
	"github.com/antflydb/textgen/lib/history"
	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
)

// maxRequestBodyBytes caps the size of a /generate body.
const maxRequestBodyBytes = 1 << 20

// queueRetryAfter is the Retry-After hint sent with 503 responses.
const queueRetryAfter = 5 * time.Second

// TextgenAPI implements the generated ServerInterface
type TextgenAPI struct {
	logger *zap.Logger
	node   *TextgenNode
}

// NewTextgenAPI creates the HTTP handler for the generate, history and
// version routes. The access guard runs before parameter binding so that
// unauthorized requests never see a validation error.
func NewTextgenAPI(logger *zap.Logger, node *TextgenNode) http.Handler {
	api := &TextgenAPI{
		logger: logger,
		node:   node,
	}
	handler := HandlerWithOptions(api, StdHTTPServerOptions{
		BaseURL:    "",
		BaseRouter: http.NewServeMux(),
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		},
	})
	return authMiddleware(node.authSecret, logger)(handler)
}

// GenerateText implements ServerInterface
func (t *TextgenAPI) GenerateText(w http.ResponseWriter, r *http.Request) {
	t.node.handleApiGenerate(w, r)
}

// GetHistory implements ServerInterface
func (t *TextgenAPI) GetHistory(w http.ResponseWriter, r *http.Request, params GetHistoryParams) {
	t.node.handleApiHistory(w, r, params)
}

// GetVersion implements ServerInterface
func (t *TextgenAPI) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, t.logger, http.StatusOK, VersionResponse{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	})
}

// handleApiGenerate validates the request, continues the prompt and records
// the pair in the history log.
func (ln *TextgenNode) handleApiGenerate(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	start := time.Now()
	model := ln.generator.Model()

	status := http.StatusOK
	defer func() {
		code := strconv.Itoa(status)
		RecordGenerateRequest(model, code)
		RecordRequestDuration("generate", code, time.Since(start).Seconds())
	}()
	fail := func(code int, msg string) {
		status = code
		writeJSON(w, ln.logger, code, ErrorResponse{Error: msg})
	}

	req, err := decodeGenerateRequest(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		fail(http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}

	params, err := resolveGenerateRequest(req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			fail(http.StatusBadRequest, verr.Message)
			return
		}
		fail(http.StatusInternalServerError, err.Error())
		return
	}

	result, err := ln.generateAndRecord(r.Context(), params)
	if err != nil {
		var gerr *generateError
		switch {
		case errors.Is(err, ErrQueueFull):
			RecordQueueRejection()
			status = http.StatusServiceUnavailable
			WriteQueueFullResponse(w, queueRetryAfter)
		case errors.Is(err, ErrRequestTimeout):
			RecordQueueTimeout()
			status = http.StatusGatewayTimeout
			WriteTimeoutResponse(w)
		case errors.As(err, &gerr):
			fail(http.StatusInternalServerError, gerr.Message())
		default:
			// Context cancelled
			fail(http.StatusRequestTimeout, msgRequestCancelled)
		}
		return
	}

	ln.logger.Info("generation request completed",
		zap.String("model", model),
		zap.Int("max_length", params.MaxLength),
		zap.Float64("temperature", params.Temperature),
		zap.Float64("top_p", params.TopP),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("tokens_generated", result.TokensUsed),
		zap.String("finish_reason", result.FinishReason),
		zap.Duration("duration", time.Since(start)))

	writeJSON(w, ln.logger, http.StatusOK, GenerateResponse{GeneratedText: result.Text})
}

// generateError is a failure after the request got a generation slot.
type generateError struct {
	persist bool
	err     error
}

func (e *generateError) Error() string { return e.Message() }

func (e *generateError) Unwrap() error { return e.err }

// Message is the client-facing text. Storage failures carry the bare error.
func (e *generateError) Message() string {
	if e.persist {
		return e.err.Error()
	}
	return fmt.Sprintf("generation failed: %v", e.err)
}

// generateAndRecord waits for a queue slot, continues the prompt and appends
// the pair to the history log. Queue failures return ErrQueueFull,
// ErrRequestTimeout or the context error; later failures are *generateError.
func (ln *TextgenNode) generateAndRecord(ctx context.Context, params generationParams) (*generation.GenerateResult, error) {
	model := ln.generator.Model()

	// Apply backpressure via request queue
	release, err := ln.requestQueue.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// Update queue metrics
	UpdateQueueMetrics(ln.requestQueue.Stats())

	genStart := time.Now()
	result, err := ln.generator.Generate(ctx, params.Prompt, params.Options())
	RecordGenerationDuration(model, time.Since(genStart).Seconds())
	if err != nil {
		ln.logger.Error("generation failed",
			zap.String("model", model),
			zap.Int("prompt_length", len(params.Prompt)),
			zap.Error(err))
		return nil, &generateError{err: err}
	}
	release()

	if _, err := ln.historyCache.Append(ctx, params.Prompt, result.Text); err != nil {
		ln.logger.Error("recording history failed", zap.Error(err))
		return nil, &generateError{persist: true, err: err}
	}
	RecordHistoryRecord()
	RecordTokenGeneration(model, result.TokensUsed)
	return result, nil
}

// decodeGenerateRequest decodes body. An empty body is an empty object, so
// the prompt check reports it.
func decodeGenerateRequest(body io.Reader) (GenerateRequest, error) {
	var req GenerateRequest
	data, err := readBody(body)
	if err != nil || len(data) == 0 {
		return req, err
	}
	if err := sonic.Unmarshal(data, &req); err != nil {
		return req, err
	}
	return req, nil
}

// readBody reads body and returns nil when it is only whitespace.
func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// handleApiHistory returns stored generations ordered by id.
func (ln *TextgenNode) handleApiHistory(w http.ResponseWriter, r *http.Request, params GetHistoryParams) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		code := strconv.Itoa(status)
		RecordHistoryQuery(code)
		RecordRequestDuration("history", code, time.Since(start).Seconds())
	}()

	opts, err := historyListOptions(params)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, ln.logger, status, ErrorResponse{Error: err.Error()})
		return
	}

	page, err := ln.historyCache.List(r.Context(), opts)
	if err != nil {
		ln.logger.Error("listing history failed", zap.Error(err))
		status = http.StatusInternalServerError
		writeJSON(w, ln.logger, status, ErrorResponse{Error: err.Error()})
		return
	}

	if page.Count == 0 {
		status = http.StatusNotFound
		writeJSON(w, ln.logger, status, MessageResponse{Message: msgNoHistory})
		return
	}

	w.Header().Set("ETag", page.ETag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == page.ETag {
		status = http.StatusNotModified
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(page.Body); err != nil {
		ln.logger.Debug("writing history response", zap.Error(err))
	}
}

func historyListOptions(params GetHistoryParams) (history.ListOptions, error) {
	var opts history.ListOptions
	if params.Limit != nil {
		if *params.Limit < 0 {
			return opts, &ValidationError{Message: msgLimitNonNegative}
		}
		opts.Limit = *params.Limit
	}
	if params.Offset != nil {
		if *params.Offset < 0 {
			return opts, &ValidationError{Message: msgOffsetNonNegative}
		}
		opts.Offset = *params.Offset
	}
	return opts, nil
}

// writeJSON writes v as the JSON body with the given status.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := encoder.NewStreamEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("encoding response", zap.Error(err))
	}
}
