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
	"net/http"
	"time"

	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
)

// Version information - set at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// readyCheckTimeout bounds the database ping in /readyz
const readyCheckTimeout = 2 * time.Second

// HealthResponse is the response for /healthz endpoint
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for /readyz endpoint
type ReadyResponse struct {
	Status string            `json:"status"`
	Model  string            `json:"model,omitempty"`
	Checks map[string]string `json:"checks"`
	Queue  *QueueStats       `json:"queue,omitempty"`

	HistoryRecords *int64             `json:"history_records,omitempty"`
	HistoryCache   *HistoryCacheStats `json:"history_cache,omitempty"`
}

// handleHealthz returns 200 if the service is running (liveness check)
func (ln *TextgenNode) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = encoder.NewStreamEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// handleReadyz returns 200 if the service is ready to accept requests (readiness check)
func (ln *TextgenNode) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status: "ready",
		Checks: map[string]string{},
	}
	ready := true

	if ln.generator != nil {
		resp.Model = ln.generator.Model()
		resp.Checks["generator"] = "ok"
	} else {
		resp.Checks["generator"] = "not configured"
		ready = false
	}

	if ln.historyStore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()
		err := ln.historyStore.Ping(ctx)
		if err != nil {
			ln.logger.Warn("History store ping failed", zap.Error(err))
			resp.Checks["history"] = err.Error()
			ready = false
		} else {
			resp.Checks["history"] = "ok"
			if count, err := ln.historyStore.Count(ctx); err == nil {
				resp.HistoryRecords = &count
			}
		}
	} else {
		resp.Checks["history"] = "not configured"
		ready = false
	}

	if ln.requestQueue != nil {
		stats := ln.requestQueue.Stats()
		resp.Queue = &stats
	}

	if ln.historyCache != nil {
		stats := ln.historyCache.Stats()
		resp.HistoryCache = &stats
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		resp.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = encoder.NewStreamEncoder(w).Encode(resp)
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = encoder.NewStreamEncoder(w).Encode(resp)
}
