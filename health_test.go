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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTextgenNode_HandleHealthz(t *testing.T) {
	node := newTestNode(t, &mockGenerator{}, &mockStore{}, "")

	w := doRequest(t, http.HandlerFunc(node.handleHealthz), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, w).Status)
}

func TestTextgenNode_HandleReadyz(t *testing.T) {
	t.Run("Ready", func(t *testing.T) {
		node := newTestNode(t, &mockGenerator{}, &mockStore{}, "")

		w := doRequest(t, http.HandlerFunc(node.handleReadyz), http.MethodGet, "/readyz", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeBody[ReadyResponse](t, w)
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "gpt2", resp.Model)
		assert.Equal(t, "ok", resp.Checks["history"])
		require.NotNil(t, resp.Queue)
		assert.Equal(t, 10, resp.Queue.MaxConcurrent)
		require.NotNil(t, resp.HistoryRecords)
		assert.Zero(t, *resp.HistoryRecords)
		require.NotNil(t, resp.HistoryCache)
	})

	t.Run("ReportsHistorySize", func(t *testing.T) {
		store := &mockStore{}
		node := newTestNode(t, &mockGenerator{}, store, "")
		handler := NewTextgenAPI(node.logger, node)

		for range 3 {
			w := doRequest(t, handler, http.MethodPost, "/generate", `{"prompt": "Hi"}`, nil)
			require.Equal(t, http.StatusOK, w.Code)
		}
		w := doRequest(t, handler, http.MethodGet, "/history", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doRequest(t, http.HandlerFunc(node.handleReadyz), http.MethodGet, "/readyz", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeBody[ReadyResponse](t, w)
		require.NotNil(t, resp.HistoryRecords)
		assert.EqualValues(t, 3, *resp.HistoryRecords)
		require.NotNil(t, resp.HistoryCache)
		assert.EqualValues(t, 1, resp.HistoryCache.Misses)
	})

	t.Run("DatabaseDown", func(t *testing.T) {
		node := newTestNode(t, &mockGenerator{}, &mockStore{pingErr: errors.New("database is closed")}, "")

		w := doRequest(t, http.HandlerFunc(node.handleReadyz), http.MethodGet, "/readyz", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		resp := decodeBody[ReadyResponse](t, w)
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "database is closed", resp.Checks["history"])
	})

	t.Run("NothingConfigured", func(t *testing.T) {
		node := &TextgenNode{logger: zaptest.NewLogger(t)}

		w := doRequest(t, http.HandlerFunc(node.handleReadyz), http.MethodGet, "/readyz", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decodeBody[ReadyResponse](t, w)
		assert.Equal(t, "not configured", resp.Checks["generator"])
		assert.Equal(t, "not configured", resp.Checks["history"])
	})
}
