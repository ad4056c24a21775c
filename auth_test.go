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
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/generate", want: "generate"},
		{path: "/history", want: "history"},
		{path: "/version", want: "version"},
		{path: "/openai/v1/completions", want: "openai"},
		{path: "/openai/v1/anything/else", want: "openai"},
		{path: "/generate/extra", want: "other"},
		{path: "/", want: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, guardedRoute(tt.path))
		})
	}
}

func TestAuthMiddleware_RejectionSeriesAreBounded(t *testing.T) {
	node := newTestNode(t, &mockGenerator{}, &mockStore{}, "s3cret")
	handler, err := newRootHandler(node.logger, node)
	require.NoError(t, err)

	for i := range 500 {
		w := doRequest(t, handler, http.MethodGet, fmt.Sprintf("/openai/v1/x%d", i), "", nil)
		require.Equal(t, http.StatusForbidden, w.Code)
	}
	w := doRequest(t, handler, http.MethodGet, "/history", "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// One series per route name, however many distinct paths were rejected
	assert.LessOrEqual(t, testutil.CollectAndCount(authRejections), 5)
	assert.GreaterOrEqual(t, testutil.ToFloat64(authRejections.WithLabelValues("openai")), float64(500))
}
