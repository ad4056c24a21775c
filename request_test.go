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
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr[T any](v T) *T { return &v }

func TestResolveGenerateRequest(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		p, err := resolveGenerateRequest(GenerateRequest{Prompt: ptr("hi")})
		require.NoError(t, err)
		assert.Equal(t, generationParams{Prompt: "hi", MaxLength: 50, Temperature: 1.0, TopP: 0.9}, p)
		assert.True(t, p.Options().DoSample)
	})

	t.Run("Boundaries", func(t *testing.T) {
		_, err := resolveGenerateRequest(GenerateRequest{
			Prompt:      ptr("hi"),
			MaxLength:   ptr(1),
			Temperature: ptr(2.0),
			TopP:        ptr(1.0),
		})
		require.NoError(t, err)

		_, err = resolveGenerateRequest(GenerateRequest{
			Prompt:      ptr("hi"),
			Temperature: ptr(math.SmallestNonzeroFloat64),
			TopP:        ptr(math.SmallestNonzeroFloat64),
		})
		require.NoError(t, err)
	})

	t.Run("NaN", func(t *testing.T) {
		_, err := resolveGenerateRequest(GenerateRequest{Prompt: ptr("hi"), Temperature: ptr(math.NaN())})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "temperature must be between 0 and 2", verr.Message)

		_, err = resolveGenerateRequest(GenerateRequest{Prompt: ptr("hi"), TopP: ptr(math.NaN())})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "top_p must be between 0 and 1", verr.Message)
	})

	t.Run("WhitespacePromptIsAccepted", func(t *testing.T) {
		_, err := resolveGenerateRequest(GenerateRequest{Prompt: ptr("   ")})
		require.NoError(t, err)
	})
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	w := doRequest(t, authMiddleware("", zap.NewNop())(next), http.MethodGet, "/history", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestAuthorizationValue(t *testing.T) {
	assert.Equal(t, "Bearer=abc", AuthorizationValue("abc"))
}
