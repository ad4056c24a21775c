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
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// authorizationPrefix is prepended to the shared secret to form the only
// accepted Authorization header value.
const authorizationPrefix = "Bearer="

// AuthorizationValue returns the header value clients must send for secret.
func AuthorizationValue(secret string) string {
	return authorizationPrefix + secret
}

// guardedRoute maps a request path to a fixed route name so rejected
// requests cannot mint new metric series.
func guardedRoute(path string) string {
	switch {
	case path == "/generate":
		return "generate"
	case path == "/history":
		return "history"
	case path == "/version":
		return "version"
	case strings.HasPrefix(path, "/openai/"):
		return "openai"
	default:
		return "other"
	}
}

// authMiddleware rejects requests whose Authorization header is not exactly
// "Bearer=<secret>". An empty secret disables the check.
func authMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		expected := []byte(AuthorizationValue(secret))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				RecordAuthRejection(guardedRoute(r.URL.Path))
				logger.Debug("Rejected unauthorized request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("header_present", got != ""))
				writeJSON(w, logger, http.StatusForbidden, ErrorResponse{Error: msgUnauthorized})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
