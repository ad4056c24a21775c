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
	"github.com/antflydb/textgen/lib/generation"
)

// DefaultApiUrl is where the API listens when api_url is unset.
const DefaultApiUrl = "http://0.0.0.0:5000"

// Config configures a textgen node.
type Config struct {
	// ApiUrl is the listen address of the public API.
	ApiUrl string `json:"api_url"`

	// DatabasePath is the SQLite file holding the history log.
	DatabasePath string `json:"database_path"`

	// AuthSecret enables the access guard when non-empty. Clients must send
	// "Authorization: Bearer=<secret>".
	AuthSecret string `json:"-"`

	// Generator selects the model runtime.
	Generator generation.Config `json:"generator"`

	// MaxConcurrentRequests caps in-flight model calls (0 = NumCPU).
	MaxConcurrentRequests int `json:"max_concurrent_requests,omitempty"`

	// MaxQueueSize caps requests waiting for a slot (0 = 100).
	MaxQueueSize int `json:"max_queue_size,omitempty"`

	// RequestTimeout is how long a request may wait for a slot, as a Go
	// duration string. Empty or "0" waits for the client.
	RequestTimeout string `json:"request_timeout,omitempty"`

	// HistoryCacheTTL is the lifetime of a cached history page, as a Go
	// duration string. Empty uses 30s.
	HistoryCacheTTL string `json:"history_cache_ttl,omitempty"`
}

// AuthEnabled reports whether the access guard is active.
func (c Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}
