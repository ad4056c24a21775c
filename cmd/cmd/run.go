// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/antflydb/antfly-go/libaf/healthserver"
	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/antflydb/textgen"
	"github.com/antflydb/textgen/lib/generation"
	"github.com/antflydb/textgen/lib/history"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the textgen server",
	Long: `Start the textgen API server.

The server listens on --listen (default http://0.0.0.0:5000) and stores each
generation in the SQLite file at --database. Set --auth-secret (or
TEXTGEN_AUTH_SECRET) to require "Authorization: Bearer=<secret>".

Examples:
  # Serve gpt2 from a local Ollama
  textgen run

  # Serve through an OpenAI-compatible completions server
  textgen run --backend openai --base-url http://localhost:8000/v1/ --model gpt2

  # Count tokens with a downloaded HuggingFace tokenizer
  textgen run --tokenizer ~/.textgen/tokenizers/openai-community/gpt2/tokenizer.json`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.Int("health-port", 4200, "health/metrics server port")
	f.String("listen", textgen.DefaultApiUrl, "API listen URL")
	f.String("database", history.DefaultPath, "SQLite history database path")
	f.String("backend", generation.BackendOllama, "model runtime (ollama, openai)")
	f.String("model", generation.DefaultModel, "model served by the runtime")
	f.String("base-url", "", "runtime base URL (defaults to OLLAMA_HOST for ollama)")
	f.String("api-key", "", "API key for the openai runtime")
	f.Duration("generator-timeout", 0, "timeout for a single model call (0 = none)")
	f.String("tokenizer", "", "tokenizer used to count tokens (tiktoken:<encoding> or a tokenizer.json path)")
	f.Int("max-concurrent-requests", 0, "max in-flight model calls (0 = NumCPU)")
	f.Int("max-queue-size", 0, "max requests waiting for a slot (0 = 100)")
	f.String("request-timeout", "", "max wait for a slot, e.g. 30s (empty = no limit)")
	f.String("history-cache-ttl", "", "lifetime of cached history pages (empty = 30s)")

	mustBindPFlag("health_port", f.Lookup("health-port"))
	mustBindPFlag("listen", f.Lookup("listen"))
	mustBindPFlag("database_path", f.Lookup("database"))
	mustBindPFlag("generator.backend", f.Lookup("backend"))
	mustBindPFlag("generator.model", f.Lookup("model"))
	mustBindPFlag("generator.base_url", f.Lookup("base-url"))
	mustBindPFlag("generator.api_key", f.Lookup("api-key"))
	mustBindPFlag("generator.timeout", f.Lookup("generator-timeout"))
	mustBindPFlag("generator.tokenizer", f.Lookup("tokenizer"))
	mustBindPFlag("max_concurrent_requests", f.Lookup("max-concurrent-requests"))
	mustBindPFlag("max_queue_size", f.Lookup("max-queue-size"))
	mustBindPFlag("request_timeout", f.Lookup("request-timeout"))
	mustBindPFlag("history_cache_ttl", f.Lookup("history-cache-ttl"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create logger from config
	logger := logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: logging.Style(viper.GetString("log.style")),
	})
	defer func() {
		_ = logger.Sync()
	}()

	textgen.Version = Version
	logger.Info("Running as textgen", zap.String("version", Version))

	// Build textgen config from viper/env
	cfg := textgen.Config{
		ApiUrl:       viper.GetString("listen"),
		DatabasePath: viper.GetString("database_path"),
		AuthSecret:   viper.GetString("auth.secret"),
		Generator: generation.Config{
			Backend:   viper.GetString("generator.backend"),
			Model:     viper.GetString("generator.model"),
			BaseURL:   viper.GetString("generator.base_url"),
			APIKey:    viper.GetString("generator.api_key"),
			Timeout:   viper.GetDuration("generator.timeout"),
			Tokenizer: viper.GetString("generator.tokenizer"),
		},
		MaxConcurrentRequests: viper.GetInt("max_concurrent_requests"),
		MaxQueueSize:          viper.GetInt("max_queue_size"),
		RequestTimeout:        viper.GetString("request_timeout"),
		HistoryCacheTTL:       viper.GetString("history_cache_ttl"),
	}

	// Track readiness state
	ready := &atomic.Bool{}
	ready.Store(false)
	readyC := make(chan struct{})

	// Start health server with readiness checker
	healthserver.Start(logger, viper.GetInt("health_port"), ready.Load)

	// Wait for ready signal in background
	go func() {
		<-readyC
		ready.Store(true)
		logger.Info("Textgen is ready")
	}()

	textgen.RunAsTextgen(ctx, logger, cfg, readyC)
	return nil
}
