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
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antflydb/textgen/lib/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate text with a running server",
	Long: `Send a prompt to a running textgen server and print the generated text.

The prompt is taken from the arguments, or read from stdin when none are given.
Sampling flags left unset use the server defaults.

Examples:
  textgen generate "Once upon a time"
  textgen generate --max-length 100 --temperature 0.7 "The meaning of life is"
  echo "Hello" | textgen generate`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().Int("max-length", 0, "total tokens of prompt plus continuation (server default 50)")
	generateCmd.Flags().Float64("temperature", 0, "sampling temperature in (0, 2] (server default 1.0)")
	generateCmd.Flags().Float64("top-p", 0, "nucleus sampling threshold in (0, 1] (server default 0.9)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prompt := strings.Join(args, " ")
	if prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading prompt from stdin: %w", err)
		}
		prompt = strings.TrimRight(string(data), "\n")
	}

	params := cli.GenerateParams{Prompt: prompt}
	if cmd.Flags().Changed("max-length") {
		v, _ := cmd.Flags().GetInt("max-length")
		params.MaxLength = &v
	}
	if cmd.Flags().Changed("temperature") {
		v, _ := cmd.Flags().GetFloat64("temperature")
		params.Temperature = &v
	}
	if cmd.Flags().Changed("top-p") {
		v, _ := cmd.Flags().GetFloat64("top-p")
		params.TopP = &v
	}

	text, err := newAPIClient().Generate(ctx, params)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func newAPIClient() *cli.Client {
	return cli.NewClient(viper.GetString("api_url"), cli.WithAuthSecret(viper.GetString("auth.secret")))
}
