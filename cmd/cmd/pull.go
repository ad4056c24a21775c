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
	"fmt"

	"github.com/antflydb/textgen/lib/cli"
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <owner/name> [owner/name...]",
	Short: "Pull tokenizer(s) from HuggingFace",
	Long: `Download the tokenizer.json of one or more HuggingFace repositories.

Tokenizers are stored under <tokenizers-dir>/<owner>/<name>/ and can be passed
to 'textgen run --tokenizer <path>' so token counts match the served model.

Examples:
  # Pull the GPT-2 tokenizer
  textgen pull openai-community/gpt2

  # The hf: prefix is accepted
  textgen pull hf:distilbert/distilgpt2

  # Gated repositories need a token
  textgen pull --hf-token $HF_TOKEN meta-llama/Llama-3.2-1B`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
}

func runPull(cmd *cobra.Command, args []string) error {
	hfToken, _ := cmd.Flags().GetString("hf-token")

	for _, ref := range args {
		fmt.Printf("\n=== Pulling %s ===\n", ref)
		if err := cli.PullTokenizer(ref, cli.PullOptions{
			TokenizersDir: tokenizersDir,
			HFToken:       hfToken,
		}); err != nil {
			return fmt.Errorf("failed to pull %s: %w", ref, err)
		}
	}

	return nil
}
