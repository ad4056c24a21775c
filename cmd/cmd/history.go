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
	"os"
	"os/signal"
	"syscall"

	"github.com/antflydb/textgen/lib/cli"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past generations from a running server",
	Long: `Print the generation history of a running textgen server, oldest first.

Examples:
  textgen history
  textgen history --limit 10 --offset 20
  textgen history --width 0   # do not truncate long text`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 0, "max records to show (0 = all)")
	historyCmd.Flags().Int("offset", 0, "records to skip")
	historyCmd.Flags().Int("width", 60, "truncate prompt and text to this many characters (0 = no limit)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	width, _ := cmd.Flags().GetInt("width")

	entries, err := newAPIClient().History(ctx, limit, offset)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history found")
		return nil
	}
	return cli.WriteHistory(os.Stdout, entries, width)
}
