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

// Package cli provides the functions behind the textgen subcommands that
// do not run the server: tokenizer management and calls to a running
// instance.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
)

// PullOptions contains options for pulling tokenizers from HuggingFace
type PullOptions struct {
	TokenizersDir string
	HFToken       string
}

// ListOptions contains options for listing local tokenizers
type ListOptions struct {
	TokenizersDir string
	BinaryName    string // Used for help messages
}

// PullTokenizer downloads the tokenizer of a HuggingFace repo. ref is
// "owner/name" or "hf:owner/name".
func PullTokenizer(ref string, opts PullOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repoID, err := ParseHuggingFaceRef(ref)
	if err != nil {
		return err
	}

	hfToken := opts.HFToken
	if hfToken == "" {
		hfToken = os.Getenv("HF_TOKEN")
	}

	client := NewHuggingFaceClient(
		WithHFToken(hfToken),
		WithHFProgressHandler(PrintProgress),
	)

	fmt.Printf("Pulling tokenizer from HuggingFace: %s\n", repoID)
	fmt.Println()
	fmt.Println("Downloading files...")

	path, err := client.PullTokenizer(ctx, repoID, opts.TokenizersDir)
	if err != nil {
		return fmt.Errorf("failed to pull tokenizer: %w", err)
	}

	fmt.Printf("\n✓ Tokenizer pulled successfully to %s\n", path)
	fmt.Printf("Serve with: --tokenizer %s\n", path)
	return nil
}

// ListLocalTokenizers lists tokenizers under opts.TokenizersDir
func ListLocalTokenizers(opts ListOptions) error {
	fmt.Printf("Local tokenizers in %s:\n\n", opts.TokenizersDir)
	found, err := writeLocalTokenizers(os.Stdout, opts.TokenizersDir)
	if err != nil {
		return err
	}

	if found == 0 {
		binaryName := opts.BinaryName
		if binaryName == "" {
			binaryName = "textgen"
		}
		fmt.Println("No tokenizers found locally.")
		fmt.Printf("\nUse '%s pull <owner/name>' to download one.\n", binaryName)
	}
	return nil
}

// writeLocalTokenizers prints one row per owner/name directory holding a
// tokenizer.json and returns how many it found.
func writeLocalTokenizers(out io.Writer, dir string) (int, error) {
	owners, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tPATH")

	total := 0
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(dir, owner.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			tokenizerDir := filepath.Join(dir, owner.Name(), name.Name())
			tokenizerPath := filepath.Join(tokenizerDir, TokenizerFile)
			if _, err := os.Stat(tokenizerPath); err != nil {
				continue
			}

			var size int64
			files, _ := os.ReadDir(tokenizerDir)
			for _, f := range files {
				if f.IsDir() {
					continue
				}
				if info, err := f.Info(); err == nil {
					size += info.Size()
				}
			}

			_, _ = fmt.Fprintf(w, "%s/%s\t%s\t%s\n",
				owner.Name(), name.Name(), FormatBytes(size), tokenizerPath)
			total++
		}
	}
	return total, w.Flush()
}

// WriteHistory prints history entries as a table. Long text is cut to
// width runes; width <= 0 disables truncation.
func WriteHistory(out io.Writer, entries []HistoryEntry, width int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROMPT\tGENERATED TEXT")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n",
			e.ID, truncate(e.Prompt, width), truncate(e.GeneratedText, width))
	}
	return w.Flush()
}

// truncate flattens newlines and shortens s to width runes.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// PrintProgress prints download progress to stdout
func PrintProgress(downloaded, total int64, filename string) {
	if total <= 0 {
		fmt.Printf("\r  %s: %s", filename, FormatBytes(downloaded))
		return
	}

	percent := float64(downloaded) / float64(total) * 100
	barWidth := 30
	filled := int(float64(barWidth) * float64(downloaded) / float64(total))

	bar := strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled)
	fmt.Printf("\r  %s: [%s] %.1f%% (%s/%s)",
		filename, bar, percent, FormatBytes(downloaded), FormatBytes(total))

	if downloaded >= total {
		fmt.Println()
	}
}
