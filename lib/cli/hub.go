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

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
)

// TokenizerFile is the file the tokenizer loader reads.
const TokenizerFile = "tokenizer.json"

// optionalTokenizerFiles are copied alongside tokenizer.json when present.
var optionalTokenizerFiles = []string{
	"tokenizer_config.json",
	"special_tokens_map.json",
	"config.json",
}

// ProgressHandler is called during downloads
type ProgressHandler func(downloaded, total int64, filename string)

// HuggingFaceClient pulls tokenizer files from HuggingFace Hub
type HuggingFaceClient struct {
	token           string
	progressHandler ProgressHandler
}

// HFClientOption configures the HuggingFace client
type HFClientOption func(*HuggingFaceClient)

// NewHuggingFaceClient creates a new HuggingFace client
func NewHuggingFaceClient(opts ...HFClientOption) *HuggingFaceClient {
	c := &HuggingFaceClient{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHFToken sets the HuggingFace API token for gated models
func WithHFToken(token string) HFClientOption {
	return func(c *HuggingFaceClient) { c.token = token }
}

// WithHFProgressHandler sets the progress handler for downloads
func WithHFProgressHandler(h ProgressHandler) HFClientOption {
	return func(c *HuggingFaceClient) { c.progressHandler = h }
}

// PullTokenizer downloads the tokenizer files of repoID into
// destDir/owner/name/ and returns the path of tokenizer.json.
func (c *HuggingFaceClient) PullTokenizer(ctx context.Context, repoID, destDir string) (string, error) {
	repo := hub.New(repoID)
	if c.token != "" {
		repo = repo.WithAuth(c.token)
	}

	var files []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return "", fmt.Errorf("listing files: %w", err)
		}
		files = append(files, fileName)
	}

	toDownload, err := selectTokenizerFiles(files)
	if err != nil {
		return "", fmt.Errorf("%s: %w", repoID, err)
	}

	tokenizerDir := filepath.Join(destDir, filepath.FromSlash(repoID))
	if err := os.MkdirAll(tokenizerDir, 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	for _, fileName := range toDownload {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		localPath, err := repo.DownloadFile(fileName)
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", fileName, err)
		}

		destName := filepath.Base(fileName)
		destPath := filepath.Join(tokenizerDir, destName)

		if c.progressHandler != nil {
			c.progressHandler(0, 0, destName)
		}

		// Copy from cache to destination
		if err := copyFile(localPath, destPath); err != nil {
			return "", fmt.Errorf("copying %s: %w", fileName, err)
		}

		if c.progressHandler != nil {
			if info, err := os.Stat(destPath); err == nil {
				c.progressHandler(info.Size(), info.Size(), destName)
			}
		}
	}

	return filepath.Join(tokenizerDir, TokenizerFile), nil
}

// selectTokenizerFiles picks the top-level tokenizer.json and any optional
// companions. Files in subdirectories are ignored.
func selectTokenizerFiles(files []string) ([]string, error) {
	if !slices.Contains(files, TokenizerFile) {
		return nil, fmt.Errorf("no %s at the repository root", TokenizerFile)
	}
	selected := []string{TokenizerFile}
	for _, f := range optionalTokenizerFiles {
		if slices.Contains(files, f) {
			selected = append(selected, f)
		}
	}
	return selected, nil
}

// ParseHuggingFaceRef strips an optional "hf:" prefix and checks the
// owner/name shape.
func ParseHuggingFaceRef(ref string) (string, error) {
	repoID := strings.TrimPrefix(ref, "hf:")
	parts := strings.Split(repoID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid HuggingFace repo %q, expected owner/name", ref)
	}
	return repoID, nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copying: %w", err)
	}

	return dstFile.Close()
}
