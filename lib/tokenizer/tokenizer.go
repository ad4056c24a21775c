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

// Package tokenizer provides the prompt encoding used to size generation
// requests and to clean decoded model output.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// DefaultEncoding is the GPT-2 byte-level BPE vocabulary.
const DefaultEncoding = "r50k_base"

// tiktokenPrefix selects a built-in tiktoken encoding, e.g. "tiktoken:r50k_base".
const tiktokenPrefix = "tiktoken:"

// Tokenizer counts prompt tokens and strips special tokens from decoded text.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the text.
	// Returns a character-based estimate on error.
	CountTokens(text string) int

	// StripSpecialTokens removes special/control tokens (e.g. <|endoftext|>)
	// from text, leaving ordinary content untouched.
	StripSpecialTokens(text string) string

	// Name identifies the vocabulary for logs.
	Name() string
}

// New builds a tokenizer from a spec string:
//
//	""                    -> tiktoken r50k_base (GPT-2)
//	"tiktoken:<encoding>" -> tiktoken with the named encoding
//	anything else         -> path to a HuggingFace tokenizer.json
func New(spec string) (Tokenizer, error) {
	switch {
	case spec == "":
		return NewBPETokenizer(DefaultEncoding)
	case strings.HasPrefix(spec, tiktokenPrefix):
		return NewBPETokenizer(strings.TrimPrefix(spec, tiktokenPrefix))
	default:
		return NewFileTokenizer(spec)
	}
}

// BPETokenizer uses OpenAI's tiktoken BPE tokenization.
// r50k_base is the vocabulary GPT-2 was trained with.
type BPETokenizer struct {
	tiktoken *tiktoken.Tiktoken
	encoding string
}

func init() {
	// Set the offline loader for tiktoken to avoid network requests
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// specialTokens are the control tokens any tiktoken encoding may define.
var specialTokens = []string{
	tiktoken.ENDOFTEXT,
	tiktoken.FIM_PREFIX,
	tiktoken.FIM_MIDDLE,
	tiktoken.FIM_SUFFIX,
	tiktoken.ENDOFPROMPT,
}

// NewBPETokenizer creates a BPE tokenizer using tiktoken-go with embedded dictionaries.
// The encoding parameter specifies which BPE encoding to use:
// - "r50k_base": GPT-2 and GPT-3 models (default)
// - "p50k_base": Codex models
// - "cl100k_base": GPT-4, GPT-3.5-turbo
// - "o200k_base": GPT-4o models
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}

	return &BPETokenizer{tiktoken: tk, encoding: encoding}, nil
}

// CountTokens returns the number of tokens in the text.
// Special tokens typed into a prompt count as one token each, the same way
// the model sees them.
func (t *BPETokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	tokens := t.tiktoken.Encode(text, []string{"all"}, nil)
	return len(tokens)
}

// StripSpecialTokens removes every special token string from text.
func (t *BPETokenizer) StripSpecialTokens(text string) string {
	for _, special := range specialTokens {
		text = strings.ReplaceAll(text, special, "")
	}
	return text
}

// Name returns "tiktoken:<encoding>".
func (t *BPETokenizer) Name() string {
	return tiktokenPrefix + t.encoding
}

// FileTokenizer loads a HuggingFace tokenizer.json, e.g. the one shipped with
// openai-community/gpt2, so counts match the served model exactly.
type FileTokenizer struct {
	tokenizer *tokenizer.Tokenizer
	path      string
}

// NewFileTokenizer loads the tokenizer definition at path.
func NewFileTokenizer(path string) (*FileTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer from %s: %w", path, err)
	}
	return &FileTokenizer{tokenizer: tk, path: path}, nil
}

// CountTokens returns the number of tokens in the text.
// Uses a recover wrapper to handle panics from the underlying tokenizer library.
func (t *FileTokenizer) CountTokens(text string) (count int) {
	if text == "" {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			// Fallback: rough approximation (1 token ≈ 4 chars for English)
			count = len(text) / 4
		}
	}()

	enc, err := t.tokenizer.EncodeSingle(text)
	if err != nil {
		return len(text) / 4
	}

	return len(enc.Ids)
}

// StripSpecialTokens round-trips text through the vocabulary and decodes it
// with special tokens skipped. The input is returned unchanged if encoding fails.
func (t *FileTokenizer) StripSpecialTokens(text string) (out string) {
	if text == "" {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			out = text
		}
	}()

	enc, err := t.tokenizer.EncodeSingle(text)
	if err != nil {
		return text
	}

	return t.tokenizer.Decode(enc.Ids, true)
}

// Name returns the tokenizer file path.
func (t *FileTokenizer) Name() string {
	return t.path
}
