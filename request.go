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

// Literal fallbacks substituted when a field is absent from the request.
const (
	DefaultMaxLength   = 50
	DefaultTemperature = 1.0
	DefaultTopP        = 0.9
)

// Validation messages returned verbatim to clients.
const (
	msgPromptRequired    = "Prompt is required"
	msgMaxLengthPositive = "max_length must be greater than 0"
	msgTemperatureRange  = "temperature must be between 0 and 2"
	msgTopPRange         = "top_p must be between 0 and 1"
	msgLimitNonNegative  = "limit must be greater than or equal to 0"
	msgOffsetNonNegative = "offset must be greater than or equal to 0"
	msgUnauthorized      = "Unauthorized"
	msgNoHistory         = "No history found"
	msgRequestCancelled  = "request cancelled"
)

// ValidationError is a client input error. Message is sent as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// generationParams is a GenerateRequest with defaults applied.
type generationParams struct {
	Prompt      string
	MaxLength   int
	Temperature float64
	TopP        float64
}

// Options converts p into runtime options. Sampling is always on.
func (p generationParams) Options() generation.GenerateOptions {
	return generation.GenerateOptions{
		MaxLength:   p.MaxLength,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		DoSample:    true,
	}
}

// resolveGenerateRequest fills defaults and validates in a fixed order:
// prompt, max_length, temperature, top_p. The first failure wins.
func resolveGenerateRequest(req GenerateRequest) (generationParams, error) {
	p := generationParams{
		MaxLength:   DefaultMaxLength,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
	if req.Prompt != nil {
		p.Prompt = *req.Prompt
	}
	if req.MaxLength != nil {
		p.MaxLength = *req.MaxLength
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}

	if p.Prompt == "" {
		return p, &ValidationError{Message: msgPromptRequired}
	}
	if p.MaxLength <= 0 {
		return p, &ValidationError{Message: msgMaxLengthPositive}
	}
	// Negated comparisons so NaN is rejected too.
	if !(p.Temperature > 0 && p.Temperature <= 2) {
		return p, &ValidationError{Message: msgTemperatureRange}
	}
	if !(p.TopP > 0 && p.TopP <= 1) {
		return p, &ValidationError{Message: msgTopPRange}
	}
	return p, nil
}
