/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package llm talks to the generative model used by the pipeline stages.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Generator turns a prompt into free-form text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// APIError is a provider failure with its HTTP status code.
type APIError struct {
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("llm error %d (%s): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("llm error %d: %s", e.Code, e.Message)
}

func (e *APIError) StatusCode() int {
	return e.Code
}

var (
	jsonObjectPattern    = regexp.MustCompile(`\{[\s\S]*\}`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the span from the first '{' to the last '}' in text, or the whole
// trimmed text when there is no such span. Trailing commas before a closing bracket are dropped.
func ExtractJSON(text string) string {
	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		raw = strings.TrimSpace(text)
	}
	return trailingCommaPattern.ReplaceAllString(raw, "$1")
}
