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

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const (
	DefaultModel   = "gemini-flash-latest"
	DefaultTimeout = 60 * time.Second
)

type GeminiConfig struct {
	APIKeys      []string
	Model        string
	Timeout      time.Duration
	MaxKeyErrors int

	// BaseURL and HTTPClient override the transport, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini generates text with the Gemini API, rotating across the configured keys.
type Gemini struct {
	model   string
	timeout time.Duration
	keys    *KeyManager
	clients map[string]*genai.Client
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	keys, err := NewKeyManager(cfg.APIKeys, cfg.MaxKeyErrors)
	if err != nil {
		return nil, err
	}

	g := &Gemini{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		keys:    keys,
		clients: make(map[string]*genai.Client, keys.Len()),
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}

	for _, k := range keys.keys {
		clientConfig := &genai.ClientConfig{
			APIKey:     k.value,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: cfg.HTTPClient,
		}
		if cfg.BaseURL != "" {
			clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		client, err := genai.NewClient(ctx, clientConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		g.clients[k.value] = client
	}

	logrus.WithFields(logrus.Fields{"model": g.model, "keys": keys.Len()}).Info("Gemini generator ready")
	return g, nil
}

// Generate sends prompt to the model. A request that outlives the configured timeout fails
// with context.DeadlineExceeded.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	key := g.keys.Next()
	client := g.clients[key]

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		err = convertError(err)
		if countsAgainstKey(err) {
			g.keys.ReportError(key)
		}
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &APIError{Code: http.StatusBadGateway, Message: "model returned an empty response"}
	}

	g.keys.ReportSuccess(key)
	return text, nil
}

func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &APIError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}

// countsAgainstKey is true for failures tied to the key itself: auth and quota.
func countsAgainstKey(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "api key")
}
