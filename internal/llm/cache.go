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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/labsync/labsync/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedGenerator remembers model responses per prompt, so a stage that fails after the
// model answered does not spend quota again on the next attempt.
// Only responses that contain a valid JSON object are stored.
type CachedGenerator struct {
	next      Generator
	cache     cache.Cache
	ttl       time.Duration
	namespace string
}

func NewCachedGenerator(next Generator, c cache.Cache, namespace string, ttl time.Duration) *CachedGenerator {
	return &CachedGenerator{next: next, cache: c, ttl: ttl, namespace: namespace}
}

func (g *CachedGenerator) key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "llm:" + g.namespace + ":" + hex.EncodeToString(sum[:])
}

func (g *CachedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	key := g.key(prompt)

	var cached string
	found, err := g.cache.Get(ctx, key, &cached)
	if err != nil {
		logrus.WithError(err).Warn("llm cache read failed")
	} else if found {
		return cached, nil
	}

	text, err := g.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	if json.Valid([]byte(ExtractJSON(text))) {
		if err := g.cache.Set(ctx, key, text, g.ttl); err != nil {
			logrus.WithError(err).Warn("llm cache write failed")
		}
	}
	return text, nil
}
