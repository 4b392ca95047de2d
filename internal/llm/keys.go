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
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const DefaultMaxKeyErrors = 3

var ErrNoAPIKeys = errors.New("no usable LLM API keys configured")

type apiKey struct {
	value    string
	errors   int
	disabled bool
}

// KeyManager rotates requests across API keys. A key is taken out of rotation after
// maxErrors consecutive failures; when every key is out, all are put back.
type KeyManager struct {
	mu        sync.Mutex
	keys      []*apiKey
	next      int
	maxErrors int
}

// UsableKey reports whether k looks like a real key rather than an empty or placeholder value.
func UsableKey(k string) bool {
	k = strings.TrimSpace(k)
	return k != "" && !strings.HasPrefix(k, "YOUR_")
}

func NewKeyManager(keys []string, maxErrors int) (*KeyManager, error) {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxKeyErrors
	}
	m := &KeyManager{maxErrors: maxErrors}
	seen := make(map[string]bool)
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if !UsableKey(k) || seen[k] {
			continue
		}
		seen[k] = true
		m.keys = append(m.keys, &apiKey{value: k})
	}
	if len(m.keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	return m, nil
}

// Next returns the next enabled key in round-robin order.
func (m *KeyManager) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < len(m.keys); i++ {
		k := m.keys[(m.next+i)%len(m.keys)]
		if !k.disabled {
			m.next = (m.next + i + 1) % len(m.keys)
			return k.value
		}
	}

	logrus.Warn("all LLM API keys disabled, resetting error counts")
	for _, k := range m.keys {
		k.disabled = false
		k.errors = 0
	}
	k := m.keys[m.next%len(m.keys)]
	m.next = (m.next + 1) % len(m.keys)
	return k.value
}

func (m *KeyManager) ReportError(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, k := range m.keys {
		if k.value != key {
			continue
		}
		k.errors++
		if k.errors >= m.maxErrors && !k.disabled {
			k.disabled = true
			logrus.WithField("key_index", i).Warnf("LLM API key disabled after %d errors", k.errors)
		}
		return
	}
}

func (m *KeyManager) ReportSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.value == key {
			k.errors = 0
			k.disabled = false
			return
		}
	}
}

// Available is the number of keys currently in rotation.
func (m *KeyManager) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, k := range m.keys {
		if !k.disabled {
			n++
		}
	}
	return n
}

func (m *KeyManager) Len() int {
	return len(m.keys)
}
