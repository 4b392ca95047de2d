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

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when ordered decoding is given a JSON value that is not an object.
var ErrNotObject = errors.New("json value is not an object")

// DecodeOrderedObject walks the members of a JSON object in document order.
// A JSON null is treated as an empty object.
func DecodeOrderedObject(data []byte, fn func(key string, value json.RawMessage) error) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

// PeopleCost is the cost of one role. Total is always Count * Rate * Hours.
type PeopleCost struct {
	Count float64 `json:"count"`
	Rate  float64 `json:"rate"`
	Hours float64 `json:"hours"`
	Total float64 `json:"total"`
}

type PeopleCostEntry struct {
	Role string
	Cost PeopleCost
}

// PeopleCosts maps role names to costs, keeping the order roles were first seen.
// It encodes as a JSON object.
type PeopleCosts []PeopleCostEntry

// Set replaces the cost for role in place, or appends it.
func (p *PeopleCosts) Set(role string, cost PeopleCost) {
	for i := range *p {
		if (*p)[i].Role == role {
			(*p)[i].Cost = cost
			return
		}
	}
	*p = append(*p, PeopleCostEntry{Role: role, Cost: cost})
}

func (p PeopleCosts) Get(role string) (PeopleCost, bool) {
	for _, e := range p {
		if e.Role == role {
			return e.Cost, true
		}
	}
	return PeopleCost{}, false
}

func (p PeopleCosts) Sum() float64 {
	var sum float64
	for _, e := range p {
		sum += e.Cost.Total
	}
	return sum
}

func (p PeopleCosts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, e.Role, e.Cost); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *PeopleCosts) UnmarshalJSON(data []byte) error {
	out := PeopleCosts{}
	err := DecodeOrderedObject(data, func(key string, value json.RawMessage) error {
		var cost PeopleCost
		if err := json.Unmarshal(value, &cost); err != nil {
			return err
		}
		out.Set(key, cost)
		return nil
	})
	if err != nil {
		return err
	}
	*p = out
	return nil
}

type ResourceCostEntry struct {
	Resource string
	Amount   float64
}

// ResourceCosts maps resource names to amounts, keeping the order resources were first seen.
type ResourceCosts []ResourceCostEntry

func (r *ResourceCosts) Set(resource string, amount float64) {
	for i := range *r {
		if (*r)[i].Resource == resource {
			(*r)[i].Amount = amount
			return
		}
	}
	*r = append(*r, ResourceCostEntry{Resource: resource, Amount: amount})
}

func (r ResourceCosts) Get(resource string) (float64, bool) {
	for _, e := range r {
		if e.Resource == resource {
			return e.Amount, true
		}
	}
	return 0, false
}

func (r ResourceCosts) Sum() float64 {
	var sum float64
	for _, e := range r {
		sum += e.Amount
	}
	return sum
}

func (r ResourceCosts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, e.Resource, e.Amount); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *ResourceCosts) UnmarshalJSON(data []byte) error {
	out := ResourceCosts{}
	err := DecodeOrderedObject(data, func(key string, value json.RawMessage) error {
		var amount float64
		if err := json.Unmarshal(value, &amount); err != nil {
			return err
		}
		out.Set(key, amount)
		return nil
	})
	if err != nil {
		return err
	}
	*r = out
	return nil
}

func writeMember(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
