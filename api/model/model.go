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
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/wacul/ptr"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination is read from the limit and offset query parameters of list endpoints.
type Pagination struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (p *Pagination) ValidatePagination() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Limit, validation.Min(0)),
		validation.Field(&p.Offset, validation.Min(0)),
	)
}

// Normalize applies the default page size and caps it at MaxPageLimit.
func (p *Pagination) Normalize() {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
}

type SpendRequest struct {
	ActualSpent *float64 `json:"actual_spent"`
	Notes       *string  `json:"notes,omitempty"`
}

func (s *SpendRequest) ValidateSpendRequest() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ActualSpent, validation.NotNil, validation.Min(0.0).Error("must be a non-negative number")),
		validation.Field(&s.Notes, validation.Length(0, 2000)),
	)
}

// NotesOrNil drops blank notes so they do not overwrite existing ones.
func (s *SpendRequest) NotesOrNil() *string {
	if s.Notes == nil || *s.Notes == "" {
		return nil
	}
	return ptr.String(*s.Notes)
}

type ExpenseRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

func (e *ExpenseRequest) ValidateExpenseRequest() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Amount, validation.Required.Error("must be a positive number"), validation.Min(0.0).Exclusive().Error("must be a positive number")),
		validation.Field(&e.Description, validation.Length(0, 500)),
	)
}
