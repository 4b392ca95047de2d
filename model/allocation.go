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
	"math"
	"time"
)

const (
	CategoryPeople    = "People"
	CategoryResources = "Resources"
)

// Allocation is one line of a budget assigned to a role or resource.
type Allocation struct {
	AllocationID    string    `json:"allocation_id"`
	BudgetID        string    `json:"budget_id"`
	AllocatedTo     string    `json:"allocated_to"`
	Category        string    `json:"category"`
	AllocatedAmount float64   `json:"allocated_amount"`
	ActualSpent     float64   `json:"actual_spent"`
	Notes           string    `json:"notes"`
	AllocatedBy     string    `json:"allocated_by"`
	AllocatedAt     time.Time `json:"allocated_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Utilization returns actual spend as a whole percentage of the allocated amount.
func (a *Allocation) Utilization() int64 {
	if a.AllocatedAmount <= 0 {
		return 0
	}
	return int64(math.Round(a.ActualSpent / a.AllocatedAmount * 100))
}

func (a *Allocation) IsOverBudget() bool {
	return a.ActualSpent > a.AllocatedAmount
}
