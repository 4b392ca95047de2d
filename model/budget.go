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

import "time"

// MaxAmount is the largest money figure stored. Larger figures do not fit the
// BIGINT and NUMERIC(18,2) columns.
const MaxAmount = 1e15

// InRange reports whether f is a finite, non-negative amount no larger than MaxAmount.
func InRange(f float64) bool {
	return f >= 0 && f <= MaxAmount
}

type BreakdownItem struct {
	Category string  `json:"category"`
	Item     string  `json:"item"`
	Quantity float64 `json:"quantity"`
	UnitCost float64 `json:"unit_cost"`
	Total    float64 `json:"total"`
}

// Budget is the designed cost plan for one meeting.
type Budget struct {
	BudgetID      string          `json:"budget_id"`
	MeetingID     string          `json:"meeting_id"`
	ProjectName   string          `json:"project_name"`
	TotalBudget   int64           `json:"total_budget"`
	PeopleCosts   PeopleCosts     `json:"people_costs"`
	ResourceCosts ResourceCosts   `json:"resource_costs"`
	Breakdown     []BreakdownItem `json:"breakdown"`
	DesignedBy    string          `json:"designed_by"`
	DesignedAt    time.Time       `json:"designed_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ComputedTotal sums people, resource and breakdown totals.
func (b *Budget) ComputedTotal() float64 {
	sum := b.PeopleCosts.Sum() + b.ResourceCosts.Sum()
	for _, item := range b.Breakdown {
		sum += item.Total
	}
	return sum
}
