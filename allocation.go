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

package labsync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const budgetAllocator = "BudgetAllocationService"

// AllocationUsage is an allocation with its spend summary.
type AllocationUsage struct {
	model.Allocation
	Utilization  string `json:"utilization"`
	IsOverBudget bool   `json:"is_over_budget"`
}

func NewAllocationUsage(a model.Allocation) AllocationUsage {
	return AllocationUsage{
		Allocation:   a,
		Utilization:  fmt.Sprintf("%d%%", a.Utilization()),
		IsOverBudget: a.IsOverBudget(),
	}
}

// ExpenseRecorded is the payload of allocation:expense.
type ExpenseRecorded struct {
	Allocation  AllocationUsage `json:"allocation"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// AllocateBudget splits a budget into one allocation per funded role and resource.
// A budget that already has allocations returns them unchanged.
func (l *Labsync) AllocateBudget(ctx context.Context, budgetID string) ([]model.Allocation, error) {
	ctx, span := tracer.Start(ctx, "AllocateBudget")
	defer span.End()
	span.SetAttributes(attribute.String("budget.id", budgetID))

	budget, err := l.datasource.GetBudgetByID(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	meeting, err := l.datasource.GetMeetingByID(ctx, budget.MeetingID)
	if err != nil {
		return nil, err
	}
	msg, err := l.datasource.GetMessageByID(ctx, meeting.MessageID)
	if err != nil {
		return nil, err
	}

	existing, err := l.datasource.GetAllocationsByBudgetID(ctx, budget.BudgetID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		// An earlier run may have persisted the batch and died before the status write.
		if msg.AllocationStatus != model.StatusAllocated {
			if err := l.datasource.UpdateMessageStatus(ctx, msg.ID, model.StageAllocation, model.StatusAllocated); err != nil {
				logrus.WithField("message_id", msg.ID).Warnf("failed to repair allocation status: %v", err)
			}
		}
		return existing, nil
	}

	allocations, err := l.allocate(ctx, msg, budget)
	if err != nil {
		span.RecordError(err)
		l.markFailed(ctx, msg.ID, model.StageAllocation)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"budget_id": budget.BudgetID,
		"count":     len(allocations),
	}).Info("budget allocated")
	return allocations, nil
}

func (l *Labsync) allocate(ctx context.Context, msg *model.Message, budget *model.Budget) ([]model.Allocation, error) {
	planned := PlanAllocations(budget, time.Now())
	if err := l.datasource.CreateAllocations(ctx, planned); err != nil {
		return nil, err
	}

	allocations, err := l.datasource.GetAllocationsByBudgetID(ctx, budget.BudgetID)
	if err != nil {
		return nil, err
	}

	if err := l.datasource.UpdateMessageStatus(ctx, msg.ID, model.StageAllocation, model.StatusAllocated); err != nil {
		return nil, err
	}
	msg.AllocationStatus = model.StatusAllocated
	l.notifier.Emit(ctx, EventStatusUpdated, StatusUpdate{
		MessageID: msg.ID,
		Stage:     model.StageAllocation,
		Status:    model.StatusAllocated,
		Message:   msg,
	})
	l.notifier.Emit(ctx, EventAllocationCreated, AllocationsCreated{
		Allocations:    allocations,
		BudgetID:       budget.BudgetID,
		ProjectName:    budget.ProjectName,
		TotalAllocated: totalAllocated(allocations),
	})
	return allocations, nil
}

// PlanAllocations builds the allocation rows for a budget, people first, in the
// budget's key order. Entries with nothing to fund are skipped. Keys that format to
// the same label in one category share a row with their amounts summed. Each row is
// stamped one microsecond after the previous so reads ordered by allocated_at keep
// plan order.
func PlanAllocations(budget *model.Budget, now time.Time) []model.Allocation {
	var out []model.Allocation
	rows := make(map[string]int)
	next := func(a model.Allocation) {
		key := a.Category + "\x00" + a.AllocatedTo
		if i, ok := rows[key]; ok {
			out[i].AllocatedAmount = decimal.NewFromFloat(out[i].AllocatedAmount).
				Add(decimal.NewFromFloat(a.AllocatedAmount)).InexactFloat64()
			out[i].Notes += "; " + a.Notes
			return
		}
		rows[key] = len(out)
		a.BudgetID = budget.BudgetID
		a.AllocatedBy = budgetAllocator
		a.AllocatedAt = now.Add(time.Duration(len(out)) * time.Microsecond)
		out = append(out, a)
	}

	for _, e := range budget.PeopleCosts {
		if e.Cost.Total <= 0 {
			continue
		}
		label := FormatLabel(e.Role)
		next(model.Allocation{
			AllocatedTo:     label,
			Category:        model.CategoryPeople,
			AllocatedAmount: e.Cost.Total,
			Notes: fmt.Sprintf("%s %s(s) x %shrs @ $%s/hr",
				formatNumber(e.Cost.Count), label, formatNumber(e.Cost.Hours), formatNumber(e.Cost.Rate)),
		})
	}
	for _, e := range budget.ResourceCosts {
		if e.Amount <= 0 {
			continue
		}
		label := FormatLabel(e.Resource)
		next(model.Allocation{
			AllocatedTo:     label,
			Category:        model.CategoryResources,
			AllocatedAmount: e.Amount,
			Notes:           label + " Cost",
		})
	}
	return out
}

// FormatLabel turns a snake_case key into a display label: "drone_pilot" becomes "Drone Pilot".
// Only the first letter of each word changes.
func FormatLabel(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func totalAllocated(allocations []model.Allocation) float64 {
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(decimal.NewFromFloat(a.AllocatedAmount))
	}
	return sum.InexactFloat64()
}

// RecordSpend overwrites what has been spent against an allocation. Notes replace the
// existing notes when given.
func (l *Labsync) RecordSpend(ctx context.Context, allocationID string, actualSpent float64, notes *string) (*AllocationUsage, error) {
	ctx, span := tracer.Start(ctx, "RecordSpend")
	defer span.End()

	if actualSpent < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "actual_spent must be a non-negative number", nil)
	}
	if !model.InRange(actualSpent) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "actual_spent is too large", nil)
	}

	a, err := l.datasource.GetAllocationByID(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	a.ActualSpent = actualSpent
	if notes != nil {
		a.Notes = *notes
	}
	if err := l.datasource.UpdateAllocation(ctx, a); err != nil {
		return nil, err
	}

	usage := NewAllocationUsage(*a)
	l.notifier.Emit(ctx, EventAllocationUpdated, usage)
	return &usage, nil
}

// RecordExpense adds an expense to an allocation's spend. A description is appended to the notes.
func (l *Labsync) RecordExpense(ctx context.Context, allocationID string, amount float64, description string) (*AllocationUsage, error) {
	ctx, span := tracer.Start(ctx, "RecordExpense")
	defer span.End()

	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "amount must be a positive number", nil)
	}
	if !model.InRange(amount) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "amount is too large", nil)
	}

	a, err := l.datasource.GetAllocationByID(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	spent := decimal.NewFromFloat(a.ActualSpent).Add(decimal.NewFromFloat(amount)).InexactFloat64()
	if !model.InRange(spent) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "amount is too large", nil)
	}
	a.ActualSpent = spent
	if description = strings.TrimSpace(description); description != "" {
		a.Notes += fmt.Sprintf(" | Expense: %s ($%s)", description, formatNumber(amount))
	}
	if err := l.datasource.UpdateAllocation(ctx, a); err != nil {
		return nil, err
	}

	usage := NewAllocationUsage(*a)
	l.notifier.Emit(ctx, EventAllocationExpense, ExpenseRecorded{
		Allocation:  usage,
		Amount:      amount,
		Description: description,
	})
	return &usage, nil
}
