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

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/model"
	"go.opentelemetry.io/otel"
)

const budgetColumns = `budget_id, meeting_id, project_name, total_budget, people_costs, resource_costs, breakdown, designed_by, designed_at, created_at`

func scanBudget(row rowScanner) (*model.Budget, error) {
	b := model.Budget{}
	var peopleJSON, resourcesJSON, breakdownJSON []byte
	err := row.Scan(
		&b.BudgetID, &b.MeetingID, &b.ProjectName, &b.TotalBudget,
		&peopleJSON, &resourcesJSON, &breakdownJSON,
		&b.DesignedBy, &b.DesignedAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(peopleJSON, &b.PeopleCosts); err != nil {
		return nil, fmt.Errorf("decode people costs: %w", err)
	}
	if err := json.Unmarshal(resourcesJSON, &b.ResourceCosts); err != nil {
		return nil, fmt.Errorf("decode resource costs: %w", err)
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &b.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	if b.Breakdown == nil {
		b.Breakdown = []model.BreakdownItem{}
	}
	return &b, nil
}

func (d Datasource) queryBudgets(ctx context.Context, query string, args ...interface{}) ([]model.Budget, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve budgets", err)
	}
	defer rows.Close()

	budgets := []model.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan budget data", err)
		}
		budgets = append(budgets, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over budgets", err)
	}
	return budgets, nil
}

// UpsertBudget keeps at most one budget per meeting.
func (d Datasource) UpsertBudget(ctx context.Context, b *model.Budget) (*model.Budget, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Upserting budget")
	defer span.End()

	if b.BudgetID == "" {
		b.BudgetID = model.GenerateUUIDWithSuffix("bdg")
	}
	now := time.Now()
	if b.DesignedAt.IsZero() {
		b.DesignedAt = now
	}
	breakdown := b.Breakdown
	if breakdown == nil {
		breakdown = []model.BreakdownItem{}
	}

	peopleJSON, err := json.Marshal(b.PeopleCosts)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal people costs", err)
	}
	resourcesJSON, err := json.Marshal(b.ResourceCosts)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal resource costs", err)
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal breakdown", err)
	}

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO labsync.budgets (budget_id, meeting_id, project_name, total_budget, people_costs, resource_costs, breakdown, designed_by, designed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (meeting_id) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			total_budget = EXCLUDED.total_budget,
			people_costs = EXCLUDED.people_costs,
			resource_costs = EXCLUDED.resource_costs,
			breakdown = EXCLUDED.breakdown,
			designed_by = EXCLUDED.designed_by,
			designed_at = EXCLUDED.designed_at
		RETURNING `+budgetColumns,
		b.BudgetID, b.MeetingID, b.ProjectName, b.TotalBudget, peopleJSON, resourcesJSON, breakdownJSON,
		b.DesignedBy, b.DesignedAt, now,
	)

	stored, err := scanBudget(row)
	if err != nil {
		span.RecordError(err)
		return nil, mapWriteError(err, "Budget")
	}
	return stored, nil
}

func (d Datasource) GetBudgetByID(ctx context.Context, id string) (*model.Budget, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching budget by ID")
	defer span.End()

	b, err := scanBudget(d.Conn.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM labsync.budgets WHERE budget_id = $1`, id))
	if err != nil {
		return nil, mapReadError(err, "Budget")
	}
	return b, nil
}

func (d Datasource) GetBudgetByMeetingID(ctx context.Context, meetingID string) (*model.Budget, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching budget by meeting ID")
	defer span.End()

	b, err := scanBudget(d.Conn.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM labsync.budgets WHERE meeting_id = $1`, meetingID))
	if err != nil {
		return nil, mapReadError(err, "Budget")
	}
	return b, nil
}

func (d Datasource) GetAllBudgets(ctx context.Context, limit, offset int) ([]model.Budget, error) {
	return d.queryBudgets(ctx, `
		SELECT `+budgetColumns+`
		FROM labsync.budgets
		ORDER BY designed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// GetBudgetsAwaitingAllocation returns budgets whose owning message is designed with
// allocation still pending.
func (d Datasource) GetBudgetsAwaitingAllocation(ctx context.Context, limit int) ([]model.Budget, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching budgets awaiting allocation")
	defer span.End()

	return d.queryBudgets(ctx, `
		SELECT b.budget_id, b.meeting_id, b.project_name, b.total_budget, b.people_costs, b.resource_costs, b.breakdown, b.designed_by, b.designed_at, b.created_at
		FROM labsync.budgets b
		JOIN labsync.meetings m ON m.meeting_id = b.meeting_id
		JOIN labsync.messages msg ON msg.id = m.message_id
		WHERE msg.design_status = 'designed' AND msg.allocation_status = 'pending'
		ORDER BY b.designed_at DESC
		LIMIT $1
	`, limit)
}
