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
	"fmt"
	"time"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/model"
	"go.opentelemetry.io/otel"
)

const allocationColumns = `allocation_id, budget_id, allocated_to, category, allocated_amount, actual_spent, notes, allocated_by, allocated_at, updated_at`

func scanAllocation(row rowScanner) (*model.Allocation, error) {
	a := model.Allocation{}
	err := row.Scan(
		&a.AllocationID, &a.BudgetID, &a.AllocatedTo, &a.Category, &a.AllocatedAmount,
		&a.ActualSpent, &a.Notes, &a.AllocatedBy, &a.AllocatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d Datasource) queryAllocations(ctx context.Context, query string, args ...interface{}) ([]model.Allocation, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve allocations", err)
	}
	defer rows.Close()

	allocations := []model.Allocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan allocation data", err)
		}
		allocations = append(allocations, *a)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over allocations", err)
	}
	return allocations, nil
}

// CreateAllocations inserts a batch in one transaction. Rows already present for the
// same budget, category and target are left untouched.
func (d Datasource) CreateAllocations(ctx context.Context, allocations []model.Allocation) error {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Creating allocations")
	defer span.End()

	if len(allocations) == 0 {
		return nil
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now()
	for i := range allocations {
		a := &allocations[i]
		if a.AllocationID == "" {
			a.AllocationID = model.GenerateUUIDWithSuffix("alc")
		}
		if a.AllocatedAt.IsZero() {
			a.AllocatedAt = now
		}
		a.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO labsync.allocations (allocation_id, budget_id, allocated_to, category, allocated_amount, actual_spent, notes, allocated_by, allocated_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (budget_id, category, allocated_to) DO NOTHING
		`, a.AllocationID, a.BudgetID, a.AllocatedTo, a.Category, a.AllocatedAmount, a.ActualSpent, a.Notes, a.AllocatedBy, a.AllocatedAt, a.UpdatedAt)
		if err != nil {
			span.RecordError(err)
			return mapWriteError(err, "Allocation")
		}
	}

	if err = tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit allocations", err)
	}
	return nil
}

func (d Datasource) GetAllocationByID(ctx context.Context, id string) (*model.Allocation, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching allocation by ID")
	defer span.End()

	a, err := scanAllocation(d.Conn.QueryRowContext(ctx, `SELECT `+allocationColumns+` FROM labsync.allocations WHERE allocation_id = $1`, id))
	if err != nil {
		return nil, mapReadError(err, "Allocation")
	}
	return a, nil
}

func (d Datasource) GetAllocationsByBudgetID(ctx context.Context, budgetID string) ([]model.Allocation, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching allocations by budget ID")
	defer span.End()

	return d.queryAllocations(ctx, `
		SELECT `+allocationColumns+`
		FROM labsync.allocations
		WHERE budget_id = $1
		ORDER BY allocated_at ASC, allocation_id ASC
	`, budgetID)
}

func (d Datasource) GetAllAllocations(ctx context.Context, limit, offset int) ([]model.Allocation, error) {
	return d.queryAllocations(ctx, `
		SELECT `+allocationColumns+`
		FROM labsync.allocations
		ORDER BY allocated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (d Datasource) UpdateAllocation(ctx context.Context, a *model.Allocation) error {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Updating allocation")
	defer span.End()

	a.UpdatedAt = time.Now()
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE labsync.allocations
		SET actual_spent = $1, notes = $2, updated_at = $3
		WHERE allocation_id = $4
	`, a.ActualSpent, a.Notes, a.UpdatedAt, a.AllocationID)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Allocation")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Allocation with ID '%s' not found", a.AllocationID), nil)
	}
	return nil
}
