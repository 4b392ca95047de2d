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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocationRows() *sqlmock.Rows {
	return sqlmock.NewRows(strings.Split(allocationColumns, ", "))
}

func TestCreateAllocations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	allocations := []model.Allocation{
		{BudgetID: "bdg_1", AllocatedTo: "Drone Pilot", Category: model.CategoryPeople, AllocatedAmount: 72000, AllocatedBy: "BudgetAllocationService"},
		{BudgetID: "bdg_1", AllocatedTo: "Rent", Category: model.CategoryResources, AllocatedAmount: 2000, AllocatedBy: "BudgetAllocationService"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO labsync.allocations .* ON CONFLICT \\(budget_id, category, allocated_to\\) DO NOTHING").
		WithArgs(sqlmock.AnyArg(), "bdg_1", "Drone Pilot", "People", 72000.0, 0.0, "", "BudgetAllocationService", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO labsync.allocations").
		WithArgs(sqlmock.AnyArg(), "bdg_1", "Rent", "Resources", 2000.0, 0.0, "", "BudgetAllocationService", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = ds.CreateAllocations(context.Background(), allocations)
	require.NoError(t, err)
	for _, a := range allocations {
		assert.True(t, strings.HasPrefix(a.AllocationID, "alc_"))
		assert.False(t, a.AllocatedAt.IsZero())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAllocationsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO labsync.allocations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO labsync.allocations").
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	err = ds.CreateAllocations(context.Background(), []model.Allocation{
		{BudgetID: "bdg_1", AllocatedTo: "A", Category: model.CategoryPeople, AllocatedAmount: 1},
		{BudgetID: "bdg_1", AllocatedTo: "B", Category: model.CategoryPeople, AllocatedAmount: 2},
	})
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAllocationsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	assert.NoError(t, ds.CreateAllocations(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllocationsByBudgetID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()
	mock.ExpectQuery("FROM labsync.allocations\\s+WHERE budget_id = \\$1").
		WithArgs("bdg_1").
		WillReturnRows(allocationRows().
			AddRow("alc_1", "bdg_1", "Drone Pilot", "People", "72000.00", "100.50", "2 Drone Pilot(s)", "BudgetAllocationService", now, now))

	allocations, err := ds.GetAllocationsByBudgetID(context.Background(), "bdg_1")
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 72000.0, allocations[0].AllocatedAmount)
	assert.Equal(t, 100.5, allocations[0].ActualSpent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAllocation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	a := &model.Allocation{AllocationID: "alc_1", ActualSpent: 250, Notes: "paid"}

	mock.ExpectExec("UPDATE labsync.allocations\\s+SET actual_spent = \\$1, notes = \\$2").
		WithArgs(250.0, "paid", sqlmock.AnyArg(), "alc_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ds.UpdateAllocation(context.Background(), a))
	assert.False(t, a.UpdatedAt.IsZero())

	mock.ExpectExec("UPDATE labsync.allocations").
		WithArgs(250.0, "paid", sqlmock.AnyArg(), "alc_404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	a.AllocationID = "alc_404"
	assert.True(t, apierror.IsNotFound(ds.UpdateAllocation(context.Background(), a)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
