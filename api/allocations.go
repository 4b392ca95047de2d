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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/labsync/labsync"
	model2 "github.com/labsync/labsync/api/model"
	"github.com/labsync/labsync/model"
)

func usages(allocations []model.Allocation) []labsync.AllocationUsage {
	out := make([]labsync.AllocationUsage, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, labsync.NewAllocationUsage(a))
	}
	return out
}

func (a Api) GetAllocation(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.labsync.DataSource().GetAllocationByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, labsync.NewAllocationUsage(*resp))
}

func (a Api) GetAllAllocations(c *gin.Context) {
	page, ok := pagination(c)
	if !ok {
		return
	}

	resp, err := a.labsync.DataSource().GetAllAllocations(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usages(resp))
}

func (a Api) RecordSpend(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	var req model2.SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateSpendRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.labsync.RecordSpend(c.Request.Context(), id, *req.ActualSpent, req.NotesOrNil())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) RecordExpense(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	var req model2.ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateExpenseRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.labsync.RecordExpense(c.Request.Context(), id, req.Amount, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
