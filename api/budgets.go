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
	"github.com/labsync/labsync/model"
)

func (a Api) GetBudget(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.labsync.DataSource().GetBudgetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllBudgets(c *gin.Context) {
	page, ok := pagination(c)
	if !ok {
		return
	}

	resp, err := a.labsync.DataSource().GetAllBudgets(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if resp == nil {
		resp = []model.Budget{}
	}

	c.JSON(http.StatusOK, resp)
}

// GetBudgetAllocations lists a budget's allocations with their spend summary.
// An unknown budget is a 404 rather than an empty list.
func (a Api) GetBudgetAllocations(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := a.labsync.DataSource().GetBudgetByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	allocations, err := a.labsync.DataSource().GetAllocationsByBudgetID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usages(allocations))
}
