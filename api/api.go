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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/labsync/labsync"
	"github.com/labsync/labsync/api/middleware"
	model2 "github.com/labsync/labsync/api/model"
	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/internal/socket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	labsync   *labsync.Labsync
	processor *labsync.Processor
	hub       *socket.Hub
	published labsync.StatsReader
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/health", a.Health)

	router.GET("/messages", a.GetAllMessages)
	router.GET("/messages/:id", a.GetMessage)

	router.GET("/meetings", a.GetAllMeetings)
	router.GET("/meetings/:id", a.GetMeeting)

	router.GET("/budgets", a.GetAllBudgets)
	router.GET("/budgets/:id", a.GetBudget)
	router.GET("/budgets/:id/allocations", a.GetBudgetAllocations)

	router.GET("/allocations", a.GetAllAllocations)
	router.GET("/allocations/:id", a.GetAllocation)
	router.PATCH("/allocations/:id/spend", a.RecordSpend)
	router.POST("/allocations/:id/expense", a.RecordExpense)

	router.GET("/pipeline/stats", a.GetPipelineStats)
	router.POST("/pipeline/run", a.RunPipeline)
	router.POST("/pipeline/extract/:messageId", a.TriggerExtraction)
	router.POST("/pipeline/design/:meetingId", a.TriggerDesign)
	router.POST("/pipeline/allocate/:budgetId", a.TriggerAllocation)

	router.POST("/webhook/telegram", a.TelegramWebhook)

	if a.hub != nil {
		router.GET("/ws", gin.WrapH(a.hub))
	}
	return a.router
}

// NewAPI wires the HTTP surface. processor and hub may be nil, in which case the
// engine endpoints answer 503 and /ws is not served.
func NewAPI(l *labsync.Labsync, p *labsync.Processor, hub *socket.Hub, conf *config.Configuration) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if conf.Telemetry.Enabled {
		r.Use(otelgin.Middleware("LABSYNC"))
	}
	// Telegram delivers updates from a small pool of addresses.
	r.Use(middleware.RateLimitMiddleware(conf.RateLimit, "/health", "/webhook/telegram"))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf.Server.SecretKey, "/health", "/webhook/telegram", "/ws"))
	}

	return &Api{labsync: l, processor: p, hub: hub, router: r}
}

// WithPublishedStats makes /pipeline/stats report the counters published by worker engines.
func (a *Api) WithPublishedStats(reader labsync.StatsReader) *Api {
	a.published = reader
	return a
}

func (a Api) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

// stageErrorStatus maps a failed stage run: missing entities are 404, model and
// upstream failures 502, anything else 500.
func stageErrorStatus(err error) int {
	if apierror.CodeOf(err) != "" {
		return apierror.MapErrorToHTTPStatus(err)
	}
	if errors.Is(err, labsync.ErrEmptyMessage) {
		return http.StatusBadRequest
	}
	if errors.Is(err, labsync.ErrMalformedResponse) {
		return http.StatusBadGateway
	}
	switch labsync.ClassifyError(err) {
	case labsync.ErrorClassQuota, labsync.ErrorClassTransient, labsync.ErrorClassAuth:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func requiredParam(c *gin.Context, name string) (string, bool) {
	id, passed := c.Params.Get(name)
	if !passed || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass it in the route /:" + name})
		return "", false
	}
	return id, true
}

func pagination(c *gin.Context) (model2.Pagination, bool) {
	var p model2.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return p, false
	}
	if err := p.ValidatePagination(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return p, false
	}
	p.Normalize()
	return p, true
}
