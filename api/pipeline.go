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
	"github.com/sirupsen/logrus"
)

// GetPipelineStats reports the counters a worker engine last published. Without a
// live snapshot it falls back to this process's engine, marked with source "local".
func (a Api) GetPipelineStats(c *gin.Context) {
	if a.published != nil {
		stats, err := a.published.Latest(c.Request.Context())
		if err != nil {
			logrus.Warnf("failed to read published pipeline stats: %v", err)
		}
		if stats != nil {
			c.JSON(http.StatusOK, stats)
			return
		}
	}
	if a.processor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline engine is not running in this process"})
		return
	}
	c.JSON(http.StatusOK, a.processor.Stats())
}

// RunPipeline runs one engine cycle now. A cycle already in progress, here or on
// another replica, is not joined: ran is false.
func (a Api) RunPipeline(c *gin.Context) {
	if a.processor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline engine is not running in this process"})
		return
	}
	ran := a.processor.RunCycle(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ran": ran, "stats": a.processor.Stats()})
}

func (a Api) TriggerExtraction(c *gin.Context) {
	a.triggerStage(c, model.StageExtraction, "messageId")
}

func (a Api) TriggerDesign(c *gin.Context) {
	a.triggerStage(c, model.StageDesign, "meetingId")
}

func (a Api) TriggerAllocation(c *gin.Context) {
	a.triggerStage(c, model.StageAllocation, "budgetId")
}

func (a Api) triggerStage(c *gin.Context, stage model.Stage, param string) {
	id, ok := requiredParam(c, param)
	if !ok {
		return
	}

	resp, err := a.labsync.RunStage(c.Request.Context(), stage, id)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"stage": stage,
			"id":    id,
		}).Warnf("manual stage run failed: %v", err)
		c.JSON(stageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
