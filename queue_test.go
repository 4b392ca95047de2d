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
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/labsync/labsync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageTask(t *testing.T) {
	task, err := NewStageTask(model.StageDesign, "mtg_1", "pipeline")
	require.NoError(t, err)
	assert.Equal(t, TaskDesign, task.Type())

	var payload StagePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "mtg_1", payload.ID)

	_, err = NewStageTask(model.Stage("review"), "x", "pipeline")
	assert.Error(t, err)
}

func TestStageTaskID(t *testing.T) {
	assert.Equal(t, "allocation:bdg_1", StageTaskID(model.StageAllocation, "bdg_1"))
}

func TestHandleStageTask(t *testing.T) {
	f := newPipelineFixture(dronePipeline)
	msg := f.store.addMessage("Need 2 Drone Pilots for 3 months")

	payload, err := json.Marshal(StagePayload{ID: msg.ID})
	require.NoError(t, err)
	require.NoError(t, f.labsync.HandleStageTask(context.Background(), asynq.NewTask(TaskExtract, payload)))
	assert.Equal(t, model.StatusExtracted, f.store.message(msg.ID).ExtractionStatus)

	t.Run("unknown type", func(t *testing.T) {
		err := f.labsync.HandleStageTask(context.Background(), asynq.NewTask("pipeline:review", payload))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("bad payload", func(t *testing.T) {
		err := f.labsync.HandleStageTask(context.Background(), asynq.NewTask(TaskExtract, []byte(`{"id": ""}`)))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("stage failure is returned", func(t *testing.T) {
		payload, _ := json.Marshal(StagePayload{ID: "msg_missing"})
		err := f.labsync.HandleStageTask(context.Background(), asynq.NewTask(TaskExtract, payload))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestQueueDispatch(t *testing.T) {
	mr, _ := newTestRedis(t)
	q := NewQueueWithOptions(asynq.RedisClientOpt{Addr: mr.Addr()}, "pipeline", "webhooks")
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	require.NoError(t, q.Dispatch(ctx, model.StageExtraction, "msg_1"))
	// A second dispatch for the same stage and entity collides on the task id.
	require.NoError(t, q.Dispatch(ctx, model.StageExtraction, "msg_1"))

	assert.True(t, mr.Exists("asynq:{pipeline}:t:extraction:msg_1"))
	pending, err := mr.List("asynq:{pipeline}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{"extraction:msg_1"}, pending)

	ev, err := NewEvent(EventMessageCreated, map[string]string{"id": "msg_1"})
	require.NoError(t, err)
	require.NoError(t, q.EnqueueWebhook(ctx, ev))

	webhooks, err := mr.List("asynq:{webhooks}:pending")
	require.NoError(t, err)
	assert.Len(t, webhooks, 1)
}

func TestQueueDispatchAfterArchivedFailure(t *testing.T) {
	mr, _ := newTestRedis(t)
	q := NewQueueWithOptions(asynq.RedisClientOpt{Addr: mr.Addr()}, "pipeline", "webhooks")
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	taskID := StageTaskID(model.StageExtraction, "msg_1")
	require.NoError(t, q.Dispatch(ctx, model.StageExtraction, "msg_1"))
	require.NoError(t, q.Inspector.ArchiveTask("pipeline", taskID))

	info, err := q.Inspector.GetTaskInfo("pipeline", taskID)
	require.NoError(t, err)
	require.Equal(t, asynq.TaskStateArchived, info.State)

	require.NoError(t, q.Dispatch(ctx, model.StageExtraction, "msg_1"))

	info, err = q.Inspector.GetTaskInfo("pipeline", taskID)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)

	pending, err := mr.List("asynq:{pipeline}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{taskID}, pending)
}

func TestRegisterTaskHandlers(t *testing.T) {
	f := newPipelineFixture(dronePipeline)
	mux := asynq.NewServeMux()
	f.labsync.RegisterTaskHandlers(mux)

	for taskType := range taskStages {
		_, pattern := mux.Handler(asynq.NewTask(taskType, nil))
		assert.Equal(t, taskType, pattern)
	}
}
